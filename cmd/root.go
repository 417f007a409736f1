package cmd

import (
	"context"
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/statevec-sim/statevec-sim/sim/cluster"
	"github.com/statevec-sim/statevec-sim/sim/trace"
)

var (
	// circuit selection, shared by run and schedule
	circuitPath string // YAML circuit file
	generate    string // built-in generator: ghz, qft, random
	numQubits   int    // generator qubit count
	depth       int    // random circuit cycles

	configPath string // engine config YAML
	seed       int64  // measurement and generator seed
	logLevel   string // log verbosity level
	ranks      int    // simulated processes, a power of two

	shots          int    // independent executions of the circuit
	measureAll     bool   // append a measurement of every qubit
	dropTrailingCZ bool   // drop Z/CZ gates no later gate depends on
	traceLevel     string // decision trace verbosity
	summarizeTrace bool   // print a summary of the decision trace
	printState     bool   // print the final amplitudes of the last shot
	printMetrics   bool   // print engine metrics
)

// rootCmd is the base command for the CLI
var rootCmd = &cobra.Command{
	Use:   "statevec-sim",
	Short: "Distributed state-vector quantum circuit simulator",
}

func setLogLevel() {
	level, err := logrus.ParseLevel(logLevel)
	if err != nil {
		logrus.Fatalf("Invalid log level: %s", logLevel)
	}
	logrus.SetLevel(level)
}

// runCmd simulates a circuit on in-process ranks
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Simulate a circuit",
	Run: func(cmd *cobra.Command, args []string) {
		setLogLevel()

		cfg, err := loadEngineConfig(configPath, seed, cmd.Flags().Changed("seed"))
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		c, err := loadCircuit(circuitPath, generate, numQubits, depth, cfg.Seed)
		if err != nil {
			logrus.Fatalf("%v", err)
		}
		if measureAll {
			c.MeasureAll()
		}
		if !trace.IsValidTraceLevel(traceLevel) {
			logrus.Fatalf("Invalid trace level: %s", traceLevel)
		}
		level := trace.TraceLevel(traceLevel)
		if summarizeTrace && (level == "" || level == trace.TraceLevelNone) {
			level = trace.TraceLevelDecisions
		}

		dep := cluster.DeploymentConfig{
			Ranks:          ranks,
			Shots:          shots,
			Engine:         cfg,
			DropTrailingCZ: dropTrailingCZ,
			TraceLevel:     level,
			GatherState:    printState,
		}
		if err := dep.Validate(); err != nil {
			logrus.Fatalf("%v", err)
		}
		cs := cluster.NewClusterSimulator(dep, c)
		if err := cs.Run(context.Background()); err != nil {
			logrus.Fatalf("Simulation failed: %v", err)
		}

		ev := cs.Evaluation()
		ev.Results.PrintCounts()
		if printState {
			printAmplitudes(os.Stdout, ev.Results.State)
		}
		if printMetrics {
			ev.Metrics.Print()
		}
		if summarizeTrace && ev.Summary != nil {
			printTraceSummary(os.Stdout, ev.Summary)
		}
		logrus.Info("Simulation complete.")
	},
}

// Execute runs the CLI root command
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func addCircuitFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&circuitPath, "circuit", "", "Path to a YAML circuit file")
	cmd.Flags().StringVar(&generate, "generate", "", "Built-in circuit: ghz, qft, random")
	cmd.Flags().IntVar(&numQubits, "qubits", 8, "Qubit count for --generate")
	cmd.Flags().IntVar(&depth, "depth", 8, "Cycle count for --generate random")
	cmd.Flags().StringVar(&configPath, "config", "", "Path to an engine config YAML (see `config`)")
	cmd.Flags().Int64Var(&seed, "seed", 42, "Seed for measurements and random circuits; overrides the config file")
	cmd.Flags().StringVar(&logLevel, "log", "error", "Log level (trace, debug, info, warn, error, fatal, panic)")
	cmd.Flags().IntVar(&ranks, "ranks", 1, "Number of simulated processes (power of two)")
}

// init sets up CLI flags and subcommands
func init() {
	addCircuitFlags(runCmd)
	runCmd.Flags().IntVar(&shots, "shots", 1, "Number of independent executions")
	runCmd.Flags().BoolVar(&measureAll, "measure-all", true, "Measure every qubit at the end of the circuit")
	runCmd.Flags().BoolVar(&dropTrailingCZ, "drop-trailing-cz", false, "Skip Z/CZ gates that cannot affect later measurements")
	runCmd.Flags().StringVar(&traceLevel, "trace-level", "none", "Decision trace level (none, decisions)")
	runCmd.Flags().BoolVar(&summarizeTrace, "summarize-trace", false, "Print a summary of planning decisions")
	runCmd.Flags().BoolVar(&printState, "print-state", false, fmt.Sprintf("Print final amplitudes (at most %d qubits)", cluster.MaxGatherQubits))
	runCmd.Flags().BoolVar(&printMetrics, "metrics", false, "Print engine metrics")

	addCircuitFlags(scheduleCmd)

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(scheduleCmd)
	rootCmd.AddCommand(configCmd)
}
