package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/statevec-sim/statevec-sim/sim"
	"github.com/statevec-sim/statevec-sim/sim/bitperm"
	"github.com/statevec-sim/statevec-sim/sim/circuit"
	"github.com/statevec-sim/statevec-sim/sim/engine"
	"github.com/statevec-sim/statevec-sim/sim/trace"
)

// scheduleCmd plans a circuit without simulating it
var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Print the swap and cluster plan for a circuit without simulating it",
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
		if err := planCircuit(os.Stdout, c, cfg, ranks); err != nil {
			logrus.Fatalf("Planning failed: %v", err)
		}
	},
}

// planCircuit runs the planner on a layout-only backend and prints every
// decision.
func planCircuit(w io.Writer, c *circuit.Circuit, cfg sim.Config, ranks int) error {
	slots, ok := bitperm.Log2(ranks)
	if !ok {
		return fmt.Errorf("ranks must be a power of two, got %d", ranks)
	}
	layout := engine.NewLayout(cfg.EffectiveMinLocal(), cfg.MaxLocal, int(slots))
	tr := trace.NewSimulationTrace(trace.TraceConfig{Level: trace.TraceLevelDecisions})
	e := engine.New(layout, engine.OptionsFromConfig(cfg), tr)

	if err := e.AllocateQureg(c.AllQubits(), 0); err != nil {
		return err
	}
	fmt.Fprintf(w, "initial locals %v, globals %v\n", layout.LocalQubits(), layout.GlobalQubits())
	for i, op := range c.Ops {
		switch {
		case op.IsGate():
			m, err := op.Matrix()
			if err != nil {
				return fmt.Errorf("ops[%d]: %w", i, err)
			}
			if err := e.Apply(engine.Command{Name: op.Gate, Matrix: m, Targets: op.Targets, Controls: op.Controls}); err != nil {
				return err
			}
		case len(op.Measure) > 0:
			if _, err := e.Measure(op.Measure); err != nil {
				return err
			}
		default:
			for _, q := range op.Deallocate {
				e.Deallocate(q)
			}
		}
	}
	if err := e.Flush(); err != nil {
		return err
	}

	swaps := 0
	for _, st := range tr.Stages {
		fmt.Fprintf(w, "stage %d: %d clusters, %d gates\n", st.Index, st.Clusters, st.Gates)
		for _, cl := range tr.Clusters {
			if cl.Stage == st.Index {
				fmt.Fprintf(w, "  cluster %v: %d gates\n", cl.Qubits, cl.Gates)
			}
		}
		if swaps < len(tr.Swaps) && tr.Swaps[swaps].Stage == st.Index {
			sw := tr.Swaps[swaps]
			fmt.Fprintf(w, "  swap %v -> locals %v (expects %d gates)\n", sw.Pairs, sw.Locals, sw.Expected)
			swaps++
		}
	}
	printTraceSummary(w, trace.Summarize(tr))
	return nil
}
