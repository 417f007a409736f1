package cluster

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/statevec-sim/statevec-sim/sim"
	"github.com/statevec-sim/statevec-sim/sim/circuit"
	"github.com/statevec-sim/statevec-sim/sim/comm"
	"github.com/statevec-sim/statevec-sim/sim/engine"
	"github.com/statevec-sim/statevec-sim/sim/trace"
)

// ErrRankDisagreement is returned when ranks report different measurement
// outcomes for the same shot.
var ErrRankDisagreement = errors.New("ranks returned different measurement outcomes")

// Results holds the outcomes of every shot.
type Results struct {
	RunID    string
	Shots    [][]bool       // per shot, every measured bit in program order
	Counts   map[string]int // per-shot bitstring -> occurrences
	State    []complex128   // final state of the last shot; nil unless gathered
	WallTime time.Duration
}

// ClusterSimulator runs one circuit on Ranks goroutines sharing an in-memory
// world. Every rank plans and executes the same command stream.
type ClusterSimulator struct {
	config            DeploymentConfig
	circuit           *circuit.Circuit
	runID             string
	log               *logrus.Entry
	sinks             []*sim.StageMetrics
	trace             *trace.SimulationTrace
	results           *Results
	hasRun            bool
	aggregatedMetrics *sim.StageMetrics
}

// NewClusterSimulator prepares a run of c.
// Panics if config is invalid or c is nil.
func NewClusterSimulator(config DeploymentConfig, c *circuit.Circuit) *ClusterSimulator {
	if err := config.Validate(); err != nil {
		panic(fmt.Sprintf("ClusterSimulator: %v", err))
	}
	if c == nil {
		panic("ClusterSimulator: circuit is nil")
	}
	sinks := make([]*sim.StageMetrics, config.Ranks)
	for i := range sinks {
		sinks[i] = sim.NewStageMetrics()
	}
	runID := uuid.NewString()
	return &ClusterSimulator{
		config:  config,
		circuit: c,
		runID:   runID,
		log:     logrus.WithField("run", runID),
		sinks:   sinks,
		trace:   trace.NewSimulationTrace(trace.TraceConfig{Level: config.TraceLevel}),
	}
}

// RunID returns the identifier attached to this run's log lines.
func (c *ClusterSimulator) RunID() string { return c.runID }

// Run executes every shot. Panics if called more than once.
func (c *ClusterSimulator) Run(ctx context.Context) error {
	if c.hasRun {
		panic("ClusterSimulator.Run() called more than once")
	}
	c.hasRun = true
	start := time.Now()
	c.log.Infof("running %s: %d qubits, %d gates, %d ranks, %d shots",
		c.circuit.Name, c.circuit.Qubits, c.circuit.GateCount(), c.config.Ranks, c.config.Shots)

	res := &Results{RunID: c.runID, Counts: make(map[string]int)}
	for shot := 0; shot < c.config.Shots; shot++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		gather := c.config.GatherState && shot == c.config.Shots-1
		outcome, views, err := c.runShot(ctx, shot, gather)
		if err != nil {
			return fmt.Errorf("shot %d: %w", shot, err)
		}
		res.Shots = append(res.Shots, outcome)
		res.Counts[bitstring(outcome)]++
		if gather {
			if res.State, err = AssembleState(views, c.circuit.Qubits); err != nil {
				return err
			}
		}
	}
	res.WallTime = time.Since(start)
	c.results = res
	c.aggregatedMetrics = aggregateMetrics(c.sinks)
	c.log.Infof("finished in %v", res.WallTime)
	return nil
}

// runShot runs the circuit once on a fresh world and checks that every rank
// measured the same values.
func (c *ClusterSimulator) runShot(ctx context.Context, shot int, gather bool) ([]bool, []ShardView, error) {
	cfg := c.config.Engine
	cfg.Seed += int64(shot)
	opts := engine.OptionsFromConfig(cfg)
	opts.DropTrailingCZ = c.config.DropTrailingCZ

	outcomes := make([][][]bool, c.config.Ranks)
	views := make([]ShardView, c.config.Ranks)
	world := comm.NewWorld(c.config.Ranks)
	err := world.Run(ctx, func(_ context.Context, cm comm.Communicator) error {
		var tr *trace.SimulationTrace
		if cm.Rank() == 0 && shot == 0 {
			tr = c.trace
		}
		inst := NewRankInstance(cm, cfg, opts, c.sinks[cm.Rank()], tr)
		got, err := inst.Run(c.circuit)
		if err != nil {
			return fmt.Errorf("rank %d: %w", cm.Rank(), err)
		}
		// each goroutine writes only its own index
		outcomes[cm.Rank()] = got
		if gather {
			views[cm.Rank()] = inst.View()
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}

	for r := 1; r < len(outcomes); r++ {
		if !reflect.DeepEqual(outcomes[0], outcomes[r]) {
			return nil, nil, fmt.Errorf("%w: rank 0 %v, rank %d %v", ErrRankDisagreement, outcomes[0], r, outcomes[r])
		}
	}
	var flat []bool
	for _, m := range outcomes[0] {
		flat = append(flat, m...)
	}
	c.log.Debugf("shot %d: %s", shot, bitstring(flat))
	return flat, views, nil
}

func bitstring(bits []bool) string {
	var b strings.Builder
	for _, v := range bits {
		if v {
			b.WriteByte('1')
		} else {
			b.WriteByte('0')
		}
	}
	return b.String()
}

// Results returns the shot outcomes.
// Panics if called before Run() has completed.
func (c *ClusterSimulator) Results() *Results {
	if c.results == nil {
		panic("ClusterSimulator.Results() called before Run()")
	}
	return c.results
}

// AggregatedMetrics returns the metrics merged across ranks.
// Panics if called before Run() has completed.
func (c *ClusterSimulator) AggregatedMetrics() *sim.StageMetrics {
	if c.aggregatedMetrics == nil {
		panic("ClusterSimulator.AggregatedMetrics() called before Run()")
	}
	return c.aggregatedMetrics
}

// RankMetrics returns each rank's metrics, indexed by rank.
func (c *ClusterSimulator) RankMetrics() []*sim.StageMetrics {
	return c.sinks
}

// Trace returns the decision trace of the first shot on rank 0.
func (c *ClusterSimulator) Trace() *trace.SimulationTrace {
	return c.trace
}
