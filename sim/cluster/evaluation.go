package cluster

import (
	"time"

	"github.com/statevec-sim/statevec-sim/sim"
	"github.com/statevec-sim/statevec-sim/sim/trace"
)

// EvaluationResult bundles all outputs from a cluster run for downstream
// consumers.
type EvaluationResult struct {
	Results *Results
	Metrics *sim.StageMetrics
	Trace   *trace.SimulationTrace // nil if trace level is "none"
	Summary *trace.TraceSummary    // nil if trace level is "none"

	WallTime time.Duration
}

// Evaluation collects the results of a completed run.
// Panics if called before Run() has completed.
func (c *ClusterSimulator) Evaluation() *EvaluationResult {
	ev := &EvaluationResult{
		Results:  c.Results(),
		Metrics:  c.AggregatedMetrics(),
		WallTime: c.results.WallTime,
	}
	if c.config.TraceLevel == trace.TraceLevelDecisions {
		ev.Trace = c.trace
		ev.Summary = trace.Summarize(c.trace)
	}
	return ev
}
