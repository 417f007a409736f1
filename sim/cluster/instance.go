// Package cluster runs a circuit on every rank of an in-memory world, one
// goroutine per rank, and checks that the ranks agree.
//
// This package wraps the per-rank state engine (sim.Simulator) and planner
// (engine.Engine) behind ClusterSimulator.
package cluster

import (
	"fmt"

	"github.com/statevec-sim/statevec-sim/sim"
	"github.com/statevec-sim/statevec-sim/sim/circuit"
	"github.com/statevec-sim/statevec-sim/sim/comm"
	"github.com/statevec-sim/statevec-sim/sim/engine"
	"github.com/statevec-sim/statevec-sim/sim/trace"
)

// RankInstance is one rank's simulator and planner.
//
// Thread-safety: NOT thread-safe. Each rank goroutine owns its instance.
type RankInstance struct {
	rank   int
	sim    *sim.Simulator
	engine *engine.Engine
	hasRun bool
}

// NewRankInstance builds the simulator for c's rank. metrics and tr may be
// nil.
func NewRankInstance(c comm.Communicator, cfg sim.Config, opts engine.Options,
	metrics sim.MetricsSink, tr *trace.SimulationTrace) *RankInstance {
	var simOpts []sim.Option
	if metrics != nil {
		simOpts = append(simOpts, sim.WithMetrics(metrics))
	}
	s := sim.NewSimulator(c, cfg, simOpts...)
	return &RankInstance{
		rank:   c.Rank(),
		sim:    s,
		engine: engine.New(s, opts, tr),
	}
}

// Rank returns the instance's rank.
func (r *RankInstance) Rank() int { return r.rank }

// Run allocates the circuit's qubits, executes its ops and returns every
// measurement in program order. Panics if called more than once.
func (r *RankInstance) Run(c *circuit.Circuit) ([][]bool, error) {
	if r.hasRun {
		panic("RankInstance.Run() called more than once")
	}
	r.hasRun = true

	if err := r.engine.AllocateQureg(c.AllQubits(), 0); err != nil {
		return nil, err
	}
	var results [][]bool
	for i, op := range c.Ops {
		switch {
		case op.IsGate():
			m, err := op.Matrix()
			if err != nil {
				return nil, fmt.Errorf("ops[%d]: %w", i, err)
			}
			cmd := engine.Command{Name: op.Gate, Matrix: m, Targets: op.Targets, Controls: op.Controls}
			if err := r.engine.Apply(cmd); err != nil {
				return nil, err
			}
		case len(op.Measure) > 0:
			got, err := r.engine.Measure(op.Measure)
			if err != nil {
				return nil, err
			}
			results = append(results, got)
		default:
			for _, q := range op.Deallocate {
				r.engine.Deallocate(q)
			}
		}
	}
	if err := r.engine.Flush(); err != nil {
		return nil, err
	}
	return results, r.sim.Close()
}

// View returns a copy of the rank's amplitudes and layout.
func (r *RankInstance) View() ShardView {
	amps, locals := r.sim.Shard()
	return ShardView{
		Rank:    r.rank,
		Amps:    append([]complex128(nil), amps...),
		Locals:  locals,
		Globals: r.sim.Permutation()[len(locals):],
	}
}

// ShardView is one rank's amplitudes and layout. Globals is indexed by rank
// bit and holds sim.FreeSlot for unused slots.
type ShardView struct {
	Rank    int
	Amps    []complex128
	Locals  []int64
	Globals []int64
}

// AssembleState builds the full vector over qubits 0..n-1, in which bit q of
// the index is qubit q. Qubits missing from the views read as 0.
func AssembleState(views []ShardView, n int) ([]complex128, error) {
	if n > MaxGatherQubits {
		return nil, fmt.Errorf("cannot gather %d qubits, limit is %d", n, MaxGatherQubits)
	}
	full := make([]complex128, 1<<n)
	for _, v := range views {
		free := false
		for slot, id := range v.Globals {
			if id == sim.FreeSlot && v.Rank>>slot&1 == 1 {
				free = true
			} else if id >= int64(n) {
				return nil, fmt.Errorf("rank %d holds qubit %d outside [0, %d)", v.Rank, id, n)
			}
		}
		for _, id := range v.Locals {
			if id >= int64(n) {
				return nil, fmt.Errorf("rank %d holds qubit %d outside [0, %d)", v.Rank, id, n)
			}
		}
		for i, a := range v.Amps {
			if free {
				if a != 0 {
					return nil, fmt.Errorf("rank %d index %d: amplitude %v in an unused slot", v.Rank, i, a)
				}
				continue
			}
			idx := 0
			for b, id := range v.Locals {
				idx |= (i >> b & 1) << id
			}
			for slot, id := range v.Globals {
				if id != sim.FreeSlot {
					idx |= (v.Rank >> slot & 1) << id
				}
			}
			full[idx] = a
		}
	}
	return full, nil
}
