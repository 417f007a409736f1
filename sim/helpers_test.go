package sim

import (
	"fmt"
	"math"
	"testing"

	"github.com/statevec-sim/statevec-sim/sim/comm"
	"github.com/statevec-sim/statevec-sim/sim/internal/testutil"
	"github.com/statevec-sim/statevec-sim/sim/kernel"
)

var (
	hGate = kernel.Matrix{
		{complex(1/math.Sqrt2, 0), complex(1/math.Sqrt2, 0)},
		{complex(1/math.Sqrt2, 0), complex(-1/math.Sqrt2, 0)},
	}
	xGate = kernel.Matrix{{0, 1}, {1, 0}}
	zGate = kernel.Diagonal(1, -1)
	sGate = kernel.Diagonal(1, 1i)
	tGate = kernel.Diagonal(1, complex(math.Sqrt2/2, math.Sqrt2/2))
)

// testConfig returns a small valid config.
func testConfig(minLocal, maxLocal, cluster int) Config {
	cfg := DefaultConfig()
	cfg.MinLocal = minLocal
	cfg.MaxLocal = maxLocal
	cfg.ClusterSize = cluster
	cfg.CheckNorm = true
	cfg.ParallelThreshold = -1
	return cfg
}

// rankState is a snapshot of one rank after a test body ran.
type rankState struct {
	rank    int
	shard   []complex128
	locals  []int64
	globals []int64
}

func snapshot(s *Simulator) rankState {
	return rankState{
		rank:    s.Rank(),
		shard:   append([]complex128(nil), s.shard...),
		locals:  s.LocalQubits(),
		globals: append([]int64(nil), s.globals...),
	}
}

// runSim builds a simulator on every rank, runs body, and returns each
// rank's final state.
func runSim(t *testing.T, ranks int, cfg Config, body func(s *Simulator) error) []rankState {
	t.Helper()
	out := testutil.NewCollector[rankState](ranks)
	testutil.RunRanks(t, ranks, func(c comm.Communicator) error {
		s := NewSimulator(c, cfg)
		if err := body(s); err != nil {
			return fmt.Errorf("rank %d: %w", c.Rank(), err)
		}
		if err := s.Close(); err != nil {
			return err
		}
		if err := s.checkInvariants(); err != nil {
			return fmt.Errorf("rank %d: %w", c.Rank(), err)
		}
		out.Set(c.Rank(), snapshot(s))
		return nil
	})
	return out.Values()
}

// fullState assembles the global vector in which bit q of the index is
// qubit q. Amplitudes held by ranks with a set free-slot bit must be zero.
func fullState(t *testing.T, states []rankState, n int) []complex128 {
	t.Helper()
	views := make([]testutil.ShardView, len(states))
	for i, st := range states {
		views[i] = testutil.ShardView{Rank: st.rank, Amps: st.shard, Locals: st.locals, Globals: st.globals}
	}
	return testutil.Assemble(t, views, n)
}

// checkInvariants verifies that positions and ids form a bijection and the
// shard matches the local count.
func (s *Simulator) checkInvariants() error {
	if len(s.shard) != 1<<len(s.locals) {
		return fmt.Errorf("shard length %d for %d local qubits", len(s.shard), len(s.locals))
	}
	count := 0
	for i, id := range s.locals {
		if p, ok := s.where[id]; !ok || p.global || p.index != i {
			return fmt.Errorf("local bit %d: qubit %d maps to %+v", i, id, p)
		}
		count++
	}
	for i, id := range s.globals {
		if id == FreeSlot {
			continue
		}
		if p, ok := s.where[id]; !ok || !p.global || p.index != i {
			return fmt.Errorf("global slot %d: qubit %d maps to %+v", i, id, p)
		}
		count++
	}
	if count != len(s.where) {
		return fmt.Errorf("%d positions for %d qubits", count, len(s.where))
	}
	return nil
}
