// Package testutil provides shared test infrastructure: a dense
// single-process reference simulator, a helper that drives one goroutine per
// rank, and assertion helpers used across sim/ test packages.
package testutil

import (
	"context"
	"math/cmplx"
	"sync"
	"testing"

	"github.com/statevec-sim/statevec-sim/sim/comm"
	"github.com/statevec-sim/statevec-sim/sim/kernel"
)

// Reference is a full state vector over n qubits held in one slice. Qubit q
// is bit q of the index.
type Reference struct {
	n    int
	amps []complex128
}

// NewReference returns |0...0> over n qubits.
func NewReference(n int) *Reference {
	r := &Reference{n: n, amps: make([]complex128, 1<<n)}
	r.amps[0] = 1
	return r
}

// Qubits returns the qubit count.
func (r *Reference) Qubits() int { return r.n }

// Amplitudes returns the state vector. The slice aliases internal state.
func (r *Reference) Amplitudes() []complex128 { return r.amps }

// Apply applies m to targets, conditioned on every control being 1. Bit b of
// a matrix index is the value of targets[b].
func (r *Reference) Apply(m kernel.Matrix, targets, controls []int) {
	var ctrl int
	for _, c := range controls {
		ctrl |= 1 << c
	}
	var tmask int
	for _, t := range targets {
		tmask |= 1 << t
	}
	out := make([]complex128, len(r.amps))
	for i := range r.amps {
		if i&ctrl != ctrl {
			out[i] = r.amps[i]
			continue
		}
		row := 0
		for b, t := range targets {
			row |= (i >> t & 1) << b
		}
		base := i &^ tmask
		var s complex128
		for col, x := range m[row] {
			j := base
			for b, t := range targets {
				j |= (col >> b & 1) << t
			}
			s += x * r.amps[j]
		}
		out[i] = s
	}
	r.amps = out
}

// Probability returns the probability that qubit q reads 1.
func (r *Reference) Probability(q int) float64 {
	var p float64
	for i, a := range r.amps {
		if i>>q&1 == 1 {
			p += real(a)*real(a) + imag(a)*imag(a)
		}
	}
	return p
}

// RunRanks runs fn on every rank of an in-memory world of the given size and
// fails the test on the first error.
func RunRanks(t *testing.T, size int, fn func(c comm.Communicator) error) {
	t.Helper()
	err := comm.NewWorld(size).Run(context.Background(), func(_ context.Context, c comm.Communicator) error {
		return fn(c)
	})
	if err != nil {
		t.Fatalf("ranks failed: %v", err)
	}
}

// Collector gathers one value per rank from concurrent goroutines.
type Collector[T any] struct {
	mu   sync.Mutex
	vals []T
}

// NewCollector returns a collector with one slot per rank.
func NewCollector[T any](size int) *Collector[T] {
	return &Collector[T]{vals: make([]T, size)}
}

// Set stores v for rank.
func (c *Collector[T]) Set(rank int, v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.vals[rank] = v
}

// Values returns the stored values indexed by rank.
func (c *Collector[T]) Values() []T {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]T(nil), c.vals...)
}

// AssertStatesClose fails if two state vectors differ by more than tol in
// any entry.
func AssertStatesClose(t *testing.T, want, got []complex128, tol float64) {
	t.Helper()
	if len(want) != len(got) {
		t.Fatalf("state length: got %d, want %d", len(got), len(want))
	}
	for i := range want {
		if d := cmplx.Abs(want[i] - got[i]); d > tol {
			t.Errorf("amplitude %d: got %v, want %v (diff=%g)", i, got[i], want[i], d)
		}
	}
}

// ShardView is one rank's amplitudes and layout. Globals is indexed by rank
// bit; a negative id marks a free slot.
type ShardView struct {
	Rank    int
	Amps    []complex128
	Locals  []int64
	Globals []int64
}

// Assemble builds the full n-qubit vector, in which bit q of the index is
// qubit q, from every rank's view. Ranks with a set free-slot bit must hold
// only zeros.
func Assemble(t *testing.T, views []ShardView, n int) []complex128 {
	t.Helper()
	full := make([]complex128, 1<<n)
	for _, v := range views {
		free := false
		for slot, id := range v.Globals {
			if id < 0 && v.Rank>>slot&1 == 1 {
				free = true
			}
		}
		for i, a := range v.Amps {
			if free {
				if a != 0 {
					t.Errorf("rank %d index %d: amplitude %v in unused slot", v.Rank, i, a)
				}
				continue
			}
			idx := 0
			for b, id := range v.Locals {
				idx |= (i >> b & 1) << id
			}
			for slot, id := range v.Globals {
				if id >= 0 {
					idx |= (v.Rank >> slot & 1) << id
				}
			}
			full[idx] = a
		}
	}
	return full
}

// Probabilities returns |a|^2 for every amplitude.
func Probabilities(amps []complex128) []float64 {
	out := make([]float64, len(amps))
	for i, a := range amps {
		out[i] = real(a)*real(a) + imag(a)*imag(a)
	}
	return out
}
