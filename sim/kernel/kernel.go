package kernel

import (
	"errors"
	"fmt"
	"runtime"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/statevec-sim/statevec-sim/sim/bitperm"
)

// MaxQubits is the largest gate width the kernel table covers.
const MaxQubits = 5

// DefaultParallelThreshold is the shard length from which kernels fan out
// across goroutines.
const DefaultParallelThreshold = 1 << 14

// ErrTooManyQubits is returned when a gate is wider than MaxQubits.
var ErrTooManyQubits = errors.New("gate acts on more qubits than the kernel supports")

// Options tunes kernel execution.
type Options struct {
	// ParallelThreshold is the shard length at which work is split across
	// goroutines. Zero selects DefaultParallelThreshold; negative disables
	// parallelism.
	ParallelThreshold int
}

type kernelFunc func(shard []complex128, g *group, m Matrix, lo, hi uint64)

// kernels and diagKernels are indexed by gate width.
var (
	kernels     = [MaxQubits + 1]kernelFunc{1: apply1, 2: apply2, 3: applyN, 4: applyN, 5: applyN}
	diagKernels = [MaxQubits + 1]kernelFunc{1: applyDiag, 2: applyDiag, 3: applyDiag, 4: applyDiag, 5: applyDiag}
)

// group describes how one gate application enumerates the shard: every base
// index (targets cleared) that satisfies the control mask, and the offsets of
// its 2^k members.
type group struct {
	sorted  []uint   // target positions, ascending
	offsets []uint64 // offsets[j]: shard offset of matrix index j
	ctrl    uint64
}

func newGroup(positions []uint, ctrl uint64) *group {
	g := &group{
		sorted:  append([]uint(nil), positions...),
		offsets: make([]uint64, 1<<len(positions)),
		ctrl:    ctrl,
	}
	sort.Slice(g.sorted, func(i, j int) bool { return g.sorted[i] < g.sorted[j] })
	for j := range g.offsets {
		var off uint64
		for b, p := range positions {
			if j>>b&1 == 1 {
				off |= bitperm.Bit(p)
			}
		}
		g.offsets[j] = off
	}
	return g
}

// base maps a group number to its base shard index.
func (g *group) base(n uint64) uint64 {
	idx := n
	for _, p := range g.sorted {
		idx = bitperm.InsertBit(idx, p, 0)
	}
	return idx
}

// Apply applies m to the qubits at shard positions, restricted to indices
// where every bit of ctrlMask is set. diag selects the diagonal kernel.
func Apply(shard []complex128, positions []uint, m Matrix, ctrlMask uint64, diag bool, opts Options) error {
	k := len(positions)
	if k > MaxQubits {
		return fmt.Errorf("%w: %d > %d", ErrTooManyQubits, k, MaxQubits)
	}
	if m.Dim() != 1<<k {
		return fmt.Errorf("matrix dimension %d does not match %d target qubits", m.Dim(), k)
	}
	if k == 0 {
		ApplyScalar(shard, m[0][0], ctrlMask, opts)
		return nil
	}
	for _, p := range positions {
		if bitperm.Bit(p) >= uint64(len(shard)) {
			return fmt.Errorf("target position %d outside shard of length %d", p, len(shard))
		}
		if bitperm.Has(ctrlMask, p) {
			return fmt.Errorf("position %d is both target and control", p)
		}
	}

	g := newGroup(positions, ctrlMask)
	fn := kernels[k]
	if diag {
		fn = diagKernels[k]
	}
	groups := uint64(len(shard)) >> uint(k)
	ParallelFor(groups, uint64(len(shard)), opts, func(lo, hi uint64) {
		fn(shard, g, m, lo, hi)
	})
	return nil
}

// ApplyScalar multiplies every amplitude whose index satisfies ctrlMask by c.
func ApplyScalar(shard []complex128, c complex128, ctrlMask uint64, opts Options) {
	if c == 1 {
		return
	}
	ParallelFor(uint64(len(shard)), uint64(len(shard)), opts, func(lo, hi uint64) {
		for i := lo; i < hi; i++ {
			if i&ctrlMask == ctrlMask {
				shard[i] *= c
			}
		}
	})
}

// ParallelFor calls fn over disjoint subranges covering [0, n). work is the
// amount of data touched, compared against the parallel threshold.
func ParallelFor(n, work uint64, opts Options, fn func(lo, hi uint64)) {
	threshold := opts.ParallelThreshold
	if threshold == 0 {
		threshold = DefaultParallelThreshold
	}
	workers := uint64(runtime.GOMAXPROCS(0))
	if threshold < 0 || work < uint64(threshold) || workers < 2 || n < workers {
		fn(0, n)
		return
	}
	chunk := (n + workers - 1) / workers
	var eg errgroup.Group
	for lo := uint64(0); lo < n; lo += chunk {
		lo, hi := lo, min(lo+chunk, n)
		eg.Go(func() error {
			fn(lo, hi)
			return nil
		})
	}
	_ = eg.Wait()
}

func apply1(shard []complex128, g *group, m Matrix, lo, hi uint64) {
	m00, m01, m10, m11 := m[0][0], m[0][1], m[1][0], m[1][1]
	o1 := g.offsets[1]
	for n := lo; n < hi; n++ {
		b := g.base(n)
		if b&g.ctrl != g.ctrl {
			continue
		}
		v0, v1 := shard[b], shard[b+o1]
		shard[b] = m00*v0 + m01*v1
		shard[b+o1] = m10*v0 + m11*v1
	}
}

func apply2(shard []complex128, g *group, m Matrix, lo, hi uint64) {
	var v [4]complex128
	for n := lo; n < hi; n++ {
		b := g.base(n)
		if b&g.ctrl != g.ctrl {
			continue
		}
		for j := 0; j < 4; j++ {
			v[j] = shard[b+g.offsets[j]]
		}
		for i := 0; i < 4; i++ {
			row := m[i]
			shard[b+g.offsets[i]] = row[0]*v[0] + row[1]*v[1] + row[2]*v[2] + row[3]*v[3]
		}
	}
}

func applyN(shard []complex128, g *group, m Matrix, lo, hi uint64) {
	dim := len(g.offsets)
	v := make([]complex128, dim)
	for n := lo; n < hi; n++ {
		b := g.base(n)
		if b&g.ctrl != g.ctrl {
			continue
		}
		for j := 0; j < dim; j++ {
			v[j] = shard[b+g.offsets[j]]
		}
		for i := 0; i < dim; i++ {
			var s complex128
			for j, x := range m[i] {
				s += x * v[j]
			}
			shard[b+g.offsets[i]] = s
		}
	}
}

func applyDiag(shard []complex128, g *group, m Matrix, lo, hi uint64) {
	dim := len(g.offsets)
	for n := lo; n < hi; n++ {
		b := g.base(n)
		if b&g.ctrl != g.ctrl {
			continue
		}
		for j := 0; j < dim; j++ {
			if d := m[j][j]; d != 1 {
				shard[b+g.offsets[j]] *= d
			}
		}
	}
}
