// Package fusion accumulates consecutive gates into one dense matrix so the
// shard is swept once per cluster instead of once per gate.
//
// Controls shared by every buffered gate stay outside the fused matrix and
// are applied as a kernel control mask. A control that stops being common is
// folded into the matrix of each gate that carried it.
package fusion

import (
	"sort"

	"github.com/statevec-sim/statevec-sim/sim/kernel"
)

// Fused is the result of fusing a Buffer.
type Fused struct {
	Matrix   kernel.Matrix
	Qubits   []int64 // bit b of a Matrix index is Qubits[b]
	Controls []int64
	Diagonal bool
}

type item struct {
	m    kernel.Matrix
	ids  []int64
	diag bool
}

// Buffer holds gates waiting to be fused. The zero value is not usable; use
// New.
type Buffer struct {
	qubits []int64 // sorted union of item targets
	ctrls  []int64 // sorted common controls
	items  []item
	factor complex128
}

// New returns an empty buffer.
func New() *Buffer {
	return &Buffer{factor: 1}
}

// Len returns the number of buffered gates.
func (b *Buffer) Len() int {
	return len(b.items)
}

// Empty reports whether applying the buffer would be a no-op.
func (b *Buffer) Empty() bool {
	return len(b.items) == 0 && b.factor == 1
}

// Qubits returns the sorted target set of the fused matrix so far.
func (b *Buffer) Qubits() []int64 {
	return append([]int64(nil), b.qubits...)
}

// Controls returns the sorted common controls.
func (b *Buffer) Controls() []int64 {
	return append([]int64(nil), b.ctrls...)
}

// Touched returns how many distinct qubits the buffer would involve after
// inserting a gate on ids controlled by ctrls.
func (b *Buffer) Touched(ids, ctrls []int64) int {
	all := union(union(b.qubits, b.ctrls), union(sorted(ids), sorted(ctrls)))
	return len(all)
}

// Insert buffers m acting on ids, controlled by ctrls. A 1x1 matrix without
// controls is a global phase and is folded into a scalar factor.
func (b *Buffer) Insert(m kernel.Matrix, ids, ctrls []int64) {
	ids = append([]int64(nil), ids...)
	ctrls = sorted(ctrls)

	if len(ids) == 0 && len(ctrls) == 0 {
		b.factor *= m[0][0]
		return
	}

	if len(b.items) == 0 {
		b.ctrls = ctrls
	} else {
		common := intersect(b.ctrls, ctrls)
		if dropped := difference(b.ctrls, common); len(dropped) > 0 {
			for i := range b.items {
				it := &b.items[i]
				it.m, it.ids = AddControls(it.m, it.ids, dropped)
			}
			b.qubits = union(b.qubits, dropped)
		}
		if extra := difference(ctrls, common); len(extra) > 0 {
			m, ids = AddControls(m, ids, extra)
		}
		b.ctrls = common
	}

	b.items = append(b.items, item{m: m, ids: ids, diag: m.IsDiagonal()})
	b.qubits = union(b.qubits, sorted(ids))
}

// Fuse multiplies the buffered gates, in insertion order, into one matrix
// over Qubits. The buffer is left unchanged.
func (b *Buffer) Fuse() Fused {
	if b.factor != 1 && len(b.ctrls) > 0 {
		b.expandControls()
	}

	dim := 1 << len(b.qubits)
	out := kernel.Identity(dim).Scale(b.factor)
	index := make(map[int64]int, len(b.qubits))
	for i, q := range b.qubits {
		index[q] = i
	}

	diag := true
	for _, it := range b.items {
		diag = diag && it.diag
		pos := make([]int, len(it.ids))
		for l, id := range it.ids {
			pos[l] = index[id]
		}
		out = lift(it.m, pos, out)
	}

	return Fused{
		Matrix:   out,
		Qubits:   b.Qubits(),
		Controls: b.Controls(),
		Diagonal: diag,
	}
}

// Reset empties the buffer.
func (b *Buffer) Reset() {
	b.qubits = nil
	b.ctrls = nil
	b.items = nil
	b.factor = 1
}

func (b *Buffer) expandControls() {
	for i := range b.items {
		it := &b.items[i]
		it.m, it.ids = AddControls(it.m, it.ids, b.ctrls)
	}
	if len(b.items) == 0 {
		// only a phase with nothing to hang controls on
		b.ctrls = nil
		return
	}
	b.qubits = union(b.qubits, b.ctrls)
	b.ctrls = nil
}

// AddControls widens m so it acts on ids followed by ctrls, applying m only
// when every control is 1. The returned ids are ids ++ ctrls.
func AddControls(m kernel.Matrix, ids, ctrls []int64) (kernel.Matrix, []int64) {
	if len(ctrls) == 0 {
		return m, ids
	}
	small := m.Dim()
	dim := small << len(ctrls)
	out := kernel.Identity(dim)
	offset := dim - small
	for i := 0; i < small; i++ {
		for j := 0; j < small; j++ {
			out[offset+i][offset+j] = m[i][j]
		}
	}
	newIDs := make([]int64, 0, len(ids)+len(ctrls))
	newIDs = append(newIDs, ids...)
	newIDs = append(newIDs, ctrls...)
	return out, newIDs
}

// lift returns g*acc, where g acts on the bits pos of acc's index space.
func lift(g kernel.Matrix, pos []int, acc kernel.Matrix) kernel.Matrix {
	dim := len(acc)
	var mask int
	for _, p := range pos {
		mask |= 1 << p
	}
	out := kernel.Zero(dim)
	for i := 0; i < dim; i++ {
		row := 0
		for l, p := range pos {
			row |= (i >> p & 1) << l
		}
		base := i &^ mask
		for j, x := range g[row] {
			if x == 0 {
				continue
			}
			src := base
			for l, p := range pos {
				src |= (j >> l & 1) << p
			}
			for col := 0; col < dim; col++ {
				out[i][col] += x * acc[src][col]
			}
		}
	}
	return out
}

func sorted(ids []int64) []int64 {
	out := append([]int64(nil), ids...)
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// union merges two sorted slices without duplicates.
func union(a, b []int64) []int64 {
	out := make([]int64, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		switch {
		case j == len(b) || (i < len(a) && a[i] < b[j]):
			out = append(out, a[i])
			i++
		case i == len(a) || b[j] < a[i]:
			out = append(out, b[j])
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	return out
}

func intersect(a, b []int64) []int64 {
	var out []int64
	for i, j := 0, 0; i < len(a) && j < len(b); {
		switch {
		case a[i] < b[j]:
			i++
		case b[j] < a[i]:
			j++
		default:
			out = append(out, a[i])
			i++
			j++
		}
	}
	return out
}

func difference(a, b []int64) []int64 {
	var out []int64
	j := 0
	for _, x := range a {
		for j < len(b) && b[j] < x {
			j++
		}
		if j < len(b) && b[j] == x {
			continue
		}
		out = append(out, x)
	}
	return out
}
