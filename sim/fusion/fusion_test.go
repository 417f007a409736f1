package fusion

import (
	"math"
	"math/cmplx"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/statevec-sim/statevec-sim/sim/kernel"
)

type gate struct {
	m     kernel.Matrix
	ids   []int64
	ctrls []int64
}

func positions(ids []int64) []uint {
	out := make([]uint, len(ids))
	for i, id := range ids {
		out[i] = uint(id)
	}
	return out
}

func ctrlMask(ids []int64) uint64 {
	var m uint64
	for _, id := range ids {
		m |= 1 << uint(id)
	}
	return m
}

func randomUnitaryish(r *rand.Rand, dim int) kernel.Matrix {
	m := kernel.Zero(dim)
	for i := range m {
		for j := range m[i] {
			m[i][j] = complex(r.NormFloat64(), r.NormFloat64())
		}
	}
	return m
}

// applySequential runs each gate through the kernel one by one.
func applySequential(t *testing.T, shard []complex128, gates []gate) {
	t.Helper()
	for _, g := range gates {
		require.NoError(t, kernel.Apply(shard, positions(g.ids), g.m, ctrlMask(g.ctrls), false, kernel.Options{}))
	}
}

func applyFused(t *testing.T, shard []complex128, gates []gate) {
	t.Helper()
	b := New()
	for _, g := range gates {
		b.Insert(g.m, g.ids, g.ctrls)
	}
	f := b.Fuse()
	require.NoError(t, kernel.Apply(shard, positions(f.Qubits), f.Matrix, ctrlMask(f.Controls), f.Diagonal, kernel.Options{}))
}

func assertClose(t *testing.T, want, got []complex128) {
	t.Helper()
	for i := range want {
		assert.InDelta(t, 0, cmplx.Abs(want[i]-got[i]), 1e-9, "index %d", i)
	}
}

func TestFuse_EquivalentToSequential(t *testing.T) {
	r := rand.New(rand.NewSource(1))
	tests := []struct {
		name  string
		gates []gate
	}{
		{"disjoint single qubit", []gate{
			{m: randomUnitaryish(r, 2), ids: []int64{0}},
			{m: randomUnitaryish(r, 2), ids: []int64{3}},
		}},
		{"overlapping two qubit", []gate{
			{m: randomUnitaryish(r, 4), ids: []int64{2, 0}},
			{m: randomUnitaryish(r, 4), ids: []int64{0, 1}},
			{m: randomUnitaryish(r, 2), ids: []int64{2}},
		}},
		{"common control kept", []gate{
			{m: randomUnitaryish(r, 2), ids: []int64{1}, ctrls: []int64{4}},
			{m: randomUnitaryish(r, 4), ids: []int64{0, 2}, ctrls: []int64{4}},
		}},
		{"common control dropped", []gate{
			{m: randomUnitaryish(r, 2), ids: []int64{1}, ctrls: []int64{4, 3}},
			{m: randomUnitaryish(r, 2), ids: []int64{0}, ctrls: []int64{3}},
			{m: randomUnitaryish(r, 2), ids: []int64{4}},
		}},
		{"controlled phase only", []gate{
			{m: randomUnitaryish(r, 2), ids: []int64{0}},
			{m: kernel.Matrix{{-1}}, ctrls: []int64{2}},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seq := make([]complex128, 1<<5)
			for i := range seq {
				seq[i] = complex(r.NormFloat64(), r.NormFloat64())
			}
			fused := append([]complex128(nil), seq...)
			applySequential(t, seq, tt.gates)
			applyFused(t, fused, tt.gates)
			assertClose(t, seq, fused)
		})
	}
}

func TestInsert_GlobalPhaseFoldsIntoFactor(t *testing.T) {
	b := New()
	assert.True(t, b.Empty())
	b.Insert(kernel.Matrix{{1i}}, nil, nil)
	assert.False(t, b.Empty())
	assert.Zero(t, b.Len())

	f := b.Fuse()
	assert.Empty(t, f.Qubits)
	assert.Equal(t, kernel.Matrix{{1i}}, f.Matrix)
}

// A phase must still reach amplitudes outside the common-control subspace.
func TestFuse_PhaseWithCommonControls(t *testing.T) {
	b := New()
	x := kernel.Matrix{{0, 1}, {1, 0}}
	b.Insert(x, []int64{1}, []int64{0})
	b.Insert(kernel.Matrix{{-1}}, nil, nil)

	f := b.Fuse()
	assert.Empty(t, f.Controls)
	shard := []complex128{0.5, 0.5, 0.5, 0.5}
	require.NoError(t, kernel.Apply(shard, positions(f.Qubits), f.Matrix, ctrlMask(f.Controls), f.Diagonal, kernel.Options{}))
	assert.Equal(t, []complex128{-0.5, -0.5, -0.5, -0.5}, shard)
}

func TestInsert_TracksQubitsAndControls(t *testing.T) {
	b := New()
	b.Insert(kernel.Identity(2), []int64{7}, []int64{3, 1})
	assert.Equal(t, []int64{7}, b.Qubits())
	assert.Equal(t, []int64{1, 3}, b.Controls())
	assert.Equal(t, 4, b.Touched([]int64{2}, []int64{1}))

	b.Insert(kernel.Identity(2), []int64{2}, []int64{3})
	assert.Equal(t, []int64{1, 2, 7}, b.Qubits())
	assert.Equal(t, []int64{3}, b.Controls())

	b.Reset()
	assert.True(t, b.Empty())
	assert.Empty(t, b.Qubits())
}

func TestFuse_DiagonalFlag(t *testing.T) {
	b := New()
	b.Insert(kernel.Diagonal(1, -1), []int64{0}, nil)
	b.Insert(kernel.Diagonal(1, 1i), []int64{1}, []int64{0})
	assert.True(t, b.Fuse().Diagonal)

	b.Insert(kernel.Matrix{{0, 1}, {1, 0}}, []int64{1}, nil)
	assert.False(t, b.Fuse().Diagonal)
}

func TestAddControls_IdentityOutsideControlledBlock(t *testing.T) {
	h := kernel.Matrix{
		{complex(1/math.Sqrt2, 0), complex(1/math.Sqrt2, 0)},
		{complex(1/math.Sqrt2, 0), complex(-1/math.Sqrt2, 0)},
	}
	m, ids := AddControls(h, []int64{5}, []int64{2})
	assert.Equal(t, []int64{5, 2}, ids)
	require.Equal(t, 4, m.Dim())
	assert.Equal(t, complex128(1), m[0][0])
	assert.Equal(t, complex128(1), m[1][1])
	assert.Equal(t, h[1][1], m[3][3])
	assert.Equal(t, h[0][1], m[2][3])
}
