package kernel

import (
	"math"
	"math/cmplx"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var hadamard = Matrix{
	{complex(1/math.Sqrt2, 0), complex(1/math.Sqrt2, 0)},
	{complex(1/math.Sqrt2, 0), complex(-1/math.Sqrt2, 0)},
}

// naive applies m by brute force over the whole shard.
func naive(shard []complex128, positions []uint, m Matrix, ctrl uint64) []complex128 {
	out := append([]complex128(nil), shard...)
	for idx := range shard {
		i := uint64(idx)
		if i&ctrl != ctrl {
			continue
		}
		row := 0
		cleared := i
		for b, p := range positions {
			row |= int(i>>p&1) << b
			cleared &^= 1 << p
		}
		var s complex128
		for col := range m {
			j := cleared
			for b, p := range positions {
				j |= uint64(col>>b&1) << p
			}
			s += m[row][col] * shard[j]
		}
		out[idx] = s
	}
	return out
}

func randomShard(r *rand.Rand, n int) []complex128 {
	s := make([]complex128, n)
	for i := range s {
		s[i] = complex(r.NormFloat64(), r.NormFloat64())
	}
	return s
}

func randomMatrix(r *rand.Rand, dim int) Matrix {
	m := Zero(dim)
	for i := range m {
		for j := range m[i] {
			m[i][j] = complex(r.NormFloat64(), r.NormFloat64())
		}
	}
	return m
}

func assertShardsClose(t *testing.T, want, got []complex128) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		assert.InDelta(t, 0, cmplx.Abs(want[i]-got[i]), 1e-9, "index %d: want %v got %v", i, want[i], got[i])
	}
}

func TestApply_MatchesNaiveForEveryWidth(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	tests := []struct {
		name      string
		positions []uint
		ctrl      uint64
	}{
		{"1 qubit", []uint{3}, 0},
		{"1 qubit controlled", []uint{0}, 1 << 5},
		{"2 qubits unordered", []uint{4, 1}, 0},
		{"3 qubits", []uint{6, 0, 2}, 1 << 3},
		{"4 qubits", []uint{1, 2, 5, 6}, 0},
		{"5 qubits", []uint{0, 6, 3, 2, 4}, 1 << 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			shard := randomShard(r, 1<<7)
			m := randomMatrix(r, 1<<len(tt.positions))
			want := naive(shard, tt.positions, m, tt.ctrl)
			require.NoError(t, Apply(shard, tt.positions, m, tt.ctrl, false, Options{}))
			assertShardsClose(t, want, shard)
		})
	}
}

func TestApply_DiagonalPathMatchesDense(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	shard := randomShard(r, 1<<6)
	m := Diagonal(1, 1i, -1, cmplx.Exp(0.3i))
	want := naive(shard, []uint{2, 5}, m, 1)
	require.NoError(t, Apply(shard, []uint{2, 5}, m, 1, true, Options{}))
	assertShardsClose(t, want, shard)
}

func TestApply_ParallelMatchesSerial(t *testing.T) {
	r := rand.New(rand.NewSource(3))
	serial := randomShard(r, 1<<12)
	parallel := append([]complex128(nil), serial...)
	m := randomMatrix(r, 8)

	require.NoError(t, Apply(serial, []uint{0, 7, 11}, m, 0, false, Options{ParallelThreshold: -1}))
	require.NoError(t, Apply(parallel, []uint{0, 7, 11}, m, 0, false, Options{ParallelThreshold: 16}))
	assertShardsClose(t, serial, parallel)
}

func TestApply_HadamardTwiceIsIdentity(t *testing.T) {
	shard := []complex128{0.6, 0.8i, 0, 0}
	orig := append([]complex128(nil), shard...)
	require.NoError(t, Apply(shard, []uint{1}, hadamard, 0, false, Options{}))
	require.NoError(t, Apply(shard, []uint{1}, hadamard, 0, false, Options{}))
	assertShardsClose(t, orig, shard)
}

func TestApply_ZeroQubitsScalesControlledSubspace(t *testing.T) {
	shard := []complex128{1, 1, 1, 1}
	require.NoError(t, Apply(shard, nil, Matrix{{-1}}, 0b10, false, Options{}))
	assert.Equal(t, []complex128{1, 1, -1, -1}, shard)
}

func TestApply_Errors(t *testing.T) {
	shard := make([]complex128, 1<<7)
	err := Apply(shard, []uint{0, 1, 2, 3, 4, 5}, Identity(64), 0, false, Options{})
	assert.ErrorIs(t, err, ErrTooManyQubits)

	assert.Error(t, Apply(shard, []uint{0}, Identity(4), 0, false, Options{}), "dimension mismatch")
	assert.Error(t, Apply(shard, []uint{9}, Identity(2), 0, false, Options{}), "position outside shard")
	assert.Error(t, Apply(shard, []uint{1}, Identity(2), 0b10, false, Options{}), "target is control")
}

func TestMatrix_Properties(t *testing.T) {
	assert.True(t, hadamard.IsUnitary(1e-12))
	assert.False(t, hadamard.IsDiagonal())
	assert.True(t, Diagonal(1, -1).IsDiagonal())
	assert.True(t, hadamard.Mul(hadamard).ApproxEqual(Identity(2), 1e-12))

	k, err := Identity(8).Qubits()
	require.NoError(t, err)
	assert.Equal(t, 3, k)
	_, err = Zero(3).Qubits()
	assert.Error(t, err)
}
