package kernel

import (
	"fmt"
	"math"
	"math/cmplx"

	"github.com/statevec-sim/statevec-sim/sim/bitperm"
)

// Matrix is a dense square complex matrix stored row-major. Bit b of a row or
// column index corresponds to the b-th qubit the matrix acts on.
type Matrix [][]complex128

// Identity returns the dim x dim identity.
func Identity(dim int) Matrix {
	m := Zero(dim)
	for i := range m {
		m[i][i] = 1
	}
	return m
}

// Zero returns a dim x dim zero matrix.
func Zero(dim int) Matrix {
	m := make(Matrix, dim)
	for i := range m {
		m[i] = make([]complex128, dim)
	}
	return m
}

// Diagonal returns the matrix with d on its diagonal.
func Diagonal(d ...complex128) Matrix {
	m := Zero(len(d))
	for i, v := range d {
		m[i][i] = v
	}
	return m
}

// Dim returns the number of rows.
func (m Matrix) Dim() int {
	return len(m)
}

// Qubits returns log2 of the dimension, or an error if the matrix is not a
// square power-of-two matrix.
func (m Matrix) Qubits() (int, error) {
	k, ok := bitperm.Log2(len(m))
	if !ok {
		return 0, fmt.Errorf("matrix dimension %d is not a power of two", len(m))
	}
	for i, row := range m {
		if len(row) != len(m) {
			return 0, fmt.Errorf("matrix row %d has %d columns, want %d", i, len(row), len(m))
		}
	}
	return int(k), nil
}

// IsDiagonal reports whether every off-diagonal entry is exactly zero.
func (m Matrix) IsDiagonal() bool {
	for i, row := range m {
		for j, v := range row {
			if i != j && v != 0 {
				return false
			}
		}
	}
	return true
}

// IsUnitary reports whether m * m^dagger is within tol of the identity.
func (m Matrix) IsUnitary(tol float64) bool {
	n := len(m)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			var s complex128
			for k := 0; k < n; k++ {
				s += m[i][k] * cmplx.Conj(m[j][k])
			}
			want := complex(0, 0)
			if i == j {
				want = 1
			}
			if cmplx.Abs(s-want) > tol {
				return false
			}
		}
	}
	return true
}

// Clone returns a deep copy.
func (m Matrix) Clone() Matrix {
	c := make(Matrix, len(m))
	for i, row := range m {
		c[i] = append([]complex128(nil), row...)
	}
	return c
}

// Scale multiplies every entry by c in place and returns m.
func (m Matrix) Scale(c complex128) Matrix {
	for _, row := range m {
		for j := range row {
			row[j] *= c
		}
	}
	return m
}

// Mul returns m * o.
func (m Matrix) Mul(o Matrix) Matrix {
	n := len(m)
	out := Zero(n)
	for i := 0; i < n; i++ {
		for k := 0; k < n; k++ {
			if m[i][k] == 0 {
				continue
			}
			for j := 0; j < n; j++ {
				out[i][j] += m[i][k] * o[k][j]
			}
		}
	}
	return out
}

// ApproxEqual reports whether m and o agree entrywise within tol.
func (m Matrix) ApproxEqual(o Matrix, tol float64) bool {
	if len(m) != len(o) {
		return false
	}
	for i := range m {
		for j := range m[i] {
			if math.IsNaN(real(m[i][j])) || cmplx.Abs(m[i][j]-o[i][j]) > tol {
				return false
			}
		}
	}
	return true
}
