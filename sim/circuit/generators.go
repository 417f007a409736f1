package circuit

import (
	"fmt"
	"math"
	"math/rand"
	"strings"
)

// GHZ prepares (|0..0> + |1..1>)/sqrt(2) with a Hadamard and a CNOT chain.
func GHZ(n int) *Circuit {
	c := &Circuit{Name: fmt.Sprintf("ghz-%d", n), Qubits: n}
	c.Ops = append(c.Ops, Op{Gate: "H", Targets: []int64{0}})
	for q := 1; q < n; q++ {
		c.Ops = append(c.Ops, Op{Gate: "X", Targets: []int64{int64(q)}, Controls: []int64{int64(q - 1)}})
	}
	return c
}

// QFT is the quantum Fourier transform on n qubits, including the final
// qubit reversal.
func QFT(n int) *Circuit {
	c := &Circuit{Name: fmt.Sprintf("qft-%d", n), Qubits: n}
	for i := n - 1; i >= 0; i-- {
		c.Ops = append(c.Ops, Op{Gate: "H", Targets: []int64{int64(i)}})
		for j := i - 1; j >= 0; j-- {
			c.Ops = append(c.Ops, Op{
				Gate:     "Phase",
				Targets:  []int64{int64(i)},
				Controls: []int64{int64(j)},
				Params:   []float64{math.Pi / float64(int64(1)<<(i-j))},
			})
		}
	}
	for i := 0; i < n/2; i++ {
		c.Ops = append(c.Ops, Op{Gate: "Swap", Targets: []int64{int64(i), int64(n - 1 - i)}})
	}
	return c
}

var randomSingle = []string{"SqrtX", "SqrtY", "T"}

// Random builds a supremacy-style circuit on a line of n qubits: a Hadamard
// layer, then depth cycles of alternating CZ layers with random sqrt-X,
// sqrt-Y or T gates on the idle qubits.
func Random(n, depth int, rng *rand.Rand) *Circuit {
	c := &Circuit{Name: fmt.Sprintf("random-%d-%d", n, depth), Qubits: n}
	for q := 0; q < n; q++ {
		c.Ops = append(c.Ops, Op{Gate: "H", Targets: []int64{int64(q)}})
	}
	for d := 0; d < depth; d++ {
		busy := make([]bool, n)
		for q := d % 2; q+1 < n; q += 2 {
			c.Ops = append(c.Ops, Op{Gate: "Z", Targets: []int64{int64(q + 1)}, Controls: []int64{int64(q)}})
			busy[q], busy[q+1] = true, true
		}
		for q := 0; q < n; q++ {
			if !busy[q] {
				g := randomSingle[rng.Intn(len(randomSingle))]
				c.Ops = append(c.Ops, Op{Gate: g, Targets: []int64{int64(q)}})
			}
		}
	}
	return c
}

// Generate builds a named benchmark circuit: ghz, qft or random.
func Generate(kind string, n, depth int, rng *rand.Rand) (*Circuit, error) {
	if n < 1 {
		return nil, fmt.Errorf("qubits must be positive, got %d", n)
	}
	switch strings.ToLower(kind) {
	case "ghz":
		return GHZ(n), nil
	case "qft":
		return QFT(n), nil
	case "random":
		if depth < 0 {
			return nil, fmt.Errorf("depth must be non-negative, got %d", depth)
		}
		return Random(n, depth, rng), nil
	default:
		return nil, fmt.Errorf("unknown circuit %q; valid: ghz, qft, random", kind)
	}
}
