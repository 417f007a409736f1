package circuit

import (
	"fmt"
	"math"
	"math/cmplx"
	"sort"
	"strings"

	"github.com/statevec-sim/statevec-sim/sim/kernel"
)

type gateDef struct {
	qubits int
	params int
	build  func(p []float64) kernel.Matrix
}

func fixed(m kernel.Matrix) func([]float64) kernel.Matrix {
	return func([]float64) kernel.Matrix { return m.Clone() }
}

var (
	invSqrt2 = complex(1/math.Sqrt2, 0)
	half     = complex(0.5, 0)
)

// gateLibrary is keyed by lower-case gate name.
var gateLibrary = map[string]gateDef{
	"i":   {1, 0, fixed(kernel.Identity(2))},
	"h":   {1, 0, fixed(kernel.Matrix{{invSqrt2, invSqrt2}, {invSqrt2, -invSqrt2}})},
	"x":   {1, 0, fixed(kernel.Matrix{{0, 1}, {1, 0}})},
	"y":   {1, 0, fixed(kernel.Matrix{{0, -1i}, {1i, 0}})},
	"z":   {1, 0, fixed(kernel.Diagonal(1, -1))},
	"s":   {1, 0, fixed(kernel.Diagonal(1, 1i))},
	"sdg": {1, 0, fixed(kernel.Diagonal(1, -1i))},
	"t":   {1, 0, fixed(kernel.Diagonal(1, cmplx.Rect(1, math.Pi/4)))},
	"tdg": {1, 0, fixed(kernel.Diagonal(1, cmplx.Rect(1, -math.Pi/4)))},

	"sqrtx": {1, 0, fixed(kernel.Matrix{
		{half + half*1i, half - half*1i},
		{half - half*1i, half + half*1i},
	})},
	"sqrty": {1, 0, fixed(kernel.Matrix{
		{half + half*1i, -half - half*1i},
		{half + half*1i, half + half*1i},
	})},
	"swap": {2, 0, fixed(kernel.Matrix{
		{1, 0, 0, 0},
		{0, 0, 1, 0},
		{0, 1, 0, 0},
		{0, 0, 0, 1},
	})},
	"rx": {1, 1, func(p []float64) kernel.Matrix {
		c, s := complex(math.Cos(p[0]/2), 0), complex(math.Sin(p[0]/2), 0)
		return kernel.Matrix{{c, -1i * s}, {-1i * s, c}}
	}},
	"ry": {1, 1, func(p []float64) kernel.Matrix {
		c, s := complex(math.Cos(p[0]/2), 0), complex(math.Sin(p[0]/2), 0)
		return kernel.Matrix{{c, -s}, {s, c}}
	}},
	"rz": {1, 1, func(p []float64) kernel.Matrix {
		return kernel.Diagonal(cmplx.Rect(1, -p[0]/2), cmplx.Rect(1, p[0]/2))
	}},
	"phase": {1, 1, func(p []float64) kernel.Matrix {
		return kernel.Diagonal(1, cmplx.Rect(1, p[0]))
	}},
}

// GateMatrix returns the matrix of the named gate. Names are case-insensitive.
func GateMatrix(name string, params []float64) (kernel.Matrix, error) {
	def, ok := gateLibrary[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unknown gate %q; valid: %s", name, strings.Join(GateNames(), ", "))
	}
	if len(params) != def.params {
		return nil, fmt.Errorf("gate %s takes %d parameters, got %d", name, def.params, len(params))
	}
	for _, p := range params {
		if math.IsNaN(p) || math.IsInf(p, 0) {
			return nil, fmt.Errorf("gate %s: parameter must be finite, got %f", name, p)
		}
	}
	return def.build(params), nil
}

// GateQubits returns the number of targets the named gate acts on, or 0 for
// an unknown gate.
func GateQubits(name string) int {
	return gateLibrary[strings.ToLower(name)].qubits
}

// GateNames lists the gate library in sorted order.
func GateNames() []string {
	names := make([]string, 0, len(gateLibrary))
	for n := range gateLibrary {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}
