// Package circuit describes quantum circuits: a named gate library, a YAML
// file format and generators for benchmark circuits.
package circuit

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/statevec-sim/statevec-sim/sim/kernel"
)

// Op is one circuit step. Exactly one of Gate, Measure or Deallocate is set.
type Op struct {
	Gate     string    `yaml:"gate,omitempty"`
	Targets  []int64   `yaml:"targets,omitempty"`
	Controls []int64   `yaml:"controls,omitempty"`
	Params   []float64 `yaml:"params,omitempty"`

	Measure    []int64 `yaml:"measure,omitempty"`
	Deallocate []int64 `yaml:"deallocate,omitempty"`
}

// IsGate reports whether op applies a gate.
func (op Op) IsGate() bool { return op.Gate != "" }

// Matrix returns the gate matrix of op.
func (op Op) Matrix() (kernel.Matrix, error) {
	return GateMatrix(op.Gate, op.Params)
}

// Circuit is a qubit count and an ordered op list. Qubits 0..Qubits-1 are
// allocated before the first op.
type Circuit struct {
	Name   string `yaml:"name,omitempty"`
	Qubits int    `yaml:"qubits"`
	Ops    []Op   `yaml:"ops"`
}

// Load reads a YAML circuit file.
// Uses strict parsing: unrecognized keys (typos) are rejected.
func Load(path string) (*Circuit, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading circuit: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates a YAML circuit.
func Parse(data []byte) (*Circuit, error) {
	var c Circuit
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&c); err != nil {
		return nil, fmt.Errorf("parsing circuit: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Marshal encodes c as YAML.
func (c *Circuit) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(c); err != nil {
		return nil, err
	}
	if err := enc.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Validate checks qubit ranges, gate names and arities. A deallocated qubit
// may not be used afterwards.
func (c *Circuit) Validate() error {
	if c.Qubits < 1 {
		return fmt.Errorf("qubits must be positive, got %d", c.Qubits)
	}
	gone := make(map[int64]bool)
	for i, op := range c.Ops {
		prefix := fmt.Sprintf("ops[%d]", i)
		kinds := 0
		for _, set := range []bool{op.IsGate(), len(op.Measure) > 0, len(op.Deallocate) > 0} {
			if set {
				kinds++
			}
		}
		if kinds != 1 {
			return fmt.Errorf("%s: exactly one of gate, measure, deallocate must be set", prefix)
		}

		switch {
		case op.IsGate():
			if _, err := op.Matrix(); err != nil {
				return fmt.Errorf("%s: %w", prefix, err)
			}
			if want := GateQubits(op.Gate); len(op.Targets) != want {
				return fmt.Errorf("%s: gate %s takes %d targets, got %d", prefix, op.Gate, want, len(op.Targets))
			}
			if err := c.checkQubits(prefix, gone, op.Targets, op.Controls); err != nil {
				return err
			}
		case len(op.Measure) > 0:
			if err := c.checkQubits(prefix, gone, op.Measure); err != nil {
				return err
			}
		default:
			if err := c.checkQubits(prefix, gone, op.Deallocate); err != nil {
				return err
			}
			for _, q := range op.Deallocate {
				gone[q] = true
			}
		}
	}
	return nil
}

func (c *Circuit) checkQubits(prefix string, gone map[int64]bool, lists ...[]int64) error {
	seen := make(map[int64]bool)
	for _, list := range lists {
		for _, q := range list {
			if q < 0 || q >= int64(c.Qubits) {
				return fmt.Errorf("%s: qubit %d out of range [0, %d)", prefix, q, c.Qubits)
			}
			if gone[q] {
				return fmt.Errorf("%s: qubit %d used after deallocation", prefix, q)
			}
			if seen[q] {
				return fmt.Errorf("%s: qubit %d listed twice", prefix, q)
			}
			seen[q] = true
		}
	}
	return nil
}

// GateCount returns the number of gate ops.
func (c *Circuit) GateCount() int {
	n := 0
	for _, op := range c.Ops {
		if op.IsGate() {
			n++
		}
	}
	return n
}

// AllQubits returns 0..Qubits-1.
func (c *Circuit) AllQubits() []int64 {
	ids := make([]int64, c.Qubits)
	for i := range ids {
		ids[i] = int64(i)
	}
	return ids
}

// MeasureAll appends a measurement of every qubit not yet deallocated.
func (c *Circuit) MeasureAll() {
	gone := make(map[int64]bool)
	for _, op := range c.Ops {
		for _, q := range op.Deallocate {
			gone[q] = true
		}
	}
	var ids []int64
	for _, q := range c.AllQubits() {
		if !gone[q] {
			ids = append(ids, q)
		}
	}
	if len(ids) > 0 {
		c.Ops = append(c.Ops, Op{Measure: ids})
	}
}
