package engine

import (
	"fmt"

	"github.com/statevec-sim/statevec-sim/sim"
	"github.com/statevec-sim/statevec-sim/sim/kernel"
)

// Layout is a Backend that tracks only where each qubit lives. It lets the
// planner run without amplitudes, for inspecting schedules. Measurements
// always read 0.
type Layout struct {
	minLocal int
	maxLocal int
	locals   []int64
	globals  []int64 // sim.FreeSlot marks an unused slot
}

// NewLayout returns an empty layout with globalSlots rank bits, filling
// qubits the way sim.Simulator does.
func NewLayout(minLocal, maxLocal, globalSlots int) *Layout {
	globals := make([]int64, globalSlots)
	for i := range globals {
		globals[i] = sim.FreeSlot
	}
	return &Layout{minLocal: minLocal, maxLocal: maxLocal, globals: globals}
}

func (l *Layout) LocalQubits() []int64 { return append([]int64(nil), l.locals...) }

func (l *Layout) GlobalQubits() []int64 {
	var out []int64
	for _, id := range l.globals {
		if id != sim.FreeSlot {
			out = append(out, id)
		}
	}
	return out
}

func (l *Layout) Permutation() []int64 {
	return append(l.LocalQubits(), l.globals...)
}

func (l *Layout) SetPermutation(p []int64) error {
	if len(p) != len(l.locals)+len(l.globals) {
		return fmt.Errorf("%w: permutation has %d entries, want %d",
			sim.ErrInvalidQubitSet, len(p), len(l.locals)+len(l.globals))
	}
	copy(l.locals, p[:len(l.locals)])
	copy(l.globals, p[len(l.locals):])
	return nil
}

func (l *Layout) find(id int64) (global bool, index int, ok bool) {
	for i, v := range l.locals {
		if v == id {
			return false, i, true
		}
	}
	for i, v := range l.globals {
		if v == id {
			return true, i, true
		}
	}
	return false, 0, false
}

func (l *Layout) Allocate(id int64) error {
	if _, _, ok := l.find(id); ok {
		return &sim.QubitError{Op: "allocate", Qubit: id, Err: sim.ErrQubitAlreadyAllocated}
	}
	free := -1
	for i, v := range l.globals {
		if v == sim.FreeSlot {
			free = i
			break
		}
	}
	switch {
	case len(l.locals) < l.minLocal:
		l.locals = append(l.locals, id)
	case free >= 0:
		l.globals[free] = id
	case len(l.locals) < l.maxLocal:
		l.locals = append(l.locals, id)
	default:
		return &sim.QubitError{Op: "allocate", Qubit: id, Err: sim.ErrCapacityExceeded}
	}
	return nil
}

func (l *Layout) AllocateQureg(ids []int64, _ complex128) error {
	for _, id := range ids {
		if err := l.Allocate(id); err != nil {
			return err
		}
	}
	return nil
}

func (l *Layout) Deallocate(id int64) error {
	global, i, ok := l.find(id)
	switch {
	case !ok:
		return &sim.QubitError{Op: "deallocate", Qubit: id, Err: sim.ErrUnknownQubit}
	case global:
		l.globals[i] = sim.FreeSlot
	default:
		l.locals = append(l.locals[:i], l.locals[i+1:]...)
	}
	return nil
}

// ApplyGate checks that the gate could run on the state engine.
func (l *Layout) ApplyGate(m kernel.Matrix, targets, controls []int64) error {
	for _, id := range append(append([]int64(nil), targets...), controls...) {
		if _, _, ok := l.find(id); !ok {
			return &sim.QubitError{Op: "apply", Qubit: id, Err: sim.ErrUnknownQubit}
		}
	}
	if m.IsDiagonal() {
		return nil
	}
	for _, id := range targets {
		if global, _, _ := l.find(id); global {
			return &sim.QubitError{Op: "apply", Qubit: id, Err: sim.ErrUnsupportedGlobalGate}
		}
	}
	return nil
}

func (l *Layout) Run() error { return nil }

func (l *Layout) Swap(pairs []sim.QubitPair) error {
	for _, p := range pairs {
		g, gi, gok := l.find(p.Global)
		lg, li, lok := l.find(p.Local)
		if !gok || !lok || !g || lg {
			return fmt.Errorf("%w: swap pair (%d, %d) is not (global, local)", sim.ErrInvalidQubitSet, p.Global, p.Local)
		}
		l.globals[gi], l.locals[li] = p.Local, p.Global
	}
	return nil
}

func (l *Layout) Measure(ids []int64) ([]bool, error) {
	for _, id := range ids {
		if _, _, ok := l.find(id); !ok {
			return nil, &sim.QubitError{Op: "measure", Qubit: id, Err: sim.ErrUnknownQubit}
		}
	}
	return make([]bool, len(ids)), nil
}
