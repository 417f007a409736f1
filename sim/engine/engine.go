// Package engine plans the execution of a gate stream on a distributed
// state vector.
//
// Gates are buffered until a flush point (allocation, measurement, explicit
// Flush, or the first gate after a deallocation). At a flush the buffered
// gates are split into stages. Within a stage every gate acts on local
// qubits, and the gates run as a sequence of fused clusters chosen by the
// cluster scheduler. Between stages the swap scheduler picks which global
// qubits to bring in.
package engine

import (
	"errors"
	"fmt"
	"sort"

	"github.com/sirupsen/logrus"

	"github.com/statevec-sim/statevec-sim/sim"
	"github.com/statevec-sim/statevec-sim/sim/kernel"
	"github.com/statevec-sim/statevec-sim/sim/scheduler"
	"github.com/statevec-sim/statevec-sim/sim/trace"
)

// ErrNoProgress is returned when gates remain but no swap makes any of them
// runnable.
var ErrNoProgress = errors.New("planner cannot make progress")

// Backend is the per-rank state engine the planner drives. *sim.Simulator
// implements it.
type Backend interface {
	LocalQubits() []int64
	GlobalQubits() []int64
	Permutation() []int64
	SetPermutation(p []int64) error

	Allocate(id int64) error
	AllocateQureg(ids []int64, init complex128) error
	Deallocate(id int64) error
	ApplyGate(m kernel.Matrix, targets, controls []int64) error
	Run() error
	Swap(pairs []sim.QubitPair) error
	Measure(ids []int64) ([]bool, error)
}

// Command is one buffered gate. Bit b of a matrix index is the value of
// Targets[b].
type Command struct {
	Name     string
	Matrix   kernel.Matrix
	Targets  []int64
	Controls []int64
}

func (c Command) qubits() []int64 {
	return append(append([]int64(nil), c.Targets...), c.Controls...)
}

// symmetric reports whether c is a controlled phase on one target, which is
// invariant under exchanging the target with a control.
func (c Command) symmetric() bool {
	return len(c.Targets) == 1 && c.Matrix.IsDiagonal() && c.Matrix[0][0] == 1
}

// isZ reports whether c is a (possibly controlled) Z gate.
func (c Command) isZ() bool {
	return c.symmetric() && c.Matrix[1][1] == -1
}

// Options configures the planner.
type Options struct {
	ClusterSize int // qubits in one fused cluster; match sim.Config.ClusterSize
	NumSplits   int // swap scheduler branch budget

	// DropTrailingCZ removes Z and CZ gates after which none of their qubits
	// is used again. They do not change measurement statistics.
	DropTrailingCZ bool
}

// OptionsFromConfig takes the planner settings from an engine config.
func OptionsFromConfig(cfg sim.Config) Options {
	return Options{ClusterSize: cfg.ClusterSize, NumSplits: cfg.NumSplits}
}

// Engine buffers commands for one rank and replays them on its Backend.
// Every rank must issue the same calls in the same order.
type Engine struct {
	backend   Backend
	opts      Options
	trace     *trace.SimulationTrace
	cmds      []Command
	deallocs  []int64
	scheduled bool

	// pristine holds while every allocated qubit is still |0>, which makes
	// any relabelling of positions free.
	pristine bool
}

// New returns an engine driving b. tr may be nil.
func New(b Backend, opts Options, tr *trace.SimulationTrace) *Engine {
	return &Engine{backend: b, opts: opts, trace: tr, pristine: true}
}

// Pending returns the number of buffered commands.
func (e *Engine) Pending() int { return len(e.cmds) }

// Apply buffers a gate.
func (e *Engine) Apply(cmd Command) error {
	if len(e.deallocs) > 0 {
		if err := e.Flush(); err != nil {
			return err
		}
	}
	e.cmds = append(e.cmds, cmd)
	return nil
}

// Allocate flushes and allocates id.
func (e *Engine) Allocate(id int64) error {
	if err := e.Flush(); err != nil {
		return err
	}
	return e.backend.Allocate(id)
}

// AllocateQureg flushes and allocates ids with every amplitude set to init.
func (e *Engine) AllocateQureg(ids []int64, init complex128) error {
	if err := e.Flush(); err != nil {
		return err
	}
	if init != 0 {
		e.pristine = false
	}
	return e.backend.AllocateQureg(ids, init)
}

// Deallocate queues id for removal at the next flush.
func (e *Engine) Deallocate(id int64) {
	e.deallocs = append(e.deallocs, id)
}

// Measure flushes and measures ids.
func (e *Engine) Measure(ids []int64) ([]bool, error) {
	if err := e.Flush(); err != nil {
		return nil, err
	}
	e.pristine = false
	return e.backend.Measure(ids)
}

// Flush runs every buffered command, then the queued deallocations in
// descending id order.
func (e *Engine) Flush() error {
	if err := e.schedule(); err != nil {
		return err
	}
	sort.Slice(e.deallocs, func(i, j int) bool { return e.deallocs[i] > e.deallocs[j] })
	for len(e.deallocs) > 0 {
		id := e.deallocs[0]
		e.deallocs = e.deallocs[1:]
		if err := e.backend.Deallocate(id); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) schedule() error {
	if len(e.cmds) == 0 {
		return nil
	}
	if err := e.check(); err != nil {
		return err
	}
	if e.opts.DropTrailingCZ {
		e.cmds = dropTrailingZ(e.cmds)
	}

	if !e.scheduled && e.pristine {
		e.scheduled = true
		toLocal, toGlobal, _, err := e.planSwap()
		if err != nil {
			return err
		}
		if len(toLocal) > 0 {
			perm := e.backend.Permutation()
			for i := range toLocal {
				p1, p2 := indexOf(perm, toLocal[i]), indexOf(perm, toGlobal[i])
				perm[p1], perm[p2] = perm[p2], perm[p1]
			}
			if err := e.backend.SetPermutation(perm); err != nil {
				return err
			}
			logrus.Debugf("engine: initial layout brings %v local", toLocal)
		}
	}

	if err := e.runClusters(); err != nil {
		return err
	}
	for len(e.cmds) > 0 {
		toLocal, toGlobal, plan, err := e.planSwap()
		if err != nil {
			return err
		}
		if len(toLocal) == 0 {
			return fmt.Errorf("%w: %d gates left on locals %v", ErrNoProgress, len(e.cmds), e.backend.LocalQubits())
		}
		pairs := make([]sim.QubitPair, len(toLocal))
		record := trace.SwapRecord{Locals: plan.Locals, Expected: plan.Expected}
		for i := range toLocal {
			pairs[i] = sim.QubitPair{Global: toLocal[i], Local: toGlobal[i]}
			record.Pairs = append(record.Pairs, trace.SwapPair{Global: toLocal[i], Local: toGlobal[i]})
		}
		if err := e.backend.Swap(pairs); err != nil {
			return err
		}
		e.trace.RecordSwap(record)
		if err := e.runClusters(); err != nil {
			return err
		}
	}
	return nil
}

// check rejects commands that no layout can run.
func (e *Engine) check() error {
	locals := e.backend.LocalQubits()
	allocated := make(map[int64]bool)
	for _, id := range locals {
		allocated[id] = true
	}
	for _, id := range e.backend.GlobalQubits() {
		allocated[id] = true
	}
	for _, c := range e.cmds {
		if len(c.Targets) > len(locals) {
			return fmt.Errorf("%w: cannot apply %d-qubit gate %s with %d local qubits",
				sim.ErrClusterTooLarge, len(c.Targets), c.Name, len(locals))
		}
		if len(c.Targets) > kernel.MaxQubits {
			return fmt.Errorf("%w: %s acts on %d qubits, at most %d allowed",
				sim.ErrClusterTooLarge, c.Name, len(c.Targets), kernel.MaxQubits)
		}
		for _, id := range c.qubits() {
			if !allocated[id] {
				return &sim.QubitError{Op: "apply " + c.Name, Qubit: id, Err: sim.ErrUnknownQubit}
			}
		}
	}
	return nil
}

func (e *Engine) gates() []scheduler.Gate {
	out := make([]scheduler.Gate, len(e.cmds))
	for i, c := range e.cmds {
		out[i] = scheduler.Gate{Targets: c.Targets, Controls: c.Controls, Diagonal: c.Matrix.IsDiagonal()}
	}
	return out
}

// planSwap asks the swap scheduler for the next local set, with single-qubit
// fusion first and without it if that finds nothing. It returns the globals
// to bring in and, pairwise, the locals to send out.
func (e *Engine) planSwap() (toLocal, toGlobal []int64, plan scheduler.SwapPlan, err error) {
	locals := e.backend.LocalQubits()
	gates := e.gates()
	for _, fuse := range []bool{true, false} {
		s, err := scheduler.NewSwapScheduler(gates, e.opts.NumSplits, len(locals), fuse)
		if err != nil {
			return nil, nil, plan, err
		}
		if plan = s.Schedule(); len(plan.Locals) > 0 {
			break
		}
	}

	toLocal = difference(plan.Locals, locals)
	if len(toLocal) == 0 {
		return nil, nil, plan, nil
	}
	out := difference(locals, plan.Locals)
	if len(out) < len(toLocal) {
		return nil, nil, plan, fmt.Errorf("%w: plan wants %d new locals but only %d can leave",
			ErrNoProgress, len(toLocal), len(out))
	}
	return toLocal, out[:len(toLocal)], plan, nil
}

// runClusters applies clusters until the scheduler finds nothing runnable.
func (e *Engine) runClusters() error {
	e.canonicalize()
	locals := e.backend.LocalQubits()
	globals := e.backend.GlobalQubits()
	for {
		cs, err := scheduler.NewClusterScheduler(e.gates(), locals, globals, e.opts.ClusterSize)
		if err != nil {
			return err
		}
		avail := cs.Schedule()
		if len(avail) == 0 {
			return nil
		}

		var qubits []int64
		for _, i := range avail {
			c := e.cmds[i]
			if err := e.backend.ApplyGate(c.Matrix, c.Targets, c.Controls); err != nil {
				return err
			}
			qubits = append(qubits, c.qubits()...)
		}
		if err := e.backend.Run(); err != nil {
			return err
		}
		e.trace.RecordCluster(len(avail), union(qubits))

		taken := make(map[int]bool, len(avail))
		for _, i := range avail {
			taken[i] = true
		}
		kept := e.cmds[:0]
		for i, c := range e.cmds {
			if !taken[i] {
				kept = append(kept, c)
			}
		}
		e.cmds = kept
	}
}

// canonicalize moves a controlled phase off a global target onto one of its
// local controls.
func (e *Engine) canonicalize() {
	local := make(map[int64]bool)
	for _, id := range e.backend.LocalQubits() {
		local[id] = true
	}
	for i := range e.cmds {
		c := &e.cmds[i]
		if !c.symmetric() || local[c.Targets[0]] {
			continue
		}
		for j, ctrl := range c.Controls {
			if local[ctrl] {
				controls := append([]int64(nil), c.Controls...)
				controls[j] = c.Targets[0]
				c.Targets = []int64{ctrl}
				c.Controls = controls
				break
			}
		}
	}
}

// dropTrailingZ removes Z gates whose qubits are untouched by any later gate.
func dropTrailingZ(cmds []Command) []Command {
	used := make(map[int64]bool)
	keep := make([]bool, len(cmds))
	for i := len(cmds) - 1; i >= 0; i-- {
		drop := cmds[i].isZ()
		if drop {
			for _, id := range cmds[i].qubits() {
				if used[id] {
					drop = false
					break
				}
			}
		}
		if drop {
			continue
		}
		keep[i] = true
		for _, id := range cmds[i].qubits() {
			used[id] = true
		}
	}
	out := cmds[:0]
	for i, c := range cmds {
		if keep[i] {
			out = append(out, c)
		}
	}
	if dropped := len(cmds) - len(out); dropped > 0 {
		logrus.Debugf("engine: dropped %d trailing Z gates", dropped)
	}
	return out
}

func indexOf(ids []int64, id int64) int {
	for i, v := range ids {
		if v == id {
			return i
		}
	}
	return -1
}

// difference returns the sorted ids of a not in b.
func difference(a, b []int64) []int64 {
	in := make(map[int64]bool, len(b))
	for _, id := range b {
		in[id] = true
	}
	var out []int64
	for _, id := range a {
		if !in[id] {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func union(ids []int64) []int64 {
	seen := make(map[int64]bool, len(ids))
	var out []int64
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
