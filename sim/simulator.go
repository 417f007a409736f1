package sim

import (
	"fmt"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/statevec-sim/statevec-sim/sim/bitperm"
	"github.com/statevec-sim/statevec-sim/sim/comm"
	"github.com/statevec-sim/statevec-sim/sim/fusion"
	"github.com/statevec-sim/statevec-sim/sim/kernel"
	"github.com/statevec-sim/statevec-sim/sim/swap"
)

// FreeSlot marks an unoccupied global slot in a permutation.
const FreeSlot int64 = -1

// zeroTolerance is the probability below which a branch counts as empty.
const zeroTolerance = 1e-12

var pauliX = kernel.Matrix{{0, 1}, {1, 0}}

// QubitPair names a global and a local qubit that trade places in a swap.
type QubitPair struct {
	Global int64
	Local  int64
}

type position struct {
	global bool
	index  int // local bit or global slot
}

// Simulator is one rank's view of a distributed state vector.
//
// The full vector has 2^(locals+globals) amplitudes. This rank stores the
// 2^locals amplitudes whose global bits equal its rank. Every method that
// touches amplitudes of other ranks is collective: all ranks must call it
// with the same arguments in the same order.
//
// A Simulator is not safe for concurrent use.
type Simulator struct {
	cfg       Config
	world     comm.Communicator
	rank      int
	maxGlobal int

	shard   []complex128
	locals  []int64 // locals[bit] = qubit id
	globals []int64 // globals[slot] = qubit id or FreeSlot
	where   map[int64]position

	fused   *fusion.Buffer
	swapper *swap.Executor
	rng     *rand.Rand
	metrics MetricsSink
	log     *logrus.Entry
}

// Option customizes a Simulator.
type Option func(*Simulator)

// WithMetrics routes engine timings to sink.
func WithMetrics(sink MetricsSink) Option {
	return func(s *Simulator) {
		s.metrics = sink
	}
}

// NewSimulator creates the rank-local engine over world. It is collective:
// rank 0's seed is broadcast so every rank samples measurements identically.
// Panics if cfg is invalid or the world size is not a power of two.
func NewSimulator(world comm.Communicator, cfg Config, opts ...Option) *Simulator {
	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("NewSimulator: %v", err))
	}
	maxGlobal, ok := bitperm.Log2(world.Size())
	if !ok {
		panic(fmt.Sprintf("NewSimulator: world size %d is not a power of two", world.Size()))
	}

	seed := int64(world.BroadcastUint64(uint64(cfg.Seed), 0))
	s := &Simulator{
		cfg:       cfg,
		world:     world,
		rank:      world.Rank(),
		maxGlobal: int(maxGlobal),
		shard:     []complex128{0},
		globals:   make([]int64, maxGlobal),
		where:     make(map[int64]position),
		fused:     fusion.New(),
		swapper:   swap.NewExecutor(world, cfg.swapOptions()),
		rng:       NewPartitionedRNG(NewSimulationKey(seed)).ForSubsystem(SubsystemMeasure),
		metrics:   NoopMetrics{},
		log:       logrus.WithField("rank", world.Rank()),
	}
	for i := range s.globals {
		s.globals[i] = FreeSlot
	}
	if s.rank == 0 {
		s.shard[0] = 1
	}
	for _, opt := range opts {
		opt(s)
	}
	s.metrics.StartStage()
	if s.rank == 0 {
		s.log.Infof("simulator: %d ranks, max %d local + %d global qubits, cluster size %d",
			world.Size(), cfg.MaxLocal, maxGlobal, cfg.ClusterSize)
	}
	return s
}

// Rank returns this rank's index.
func (s *Simulator) Rank() int { return s.rank }

// Size returns the number of ranks.
func (s *Simulator) Size() int { return s.world.Size() }

// Config returns the configuration the simulator was built with.
func (s *Simulator) Config() Config { return s.cfg }

// LocalCount returns the number of local qubits.
func (s *Simulator) LocalCount() int { return len(s.locals) }

// GlobalCount returns the number of occupied global slots.
func (s *Simulator) GlobalCount() int {
	n := 0
	for _, id := range s.globals {
		if id != FreeSlot {
			n++
		}
	}
	return n
}

// QubitCount returns the number of allocated qubits.
func (s *Simulator) QubitCount() int { return len(s.where) }

// LocalQubits returns the local qubit ids ordered by bit.
func (s *Simulator) LocalQubits() []int64 {
	return append([]int64(nil), s.locals...)
}

// GlobalQubits returns the occupied global qubit ids ordered by slot.
func (s *Simulator) GlobalQubits() []int64 {
	var out []int64
	for _, id := range s.globals {
		if id != FreeSlot {
			out = append(out, id)
		}
	}
	return out
}

// IsLocal reports whether id is allocated and local.
func (s *Simulator) IsLocal(id int64) bool {
	p, ok := s.where[id]
	return ok && !p.global
}

// Shard returns this rank's amplitudes and the local qubit owning each index
// bit. The slice aliases internal state; pending gates are not applied.
func (s *Simulator) Shard() ([]complex128, []int64) {
	return s.shard, s.LocalQubits()
}

// Permutation returns the local qubits by bit followed by the global slots;
// free slots are reported as FreeSlot.
func (s *Simulator) Permutation() []int64 {
	out := make([]int64, 0, len(s.locals)+len(s.globals))
	out = append(out, s.locals...)
	return append(out, s.globals...)
}

// SetPermutation relabels positions without moving amplitudes. p must name
// every allocated qubit once, in the layout returned by Permutation, and
// keep free global slots where they are. Only meaningful while the state is
// symmetric under the relabelling, such as a fresh basis state.
func (s *Simulator) SetPermutation(p []int64) error {
	if err := s.flush(); err != nil {
		return err
	}
	if len(p) != len(s.locals)+len(s.globals) {
		return s.fail(fmt.Errorf("%w: permutation has %d entries, want %d",
			ErrInvalidQubitSet, len(p), len(s.locals)+len(s.globals)))
	}
	seen := make(map[int64]bool, len(p))
	for i, id := range p {
		free := i >= len(s.locals) && s.globals[i-len(s.locals)] == FreeSlot
		if free != (id == FreeSlot) {
			return s.fail(fmt.Errorf("%w: permutation entry %d moves a free global slot", ErrInvalidQubitSet, i))
		}
		if free {
			continue
		}
		if _, ok := s.where[id]; !ok || seen[id] {
			return s.fail(&QubitError{Op: "set permutation", Qubit: id, Err: ErrInvalidQubitSet})
		}
		seen[id] = true
	}

	copy(s.locals, p[:len(s.locals)])
	copy(s.globals, p[len(s.locals):])
	s.reindex()
	return nil
}

func (s *Simulator) reindex() {
	for i, id := range s.locals {
		s.where[id] = position{index: i}
	}
	for i, id := range s.globals {
		if id != FreeSlot {
			s.where[id] = position{global: true, index: i}
		}
	}
}

// fail synchronizes with the other ranks, which raise the same error, and
// returns err.
func (s *Simulator) fail(err error) error {
	s.world.Barrier()
	s.log.Errorf("%v", err)
	return err
}

func (s *Simulator) freeSlot() int {
	for i, id := range s.globals {
		if id == FreeSlot {
			return i
		}
	}
	return -1
}

// Allocate adds qubit id in state |0>. Local positions are filled up to the
// minimum local count first, then free global slots, then local positions
// up to the maximum.
func (s *Simulator) Allocate(id int64) error {
	start := time.Now()
	if id < 0 {
		return s.fail(&QubitError{Op: "allocate", Qubit: id, Err: ErrInvalidQubitSet})
	}
	if _, ok := s.where[id]; ok {
		return s.fail(&QubitError{Op: "allocate", Qubit: id, Err: ErrQubitAlreadyAllocated})
	}

	local := len(s.locals)
	slot := s.freeSlot()
	switch {
	case local < s.cfg.EffectiveMinLocal():
		s.addLocal(id)
	case slot >= 0:
		s.globals[slot] = id
		s.where[id] = position{global: true, index: slot}
	case local < s.cfg.MaxLocal:
		s.addLocal(id)
	default:
		return s.fail(&QubitError{Op: "allocate", Qubit: id, Err: ErrCapacityExceeded})
	}
	s.metrics.RecordAlloc(time.Since(start))
	s.log.Debugf("allocate %d: %d local, %d global", id, len(s.locals), s.GlobalCount())
	return nil
}

func (s *Simulator) addLocal(id int64) {
	s.shard = append(s.shard, make([]complex128, len(s.shard))...)
	s.where[id] = position{index: len(s.locals)}
	s.locals = append(s.locals, id)
}

// AllocateQureg allocates ids and, if init is non-zero, sets every amplitude
// of the register to init. A non-zero init is only allowed when no other
// qubit is allocated; the caller is responsible for normalization.
func (s *Simulator) AllocateQureg(ids []int64, init complex128) error {
	if init != 0 && len(s.where) > 0 {
		return s.fail(fmt.Errorf("%w: initial amplitude only allowed for the first register", ErrInvalidQubitSet))
	}
	for _, id := range ids {
		if err := s.Allocate(id); err != nil {
			return err
		}
	}
	if init == 0 {
		return nil
	}

	var used uint64
	for i, id := range s.globals {
		if id != FreeSlot {
			used |= bitperm.Bit(uint(i))
		}
	}
	fill := complex128(0)
	if uint64(s.rank)&^used == 0 {
		fill = init
	}
	for i := range s.shard {
		s.shard[i] = fill
	}
	return nil
}

// ApplyGate applies m to targets, conditioned on every control being 1. Bit
// b of a matrix index is the value of targets[b].
//
// The gate is buffered and fused with neighbouring gates; Run applies it.
// Diagonal gates may target global qubits; other gates must target local
// qubits only.
func (s *Simulator) ApplyGate(m kernel.Matrix, targets, controls []int64) error {
	k, err := m.Qubits()
	if err != nil || k != len(targets) {
		return s.fail(fmt.Errorf("%w: %d targets for a %dx%d matrix", ErrInvalidQubitSet, len(targets), m.Dim(), m.Dim()))
	}
	if err := s.checkDistinct("apply", targets, controls); err != nil {
		return err
	}
	diag := m.IsDiagonal()

	var localTargets []int64
	var globalBits []uint // matrix bits held by global targets
	var globalSlots []uint
	for b, id := range targets {
		p := s.where[id]
		if !p.global {
			localTargets = append(localTargets, id)
			continue
		}
		if !diag {
			return s.fail(&QubitError{Op: "apply", Qubit: id, Err: ErrUnsupportedGlobalGate})
		}
		globalBits = append(globalBits, uint(b))
		globalSlots = append(globalSlots, uint(p.index))
	}
	if len(localTargets) > kernel.MaxQubits {
		return s.fail(fmt.Errorf("%w: %d local targets", ErrClusterTooLarge, len(localTargets)))
	}

	var localCtrls []int64
	var globalCtrl uint64
	for _, id := range controls {
		if p := s.where[id]; p.global {
			globalCtrl |= bitperm.Bit(uint(p.index))
		} else {
			localCtrls = append(localCtrls, id)
		}
	}

	if s.fused.Touched(localTargets, localCtrls) > s.cfg.ClusterSize {
		if err := s.flush(); err != nil {
			return err
		}
	}
	if uint64(s.rank)&globalCtrl != globalCtrl {
		return nil
	}

	sub := m
	if len(globalBits) > 0 {
		sub = restrict(m, globalBits, globalSlots, uint64(s.rank))
	}
	s.fused.Insert(sub, localTargets, localCtrls)
	return nil
}

// restrict keeps the rows and columns of m whose global-target bits match
// this rank's bits.
func restrict(m kernel.Matrix, bits, slots []uint, rank uint64) kernel.Matrix {
	var keep []int
	for i := 0; i < m.Dim(); i++ {
		match := true
		for j, b := range bits {
			if uint64(i)>>b&1 != rank>>slots[j]&1 {
				match = false
				break
			}
		}
		if match {
			keep = append(keep, i)
		}
	}
	sub := kernel.Zero(len(keep))
	for a, i := range keep {
		for c, j := range keep {
			sub[a][c] = m[i][j]
		}
	}
	return sub
}

// checkDistinct verifies every id is allocated and named once.
func (s *Simulator) checkDistinct(op string, lists ...[]int64) error {
	seen := make(map[int64]bool)
	for _, ids := range lists {
		for _, id := range ids {
			if _, ok := s.where[id]; !ok {
				return s.fail(&QubitError{Op: op, Qubit: id, Err: ErrUnknownQubit})
			}
			if seen[id] {
				return s.fail(&QubitError{Op: op, Qubit: id, Err: ErrInvalidQubitSet})
			}
			seen[id] = true
		}
	}
	return nil
}

// Run applies all buffered gates. With CheckNorm set it also verifies the
// total probability, which makes it collective.
func (s *Simulator) Run() error {
	if err := s.flush(); err != nil {
		return err
	}
	if s.cfg.CheckNorm {
		return s.CheckNorm()
	}
	return nil
}

// flush applies the fusion buffer to the local shard. It never communicates.
func (s *Simulator) flush() error {
	if s.fused.Empty() {
		s.fused.Reset()
		return nil
	}
	start := time.Now()
	f := s.fused.Fuse()
	gates := s.fused.Len()
	s.fused.Reset()

	if len(f.Qubits) > kernel.MaxQubits {
		return s.fail(fmt.Errorf("%w: %d qubits", ErrClusterTooLarge, len(f.Qubits)))
	}
	pos := make([]uint, len(f.Qubits))
	for i, id := range f.Qubits {
		pos[i] = uint(s.where[id].index)
	}
	var ctrl uint64
	for _, id := range f.Controls {
		ctrl |= bitperm.Bit(uint(s.where[id].index))
	}
	if err := kernel.Apply(s.shard, pos, f.Matrix, ctrl, f.Diagonal, s.cfg.kernelOptions()); err != nil {
		return fmt.Errorf("applying fused gate: %w", err)
	}
	s.metrics.RecordRun(gates, len(pos), time.Since(start))
	s.log.Debugf("run: %d gates on %v (controls %v, diagonal %t)", gates, f.Qubits, f.Controls, f.Diagonal)
	return nil
}

// Swap exchanges each pair's global and local qubit. It is collective.
func (s *Simulator) Swap(pairs []QubitPair) error {
	if err := s.flush(); err != nil {
		return err
	}
	seen := make(map[int64]bool, 2*len(pairs))
	for _, p := range pairs {
		for _, id := range []int64{p.Global, p.Local} {
			if seen[id] {
				return s.fail(&QubitError{Op: "swap", Qubit: id, Err: ErrDuplicateQubitInSwap})
			}
			seen[id] = true
		}
		g, gok := s.where[p.Global]
		l, lok := s.where[p.Local]
		if !gok || !lok {
			id := p.Global
			if gok {
				id = p.Local
			}
			return s.fail(&QubitError{Op: "swap", Qubit: id, Err: ErrUnknownQubit})
		}
		if !g.global || l.global {
			return s.fail(fmt.Errorf("%w: swap pair (%d, %d) is not (global, local)", ErrInvalidQubitSet, p.Global, p.Local))
		}
	}
	return s.swap(pairs)
}

func (s *Simulator) swap(pairs []QubitPair) error {
	if len(pairs) == 0 {
		return nil
	}
	s.metrics.EndStage()
	defer s.metrics.StartStage()

	start := time.Now()
	bits := make([]bitperm.Pair, len(pairs))
	for i, p := range pairs {
		bits[i] = bitperm.Pair{Global: uint(s.where[p.Global].index), Local: uint(s.where[p.Local].index)}
	}
	st, err := s.swapper.Swap(s.shard, bits)
	if err != nil {
		return s.fail(fmt.Errorf("swap %v: %w", bits, err))
	}
	for _, p := range pairs {
		g, l := s.where[p.Global], s.where[p.Local]
		s.globals[g.index] = p.Local
		s.locals[l.index] = p.Global
		s.where[p.Local] = position{global: true, index: g.index}
		s.where[p.Global] = position{index: l.index}
	}

	d := time.Since(start)
	s.metrics.RecordSwap(len(pairs), st.BytesMoved, d)
	if d > 0 {
		s.log.Debugf("swap %v: %v in %d batches, %.3f Gbit/s",
			bits, d, st.Batches, float64(st.BytesMoved)*8/d.Seconds()/1e9)
	}
	return nil
}

// Deallocate removes qubit id. The qubit must be in a computational basis
// state; otherwise ErrEntangledQubit is returned. It is collective.
func (s *Simulator) Deallocate(id int64) error {
	if err := s.flush(); err != nil {
		return err
	}
	p, ok := s.where[id]
	if !ok {
		return s.fail(&QubitError{Op: "deallocate", Qubit: id, Err: ErrUnknownQubit})
	}
	start := time.Now()
	minLocal := s.cfg.EffectiveMinLocal()

	var err error
	switch {
	case !p.global && (len(s.locals) > minLocal || s.GlobalCount() == 0):
		err = s.deallocLocal(id)
	case !p.global:
		other := s.GlobalQubits()[0]
		if err = s.swap([]QubitPair{{Global: other, Local: id}}); err == nil {
			err = s.deallocGlobal(id)
		}
	case len(s.locals) > minLocal:
		last := s.locals[len(s.locals)-1]
		if err = s.swap([]QubitPair{{Global: id, Local: last}}); err == nil {
			err = s.deallocLocal(id)
		}
	default:
		err = s.deallocGlobal(id)
	}
	if err != nil {
		return err
	}
	s.metrics.RecordDealloc(time.Since(start))
	s.log.Debugf("deallocate %d: %d local, %d global", id, len(s.locals), s.GlobalCount())
	if s.cfg.CheckNorm {
		return s.CheckNorm()
	}
	return nil
}

// branch returns which value the qubit holds given the global probabilities
// of it being 0 and 1.
func (s *Simulator) branch(id int64, sums []float64) (uint64, error) {
	zero, one := sums[0] > zeroTolerance, sums[1] > zeroTolerance
	if zero == one {
		return 0, s.fail(&QubitError{Op: "deallocate", Qubit: id, Err: ErrEntangledQubit})
	}
	if one {
		return 1, nil
	}
	return 0, nil
}

func (s *Simulator) deallocLocal(id int64) error {
	pos := uint(s.where[id].index)
	sums := make([]float64, 2)
	for i, a := range s.shard {
		sums[i>>pos&1] += norm(a)
	}
	sums = s.world.AllReduce(sums, comm.OpSum)
	v, err := s.branch(id, sums)
	if err != nil {
		return err
	}

	half := len(s.shard) / 2
	for j := 0; j < half; j++ {
		s.shard[j] = s.shard[bitperm.InsertBit(uint64(j), pos, v)]
	}
	s.shard = s.shard[:half:half]

	s.locals = append(s.locals[:pos], s.locals[pos+1:]...)
	delete(s.where, id)
	s.reindex()
	return nil
}

func (s *Simulator) deallocGlobal(id int64) error {
	slot := uint(s.where[id].index)
	sums := make([]float64, 2)
	var local float64
	for _, a := range s.shard {
		local += norm(a)
	}
	sums[uint64(s.rank)>>slot&1] = local
	sums = s.world.AllReduce(sums, comm.OpSum)
	v, err := s.branch(id, sums)
	if err != nil {
		return err
	}

	if v == 1 {
		// Bring the qubit local, flip it to |0>, and send it back.
		if len(s.locals) == 0 {
			return s.fail(&QubitError{Op: "deallocate", Qubit: id, Err: ErrEntangledQubit})
		}
		last := s.locals[len(s.locals)-1]
		if err := s.swap([]QubitPair{{Global: id, Local: last}}); err != nil {
			return err
		}
		s.fused.Insert(pauliX, []int64{id}, nil)
		if err := s.flush(); err != nil {
			return err
		}
		if err := s.swap([]QubitPair{{Global: last, Local: id}}); err != nil {
			return err
		}
	}

	s.globals[s.where[id].index] = FreeSlot
	delete(s.where, id)
	return nil
}

// Close applies pending gates and ends the current metrics stage.
func (s *Simulator) Close() error {
	err := s.flush()
	s.metrics.EndStage()
	return err
}

func norm(a complex128) float64 {
	return real(a)*real(a) + imag(a)*imag(a)
}
