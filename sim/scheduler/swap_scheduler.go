package scheduler

import (
	"github.com/sirupsen/logrus"

	"github.com/statevec-sim/statevec-sim/sim/bitperm"
)

// SwapScheduler chooses the local qubit set for the next stage.
type SwapScheduler struct {
	numSplits int
	numLocals int
	pos       positions
	gates     []gateMask
}

// SwapPlan is the result of SwapScheduler.Schedule.
type SwapPlan struct {
	// Locals are the ids that should be local, ascending. Empty when no gate
	// can be taken.
	Locals []int64
	// Expected is the weighted number of gates the plan lets run.
	Expected int
	// SplitsUsed is how many search branches were opened.
	SplitsUsed int
}

// NewSwapScheduler compiles gates for planning with numLocals local qubits.
// With fuse set, single-qubit gates are merged into a neighbouring gate on
// the same qubit before the search.
func NewSwapScheduler(gates []Gate, numSplits, numLocals int, fuse bool) (*SwapScheduler, error) {
	pos, err := newPositions(gates)
	if err != nil {
		return nil, err
	}
	s := &SwapScheduler{
		numSplits: numSplits,
		numLocals: numLocals,
		pos:       pos,
		gates:     compile(gates, pos),
	}
	if fuse {
		s.fuseSingleQubitGates()
	}
	return s, nil
}

// Len returns the number of gates after fusion.
func (s *SwapScheduler) Len() int {
	return len(s.gates)
}

// Schedule runs the search.
func (s *SwapScheduler) Schedule() SwapPlan {
	if len(s.gates) == 0 {
		logrus.Debug("swap scheduler: empty backlog")
		return SwapPlan{}
	}
	total := 0
	for _, g := range s.gates {
		total += g.weight
	}

	st := &swapSearch{s: s}
	left := st.rec(0, 0, 0, 0, s.numSplits)
	plan := SwapPlan{
		Locals:     s.pos.idsOf(st.bestLocals),
		Expected:   st.best,
		SplitsUsed: s.numSplits - left,
	}
	logrus.Debugf("swap scheduler: %d gates (%d before fusion), expect %d, used %d/%d splits",
		len(s.gates), total, plan.Expected, plan.SplitsUsed, s.numSplits)
	return plan
}

func (s *SwapScheduler) canTake(g gateMask, locals, bad uint64) bool {
	if g.all()&bad != 0 {
		return false
	}
	if g.diagonal {
		return true
	}
	return bitperm.Count(g.targets|locals) <= s.numLocals
}

func (s *SwapScheduler) fuseSingleQubitGates() {
	for i := len(s.gates) - 1; i >= 0; i-- {
		g := s.gates[i]
		if bitperm.Count(g.all()) != 1 {
			continue
		}
		var fused bool
		if g.diagonal {
			fused = s.fuseInto(i, s.prevSharing(i)) || s.fuseInto(i, s.nextSharing(i))
		} else {
			fused = s.fuseInto(i, s.nextSharing(i)) || s.fuseInto(i, s.prevSharing(i))
		}
		if fused {
			s.gates = append(s.gates[:i], s.gates[i+1:]...)
		}
	}
}

func (s *SwapScheduler) prevSharing(i int) int {
	for j := i - 1; j >= 0; j-- {
		if s.gates[i].targets&s.gates[j].all() != 0 {
			return j
		}
	}
	return -1
}

func (s *SwapScheduler) nextSharing(i int) int {
	for j := i + 1; j < len(s.gates); j++ {
		if s.gates[i].targets&s.gates[j].all() != 0 {
			return j
		}
	}
	return -1
}

// fuseInto merges single-qubit gate i into gate j. The caller removes i.
func (s *SwapScheduler) fuseInto(i, j int) bool {
	if j < 0 {
		return false
	}
	src, dst := s.gates[i], &s.gates[j]
	dst.weight += src.weight
	if !src.diagonal {
		dst.diagonal = false
	}
	if dst.controls&src.targets != 0 {
		dst.controls &^= src.targets
		dst.targets |= src.targets
	}
	return true
}

// swapSearch is the state of one Schedule call.
type swapSearch struct {
	s          *SwapScheduler
	best       int
	bestLocals uint64
}

// rec explores gate pos onward and returns the unused split budget.
func (st *swapSearch) rec(pos int, locals, bad uint64, ans, splits int) int {
	if ans > st.best {
		st.best = ans
		st.bestLocals = locals
	}
	if pos == len(st.s.gates) {
		return splits
	}

	g := st.s.gates[pos]
	canSkip := true
	branches := 1
	canTake := st.s.canTake(g, locals, bad)
	if canTake {
		if g.diagonal {
			canSkip = false
		} else {
			if bitperm.IsSubset(g.targets, locals) {
				canSkip = false
				branches--
			}
			branches++
		}
	}

	// Out of budget: taking is preferred over skipping.
	if splits == 0 && canTake && canSkip {
		canSkip = false
		branches--
	}
	splits -= branches - 1

	if canSkip {
		give := splits / branches
		splits += st.rec(pos+1, locals, bad|g.all(), ans, give) - give
	}
	if canTake {
		next := locals
		if !g.diagonal {
			next |= g.targets
		}
		splits = st.rec(pos+1, next, bad, ans+g.weight, splits)
	}
	return splits
}
