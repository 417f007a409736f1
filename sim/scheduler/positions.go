package scheduler

import (
	"errors"
	"fmt"
	"sort"

	"github.com/statevec-sim/statevec-sim/sim/bitperm"
)

// MaxQubits is the largest number of distinct qubits a planner accepts.
const MaxQubits = bitperm.MaxPositions - 1

// ErrTooManyQubits is returned when a backlog names more than MaxQubits
// distinct qubits.
var ErrTooManyQubits = errors.New("scheduling with 64 or more qubits is not supported")

// Gate is one backlog entry as seen by the planners.
type Gate struct {
	Targets  []int64
	Controls []int64
	Diagonal bool
}

// positions maps qubit ids to compact bit positions in ascending id order.
type positions struct {
	ids   []int64
	index map[int64]uint
}

func newPositions(gates []Gate, extra ...[]int64) (positions, error) {
	var ids []int64
	for _, g := range gates {
		ids = append(ids, g.Targets...)
		ids = append(ids, g.Controls...)
	}
	for _, e := range extra {
		ids = append(ids, e...)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	uniq := ids[:0]
	for i, id := range ids {
		if i == 0 || id != ids[i-1] {
			uniq = append(uniq, id)
		}
	}
	if len(uniq) > MaxQubits {
		return positions{}, fmt.Errorf("%w: %d qubits", ErrTooManyQubits, len(uniq))
	}
	p := positions{ids: uniq, index: make(map[int64]uint, len(uniq))}
	for i, id := range uniq {
		p.index[id] = uint(i)
	}
	return p, nil
}

func (p positions) mask(ids []int64) uint64 {
	var m uint64
	for _, id := range ids {
		m |= bitperm.Bit(p.index[id])
	}
	return m
}

// idsOf returns the ids of the set bits of m in ascending order.
func (p positions) idsOf(m uint64) []int64 {
	var out []int64
	for _, pos := range bitperm.Positions(m) {
		out = append(out, p.ids[pos])
	}
	return out
}

// gateMask is a Gate compiled to masks.
type gateMask struct {
	targets  uint64
	controls uint64
	diagonal bool
	weight   int
}

func (g gateMask) all() uint64 {
	return g.targets | g.controls
}

func compile(gates []Gate, p positions) []gateMask {
	out := make([]gateMask, len(gates))
	for i, g := range gates {
		out[i] = gateMask{
			targets:  p.mask(g.Targets),
			controls: p.mask(g.Controls),
			diagonal: g.Diagonal,
			weight:   1,
		}
	}
	return out
}
