// Package bitperm maps qubit positions to bit masks and computes the index
// layout used when local and global qubits trade places.
//
// It operates on plain bit positions and uint64 masks and has no
// dependencies on other sim packages.
package bitperm

import (
	"fmt"
	"math/bits"
	"sort"
)

// MaxPositions is the number of distinct bit positions a uint64 mask can hold.
const MaxPositions = 64

// Bit returns the single-bit mask for position pos.
func Bit(pos uint) uint64 {
	return uint64(1) << pos
}

// Has reports whether position pos is set in mask.
func Has(mask uint64, pos uint) bool {
	return mask>>pos&1 == 1
}

// Count returns the number of set positions in mask.
func Count(mask uint64) int {
	return bits.OnesCount64(mask)
}

// IsSubset reports whether every position of sub is also set in super.
func IsSubset(sub, super uint64) bool {
	return sub&^super == 0
}

// Positions returns the set positions of mask in ascending order.
func Positions(mask uint64) []uint {
	out := make([]uint, 0, Count(mask))
	for mask != 0 {
		p := uint(bits.TrailingZeros64(mask))
		out = append(out, p)
		mask &= mask - 1
	}
	return out
}

// MaskOf returns the mask with every position in positions set.
func MaskOf(positions []uint) uint64 {
	var m uint64
	for _, p := range positions {
		m |= Bit(p)
	}
	return m
}

// InsertBit inserts bit value v at position pos of idx, shifting the higher
// bits of idx up by one.
func InsertBit(idx uint64, pos uint, v uint64) uint64 {
	low := idx & (Bit(pos) - 1)
	return (idx-low)<<1 | v<<pos | low
}

// RemoveBit deletes position pos from idx, shifting the higher bits down.
func RemoveBit(idx uint64, pos uint) uint64 {
	low := idx & (Bit(pos) - 1)
	high := idx >> (pos + 1)
	return high<<pos | low
}

// Log2 returns k such that n == 1<<k. ok is false if n is not a power of two.
func Log2(n int) (k uint, ok bool) {
	if n <= 0 || n&(n-1) != 0 {
		return 0, false
	}
	return uint(bits.TrailingZeros64(uint64(n))), true
}

// Pair names one global bit (a bit of the process rank) and one local bit
// (a bit of the shard index) that trade places during a swap.
type Pair struct {
	Global uint
	Local  uint
}

func (p Pair) String() string {
	return fmt.Sprintf("g%d<->l%d", p.Global, p.Local)
}

// Color returns rank with every swapped global bit cleared. Processes that
// share a color exchange data with each other and with nobody else.
func Color(rank uint64, pairs []Pair) uint64 {
	c := rank
	for _, p := range pairs {
		c &^= Bit(p.Global)
	}
	return c
}

// SwapTable enumerates, for every "free" shard index, the group of 2^k
// sibling indices that move together during a k-pair swap.
//
// A free index is a shard index with all k swapped local bits removed.
// Expanding it (inserting zeros at the swapped local positions) gives the
// base of a group; adding Offset(c) for c in [0, 2^k) gives the index that is
// sent to, and received from, the peer whose sub-group rank is c.
//
// Peers are ordered by parent rank inside a sub-group, so bit j of a
// sub-group rank is the value of the j-th lowest swapped global bit.
type SwapTable struct {
	local []uint64 // swapped local bits as single-bit masks, ascending
	peer  []uint64 // peer[j]: local mask paired with the j-th lowest global bit
}

// NewSwapTable canonicalizes pairs into a SwapTable. It returns an error if a
// global or a local position is named twice.
func NewSwapTable(pairs []Pair) (SwapTable, error) {
	seenG := make(map[uint]bool, len(pairs))
	seenL := make(map[uint]bool, len(pairs))
	for _, p := range pairs {
		if p.Global >= MaxPositions || p.Local >= MaxPositions {
			return SwapTable{}, fmt.Errorf("swap pair %v: position out of range", p)
		}
		if seenG[p.Global] || seenL[p.Local] {
			return SwapTable{}, fmt.Errorf("swap pair %v: position named twice", p)
		}
		seenG[p.Global] = true
		seenL[p.Local] = true
	}

	byGlobal := make([]Pair, len(pairs))
	copy(byGlobal, pairs)
	sort.Slice(byGlobal, func(i, j int) bool { return byGlobal[i].Global < byGlobal[j].Global })

	t := SwapTable{
		local: make([]uint64, len(pairs)),
		peer:  make([]uint64, len(pairs)),
	}
	for j, p := range byGlobal {
		t.peer[j] = Bit(p.Local)
		t.local[j] = Bit(p.Local)
	}
	sort.Slice(t.local, func(i, j int) bool { return t.local[i] < t.local[j] })
	return t, nil
}

// Bits returns the number of swap pairs k.
func (t SwapTable) Bits() int {
	return len(t.local)
}

// Groups returns the number of free indices for a shard of 2^localCount
// amplitudes.
func (t SwapTable) Groups(localCount uint) uint64 {
	return uint64(1) << (localCount - uint(len(t.local)))
}

// Expand inserts a zero at every swapped local position of free.
func (t SwapTable) Expand(free uint64) uint64 {
	idx := free
	for _, b := range t.local {
		low := idx & (b - 1)
		idx = (idx-low)<<1 | low
	}
	return idx
}

// Offset returns the local-index offset selected by sub-group rank c.
func (t SwapTable) Offset(c uint64) uint64 {
	var off uint64
	for j, b := range t.peer {
		if c>>uint(j)&1 == 1 {
			off |= b
		}
	}
	return off
}

// SubRank returns the sub-group rank of a process given its full rank.
func SubRank(rank uint64, pairs []Pair) uint64 {
	byGlobal := make([]uint, len(pairs))
	for i, p := range pairs {
		byGlobal[i] = p.Global
	}
	sort.Slice(byGlobal, func(i, j int) bool { return byGlobal[i] < byGlobal[j] })
	var c uint64
	for j, g := range byGlobal {
		if Has(rank, g) {
			c |= Bit(uint(j))
		}
	}
	return c
}
