package bitperm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertRemoveBit_RoundTrip(t *testing.T) {
	for idx := uint64(0); idx < 64; idx++ {
		for pos := uint(0); pos < 7; pos++ {
			for v := uint64(0); v < 2; v++ {
				ins := InsertBit(idx, pos, v)
				assert.Equal(t, v, ins>>pos&1)
				assert.Equal(t, idx, RemoveBit(ins, pos))
			}
		}
	}
}

func TestPositions_Ascending(t *testing.T) {
	assert.Equal(t, []uint{0, 3, 5}, Positions(0b101001))
	assert.Empty(t, Positions(0))
	assert.Equal(t, uint64(0b101001), MaskOf([]uint{5, 0, 3}))
}

func TestLog2(t *testing.T) {
	k, ok := Log2(8)
	assert.True(t, ok)
	assert.Equal(t, uint(3), k)
	_, ok = Log2(6)
	assert.False(t, ok)
	_, ok = Log2(0)
	assert.False(t, ok)
}

func TestColor_ClearsSwappedGlobals(t *testing.T) {
	pairs := []Pair{{Global: 0, Local: 2}, {Global: 2, Local: 1}}
	assert.Equal(t, uint64(0b1010), Color(0b1111, pairs))
	assert.Equal(t, uint64(0b11), SubRank(0b0101, pairs))
	assert.Equal(t, uint64(0b10), SubRank(0b0100, pairs))
}

func TestSwapTable_RejectsDuplicates(t *testing.T) {
	_, err := NewSwapTable([]Pair{{0, 1}, {0, 2}})
	assert.Error(t, err)
	_, err = NewSwapTable([]Pair{{0, 1}, {1, 1}})
	assert.Error(t, err)
}

// Every shard index must belong to exactly one (free index, peer) group.
func TestSwapTable_GroupsPartitionShard(t *testing.T) {
	pairs := []Pair{{Global: 1, Local: 3}, {Global: 0, Local: 1}}
	tbl, err := NewSwapTable(pairs)
	require.NoError(t, err)

	const localCount = 5
	seen := make(map[uint64]int)
	for f := uint64(0); f < tbl.Groups(localCount); f++ {
		base := tbl.Expand(f)
		assert.Zero(t, base&(Bit(3)|Bit(1)), "expanded base must have swapped bits clear")
		for c := uint64(0); c < 1<<tbl.Bits(); c++ {
			seen[base+tbl.Offset(c)]++
		}
	}
	assert.Len(t, seen, 1<<localCount)
	for idx, n := range seen {
		assert.Equal(t, 1, n, "index %d visited %d times", idx, n)
	}
}

// Peer c receives the amplitudes whose swapped local bits spell c in
// global-bit order.
func TestSwapTable_OffsetFollowsGlobalOrder(t *testing.T) {
	tbl, err := NewSwapTable([]Pair{{Global: 4, Local: 0}, {Global: 1, Local: 2}})
	require.NoError(t, err)
	// lowest global (1) pairs with local 2, next (4) with local 0
	assert.Equal(t, uint64(0), tbl.Offset(0))
	assert.Equal(t, Bit(2), tbl.Offset(1))
	assert.Equal(t, Bit(0), tbl.Offset(2))
	assert.Equal(t, Bit(2)|Bit(0), tbl.Offset(3))
}
