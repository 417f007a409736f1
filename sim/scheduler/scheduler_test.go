package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func nondiag(targets []int64, controls ...int64) Gate {
	return Gate{Targets: targets, Controls: controls}
}

func diag(targets []int64, controls ...int64) Gate {
	return Gate{Targets: targets, Controls: controls, Diagonal: true}
}

func TestNewPositions_RejectsTooManyQubits(t *testing.T) {
	var gates []Gate
	for i := int64(0); i < 64; i++ {
		gates = append(gates, nondiag([]int64{i * 3}))
	}
	_, err := NewSwapScheduler(gates, 4, 10, false)
	assert.ErrorIs(t, err, ErrTooManyQubits)
	_, err = NewClusterScheduler(gates[:63], nil, []int64{1000}, 3)
	assert.ErrorIs(t, err, ErrTooManyQubits)
}

func TestSwapScheduler_EmptyBacklog(t *testing.T) {
	s, err := NewSwapScheduler(nil, 8, 4, true)
	require.NoError(t, err)
	assert.Empty(t, s.Schedule().Locals)
}

// Diagonal gates never constrain the local set, so the plan names nothing.
func TestSwapScheduler_DiagonalOnlyBacklog(t *testing.T) {
	gates := []Gate{diag([]int64{0}), diag([]int64{1}, 0), diag([]int64{5, 6})}
	s, err := NewSwapScheduler(gates, 8, 2, false)
	require.NoError(t, err)
	plan := s.Schedule()
	assert.Empty(t, plan.Locals)
	assert.Equal(t, 3, plan.Expected)
}

func TestSwapScheduler_RespectsLocalBudget(t *testing.T) {
	gates := []Gate{
		nondiag([]int64{10}),
		nondiag([]int64{11}),
		nondiag([]int64{12}),
		nondiag([]int64{10, 11}),
	}
	s, err := NewSwapScheduler(gates, 16, 2, false)
	require.NoError(t, err)
	plan := s.Schedule()
	assert.Len(t, plan.Locals, 2)
	// {10, 11} lets gates 0, 1 and 3 run
	assert.Equal(t, []int64{10, 11}, plan.Locals)
	assert.Equal(t, 3, plan.Expected)
}

func TestSwapScheduler_ZeroSplitsIsGreedy(t *testing.T) {
	gates := []Gate{
		nondiag([]int64{1}),
		nondiag([]int64{2}),
		nondiag([]int64{3}),
		nondiag([]int64{2, 3}),
		nondiag([]int64{2, 3}),
	}
	s, err := NewSwapScheduler(gates, 0, 2, false)
	require.NoError(t, err)
	plan := s.Schedule()
	assert.Equal(t, []int64{1, 2}, plan.Locals)
	assert.Equal(t, 2, plan.Expected)
	assert.Zero(t, plan.SplitsUsed)

	s, err = NewSwapScheduler(gates, 64, 2, false)
	require.NoError(t, err)
	plan = s.Schedule()
	assert.Equal(t, []int64{2, 3}, plan.Locals)
	assert.Equal(t, 4, plan.Expected)
}

func TestSwapScheduler_FusesSingleQubitGates(t *testing.T) {
	gates := []Gate{
		nondiag([]int64{0}),
		nondiag([]int64{1}, 0),
		diag([]int64{1}),
		nondiag([]int64{7}),
	}
	s, err := NewSwapScheduler(gates, 8, 4, true)
	require.NoError(t, err)
	// gates 0 and 2 merge into gate 1, gate 3 has no partner
	assert.Equal(t, 2, s.Len())
	assert.Equal(t, uint64(0b011), s.gates[0].targets, "control became a target")
	assert.Zero(t, s.gates[0].controls)
	assert.Equal(t, 3, s.gates[0].weight)
	assert.Equal(t, 4, s.Schedule().Expected)
}

func TestSwapScheduler_ReusableAcrossCalls(t *testing.T) {
	s, err := NewSwapScheduler([]Gate{nondiag([]int64{4, 5})}, 4, 2, false)
	require.NoError(t, err)
	first := s.Schedule()
	assert.Equal(t, first, s.Schedule())
}

func TestClusterScheduler_DisjointPairs(t *testing.T) {
	gates := []Gate{nondiag([]int64{0, 1}), nondiag([]int64{2, 3})}
	c, err := NewClusterScheduler(gates, []int64{0, 1, 2, 3}, nil, 2)
	require.NoError(t, err)
	got := c.Schedule()
	assert.Len(t, got, 1)
}

func TestClusterScheduler_PoisonKeepsOrder(t *testing.T) {
	gates := []Gate{
		nondiag([]int64{0, 1}),
		nondiag([]int64{1, 2}), // does not fit with {0,1}; poisons 1 and 2
		nondiag([]int64{0}),
		nondiag([]int64{2}),
	}
	c, err := NewClusterScheduler(gates, []int64{0, 1, 2}, nil, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2}, c.Schedule())
}

func TestClusterScheduler_GlobalTargets(t *testing.T) {
	gates := []Gate{
		nondiag([]int64{9}), // global target: needs a swap
		diag([]int64{9}, 0), // poisoned by the gate above
		nondiag([]int64{1}),
	}
	c, err := NewClusterScheduler(gates, []int64{0, 1}, []int64{9}, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{2}, c.Schedule())

	c, err = NewClusterScheduler(gates[:1], []int64{0, 1}, []int64{9}, 2)
	require.NoError(t, err)
	assert.Empty(t, c.Schedule())
}

func TestClusterScheduler_HugeGate(t *testing.T) {
	gates := []Gate{nondiag([]int64{0, 1, 2})}
	c, err := NewClusterScheduler(gates, []int64{0, 1, 2, 3}, nil, 2)
	require.NoError(t, err)
	assert.Equal(t, []int{0}, c.Schedule())
}

func TestClusterScheduler_PrefersSmallerCluster(t *testing.T) {
	gates := []Gate{nondiag([]int64{3})}
	c, err := NewClusterScheduler(gates, []int64{0, 1, 2, 3}, nil, 3)
	require.NoError(t, err)
	st := &clusterSearch{c: c, visited: map[uint64]uint64{}, evaluated: map[uint64]bool{}}
	st.rec(c.locals&c.gates[0].all(), 1)
	assert.Equal(t, 1, st.best)
	assert.Equal(t, c.pos.mask([]int64{3}), st.bestCluster)
}
