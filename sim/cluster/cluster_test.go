package cluster

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/statevec-sim/statevec-sim/sim"
	"github.com/statevec-sim/statevec-sim/sim/circuit"
	"github.com/statevec-sim/statevec-sim/sim/internal/testutil"
	"github.com/statevec-sim/statevec-sim/sim/trace"
)

func testDeployment(ranks, shots int) DeploymentConfig {
	cfg := sim.DefaultConfig()
	cfg.ClusterSize = 3
	cfg.MaxLocal = 10
	cfg.CheckNorm = true
	cfg.ParallelThreshold = -1
	return DeploymentConfig{Ranks: ranks, Shots: shots, Engine: cfg, TraceLevel: trace.TraceLevelDecisions}
}

func TestNewClusterSimulator_Panics(t *testing.T) {
	assert.Panics(t, func() { NewClusterSimulator(testDeployment(3, 1), circuit.GHZ(3)) })
	assert.Panics(t, func() { NewClusterSimulator(testDeployment(2, 0), circuit.GHZ(3)) })
	assert.Panics(t, func() { NewClusterSimulator(testDeployment(2, 1), nil) })
}

func TestClusterSimulator_GHZShotsAgree(t *testing.T) {
	c := circuit.GHZ(6)
	c.MeasureAll()
	cs := NewClusterSimulator(testDeployment(4, 8), c)
	require.NoError(t, cs.Run(context.Background()))

	res := cs.Results()
	assert.Equal(t, cs.RunID(), res.RunID)
	require.Len(t, res.Shots, 8)
	total := 0
	for k, n := range res.Counts {
		assert.Contains(t, []string{"000000", "111111"}, k)
		total += n
	}
	assert.Equal(t, 8, total)
	assert.Nil(t, res.State)

	m := cs.AggregatedMetrics()
	assert.Equal(t, 8, m.Measures)
	var bytes int64
	for _, rm := range cs.RankMetrics() {
		bytes += rm.SwapBytes
	}
	assert.Equal(t, bytes, m.SwapBytes)
}

func TestClusterSimulator_GatherStateMatchesReference(t *testing.T) {
	c := circuit.Random(7, 6, rand.New(rand.NewSource(9)))
	dep := testDeployment(8, 1)
	dep.GatherState = true
	cs := NewClusterSimulator(dep, c)
	require.NoError(t, cs.Run(context.Background()))

	ref := testutil.NewReference(c.Qubits)
	for _, op := range c.Ops {
		m, err := op.Matrix()
		require.NoError(t, err)
		targets := make([]int, len(op.Targets))
		for i, q := range op.Targets {
			targets[i] = int(q)
		}
		controls := make([]int, len(op.Controls))
		for i, q := range op.Controls {
			controls[i] = int(q)
		}
		ref.Apply(m, targets, controls)
	}
	testutil.AssertStatesClose(t, ref.Amplitudes(), cs.Results().State, 1e-10)
}

func TestClusterSimulator_Deterministic(t *testing.T) {
	run := func() [][]bool {
		c := circuit.QFT(5)
		c.Ops = append([]circuit.Op{{Gate: "H", Targets: []int64{2}}, {Gate: "RY", Targets: []int64{4}, Params: []float64{1.1}}}, c.Ops...)
		c.MeasureAll()
		cs := NewClusterSimulator(testDeployment(2, 6), c)
		require.NoError(t, cs.Run(context.Background()))
		return cs.Results().Shots
	}
	assert.Equal(t, run(), run())
}

func TestClusterSimulator_Evaluation(t *testing.T) {
	c := circuit.QFT(6)
	cs := NewClusterSimulator(testDeployment(4, 1), c)
	assert.Panics(t, func() { cs.Results() })
	require.NoError(t, cs.Run(context.Background()))
	assert.Panics(t, func() { _ = cs.Run(context.Background()) })

	ev := cs.Evaluation()
	require.NotNil(t, ev.Summary)
	assert.Equal(t, c.GateCount(), ev.Summary.Gates)
	assert.Positive(t, ev.Summary.Swaps)
	assert.Equal(t, ev.Metrics.Swaps, ev.Summary.Swaps)

	dep := testDeployment(4, 1)
	dep.TraceLevel = trace.TraceLevelNone
	cs = NewClusterSimulator(dep, c)
	require.NoError(t, cs.Run(context.Background()))
	assert.Nil(t, cs.Evaluation().Summary)
}

func TestClusterSimulator_CanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cs := NewClusterSimulator(testDeployment(2, 1), circuit.GHZ(3))
	assert.ErrorIs(t, cs.Run(ctx), context.Canceled)
}

func TestAssembleState(t *testing.T) {
	views := []ShardView{
		{Rank: 0, Amps: []complex128{1, 0}, Locals: []int64{1}, Globals: []int64{0, sim.FreeSlot}},
		{Rank: 1, Amps: []complex128{0, 0}, Locals: []int64{1}, Globals: []int64{0, sim.FreeSlot}},
		{Rank: 2, Amps: []complex128{0, 0}, Locals: []int64{1}, Globals: []int64{0, sim.FreeSlot}},
		{Rank: 3, Amps: []complex128{0, 0}, Locals: []int64{1}, Globals: []int64{0, sim.FreeSlot}},
	}
	got, err := AssembleState(views, 2)
	require.NoError(t, err)
	assert.Equal(t, []complex128{1, 0, 0, 0}, got)

	views[3].Amps[1] = 0.5
	_, err = AssembleState(views, 2)
	assert.ErrorContains(t, err, "unused slot")

	_, err = AssembleState(views, MaxGatherQubits+1)
	assert.Error(t, err)
}
