package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/statevec-sim/statevec-sim/sim"
	"github.com/statevec-sim/statevec-sim/sim/circuit"
)

func TestLoadCircuit_Sources(t *testing.T) {
	_, err := loadCircuit("", "", 4, 4, 1)
	assert.ErrorContains(t, err, "required")
	_, err = loadCircuit("x.yaml", "ghz", 4, 4, 1)
	assert.ErrorContains(t, err, "mutually exclusive")

	a, err := loadCircuit("", "random", 6, 5, 7)
	require.NoError(t, err)
	b, err := loadCircuit("", "random", 6, 5, 7)
	require.NoError(t, err)
	assert.Equal(t, a, b, "same seed must generate the same circuit")

	path := filepath.Join(t.TempDir(), "c.yaml")
	require.NoError(t, os.WriteFile(path, []byte("qubits: 2\nops:\n  - gate: H\n    targets: [1]\n"), 0o644))
	c, err := loadCircuit(path, "", 0, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, c.GateCount())
}

func TestLoadEngineConfig_SeedOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cfg.yaml")
	require.NoError(t, os.WriteFile(path, []byte("seed: 5\ncluster_size: 4\n"), 0o644))

	cfg, err := loadEngineConfig(path, 42, false)
	require.NoError(t, err)
	assert.Equal(t, int64(5), cfg.Seed, "file seed wins when --seed is not given")
	assert.Equal(t, 4, cfg.ClusterSize)

	cfg, err = loadEngineConfig(path, 9, true)
	require.NoError(t, err)
	assert.Equal(t, int64(9), cfg.Seed)

	cfg, err = loadEngineConfig("", 3, false)
	require.NoError(t, err)
	assert.Equal(t, int64(3), cfg.Seed)
}

func TestPlanCircuit_PrintsStages(t *testing.T) {
	cfg := sim.DefaultConfig()
	cfg.ClusterSize = 2
	cfg.MaxLocal = 6

	var buf bytes.Buffer
	require.NoError(t, planCircuit(&buf, circuit.QFT(6), cfg, 4))
	out := buf.String()
	assert.Contains(t, out, "initial locals")
	assert.Contains(t, out, "stage 0")
	assert.Contains(t, out, "swap")
	assert.Contains(t, out, "Trace Summary")

	assert.Error(t, planCircuit(&buf, circuit.QFT(6), cfg, 3))
}

func TestWriteConfig_ParsesBack(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, writeConfig(&buf, sim.DefaultConfig()))
	cfg, err := sim.ParseConfig(buf.Bytes())
	require.NoError(t, err)
	assert.Equal(t, sim.DefaultConfig(), cfg)
}

func TestPrintAmplitudes_SkipsZeros(t *testing.T) {
	var buf bytes.Buffer
	printAmplitudes(&buf, []complex128{0.6, 0, 0, 0.8i})
	out := buf.String()
	assert.Contains(t, out, "|00>")
	assert.Contains(t, out, "|11>")
	assert.NotContains(t, out, "|01>")
}
