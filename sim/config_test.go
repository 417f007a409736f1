package sim

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseConfig_OverridesDefaults(t *testing.T) {
	cfg, err := ParseConfig([]byte("seed: 7\nmax_local: 12\ncluster_size: 3\ncheck_norm: true\n"))
	require.NoError(t, err)
	assert.Equal(t, int64(7), cfg.Seed)
	assert.Equal(t, 12, cfg.MaxLocal)
	assert.Equal(t, 3, cfg.ClusterSize)
	assert.True(t, cfg.CheckNorm)
	assert.Equal(t, DefaultConfig().NumSplits, cfg.NumSplits)
	assert.Equal(t, 3, cfg.EffectiveMinLocal())
}

func TestParseConfig_EmptyIsDefault(t *testing.T) {
	cfg, err := ParseConfig(nil)
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestParseConfig_RejectsUnknownField(t *testing.T) {
	_, err := ParseConfig([]byte("max_locals: 12\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "max_locals")
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"cluster too small", func(c *Config) { c.ClusterSize = 0 }, "cluster_size"},
		{"cluster too large", func(c *Config) { c.ClusterSize = 6 }, "cluster_size"},
		{"negative min_local", func(c *Config) { c.MinLocal = -1 }, "min_local"},
		{"max below min", func(c *Config) { c.MinLocal = 10; c.MaxLocal = 9 }, "max_local"},
		{"max over limit", func(c *Config) { c.MaxLocal = MaxLocalLimit + 1 }, "max_local"},
		{"negative splits", func(c *Config) { c.NumSplits = -1 }, "num_splits"},
		{"no swap buffers", func(c *Config) { c.SwapBuffers = 0 }, "swap_buffers"},
		{"odd buffer size", func(c *Config) { c.SwapBufferBytes = 1000 }, "swap_buffer_bytes"},
		{"tiny buffer", func(c *Config) { c.SwapBufferBytes = 8 }, "swap_buffer_bytes"},
		{"zero tolerance", func(c *Config) { c.NormTolerance = 0 }, "norm_tolerance"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(&cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
	assert.NoError(t, DefaultConfig().Validate())
}

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte("num_splits: 0\nmin_local: 2\nmax_local: 4\n"), 0o644))
	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 0, cfg.NumSplits)
	assert.Equal(t, 2, cfg.EffectiveMinLocal())

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
