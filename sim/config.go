package sim

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/statevec-sim/statevec-sim/sim/bitperm"
	"github.com/statevec-sim/statevec-sim/sim/kernel"
	"github.com/statevec-sim/statevec-sim/sim/swap"
)

// MaxLocalLimit caps max_local so a shard index fits comfortably in memory
// arithmetic.
const MaxLocalLimit = 40

// Config holds the engine settings shared by every rank. It is loadable from
// YAML; unset fields take their DefaultConfig values.
type Config struct {
	Seed int64 `yaml:"seed"` // measurement RNG seed; rank 0's value wins

	MaxLocal    int `yaml:"max_local"`    // upper bound on local qubits per rank
	MinLocal    int `yaml:"min_local"`    // local qubits filled before any global slot; 0 means ClusterSize
	ClusterSize int `yaml:"cluster_size"` // max qubits in one fused gate (1..5)

	NumSplits int `yaml:"num_splits"` // swap scheduler branch budget

	SwapBufferBytes int `yaml:"swap_buffer_bytes"` // payload of one swap batch
	SwapBuffers     int `yaml:"swap_buffers"`      // swap batches in flight

	CheckNorm     bool    `yaml:"check_norm"`     // verify total probability after collective ops
	NormTolerance float64 `yaml:"norm_tolerance"` // allowed |norm - 1|

	ParallelThreshold int `yaml:"parallel_threshold"` // shard length at which kernels fan out; <0 disables
}

// DefaultConfig returns the settings used when no config file is given.
func DefaultConfig() Config {
	return Config{
		Seed:              42,
		MaxLocal:          24,
		ClusterSize:       kernel.MaxQubits,
		NumSplits:         64,
		SwapBufferBytes:   swap.DefaultBufferBytes,
		SwapBuffers:       swap.DefaultBuffers,
		NormTolerance:     1e-8,
		ParallelThreshold: kernel.DefaultParallelThreshold,
	}
}

// LoadConfig reads a YAML config on top of DefaultConfig. Unknown keys are
// rejected so typos surface as errors.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("reading config: %w", err)
	}
	return ParseConfig(data)
}

// ParseConfig decodes YAML bytes on top of DefaultConfig.
func ParseConfig(data []byte) (Config, error) {
	cfg := DefaultConfig()
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	return cfg, cfg.Validate()
}

// EffectiveMinLocal resolves the MinLocal default.
func (c Config) EffectiveMinLocal() int {
	if c.MinLocal == 0 {
		return c.ClusterSize
	}
	return c.MinLocal
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if c.ClusterSize < 1 || c.ClusterSize > kernel.MaxQubits {
		return fmt.Errorf("cluster_size must be in [1, %d], got %d", kernel.MaxQubits, c.ClusterSize)
	}
	if c.MinLocal < 0 {
		return fmt.Errorf("min_local must be non-negative, got %d", c.MinLocal)
	}
	if c.MaxLocal < c.EffectiveMinLocal() {
		return fmt.Errorf("max_local (%d) must be >= min_local (%d)", c.MaxLocal, c.EffectiveMinLocal())
	}
	if c.MaxLocal > MaxLocalLimit {
		return fmt.Errorf("max_local must be <= %d, got %d", MaxLocalLimit, c.MaxLocal)
	}
	if c.NumSplits < 0 {
		return fmt.Errorf("num_splits must be non-negative, got %d", c.NumSplits)
	}
	if c.SwapBuffers < 1 {
		return fmt.Errorf("swap_buffers must be >= 1, got %d", c.SwapBuffers)
	}
	if _, ok := bitperm.Log2(c.SwapBufferBytes); !ok || c.SwapBufferBytes < 16 {
		return fmt.Errorf("swap_buffer_bytes must be a power of two >= 16, got %d", c.SwapBufferBytes)
	}
	if c.NormTolerance <= 0 {
		return fmt.Errorf("norm_tolerance must be positive, got %g", c.NormTolerance)
	}
	return nil
}

func (c Config) kernelOptions() kernel.Options {
	return kernel.Options{ParallelThreshold: c.ParallelThreshold}
}

func (c Config) swapOptions() swap.Options {
	return swap.Options{BufferBytes: c.SwapBufferBytes, Buffers: c.SwapBuffers}
}
