package cluster

import (
	"fmt"

	"github.com/statevec-sim/statevec-sim/sim"
	"github.com/statevec-sim/statevec-sim/sim/bitperm"
	"github.com/statevec-sim/statevec-sim/sim/trace"
)

// MaxGatherQubits bounds the state vector a run may assemble in one process.
const MaxGatherQubits = 26

// DeploymentConfig describes a multi-rank run. Ranks must be a power of two.
type DeploymentConfig struct {
	Ranks  int
	Shots  int // independent executions; shot i uses seed Engine.Seed+i
	Engine sim.Config

	DropTrailingCZ bool             // drop Z/CZ gates that cannot affect later measurements
	TraceLevel     trace.TraceLevel // decisions are traced for the first shot on rank 0
	GatherState    bool             // assemble the final state vector of the last shot
}

// Validate checks the deployment and the engine config.
func (d DeploymentConfig) Validate() error {
	if _, ok := bitperm.Log2(d.Ranks); !ok {
		return fmt.Errorf("ranks must be a power of two, got %d", d.Ranks)
	}
	if d.Shots < 1 {
		return fmt.Errorf("shots must be >= 1, got %d", d.Shots)
	}
	if !trace.IsValidTraceLevel(string(d.TraceLevel)) {
		return fmt.Errorf("unknown trace level %q; valid: none, decisions", d.TraceLevel)
	}
	if err := d.Engine.Validate(); err != nil {
		return fmt.Errorf("engine config: %w", err)
	}
	return nil
}
