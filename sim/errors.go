package sim

import (
	"errors"
	"fmt"
)

var (
	// ErrCapacityExceeded: no local or global position is left for a new qubit.
	ErrCapacityExceeded = errors.New("qubit capacity exceeded")
	// ErrEntangledQubit: a deallocated qubit is not in a computational basis state.
	ErrEntangledQubit = errors.New("qubit is entangled or in superposition")
	// ErrUnsupportedGlobalGate: a non-diagonal gate targets a global qubit.
	ErrUnsupportedGlobalGate = errors.New("non-diagonal gate on a global qubit")
	// ErrClusterTooLarge: a fused gate is wider than the kernels support.
	ErrClusterTooLarge = errors.New("fused gate acts on too many qubits")
	// ErrDuplicateQubitInSwap: a swap request names a qubit twice.
	ErrDuplicateQubitInSwap = errors.New("qubit named twice in swap")
	// ErrZeroProbabilityCollapse: the requested outcome has probability ~0.
	ErrZeroProbabilityCollapse = errors.New("collapse to a zero-probability outcome")
	// ErrInvalidAmplitudeQuery: bit values and qubit ids do not line up.
	ErrInvalidAmplitudeQuery = errors.New("invalid amplitude or probability query")
	// ErrNormalizationFault: total probability drifted away from 1.
	ErrNormalizationFault = errors.New("state vector is not normalized")

	ErrUnknownQubit          = errors.New("unknown qubit")
	ErrQubitAlreadyAllocated = errors.New("qubit already allocated")
	// ErrInvalidQubitSet: an operation was given an id list it cannot accept,
	// such as overlapping targets and controls or a bad permutation.
	ErrInvalidQubitSet = errors.New("invalid qubit set")
)

// QubitError attaches the operation and qubit to one of the sentinel errors.
type QubitError struct {
	Op    string
	Qubit int64
	Err   error
}

func (e *QubitError) Error() string {
	return fmt.Sprintf("%s qubit %d: %v", e.Op, e.Qubit, e.Err)
}

func (e *QubitError) Unwrap() error {
	return e.Err
}
