// Package comm defines the collective operations the distributed simulator
// needs and an in-memory implementation where each rank is a goroutine.
//
// All operations are collective: every member of a communicator must call
// them in the same order. A transport failure is unrecoverable and panics,
// matching the abort-on-error behaviour of message-passing runtimes.
package comm

import (
	"fmt"
)

// Op selects the reduction applied by AllReduce.
type Op int

const (
	OpSum Op = iota
	OpMax
	OpMin
)

func (o Op) String() string {
	switch o {
	case OpSum:
		return "sum"
	case OpMax:
		return "max"
	case OpMin:
		return "min"
	default:
		return fmt.Sprintf("Op(%d)", int(o))
	}
}

// Communicator is a group of ranks that exchange data collectively.
type Communicator interface {
	// Rank is this member's index in [0, Size).
	Rank() int
	Size() int

	Barrier()

	// AllReduce combines vals elementwise across members.
	AllReduce(vals []float64, op Op) []float64

	// AllGather concatenates every member's vals in rank order.
	AllGather(vals []float64) []float64

	// AllToAll sends send[r*n:(r+1)*n] to member r and stores the block
	// received from member r in recv[r*n:(r+1)*n].
	AllToAll(send, recv []complex128, n int)

	BroadcastUint64(v uint64, root int) uint64
	BroadcastComplex(v complex128, root int) complex128

	// Split partitions the group by color. Members of a sub-group are
	// ordered by their rank in the parent.
	Split(color uint64) Communicator
}
