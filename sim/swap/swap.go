// Package swap exchanges amplitudes between ranks so that a set of global
// qubits and local qubits trade places.
//
// For k swapped pairs a rank talks to the 2^k ranks that differ from it only
// in the swapped global bits. The shard is streamed through a small pool of
// fixed-size buffers: a producer gathers outgoing amplitudes, the calling
// goroutine performs the all-to-all exchange, and a consumer scatters what
// arrived back into the shard. The three stages overlap.
package swap

import (
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/statevec-sim/statevec-sim/sim/bitperm"
	"github.com/statevec-sim/statevec-sim/sim/comm"
)

const (
	// DefaultBufferBytes bounds the payload of one exchange batch.
	DefaultBufferBytes = 1 << 22
	// DefaultBuffers is the number of batches in flight.
	DefaultBuffers = 4

	amplitudeBytes = 16
)

// Options sizes the exchange pipeline.
type Options struct {
	BufferBytes int
	Buffers     int
}

func (o Options) withDefaults() Options {
	if o.BufferBytes <= 0 {
		o.BufferBytes = DefaultBufferBytes
	}
	if o.Buffers <= 0 {
		o.Buffers = DefaultBuffers
	}
	return o
}

// Stats describes one completed swap.
type Stats struct {
	Pairs     int
	Batches   int
	BatchSize int
	// BytesMoved counts amplitudes that left this rank.
	BytesMoved int64
}

// Executor runs swaps over a world communicator.
type Executor struct {
	world comm.Communicator
	opts  Options
}

// NewExecutor returns an executor bound to world.
func NewExecutor(world comm.Communicator, opts Options) *Executor {
	return &Executor{world: world, opts: opts.withDefaults()}
}

type batch struct {
	send []complex128
	recv []complex128
	idx  []uint64
	size int // free indices in this batch
}

// Swap exchanges the amplitudes of shard so that each pair's global and local
// bit trade roles. Every rank must call Swap with the same pairs.
func (e *Executor) Swap(shard []complex128, pairs []bitperm.Pair) (Stats, error) {
	k := len(pairs)
	if k == 0 {
		return Stats{}, nil
	}
	localCount, ok := bitperm.Log2(len(shard))
	if !ok {
		return Stats{}, fmt.Errorf("shard length %d is not a power of two", len(shard))
	}
	if uint(k) > localCount {
		return Stats{}, fmt.Errorf("%d swap pairs exceed %d local qubits", k, localCount)
	}
	for _, p := range pairs {
		if p.Local >= localCount {
			return Stats{}, fmt.Errorf("swap pair %v: local bit outside shard", p)
		}
		if bitperm.Bit(p.Global) >= uint64(e.world.Size()) {
			return Stats{}, fmt.Errorf("swap pair %v: global bit outside world of %d", p, e.world.Size())
		}
	}
	table, err := bitperm.NewSwapTable(pairs)
	if err != nil {
		return Stats{}, err
	}

	rank := uint64(e.world.Rank())
	sub := e.world.Split(bitperm.Color(rank, pairs))
	peers := 1 << k
	if sub.Size() != peers {
		return Stats{}, fmt.Errorf("swap sub-group has %d members, want %d", sub.Size(), peers)
	}
	self := sub.Rank()

	groups := table.Groups(localCount)
	n := batchSize(groups, peers, e.opts.BufferBytes)

	free := make(chan *batch, e.opts.Buffers)
	ready := make(chan *batch, e.opts.Buffers)
	done := make(chan *batch, e.opts.Buffers)
	for i := 0; i < e.opts.Buffers; i++ {
		free <- &batch{
			send: make([]complex128, n*peers),
			recv: make([]complex128, n*peers),
			idx:  make([]uint64, n*peers),
		}
	}

	var eg errgroup.Group
	eg.Go(func() error {
		for start := uint64(0); start < groups; start += uint64(n) {
			b := <-free
			b.size = n
			for f := 0; f < n; f++ {
				base := table.Expand(start + uint64(f))
				for c := 0; c < peers; c++ {
					at := c*n + f
					i := base + table.Offset(uint64(c))
					b.idx[at] = i
					b.send[at] = shard[i]
				}
			}
			ready <- b
		}
		ready <- nil
		return nil
	})
	eg.Go(func() error {
		for b := range done {
			if b == nil {
				return nil
			}
			for c := 0; c < peers; c++ {
				if c == self {
					continue
				}
				for f := 0; f < b.size; f++ {
					at := c*n + f
					shard[b.idx[at]] = b.recv[at]
				}
			}
			free <- b
		}
		return nil
	})

	st := Stats{Pairs: k, BatchSize: n}
	for b := range ready {
		if b == nil {
			break
		}
		sub.AllToAll(b.send, b.recv, n)
		st.Batches++
		done <- b
	}
	done <- nil
	if err := eg.Wait(); err != nil {
		return st, err
	}
	st.BytesMoved = int64(groups) * int64(peers-1) * amplitudeBytes
	return st, nil
}

// batchSize picks the number of free indices per batch: a power of two no
// larger than groups whose payload fits in bufferBytes.
func batchSize(groups uint64, peers, bufferBytes int) int {
	limit := bufferBytes / amplitudeBytes / peers
	n := 1
	for uint64(n*2) <= groups && n*2 <= limit {
		n *= 2
	}
	return n
}
