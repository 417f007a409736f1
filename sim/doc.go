// Package sim provides the per-rank state engine of a distributed
// state-vector simulator.
//
// # Reading Guide
//
// Start with these files to understand the engine:
//   - simulator.go: Simulator owns one shard of 2^L amplitudes, the qubit
//     placement (local bit positions and global rank-bit slots), allocation,
//     gate buffering and the global/local swap protocol
//   - measure.go: sampling from the distributed distribution, collapse and
//     read-only queries (probability, amplitude, entropy, norm)
//   - config.go: Config, its YAML loader and validation
//
// Every exported operation on a Simulator is collective: all ranks call it
// with the same arguments in the same order. An operation that fails on one
// rank fails on all of them, after a barrier.
//
// # Architecture
//
// Supporting pieces live in sub-packages:
//   - sim/bitperm/: bit masks and the swap index layout
//   - sim/kernel/: dense k-qubit gate application to a local shard
//   - sim/fusion/: merging consecutive gates into one matrix
//   - sim/comm/: collectives and the in-memory goroutine-per-rank world
//   - sim/swap/: the pipelined amplitude exchange between ranks
//   - sim/scheduler/: swap and cluster planners
//   - sim/engine/: the greedy planner driving a Simulator from a gate backlog
//   - sim/circuit/: gate library, YAML circuits and generators
//   - sim/cluster/: runs a circuit on every rank of an in-memory world
//   - sim/trace/: planning decision records
//
// # Key Interfaces
//
//   - comm.Communicator: barrier, reductions, broadcast, all-to-all exchange
//     and sub-group split
//   - MetricsSink: receives timings for runs, swaps, measurements and
//     allocations; the caller owns it
//   - engine.Backend: the subset of Simulator the planner needs, also
//     satisfied by the dry-run engine.Layout
package sim
