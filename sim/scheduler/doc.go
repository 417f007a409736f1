// Package scheduler decides how a backlog of gates is executed on a
// distributed state vector.
//
// Two planners work as a pair:
//
//   - SwapScheduler picks which qubits should be local for the next stage so
//     that as many gates as possible can run before the next global/local
//     swap. It is a bounded backtracking search; NumSplits caps how many
//     branches the search may open.
//   - ClusterScheduler picks the largest prefix-respecting subset of the
//     backlog whose local qubits fit in one fused cluster.
//
// Both planners work on bit masks over a compact numbering of the qubit ids
// that appear in the backlog, so at most 63 distinct qubits are supported.
// Search state lives in a per-call value, so a planner can be reused.
package scheduler
