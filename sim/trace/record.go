// Package trace records the planning decisions of a run: which gates were
// fused into each cluster and which qubits each swap exchanged.
// It stores pure data and has no dependencies on the rest of the module.
package trace

// SwapPair is one exchanged (global, local) qubit pair.
type SwapPair struct {
	Global int64
	Local  int64
}

// SwapRecord captures one swap decision.
type SwapRecord struct {
	Stage    int        // stage the swap closes
	Pairs    []SwapPair // pairs exchanged, in issue order
	Locals   []int64    // local qubits recommended by the swap scheduler
	Expected int        // gates the scheduler expected to become executable
}

// ClusterRecord captures one fused cluster handed to the state engine.
type ClusterRecord struct {
	Stage  int
	Gates  int     // gates fused into the cluster
	Qubits []int64 // union of their targets and controls
}

// StageRecord summarizes the clusters run between two swaps.
type StageRecord struct {
	Index    int
	Clusters int
	Gates    int
}
