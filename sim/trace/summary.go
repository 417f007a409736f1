package trace

// TraceSummary aggregates statistics from a SimulationTrace.
type TraceSummary struct {
	Stages               int // stages that ran at least one cluster
	Swaps                int
	SwappedQubits        int // total pairs over all swaps
	Clusters             int
	Gates                int
	MaxClusterQubits     int
	MeanGatesPerCluster  float64
	MeanClustersPerStage float64
}

// Summarize computes aggregate statistics from a SimulationTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(st *SimulationTrace) *TraceSummary {
	summary := &TraceSummary{}
	if st == nil {
		return summary
	}

	for _, s := range st.Stages {
		if s.Clusters > 0 {
			summary.Stages++
		}
	}
	summary.Swaps = len(st.Swaps)
	for _, s := range st.Swaps {
		summary.SwappedQubits += len(s.Pairs)
	}
	summary.Clusters = len(st.Clusters)
	for _, c := range st.Clusters {
		summary.Gates += c.Gates
		summary.MaxClusterQubits = max(summary.MaxClusterQubits, len(c.Qubits))
	}
	if summary.Clusters > 0 {
		summary.MeanGatesPerCluster = float64(summary.Gates) / float64(summary.Clusters)
	}
	if summary.Stages > 0 {
		summary.MeanClustersPerStage = float64(summary.Clusters) / float64(summary.Stages)
	}
	return summary
}
