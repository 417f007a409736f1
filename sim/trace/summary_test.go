package trace

import (
	"testing"
)

func TestSummarize_NilTrace(t *testing.T) {
	s := Summarize(nil)
	if s.Clusters != 0 || s.MeanGatesPerCluster != 0 {
		t.Errorf("expected zero summary, got %+v", s)
	}
}

func TestSummarize_AggregatesStagesAndSwaps(t *testing.T) {
	// GIVEN three clusters in stage 0, one swap of two pairs, one cluster in stage 1
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelDecisions})
	st.RecordCluster(3, []int64{0, 1})
	st.RecordCluster(1, []int64{2})
	st.RecordCluster(2, []int64{0, 1, 2})
	st.RecordSwap(SwapRecord{Pairs: []SwapPair{{3, 0}, {4, 1}}})
	st.RecordCluster(2, []int64{3, 4})

	// WHEN summarized
	s := Summarize(st)

	// THEN the counts and means reflect all records
	if s.Stages != 2 || s.Swaps != 1 || s.SwappedQubits != 2 {
		t.Errorf("stages/swaps = %d/%d/%d, want 2/1/2", s.Stages, s.Swaps, s.SwappedQubits)
	}
	if s.Clusters != 4 || s.Gates != 8 {
		t.Errorf("clusters/gates = %d/%d, want 4/8", s.Clusters, s.Gates)
	}
	if s.MaxClusterQubits != 3 {
		t.Errorf("max cluster qubits = %d, want 3", s.MaxClusterQubits)
	}
	if s.MeanGatesPerCluster != 2 {
		t.Errorf("mean gates per cluster = %v, want 2", s.MeanGatesPerCluster)
	}
	if s.MeanClustersPerStage != 2 {
		t.Errorf("mean clusters per stage = %v, want 2", s.MeanClustersPerStage)
	}
}

func TestSummarize_EmptyStageNotCounted(t *testing.T) {
	st := NewSimulationTrace(TraceConfig{Level: TraceLevelDecisions})
	st.RecordSwap(SwapRecord{Pairs: []SwapPair{{1, 0}}})
	st.RecordCluster(1, []int64{1})
	if s := Summarize(st); s.Stages != 1 {
		t.Errorf("stages = %d, want 1", s.Stages)
	}
}
