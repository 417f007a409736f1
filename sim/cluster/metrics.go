package cluster

import (
	"fmt"
	"sort"

	"github.com/statevec-sim/statevec-sim/sim"
)

// aggregateMetrics merges per-rank metrics. Every rank performs the same
// operations, so counts come from rank 0; bytes add up across ranks and
// durations take the slowest rank.
func aggregateMetrics(perRank []*sim.StageMetrics) *sim.StageMetrics {
	merged := *perRank[0]
	merged.Stages = append([]sim.StageStats(nil), perRank[0].Stages...)
	for _, m := range perRank[1:] {
		merged.SwapBytes += m.SwapBytes
		merged.RunTime = max(merged.RunTime, m.RunTime)
		merged.SwapTime = max(merged.SwapTime, m.SwapTime)
		merged.MeasureTime = max(merged.MeasureTime, m.MeasureTime)
		merged.AllocTime = max(merged.AllocTime, m.AllocTime)
	}
	return &merged
}

// PrintCounts displays the outcome histogram, most frequent first.
func (r *Results) PrintCounts() {
	keys := make([]string, 0, len(r.Counts))
	for k := range r.Counts {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if r.Counts[keys[i]] != r.Counts[keys[j]] {
			return r.Counts[keys[i]] > r.Counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	fmt.Println("=== Measurement Counts ===")
	fmt.Printf("Run ID               : %s\n", r.RunID)
	fmt.Printf("Shots                : %d\n", len(r.Shots))
	fmt.Printf("Wall Time            : %v\n", r.WallTime)
	for _, k := range keys {
		label := k
		if label == "" {
			label = "(none)"
		}
		fmt.Printf("%-20s : %d\n", label, r.Counts[k])
	}
}
