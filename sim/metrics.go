// Collects engine performance counters: fused-gate runs, swaps, measurements
// and allocations, in total and per execution stage.

package sim

import (
	"fmt"
	"time"
)

// MetricsSink receives timing events from a Simulator. The caller creates
// and owns the sink; the simulator only writes to it.
type MetricsSink interface {
	RecordRun(gates, qubits int, d time.Duration)
	RecordSwap(pairs int, bytes int64, d time.Duration)
	RecordMeasure(d time.Duration)
	RecordAlloc(d time.Duration)
	RecordDealloc(d time.Duration)
	// StartStage and EndStage bracket the work done between two swaps.
	StartStage()
	EndStage()
}

// NoopMetrics discards everything.
type NoopMetrics struct{}

func (NoopMetrics) RecordRun(int, int, time.Duration)    {}
func (NoopMetrics) RecordSwap(int, int64, time.Duration) {}
func (NoopMetrics) RecordMeasure(time.Duration)          {}
func (NoopMetrics) RecordAlloc(time.Duration)            {}
func (NoopMetrics) RecordDealloc(time.Duration)          {}
func (NoopMetrics) StartStage()                          {}
func (NoopMetrics) EndStage()                            {}

// StageStats counts the work of one stage.
type StageStats struct {
	Runs     int
	Gates    int
	Duration time.Duration
}

// StageMetrics aggregates engine statistics for final reporting.
// One instance per rank; not safe for concurrent use.
type StageMetrics struct {
	Runs        int           // fused-gate applications
	FusedGates  int           // gates folded into those applications
	MaxQubits   int           // widest fused gate
	RunTime     time.Duration // time spent in kernels
	Swaps       int
	SwapPairs   int
	SwapBytes   int64 // bytes sent to other ranks
	SwapTime    time.Duration
	Measures    int
	MeasureTime time.Duration
	Allocs      int
	Deallocs    int
	AllocTime   time.Duration // allocations and deallocations

	Stages     []StageStats
	stageStart time.Time
	inStage    bool
}

// NewStageMetrics returns an empty collector.
func NewStageMetrics() *StageMetrics {
	return &StageMetrics{}
}

func (m *StageMetrics) RecordRun(gates, qubits int, d time.Duration) {
	m.Runs++
	m.FusedGates += gates
	m.MaxQubits = max(m.MaxQubits, qubits)
	m.RunTime += d
	if m.inStage {
		cur := &m.Stages[len(m.Stages)-1]
		cur.Runs++
		cur.Gates += gates
	}
}

func (m *StageMetrics) RecordSwap(pairs int, bytes int64, d time.Duration) {
	m.Swaps++
	m.SwapPairs += pairs
	m.SwapBytes += bytes
	m.SwapTime += d
}

func (m *StageMetrics) RecordMeasure(d time.Duration) {
	m.Measures++
	m.MeasureTime += d
}

func (m *StageMetrics) RecordAlloc(d time.Duration) {
	m.Allocs++
	m.AllocTime += d
}

func (m *StageMetrics) RecordDealloc(d time.Duration) {
	m.Deallocs++
	m.AllocTime += d
}

func (m *StageMetrics) StartStage() {
	if m.inStage {
		m.EndStage()
	}
	m.Stages = append(m.Stages, StageStats{})
	m.stageStart = time.Now()
	m.inStage = true
}

func (m *StageMetrics) EndStage() {
	if !m.inStage {
		return
	}
	m.Stages[len(m.Stages)-1].Duration = time.Since(m.stageStart)
	m.inStage = false
}

// SwapBandwidth returns the mean swap throughput in bits per second.
func (m *StageMetrics) SwapBandwidth() float64 {
	if m.SwapTime <= 0 {
		return 0
	}
	return float64(m.SwapBytes) * 8 / m.SwapTime.Seconds()
}

// Print displays the aggregated metrics.
func (m *StageMetrics) Print() {
	fmt.Println("=== Simulation Metrics ===")
	fmt.Printf("Stages               : %d\n", len(m.Stages))
	fmt.Printf("Fused Runs           : %d (%d gates, widest %d qubits)\n", m.Runs, m.FusedGates, m.MaxQubits)
	fmt.Printf("Kernel Time          : %v\n", m.RunTime)
	if m.Runs > 0 {
		fmt.Printf("Average Gates/Run    : %.2f\n", float64(m.FusedGates)/float64(m.Runs))
	}
	fmt.Printf("Swaps                : %d (%d pairs)\n", m.Swaps, m.SwapPairs)
	if m.Swaps > 0 {
		fmt.Printf("Swap Time            : %v\n", m.SwapTime)
		fmt.Printf("Swap Bandwidth       : %.2f Gbit/s\n", m.SwapBandwidth()/1e9)
	}
	fmt.Printf("Measurements         : %d (%v)\n", m.Measures, m.MeasureTime)
	fmt.Printf("Allocs / Deallocs    : %d / %d (%v)\n", m.Allocs, m.Deallocs, m.AllocTime)
}
