package trace

// TraceLevel controls the verbosity of decision tracing.
type TraceLevel string

const (
	// TraceLevelNone disables tracing (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelDecisions captures every swap and cluster decision.
	TraceLevelDecisions TraceLevel = "decisions"
)

var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:      true,
	TraceLevelDecisions: true,
	"":                  true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel
}

// SimulationTrace collects decision records during a run. A nil trace
// records nothing.
type SimulationTrace struct {
	Config   TraceConfig
	Stages   []StageRecord
	Swaps    []SwapRecord
	Clusters []ClusterRecord
}

// NewSimulationTrace creates a SimulationTrace ready for recording.
func NewSimulationTrace(config TraceConfig) *SimulationTrace {
	return &SimulationTrace{
		Config: config,
		Stages: []StageRecord{{}},
	}
}

func (st *SimulationTrace) enabled() bool {
	return st != nil && st.Config.Level == TraceLevelDecisions
}

func (st *SimulationTrace) current() *StageRecord {
	return &st.Stages[len(st.Stages)-1]
}

// RecordCluster appends a cluster to the current stage.
func (st *SimulationTrace) RecordCluster(gates int, qubits []int64) {
	if !st.enabled() {
		return
	}
	cur := st.current()
	cur.Clusters++
	cur.Gates += gates
	st.Clusters = append(st.Clusters, ClusterRecord{
		Stage:  cur.Index,
		Gates:  gates,
		Qubits: append([]int64(nil), qubits...),
	})
}

// RecordSwap closes the current stage with a swap and opens the next one.
func (st *SimulationTrace) RecordSwap(record SwapRecord) {
	if !st.enabled() {
		return
	}
	record.Stage = st.current().Index
	st.Swaps = append(st.Swaps, record)
	st.Stages = append(st.Stages, StageRecord{Index: len(st.Stages)})
}
