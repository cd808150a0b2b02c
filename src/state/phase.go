// Package state holds the immutable pipeline state snapshots and the
// manager that produces them, one per session.
package state

// ExecutionPhase is one ordered stage of the pipeline. Transitions only
// move forward; retries within a phase do not change the current phase.
type ExecutionPhase string

const (
	PhaseIngestion  ExecutionPhase = "ingestion"
	PhaseEnrichment ExecutionPhase = "enrichment"
	PhaseAnalysis   ExecutionPhase = "analysis"
	PhaseSynthesis  ExecutionPhase = "synthesis"
	PhaseReporting  ExecutionPhase = "reporting"
	PhaseAction     ExecutionPhase = "action"
	PhaseLearning   ExecutionPhase = "learning"
	PhaseComplete   ExecutionPhase = "complete"
)

// phaseOrder fixes the strict linear order of phases.
var phaseOrder = []ExecutionPhase{
	PhaseIngestion,
	PhaseEnrichment,
	PhaseAnalysis,
	PhaseSynthesis,
	PhaseReporting,
	PhaseAction,
	PhaseLearning,
	PhaseComplete,
}

// Phases returns the execution phases in order, excluding the terminal
// complete marker.
func Phases() []ExecutionPhase {
	out := make([]ExecutionPhase, len(phaseOrder)-1)
	copy(out, phaseOrder[:len(phaseOrder)-1])
	return out
}

// Index returns the phase's position in the linear order, or -1 for an
// unknown phase.
func (p ExecutionPhase) Index() int {
	for i, ph := range phaseOrder {
		if ph == p {
			return i
		}
	}
	return -1
}

// Before reports whether p strictly precedes other.
func (p ExecutionPhase) Before(other ExecutionPhase) bool {
	return p.Index() < other.Index()
}
