package state

import (
	"time"

	"nightwatch-agent/src/agent"
	"nightwatch-agent/src/contracts"
)

// PipelineState is one session's pipeline snapshot. Treat it as frozen:
// the manager hands out private copies and every update produces a new
// snapshot, so a held reference never changes underneath its holder.
type PipelineState struct {
	// Session the state belongs to.
	SessionID string `json:"session_id"`
	// Phase the pipeline is currently executing.
	CurrentPhase ExecutionPhase `json:"current_phase"`
	// Retry counter, scoped to the current phase.
	Iteration int `json:"iteration"`
	// Latest result per agent type.
	AgentResults map[contracts.AgentType]agent.Result `json:"agent_results"`
	// Work items accumulated by ingestion, ranked order.
	WorkItems []contracts.ErrorReport `json:"work_items"`
	// Timestamps.
	StartedAt      time.Time `json:"started_at"`
	PhaseStartedAt time.Time `json:"phase_started_at"`
	LastUpdatedAt  time.Time `json:"last_updated_at"`
	CompletedAt    time.Time `json:"completed_at,omitempty"`
	// Free-form metadata the pipeline accumulates across phases.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// newState creates the initial snapshot for a session.
func newState(sessionID string, now time.Time) *PipelineState {
	return &PipelineState{
		SessionID:      sessionID,
		CurrentPhase:   PhaseIngestion,
		AgentResults:   make(map[contracts.AgentType]agent.Result),
		StartedAt:      now,
		PhaseStartedAt: now,
		LastUpdatedAt:  now,
		Metadata:       make(map[string]interface{}),
	}
}

// clone copies the snapshot, including its maps and slices, so the copy and
// the original never share mutable structure.
func (s *PipelineState) clone() *PipelineState {
	out := *s
	out.AgentResults = make(map[contracts.AgentType]agent.Result, len(s.AgentResults))
	for k, v := range s.AgentResults {
		out.AgentResults[k] = v
	}
	out.WorkItems = make([]contracts.ErrorReport, len(s.WorkItems))
	copy(out.WorkItems, s.WorkItems)
	out.Metadata = make(map[string]interface{}, len(s.Metadata))
	for k, v := range s.Metadata {
		out.Metadata[k] = v
	}
	return &out
}
