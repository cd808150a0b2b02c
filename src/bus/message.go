// Package bus provides the in-process pub/sub message bus agents use to
// signal each other during a pipeline run.
package bus

import (
	"encoding/json"
	"time"

	"nightwatch-agent/src/contracts"
)

// MessageType discriminates the signal a message carries.
type MessageType string

const (
	// MsgErrorsReady announces that ingestion ranked a batch of work items.
	MsgErrorsReady MessageType = "ERRORS_READY"
	// MsgContextReady announces that enrichment attached prior findings.
	MsgContextReady MessageType = "CONTEXT_READY"
	// MsgAnalysisComplete announces one item's finished analysis.
	MsgAnalysisComplete MessageType = "ANALYSIS_COMPLETE"
	// MsgPatternsFound announces cross-item clusters from synthesis.
	MsgPatternsFound MessageType = "PATTERNS_FOUND"
	// MsgCorrectionRequested asks the analyzer for one correction pass.
	MsgCorrectionRequested MessageType = "CORRECTION_REQUESTED"
	// MsgReportPublished announces the assembled report.
	MsgReportPublished MessageType = "REPORT_PUBLISHED"
)

// Priority orders messages when history is read back. Lower is more urgent.
type Priority int

const (
	PriorityHigh   Priority = 0
	PriorityMedium Priority = 1
	PriorityLow    Priority = 2
)

// Message is one signal on the bus. Immutable once published: the bus keeps
// and delivers deep copies only.
type Message struct {
	// Unique identifier, assigned by the bus at publish time if empty.
	ID string `json:"id"`
	// Sending agent, nil for pipeline-originated messages.
	From *contracts.AgentType `json:"from,omitempty"`
	// Receiving agent, nil for broadcast.
	To *contracts.AgentType `json:"to,omitempty"`
	// Signal discriminator.
	Type MessageType `json:"type"`
	// Message body. Must be JSON-serializable; the bus copies by
	// marshal/unmarshal round trip.
	Payload interface{} `json:"payload,omitempty"`
	// Delivery priority, used by the priority-sorted history read.
	Priority Priority `json:"priority"`
	// Session the message belongs to.
	SessionID string `json:"session_id"`
	// Set by the bus at publish time.
	Timestamp time.Time `json:"timestamp"`
}

// Addr returns a pointer to t, for the From/To fields.
func Addr(t contracts.AgentType) *contracts.AgentType {
	return &t
}

// clone deep-copies a message via a JSON round trip so a handler's mutation
// of one copy is never observable through another copy or the history.
func clone(m Message) (Message, error) {
	raw, err := json.Marshal(m)
	if err != nil {
		return Message{}, err
	}
	var out Message
	if err := json.Unmarshal(raw, &out); err != nil {
		return Message{}, err
	}
	return out, nil
}
