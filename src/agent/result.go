package agent

import "time"

// Result is the outcome envelope of one agent invocation. Every Execute
// call produces exactly one, success or not.
type Result struct {
	// Whether the invocation achieved its goal.
	Success bool `json:"success"`
	// Typed payload; its concrete type depends on the agent.
	Data interface{} `json:"data,omitempty"`
	// Confidence in the payload (0.0 to 1.0).
	Confidence float64 `json:"confidence"`
	// Wall-clock time the invocation took, stamped by the timeout wrapper.
	Duration time.Duration `json:"duration"`
	// Failure classification, empty on success.
	ErrorKind ErrorKind `json:"error_kind,omitempty"`
	// Failure description. Non-empty whenever Success is false.
	ErrorMessage string `json:"error_message,omitempty"`
	// Whether the pipeline may treat the failure as recoverable.
	Recoverable bool `json:"recoverable,omitempty"`
	// Free-form follow-up suggestions for the report.
	Suggestions []string `json:"suggestions,omitempty"`
	// Free-form metadata for the report and the state result map.
	Metadata map[string]interface{} `json:"metadata,omitempty"`
}

// NewSuccess builds a successful result.
func NewSuccess(data interface{}, confidence float64) *Result {
	return &Result{
		Success:    true,
		Data:       data,
		Confidence: confidence,
	}
}

// NewFailure builds a failed result. A failed result always carries a
// non-empty error message.
func NewFailure(kind ErrorKind, msg string, recoverable bool) *Result {
	if msg == "" {
		msg = "unspecified failure"
	}
	return &Result{
		Success:      false,
		ErrorKind:    kind,
		ErrorMessage: msg,
		Recoverable:  recoverable,
	}
}

// Context is the per-invocation input to an agent. The pipeline owns it and
// populates the state bag before each call.
type Context struct {
	// Session this invocation belongs to.
	SessionID string
	// Run identifier, unique per pipeline invocation.
	RunID string
	// Free-form key/value input populated by the caller.
	State map[string]interface{}
	// When set, agents must not perform external side effects.
	DryRun bool
}

// NewContext creates a context with an empty state bag.
func NewContext(sessionID, runID string) *Context {
	return &Context{
		SessionID: sessionID,
		RunID:     runID,
		State:     make(map[string]interface{}),
	}
}

// Clone returns a copy with its own state bag, used to scope a context to
// one work item without leaking writes back to the caller.
func (c *Context) Clone() *Context {
	state := make(map[string]interface{}, len(c.State))
	for k, v := range c.State {
		state[k] = v
	}
	return &Context{
		SessionID: c.SessionID,
		RunID:     c.RunID,
		State:     state,
		DryRun:    c.DryRun,
	}
}

// Value looks up a state bag entry.
func (c *Context) Value(key string) (interface{}, bool) {
	v, ok := c.State[key]
	return v, ok
}

// Set writes a state bag entry.
func (c *Context) Set(key string, value interface{}) {
	c.State[key] = value
}
