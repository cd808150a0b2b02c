// Package agent defines the agent lifecycle contract, the result envelope
// every invocation produces, and the registry the pipeline resolves agents
// through.
package agent

import "time"

// ErrorKind classifies a failed agent invocation.
type ErrorKind string

const (
	// KindTimeout marks an operation that exceeded the agent's deadline.
	KindTimeout ErrorKind = "TIMEOUT"
	// KindExecutionError wraps any error raised by agent logic.
	KindExecutionError ErrorKind = "EXECUTION_ERROR"
	// KindValidationFailure marks an analysis the quality gate rejected.
	KindValidationFailure ErrorKind = "VALIDATION_FAILURE"
	// KindNotFound marks an unknown session or agent-type lookup.
	KindNotFound ErrorKind = "NOT_FOUND"
)

// defaultTimeout applies when a config omits TimeoutSeconds.
const defaultTimeout = 120 * time.Second

// Config is the per-agent value object, constructed once and never mutated.
type Config struct {
	// Human-readable agent name, used in log prefixes.
	Name string `yaml:"name"`
	// Model identifier passed through to the model caller.
	Model string `yaml:"model"`
	// Per-item iteration ceiling for the analysis loop (hard cap).
	MaxIterations int `yaml:"max_iterations"`
	// Per-item token budget for the analysis loop.
	TokenBudget int `yaml:"token_budget"`
	// Wall-clock deadline for one Execute call.
	TimeoutSeconds int `yaml:"timeout_seconds"`
	// Bounded retry count for recoverable sub-operations.
	MaxRetries int `yaml:"max_retries"`
	// Tool names the agent may request from the executor.
	Tools []string `yaml:"tools"`
}

// Timeout returns the configured deadline, falling back to the default.
func (c Config) Timeout() time.Duration {
	if c.TimeoutSeconds <= 0 {
		return defaultTimeout
	}
	return time.Duration(c.TimeoutSeconds) * time.Second
}
