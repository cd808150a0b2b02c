// Package contracts defines the value types shared between agents, the
// pipeline and the external sinks.
package contracts

import (
	"crypto/sha256"
	"encoding/hex"
	"time"
)

// ConfidenceLevel classifies how certain an analysis is.
type ConfidenceLevel string

const (
	ConfidenceLow    ConfidenceLevel = "low"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceHigh   ConfidenceLevel = "high"
)

// Rank orders confidence levels for comparison (low=0 < medium=1 < high=2).
func (c ConfidenceLevel) Rank() int {
	switch c {
	case ConfidenceHigh:
		return 2
	case ConfidenceMedium:
		return 1
	default:
		return 0
	}
}

// ErrorReport is one reported production error: the work item the analysis
// phase processes independently.
type ErrorReport struct {
	// Unique identifier assigned at ingestion.
	ID string `json:"id"`
	// Originating system (e.g. "newrelic", "file").
	Source string `json:"source"`
	// Service or application the error was reported against.
	Service string `json:"service"`
	// Original error message with live values.
	Message string `json:"message"`
	// Normalized message (timestamps, ids, numbers replaced with
	// placeholders) used for grouping and recurrence tracking.
	NormalizedMsg string `json:"normalized_message"`
	// Stable hash of the normalized message.
	Fingerprint string `json:"fingerprint"`
	// Error class name if the source reports one (e.g. "NullPointerException").
	ErrorClass string `json:"error_class,omitempty"`
	// Stack trace lines, most recent call first.
	StackTrace []string `json:"stack_trace,omitempty"`
	// Number of occurrences in the reporting window.
	Count int `json:"count"`
	// First and last occurrence in the reporting window.
	FirstSeen time.Time `json:"first_seen"`
	LastSeen  time.Time `json:"last_seen"`
	// Ranking score assigned at ingestion (0.0 to 1.0).
	ConfidenceScore float64 `json:"confidence_score"`
	// Additional key-value pairs from the source.
	Metadata map[string]string `json:"metadata,omitempty"`
}

// ErrorAnalysis is the structured outcome of analyzing one ErrorReport.
type ErrorAnalysis struct {
	// ID of the analyzed ErrorReport.
	ItemID string `json:"item_id"`
	// Diagnosed root cause in one or two sentences.
	RootCause string `json:"root_cause"`
	// How certain the analysis is.
	Confidence ConfidenceLevel `json:"confidence"`
	// Concrete fix, empty when none was found.
	SuggestedFix string `json:"suggested_fix,omitempty"`
	// Files the analysis examined, relative to the repository root.
	FilesExamined []string `json:"files_examined,omitempty"`
	// Codebase patterns discovered while analyzing (conventions,
	// shared helpers, known pitfalls).
	Patterns []string `json:"patterns,omitempty"`
	// Recommended follow-ups when the fix is partial or missing.
	NextSteps []string `json:"next_steps,omitempty"`
	// Short human-readable summary for the report.
	Summary string `json:"summary,omitempty"`
}

// HasFix reports whether the analysis produced an actionable fix.
func (a *ErrorAnalysis) HasFix() bool {
	return a != nil && a.SuggestedFix != ""
}

// PriorResult is a past analysis retrieved from the knowledge store,
// used to seed a new pass over a recurring error.
type PriorResult struct {
	// Fingerprint of the error the prior analysis covered.
	Fingerprint string `json:"fingerprint"`
	// Root cause recorded by the prior analysis.
	RootCause string `json:"root_cause"`
	// Confidence of the prior analysis.
	Confidence ConfidenceLevel `json:"confidence"`
	// Fix recorded by the prior analysis, if any.
	SuggestedFix string `json:"suggested_fix,omitempty"`
	// Session that produced the prior analysis.
	SessionID string `json:"session_id"`
	// When the prior analysis was written.
	AnalyzedAt time.Time `json:"analyzed_at"`
}

// FingerprintMessage hashes a normalized error message into a stable
// identifier for recurrence tracking and issue dedup.
func FingerprintMessage(normalized string) string {
	sum := sha256.Sum256([]byte(normalized))
	return hex.EncodeToString(sum[:])
}
