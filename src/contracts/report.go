package contracts

import (
	"sort"
	"strings"
	"time"
)

// ItemReport pairs one work item with its analysis outcome.
type ItemReport struct {
	// The analyzed error.
	Item ErrorReport `json:"item"`
	// Analysis result, nil when the item was skipped.
	Analysis *ErrorAnalysis `json:"analysis,omitempty"`
	// True when the item produced no usable analysis.
	Skipped bool `json:"skipped,omitempty"`
	// Why the item was skipped or flagged (e.g. "analyzer timeout").
	Note string `json:"note,omitempty"`
}

// PatternGroup is a cluster of items sharing a normalized failure shape,
// produced by the pattern-detector during synthesis.
type PatternGroup struct {
	// Shared fingerprint or descriptive label for the cluster.
	Label string `json:"label"`
	// IDs of the items in the cluster.
	ItemIDs []string `json:"item_ids"`
	// Total occurrence count across the cluster.
	Occurrences int `json:"occurrences"`
}

// AnalysisReport is the finished artifact of one pipeline run. The
// reporting and action phases hand it to external sinks as-is.
type AnalysisReport struct {
	// Session the report belongs to.
	SessionID string `json:"session_id"`
	// Run identifier, unique per invocation.
	RunID string `json:"run_id"`
	// When the report was assembled.
	GeneratedAt time.Time `json:"generated_at"`
	// Per-item outcomes, ranked order preserved from ingestion.
	Items []ItemReport `json:"items"`
	// Cross-item patterns from the synthesis phase.
	Patterns []PatternGroup `json:"patterns,omitempty"`
	// True when the legacy fallback path produced this report.
	Fallback bool `json:"fallback,omitempty"`
}

// Fingerprint derives a stable identifier for the report from the
// fingerprints of its items. Issue sinks use it to dedupe a fallback
// re-run against issues an earlier partial run already created.
func (r *AnalysisReport) Fingerprint() string {
	prints := make([]string, 0, len(r.Items))
	for _, it := range r.Items {
		prints = append(prints, it.Item.Fingerprint)
	}
	sort.Strings(prints)
	return FingerprintMessage(strings.Join(prints, "|"))
}

// AnalyzedCount returns how many items carry a non-skipped analysis.
func (r *AnalysisReport) AnalyzedCount() int {
	n := 0
	for _, it := range r.Items {
		if it.Analysis != nil && !it.Skipped {
			n++
		}
	}
	return n
}
