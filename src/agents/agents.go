// Package agents holds the concrete pipeline agents. Each embeds
// agent.Base, reads its input from the context state bag under the keys
// below, and runs its work through ExecuteWithTimeout so failures surface
// as well-formed results instead of errors.
package agents

import "nightwatch-agent/src/contracts"

// State bag keys the pipeline populates before each phase.
const (
	// KeyWorkItem holds the single contracts.ErrorReport for a per-item
	// analyzer invocation.
	KeyWorkItem = "work_item"
	// KeyWorkItems holds the ranked []contracts.ErrorReport batch.
	KeyWorkItems = "work_items"
	// KeyItemReports holds the accumulated []contracts.ItemReport.
	KeyItemReports = "item_reports"
	// KeyReport holds the assembled *contracts.AnalysisReport.
	KeyReport = "report"
	// KeyEnrichment holds the researcher's map of fingerprint to prior
	// results.
	KeyEnrichment = "enrichment"
)

// confidenceScore maps the three-tier confidence onto the result scale.
func confidenceScore(c contracts.ConfidenceLevel) float64 {
	switch c {
	case contracts.ConfidenceHigh:
		return 0.9
	case contracts.ConfidenceMedium:
		return 0.6
	default:
		return 0.3
	}
}
