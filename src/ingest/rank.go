package ingest

import (
	"regexp"
	"sort"
	"strings"

	"nightwatch-agent/src/contracts"
)

var (
	// Normalization patterns for recurrence grouping.
	timestampPattern = regexp.MustCompile(`\d{4}-\d{2}-\d{2}[T ]\d{2}:\d{2}:\d{2}(\.\d+)?(Z|[+-]\d{2}:?\d{2})?`)
	uuidPattern      = regexp.MustCompile(`\b[0-9a-fA-F]{8}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{4}-[0-9a-fA-F]{12}\b`)
	hexPattern       = regexp.MustCompile(`\b0x[0-9a-fA-F]+\b`)
	numberPattern    = regexp.MustCompile(`\b\d+\b`)

	// Severity indicators in the raw message.
	fatalPattern = regexp.MustCompile(`(?i)\b(FATAL|PANIC|CRITICAL|OOM|OutOfMemory)\b`)
)

// Normalize replaces volatile fragments (timestamps, ids, numbers) with
// placeholders so recurring errors hash to the same fingerprint.
func Normalize(msg string) string {
	normalized := msg
	normalized = timestampPattern.ReplaceAllString(normalized, "[TIMESTAMP]")
	normalized = uuidPattern.ReplaceAllString(normalized, "[UUID]")
	normalized = hexPattern.ReplaceAllString(normalized, "[HEX]")
	normalized = numberPattern.ReplaceAllString(normalized, "[NUM]")
	return strings.TrimSpace(normalized)
}

// Score assigns a triage confidence to one report (0.0 to 1.0). Frequent,
// fatal-looking errors with traces rank high; deprecations and retry noise
// rank low.
func Score(item contracts.ErrorReport) float64 {
	score := 0.5

	if fatalPattern.MatchString(item.Message) || fatalPattern.MatchString(item.ErrorClass) {
		score += 0.2
	}
	if len(item.StackTrace) > 0 {
		score += 0.1
	}
	switch {
	case item.Count >= 100:
		score += 0.2
	case item.Count >= 10:
		score += 0.1
	}

	lower := strings.ToLower(item.Message)
	if strings.Contains(lower, "deprecated") || strings.Contains(lower, "deprecation") {
		score -= 0.2
	}
	if strings.Contains(lower, "retry") {
		score -= 0.1
	}

	if score > 1.0 {
		score = 1.0
	}
	if score < 0.0 {
		score = 0.0
	}
	return score
}

// Rank normalizes, fingerprints and scores the reports, removes duplicates
// (same fingerprint, keeping the highest-count occurrence), sorts by score
// then count, and caps the list at maxItems. maxItems <= 0 means no cap.
func Rank(items []contracts.ErrorReport, maxItems int) []contracts.ErrorReport {
	ranked := make([]contracts.ErrorReport, len(items))
	copy(ranked, items)

	for i := range ranked {
		if ranked[i].NormalizedMsg == "" {
			ranked[i].NormalizedMsg = Normalize(ranked[i].Message)
		}
		if ranked[i].Fingerprint == "" {
			ranked[i].Fingerprint = contracts.FingerprintMessage(ranked[i].NormalizedMsg)
		}
		ranked[i].ConfidenceScore = Score(ranked[i])
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].ConfidenceScore != ranked[j].ConfidenceScore {
			return ranked[i].ConfidenceScore > ranked[j].ConfidenceScore
		}
		return ranked[i].Count > ranked[j].Count
	})

	seen := make(map[string]bool)
	out := ranked[:0]
	for _, item := range ranked {
		if seen[item.Fingerprint] {
			continue
		}
		seen[item.Fingerprint] = true
		out = append(out, item)
		if maxItems > 0 && len(out) >= maxItems {
			break
		}
	}
	return out
}
