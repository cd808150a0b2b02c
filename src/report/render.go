package report

import (
	"fmt"
	"strings"

	"nightwatch-agent/src/contracts"
)

// FormatIssue renders one analyzed item as an issue title and body.
func FormatIssue(item contracts.ItemReport) (title, body string) {
	a := item.Analysis
	title = fmt.Sprintf("[%s] %s", item.Item.Service, truncateLine(item.Item.Message, 120))

	var b strings.Builder
	fmt.Fprintf(&b, "Occurrences: %d\n", item.Item.Count)
	fmt.Fprintf(&b, "Root cause: %s\n", a.RootCause)
	fmt.Fprintf(&b, "Confidence: %s\n", a.Confidence)
	if a.SuggestedFix != "" {
		fmt.Fprintf(&b, "Suggested fix: %s\n", a.SuggestedFix)
	}
	if len(a.FilesExamined) > 0 {
		fmt.Fprintf(&b, "Files examined: %s\n", strings.Join(a.FilesExamined, ", "))
	}
	if len(a.NextSteps) > 0 {
		b.WriteString("Next steps:\n")
		for _, s := range a.NextSteps {
			fmt.Fprintf(&b, "- %s\n", s)
		}
	}
	fmt.Fprintf(&b, "\nFingerprint: %s\n", item.Item.Fingerprint)
	return title, b.String()
}

// FormatSummary renders the whole run for the chat channel.
func FormatSummary(r *contracts.AnalysisReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Nightly error analysis %s: %d items, %d analyzed",
		r.GeneratedAt.Format("2006-01-02"), len(r.Items), r.AnalyzedCount())
	if r.Fallback {
		b.WriteString(" (legacy fallback)")
	}
	b.WriteString("\n")

	for _, item := range r.Items {
		status := "analyzed"
		detail := ""
		switch {
		case item.Skipped:
			status = "skipped"
			detail = item.Note
		case item.Analysis != nil:
			detail = truncateLine(item.Analysis.RootCause, 100)
			if item.Analysis.HasFix() {
				status = "fix proposed"
			}
		}
		fmt.Fprintf(&b, "- %s [%s] %s", item.Item.Service, status, truncateLine(item.Item.Message, 80))
		if detail != "" {
			fmt.Fprintf(&b, " | %s", detail)
		}
		b.WriteString("\n")
	}

	if len(r.Patterns) > 0 {
		b.WriteString("Patterns:\n")
		for _, p := range r.Patterns {
			fmt.Fprintf(&b, "- %s (%d items, %d occurrences)\n", p.Label, len(p.ItemIDs), p.Occurrences)
		}
	}
	return b.String()
}

func truncateLine(s string, max int) string {
	if idx := strings.IndexByte(s, '\n'); idx >= 0 {
		s = s[:idx]
	}
	if len(s) > max {
		return s[:max] + "..."
	}
	return s
}
