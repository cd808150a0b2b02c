package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"

	"nightwatch-agent/src/agents"
	"nightwatch-agent/src/contracts"
	"nightwatch-agent/src/ingest"
	"nightwatch-agent/src/logger"
	"nightwatch-agent/src/report"
)

// Legacy is the pre-agentic analysis path: a single deterministic pass
// with no model calls. It exists as the fallback when the agentic pipeline
// fails, so a broken model integration still produces a nightly report.
type Legacy struct {
	source     ingest.Source
	dispatcher *report.Dispatcher
	opts       Options
	log        logger.Logger
}

// NewLegacy constructs the fallback path.
func NewLegacy(source ingest.Source, dispatcher *report.Dispatcher, opts Options, log logger.Logger) *Legacy {
	if log == nil {
		log = logger.NewSilentLogger()
	}
	return &Legacy{source: source, dispatcher: dispatcher, opts: opts, log: log}
}

// Run produces and dispatches a heuristic report. items carries the ranked
// batch when ingestion already ran; when nil, Run fetches and ranks itself.
// The dispatcher's fingerprint dedupe keeps a fallback re-run from filing
// issues an earlier partial run already filed.
func (l *Legacy) Run(ctx context.Context, sessionID, runID string, items []contracts.ErrorReport) (*contracts.AnalysisReport, error) {
	if items == nil {
		raw, err := l.source.FetchErrors(ctx)
		if err != nil {
			return nil, fmt.Errorf("fetching errors: %w", err)
		}
		items = ingest.Rank(raw, l.opts.MaxItems)
	}

	reports := make([]contracts.ItemReport, len(items))
	for i, item := range items {
		reports[i] = contracts.ItemReport{Item: item, Analysis: HeuristicAnalysis(item)}
	}

	rep := &contracts.AnalysisReport{
		SessionID:   sessionID,
		RunID:       runID,
		GeneratedAt: time.Now(),
		Items:       reports,
		Patterns:    agents.Cluster(reports),
		Fallback:    true,
	}

	if l.opts.DryRun {
		l.log.Info("[Legacy] Dry run, skipping sinks for %s", runID)
		return rep, nil
	}
	if err := l.dispatcher.Dispatch(ctx, rep); err != nil {
		return nil, err
	}
	return rep, nil
}

// heuristic rules, checked in order against class and message.
var heuristicRules = []struct {
	match string
	cause string
	fix   string
}{
	{"nil pointer", "dereference of a missing value; an upstream lookup returned nothing and the result was used unchecked", "guard the lookup result before use"},
	{"nullpointer", "dereference of a missing value; an upstream lookup returned nothing and the result was used unchecked", "guard the lookup result before use"},
	{"index out of range", "collection accessed past its bounds, likely an off-by-one or an empty result set", "check the collection length before indexing"},
	{"timeout", "a dependency exceeded its deadline; the call path has no budget for slow responses", "raise the timeout or add a retry with backoff"},
	{"connection refused", "a dependency was unreachable; likely a restart, a bad endpoint, or pool exhaustion", "verify the endpoint and connection pool sizing"},
	{"out of memory", "the process exceeded its memory limit; look for unbounded buffering or a leak", "profile allocations and bound the working set"},
	{"deadlock", "two or more lock holders are waiting on each other", "audit lock ordering on the involved paths"},
	{"permission denied", "the caller lacks a required credential or role", "check the credential and its grants"},
}

// HeuristicAnalysis classifies one item with the fixed rule table. Rule
// hits with a trace get medium confidence; everything else is low.
func HeuristicAnalysis(item contracts.ErrorReport) *contracts.ErrorAnalysis {
	subject := strings.ToLower(item.ErrorClass + " " + item.Message)

	for _, rule := range heuristicRules {
		if strings.Contains(subject, rule.match) {
			confidence := contracts.ConfidenceLow
			if len(item.StackTrace) > 0 {
				confidence = contracts.ConfidenceMedium
			}
			return &contracts.ErrorAnalysis{
				ItemID:       item.ID,
				RootCause:    rule.cause,
				Confidence:   confidence,
				SuggestedFix: rule.fix,
				NextSteps:    []string{"confirm against the stack trace", "re-run the agentic analysis when available"},
				Summary:      fmt.Sprintf("heuristic match on %q", rule.match),
			}
		}
	}

	return &contracts.ErrorAnalysis{
		ItemID:     item.ID,
		RootCause:  fmt.Sprintf("recurring %s in %s, no heuristic rule matched", orUnknown(item.ErrorClass), orUnknown(item.Service)),
		Confidence: contracts.ConfidenceLow,
		NextSteps:  []string{"triage manually", "re-run the agentic analysis when available"},
		Summary:    "no heuristic match",
	}
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}
