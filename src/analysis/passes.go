package analysis

import (
	"context"
	"fmt"
	"strings"
	"time"

	"nightwatch-agent/src/contracts"
	"nightwatch-agent/src/knowledge"
	"nightwatch-agent/src/logger"
	"nightwatch-agent/src/model"
)

// Engine drives the full per-item analysis: knowledge seeding, up to
// MaxPasses loop passes, pass selection and knowledge write-back.
type Engine struct {
	loop      *Loop
	knowledge knowledge.Store // may be nil
	cfg       Config
	log       logger.Logger
}

// NewEngine wires the loop to the optional knowledge store.
func NewEngine(loop *Loop, store knowledge.Store, cfg Config, log logger.Logger) *Engine {
	if log == nil {
		log = logger.NewSilentLogger()
	}
	return &Engine{loop: loop, knowledge: store, cfg: cfg, log: log}
}

// AnalyzeItem analyzes one work item. A first pass always runs; when its
// confidence lands in the lowest tier and MaxPasses allows, a second pass
// runs on a fresh conversation seeded with a compact summary of the first.
// The best pass wins. Knowledge-store failures are logged and ignored.
func (e *Engine) AnalyzeItem(ctx context.Context, sessionID string, item contracts.ErrorReport, rc *RunContext) (*PassResult, error) {
	seed := e.seedTurns(ctx, item, rc)

	first, err := e.loop.RunPass(ctx, item, 1, seed)
	if err != nil {
		return nil, err
	}
	passes := []*PassResult{first}

	if first.Analysis.Confidence == contracts.ConfidenceLow && e.cfg.MaxPasses >= 2 {
		e.log.Debug("[Engine] Item %s: low confidence, running retry pass", item.ID)
		retrySeed := append(append([]model.Turn{}, seed...), model.Turn{
			Role:    model.RoleUser,
			Content: summarizePass(first),
		})
		second, err := e.loop.RunPass(ctx, item, 2, retrySeed)
		if err != nil {
			// The first pass already produced a usable result; a failed
			// retry must not discard it.
			e.log.Error("[Engine] Item %s: retry pass failed: %v", item.ID, err)
		} else {
			passes = append(passes, second)
		}
	}

	best := SelectBest(passes)
	e.writeBack(ctx, sessionID, item, best)
	if rc != nil {
		rc.Absorb(best)
	}
	return best, nil
}

// Correct runs exactly one additional pass seeded with the quality gate's
// feedback. The validator calls it at most once per item.
func (e *Engine) Correct(ctx context.Context, sessionID string, item contracts.ErrorReport, prior *contracts.ErrorAnalysis, reason string) (*PassResult, error) {
	seed := []model.Turn{{
		Role: model.RoleUser,
		Content: fmt.Sprintf(
			"A previous analysis of this error was rejected by the quality gate: %s\nPrevious root cause: %s\nAddress the rejection in your analysis.",
			reason, prior.RootCause),
	}}
	res, err := e.loop.RunPass(ctx, item, 1, seed)
	if err != nil {
		return nil, err
	}
	e.writeBack(ctx, sessionID, item, res)
	return res, nil
}

// seedTurns builds the pass seed from prior knowledge and the cross-item
// run context. Both are optional and non-fatal.
func (e *Engine) seedTurns(ctx context.Context, item contracts.ErrorReport, rc *RunContext) []model.Turn {
	var seed []model.Turn

	if e.knowledge != nil {
		priors, err := e.knowledge.Search(ctx, item)
		if err != nil {
			e.log.Error("[Engine] Knowledge search failed for %s: %v", item.ID, err)
		} else if len(priors) > 0 {
			var b strings.Builder
			b.WriteString("Prior analyses of this error:\n")
			for _, p := range priors {
				fmt.Fprintf(&b, "- (%s) %s", p.Confidence, p.RootCause)
				if p.SuggestedFix != "" {
					fmt.Fprintf(&b, "; fix: %s", p.SuggestedFix)
				}
				b.WriteString("\n")
			}
			seed = append(seed, model.Turn{Role: model.RoleUser, Content: b.String()})
		}
	}

	if rc != nil {
		if summary := rc.Summary(); summary != "" {
			seed = append(seed, model.Turn{Role: model.RoleUser, Content: summary})
		}
	}
	return seed
}

func (e *Engine) writeBack(ctx context.Context, sessionID string, item contracts.ErrorReport, res *PassResult) {
	if e.knowledge == nil || res == nil || res.Analysis == nil {
		return
	}
	err := e.knowledge.Write(ctx, contracts.PriorResult{
		Fingerprint:  item.Fingerprint,
		RootCause:    res.Analysis.RootCause,
		Confidence:   res.Analysis.Confidence,
		SuggestedFix: res.Analysis.SuggestedFix,
		SessionID:    sessionID,
		AnalyzedAt:   time.Now(),
	})
	if err != nil {
		e.log.Error("[Engine] Knowledge write failed for %s: %v", item.ID, err)
	}
}

// SelectBest picks the winning pass: prefer a pass with an actionable fix,
// then higher confidence, then the later pass (it had more information).
// Returns nil only for an empty history.
func SelectBest(passes []*PassResult) *PassResult {
	var best *PassResult
	for _, p := range passes {
		if p == nil || p.Analysis == nil {
			continue
		}
		if best == nil {
			best = p
			continue
		}
		switch {
		case p.Analysis.HasFix() != best.Analysis.HasFix():
			if p.Analysis.HasFix() {
				best = p
			}
		case p.Analysis.Confidence.Rank() != best.Analysis.Confidence.Rank():
			if p.Analysis.Confidence.Rank() > best.Analysis.Confidence.Rank() {
				best = p
			}
		case p.Pass >= best.Pass:
			best = p
		}
	}
	return best
}

// summarizePass renders a compact summary of a finished pass for seeding
// the retry conversation.
func summarizePass(p *PassResult) string {
	var b strings.Builder
	b.WriteString("Findings from a previous attempt (low confidence, verify rather than assume):\n")
	fmt.Fprintf(&b, "Root cause hypothesis: %s\n", p.Analysis.RootCause)
	if len(p.FilesExamined) > 0 {
		fmt.Fprintf(&b, "Files already examined: %s\n", strings.Join(p.FilesExamined, ", "))
	}
	if len(p.Analysis.NextSteps) > 0 {
		fmt.Fprintf(&b, "Suggested next steps: %s\n", strings.Join(p.Analysis.NextSteps, "; "))
	}
	return b.String()
}
