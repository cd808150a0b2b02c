package agents

import (
	"context"
	"fmt"

	"nightwatch-agent/src/agent"
	"nightwatch-agent/src/analysis"
	"nightwatch-agent/src/bus"
	"nightwatch-agent/src/contracts"
	"nightwatch-agent/src/logger"
)

// Corrector runs one correction pass for a rejected analysis. Satisfied by
// *analysis.Engine.
type Corrector interface {
	Correct(ctx context.Context, sessionID string, item contracts.ErrorReport, prior *contracts.ErrorAnalysis, reason string) (*analysis.PassResult, error)
}

// Validator is the synthesis-phase quality gate. Each analyzed item gets
// checked for an actionable root cause; a rejected analysis earns at most
// one correction pass, after which the item keeps whichever analysis is
// better and carries the rejection note either way.
type Validator struct {
	agent.Base
	corrector Corrector // may be nil; rejections are then annotate-only
}

// NewValidator wires the gate over the optional corrector.
func NewValidator(cfg agent.Config, corrector Corrector, log logger.Logger) *Validator {
	return &Validator{
		Base:      agent.NewBase(contracts.AgentValidator, cfg, log),
		corrector: corrector,
	}
}

// Execute gates the item reports in the state bag and returns the updated
// slice as the result data.
func (v *Validator) Execute(ctx context.Context, actx *agent.Context) *agent.Result {
	raw, ok := actx.Value(KeyItemReports)
	if !ok {
		return agent.NewFailure(agent.KindNotFound, "no item reports in context", false)
	}
	reports, ok := raw.([]contracts.ItemReport)
	if !ok {
		return agent.NewFailure(agent.KindExecutionError,
			fmt.Sprintf("item reports have unexpected type %T", raw), false)
	}

	return v.ExecuteWithTimeout(ctx, actx, func(opCtx context.Context) (*agent.Result, error) {
		out := make([]contracts.ItemReport, len(reports))
		copy(out, reports)

		corrected := 0
		rejected := 0
		for i := range out {
			if out[i].Skipped || out[i].Analysis == nil {
				continue
			}
			reason := Gate(out[i].Analysis)
			if reason == "" {
				continue
			}
			rejected++
			out[i] = v.correct(opCtx, actx.SessionID, out[i], reason)
			if out[i].Note == "" {
				corrected++
			}
		}

		res := agent.NewSuccess(out, 1.0)
		res.Metadata = map[string]interface{}{
			"rejected":  rejected,
			"corrected": corrected,
		}
		return res, nil
	})
}

// correct runs the single correction pass and keeps the better analysis.
func (v *Validator) correct(ctx context.Context, sessionID string, item contracts.ItemReport, reason string) contracts.ItemReport {
	item.Note = "quality gate: " + reason

	if v.corrector == nil {
		return item
	}

	if err := v.Publish(bus.Message{
		Type:      bus.MsgCorrectionRequested,
		To:        bus.Addr(contracts.AgentAnalyzer),
		Payload:   map[string]string{"item_id": item.Item.ID, "reason": reason},
		Priority:  bus.PriorityHigh,
		SessionID: sessionID,
	}); err != nil {
		v.Log().Error("[Validator] Publish failed for %s: %v", item.Item.ID, err)
	}

	res, err := v.corrector.Correct(ctx, sessionID, item.Item, item.Analysis, reason)
	if err != nil {
		v.Log().Error("[Validator] Correction failed for %s: %v", item.Item.ID, err)
		return item
	}
	if res == nil || res.Analysis == nil {
		return item
	}

	if Gate(res.Analysis) == "" {
		item.Analysis = res.Analysis
		item.Note = ""
	} else if res.Analysis.Confidence.Rank() > item.Analysis.Confidence.Rank() {
		// Still rejected, but a better hypothesis than before.
		item.Analysis = res.Analysis
	}
	return item
}

// Gate checks one analysis. An empty return accepts it; otherwise the
// return is the rejection reason.
func Gate(a *contracts.ErrorAnalysis) string {
	if a.RootCause == "" {
		return "missing root cause"
	}
	if len(a.FilesExamined) == 0 && a.Confidence != contracts.ConfidenceLow {
		return "confident analysis names no examined files"
	}
	if a.Confidence == contracts.ConfidenceHigh && a.SuggestedFix == "" {
		return "high confidence without a suggested fix"
	}
	return ""
}
