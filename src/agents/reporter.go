package agents

import (
	"context"
	"fmt"

	"nightwatch-agent/src/agent"
	"nightwatch-agent/src/bus"
	"nightwatch-agent/src/contracts"
	"nightwatch-agent/src/logger"
	"nightwatch-agent/src/report"
)

// Reporter runs the reporting and action phases: it hands the assembled
// report to the dispatcher, which files issues and posts the chat summary.
// Dry runs skip every external side effect.
type Reporter struct {
	agent.Base
	dispatcher *report.Dispatcher
}

// NewReporter wires the reporter over the sink dispatcher.
func NewReporter(cfg agent.Config, d *report.Dispatcher, log logger.Logger) *Reporter {
	return &Reporter{
		Base:       agent.NewBase(contracts.AgentReporter, cfg, log),
		dispatcher: d,
	}
}

// Execute dispatches the report in the state bag and announces
// REPORT_PUBLISHED.
func (r *Reporter) Execute(ctx context.Context, actx *agent.Context) *agent.Result {
	raw, ok := actx.Value(KeyReport)
	if !ok {
		return agent.NewFailure(agent.KindNotFound, "no report in context", false)
	}
	rep, ok := raw.(*contracts.AnalysisReport)
	if !ok {
		return agent.NewFailure(agent.KindExecutionError,
			fmt.Sprintf("report has unexpected type %T", raw), false)
	}

	return r.ExecuteWithTimeout(ctx, actx, func(opCtx context.Context) (*agent.Result, error) {
		if actx.DryRun {
			r.Log().Info("[Reporter] Dry run, skipping sinks for %s", rep.RunID)
		} else if err := r.dispatcher.Dispatch(opCtx, rep); err != nil {
			return nil, err
		}

		if err := r.Publish(bus.Message{
			Type:      bus.MsgReportPublished,
			Payload:   map[string]interface{}{"run_id": rep.RunID, "items": len(rep.Items), "fallback": rep.Fallback},
			Priority:  bus.PriorityHigh,
			SessionID: actx.SessionID,
		}); err != nil {
			r.Log().Error("[Reporter] Publish failed: %v", err)
		}

		out := agent.NewSuccess(rep.Fingerprint(), 1.0)
		out.Metadata = map[string]interface{}{
			"items":    len(rep.Items),
			"analyzed": rep.AnalyzedCount(),
			"dry_run":  actx.DryRun,
		}
		return out, nil
	})
}
