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

// Analyzer runs the bounded analysis loop for one work item per Execute
// call. The pipeline invokes it once per ranked item during the analysis
// phase, fanning invocations out across a worker pool.
type Analyzer struct {
	agent.Base
	engine *analysis.Engine
	runCtx *analysis.RunContext
}

// NewAnalyzer wires the analyzer over a ready engine.
func NewAnalyzer(cfg agent.Config, engine *analysis.Engine, log logger.Logger) *Analyzer {
	return &Analyzer{
		Base:   agent.NewBase(contracts.AgentAnalyzer, cfg, log),
		engine: engine,
	}
}

// Initialize resets the cross-item run context along with the base state.
// Items analyzed later in the run see what earlier items learned.
func (a *Analyzer) Initialize(mb *bus.MessageBus) error {
	if err := a.Base.Initialize(mb); err != nil {
		return err
	}
	a.runCtx = analysis.NewRunContext()
	return nil
}

// Execute analyzes the work item in the state bag. Every outcome, timeout
// included, comes back as a result the pipeline can fold into the report.
func (a *Analyzer) Execute(ctx context.Context, actx *agent.Context) *agent.Result {
	raw, ok := actx.Value(KeyWorkItem)
	if !ok {
		return agent.NewFailure(agent.KindNotFound, "no work item in context", false)
	}
	item, ok := raw.(contracts.ErrorReport)
	if !ok {
		return agent.NewFailure(agent.KindExecutionError,
			fmt.Sprintf("work item has unexpected type %T", raw), false)
	}

	return a.ExecuteWithTimeout(ctx, actx, func(opCtx context.Context) (*agent.Result, error) {
		res, err := a.engine.AnalyzeItem(opCtx, actx.SessionID, item, a.runCtx)
		if err != nil {
			return nil, err
		}

		if err := a.Publish(bus.Message{
			Type:      bus.MsgAnalysisComplete,
			Payload:   res.Analysis,
			Priority:  bus.PriorityMedium,
			SessionID: actx.SessionID,
		}); err != nil {
			a.Log().Error("[Analyzer] Publish failed for %s: %v", item.ID, err)
		}

		out := agent.NewSuccess(res, confidenceScore(res.Analysis.Confidence))
		out.Metadata = map[string]interface{}{
			"item_id":    item.ID,
			"pass":       res.Pass,
			"iterations": res.Iterations,
			"tokens":     res.TokensUsed,
		}
		return out, nil
	})
}
