package agents

import (
	"context"
	"fmt"

	"nightwatch-agent/src/agent"
	"nightwatch-agent/src/bus"
	"nightwatch-agent/src/contracts"
	"nightwatch-agent/src/knowledge"
	"nightwatch-agent/src/logger"
)

// Researcher runs the enrichment phase: it looks every ranked item up in
// the knowledge store and attaches prior findings for the analyzer to seed
// from. A missing store or failed lookups degrade to an empty enrichment,
// never a failed phase.
type Researcher struct {
	agent.Base
	store knowledge.Store // may be nil
}

// NewResearcher wires the researcher over the optional knowledge store.
func NewResearcher(cfg agent.Config, store knowledge.Store, log logger.Logger) *Researcher {
	return &Researcher{
		Base:  agent.NewBase(contracts.AgentResearcher, cfg, log),
		store: store,
	}
}

// Execute enriches the ranked batch from the state bag and announces
// CONTEXT_READY.
func (r *Researcher) Execute(ctx context.Context, actx *agent.Context) *agent.Result {
	raw, ok := actx.Value(KeyWorkItems)
	if !ok {
		return agent.NewFailure(agent.KindNotFound, "no work items in context", false)
	}
	items, ok := raw.([]contracts.ErrorReport)
	if !ok {
		return agent.NewFailure(agent.KindExecutionError,
			fmt.Sprintf("work items have unexpected type %T", raw), false)
	}

	return r.ExecuteWithTimeout(ctx, actx, func(opCtx context.Context) (*agent.Result, error) {
		enrichment := make(map[string][]contracts.PriorResult)
		if r.store != nil {
			for _, item := range items {
				priors, err := r.store.Search(opCtx, item)
				if err != nil {
					r.Log().Error("[Researcher] Lookup failed for %s: %v", item.ID, err)
					continue
				}
				if len(priors) > 0 {
					enrichment[item.Fingerprint] = priors
				}
			}
		}

		if err := r.Publish(bus.Message{
			Type:      bus.MsgContextReady,
			Payload:   map[string]int{"items": len(items), "enriched": len(enrichment)},
			Priority:  bus.PriorityMedium,
			SessionID: actx.SessionID,
		}); err != nil {
			r.Log().Error("[Researcher] Publish failed: %v", err)
		}

		out := agent.NewSuccess(enrichment, 1.0)
		out.Metadata = map[string]interface{}{"enriched": len(enrichment)}
		return out, nil
	})
}
