package agents

import (
	"context"
	"fmt"
	"sort"

	"nightwatch-agent/src/agent"
	"nightwatch-agent/src/bus"
	"nightwatch-agent/src/contracts"
	"nightwatch-agent/src/logger"
)

// PatternDetector runs during synthesis: it clusters the analyzed items by
// shared failure shape so the report can surface systemic problems instead
// of a flat item list.
type PatternDetector struct {
	agent.Base
}

// NewPatternDetector constructs the detector.
func NewPatternDetector(cfg agent.Config, log logger.Logger) *PatternDetector {
	return &PatternDetector{Base: agent.NewBase(contracts.AgentPatternDetector, cfg, log)}
}

// Execute clusters the item reports in the state bag and announces
// PATTERNS_FOUND. Only clusters with at least two items are reported.
func (p *PatternDetector) Execute(ctx context.Context, actx *agent.Context) *agent.Result {
	raw, ok := actx.Value(KeyItemReports)
	if !ok {
		return agent.NewFailure(agent.KindNotFound, "no item reports in context", false)
	}
	reports, ok := raw.([]contracts.ItemReport)
	if !ok {
		return agent.NewFailure(agent.KindExecutionError,
			fmt.Sprintf("item reports have unexpected type %T", raw), false)
	}

	return p.ExecuteWithTimeout(ctx, actx, func(opCtx context.Context) (*agent.Result, error) {
		groups := Cluster(reports)

		if err := p.Publish(bus.Message{
			Type:      bus.MsgPatternsFound,
			Payload:   groups,
			Priority:  bus.PriorityMedium,
			SessionID: actx.SessionID,
		}); err != nil {
			p.Log().Error("[PatternDetector] Publish failed: %v", err)
		}

		out := agent.NewSuccess(groups, 1.0)
		out.Metadata = map[string]interface{}{"clusters": len(groups)}
		return out, nil
	})
}

// Cluster groups items two ways: by the pattern strings their analyses
// reported, and by error class across services. Clusters of one are noise
// and dropped.
func Cluster(reports []contracts.ItemReport) []contracts.PatternGroup {
	byLabel := make(map[string]*contracts.PatternGroup)

	add := func(label, itemID string, count int) {
		if label == "" {
			return
		}
		g, ok := byLabel[label]
		if !ok {
			g = &contracts.PatternGroup{Label: label}
			byLabel[label] = g
		}
		for _, id := range g.ItemIDs {
			if id == itemID {
				return
			}
		}
		g.ItemIDs = append(g.ItemIDs, itemID)
		g.Occurrences += count
	}

	for _, r := range reports {
		if r.Analysis != nil {
			for _, pattern := range r.Analysis.Patterns {
				add(pattern, r.Item.ID, r.Item.Count)
			}
		}
		if r.Item.ErrorClass != "" {
			add("class: "+r.Item.ErrorClass, r.Item.ID, r.Item.Count)
		}
	}

	var out []contracts.PatternGroup
	for _, g := range byLabel {
		if len(g.ItemIDs) >= 2 {
			out = append(out, *g)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Occurrences != out[j].Occurrences {
			return out[i].Occurrences > out[j].Occurrences
		}
		return out[i].Label < out[j].Label
	})
	return out
}
