// Package pipeline drives one nightly run through its seven phases,
// delegating agent-driven phases to the registry's agents and falling back
// to the legacy single-pass path when the agentic path fails.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"nightwatch-agent/src/agent"
	"nightwatch-agent/src/agents"
	"nightwatch-agent/src/analysis"
	"nightwatch-agent/src/bus"
	"nightwatch-agent/src/contracts"
	"nightwatch-agent/src/ingest"
	"nightwatch-agent/src/knowledge"
	"nightwatch-agent/src/logger"
	"nightwatch-agent/src/report"
	"nightwatch-agent/src/state"
)

// Options bounds one pipeline run.
type Options struct {
	// Ranked work items per run.
	MaxItems int
	// Concurrent analyzer invocations during the analysis phase.
	Workers int
	// Whether a failed agentic run falls back to the legacy path.
	FallbackEnabled bool
	// When set, no external side effects are performed.
	DryRun bool
	// Per-agent configuration; missing types get a zero Config.
	AgentConfigs map[contracts.AgentType]agent.Config
}

// DefaultOptions returns the production defaults.
func DefaultOptions() Options {
	return Options{
		MaxItems:        10,
		Workers:         3,
		FallbackEnabled: true,
	}
}

// FatalPipelineError reports which phase killed the run after fallback was
// exhausted or disabled.
type FatalPipelineError struct {
	Phase state.ExecutionPhase
	Err   error
}

func (e *FatalPipelineError) Error() string {
	return fmt.Sprintf("pipeline failed in %s phase: %v", e.Phase, e.Err)
}

func (e *FatalPipelineError) Unwrap() error { return e.Err }

// Pipeline owns the phase sequence for one or more sessions. Safe for one
// Execute at a time per session.
type Pipeline struct {
	registry   *agent.Registry
	states     *state.Manager
	bus        *bus.MessageBus
	source     ingest.Source
	store      knowledge.Store // may be nil
	dispatcher *report.Dispatcher
	legacy     *Legacy
	opts       Options
	log        logger.Logger
}

// New assembles a pipeline. The registry must already hold constructors for
// every agent type the phases use.
func New(reg *agent.Registry, states *state.Manager, mb *bus.MessageBus, source ingest.Source, store knowledge.Store, dispatcher *report.Dispatcher, opts Options, log logger.Logger) *Pipeline {
	if log == nil {
		log = logger.NewSilentLogger()
	}
	if opts.MaxItems <= 0 {
		opts.MaxItems = DefaultOptions().MaxItems
	}
	if opts.Workers <= 0 {
		opts.Workers = DefaultOptions().Workers
	}
	return &Pipeline{
		registry:   reg,
		states:     states,
		bus:        mb,
		source:     source,
		store:      store,
		dispatcher: dispatcher,
		legacy:     NewLegacy(source, dispatcher, opts, log),
		opts:       opts,
		log:        log,
	}
}

// RegisterDefaults installs the standard constructor for each agent type,
// closing over the pipeline's shared collaborators.
func RegisterDefaults(reg *agent.Registry, engine *analysis.Engine, store knowledge.Store, dispatcher *report.Dispatcher) {
	reg.Register(contracts.AgentAnalyzer, func(cfg agent.Config, log logger.Logger) (agent.Agent, error) {
		return agents.NewAnalyzer(cfg, engine, log), nil
	})
	reg.Register(contracts.AgentResearcher, func(cfg agent.Config, log logger.Logger) (agent.Agent, error) {
		return agents.NewResearcher(cfg, store, log), nil
	})
	reg.Register(contracts.AgentPatternDetector, func(cfg agent.Config, log logger.Logger) (agent.Agent, error) {
		return agents.NewPatternDetector(cfg, log), nil
	})
	reg.Register(contracts.AgentValidator, func(cfg agent.Config, log logger.Logger) (agent.Agent, error) {
		return agents.NewValidator(cfg, engine, log), nil
	})
	reg.Register(contracts.AgentReporter, func(cfg agent.Config, log logger.Logger) (agent.Agent, error) {
		return agents.NewReporter(cfg, dispatcher, log), nil
	})
}

// run carries the mutable state of one Execute call.
type run struct {
	sessionID string
	runID     string
	actx      *agent.Context
	agents    map[contracts.AgentType]agent.Agent
	items     []contracts.ErrorReport
	reports   []contracts.ItemReport
	patterns  []contracts.PatternGroup
	report    *contracts.AnalysisReport
}

// Execute runs the full agentic pipeline for sessionID. On a phase failure
// it falls back to the legacy path when enabled, otherwise it returns a
// FatalPipelineError naming the phase.
func (p *Pipeline) Execute(ctx context.Context, sessionID string) (*contracts.AnalysisReport, error) {
	if _, err := p.states.Initialize(sessionID); err != nil {
		return nil, err
	}
	defer p.bus.ClearSession(sessionID)

	r := &run{
		sessionID: sessionID,
		runID:     uuid.NewString(),
		agents:    make(map[contracts.AgentType]agent.Agent),
	}
	r.actx = agent.NewContext(sessionID, r.runID)
	r.actx.DryRun = p.opts.DryRun

	if err := p.initializeAgents(r); err != nil {
		return nil, &FatalPipelineError{Phase: state.PhaseIngestion, Err: err}
	}
	defer func() {
		for _, a := range r.agents {
			a.Cleanup()
		}
	}()

	phases := []struct {
		phase state.ExecutionPhase
		fn    func(context.Context, *run) error
	}{
		{state.PhaseIngestion, p.runIngestion},
		{state.PhaseEnrichment, p.runEnrichment},
		{state.PhaseAnalysis, p.runAnalysis},
		{state.PhaseSynthesis, p.runSynthesis},
		{state.PhaseReporting, p.runReporting},
		{state.PhaseAction, p.runAction},
		{state.PhaseLearning, p.runLearning},
	}

	for _, ph := range phases {
		if _, err := p.states.SetPhase(sessionID, ph.phase); err != nil {
			return nil, &FatalPipelineError{Phase: ph.phase, Err: err}
		}
		p.log.Info("[Pipeline] Session %s: %s phase", sessionID, ph.phase)

		if err := ph.fn(ctx, r); err != nil {
			p.log.Error("[Pipeline] Session %s: %s phase failed: %v", sessionID, ph.phase, err)
			if p.opts.FallbackEnabled {
				return p.runFallback(ctx, r, ph.phase, err)
			}
			return nil, &FatalPipelineError{Phase: ph.phase, Err: err}
		}
	}

	if _, err := p.states.Complete(sessionID); err != nil {
		return nil, err
	}
	return r.report, nil
}

func (p *Pipeline) initializeAgents(r *run) error {
	for _, t := range contracts.AgentTypes() {
		cfg := p.opts.AgentConfigs[t]
		a, err := p.registry.Create(t, cfg, p.log)
		if err != nil {
			return err
		}
		if err := a.Initialize(p.bus); err != nil {
			return fmt.Errorf("initializing %s: %w", t, err)
		}
		r.agents[t] = a
	}
	return nil
}

// runFallback hands the run to the legacy path. The legacy path reuses the
// ranked items when ingestion already produced them.
func (p *Pipeline) runFallback(ctx context.Context, r *run, failed state.ExecutionPhase, cause error) (*contracts.AnalysisReport, error) {
	p.log.Info("[Pipeline] Session %s: falling back to legacy path after %s failure", r.sessionID, failed)
	if _, err := p.states.Update(r.sessionID, func(s *state.PipelineState) {
		s.Metadata["fallback_from"] = string(failed)
		s.Metadata["fallback_cause"] = cause.Error()
	}); err != nil {
		return nil, err
	}

	rep, err := p.legacy.Run(ctx, r.sessionID, r.runID, r.items)
	if err != nil {
		return nil, &FatalPipelineError{Phase: failed, Err: fmt.Errorf("legacy fallback also failed: %w (original: %v)", err, cause)}
	}
	if _, err := p.states.Complete(r.sessionID); err != nil {
		return nil, err
	}
	return rep, nil
}

// recordResult stores an agent's latest result in the session state.
func (p *Pipeline) recordResult(sessionID string, t contracts.AgentType, res *agent.Result) {
	if _, err := p.states.Update(sessionID, func(s *state.PipelineState) {
		s.AgentResults[t] = *res
	}); err != nil {
		p.log.Error("[Pipeline] Failed to record %s result: %v", t, err)
	}
}

// runAgent executes one agent with a single bounded retry on recoverable
// failures.
func (p *Pipeline) runAgent(ctx context.Context, r *run, t contracts.AgentType) (*agent.Result, error) {
	a := r.agents[t]
	res := a.Execute(ctx, r.actx)
	if !res.Success && res.Recoverable {
		if _, err := p.states.IncrementIteration(r.sessionID); err == nil {
			p.log.Info("[Pipeline] Retrying %s after recoverable failure: %s", t, res.ErrorMessage)
			res = a.Execute(ctx, r.actx)
		}
	}
	p.recordResult(r.sessionID, t, res)
	if !res.Success {
		return res, fmt.Errorf("%s failed: %s", t, res.ErrorMessage)
	}
	return res, nil
}

func (p *Pipeline) runIngestion(ctx context.Context, r *run) error {
	raw, err := p.source.FetchErrors(ctx)
	if err != nil {
		return fmt.Errorf("fetching errors: %w", err)
	}
	r.items = ingest.Rank(raw, p.opts.MaxItems)
	r.actx.Set(agents.KeyWorkItems, r.items)

	if _, err := p.states.Update(r.sessionID, func(s *state.PipelineState) {
		s.WorkItems = r.items
		s.Metadata["fetched"] = len(raw)
	}); err != nil {
		return err
	}

	if err := p.bus.Broadcast(bus.Message{
		Type:      bus.MsgErrorsReady,
		Payload:   map[string]int{"items": len(r.items)},
		Priority:  bus.PriorityHigh,
		SessionID: r.sessionID,
	}); err != nil {
		p.log.Error("[Pipeline] ERRORS_READY broadcast failed: %v", err)
	}

	p.log.Info("[Pipeline] Session %s: ranked %d of %d fetched errors", r.sessionID, len(r.items), len(raw))
	return nil
}

// runEnrichment attaches prior findings. The researcher absorbs knowledge
// store failures itself, so an error here means the researcher died (timeout,
// panic) and the phase fails like any other agent-driven phase.
func (p *Pipeline) runEnrichment(ctx context.Context, r *run) error {
	res, err := p.runAgent(ctx, r, contracts.AgentResearcher)
	if err != nil {
		return err
	}
	if enrichment, ok := res.Data.(map[string][]contracts.PriorResult); ok {
		r.actx.Set(agents.KeyEnrichment, enrichment)
	}
	return nil
}

// runAnalysis fans the ranked items out across the worker pool. A single
// item's failure skips that item; the phase fails only when every item
// failed.
func (p *Pipeline) runAnalysis(ctx context.Context, r *run) error {
	if len(r.items) == 0 {
		r.reports = nil
		return nil
	}

	analyzer := r.agents[contracts.AgentAnalyzer]
	r.reports = make([]contracts.ItemReport, len(r.items))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)
	for i, item := range r.items {
		i, item := i, item
		g.Go(func() error {
			itemCtx := r.actx.Clone()
			itemCtx.Set(agents.KeyWorkItem, item)

			res := analyzer.Execute(gctx, itemCtx)
			if !res.Success {
				p.log.Error("[Pipeline] Item %s skipped: %s", item.ID, res.ErrorMessage)
				r.reports[i] = contracts.ItemReport{
					Item: item, Skipped: true,
					Note: fmt.Sprintf("analyzer %s: %s", res.ErrorKind, res.ErrorMessage),
				}
				return nil
			}
			pass, ok := res.Data.(*analysis.PassResult)
			if !ok || pass.Analysis == nil {
				r.reports[i] = contracts.ItemReport{Item: item, Skipped: true, Note: "analyzer returned no analysis"}
				return nil
			}
			r.reports[i] = contracts.ItemReport{Item: item, Analysis: pass.Analysis}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	analyzed := 0
	for _, rep := range r.reports {
		if !rep.Skipped {
			analyzed++
		}
	}
	p.recordResult(r.sessionID, contracts.AgentAnalyzer, agent.NewSuccess(
		map[string]int{"analyzed": analyzed, "skipped": len(r.reports) - analyzed}, 1.0))
	if analyzed == 0 {
		return fmt.Errorf("all %d items failed analysis", len(r.items))
	}
	return nil
}

// runSynthesis clusters patterns and gates quality, in that order.
func (p *Pipeline) runSynthesis(ctx context.Context, r *run) error {
	r.actx.Set(agents.KeyItemReports, r.reports)

	res, err := p.runAgent(ctx, r, contracts.AgentPatternDetector)
	if err != nil {
		return err
	}
	if groups, ok := res.Data.([]contracts.PatternGroup); ok {
		r.patterns = groups
	}

	res, err = p.runAgent(ctx, r, contracts.AgentValidator)
	if err != nil {
		return err
	}
	if gated, ok := res.Data.([]contracts.ItemReport); ok {
		r.reports = gated
		r.actx.Set(agents.KeyItemReports, gated)
	}
	return nil
}

// runReporting assembles the report artifact.
func (p *Pipeline) runReporting(ctx context.Context, r *run) error {
	r.report = &contracts.AnalysisReport{
		SessionID:   r.sessionID,
		RunID:       r.runID,
		GeneratedAt: time.Now(),
		Items:       r.reports,
		Patterns:    r.patterns,
	}
	r.actx.Set(agents.KeyReport, r.report)

	_, err := p.states.Update(r.sessionID, func(s *state.PipelineState) {
		s.Metadata["analyzed"] = r.report.AnalyzedCount()
		s.Metadata["patterns"] = len(r.patterns)
	})
	return err
}

// runAction performs the external side effects through the reporter agent.
func (p *Pipeline) runAction(ctx context.Context, r *run) error {
	_, err := p.runAgent(ctx, r, contracts.AgentReporter)
	return err
}

// runLearning persists the gated analyses so future runs seed from them.
// The validator may have replaced analyses after the loop's own write-back,
// so the final versions are written here. Store failures degrade.
func (p *Pipeline) runLearning(ctx context.Context, r *run) error {
	if p.store == nil || r.actx.DryRun {
		return nil
	}
	written := 0
	for _, rep := range r.reports {
		if rep.Skipped || rep.Analysis == nil {
			continue
		}
		err := p.store.Write(ctx, contracts.PriorResult{
			Fingerprint:  rep.Item.Fingerprint,
			RootCause:    rep.Analysis.RootCause,
			Confidence:   rep.Analysis.Confidence,
			SuggestedFix: rep.Analysis.SuggestedFix,
			SessionID:    r.sessionID,
			AnalyzedAt:   time.Now(),
		})
		if err != nil {
			p.log.Error("[Pipeline] Learning write failed for %s: %v", rep.Item.ID, err)
			continue
		}
		written++
	}
	_, err := p.states.Update(r.sessionID, func(s *state.PipelineState) {
		s.Metadata["learned"] = written
	})
	return err
}
