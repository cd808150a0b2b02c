package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"nightwatch-agent/src/agent"
	"nightwatch-agent/src/analysis"
	"nightwatch-agent/src/bus"
	"nightwatch-agent/src/contracts"
	"nightwatch-agent/src/knowledge"
	"nightwatch-agent/src/logger"
	"nightwatch-agent/src/model"
	"nightwatch-agent/src/report"
	"nightwatch-agent/src/state"
)

// fixedCaller returns the same response, or error, for every call.
type fixedCaller struct {
	resp *model.Response
	err  error
}

func (f *fixedCaller) Call(ctx context.Context, req model.Request) (*model.Response, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

type noopExecutor struct{}

func (noopExecutor) Execute(ctx context.Context, name string, args map[string]string) (string, error) {
	return "ok", nil
}

// fixedSource serves a fixed batch.
type fixedSource struct {
	items []contracts.ErrorReport
	err   error
}

func (s *fixedSource) FetchErrors(ctx context.Context) ([]contracts.ErrorReport, error) {
	return s.items, s.err
}

type recordingIssueSink struct {
	titles []string
}

func (s *recordingIssueSink) FileIssue(ctx context.Context, title, body string) error {
	s.titles = append(s.titles, title)
	return nil
}

func sampleErrors() []contracts.ErrorReport {
	return []contracts.ErrorReport{
		{
			ID: "e1", Service: "checkout", ErrorClass: "NullPointerException",
			Message: "nil pointer dereference in cart total",
			StackTrace: []string{"at cart.go:42"}, Count: 40,
		},
		{
			ID: "e2", Service: "billing", ErrorClass: "TimeoutError",
			Message: "invoice sync timeout after 30s",
			StackTrace: []string{"at sync.go:10"}, Count: 8,
		},
	}
}

type fixture struct {
	pipeline *Pipeline
	states   *state.Manager
	bus      *bus.MessageBus
	issues   *recordingIssueSink
	store    *knowledge.MemoryStore
}

func newFixture(t *testing.T, caller model.Caller, opts Options) *fixture {
	t.Helper()
	log := logger.NewSilentLogger()

	loopCfg := analysis.DefaultConfig("test-model")
	store := knowledge.NewMemoryStore()
	engine := analysis.NewEngine(analysis.NewLoop(caller, noopExecutor{}, loopCfg, log), store, loopCfg, log)

	issues := &recordingIssueSink{}
	dispatcher := report.NewDispatcher(issues, nil, log)

	reg := agent.NewRegistry(log)
	RegisterDefaults(reg, engine, store, dispatcher)

	states := state.NewManager()
	mb := bus.NewMessageBus(log)
	source := &fixedSource{items: sampleErrors()}

	return &fixture{
		pipeline: New(reg, states, mb, source, store, dispatcher, opts, log),
		states:   states,
		bus:      mb,
		issues:   issues,
		store:    store,
	}
}

func goodResponse() *model.Response {
	return &model.Response{
		Final: &contracts.ErrorAnalysis{
			RootCause:     "missing null check in cart total",
			Confidence:    contracts.ConfidenceHigh,
			SuggestedFix:  "guard the lookup",
			FilesExamined: []string{"cart.go"},
		},
		Usage: model.Usage{InputTokens: 50},
	}
}

func TestExecuteHappyPath(t *testing.T) {
	f := newFixture(t, &fixedCaller{resp: goodResponse()}, DefaultOptions())

	rep, err := f.pipeline.Execute(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if rep.Fallback {
		t.Error("Happy path must not use the fallback")
	}
	if len(rep.Items) != 2 || rep.AnalyzedCount() != 2 {
		t.Fatalf("Expected 2 analyzed items, got %d/%d", rep.AnalyzedCount(), len(rep.Items))
	}
	// Ranked order: e1 has the higher count.
	if rep.Items[0].Item.ID != "e1" {
		t.Errorf("Ranked order should be preserved, got %s first", rep.Items[0].Item.ID)
	}
	if len(f.issues.titles) != 2 {
		t.Errorf("Expected an issue per analyzed item, got %d", len(f.issues.titles))
	}

	s, err := f.states.Get("s1")
	if err != nil {
		t.Fatalf("State lookup failed: %v", err)
	}
	if s.CurrentPhase != state.PhaseComplete {
		t.Errorf("Expected complete phase, got %s", s.CurrentPhase)
	}
	if len(s.WorkItems) != 2 {
		t.Errorf("Work items should be recorded in state, got %d", len(s.WorkItems))
	}
	if _, ok := s.AgentResults[contracts.AgentReporter]; !ok {
		t.Error("Reporter result should be recorded in state")
	}
	if msgs := f.bus.Messages("s1"); len(msgs) != 0 {
		t.Errorf("Session history should be cleared after the run, got %d messages", len(msgs))
	}
}

func TestExecuteFallbackOnAnalysisFailure(t *testing.T) {
	f := newFixture(t, &fixedCaller{err: errors.New("model unavailable")}, DefaultOptions())

	rep, err := f.pipeline.Execute(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Fallback should rescue the run: %v", err)
	}
	if !rep.Fallback {
		t.Fatal("Expected the legacy fallback report")
	}
	if len(rep.Items) != 2 {
		t.Fatalf("Fallback should cover the ranked items, got %d", len(rep.Items))
	}
	for _, item := range rep.Items {
		if item.Analysis == nil {
			t.Errorf("Fallback item %s should carry a heuristic analysis", item.Item.ID)
		}
	}
	if len(f.issues.titles) != 2 {
		t.Errorf("Fallback should still file issues, got %d", len(f.issues.titles))
	}

	s, err := f.states.Get("s1")
	if err != nil {
		t.Fatalf("State lookup failed: %v", err)
	}
	if s.CurrentPhase != state.PhaseComplete {
		t.Errorf("Fallback run should complete the session, got %s", s.CurrentPhase)
	}
	if s.Metadata["fallback_from"] != string(state.PhaseAnalysis) {
		t.Errorf("Expected the analysis phase to trigger the fallback, got %v", s.Metadata["fallback_from"])
	}
}

func TestExecuteFallbackDisabled(t *testing.T) {
	opts := DefaultOptions()
	opts.FallbackEnabled = false
	f := newFixture(t, &fixedCaller{err: errors.New("model unavailable")}, opts)

	_, err := f.pipeline.Execute(context.Background(), "s1")
	if err == nil {
		t.Fatal("Expected a fatal error with fallback disabled")
	}
	var fatal *FatalPipelineError
	if !errors.As(err, &fatal) {
		t.Fatalf("Expected a FatalPipelineError, got %T: %v", err, err)
	}
	if fatal.Phase != state.PhaseAnalysis {
		t.Errorf("Expected the analysis phase, got %s", fatal.Phase)
	}
}

// downedAgent fails every Execute, like an agent whose backing service is
// unreachable.
type downedAgent struct {
	agent.Base
}

func (a *downedAgent) Execute(ctx context.Context, actx *agent.Context) *agent.Result {
	return agent.NewFailure(agent.KindTimeout, "researcher timed out", true)
}

func downedResearcher(cfg agent.Config, log logger.Logger) (agent.Agent, error) {
	return &downedAgent{Base: agent.NewBase(contracts.AgentResearcher, cfg, log)}, nil
}

func TestExecuteEnrichmentFailureTriggersFallback(t *testing.T) {
	f := newFixture(t, &fixedCaller{resp: goodResponse()}, DefaultOptions())
	f.pipeline.registry.Register(contracts.AgentResearcher, downedResearcher)

	rep, err := f.pipeline.Execute(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Fallback should rescue the run: %v", err)
	}
	if !rep.Fallback {
		t.Fatal("Expected the legacy fallback report")
	}

	s, err := f.states.Get("s1")
	if err != nil {
		t.Fatalf("State lookup failed: %v", err)
	}
	if s.Metadata["fallback_from"] != string(state.PhaseEnrichment) {
		t.Errorf("Expected the enrichment phase to trigger the fallback, got %v", s.Metadata["fallback_from"])
	}
}

func TestExecuteEnrichmentFailureFatalWhenFallbackDisabled(t *testing.T) {
	opts := DefaultOptions()
	opts.FallbackEnabled = false
	f := newFixture(t, &fixedCaller{resp: goodResponse()}, opts)
	f.pipeline.registry.Register(contracts.AgentResearcher, downedResearcher)

	_, err := f.pipeline.Execute(context.Background(), "s1")
	if err == nil {
		t.Fatal("Expected a fatal error with fallback disabled")
	}
	var fatal *FatalPipelineError
	if !errors.As(err, &fatal) {
		t.Fatalf("Expected a FatalPipelineError, got %T: %v", err, err)
	}
	if fatal.Phase != state.PhaseEnrichment {
		t.Errorf("Expected the enrichment phase, got %s", fatal.Phase)
	}
}

func TestExecuteRejectsDuplicateSession(t *testing.T) {
	f := newFixture(t, &fixedCaller{resp: goodResponse()}, DefaultOptions())

	if _, err := f.pipeline.Execute(context.Background(), "s1"); err != nil {
		t.Fatalf("First run failed: %v", err)
	}
	if _, err := f.pipeline.Execute(context.Background(), "s1"); !errors.Is(err, state.ErrSessionExists) {
		t.Errorf("Expected ErrSessionExists, got %v", err)
	}
}

func TestExecuteDryRunSkipsSideEffects(t *testing.T) {
	opts := DefaultOptions()
	opts.DryRun = true
	f := newFixture(t, &fixedCaller{resp: goodResponse()}, opts)

	rep, err := f.pipeline.Execute(context.Background(), "s1")
	if err != nil {
		t.Fatalf("Execute failed: %v", err)
	}
	if rep.AnalyzedCount() != 2 {
		t.Fatalf("Dry run still analyzes, got %d", rep.AnalyzedCount())
	}
	if len(f.issues.titles) != 0 {
		t.Errorf("Dry run must not file issues, got %d", len(f.issues.titles))
	}
}

func TestExecuteLearningPersistsFinalAnalyses(t *testing.T) {
	f := newFixture(t, &fixedCaller{resp: goodResponse()}, DefaultOptions())

	if _, err := f.pipeline.Execute(context.Background(), "s1"); err != nil {
		t.Fatalf("Execute failed: %v", err)
	}

	// Rank filled the fingerprints; look one up through the store.
	s, _ := f.states.Get("s1")
	priors, err := f.store.Search(context.Background(), s.WorkItems[0])
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(priors) == 0 {
		t.Error("Learning phase should persist the final analyses")
	}
}

func TestExecuteIngestionFailureFallsBackToFetch(t *testing.T) {
	f := newFixture(t, &fixedCaller{resp: goodResponse()}, DefaultOptions())
	f.pipeline.source = &fixedSource{err: errors.New("source unavailable")}
	f.pipeline.legacy.source = f.pipeline.source

	_, err := f.pipeline.Execute(context.Background(), "s1")
	if err == nil {
		t.Fatal("Expected failure when the source is down for both paths")
	}
	var fatal *FatalPipelineError
	if !errors.As(err, &fatal) {
		t.Fatalf("Expected a FatalPipelineError, got %T", err)
	}
	if fatal.Phase != state.PhaseIngestion {
		t.Errorf("Expected the ingestion phase, got %s", fatal.Phase)
	}
}

func TestHeuristicAnalysis(t *testing.T) {
	tests := []struct {
		name       string
		item       contracts.ErrorReport
		wantCause  string
		confidence contracts.ConfidenceLevel
	}{
		{
			name: "nil pointer with trace",
			item: contracts.ErrorReport{
				ID: "e1", ErrorClass: "NullPointerException",
				Message: "nil pointer dereference", StackTrace: []string{"at a.go:1"},
			},
			wantCause:  "missing value",
			confidence: contracts.ConfidenceMedium,
		},
		{
			name: "timeout without trace",
			item: contracts.ErrorReport{
				ID: "e2", Message: "request timeout after 30s",
			},
			wantCause:  "deadline",
			confidence: contracts.ConfidenceLow,
		},
		{
			name: "no rule match",
			item: contracts.ErrorReport{
				ID: "e3", Service: "billing", ErrorClass: "WeirdError", Message: "something odd",
			},
			wantCause:  "no heuristic rule matched",
			confidence: contracts.ConfidenceLow,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := HeuristicAnalysis(tt.item)
			if a.ItemID != tt.item.ID {
				t.Errorf("ItemID = %q, want %q", a.ItemID, tt.item.ID)
			}
			if !strings.Contains(a.RootCause, tt.wantCause) {
				t.Errorf("RootCause %q should mention %q", a.RootCause, tt.wantCause)
			}
			if a.Confidence != tt.confidence {
				t.Errorf("Confidence = %s, want %s", a.Confidence, tt.confidence)
			}
		})
	}
}

func TestLegacyRunFetchesWhenItemsMissing(t *testing.T) {
	issues := &recordingIssueSink{}
	dispatcher := report.NewDispatcher(issues, nil, logger.NewSilentLogger())
	source := &fixedSource{items: sampleErrors()}
	legacy := NewLegacy(source, dispatcher, DefaultOptions(), logger.NewSilentLogger())

	rep, err := legacy.Run(context.Background(), "s1", "r1", nil)
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if !rep.Fallback {
		t.Error("Legacy reports are always flagged as fallback")
	}
	if len(rep.Items) != 2 {
		t.Fatalf("Expected the fetched items, got %d", len(rep.Items))
	}
	if len(issues.titles) != 2 {
		t.Errorf("Expected filed issues, got %d", len(issues.titles))
	}
}
