package analysis

import (
	"context"
	"fmt"
	"strings"

	"nightwatch-agent/src/contracts"
	"nightwatch-agent/src/logger"
	"nightwatch-agent/src/model"
	"nightwatch-agent/src/tools"
)

// Config bounds one item's analysis.
type Config struct {
	// Model identifier for every call.
	Model string
	// Per-item token budget across all iterations. Exceeding it forces
	// the wrap-up call; total spend never exceeds budget + one call.
	TokenBudget int
	// Global iteration ceiling no complexity class may exceed.
	HardIterationCap int
	// Base deliberation allowance, decayed per iteration.
	ThinkingBase int
	// Maximum analysis passes per item (>= 1; 2 enables the retry pass).
	MaxPasses int
	// Conversation length that triggers compaction.
	CompactAfter int
	// Tool results preserved verbatim during compaction.
	KeepRecentToolResults int
	// Byte cap applied to each tool result before reinsertion.
	MaxToolResultBytes int
	// Tool allowlist advertised to the model; empty allows all.
	Tools []string
}

// DefaultConfig returns the production defaults.
func DefaultConfig(modelID string) Config {
	return Config{
		Model:                 modelID,
		TokenBudget:           60000,
		HardIterationCap:      15,
		ThinkingBase:          4096,
		MaxPasses:             2,
		CompactAfter:          24,
		KeepRecentToolResults: 4,
		MaxToolResultBytes:    8 * 1024,
	}
}

// PassResult is the outcome of one full pass over a single work item.
type PassResult struct {
	// Pass number, 1-based.
	Pass int `json:"pass"`
	// The produced analysis; never nil for a completed pass.
	Analysis *contracts.ErrorAnalysis `json:"analysis"`
	// Iterations the pass consumed.
	Iterations int `json:"iterations"`
	// Tokens the pass consumed.
	TokensUsed int `json:"tokens_used"`
	// Files read during the pass.
	FilesExamined []string `json:"files_examined,omitempty"`
	// Patterns the analysis reported.
	Patterns []string `json:"patterns,omitempty"`
	// True when the token budget forced the wrap-up call.
	BudgetExhausted bool `json:"budget_exhausted,omitempty"`
}

const systemPrompt = `You are a production error analyst. Investigate the reported error using the available tools, diagnose the root cause, and finish with a structured analysis containing root_cause, confidence, suggested_fix, files_examined, patterns and next_steps. Read only the files you need.`

const wrapUpInstruction = `Wrap up now. Produce your final structured analysis with whatever you have learned so far. Do not request any more tools.`

// Loop runs the exploring -> finalizing -> done state machine for one pass.
type Loop struct {
	caller model.Caller
	tools  tools.Executor
	cfg    Config
	log    logger.Logger
}

// NewLoop creates a loop over the given model and tool boundaries.
func NewLoop(caller model.Caller, executor tools.Executor, cfg Config, log logger.Logger) *Loop {
	if log == nil {
		log = logger.NewSilentLogger()
	}
	return &Loop{caller: caller, tools: executor, cfg: cfg, log: log}
}

// RunPass executes one pass over item. seed turns (prior findings, run
// context, previous-pass summary) are prepended to the conversation. The
// returned PassResult always carries a non-nil Analysis: when the model
// never finalizes, a low-confidence placeholder records the failure.
func (l *Loop) RunPass(ctx context.Context, item contracts.ErrorReport, pass int, seed []model.Turn) (*PassResult, error) {
	complexity := Classify(item)
	ceiling := IterationCeiling(complexity, l.cfg.HardIterationCap)

	res := &PassResult{Pass: pass}
	convo := append([]model.Turn{}, seed...)
	convo = append(convo, model.Turn{Role: model.RoleUser, Content: describeItem(item)})

	l.log.Debug("[Loop] Item %s pass %d: complexity=%s ceiling=%d", item.ID, pass, complexity, ceiling)

	for res.Iterations < ceiling {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if l.cfg.TokenBudget > 0 && res.TokensUsed >= l.cfg.TokenBudget {
			res.BudgetExhausted = true
			break
		}

		res.Iterations++
		thinking := ThinkingBudget(l.cfg.ThinkingBase, res.Iterations, ceiling)

		resp, err := l.call(ctx, convo, thinking)
		if err != nil {
			return nil, fmt.Errorf("model call failed on iteration %d: %w", res.Iterations, err)
		}
		res.TokensUsed += resp.Usage.Total()

		if resp.Final != nil {
			l.finalize(res, item, resp.Final)
			return res, nil
		}
		if resp.ToolRequest == nil {
			// Neither a tool request nor a final result; nudge once by
			// treating it as an empty exploration step.
			convo = append(convo, model.Turn{Role: model.RoleUser, Content: "Continue, or produce your final analysis."})
			continue
		}

		convo = l.executeTool(ctx, convo, resp.ToolRequest, res)
		convo = Compact(convo, l.cfg.CompactAfter, l.cfg.KeepRecentToolResults)
	}

	// Ceiling or budget hit without a final result: exactly one wrap-up
	// call, accepted regardless of confidence.
	convo = append(convo, model.Turn{Role: model.RoleUser, Content: wrapUpInstruction})
	thinking := int(float64(l.cfg.ThinkingBase) * thinkingFloor)
	resp, err := l.call(ctx, convo, thinking)
	if err == nil {
		res.TokensUsed += resp.Usage.Total()
	}
	if err == nil && resp.Final != nil {
		l.finalize(res, item, resp.Final)
		return res, nil
	}

	// The wrap-up call failed or still asked for tools. Record the
	// non-convergence as a low-confidence analysis so pass selection
	// always has something to choose from.
	res.Analysis = &contracts.ErrorAnalysis{
		ItemID:     item.ID,
		RootCause:  "analysis did not converge within its iteration and token budget",
		Confidence: contracts.ConfidenceLow,
		NextSteps:  []string{"re-run with a larger budget", "inspect the error manually"},
		Summary:    fmt.Sprintf("inconclusive after %d iterations and %d tokens", res.Iterations, res.TokensUsed),
	}
	return res, nil
}

func (l *Loop) call(ctx context.Context, convo []model.Turn, thinking int) (*model.Response, error) {
	return l.caller.Call(ctx, model.Request{
		Model:          l.cfg.Model,
		SystemPrompt:   systemPrompt,
		Tools:          tools.Specs(l.cfg.Tools),
		Conversation:   convo,
		ThinkingBudget: thinking,
	})
}

// executeTool runs one requested tool and appends the request and its
// (truncated) result to the conversation. Tool failures become tool turns
// too; the model decides what to do with them.
func (l *Loop) executeTool(ctx context.Context, convo []model.Turn, req *model.ToolRequest, res *PassResult) []model.Turn {
	convo = append(convo, model.Turn{
		Role:    model.RoleAssistant,
		Content: fmt.Sprintf("requesting tool %s(%v)", req.Name, req.Arguments),
	})

	out, err := l.tools.Execute(ctx, req.Name, req.Arguments)
	if err != nil {
		out = fmt.Sprintf("tool error: %v", err)
	} else if req.Name == tools.ToolReadFile {
		res.FilesExamined = append(res.FilesExamined, req.Arguments["path"])
	}

	max := l.cfg.MaxToolResultBytes
	if max <= 0 {
		max = 8 * 1024
	}
	convo = append(convo, model.Turn{
		Role:     model.RoleTool,
		ToolName: req.Name,
		Content:  tools.Truncate(out, max),
	})
	return convo
}

func (l *Loop) finalize(res *PassResult, item contracts.ErrorReport, analysis *contracts.ErrorAnalysis) {
	final := *analysis
	final.ItemID = item.ID
	if final.Confidence == "" {
		final.Confidence = contracts.ConfidenceLow
	}
	// Merge files the loop observed with files the model claims.
	final.FilesExamined = mergeUnique(res.FilesExamined, final.FilesExamined)
	res.Analysis = &final
	res.FilesExamined = final.FilesExamined
	res.Patterns = final.Patterns
}

// describeItem renders the work item into the opening user turn.
func describeItem(item contracts.ErrorReport) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Error to analyze:\nService: %s\nClass: %s\nMessage: %s\nOccurrences: %d\n",
		item.Service, item.ErrorClass, item.Message, item.Count)
	if len(item.StackTrace) > 0 {
		trace := item.StackTrace
		if len(trace) > 20 {
			trace = trace[:20]
		}
		fmt.Fprintf(&b, "Stack trace (top):\n%s\n", strings.Join(trace, "\n"))
	}
	return b.String()
}

func mergeUnique(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, s := range append(append([]string{}, a...), b...) {
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
