// Package main provides the nightwatch entry point: the nightly
// error-analysis pipeline as a one-shot CLI run or an MCP server.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"nightwatch-agent/src/agent"
	"nightwatch-agent/src/analysis"
	"nightwatch-agent/src/bus"
	"nightwatch-agent/src/config"
	"nightwatch-agent/src/contracts"
	"nightwatch-agent/src/ingest"
	"nightwatch-agent/src/knowledge"
	"nightwatch-agent/src/logger"
	"nightwatch-agent/src/mcp"
	"nightwatch-agent/src/model"
	"nightwatch-agent/src/pipeline"
	"nightwatch-agent/src/report"
	"nightwatch-agent/src/state"
	"nightwatch-agent/src/tools"
)

var (
	cfgPath    string
	errorsFile string
	sessionID  string
	dryRun     bool
	debug      bool
)

var rootCmd = &cobra.Command{
	Use:   "nightwatch",
	Short: "Nightwatch - nightly production error analysis",
	Long: `Nightwatch ingests the night's production errors, ranks them, and
drives a team of agents through analysis, synthesis and reporting.

When the agentic path fails (or no model backend is configured) it falls
back to a deterministic heuristic pass, so a nightly report always lands.`,
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one analysis pipeline over an error report file",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := newLogger()
		cfg, err := config.LoadOrDefault(cfgPath)
		if err != nil {
			return err
		}

		p, cleanup, err := buildPipeline(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		defer cleanup()

		if sessionID == "" {
			sessionID = fmt.Sprintf("nightly-%s-%s", time.Now().Format("20060102"), uuid.NewString()[:8])
		}

		rep, err := p.Execute(cmd.Context(), sessionID)
		if err != nil {
			return err
		}

		out, err := json.MarshalIndent(rep, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), string(out))
		return nil
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Serve the pipeline over the Model Context Protocol on stdio",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := logger.NewSilentLogger() // stdio carries the protocol
		cfg, err := config.LoadOrDefault(cfgPath)
		if err != nil {
			return err
		}

		p, cleanup, err := buildPipeline(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		defer cleanup()

		return mcp.NewServer(p).Run()
	},
}

func newLogger() logger.Logger {
	l := logger.NewConsoleLogger()
	l.DebugEnabled = debug
	return l
}

// buildPipeline assembles the full stack from the configuration. The
// returned cleanup releases the store and mirror.
func buildPipeline(ctx context.Context, cfg *config.Config, log logger.Logger) (*pipeline.Pipeline, func(), error) {
	if errorsFile == "" {
		return nil, nil, fmt.Errorf("--errors is required")
	}

	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var store knowledge.Store
	if cfg.PostgresDSN != "" {
		pg, err := knowledge.NewPostgresStore(cfg.PostgresDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connecting knowledge store: %w", err)
		}
		if err := pg.EnsureSchema(ctx); err != nil {
			pg.Close()
			return nil, nil, fmt.Errorf("preparing knowledge store: %w", err)
		}
		store = pg
	} else {
		store = knowledge.NewMemoryStore()
	}
	closers = append(closers, func() {
		if err := store.Close(); err != nil {
			log.Error("[Main] Closing knowledge store: %v", err)
		}
	})

	mb := bus.NewMessageBus(log)
	closers = append(closers, mb.Close)
	if len(cfg.KafkaBrokers) > 0 {
		mirror, err := bus.NewMirror(cfg.KafkaBrokers)
		if err != nil {
			log.Error("[Main] Bus mirror disabled: %v", err)
		} else {
			mb.AttachMirror(mirror)
			closers = append(closers, mirror.Close)
		}
	}

	// Until a model backend is wired in, agentic runs fail fast and the
	// pipeline serves its legacy heuristic report.
	caller := model.NewResilientCaller(model.Unavailable{}, model.DefaultRetryConfig(), log)

	analyzerCfg := cfg.AgentConfig(contracts.AgentAnalyzer)
	loopCfg := analysis.DefaultConfig(analyzerCfg.Model)
	loopCfg.TokenBudget = analyzerCfg.TokenBudget
	loopCfg.HardIterationCap = analyzerCfg.MaxIterations
	loopCfg.MaxPasses = cfg.MaxPasses
	loopCfg.Tools = analyzerCfg.Tools

	executor := tools.NewLocal(cfg.RepoRoot, nil)
	engine := analysis.NewEngine(analysis.NewLoop(caller, executor, loopCfg, log), store, loopCfg, log)

	dispatcher := report.NewDispatcher(&report.LogIssueSink{Log: log}, &report.LogChatSink{Log: log}, log)

	reg := agent.NewRegistry(log)
	pipeline.RegisterDefaults(reg, engine, store, dispatcher)

	agentConfigs := make(map[contracts.AgentType]agent.Config)
	for _, t := range contracts.AgentTypes() {
		agentConfigs[t] = cfg.AgentConfig(t)
	}

	opts := pipeline.Options{
		MaxItems:        cfg.MaxItems,
		Workers:         cfg.Workers,
		FallbackEnabled: cfg.FallbackEnabled,
		DryRun:          dryRun,
		AgentConfigs:    agentConfigs,
	}

	p := pipeline.New(reg, state.NewManager(), mb, ingest.NewFileSource(errorsFile), store, dispatcher, opts, log)
	return p, cleanup, nil
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "", "path to nightwatch.yaml")
	rootCmd.PersistentFlags().StringVar(&errorsFile, "errors", "", "path to the JSON error report file")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "enable debug logging")

	runCmd.Flags().StringVar(&sessionID, "session", "", "session identifier (generated when omitted)")
	runCmd.Flags().BoolVar(&dryRun, "dry-run", false, "analyze without filing issues or posting summaries")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(mcpCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
