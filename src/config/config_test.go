package config

import (
	"os"
	"path/filepath"
	"testing"

	"nightwatch-agent/src/contracts"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "nightwatch.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write config: %v", err)
	}
	return path
}

func TestLoad(t *testing.T) {
	path := writeConfig(t, `
repo_root: /srv/app
model: analyst-large
max_items: 5
workers: 2
fallback_enabled: true
token_budget: 30000
postgres_dsn: postgres://localhost/nightwatch
kafka_brokers:
  - broker-1:9092
  - broker-2:9092
agents:
  analyzer:
    timeout_seconds: 300
    tools: [read_file, search_code]
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.RepoRoot != "/srv/app" || cfg.Model != "analyst-large" {
		t.Errorf("Unexpected base fields: %+v", cfg)
	}
	if cfg.MaxItems != 5 || cfg.Workers != 2 || cfg.TokenBudget != 30000 {
		t.Errorf("Unexpected bounds: %+v", cfg)
	}
	if len(cfg.KafkaBrokers) != 2 {
		t.Errorf("Expected two brokers, got %v", cfg.KafkaBrokers)
	}
	// Omitted fields pick up defaults.
	if cfg.MaxIterations != 15 || cfg.MaxPasses != 2 {
		t.Errorf("Defaults not applied: iterations=%d passes=%d", cfg.MaxIterations, cfg.MaxPasses)
	}
}

func TestLoadOmittedFallbackStaysEnabled(t *testing.T) {
	path := writeConfig(t, `
repo_root: /srv/app
model: analyst-large
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !cfg.FallbackEnabled {
		t.Error("A file that omits fallback_enabled should keep the default of true")
	}
}

func TestLoadExplicitFallbackDisabled(t *testing.T) {
	path := writeConfig(t, "fallback_enabled: false\n")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.FallbackEnabled {
		t.Error("An explicit fallback_enabled: false should be honored")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Fatal("Expected an error for a missing file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	path := writeConfig(t, "model: [unclosed")
	if _, err := Load(path); err == nil {
		t.Fatal("Expected a parse error")
	}
}

func TestLoadOrDefaultWithoutPath(t *testing.T) {
	cfg, err := LoadOrDefault("")
	if err != nil {
		t.Fatalf("LoadOrDefault failed: %v", err)
	}
	if cfg.MaxItems != 10 || !cfg.FallbackEnabled {
		t.Errorf("Expected defaults, got %+v", cfg)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("NIGHTWATCH_POSTGRES_DSN", "postgres://db/override")
	t.Setenv("NIGHTWATCH_KAFKA_BROKERS", "a:9092, b:9092")
	t.Setenv("NIGHTWATCH_MODEL", "analyst-env")

	path := writeConfig(t, `
postgres_dsn: postgres://db/from-file
model: analyst-file
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.PostgresDSN != "postgres://db/override" {
		t.Errorf("Env should override the file DSN, got %q", cfg.PostgresDSN)
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "b:9092" {
		t.Errorf("Broker list should be split and trimmed, got %v", cfg.KafkaBrokers)
	}
	if cfg.Model != "analyst-env" {
		t.Errorf("Env should override the file model, got %q", cfg.Model)
	}
}

func TestAgentConfig(t *testing.T) {
	path := writeConfig(t, `
model: analyst-large
token_budget: 40000
agents:
  analyzer:
    timeout_seconds: 300
    token_budget: 80000
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	analyzer := cfg.AgentConfig(contracts.AgentAnalyzer)
	if analyzer.TokenBudget != 80000 || analyzer.TimeoutSeconds != 300 {
		t.Errorf("Analyzer override not applied: %+v", analyzer)
	}
	if analyzer.Model != "analyst-large" {
		t.Errorf("Analyzer should inherit the global model, got %q", analyzer.Model)
	}

	reporter := cfg.AgentConfig(contracts.AgentReporter)
	if reporter.TokenBudget != 40000 || reporter.TimeoutSeconds != 0 {
		t.Errorf("Reporter should carry the global bounds, got %+v", reporter)
	}
	if reporter.Name != "reporter" {
		t.Errorf("Agent name should default to its type, got %q", reporter.Name)
	}
}
