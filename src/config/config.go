// Package config loads the nightwatch configuration from a YAML file, with
// environment variables overriding the secrets a checked-in file should not
// carry.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"nightwatch-agent/src/agent"
	"nightwatch-agent/src/contracts"
)

// Config is the top-level structure parsed from nightwatch.yaml.
type Config struct {
	// Repository root the analysis tools read from.
	RepoRoot string `yaml:"repo_root"`
	// Model identifier for the analysis loop.
	Model string `yaml:"model"`
	// Run bounds.
	MaxItems int `yaml:"max_items"`
	Workers  int `yaml:"workers"`
	// Whether a failed agentic run falls back to the legacy path.
	FallbackEnabled bool `yaml:"fallback_enabled"`
	// Analysis loop bounds.
	TokenBudget   int `yaml:"token_budget"`
	MaxIterations int `yaml:"max_iterations"`
	MaxPasses     int `yaml:"max_passes"`

	// Postgres DSN for the knowledge store; empty selects the in-memory
	// store. Overridden by NIGHTWATCH_POSTGRES_DSN.
	PostgresDSN string `yaml:"postgres_dsn"`
	// Kafka seed brokers for the bus mirror; empty disables mirroring.
	// Overridden by NIGHTWATCH_KAFKA_BROKERS (comma-separated).
	KafkaBrokers []string `yaml:"kafka_brokers"`

	// Per-agent overrides, keyed by agent type.
	Agents map[string]agent.Config `yaml:"agents"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		RepoRoot:        ".",
		Model:           "production-analyst-v2",
		MaxItems:        10,
		Workers:         3,
		FallbackEnabled: true,
		TokenBudget:     60000,
		MaxIterations:   15,
		MaxPasses:       2,
	}
}

// Load reads and parses a config from the given YAML file path, then applies
// defaults and environment overrides. The file is unmarshaled over Default(),
// so keys it omits keep their default values; fallback_enabled in particular
// stays on unless the file disables it.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	applyDefaults(cfg)
	applyEnv(cfg)
	return cfg, nil
}

// LoadOrDefault loads path when non-empty, otherwise the defaults with
// environment overrides applied.
func LoadOrDefault(path string) (*Config, error) {
	if path != "" {
		return Load(path)
	}
	cfg := Default()
	applyEnv(cfg)
	return cfg, nil
}

// AgentConfig returns the effective per-agent configuration: the global
// bounds with any per-agent override fields applied on top.
func (c *Config) AgentConfig(t contracts.AgentType) agent.Config {
	cfg := agent.Config{
		Name:          string(t),
		Model:         c.Model,
		MaxIterations: c.MaxIterations,
		TokenBudget:   c.TokenBudget,
	}
	override, ok := c.Agents[string(t)]
	if !ok {
		return cfg
	}
	if override.Model != "" {
		cfg.Model = override.Model
	}
	if override.MaxIterations > 0 {
		cfg.MaxIterations = override.MaxIterations
	}
	if override.TokenBudget > 0 {
		cfg.TokenBudget = override.TokenBudget
	}
	if override.TimeoutSeconds > 0 {
		cfg.TimeoutSeconds = override.TimeoutSeconds
	}
	if override.MaxRetries > 0 {
		cfg.MaxRetries = override.MaxRetries
	}
	if len(override.Tools) > 0 {
		cfg.Tools = override.Tools
	}
	return cfg
}

func applyDefaults(cfg *Config) {
	def := Default()
	if cfg.RepoRoot == "" {
		cfg.RepoRoot = def.RepoRoot
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.MaxItems <= 0 {
		cfg.MaxItems = def.MaxItems
	}
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.TokenBudget <= 0 {
		cfg.TokenBudget = def.TokenBudget
	}
	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = def.MaxIterations
	}
	if cfg.MaxPasses <= 0 {
		cfg.MaxPasses = def.MaxPasses
	}
}

func applyEnv(cfg *Config) {
	if dsn := os.Getenv("NIGHTWATCH_POSTGRES_DSN"); dsn != "" {
		cfg.PostgresDSN = dsn
	}
	if brokers := os.Getenv("NIGHTWATCH_KAFKA_BROKERS"); brokers != "" {
		cfg.KafkaBrokers = nil
		for _, b := range strings.Split(brokers, ",") {
			if b = strings.TrimSpace(b); b != "" {
				cfg.KafkaBrokers = append(cfg.KafkaBrokers, b)
			}
		}
	}
	if model := os.Getenv("NIGHTWATCH_MODEL"); model != "" {
		cfg.Model = model
	}
}
