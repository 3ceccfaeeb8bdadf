// Package config loads and validates the Mentor configuration file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the main configuration structure for Mentor.
type Config struct {
	Model    ModelConfig    `yaml:"model"`
	Agent    AgentConfig    `yaml:"agent"`
	Sessions SessionsConfig `yaml:"sessions"`
	Tools    ToolsConfig    `yaml:"tools"`
	Logging  LoggingConfig  `yaml:"logging"`
	Tracing  TracingConfig  `yaml:"tracing"`
}

// ModelConfig selects the model provider and carries per-provider settings.
type ModelConfig struct {
	DefaultProvider string                    `yaml:"default_provider"`
	Providers       map[string]ProviderConfig `yaml:"providers"`
}

type ProviderConfig struct {
	APIKey       string `yaml:"api_key"`
	DefaultModel string `yaml:"default_model"`
	BaseURL      string `yaml:"base_url"`
}

// AgentConfig tunes the turn loop.
type AgentConfig struct {
	MaxRounds    int     `yaml:"max_rounds"`
	WindowSize   int     `yaml:"window_size"`
	SystemPrompt string  `yaml:"system_prompt"`
	MaxTokens    int     `yaml:"max_tokens"`
	Temperature  float32 `yaml:"temperature"`
}

// SessionsConfig selects the session store.
type SessionsConfig struct {
	// DatabasePath is the SQLite file path; empty selects the in-memory
	// store, ":memory:" an ephemeral SQLite database.
	DatabasePath string        `yaml:"database_path"`
	LockTimeout  time.Duration `yaml:"lock_timeout"`
}

type ToolsConfig struct {
	WebSearch WebSearchConfig `yaml:"websearch"`
	Executor  ExecutorConfig  `yaml:"executor"`
}

type WebSearchConfig struct {
	Enabled            bool `yaml:"enabled"`
	DefaultResultCount int  `yaml:"default_result_count"`
	CacheTTL           int  `yaml:"cache_ttl"`
}

type ExecutorConfig struct {
	MaxConcurrent int           `yaml:"max_concurrent"`
	Timeout       time.Duration `yaml:"timeout"`
	MaxRetries    int           `yaml:"max_retries"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

type TracingConfig struct {
	// Endpoint is the OTLP/gRPC collector address; empty disables tracing.
	Endpoint    string  `yaml:"endpoint"`
	ServiceName string  `yaml:"service_name"`
	SampleRate  float64 `yaml:"sample_rate"`
}

// Load reads and parses the configuration file, expands environment
// variables, applies defaults, and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	applyDefaults(&cfg)
	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns a usable configuration without a config file; secrets
// come from the environment.
func Default() *Config {
	cfg := &Config{}
	applyDefaults(cfg)
	applyEnvOverrides(cfg)
	return cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Model.DefaultProvider == "" {
		cfg.Model.DefaultProvider = "anthropic"
	}
	if cfg.Model.Providers == nil {
		cfg.Model.Providers = map[string]ProviderConfig{}
	}
	if cfg.Agent.MaxRounds == 0 {
		cfg.Agent.MaxRounds = 5
	}
	if cfg.Agent.WindowSize == 0 {
		cfg.Agent.WindowSize = 20
	}
	if cfg.Agent.MaxTokens == 0 {
		cfg.Agent.MaxTokens = 4096
	}
	if cfg.Sessions.LockTimeout == 0 {
		cfg.Sessions.LockTimeout = 30 * time.Second
	}
	if cfg.Tools.WebSearch.DefaultResultCount == 0 {
		cfg.Tools.WebSearch.DefaultResultCount = 5
	}
	if cfg.Tools.WebSearch.CacheTTL == 0 {
		cfg.Tools.WebSearch.CacheTTL = 300
	}
	if cfg.Tools.Executor.MaxConcurrent == 0 {
		cfg.Tools.Executor.MaxConcurrent = 5
	}
	if cfg.Tools.Executor.Timeout == 0 {
		cfg.Tools.Executor.Timeout = 30 * time.Second
	}
	if cfg.Tools.Executor.MaxRetries == 0 {
		cfg.Tools.Executor.MaxRetries = 2
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
	if cfg.Tracing.ServiceName == "" {
		cfg.Tracing.ServiceName = "mentor"
	}
	if cfg.Tracing.SampleRate == 0 {
		cfg.Tracing.SampleRate = 1.0
	}
}

// applyEnvOverrides lets API keys come from the environment so they never
// have to live in the config file.
func applyEnvOverrides(cfg *Config) {
	for name, env := range map[string]string{
		"anthropic": "ANTHROPIC_API_KEY",
		"openai":    "OPENAI_API_KEY",
	} {
		key := os.Getenv(env)
		if key == "" {
			continue
		}
		provider := cfg.Model.Providers[name]
		if provider.APIKey == "" {
			provider.APIKey = key
			cfg.Model.Providers[name] = provider
		}
	}
}

// Validate checks the configuration for inconsistencies that would only
// surface later at runtime.
func (c *Config) Validate() error {
	switch c.Model.DefaultProvider {
	case "anthropic", "openai":
	default:
		return fmt.Errorf("config: unknown model provider %q", c.Model.DefaultProvider)
	}
	if c.Agent.MaxRounds < 1 {
		return fmt.Errorf("config: agent.max_rounds must be at least 1, got %d", c.Agent.MaxRounds)
	}
	if c.Agent.WindowSize < 1 {
		return fmt.Errorf("config: agent.window_size must be at least 1, got %d", c.Agent.WindowSize)
	}
	if c.Agent.Temperature < 0 || c.Agent.Temperature > 2 {
		return fmt.Errorf("config: agent.temperature must be in [0, 2], got %g", c.Agent.Temperature)
	}
	if c.Tools.Executor.MaxConcurrent < 1 {
		return fmt.Errorf("config: tools.executor.max_concurrent must be at least 1")
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("config: tracing.sample_rate must be in [0, 1], got %g", c.Tracing.SampleRate)
	}
	return nil
}

// Provider returns the active provider's configuration.
func (c *Config) Provider() ProviderConfig {
	return c.Model.Providers[c.Model.DefaultProvider]
}
