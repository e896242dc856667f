// Package config provides configuration management with hot-reload support.
// It uses fsnotify to watch for file changes and atomic pointer swaps for
// zero-downtime updates.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/blueberrycongee/tutormux/internal/generate"
	"github.com/blueberrycongee/tutormux/internal/store"
)

// Config represents the complete engine configuration.
type Config struct {
	Server     ServerConfig        `yaml:"server"`
	Store      store.Config        `yaml:"store"`
	Generator  generate.HTTPConfig `yaml:"generator"`
	Generation GenerationConfig    `yaml:"generation"`
	Whitelist  WhitelistConfig     `yaml:"whitelist"`
	Logging    LoggingConfig       `yaml:"logging"`
	Metrics    MetricsConfig       `yaml:"metrics"`
	Tracing    TracingConfig       `yaml:"tracing"`
}

// ServerConfig contains HTTP server settings.
type ServerConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	IdleTimeout  time.Duration `yaml:"idle_timeout"`
}

// GenerationConfig contains settings for the generation coordinator.
type GenerationConfig struct {
	MaxAttempts       int           `yaml:"max_attempts"`        // Shared budget across retries (default: 3)
	BackoffBase       time.Duration `yaml:"backoff_base"`        // First retry delay, doubled per retry (default: 500ms)
	AttemptTimeout    time.Duration `yaml:"attempt_timeout"`     // Per-attempt deadline (default: 30s)
	PromptTokenBudget int           `yaml:"prompt_token_budget"` // Prompt size bound in tokens (default: 1024)
	RatePerSecond     float64       `yaml:"rate_per_second"`     // Generation call rate limit; 0 disables
	FallbackEnabled   bool          `yaml:"fallback_enabled"`    // Serve a generic answer when generation is exhausted
}

// WhitelistConfig locates the simulation whitelist file.
type WhitelistConfig struct {
	Path  string `yaml:"path"`
	Watch bool   `yaml:"watch"` // Hot-reload the table when the file changes
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// TracingConfig contains OpenTelemetry tracing settings.
type TracingConfig struct {
	Enabled     bool    `yaml:"enabled"`
	Endpoint    string  `yaml:"endpoint"`     // OTLP endpoint (e.g., "localhost:4317")
	ServiceName string  `yaml:"service_name"` // Service name for traces
	SampleRate  float64 `yaml:"sample_rate"`  // Sampling rate (0.0 to 1.0)
	Insecure    bool    `yaml:"insecure"`     // Use insecure connection (no TLS)
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 120 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		Store: store.DefaultConfig(),
		Generation: GenerationConfig{
			MaxAttempts:       3,
			BackoffBase:       500 * time.Millisecond,
			AttemptTimeout:    30 * time.Second,
			PromptTokenBudget: 1024,
			FallbackEnabled:   true,
		},
		Whitelist: WhitelistConfig{
			Path:  "whitelist.yaml",
			Watch: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Tracing: TracingConfig{
			Enabled:     false,
			Endpoint:    "localhost:4317",
			ServiceName: "tutormux",
			SampleRate:  1.0,
			Insecure:    true,
		},
	}
}

// LoadFromFile reads and parses a YAML configuration file.
// Environment variables in the format ${VAR_NAME} are expanded.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return cfg, nil
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	switch c.Store.Durable.Type {
	case store.DurableSQLite, store.DurableRedis, store.DurablePostgres, "":
	default:
		return fmt.Errorf("invalid durable store type: %s", c.Store.Durable.Type)
	}
	if c.Store.Durable.Capacity <= 0 {
		return fmt.Errorf("store.durable.capacity must be positive")
	}

	if c.Generation.MaxAttempts <= 0 {
		return fmt.Errorf("generation.max_attempts must be positive")
	}
	if c.Generation.BackoffBase < 0 {
		return fmt.Errorf("generation.backoff_base cannot be negative")
	}
	if c.Generation.AttemptTimeout <= 0 {
		return fmt.Errorf("generation.attempt_timeout must be positive")
	}
	if c.Generation.PromptTokenBudget <= 0 {
		return fmt.Errorf("generation.prompt_token_budget must be positive")
	}
	if c.Generation.RatePerSecond < 0 {
		return fmt.Errorf("generation.rate_per_second cannot be negative")
	}

	if c.Whitelist.Path == "" {
		return fmt.Errorf("whitelist.path is required")
	}

	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("tracing.sample_rate must be between 0.0 and 1.0")
	}

	return nil
}
