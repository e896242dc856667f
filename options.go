package tutormux

import (
	"log/slog"

	"github.com/blueberrycongee/tutormux/internal/generate"
	"github.com/blueberrycongee/tutormux/internal/simulation"
	"github.com/blueberrycongee/tutormux/internal/store"
	"github.com/blueberrycongee/tutormux/pkg/types"
)

// EngineConfig holds all configuration for the Engine.
type EngineConfig struct {
	// Generator is the external generation capability (required).
	Generator Generator

	// Generation holds retry, budgeting and rate-limit policy for the
	// coordinator.
	Generation generate.Config

	// Caching
	Fast            store.FastStore   // Custom fast tier (default: in-memory)
	FastConfig      store.MemoryConfig
	Durable         store.DurableStore // Custom durable tier (default: in-process SQLite)
	DurableCapacity int                // Entry bound enforced by eviction (default: 10000)

	// Whitelist resolves simulation identifiers to trusted metadata.
	// Defaults to an empty table: every identifier resolves to the
	// no-simulation marker.
	Whitelist *simulation.Table

	// Resolver overrides Whitelist with a pre-built resolver. Use this to
	// share a hot-reloaded table with the engine.
	Resolver *simulation.Resolver

	// FallbackEnabled serves a generic low-confidence answer when
	// generation is exhausted instead of surfacing the failure.
	FallbackEnabled bool

	// Usage
	Sink types.UsageSink

	// Logging
	Logger *slog.Logger
}

// Option is a function that configures the Engine.
type Option func(*EngineConfig)

// defaultEngineConfig returns sensible defaults.
func defaultEngineConfig() *EngineConfig {
	return &EngineConfig{
		Generation:      generate.DefaultConfig(),
		FastConfig:      store.DefaultMemoryConfig(),
		DurableCapacity: 10000,
		FallbackEnabled: true,
		Sink:            types.NopSink{},
		Logger:          slog.Default(),
	}
}

// WithGenerator sets the external generation capability. Required.
func WithGenerator(gen Generator) Option {
	return func(c *EngineConfig) {
		c.Generator = gen
	}
}

// WithGeneration sets the retry and budgeting policy for generation calls.
func WithGeneration(cfg generate.Config) Option {
	return func(c *EngineConfig) {
		c.Generation = cfg
	}
}

// WithFastStore sets a custom fast-tier implementation.
func WithFastStore(s store.FastStore) Option {
	return func(c *EngineConfig) {
		c.Fast = s
	}
}

// WithFastConfig configures the default in-memory fast tier.
// Ignored when WithFastStore is used.
func WithFastConfig(cfg store.MemoryConfig) Option {
	return func(c *EngineConfig) {
		c.FastConfig = cfg
	}
}

// WithDurableStore sets the durable-tier implementation.
//
// Example:
//
//	durable, _ := store.NewRedisStore(store.RedisConfig{Addr: "localhost:6379"})
//	tutormux.WithDurableStore(durable)
func WithDurableStore(s store.DurableStore) Option {
	return func(c *EngineConfig) {
		c.Durable = s
	}
}

// WithDurableCapacity sets the entry bound enforced by LRU eviction.
func WithDurableCapacity(capacity int) Option {
	return func(c *EngineConfig) {
		c.DurableCapacity = capacity
	}
}

// WithWhitelist sets the simulation whitelist table.
func WithWhitelist(table *simulation.Table) Option {
	return func(c *EngineConfig) {
		c.Whitelist = table
	}
}

// WithResolver sets a pre-built simulation resolver, typically one owned by
// a hot-reloading whitelist manager. Overrides WithWhitelist.
func WithResolver(r *simulation.Resolver) Option {
	return func(c *EngineConfig) {
		c.Resolver = r
	}
}

// WithFallback enables/disables the generic fallback answer served when
// generation is exhausted.
func WithFallback(enabled bool) Option {
	return func(c *EngineConfig) {
		c.FallbackEnabled = enabled
	}
}

// WithSink sets the usage sink receiving one event per generation attempt.
func WithSink(sink types.UsageSink) Option {
	return func(c *EngineConfig) {
		c.Sink = sink
	}
}

// WithLogger sets the logger for the engine.
func WithLogger(logger *slog.Logger) Option {
	return func(c *EngineConfig) {
		c.Logger = logger
	}
}
