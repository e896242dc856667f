// Package store provides the two cache tiers backing the orchestrator: a
// fast in-memory accelerator and a durable source-of-truth store with a
// recency-ordered eviction scan. Entries are immutable once created; only
// their access bookkeeping changes.
package store

import (
	"context"
	"fmt"
	"time"

	"github.com/blueberrycongee/tutormux/pkg/types"
)

// DurableType selects the durable tier backend.
type DurableType string

const (
	DurableSQLite   DurableType = "sqlite"
	DurableRedis    DurableType = "redis"
	DurablePostgres DurableType = "postgres"
)

// FastStore is the non-authoritative accelerator tier. Implementations
// must provide atomic per-key operations under concurrent use.
type FastStore interface {
	// Get returns a copy of the entry, or false on miss.
	Get(key string) (*types.CacheEntry, bool)

	// Set stores an entry.
	Set(entry *types.CacheEntry)

	// Delete removes a key.
	Delete(key string)

	// Len returns the number of live entries.
	Len() int

	// Flush removes all entries.
	Flush()

	// Close releases background resources.
	Close() error
}

// DurableStore is the durable tier: the source of truth for cached
// responses, indexed by concept id and by last access time.
type DurableStore interface {
	// Get returns the entry for a key, or nil, nil on miss.
	Get(ctx context.Context, key string) (*types.CacheEntry, error)

	// Put inserts or replaces an entry.
	Put(ctx context.Context, entry *types.CacheEntry) error

	// Touch bumps the access count and last-accessed time for a key.
	Touch(ctx context.Context, key string, at time.Time) error

	// Count returns the number of stored entries.
	Count(ctx context.Context) (int, error)

	// EvictLRU removes entries in ascending last-accessed order until the
	// count is at or below capacity, returning how many were removed.
	EvictLRU(ctx context.Context, capacity int) (int, error)

	// Ping checks the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases the backend connection.
	Close() error
}

// Config holds the configuration for both cache tiers.
type Config struct {
	Fast    MemoryConfig  `yaml:"fast"`
	Durable DurableConfig `yaml:"durable"`
}

// DurableConfig selects and configures the durable backend.
type DurableConfig struct {
	Type     DurableType    `yaml:"type"`     // sqlite, redis or postgres
	Capacity int            `yaml:"capacity"` // Entry bound enforced by eviction (default: 10000)
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Redis    RedisConfig    `yaml:"redis"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// DefaultConfig returns sensible defaults: a small fast tier over SQLite.
func DefaultConfig() Config {
	return Config{
		Fast: DefaultMemoryConfig(),
		Durable: DurableConfig{
			Type:     DurableSQLite,
			Capacity: 10000,
			SQLite:   DefaultSQLiteConfig(),
			Redis:    DefaultRedisConfig(),
		},
	}
}

// NewDurableStore creates a durable store from configuration.
func NewDurableStore(cfg DurableConfig) (DurableStore, error) {
	switch cfg.Type {
	case DurableSQLite, "":
		return NewSQLiteStore(cfg.SQLite)
	case DurableRedis:
		return NewRedisStore(cfg.Redis)
	case DurablePostgres:
		return NewPostgresStore(cfg.Postgres)
	default:
		return nil, fmt.Errorf("unsupported durable store type: %s", cfg.Type)
	}
}
