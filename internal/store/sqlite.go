package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/goccy/go-json"
	_ "modernc.org/sqlite"

	"github.com/blueberrycongee/tutormux/pkg/types"
)

const createConceptCacheTable = `
CREATE TABLE IF NOT EXISTS concept_cache (
	concept_id TEXT PRIMARY KEY,
	explanation TEXT NOT NULL,
	concept_tags TEXT NOT NULL,
	simulation_identifier TEXT NOT NULL,
	simulation_url TEXT NOT NULL DEFAULT '',
	guided_steps TEXT NOT NULL,
	confidence_level TEXT NOT NULL,
	simulation_source TEXT NOT NULL,
	simulation_provider TEXT NOT NULL DEFAULT '',
	simulation_available INTEGER NOT NULL DEFAULT 0,
	created_at INTEGER NOT NULL,
	access_count INTEGER NOT NULL DEFAULT 0,
	last_accessed INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_concept_cache_last_accessed
	ON concept_cache(last_accessed);
`

// SQLiteConfig holds configuration for the SQLite durable store.
type SQLiteConfig struct {
	Path string `yaml:"path"` // Database file path; ":memory:" for tests
}

// DefaultSQLiteConfig returns sensible defaults.
func DefaultSQLiteConfig() SQLiteConfig {
	return SQLiteConfig{Path: "tutormux.db"}
}

// SQLiteStore implements DurableStore on an embedded SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore opens (and migrates) the database at cfg.Path.
func NewSQLiteStore(cfg SQLiteConfig) (*SQLiteStore, error) {
	if cfg.Path == "" {
		cfg.Path = DefaultSQLiteConfig().Path
	}

	db, err := sql.Open("sqlite", cfg.Path)
	if err != nil {
		return nil, fmt.Errorf("open cache db: %w", err)
	}

	// An in-memory database exists per connection, so the pool must not
	// grow past one.
	if cfg.Path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if _, err := db.Exec(createConceptCacheTable); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate cache db: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

// Get returns the entry for a key, or nil, nil on miss.
func (s *SQLiteStore) Get(ctx context.Context, key string) (*types.CacheEntry, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT concept_id, explanation, concept_tags, simulation_identifier,
		       simulation_url, guided_steps, confidence_level, simulation_source,
		       simulation_provider, simulation_available,
		       created_at, access_count, last_accessed
		FROM concept_cache WHERE concept_id = ?`, key)

	entry, err := scanEntry(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return entry, err
}

// Put inserts or replaces an entry.
func (s *SQLiteStore) Put(ctx context.Context, entry *types.CacheEntry) error {
	tags, steps, err := encodeSequences(entry)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO concept_cache (
			concept_id, explanation, concept_tags, simulation_identifier,
			simulation_url, guided_steps, confidence_level, simulation_source,
			simulation_provider, simulation_available,
			created_at, access_count, last_accessed
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		entry.Key,
		entry.Response.Explanation,
		tags,
		entry.Response.SimulationIdentifier,
		entry.Simulation.URL,
		steps,
		string(entry.Response.ConfidenceLevel),
		string(entry.Simulation.Source),
		entry.Simulation.Provider,
		boolToInt(entry.Simulation.Available),
		entry.CreatedAt.UnixNano(),
		entry.AccessCount,
		entry.LastAccessedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	return nil
}

// Touch bumps the access bookkeeping for a key.
func (s *SQLiteStore) Touch(ctx context.Context, key string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE concept_cache
		SET access_count = access_count + 1, last_accessed = ?
		WHERE concept_id = ?`,
		at.UnixNano(), key)
	if err != nil {
		return fmt.Errorf("cache touch: %w", err)
	}
	return nil
}

// Count returns the number of stored entries.
func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM concept_cache`).Scan(&count); err != nil {
		return 0, fmt.Errorf("cache count: %w", err)
	}
	return count, nil
}

// EvictLRU removes least-recently-accessed entries until the count is at or
// below capacity.
func (s *SQLiteStore) EvictLRU(ctx context.Context, capacity int) (int, error) {
	count, err := s.Count(ctx)
	if err != nil {
		return 0, err
	}
	excess := count - capacity
	if excess <= 0 {
		return 0, nil
	}

	res, err := s.db.ExecContext(ctx, `
		DELETE FROM concept_cache WHERE concept_id IN (
			SELECT concept_id FROM concept_cache
			ORDER BY last_accessed ASC
			LIMIT ?
		)`, excess)
	if err != nil {
		return 0, fmt.Errorf("cache evict: %w", err)
	}

	evicted, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(evicted), nil
}

// Ping checks the database connection.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func encodeSequences(entry *types.CacheEntry) (tags string, steps string, err error) {
	tagBytes, err := json.Marshal(entry.Response.ConceptTags)
	if err != nil {
		return "", "", fmt.Errorf("encode concept_tags: %w", err)
	}
	stepBytes, err := json.Marshal(entry.Response.GuidedSteps)
	if err != nil {
		return "", "", fmt.Errorf("encode guided_steps: %w", err)
	}
	return string(tagBytes), string(stepBytes), nil
}

// scanEntry decodes one concept_cache row. The scan argument order matches
// the SELECT column order used by both SQL stores.
func scanEntry(scan func(dest ...any) error) (*types.CacheEntry, error) {
	var (
		entry        types.CacheEntry
		tags         string
		steps        string
		confidence   string
		source       string
		available    int
		createdAt    int64
		lastAccessed int64
	)

	err := scan(
		&entry.Key,
		&entry.Response.Explanation,
		&tags,
		&entry.Response.SimulationIdentifier,
		&entry.Simulation.URL,
		&steps,
		&confidence,
		&source,
		&entry.Simulation.Provider,
		&available,
		&createdAt,
		&entry.AccessCount,
		&lastAccessed,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(tags), &entry.Response.ConceptTags); err != nil {
		return nil, fmt.Errorf("decode concept_tags: %w", err)
	}
	if err := json.Unmarshal([]byte(steps), &entry.Response.GuidedSteps); err != nil {
		return nil, fmt.Errorf("decode guided_steps: %w", err)
	}

	entry.Response.ConfidenceLevel = types.ConfidenceLevel(confidence)
	entry.Simulation.Identifier = entry.Response.SimulationIdentifier
	entry.Simulation.Source = types.SimulationSource(source)
	entry.Simulation.Available = available != 0
	entry.CreatedAt = time.Unix(0, createdAt)
	entry.LastAccessedAt = time.Unix(0, lastAccessed)

	return &entry, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
