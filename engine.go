package tutormux

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/singleflight"

	"github.com/blueberrycongee/tutormux/internal/generate"
	"github.com/blueberrycongee/tutormux/internal/metrics"
	"github.com/blueberrycongee/tutormux/internal/normalize"
	"github.com/blueberrycongee/tutormux/internal/simulation"
	"github.com/blueberrycongee/tutormux/internal/store"
	"github.com/blueberrycongee/tutormux/pkg/errors"
	"github.com/blueberrycongee/tutormux/pkg/types"
)

// Input bounds enforced before any cache or generation work happens.
const (
	MinQueryLength = 10
	MaxQueryLength = 500
)

// backgroundOpTimeout bounds the detached Touch and EvictLRU calls.
const backgroundOpTimeout = 5 * time.Second

// Generator is the external generation capability the engine fronts.
type Generator = generate.Generator

// Engine orchestrates explanation requests across the two cache tiers and
// the generation coordinator. Concurrent requests for the same normalized
// concept share a single generation call.
type Engine struct {
	coord    *generate.Coordinator
	resolver *simulation.Resolver
	fast     store.FastStore
	durable  store.DurableStore
	logger   *slog.Logger
	capacity int
	fallback atomic.Bool

	flight singleflight.Group
	bg     sync.WaitGroup
}

// New creates an Engine from the given options. A generator is required;
// every other dependency has a working default.
func New(opts ...Option) (*Engine, error) {
	cfg := defaultEngineConfig()
	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.Generator == nil {
		return nil, fmt.Errorf("tutormux: a generator is required")
	}

	resolver := cfg.Resolver
	if resolver == nil {
		table := cfg.Whitelist
		if table == nil {
			empty, err := simulation.NewTable(nil)
			if err != nil {
				return nil, err
			}
			table = empty
		}
		resolver = simulation.NewResolver(table, cfg.Logger)
	}

	fast := cfg.Fast
	if fast == nil {
		fast = store.NewMemoryStore(cfg.FastConfig)
	}

	durable := cfg.Durable
	if durable == nil {
		// In-process default so library callers get durable-tier
		// semantics without external setup.
		s, err := store.NewSQLiteStore(store.SQLiteConfig{Path: ":memory:"})
		if err != nil {
			return nil, err
		}
		durable = s
	}

	capacity := cfg.DurableCapacity
	if capacity <= 0 {
		capacity = 10000
	}

	e := &Engine{
		coord:    generate.NewCoordinator(cfg.Generator, resolver, cfg.Sink, cfg.Logger, cfg.Generation),
		resolver: resolver,
		fast:     fast,
		durable:  durable,
		logger:   cfg.Logger,
		capacity: capacity,
	}
	e.fallback.Store(cfg.FallbackEnabled)
	return e, nil
}

// Explain answers a concept query: from the fast tier, the durable tier, or
// a freshly coordinated generation, in that order. Identical concurrent
// queries coalesce onto one generation call.
func (e *Engine) Explain(ctx context.Context, query string) (*types.Answer, error) {
	start := time.Now()

	if err := checkQuery(query); err != nil {
		metrics.RequestsRejected.WithLabelValues(errors.CodeOf(err)).Inc()
		return nil, err
	}

	key := normalize.Key(query)

	if entry, ok := e.fast.Get(key); ok {
		metrics.CacheHits.WithLabelValues("fast").Inc()
		e.asyncTouch(key)
		return e.finish("fast_hit", start, answerFrom(entry, true)), nil
	}

	if entry := e.durableGet(ctx, key); entry != nil {
		metrics.CacheHits.WithLabelValues("durable").Inc()
		e.fast.Set(entry)
		e.asyncTouch(key)
		return e.finish("durable_hit", start, answerFrom(entry, true)), nil
	}

	metrics.CacheMisses.Inc()
	return e.generate(ctx, key, query, start)
}

// generate funnels all concurrent misses for a key into one coordinated
// generation. The in-flight call runs on a detached context so one caller
// giving up does not abort work that other callers are waiting on.
func (e *Engine) generate(ctx context.Context, key, query string, start time.Time) (*types.Answer, error) {
	ch := e.flight.DoChan(key, func() (any, error) {
		genCtx := context.WithoutCancel(ctx)

		response, sim, err := e.coord.Coordinate(genCtx, query)
		if err != nil {
			return nil, err
		}

		now := time.Now()
		entry := &types.CacheEntry{
			Key:            key,
			Response:       response,
			Simulation:     sim,
			CreatedAt:      now,
			LastAccessedAt: now,
		}
		e.storeEntry(genCtx, entry)
		return entry, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()

	case res := <-ch:
		if res.Shared {
			metrics.CoalescedRequests.Inc()
		}
		if res.Err != nil {
			return e.failed(ctx, query, start, res.Err)
		}
		entry, ok := res.Val.(*types.CacheEntry)
		if !ok {
			return nil, errors.NewInternalError("unexpected generation result type")
		}
		return e.finish("generated", start, answerFrom(entry, false)), nil
	}
}

// failed resolves a terminal generation failure: a generic fallback answer
// when enabled, the error itself otherwise. Failures are never cached.
func (e *Engine) failed(ctx context.Context, query string, start time.Time, err error) (*types.Answer, error) {
	if !e.fallback.Load() {
		e.observe("error", start)
		return nil, err
	}

	e.logger.WarnContext(ctx, "generation failed, serving fallback answer", "error", err)
	return e.finish("fallback", start, fallbackAnswer(query)), nil
}

// storeEntry writes through both tiers. A durable-tier failure is absorbed:
// the fast tier still serves the entry for its lifetime.
func (e *Engine) storeEntry(ctx context.Context, entry *types.CacheEntry) {
	if err := e.durable.Put(ctx, entry); err != nil {
		e.logger.ErrorContext(ctx, "durable tier write failed, continuing on fast tier only",
			"key", entry.Key,
			"error", err,
		)
	} else {
		e.asyncEvict()
	}
	e.fast.Set(entry)
}

// durableGet treats a failed durable tier as a miss so requests keep
// flowing while the backend is down.
func (e *Engine) durableGet(ctx context.Context, key string) *types.CacheEntry {
	entry, err := e.durable.Get(ctx, key)
	if err != nil {
		e.logger.WarnContext(ctx, "durable tier read failed, bypassing",
			"key", key,
			"error", err,
		)
		return nil
	}
	return entry
}

// asyncTouch bumps access bookkeeping off the request path.
func (e *Engine) asyncTouch(key string) {
	e.bg.Add(1)
	go func() {
		defer e.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), backgroundOpTimeout)
		defer cancel()

		if err := e.durable.Touch(ctx, key, time.Now()); err != nil {
			e.logger.Warn("access bookkeeping update failed", "key", key, "error", err)
		}
	}()
}

// asyncEvict enforces the durable capacity bound off the request path.
func (e *Engine) asyncEvict() {
	e.bg.Add(1)
	go func() {
		defer e.bg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), backgroundOpTimeout)
		defer cancel()

		evicted, err := e.durable.EvictLRU(ctx, e.capacity)
		if err != nil {
			e.logger.Warn("durable eviction failed", "error", err)
			return
		}
		if evicted > 0 {
			metrics.CacheEvictions.Add(float64(evicted))
			e.logger.Info("evicted least-recently-used entries", "count", evicted)
		}
	}()
}

func (e *Engine) finish(outcome string, start time.Time, answer *types.Answer) *types.Answer {
	e.observe(outcome, start)
	return answer
}

func (e *Engine) observe(outcome string, start time.Time) {
	metrics.RequestsTotal.WithLabelValues(outcome).Inc()
	metrics.RequestLatency.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
}

// Stats reports cache-tier statistics for monitoring surfaces.
type Stats struct {
	FastEntries    int   `json:"fast_entries"`
	FastHits       int64 `json:"fast_hits"`
	FastMisses     int64 `json:"fast_misses"`
	DurableEntries int   `json:"durable_entries"`
	DurableHealthy bool  `json:"durable_healthy"`
}

// Stats returns current cache statistics. The fast counters are only
// available when the default in-memory tier is in use.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	stats := Stats{FastEntries: e.fast.Len()}

	if ms, ok := e.fast.(*store.MemoryStore); ok {
		stats.FastHits, stats.FastMisses, _ = ms.Stats()
	}

	count, err := e.durable.Count(ctx)
	if err != nil {
		return stats, err
	}
	stats.DurableEntries = count
	stats.DurableHealthy = e.durable.Ping(ctx) == nil
	return stats, nil
}

// ReloadWhitelist swaps in a new simulation table.
func (e *Engine) ReloadWhitelist(table *simulation.Table) {
	e.resolver.Replace(table)
}

// SetFallback changes the exhaustion policy for subsequent requests. Used
// by configuration hot reload; in-flight requests keep the policy they
// started with.
func (e *Engine) SetFallback(enabled bool) {
	e.fallback.Store(enabled)
}

// Close waits for background bookkeeping and releases both tiers.
func (e *Engine) Close() error {
	e.bg.Wait()
	return stderrors.Join(e.fast.Close(), e.durable.Close())
}

// checkQuery enforces input bounds before any downstream work. Bounds are
// counted in characters, not bytes, so multibyte queries are measured the
// way a learner typed them.
func checkQuery(query string) error {
	length := utf8.RuneCountInString(strings.TrimSpace(query))
	if length < MinQueryLength {
		return errors.NewInvalidInputError(
			fmt.Sprintf("query must be at least %d characters", MinQueryLength))
	}
	if length > MaxQueryLength {
		return errors.NewInvalidInputError(
			fmt.Sprintf("query must be at most %d characters", MaxQueryLength))
	}
	return nil
}

func answerFrom(entry *types.CacheEntry, cached bool) *types.Answer {
	return &types.Answer{
		Response:   entry.Response,
		Simulation: entry.Simulation,
		Cached:     cached,
		Timestamp:  time.Now(),
	}
}

// fallbackAnswer is the generic low-confidence answer served when
// generation is exhausted. Never cached.
func fallbackAnswer(query string) *types.Answer {
	concept := normalize.Canonical(query)
	return &types.Answer{
		Response: types.StructuredResponse{
			Explanation: fmt.Sprintf(
				"We could not produce a detailed explanation of %q right now. "+
					"The concept is worth revisiting shortly; in the meantime the steps "+
					"below outline a general way to approach it.", concept),
			ConceptTags:          []string{concept, "overview", "fundamentals"},
			SimulationIdentifier: "none",
			GuidedSteps: []string{
				"Write down what you already know about the concept and where it shows up.",
				"Break the concept into its smallest parts and define each one in your own words.",
				"Work through one concrete example end to end, then try to explain it to someone else.",
			},
			ConfidenceLevel: types.ConfidenceLow,
		},
		Simulation: types.NoSimulation(),
		Cached:     false,
		Timestamp:  time.Now(),
	}
}
