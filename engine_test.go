package tutormux

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blueberrycongee/tutormux/internal/generate"
	"github.com/blueberrycongee/tutormux/internal/simulation"
	"github.com/blueberrycongee/tutormux/internal/store"
	"github.com/blueberrycongee/tutormux/pkg/errors"
	"github.com/blueberrycongee/tutormux/pkg/types"
)

const validOutput = `{
	"explanation": "Photosynthesis converts light energy into chemical energy.",
	"concept_tags": ["photosynthesis", "biology", "energy"],
	"simulation_identifier": "none",
	"guided_steps": ["Recall the inputs.", "Trace the light reactions.", "Follow the carbon."],
	"confidence_level": "high"
}`

// countingGenerator returns canned output and tracks call counts. It can be
// told to fail the first n calls or to delay each call.
type countingGenerator struct {
	calls    atomic.Int64
	failures atomic.Int64
	delay    time.Duration
	output   string
}

func (g *countingGenerator) Generate(ctx context.Context, prompt string, tier types.ModelTier) (string, error) {
	g.calls.Add(1)
	if g.delay > 0 {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(g.delay):
		}
	}
	if g.failures.Load() > 0 {
		g.failures.Add(-1)
		return "", errors.NewTransportError("backend unavailable")
	}
	out := g.output
	if out == "" {
		out = validOutput
	}
	return out, nil
}

func newTestEngine(t *testing.T, gen Generator, opts ...Option) *Engine {
	t.Helper()

	base := []Option{
		WithGenerator(gen),
		WithGeneration(generate.Config{
			MaxAttempts:    3,
			BackoffBase:    time.Millisecond,
			AttemptTimeout: 5 * time.Second,
		}),
	}
	e, err := New(append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = e.Close() })
	return e
}

func TestNew_RequiresGenerator(t *testing.T) {
	_, err := New()
	require.Error(t, err)
}

func TestEngine_GenerateThenHit(t *testing.T) {
	gen := &countingGenerator{}
	e := newTestEngine(t, gen)
	ctx := context.Background()

	first, err := e.Explain(ctx, "What is photosynthesis?")
	require.NoError(t, err)
	assert.False(t, first.Cached)
	assert.Equal(t, types.ConfidenceHigh, first.Response.ConfidenceLevel)
	assert.Equal(t, int64(1), gen.calls.Load())

	second, err := e.Explain(ctx, "What is photosynthesis?")
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Response, second.Response)
	assert.Equal(t, int64(1), gen.calls.Load(), "cache hit must not call the generator")
}

func TestEngine_NormalizedVariantsShareEntry(t *testing.T) {
	gen := &countingGenerator{}
	e := newTestEngine(t, gen)
	ctx := context.Background()

	_, err := e.Explain(ctx, "What is photosynthesis?")
	require.NoError(t, err)
	require.Equal(t, int64(1), gen.calls.Load())

	// Casing, whitespace and interrogative-prefix variants map to the
	// same canonical concept and must hit the cache.
	variants := []string{
		"  what is   PHOTOSYNTHESIS? ",
		"Explain photosynthesis?",
		"tell me about photosynthesis?",
	}
	for _, v := range variants {
		answer, err := e.Explain(ctx, v)
		require.NoError(t, err)
		assert.True(t, answer.Cached, "variant %q must share the cached entry", v)
	}
	assert.Equal(t, int64(1), gen.calls.Load())
}

func TestEngine_InputRejection(t *testing.T) {
	gen := &countingGenerator{}
	e := newTestEngine(t, gen)
	ctx := context.Background()

	for _, query := range []string{
		"",
		"short",
		"         ", // whitespace only
		strings.Repeat("a", 501),
	} {
		_, err := e.Explain(ctx, query)
		require.Error(t, err)

		var ee *EngineError
		require.ErrorAs(t, err, &ee)
		assert.Equal(t, CodeInvalidInput, ee.Code)
	}

	assert.Zero(t, gen.calls.Load(), "rejected input must never reach the generator")
}

func TestEngine_InputBoundsCountCharacters(t *testing.T) {
	gen := &countingGenerator{}
	e := newTestEngine(t, gen)
	ctx := context.Background()

	// Seven characters, 21 bytes: under the minimum.
	_, err := e.Explain(ctx, "光合作用是什么")
	require.Error(t, err)

	var ee *EngineError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, CodeInvalidInput, ee.Code)
	assert.Zero(t, gen.calls.Load(), "a short multibyte query must never reach the generator")

	// 200 characters, 600 bytes: well within bounds.
	answer, err := e.Explain(ctx, strings.Repeat("光", 200))
	require.NoError(t, err)
	assert.False(t, answer.Cached)
	assert.Equal(t, int64(1), gen.calls.Load())

	// 501 characters: over the maximum regardless of encoding.
	_, err = e.Explain(ctx, strings.Repeat("光", 501))
	require.Error(t, err)
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, CodeInvalidInput, ee.Code)
	assert.Equal(t, int64(1), gen.calls.Load())
}

func TestEngine_CoalescesConcurrentMisses(t *testing.T) {
	gen := &countingGenerator{delay: 100 * time.Millisecond}
	e := newTestEngine(t, gen)

	const workers = 100
	var wg sync.WaitGroup
	answers := make([]*types.Answer, workers)
	errs := make([]error, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			answers[i], errs[i] = e.Explain(context.Background(), "What is photosynthesis?")
		}(i)
	}
	wg.Wait()

	for i := 0; i < workers; i++ {
		require.NoError(t, errs[i])
		require.NotNil(t, answers[i])
		assert.Equal(t, answers[0].Response, answers[i].Response)
	}
	assert.Equal(t, int64(1), gen.calls.Load(), "concurrent identical misses must share one generation")
}

func TestEngine_FailureNotCached(t *testing.T) {
	gen := &countingGenerator{}
	gen.failures.Store(10) // more than the attempt budget
	e := newTestEngine(t, gen, WithFallback(false))
	ctx := context.Background()

	_, err := e.Explain(ctx, "What is photosynthesis?")
	require.Error(t, err)

	var ee *EngineError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, CodeGenerationFailure, ee.Code)
	assert.Equal(t, int64(3), gen.calls.Load(), "attempt budget is three")

	// The backend recovers; a resubmit must generate rather than serve a
	// cached failure.
	gen.failures.Store(0)
	answer, err := e.Explain(ctx, "What is photosynthesis?")
	require.NoError(t, err)
	assert.False(t, answer.Cached)
	assert.Equal(t, int64(4), gen.calls.Load())

	// And the success is cached normally.
	answer, err = e.Explain(ctx, "What is photosynthesis?")
	require.NoError(t, err)
	assert.True(t, answer.Cached)
}

func TestEngine_FallbackAnswer(t *testing.T) {
	gen := &countingGenerator{}
	gen.failures.Store(10)
	e := newTestEngine(t, gen, WithFallback(true))
	ctx := context.Background()

	answer, err := e.Explain(ctx, "What is photosynthesis?")
	require.NoError(t, err)
	assert.False(t, answer.Cached)
	assert.Equal(t, types.ConfidenceLow, answer.Response.ConfidenceLevel)
	assert.Equal(t, types.SourceNone, answer.Simulation.Source)
	assert.Len(t, answer.Response.GuidedSteps, 3)

	// Fallback answers are never cached: recovery generates a real one.
	gen.failures.Store(0)
	answer, err = e.Explain(ctx, "What is photosynthesis?")
	require.NoError(t, err)
	assert.False(t, answer.Cached)
	assert.Equal(t, types.ConfidenceHigh, answer.Response.ConfidenceLevel)
}

func TestEngine_FallbackToggleAtRuntime(t *testing.T) {
	gen := &countingGenerator{}
	gen.failures.Store(100)
	e := newTestEngine(t, gen, WithFallback(false))
	ctx := context.Background()

	_, err := e.Explain(ctx, "What is photosynthesis?")
	require.Error(t, err)

	// A configuration reload can flip the exhaustion policy without
	// rebuilding the engine.
	e.SetFallback(true)
	answer, err := e.Explain(ctx, "What is photosynthesis?")
	require.NoError(t, err)
	assert.Equal(t, types.ConfidenceLow, answer.Response.ConfidenceLevel)

	e.SetFallback(false)
	_, err = e.Explain(ctx, "What is photosynthesis?")
	require.Error(t, err)
}

func TestEngine_RetryThenSucceed(t *testing.T) {
	gen := &countingGenerator{}
	gen.failures.Store(2)
	e := newTestEngine(t, gen)

	answer, err := e.Explain(context.Background(), "What is photosynthesis?")
	require.NoError(t, err)
	assert.False(t, answer.Cached)
	assert.Equal(t, int64(3), gen.calls.Load())
}

func TestEngine_DurableEviction(t *testing.T) {
	durable, err := store.NewSQLiteStore(store.SQLiteConfig{Path: ":memory:"})
	require.NoError(t, err)

	gen := &countingGenerator{}
	e := newTestEngine(t, gen,
		WithDurableStore(durable),
		WithDurableCapacity(5),
	)
	ctx := context.Background()

	for i := 0; i < 6; i++ {
		_, err := e.Explain(ctx, fmt.Sprintf("What is concept number %02d today?", i))
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		count, err := durable.Count(ctx)
		return err == nil && count == 5
	}, 5*time.Second, 20*time.Millisecond, "capacity bound must be restored after the over-capacity write")
}

func TestEngine_DurableOutageBypassed(t *testing.T) {
	gen := &countingGenerator{}
	e := newTestEngine(t, gen, WithDurableStore(&failingDurable{}))
	ctx := context.Background()

	// Generation succeeds and lands in the fast tier even though every
	// durable operation fails.
	answer, err := e.Explain(ctx, "What is photosynthesis?")
	require.NoError(t, err)
	assert.False(t, answer.Cached)

	answer, err = e.Explain(ctx, "What is photosynthesis?")
	require.NoError(t, err)
	assert.True(t, answer.Cached, "fast tier must keep serving during a durable outage")
}

func TestEngine_WhitelistedSimulation(t *testing.T) {
	table, err := simulation.NewTable([]types.ResolvedSimulation{{
		Identifier: "phet-photosynthesis",
		URL:        "https://phet.example.edu/photosynthesis",
		Source:     types.SourceExternal,
		Provider:   "PhET",
		Available:  true,
	}})
	require.NoError(t, err)

	gen := &countingGenerator{output: `{
		"explanation": "Photosynthesis converts light energy into chemical energy.",
		"concept_tags": ["photosynthesis", "biology", "energy"],
		"simulation_identifier": "phet-photosynthesis",
		"guided_steps": ["One.", "Two.", "Three."],
		"confidence_level": "medium"
	}`}
	e := newTestEngine(t, gen, WithWhitelist(table))

	answer, err := e.Explain(context.Background(), "What is photosynthesis?")
	require.NoError(t, err)
	assert.Equal(t, "phet-photosynthesis", answer.Simulation.Identifier)
	assert.Equal(t, "https://phet.example.edu/photosynthesis", answer.Simulation.URL)
	assert.True(t, answer.Simulation.Available)
}

func TestEngine_Stats(t *testing.T) {
	gen := &countingGenerator{}
	e := newTestEngine(t, gen)
	ctx := context.Background()

	_, err := e.Explain(ctx, "What is photosynthesis?")
	require.NoError(t, err)
	_, err = e.Explain(ctx, "What is photosynthesis?")
	require.NoError(t, err)

	stats, err := e.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.FastEntries)
	assert.Equal(t, 1, stats.DurableEntries)
	assert.True(t, stats.DurableHealthy)
	assert.GreaterOrEqual(t, stats.FastHits, int64(1))
}

// failingDurable simulates a durable-tier outage.
type failingDurable struct{}

func (f *failingDurable) Get(context.Context, string) (*types.CacheEntry, error) {
	return nil, errors.NewStoreUnavailableError("durable tier down")
}

func (f *failingDurable) Put(context.Context, *types.CacheEntry) error {
	return errors.NewStoreUnavailableError("durable tier down")
}

func (f *failingDurable) Touch(context.Context, string, time.Time) error {
	return errors.NewStoreUnavailableError("durable tier down")
}

func (f *failingDurable) Count(context.Context) (int, error) {
	return 0, errors.NewStoreUnavailableError("durable tier down")
}

func (f *failingDurable) EvictLRU(context.Context, int) (int, error) {
	return 0, errors.NewStoreUnavailableError("durable tier down")
}

func (f *failingDurable) Ping(context.Context) error {
	return errors.NewStoreUnavailableError("durable tier down")
}

func (f *failingDurable) Close() error { return nil }
