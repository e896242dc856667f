package generate

import (
	"context"
	stderrors "errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/blueberrycongee/tutormux/internal/simulation"
	"github.com/blueberrycongee/tutormux/pkg/errors"
	"github.com/blueberrycongee/tutormux/pkg/types"
)

const goodRaw = `{
	"explanation": "Newton's second law relates force, mass and acceleration.",
	"concept_tags": ["newton", "force", "acceleration"],
	"simulation_identifier": "forces-lab",
	"guided_steps": ["identify forces", "apply F=ma", "solve"],
	"confidence_level": "high"
}`

type generatorFunc func(ctx context.Context, prompt string, tier types.ModelTier) (string, error)

func (f generatorFunc) Generate(ctx context.Context, prompt string, tier types.ModelTier) (string, error) {
	return f(ctx, prompt, tier)
}

type captureSink struct {
	mu     sync.Mutex
	events []types.UsageEvent
}

func (s *captureSink) Record(ev types.UsageEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, ev)
}

func (s *captureSink) all() []types.UsageEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]types.UsageEvent(nil), s.events...)
}

func testResolver(t *testing.T) *simulation.Resolver {
	t.Helper()
	table, err := simulation.NewTable([]types.ResolvedSimulation{
		{
			Identifier: "forces-lab",
			URL:        "https://sims.example.edu/forces-lab",
			Source:     types.SourceExternal,
			Provider:   "PhET",
			Available:  true,
		},
	})
	require.NoError(t, err)
	return simulation.NewResolver(table, nil)
}

func fastConfig() Config {
	return Config{
		MaxAttempts:    3,
		BackoffBase:    time.Millisecond,
		AttemptTimeout: time.Second,
	}
}

func TestCoordinate_SuccessFirstAttempt(t *testing.T) {
	sink := &captureSink{}
	calls := 0
	gen := generatorFunc(func(context.Context, string, types.ModelTier) (string, error) {
		calls++
		return goodRaw, nil
	})

	c := NewCoordinator(gen, testResolver(t), sink, nil, fastConfig())
	resp, sim, err := c.Coordinate(context.Background(), "what is newton's second law")
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
	assert.Equal(t, "forces-lab", resp.SimulationIdentifier)
	assert.Equal(t, "https://sims.example.edu/forces-lab", sim.URL)
	assert.Equal(t, types.SourceExternal, sim.Source)

	events := sink.all()
	require.Len(t, events, 1)
	assert.True(t, events[0].Success)
	assert.Equal(t, 1, events[0].Attempt)
	assert.Positive(t, events[0].TokenEstimate)
}

func TestCoordinate_RetriesThenSucceeds(t *testing.T) {
	sink := &captureSink{}
	base := 10 * time.Millisecond
	calls := 0
	gen := generatorFunc(func(context.Context, string, types.ModelTier) (string, error) {
		calls++
		if calls < 3 {
			return "", stderrors.New("connection reset")
		}
		return goodRaw, nil
	})

	cfg := fastConfig()
	cfg.BackoffBase = base
	c := NewCoordinator(gen, testResolver(t), sink, nil, cfg)

	start := time.Now()
	_, _, err := c.Coordinate(context.Background(), "newton's second law of motion")
	elapsed := time.Since(start)

	require.NoError(t, err)
	assert.Equal(t, 3, calls, "exactly three attempts must be made")
	// Two backoffs: base*1 + base*2.
	assert.GreaterOrEqual(t, elapsed, 3*base)

	events := sink.all()
	require.Len(t, events, 3)
	assert.False(t, events[0].Success)
	assert.False(t, events[1].Success)
	assert.True(t, events[2].Success)
}

func TestCoordinate_Exhaustion(t *testing.T) {
	calls := 0
	gen := generatorFunc(func(context.Context, string, types.ModelTier) (string, error) {
		calls++
		return "", stderrors.New("upstream unavailable")
	})

	c := NewCoordinator(gen, testResolver(t), nil, nil, fastConfig())
	_, _, err := c.Coordinate(context.Background(), "what is entropy in thermodynamics")

	require.Error(t, err)
	assert.Equal(t, 3, calls)

	var ee *errors.EngineError
	require.ErrorAs(t, err, &ee)
	assert.Equal(t, errors.TypeGenerationExhaust, ee.Type)
	assert.False(t, ee.Retryable, "exhaustion is terminal and must not be retried upstream")
}

func TestCoordinate_EmptyExplanationRegenerates(t *testing.T) {
	empty := `{"explanation":"","concept_tags":["a","b","c"],"simulation_identifier":"none","guided_steps":["x","y","z"]}`
	calls := 0
	gen := generatorFunc(func(context.Context, string, types.ModelTier) (string, error) {
		calls++
		if calls < 2 {
			return empty, nil
		}
		return goodRaw, nil
	})

	c := NewCoordinator(gen, testResolver(t), nil, nil, fastConfig())
	resp, _, err := c.Coordinate(context.Background(), "what is newton's second law")

	require.NoError(t, err)
	assert.Equal(t, 2, calls, "hard validation failure must trigger regeneration")
	assert.NotEmpty(t, resp.Explanation)
}

func TestCoordinate_EmptyExplanationNeverReturned(t *testing.T) {
	empty := `{"explanation":"","concept_tags":["a","b","c"],"simulation_identifier":"none","guided_steps":["x","y","z"]}`
	calls := 0
	gen := generatorFunc(func(context.Context, string, types.ModelTier) (string, error) {
		calls++
		return empty, nil
	})

	c := NewCoordinator(gen, testResolver(t), nil, nil, fastConfig())
	_, _, err := c.Coordinate(context.Background(), "what is newton's second law")

	require.Error(t, err)
	assert.Equal(t, 3, calls, "regeneration shares the attempt budget")
}

func TestCoordinate_MalformedOutputRetried(t *testing.T) {
	calls := 0
	gen := generatorFunc(func(context.Context, string, types.ModelTier) (string, error) {
		calls++
		if calls == 1 {
			return "not json at all", nil
		}
		return goodRaw, nil
	})

	c := NewCoordinator(gen, testResolver(t), nil, nil, fastConfig())
	_, _, err := c.Coordinate(context.Background(), "what is osmosis")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
}

func TestCoordinate_SoftFailureAccepted(t *testing.T) {
	twoSteps := `{"explanation":"ok","concept_tags":["a","b","c"],"simulation_identifier":"none","guided_steps":["one","two"],"confidence_level":"medium"}`
	calls := 0
	gen := generatorFunc(func(context.Context, string, types.ModelTier) (string, error) {
		calls++
		return twoSteps, nil
	})

	c := NewCoordinator(gen, testResolver(t), nil, nil, fastConfig())
	resp, sim, err := c.Coordinate(context.Background(), "what is diffusion")

	require.NoError(t, err)
	assert.Equal(t, 1, calls, "soft failures must not consume extra attempts")
	assert.Equal(t, []string{"one", "two"}, resp.GuidedSteps, "response accepted unchanged")
	assert.Equal(t, types.SourceNone, sim.Source)
}

func TestCoordinate_CallerCancellationDuringBackoff(t *testing.T) {
	gen := generatorFunc(func(context.Context, string, types.ModelTier) (string, error) {
		return "", stderrors.New("flaky")
	})

	cfg := fastConfig()
	cfg.BackoffBase = time.Second
	c := NewCoordinator(gen, testResolver(t), nil, nil, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, _, err := c.Coordinate(ctx, "what is a very flaky backend doing")
	require.ErrorIs(t, err, context.Canceled)
}

func TestRetryState_Transitions(t *testing.T) {
	s := newRetryState(3, time.Second)

	require.Equal(t, 1, s.begin())
	assert.Equal(t, phaseBackoff, s.observe(errors.NewTransportError("x")))
	assert.Equal(t, time.Second, s.delay())

	require.Equal(t, 2, s.begin())
	assert.Equal(t, phaseBackoff, s.observe(errors.NewTimeoutError("x")))
	assert.Equal(t, 2*time.Second, s.delay())

	require.Equal(t, 3, s.begin())
	assert.Equal(t, phaseExhausted, s.observe(errors.NewTransportError("x")), "no retry after the final attempt")
}

func TestRetryState_SuccessAndNonRetryable(t *testing.T) {
	s := newRetryState(3, time.Second)
	s.begin()
	assert.Equal(t, phaseSucceeded, s.observe(nil))

	s = newRetryState(3, time.Second)
	s.begin()
	assert.Equal(t, phaseExhausted, s.observe(errors.NewInvalidInputError("bad")))
}
