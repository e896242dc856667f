// Package generate wraps the external generation capability with model
// selection, prompt budgeting, retry with exponential backoff and response
// validation. It is the only component that talks to the generation
// backend; everything it returns has passed validation and simulation
// resolution.
package generate

import (
	"context"
	stderrors "errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/time/rate"

	"github.com/blueberrycongee/tutormux/internal/observability"
	"github.com/blueberrycongee/tutormux/internal/simulation"
	"github.com/blueberrycongee/tutormux/internal/validate"
	"github.com/blueberrycongee/tutormux/pkg/errors"
	"github.com/blueberrycongee/tutormux/pkg/types"
)

// TracerName is the name of the tracer used by the engine.
const TracerName = "tutormux"

// Generator is the external generation capability. Implementations perform
// the actual model call; the coordinator never sees transport details.
type Generator interface {
	Generate(ctx context.Context, prompt string, tier types.ModelTier) (string, error)
}

// Config holds the retry and budgeting policy for the coordinator.
type Config struct {
	MaxAttempts       int           `yaml:"max_attempts"`        // Attempt budget, shared with regeneration (default: 3)
	BackoffBase       time.Duration `yaml:"backoff_base"`        // Base unit for the 1x/2x/4x schedule (default: 500ms)
	AttemptTimeout    time.Duration `yaml:"attempt_timeout"`     // Per-attempt deadline (default: 30s)
	PromptTokenBudget int           `yaml:"prompt_token_budget"` // Max estimated prompt tokens (default: 1024)
	RateLimit         float64       `yaml:"rate_limit"`          // Calls/sec to the backend, 0 disables
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:       3,
		BackoffBase:       500 * time.Millisecond,
		AttemptTimeout:    30 * time.Second,
		PromptTokenBudget: 1024,
	}
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = d.BackoffBase
	}
	if c.AttemptTimeout <= 0 {
		c.AttemptTimeout = d.AttemptTimeout
	}
	if c.PromptTokenBudget <= 0 {
		c.PromptTokenBudget = d.PromptTokenBudget
	}
}

// Coordinator orchestrates one generation call end to end.
type Coordinator struct {
	gen      Generator
	resolver *simulation.Resolver
	sink     types.UsageSink
	logger   *slog.Logger
	tracer   trace.Tracer
	limiter  *rate.Limiter
	cfg      Config
}

// NewCoordinator creates a coordinator over the given generation capability.
func NewCoordinator(gen Generator, resolver *simulation.Resolver, sink types.UsageSink, logger *slog.Logger, cfg Config) *Coordinator {
	cfg.applyDefaults()
	if sink == nil {
		sink = types.NopSink{}
	}
	if logger == nil {
		logger = slog.Default()
	}

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}

	return &Coordinator{
		gen:      gen,
		resolver: resolver,
		sink:     sink,
		logger:   logger,
		tracer:   otel.Tracer(TracerName),
		limiter:  limiter,
		cfg:      cfg,
	}
}

// Coordinate runs the full generation pipeline for a query: tier selection,
// prompt budgeting, bounded retries with exponential backoff, validation
// and simulation resolution. Hard validation failures regenerate within the
// same attempt budget. Exhaustion surfaces a terminal failure that callers
// must not retry further.
func (c *Coordinator) Coordinate(ctx context.Context, query string) (types.StructuredResponse, types.ResolvedSimulation, error) {
	tier := SelectTier(query)
	prompt, estimate := BuildPrompt(query, c.cfg.PromptTokenBudget)

	ctx, span := c.tracer.Start(ctx, "generate.coordinate",
		trace.WithAttributes(
			attribute.String("gen.model_tier", string(tier)),
			attribute.Int("gen.prompt_tokens", estimate),
		),
	)
	defer span.End()

	state := newRetryState(c.cfg.MaxAttempts, c.cfg.BackoffBase)

	for {
		attempt := state.begin()

		result, err := c.attempt(ctx, prompt, tier, estimate, attempt)
		switch state.observe(err) {
		case phaseSucceeded:
			sim := c.resolver.Resolve(ctx, result.Response.SimulationIdentifier)
			span.SetAttributes(attribute.Int("gen.attempts", attempt))
			return result.Response, sim, nil

		case phaseBackoff:
			c.logger.WarnContext(ctx, "generation attempt failed, backing off",
				"attempt", attempt,
				"delay", state.delay().String(),
				"error", err,
			)
			select {
			case <-ctx.Done():
				span.RecordError(ctx.Err())
				return types.StructuredResponse{}, types.ResolvedSimulation{}, ctx.Err()
			case <-time.After(state.delay()):
			}

		case phaseExhausted:
			span.RecordError(err)
			c.logger.ErrorContext(ctx, "generation attempts exhausted",
				"attempts", attempt,
				"error", err,
			)
			return types.StructuredResponse{}, types.ResolvedSimulation{},
				errors.NewGenerationExhaustedError(err.Error())
		}
	}
}

// attempt performs one bounded call to the backend plus validation, and
// emits exactly one usage record for the completed attempt.
func (c *Coordinator) attempt(ctx context.Context, prompt string, tier types.ModelTier, estimate, attempt int) (validate.Result, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, c.cfg.AttemptTimeout)
	defer cancel()

	if c.limiter != nil {
		if err := c.limiter.Wait(attemptCtx); err != nil {
			return validate.Result{}, errors.NewTimeoutError("rate limiter wait: " + err.Error())
		}
	}

	start := time.Now()
	raw, err := c.gen.Generate(attemptCtx, prompt, tier)
	duration := time.Since(start)

	if err != nil {
		err = classify(err)
	} else {
		var result validate.Result
		result, err = c.check(ctx, raw)
		if err == nil {
			c.record(ctx, tier, estimate, attempt, true, duration)
			return result, nil
		}
	}

	c.record(ctx, tier, estimate, attempt, false, duration)
	return validate.Result{}, err
}

func (c *Coordinator) check(ctx context.Context, raw string) (validate.Result, error) {
	result, err := validate.Check(raw)
	if err != nil {
		return validate.Result{}, err
	}
	for _, warning := range result.Warnings {
		c.logger.WarnContext(ctx, "response accepted with validation warning", "warning", warning)
	}
	return result, nil
}

func (c *Coordinator) record(ctx context.Context, tier types.ModelTier, estimate, attempt int, success bool, duration time.Duration) {
	c.sink.Record(types.UsageEvent{
		RequestID:     observability.RequestIDFromContext(ctx),
		Tier:          tier,
		TokenEstimate: estimate,
		Attempt:       attempt,
		Success:       success,
		Duration:      duration,
	})
}

// classify maps backend errors to the engine taxonomy. Deadline expiry is a
// retryable timeout; an already-typed EngineError passes through; anything
// else is a transient transport fault.
func classify(err error) error {
	var ee *errors.EngineError
	if stderrors.As(err, &ee) {
		return err
	}
	if stderrors.Is(err, context.DeadlineExceeded) {
		return errors.NewTimeoutError("generation attempt timed out")
	}
	return errors.NewTransportError(err.Error())
}
