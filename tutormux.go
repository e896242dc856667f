// Package tutormux provides a query orchestration and caching engine for
// educational concept explanations. It fronts an expensive external
// generation capability with a two-tier cache, per-concept request
// coalescing, bounded retries and a trusted simulation whitelist.
//
// TutorMux can be used in two modes:
//   - Library Mode: Import and use directly in your Go application
//   - Server Mode: Run as a standalone HTTP service
//
// Basic usage:
//
//	engine, err := tutormux.New(
//	    tutormux.WithGenerator(myGenerator),
//	    tutormux.WithWhitelist(table),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer engine.Close()
//
//	answer, err := engine.Explain(ctx, "What is photosynthesis?")
package tutormux

import (
	"github.com/blueberrycongee/tutormux/internal/generate"
	"github.com/blueberrycongee/tutormux/internal/simulation"
	"github.com/blueberrycongee/tutormux/internal/store"
	"github.com/blueberrycongee/tutormux/pkg/errors"
	"github.com/blueberrycongee/tutormux/pkg/types"
)

// Version is the current version of TutorMux.
const Version = "1.0.0"

// Re-export core request/response types for convenience.
// Users can use tutormux.Answer instead of types.Answer.
type (
	// Answer is what the engine hands back for a query.
	Answer = types.Answer

	// StructuredResponse is the validated output of one generation call.
	StructuredResponse = types.StructuredResponse

	// ResolvedSimulation is whitelist-derived simulation metadata.
	ResolvedSimulation = types.ResolvedSimulation

	// CacheEntry is the persisted record for one normalized concept.
	CacheEntry = types.CacheEntry

	// ModelTier selects the cost class of the generation model.
	ModelTier = types.ModelTier

	// ConfidenceLevel expresses how much the engine trusts an answer.
	ConfidenceLevel = types.ConfidenceLevel

	// SimulationSource identifies where simulation metadata came from.
	SimulationSource = types.SimulationSource

	// UsageEvent is emitted once per completed generation attempt.
	UsageEvent = types.UsageEvent

	// UsageSink receives usage events.
	UsageSink = types.UsageSink
)

// Re-export generation types.
type (
	// GenerationConfig holds retry and budgeting policy for the
	// coordinator.
	GenerationConfig = generate.Config
)

// Re-export store types.
type (
	// FastStore is the non-authoritative accelerator tier.
	FastStore = store.FastStore

	// DurableStore is the durable source-of-truth tier.
	DurableStore = store.DurableStore

	// StoreConfig configures both cache tiers.
	StoreConfig = store.Config
)

// Re-export whitelist types.
type (
	// WhitelistTable is the immutable simulation whitelist.
	WhitelistTable = simulation.Table
)

// Re-export error types.
type (
	// EngineError represents a standardized engine error.
	EngineError = errors.EngineError
)

// Re-export model tier constants.
const (
	TierStandard = types.TierStandard
	TierAdvanced = types.TierAdvanced
)

// Re-export confidence constants.
const (
	ConfidenceHigh   = types.ConfidenceHigh
	ConfidenceMedium = types.ConfidenceMedium
	ConfidenceLow    = types.ConfidenceLow
)

// Re-export simulation source constants.
const (
	SourceExternal    = types.SourceExternal
	SourceProprietary = types.SourceProprietary
	SourceNone        = types.SourceNone
)

// Re-export caller-visible error codes.
const (
	CodeInvalidInput      = errors.CodeInvalidInput
	CodeGenerationFailure = errors.CodeGenerationFailure
	CodeValidationFailure = errors.CodeValidationFailure
)

// Re-export error factory functions.
var (
	NewInvalidInputError        = errors.NewInvalidInputError
	NewTimeoutError             = errors.NewTimeoutError
	NewTransportError           = errors.NewTransportError
	NewValidationError          = errors.NewValidationError
	NewGenerationExhaustedError = errors.NewGenerationExhaustedError
	NewInternalError            = errors.NewInternalError
)

// LoadWhitelist reads a simulation whitelist table from a YAML file.
func LoadWhitelist(path string) (*WhitelistTable, error) {
	return simulation.LoadTable(path)
}
