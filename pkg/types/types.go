// Package types defines the core request, response and cache record types
// shared by the orchestration engine and its callers.
package types

import (
	"time"
)

// ModelTier selects the cost class of the external generation model.
type ModelTier string

const (
	// TierStandard is the low-cost model tier used for simple lookups.
	TierStandard ModelTier = "standard"

	// TierAdvanced is the higher-cost tier used for comparison and
	// causal-reasoning queries.
	TierAdvanced ModelTier = "advanced"
)

// SimulationSource identifies where resolved simulation metadata came from.
type SimulationSource string

const (
	SourceExternal    SimulationSource = "external"    // Third-party hosted simulation
	SourceProprietary SimulationSource = "proprietary" // First-party simulation
	SourceNone        SimulationSource = "none"        // No simulation attached
)

// ConfidenceLevel expresses how much the engine trusts a generated answer.
type ConfidenceLevel string

const (
	ConfidenceHigh   ConfidenceLevel = "high"
	ConfidenceMedium ConfidenceLevel = "medium"
	ConfidenceLow    ConfidenceLevel = "low"
)

// ValidConfidence reports whether s is one of the three recognized levels.
func ValidConfidence(s string) bool {
	switch ConfidenceLevel(s) {
	case ConfidenceHigh, ConfidenceMedium, ConfidenceLow:
		return true
	}
	return false
}

// StructuredResponse is the validated output of one generation call.
// It is immutable once it has passed validation.
type StructuredResponse struct {
	Explanation          string          `json:"explanation"`
	ConceptTags          []string        `json:"concept_tags"`
	SimulationIdentifier string          `json:"simulation_identifier"`
	GuidedSteps          []string        `json:"guided_steps"`
	ConfidenceLevel      ConfidenceLevel `json:"confidence_level"`
}

// ResolvedSimulation is whitelist-derived simulation metadata. Only the
// identifier may originate from generation output; every other field comes
// from the trusted table.
type ResolvedSimulation struct {
	Identifier string           `json:"identifier"`
	URL        string           `json:"url,omitempty"`
	Source     SimulationSource `json:"source"`
	Provider   string           `json:"provider,omitempty"`
	Available  bool             `json:"available"`
}

// NoSimulation returns the absent-simulation marker.
func NoSimulation() ResolvedSimulation {
	return ResolvedSimulation{
		Identifier: "none",
		Source:     SourceNone,
		Available:  false,
	}
}

// CacheEntry is the persisted record for one normalized key. It is owned by
// the orchestrator and mutated only through its get/put operations.
type CacheEntry struct {
	Key            string             `json:"concept_id"`
	Response       StructuredResponse `json:"response"`
	Simulation     ResolvedSimulation `json:"simulation"`
	CreatedAt      time.Time          `json:"created_at"`
	AccessCount    int64              `json:"access_count"`
	LastAccessedAt time.Time          `json:"last_accessed"`
}

// Answer is what the orchestrator hands back to callers.
type Answer struct {
	Response   StructuredResponse `json:"response"`
	Simulation ResolvedSimulation `json:"simulation"`
	Cached     bool               `json:"cached"`
	Timestamp  time.Time          `json:"timestamp"`
}

// UsageEvent is emitted once per completed generation attempt.
type UsageEvent struct {
	RequestID     string        `json:"request_id"`
	Tier          ModelTier     `json:"model_tier"`
	TokenEstimate int           `json:"token_estimate"`
	Attempt       int           `json:"attempt"`
	Success       bool          `json:"success"`
	Duration      time.Duration `json:"duration"`
}

// UsageSink receives usage events. Implementations must be safe for
// concurrent use; the engine treats the sink as write-only.
type UsageSink interface {
	Record(event UsageEvent)
}

// NopSink discards all usage events.
type NopSink struct{}

// Record implements UsageSink.
func (NopSink) Record(UsageEvent) {}
