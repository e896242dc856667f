// Package validate checks candidate generation output against the response
// schema before the engine trusts it. Defects split into two classes: hard
// failures abort the candidate and trigger regeneration, soft failures are
// logged and the response is accepted unchanged.
package validate

import (
	"strings"

	"github.com/goccy/go-json"

	"github.com/blueberrycongee/tutormux/pkg/errors"
	"github.com/blueberrycongee/tutormux/pkg/types"
)

// Tag and step counts outside this range are advisory defects only.
const (
	minSeqLen = 3
	maxSeqLen = 5
)

// candidate mirrors the JSON shape the generation prompt asks for.
type candidate struct {
	Explanation          string   `json:"explanation"`
	ConceptTags          []string `json:"concept_tags"`
	SimulationIdentifier string   `json:"simulation_identifier"`
	GuidedSteps          []string `json:"guided_steps"`
	ConfidenceLevel      string   `json:"confidence_level"`
}

// Result carries an accepted response plus any advisory warnings collected
// while validating it.
type Result struct {
	Response types.StructuredResponse
	Warnings []string
}

// Check parses raw generation output and validates it.
//
// Errors are either malformed-output errors (the text is not the JSON we
// asked for) or hard validation errors (parseable but correctness-critical
// fields are unusable). Both are retryable within the caller's attempt
// budget. Everything else is reported as a warning on the accepted result.
func Check(raw string) (Result, error) {
	var c candidate
	if err := json.Unmarshal([]byte(stripFences(raw)), &c); err != nil {
		return Result{}, errors.NewMalformedOutputError("response is not valid JSON: " + err.Error())
	}

	var warnings []string

	// Empty explanation is the one correctness-critical content check:
	// it always triggers regeneration, never a warning.
	if strings.TrimSpace(c.Explanation) == "" {
		return Result{}, errors.NewValidationError("explanation is empty")
	}

	if len(c.ConceptTags) == 0 {
		return Result{}, errors.NewValidationError("concept_tags missing")
	}
	for _, tag := range c.ConceptTags {
		if strings.TrimSpace(tag) == "" {
			return Result{}, errors.NewValidationError("concept_tags contains an empty tag")
		}
	}
	if len(c.ConceptTags) < minSeqLen || len(c.ConceptTags) > maxSeqLen {
		warnings = append(warnings, "concept_tags count outside [3,5]")
	}

	// Step count is advisory: the response ships unchanged either way.
	if len(c.GuidedSteps) < minSeqLen || len(c.GuidedSteps) > maxSeqLen {
		warnings = append(warnings, "guided_steps count outside [3,5]")
	}

	identifier := strings.TrimSpace(c.SimulationIdentifier)
	if identifier == "" {
		identifier = "none"
		warnings = append(warnings, "simulation_identifier missing, defaulting to none")
	}

	confidence := types.ConfidenceLevel(strings.ToLower(strings.TrimSpace(c.ConfidenceLevel)))
	switch {
	case confidence == "":
		confidence = types.ConfidenceMedium
	case !types.ValidConfidence(string(confidence)):
		warnings = append(warnings, "unrecognized confidence_level "+string(confidence)+", defaulting to medium")
		confidence = types.ConfidenceMedium
	}

	return Result{
		Response: types.StructuredResponse{
			Explanation:          c.Explanation,
			ConceptTags:          c.ConceptTags,
			SimulationIdentifier: identifier,
			GuidedSteps:          c.GuidedSteps,
			ConfidenceLevel:      confidence,
		},
		Warnings: warnings,
	}, nil
}

// stripFences removes a surrounding markdown code fence, which models emit
// even when asked for bare JSON.
func stripFences(raw string) string {
	text := strings.TrimSpace(raw)
	if !strings.HasPrefix(text, "```") {
		return text
	}
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(strings.TrimSpace(text), "```")
	return strings.TrimSpace(text)
}
