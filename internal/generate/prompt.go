package generate

import (
	"strings"

	"github.com/blueberrycongee/tutormux/internal/tokenizer"
)

const promptTemplate = `You are an educational assistant. Explain the concept below for a learner.
Respond with a single JSON object and nothing else, using exactly these keys:
  "explanation": a clear explanation of the concept,
  "concept_tags": 3 to 5 short topic tags,
  "simulation_identifier": the identifier of a relevant interactive simulation, or "none",
  "guided_steps": 3 to 5 steps guiding the learner through the concept,
  "confidence_level": one of "high", "medium", "low".

Concept: `

// BuildPrompt composes the bounded generation prompt for a query and
// returns it with its token estimate. If the composed prompt would exceed
// the budget, the query text is truncated to fit; the request is never
// dropped outright.
func BuildPrompt(query string, budget int) (string, int) {
	query = strings.TrimSpace(query)
	prompt := promptTemplate + query
	estimate := tokenizer.CountTokens(prompt)

	if budget <= 0 || estimate <= budget {
		return prompt, estimate
	}

	overhead := tokenizer.CountTokens(promptTemplate)
	remaining := budget - overhead
	if remaining < 1 {
		remaining = 1
	}

	prompt = promptTemplate + tokenizer.TruncateToBudget(query, remaining)
	return prompt, tokenizer.CountTokens(prompt)
}
