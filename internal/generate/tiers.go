package generate

import (
	"regexp"
	"strings"

	"github.com/blueberrycongee/tutormux/pkg/types"
)

// Queries shorter than this (trimmed) are simple lookups and stay on the
// standard tier regardless of phrasing.
const shortQueryThreshold = 40

var (
	definePattern    = regexp.MustCompile(`^\s*define\s+\S+`)
	reasoningPattern = regexp.MustCompile(`\b(why|how|compare|comparison|versus|vs)\b|relationship between`)
)

// SelectTier picks the model tier for a query. Short queries and bare
// "define X" lookups use the low-cost tier; comparison and causal-reasoning
// cues escalate to the advanced tier; everything else defaults to standard.
func SelectTier(query string) types.ModelTier {
	text := strings.ToLower(strings.TrimSpace(query))

	if len(text) < shortQueryThreshold || definePattern.MatchString(text) {
		return types.TierStandard
	}
	if reasoningPattern.MatchString(text) {
		return types.TierAdvanced
	}
	return types.TierStandard
}
