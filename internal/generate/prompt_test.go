package generate

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildPrompt_WithinBudget(t *testing.T) {
	prompt, estimate := BuildPrompt("what is gravity", 1024)
	assert.True(t, strings.HasSuffix(prompt, "what is gravity"))
	assert.Positive(t, estimate)
	assert.LessOrEqual(t, estimate, 1024)
}

func TestBuildPrompt_TruncatesOverBudget(t *testing.T) {
	long := strings.Repeat("thermodynamics entropy enthalpy ", 400)
	budget := 256

	prompt, estimate := BuildPrompt(long, budget)
	require.Less(t, len(prompt), len(promptTemplate)+len(long), "query must be truncated, not sent whole")
	assert.LessOrEqual(t, estimate, budget)
	// The request is truncated, never dropped.
	assert.True(t, strings.HasPrefix(prompt, promptTemplate))
	assert.Greater(t, len(prompt), len(promptTemplate))
}

func TestBuildPrompt_ZeroBudgetDisablesBounding(t *testing.T) {
	long := strings.Repeat("x ", 5000)
	prompt, _ := BuildPrompt(long, 0)
	assert.Equal(t, promptTemplate+strings.TrimSpace(long), prompt)
}
