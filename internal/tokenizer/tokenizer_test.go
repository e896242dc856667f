package tokenizer

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCountTokens(t *testing.T) {
	assert.Zero(t, CountTokens(""))

	short := CountTokens("gravity")
	long := CountTokens(strings.Repeat("gravity pulls masses together ", 50))
	assert.Greater(t, short, 0)
	assert.Greater(t, long, short)
}

func TestTruncateToBudget(t *testing.T) {
	text := strings.Repeat("explain the relationship between mass and weight ", 100)

	assert.Equal(t, text, TruncateToBudget(text, 1_000_000), "a generous budget leaves text unchanged")
	assert.Equal(t, text, TruncateToBudget(text, 0), "a zero budget disables truncation")

	truncated := TruncateToBudget(text, 10)
	assert.Less(t, len(truncated), len(text))
	assert.LessOrEqual(t, CountTokens(truncated), 10)
}
