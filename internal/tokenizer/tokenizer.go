// Package tokenizer provides token counting helpers for prompt budgeting.
package tokenizer

import (
	"sync"

	"github.com/pkoukk/tiktoken-go"
)

var (
	encOnce sync.Once
	enc     *tiktoken.Tiktoken
)

// CountTokens returns the token count for the given text using the
// cl100k_base encoding. If the encoding is unavailable, it falls back to a
// conservative len/4 estimate.
func CountTokens(text string) int {
	if text == "" {
		return 0
	}
	e := getEncoding()
	if e == nil {
		return len(text) / 4
	}
	return len(e.Encode(text, nil, nil))
}

// TruncateToBudget trims text so its token estimate fits within budget.
// Returns the text unchanged when it already fits. Truncation is by token
// boundary when the encoding is available, by the len/4 heuristic otherwise.
func TruncateToBudget(text string, budget int) string {
	if budget <= 0 || text == "" {
		return text
	}

	e := getEncoding()
	if e == nil {
		maxLen := budget * 4
		if len(text) <= maxLen {
			return text
		}
		return text[:maxLen]
	}

	tokens := e.Encode(text, nil, nil)
	if len(tokens) <= budget {
		return text
	}
	return e.Decode(tokens[:budget])
}

func getEncoding() *tiktoken.Tiktoken {
	encOnce.Do(func() {
		e, err := tiktoken.GetEncoding("cl100k_base")
		if err == nil {
			enc = e
		}
	})
	return enc
}
