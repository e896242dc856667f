// Package normalize turns raw concept queries into deterministic cache keys.
// Queries that differ only in casing, whitespace or a leading interrogative
// phrase map to the same key, which is the sole cache index.
package normalize

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// Namespace is prepended to all generated keys.
const Namespace = "concept"

// Leading phrases stripped before hashing. Matched case-insensitively
// against the already lower-cased text; longest phrases listed first so a
// single pass strips the most specific match.
var interrogativePrefixes = []string{
	"tell me about",
	"what is the",
	"what are",
	"what is",
	"how does",
	"explain",
	"describe",
	"define",
}

// Canonical returns the canonical text form of a raw query: NFKC-normalized,
// case-folded, whitespace-collapsed, trimmed, with one leading interrogative
// phrase removed. Total and idempotent for any input string.
func Canonical(raw string) string {
	text := norm.NFKC.String(raw)
	// Casers are stateful, so build one per call.
	text = cases.Fold().String(text)
	text = strings.Join(strings.Fields(text), " ")

	for _, prefix := range interrogativePrefixes {
		if !strings.HasPrefix(text, prefix) {
			continue
		}
		rest := text[len(prefix):]
		// Only strip a whole leading word, not a fragment of one.
		if rest == "" {
			break
		}
		if rest[0] == ' ' {
			text = strings.TrimSpace(rest)
		}
		break
	}

	return text
}

// Key derives the cache key for a raw query. The key format is
// concept:sha256(canonical text), mirroring the namespaced digest keys used
// by the cache stores.
func Key(raw string) string {
	sum := sha256.Sum256([]byte(Canonical(raw)))

	var b strings.Builder
	b.WriteString(Namespace)
	b.WriteString(":")
	b.WriteString(hex.EncodeToString(sum[:]))
	return b.String()
}
