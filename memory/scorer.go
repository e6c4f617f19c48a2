package memory

import (
	"math"
	"strings"
)

// CosineSimilarity returns the normalized dot product of a and b, in [-1, 1].
// A zero-length, zero-norm, or mismatched-length vector scores 0 against
// anything instead of erroring.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Tokenize splits a query into its distinct lowercased whitespace-delimited
// tokens, preserving first-seen order.
func Tokenize(query string) []string {
	fields := strings.Fields(strings.ToLower(query))
	if len(fields) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(fields))
	tokens := fields[:0]
	for _, f := range fields {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		tokens = append(tokens, f)
	}
	return tokens
}

// LexicalOverlap returns the fraction of tokens found as substrings of the
// lowercased content, in [0, 1]. An empty token set scores 0 so a blank
// query never produces spurious full matches.
func LexicalOverlap(tokens []string, content string) float64 {
	if len(tokens) == 0 {
		return 0
	}
	lower := strings.ToLower(content)
	hits := 0
	for _, tok := range tokens {
		if strings.Contains(lower, tok) {
			hits++
		}
	}
	return float64(hits) / float64(len(tokens))
}
