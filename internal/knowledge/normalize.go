package knowledge

import (
	"strings"
	"unicode"
)

// Normalize canonicalizes a question into its matching pattern: lower-cased,
// punctuation stripped, whitespace collapsed to single spaces. Two questions
// that normalize identically are the same pattern for upsert purposes.
// Idempotent.
func Normalize(question string) string {
	lowered := strings.ToLower(question)
	stripped := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || unicode.IsSpace(r) {
			return r
		}
		return -1
	}, lowered)
	return strings.Join(strings.Fields(stripped), " ")
}

// wordSet splits a normalized question into its set of words for the lexical
// fallback.
func wordSet(question string) map[string]struct{} {
	words := strings.Fields(Normalize(question))
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	return set
}
