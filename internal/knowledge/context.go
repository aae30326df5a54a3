package knowledge

import (
	"fmt"
	"strings"
)

// Match-strength labels by similarity.
const (
	veryStrongThreshold = 0.9
	strongThreshold     = 0.8
)

var (
	entrySeparator = strings.Repeat("-", 80)
	blockSeparator = strings.Repeat("=", 100)
)

// composeBlock renders up to maxMatches candidates into the prioritized
// learned-context block handed to answer generation. Returns "" when there
// are no candidates.
func composeBlock(candidates []Candidate, maxMatches int) string {
	if len(candidates) == 0 {
		return ""
	}
	if len(candidates) > maxMatches {
		candidates = candidates[:maxMatches]
	}

	var parts []string
	for i, c := range candidates {
		parts = append(parts,
			fmt.Sprintf("\n%d. [%s MATCH - %.1f%% similar]", i+1, matchStrength(c.Similarity), c.Similarity*100),
			fmt.Sprintf("   Similar Question: '%s'", c.Entry.QuestionPattern),
			fmt.Sprintf("   VERIFIED ANSWER (confidence: %.2f, used %d times):", c.Entry.ConfidenceScore, c.Entry.UsageCount),
			fmt.Sprintf("   %s", c.Entry.ImprovedAnswer),
			entrySeparator,
		)
	}
	parts = append(parts, blockSeparator)
	return strings.Join(parts, "\n")
}

func matchStrength(similarity float64) string {
	switch {
	case similarity >= veryStrongThreshold:
		return "VERY STRONG"
	case similarity >= strongThreshold:
		return "STRONG"
	default:
		return "GOOD"
	}
}
