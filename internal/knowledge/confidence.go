package knowledge

import (
	"fmt"
	"strings"

	"github.com/ruined/expertmind/internal/storage"
)

// maxConfidence is the upper bound every confidence adjustment clamps to.
const maxConfidence = 2.0

// Seed and merge deltas per feedback variant.
const (
	likeSeed       = 1.2
	likeBoost      = 0.3
	dislikeSeed    = 0.9
	noteSeedStrong = 1.0 // enhancement, clarification
	noteSeedOther  = 0.8
	noteBoostMajor = 0.1 // enhancement, clarification, context, example
	noteBoostMinor = 0.05
)

// ruleFunc computes the merged answer text and confidence for an event,
// against the existing entry for the same pattern (nil when none). ok=false
// means the event is log-only and must not touch learned knowledge. Pure:
// no I/O, no clock.
type ruleFunc func(existing *storage.LearnedEntry, e Event) (answer string, confidence float64, ok bool)

// rules is the total rule table over the closed Kind set.
var rules = map[Kind]ruleFunc{
	KindLike:    likeRule,
	KindDislike: dislikeRule,
	KindNote:    noteRule,
}

// applyRule dispatches an event through the rule table.
func applyRule(existing *storage.LearnedEntry, e Event) (string, float64, bool) {
	return rules[e.Kind](existing, e)
}

func clamp(confidence float64) float64 {
	if confidence > maxConfidence {
		return maxConfidence
	}
	return confidence
}

// likeRule: a liked answer is saved as-is with a high seed. Repeat likes
// corroborate: confidence grows and any new additional context is appended
// as a suffix block, never replacing the merged answer.
func likeRule(existing *storage.LearnedEntry, e Event) (string, float64, bool) {
	info := strings.TrimSpace(e.Info)

	if existing == nil {
		answer := e.Answer
		if info != "" {
			answer = fmt.Sprintf("%s\n\nUser's Additional Context: %s", e.Answer, info)
		}
		return answer, likeSeed, true
	}

	answer := existing.ImprovedAnswer
	if info != "" {
		answer = fmt.Sprintf("%s\n\nAdditional Context: %s", existing.ImprovedAnswer, info)
	}
	return answer, clamp(existing.ConfidenceScore + likeBoost), true
}

// dislikeRule: a dislike without improvement text is log-only. With
// improvement text, the correction replaces the merged answer and confidence
// is set to exactly the dislike seed, not accumulated.
func dislikeRule(existing *storage.LearnedEntry, e Event) (string, float64, bool) {
	info := strings.TrimSpace(e.Info)
	if info == "" {
		return "", 0, false
	}
	return fmt.Sprintf("User suggested improvement: %s", info), dislikeSeed, true
}

// noteRule: a note annotates the answer with a kind-tagged block. Merges
// append to the existing merged answer and add a small confidence boost.
func noteRule(existing *storage.LearnedEntry, e Event) (string, float64, bool) {
	content := strings.TrimSpace(e.Info)

	if existing == nil {
		return noteSeedAnswer(e.Answer, e.NoteKind, content), noteSeed(e.NoteKind), true
	}

	answer := fmt.Sprintf("%s\n\nAdditional Note (%s): %s", existing.ImprovedAnswer, e.NoteKind, content)
	return answer, clamp(existing.ConfidenceScore + noteBoost(e.NoteKind)), true
}

func noteSeedAnswer(answer string, kind NoteKind, content string) string {
	switch kind {
	case NoteEnhancement:
		return fmt.Sprintf("%s\n\nUser Enhancement: %s", answer, content)
	case NoteClarification:
		return fmt.Sprintf("%s\n\nClarification: %s", answer, content)
	case NoteCorrection:
		return fmt.Sprintf("Corrected Answer: %s\n\n[Original answer: %s]", content, answer)
	case NoteContext:
		return fmt.Sprintf("%s\n\nAdditional Context: %s", answer, content)
	case NoteExample:
		return fmt.Sprintf("%s\n\nExample: %s", answer, content)
	default:
		return fmt.Sprintf("%s\n\nNote (%s): %s", answer, kind, content)
	}
}

func noteSeed(kind NoteKind) float64 {
	if kind == NoteEnhancement || kind == NoteClarification {
		return noteSeedStrong
	}
	return noteSeedOther
}

func noteBoost(kind NoteKind) float64 {
	switch kind {
	case NoteEnhancement, NoteClarification, NoteContext, NoteExample:
		return noteBoostMajor
	}
	return noteBoostMinor
}
