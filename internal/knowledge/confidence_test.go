package knowledge

import (
	"math"
	"strings"
	"testing"

	"github.com/ruined/expertmind/internal/storage"
)

func TestLikeSeedsNewEntry(t *testing.T) {
	answer, confidence, ok := applyRule(nil, Event{Kind: KindLike, Answer: "ML is machine learning."})
	if !ok {
		t.Fatal("like should create an entry")
	}
	if answer != "ML is machine learning." {
		t.Errorf("answer = %q, want the submitted answer unchanged", answer)
	}
	if confidence != 1.2 {
		t.Errorf("confidence = %v, want 1.2", confidence)
	}
}

func TestLikeWithInfoAppendsContext(t *testing.T) {
	answer, _, _ := applyRule(nil, Event{Kind: KindLike, Answer: "base", Info: "mention deep learning"})
	if !strings.HasPrefix(answer, "base") {
		t.Errorf("answer should start with the original: %q", answer)
	}
	if !strings.Contains(answer, "Additional Context: mention deep learning") {
		t.Errorf("answer missing context block: %q", answer)
	}
}

func TestLikeMergeBoostsAndAppends(t *testing.T) {
	existing := &storage.LearnedEntry{ImprovedAnswer: "original", ConfidenceScore: 1.2}

	answer, confidence, ok := applyRule(existing, Event{Kind: KindLike, Answer: "ignored", Info: "more detail"})
	if !ok {
		t.Fatal("like merge should apply")
	}
	if confidence != 1.5 {
		t.Errorf("confidence = %v, want 1.5", confidence)
	}
	if !strings.HasPrefix(answer, "original") || !strings.Contains(answer, "Additional Context: more detail") {
		t.Errorf("merged answer = %q", answer)
	}

	// Without info, the merged answer is untouched.
	answer, _, _ = applyRule(existing, Event{Kind: KindLike, Answer: "ignored"})
	if answer != "original" {
		t.Errorf("merge without info changed the answer: %q", answer)
	}
}

func TestLikeConfidenceClampsAtMax(t *testing.T) {
	entry := &storage.LearnedEntry{ImprovedAnswer: "a", ConfidenceScore: 1.2}
	for i := 0; i < 10; i++ {
		answer, confidence, _ := applyRule(entry, Event{Kind: KindLike})
		if confidence > 2.0 {
			t.Fatalf("confidence %v exceeded 2.0 on iteration %d", confidence, i)
		}
		entry = &storage.LearnedEntry{ImprovedAnswer: answer, ConfidenceScore: confidence}
	}
	if entry.ConfidenceScore != 2.0 {
		t.Errorf("confidence = %v, want clamp at 2.0", entry.ConfidenceScore)
	}
}

func TestDislikeWithoutImprovementIsLogOnly(t *testing.T) {
	if _, _, ok := applyRule(nil, Event{Kind: KindDislike, Answer: "bad answer"}); ok {
		t.Error("content-free dislike must not create an entry")
	}
	if _, _, ok := applyRule(nil, Event{Kind: KindDislike, Answer: "bad", Info: "   "}); ok {
		t.Error("whitespace-only improvement must not create an entry")
	}
}

func TestDislikeWithImprovementSeedsCorrection(t *testing.T) {
	answer, confidence, ok := applyRule(nil, Event{Kind: KindDislike, Answer: "bad", Info: "needs a diagram"})
	if !ok {
		t.Fatal("dislike with improvement should create an entry")
	}
	if confidence != 0.9 {
		t.Errorf("confidence = %v, want 0.9", confidence)
	}
	if !strings.HasPrefix(answer, "User suggested improvement:") || !strings.Contains(answer, "needs a diagram") {
		t.Errorf("answer = %q, want a correction marker with the improvement text", answer)
	}
	if strings.Contains(answer, "bad") {
		t.Errorf("disliked answer should not lead the correction: %q", answer)
	}
}

func TestDislikeMergeResetsConfidence(t *testing.T) {
	existing := &storage.LearnedEntry{ImprovedAnswer: "liked answer", ConfidenceScore: 1.8}

	answer, confidence, ok := applyRule(existing, Event{Kind: KindDislike, Answer: "x", Info: "actually it is Y"})
	if !ok {
		t.Fatal("dislike merge should apply")
	}
	if confidence != 0.9 {
		t.Errorf("confidence = %v, want exactly 0.9 (reset, not additive)", confidence)
	}
	if strings.Contains(answer, "liked answer") {
		t.Errorf("prior answer should be replaced: %q", answer)
	}
}

func TestNoteSeeds(t *testing.T) {
	cases := []struct {
		kind NoteKind
		want float64
	}{
		{NoteEnhancement, 1.0},
		{NoteClarification, 1.0},
		{NoteCorrection, 0.8},
		{NoteContext, 0.8},
		{NoteExample, 0.8},
		{NoteKind("hunch"), 0.8},
	}
	for _, c := range cases {
		_, confidence, ok := applyRule(nil, Event{Kind: KindNote, NoteKind: c.kind, Answer: "a", Info: "n"})
		if !ok {
			t.Fatalf("%s: note should create an entry", c.kind)
		}
		if confidence != c.want {
			t.Errorf("%s: seed = %v, want %v", c.kind, confidence, c.want)
		}
	}
}

func TestNoteSeedAnswerShapes(t *testing.T) {
	cases := []struct {
		kind     NoteKind
		contains string
	}{
		{NoteEnhancement, "User Enhancement: n"},
		{NoteClarification, "Clarification: n"},
		{NoteContext, "Additional Context: n"},
		{NoteExample, "Example: n"},
		{NoteKind("hunch"), "Note (hunch): n"},
	}
	for _, c := range cases {
		answer, _, _ := applyRule(nil, Event{Kind: KindNote, NoteKind: c.kind, Answer: "base", Info: "n"})
		if !strings.HasPrefix(answer, "base") || !strings.Contains(answer, c.contains) {
			t.Errorf("%s: answer = %q, want base answer plus %q", c.kind, answer, c.contains)
		}
	}

	// Correction leads with the corrected text and keeps the original inline.
	answer, _, _ := applyRule(nil, Event{Kind: KindNote, NoteKind: NoteCorrection, Answer: "base", Info: "fixed"})
	if !strings.HasPrefix(answer, "Corrected Answer: fixed") || !strings.Contains(answer, "[Original answer: base]") {
		t.Errorf("correction answer = %q", answer)
	}
}

func TestNoteMergeBoosts(t *testing.T) {
	existing := &storage.LearnedEntry{ImprovedAnswer: "prior", ConfidenceScore: 1.0}

	answer, confidence, _ := applyRule(existing, Event{Kind: KindNote, NoteKind: NoteContext, Answer: "x", Info: "extra"})
	if math.Abs(confidence-1.1) > 1e-9 {
		t.Errorf("context note merge confidence = %v, want 1.1", confidence)
	}
	if !strings.HasPrefix(answer, "prior") || !strings.Contains(answer, "Additional Note (context): extra") {
		t.Errorf("merged answer = %q", answer)
	}

	_, confidence, _ = applyRule(existing, Event{Kind: KindNote, NoteKind: NoteKind("hunch"), Answer: "x", Info: "n"})
	if math.Abs(confidence-1.05) > 1e-9 {
		t.Errorf("unknown-kind merge confidence = %v, want 1.05", confidence)
	}
}

func TestRuleTableIsTotal(t *testing.T) {
	for _, kind := range []Kind{KindLike, KindDislike, KindNote} {
		if rules[kind] == nil {
			t.Errorf("no rule registered for kind %d", kind)
		}
	}
}

func TestLogTags(t *testing.T) {
	cases := []struct {
		event Event
		want  string
	}{
		{Event{Kind: KindLike}, "like"},
		{Event{Kind: KindDislike}, "dislike"},
		{Event{Kind: KindNote, NoteKind: NoteCorrection}, "note_correction"},
	}
	for _, c := range cases {
		if got := c.event.LogTag(); got != c.want {
			t.Errorf("LogTag = %q, want %q", got, c.want)
		}
	}
}
