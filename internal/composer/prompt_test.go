package composer

import (
	"strings"
	"testing"

	"github.com/ruined/expertmind/internal/retrieval"
)

func TestComposeShape(t *testing.T) {
	c := New(0)
	msgs := c.Compose("What is ML?", "", nil)

	if len(msgs) != 2 {
		t.Fatalf("message count = %d, want 2", len(msgs))
	}
	if msgs[0].Role != "system" || msgs[1].Role != "user" {
		t.Errorf("roles = %s, %s, want system, user", msgs[0].Role, msgs[1].Role)
	}
	if msgs[1].Content != "What is ML?" {
		t.Errorf("user content = %q", msgs[1].Content)
	}
	if !strings.Contains(msgs[0].Content, "RULES:") {
		t.Error("system message missing the rules")
	}
	if strings.Contains(msgs[0].Content, "LEARNED KNOWLEDGE") {
		t.Error("learned section present without learned knowledge")
	}
}

func TestComposeLearnedSectionPrecedesContext(t *testing.T) {
	c := New(0)
	msgs := c.Compose("q", "1. [STRONG MATCH - 85.0% similar]", []retrieval.Chunk{
		{Page: 2, Text: "passage text", Score: 0.7},
	})

	sys := msgs[0].Content
	learnedIdx := strings.Index(sys, "LEARNED KNOWLEDGE (High Priority):")
	contextIdx := strings.Index(sys, "Context:\n")
	if learnedIdx < 0 || contextIdx < 0 {
		t.Fatalf("missing sections in system message:\n%s", sys)
	}
	if learnedIdx > contextIdx {
		t.Error("learned knowledge must precede document context")
	}
	if !strings.Contains(sys, "PRIMARY reference") {
		t.Error("learned section missing priority instructions")
	}
	if !strings.Contains(sys, strings.Repeat("=", 96)) {
		t.Error("learned section missing its terminator line")
	}
	if !strings.Contains(sys, "(Score: 0.70, Page 2)\npassage text") {
		t.Errorf("context entry not formatted:\n%s", sys)
	}
}

func TestComposeWhitespaceLearnedBlockIgnored(t *testing.T) {
	c := New(0)
	msgs := c.Compose("q", "   \n  ", nil)
	if strings.Contains(msgs[0].Content, "LEARNED KNOWLEDGE") {
		t.Error("whitespace-only learned block produced a section")
	}
}

func TestBuildContextOrdersByScore(t *testing.T) {
	c := New(0)
	out := c.buildContext([]retrieval.Chunk{
		{Page: 1, Text: "low", Score: 0.2},
		{Page: 2, Text: "high", Score: 0.9},
		{Page: 3, Text: "mid", Score: 0.5},
	})

	hi := strings.Index(out, "high")
	mid := strings.Index(out, "mid")
	lo := strings.Index(out, "low")
	if !(hi < mid && mid < lo) {
		t.Errorf("context not ordered by score:\n%s", out)
	}
}

func TestBuildContextRespectsBudget(t *testing.T) {
	c := New(50) // tiny budget, roughly 200 chars
	big := strings.Repeat("filler ", 100)
	out := c.buildContext([]retrieval.Chunk{
		{Page: 1, Text: big, Score: 0.9},
		{Page: 2, Text: "small passage", Score: 0.5},
	})

	if strings.Contains(out, "filler") {
		t.Error("oversized chunk should have been dropped")
	}
	if !strings.Contains(out, "small passage") {
		t.Error("budget-fitting chunk should survive")
	}
}

func TestEstimateTokens(t *testing.T) {
	if got := EstimateTokens(""); got != 0 {
		t.Errorf("EstimateTokens(\"\") = %d", got)
	}
	if got := EstimateTokens("abcd"); got != 1 {
		t.Errorf("EstimateTokens(4 chars) = %d, want 1", got)
	}
	if got := EstimateTokens("abcde"); got != 2 {
		t.Errorf("EstimateTokens(5 chars) = %d, want 2", got)
	}
}
