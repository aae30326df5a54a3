package composer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/ruined/expertmind/internal/engine"
	"github.com/ruined/expertmind/internal/retrieval"
)

const defaultMaxContextTokens = 4000

const systemRules = `You are an assistant that answers questions about an uploaded document using the provided context.

RULES:
1. Learned knowledge overrides document context.
2. If learned knowledge includes a correction or detail, you MUST use it and reflect it in your answer.
3. Only use document context to support or extend learned knowledge.
4. If no learned knowledge is relevant, answer from the document context alone.`

// Composer assembles the chat messages for answer generation from learned
// knowledge, retrieved passages, and the user's question. Learned knowledge
// is injected above the document context with instructions that make it take
// precedence.
type Composer struct {
	MaxContextTokens int
}

// New creates a Composer with the given token budget for injected context.
// If maxContextTokens <= 0, the default (4000) is used.
func New(maxContextTokens int) *Composer {
	if maxContextTokens <= 0 {
		maxContextTokens = defaultMaxContextTokens
	}
	return &Composer{MaxContextTokens: maxContextTokens}
}

// Compose builds the message sequence for the chat model: a system message
// carrying the rules, the learned knowledge section, and the retrieved
// passages, followed by the user's question.
func (c *Composer) Compose(question, learnedBlock string, chunks []retrieval.Chunk) []engine.Message {
	var sb strings.Builder
	sb.WriteString(systemRules)

	if section := learnedSection(learnedBlock); section != "" {
		sb.WriteString("\n\n")
		sb.WriteString(section)
	}

	if context := c.buildContext(chunks); context != "" {
		sb.WriteString("\n\nContext:\n")
		sb.WriteString(context)
	}

	return []engine.Message{
		{Role: "system", Content: sb.String()},
		{Role: "user", Content: question},
	}
}

// learnedSection wraps the composed learned knowledge block in its priority
// preamble. An empty block produces no section.
func learnedSection(block string) string {
	if strings.TrimSpace(block) == "" {
		return ""
	}
	return fmt.Sprintf(`LEARNED KNOWLEDGE (High Priority):
The following information has been verified and enhanced through user feedback:

%s

INSTRUCTIONS:
1. Use the LEARNED KNOWLEDGE above as your PRIMARY reference
2. If the current question is similar to any learned patterns, prioritize that knowledge
3. Only use the regular context below to support or extend the learned knowledge
4. If learned knowledge contains corrections or enhancements, you MUST incorporate them
%s`, block, strings.Repeat("=", 96))
}

// buildContext formats retrieved passages highest score first, dropping
// lowest-scoring passages once the token budget is spent.
func (c *Composer) buildContext(chunks []retrieval.Chunk) string {
	if len(chunks) == 0 {
		return ""
	}

	sorted := make([]retrieval.Chunk, len(chunks))
	copy(sorted, chunks)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Score > sorted[j].Score
	})

	remaining := c.MaxContextTokens
	var sb strings.Builder
	for _, ch := range sorted {
		entry := formatChunk(ch)
		tokens := EstimateTokens(entry)
		if tokens > remaining {
			continue
		}
		sb.WriteString(entry)
		remaining -= tokens
	}
	return sb.String()
}

func formatChunk(ch retrieval.Chunk) string {
	return fmt.Sprintf("(Score: %.2f, Page %d)\n%s\n\n", ch.Score, ch.Page, ch.Text)
}

// EstimateTokens provides a rough token count using 4 chars per token heuristic.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}
