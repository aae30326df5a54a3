package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/ruined/expertmind/internal/composer"
	"github.com/ruined/expertmind/internal/engine"
	"github.com/ruined/expertmind/internal/retrieval"
	"github.com/ruined/expertmind/internal/storage"
)

// Answer is the result of running a question through the pipeline.
type Answer struct {
	Text          string `json:"answer"`
	IsFromLearned bool   `json:"is_from_learned"`
	SourcePage    int    `json:"source_page,omitempty"`
	SourceText    string `json:"source_content,omitempty"`
	DurationMs    int64  `json:"duration_ms"`
}

// ChatStore persists the conversation turns the pipeline produces.
type ChatStore interface {
	SaveChatMessage(m storage.ChatMessage) error
}

// ContextProvider supplies the learned knowledge block for a question.
type ContextProvider interface {
	GetContext(ctx context.Context, documentID, question string) (used bool, block string)
}

// Answerer orchestrates answer generation: learned knowledge lookup, passage
// retrieval, prompt composition, and the chat model call. Both question and
// answer are recorded in the chat history.
type Answerer struct {
	knowledge ContextProvider
	retriever *retrieval.Retriever
	composer  *composer.Composer
	engine    engine.Engine
	chats     ChatStore
	chatModel string
	topK      int
}

// NewAnswerer creates an Answerer wired to all pipeline components.
// topK controls how many passages are retrieved (default 5 if <= 0).
func NewAnswerer(
	kn ContextProvider,
	retriever *retrieval.Retriever,
	comp *composer.Composer,
	eng engine.Engine,
	chats ChatStore,
	chatModel string,
	topK int,
) *Answerer {
	if topK <= 0 {
		topK = 5
	}
	return &Answerer{
		knowledge: kn,
		retriever: retriever,
		composer:  comp,
		engine:    eng,
		chats:     chats,
		chatModel: chatModel,
		topK:      topK,
	}
}

// Ask answers a question about a document:
//  1. Look up learned knowledge matching the question
//  2. Retrieve the most similar document passages
//  3. Compose the prompt with learned knowledge taking precedence
//  4. Call the chat model
//
// Learned knowledge and retrieval failures degrade gracefully; only a chat
// model failure aborts the pipeline.
func (a *Answerer) Ask(ctx context.Context, documentID, question string) (Answer, error) {
	start := time.Now()

	// 1. Learned knowledge. A lookup failure inside GetContext already
	// degrades to (false, "").
	learned, learnedBlock := a.knowledge.GetContext(ctx, documentID, question)

	// 2. Document passages. Retrieval failure leaves the model with learned
	// knowledge only, which is still a usable answer path.
	chunks, err := a.retriever.Retrieve(ctx, documentID, question, a.topK)
	if err != nil {
		slog.Warn("passage retrieval failed, answering without document context", "document", documentID, "error", err)
		chunks = nil
	}

	// 3 + 4. Compose and generate.
	messages := a.composer.Compose(question, learnedBlock, chunks)
	text, err := a.engine.Chat(ctx, a.chatModel, messages)
	if err != nil {
		return Answer{}, fmt.Errorf("generating answer: %w", err)
	}
	text = strings.TrimSpace(text)

	answer := Answer{
		Text:          text,
		IsFromLearned: learned,
		DurationMs:    time.Since(start).Milliseconds(),
	}
	if len(chunks) > 0 {
		answer.SourcePage = chunks[0].Page
		answer.SourceText = snippet(chunks[0].Text, 300)
	}

	a.recordTurn(documentID, "user", question)
	a.recordTurn(documentID, "assistant", text)

	slog.Debug("question answered",
		"document", documentID,
		"from_learned", learned,
		"chunks", len(chunks),
		"duration_ms", answer.DurationMs,
	)
	return answer, nil
}

// recordTurn appends one chat history row. History is observability, not
// state; a write failure is logged and otherwise ignored.
func (a *Answerer) recordTurn(documentID, role, content string) {
	err := a.chats.SaveChatMessage(storage.ChatMessage{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		Role:       role,
		Content:    content,
	})
	if err != nil {
		slog.Warn("failed to record chat turn", "document", documentID, "role", role, "error", err)
	}
}

func snippet(text string, max int) string {
	runes := []rune(text)
	if len(runes) <= max {
		return text
	}
	return string(runes[:max]) + "..."
}
