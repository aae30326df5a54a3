package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/ruined/expertmind/internal/composer"
	"github.com/ruined/expertmind/internal/engine"
	"github.com/ruined/expertmind/internal/retrieval"
	"github.com/ruined/expertmind/internal/storage"
)

type fakeKnowledge struct {
	used  bool
	block string
}

func (f *fakeKnowledge) GetContext(ctx context.Context, documentID, question string) (bool, string) {
	return f.used, f.block
}

type fakeChatStore struct {
	messages []storage.ChatMessage
	err      error
}

func (f *fakeChatStore) SaveChatMessage(m storage.ChatMessage) error {
	if f.err != nil {
		return f.err
	}
	f.messages = append(f.messages, m)
	return nil
}

// fakeChatEngine answers with a fixed reply and captures the prompt, while
// embedding queries with a fixed vector for the retriever.
type fakeChatEngine struct {
	reply    string
	chatErr  error
	embedErr error
	prompt   []engine.Message
}

func (f *fakeChatEngine) Chat(ctx context.Context, model string, messages []engine.Message) (string, error) {
	f.prompt = messages
	if f.chatErr != nil {
		return "", f.chatErr
	}
	return f.reply, nil
}

func (f *fakeChatEngine) Embed(ctx context.Context, model, text string) ([]float32, error) {
	if f.embedErr != nil {
		return nil, f.embedErr
	}
	return []float32{1, 0}, nil
}

func (f *fakeChatEngine) IsRunning(ctx context.Context) bool               { return true }
func (f *fakeChatEngine) ListModels(ctx context.Context) ([]string, error) { return nil, nil }
func (f *fakeChatEngine) HasModel(ctx context.Context, name string) bool   { return true }
func (f *fakeChatEngine) PullModel(ctx context.Context, name string, onProgress func(engine.PullProgress)) error {
	return nil
}

type staticVectorStore struct {
	records []retrieval.Record
}

func (s *staticVectorStore) Insert(records []retrieval.Record) error { return nil }
func (s *staticVectorStore) Records(documentID string) ([]retrieval.Record, error) {
	return s.records, nil
}
func (s *staticVectorStore) Count(documentID string) (int, error) { return len(s.records), nil }

func newTestAnswerer(eng *fakeChatEngine, kn *fakeKnowledge, chats *fakeChatStore, records []retrieval.Record) *Answerer {
	retriever := retrieval.NewRetriever(
		retrieval.NewEmbedder(eng, "test-embed"),
		&staticVectorStore{records: records},
	)
	return NewAnswerer(kn, retriever, composer.New(0), eng, chats, "test-chat", 3)
}

func TestAskComposesAndRecords(t *testing.T) {
	eng := &fakeChatEngine{reply: "  The answer.  "}
	chats := &fakeChatStore{}
	records := []retrieval.Record{
		{ID: "v1", DocumentID: "doc1", Page: 4, TextChunk: "relevant passage", Embedding: []float32{1, 0}},
	}
	a := newTestAnswerer(eng, &fakeKnowledge{used: true, block: "learned block"}, chats, records)

	answer, err := a.Ask(context.Background(), "doc1", "What is ML?")
	if err != nil {
		t.Fatalf("Ask: %v", err)
	}
	if answer.Text != "The answer." {
		t.Errorf("answer = %q, want trimmed reply", answer.Text)
	}
	if !answer.IsFromLearned {
		t.Error("IsFromLearned should mirror the knowledge lookup")
	}
	if answer.SourcePage != 4 || answer.SourceText != "relevant passage" {
		t.Errorf("source = page %d %q", answer.SourcePage, answer.SourceText)
	}

	if len(eng.prompt) != 2 || eng.prompt[0].Role != "system" {
		t.Fatalf("prompt shape: %+v", eng.prompt)
	}
	if !strings.Contains(eng.prompt[0].Content, "learned block") {
		t.Error("learned block missing from system prompt")
	}
	if !strings.Contains(eng.prompt[0].Content, "relevant passage") {
		t.Error("retrieved passage missing from system prompt")
	}

	if len(chats.messages) != 2 {
		t.Fatalf("chat turns = %d, want 2", len(chats.messages))
	}
	if chats.messages[0].Role != "user" || chats.messages[1].Role != "assistant" {
		t.Errorf("turn roles = %s, %s", chats.messages[0].Role, chats.messages[1].Role)
	}
	if chats.messages[1].Content != "The answer." {
		t.Errorf("assistant turn = %q", chats.messages[1].Content)
	}
}

func TestAskDegradesWhenRetrievalFails(t *testing.T) {
	eng := &fakeChatEngine{reply: "answer", embedErr: errors.New("embed down")}
	a := newTestAnswerer(eng, &fakeKnowledge{used: true, block: "learned"}, &fakeChatStore{}, nil)

	answer, err := a.Ask(context.Background(), "doc1", "q")
	if err != nil {
		t.Fatalf("Ask should survive retrieval failure: %v", err)
	}
	if answer.SourcePage != 0 || answer.SourceText != "" {
		t.Errorf("source should be empty without retrieval: %+v", answer)
	}
	if !strings.Contains(eng.prompt[0].Content, "learned") {
		t.Error("learned knowledge should still reach the prompt")
	}
}

func TestAskChatFailureAborts(t *testing.T) {
	eng := &fakeChatEngine{chatErr: errors.New("model crashed")}
	chats := &fakeChatStore{}
	a := newTestAnswerer(eng, &fakeKnowledge{}, chats, nil)

	if _, err := a.Ask(context.Background(), "doc1", "q"); err == nil {
		t.Fatal("expected error when the chat model fails")
	}
	if len(chats.messages) != 0 {
		t.Error("failed answers must not be recorded in history")
	}
}

func TestAskHistoryWriteFailureIgnored(t *testing.T) {
	eng := &fakeChatEngine{reply: "answer"}
	a := newTestAnswerer(eng, &fakeKnowledge{}, &fakeChatStore{err: errors.New("disk full")}, nil)

	if _, err := a.Ask(context.Background(), "doc1", "q"); err != nil {
		t.Fatalf("history write failure should not abort: %v", err)
	}
}

func TestSnippet(t *testing.T) {
	if got := snippet("short", 10); got != "short" {
		t.Errorf("snippet = %q", got)
	}
	long := strings.Repeat("a", 20)
	if got := snippet(long, 10); got != strings.Repeat("a", 10)+"..." {
		t.Errorf("snippet = %q", got)
	}
}
