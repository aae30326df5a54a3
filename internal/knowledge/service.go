package knowledge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/ruined/expertmind/internal/storage"
)

// ErrUnknownNoteKind is returned by RecordNote under the strict validation
// policy when the note kind is not recognized.
var ErrUnknownNoteKind = errors.New("unknown note kind")

// ErrInvalidFeedbackType is returned by RecordFeedback for types other than
// "like" and "dislike".
var ErrInvalidFeedbackType = errors.New("invalid feedback type")

// Config tunes matching and validation. Zero values are not usable; start
// from DefaultConfig.
type Config struct {
	SimilarityThreshold float64
	LexicalThreshold    float64
	LexicalPenalty      float64
	MaxMatches          int
	StrictNoteKinds     bool
	EmbedTimeout        time.Duration
}

// DefaultConfig returns the tuned defaults: cosine acceptance at 0.75,
// lexical fallback at 0.6 with a 0.8 trust penalty, top 3 matches composed.
func DefaultConfig() Config {
	return Config{
		SimilarityThreshold: 0.75,
		LexicalThreshold:    0.6,
		LexicalPenalty:      0.8,
		MaxMatches:          3,
		EmbedTimeout:        10 * time.Second,
	}
}

// EntryStore is the durable storage the feedback loop needs.
type EntryStore interface {
	ApplyFeedback(f storage.Feedback, pattern string, mutate func(existing *storage.LearnedEntry) *storage.LearnedEntry) error
	ScanLearned(documentID string) ([]storage.LearnedEntry, error)
	ExportLearned(documentID string) ([]storage.LearnedEntry, error)
	IncrementLearnedUsage(id string) error
	FeedbackCounts(documentID string) (map[string]int, error)
	LearnedStats(documentID string) (int, float64, error)
}

// Embedder produces a fixed-size embedding vector for a text string.
// Failures degrade matching; they never block a write.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Service is the learned-knowledge feedback loop: it turns user feedback
// into confidence-weighted entries and composes the best matches into a
// high-priority context block for answer generation.
type Service struct {
	store    EntryStore
	embedder Embedder
	cfg      Config
	logger   *slog.Logger
}

func NewService(store EntryStore, embedder Embedder, cfg Config) *Service {
	return &Service{
		store:    store,
		embedder: embedder,
		cfg:      cfg,
		logger:   slog.Default(),
	}
}

// RecordFeedback applies a like or dislike to the knowledge base. A dislike
// without improvement text is logged only. The write is atomic: the feedback
// log row and the learned entry mutation commit together or not at all.
func (s *Service) RecordFeedback(ctx context.Context, documentID, question, answer, feedbackType, additionalInfo string) error {
	event := Event{
		DocumentID: documentID,
		Question:   question,
		Answer:     answer,
		Info:       additionalInfo,
	}
	switch feedbackType {
	case "like":
		event.Kind = KindLike
	case "dislike":
		event.Kind = KindDislike
	default:
		return fmt.Errorf("%w: %q", ErrInvalidFeedbackType, feedbackType)
	}
	return s.apply(ctx, event)
}

// RecordNote applies a kind-tagged annotation to the knowledge base. Under
// the permissive policy unknown kinds are accepted as generic annotations;
// under the strict policy they are rejected.
func (s *Service) RecordNote(ctx context.Context, documentID, question, answer string, noteKind NoteKind, content string) error {
	if noteKind == "" {
		noteKind = NoteEnhancement
	}
	if s.cfg.StrictNoteKinds && !knownNoteKinds[noteKind] {
		return fmt.Errorf("%w: %q", ErrUnknownNoteKind, noteKind)
	}
	return s.apply(ctx, Event{
		DocumentID: documentID,
		Question:   question,
		Answer:     answer,
		Kind:       KindNote,
		NoteKind:   noteKind,
		Info:       content,
	})
}

func (s *Service) apply(ctx context.Context, event Event) error {
	pattern := Normalize(event.Question)

	// A content-free dislike never touches learned knowledge, so skip the
	// embedding call entirely.
	logOnly := event.Kind == KindDislike && strings.TrimSpace(event.Info) == ""

	var vec []float32
	if !logOnly {
		vec = s.embedQuestion(ctx, event.Question)
	}

	return s.store.ApplyFeedback(
		storage.Feedback{
			DocumentID:     event.DocumentID,
			Question:       event.Question,
			Answer:         event.Answer,
			Type:           event.LogTag(),
			AdditionalInfo: event.Info,
		},
		pattern,
		func(existing *storage.LearnedEntry) *storage.LearnedEntry {
			answer, confidence, ok := applyRule(existing, event)
			if !ok {
				return nil
			}
			return &storage.LearnedEntry{
				DocumentID:      event.DocumentID,
				QuestionPattern: pattern,
				ImprovedAnswer:  answer,
				ConfidenceScore: confidence,
				Embedding:       vec,
			}
		},
	)
}

// embedQuestion returns the question embedding, or nil when the provider is
// unavailable or slow. The call is bounded by cfg.EmbedTimeout so a provider
// outage degrades matching without hanging the caller.
func (s *Service) embedQuestion(ctx context.Context, question string) []float32 {
	embedCtx, cancel := context.WithTimeout(ctx, s.cfg.EmbedTimeout)
	defer cancel()

	vec, err := s.embedder.Embed(embedCtx, question)
	if err != nil {
		s.logger.Warn("question embedding unavailable, degrading to lexical matching", "error", err)
		return nil
	}
	return vec
}

// GetContext returns the learned context block for a question, with used
// reporting whether any learned entry matched. Read-path failures degrade to
// (false, "") rather than blocking answer generation. Selecting a best match
// increments its usage count as a side effect; that increment is
// fire-and-forget.
func (s *Service) GetContext(ctx context.Context, documentID, question string) (used bool, block string) {
	queryVec := s.embedQuestion(ctx, question)

	entries, err := s.store.ScanLearned(documentID)
	if err != nil {
		s.logger.Warn("learned knowledge scan failed, answering without learned context", "document", documentID, "error", err)
		return false, ""
	}
	if len(entries) == 0 {
		return false, ""
	}

	candidates := matchCandidates(queryVec, question, entries, s.cfg)
	if len(candidates) == 0 {
		return false, ""
	}

	if err := s.store.IncrementLearnedUsage(candidates[0].Entry.ID); err != nil {
		s.logger.Warn("usage count increment failed", "entry", candidates[0].Entry.ID, "error", err)
	}

	return true, composeBlock(candidates, s.cfg.MaxMatches)
}

// Stats summarizes the feedback history of a document.
type Stats struct {
	Likes             int     `json:"total_likes"`
	Dislikes          int     `json:"total_dislikes"`
	LearnedEntries    int     `json:"learned_knowledge_count"`
	AverageConfidence float64 `json:"average_confidence"`
}

func (s *Service) Stats(documentID string) (Stats, error) {
	counts, err := s.store.FeedbackCounts(documentID)
	if err != nil {
		return Stats{}, fmt.Errorf("counting feedback: %w", err)
	}
	learned, avg, err := s.store.LearnedStats(documentID)
	if err != nil {
		return Stats{}, fmt.Errorf("reading learned stats: %w", err)
	}
	return Stats{
		Likes:             counts["like"],
		Dislikes:          counts["dislike"],
		LearnedEntries:    learned,
		AverageConfidence: math.Round(avg*100) / 100,
	}, nil
}

// Export returns all learned entries for a document, highest confidence
// first.
func (s *Service) Export(documentID string) ([]storage.LearnedEntry, error) {
	return s.store.ExportLearned(documentID)
}
