package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// Document is an uploaded PDF tracked by the service.
type Document struct {
	ID        string
	Filename  string
	Pages     int
	Status    string // "pending", "indexed", "failed"
	CreatedAt time.Time
}

// ChatMessage is one turn of a document conversation.
type ChatMessage struct {
	ID         string
	DocumentID string
	Role       string
	Content    string
	CreatedAt  time.Time
}

// Feedback is one row of the append-only feedback log. Type carries the kind
// tag: "like", "dislike", or "note_<kind>".
type Feedback struct {
	ID             string
	DocumentID     string
	Question       string
	Answer         string
	Type           string
	AdditionalInfo string
	CreatedAt      time.Time
}

// LearnedEntry is a confidence-weighted answer learned from user feedback,
// unique per (document_id, question_pattern).
//
// Embedding is nil when the provider failed at write time; such entries are
// matched via the lexical fallback. CorruptEmbedding is set when a stored
// embedding blob could not be decoded, in which case the entry is excluded
// from matching entirely.
type LearnedEntry struct {
	ID               string
	DocumentID       string
	QuestionPattern  string
	Embedding        []float32
	CorruptEmbedding bool
	ImprovedAnswer   string
	ConfidenceScore  float64
	UsageCount       int
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Job is one unit of background work, currently only document indexing.
type Job struct {
	ID          string
	Type        string
	PayloadJSON string
	Status      string // "pending", "running", "completed", "failed"
	Attempts    int
	MaxAttempts int
	RunAfter    time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
	LastError   string
}
