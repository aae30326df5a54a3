package retrieval

import "time"

// VectorStore is the interface for passage vector storage backends. The
// current implementation uses SQLite with brute-force cosine scoring in the
// Retriever; an ANN-capable backend can replace it behind this interface
// without touching callers.
type VectorStore interface {
	// Insert adds passage records for a document.
	Insert(records []Record) error

	// Records returns all passage records for a document in page/sequence
	// order, embeddings included.
	Records(documentID string) ([]Record, error)

	// Count returns the number of indexed passages for a document.
	Count(documentID string) (int, error)
}

// Record is one embedded passage of a document.
type Record struct {
	ID         string
	DocumentID string
	Page       int
	Seq        int
	TextChunk  string
	Embedding  []float32
	CreatedAt  time.Time
}

// ScoredRecord is a Record with a similarity score attached.
type ScoredRecord struct {
	Record
	Score float32
}
