package retrieval

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/ruined/expertmind/internal/storage"
)

// Compile-time check that SQLiteStore implements VectorStore.
var _ VectorStore = (*SQLiteStore)(nil)

// SQLiteStore persists passage vectors in the document_vectors table. Scoring
// happens in the Retriever over decoded records; a document's full record set
// is small enough that a brute-force scan stays fast. Row deletion rides the
// document delete cascade in the storage package.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps an existing *sql.DB for vector operations. The
// document_vectors table must already exist (created via migrations).
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Insert adds passage records in a single transaction.
func (s *SQLiteStore) Insert(records []Record) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning insert transaction: %w", err)
	}

	stmt, err := tx.Prepare(`
		INSERT INTO document_vectors (id, document_id, page, seq, text_chunk, embedding, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		tx.Rollback()
		return fmt.Errorf("preparing insert statement: %w", err)
	}
	defer stmt.Close()

	for _, r := range records {
		createdAt := r.CreatedAt
		if createdAt.IsZero() {
			createdAt = time.Now().UTC()
		}
		blob := storage.EncodeVector(r.Embedding)
		if _, err := stmt.Exec(r.ID, r.DocumentID, r.Page, r.Seq, r.TextChunk, blob, createdAt.Format(time.RFC3339)); err != nil {
			tx.Rollback()
			return fmt.Errorf("inserting record %s: %w", r.ID, err)
		}
	}

	return tx.Commit()
}

// Records returns all passages of a document in page/sequence order.
func (s *SQLiteStore) Records(documentID string) ([]Record, error) {
	rows, err := s.db.Query(`
		SELECT id, document_id, page, seq, text_chunk, embedding, created_at
		FROM document_vectors WHERE document_id = ? ORDER BY page, seq`, documentID)
	if err != nil {
		return nil, fmt.Errorf("querying document vectors: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var r Record
		var blob []byte
		var createdAt string
		if err := rows.Scan(&r.ID, &r.DocumentID, &r.Page, &r.Seq, &r.TextChunk, &blob, &createdAt); err != nil {
			return nil, fmt.Errorf("scanning row: %w", err)
		}
		embedding, err := storage.DecodeVector(blob)
		if err != nil {
			return nil, fmt.Errorf("decoding embedding for %s: %w", r.ID, err)
		}
		r.Embedding = embedding
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at for %s: %w", r.ID, err)
		}
		r.CreatedAt = t
		records = append(records, r)
	}
	return records, rows.Err()
}

// Count returns the number of indexed passages for a document.
func (s *SQLiteStore) Count(documentID string) (int, error) {
	var count int
	err := s.db.QueryRow("SELECT COUNT(*) FROM document_vectors WHERE document_id = ?", documentID).Scan(&count)
	return count, err
}
