package storage

import (
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// ApplyFeedback appends a feedback event to the log and atomically upserts
// the learned entry for (f.DocumentID, pattern), all in one transaction.
//
// mutate receives the existing entry for the pattern (nil when none exists)
// and returns the entry state to persist; its ImprovedAnswer, ConfidenceScore,
// and Embedding fields are written. Returning nil records the feedback log
// row only and leaves learned knowledge untouched. If anything fails, the
// whole transaction rolls back and no partial state is committed.
func (s *Store) ApplyFeedback(f Feedback, pattern string, mutate func(existing *LearnedEntry) *LearnedEntry) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning feedback transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	feedbackID := f.ID
	if feedbackID == "" {
		feedbackID = uuid.New().String()
	}
	if _, err := tx.Exec(`
		INSERT INTO answer_feedback (id, document_id, question, answer, feedback_type, additional_info, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		feedbackID, f.DocumentID, f.Question, f.Answer, f.Type, f.AdditionalInfo, now.Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("logging feedback: %w", err)
	}

	var existing *LearnedEntry
	var e LearnedEntry
	var blob []byte
	err = tx.QueryRow(`
		SELECT id, confidence_score, improved_answer, question_embedding, usage_count
		FROM learned_knowledge WHERE document_id = ? AND question_pattern = ?`,
		f.DocumentID, pattern,
	).Scan(&e.ID, &e.ConfidenceScore, &e.ImprovedAnswer, &blob, &e.UsageCount)
	switch {
	case err == sql.ErrNoRows:
		// first feedback for this pattern
	case err != nil:
		return fmt.Errorf("reading learned entry: %w", err)
	default:
		e.DocumentID = f.DocumentID
		e.QuestionPattern = pattern
		if vec, decErr := DecodeVector(blob); decErr == nil {
			e.Embedding = vec
		} else {
			e.CorruptEmbedding = true
		}
		existing = &e
	}

	next := mutate(existing)
	if next == nil {
		return tx.Commit()
	}

	if existing != nil {
		if _, err := tx.Exec(`
			UPDATE learned_knowledge
			SET improved_answer = ?, confidence_score = ?, question_embedding = ?, updated_at = ?
			WHERE id = ?`,
			next.ImprovedAnswer, next.ConfidenceScore, EncodeVector(next.Embedding),
			now.Format(time.RFC3339), existing.ID,
		); err != nil {
			return fmt.Errorf("updating learned entry: %w", err)
		}
	} else {
		if _, err := tx.Exec(`
			INSERT INTO learned_knowledge (id, document_id, question_pattern, question_embedding, improved_answer, confidence_score, usage_count, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?)`,
			uuid.New().String(), f.DocumentID, pattern, EncodeVector(next.Embedding),
			next.ImprovedAnswer, next.ConfidenceScore,
			now.Format(time.RFC3339), now.Format(time.RFC3339),
		); err != nil {
			return fmt.Errorf("inserting learned entry: %w", err)
		}
	}

	return tx.Commit()
}

// ScanLearned returns all learned entries for a document in insertion order.
// Entries whose stored embedding blob cannot be decoded are returned with
// CorruptEmbedding set instead of failing the scan.
func (s *Store) ScanLearned(documentID string) ([]LearnedEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, document_id, question_pattern, question_embedding, improved_answer, confidence_score, usage_count, created_at, updated_at
		FROM learned_knowledge WHERE document_id = ?
		ORDER BY created_at ASC, id ASC`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLearned(rows)
}

// ExportLearned returns all learned entries for a document ordered by
// confidence (highest first), then recency.
func (s *Store) ExportLearned(documentID string) ([]LearnedEntry, error) {
	rows, err := s.db.Query(`
		SELECT id, document_id, question_pattern, question_embedding, improved_answer, confidence_score, usage_count, created_at, updated_at
		FROM learned_knowledge WHERE document_id = ?
		ORDER BY confidence_score DESC, updated_at DESC`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLearned(rows)
}

func collectLearned(rows *sql.Rows) ([]LearnedEntry, error) {
	var entries []LearnedEntry
	for rows.Next() {
		var e LearnedEntry
		var blob []byte
		var createdAt, updatedAt string
		if err := rows.Scan(&e.ID, &e.DocumentID, &e.QuestionPattern, &blob, &e.ImprovedAnswer,
			&e.ConfidenceScore, &e.UsageCount, &createdAt, &updatedAt); err != nil {
			return nil, err
		}
		if vec, err := DecodeVector(blob); err == nil {
			e.Embedding = vec
		} else {
			slog.Warn("skipping corrupt question embedding", "entry", e.ID, "error", err)
			e.CorruptEmbedding = true
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		e.CreatedAt = t
		if t, err = time.Parse(time.RFC3339, updatedAt); err != nil {
			return nil, fmt.Errorf("parsing updated_at: %w", err)
		}
		e.UpdatedAt = t
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// IncrementLearnedUsage bumps usage_count by one for the entry selected as
// the best match during a read.
func (s *Store) IncrementLearnedUsage(id string) error {
	res, err := s.db.Exec(`UPDATE learned_knowledge SET usage_count = usage_count + 1 WHERE id = ?`, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// FeedbackCounts returns the number of feedback log rows per kind tag for
// a document.
func (s *Store) FeedbackCounts(documentID string) (map[string]int, error) {
	rows, err := s.db.Query(`
		SELECT feedback_type, COUNT(*) FROM answer_feedback
		WHERE document_id = ? GROUP BY feedback_type`, documentID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, err
		}
		counts[kind] = n
	}
	return counts, rows.Err()
}

// LearnedStats returns the learned entry count and average confidence for
// a document. Average is 0 when there are no entries.
func (s *Store) LearnedStats(documentID string) (int, float64, error) {
	var count int
	var avg sql.NullFloat64
	err := s.db.QueryRow(`
		SELECT COUNT(*), AVG(confidence_score) FROM learned_knowledge
		WHERE document_id = ?`, documentID).Scan(&count, &avg)
	if err != nil {
		return 0, 0, err
	}
	return count, avg.Float64, nil
}
