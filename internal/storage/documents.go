package storage

import (
	"database/sql"
	"fmt"
	"time"
)

func (s *Store) SaveDocument(d Document) error {
	status := d.Status
	if status == "" {
		status = "pending"
	}
	createdAt := d.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO documents (id, filename, pages, status, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		d.ID, d.Filename, d.Pages, status, createdAt.Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetDocument(id string) (Document, error) {
	return s.scanDocument(s.db.QueryRow(`
		SELECT id, filename, pages, status, created_at FROM documents WHERE id = ?`, id))
}

func (s *Store) GetDocumentByFilename(filename string) (Document, error) {
	return s.scanDocument(s.db.QueryRow(`
		SELECT id, filename, pages, status, created_at FROM documents WHERE filename = ?`, filename))
}

func (s *Store) scanDocument(row *sql.Row) (Document, error) {
	var d Document
	var createdAt string
	err := row.Scan(&d.ID, &d.Filename, &d.Pages, &d.Status, &createdAt)
	if err == sql.ErrNoRows {
		return Document{}, ErrNotFound
	}
	if err != nil {
		return Document{}, err
	}
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		return Document{}, fmt.Errorf("parsing created_at: %w", err)
	}
	d.CreatedAt = t
	return d, nil
}

func (s *Store) ListDocuments() ([]Document, error) {
	rows, err := s.db.Query(`
		SELECT id, filename, pages, status, created_at FROM documents ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		var d Document
		var createdAt string
		if err := rows.Scan(&d.ID, &d.Filename, &d.Pages, &d.Status, &createdAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		d.CreatedAt = t
		docs = append(docs, d)
	}
	return docs, rows.Err()
}

// SetDocumentStatus updates a document's indexing status and page count.
func (s *Store) SetDocumentStatus(id, status string, pages int) error {
	res, err := s.db.Exec(`UPDATE documents SET status = ?, pages = ? WHERE id = ?`, status, pages, id)
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

// DeleteDocument removes the document and everything derived from it: chat
// history, feedback log, learned knowledge, vectors, in one transaction.
func (s *Store) DeleteDocument(id string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("beginning delete transaction: %w", err)
	}
	defer tx.Rollback()

	for _, stmt := range []string{
		"DELETE FROM chat_messages WHERE document_id = ?",
		"DELETE FROM answer_feedback WHERE document_id = ?",
		"DELETE FROM learned_knowledge WHERE document_id = ?",
		"DELETE FROM document_vectors WHERE document_id = ?",
	} {
		if _, err := tx.Exec(stmt, id); err != nil {
			return fmt.Errorf("cascading document delete: %w", err)
		}
	}

	res, err := tx.Exec("DELETE FROM documents WHERE id = ?", id)
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
	return tx.Commit()
}

func (s *Store) SaveChatMessage(m ChatMessage) error {
	createdAt := m.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.Exec(`
		INSERT INTO chat_messages (id, document_id, role, content, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		m.ID, m.DocumentID, m.Role, m.Content, createdAt.Format(time.RFC3339),
	)
	return err
}

func (s *Store) GetChatHistory(documentID string, limit int) ([]ChatMessage, error) {
	rows, err := s.db.Query(`
		SELECT id, document_id, role, content, created_at
		FROM chat_messages WHERE document_id = ?
		ORDER BY created_at ASC LIMIT ?`, documentID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []ChatMessage
	for rows.Next() {
		var m ChatMessage
		var createdAt string
		if err := rows.Scan(&m.ID, &m.DocumentID, &m.Role, &m.Content, &createdAt); err != nil {
			return nil, err
		}
		t, err := time.Parse(time.RFC3339, createdAt)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}
		m.CreatedAt = t
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// ClearChatHistory removes all chat messages for a document.
func (s *Store) ClearChatHistory(documentID string) error {
	_, err := s.db.Exec("DELETE FROM chat_messages WHERE document_id = ?", documentID)
	return err
}
