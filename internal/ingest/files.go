package ingest

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// DocumentPath returns where a document's original PDF lives on disk.
func DocumentPath(dataDir, id string) string {
	return filepath.Join(dataDir, "documents", id+".pdf")
}

// SaveUpload writes an uploaded PDF to the document path, creating the
// documents directory if needed. Returns the number of bytes written.
func SaveUpload(dataDir, id string, r io.Reader) (int64, error) {
	path := DocumentPath(dataDir, id)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return 0, fmt.Errorf("creating documents directory: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("creating document file: %w", err)
	}
	n, err := io.Copy(f, r)
	if err != nil {
		f.Close()
		os.Remove(path)
		return 0, fmt.Errorf("writing document file: %w", err)
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("closing document file: %w", err)
	}
	return n, nil
}

// RemoveDocument deletes the stored PDF. A missing file is not an error.
func RemoveDocument(dataDir, id string) error {
	err := os.Remove(DocumentPath(dataDir, id))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing document file: %w", err)
	}
	return nil
}
