package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/ruined/expertmind/internal/retrieval"
	"github.com/ruined/expertmind/internal/storage"
)

// JobTypeIndexDocument is the queue type for async document indexing.
const JobTypeIndexDocument = "index_document"

// DocumentStore abstracts the job queue and document status operations.
type DocumentStore interface {
	ClaimNextJob(jobType string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
	GetDocument(id string) (storage.Document, error)
	SetDocumentStatus(id, status string, pages int) error
}

// Indexer embeds and stores a document's passages.
type Indexer interface {
	Index(ctx context.Context, documentID string, passages []retrieval.Passage) (int, error)
}

// Worker processes index_document jobs from the SQLite job queue: it extracts
// the stored PDF, splits it into passages and hands them to the Indexer.
type Worker struct {
	store     DocumentStore
	indexer   Indexer
	dataDir   string
	chunkSize int
	overlap   int
	poll      time.Duration
	logger    *slog.Logger
}

// NewWorker creates a Worker with the given dependencies.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store DocumentStore, indexer Indexer, dataDir string, chunkSize, overlap int, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:     store,
		indexer:   indexer,
		dataDir:   dataDir,
		chunkSize: chunkSize,
		overlap:   overlap,
		poll:      pollInterval,
		logger:    slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single index_document job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob(JobTypeIndexDocument)
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("indexing failed", "job_id", job.ID, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
		return true, nil
	}

	if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}
	return true, nil
}

type indexPayload struct {
	DocumentID string `json:"document_id"`
}

// NewIndexJob builds a queue entry that indexes the given document.
func NewIndexJob(documentID string) storage.Job {
	payload, _ := json.Marshal(indexPayload{DocumentID: documentID})
	return storage.Job{
		ID:          uuid.NewString(),
		Type:        JobTypeIndexDocument,
		PayloadJSON: string(payload),
	}
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload indexPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}

	doc, err := w.store.GetDocument(payload.DocumentID)
	if err != nil {
		return fmt.Errorf("loading document %s: %w", payload.DocumentID, err)
	}

	pages, err := ExtractPages(DocumentPath(w.dataDir, doc.ID))
	if err != nil {
		w.markFailed(doc.ID)
		return fmt.Errorf("extracting %s: %w", doc.Filename, err)
	}

	passages := SplitPages(pages, w.chunkSize, w.overlap)
	if len(passages) == 0 {
		w.markFailed(doc.ID)
		return fmt.Errorf("document %s contains no extractable text", doc.Filename)
	}

	indexed, err := w.indexer.Index(ctx, doc.ID, passages)
	if err != nil {
		w.markFailed(doc.ID)
		return fmt.Errorf("indexing %s: %w", doc.Filename, err)
	}

	if err := w.store.SetDocumentStatus(doc.ID, "indexed", len(pages)); err != nil {
		return fmt.Errorf("updating document status: %w", err)
	}

	w.logger.Info("document indexed", "document", doc.ID, "filename", doc.Filename, "pages", len(pages), "passages", indexed)
	return nil
}

// markFailed records the failed status so list views surface it. The job
// queue still retries; a later success flips the status back to indexed.
func (w *Worker) markFailed(documentID string) {
	if err := w.store.SetDocumentStatus(documentID, "failed", 0); err != nil {
		w.logger.Error("failed to mark document as failed", "document", documentID, "error", err)
	}
}
