package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ruined/expertmind/internal/ingest"
	"github.com/ruined/expertmind/internal/knowledge"
	"github.com/ruined/expertmind/internal/pipeline"
	"github.com/ruined/expertmind/internal/retrieval"
	"github.com/ruined/expertmind/internal/storage"
)

const maxUploadSize = 50 << 20     // 50MB
const maxRequestBodySize = 1 << 20 // 1MB

// Deps holds everything the REST API needs.
type Deps struct {
	Store     *storage.Store
	Knowledge *knowledge.Service
	Answerer  *pipeline.Answerer
	Retriever *retrieval.Retriever
	DataDir   string
	Token     string
}

// NewHandler returns the authenticated REST API. The health endpoint is the
// only route outside the bearer check so process monitors need no token.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/api/upload", handleUpload(deps))
		r.Get("/api/documents", handleListDocuments(deps))
		r.Get("/api/documents/{id}", handleGetDocument(deps))
		r.Delete("/api/documents/{id}", handleDeleteDocument(deps))
		r.Post("/api/ask", handleAsk(deps))
		r.Get("/api/history", handleGetHistory(deps))
		r.Delete("/api/history", handleClearHistory(deps))
		r.Post("/api/feedback", handleFeedback(deps))
		r.Post("/api/note", handleNote(deps))
		r.Get("/api/feedback/stats", handleFeedbackStats(deps))
		r.Get("/api/learned", handleLearned(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

type documentResponse struct {
	ID        string `json:"id"`
	Filename  string `json:"filename"`
	Pages     int    `json:"pages"`
	Status    string `json:"status"`
	Passages  int    `json:"passages"`
	CreatedAt string `json:"created_at"`
}

func toDocumentResponse(d storage.Document, passages int) documentResponse {
	return documentResponse{
		ID:        d.ID,
		Filename:  d.Filename,
		Pages:     d.Pages,
		Status:    d.Status,
		Passages:  passages,
		CreatedAt: d.CreatedAt.Format(time.RFC3339),
	}
}

func handleUpload(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)

		file, header, err := r.FormFile("file")
		if err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "multipart field \"file\" is required: %v", err)
			return
		}
		defer file.Close()

		filename := filepath.Base(header.Filename)
		if !strings.EqualFold(filepath.Ext(filename), ".pdf") {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "only PDF files are supported")
			return
		}

		if _, err := deps.Store.GetDocumentByFilename(filename); err == nil {
			httpError(w, http.StatusConflict, "conflict", "document %q already exists", filename)
			return
		} else if !errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusInternalServerError, "api_error", "checking for duplicate: %v", err)
			return
		}

		docID := uuid.NewString()
		if _, err := ingest.SaveUpload(deps.DataDir, docID, file); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "storing file: %v", err)
			return
		}

		doc := storage.Document{ID: docID, Filename: filename}
		if err := deps.Store.SaveDocument(doc); err != nil {
			_ = ingest.RemoveDocument(deps.DataDir, docID)
			httpError(w, http.StatusInternalServerError, "api_error", "saving document: %v", err)
			return
		}

		if err := deps.Store.EnqueueJob(ingest.NewIndexJob(docID)); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "queueing indexing: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{
			"id":       docID,
			"filename": filename,
			"status":   "pending",
		})
	}
}

func handleListDocuments(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		docs, err := deps.Store.ListDocuments()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "listing documents: %v", err)
			return
		}

		out := make([]documentResponse, 0, len(docs))
		for _, d := range docs {
			passages, _ := deps.Retriever.Count(d.ID)
			out = append(out, toDocumentResponse(d, passages))
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	}
}

func handleGetDocument(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		doc, err := deps.Store.GetDocument(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "document not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading document: %v", err)
			return
		}

		passages, _ := deps.Retriever.Count(doc.ID)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(toDocumentResponse(doc, passages))
	}
}

func handleDeleteDocument(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		err := deps.Store.DeleteDocument(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "document not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "deleting document: %v", err)
			return
		}

		// The row cascade removed the vectors; the cache and the stored PDF
		// are cleaned up separately.
		deps.Retriever.Invalidate(id)
		if err := ingest.RemoveDocument(deps.DataDir, id); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "removing file: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "deleted"})
	}
}

type askRequest struct {
	DocumentID string `json:"document_id"`
	Question   string `json:"question"`
}

func handleAsk(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req askRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if strings.TrimSpace(req.Question) == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "question is required")
			return
		}

		// Without an explicit document_id, route the question to whichever
		// indexed document holds the best-scoring passage.
		if req.DocumentID == "" {
			docID, err := pickBestDocument(r.Context(), deps, req.Question)
			if err != nil {
				httpError(w, http.StatusInternalServerError, "api_error", "selecting document: %v", err)
				return
			}
			if docID == "" {
				httpError(w, http.StatusNotFound, "not_found", "no indexed document matches the question")
				return
			}
			req.DocumentID = docID
		}

		doc, err := deps.Store.GetDocument(req.DocumentID)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "document not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading document: %v", err)
			return
		}
		if doc.Status != "indexed" {
			httpError(w, http.StatusConflict, "conflict", "document %q is not indexed yet (status: %s)", doc.Filename, doc.Status)
			return
		}

		answer, err := deps.Answerer.Ask(r.Context(), req.DocumentID, req.Question)
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "answering: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(answer)
	}
}

// pickBestDocument probes every indexed document with the question and
// returns the one whose best passage scores highest. Returns "" when no
// indexed document produces a scored passage.
func pickBestDocument(ctx context.Context, deps Deps, question string) (string, error) {
	docs, err := deps.Store.ListDocuments()
	if err != nil {
		return "", fmt.Errorf("listing documents: %w", err)
	}

	bestID := ""
	var bestScore float32 = -1
	for _, doc := range docs {
		if doc.Status != "indexed" {
			continue
		}
		chunks, err := deps.Retriever.Retrieve(ctx, doc.ID, question, 1)
		if err != nil {
			slog.Warn("document probe failed", "document_id", doc.ID, "error", err)
			continue
		}
		if len(chunks) > 0 && chunks[0].Score > bestScore {
			bestScore = chunks[0].Score
			bestID = doc.ID
		}
	}
	return bestID, nil
}

type chatMessageResponse struct {
	Role      string `json:"role"`
	Content   string `json:"content"`
	CreatedAt string `json:"created_at"`
}

func handleGetHistory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		documentID := r.URL.Query().Get("document_id")
		if documentID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "document_id is required")
			return
		}
		limit := parseIntParam(r, "limit", 50, 500)

		messages, err := deps.Store.GetChatHistory(documentID, limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "loading history: %v", err)
			return
		}

		out := make([]chatMessageResponse, len(messages))
		for i, m := range messages {
			out[i] = chatMessageResponse{
				Role:      m.Role,
				Content:   m.Content,
				CreatedAt: m.CreatedAt.Format(time.RFC3339),
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	}
}

func handleClearHistory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		documentID := r.URL.Query().Get("document_id")
		if documentID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "document_id is required")
			return
		}

		if err := deps.Store.ClearChatHistory(documentID); err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "clearing history: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "cleared"})
	}
}

type feedbackRequest struct {
	DocumentID     string `json:"document_id"`
	Question       string `json:"question"`
	Answer         string `json:"answer"`
	FeedbackType   string `json:"feedback_type"`
	AdditionalInfo string `json:"additional_info"`
}

func handleFeedback(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req feedbackRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.DocumentID == "" || req.Question == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "document_id and question are required")
			return
		}

		err := deps.Knowledge.RecordFeedback(r.Context(), req.DocumentID, req.Question, req.Answer, req.FeedbackType, req.AdditionalInfo)
		if errors.Is(err, knowledge.ErrInvalidFeedbackType) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "recording feedback: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "recorded"})
	}
}

type noteRequest struct {
	DocumentID string `json:"document_id"`
	Question   string `json:"question"`
	Answer     string `json:"answer"`
	NoteType   string `json:"note_type"`
	Content    string `json:"content"`
}

func handleNote(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

		var req noteRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.DocumentID == "" || req.Question == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "document_id and question are required")
			return
		}

		err := deps.Knowledge.RecordNote(r.Context(), req.DocumentID, req.Question, req.Answer, knowledge.NoteKind(req.NoteType), req.Content)
		if errors.Is(err, knowledge.ErrUnknownNoteKind) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "recording note: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "recorded"})
	}
}

func handleFeedbackStats(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		documentID := r.URL.Query().Get("document_id")
		if documentID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "document_id is required")
			return
		}

		stats, err := deps.Knowledge.Stats(documentID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "reading stats: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(stats)
	}
}

type learnedEntryResponse struct {
	ID              string  `json:"id"`
	QuestionPattern string  `json:"question_pattern"`
	ImprovedAnswer  string  `json:"improved_answer"`
	ConfidenceScore float64 `json:"confidence_score"`
	UsageCount      int     `json:"usage_count"`
	UpdatedAt       string  `json:"updated_at"`
}

func handleLearned(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		documentID := r.URL.Query().Get("document_id")
		if documentID == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "document_id is required")
			return
		}

		entries, err := deps.Knowledge.Export(documentID)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "exporting learned knowledge: %v", err)
			return
		}

		out := make([]learnedEntryResponse, len(entries))
		for i, e := range entries {
			out[i] = learnedEntryResponse{
				ID:              e.ID,
				QuestionPattern: e.QuestionPattern,
				ImprovedAnswer:  e.ImprovedAnswer,
				ConfidenceScore: e.ConfidenceScore,
				UsageCount:      e.UsageCount,
				UpdatedAt:       e.UpdatedAt.Format(time.RFC3339),
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(out)
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
