package storage

import (
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func saveTestDocument(t *testing.T, s *Store, id, filename string) {
	t.Helper()
	if err := s.SaveDocument(Document{ID: id, Filename: filename}); err != nil {
		t.Fatalf("SaveDocument(%s): %v", id, err)
	}
}

func TestMigrationsIdempotent(t *testing.T) {
	dir := t.TempDir()

	s1, err := Open(dir)
	if err != nil {
		t.Fatalf("first Open failed: %v", err)
	}
	v1, err := s1.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("second Open failed: %v", err)
	}
	defer s2.Close()

	v2, err := s2.AppliedMigrations()
	if err != nil {
		t.Fatalf("AppliedMigrations: %v", err)
	}
	if len(v1) != len(v2) {
		t.Errorf("migration count changed: %d -> %d", len(v1), len(v2))
	}
}

func TestDocumentRoundTrip(t *testing.T) {
	s := openTestStore(t)
	saveTestDocument(t, s, "d1", "manual.pdf")

	got, err := s.GetDocument("d1")
	if err != nil {
		t.Fatalf("GetDocument: %v", err)
	}
	if got.Filename != "manual.pdf" || got.Status != "pending" {
		t.Errorf("unexpected document: %+v", got)
	}

	byName, err := s.GetDocumentByFilename("manual.pdf")
	if err != nil {
		t.Fatalf("GetDocumentByFilename: %v", err)
	}
	if byName.ID != "d1" {
		t.Errorf("lookup by filename returned %q, want d1", byName.ID)
	}

	if err := s.SetDocumentStatus("d1", "indexed", 12); err != nil {
		t.Fatalf("SetDocumentStatus: %v", err)
	}
	got, _ = s.GetDocument("d1")
	if got.Status != "indexed" || got.Pages != 12 {
		t.Errorf("after status update: %+v", got)
	}

	if _, err := s.GetDocument("missing"); err != ErrNotFound {
		t.Errorf("GetDocument(missing) = %v, want ErrNotFound", err)
	}
}

func TestDeleteDocumentCascades(t *testing.T) {
	s := openTestStore(t)
	saveTestDocument(t, s, "d1", "a.pdf")

	if err := s.SaveChatMessage(ChatMessage{ID: "m1", DocumentID: "d1", Role: "user", Content: "hi"}); err != nil {
		t.Fatalf("SaveChatMessage: %v", err)
	}
	err := s.ApplyFeedback(
		Feedback{DocumentID: "d1", Question: "q", Answer: "a", Type: "like"},
		"q",
		func(existing *LearnedEntry) *LearnedEntry {
			return &LearnedEntry{ImprovedAnswer: "a", ConfidenceScore: 1.2}
		})
	if err != nil {
		t.Fatalf("ApplyFeedback: %v", err)
	}

	if err := s.DeleteDocument("d1"); err != nil {
		t.Fatalf("DeleteDocument: %v", err)
	}

	if _, err := s.GetDocument("d1"); err != ErrNotFound {
		t.Errorf("document survived delete: %v", err)
	}
	entries, err := s.ScanLearned("d1")
	if err != nil {
		t.Fatalf("ScanLearned: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("learned entries survived delete: %d", len(entries))
	}
	counts, err := s.FeedbackCounts("d1")
	if err != nil {
		t.Fatalf("FeedbackCounts: %v", err)
	}
	if len(counts) != 0 {
		t.Errorf("feedback log survived delete: %v", counts)
	}

	if err := s.DeleteDocument("d1"); err != ErrNotFound {
		t.Errorf("second delete = %v, want ErrNotFound", err)
	}
}

func TestApplyFeedbackInsertsAndUpdates(t *testing.T) {
	s := openTestStore(t)
	saveTestDocument(t, s, "d1", "a.pdf")

	vec := []float32{0.1, 0.2, 0.3}
	err := s.ApplyFeedback(
		Feedback{DocumentID: "d1", Question: "What is ML?", Answer: "ML is...", Type: "like"},
		"what is ml",
		func(existing *LearnedEntry) *LearnedEntry {
			if existing != nil {
				t.Fatal("expected no existing entry on first feedback")
			}
			return &LearnedEntry{ImprovedAnswer: "ML is...", ConfidenceScore: 1.2, Embedding: vec}
		})
	if err != nil {
		t.Fatalf("first ApplyFeedback: %v", err)
	}

	entries, err := s.ScanLearned("d1")
	if err != nil {
		t.Fatalf("ScanLearned: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entry count = %d, want 1", len(entries))
	}
	if entries[0].ConfidenceScore != 1.2 || len(entries[0].Embedding) != 3 {
		t.Errorf("unexpected entry: %+v", entries[0])
	}

	err = s.ApplyFeedback(
		Feedback{DocumentID: "d1", Question: "What is ML?", Answer: "ML is...", Type: "like"},
		"what is ml",
		func(existing *LearnedEntry) *LearnedEntry {
			if existing == nil {
				t.Fatal("expected existing entry on second feedback")
			}
			if existing.ConfidenceScore != 1.2 {
				t.Errorf("existing confidence = %v, want 1.2", existing.ConfidenceScore)
			}
			return &LearnedEntry{ImprovedAnswer: existing.ImprovedAnswer, ConfidenceScore: 1.5, Embedding: existing.Embedding}
		})
	if err != nil {
		t.Fatalf("second ApplyFeedback: %v", err)
	}

	entries, _ = s.ScanLearned("d1")
	if len(entries) != 1 {
		t.Fatalf("upsert created duplicate: %d entries", len(entries))
	}
	if entries[0].ConfidenceScore != 1.5 {
		t.Errorf("confidence = %v, want 1.5", entries[0].ConfidenceScore)
	}
	if !entries[0].UpdatedAt.After(time.Time{}) {
		t.Error("updated_at not set")
	}
}

func TestApplyFeedbackLogOnly(t *testing.T) {
	s := openTestStore(t)
	saveTestDocument(t, s, "d1", "a.pdf")

	err := s.ApplyFeedback(
		Feedback{DocumentID: "d1", Question: "q", Answer: "a", Type: "dislike"},
		"q",
		func(existing *LearnedEntry) *LearnedEntry { return nil })
	if err != nil {
		t.Fatalf("ApplyFeedback: %v", err)
	}

	entries, _ := s.ScanLearned("d1")
	if len(entries) != 0 {
		t.Errorf("log-only feedback created %d learned entries", len(entries))
	}
	counts, _ := s.FeedbackCounts("d1")
	if counts["dislike"] != 1 {
		t.Errorf("feedback counts = %v, want dislike=1", counts)
	}
}

func TestScanLearnedMarksCorruptEmbedding(t *testing.T) {
	s := openTestStore(t)
	saveTestDocument(t, s, "d1", "a.pdf")

	// 3 bytes is not a valid float32 blob.
	_, err := s.db.Exec(`
		INSERT INTO learned_knowledge (id, document_id, question_pattern, question_embedding, improved_answer, confidence_score, usage_count, created_at, updated_at)
		VALUES ('bad', 'd1', 'p', X'AABBCC', 'ans', 1.0, 0, '2025-01-01T00:00:00Z', '2025-01-01T00:00:00Z')`)
	if err != nil {
		t.Fatalf("inserting corrupt row: %v", err)
	}

	entries, err := s.ScanLearned("d1")
	if err != nil {
		t.Fatalf("ScanLearned: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("entry count = %d, want 1", len(entries))
	}
	if !entries[0].CorruptEmbedding {
		t.Error("corrupt embedding not flagged")
	}
	if entries[0].Embedding != nil {
		t.Error("corrupt embedding should decode to nil")
	}
}

func TestIncrementLearnedUsage(t *testing.T) {
	s := openTestStore(t)
	saveTestDocument(t, s, "d1", "a.pdf")

	err := s.ApplyFeedback(
		Feedback{DocumentID: "d1", Question: "q", Answer: "a", Type: "like"},
		"q",
		func(existing *LearnedEntry) *LearnedEntry {
			return &LearnedEntry{ImprovedAnswer: "a", ConfidenceScore: 1.2}
		})
	if err != nil {
		t.Fatalf("ApplyFeedback: %v", err)
	}
	entries, _ := s.ScanLearned("d1")

	if err := s.IncrementLearnedUsage(entries[0].ID); err != nil {
		t.Fatalf("IncrementLearnedUsage: %v", err)
	}
	entries, _ = s.ScanLearned("d1")
	if entries[0].UsageCount != 1 {
		t.Errorf("usage count = %d, want 1", entries[0].UsageCount)
	}

	if err := s.IncrementLearnedUsage("missing"); err != ErrNotFound {
		t.Errorf("IncrementLearnedUsage(missing) = %v, want ErrNotFound", err)
	}
}

func TestLearnedStats(t *testing.T) {
	s := openTestStore(t)
	saveTestDocument(t, s, "d1", "a.pdf")

	count, avg, err := s.LearnedStats("d1")
	if err != nil {
		t.Fatalf("LearnedStats: %v", err)
	}
	if count != 0 || avg != 0 {
		t.Errorf("empty stats = (%d, %v), want (0, 0)", count, avg)
	}

	for i, conf := range []float64{1.0, 2.0} {
		pattern := string(rune('a' + i))
		err := s.ApplyFeedback(
			Feedback{DocumentID: "d1", Question: pattern, Answer: "x", Type: "like"},
			pattern,
			func(existing *LearnedEntry) *LearnedEntry {
				return &LearnedEntry{ImprovedAnswer: "x", ConfidenceScore: conf}
			})
		if err != nil {
			t.Fatalf("ApplyFeedback: %v", err)
		}
	}

	count, avg, err = s.LearnedStats("d1")
	if err != nil {
		t.Fatalf("LearnedStats: %v", err)
	}
	if count != 2 || avg != 1.5 {
		t.Errorf("stats = (%d, %v), want (2, 1.5)", count, avg)
	}
}

func TestJobClaimAndRetry(t *testing.T) {
	s := openTestStore(t)

	if err := s.EnqueueJob(Job{ID: "j1", Type: "index_document", PayloadJSON: `{"document_id":"d1"}`, MaxAttempts: 2}); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}

	job, err := s.ClaimNextJob("index_document")
	if err != nil {
		t.Fatalf("ClaimNextJob: %v", err)
	}
	if job == nil || job.ID != "j1" || job.Status != "running" {
		t.Fatalf("unexpected claimed job: %+v", job)
	}

	// Already claimed; nothing else pending.
	if job2, _ := s.ClaimNextJob("index_document"); job2 != nil {
		t.Errorf("claimed an already-running job: %+v", job2)
	}

	// First failure re-queues with backoff in the future.
	if err := s.FailJob("j1", "boom"); err != nil {
		t.Fatalf("FailJob: %v", err)
	}
	if job2, _ := s.ClaimNextJob("index_document"); job2 != nil {
		t.Errorf("claimed a backed-off job immediately: %+v", job2)
	}

	// Second failure exhausts max_attempts.
	if err := s.FailJob("j1", "boom again"); err != nil {
		t.Fatalf("second FailJob: %v", err)
	}
	var status string
	if err := s.db.QueryRow(`SELECT status FROM jobs WHERE id = 'j1'`).Scan(&status); err != nil {
		t.Fatalf("reading job status: %v", err)
	}
	if status != "failed" {
		t.Errorf("job status = %q, want failed", status)
	}
}

func TestVectorCodecRoundTrip(t *testing.T) {
	in := []float32{0.5, -1.25, 3.75}
	out, err := DecodeVector(EncodeVector(in))
	if err != nil {
		t.Fatalf("DecodeVector: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("length = %d, want %d", len(out), len(in))
	}
	for i := range in {
		if in[i] != out[i] {
			t.Errorf("element %d: %v != %v", i, out[i], in[i])
		}
	}

	if EncodeVector(nil) != nil {
		t.Error("EncodeVector(nil) should be nil")
	}
	if _, err := DecodeVector([]byte{1, 2, 3}); err == nil {
		t.Error("expected error for truncated blob")
	}
}
