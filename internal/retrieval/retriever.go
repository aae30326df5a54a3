package retrieval

import (
	"container/heap"
	"context"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
)

// Chunk is a retrieved passage with its similarity score.
type Chunk struct {
	ID    string
	Page  int
	Text  string
	Score float32
}

// Passage is an un-embedded document fragment handed to Index.
type Passage struct {
	Page int
	Seq  int
	Text string
}

// Retriever combines embedding, vector storage and a per-document record
// cache to find the passages most relevant to a question.
type Retriever struct {
	embedder *Embedder
	store    VectorStore
	cache    *Cache
}

// NewRetriever creates a Retriever backed by the given Embedder and
// VectorStore, with a fresh record cache.
func NewRetriever(embedder *Embedder, store VectorStore) *Retriever {
	return &Retriever{embedder: embedder, store: store, cache: NewCache()}
}

// Retrieve embeds the query and returns the top-K most similar passages of
// the document, highest score first.
func (r *Retriever) Retrieve(ctx context.Context, documentID, query string, topK int) ([]Chunk, error) {
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	records, err := r.records(documentID)
	if err != nil {
		return nil, err
	}

	scored := rankRecords(records, vec, topK)
	chunks := make([]Chunk, len(scored))
	for i, s := range scored {
		chunks[i] = Chunk{ID: s.ID, Page: s.Page, Text: s.TextChunk, Score: s.Score}
	}
	return chunks, nil
}

// Index embeds the passages and stores them as the document's vectors,
// returning the number of passages indexed. Any cached records for the
// document are dropped so the next Retrieve sees the new set.
func (r *Retriever) Index(ctx context.Context, documentID string, passages []Passage) (int, error) {
	if len(passages) == 0 {
		return 0, nil
	}

	texts := make([]string, len(passages))
	for i, p := range passages {
		texts[i] = p.Text
	}
	vectors, err := r.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return 0, fmt.Errorf("embedding passages: %w", err)
	}

	now := time.Now().UTC()
	records := make([]Record, len(passages))
	for i, p := range passages {
		records[i] = Record{
			ID:         uuid.NewString(),
			DocumentID: documentID,
			Page:       p.Page,
			Seq:        p.Seq,
			TextChunk:  p.Text,
			Embedding:  vectors[i],
			CreatedAt:  now,
		}
	}
	if err := r.store.Insert(records); err != nil {
		return 0, fmt.Errorf("storing passage vectors: %w", err)
	}

	r.cache.Invalidate(documentID)
	return len(records), nil
}

// Invalidate drops the cached records for a document. Callers must invoke it
// after deleting a document so stale passages cannot be served.
func (r *Retriever) Invalidate(documentID string) {
	r.cache.Invalidate(documentID)
}

// Count returns the number of indexed passages for a document.
func (r *Retriever) Count(documentID string) (int, error) {
	return r.store.Count(documentID)
}

// records returns the document's records, loading through the cache.
func (r *Retriever) records(documentID string) ([]Record, error) {
	if records, ok := r.cache.Get(documentID); ok {
		return records, nil
	}
	records, err := r.store.Records(documentID)
	if err != nil {
		return nil, err
	}
	r.cache.Put(documentID, records)
	return records, nil
}

// rankRecords scores records against the query vector and returns the top-K
// by cosine similarity, highest first. A zero-norm query matches nothing.
func rankRecords(records []Record, query []float32, topK int) []ScoredRecord {
	queryNorm := norm(query)
	if queryNorm == 0 || topK <= 0 {
		return nil
	}

	h := &scoredHeap{}
	heap.Init(h)
	for _, r := range records {
		score := cosineAgainst(query, r.Embedding, queryNorm)
		if h.Len() < topK {
			heap.Push(h, ScoredRecord{Record: r, Score: score})
		} else if score > (*h)[0].Score {
			(*h)[0] = ScoredRecord{Record: r, Score: score}
			heap.Fix(h, 0)
		}
	}

	results := make([]ScoredRecord, h.Len())
	for i := len(results) - 1; i >= 0; i-- {
		results[i] = heap.Pop(h).(ScoredRecord)
	}
	return results
}

// norm returns the L2 norm of a vector.
func norm(v []float32) float32 {
	var sum float64
	for _, f := range v {
		sum += float64(f) * float64(f)
	}
	return float32(math.Sqrt(sum))
}

// cosineAgainst computes cosine similarity as dot(a,b) / (aNorm * |b|).
// aNorm is the precomputed L2 norm of vector a.
func cosineAgainst(a, b []float32, aNorm float32) float32 {
	if len(a) != len(b) {
		return 0
	}
	var dot float64
	var bNormSq float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		bNormSq += float64(b[i]) * float64(b[i])
	}
	bNorm := math.Sqrt(bNormSq)
	if bNorm == 0 {
		return 0
	}
	return float32(dot / (float64(aNorm) * bNorm))
}

// scoredHeap is a min-heap of ScoredRecord ordered by Score, used to track
// top-K candidates during a scan.
type scoredHeap []ScoredRecord

func (h scoredHeap) Len() int            { return len(h) }
func (h scoredHeap) Less(i, j int) bool  { return h[i].Score < h[j].Score }
func (h scoredHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *scoredHeap) Push(x interface{}) { *h = append(*h, x.(ScoredRecord)) }
func (h *scoredHeap) Pop() interface{} {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
