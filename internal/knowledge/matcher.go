package knowledge

import (
	"math"
	"sort"

	"github.com/ruined/expertmind/internal/storage"
)

// Candidate is a learned entry accepted by the matcher, with its similarity
// and combined ranking score. Lexical records which path produced the score;
// ranking and composition are written once over this uniform record.
type Candidate struct {
	Entry      storage.LearnedEntry
	Similarity float64
	Lexical    bool
	Combined   float64
}

// matchCandidates ranks a document's learned entries against a query.
//
// Entries with a stored embedding are scored by cosine similarity against
// queryVec and accepted at cfg.SimilarityThreshold. Entries without one,
// any entry when queryVec is nil because the provider was unavailable, and
// pairs whose dimensions do not match all fall back to Jaccard word overlap
// at cfg.LexicalThreshold, with the combined score discounted by
// cfg.LexicalPenalty. Entries flagged with a corrupt
// stored embedding are skipped. Ordering is stable: ties keep scan order.
func matchCandidates(queryVec []float32, question string, entries []storage.LearnedEntry, cfg Config) []Candidate {
	queryWords := wordSet(question)

	var candidates []Candidate
	for _, entry := range entries {
		if entry.CorruptEmbedding {
			continue
		}

		if queryVec != nil && len(entry.Embedding) == len(queryVec) && len(entry.Embedding) > 0 {
			sim := CosineSimilarity(queryVec, entry.Embedding)
			if sim >= cfg.SimilarityThreshold {
				candidates = append(candidates, Candidate{
					Entry:      entry,
					Similarity: sim,
					Combined:   sim * entry.ConfidenceScore,
				})
			}
			continue
		}

		sim := jaccard(queryWords, wordSet(entry.QuestionPattern))
		if sim >= cfg.LexicalThreshold {
			candidates = append(candidates, Candidate{
				Entry:      entry,
				Similarity: sim,
				Lexical:    true,
				Combined:   sim * entry.ConfidenceScore * cfg.LexicalPenalty,
			})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Combined > candidates[j].Combined
	})
	return candidates
}

// CosineSimilarity returns the cosine of the angle between two equal-length
// vectors, in [-1, 1]. A zero-norm vector yields 0 rather than dividing by
// zero.
func CosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// jaccard returns intersection size over union size of two word sets, 0 when
// either set is empty.
func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	intersection := 0
	for w := range a {
		if _, ok := b[w]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	return float64(intersection) / float64(union)
}
