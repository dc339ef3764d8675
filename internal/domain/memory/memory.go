// Package memory provides the episodic memory store for Echo instances:
// embedding-indexed records with emotional metadata, retrieved by cosine
// similarity and bounded by age-based eviction.
package memory

import (
	"math"
	"sort"
	"time"
)

const (
	// MaxEntries bounds the collection size.
	MaxEntries = 100
	// MaxContentLength bounds a single memory's content.
	MaxContentLength = 500
	// EmbeddingDimensions is the fixed embedding vector length.
	EmbeddingDimensions = 1536
	// SearchLimit is the maximum number of search results.
	SearchLimit = 5
	// SimilarityThreshold excludes near-orthogonal noise while tolerating
	// floating-point jitter around exact orthogonality.
	SimilarityThreshold = 0.001
)

// Emotion captures the affective context attached to a memory.
type Emotion struct {
	Valence float64  `json:"valence"` // -1.0 (negative) .. 1.0 (positive)
	Arousal float64  `json:"arousal"` // 0.0 (calm) .. 1.0 (excited)
	Labels  []string `json:"labels"`
}

// Entry is a single episodic memory. Immutable once stored, except eviction.
type Entry struct {
	Content   string    `json:"content"`
	Embedding []float64 `json:"embedding"`
	Emotion   Emotion   `json:"emotion"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Scored pairs an entry with its similarity to a query.
type Scored struct {
	Entry
	Similarity float64 `json:"similarity"`
}

// CosineSimilarity computes the cosine of the angle between a and b.
// Empty and zero-norm vectors yield 0 rather than an error; length
// mismatches are tolerated by treating missing components as zero.
func CosineSimilarity(a, b []float64) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}

	n := max(len(a), len(b))
	var dot, normA, normB float64
	for i := range n {
		var av, bv float64
		if i < len(a) {
			av = a[i]
		}
		if i < len(b) {
			bv = b[i]
		}
		dot += av * bv
		normA += av * av
		normB += bv * bv
	}

	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// Insert appends a new memory, evicting the entry with the oldest UpdatedAt
// when the collection is at capacity. The evicted entry is returned for
// logging.
func Insert(entries []Entry, e Entry) (updated []Entry, evicted *Entry) {
	if len(entries) >= MaxEntries {
		oldest := 0
		for i := range entries {
			if entries[i].UpdatedAt.Before(entries[oldest].UpdatedAt) {
				oldest = i
			}
		}
		ev := entries[oldest]
		evicted = &ev
		entries = append(entries[:oldest], entries[oldest+1:]...)
	}
	return append(entries, e), evicted
}

// Rank scores every entry against the query embedding and returns up to
// SearchLimit entries with similarity at or above SimilarityThreshold,
// most similar first. Entries are not mutated.
func Rank(entries []Entry, query []float64) []Scored {
	var scored []Scored
	for i := range entries {
		sim := CosineSimilarity(entries[i].Embedding, query)
		if sim >= SimilarityThreshold {
			scored = append(scored, Scored{Entry: entries[i], Similarity: sim})
		}
	}

	sort.SliceStable(scored, func(a, b int) bool {
		return scored[a].Similarity > scored[b].Similarity
	})

	if len(scored) > SearchLimit {
		scored = scored[:SearchLimit]
	}
	return scored
}

// Latest returns the most recently created entry, or nil when empty. Used to
// seed a think cycle with what the instance was last reflecting on.
func Latest(entries []Entry) *Entry {
	if len(entries) == 0 {
		return nil
	}
	latest := 0
	for i := range entries {
		if entries[i].CreatedAt.After(entries[latest].CreatedAt) {
			latest = i
		}
	}
	e := entries[latest]
	return &e
}
