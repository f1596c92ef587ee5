// Package vector implements semantic similarity search over dense
// embeddings, with an in-memory backend and a pgvector-backed one.
package vector

import (
	"context"
	"math"

	"github.com/clipmind/clipmind/search"
)

// SignalName identifies this index in fused results and logs.
const SignalName = "vector"

// Config tunes a vector index.
type Config struct {
	// MinSimilarity is the default similarity floor applied by Search.
	MinSimilarity float64
}

// Stats describes the current index generation.
type Stats struct {
	DocumentCount int    `json:"document_count"`
	Dimensions    int    `json:"dimensions"`
	Backend       string `json:"backend"`
	Model         string `json:"model"`
}

// Index is the capability shared by the memory and pgvector backends.
// All backends embed document text through the same provider at Add time
// and score candidates by cosine similarity.
type Index interface {
	search.Signal

	// Add embeds and stores the documents. Re-adding an existing ID
	// atomically replaces the prior entry. A provider failure leaves the
	// index unmodified.
	Add(ctx context.Context, docs []*search.Document) error

	// SearchSimilar returns the topK documents above minSimilarity by
	// descending similarity, ties broken by document ID ascending.
	SearchSimilar(ctx context.Context, query string, topK int, minSimilarity float64) ([]search.Candidate, error)

	Stats(ctx context.Context) (Stats, error)
}

// cosineSimilarity is computed in float64 for stability. A zero-magnitude
// vector has undefined cosine; the defined policy is similarity 0.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
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
