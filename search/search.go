// Package search defines the document model shared by the lexical and
// vector indexes and the types flowing through score fusion.
package search

import "context"

// Document is an immutable unit of retrievable content. The time range is
// preserved from the upstream transcription and is used only for citation,
// never for ranking.
type Document struct {
	ID    string  `json:"id"`
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Candidate is an ephemeral scored reference produced during a single
// search call. It is never persisted.
type Candidate struct {
	DocID  string
	Score  float64
	Doc    *Document
	Signal string
}

// Signal is the capability both indexes expose to the fusion retriever.
// Implementations must be safe for concurrent Search calls.
type Signal interface {
	// Name identifies the signal ("lexical", "vector") in results and logs.
	Name() string

	// Search returns at most topK candidates by descending raw score,
	// ties broken by document ID ascending. An empty result is not an error.
	Search(ctx context.Context, query string, topK int) ([]Candidate, error)
}

// FusedResult is the unit returned to retrieval callers. VectorScore and
// LexicalScore are nil when the document was not found by that signal
// within the signal's own candidate cutoff; absence is not a zero score,
// the candidate set was deliberately truncated.
type FusedResult struct {
	DocID        string
	Doc          *Document
	VectorScore  *float64
	LexicalScore *float64
	FusedScore   float64
}

// Query generation methods.
const (
	MethodOriginal   = "original"
	MethodParaphrase = "paraphrase"
)

// GeneratedQuery is one query variant produced by expansion. Weight is a
// fusion-time multiplier; the verbatim original always carries 1.0.
type GeneratedQuery struct {
	Text   string
	Method string
	Weight float64
}
