package vector

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/clipmind/clipmind/ai"
	"github.com/clipmind/clipmind/search"
)

type memoryEntry struct {
	doc       *search.Document
	embedding []float32
}

// MemoryIndex is a flat in-process store of document embeddings. Add
// obtains embeddings outside the write lock and commits the batch under
// it, so a concurrent Search sees either the pre-add or post-add
// generation.
type MemoryIndex struct {
	mu       sync.RWMutex
	cfg      Config
	embedder ai.EmbeddingService
	entries  map[string]memoryEntry
}

// NewMemoryIndex creates an empty in-memory vector index.
func NewMemoryIndex(cfg Config, embedder ai.EmbeddingService) *MemoryIndex {
	return &MemoryIndex{
		cfg:      cfg,
		embedder: embedder,
		entries:  make(map[string]memoryEntry),
	}
}

// Name implements search.Signal.
func (idx *MemoryIndex) Name() string { return SignalName }

// Add implements Index. One batched provider call per Add; on provider
// failure nothing is written.
func (idx *MemoryIndex) Add(ctx context.Context, docs []*search.Document) error {
	if len(docs) == 0 {
		return nil
	}
	texts := make([]string, 0, len(docs))
	for _, doc := range docs {
		if doc == nil || doc.ID == "" {
			return &search.ValidationError{Field: "document", Reason: "missing id"}
		}
		texts = append(texts, doc.Text)
	}

	embeddings, err := idx.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed documents: %w", err)
	}
	if len(embeddings) != len(docs) {
		return fmt.Errorf("%w: embedding count mismatch", ai.ErrProviderUnavailable)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	for i, doc := range docs {
		idx.entries[doc.ID] = memoryEntry{doc: doc, embedding: embeddings[i]}
	}
	return nil
}

// Search implements search.Signal using the configured similarity floor.
func (idx *MemoryIndex) Search(ctx context.Context, query string, topK int) ([]search.Candidate, error) {
	return idx.SearchSimilar(ctx, query, topK, idx.cfg.MinSimilarity)
}

// SearchSimilar implements Index.
func (idx *MemoryIndex) SearchSimilar(ctx context.Context, query string, topK int, minSimilarity float64) ([]search.Candidate, error) {
	if topK <= 0 {
		return nil, &search.ValidationError{Field: "topK", Reason: "must be positive"}
	}
	if query == "" {
		return nil, nil
	}

	queryVec, err := idx.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	candidates := make([]search.Candidate, 0, len(idx.entries))
	for id, entry := range idx.entries {
		sim := cosineSimilarity(queryVec, entry.embedding)
		if sim < minSimilarity {
			continue
		}
		candidates = append(candidates, search.Candidate{
			DocID:  id,
			Score:  sim,
			Doc:    entry.doc,
			Signal: SignalName,
		})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].DocID < candidates[j].DocID
	})
	if len(candidates) > topK {
		candidates = candidates[:topK]
	}
	return candidates, nil
}

// Stats implements Index.
func (idx *MemoryIndex) Stats(context.Context) (Stats, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return Stats{
		DocumentCount: len(idx.entries),
		Dimensions:    idx.embedder.Dimensions(),
		Backend:       "memory",
		Model:         idx.embedder.Model(),
	}, nil
}

const (
	snapshotFormat  = "clipmind/vector"
	snapshotVersion = 1
)

type snapshotEntry struct {
	Doc       *search.Document `json:"doc"`
	Embedding []float32        `json:"embedding"`
}

type snapshot struct {
	Format     string          `json:"format"`
	Version    int             `json:"version"`
	Dimensions int             `json:"dimensions"`
	Model      string          `json:"model"`
	Entries    []snapshotEntry `json:"entries"`
}

// Persist writes a self-describing snapshot of (id, embedding, text)
// triples. Stored vectors round-trip exactly (float32 JSON encoding is
// lossless), so a restored index reproduces identical search results.
func (idx *MemoryIndex) Persist(w io.Writer) error {
	idx.mu.RLock()
	entries := make([]snapshotEntry, 0, len(idx.entries))
	for _, e := range idx.entries {
		entries = append(entries, snapshotEntry{Doc: e.doc, Embedding: e.embedding})
	}
	idx.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].Doc.ID < entries[j].Doc.ID })
	return json.NewEncoder(w).Encode(snapshot{
		Format:     snapshotFormat,
		Version:    snapshotVersion,
		Dimensions: idx.embedder.Dimensions(),
		Model:      idx.embedder.Model(),
		Entries:    entries,
	})
}

// Restore replaces the index contents from a snapshot. The snapshot must
// have been produced with the same embedding model and dimensionality;
// a mismatch fails fast with ErrIndexCorrupt and leaves the index
// unchanged.
func (idx *MemoryIndex) Restore(r io.Reader) error {
	var snap snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return fmt.Errorf("%w: %v", search.ErrIndexCorrupt, err)
	}
	if snap.Format != snapshotFormat {
		return fmt.Errorf("%w: unexpected format %q", search.ErrIndexCorrupt, snap.Format)
	}
	if snap.Version != snapshotVersion {
		return fmt.Errorf("%w: unsupported version %d", search.ErrIndexCorrupt, snap.Version)
	}
	if snap.Model != idx.embedder.Model() {
		return fmt.Errorf("%w: snapshot model %q, index model %q",
			search.ErrIndexCorrupt, snap.Model, idx.embedder.Model())
	}
	if snap.Dimensions != idx.embedder.Dimensions() {
		return fmt.Errorf("%w: snapshot dimensions %d, index dimensions %d",
			search.ErrIndexCorrupt, snap.Dimensions, idx.embedder.Dimensions())
	}

	entries := make(map[string]memoryEntry, len(snap.Entries))
	for _, e := range snap.Entries {
		if e.Doc == nil || e.Doc.ID == "" {
			return fmt.Errorf("%w: entry without document id", search.ErrIndexCorrupt)
		}
		if len(e.Embedding) != snap.Dimensions {
			return fmt.Errorf("%w: entry %q has %d dimensions, expected %d",
				search.ErrIndexCorrupt, e.Doc.ID, len(e.Embedding), snap.Dimensions)
		}
		entries[e.Doc.ID] = memoryEntry{doc: e.Doc, embedding: e.Embedding}
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.entries = entries
	return nil
}
