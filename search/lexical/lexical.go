// Package lexical implements the BM25 inverted index over tokenized
// documents.
package lexical

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"sort"
	"sync"

	"github.com/clipmind/clipmind/search"
)

// SignalName identifies this index in fused results and logs.
const SignalName = "lexical"

// Config holds the BM25 constants. K1 controls term-frequency saturation,
// B the strength of document-length normalization, Epsilon the IDF floor.
type Config struct {
	K1       float64
	B        float64
	Epsilon  float64
	Language string
}

// DefaultConfig returns the conventional BM25 parameters.
func DefaultConfig() Config {
	return Config{K1: 1.2, B: 0.75, Epsilon: 0.25, Language: LangAuto}
}

// Index is an in-process BM25 index. Add is serialized; Search calls run
// concurrently against a consistent generation, never observing a partial
// add.
type Index struct {
	mu  sync.RWMutex
	cfg Config
	tok *tokenizer

	docs     map[string]*search.Document
	postings map[string]map[string]int // term -> docID -> frequency
	docLen   map[string]int
	totalLen int
}

// NewIndex creates an empty lexical index.
func NewIndex(cfg Config) *Index {
	if cfg.K1 <= 0 {
		cfg.K1 = 1.2
	}
	if cfg.B < 0 || cfg.B > 1 {
		cfg.B = 0.75
	}
	if cfg.Epsilon <= 0 {
		cfg.Epsilon = 0.25
	}
	return &Index{
		cfg:      cfg,
		tok:      newTokenizer(cfg.Language),
		docs:     make(map[string]*search.Document),
		postings: make(map[string]map[string]int),
		docLen:   make(map[string]int),
	}
}

// Name implements search.Signal.
func (idx *Index) Name() string { return SignalName }

// Add tokenizes and indexes the documents. Re-adding an existing ID
// atomically replaces the prior entry and its term counts. The whole batch
// commits under one write lock, so a concurrent Search sees either none or
// all of it.
func (idx *Index) Add(ctx context.Context, docs []*search.Document) error {
	if len(docs) == 0 {
		return nil
	}
	type staged struct {
		doc    *search.Document
		counts map[string]int
		length int
	}
	// Tokenization is pure, keep it outside the lock.
	stagedDocs := make([]staged, 0, len(docs))
	for _, doc := range docs {
		if doc == nil || doc.ID == "" {
			return &search.ValidationError{Field: "document", Reason: "missing id"}
		}
		tokens := idx.tok.tokenize(doc.Text)
		counts := make(map[string]int, len(tokens))
		for _, t := range tokens {
			counts[t]++
		}
		stagedDocs = append(stagedDocs, staged{doc: doc, counts: counts, length: len(tokens)})
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, s := range stagedDocs {
		if _, exists := idx.docs[s.doc.ID]; exists {
			idx.removeLocked(s.doc.ID)
		}
		idx.insertLocked(s.doc, s.counts, s.length)
	}
	return nil
}

func (idx *Index) insertLocked(doc *search.Document, counts map[string]int, length int) {
	idx.docs[doc.ID] = doc
	idx.docLen[doc.ID] = length
	idx.totalLen += length
	for term, freq := range counts {
		posting, ok := idx.postings[term]
		if !ok {
			posting = make(map[string]int)
			idx.postings[term] = posting
		}
		posting[doc.ID] = freq
	}
}

func (idx *Index) removeLocked(docID string) {
	length, ok := idx.docLen[docID]
	if !ok {
		return
	}
	idx.totalLen -= length
	delete(idx.docLen, docID)
	delete(idx.docs, docID)
	for term, posting := range idx.postings {
		if _, ok := posting[docID]; ok {
			delete(posting, docID)
			if len(posting) == 0 {
				delete(idx.postings, term)
			}
		}
	}
}

// Search scores every document containing at least one query term with
// BM25 and returns the topK by descending score, ties broken by document
// ID ascending. An empty or unmatchable query returns an empty slice.
func (idx *Index) Search(ctx context.Context, query string, topK int) ([]search.Candidate, error) {
	if topK <= 0 {
		return nil, &search.ValidationError{Field: "topK", Reason: "must be positive"}
	}
	queryTokens := idx.tok.tokenize(query)
	if len(queryTokens) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	n := len(idx.docs)
	if n == 0 {
		return nil, nil
	}
	avgDL := float64(idx.totalLen) / float64(n)

	scores := make(map[string]float64)
	for _, term := range queryTokens {
		posting, ok := idx.postings[term]
		if !ok {
			continue
		}
		df := float64(len(posting))
		idf := math.Log((float64(n) - df + 0.5) / (df + 0.5))
		if idf < idx.cfg.Epsilon {
			idf = idx.cfg.Epsilon
		}
		for docID, tf := range posting {
			norm := idx.cfg.K1 * (1 - idx.cfg.B + idx.cfg.B*float64(idx.docLen[docID])/avgDL)
			scores[docID] += idf * (float64(tf) * (idx.cfg.K1 + 1)) / (float64(tf) + norm)
		}
	}
	if len(scores) == 0 {
		return nil, nil
	}

	candidates := make([]search.Candidate, 0, len(scores))
	for docID, score := range scores {
		candidates = append(candidates, search.Candidate{
			DocID:  docID,
			Score:  score,
			Doc:    idx.docs[docID],
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

// Stats describes the current index generation.
type Stats struct {
	DocumentCount  int     `json:"document_count"`
	VocabularySize int     `json:"vocabulary_size"`
	AvgDocLength   float64 `json:"avg_doc_length"`
}

func (idx *Index) Stats() Stats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	s := Stats{
		DocumentCount:  len(idx.docs),
		VocabularySize: len(idx.postings),
	}
	if s.DocumentCount > 0 {
		s.AvgDocLength = float64(idx.totalLen) / float64(s.DocumentCount)
	}
	return s
}

const (
	snapshotFormat  = "clipmind/lexical"
	snapshotVersion = 1
)

type snapshot struct {
	Format   string             `json:"format"`
	Version  int                `json:"version"`
	K1       float64            `json:"k1"`
	B        float64            `json:"b"`
	Epsilon  float64            `json:"epsilon"`
	Language string             `json:"language"`
	Docs     []*search.Document `json:"docs"`
}

// Persist writes a self-describing snapshot. Token counts are not stored;
// the tokenizer is deterministic, so Restore rebuilds them and reproduces
// identical search results.
func (idx *Index) Persist(w io.Writer) error {
	idx.mu.RLock()
	docs := make([]*search.Document, 0, len(idx.docs))
	for _, d := range idx.docs {
		docs = append(docs, d)
	}
	cfg := idx.cfg
	idx.mu.RUnlock()

	sort.Slice(docs, func(i, j int) bool { return docs[i].ID < docs[j].ID })
	return json.NewEncoder(w).Encode(snapshot{
		Format:   snapshotFormat,
		Version:  snapshotVersion,
		K1:       cfg.K1,
		B:        cfg.B,
		Epsilon:  cfg.Epsilon,
		Language: cfg.Language,
		Docs:     docs,
	})
}

// Restore replaces the index contents and BM25 constants from a snapshot.
// On any validation failure the index is left unchanged and ErrIndexCorrupt
// is returned.
func (idx *Index) Restore(r io.Reader) error {
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
	switch snap.Language {
	case LangAuto, LangEnglish, LangChinese:
	default:
		return fmt.Errorf("%w: unknown language %q", search.ErrIndexCorrupt, snap.Language)
	}
	if snap.K1 <= 0 || snap.B < 0 || snap.B > 1 {
		return fmt.Errorf("%w: invalid BM25 constants k1=%f b=%f", search.ErrIndexCorrupt, snap.K1, snap.B)
	}
	for _, d := range snap.Docs {
		if d == nil || d.ID == "" {
			return fmt.Errorf("%w: document without id", search.ErrIndexCorrupt)
		}
	}

	fresh := NewIndex(Config{K1: snap.K1, B: snap.B, Epsilon: snap.Epsilon, Language: snap.Language})
	if err := fresh.Add(context.Background(), snap.Docs); err != nil {
		return fmt.Errorf("%w: %v", search.ErrIndexCorrupt, err)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()
	idx.cfg = fresh.cfg
	idx.tok = fresh.tok
	idx.docs = fresh.docs
	idx.postings = fresh.postings
	idx.docLen = fresh.docLen
	idx.totalLen = fresh.totalLen
	return nil
}
