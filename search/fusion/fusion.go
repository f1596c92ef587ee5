// Package fusion combines lexical and vector retrieval signals into a
// single ranked result list, optionally widened by query expansion.
package fusion

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"

	"github.com/clipmind/clipmind/search"
	"github.com/clipmind/clipmind/search/lexical"
	"github.com/clipmind/clipmind/search/vector"
)

// Strategy selects how per-signal scores become one fused score.
type Strategy string

const (
	// StrategyWeighted min-max normalizes each signal's scores and takes
	// a weighted average.
	StrategyWeighted Strategy = "weighted"

	// StrategyRRF fuses by reciprocal rank, ignoring score magnitudes.
	StrategyRRF Strategy = "rrf"
)

// rrfDefaultK dampens the top ranks in reciprocal rank fusion.
const rrfDefaultK = 60

// Config tunes the fused retriever.
type Config struct {
	Strategy      Strategy
	VectorWeight  float64
	LexicalWeight float64

	// RRFK is the rank damping constant for StrategyRRF.
	RRFK int
}

// DefaultConfig returns an even weighted-average fusion.
func DefaultConfig() Config {
	return Config{
		Strategy:      StrategyWeighted,
		VectorWeight:  0.5,
		LexicalWeight: 0.5,
		RRFK:          rrfDefaultK,
	}
}

// QueryExpander produces weighted query variants. The fused retriever only
// needs this one method of expand.Expander.
type QueryExpander interface {
	Expand(ctx context.Context, query string) ([]search.GeneratedQuery, error)
}

// Retriever runs every query variant against both signals concurrently and
// fuses the accumulated scores. Either signal may fail; retrieval degrades
// to the surviving one and only fails when both produced nothing but errors.
type Retriever struct {
	cfg      Config
	lexical  search.Signal
	vector   search.Signal
	expander QueryExpander
}

// NewRetriever wires the two signals and an optional expander. A nil
// expander means every query runs verbatim.
func NewRetriever(cfg Config, lex search.Signal, vec search.Signal, expander QueryExpander) (*Retriever, error) {
	if lex == nil || vec == nil {
		return nil, errors.New("fusion: both signals are required")
	}
	switch cfg.Strategy {
	case StrategyWeighted, StrategyRRF:
	case "":
		cfg.Strategy = StrategyWeighted
	default:
		return nil, errors.Errorf("fusion: unknown strategy %q", cfg.Strategy)
	}
	if cfg.VectorWeight < 0 || cfg.LexicalWeight < 0 {
		return nil, errors.New("fusion: signal weights must be non-negative")
	}
	if cfg.VectorWeight == 0 && cfg.LexicalWeight == 0 {
		cfg.VectorWeight, cfg.LexicalWeight = 0.5, 0.5
	}
	if cfg.RRFK <= 0 {
		cfg.RRFK = rrfDefaultK
	}
	return &Retriever{cfg: cfg, lexical: lex, vector: vec, expander: expander}, nil
}

// signalHit is one document's accumulated evidence from a single signal:
// the max of weight-multiplied raw scores across all query variants.
type signalHit struct {
	score float64
	doc   *search.Document
}

type accumulator struct {
	mu     sync.Mutex
	vec    map[string]signalHit
	lex    map[string]signalHit
	vecOK  bool
	lexOK  bool
	vecErr error
	lexErr error
}

func (a *accumulator) record(signal string, weight float64, cands []search.Candidate, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err != nil {
		if signal == vector.SignalName && a.vecErr == nil {
			a.vecErr = err
		}
		if signal == lexical.SignalName && a.lexErr == nil {
			a.lexErr = err
		}
		return
	}

	hits := a.lex
	if signal == vector.SignalName {
		hits = a.vec
		a.vecOK = true
	} else {
		a.lexOK = true
	}
	for _, c := range cands {
		weighted := c.Score * weight
		if prev, ok := hits[c.DocID]; !ok || weighted > prev.score {
			hits[c.DocID] = signalHit{score: weighted, doc: c.Doc}
		}
	}
}

// Retrieve returns the topK fused results for query. Each query variant
// searches both signals with a widened per-signal cutoff so that fusion has
// enough candidates to reorder.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) ([]search.FusedResult, error) {
	if topK <= 0 {
		return nil, &search.ValidationError{Field: "topK", Reason: "must be positive"}
	}

	queries, err := r.expandQueries(ctx, query)
	if err != nil {
		return nil, err
	}

	cutoff := 3 * topK
	if cutoff < 10 {
		cutoff = 10
	}

	acc := &accumulator{
		vec: make(map[string]signalHit),
		lex: make(map[string]signalHit),
	}

	// Signal failures are accumulated, not returned: a worker never errors
	// the group, so every variant runs to completion.
	var g errgroup.Group
	g.SetLimit(8)
	for _, q := range queries {
		for _, sig := range []search.Signal{r.lexical, r.vector} {
			g.Go(func() error {
				cands, err := sig.Search(ctx, q.Text, cutoff)
				if err != nil {
					slog.WarnContext(ctx, "Retrieval signal failed",
						"signal", sig.Name(),
						"method", q.Method,
						"error", err,
					)
				}
				acc.record(sig.Name(), q.Weight, cands, err)
				return nil
			})
		}
	}
	_ = g.Wait()

	if !acc.vecOK && !acc.lexOK {
		if acc.vecErr != nil || acc.lexErr != nil {
			return nil, errors.Errorf("fusion: all signals failed: vector: %v; lexical: %v", acc.vecErr, acc.lexErr)
		}
		return nil, nil
	}

	results := r.fuse(acc)
	sort.Slice(results, func(i, j int) bool {
		if results[i].FusedScore != results[j].FusedScore {
			return results[i].FusedScore > results[j].FusedScore
		}
		return results[i].DocID < results[j].DocID
	})
	if len(results) > topK {
		results = results[:topK]
	}

	slog.DebugContext(ctx, "Fusion complete",
		"strategy", string(r.cfg.Strategy),
		"variants", len(queries),
		"results", len(results),
	)
	return results, nil
}

func (r *Retriever) expandQueries(ctx context.Context, query string) ([]search.GeneratedQuery, error) {
	if r.expander != nil {
		return r.expander.Expand(ctx, query)
	}
	if query == "" {
		return nil, &search.ValidationError{Field: "query", Reason: "must not be empty"}
	}
	return []search.GeneratedQuery{{Text: query, Method: search.MethodOriginal, Weight: 1.0}}, nil
}

func (r *Retriever) fuse(acc *accumulator) []search.FusedResult {
	switch r.cfg.Strategy {
	case StrategyRRF:
		return r.fuseRRF(acc)
	default:
		return r.fuseWeighted(acc)
	}
}

// fuseWeighted min-max normalizes each signal's accumulated scores, then
// averages with the configured weights. A document absent from one signal's
// candidate set contributes 0 from that signal; its raw score pointer stays
// nil because absence means the signal never ranked it, not that it scored
// zero.
func (r *Retriever) fuseWeighted(acc *accumulator) []search.FusedResult {
	normVec := normalize(acc.vec)
	normLex := normalize(acc.lex)

	out := make(map[string]*search.FusedResult)
	collect := func(hits map[string]signalHit, norm map[string]float64, isVector bool) {
		for id, hit := range hits {
			res, ok := out[id]
			if !ok {
				res = &search.FusedResult{DocID: id, Doc: hit.doc}
				out[id] = res
			}
			raw := hit.score
			if isVector {
				res.VectorScore = &raw
				res.FusedScore += r.cfg.VectorWeight * norm[id]
			} else {
				res.LexicalScore = &raw
				res.FusedScore += r.cfg.LexicalWeight * norm[id]
			}
		}
	}
	collect(acc.vec, normVec, true)
	collect(acc.lex, normLex, false)
	return flatten(out)
}

// fuseRRF ranks each signal's accumulated candidates and scores each
// document by the weighted reciprocal of its rank. Documents absent from a
// signal simply take no contribution from it.
func (r *Retriever) fuseRRF(acc *accumulator) []search.FusedResult {
	out := make(map[string]*search.FusedResult)
	collect := func(hits map[string]signalHit, weight float64, isVector bool) {
		for rank, id := range rankIDs(hits) {
			hit := hits[id]
			res, ok := out[id]
			if !ok {
				res = &search.FusedResult{DocID: id, Doc: hit.doc}
				out[id] = res
			}
			raw := hit.score
			if isVector {
				res.VectorScore = &raw
			} else {
				res.LexicalScore = &raw
			}
			res.FusedScore += weight / float64(r.cfg.RRFK+rank+1)
		}
	}
	collect(acc.vec, r.cfg.VectorWeight, true)
	collect(acc.lex, r.cfg.LexicalWeight, false)
	return flatten(out)
}

// normalize min-max scales scores to [0,1]. When every present score is
// equal the range is degenerate and all of them map to 1.0, keeping a
// single-candidate signal from zeroing itself out.
func normalize(hits map[string]signalHit) map[string]float64 {
	if len(hits) == 0 {
		return nil
	}
	first := true
	var lo, hi float64
	for _, h := range hits {
		if first {
			lo, hi = h.score, h.score
			first = false
			continue
		}
		if h.score < lo {
			lo = h.score
		}
		if h.score > hi {
			hi = h.score
		}
	}

	norm := make(map[string]float64, len(hits))
	for id, h := range hits {
		if hi == lo {
			norm[id] = 1.0
		} else {
			norm[id] = (h.score - lo) / (hi - lo)
		}
	}
	return norm
}

func rankIDs(hits map[string]signalHit) []string {
	ids := make([]string, 0, len(hits))
	for id := range hits {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		si, sj := hits[ids[i]].score, hits[ids[j]].score
		if si != sj {
			return si > sj
		}
		return ids[i] < ids[j]
	})
	return ids
}

func flatten(out map[string]*search.FusedResult) []search.FusedResult {
	results := make([]search.FusedResult, 0, len(out))
	for _, res := range out {
		results = append(results, *res)
	}
	return results
}
