// Package expand generates paraphrased query variants to widen recall
// before retrieval.
package expand

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/clipmind/clipmind/ai"
	"github.com/clipmind/clipmind/search"
)

const expansionSystemPrompt = `You rewrite search queries. Given a user query, produce alternative phrasings that express the same information need with different vocabulary. Output one rewrite per line, plain text, no numbering, no commentary.`

// Paraphrase weight schedule: the first rewrite carries 0.8, each later
// one 0.1 less, never below the floor.
const (
	paraphraseBaseWeight = 0.8
	paraphraseWeightStep = 0.1
	paraphraseMinWeight  = 0.5
)

// Config tunes query expansion.
type Config struct {
	// Enabled gates expansion entirely. When false Expand returns only
	// the original query.
	Enabled bool

	// MaxVariants bounds the total number of queries returned, the
	// original included.
	MaxVariants int

	// Temperature for the rewrite call. Paraphrasing wants some variety.
	Temperature float32
}

// DefaultConfig returns the expansion settings used in production.
func DefaultConfig() Config {
	return Config{Enabled: true, MaxVariants: 4, Temperature: 0.8}
}

// Expander turns one query into several weighted variants via an LLM.
// Expansion is best-effort: any provider failure degrades to the original
// query alone and is never surfaced as an error to the retrieval path.
type Expander struct {
	cfg Config
	llm ai.GenerationService
}

// NewExpander creates an Expander. llm may be nil, in which case expansion
// is effectively disabled.
func NewExpander(cfg Config, llm ai.GenerationService) *Expander {
	if cfg.MaxVariants <= 0 {
		cfg.MaxVariants = DefaultConfig().MaxVariants
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = DefaultConfig().Temperature
	}
	return &Expander{cfg: cfg, llm: llm}
}

// Expand returns the original query first, always with weight 1.0, followed
// by up to MaxVariants-1 deduplicated paraphrases with decaying weights.
func (e *Expander) Expand(ctx context.Context, query string) ([]search.GeneratedQuery, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, &search.ValidationError{Field: "query", Reason: "must not be empty"}
	}

	queries := []search.GeneratedQuery{{
		Text:   query,
		Method: search.MethodOriginal,
		Weight: 1.0,
	}}
	if !e.cfg.Enabled || e.llm == nil || e.cfg.MaxVariants <= 1 {
		return queries, nil
	}

	wanted := e.cfg.MaxVariants - 1
	raw, err := e.llm.Complete(ctx,
		[]ai.Message{
			ai.SystemPrompt(expansionSystemPrompt),
			ai.UserMessage(fmt.Sprintf("Produce %d rewrites of this query:\n%s", wanted, query)),
		},
		ai.CompleteOptions{Temperature: e.cfg.Temperature, MaxTokens: 256},
	)
	if err != nil {
		slog.WarnContext(ctx, "Query expansion degraded to original query", "error", err)
		return queries, nil
	}

	seen := map[string]bool{normalizeQuery(query): true}
	rank := 0
	for _, line := range strings.Split(raw, "\n") {
		variant := cleanVariant(line)
		if variant == "" {
			continue
		}
		key := normalizeQuery(variant)
		if seen[key] {
			continue
		}
		seen[key] = true
		rank++
		queries = append(queries, search.GeneratedQuery{
			Text:   variant,
			Method: search.MethodParaphrase,
			Weight: paraphraseWeight(rank),
		})
		if len(queries) >= e.cfg.MaxVariants {
			break
		}
	}

	slog.DebugContext(ctx, "Query expanded",
		"original", query,
		"variants", len(queries)-1,
	)
	return queries, nil
}

func paraphraseWeight(rank int) float64 {
	w := paraphraseBaseWeight - paraphraseWeightStep*float64(rank-1)
	if w < paraphraseMinWeight {
		return paraphraseMinWeight
	}
	return w
}

// cleanVariant strips list markers and quotes a model tends to emit even
// when told not to.
func cleanVariant(line string) string {
	s := strings.TrimSpace(line)
	s = strings.TrimLeft(s, "-*•0123456789.) ")
	s = strings.Trim(s, `"'`)
	return strings.TrimSpace(s)
}

// normalizeQuery is the dedup key: case- and whitespace-insensitive.
func normalizeQuery(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}
