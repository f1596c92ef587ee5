package vector

import (
	"context"
	"database/sql"
	"fmt"
	"sort"

	// Import the postgres driver.
	_ "github.com/lib/pq"
	"github.com/pgvector/pgvector-go"

	"github.com/clipmind/clipmind/ai"
	"github.com/clipmind/clipmind/search"
)

// PgIndex stores embeddings in PostgreSQL with the pgvector extension.
// Persistence is inherent; there is no snapshot file. Document replacement
// uses upsert, and a whole Add batch commits in one transaction, so a
// concurrent search never observes a partial batch.
type PgIndex struct {
	db       *sql.DB
	cfg      Config
	embedder ai.EmbeddingService
}

// NewPgIndex connects to postgres, enables the vector extension and
// creates the documents table sized to the embedder's dimensionality.
func NewPgIndex(ctx context.Context, dsn string, cfg Config, embedder ai.EmbeddingService) (*PgIndex, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	idx := &PgIndex{db: db, cfg: cfg, embedder: embedder}
	if err := idx.ensureSchema(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return idx, nil
}

func (idx *PgIndex) ensureSchema(ctx context.Context) error {
	if _, err := idx.db.ExecContext(ctx, "CREATE EXTENSION IF NOT EXISTS vector"); err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}
	stmt := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS documents (
			id TEXT PRIMARY KEY,
			text TEXT NOT NULL,
			start_time DOUBLE PRECISION NOT NULL DEFAULT 0,
			end_time DOUBLE PRECISION NOT NULL DEFAULT 0,
			embedding vector(%d) NOT NULL
		)`, idx.embedder.Dimensions())
	if _, err := idx.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("create documents table: %w", err)
	}
	return nil
}

// Name implements search.Signal.
func (idx *PgIndex) Name() string { return SignalName }

// Add implements Index.
func (idx *PgIndex) Add(ctx context.Context, docs []*search.Document) error {
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

	tx, err := idx.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	for i, doc := range docs {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO documents (id, text, start_time, end_time, embedding)
			VALUES ($1, $2, $3, $4, $5)
			ON CONFLICT (id) DO UPDATE SET
				text = EXCLUDED.text,
				start_time = EXCLUDED.start_time,
				end_time = EXCLUDED.end_time,
				embedding = EXCLUDED.embedding
		`, doc.ID, doc.Text, doc.Start, doc.End, pgvector.NewVector(embeddings[i]))
		if err != nil {
			return fmt.Errorf("upsert document %s: %w", doc.ID, err)
		}
	}
	return tx.Commit()
}

// Search implements search.Signal using the configured similarity floor.
func (idx *PgIndex) Search(ctx context.Context, query string, topK int) ([]search.Candidate, error) {
	return idx.SearchSimilar(ctx, query, topK, idx.cfg.MinSimilarity)
}

// SearchSimilar implements Index. Cosine distance ordering comes from
// pgvector's <=> operator; similarity is 1 - distance.
func (idx *PgIndex) SearchSimilar(ctx context.Context, query string, topK int, minSimilarity float64) ([]search.Candidate, error) {
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

	rows, err := idx.db.QueryContext(ctx, `
		SELECT id, text, start_time, end_time, 1 - (embedding <=> $1) AS similarity
		FROM documents
		ORDER BY embedding <=> $1, id ASC
		LIMIT $2
	`, pgvector.NewVector(queryVec), topK)
	if err != nil {
		return nil, fmt.Errorf("vector search: %w", err)
	}
	defer rows.Close()

	var candidates []search.Candidate
	for rows.Next() {
		var doc search.Document
		var sim float64
		if err := rows.Scan(&doc.ID, &doc.Text, &doc.Start, &doc.End, &sim); err != nil {
			return nil, fmt.Errorf("scan candidate: %w", err)
		}
		if sim < minSimilarity {
			continue
		}
		candidates = append(candidates, search.Candidate{
			DocID:  doc.ID,
			Score:  sim,
			Doc:    &doc,
			Signal: SignalName,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate candidates: %w", err)
	}

	// Equal distances already arrive id-ascending from the ORDER BY;
	// re-sorting keeps the contract explicit for float round-trips.
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].DocID < candidates[j].DocID
	})
	return candidates, nil
}

// Stats implements Index.
func (idx *PgIndex) Stats(ctx context.Context) (Stats, error) {
	var count int
	if err := idx.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM documents").Scan(&count); err != nil {
		return Stats{}, fmt.Errorf("count documents: %w", err)
	}
	return Stats{
		DocumentCount: count,
		Dimensions:    idx.embedder.Dimensions(),
		Backend:       "pgvector",
		Model:         idx.embedder.Model(),
	}, nil
}

// Close releases the database connection.
func (idx *PgIndex) Close() error { return idx.db.Close() }
