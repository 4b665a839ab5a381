// Package vectorstore implements core.VectorStore against Postgres +
// pgvector: per-index table lifecycle, upsert, and cosine ANN search
// (spec §4.8). Grounded on the teacher's internal/core/database package —
// same database/sql + pgx/v5 stdlib driver + pgvector-go.Vector marshalling
// — generalized from the teacher's single fixed document_chunks table to
// one dynamically named table per ingested source, and on OneBook-AI's
// gorm_store.go for the "ALTER embedding column if dimension changed"
// migration idea, adapted here into drop-and-recreate per spec §4.8 step 2.
package vectorstore

import (
	"context"
	"database/sql"
	"fmt"
	"regexp"
	"strings"

	"github.com/pgvector/pgvector-go"

	"github.com/docsearch-dev/docsearch/internal/core"
	"github.com/docsearch-dev/docsearch/internal/models"
)

// Store implements core.VectorStore.
type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

var validIndexName = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

func tableName(indexName string) (string, error) {
	if !validIndexName.MatchString(indexName) {
		return "", fmt.Errorf("invalid index name %q", indexName)
	}
	return "docs_" + strings.ReplaceAll(indexName, "-", "_"), nil
}

// EnsureStore creates or recreates docs_<indexName> so its embedding column
// matches dimension, then ensures its ANN and url indexes (spec §4.8).
func (s *Store) EnsureStore(ctx context.Context, indexName string, dimension int) error {
	table, err := tableName(indexName)
	if err != nil {
		return err
	}

	if _, err := s.db.ExecContext(ctx, `CREATE EXTENSION IF NOT EXISTS vector`); err != nil {
		return fmt.Errorf("create vector extension: %w", err)
	}

	existingDim, exists, err := s.currentDimension(ctx, table)
	if err != nil {
		return err
	}
	if exists && existingDim != dimension {
		if _, err := s.db.ExecContext(ctx, fmt.Sprintf(`DROP TABLE %s`, table)); err != nil {
			return fmt.Errorf("drop stale table %s: %w", table, err)
		}
		exists = false
	}

	if !exists {
		createSQL := fmt.Sprintf(`
			CREATE TABLE %s (
				url        TEXT PRIMARY KEY,
				title      TEXT NOT NULL DEFAULT '',
				content    TEXT NOT NULL,
				embedding  vector(%d) NOT NULL,
				source     TEXT NOT NULL DEFAULT '',
				type       TEXT NOT NULL DEFAULT 'html',
				size       INTEGER NOT NULL DEFAULT 0,
				page_count INTEGER NOT NULL DEFAULT 0,
				created_at TIMESTAMPTZ NOT NULL DEFAULT now()
			)
		`, table, dimension)
		if _, err := s.db.ExecContext(ctx, createSQL); err != nil {
			return fmt.Errorf("create table %s: %w", table, err)
		}
	}

	s.ensureANNIndex(ctx, table, dimension)

	urlIdx := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_url_idx ON %s (url)`, table, table)
	if _, err := s.db.ExecContext(ctx, urlIdx); err != nil {
		return fmt.Errorf("create url index on %s: %w", table, err)
	}
	return nil
}

// ensureANNIndex tries HNSW first, falls back to IVFFlat when dimension
// allows it, and otherwise leaves the table to a linear scan (spec §4.8
// step 4). Failures are swallowed, not fatal: a missing ANN index degrades
// query latency but never correctness.
func (s *Store) ensureANNIndex(ctx context.Context, table string, dimension int) {
	hnsw := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_ann_idx ON %s USING hnsw (embedding vector_cosine_ops)`, table, table)
	if _, err := s.db.ExecContext(ctx, hnsw); err == nil {
		return
	}
	if dimension > 2000 {
		return
	}
	ivf := fmt.Sprintf(`CREATE INDEX IF NOT EXISTS %s_ann_idx ON %s USING ivfflat (embedding vector_cosine_ops) WITH (lists = 100)`, table, table)
	_, _ = s.db.ExecContext(ctx, ivf)
}

func (s *Store) currentDimension(ctx context.Context, table string) (dim int, exists bool, err error) {
	const q = `
		SELECT atttypmod
		FROM pg_attribute
		WHERE attrelid = to_regclass($1) AND attname = 'embedding'
	`
	var typmod sql.NullInt32
	err = s.db.QueryRowContext(ctx, q, table).Scan(&typmod)
	if err == sql.ErrNoRows || !typmod.Valid {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, fmt.Errorf("inspect %s.embedding: %w", table, err)
	}
	return int(typmod.Int32), true, nil
}

// Upsert inserts or updates one chunk row keyed by url (spec §4.8).
func (s *Store) Upsert(ctx context.Context, indexName string, chunk models.DocumentChunk) error {
	table, err := tableName(indexName)
	if err != nil {
		return err
	}
	q := fmt.Sprintf(`
		INSERT INTO %s (url, title, content, embedding, source, type, size, page_count, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9, now()))
		ON CONFLICT (url) DO UPDATE SET
			title = EXCLUDED.title,
			content = EXCLUDED.content,
			embedding = EXCLUDED.embedding,
			source = EXCLUDED.source,
			type = EXCLUDED.type,
			size = EXCLUDED.size,
			page_count = EXCLUDED.page_count
	`, table)
	vec := pgvector.NewVector(chunk.Embedding)
	_, err = s.db.ExecContext(ctx, q,
		chunk.URL, chunk.Title, chunk.Content, vec,
		chunk.Metadata.Source, string(chunk.Metadata.Type), chunk.Metadata.Size, chunk.Metadata.PageCount,
		chunk.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert into %s: %w", table, err)
	}
	return nil
}

// AnnSearch returns the top-k nearest chunks by cosine distance, ties
// broken by ascending url (spec §4.8). k is clamped to [1, 50].
func (s *Store) AnnSearch(ctx context.Context, indexName string, queryVector []float32, k int) ([]core.SearchHit, error) {
	table, err := tableName(indexName)
	if err != nil {
		return nil, err
	}
	if k < 1 {
		k = 1
	}
	if k > 50 {
		k = 50
	}

	q := fmt.Sprintf(`
		SELECT url, title, content, 1 - (embedding <=> $1) AS score
		FROM %s
		ORDER BY embedding <=> $1 ASC, url ASC
		LIMIT $2
	`, table)
	vec := pgvector.NewVector(queryVector)
	rows, err := s.db.QueryContext(ctx, q, vec, k)
	if err != nil {
		return nil, fmt.Errorf("ann search on %s: %w", table, err)
	}
	defer rows.Close()

	var hits []core.SearchHit
	for rows.Next() {
		var h core.SearchHit
		if err := rows.Scan(&h.URL, &h.Title, &h.Content, &h.Score); err != nil {
			return nil, fmt.Errorf("scan search hit: %w", err)
		}
		hits = append(hits, h)
	}
	return hits, rows.Err()
}
