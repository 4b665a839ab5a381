package core

import (
	"context"

	"github.com/docsearch-dev/docsearch/internal/models"
)

// EmbeddingProvider is the capability set every embedding variant satisfies
// (spec §4.7 / §9 "polymorphism over providers").
type EmbeddingProvider interface {
	// EmbedBatch embeds texts in one batch call. Empty input returns an
	// empty slice without a network call.
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Dimensions returns the embedding vector length this provider currently
	// declares. It may change after a call if the provider's actual output
	// dimension differs from what was configured (spec §4.7).
	Dimensions() int
	// Model returns the provider's model identifier.
	Model() string
}

// SearchHit is one row returned from an ANN query.
type SearchHit struct {
	URL     string
	Title   string
	Content string
	Score   float64
}

// VectorStore is the per-index chunk table lifecycle and query surface (C8).
type VectorStore interface {
	// EnsureStore creates or recreates the docs_<indexName> table so its
	// embedding column matches dimension, plus its ANN and url indexes.
	EnsureStore(ctx context.Context, indexName string, dimension int) error
	// Upsert inserts or updates one chunk row keyed by URL.
	Upsert(ctx context.Context, indexName string, chunk models.DocumentChunk) error
	// AnnSearch returns the top-k nearest chunks to queryVector by cosine
	// distance, ties broken by ascending URL.
	AnnSearch(ctx context.Context, indexName string, queryVector []float32, k int) ([]SearchHit, error)
}

// JobStore is the durable job state machine surface (C10).
type JobStore interface {
	Create(ctx context.Context, job *models.IndexingJob) error
	UpdateStatus(ctx context.Context, jobID string, status models.JobStatus, counters *models.JobCounters, errMsg string, errDetails *models.JobErrorDetails) error
	Get(ctx context.Context, jobID string) (*models.IndexingJob, error)
	ListByIdentity(ctx context.Context, identity models.Identity, limit int) ([]models.IndexingJob, error)
}

// AccessStore is the session/grant surface (C12 storage half).
type AccessStore interface {
	LinkSession(ctx context.Context, sessionID string, identity models.Identity) error
	Identity(ctx context.Context, sessionID string) (models.Identity, error)
	Grant(ctx context.Context, g models.Grant) error
	AccessibleIndexes(ctx context.Context, identity models.Identity) ([]string, error)
	HasAccess(ctx context.Context, identity models.Identity, indexName string, required models.AccessLevel) (bool, error)
}

// CrawledPage is what the bounded crawler (C5) delivers to its sink exactly
// once per successfully fetched page.
type CrawledPage struct {
	URL   string
	Title string
	Text  string
}
