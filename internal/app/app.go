// Package app wires the configured Postgres connection, the selected
// embedding provider, and the core components (vector store, job store,
// access store, rate limiter, orchestrator) into one App, following the
// teacher's composition-root shape in this same file.
package app

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/docsearch-dev/docsearch/internal/config"
	"github.com/docsearch-dev/docsearch/internal/core"
	"github.com/docsearch-dev/docsearch/internal/core/access"
	"github.com/docsearch-dev/docsearch/internal/core/embedclient"
	"github.com/docsearch-dev/docsearch/internal/core/jobstore"
	"github.com/docsearch-dev/docsearch/internal/core/orchestrator"
	"github.com/docsearch-dev/docsearch/internal/core/pgstore"
	"github.com/docsearch-dev/docsearch/internal/core/ratelimit"
	"github.com/docsearch-dev/docsearch/internal/core/vectorstore"
)

// App holds every wired component a CLI or transport entrypoint needs.
type App struct {
	DB           *sql.DB
	Jobs         core.JobStore
	Vectors      core.VectorStore
	Access       *access.Store
	Embedder     core.EmbeddingProvider
	Orchestrator *orchestrator.Orchestrator
	Cfg          *config.Config
}

// NewApp opens the database, bootstraps its schema, builds the configured
// embedding provider, and assembles the orchestrator.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	appCtx, cancel := context.WithTimeout(ctx, 5*time.Minute)
	defer cancel()

	db, err := pgstore.Open(appCtx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	log.Println("Database initialized and bootstrapped.")

	embedder, err := newEmbedder(appCtx, cfg)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("couldn't initialize the embedder, %w", err)
	}
	log.Println("Embedding provider initialized and ready.")

	jobs := jobstore.New(db)
	vectors := vectorstore.New(db)
	accessStore := access.New(db)
	limiter := ratelimit.New(cfg.EmbedRPM, cfg.EmbedTPM, cfg.EmbedTPD)

	var dist *pgstore.DistributedWindow
	if cfg.EmbedDistributed {
		dist = pgstore.NewDistributedWindow(db, cfg.EmbedRPM, cfg.EmbedTPM, cfg.EmbedTPD)
	}

	orch := orchestrator.New(jobs, vectors, embedder, limiter, dist, cfg)

	return &App{
		DB:           db,
		Jobs:         jobs,
		Vectors:      vectors,
		Access:       accessStore,
		Embedder:     embedder,
		Orchestrator: orch,
		Cfg:          cfg,
	}, nil
}

func newEmbedder(ctx context.Context, cfg *config.Config) (core.EmbeddingProvider, error) {
	switch cfg.EmbeddingProvider {
	case config.ProviderGoogle:
		return embedclient.NewGeminiProvider(ctx, cfg.EmbeddingAPIKey, cfg.EmbeddingModel, cfg.EmbeddingDim)
	case config.ProviderOpenAI, "":
		return embedclient.NewOpenAIProvider(cfg.EmbeddingAPIKey, cfg.EmbeddingModel, cfg.EmbeddingDim), nil
	default:
		return nil, fmt.Errorf("unknown EMBEDDING_PROVIDER %q", cfg.EmbeddingProvider)
	}
}

// Close releases the database pool and, for providers that hold one (the
// Gemini client), their underlying connection.
func (a *App) Close() {
	if closer, ok := a.Embedder.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
	if a.DB != nil {
		_ = a.DB.Close()
	}
}
