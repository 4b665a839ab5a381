package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/docsearch-dev/docsearch/internal/app"
	"github.com/docsearch-dev/docsearch/internal/config"
	"github.com/docsearch-dev/docsearch/internal/core/access"
	"github.com/docsearch-dev/docsearch/internal/core/embedclient"
	"github.com/docsearch-dev/docsearch/internal/core/urlcanon"
	"github.com/docsearch-dev/docsearch/internal/models"
)

const usage = `docsearchd: documentation ingestion and semantic search

Usage:
  docsearchd link                 -session <id> -user-id <id> [-team-id <id>] -scope user|team
  docsearchd grant                -index <name> -level read|write|admin -granted-by <id> [-user-id <id>] [-team-id <id>] [-scope user|team] [-expires-at <RFC3339>]
  docsearchd listAccessibleIndexes -session <id>
  docsearchd startHtmlIngest       -url <url> [-session <id>]
  docsearchd startPdfIngest        -url <url> [-session <id>]
  docsearchd jobStatus             -job-id <id>
  docsearchd listJobs              -session <id> [-limit 50]
  docsearchd search                -session <id> -index <name> -query <text> [-k 5]
  docsearchd embeddingConfig

Configuration is read from the environment (see DOCS_*/EMBEDDING_*/DATABASE_URL).
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	ctx := context.Background()
	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "link":
		err = runLink(ctx, args)
	case "grant":
		err = runGrant(ctx, args)
	case "listAccessibleIndexes":
		err = runListAccessibleIndexes(ctx, args)
	case "startHtmlIngest":
		err = runStartHTMLIngest(ctx, args)
	case "startPdfIngest":
		err = runStartPDFIngest(ctx, args)
	case "jobStatus":
		err = runJobStatus(ctx, args)
	case "listJobs":
		err = runListJobs(ctx, args)
	case "search":
		err = runSearch(ctx, args)
	case "embeddingConfig":
		err = runEmbeddingConfig(ctx, args)
	case "help", "-h", "--help":
		fmt.Fprint(os.Stdout, usage)
		return
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, cmd, "error:", err)
		os.Exit(1)
	}
}

func runLink(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("link", flag.ContinueOnError)
	session := flags.String("session", "", "session id")
	userID := flags.String("user-id", "", "user id")
	teamID := flags.String("team-id", "", "team id")
	scope := flags.String("scope", string(models.ScopeUser), "user|team")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *session == "" {
		return fmt.Errorf("-session is required")
	}

	a, err := app.NewApp(ctx, config.LoadConfig())
	if err != nil {
		return err
	}
	defer a.Close()

	identity := models.Identity{UserID: *userID, TeamID: *teamID, Scope: models.IdentityScope(*scope)}
	if err := a.Access.LinkSession(ctx, *session, identity); err != nil {
		return err
	}
	return writeJSON(map[string]any{"session_id": *session, "identity": identity})
}

func runGrant(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("grant", flag.ContinueOnError)
	userID := flags.String("user-id", "", "user id (empty for a universal grant)")
	teamID := flags.String("team-id", "", "team id (empty for a universal grant)")
	scope := flags.String("scope", string(models.ScopeUser), "user|team")
	index := flags.String("index", "", "index name")
	level := flags.String("level", "", "read|write|admin")
	grantedBy := flags.String("granted-by", "", "identity performing the grant")
	expiresAt := flags.String("expires-at", "", "RFC3339 expiry, optional")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *index == "" {
		return fmt.Errorf("-index is required")
	}
	if *level == "" {
		return fmt.Errorf("-level is required")
	}

	g := models.Grant{
		UserID: *userID, TeamID: *teamID, Scope: models.IdentityScope(*scope),
		IndexName: *index, AccessLevel: models.AccessLevel(*level), GrantedBy: *grantedBy,
	}
	if *expiresAt != "" {
		t, err := time.Parse(time.RFC3339, *expiresAt)
		if err != nil {
			return fmt.Errorf("-expires-at: %w", err)
		}
		g.ExpiresAt = &t
	}

	a, err := app.NewApp(ctx, config.LoadConfig())
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.Access.Grant(ctx, g); err != nil {
		return err
	}
	return writeJSON(g)
}

func runListAccessibleIndexes(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("listAccessibleIndexes", flag.ContinueOnError)
	session := flags.String("session", "", "session id")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *session == "" {
		return fmt.Errorf("-session is required")
	}

	a, err := app.NewApp(ctx, config.LoadConfig())
	if err != nil {
		return err
	}
	defer a.Close()

	identity, err := a.Access.Identity(ctx, *session)
	if err != nil {
		return err
	}
	indexes, err := a.Access.AccessibleIndexes(ctx, identity)
	if err != nil {
		return err
	}
	return writeJSON(map[string]any{"indexes": indexes})
}

func runStartHTMLIngest(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("startHtmlIngest", flag.ContinueOnError)
	sourceURL := flags.String("url", "", "source URL to crawl")
	session := flags.String("session", "", "session id (optional identity attribution)")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *sourceURL == "" {
		return fmt.Errorf("-url is required")
	}

	a, err := app.NewApp(ctx, config.LoadConfig())
	if err != nil {
		return err
	}
	defer a.Close()

	identity, err := resolveOptionalIdentity(ctx, a, *session)
	if err != nil {
		return err
	}

	indexName, err := urlcanon.DeriveIndexName(*sourceURL)
	if err != nil {
		return fmt.Errorf("derive index name: %w", err)
	}

	jobID := uuid.NewString()
	job := &models.IndexingJob{JobID: jobID, IndexName: indexName, SourceURL: *sourceURL, Status: models.JobStarted, Identity: identity, StartedAt: time.Now()}
	if err := a.Jobs.Create(ctx, job); err != nil {
		return err
	}

	runCtx, cancel := context.WithTimeout(ctx, time.Hour)
	defer cancel()
	runErr := a.Orchestrator.RunHTMLIngest(runCtx, *sourceURL, jobID)

	return printJob(ctx, a, jobID, runErr)
}

func runStartPDFIngest(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("startPdfIngest", flag.ContinueOnError)
	pdfURL := flags.String("url", "", "PDF URL to ingest")
	session := flags.String("session", "", "session id (optional identity attribution)")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *pdfURL == "" {
		return fmt.Errorf("-url is required")
	}

	a, err := app.NewApp(ctx, config.LoadConfig())
	if err != nil {
		return err
	}
	defer a.Close()

	identity, err := resolveOptionalIdentity(ctx, a, *session)
	if err != nil {
		return err
	}

	indexName, err := urlcanon.DeriveIndexName(*pdfURL)
	if err != nil {
		return fmt.Errorf("derive index name: %w", err)
	}

	jobID := uuid.NewString()
	job := &models.IndexingJob{JobID: jobID, IndexName: indexName, SourceURL: *pdfURL, Status: models.JobStarted, Identity: identity, StartedAt: time.Now()}
	if err := a.Jobs.Create(ctx, job); err != nil {
		return err
	}

	runCtx, cancel := context.WithTimeout(ctx, time.Hour)
	defer cancel()
	runErr := a.Orchestrator.RunPDFIngest(runCtx, *pdfURL, jobID)

	return printJob(ctx, a, jobID, runErr)
}

func runJobStatus(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("jobStatus", flag.ContinueOnError)
	jobID := flags.String("job-id", "", "job id")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *jobID == "" {
		return fmt.Errorf("-job-id is required")
	}

	a, err := app.NewApp(ctx, config.LoadConfig())
	if err != nil {
		return err
	}
	defer a.Close()

	job, err := a.Jobs.Get(ctx, *jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("job %s not found", *jobID)
	}
	return writeJSON(job)
}

func runListJobs(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("listJobs", flag.ContinueOnError)
	session := flags.String("session", "", "session id")
	limit := flags.Int("limit", 50, "max jobs to return")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *session == "" {
		return fmt.Errorf("-session is required")
	}

	a, err := app.NewApp(ctx, config.LoadConfig())
	if err != nil {
		return err
	}
	defer a.Close()

	identity, err := a.Access.Identity(ctx, *session)
	if err != nil {
		return err
	}
	jobs, err := a.Jobs.ListByIdentity(ctx, identity, *limit)
	if err != nil {
		return err
	}
	return writeJSON(map[string]any{"jobs": jobs})
}

func runSearch(ctx context.Context, args []string) error {
	flags := flag.NewFlagSet("search", flag.ContinueOnError)
	session := flags.String("session", "", "session id")
	index := flags.String("index", "", "index name")
	query := flags.String("query", "", "search query")
	k := flags.Int("k", 5, "number of results")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if *session == "" {
		return fmt.Errorf("-session is required")
	}
	if *index == "" {
		return fmt.Errorf("-index is required")
	}
	if *query == "" {
		return fmt.Errorf("-query is required")
	}

	a, err := app.NewApp(ctx, config.LoadConfig())
	if err != nil {
		return err
	}
	defer a.Close()

	identity, err := a.Access.Identity(ctx, *session)
	if err != nil {
		return err
	}

	hits, err := access.Search(ctx, a.Access, a.Embedder, a.Vectors, identity, *index, *query, *k)
	if errors.Is(err, access.ErrAccessDenied) {
		return writeJSON(map[string]any{"error": "AccessDenied"})
	}
	if err != nil {
		return err
	}
	return writeJSON(map[string]any{"hits": hits})
}

func runEmbeddingConfig(ctx context.Context, args []string) error {
	a, err := app.NewApp(ctx, config.LoadConfig())
	if err != nil {
		return err
	}
	defer a.Close()

	model, dimensions := embedclient.Describe(a.Embedder)
	return writeJSON(map[string]any{"model": model, "dimensions": dimensions})
}

// resolveOptionalIdentity resolves session to an identity when provided,
// falling back to the zero identity for an unattributed ingest run.
func resolveOptionalIdentity(ctx context.Context, a *app.App, session string) (models.Identity, error) {
	if session == "" {
		return models.Identity{}, nil
	}
	identity, err := a.Access.Identity(ctx, session)
	if errors.Is(err, access.ErrNotLinked) {
		return models.Identity{}, err
	}
	return identity, err
}

// printJob reports the final job row after an ingest run, regardless of
// whether the orchestrator itself returned an error: the job row is the
// durable source of truth (spec §4.10), not the in-process return value.
func printJob(ctx context.Context, a *app.App, jobID string, runErr error) error {
	job, err := a.Jobs.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		if runErr != nil {
			return runErr
		}
		return fmt.Errorf("job %s vanished after run", jobID)
	}
	return writeJSON(job)
}

func writeJSON(value any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(value)
}
