// Package jobstore implements core.JobStore against the indexing_jobs
// table: create, progress/terminal-status updates, and identity-scoped
// listing (spec §4.10). Grounded on the teacher's
// internal/core/database/client_database_pgx.go query style (plain
// database/sql with numbered placeholders, COALESCE for optional timestamps).
package jobstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/docsearch-dev/docsearch/internal/models"
)

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// Create inserts a new job row in its initial status.
func (s *Store) Create(ctx context.Context, job *models.IndexingJob) error {
	meta, err := json.Marshal(job.Metadata)
	if err != nil {
		return fmt.Errorf("marshal job metadata: %w", err)
	}
	const q = `
		INSERT INTO indexing_jobs
			(job_id, index_name, source_url, status, user_id, team_id, identity_scope, started_at, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, COALESCE($8, now()), $9)
	`
	_, err = s.db.ExecContext(ctx, q,
		job.JobID, job.IndexName, job.SourceURL, string(job.Status),
		job.Identity.UserID, job.Identity.TeamID, string(job.Identity.Scope),
		nullableTime(job.StartedAt), meta,
	)
	if err != nil {
		return fmt.Errorf("create job %s: %w", job.JobID, err)
	}
	return nil
}

// UpdateStatus applies a status/progress update. Terminal transitions set
// completed_at and duration_seconds; once a job is terminal, further
// updates are ignored (first terminal write wins, spec §4.10).
func (s *Store) UpdateStatus(ctx context.Context, jobID string, status models.JobStatus, counters *models.JobCounters, errMsg string, errDetails *models.JobErrorDetails) error {
	existing, err := s.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("job %s not found", jobID)
	}
	if existing.Status.IsTerminal() {
		return nil
	}

	args := []any{status}
	setClauses := "status = $1"
	idx := 2

	if counters != nil {
		setClauses += fmt.Sprintf(", pages_discovered = $%d, pages_processed = $%d, pages_indexed = $%d, total_chunks = $%d",
			idx, idx+1, idx+2, idx+3)
		args = append(args, counters.PagesDiscovered, counters.PagesProcessed, counters.PagesIndexed, counters.TotalChunks)
		idx += 4
	}
	if errMsg != "" {
		setClauses += fmt.Sprintf(", error_message = $%d", idx)
		args = append(args, errMsg)
		idx++
	}
	if errDetails != nil {
		setClauses += fmt.Sprintf(", error_stage = $%d, error_cause = $%d, error_retryable = $%d", idx, idx+1, idx+2)
		args = append(args, errDetails.Stage, errDetails.Cause, errDetails.Retryable)
		idx += 3
	}
	if status.IsTerminal() {
		setClauses += fmt.Sprintf(", completed_at = now(), duration_seconds = EXTRACT(EPOCH FROM (now() - started_at))")
	}

	args = append(args, jobID)
	q := fmt.Sprintf(`UPDATE indexing_jobs SET %s WHERE job_id = $%d`, setClauses, idx)
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return fmt.Errorf("update job %s: %w", jobID, err)
	}
	return nil
}

// Get returns one job by ID, or nil if it doesn't exist.
func (s *Store) Get(ctx context.Context, jobID string) (*models.IndexingJob, error) {
	const q = `
		SELECT job_id, index_name, source_url, status, user_id, team_id, identity_scope,
		       pages_discovered, pages_processed, pages_indexed, total_chunks,
		       started_at, completed_at, duration_seconds, error_message,
		       error_stage, error_cause, error_retryable, metadata
		FROM indexing_jobs WHERE job_id = $1
	`
	row := s.db.QueryRowContext(ctx, q, jobID)
	job, err := scanJob(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get job %s: %w", jobID, err)
	}
	return job, nil
}

// ListByIdentity returns the identity's most recent jobs, newest first,
// limited to limit (clamped to 50, spec §4.10).
func (s *Store) ListByIdentity(ctx context.Context, identity models.Identity, limit int) ([]models.IndexingJob, error) {
	if limit <= 0 || limit > 50 {
		limit = 50
	}
	const q = `
		SELECT job_id, index_name, source_url, status, user_id, team_id, identity_scope,
		       pages_discovered, pages_processed, pages_indexed, total_chunks,
		       started_at, completed_at, duration_seconds, error_message,
		       error_stage, error_cause, error_retryable, metadata
		FROM indexing_jobs
		WHERE user_id = $1 AND team_id = $2
		ORDER BY started_at DESC
		LIMIT $3
	`
	rows, err := s.db.QueryContext(ctx, q, identity.UserID, identity.TeamID, limit)
	if err != nil {
		return nil, fmt.Errorf("list jobs for %+v: %w", identity, err)
	}
	defer rows.Close()

	var out []models.IndexingJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, fmt.Errorf("scan job row: %w", err)
		}
		out = append(out, *job)
	}
	return out, rows.Err()
}

// rowScanner covers both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row rowScanner) (*models.IndexingJob, error) {
	var job models.IndexingJob
	var completedAt sql.NullTime
	var duration sql.NullFloat64
	var errStage, errCause string
	var errRetryable bool
	var metaRaw []byte

	err := row.Scan(
		&job.JobID, &job.IndexName, &job.SourceURL, &job.Status,
		&job.Identity.UserID, &job.Identity.TeamID, &job.Identity.Scope,
		&job.Counters.PagesDiscovered, &job.Counters.PagesProcessed, &job.Counters.PagesIndexed, &job.Counters.TotalChunks,
		&job.StartedAt, &completedAt, &duration, &job.ErrorMessage,
		&errStage, &errCause, &errRetryable, &metaRaw,
	)
	if err != nil {
		return nil, err
	}

	if completedAt.Valid {
		job.CompletedAt = completedAt.Time
	}
	if duration.Valid {
		job.DurationSeconds = duration.Float64
	}
	if errStage != "" || errCause != "" {
		job.ErrorDetails = &models.JobErrorDetails{Stage: errStage, Cause: errCause, Retryable: errRetryable}
	}
	if len(metaRaw) > 0 {
		_ = json.Unmarshal(metaRaw, &job.Metadata)
	}
	return &job, nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
