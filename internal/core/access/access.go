// Package access implements core.AccessStore against the user_links and
// doc_access tables, plus the search operation that ties embedding and
// vector search together behind a grant check (spec §4.12). Grounded on
// the teacher's internal/core/database query style (plain database/sql,
// explicit upsert statements) and on Zoex2304-notefiber-be-beta's
// session.go for the session-link-to-identity idiom (a session id maps to
// a durable identity record, looked up on every authenticated call).
package access

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/docsearch-dev/docsearch/internal/core"
	"github.com/docsearch-dev/docsearch/internal/models"
)

// ErrNotLinked is returned by Identity when session_id has no linked identity.
var ErrNotLinked = errors.New("access: session not linked")

// ErrAccessDenied is returned by Search when identity lacks a sufficient
// grant on index_name, including when index_name is unknown (spec §9's
// access-model scenario: unknown index must not distinguish itself from a
// missing grant).
var ErrAccessDenied = errors.New("access: denied")

type Store struct {
	db *sql.DB
}

func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// LinkSession upserts session_id to identity.
func (s *Store) LinkSession(ctx context.Context, sessionID string, identity models.Identity) error {
	const q = `
		INSERT INTO user_links (session_id, user_id, team_id, identity_scope, linked_at)
		VALUES ($1, $2, $3, $4, now())
		ON CONFLICT (session_id) DO UPDATE SET
			user_id = EXCLUDED.user_id, team_id = EXCLUDED.team_id,
			identity_scope = EXCLUDED.identity_scope, linked_at = EXCLUDED.linked_at
	`
	_, err := s.db.ExecContext(ctx, q, sessionID, identity.UserID, identity.TeamID, string(identity.Scope))
	if err != nil {
		return fmt.Errorf("link session %s: %w", sessionID, err)
	}
	return nil
}

// Identity resolves session_id to its linked identity.
func (s *Store) Identity(ctx context.Context, sessionID string) (models.Identity, error) {
	const q = `SELECT user_id, team_id, identity_scope FROM user_links WHERE session_id = $1`
	var id models.Identity
	err := s.db.QueryRowContext(ctx, q, sessionID).Scan(&id.UserID, &id.TeamID, &id.Scope)
	if err == sql.ErrNoRows {
		return models.Identity{}, ErrNotLinked
	}
	if err != nil {
		return models.Identity{}, fmt.Errorf("resolve session %s: %w", sessionID, err)
	}
	return id, nil
}

// Grant upserts one access grant by (user_id, team_id, scope, index_name).
// A universal grant (spec §4.12) is represented by empty user_id and
// team_id, matched by the `user_id = '' AND team_id = ''` clause in
// AccessibleIndexes and HasAccess — not SQL NULL, because NULL
// columns participate poorly in ON CONFLICT/unique semantics (two NULLs
// are never equal), and the empty string is otherwise never a valid
// identifier (see the Open Question decision in DESIGN.md).
func (s *Store) Grant(ctx context.Context, g models.Grant) error {
	const q = `
		INSERT INTO doc_access (user_id, team_id, scope, index_name, level, granted_by, expires_at, granted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		ON CONFLICT (user_id, team_id, scope, index_name) DO UPDATE SET
			level = EXCLUDED.level, granted_by = EXCLUDED.granted_by,
			expires_at = EXCLUDED.expires_at, granted_at = EXCLUDED.granted_at
	`
	_, err := s.db.ExecContext(ctx, q,
		g.UserID, g.TeamID, string(g.Scope), g.IndexName, string(g.AccessLevel), g.GrantedBy, nullableExpiry(g.ExpiresAt),
	)
	if err != nil {
		return fmt.Errorf("grant %+v: %w", g, err)
	}
	return nil
}

// AccessibleIndexes returns the distinct, non-expired index names
// identity can reach, including universal grants.
func (s *Store) AccessibleIndexes(ctx context.Context, identity models.Identity) ([]string, error) {
	const q = `
		SELECT DISTINCT index_name FROM doc_access
		WHERE (expires_at IS NULL OR expires_at > now())
		  AND (
		    (user_id = $1 AND team_id = $2 AND scope = $3)
		    OR (user_id = '' AND team_id = '')
		  )
		ORDER BY index_name
	`
	rows, err := s.db.QueryContext(ctx, q, identity.UserID, identity.TeamID, string(identity.Scope))
	if err != nil {
		return nil, fmt.Errorf("list accessible indexes for %+v: %w", identity, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		out = append(out, name)
	}
	return out, rows.Err()
}

// HasAccess reports whether identity holds a non-expired grant on
// indexName at or above required, ranking admin > write > read.
func (s *Store) HasAccess(ctx context.Context, identity models.Identity, indexName string, required models.AccessLevel) (bool, error) {
	const q = `
		SELECT level FROM doc_access
		WHERE index_name = $1
		  AND (expires_at IS NULL OR expires_at > now())
		  AND (
		    (user_id = $2 AND team_id = $3 AND scope = $4)
		    OR (user_id = '' AND team_id = '')
		  )
	`
	rows, err := s.db.QueryContext(ctx, q, indexName, identity.UserID, identity.TeamID, string(identity.Scope))
	if err != nil {
		return false, fmt.Errorf("check access for %+v on %s: %w", identity, indexName, err)
	}
	defer rows.Close()

	for rows.Next() {
		var level string
		if err := rows.Scan(&level); err != nil {
			return false, err
		}
		if models.AccessLevel(level).Satisfies(required) {
			return true, nil
		}
	}
	return false, rows.Err()
}

// Search requires read access, embeds query_text, runs annSearch, and
// truncates snippets to 500 characters (spec §4.12).
func Search(ctx context.Context, store core.AccessStore, embedder core.EmbeddingProvider, vectors core.VectorStore, identity models.Identity, indexName, queryText string, k int) ([]core.SearchHit, error) {
	ok, err := store.HasAccess(ctx, identity, indexName, models.AccessRead)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrAccessDenied
	}

	vecs, err := embedder.EmbedBatch(ctx, []string{queryText})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("embed query: empty result")
	}

	hits, err := vectors.AnnSearch(ctx, indexName, vecs[0], k)
	if err != nil {
		return nil, err
	}
	for i := range hits {
		if r := []rune(hits[i].Content); len(r) > 500 {
			hits[i].Content = string(r[:500])
		}
	}
	return hits, nil
}

func nullableExpiry(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}
