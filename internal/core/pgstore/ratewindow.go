// Distributed rate-limit coordination (spec §4.6's "distributed-acquire, if
// enabled" mode): several processes sharing one embedding-provider quota
// coordinate through a single Postgres row instead of an in-process window,
// using the same pg_advisory_lock/unlock pattern as EnsureBootstrapped. The
// row tracks the same three quotas as the local ratelimit.Limiter — RPM,
// TPM, TPD — laid out per spec §4.6 as {minute_start, minute_requests,
// minute_tokens, day_start, day_tokens}.
package pgstore

import (
	"context"
	"database/sql"
	"fmt"
	"hash/fnv"
	"time"

	"github.com/docsearch-dev/docsearch/internal/core/ratelimit"
)

// DistributedWindow enforces rolling RPM/TPM/TPD quotas shared by every
// process racing for a window key, backed by the docs_embed_rate_window
// table. A limit of 0 disables that quota, matching ratelimit.Limiter.
type DistributedWindow struct {
	db  *sql.DB
	rpm int
	tpm int
	tpd int
}

// NewDistributedWindow builds a DistributedWindow. rpm/tpm/tpd of 0 disables
// the corresponding quota; if all three are 0, Acquire becomes a no-op.
func NewDistributedWindow(db *sql.DB, rpm, tpm, tpd int) *DistributedWindow {
	return &DistributedWindow{db: db, rpm: rpm, tpm: tpm, tpd: tpd}
}

type rateRow struct {
	minuteStart    time.Time
	minuteRequests int
	minuteTokens   int
	dayStart       time.Time
	dayTokens      int
}

// Acquire blocks, re-checking at each window rollover, until windowKey has
// room for cost under every configured quota, then reserves it in one row
// update. The row is locked by a per-key advisory lock so two processes can
// never both admit past a limit.
func (w *DistributedWindow) Acquire(ctx context.Context, windowKey string, cost ratelimit.Cost) error {
	if w == nil || (w.rpm <= 0 && w.tpm <= 0 && w.tpd <= 0) {
		return nil
	}
	lockID := lockIDForKey(windowKey)

	for {
		var wait time.Duration
		err := WithAdvisoryLock(ctx, w.db, lockID, func(conn *sql.Conn) error {
			now := time.Now()
			row, err := readRateRow(ctx, conn, windowKey, now)
			if err != nil {
				return err
			}

			minuteEnds := row.minuteStart.Add(time.Minute)
			if !now.Before(minuteEnds) {
				row.minuteStart, row.minuteRequests, row.minuteTokens = now, 0, 0
				minuteEnds = now.Add(time.Minute)
			}
			dayEnds := row.dayStart.Add(24 * time.Hour)
			if !now.Before(dayEnds) {
				row.dayStart, row.dayTokens = now, 0
				dayEnds = now.Add(24 * time.Hour)
			}

			if w.rpm > 0 && row.minuteRequests+cost.Requests > w.rpm {
				wait = laterWait(wait, minuteEnds.Sub(now))
			}
			if w.tpm > 0 && row.minuteTokens+cost.Tokens > w.tpm {
				wait = laterWait(wait, minuteEnds.Sub(now))
			}
			if w.tpd > 0 && row.dayTokens+cost.Tokens > w.tpd {
				wait = laterWait(wait, dayEnds.Sub(now))
			}
			if wait > 0 {
				return nil
			}

			row.minuteRequests += cost.Requests
			row.minuteTokens += cost.Tokens
			row.dayTokens += cost.Tokens
			return writeRateRow(ctx, conn, windowKey, row)
		})
		if err != nil {
			return err
		}
		if wait <= 0 {
			return nil
		}
		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func readRateRow(ctx context.Context, conn *sql.Conn, windowKey string, now time.Time) (rateRow, error) {
	var row rateRow
	err := conn.QueryRowContext(ctx, `
		SELECT minute_start, minute_requests, minute_tokens, day_start, day_tokens
		FROM docs_embed_rate_window WHERE window_key = $1
	`, windowKey).Scan(&row.minuteStart, &row.minuteRequests, &row.minuteTokens, &row.dayStart, &row.dayTokens)
	if err == sql.ErrNoRows {
		return rateRow{minuteStart: now, dayStart: now}, nil
	}
	if err != nil {
		return rateRow{}, fmt.Errorf("read rate window %s: %w", windowKey, err)
	}
	return row, nil
}

func writeRateRow(ctx context.Context, conn *sql.Conn, windowKey string, row rateRow) error {
	_, err := conn.ExecContext(ctx, `
		INSERT INTO docs_embed_rate_window (window_key, minute_start, minute_requests, minute_tokens, day_start, day_tokens)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (window_key) DO UPDATE SET
			minute_start = EXCLUDED.minute_start,
			minute_requests = EXCLUDED.minute_requests,
			minute_tokens = EXCLUDED.minute_tokens,
			day_start = EXCLUDED.day_start,
			day_tokens = EXCLUDED.day_tokens
	`, windowKey, row.minuteStart, row.minuteRequests, row.minuteTokens, row.dayStart, row.dayTokens)
	if err != nil {
		return fmt.Errorf("reserve rate window %s: %w", windowKey, err)
	}
	return nil
}

// laterWait keeps the longer of two wait durations, since a reservation must
// hold off until every quota that rejected it has room again.
func laterWait(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}

// lockIDForKey derives a stable advisory-lock ID from windowKey, kept out of
// bootstrapLockID's fixed value by construction (fnv-1a of an arbitrary
// string essentially never collides with a single hand-picked constant).
func lockIDForKey(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte("docs_embed_rate_window:" + key))
	return int64(h.Sum64())
}
