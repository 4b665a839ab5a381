// Package ratelimit enforces rolling RPM/TPM/TPD quotas with a serialized
// admission queue and Retry-After-aware retry (spec §4.6). The struct shape
// — a lock-guarded limiter with one blocking admission call, here
// Acquire(ctx, cost) behind a one-slot channel used as the lock — follows
// the Wait(ctx) limiter in sercha-cli's internal/connectors/google/ratelimit.go.
// That limiter wraps golang.org/x/time/rate, a token bucket; this component
// cannot do the same, because the spec calls for three independent
// fixed-window quotas (RPM, TPM, TPD) with deterministic wall-clock
// rollover rather than a continuously-refilling bucket, so the windows
// themselves are tracked by hand on top of that channel + time.Time (the
// required stdlib justification for this component; see DESIGN.md).
package ratelimit

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"strconv"
	"time"
)

// Cost is one admission request: how many API calls and tokens it spends.
type Cost struct {
	Requests int
	Tokens   int
}

// window tracks one rolling quota: a counter that resets when now crosses
// the window's deterministic boundary.
type window struct {
	limit      int // 0 means unlimited
	period     time.Duration
	used       int
	windowEnds time.Time
}

func newWindow(limit int, period time.Duration) window {
	return window{limit: limit, period: period}
}

// admit reports whether cost more units fit in the current window as of
// now, rolling the window over first if now has passed windowEnds. Window
// boundaries are computed from now, not from an external clock tick, so
// rollover is deterministic for any caller observing the same wall clock.
func (w *window) admit(now time.Time, cost int) (bool, time.Duration) {
	if w.limit <= 0 {
		return true, 0
	}
	if !now.Before(w.windowEnds) {
		w.used = 0
		w.windowEnds = now.Add(w.period)
	}
	if w.used+cost <= w.limit {
		w.used += cost
		return true, 0
	}
	return false, w.windowEnds.Sub(now)
}

// undo reverses an admit that was granted in this same window, used when a
// later quota in the same Acquire call rejects the request.
func (w *window) undo(cost int) {
	if w.limit > 0 {
		w.used -= cost
	}
}

// Limiter enforces RPM, TPM, and TPD quotas for one process. All acquires
// serialize through mu so admission order matches arrival order (spec §4.6).
type Limiter struct {
	mu  chan struct{} // 1-buffered: acts as a strict FIFO mutex
	rpm window
	tpm window
	tpd window
	now func() time.Time
}

// New builds a local Limiter. A limit of 0 disables that quota.
func New(rpm, tpm, tpd int) *Limiter {
	l := &Limiter{
		mu:  make(chan struct{}, 1),
		rpm: newWindow(rpm, time.Minute),
		tpm: newWindow(tpm, time.Minute),
		tpd: newWindow(tpd, 24*time.Hour),
		now: time.Now,
	}
	l.mu <- struct{}{}
	return l
}

// Acquire blocks until cost would not overshoot any window, then admits it.
// Waiters are served in arrival order because they all contend for the same
// 1-buffered admission channel.
func (l *Limiter) Acquire(ctx context.Context, cost Cost) error {
	select {
	case <-l.mu:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { l.mu <- struct{}{} }()

	for {
		now := l.now()
		okR, waitR := l.rpm.admit(now, cost.Requests)
		if !okR {
			if err := sleep(ctx, waitR); err != nil {
				return err
			}
			continue
		}
		okT, waitT := l.tpm.admit(now, cost.Tokens)
		if !okT {
			l.rpm.undo(cost.Requests)
			if err := sleep(ctx, waitT); err != nil {
				return err
			}
			continue
		}
		okD, waitD := l.tpd.admit(now, cost.Tokens)
		if !okD {
			l.rpm.undo(cost.Requests)
			l.tpm.undo(cost.Tokens)
			if err := sleep(ctx, waitD); err != nil {
				return err
			}
			continue
		}
		return nil
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		d = time.Millisecond
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// EstimateTokens applies the spec's token cost estimator: ceil(len/4),
// floored at 1 (spec §4.6).
func EstimateTokens(s string) int {
	n := (len(s) + 3) / 4
	if n < 1 {
		n = 1
	}
	return n
}

// ErrRetriesExhausted is returned by WithRetry once maxRetries is spent.
var ErrRetriesExhausted = errors.New("ratelimit: retries exhausted")

// RetryableError lets callers report an HTTP-carrying error so WithRetry can
// read its status code and Retry-After header.
type RetryableError struct {
	StatusCode int
	RetryAfter string // raw header value: seconds or an HTTP-date
	Err        error
}

func (e *RetryableError) Error() string { return e.Err.Error() }
func (e *RetryableError) Unwrap() error { return e.Err }

// WithRetry retries f on HTTP 429 or 5xx up to maxRetries times with
// exponential backoff base*2^attempt plus 0-250ms jitter, honoring a
// Retry-After header when the error carries one (spec §4.6).
func WithRetry(ctx context.Context, maxRetries int, base time.Duration, f func() error) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		err := f()
		if err == nil {
			return nil
		}
		lastErr = err

		var retryable *RetryableError
		if !errors.As(err, &retryable) {
			return err
		}
		if retryable.StatusCode != http.StatusTooManyRequests && retryable.StatusCode < 500 {
			return err
		}
		if attempt == maxRetries {
			break
		}

		wait, ok := retryAfterDelay(retryable.RetryAfter)
		if !ok {
			wait = base*time.Duration(1<<uint(attempt)) + time.Duration(rand.Intn(250))*time.Millisecond
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
	return errors.Join(ErrRetriesExhausted, lastErr)
}

// retryAfterDelay parses a Retry-After header value as either a count of
// seconds or an HTTP-date; ok is false when v is empty or can't be parsed.
func retryAfterDelay(v string) (time.Duration, bool) {
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(v); err == nil {
		return time.Until(t), true
	}
	return 0, false
}
