package ratelimit

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestAcquireAdmitsWithinLimit(t *testing.T) {
	l := New(2, 0, 0)
	ctx := context.Background()
	for i := 0; i < 2; i++ {
		if err := l.Acquire(ctx, Cost{Requests: 1}); err != nil {
			t.Fatalf("Acquire %d: %v", i, err)
		}
	}
}

func TestAcquireBlocksUntilWindowRolls(t *testing.T) {
	l := New(1, 0, 0)
	fakeNow := time.Now()
	l.now = func() time.Time { return fakeNow }

	ctx := context.Background()
	if err := l.Acquire(ctx, Cost{Requests: 1}); err != nil {
		t.Fatalf("first Acquire: %v", err)
	}

	ctx2, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	err := l.Acquire(ctx2, Cost{Requests: 1})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded while window is full, got %v", err)
	}

	fakeNow = fakeNow.Add(time.Minute)
	if err := l.Acquire(context.Background(), Cost{Requests: 1}); err != nil {
		t.Fatalf("Acquire after rollover: %v", err)
	}
}

func TestEstimateTokens(t *testing.T) {
	cases := map[string]int{
		"":     1,
		"ab":   1,
		"abcd": 1,
		"abcde": 2,
		"012345678901234567890123456789012": 9,
	}
	for in, want := range cases {
		if got := EstimateTokens(in); got != want {
			t.Errorf("EstimateTokens(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestWithRetryHonorsRetryAfterSeconds(t *testing.T) {
	calls := 0
	start := time.Now()
	err := WithRetry(context.Background(), 2, 10*time.Millisecond, func() error {
		calls++
		if calls < 2 {
			return &RetryableError{StatusCode: 429, RetryAfter: "0", Err: errors.New("rate limited")}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithRetry: %v", err)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2", calls)
	}
	if time.Since(start) > time.Second {
		t.Fatalf("retry took too long: %v", time.Since(start))
	}
}

func TestWithRetryGivesUpOnNonRetryableStatus(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), 3, time.Millisecond, func() error {
		calls++
		return &RetryableError{StatusCode: 400, Err: errors.New("bad request")}
	})
	if err == nil {
		t.Fatal("expected error for non-retryable status")
	}
	if calls != 1 {
		t.Fatalf("calls = %d, want 1 (no retry on 4xx other than 429)", calls)
	}
}

func TestWithRetryExhausts(t *testing.T) {
	calls := 0
	err := WithRetry(context.Background(), 1, time.Millisecond, func() error {
		calls++
		return &RetryableError{StatusCode: 500, Err: errors.New("server error")}
	})
	if !errors.Is(err, ErrRetriesExhausted) {
		t.Fatalf("expected ErrRetriesExhausted, got %v", err)
	}
	if calls != 2 {
		t.Fatalf("calls = %d, want 2 (1 initial + 1 retry)", calls)
	}
}
