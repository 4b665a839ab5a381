package orchestrator

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"github.com/docsearch-dev/docsearch/internal/core"
	"github.com/docsearch-dev/docsearch/internal/models"
)

func TestChunkURLIsDeterministicAndUnique(t *testing.T) {
	a := chunkURL("https://example.com/docs", "hello world")
	b := chunkURL("https://example.com/docs", "hello world")
	c := chunkURL("https://example.com/docs", "goodbye world")

	if a != b {
		t.Errorf("chunkURL not deterministic: %q != %q", a, b)
	}
	if a == c {
		t.Errorf("chunkURL collided for different content")
	}
	if !strings.HasPrefix(a, "https://example.com/docs#") {
		t.Errorf("chunkURL = %q, want canonical url as prefix", a)
	}

	sum := md5.Sum([]byte("hello world"))
	want := "https://example.com/docs#" + hex.EncodeToString(sum[:])
	if a != want {
		t.Errorf("chunkURL = %q, want %q", a, want)
	}
}

func TestSubmitPageCountsProcessedAndIndexed(t *testing.T) {
	state := newRunState(4)
	defer state.closeOnce()

	go func() {
		for range state.chunkCh {
		}
	}()

	if err := state.submitPage(context.Background(), core.CrawledPage{URL: "u1", Title: "t", Text: "some paragraph text"}, models.SourceHTML, 0); err != nil {
		t.Fatalf("submitPage: %v", err)
	}
	if err := state.submitPage(context.Background(), core.CrawledPage{URL: "u2", Title: "t", Text: ""}, models.SourceHTML, 0); err != nil {
		t.Fatalf("submitPage: %v", err)
	}

	if state.counters.PagesDiscovered != 2 {
		t.Errorf("PagesDiscovered = %d, want 2", state.counters.PagesDiscovered)
	}
	if state.counters.PagesProcessed != 2 {
		t.Errorf("PagesProcessed = %d, want 2", state.counters.PagesProcessed)
	}
	if state.counters.PagesIndexed != 1 {
		t.Errorf("PagesIndexed = %d, want 1 (empty-text page produces no chunks)", state.counters.PagesIndexed)
	}
	if state.counters.PagesIndexed > state.counters.PagesProcessed || state.counters.PagesProcessed > state.counters.PagesDiscovered {
		t.Errorf("violated pages_indexed <= pages_processed <= pages_discovered: %+v", state.counters)
	}
}

func TestSubmitPageBlocksWhenBufferFull(t *testing.T) {
	state := newRunState(1) // channel capacity 2
	defer state.closeOnce()

	longText := strings.Repeat("word ", 2000) // forces multiple chunker.Chunk windows
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() {
		done <- state.submitPage(ctx, core.CrawledPage{URL: "u1", Title: "t", Text: longText}, models.SourceHTML, 0)
	}()

	select {
	case err := <-done:
		t.Fatalf("submitPage returned (err=%v) without blocking on the full channel", err)
	case <-time.After(50 * time.Millisecond):
		// still blocked on the full channel, as expected; unblock it.
		cancel()
		if err := <-done; err == nil {
			t.Fatalf("submitPage: want context error once cancelled while blocked")
		}
	}
}
