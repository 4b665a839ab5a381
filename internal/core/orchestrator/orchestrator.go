// Package orchestrator drives one ingest job end to end (spec §4.11):
// discover pages, crawl, chunk, embed, and upsert, while checkpointing
// progress into the job store. It is the one place that wires C4-C10
// together, following the shape of the teacher's DocumentIngestor in
// internal/core/ingestion_engine/ingestion_pipeline.go — a single owner
// draining a bounded channel — generalized from "one worker drains one doc
// at a time" to "one drain task flushes chunk batches while the crawler's
// worker pool fetches concurrently", per the spec's scheduling model.
package orchestrator

import (
	"context"
	"crypto/md5"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"regexp"
	"sync"
	"time"

	"github.com/docsearch-dev/docsearch/internal/config"
	"github.com/docsearch-dev/docsearch/internal/core"
	"github.com/docsearch-dev/docsearch/internal/core/chunker"
	"github.com/docsearch-dev/docsearch/internal/core/crawler"
	"github.com/docsearch-dev/docsearch/internal/core/pdfingest"
	"github.com/docsearch-dev/docsearch/internal/core/ratelimit"
	"github.com/docsearch-dev/docsearch/internal/core/sitemap"
	"github.com/docsearch-dev/docsearch/internal/core/urlcanon"
	"github.com/docsearch-dev/docsearch/internal/models"
)

// distributedAcquirer is the one method orchestrator needs from the
// distributed rate-limit coordinator (pgstore.DistributedWindow). Accepting
// the interface rather than the concrete type keeps this package free of a
// direct pgstore import.
type distributedAcquirer interface {
	Acquire(ctx context.Context, windowKey string, cost ratelimit.Cost) error
}

// Orchestrator wires the crawl/chunk/embed/upsert pipeline against one
// configured embedding provider and vector store.
type Orchestrator struct {
	Jobs        core.JobStore
	Vectors     core.VectorStore
	Embedder    core.EmbeddingProvider
	Limiter     *ratelimit.Limiter
	Distributed distributedAcquirer // nil when Config.EmbedDistributed is false
	Cfg         *config.Config
}

// New builds an Orchestrator. dist may be nil.
func New(jobs core.JobStore, vectors core.VectorStore, embedder core.EmbeddingProvider, limiter *ratelimit.Limiter, dist distributedAcquirer, cfg *config.Config) *Orchestrator {
	return &Orchestrator{Jobs: jobs, Vectors: vectors, Embedder: embedder, Limiter: limiter, Distributed: dist, Cfg: cfg}
}

// pendingChunk is one chunk awaiting a flush, still tagged with its source
// page so the stored url can be derived.
type pendingChunk struct {
	pageURL string
	title   string
	content string
	meta    models.ChunkMetadata
}

// chunkURL computes the composite url stored per chunk (spec §3): the
// canonical page URL suffixed with "#" plus the md5 of the chunk's content,
// so that multiple chunks from one page coexist under a single-column
// unique constraint.
func chunkURL(pageURL, content string) string {
	sum := md5.Sum([]byte(content))
	return pageURL + "#" + hex.EncodeToString(sum[:])
}

// RunHTMLIngest runs the HTML ingest pipeline for one job (spec §4.11,
// steps 1-7). It is idempotent against re-entry: re-running the same job
// over the same source re-derives the same chunk urls and upserts over them.
func (o *Orchestrator) RunHTMLIngest(ctx context.Context, sourceURL, jobID string) error {
	indexName, err := urlcanon.DeriveIndexName(sourceURL)
	if err != nil {
		return o.fail(ctx, jobID, "derive_index_name", err, false)
	}
	if err := o.Jobs.UpdateStatus(ctx, jobID, models.JobRunning, nil, "", nil); err != nil {
		log.Printf("orchestrator: job %s: mark running: %v", jobID, err)
	}

	if err := o.Vectors.EnsureStore(ctx, indexName, o.Embedder.Dimensions()); err != nil {
		return o.fail(ctx, jobID, "ensure_store", err, true)
	}

	opts, err := o.crawlOptions(sourceURL)
	if err != nil {
		return o.fail(ctx, jobID, "parse_patterns", err, false)
	}

	seeds, err := sitemap.Discover(ctx, sourceURL, sitemap.HTTPFetcher(nil))
	if err != nil {
		log.Printf("orchestrator: job %s: sitemap discovery: %v", jobID, err)
	} else {
		opts.ExtraSeeds = seeds
	}

	state := newRunState(o.Cfg.EmbedBatchSize)
	defer state.closeOnce()

	drainDone := make(chan error, 1)
	go func() {
		drainDone <- o.drain(ctx, jobID, indexName, state)
	}()

	fetch := crawler.HTTPFetcher(o.Cfg.Timeout())
	crawlErr := crawler.Crawl(ctx, sourceURL, opts, fetch, func(page core.CrawledPage) error {
		return state.submitPage(ctx, page, models.SourceHTML, 0)
	})

	state.closeOnce()
	drainErr := <-drainDone

	return o.finish(ctx, jobID, state, crawlErr, drainErr)
}

// RunPDFIngest is the single-document counterpart to RunHTMLIngest (spec
// §4.11's closing line): at most one page, with pages_discovered counted the
// same way as the HTML path — submitPage increments it once the document is
// actually delivered with extracted text, not eagerly on fetch start.
func (o *Orchestrator) RunPDFIngest(ctx context.Context, pdfURL, jobID string) error {
	indexName, err := urlcanon.DeriveIndexName(pdfURL)
	if err != nil {
		return o.fail(ctx, jobID, "derive_index_name", err, false)
	}
	if err := o.Jobs.UpdateStatus(ctx, jobID, models.JobRunning, nil, "", nil); err != nil {
		log.Printf("orchestrator: job %s: mark running: %v", jobID, err)
	}

	if err := o.Vectors.EnsureStore(ctx, indexName, o.Embedder.Dimensions()); err != nil {
		return o.fail(ctx, jobID, "ensure_store", err, true)
	}

	state := newRunState(o.Cfg.EmbedBatchSize)
	defer state.closeOnce()

	drainDone := make(chan error, 1)
	go func() {
		drainDone <- o.drain(ctx, jobID, indexName, state)
	}()

	extracted, err := pdfingest.Fetch(ctx, pdfURL, pdfingest.HTTPFetcher(o.Cfg.Timeout()))
	var submitErr error
	if err != nil {
		submitErr = err
	} else {
		submitErr = state.submitPage(ctx, core.CrawledPage{URL: pdfURL, Title: extracted.Title, Text: extracted.Text}, models.SourcePDF, extracted.PageCount)
	}

	state.closeOnce()
	drainErr := <-drainDone

	return o.finish(ctx, jobID, state, submitErr, drainErr)
}

// crawlOptions derives crawler.Options from o.Cfg, compiling the include and
// exclude regexes once per run.
func (o *Orchestrator) crawlOptions(sourceURL string) (crawler.Options, error) {
	opts := crawler.Options{
		MaxPages:    o.Cfg.MaxPages,
		Concurrency: o.Cfg.Concurrency,
		Timeout:     o.Cfg.Timeout(),
		UserAgent:   o.Cfg.UserAgent,
	}
	if o.Cfg.IncludeRegex != "" {
		re, err := regexp.Compile(o.Cfg.IncludeRegex)
		if err != nil {
			return opts, fmt.Errorf("compile include regex: %w", err)
		}
		opts.IncludePattern = re
	}
	if o.Cfg.ExcludeRegex != "" {
		re, err := regexp.Compile(o.Cfg.ExcludeRegex)
		if err != nil {
			return opts, fmt.Errorf("compile exclude regex: %w", err)
		}
		opts.ExcludePattern = re
	}
	return opts, nil
}

// runState holds the pending-chunk channel and the counters the crawl
// producer and the flush consumer both touch. The channel's capacity is the
// back-pressure point (spec §5): once it fills to 2*batchSize, submitPage
// blocks the crawler's sink until the drain task makes room.
type runState struct {
	batchSize int
	chunkCh   chan pendingChunk
	closed    bool

	mu       sync.Mutex // guards counters: submitPage and drain run on different goroutines
	counters models.JobCounters
}

func (s *runState) snapshotCounters() models.JobCounters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters
}

func newRunState(batchSize int) *runState {
	if batchSize <= 0 {
		batchSize = 32
	}
	return &runState{batchSize: batchSize, chunkCh: make(chan pendingChunk, 2*batchSize)}
}

func (s *runState) closeOnce() {
	if !s.closed {
		s.closed = true
		close(s.chunkCh)
	}
}

// submitPage chunks one page's extracted text and feeds each chunk onto
// chunkCh, blocking (the back-pressure point) when the channel is full. It
// always counts the page as processed; it counts it as indexed only if at
// least one non-empty chunk was produced.
func (s *runState) submitPage(ctx context.Context, page core.CrawledPage, sourceType models.SourceType, pageCount int) error {
	s.mu.Lock()
	s.counters.PagesDiscovered++
	s.counters.PagesProcessed++
	s.mu.Unlock()

	chunks := chunker.Chunk(page.Text, chunker.Config{})
	if len(chunks) == 0 {
		return nil
	}
	s.mu.Lock()
	s.counters.PagesIndexed++
	s.mu.Unlock()

	for _, c := range chunks {
		pc := pendingChunk{
			pageURL: page.URL,
			title:   page.Title,
			content: c,
			meta: models.ChunkMetadata{
				Source:    page.URL,
				Type:      sourceType,
				Title:     page.Title,
				Size:      len(c),
				PageCount: pageCount,
			},
		}
		select {
		case s.chunkCh <- pc:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return nil
}

// drain is the flush consumer: it buffers pending chunks until batchSize is
// reached (or the channel closes), then flushes. It runs concurrently with
// the crawl producer for the lifetime of one ingest (spec §5).
func (o *Orchestrator) drain(ctx context.Context, jobID, indexName string, state *runState) error {
	var buf []pendingChunk
	var firstErr error

	flush := func() {
		if len(buf) == 0 || firstErr != nil {
			return
		}
		if err := o.flush(ctx, indexName, buf); err != nil {
			firstErr = err
			return
		}
		state.mu.Lock()
		state.counters.TotalChunks += len(buf)
		counters := state.counters
		state.mu.Unlock()
		buf = buf[:0]
		if err := o.Jobs.UpdateStatus(ctx, jobID, models.JobRunning, &counters, "", nil); err != nil {
			log.Printf("orchestrator: job %s: persist counters: %v", jobID, err)
		}
	}

	for pc := range state.chunkCh {
		if firstErr != nil {
			continue // drain the channel so submitPage never blocks forever
		}
		buf = append(buf, pc)
		if len(buf) >= state.batchSize {
			flush()
		}
	}
	flush()
	return firstErr
}

// flush is spec §4.11 step 6: distributed-acquire if enabled, then the
// local limiter, then one embedding batch call, then one upsert per chunk.
func (o *Orchestrator) flush(ctx context.Context, indexName string, buf []pendingChunk) error {
	contents := make([]string, len(buf))
	for i, pc := range buf {
		contents[i] = pc.content
	}

	estTokens := 0
	for _, c := range contents {
		estTokens += ratelimit.EstimateTokens(c)
	}

	if o.Distributed != nil {
		if err := o.Distributed.Acquire(ctx, "embed", ratelimit.Cost{Requests: 1, Tokens: estTokens}); err != nil {
			return fmt.Errorf("distributed rate limit: %w", err)
		}
	}
	if err := o.Limiter.Acquire(ctx, ratelimit.Cost{Requests: 1, Tokens: estTokens}); err != nil {
		return fmt.Errorf("local rate limit: %w", err)
	}

	var vectors [][]float32
	err := ratelimit.WithRetry(ctx, o.Cfg.EmbedMaxRetries, time.Duration(o.Cfg.EmbedInitialBackoffMs)*time.Millisecond, func() error {
		v, err := o.Embedder.EmbedBatch(ctx, contents)
		if err != nil {
			return err
		}
		vectors = v
		return nil
	})
	if err != nil {
		return fmt.Errorf("embed batch: %w", err)
	}
	if len(vectors) != len(buf) {
		return fmt.Errorf("embed batch: got %d vectors for %d chunks", len(vectors), len(buf))
	}

	now := time.Now()
	for i, pc := range buf {
		chunk := models.DocumentChunk{
			URL:       chunkURL(pc.pageURL, pc.content),
			Title:     pc.title,
			Content:   pc.content,
			Embedding: vectors[i],
			Metadata:  pc.meta,
			CreatedAt: now,
		}
		if err := o.Vectors.Upsert(ctx, indexName, chunk); err != nil {
			return fmt.Errorf("upsert chunk: %w", err)
		}
	}
	return nil
}

// finish reconciles the crawl/extract error and the drain error into a
// final job status (spec §4.11 step 7, §5 "Cancellation and timeouts").
func (o *Orchestrator) finish(ctx context.Context, jobID string, state *runState, primaryErr, drainErr error) error {
	if primaryErr == nil {
		primaryErr = drainErr
	}
	if primaryErr == nil {
		return o.complete(ctx, jobID, state)
	}

	switch {
	case errors.Is(primaryErr, context.DeadlineExceeded):
		return o.terminal(ctx, jobID, state, models.JobTimeout, "ingest deadline exceeded", "deadline", primaryErr, false)
	case errors.Is(primaryErr, context.Canceled):
		return o.terminal(ctx, jobID, state, models.JobCancelled, "ingest cancelled", "cancel", primaryErr, false)
	default:
		return o.terminal(ctx, jobID, state, models.JobFailed, primaryErr.Error(), "ingest", primaryErr, true)
	}
}

func (o *Orchestrator) complete(ctx context.Context, jobID string, state *runState) error {
	counters := state.snapshotCounters()
	return o.Jobs.UpdateStatus(ctx, jobID, models.JobCompleted, &counters, "", nil)
}

func (o *Orchestrator) terminal(ctx context.Context, jobID string, state *runState, status models.JobStatus, msg, stage string, cause error, retryable bool) error {
	counters := state.snapshotCounters()
	details := &models.JobErrorDetails{Stage: stage, Cause: cause.Error(), Retryable: retryable}
	if err := o.Jobs.UpdateStatus(ctx, jobID, status, &counters, msg, details); err != nil {
		log.Printf("orchestrator: job %s: persist terminal status %s: %v", jobID, status, err)
	}
	return cause
}

// fail marks a job failed before any counters exist yet (pre-crawl setup
// errors: index derivation, store setup, pattern compilation).
func (o *Orchestrator) fail(ctx context.Context, jobID, stage string, err error, retryable bool) error {
	details := &models.JobErrorDetails{Stage: stage, Cause: err.Error(), Retryable: retryable}
	if uerr := o.Jobs.UpdateStatus(ctx, jobID, models.JobFailed, nil, err.Error(), details); uerr != nil {
		log.Printf("orchestrator: job %s: persist setup failure: %v", jobID, uerr)
	}
	return err
}
