// Package crawler implements the bounded same-host BFS crawler (spec §4.5).
// The visited set, queue, and active counter are owned by a single
// coordinator goroutine; workers receive URLs over a channel and return
// pages over another, following the teacher's jobs-channel worker pool in
// internal/core/ingestion_engine/ingestion_pipeline.go, generalized from a
// fixed worker count pulling off one queue to a coordinator that refills the
// queue as workers discover new links.
package crawler

import (
	"context"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/sync/errgroup"

	"github.com/docsearch-dev/docsearch/internal/core"
	"github.com/docsearch-dev/docsearch/internal/core/htmlextract"
	"github.com/docsearch-dev/docsearch/internal/core/urlcanon"
)

// defaultExcludes cover authentication pages, category/tag/feed pages, and
// non-HTML media descriptors (spec §4.5).
var defaultExcludes = []*regexp.Regexp{
	regexp.MustCompile(`(?i)/(login|logout|signin|signup|sign-in|sign-up|auth)(/|$)`),
	regexp.MustCompile(`(?i)/(category|categories|tag|tags)(/|$)`),
	regexp.MustCompile(`(?i)/feed(/|\.xml)?$`),
	regexp.MustCompile(`(?i)\.(rss|atom)$`),
}

// Options configures one crawl.
type Options struct {
	MaxPages       int
	Concurrency    int
	Timeout        time.Duration
	UserAgent      string
	IncludePattern *regexp.Regexp
	ExcludePattern *regexp.Regexp
	PathPrefix     string // restricts the crawl to URLs under this path, if non-empty
	ExtraSeeds     []string
}

// Fetcher abstracts the HTTP GET a worker performs, so tests can stub it.
type Fetcher func(ctx context.Context, req *http.Request) (*http.Response, error)

// HTTPFetcher builds a Fetcher backed by an *http.Client capped at 5
// redirects (spec §4.5).
func HTTPFetcher(timeout time.Duration) Fetcher {
	client := &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 5 {
				return http.ErrUseLastResponse
			}
			return nil
		},
	}
	return func(ctx context.Context, req *http.Request) (*http.Response, error) {
		return client.Do(req.WithContext(ctx))
	}
}

type fetchResult struct {
	pageURL string
	status  int
	ctype   string
	body    string
	links   []string
	ok      bool
}

// Crawl runs a bounded BFS from seedURL plus opts.ExtraSeeds, delivering
// every successfully extracted page to sink exactly once. It blocks until
// the queue drains, maxPages is reached, or ctx is cancelled.
func Crawl(ctx context.Context, seedURL string, opts Options, fetch Fetcher, sink func(core.CrawledPage) error) error {
	seed, err := url.Parse(seedURL)
	if err != nil {
		return err
	}

	maxPages := opts.MaxPages
	if maxPages <= 0 {
		maxPages = 10000
	}
	workers := opts.Concurrency
	if workers <= 0 {
		workers = 4
	}

	var pathPrefix string
	if opts.PathPrefix != "" && opts.PathPrefix != "/" {
		pathPrefix = opts.PathPrefix
	}

	toFetch := make(chan string, workers*4)
	results := make(chan fetchResult, workers*4)

	visited := map[string]bool{}
	queued := map[string]bool{}
	var queue []string

	enqueue := func(u string) {
		canon, err := urlcanon.Canonicalize(u)
		if err != nil {
			return
		}
		if !urlcanon.SameHost(canon, seedURL) || urlcanon.IsAssetURL(canon) {
			return
		}
		if pathPrefix != "" && !strings.HasPrefix(pagePath(canon), pathPrefix) {
			return
		}
		if visited[canon] || queued[canon] {
			return
		}
		if isExcluded(canon, opts) {
			return
		}
		queued[canon] = true
		queue = append(queue, canon)
	}

	enqueue(seedURL)
	for _, s := range opts.ExtraSeeds {
		enqueue(s)
	}

	var g errgroup.Group
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for u := range toFetch {
				results <- fetchOne(ctx, u, opts, fetch, seed)
			}
			return nil
		})
	}

	done := make(chan struct{})
	var sinkErr error

	go func() {
		defer close(done)
		active := 0
		delivered := 0
		for {
			for active < workers && len(queue) > 0 && len(visited)+active < maxPages {
				u := queue[0]
				queue = queue[1:]
				delete(queued, u)
				active++
				select {
				case toFetch <- u:
				case <-ctx.Done():
					active--
					return
				}
			}
			if active == 0 {
				return
			}
			select {
			case r := <-results:
				active--
				visited[r.pageURL] = true
				if r.ok {
					for _, l := range r.links {
						if len(visited)+len(queue) < maxPages {
							enqueue(l)
						}
					}
					if strings.TrimSpace(r.body) != "" {
						extracted, err := htmlextract.Extract(r.body, r.pageURL)
						if err == nil && strings.TrimSpace(extracted.Text) != "" {
							delivered++
							if err := sink(core.CrawledPage{URL: r.pageURL, Title: extracted.Title, Text: extracted.Text}); err != nil {
								sinkErr = err
								return
							}
						}
					}
				}
				if len(visited) >= maxPages {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	<-done
	close(toFetch)
	_ = g.Wait()

	if sinkErr != nil {
		return sinkErr
	}
	return ctx.Err()
}

func fetchOne(ctx context.Context, u string, opts Options, fetch Fetcher, seed *url.URL) fetchResult {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fetchResult{pageURL: u}
	}
	if opts.UserAgent != "" {
		req.Header.Set("User-Agent", opts.UserAgent)
	}

	resp, err := fetch(ctx, req)
	if err != nil {
		return fetchResult{pageURL: u}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fetchResult{pageURL: u, status: resp.StatusCode}
	}
	ctype := resp.Header.Get("Content-Type")
	if !strings.Contains(ctype, "text/html") {
		return fetchResult{pageURL: u, status: resp.StatusCode, ctype: ctype}
	}

	buf := make([]byte, 0, 64*1024)
	tmp := make([]byte, 32*1024)
	for {
		n, rerr := resp.Body.Read(tmp)
		if n > 0 {
			buf = append(buf, tmp[:n]...)
		}
		if rerr != nil {
			break
		}
	}
	body := string(buf)

	links := extractLinks(body, u)

	return fetchResult{pageURL: u, status: resp.StatusCode, ctype: ctype, body: body, links: links, ok: true}
}

func isExcluded(u string, opts Options) bool {
	if opts.IncludePattern != nil && !opts.IncludePattern.MatchString(u) {
		return true
	}
	if opts.ExcludePattern != nil && opts.ExcludePattern.MatchString(u) {
		return true
	}
	for _, re := range defaultExcludes {
		if re.MatchString(u) {
			return true
		}
	}
	return false
}

func pagePath(rawURL string) string {
	p, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return p.Path
}

// extractLinks resolves every <a href> against base into an absolute URL.
// Malformed hrefs are skipped; filtering (host, asset, include/exclude)
// happens later in enqueue.
func extractLinks(html, base string) []string {
	baseURL, err := url.Parse(base)
	if err != nil {
		return nil
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil
	}
	var out []string
	doc.Find("a[href]").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Attr("href")
		if !ok || href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") || strings.HasPrefix(href, "mailto:") {
			return
		}
		ref, err := url.Parse(href)
		if err != nil {
			return
		}
		abs := baseURL.ResolveReference(ref)
		if abs.Scheme != "http" && abs.Scheme != "https" {
			return
		}
		abs.Fragment = ""
		out = append(out, abs.String())
	})
	return out
}
