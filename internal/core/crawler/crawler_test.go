package crawler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/docsearch-dev/docsearch/internal/core"
)

func page(title, linksHTML string) string {
	return `<html><head><title>` + title + `</title></head><body><main><p>Body of ` + title + `.</p></main>` + linksHTML + `</body></html>`
}

// newTestSite builds an httptest server serving a small linked graph of
// same-host HTML pages, per the "crawler bound" seed scenario (spec §9.3).
func newTestSite(t *testing.T, pageCount int) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		var links string
		for i := 1; i <= pageCount; i++ {
			links += `<a href="/p` + strconv.Itoa(i) + `">p` + strconv.Itoa(i) + `</a>`
		}
		w.Write([]byte(page("root", links)))
	})
	for i := 1; i <= pageCount; i++ {
		i := i
		mux.HandleFunc("/p"+strconv.Itoa(i), func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Type", "text/html")
			w.Write([]byte(page("p"+strconv.Itoa(i), "")))
		})
	}
	return httptest.NewServer(mux)
}

func testFetcher(srv *httptest.Server) Fetcher {
	client := srv.Client()
	return func(_ context.Context, req *http.Request) (*http.Response, error) {
		return client.Do(req)
	}
}

func TestCrawlBoundedByMaxPages(t *testing.T) {
	srv := newTestSite(t, 10)
	defer srv.Close()

	var mu sync.Mutex
	var delivered []core.CrawledPage

	err := Crawl(context.Background(), srv.URL+"/", Options{
		MaxPages:    3,
		Concurrency: 2,
		Timeout:     2 * time.Second,
	}, testFetcher(srv), func(p core.CrawledPage) error {
		mu.Lock()
		delivered = append(delivered, p)
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatalf("Crawl error: %v", err)
	}
	if len(delivered) != 3 {
		t.Fatalf("delivered %d pages, want 3", len(delivered))
	}
}

func TestCrawlDeliversEachPageOnce(t *testing.T) {
	srv := newTestSite(t, 3)
	defer srv.Close()

	var mu sync.Mutex
	seen := map[string]int{}

	err := Crawl(context.Background(), srv.URL+"/", Options{
		MaxPages:    10,
		Concurrency: 3,
		Timeout:     2 * time.Second,
	}, testFetcher(srv), func(p core.CrawledPage) error {
		mu.Lock()
		seen[p.URL]++
		mu.Unlock()
		return nil
	})
	if err != nil {
		t.Fatalf("Crawl error: %v", err)
	}
	if len(seen) != 4 { // root + p1 + p2 + p3
		t.Fatalf("saw %d distinct urls, want 4: %v", len(seen), keys(seen))
	}
	for u, n := range seen {
		if n != 1 {
			t.Errorf("url %s delivered %d times, want 1", u, n)
		}
	}
}

func keys(m map[string]int) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func TestCrawlIgnoresOffHostLinks(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(page("root", `<a href="https://elsewhere.example/x">ext</a>`)))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	var delivered []core.CrawledPage
	err := Crawl(context.Background(), srv.URL+"/", Options{
		MaxPages:    10,
		Concurrency: 2,
		Timeout:     2 * time.Second,
	}, testFetcher(srv), func(p core.CrawledPage) error {
		delivered = append(delivered, p)
		return nil
	})
	if err != nil {
		t.Fatalf("Crawl error: %v", err)
	}
	if len(delivered) != 1 {
		t.Fatalf("delivered %d pages, want 1 (off-host link must not be followed)", len(delivered))
	}
}
