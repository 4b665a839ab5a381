// Package sitemap discovers seed URLs for a host via robots.txt and
// sitemap.xml (spec §4.4). Kept on net/http + encoding/xml: no sitemap or
// robots parser appears anywhere in the retrieved corpus, so the standard
// library is the only grounded choice for this component (see DESIGN.md).
package sitemap

import (
	"bufio"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/docsearch-dev/docsearch/internal/core/urlcanon"
)

// probePaths are tried, in order, against the seed's host.
var probePaths = []string{"/robots.txt", "/sitemap.xml", "/docs/sitemap.xml", "/sitemap_index.xml"}

// locList reads a <urlset>; sitemapIndex below reads a <sitemapindex>.
type locList struct {
	XMLName xml.Name `xml:"urlset"`
	Locs    []string `xml:"url>loc"`
}

type sitemapIndex struct {
	XMLName  xml.Name `xml:"sitemapindex"`
	Sitemaps []string `xml:"sitemap>loc"`
}

// Fetcher abstracts the HTTP GET the discoverer needs, so tests can stub it.
type Fetcher func(ctx context.Context, url string) (status int, contentType string, body io.ReadCloser, err error)

// HTTPFetcher is the default Fetcher, backed by http.DefaultClient.
func HTTPFetcher(client *http.Client) Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return func(ctx context.Context, u string) (int, string, io.ReadCloser, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return 0, "", nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return 0, "", nil, err
		}
		return resp.StatusCode, resp.Header.Get("Content-Type"), resp.Body, nil
	}
}

// Discover probes the seed's host for robots.txt and sitemap files, expands
// sitemap indexes recursively, and returns a deduplicated, canonicalized,
// same-host set of page URLs.
func Discover(ctx context.Context, seedURL string, fetch Fetcher) ([]string, error) {
	seed, err := url.Parse(seedURL)
	if err != nil {
		return nil, fmt.Errorf("parse seed url: %w", err)
	}
	root := fmt.Sprintf("%s://%s", seed.Scheme, seed.Host)

	seen := map[string]bool{}
	var sitemapURLs []string

	for _, p := range probePaths {
		probeURL := root + p
		status, contentType, body, err := fetch(ctx, probeURL)
		if err != nil {
			continue
		}
		func() {
			defer body.Close()
			if status >= 400 {
				return
			}
			if strings.HasSuffix(p, "robots.txt") {
				for _, sm := range parseRobots(body) {
					if urlcanon.SameHost(sm, seedURL) && !seen[sm] {
						seen[sm] = true
						sitemapURLs = append(sitemapURLs, sm)
					}
				}
				return
			}
			if !seen[probeURL] {
				seen[probeURL] = true
				sitemapURLs = append(sitemapURLs, probeURL)
			}
			_ = contentType
		}()
	}

	pages := map[string]bool{}
	visitedSitemaps := map[string]bool{}
	queue := append([]string{}, sitemapURLs...)

	for len(queue) > 0 {
		sm := queue[0]
		queue = queue[1:]
		if visitedSitemaps[sm] {
			continue
		}
		visitedSitemaps[sm] = true

		status, contentType, body, err := fetch(ctx, sm)
		if err != nil {
			continue
		}
		locs, indexes := parseSitemapBody(body, contentType)
		body.Close()
		if status >= 400 {
			continue
		}
		for _, loc := range indexes {
			if !visitedSitemaps[loc] {
				queue = append(queue, loc)
			}
		}
		for _, loc := range locs {
			canon, err := urlcanon.Canonicalize(loc)
			if err != nil {
				continue
			}
			if urlcanon.SameHost(canon, seedURL) && !pages[canon] {
				pages[canon] = true
			}
		}
	}

	out := make([]string, 0, len(pages))
	for u := range pages {
		out = append(out, u)
	}
	return out, nil
}

// parseRobots extracts every "Sitemap:" directive value.
func parseRobots(r io.Reader) []string {
	var out []string
	sc := bufio.NewScanner(r)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		const prefix = "sitemap:"
		if strings.HasPrefix(strings.ToLower(line), prefix) {
			out = append(out, strings.TrimSpace(line[len(prefix):]))
		}
	}
	return out
}

// parseSitemapBody reads either an XML sitemap (urlset or sitemapindex) or a
// text/plain sitemap (one URL per line), returning page locs and any nested
// sitemap-index entries to expand.
func parseSitemapBody(r io.Reader, contentType string) (locs []string, indexes []string) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, nil
	}

	if strings.Contains(contentType, "text/plain") {
		for _, line := range strings.Split(string(data), "\n") {
			line = strings.TrimSpace(line)
			if strings.HasPrefix(line, "http") {
				locs = append(locs, line)
			}
		}
		return locs, nil
	}

	var idx sitemapIndex
	if err := xml.Unmarshal(data, &idx); err == nil && len(idx.Sitemaps) > 0 {
		return nil, idx.Sitemaps
	}

	var set locList
	if err := xml.Unmarshal(data, &set); err == nil && len(set.Locs) > 0 {
		return set.Locs, nil
	}

	// Fall back to a bare scan for <loc> elements, covering malformed or
	// minimal documents that neither struct matched.
	return bareLocs(data), nil
}

func bareLocs(data []byte) []string {
	dec := xml.NewDecoder(strings.NewReader(string(data)))
	var out []string
	var inLoc bool
	for {
		tok, err := dec.Token()
		if err != nil {
			break
		}
		switch t := tok.(type) {
		case xml.StartElement:
			inLoc = t.Name.Local == "loc"
		case xml.CharData:
			if inLoc {
				if s := strings.TrimSpace(string(t)); s != "" {
					out = append(out, s)
				}
			}
		}
	}
	return out
}
