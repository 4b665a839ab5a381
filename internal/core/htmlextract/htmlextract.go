// Package htmlextract picks a page's main content container and returns its
// title and whitespace-collapsed text (spec §4.2). It follows the teacher's
// pattern of handing a single concrete extractor implementation behind a
// small interface (see core.DocumentExtractor in the teacher, generalized
// here to core.CrawledPage production), using goquery instead of docconv
// since the spec calls for CSS-selector-driven container selection rather
// than docconv's whole-document text dump.
package htmlextract

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// containerSelectors are tried in order; the first with non-empty text wins.
var containerSelectors = []string{
	"main", "article", "#content", ".content", ".docs-content", ".site-content", ".slds-container",
}

// removedSelectors are stripped from the document before any text is read.
var removedSelectors = []string{
	"script", "style", "noscript",
	"[aria-hidden=true]", ".sr-only", ".visually-hidden", ".screen-reader-text",
	"nav", "aside",
}

var whitespaceCollapser = strings.NewReplacer("\t", " ", "\n", " ", "\r", " ")

// Extracted is the title and collapsed text for one page.
type Extracted struct {
	Title string
	Text  string
}

// Extract parses html and returns its title and main-content text per the
// selector fallback chain in spec §4.2, falling back to <body> and then to
// pageURL for the title.
func Extract(html string, pageURL string) (Extracted, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return Extracted{}, err
	}

	for _, sel := range removedSelectors {
		doc.Find(sel).Remove()
	}

	var container *goquery.Selection
	for _, sel := range containerSelectors {
		if s := doc.Find(sel).First(); s.Length() > 0 && strings.TrimSpace(s.Text()) != "" {
			container = s
			break
		}
	}
	if container == nil {
		container = doc.Find("body")
	}

	text := collapseWhitespace(container.Text())
	title := pickTitle(doc, pageURL)

	return Extracted{Title: title, Text: text}, nil
}

func pickTitle(doc *goquery.Document, pageURL string) string {
	if t := strings.TrimSpace(doc.Find("title").First().Text()); t != "" {
		return t
	}
	if t := strings.TrimSpace(doc.Find("h1").First().Text()); t != "" {
		return t
	}
	return pageURL
}

// collapseWhitespace turns any run of whitespace into a single space.
func collapseWhitespace(s string) string {
	s = whitespaceCollapser.Replace(s)
	return strings.Join(strings.Fields(s), " ")
}
