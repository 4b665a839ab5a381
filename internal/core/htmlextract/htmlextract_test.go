package htmlextract

import (
	"strings"
	"testing"
)

func TestExtractPrefersMain(t *testing.T) {
	html := `<html><head><title>Doc Title</title></head>
<body>
<nav>Skip this nav</nav>
<main><p>Hello   world.</p>
<p>Second   paragraph.</p></main>
<footer>footer text</footer>
</body></html>`

	got, err := Extract(html, "https://x.test/page")
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	if got.Title != "Doc Title" {
		t.Errorf("Title = %q, want %q", got.Title, "Doc Title")
	}
	if strings.Contains(got.Text, "nav") {
		t.Errorf("expected nav content to be excluded, got %q", got.Text)
	}
	if !strings.Contains(got.Text, "Hello world.") {
		t.Errorf("expected main content present, got %q", got.Text)
	}
}

func TestExtractFallsBackToBody(t *testing.T) {
	html := `<html><body><h1>Heading Title</h1><p>Body text here.</p></body></html>`
	got, err := Extract(html, "https://x.test/page")
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	if got.Title != "Heading Title" {
		t.Errorf("Title = %q, want %q", got.Title, "Heading Title")
	}
	if !strings.Contains(got.Text, "Body text here.") {
		t.Errorf("expected body text, got %q", got.Text)
	}
}

func TestExtractTitleFallsBackToURL(t *testing.T) {
	html := `<html><body><main><p>No title here.</p></main></body></html>`
	got, err := Extract(html, "https://x.test/no-title")
	if err != nil {
		t.Fatalf("Extract error: %v", err)
	}
	if got.Title != "https://x.test/no-title" {
		t.Errorf("Title = %q, want URL fallback", got.Title)
	}
}
