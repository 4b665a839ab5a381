package urlcanon

import "testing"

func TestCanonicalize(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"https://x.test/a/?utm_source=b&keep=1#frag", "https://x.test/a?keep=1"},
		{"https://x.test/a/index.html", "https://x.test/a"},
	}
	for _, c := range cases {
		got, err := Canonicalize(c.in)
		if err != nil {
			t.Fatalf("Canonicalize(%q) error: %v", c.in, err)
		}
		if got != c.want {
			t.Errorf("Canonicalize(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestCanonicalizeIdempotent(t *testing.T) {
	inputs := []string{
		"https://x.test/a/?utm_source=b&keep=1#frag",
		"https://x.test/a/index.html",
		"https://Example.com/Docs/",
		"http://x.test/path?gclid=1&a=2",
	}
	for _, in := range inputs {
		once, err := Canonicalize(in)
		if err != nil {
			t.Fatalf("Canonicalize(%q) error: %v", in, err)
		}
		twice, err := Canonicalize(once)
		if err != nil {
			t.Fatalf("Canonicalize(%q) error: %v", once, err)
		}
		if once != twice {
			t.Errorf("Canonicalize not idempotent: %q -> %q -> %q", in, once, twice)
		}
	}
}

func TestDeriveIndexName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"https://www.example.com/docs/getting-started/intro", "example-com"},
		{"http://www.Example-Sub.Domain.co.uk/path", "example-sub-domain-co-uk"},
		{"https://hmd-wp.go-vip.net/wp-content/uploads/2025/05/2025-US-FDD-Embassy-Suites-v.2.pdf", "hmd-wp-go-vip-net-2025-us-fdd-embassy-suites-v-2"},
		{"https://files.example.com/docs/My Report 2024 FINAL.PDF", "files-example-com-my-report-2024-final"},
		{"https://example.com/guide/intro?utm_source=foo#section-1", "example-com"},
	}
	for _, c := range cases {
		got, err := DeriveIndexName(c.in)
		if err != nil {
			t.Fatalf("DeriveIndexName(%q) error: %v", c.in, err)
		}
		if got != c.want {
			t.Errorf("DeriveIndexName(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestIsAssetURL(t *testing.T) {
	if !IsAssetURL("https://x.test/a/image.PNG") {
		t.Error("expected .PNG to be an asset")
	}
	if IsAssetURL("https://x.test/a/page.html") {
		t.Error("expected .html not to be an asset")
	}
}

func TestSameHost(t *testing.T) {
	if !SameHost("https://www.example.com/a", "https://example.com/b") {
		t.Error("expected www. variants to match")
	}
	if SameHost("https://example.com/a", "https://other.com/b") {
		t.Error("expected different hosts not to match")
	}
}
