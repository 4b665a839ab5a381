package access

import (
	"context"
	"strings"
	"testing"

	"github.com/docsearch-dev/docsearch/internal/core"
	"github.com/docsearch-dev/docsearch/internal/models"
)

type fakeAccessStore struct {
	allowed bool
}

func (f fakeAccessStore) LinkSession(context.Context, string, models.Identity) error { return nil }
func (f fakeAccessStore) Identity(context.Context, string) (models.Identity, error)  { return models.Identity{}, nil }
func (f fakeAccessStore) Grant(context.Context, models.Grant) error                  { return nil }
func (f fakeAccessStore) AccessibleIndexes(context.Context, models.Identity) ([]string, error) {
	return nil, nil
}
func (f fakeAccessStore) HasAccess(context.Context, models.Identity, string, models.AccessLevel) (bool, error) {
	return f.allowed, nil
}

type fakeEmbedder struct{}

func (fakeEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return [][]float32{{0.1, 0.2}}, nil
}
func (fakeEmbedder) Dimensions() int { return 2 }
func (fakeEmbedder) Model() string   { return "fake" }

type fakeVectorStore struct {
	hits []core.SearchHit
}

func (f fakeVectorStore) EnsureStore(context.Context, string, int) error { return nil }
func (f fakeVectorStore) Upsert(context.Context, string, models.DocumentChunk) error {
	return nil
}
func (f fakeVectorStore) AnnSearch(context.Context, string, []float32, int) ([]core.SearchHit, error) {
	return f.hits, nil
}

func TestSearchDeniesWithoutAccess(t *testing.T) {
	_, err := Search(context.Background(), fakeAccessStore{allowed: false}, fakeEmbedder{}, fakeVectorStore{}, models.Identity{}, "docs_x", "hello", 5)
	if err != ErrAccessDenied {
		t.Fatalf("err = %v, want ErrAccessDenied", err)
	}
}

func TestSearchTruncatesLongSnippets(t *testing.T) {
	long := strings.Repeat("a", 600)
	vs := fakeVectorStore{hits: []core.SearchHit{{URL: "u", Title: "t", Content: long, Score: 0.9}}}

	hits, err := Search(context.Background(), fakeAccessStore{allowed: true}, fakeEmbedder{}, vs, models.Identity{}, "docs_x", "hello", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("got %d hits, want 1", len(hits))
	}
	if len(hits[0].Content) != 500 {
		t.Errorf("snippet length = %d, want 500", len(hits[0].Content))
	}
}

func TestSearchLeavesShortSnippetsAlone(t *testing.T) {
	vs := fakeVectorStore{hits: []core.SearchHit{{URL: "u", Title: "t", Content: "short snippet", Score: 0.9}}}
	hits, err := Search(context.Background(), fakeAccessStore{allowed: true}, fakeEmbedder{}, vs, models.Identity{}, "docs_x", "hello", 5)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if hits[0].Content != "short snippet" {
		t.Errorf("Content = %q, want unchanged", hits[0].Content)
	}
}
