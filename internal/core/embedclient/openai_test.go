package embedclient

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/docsearch-dev/docsearch/internal/core/ratelimit"
)

func TestEmbedBatchEmptyInputShortCircuits(t *testing.T) {
	p := NewOpenAIProvider("key", "text-embedding-3-small", 1536)
	out, err := p.EmbedBatch(context.Background(), nil)
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if out != nil {
		t.Fatalf("expected nil output for empty input, got %v", out)
	}
}

func TestEmbedBatchOrdersByIndex(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req openAIRequest
		json.NewDecoder(r.Body).Decode(&req)
		resp := openAIResponse{}
		for i := len(req.Input) - 1; i >= 0; i-- {
			resp.Data = append(resp.Data, struct {
				Embedding []float32 `json:"embedding"`
				Index     int       `json:"index"`
			}{Embedding: []float32{float32(len(req.Input[i]))}, Index: i})
		}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	p := NewOpenAIProvider("key", "m", 0)
	p.baseURL = srv.URL
	p.client = srv.Client()

	out, err := p.EmbedBatch(context.Background(), []string{"a", "bb", "ccc"})
	if err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if len(out) != 3 {
		t.Fatalf("got %d vectors, want 3", len(out))
	}
	// Response lists entries in reverse order; output must still be in request order.
	want := [][]float32{{1}, {2}, {3}}
	for i := range want {
		if out[i][0] != want[i][0] {
			t.Errorf("out[%d] = %v, want %v", i, out[i], want[i])
		}
	}
}

func TestEmbedBatchErrorIsRetryable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`{"error":{"message":"slow down"}}`))
	}))
	defer srv.Close()

	p := NewOpenAIProvider("key", "m", 0)
	p.baseURL = srv.URL
	p.client = srv.Client()

	_, err := p.EmbedBatch(context.Background(), []string{"a"})
	if err == nil {
		t.Fatal("expected error")
	}
	var retryable *ratelimit.RetryableError
	if !errors.As(err, &retryable) {
		t.Fatalf("expected *ratelimit.RetryableError, got %T: %v", err, err)
	}
	if retryable.StatusCode != http.StatusTooManyRequests {
		t.Errorf("StatusCode = %d, want 429", retryable.StatusCode)
	}
}

func TestEmbedBatchAdoptsActualDimensionOnMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		resp := openAIResponse{Data: []struct {
			Embedding []float32 `json:"embedding"`
			Index     int       `json:"index"`
		}{{Embedding: make([]float32, 768), Index: 0}}}
		json.NewEncoder(w).Encode(resp)
	}))
	defer srv.Close()

	p := NewOpenAIProvider("key", "m", 1536)
	p.baseURL = srv.URL
	p.client = srv.Client()

	if _, err := p.EmbedBatch(context.Background(), []string{"a"}); err != nil {
		t.Fatalf("EmbedBatch: %v", err)
	}
	if p.Dimensions() != 768 {
		t.Errorf("Dimensions() = %d, want 768 (adopted from provider response)", p.Dimensions())
	}
}

func TestNormalizeLeavesUnitVectorsAlone(t *testing.T) {
	v := []float32{1, 0, 0}
	got := normalize(v)
	if got[0] != 1 || got[1] != 0 || got[2] != 0 {
		t.Errorf("normalize altered a unit vector: %v", got)
	}
}

func TestNormalizeScalesToUnitLength(t *testing.T) {
	v := []float32{3, 4}
	got := normalize(v)
	sumSq := float64(got[0])*float64(got[0]) + float64(got[1])*float64(got[1])
	if d := sumSq - 1; d > 1e-4 || d < -1e-4 {
		t.Errorf("normalized vector not unit length: sumSq=%v", sumSq)
	}
}
