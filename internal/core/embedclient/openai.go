// Package embedclient provides the two EmbeddingProvider implementations
// named in the DOMAIN STACK: an OpenAI-compatible HTTP client and a
// Google/Gemini genai client (spec §4.7).
package embedclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/docsearch-dev/docsearch/internal/core/ratelimit"
)

// OpenAIProvider talks to an OpenAI-compatible /embeddings endpoint.
// Grounded on paperless-go's rag/internal/embedding/client.go: same
// request/response shapes, same bearer-auth-if-present header pattern.
type OpenAIProvider struct {
	apiKey  string
	model   string
	baseURL string
	dim     int
	client  *http.Client
}

type openAIRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type openAIResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
		Index     int       `json:"index"`
	} `json:"data"`
}

type openAIErrorResponse struct {
	Error struct {
		Message string `json:"message"`
	} `json:"error"`
}

// NewOpenAIProvider builds a provider against the standard OpenAI API base
// URL, requesting a fixed output dimension if dim > 0.
func NewOpenAIProvider(apiKey, model string, dim int) *OpenAIProvider {
	return &OpenAIProvider{
		apiKey:  apiKey,
		model:   model,
		baseURL: "https://api.openai.com/v1",
		dim:     dim,
		client:  &http.Client{Timeout: 60 * time.Second},
	}
}

func (p *OpenAIProvider) Dimensions() int { return p.dim }
func (p *OpenAIProvider) Model() string   { return p.model }

// EmbedBatch sends one request embedding every text at once. An empty input
// returns an empty slice without a network call (spec §4.7).
func (p *OpenAIProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	reqBody := openAIRequest{Model: p.model, Input: texts, Dimensions: p.dim}
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshal embed request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/embeddings", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build embed request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("embed request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read embed response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		msg := string(body)
		var errResp openAIErrorResponse
		if err := json.Unmarshal(body, &errResp); err == nil && errResp.Error.Message != "" {
			msg = errResp.Error.Message
		}
		return nil, &ratelimit.RetryableError{
			StatusCode: resp.StatusCode,
			RetryAfter: resp.Header.Get("Retry-After"),
			Err:        fmt.Errorf("embedding provider returned %d: %s", resp.StatusCode, msg),
		}
	}

	var embResp openAIResponse
	if err := json.Unmarshal(body, &embResp); err != nil {
		return nil, fmt.Errorf("decode embed response: %w", err)
	}
	if len(embResp.Data) != len(texts) {
		return nil, fmt.Errorf("embed response returned %d vectors for %d inputs", len(embResp.Data), len(texts))
	}

	out := make([][]float32, len(embResp.Data))
	for _, d := range embResp.Data {
		out[d.Index] = d.Embedding
	}
	if len(out) > 0 && len(out[0]) != p.dim {
		p.dim = len(out[0])
	}
	return out, nil
}

