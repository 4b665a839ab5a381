package embedclient

import (
	"context"
	"fmt"
	"math"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// GeminiProvider embeds via Google's genai client. Grounded on the
// teacher's internal/core/llm/gemini_embed.go: same client construction
// and NewBatch/BatchEmbedContents call shape, extended to L2-normalize
// output (spec §4.7 requires unit-normalized vectors for cosine search)
// and to update the declared dimension when the provider's actual output
// differs from what was configured.
type GeminiProvider struct {
	client    *genai.Client
	modelName string
	dim       int
}

// NewGeminiProvider constructs a GeminiProvider using modelName, falling
// back to "gemini-embedding-001" like the teacher does.
func NewGeminiProvider(ctx context.Context, apiKey, modelName string, dim int) (*GeminiProvider, error) {
	cl, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("new genai client: %w", err)
	}
	if modelName == "" {
		modelName = "gemini-embedding-001"
	}
	return &GeminiProvider{client: cl, modelName: modelName, dim: dim}, nil
}

func (g *GeminiProvider) Close() error {
	if g.client != nil {
		return g.client.Close()
	}
	return nil
}

func (g *GeminiProvider) Dimensions() int { return g.dim }
func (g *GeminiProvider) Model() string   { return g.modelName }

// EmbedBatch batches all texts into a single BatchEmbedContents call,
// L2-normalizing any vector the API returns unnormalized.
func (g *GeminiProvider) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	em := g.client.EmbeddingModel(g.modelName)
	batch := em.NewBatch()
	for _, t := range texts {
		batch.AddContent(genai.Text(t))
	}

	resp, err := em.BatchEmbedContents(ctx, batch)
	if err != nil {
		return nil, fmt.Errorf("gemini batch embed: %w", err)
	}

	out := make([][]float32, 0, len(resp.Embeddings))
	for _, e := range resp.Embeddings {
		out = append(out, normalize(e.Values))
	}
	if len(out) > 0 && len(out[0]) != g.dim {
		g.dim = len(out[0])
	}
	return out, nil
}

// normalize returns an L2-normalized copy of v, or v itself when it is
// already unit length or all zeros.
func normalize(v []float32) []float32 {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	norm := math.Sqrt(sumSq)
	if norm == 0 || math.Abs(norm-1) < 1e-6 {
		return v
	}
	out := make([]float32, len(v))
	for i, x := range v {
		out[i] = float32(float64(x) / norm)
	}
	return out
}
