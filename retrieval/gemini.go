package retrieval

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/richinex/scribe/llm"
	"github.com/richinex/scribe/model"
)

// Default Gemini embedding settings.
const (
	DefaultGeminiEmbeddingModel     = "text-embedding-004"
	DefaultGeminiEmbeddingDimension = 768
)

// GeminiEmbedder embeds text with the Gemini embedContent API.
type GeminiEmbedder struct {
	client *genai.Client
	model  string
	dim    int
}

// NewGeminiEmbedder creates an embedder. Zero values select the defaults.
func NewGeminiEmbedder(ctx context.Context, apiKey, modelName string, dimension int) (*GeminiEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("gemini embedder: empty API key: %w", model.ErrConfiguration)
	}
	if dimension < 0 {
		return nil, fmt.Errorf("gemini embedder: negative dimension: %w", model.ErrConfiguration)
	}
	if modelName == "" {
		modelName = DefaultGeminiEmbeddingModel
	}
	if dimension == 0 {
		dimension = DefaultGeminiEmbeddingDimension
	}
	client, err := llm.NewGeminiClient(ctx, apiKey)
	if err != nil {
		return nil, fmt.Errorf("gemini embedder: %v: %w", err, model.ErrConfiguration)
	}
	return &GeminiEmbedder{client: client, model: modelName, dim: dimension}, nil
}

// Embed returns one vector per text, in order.
func (e *GeminiEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	cfg := &genai.EmbedContentConfig{OutputDimensionality: genai.Ptr(int32(e.dim))}

	for start := 0; start < len(texts); start += maxEmbeddingBatch {
		end := min(start+maxEmbeddingBatch, len(texts))
		contents := make([]*genai.Content, 0, end-start)
		for _, t := range texts[start:end] {
			contents = append(contents, genai.NewContentFromText(t, genai.RoleUser))
		}

		resp, err := e.client.Models.EmbedContent(ctx, e.model, contents, cfg)
		if err != nil {
			return nil, fmt.Errorf("gemini embeddings failed: %w", err)
		}
		if len(resp.Embeddings) != end-start {
			return nil, fmt.Errorf("gemini embeddings: got %d vectors for %d inputs", len(resp.Embeddings), end-start)
		}
		for _, emb := range resp.Embeddings {
			if len(emb.Values) != e.dim {
				return nil, fmt.Errorf("gemini embeddings: got %d dimensions, want %d: %w",
					len(emb.Values), e.dim, model.ErrDimensionMismatch)
			}
			out = append(out, emb.Values)
		}
	}
	return out, nil
}

// Dimension returns the vector dimension.
func (e *GeminiEmbedder) Dimension() int {
	return e.dim
}

// ModelName returns the embedding model.
func (e *GeminiEmbedder) ModelName() string {
	return e.model
}
