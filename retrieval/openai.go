package retrieval

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"github.com/richinex/scribe/model"
)

// Native output dimensions of the OpenAI embedding models.
var openAIDimensions = map[string]int{
	string(openai.SmallEmbedding3): 1536,
	string(openai.LargeEmbedding3): 3072,
	string(openai.AdaEmbeddingV2):  1536,
}

// DefaultOpenAIEmbeddingModel is used when no model is configured.
const DefaultOpenAIEmbeddingModel = string(openai.SmallEmbedding3)

// maxEmbeddingBatch bounds the inputs sent in one request.
const maxEmbeddingBatch = 100

// OpenAIEmbedder embeds text with the OpenAI embeddings API.
type OpenAIEmbedder struct {
	client    *openai.Client
	model     string
	dim       int
	shortened bool
}

// NewOpenAIEmbedder creates an embedder for model. A zero dimension uses the
// model's native size. A smaller dimension is requested from the API for the
// text-embedding-3 family.
func NewOpenAIEmbedder(apiKey, modelName string, dimension int) (*OpenAIEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("openai embedder: empty API key: %w", model.ErrConfiguration)
	}
	return NewOpenAIEmbedderWithConfig(openai.DefaultConfig(apiKey), modelName, dimension)
}

// NewOpenAIEmbedderWithConfig is NewOpenAIEmbedder with an explicit client
// configuration, for compatible endpoints.
func NewOpenAIEmbedderWithConfig(cfg openai.ClientConfig, modelName string, dimension int) (*OpenAIEmbedder, error) {
	if modelName == "" {
		modelName = DefaultOpenAIEmbeddingModel
	}
	native, known := openAIDimensions[modelName]
	switch {
	case dimension < 0:
		return nil, fmt.Errorf("openai embedder: negative dimension: %w", model.ErrConfiguration)
	case dimension == 0 && !known:
		return nil, fmt.Errorf("openai embedder: unknown model %q needs an explicit dimension: %w", modelName, model.ErrConfiguration)
	case dimension == 0:
		dimension = native
	}
	return &OpenAIEmbedder{
		client:    openai.NewClientWithConfig(cfg),
		model:     modelName,
		dim:       dimension,
		shortened: known && dimension != native,
	}, nil
}

// Embed returns one vector per text, in order.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += maxEmbeddingBatch {
		end := min(start+maxEmbeddingBatch, len(texts))
		req := openai.EmbeddingRequest{
			Input: texts[start:end],
			Model: openai.EmbeddingModel(e.model),
		}
		if e.shortened {
			req.Dimensions = e.dim
		}
		resp, err := e.client.CreateEmbeddings(ctx, req)
		if err != nil {
			return nil, fmt.Errorf("openai embeddings failed: %w", err)
		}
		if len(resp.Data) != end-start {
			return nil, fmt.Errorf("openai embeddings: got %d vectors for %d inputs", len(resp.Data), end-start)
		}
		batch := make([][]float32, len(resp.Data))
		for _, d := range resp.Data {
			if d.Index < 0 || d.Index >= len(batch) {
				return nil, fmt.Errorf("openai embeddings: index %d out of range", d.Index)
			}
			if len(d.Embedding) != e.dim {
				return nil, fmt.Errorf("openai embeddings: got %d dimensions, want %d: %w",
					len(d.Embedding), e.dim, model.ErrDimensionMismatch)
			}
			batch[d.Index] = d.Embedding
		}
		out = append(out, batch...)
	}
	return out, nil
}

// Dimension returns the vector dimension.
func (e *OpenAIEmbedder) Dimension() int {
	return e.dim
}

// ModelName returns the embedding model.
func (e *OpenAIEmbedder) ModelName() string {
	return e.model
}
