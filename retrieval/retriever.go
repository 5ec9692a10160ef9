package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/richinex/scribe/index"
	"github.com/richinex/scribe/model"
)

// Retriever embeds query text and searches the index.
type Retriever struct {
	embedder Embedder
	index    *index.Index
}

// NewRetriever binds an embedder to an index. Their dimensions must agree.
func NewRetriever(embedder Embedder, idx *index.Index) (*Retriever, error) {
	if embedder.Dimension() != idx.Dimension() {
		return nil, fmt.Errorf("embedder %s produces %d dimensions, index holds %d: %w",
			embedder.ModelName(), embedder.Dimension(), idx.Dimension(), model.ErrConfiguration)
	}
	return &Retriever{embedder: embedder, index: idx}, nil
}

// Retrieve returns at most k results with similarity ≥ minSimilarity, best
// first. Nothing clearing the threshold yields an empty slice.
func (r *Retriever) Retrieve(ctx context.Context, text string, k int, minSimilarity float64) ([]index.Result, error) {
	if strings.TrimSpace(text) == "" || k <= 0 {
		return []index.Result{}, nil
	}

	vectors, err := r.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("embedder returned %d vectors for one query", len(vectors))
	}

	results, err := r.index.Query(vectors[0], k)
	if err != nil {
		return nil, err
	}

	out := results[:0]
	for _, res := range results {
		if res.Similarity >= minSimilarity {
			out = append(out, res)
		}
	}
	return out, nil
}

// Embedder returns the embedder used for queries.
func (r *Retriever) Embedder() Embedder {
	return r.embedder
}

// Index returns the underlying index.
func (r *Retriever) Index() *index.Index {
	return r.index
}
