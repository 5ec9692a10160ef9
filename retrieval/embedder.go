// Package retrieval embeds text and answers similarity queries over the
// index.
//
// Information Hiding:
// - Embedding backends (feature hashing, OpenAI, Gemini) hidden behind Embedder
// - Index dimension checks happen once, at construction
// - Ingestion chunking, deduplication and persistence hidden behind Ingestor
package retrieval

import (
	"context"
	"regexp"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	"github.com/richinex/scribe/index"
)

// Embedder turns texts into fixed-dimension vectors. Ingestion and queries
// must use the same Embedder.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	Dimension() int
	ModelName() string
}

// DefaultHashDimension is the HashEmbedder dimension used when none is
// configured.
const DefaultHashDimension = 512

// HashEmbedder is an offline, deterministic embedder using signed feature
// hashing of word unigrams and bigrams.
type HashEmbedder struct {
	dim int
}

// NewHashEmbedder creates a hashing embedder. A non-positive dimension uses
// DefaultHashDimension.
func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = DefaultHashDimension
	}
	return &HashEmbedder{dim: dim}
}

var wordPattern = regexp.MustCompile(`[\p{L}\p{N}]+`)

// Embed returns one L2-normalised vector per text. Texts without any word
// characters embed to the zero vector.
func (h *HashEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out[i] = h.embed(text)
	}
	return out, nil
}

func (h *HashEmbedder) embed(text string) []float32 {
	v := make([]float32, h.dim)
	words := wordPattern.FindAllString(strings.ToLower(text), -1)
	for i, w := range words {
		h.add(v, w, 1)
		if i > 0 {
			h.add(v, words[i-1]+" "+w, 0.5)
		}
	}
	if unit, err := index.Normalize(v); err == nil {
		return unit
	}
	return v
}

func (h *HashEmbedder) add(v []float32, feature string, weight float32) {
	sum := xxhash.Sum64String(feature)
	bucket := sum % uint64(h.dim)
	if sum>>63 == 1 {
		weight = -weight
	}
	v[bucket] += weight
}

// Dimension returns the vector dimension.
func (h *HashEmbedder) Dimension() int {
	return h.dim
}

// ModelName identifies the hashing scheme and dimension.
func (h *HashEmbedder) ModelName() string {
	return "hash-" + strconv.Itoa(h.dim)
}
