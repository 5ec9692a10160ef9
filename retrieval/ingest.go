package retrieval

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/richinex/scribe/chunker"
	"github.com/richinex/scribe/index"
	"github.com/richinex/scribe/model"
	"github.com/richinex/scribe/storage"
)

// ChunkStore persists ingested chunks. storage.ChunkStore implements it.
type ChunkStore interface {
	SaveChunks(ctx context.Context, chunks []storage.StoredChunk) error
	LoadChunks(ctx context.Context) ([]storage.StoredChunk, error)
	HasHash(ctx context.Context, hash string) (bool, error)
	EmbeddingMeta(ctx context.Context) (storage.EmbeddingMeta, bool, error)
	SetEmbeddingMeta(ctx context.Context, meta storage.EmbeddingMeta) error
}

// DefaultBatchSize is the number of chunks embedded per request.
const DefaultBatchSize = 100

// Extensions ingested when walking directories.
var Extensions = []string{".txt", ".md"}

// IngestStats reports one ingestion run.
type IngestStats struct {
	Files    int           `json:"files"`
	Chunks   int           `json:"chunks"`
	Embedded int           `json:"embedded"`
	Skipped  int           `json:"skipped"`
	Sizes    chunker.Stats `json:"chunk_sizes"`
	Duration time.Duration `json:"duration"`
}

// Ingestor chunks documents, embeds new chunks and adds them to the index
// and, when a store is configured, to persistent storage.
type Ingestor struct {
	chunker   *chunker.Chunker
	retriever *Retriever
	store     ChunkStore
	batchSize int
	logger    zerolog.Logger
}

// IngestorOption configures an Ingestor.
type IngestorOption func(*Ingestor)

// WithBatchSize sets the embedding batch size.
func WithBatchSize(n int) IngestorOption {
	return func(i *Ingestor) {
		if n > 0 {
			i.batchSize = n
		}
	}
}

// WithStore persists ingested chunks.
func WithStore(s ChunkStore) IngestorOption {
	return func(i *Ingestor) { i.store = s }
}

// WithLogger sets the ingestion logger.
func WithLogger(l zerolog.Logger) IngestorOption {
	return func(i *Ingestor) { i.logger = l }
}

// NewIngestor creates an ingestor feeding the retriever's index.
func NewIngestor(c *chunker.Chunker, r *Retriever, opts ...IngestorOption) *Ingestor {
	in := &Ingestor{chunker: c, retriever: r, batchSize: DefaultBatchSize, logger: zerolog.Nop()}
	for _, opt := range opts {
		opt(in)
	}
	return in
}

// ContentHash is the deduplication key of a chunk text.
func ContentHash(text string) string {
	return strconv.FormatUint(xxhash.Sum64String(text), 16)
}

type pending struct {
	piece  chunker.Piece
	source string
	hash   string
}

// IngestPaths ingests files and directories. Directories are walked for
// files with one of Extensions.
func (in *Ingestor) IngestPaths(ctx context.Context, paths ...string) (IngestStats, error) {
	start := time.Now()
	files, err := collectFiles(paths)
	if err != nil {
		return IngestStats{}, err
	}

	var stats IngestStats
	var all []chunker.Piece
	var todo []pending
	seen := make(map[string]struct{})

	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return stats, fmt.Errorf("failed to read %s: %w", f, err)
		}
		stats.Files++
		pieces := in.chunker.Split(string(data))
		all = append(all, pieces...)
		batch, skipped, err := in.filterNew(ctx, f, pieces, seen)
		if err != nil {
			return stats, err
		}
		todo = append(todo, batch...)
		stats.Skipped += skipped
		in.logger.Debug().Str("file", f).Int("chunks", len(pieces)).Msg("chunked")
	}

	stats.Chunks = len(all)
	stats.Sizes = chunker.ComputeStats(all)
	embedded, err := in.embedAndStore(ctx, todo)
	stats.Embedded = embedded
	stats.Skipped += len(todo) - embedded
	stats.Duration = time.Since(start)
	if err != nil {
		return stats, err
	}

	in.logger.Info().
		Int("files", stats.Files).
		Int("chunks", stats.Chunks).
		Int("embedded", stats.Embedded).
		Int("skipped", stats.Skipped).
		Dur("duration", stats.Duration).
		Msg("ingestion complete")
	return stats, nil
}

// IngestText ingests a single in-memory document.
func (in *Ingestor) IngestText(ctx context.Context, sourceID, text string) (IngestStats, error) {
	start := time.Now()
	pieces := in.chunker.Split(text)
	todo, skipped, err := in.filterNew(ctx, sourceID, pieces, make(map[string]struct{}))
	if err != nil {
		return IngestStats{}, err
	}
	embedded, err := in.embedAndStore(ctx, todo)
	return IngestStats{
		Files:    1,
		Chunks:   len(pieces),
		Embedded: embedded,
		Skipped:  skipped + len(todo) - embedded,
		Sizes:    chunker.ComputeStats(pieces),
		Duration: time.Since(start),
	}, err
}

func (in *Ingestor) filterNew(ctx context.Context, source string, pieces []chunker.Piece, seen map[string]struct{}) ([]pending, int, error) {
	var out []pending
	skipped := 0
	for _, p := range pieces {
		hash := ContentHash(p.Text)
		if _, dup := seen[hash]; dup {
			skipped++
			continue
		}
		seen[hash] = struct{}{}
		if in.store != nil {
			stored, err := in.store.HasHash(ctx, hash)
			if err != nil {
				return nil, 0, err
			}
			if stored {
				skipped++
				continue
			}
		}
		out = append(out, pending{piece: p, source: source, hash: hash})
	}
	return out, skipped, nil
}

// embedAndStore embeds todo in batches and returns how many chunks were
// added. Chunks that embed to a zero vector are dropped.
func (in *Ingestor) embedAndStore(ctx context.Context, todo []pending) (int, error) {
	if len(todo) == 0 {
		return 0, nil
	}
	embedder := in.retriever.Embedder()
	if err := in.checkMeta(ctx, embedder); err != nil {
		return 0, err
	}

	added := 0
	for start := 0; start < len(todo); start += in.batchSize {
		end := min(start+in.batchSize, len(todo))
		batch := todo[start:end]

		texts := make([]string, len(batch))
		for i, p := range batch {
			texts[i] = p.piece.Text
		}
		vectors, err := embedder.Embed(ctx, texts)
		if err != nil {
			return added, fmt.Errorf("failed to embed batch: %w", err)
		}
		if len(vectors) != len(batch) {
			return added, fmt.Errorf("embedder returned %d vectors for %d chunks", len(vectors), len(batch))
		}

		chunks := make([]index.Chunk, 0, len(batch))
		stored := make([]storage.StoredChunk, 0, len(batch))
		for i, p := range batch {
			if len(vectors[i]) != in.retriever.Index().Dimension() {
				return added, fmt.Errorf("chunk from %s embedded to %d dimensions, index holds %d: %w",
					p.source, len(vectors[i]), in.retriever.Index().Dimension(), model.ErrDimensionMismatch)
			}
			if _, err := index.Normalize(vectors[i]); err != nil {
				in.logger.Debug().Str("source", p.source).Int("offset", p.piece.Offset).Msg("skipping chunk without features")
				continue
			}
			id := uuid.NewString()
			chunks = append(chunks, index.Chunk{ID: id, Text: p.piece.Text, SourceID: p.source, Offset: p.piece.Offset, Vector: vectors[i]})
			stored = append(stored, storage.StoredChunk{ID: id, SourceID: p.source, Text: p.piece.Text, Offset: p.piece.Offset, Hash: p.hash, Vector: vectors[i]})
		}

		ids, err := in.retriever.Index().InsertBatch(chunks)
		if err != nil {
			return added, err
		}
		if in.store != nil {
			if err := in.store.SaveChunks(ctx, stored); err != nil {
				in.retriever.Index().Delete(ids...)
				return added, err
			}
		}
		added += len(chunks)
	}
	return added, nil
}

// checkMeta records the embedding model on first use and rejects a store
// written by a different model.
func (in *Ingestor) checkMeta(ctx context.Context, e Embedder) error {
	if in.store == nil {
		return nil
	}
	meta, ok, err := in.store.EmbeddingMeta(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return in.store.SetEmbeddingMeta(ctx, storage.EmbeddingMeta{Model: e.ModelName(), Dimension: e.Dimension()})
	}
	return checkCompatible(meta, e)
}

func checkCompatible(meta storage.EmbeddingMeta, e Embedder) error {
	if meta.Dimension != e.Dimension() {
		return fmt.Errorf("stored vectors have %d dimensions, embedder %s produces %d: %w",
			meta.Dimension, e.ModelName(), e.Dimension(), model.ErrDimensionMismatch)
	}
	if meta.Model != e.ModelName() {
		return fmt.Errorf("stored vectors were embedded with %s, not %s: %w",
			meta.Model, e.ModelName(), model.ErrConfiguration)
	}
	return nil
}

func collectFiles(paths []string) ([]string, error) {
	var files []string
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", p, err)
		}
		if !info.IsDir() {
			files = append(files, filepath.Clean(p))
			continue
		}
		err = filepath.WalkDir(p, func(path string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() || !hasExtension(path) {
				return nil
			}
			files = append(files, path)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk %s: %w", p, err)
		}
	}
	return files, nil
}

func hasExtension(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range Extensions {
		if ext == e {
			return true
		}
	}
	return false
}

// Load restores persisted chunks into the retriever's index. A store
// written by a different embedder is a configuration error.
func Load(ctx context.Context, store ChunkStore, r *Retriever) (int, error) {
	meta, ok, err := store.EmbeddingMeta(ctx)
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, nil
	}
	if err := checkCompatible(meta, r.Embedder()); err != nil {
		return 0, fmt.Errorf("%v: %w", err, model.ErrConfiguration)
	}

	stored, err := store.LoadChunks(ctx)
	if err != nil {
		return 0, err
	}
	chunks := make([]index.Chunk, len(stored))
	for i, s := range stored {
		chunks[i] = index.Chunk{ID: s.ID, Text: s.Text, SourceID: s.SourceID, Offset: s.Offset, Vector: s.Vector}
	}
	if _, err := r.Index().InsertBatch(chunks); err != nil {
		return 0, fmt.Errorf("failed to restore index: %w", err)
	}
	return len(chunks), nil
}
