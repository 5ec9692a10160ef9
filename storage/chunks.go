package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/richinex/scribe/index"
)

// StoredChunk is a persisted index entry. Vector is stored as a
// little-endian float32 BLOB.
type StoredChunk struct {
	ID       string
	SourceID string
	Text     string
	Offset   int
	Hash     string
	Vector   []float32
}

// EmbeddingMeta records which embedding model produced the stored vectors.
type EmbeddingMeta struct {
	Model     string `json:"model"`
	Dimension int    `json:"dimension"`
}

// ChunkStats summarises the chunk table.
type ChunkStats struct {
	Chunks  int `json:"chunks"`
	Sources int `json:"sources"`
}

// ChunkStore persists chunks and their vectors.
type ChunkStore struct {
	db *sql.DB
}

// SaveChunks stores chunks in one transaction, after any already stored.
func (s *ChunkStore) SaveChunks(ctx context.Context, chunks []StoredChunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	// Rollback after Commit is a no-op.
	defer func() { _ = tx.Rollback() }()

	var next int64
	if err := tx.QueryRowContext(ctx, "SELECT COALESCE(MAX(seq), -1) + 1 FROM chunks").Scan(&next); err != nil {
		return fmt.Errorf("failed to read chunk sequence: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (id, seq, source_id, text, char_offset, content_hash, vector)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for i, c := range chunks {
		if _, err := stmt.ExecContext(ctx, c.ID, next+int64(i), c.SourceID, c.Text, c.Offset, c.Hash, index.EncodeVector(c.Vector)); err != nil {
			return fmt.Errorf("failed to insert chunk %s: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit chunks: %w", err)
	}
	return nil
}

// LoadChunks returns every stored chunk in insertion order.
func (s *ChunkStore) LoadChunks(ctx context.Context) ([]StoredChunk, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, source_id, text, char_offset, content_hash, vector FROM chunks ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("failed to query chunks: %w", err)
	}
	defer rows.Close()

	var out []StoredChunk
	for rows.Next() {
		var c StoredChunk
		var blob []byte
		if err := rows.Scan(&c.ID, &c.SourceID, &c.Text, &c.Offset, &c.Hash, &blob); err != nil {
			return nil, fmt.Errorf("failed to scan chunk: %w", err)
		}
		if c.Vector, err = index.DecodeVector(blob); err != nil {
			return nil, fmt.Errorf("chunk %s: %w", c.ID, err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

// HasHash reports whether a chunk with the given content hash is stored.
func (s *ChunkStore) HasHash(ctx context.Context, hash string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM chunks WHERE content_hash = ?", hash).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("failed to check chunk hash: %w", err)
	}
	return n > 0, nil
}

// Reset deletes every chunk and the embedding metadata.
func (s *ChunkStore) Reset(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, stmt := range []string{"DELETE FROM chunks", "DELETE FROM embedding_meta"} {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to reset chunks: %w", err)
		}
	}
	return tx.Commit()
}

// Stats returns chunk and distinct source counts.
func (s *ChunkStore) Stats(ctx context.Context) (ChunkStats, error) {
	var st ChunkStats
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1), COUNT(DISTINCT source_id) FROM chunks").Scan(&st.Chunks, &st.Sources)
	if err != nil {
		return ChunkStats{}, fmt.Errorf("failed to read chunk stats: %w", err)
	}
	return st, nil
}

// EmbeddingMeta returns the stored embedding metadata. ok is false when no
// vectors have been stored yet.
func (s *ChunkStore) EmbeddingMeta(ctx context.Context) (meta EmbeddingMeta, ok bool, err error) {
	err = s.db.QueryRowContext(ctx,
		"SELECT model, dimension FROM embedding_meta WHERE id = 1").Scan(&meta.Model, &meta.Dimension)
	if errors.Is(err, sql.ErrNoRows) {
		return EmbeddingMeta{}, false, nil
	}
	if err != nil {
		return EmbeddingMeta{}, false, fmt.Errorf("failed to read embedding metadata: %w", err)
	}
	return meta, true, nil
}

// SetEmbeddingMeta records the embedding model and dimension.
func (s *ChunkStore) SetEmbeddingMeta(ctx context.Context, meta EmbeddingMeta) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO embedding_meta (id, model, dimension) VALUES (1, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET model = excluded.model, dimension = excluded.dimension,
		 updated_at = datetime('now')`,
		meta.Model, meta.Dimension)
	if err != nil {
		return fmt.Errorf("failed to write embedding metadata: %w", err)
	}
	return nil
}
