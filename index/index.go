// Package index provides the in-memory embedding index used for retrieval.
//
// Information Hiding:
// - Vector normalisation and similarity math hidden
// - Top-k selection strategy hidden
// - Locking discipline hidden; all methods are safe for concurrent use
package index

import (
	"container/heap"
	"fmt"
	"slices"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/richinex/scribe/internal/dsa"
	"github.com/richinex/scribe/model"
)

// ═══════════════════════════════════════════════════════════════════════════════
// TYPES
// ═══════════════════════════════════════════════════════════════════════════════

// Chunk is a unit of embedded source text.
type Chunk struct {
	ID       string    `json:"id"`
	Text     string    `json:"text"`
	SourceID string    `json:"source_id"`
	Offset   int       `json:"char_offset"`
	Vector   []float32 `json:"-"`
}

// Result is one ranked hit of a query. Rank is zero-based.
type Result struct {
	Chunk      Chunk   `json:"chunk"`
	Similarity float64 `json:"similarity"`
	Rank       int     `json:"rank"`
}

// Stats summarises the index contents.
type Stats struct {
	Chunks    int `json:"chunks"`
	Sources   int `json:"sources"`
	Dimension int `json:"dimension"`
}

// SourceStat is the number of chunks stored for one source.
type SourceStat struct {
	SourceID string `json:"source_id"`
	Chunks   int    `json:"chunks"`
}

type entry struct {
	chunk Chunk // Vector is unit length
	seq   uint64
}

// ═══════════════════════════════════════════════════════════════════════════════
// INDEX
// ═══════════════════════════════════════════════════════════════════════════════

// Index stores unit-length vectors of a fixed dimension and answers
// brute-force cosine nearest-neighbour queries.
type Index struct {
	mu      sync.RWMutex
	dim     int
	entries []*entry // insertion order
	byID    map[string]*entry
	sources *dsa.Trie[int]
	nextSeq uint64
}

// New creates an empty index for vectors of the given dimension.
func New(dimension int) (*Index, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("index dimension must be positive, got %d: %w", dimension, model.ErrConfiguration)
	}
	return &Index{
		dim:     dimension,
		byID:    make(map[string]*entry),
		sources: dsa.NewTrie[int](),
	}, nil
}

// Dimension returns the fixed vector dimension.
func (idx *Index) Dimension() int {
	return idx.dim
}

// Insert stores a chunk and returns its ID. A missing ID is generated.
func (idx *Index) Insert(c Chunk) (string, error) {
	prepared, err := idx.prepare(c)
	if err != nil {
		return "", err
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, exists := idx.byID[prepared.ID]; exists {
		return "", fmt.Errorf("chunk %q already indexed: %w", prepared.ID, model.ErrValidation)
	}
	idx.add(prepared)
	return prepared.ID, nil
}

// InsertBatch stores all chunks or none of them.
func (idx *Index) InsertBatch(chunks []Chunk) ([]string, error) {
	prepared := make([]Chunk, 0, len(chunks))
	seen := make(map[string]struct{}, len(chunks))
	for i, c := range chunks {
		p, err := idx.prepare(c)
		if err != nil {
			return nil, fmt.Errorf("chunk %d: %w", i, err)
		}
		if _, dup := seen[p.ID]; dup {
			return nil, fmt.Errorf("chunk %q repeated in batch: %w", p.ID, model.ErrValidation)
		}
		seen[p.ID] = struct{}{}
		prepared = append(prepared, p)
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	for _, p := range prepared {
		if _, exists := idx.byID[p.ID]; exists {
			return nil, fmt.Errorf("chunk %q already indexed: %w", p.ID, model.ErrValidation)
		}
	}
	ids := make([]string, len(prepared))
	for i, p := range prepared {
		idx.add(p)
		ids[i] = p.ID
	}
	return ids, nil
}

// prepare validates and normalises outside the lock so that readers never
// observe a partially written vector.
func (idx *Index) prepare(c Chunk) (Chunk, error) {
	if len(c.Vector) != idx.dim {
		return Chunk{}, fmt.Errorf("vector has %d dimensions, index expects %d: %w",
			len(c.Vector), idx.dim, model.ErrDimensionMismatch)
	}
	unit, err := Normalize(c.Vector)
	if err != nil {
		return Chunk{}, fmt.Errorf("chunk vector: %v: %w", err, model.ErrValidation)
	}
	c.Vector = unit
	if c.ID == "" {
		c.ID = uuid.NewString()
	}
	return c, nil
}

// snapshot returns the stored chunk with its own copy of the vector.
func (e *entry) snapshot() Chunk {
	c := e.chunk
	c.Vector = slices.Clone(e.chunk.Vector)
	return c
}

// add must be called with the write lock held.
func (idx *Index) add(c Chunk) {
	e := &entry{chunk: c, seq: idx.nextSeq}
	idx.nextSeq++
	idx.entries = append(idx.entries, e)
	idx.byID[c.ID] = e
	idx.sources.Update(c.SourceID, func(n int) int { return n + 1 })
}

// Query returns at most k chunks ordered by descending cosine similarity.
// Ties keep insertion order.
func (idx *Index) Query(vector []float32, k int) ([]Result, error) {
	if len(vector) != idx.dim {
		return nil, fmt.Errorf("query has %d dimensions, index expects %d: %w",
			len(vector), idx.dim, model.ErrDimensionMismatch)
	}
	if k <= 0 {
		return []Result{}, nil
	}
	unit, err := Normalize(vector)
	if err != nil {
		// A zero query vector is similar to nothing.
		return []Result{}, nil
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	h := make(resultHeap, 0, min(k, len(idx.entries)))
	for _, e := range idx.entries {
		cand := scored{entry: e, sim: dot(unit, e.chunk.Vector)}
		if h.Len() < k {
			heap.Push(&h, cand)
			continue
		}
		if worse(h[0], cand) {
			h[0] = cand
			heap.Fix(&h, 0)
		}
	}

	sort.Slice(h, func(i, j int) bool { return worse(h[j], h[i]) })
	out := make([]Result, len(h))
	for i, s := range h {
		out[i] = Result{Chunk: s.entry.snapshot(), Similarity: s.sim, Rank: i}
	}
	return out, nil
}

// Get returns a chunk by ID.
func (idx *Index) Get(id string) (Chunk, bool) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	e, ok := idx.byID[id]
	if !ok {
		return Chunk{}, false
	}
	return e.snapshot(), true
}

// Delete removes the chunks with the given IDs and returns how many were
// present. Survivors keep their insertion order.
func (idx *Index) Delete(ids ...string) int {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	drop := make(map[*entry]struct{}, len(ids))
	for _, id := range ids {
		e, ok := idx.byID[id]
		if !ok {
			continue
		}
		drop[e] = struct{}{}
		delete(idx.byID, id)
		source := e.chunk.SourceID
		if n, _ := idx.sources.Get(source); n <= 1 {
			idx.sources.Delete(source)
		} else {
			idx.sources.Insert(source, n-1)
		}
	}
	if len(drop) == 0 {
		return 0
	}
	idx.entries = slices.DeleteFunc(idx.entries, func(e *entry) bool {
		_, ok := drop[e]
		return ok
	})
	return len(drop)
}

// Reset drops every stored vector. Calling it on an empty index is a no-op.
func (idx *Index) Reset() {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.entries = nil
	idx.byID = make(map[string]*entry)
	idx.sources.Clear()
}

// Len returns the number of stored chunks.
func (idx *Index) Len() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.entries)
}

// Stats returns a summary of the index contents.
func (idx *Index) Stats() Stats {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return Stats{
		Chunks:    len(idx.entries),
		Sources:   idx.sources.Len(),
		Dimension: idx.dim,
	}
}

// Sources lists the sources whose ID starts with prefix, sorted by ID.
func (idx *Index) Sources(prefix string) []SourceStat {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	matches := idx.sources.WithPrefix(prefix)
	out := make([]SourceStat, len(matches))
	for i, m := range matches {
		out[i] = SourceStat{SourceID: m.Key, Chunks: m.Value}
	}
	return out
}

// ═══════════════════════════════════════════════════════════════════════════════
// TOP-K SELECTION
// ═══════════════════════════════════════════════════════════════════════════════

type scored struct {
	entry *entry
	sim   float64
}

// worse reports whether a ranks below b: lower similarity, or equal
// similarity and inserted later.
func worse(a, b scored) bool {
	if a.sim != b.sim {
		return a.sim < b.sim
	}
	return a.entry.seq > b.entry.seq
}

// resultHeap keeps the worst retained candidate at the root.
type resultHeap []scored

func (h resultHeap) Len() int           { return len(h) }
func (h resultHeap) Less(i, j int) bool { return worse(h[i], h[j]) }
func (h resultHeap) Swap(i, j int)      { h[i], h[j] = h[j], h[i] }

func (h *resultHeap) Push(x any) {
	*h = append(*h, x.(scored))
}

func (h *resultHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
