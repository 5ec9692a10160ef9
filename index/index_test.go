package index

import (
	"fmt"
	"sync"
	"testing"

	"github.com/richinex/scribe/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func newIndex(t *testing.T, dim int) *Index {
	t.Helper()
	idx, err := New(dim)
	require.NoError(t, err)
	return idx
}

func TestNewRejectsNonPositiveDimension(t *testing.T) {
	t.Parallel()

	_, err := New(0)
	require.ErrorIs(t, err, model.ErrConfiguration)
}

func TestInsertedVectorComesBackFirst(t *testing.T) {
	t.Parallel()

	idx := newIndex(t, 3)
	vectors := [][]float32{
		{1, 0, 0},
		{0, 1, 0},
		{0.2, 0.9, 0.1},
		{0, 0, 1},
	}
	var ids []string
	for i, v := range vectors {
		id, err := idx.Insert(Chunk{Text: fmt.Sprintf("chunk %d", i), SourceID: "doc.md", Vector: v})
		require.NoError(t, err)
		ids = append(ids, id)
	}

	results, err := idx.Query([]float32{0.2, 0.9, 0.1}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, ids[2], results[0].Chunk.ID)
	assert.Equal(t, 0, results[0].Rank)
	assert.InDelta(t, 1.0, results[0].Similarity, 1e-6)
	assert.Equal(t, ids[1], results[1].Chunk.ID)
	assert.Equal(t, 1, results[1].Rank)
}

func TestQueryOrderingDescendingAndBoundedByK(t *testing.T) {
	t.Parallel()

	idx := newIndex(t, 2)
	for i := 0; i < 20; i++ {
		_, err := idx.Insert(Chunk{Vector: []float32{float32(i + 1), float32(20 - i)}})
		require.NoError(t, err)
	}

	results, err := idx.Query([]float32{1, 0}, 5)
	require.NoError(t, err)
	require.Len(t, results, 5)
	for i := 1; i < len(results); i++ {
		assert.GreaterOrEqual(t, results[i-1].Similarity, results[i].Similarity)
	}

	all, err := idx.Query([]float32{1, 0}, 100)
	require.NoError(t, err)
	assert.Len(t, all, 20)
}

func TestTiesKeepInsertionOrder(t *testing.T) {
	t.Parallel()

	idx := newIndex(t, 2)
	first, err := idx.Insert(Chunk{Text: "first", Vector: []float32{1, 1}})
	require.NoError(t, err)
	second, err := idx.Insert(Chunk{Text: "second", Vector: []float32{2, 2}})
	require.NoError(t, err)
	third, err := idx.Insert(Chunk{Text: "third", Vector: []float32{3, 3}})
	require.NoError(t, err)

	results, err := idx.Query([]float32{1, 1}, 2)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, first, results[0].Chunk.ID)
	assert.Equal(t, second, results[1].Chunk.ID)

	results, err = idx.Query([]float32{5, 5}, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{first, second, third},
		[]string{results[0].Chunk.ID, results[1].Chunk.ID, results[2].Chunk.ID})
}

func TestDimensionMismatch(t *testing.T) {
	t.Parallel()

	idx := newIndex(t, 4)
	_, err := idx.Insert(Chunk{Vector: []float32{1, 2, 3}})
	require.ErrorIs(t, err, model.ErrDimensionMismatch)

	_, err = idx.Query([]float32{1, 2}, 3)
	require.ErrorIs(t, err, model.ErrDimensionMismatch)
	assert.Zero(t, idx.Len())
}

func TestInsertBatchIsAllOrNothing(t *testing.T) {
	t.Parallel()

	idx := newIndex(t, 2)
	_, err := idx.InsertBatch([]Chunk{
		{Vector: []float32{1, 0}},
		{Vector: []float32{1, 0, 0}},
	})
	require.ErrorIs(t, err, model.ErrDimensionMismatch)
	assert.Zero(t, idx.Len())

	ids, err := idx.InsertBatch([]Chunk{
		{ID: "a", Vector: []float32{1, 0}},
		{ID: "b", Vector: []float32{0, 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, ids)
}

func TestZeroVectorAndDuplicateIDRejected(t *testing.T) {
	t.Parallel()

	idx := newIndex(t, 2)
	_, err := idx.Insert(Chunk{Vector: []float32{0, 0}})
	require.ErrorIs(t, err, model.ErrValidation)

	_, err = idx.Insert(Chunk{ID: "x", Vector: []float32{1, 0}})
	require.NoError(t, err)
	_, err = idx.Insert(Chunk{ID: "x", Vector: []float32{0, 1}})
	require.ErrorIs(t, err, model.ErrValidation)
}

func TestInsertCopiesCallerVector(t *testing.T) {
	t.Parallel()

	idx := newIndex(t, 2)
	v := []float32{1, 0}
	id, err := idx.Insert(Chunk{Vector: v})
	require.NoError(t, err)
	v[0], v[1] = 0, 1

	c, ok := idx.Get(id)
	require.True(t, ok)
	assert.Equal(t, []float32{1, 0}, c.Vector)
}

func TestReturnedVectorsAreCopies(t *testing.T) {
	t.Parallel()

	idx := newIndex(t, 2)
	id, err := idx.Insert(Chunk{Vector: []float32{1, 0}})
	require.NoError(t, err)

	res, err := idx.Query([]float32{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, res, 1)
	res[0].Chunk.Vector[0], res[0].Chunk.Vector[1] = 0, 1

	c, ok := idx.Get(id)
	require.True(t, ok)
	c.Vector[0] = 0

	again, err := idx.Query([]float32{1, 0}, 1)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.InDelta(t, 1.0, again[0].Similarity, 1e-6)
	assert.Equal(t, []float32{1, 0}, again[0].Chunk.Vector)
}

func TestDeleteKeepsOrderAndSources(t *testing.T) {
	t.Parallel()

	idx := newIndex(t, 2)
	ids, err := idx.InsertBatch([]Chunk{
		{Text: "a", SourceID: "docs/a.md", Vector: []float32{1, 1}},
		{Text: "b", SourceID: "docs/b.md", Vector: []float32{1, 1}},
		{Text: "c", SourceID: "docs/a.md", Vector: []float32{1, 1}},
	})
	require.NoError(t, err)

	assert.Equal(t, 1, idx.Delete(ids[1], "missing"))
	assert.Equal(t, 0, idx.Delete(ids[1]))
	assert.Equal(t, 2, idx.Len())
	assert.Equal(t, []SourceStat{{SourceID: "docs/a.md", Chunks: 2}}, idx.Sources("docs/"))

	res, err := idx.Query([]float32{1, 1}, 5)
	require.NoError(t, err)
	require.Len(t, res, 2)
	assert.Equal(t, "a", res[0].Chunk.Text)
	assert.Equal(t, "c", res[1].Chunk.Text)

	assert.Equal(t, 2, idx.Delete(ids...))
	assert.Zero(t, idx.Stats().Sources)
}

func TestResetIsIdempotent(t *testing.T) {
	t.Parallel()

	idx := newIndex(t, 2)
	_, err := idx.Insert(Chunk{SourceID: "a.md", Vector: []float32{1, 0}})
	require.NoError(t, err)

	idx.Reset()
	idx.Reset()
	assert.Zero(t, idx.Len())
	assert.Equal(t, Stats{Dimension: 2}, idx.Stats())

	results, err := idx.Query([]float32{1, 0}, 3)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSourcesByPrefix(t *testing.T) {
	t.Parallel()

	idx := newIndex(t, 2)
	for _, src := range []string{"docs/b.md", "docs/a.md", "docs/a.md", "notes/x.txt"} {
		_, err := idx.Insert(Chunk{SourceID: src, Vector: []float32{1, 1}})
		require.NoError(t, err)
	}

	assert.Equal(t, []SourceStat{{"docs/a.md", 2}, {"docs/b.md", 1}}, idx.Sources("docs/"))
	assert.Equal(t, 3, idx.Stats().Sources)
}

func TestConcurrentQueriesDuringInserts(t *testing.T) {
	t.Parallel()

	idx := newIndex(t, 8)
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 200; i++ {
			v := make([]float32, 8)
			v[i%8] = 1
			_, err := idx.Insert(Chunk{Vector: v})
			assert.NoError(t, err)
		}
	}()

	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			q := []float32{1, 0, 0, 0, 0, 0, 0, 0}
			for i := 0; i < 100; i++ {
				results, err := idx.Query(q, 5)
				assert.NoError(t, err)
				for _, res := range results {
					assert.Len(t, res.Chunk.Vector, 8)
				}
			}
		}()
	}

	wg.Wait()
	assert.Equal(t, 200, idx.Len())
}

func TestVectorBlobRoundTrip(t *testing.T) {
	t.Parallel()

	v := []float32{0.25, -1.5, 3}
	got, err := DecodeVector(EncodeVector(v))
	require.NoError(t, err)
	assert.Equal(t, v, got)

	_, err = DecodeVector([]byte{1, 2, 3})
	require.Error(t, err)
}

func TestCosineSimilarity(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Zero(t, CosineSimilarity([]float32{1}, []float32{1, 2}))
}
