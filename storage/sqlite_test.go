package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/richinex/scribe/eval"
	"github.com/richinex/scribe/model"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := OpenInMemory()
	if err != nil {
		t.Fatalf("Failed to create storage: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

func TestOpenCreatesFileAndReopens(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "scribe.db")
	ctx := context.Background()

	db, err := Open(path)
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	if err := db.Chunks().SetEmbeddingMeta(ctx, EmbeddingMeta{Model: "hash-64", Dimension: 64}); err != nil {
		t.Fatalf("SetEmbeddingMeta failed: %v", err)
	}
	db.Close()

	db, err = Open(path)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer db.Close()

	meta, ok, err := db.Chunks().EmbeddingMeta(ctx)
	if err != nil || !ok {
		t.Fatalf("EmbeddingMeta: ok=%v err=%v", ok, err)
	}
	if meta.Dimension != 64 || meta.Model != "hash-64" {
		t.Errorf("unexpected meta %+v", meta)
	}
}

func TestChunkStoreSaveLoadOrder(t *testing.T) {
	db := openTestDB(t)
	store := db.Chunks()
	ctx := context.Background()

	first := []StoredChunk{
		{ID: "c1", SourceID: "a.md", Text: "alpha", Offset: 0, Hash: "h1", Vector: []float32{1, 0}},
		{ID: "c2", SourceID: "a.md", Text: "beta", Offset: 5, Hash: "h2", Vector: []float32{0, 1}},
	}
	second := []StoredChunk{
		{ID: "c3", SourceID: "b.md", Text: "gamma", Offset: 0, Hash: "h3", Vector: []float32{0.5, 0.5}},
	}
	if err := store.SaveChunks(ctx, first); err != nil {
		t.Fatalf("SaveChunks failed: %v", err)
	}
	if err := store.SaveChunks(ctx, second); err != nil {
		t.Fatalf("SaveChunks failed: %v", err)
	}

	loaded, err := store.LoadChunks(ctx)
	if err != nil {
		t.Fatalf("LoadChunks failed: %v", err)
	}
	if len(loaded) != 3 {
		t.Fatalf("expected 3 chunks, got %d", len(loaded))
	}
	for i, id := range []string{"c1", "c2", "c3"} {
		if loaded[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, loaded[i].ID)
		}
	}
	if loaded[1].Offset != 5 || loaded[1].Vector[1] != 1 {
		t.Errorf("unexpected chunk %+v", loaded[1])
	}

	has, err := store.HasHash(ctx, "h3")
	if err != nil || !has {
		t.Errorf("expected hash h3 to be present: %v %v", has, err)
	}
	has, _ = store.HasHash(ctx, "missing")
	if has {
		t.Error("expected unknown hash to be absent")
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats != (ChunkStats{Chunks: 3, Sources: 2}) {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestChunkStoreDuplicateIDRollsBack(t *testing.T) {
	db := openTestDB(t)
	store := db.Chunks()
	ctx := context.Background()

	err := store.SaveChunks(ctx, []StoredChunk{
		{ID: "dup", Hash: "a", Vector: []float32{1}},
		{ID: "dup", Hash: "b", Vector: []float32{1}},
	})
	if err == nil {
		t.Fatal("expected duplicate id error")
	}
	stats, _ := store.Stats(ctx)
	if stats.Chunks != 0 {
		t.Errorf("expected rollback, found %d chunks", stats.Chunks)
	}
}

func TestChunkStoreReset(t *testing.T) {
	db := openTestDB(t)
	store := db.Chunks()
	ctx := context.Background()

	if err := store.SaveChunks(ctx, []StoredChunk{{ID: "x", Hash: "h", Vector: []float32{1}}}); err != nil {
		t.Fatalf("SaveChunks failed: %v", err)
	}
	if err := store.SetEmbeddingMeta(ctx, EmbeddingMeta{Model: "m", Dimension: 1}); err != nil {
		t.Fatalf("SetEmbeddingMeta failed: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := store.Reset(ctx); err != nil {
			t.Fatalf("Reset failed: %v", err)
		}
	}
	if _, ok, _ := store.EmbeddingMeta(ctx); ok {
		t.Error("expected embedding meta to be cleared")
	}
	loaded, _ := store.LoadChunks(ctx)
	if len(loaded) != 0 {
		t.Errorf("expected no chunks, got %d", len(loaded))
	}
}

func TestEmbeddingMetaUpsert(t *testing.T) {
	db := openTestDB(t)
	store := db.Chunks()
	ctx := context.Background()

	if _, ok, err := store.EmbeddingMeta(ctx); ok || err != nil {
		t.Fatalf("expected no meta, got ok=%v err=%v", ok, err)
	}
	_ = store.SetEmbeddingMeta(ctx, EmbeddingMeta{Model: "a", Dimension: 8})
	_ = store.SetEmbeddingMeta(ctx, EmbeddingMeta{Model: "b", Dimension: 16})

	meta, _, _ := store.EmbeddingMeta(ctx)
	if meta != (EmbeddingMeta{Model: "b", Dimension: 16}) {
		t.Errorf("unexpected meta %+v", meta)
	}
}

func TestHistoryStoreAppendOrder(t *testing.T) {
	db := openTestDB(t)
	h := db.History()
	ctx := context.Background()

	for _, id := range []string{"t1", "t2", "t3"} {
		e := eval.Entry{TaskID: id, Task: "task " + id, Timestamp: time.Now().UTC(), ToolsUsed: []string{"rag_query"},
			Scores: eval.Scores{Overall: 0.5}}
		if err := h.AppendEntry(ctx, e); err != nil {
			t.Fatalf("AppendEntry failed: %v", err)
		}
	}

	entries, err := h.LoadEntries(ctx)
	if err != nil {
		t.Fatalf("LoadEntries failed: %v", err)
	}
	if len(entries) != 3 || entries[0].TaskID != "t1" || entries[2].TaskID != "t3" {
		t.Fatalf("unexpected entries %+v", entries)
	}
	if entries[1].Scores.Overall != 0.5 || entries[1].ToolsUsed[0] != "rag_query" {
		t.Errorf("entry not round-tripped: %+v", entries[1])
	}
}

func TestOutboxSendQueuesMessage(t *testing.T) {
	db := openTestDB(t)
	o := db.Outbox()
	ctx := context.Background()

	id, err := o.Send(ctx, model.Message{Recipient: "a@b.com", Subject: "News", Body: "<p>hi</p>", HTML: true})
	if err != nil {
		t.Fatalf("Send failed: %v", err)
	}
	if id == "" {
		t.Fatal("expected a delivery id")
	}

	pending, err := o.Pending(ctx)
	if err != nil {
		t.Fatalf("Pending failed: %v", err)
	}
	if len(pending) != 1 || pending[0].DeliveryID != id {
		t.Fatalf("unexpected pending %+v", pending)
	}
	if !pending[0].Message.HTML || pending[0].Message.Recipient != "a@b.com" {
		t.Errorf("unexpected message %+v", pending[0].Message)
	}
}
