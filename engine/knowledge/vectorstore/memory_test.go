package vectorstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumflare/lumflare/engine/core"
)

func seedDocument(t *testing.T, ctx context.Context, store Store, ownerID string, fileName string) core.ID {
	t.Helper()
	id, err := store.AddDocument(ctx, &Document{OwnerID: ownerID, FileName: fileName})
	require.NoError(t, err)
	require.False(t, id.IsZero())
	return id
}

func TestMemoryStoreDocuments(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(&Config{ID: "mem", Dimension: 3, OwnerFilterMaxIDs: 10})

	t.Run("Should assign an ID and timestamps on add", func(t *testing.T) {
		doc := &Document{OwnerID: "teacher-1", FileName: "syllabus.pdf", FileType: "pdf"}
		id, err := store.AddDocument(ctx, doc)
		require.NoError(t, err)
		assert.False(t, id.IsZero())
		assert.False(t, doc.CreatedAt.IsZero())
		assert.Equal(t, doc.CreatedAt, doc.UpdatedAt)
		assert.Zero(t, doc.ChunkCount)
	})

	t.Run("Should reject a document without an owner", func(t *testing.T) {
		_, err := store.AddDocument(ctx, &Document{FileName: "orphan.txt"})
		require.Error(t, err)
	})

	t.Run("Should return nil for an unknown document", func(t *testing.T) {
		doc, err := store.GetDocument(ctx, core.ID("missing"))
		require.NoError(t, err)
		assert.Nil(t, doc)
	})

	t.Run("Should list only the owner's documents", func(t *testing.T) {
		seedDocument(t, ctx, store, "teacher-2", "notes.md")
		docs, err := store.ListDocuments(ctx, "teacher-2")
		require.NoError(t, err)
		require.Len(t, docs, 1)
		assert.Equal(t, "notes.md", docs[0].FileName)
	})

	t.Run("Should not alias stored metadata", func(t *testing.T) {
		meta := map[string]any{"subject": "math"}
		doc := &Document{OwnerID: "teacher-3", FileName: "meta.txt", Metadata: meta}
		id, err := store.AddDocument(ctx, doc)
		require.NoError(t, err)
		meta["subject"] = "history"
		stored, err := store.GetDocument(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, stored)
		assert.Equal(t, "math", stored.Metadata["subject"])
	})
}

func TestMemoryStoreChunks(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(&Config{ID: "mem", Dimension: 3, OwnerFilterMaxIDs: 10})
	docID := seedDocument(t, ctx, store, "teacher-1", "lesson.txt")

	t.Run("Should fail before writing when lengths mismatch", func(t *testing.T) {
		err := store.AddChunks(ctx, docID, []Chunk{{Text: "a"}, {Text: "b"}}, [][]float32{{1, 0, 0}})
		require.Error(t, err)
		doc, getErr := store.GetDocument(ctx, docID)
		require.NoError(t, getErr)
		assert.Zero(t, doc.ChunkCount)
	})

	t.Run("Should fail before writing when a vector dimension mismatches", func(t *testing.T) {
		err := store.AddChunks(
			ctx,
			docID,
			[]Chunk{{Text: "a"}, {Text: "b"}},
			[][]float32{{1, 0, 0}, {1, 0}},
		)
		require.Error(t, err)
		doc, getErr := store.GetDocument(ctx, docID)
		require.NoError(t, getErr)
		assert.Zero(t, doc.ChunkCount)
	})

	t.Run("Should fail when the parent document does not exist", func(t *testing.T) {
		err := store.AddChunks(ctx, core.ID("missing"), []Chunk{{Text: "a"}}, [][]float32{{1, 0, 0}})
		require.Error(t, err)
	})

	t.Run("Should persist chunks and update the parent count", func(t *testing.T) {
		chunks := []Chunk{
			{Index: 0, Text: "first", CharCount: 5},
			{Index: 1, Text: "second", CharCount: 6},
		}
		vectors := [][]float32{{1, 0, 0}, {0, 1, 0}}
		require.NoError(t, store.AddChunks(ctx, docID, chunks, vectors))
		doc, err := store.GetDocument(ctx, docID)
		require.NoError(t, err)
		assert.Equal(t, 2, doc.ChunkCount)
		assert.True(t, doc.UpdatedAt.After(doc.CreatedAt) || doc.UpdatedAt.Equal(doc.CreatedAt))
	})

	t.Run("Should delete chunks together with the document", func(t *testing.T) {
		require.NoError(t, store.DeleteDocument(ctx, docID))
		doc, err := store.GetDocument(ctx, docID)
		require.NoError(t, err)
		assert.Nil(t, doc)
		results, err := store.SearchSimilar(ctx, []float32{1, 0, 0}, SearchOptions{OwnerID: "teacher-1"})
		require.NoError(t, err)
		assert.Empty(t, results)
		assert.NoError(t, store.DeleteDocument(ctx, docID))
	})
}

func TestMemoryStoreSearch(t *testing.T) {
	ctx := context.Background()
	store := newMemoryStore(&Config{ID: "mem", Dimension: 3, OwnerFilterMaxIDs: 10})
	docID := seedDocument(t, ctx, store, "teacher-1", "lesson.txt")
	otherID := seedDocument(t, ctx, store, "teacher-9", "other.txt")
	require.NoError(t, store.AddChunks(
		ctx,
		docID,
		[]Chunk{
			{ID: core.ID("chunk-a"), Index: 0, Text: "close match"},
			{ID: core.ID("chunk-b"), Index: 1, Text: "orthogonal"},
			{ID: core.ID("chunk-c"), Index: 2, Text: "failed embedding"},
		},
		[][]float32{{1, 0, 0}, {0, 1, 0}, {0, 0, 0}},
	))
	require.NoError(t, store.AddChunks(
		ctx,
		otherID,
		[]Chunk{{ID: core.ID("chunk-z"), Index: 0, Text: "someone else's"}},
		[][]float32{{1, 0, 0}},
	))

	t.Run("Should reject a query with the wrong dimension", func(t *testing.T) {
		_, err := store.SearchSimilar(ctx, []float32{1, 0}, SearchOptions{OwnerID: "teacher-1"})
		require.Error(t, err)
	})

	t.Run("Should return nothing for an owner without documents", func(t *testing.T) {
		results, err := store.SearchSimilar(ctx, []float32{1, 0, 0}, SearchOptions{OwnerID: "nobody"})
		require.NoError(t, err)
		assert.Empty(t, results)
	})

	t.Run("Should rank results by descending similarity within the owner", func(t *testing.T) {
		results, err := store.SearchSimilar(ctx, []float32{1, 0, 0}, SearchOptions{OwnerID: "teacher-1", TopK: 5})
		require.NoError(t, err)
		require.Len(t, results, 3)
		assert.Equal(t, core.ID("chunk-a"), results[0].ChunkID)
		assert.Equal(t, core.ID("chunk-b"), results[1].ChunkID)
		assert.Equal(t, core.ID("chunk-c"), results[2].ChunkID)
		assert.Greater(t, results[0].Score, results[1].Score)
	})

	t.Run("Should keep zero-vector chunks at the default score floor", func(t *testing.T) {
		// A zero vector marks a chunk whose embedding call failed. It scores
		// 0.0 against any query, which still clears a MinScore of 0.
		results, err := store.SearchSimilar(ctx, []float32{0, 0, 1}, SearchOptions{OwnerID: "teacher-1", TopK: 5})
		require.NoError(t, err)
		require.Len(t, results, 3)
		for _, result := range results {
			assert.Zero(t, result.Score)
		}
	})

	t.Run("Should skip chunks without a stored embedding", func(t *testing.T) {
		bareStore := newMemoryStore(&Config{ID: "mem", Dimension: 3, OwnerFilterMaxIDs: 10})
		bareDoc := seedDocument(t, ctx, bareStore, "teacher-1", "bare.txt")
		require.NoError(t, bareStore.AddChunks(
			ctx,
			bareDoc,
			[]Chunk{{ID: core.ID("chunk-embedded"), Index: 0, Text: "embedded"}},
			[][]float32{{1, 0, 0}},
		))
		// Snapshots written before an embedding backfill can hold chunks with
		// no vector at all. Those are skipped, not scored as zero.
		bareStore.chunks[core.ID("chunk-bare")] = Chunk{
			ID:         core.ID("chunk-bare"),
			DocumentID: bareDoc,
			Index:      1,
			Text:       "never embedded",
		}
		results, err := bareStore.SearchSimilar(ctx, []float32{1, 0, 0}, SearchOptions{OwnerID: "teacher-1", TopK: 5})
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, core.ID("chunk-embedded"), results[0].ChunkID)
	})

	t.Run("Should drop results below the minimum score", func(t *testing.T) {
		results, err := store.SearchSimilar(
			ctx,
			[]float32{1, 0, 0},
			SearchOptions{OwnerID: "teacher-1", TopK: 5, MinScore: 0.5},
		)
		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, core.ID("chunk-a"), results[0].ChunkID)
	})

	t.Run("Should truncate to top k", func(t *testing.T) {
		results, err := store.SearchSimilar(ctx, []float32{1, 0, 0}, SearchOptions{OwnerID: "teacher-1", TopK: 1})
		require.NoError(t, err)
		require.Len(t, results, 1)
	})

	t.Run("Should break score ties by ascending chunk ID", func(t *testing.T) {
		tieStore := newMemoryStore(&Config{ID: "mem", Dimension: 3, OwnerFilterMaxIDs: 10})
		tieDoc := seedDocument(t, ctx, tieStore, "teacher-1", "ties.txt")
		require.NoError(t, tieStore.AddChunks(
			ctx,
			tieDoc,
			[]Chunk{
				{ID: core.ID("chunk-b"), Index: 1, Text: "second"},
				{ID: core.ID("chunk-a"), Index: 0, Text: "first"},
			},
			[][]float32{{1, 0, 0}, {1, 0, 0}},
		))
		results, err := tieStore.SearchSimilar(ctx, []float32{1, 0, 0}, SearchOptions{OwnerID: "teacher-1"})
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, core.ID("chunk-a"), results[0].ChunkID)
		assert.Equal(t, core.ID("chunk-b"), results[1].ChunkID)
	})

	t.Run("Should fall back to an owner scan when the document set is large", func(t *testing.T) {
		scanStore := newMemoryStore(&Config{ID: "mem", Dimension: 3, OwnerFilterMaxIDs: 2})
		for i := 0; i < 3; i++ {
			id := seedDocument(t, ctx, scanStore, "teacher-1", "doc.txt")
			require.NoError(t, scanStore.AddChunks(
				ctx,
				id,
				[]Chunk{{Index: 0, Text: "chunk"}},
				[][]float32{{1, 0, 0}},
			))
		}
		results, err := scanStore.SearchSimilar(ctx, []float32{1, 0, 0}, SearchOptions{OwnerID: "teacher-1", TopK: 10})
		require.NoError(t, err)
		assert.Len(t, results, 3)
	})

	t.Run("Should scan all chunks when no owner filter is set", func(t *testing.T) {
		results, err := store.SearchSimilar(ctx, []float32{1, 0, 0}, SearchOptions{TopK: 10})
		require.NoError(t, err)
		assert.Len(t, results, 4)
	})
}
