package rag

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arclight-ai/arclight/internal/testutil"
)

const testDim = 8

// unitVec builds a dim-8 unit vector pointing mostly along axis i.
func unitVec(axis int) []float32 {
	v := make([]float32, testDim)
	v[axis%testDim] = 1
	return v
}

func testChunk(id, docID string, ordinal int, axis int) Chunk {
	return Chunk{
		ID:         id,
		DocumentID: docID,
		Text:       "chunk " + id,
		Metadata:   map[string]string{"source": "test"},
		Embedding:  unitVec(axis),
		Ordinal:    ordinal,
	}
}

func TestPostgresIndexAddAndSearch(t *testing.T) {
	tdb, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	idx := NewPostgresIndex(tdb.Pool, testDim)

	require.NoError(t, idx.AddBatch(ctx, []Chunk{
		testChunk("c1", "doc1", 0, 0),
		testChunk("c2", "doc1", 1, 1),
		testChunk("c3", "doc2", 0, 2),
	}))

	hits, err := idx.Search(ctx, unitVec(0), 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)

	// Exact match first, score 1 under cosine similarity.
	assert.Equal(t, "c1", hits[0].Chunk.ID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-5)
	assert.Greater(t, hits[0].Score, hits[1].Score)

	assert.Equal(t, "doc1", hits[0].Chunk.DocumentID)
	assert.Equal(t, map[string]string{"source": "test"}, hits[0].Chunk.Metadata)
	assert.WithinDuration(t, time.Now(), hits[0].Chunk.IngestedAt, time.Minute)
}

func TestPostgresIndexSearchDimensionMismatch(t *testing.T) {
	tdb, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	idx := NewPostgresIndex(tdb.Pool, testDim)

	_, err := idx.Search(context.Background(), make([]float32, testDim+1), 1)
	assert.Error(t, err)
}

func TestPostgresIndexAddBatchAtomic(t *testing.T) {
	tdb, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	idx := NewPostgresIndex(tdb.Pool, testDim)

	bad := testChunk("bad", "doc1", 1, 1)
	bad.Embedding = make([]float32, testDim-1)

	err := idx.AddBatch(ctx, []Chunk{testChunk("ok", "doc1", 0, 0), bad})
	require.Error(t, err)

	// The failed batch left nothing behind.
	count, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestPostgresIndexDeleteDocument(t *testing.T) {
	tdb, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	idx := NewPostgresIndex(tdb.Pool, testDim)

	require.NoError(t, idx.AddBatch(ctx, []Chunk{
		testChunk("c1", "doc1", 0, 0),
		testChunk("c2", "doc1", 1, 1),
		testChunk("c3", "doc2", 0, 2),
	}))

	removed, err := idx.DeleteDocument(ctx, "doc1")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)

	count, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	// Deleting an unknown document is not an error.
	removed, err = idx.DeleteDocument(ctx, "missing")
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestPostgresIndexRecencyTieBreak(t *testing.T) {
	tdb, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	idx := NewPostgresIndex(tdb.Pool, testDim)

	// Identical embeddings, separate batches so seq differs.
	require.NoError(t, idx.AddBatch(ctx, []Chunk{testChunk("old", "doc1", 0, 0)}))
	require.NoError(t, idx.AddBatch(ctx, []Chunk{testChunk("new", "doc2", 0, 0)}))

	hits, err := idx.Search(ctx, unitVec(0), 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "new", hits[0].Chunk.ID)
	assert.Equal(t, "old", hits[1].Chunk.ID)
}
