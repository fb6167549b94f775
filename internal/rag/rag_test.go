package rag

import (
	"context"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitText(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		size    int
		overlap int
		want    []string
	}{
		{"short text single chunk", "hello world", 100, 10, []string{"hello world"}},
		{"word boundary backoff", "abc def ghi", 8, 0, []string{"abc def", "ghi"}},
		{"empty", "", 10, 0, nil},
		{"spaces only", "    ", 10, 0, nil},
		{"exact fit", "abcd", 4, 0, []string{"abcd"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, SplitText(tt.text, tt.size, tt.overlap))
		})
	}
}

func TestSplitTextDeterministic(t *testing.T) {
	text := "the quick brown fox jumps over the lazy dog and keeps on running through the field"
	first := SplitText(text, 20, 5)
	for range 10 {
		assert.Equal(t, first, SplitText(text, 20, 5))
	}
}

func TestSplitTextOverlap(t *testing.T) {
	text := "aaaa bbbb cccc dddd eeee"
	chunks := SplitText(text, 10, 5)
	require.Greater(t, len(chunks), 1)

	// Every character of the input is covered by some chunk.
	joined := ""
	for _, c := range chunks {
		joined += c + " "
	}
	for _, word := range []string{"aaaa", "bbbb", "cccc", "dddd", "eeee"} {
		assert.Contains(t, joined, word)
	}
}

func TestSplitTextForcedProgressOnLongWord(t *testing.T) {
	// A single word longer than the chunk size must not loop forever.
	text := "abcdefghijklmnopqrstuvwxyz"
	chunks := SplitText(text, 5, 4)
	assert.NotEmpty(t, chunks)
}

func TestSplitTextKeepsRunesIntact(t *testing.T) {
	// Multi-byte text with no spaces: boundaries must land on rune starts.
	text := strings.Repeat("你好世界", 8)
	for _, size := range []int{4, 5, 7, 10} {
		chunks := SplitText(text, size, 0)
		require.NotEmpty(t, chunks)
		var rebuilt strings.Builder
		for _, c := range chunks {
			assert.True(t, utf8.ValidString(c), "size %d produced invalid UTF-8: %q", size, c)
			rebuilt.WriteString(c)
		}
		assert.Equal(t, text, rebuilt.String(), "size %d lost content", size)
	}
}

func TestDeriveDocumentID(t *testing.T) {
	id1 := DeriveDocumentID("some text", map[string]string{"a": "1", "b": "2"})
	id2 := DeriveDocumentID("some text", map[string]string{"b": "2", "a": "1"})
	id3 := DeriveDocumentID("other text", nil)

	assert.Equal(t, id1, id2, "metadata order must not affect the id")
	assert.NotEqual(t, id1, id3)
	assert.Len(t, id1, 16)
}

func vec(vals ...float32) []float32 { return vals }

func TestMemoryIndexSearchOrdering(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()

	require.NoError(t, idx.AddBatch(ctx, []Chunk{
		{ID: "far", DocumentID: "d1", Embedding: vec(0, 1)},
		{ID: "close", DocumentID: "d1", Embedding: vec(1, 0.1)},
		{ID: "exact", DocumentID: "d1", Embedding: vec(1, 0)},
	}))

	hits, err := idx.Search(ctx, vec(1, 0), 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "exact", hits[0].Chunk.ID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-9)
	assert.Equal(t, "close", hits[1].Chunk.ID)
}

func TestMemoryIndexTieBreakMostRecentFirst(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()

	require.NoError(t, idx.AddBatch(ctx, []Chunk{{ID: "older", DocumentID: "d1", Embedding: vec(1, 0)}}))
	require.NoError(t, idx.AddBatch(ctx, []Chunk{{ID: "newer", DocumentID: "d2", Embedding: vec(1, 0)}}))

	hits, err := idx.Search(ctx, vec(1, 0), 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "newer", hits[0].Chunk.ID)
	assert.Equal(t, "older", hits[1].Chunk.ID)
}

func TestMemoryIndexRejectsMixedDimensions(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()

	err := idx.AddBatch(ctx, []Chunk{
		{ID: "a", Embedding: vec(1, 0)},
		{ID: "b", Embedding: vec(1, 0, 0)},
	})
	require.Error(t, err)

	// Nothing from the failed batch is visible.
	count, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, count)

	require.NoError(t, idx.AddBatch(ctx, []Chunk{{ID: "a", Embedding: vec(1, 0)}}))
	err = idx.AddBatch(ctx, []Chunk{{ID: "c", Embedding: vec(1, 0, 0)}})
	assert.Error(t, err, "batch dimension must match the index")
}

func TestMemoryIndexDeleteDocument(t *testing.T) {
	idx := NewMemoryIndex()
	ctx := context.Background()

	require.NoError(t, idx.AddBatch(ctx, []Chunk{
		{ID: "a1", DocumentID: "keep", Embedding: vec(1, 0)},
		{ID: "b1", DocumentID: "drop", Embedding: vec(0, 1)},
		{ID: "b2", DocumentID: "drop", Embedding: vec(0, 1)},
	}))

	deleted, err := idx.DeleteDocument(ctx, "drop")
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	count, err := idx.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	deleted, err = idx.DeleteDocument(ctx, "drop")
	require.NoError(t, err)
	assert.Zero(t, deleted)
}

func TestMemoryIndexSearchInvalidTopK(t *testing.T) {
	idx := NewMemoryIndex()
	_, err := idx.Search(context.Background(), vec(1, 0), 0)
	assert.ErrorIs(t, err, ErrInvalidArgument)
}
