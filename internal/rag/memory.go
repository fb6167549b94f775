package rag

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"
)

// MemoryIndex is an in-memory Index using exact cosine similarity.
// Suitable for tests and single-process deployments without Postgres.
//
// MemoryIndex is safe for concurrent use. AddBatch appends under the
// write lock, so an in-flight ingest is never partially visible.
type MemoryIndex struct {
	mu     sync.RWMutex
	chunks []Chunk
	seq    int64
}

// NewMemoryIndex creates an empty in-memory index.
func NewMemoryIndex() *MemoryIndex {
	return &MemoryIndex{}
}

// AddBatch stores all chunks atomically.
func (idx *MemoryIndex) AddBatch(_ context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	dim := len(chunks[0].Embedding)
	for _, c := range chunks {
		if len(c.Embedding) != dim {
			return fmt.Errorf("inconsistent embedding dimensions in batch: %d vs %d", dim, len(c.Embedding))
		}
	}

	idx.mu.Lock()
	defer idx.mu.Unlock()

	if len(idx.chunks) > 0 && len(idx.chunks[0].Embedding) != dim {
		return fmt.Errorf("embedding dimension %d does not match index dimension %d",
			dim, len(idx.chunks[0].Embedding))
	}

	now := time.Now()
	for _, c := range chunks {
		idx.seq++
		c.Seq = idx.seq
		if c.IngestedAt.IsZero() {
			c.IngestedAt = now
		}
		idx.chunks = append(idx.chunks, c)
	}
	return nil
}

// Search returns the topK most similar chunks by cosine similarity,
// descending; ties break most-recent-first.
func (idx *MemoryIndex) Search(_ context.Context, vector []float32, topK int) ([]Hit, error) {
	if topK < 1 {
		return nil, fmt.Errorf("%w: top_k must be >= 1, got %d", ErrInvalidArgument, topK)
	}

	idx.mu.RLock()
	defer idx.mu.RUnlock()

	hits := make([]Hit, 0, len(idx.chunks))
	for _, c := range idx.chunks {
		if len(c.Embedding) != len(vector) {
			return nil, fmt.Errorf("query dimension %d does not match index dimension %d",
				len(vector), len(c.Embedding))
		}
		hits = append(hits, Hit{Chunk: c, Score: cosineSimilarity(vector, c.Embedding)})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].Score != hits[j].Score {
			return hits[i].Score > hits[j].Score
		}
		return hits[i].Chunk.Seq > hits[j].Chunk.Seq
	})

	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits, nil
}

// DeleteDocument removes all chunks belonging to documentID.
func (idx *MemoryIndex) DeleteDocument(_ context.Context, documentID string) (int, error) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	kept := idx.chunks[:0]
	deleted := 0
	for _, c := range idx.chunks {
		if c.DocumentID == documentID {
			deleted++
			continue
		}
		kept = append(kept, c)
	}
	idx.chunks = kept
	return deleted, nil
}

// Count returns the number of stored chunks.
func (idx *MemoryIndex) Count(context.Context) (int, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.chunks), nil
}

// cosineSimilarity computes the cosine of the angle between a and b.
// Zero vectors score 0.
func cosineSimilarity(a, b []float32) float64 {
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
