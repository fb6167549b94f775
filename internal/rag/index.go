package rag

import "context"

// Index stores embedded chunks and answers nearest-neighbor queries.
//
// Implementations must be safe for concurrent ingests and searches, and
// AddBatch must be atomic: a search running concurrently with an ingest
// never observes a subset of that ingest's chunks.
type Index interface {
	// AddBatch stores all chunks or none.
	AddBatch(ctx context.Context, chunks []Chunk) error

	// Search returns the topK most similar chunks in descending score
	// order. Ties break by most recent ingestion first. The ordering is
	// deterministic for a fixed corpus and query vector.
	Search(ctx context.Context, vector []float32, topK int) ([]Hit, error)

	// DeleteDocument removes all chunks of a document, returning how
	// many were deleted.
	DeleteDocument(ctx context.Context, documentID string) (int, error)

	// Count returns the number of stored chunks.
	Count(ctx context.Context) (int, error)
}
