// Package rag implements the retrieval engine: document ingestion with
// chunking and embedding, and nearest-neighbor search over the stored
// chunks.
//
// The engine consumes an embed.Embedder capability and writes to an
// Index. Two index implementations exist: an in-memory index and a
// PostgreSQL/pgvector index for durable storage.
package rag

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"time"
)

// Sentinel errors checked with errors.Is().
var (
	// ErrInvalidArgument indicates a malformed search or ingest argument
	// (e.g. top_k < 1, empty document text).
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrEmbeddingFailure indicates the embedding provider failed.
	// Ingestion is atomic per document: nothing is written on failure.
	ErrEmbeddingFailure = errors.New("embedding failure")
)

// Document is the unit of ingestion.
type Document struct {
	ID       string
	Text     string
	Metadata map[string]string
}

// Chunk is the unit of storage and retrieval. Chunks are immutable once
// stored and carry a back-reference to their parent document.
type Chunk struct {
	ID         string
	DocumentID string
	Text       string
	Metadata   map[string]string
	Embedding  []float32

	// Ordinal is the chunk's position within its document.
	Ordinal int

	// Seq is a monotonically increasing ingestion sequence used to
	// break score ties (most recent first).
	Seq int64

	IngestedAt time.Time
}

// Hit is one search result.
type Hit struct {
	Chunk Chunk
	Score float64
}

// DeriveDocumentID derives a stable document id from content and
// metadata, used when the caller does not supply one. Same text and
// metadata always produce the same id, so re-ingesting identical input
// is idempotent at the id level.
func DeriveDocumentID(text string, metadata map[string]string) string {
	h := sha256.New()
	h.Write([]byte(text))

	keys := make([]string, 0, len(metadata))
	for k := range metadata {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(h, "%s=%s;", k, metadata[k])
	}

	return hex.EncodeToString(h.Sum(nil))[:16]
}
