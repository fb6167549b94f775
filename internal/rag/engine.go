package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/arclight-ai/arclight/internal/embed"
	"github.com/arclight-ai/arclight/internal/log"
)

// Config holds chunking and search defaults for the engine.
type Config struct {
	ChunkSize    int
	ChunkOverlap int
}

// Engine composes chunking, the embedding provider and an index into
// the retrieval contract: Ingest, Search, Delete, Stats.
//
// Engine is safe for concurrent use if its Index is.
type Engine struct {
	cfg      Config
	embedder embed.Embedder
	index    Index
	logger   log.Logger
}

// NewEngine creates a retrieval engine.
func NewEngine(cfg Config, embedder embed.Embedder, index Index, logger log.Logger) (*Engine, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if index == nil {
		return nil, fmt.Errorf("index is required")
	}
	if cfg.ChunkSize < 1 {
		return nil, fmt.Errorf("%w: chunk size must be >= 1", ErrInvalidArgument)
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		return nil, fmt.Errorf("%w: chunk overlap must be in [0, chunk size)", ErrInvalidArgument)
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Engine{cfg: cfg, embedder: embedder, index: index, logger: logger}, nil
}

// Ingest stores a document. With chunked true the text is split per the
// engine's chunking config; otherwise the whole text becomes a single
// chunk. All chunks are embedded and written atomically: on any failure
// nothing is stored. Returns the document id (derived from content when
// doc.ID is empty).
func (e *Engine) Ingest(ctx context.Context, doc Document, chunked bool) (string, error) {
	if strings.TrimSpace(doc.Text) == "" {
		return "", fmt.Errorf("%w: document text is empty", ErrInvalidArgument)
	}

	docID := doc.ID
	if docID == "" {
		docID = DeriveDocumentID(doc.Text, doc.Metadata)
	}

	var texts []string
	if chunked {
		texts = SplitText(doc.Text, e.cfg.ChunkSize, e.cfg.ChunkOverlap)
	} else {
		texts = []string{doc.Text}
	}
	if len(texts) == 0 {
		return "", fmt.Errorf("%w: document text is empty after chunking", ErrInvalidArgument)
	}

	vectors, err := e.embedder.Embed(ctx, texts)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrEmbeddingFailure, err)
	}
	if len(vectors) != len(texts) {
		return "", fmt.Errorf("%w: got %d vectors for %d chunks", ErrEmbeddingFailure, len(vectors), len(texts))
	}

	// Each ingestion gets its own id segment so re-ingesting a document
	// produces new chunks instead of colliding with the old ones.
	ingestID := uuid.NewString()[:8]

	chunks := make([]Chunk, len(texts))
	for i, text := range texts {
		metadata := make(map[string]string, len(doc.Metadata)+2)
		for k, v := range doc.Metadata {
			metadata[k] = v
		}
		if chunked {
			metadata["chunk_index"] = fmt.Sprintf("%d", i)
			metadata["total_chunks"] = fmt.Sprintf("%d", len(texts))
		}

		chunks[i] = Chunk{
			ID:         fmt.Sprintf("%s_%s_chunk_%d", docID, ingestID, i),
			DocumentID: docID,
			Text:       text,
			Metadata:   metadata,
			Embedding:  vectors[i],
			Ordinal:    i,
		}
	}

	if err := e.index.AddBatch(ctx, chunks); err != nil {
		return "", fmt.Errorf("storing chunks for document %q: %w", docID, err)
	}

	e.logger.Debug("ingested document", "document_id", docID, "chunks", len(chunks), "chunked", chunked)
	return docID, nil
}

// Search embeds the query and returns the topK most similar chunks in
// descending score order. topK must be >= 1.
func (e *Engine) Search(ctx context.Context, query string, topK int) ([]Hit, error) {
	if topK < 1 {
		return nil, fmt.Errorf("%w: top_k must be >= 1, got %d", ErrInvalidArgument, topK)
	}
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("%w: query is empty", ErrInvalidArgument)
	}

	vectors, err := e.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEmbeddingFailure, err)
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("%w: got %d vectors for query", ErrEmbeddingFailure, len(vectors))
	}

	hits, err := e.index.Search(ctx, vectors[0], topK)
	if err != nil {
		return nil, fmt.Errorf("searching index: %w", err)
	}
	return hits, nil
}

// Delete removes all chunks of a document by id. Re-ingested documents
// keep old chunks until deleted explicitly.
func (e *Engine) Delete(ctx context.Context, documentID string) (int, error) {
	if documentID == "" {
		return 0, fmt.Errorf("%w: document id is empty", ErrInvalidArgument)
	}
	deleted, err := e.index.DeleteDocument(ctx, documentID)
	if err != nil {
		return 0, err
	}
	e.logger.Debug("deleted document", "document_id", documentID, "chunks", deleted)
	return deleted, nil
}

// Stats describes the current index.
type Stats struct {
	ChunkCount   int `json:"chunk_count"`
	EmbeddingDim int `json:"embedding_dim"`
}

// Stats returns chunk count and embedding dimension.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	count, err := e.index.Count(ctx)
	if err != nil {
		return Stats{}, err
	}
	return Stats{ChunkCount: count, EmbeddingDim: e.embedder.Dimension()}, nil
}
