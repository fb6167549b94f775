package rag

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pgvector/pgvector-go"
)

// PostgresIndex is a pgvector-backed Index. Chunks live in the chunks
// table (see db/migrations); similarity uses the cosine distance
// operator. AddBatch wraps the inserts in one transaction, so a
// concurrent search never sees a partially ingested document.
type PostgresIndex struct {
	pool *pgxpool.Pool
	dim  int
}

// NewPostgresIndex creates an index over an existing pool. dim must
// match the vector column dimension from the migrations.
func NewPostgresIndex(pool *pgxpool.Pool, dim int) *PostgresIndex {
	return &PostgresIndex{pool: pool, dim: dim}
}

// AddBatch inserts all chunks in a single transaction.
func (idx *PostgresIndex) AddBatch(ctx context.Context, chunks []Chunk) error {
	if len(chunks) == 0 {
		return nil
	}

	tx, err := idx.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return fmt.Errorf("beginning chunk insert transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, c := range chunks {
		if len(c.Embedding) != idx.dim {
			return fmt.Errorf("embedding dimension %d does not match index dimension %d",
				len(c.Embedding), idx.dim)
		}

		metadata, err := json.Marshal(c.Metadata)
		if err != nil {
			return fmt.Errorf("marshaling chunk metadata: %w", err)
		}

		// The seq column is a bigserial; ingestion order is the
		// tie-break for equal scores.
		_, err = tx.Exec(ctx, `
			INSERT INTO chunks (id, document_id, content, metadata, ordinal, embedding)
			VALUES ($1, $2, $3, $4, $5, $6::vector)`,
			c.ID, c.DocumentID, c.Text, metadata, c.Ordinal,
			pgvector.NewVector(c.Embedding).String(),
		)
		if err != nil {
			return fmt.Errorf("inserting chunk %q: %w", c.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("committing chunk insert: %w", err)
	}
	return nil
}

// Search runs a cosine similarity query, descending score, recency
// tie-break.
func (idx *PostgresIndex) Search(ctx context.Context, vector []float32, topK int) ([]Hit, error) {
	if topK < 1 {
		return nil, fmt.Errorf("%w: top_k must be >= 1, got %d", ErrInvalidArgument, topK)
	}
	if len(vector) != idx.dim {
		return nil, fmt.Errorf("query dimension %d does not match index dimension %d",
			len(vector), idx.dim)
	}

	rows, err := idx.pool.Query(ctx, `
		SELECT id, document_id, content, metadata, ordinal, seq, ingested_at,
		       1 - (embedding <=> $1::vector) AS score
		FROM chunks
		ORDER BY score DESC, seq DESC
		LIMIT $2`,
		pgvector.NewVector(vector).String(), topK,
	)
	if err != nil {
		return nil, fmt.Errorf("searching chunks: %w", err)
	}
	defer rows.Close()

	var hits []Hit
	for rows.Next() {
		var (
			h        Hit
			metadata []byte
		)
		if err := rows.Scan(
			&h.Chunk.ID, &h.Chunk.DocumentID, &h.Chunk.Text, &metadata,
			&h.Chunk.Ordinal, &h.Chunk.Seq, &h.Chunk.IngestedAt, &h.Score,
		); err != nil {
			return nil, fmt.Errorf("scanning search row: %w", err)
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &h.Chunk.Metadata); err != nil {
				return nil, fmt.Errorf("decoding chunk metadata: %w", err)
			}
		}
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating search rows: %w", err)
	}
	return hits, nil
}

// DeleteDocument removes all chunks of documentID.
func (idx *PostgresIndex) DeleteDocument(ctx context.Context, documentID string) (int, error) {
	tag, err := idx.pool.Exec(ctx, `DELETE FROM chunks WHERE document_id = $1`, documentID)
	if err != nil {
		return 0, fmt.Errorf("deleting chunks for document %q: %w", documentID, err)
	}
	return int(tag.RowsAffected()), nil
}

// Count returns the number of stored chunks.
func (idx *PostgresIndex) Count(ctx context.Context) (int, error) {
	var count int
	if err := idx.pool.QueryRow(ctx, `SELECT count(*) FROM chunks`).Scan(&count); err != nil {
		return 0, fmt.Errorf("counting chunks: %w", err)
	}
	return count, nil
}
