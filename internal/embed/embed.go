// Package embed defines the embedding provider capability consumed by
// the retrieval engine. The core never computes embeddings itself.
package embed

import "context"

// Embedder converts texts into fixed-dimension vectors.
// Implementations must be safe for concurrent use, return one vector per
// input text in input order, and produce identical vectors for
// identical inputs (retrieval determinism depends on it).
type Embedder interface {
	// Embed embeds a batch of texts.
	Embed(ctx context.Context, texts []string) ([][]float32, error)

	// Dimension returns the vector dimensionality. All vectors compared
	// in one search must share it.
	Dimension() int
}
