package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/arclight-ai/arclight/internal/log"
	"github.com/arclight-ai/arclight/internal/rag"
)

type ragHandler struct {
	engine *rag.Engine
	logger log.Logger
}

type ingestRequest struct {
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`

	// Chunk defaults to false when omitted: the whole text is stored
	// as a single chunk unless splitting is requested.
	Chunk bool `json:"chunk,omitempty"`
}

// ingest handles POST /rag/ingest.
func (h *ragHandler) ingest(w http.ResponseWriter, r *http.Request) {
	var req ingestRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error(), h.logger)
		return
	}

	docID, err := h.engine.Ingest(r.Context(), rag.Document{
		Text:     req.Text,
		Metadata: req.Metadata,
	}, req.Chunk)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"document_id": docID}, h.logger)
}

type searchResult struct {
	Document searchDocument `json:"document"`
	Score    float64        `json:"score"`
}

type searchDocument struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// search handles GET /rag/search?query=...&top_k=N.
func (h *ragHandler) search(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")

	topK := 0
	if raw := r.URL.Query().Get("top_k"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid_argument",
				fmt.Sprintf("top_k must be an integer, got %q", raw), h.logger)
			return
		}
		topK = n
	} else {
		topK = 5
	}

	hits, err := h.engine.Search(r.Context(), query, topK)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}

	results := make([]searchResult, len(hits))
	for i, hit := range hits {
		results[i] = searchResult{
			Document: searchDocument{
				ID:       hit.Chunk.DocumentID,
				Text:     hit.Chunk.Text,
				Metadata: hit.Chunk.Metadata,
			},
			Score: hit.Score,
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"results": results}, h.logger)
}

// deleteDocument handles DELETE /rag/documents/{id}.
func (h *ragHandler) deleteDocument(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	deleted, err := h.engine.Delete(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	if deleted == 0 {
		writeError(w, http.StatusNotFound, "not_found", "no chunks for document "+id, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"document_id":    id,
		"deleted_chunks": deleted,
	}, h.logger)
}

// stats handles GET /rag/stats.
func (h *ragHandler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.engine.Stats(r.Context())
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, stats, h.logger)
}
