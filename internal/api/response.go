package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/arclight-ai/arclight/internal/agent"
	"github.com/arclight-ai/arclight/internal/log"
	"github.com/arclight-ai/arclight/internal/provider"
	"github.com/arclight-ai/arclight/internal/rag"
	"github.com/arclight-ai/arclight/internal/tools"
)

// ErrorResponse is the JSON error body.
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
}

// writeJSON writes a JSON response with the given status code.
// Buffer-first so headers are only sent after successful encoding and a
// proper 500 can be returned if encoding fails.
func writeJSON(w http.ResponseWriter, status int, data any, logger log.Logger) {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(data); err != nil {
		logger.Error("failed to encode JSON response", "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Length", strconv.Itoa(buf.Len()))
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		logger.Debug("failed to write response body", "error", err)
	}
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, code, message string, logger log.Logger) {
	writeJSON(w, status, ErrorResponse{Error: code, Message: message}, logger)
}

// writeDomainError maps domain failures onto status codes and writes
// the error body.
func writeDomainError(w http.ResponseWriter, err error, logger log.Logger) {
	status, code := errorStatus(err)
	writeError(w, status, code, err.Error(), logger)
}

// errorStatus resolves the HTTP status and machine-readable code for a
// domain error.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, agent.ErrUnknownAgent):
		return http.StatusBadRequest, "unknown_agent"
	case errors.Is(err, agent.ErrEmptyMessage):
		return http.StatusBadRequest, "empty_message"
	case errors.Is(err, agent.ErrToolNotEnabled):
		return http.StatusBadRequest, "tool_not_enabled"
	case errors.Is(err, agent.ErrToolChainTooLong):
		return http.StatusBadRequest, "tool_chain_too_long"
	case errors.Is(err, rag.ErrInvalidArgument):
		return http.StatusBadRequest, "invalid_argument"
	case errors.Is(err, rag.ErrEmbeddingFailure):
		return http.StatusBadGateway, "embedding_failure"
	case errors.Is(err, provider.ErrAllProvidersUnavailable):
		return http.StatusBadGateway, "all_providers_unavailable"
	case errors.Is(err, tools.ErrUnknownTool):
		return http.StatusNotFound, "unknown_tool"
	case errors.Is(err, tools.ErrInvalidParameters):
		return http.StatusBadRequest, "invalid_parameters"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// decodeJSON decodes a request body into dst with unknown fields
// rejected and a size cap applied.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
