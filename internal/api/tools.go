package api

import (
	"net/http"

	"github.com/arclight-ai/arclight/internal/log"
	"github.com/arclight-ai/arclight/internal/tools"
)

type toolsHandler struct {
	registry *tools.Registry
	logger   log.Logger
}

// list handles GET /mcp/tools.
func (h *toolsHandler) list(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"tools": h.registry.List()}, h.logger)
}

type executeRequest struct {
	ToolName   string         `json:"tool_name"`
	Parameters map[string]any `json:"parameters,omitempty"`
}

// execute handles POST /mcp/execute.
func (h *toolsHandler) execute(w http.ResponseWriter, r *http.Request) {
	var req executeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error(), h.logger)
		return
	}

	result, err := h.registry.Execute(r.Context(), req.ToolName, req.Parameters)
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, result, h.logger)
}
