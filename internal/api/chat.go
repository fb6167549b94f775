package api

import (
	"fmt"
	"net/http"

	"github.com/arclight-ai/arclight/internal/agent"
	"github.com/arclight-ai/arclight/internal/log"
)

type chatHandler struct {
	manager       *agent.Manager
	maxMessageLen int
	logger        log.Logger
}

type chatRequest struct {
	Message     string   `json:"message"`
	AgentID     string   `json:"agent_id"`
	Temperature *float32 `json:"temperature,omitempty"`
	ClientID    string   `json:"client_id,omitempty"`
}

// chat handles POST /chat.
func (h *chatHandler) chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", err.Error(), h.logger)
		return
	}
	if len(req.Message) > h.maxMessageLen {
		writeError(w, http.StatusBadRequest, "message_too_long",
			fmt.Sprintf("message exceeds %d bytes", h.maxMessageLen), h.logger)
		return
	}

	resp, err := h.manager.Chat(r.Context(), agent.ChatRequest{
		ClientID:    req.ClientID,
		AgentID:     req.AgentID,
		Message:     req.Message,
		Temperature: req.Temperature,
	})
	if err != nil {
		writeDomainError(w, err, h.logger)
		return
	}
	writeJSON(w, http.StatusOK, resp, h.logger)
}

// listAgents handles GET /agents.
func (h *chatHandler) listAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"agents": h.manager.ListAgents()}, h.logger)
}
