package ws

import (
	"context"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/arclight-ai/arclight/internal/agent"
	"github.com/arclight-ai/arclight/internal/log"
)

// Chatter runs chat turns. Implemented by agent.Manager.
type Chatter interface {
	Chat(ctx context.Context, req agent.ChatRequest) (*agent.ChatResponse, error)
	DropConversations(clientID string)
}

// Config adjusts hub behavior.
type Config struct {
	// DefaultAgent serves message envelopes that name no agent.
	DefaultAgent string

	// MaxMessageLen caps inbound message content length in bytes.
	// Zero means 64 KiB.
	MaxMessageLen int

	// CheckOrigin overrides the upgrader origin policy. Nil accepts
	// same-origin only per gorilla defaults.
	CheckOrigin func(r *http.Request) bool
}

// Hub upgrades connections and tracks one live session per client id.
// A new connection for an id already in use replaces the old session.
type Hub struct {
	chatter  Chatter
	cfg      Config
	upgrader websocket.Upgrader
	logger   log.Logger

	mu      sync.Mutex
	clients map[string]*session
}

// NewHub creates a hub over the chat manager.
func NewHub(chatter Chatter, cfg Config, logger log.Logger) *Hub {
	if logger == nil {
		logger = log.NewNop()
	}
	if cfg.MaxMessageLen <= 0 {
		cfg.MaxMessageLen = 64 << 10
	}
	return &Hub{
		chatter: chatter,
		cfg:     cfg,
		logger:  logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     cfg.CheckOrigin,
		},
		clients: make(map[string]*session),
	}
}

// ServeHTTP handles GET /ws/{client_id}.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	clientID := r.PathValue("client_id")
	if clientID == "" {
		http.Error(w, "client id is required", http.StatusBadRequest)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error.
		h.logger.Warn("websocket upgrade failed", "client", clientID, "error", err)
		return
	}

	s := newSession(h, clientID, conn)
	h.register(s)

	s.enqueueSend(connectionEnvelope(clientID))
	s.run()
}

func (h *Hub) register(s *session) {
	h.mu.Lock()
	old := h.clients[s.clientID]
	h.clients[s.clientID] = s
	h.mu.Unlock()

	if old != nil {
		h.logger.Info("replacing existing session", "client", s.clientID)
		old.close()
	}
	h.logger.Info("client connected", "client", s.clientID)
}

// unregister tears the session down. Conversations for the client are
// dropped unless a newer session already took over the id.
func (h *Hub) unregister(s *session) {
	h.mu.Lock()
	current := h.clients[s.clientID] == s
	if current {
		delete(h.clients, s.clientID)
	}
	h.mu.Unlock()

	if current {
		h.chatter.DropConversations(s.clientID)
		h.logger.Info("client disconnected", "client", s.clientID)
	}
}

// ClientCount returns the number of live sessions.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// CloseAll shuts down every live session. Used on server shutdown.
func (h *Hub) CloseAll() {
	h.mu.Lock()
	sessions := make([]*session, 0, len(h.clients))
	for _, s := range h.clients {
		sessions = append(sessions, s)
	}
	h.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
}
