// Package api exposes the orchestration core over REST.
package api

import (
	"errors"
	"net/http"

	"github.com/arclight-ai/arclight/internal/agent"
	"github.com/arclight-ai/arclight/internal/log"
	"github.com/arclight-ai/arclight/internal/rag"
	"github.com/arclight-ai/arclight/internal/tools"
)

// ServerConfig contains everything the API server serves.
type ServerConfig struct {
	Logger   log.Logger
	Manager  *agent.Manager // Required
	Registry *tools.Registry
	Engine   *rag.Engine  // Optional: nil disables the /rag routes
	Hub      http.Handler // Optional: nil disables /ws

	CORSOrigins []string
	TrustProxy  bool
	RateBurst   int // 0 = default 60

	// MaxMessageLen caps chat message content length in bytes.
	// Zero means 64 KiB.
	MaxMessageLen int

	// Version is reported on the root info endpoint.
	Version string
}

// Server is the JSON API HTTP server.
type Server struct {
	handler http.Handler
}

// NewServer creates a server with all routes and middleware configured.
func NewServer(cfg ServerConfig) (*Server, error) {
	if cfg.Manager == nil {
		return nil, errors.New("agent manager is required")
	}
	if cfg.Registry == nil {
		return nil, errors.New("tool registry is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.NewNop()
	}

	maxMessageLen := cfg.MaxMessageLen
	if maxMessageLen <= 0 {
		maxMessageLen = 64 << 10
	}

	ch := &chatHandler{manager: cfg.Manager, maxMessageLen: maxMessageLen, logger: logger}
	th := &toolsHandler{registry: cfg.Registry, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", infoHandler(cfg.Version, logger))
	mux.HandleFunc("GET /health", healthHandler(logger))

	mux.HandleFunc("POST /chat", ch.chat)
	mux.HandleFunc("GET /agents", ch.listAgents)

	if cfg.Engine != nil {
		rh := &ragHandler{engine: cfg.Engine, logger: logger}
		mux.HandleFunc("POST /rag/ingest", rh.ingest)
		mux.HandleFunc("GET /rag/search", rh.search)
		mux.HandleFunc("DELETE /rag/documents/{id}", rh.deleteDocument)
		mux.HandleFunc("GET /rag/stats", rh.stats)
	}

	mux.HandleFunc("GET /mcp/tools", th.list)
	mux.HandleFunc("POST /mcp/execute", th.execute)

	if cfg.Hub != nil {
		mux.Handle("GET /ws/{client_id}", cfg.Hub)
	}

	burst := cfg.RateBurst
	if burst <= 0 {
		burst = 60
	}
	rl := newRateLimiter(1.0, burst)

	// Middleware stack, outermost first:
	//   Recovery -> RequestID -> Logging -> CORS -> RateLimit -> Routes
	// RequestID precedes Logging so request_id lands in log attributes;
	// CORS precedes RateLimit so preflight OPTIONS gets CORS headers.
	var handler http.Handler = mux
	handler = rateLimitMiddleware(rl, cfg.TrustProxy, logger)(handler)
	handler = corsMiddleware(cfg.CORSOrigins)(handler)
	handler = loggingMiddleware(logger)(handler)
	handler = requestIDMiddleware()(handler)
	handler = recoveryMiddleware(logger)(handler)

	return &Server{handler: handler}, nil
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func healthHandler(logger log.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"}, logger)
	}
}

func infoHandler(version string, logger log.Logger) http.HandlerFunc {
	if version == "" {
		version = "development"
	}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"service": "arclight",
			"version": version,
			"status":  "running",
		}, logger)
	}
}
