// Package app wires configuration into the running component graph.
//
// Setup builds the full dependency chain in order: tracing, storage,
// provider gateway, retrieval engine, tool registry, agent manager and
// the WebSocket hub. Close releases everything in reverse.
package app

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arclight-ai/arclight/internal/agent"
	"github.com/arclight-ai/arclight/internal/config"
	"github.com/arclight-ai/arclight/internal/log"
	"github.com/arclight-ai/arclight/internal/provider"
	"github.com/arclight-ai/arclight/internal/rag"
	"github.com/arclight-ai/arclight/internal/tools"
	"github.com/arclight-ai/arclight/internal/ws"
)

const shutdownFlushTimeout = 5 * time.Second

// App is the application container. Fields are populated by Setup and
// remain valid until Close.
type App struct {
	Config *config.Config
	Logger log.Logger

	Pool     *pgxpool.Pool // nil when postgres is disabled
	Gateway  *provider.Gateway
	Engine   *rag.Engine
	Registry *tools.Registry
	Manager  *agent.Manager
	Hub      *ws.Hub

	otelShutdown func(context.Context) error
}

// Close shuts down live sessions, flushes traces and releases the
// database pool.
func (a *App) Close() error {
	a.Logger.Info("shutting down application")

	if a.Hub != nil {
		a.Hub.CloseAll()
	}

	if a.otelShutdown != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownFlushTimeout)
		defer cancel()
		if err := a.otelShutdown(ctx); err != nil {
			a.Logger.Warn("failed to flush traces", "error", err)
		}
	}

	if a.Pool != nil {
		a.Pool.Close()
		a.Logger.Info("database pool closed")
	}

	return nil
}
