package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arclight-ai/arclight/db"
	"github.com/arclight-ai/arclight/internal/agent"
	"github.com/arclight-ai/arclight/internal/config"
	"github.com/arclight-ai/arclight/internal/embed"
	"github.com/arclight-ai/arclight/internal/log"
	"github.com/arclight-ai/arclight/internal/observability"
	"github.com/arclight-ai/arclight/internal/provider"
	"github.com/arclight-ai/arclight/internal/rag"
	"github.com/arclight-ai/arclight/internal/store"
	"github.com/arclight-ai/arclight/internal/tools"
	"github.com/arclight-ai/arclight/internal/ws"
)

// Setup builds the application from validated configuration.
// On failure everything already initialized is released before return.
func Setup(ctx context.Context, cfg *config.Config, logger log.Logger) (_ *App, retErr error) {
	if logger == nil {
		logger = log.NewNop()
	}
	a := &App{Config: cfg, Logger: logger}

	defer func() {
		if retErr != nil {
			if err := a.Close(); err != nil {
				logger.Warn("cleanup during setup failure", "error", err)
			}
		}
	}()

	if cfg.Tracing.Enabled {
		shutdown, err := observability.Setup(ctx, observability.Config{
			AgentHost:   cfg.Tracing.AgentHost,
			ServiceName: cfg.Tracing.ServiceName,
			Environment: cfg.Tracing.Environment,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("setting up tracing: %w", err)
		}
		a.otelShutdown = shutdown
	}

	st := store.Store(store.Nop{})
	if cfg.PostgresEnabled {
		pool, err := providePool(ctx, cfg, logger)
		if err != nil {
			return nil, err
		}
		a.Pool = pool
		st = store.NewPostgres(pool, logger)
	}

	gateway, err := provideGateway(cfg, st, logger)
	if err != nil {
		return nil, err
	}
	a.Gateway = gateway

	engine, err := provideEngine(cfg, a.Pool, logger)
	if err != nil {
		return nil, err
	}
	a.Engine = engine

	registry := tools.NewRegistry(cfg.ToolTimeout, logger)
	if err := tools.RegisterBuiltins(registry, engine); err != nil {
		return nil, fmt.Errorf("registering builtin tools: %w", err)
	}
	a.Registry = registry

	manager, err := agent.NewManager(
		cfg.Agents, cfg.Providers, gateway, engine, registry, st, cfg.RAG.TopK, logger)
	if err != nil {
		return nil, fmt.Errorf("creating agent manager: %w", err)
	}
	a.Manager = manager

	a.Hub = ws.NewHub(manager, ws.Config{
		DefaultAgent:  cfg.Agents[0].ID,
		MaxMessageLen: cfg.MaxMessageLen,
	}, logger)

	return a, nil
}

// providePool runs migrations and opens the connection pool.
func providePool(ctx context.Context, cfg *config.Config, logger log.Logger) (*pgxpool.Pool, error) {
	if err := db.Migrate(cfg.PostgresURL(), logger); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.PostgresURL())
	if err != nil {
		return nil, fmt.Errorf("parsing connection config: %w", err)
	}
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 2
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 1 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	return pool, nil
}

// provideGateway builds every configured provider client and wraps
// them in the fallback gateway. Provider attempts land in the store.
func provideGateway(cfg *config.Config, st store.Store, logger log.Logger) (*provider.Gateway, error) {
	httpc := &http.Client{}

	providers := make([]provider.Provider, 0, len(cfg.Providers))
	for _, pc := range cfg.Providers {
		switch pc.Name {
		case config.ProviderAnthropic:
			providers = append(providers, provider.NewAnthropic(pc.APIKey, pc.BaseURL, pc.Model, httpc))
		case config.ProviderOpenAI:
			providers = append(providers, provider.NewOpenAI(pc.APIKey, pc.BaseURL, pc.Model, httpc))
		case config.ProviderOllama:
			providers = append(providers, provider.NewOllama(pc.BaseURL, pc.Model, httpc))
		default:
			return nil, fmt.Errorf("unknown provider %q", pc.Name)
		}
	}

	gwCfg := provider.DefaultGatewayConfig()
	if cfg.ProviderTimeout > 0 {
		gwCfg.Timeout = cfg.ProviderTimeout
	}
	if cfg.ProviderMaxRetries > 0 {
		gwCfg.MaxRetries = cfg.ProviderMaxRetries
	}
	if cfg.ProviderRetryInterval > 0 {
		gwCfg.InitialInterval = cfg.ProviderRetryInterval
	}
	if cfg.ProviderMaxConcurrent > 0 {
		gwCfg.MaxConcurrent = int64(cfg.ProviderMaxConcurrent)
	}

	return provider.NewGateway(providers, gwCfg, attemptRecorder{st: st}, logger)
}

// provideEngine builds the retrieval engine over the pgvector index
// when postgres is enabled, the in-memory index otherwise.
func provideEngine(cfg *config.Config, pool *pgxpool.Pool, logger log.Logger) (*rag.Engine, error) {
	embedder := embed.NewOpenAI(
		cfg.RAG.EmbedderAPIKey,
		cfg.RAG.EmbedderBaseURL,
		cfg.RAG.EmbedderModel,
		cfg.RAG.EmbeddingDim,
		&http.Client{},
	)

	var index rag.Index
	if pool != nil {
		index = rag.NewPostgresIndex(pool, cfg.RAG.EmbeddingDim)
	} else {
		index = rag.NewMemoryIndex()
	}

	return rag.NewEngine(rag.Config{
		ChunkSize:    cfg.RAG.ChunkSize,
		ChunkOverlap: cfg.RAG.ChunkOverlap,
	}, embedder, index, logger)
}

// attemptRecorder bridges gateway attempt records into the store.
type attemptRecorder struct {
	st store.Store
}

func (r attemptRecorder) RecordAttempt(ctx context.Context, rec provider.AttemptRecord) {
	r.st.RecordAttempt(ctx, store.AttemptRecord{
		Provider:     rec.Provider,
		Model:        rec.Model,
		Success:      rec.Success,
		Error:        rec.Error,
		Duration:     rec.Duration,
		InputTokens:  rec.Usage.InputTokens,
		OutputTokens: rec.Usage.OutputTokens,
		Retries:      rec.Retries,
	})
}
