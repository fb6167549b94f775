package store

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/arclight-ai/arclight/internal/log"
)

// Postgres writes records to the messages and provider_attempts tables.
// Writes are synchronous but failures are only logged; conversation
// turns never fail because the audit trail is behind.
type Postgres struct {
	pool   *pgxpool.Pool
	logger log.Logger
}

// NewPostgres creates a store over an existing pool. The pool's
// lifecycle belongs to the caller.
func NewPostgres(pool *pgxpool.Pool, logger log.Logger) *Postgres {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Postgres{pool: pool, logger: logger}
}

func (s *Postgres) AppendMessage(ctx context.Context, rec MessageRecord) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO messages (client_id, agent_id, role, content, token_count, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.ClientID, rec.AgentID, rec.Role, rec.Content, rec.TokenCount, rec.CreatedAt)
	if err != nil {
		s.logger.Warn("failed to persist message", "agent", rec.AgentID, "error", err)
	}
}

func (s *Postgres) RecordAttempt(ctx context.Context, rec AttemptRecord) {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO provider_attempts (provider, model, success, error, duration_ms, input_tokens, output_tokens, retries, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		rec.Provider, rec.Model, rec.Success, rec.Error, rec.Duration.Milliseconds(),
		rec.InputTokens, rec.OutputTokens, rec.Retries, rec.CreatedAt)
	if err != nil {
		s.logger.Warn("failed to persist provider attempt", "provider", rec.Provider, "error", err)
	}
}
