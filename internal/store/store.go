// Package store persists conversation history and usage records.
//
// The core works without durable storage; all implementations of Store
// are best-effort from the caller's point of view. Write failures are
// logged by the postgres implementation and never fail a turn.
package store

import (
	"context"
	"time"
)

// MessageRecord is one persisted conversation message.
type MessageRecord struct {
	ClientID   string
	AgentID    string
	Role       string
	Content    string
	TokenCount int
	CreatedAt  time.Time
}

// AttemptRecord is one persisted provider attempt.
type AttemptRecord struct {
	Provider     string
	Model        string
	Success      bool
	Error        string
	Duration     time.Duration
	InputTokens  int
	OutputTokens int
	Retries      int
	CreatedAt    time.Time
}

// Store records messages and provider attempts. Implementations must be
// safe for concurrent use.
type Store interface {
	AppendMessage(ctx context.Context, rec MessageRecord)
	RecordAttempt(ctx context.Context, rec AttemptRecord)
}

// Nop discards everything. Used when postgres is disabled.
type Nop struct{}

func (Nop) AppendMessage(context.Context, MessageRecord) {}
func (Nop) RecordAttempt(context.Context, AttemptRecord) {}
