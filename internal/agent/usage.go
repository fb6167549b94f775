package agent

import "sync/atomic"

// UsageStats holds per-agent counters. Counters are monotonically
// non-decreasing and updated atomically; concurrent turns for the same
// agent must not lose updates.
//
// Cost is tracked in microdollars so it can live in an atomic integer.
type UsageStats struct {
	messageCount atomic.Int64
	totalTokens  atomic.Int64
	costMicros   atomic.Int64
}

// Stats is a point-in-time snapshot of UsageStats.
type Stats struct {
	MessageCount int64   `json:"message_count"`
	TotalTokens  int64   `json:"total_tokens_used"`
	TotalCost    float64 `json:"total_cost"`
}

// RecordTurn adds one completed turn to the counters.
func (u *UsageStats) RecordTurn(tokens int64, cost float64) {
	u.messageCount.Add(1)
	u.totalTokens.Add(tokens)
	u.costMicros.Add(int64(cost * 1e6))
}

// Snapshot returns the current counter values.
func (u *UsageStats) Snapshot() Stats {
	return Stats{
		MessageCount: u.messageCount.Load(),
		TotalTokens:  u.totalTokens.Load(),
		TotalCost:    float64(u.costMicros.Load()) / 1e6,
	}
}
