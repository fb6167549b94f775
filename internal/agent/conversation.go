package agent

import (
	"sync"

	"github.com/arclight-ai/arclight/internal/provider"
)

// Conversation is the ordered message history for one agent and one
// client. Append-only except for oldest-first eviction under the
// agent's context-token budget.
//
// The turn mutex serializes whole turns: a second request for the same
// conversation queues behind the in-flight one, preserving message
// order. Lock and Unlock are exposed so the Manager can hold the turn
// for the full retrieval/provider/tool cycle.
type Conversation struct {
	turnMu sync.Mutex

	mu       sync.RWMutex
	messages []Message
}

// Lock acquires the turn lock, queueing behind any in-flight turn.
func (c *Conversation) Lock() { c.turnMu.Lock() }

// Unlock releases the turn lock.
func (c *Conversation) Unlock() { c.turnMu.Unlock() }

// Append adds a message to the history.
func (c *Conversation) Append(msg Message) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, msg)
}

// Len returns the number of stored messages.
func (c *Conversation) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.messages)
}

// Messages returns a copy of the history.
func (c *Conversation) Messages() []Message {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]Message, len(c.messages))
	copy(out, c.messages)
	return out
}

// Evict drops the oldest messages until the history's token estimate
// fits within budget. A budget of zero or less disables eviction. It
// returns the number of evicted messages.
//
// The system prompt is not stored in the Conversation, so eviction
// never touches it.
func (c *Conversation) Evict(budget int) int {
	if budget <= 0 {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	total := 0
	for _, m := range c.messages {
		total += m.TokenCount
	}
	evicted := 0
	for total > budget && len(c.messages) > 1 {
		total -= c.messages[0].TokenCount
		c.messages = c.messages[1:]
		evicted++
	}
	return evicted
}

// providerMessages builds the wire message list: the system prompt
// first, then optional retrieved context, then the history.
func (c *Conversation) providerMessages(systemPrompt, ragContext string) []provider.Message {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]provider.Message, 0, len(c.messages)+2)
	if systemPrompt != "" {
		out = append(out, provider.Message{Role: provider.RoleSystem, Content: systemPrompt})
	}
	if ragContext != "" {
		out = append(out, provider.Message{Role: provider.RoleSystem, Content: ragContext})
	}
	for _, m := range c.messages {
		out = append(out, m.toProvider())
	}
	return out
}
