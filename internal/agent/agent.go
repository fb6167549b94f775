// Package agent owns conversation state, usage accounting, and the
// composition of retrieval, tools, and provider calls into chat turns.
package agent

import (
	"errors"
	"time"

	"github.com/arclight-ai/arclight/internal/config"
	"github.com/arclight-ai/arclight/internal/provider"
)

var (
	// ErrUnknownAgent is returned when no agent exists for the id.
	ErrUnknownAgent = errors.New("unknown agent")

	// ErrToolNotEnabled is returned when a provider requests a tool that
	// is not in the agent's enabled set.
	ErrToolNotEnabled = errors.New("tool not enabled for agent")

	// ErrToolChainTooLong is returned when a turn exceeds the agent's
	// maximum consecutive tool-call rounds.
	ErrToolChainTooLong = errors.New("tool call chain too long")

	// ErrEmptyMessage is returned for a chat request with no content.
	ErrEmptyMessage = errors.New("message is empty")
)

// Agent is an immutable agent definition created from configuration at
// startup. One instance per id, shared by all conversations.
type Agent struct {
	ID           string
	SystemPrompt string
	Model        string
	Temperature  float32
	RAGEnabled   bool
	MaxToolChain int

	// MaxContextTokens bounds the estimated size of the message list
	// sent to the provider; zero means unbounded.
	MaxContextTokens int

	tools map[string]struct{}
	stats *UsageStats
}

// NewAgent builds an Agent from its configuration entry.
func NewAgent(cfg config.AgentConfig) *Agent {
	tools := make(map[string]struct{}, len(cfg.Tools))
	for _, name := range cfg.Tools {
		tools[name] = struct{}{}
	}
	maxChain := cfg.MaxToolChain
	if maxChain <= 0 {
		maxChain = config.DefaultMaxToolChain
	}
	return &Agent{
		ID:               cfg.ID,
		SystemPrompt:     cfg.SystemPrompt,
		Model:            cfg.Model,
		Temperature:      cfg.Temperature,
		RAGEnabled:       cfg.RAGEnabled,
		MaxToolChain:     maxChain,
		MaxContextTokens: cfg.MaxContextTokens,
		tools:            tools,
		stats:            &UsageStats{},
	}
}

// ToolEnabled reports whether the agent may invoke the named tool.
func (a *Agent) ToolEnabled(name string) bool {
	_, ok := a.tools[name]
	return ok
}

// EnabledTools returns the agent's enabled tool names. The slice is a
// copy; order is unspecified.
func (a *Agent) EnabledTools() []string {
	names := make([]string, 0, len(a.tools))
	for name := range a.tools {
		names = append(names, name)
	}
	return names
}

// Stats returns the agent's usage counters.
func (a *Agent) Stats() *UsageStats { return a.stats }

// Message is one conversation entry. Immutable once appended.
type Message struct {
	Role       string
	Content    string
	ToolCalls  []provider.ToolCall
	ToolCallID string
	ToolName   string
	Timestamp  time.Time
	TokenCount int
}

func newMessage(role, content string) Message {
	return Message{
		Role:       role,
		Content:    content,
		Timestamp:  time.Now().UTC(),
		TokenCount: provider.EstimateTokens(content),
	}
}

// toProvider converts a conversation message to the wire shape.
func (m Message) toProvider() provider.Message {
	return provider.Message{
		Role:       m.Role,
		Content:    m.Content,
		ToolCalls:  m.ToolCalls,
		ToolCallID: m.ToolCallID,
		ToolName:   m.ToolName,
	}
}
