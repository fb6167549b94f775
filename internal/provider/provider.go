// Package provider implements the LLM provider gateway.
//
// Each backend (Anthropic, OpenAI, Ollama) implements the Provider
// capability over its own wire protocol. The Gateway composes an ordered
// list of providers into a single Complete call with per-provider retry,
// timeout and ordered fallback.
package provider

import "context"

// Message roles. Mirrored by agent.Conversation; providers translate
// them to their own wire format.
const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

// Message is a provider-neutral chat message.
type Message struct {
	Role    string
	Content string

	// ToolCalls is set on assistant messages that request tool
	// invocations.
	ToolCalls []ToolCall

	// ToolName and ToolCallID identify the call a RoleTool message
	// responds to.
	ToolName   string
	ToolCallID string
}

// ToolCall is a structured tool invocation requested by the model.
type ToolCall struct {
	ID        string
	Name      string
	Arguments map[string]any
}

// ToolDef describes a callable tool advertised to the model.
// InputSchema must marshal to a JSON Schema object.
type ToolDef struct {
	Name        string
	Description string
	InputSchema any
}

// Request is a provider-neutral completion request.
type Request struct {
	Messages    []Message
	Tools       []ToolDef
	Temperature float32
	MaxTokens   int
}

// Usage reports token consumption for one completion.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// Total returns input plus output tokens.
func (u Usage) Total() int { return u.InputTokens + u.OutputTokens }

// Completion is the result of one successful provider call.
type Completion struct {
	Text      string
	ToolCalls []ToolCall
	Model     string
	Provider  string
	Usage     Usage
}

// Provider is the fixed capability every LLM backend implements.
// Implementations must be safe for concurrent use.
type Provider interface {
	// Name returns the provider identifier (e.g. "anthropic").
	Name() string

	// Complete executes one chat completion. It must honor ctx
	// cancellation and deadlines.
	Complete(ctx context.Context, req Request) (*Completion, error)
}

// EstimateTokens approximates the token count of a text.
// Rough heuristic: one token per four characters. Used when a provider
// response omits usage numbers and for context-window budgeting.
func EstimateTokens(text string) int {
	return len(text) / 4
}
