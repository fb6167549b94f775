package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/arclight-ai/arclight/internal/config"
	"github.com/arclight-ai/arclight/internal/log"
	"github.com/arclight-ai/arclight/internal/provider"
	"github.com/arclight-ai/arclight/internal/rag"
	"github.com/arclight-ai/arclight/internal/store"
	"github.com/arclight-ai/arclight/internal/tools"
)

// DefaultClientID scopes conversations for callers that carry no client
// identity of their own, such as the REST /chat endpoint.
const DefaultClientID = "default"

// ChatRequest is one chat turn request.
type ChatRequest struct {
	ClientID string
	AgentID  string
	Message  string

	// Temperature overrides the agent default when non-nil.
	Temperature *float32
}

// ChatResponse is the result of a completed turn.
type ChatResponse struct {
	Response string         `json:"response"`
	AgentID  string         `json:"agent_id"`
	Model    string         `json:"model"`
	Provider string         `json:"provider"`
	Usage    provider.Usage `json:"usage"`
	Cost     float64        `json:"cost"`
}

// TypeChat is the only agent kind; all configured agents run the chat
// turn pipeline.
const TypeChat = "chat"

// Info describes one agent for listing, including its usage counters.
type Info struct {
	ID         string   `json:"id"`
	Type       string   `json:"type"`
	Model      string   `json:"model"`
	Tools      []string `json:"tools"`
	RAGEnabled bool     `json:"rag_enabled"`
	Stats      Stats    `json:"stats"`
}

type convKey struct {
	agentID  string
	clientID string
}

// Manager composes the provider gateway, retrieval engine, and tool
// registry into chat turns. It owns all conversations and per-agent
// usage counters.
//
// Manager is safe for concurrent use. Turns against the same
// conversation are serialized; different conversations proceed
// independently.
type Manager struct {
	gateway  *provider.Gateway
	engine   *rag.Engine
	registry *tools.Registry
	store    store.Store
	logger   log.Logger

	agents  map[string]*Agent
	ordered []string
	pricing map[string]config.ProviderConfig
	topK    int

	mu    sync.Mutex
	convs map[convKey]*Conversation
}

// NewManager builds agents from configuration and wires the turn
// pipeline. engine may be nil when retrieval is disabled; st may be nil.
func NewManager(
	agentCfgs []config.AgentConfig,
	providerCfgs []config.ProviderConfig,
	gateway *provider.Gateway,
	engine *rag.Engine,
	registry *tools.Registry,
	st store.Store,
	topK int,
	logger log.Logger,
) (*Manager, error) {
	if gateway == nil {
		return nil, fmt.Errorf("gateway is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("tool registry is required")
	}
	if len(agentCfgs) == 0 {
		return nil, fmt.Errorf("at least one agent is required")
	}
	if st == nil {
		st = store.Nop{}
	}
	if logger == nil {
		logger = log.NewNop()
	}
	if topK <= 0 {
		topK = config.DefaultTopK
	}

	agents := make(map[string]*Agent, len(agentCfgs))
	ordered := make([]string, 0, len(agentCfgs))
	for _, cfg := range agentCfgs {
		if _, dup := agents[cfg.ID]; dup {
			return nil, fmt.Errorf("duplicate agent id %q", cfg.ID)
		}
		agents[cfg.ID] = NewAgent(cfg)
		ordered = append(ordered, cfg.ID)
	}

	pricing := make(map[string]config.ProviderConfig, len(providerCfgs))
	for _, pc := range providerCfgs {
		pricing[pc.Name] = pc
	}

	return &Manager{
		gateway:  gateway,
		engine:   engine,
		registry: registry,
		store:    st,
		logger:   logger,
		agents:   agents,
		ordered:  ordered,
		pricing:  pricing,
		topK:     topK,
		convs:    make(map[convKey]*Conversation),
	}, nil
}

// Agent returns the agent for the id, or ErrUnknownAgent.
func (m *Manager) Agent(id string) (*Agent, error) {
	a, ok := m.agents[id]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAgent, id)
	}
	return a, nil
}

// ListAgents returns all agents in configuration order with a snapshot
// of their usage counters.
func (m *Manager) ListAgents() []Info {
	infos := make([]Info, 0, len(m.ordered))
	for _, id := range m.ordered {
		a := m.agents[id]
		infos = append(infos, Info{
			ID:         a.ID,
			Type:       TypeChat,
			Model:      a.Model,
			Tools:      a.EnabledTools(),
			RAGEnabled: a.RAGEnabled,
			Stats:      a.stats.Snapshot(),
		})
	}
	return infos
}

// conversation returns the conversation for the key, creating it on
// first use.
func (m *Manager) conversation(agentID, clientID string) *Conversation {
	if clientID == "" {
		clientID = DefaultClientID
	}
	key := convKey{agentID: agentID, clientID: clientID}

	m.mu.Lock()
	defer m.mu.Unlock()
	conv, ok := m.convs[key]
	if !ok {
		conv = &Conversation{}
		m.convs[key] = conv
	}
	return conv
}

// DropConversations removes all conversations for a client. Used on
// websocket disconnect; agent usage counters are unaffected.
func (m *Manager) DropConversations(clientID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.convs {
		if key.clientID == clientID {
			delete(m.convs, key)
		}
	}
}

// Chat runs one turn: resolve the agent, append the user message,
// optionally retrieve context, call the provider, execute any requested
// tool calls, and append the assistant reply.
//
// A failed turn keeps the user message in the conversation but appends
// no assistant message; the caller may retry the same input.
func (m *Manager) Chat(ctx context.Context, req ChatRequest) (*ChatResponse, error) {
	a, err := m.Agent(req.AgentID)
	if err != nil {
		return nil, err
	}
	text := sanitizeMessage(req.Message)
	if text == "" {
		return nil, ErrEmptyMessage
	}

	conv := m.conversation(req.AgentID, req.ClientID)
	conv.Lock()
	defer conv.Unlock()

	userMsg := newMessage(provider.RoleUser, text)
	conv.Append(userMsg)
	conv.Evict(a.MaxContextTokens)
	m.store.AppendMessage(ctx, store.MessageRecord{
		ClientID:   req.ClientID,
		AgentID:    a.ID,
		Role:       userMsg.Role,
		Content:    userMsg.Content,
		TokenCount: userMsg.TokenCount,
		CreatedAt:  userMsg.Timestamp,
	})

	ragContext := m.retrieveContext(ctx, a, text)

	temperature := a.Temperature
	if req.Temperature != nil {
		temperature = *req.Temperature
	}

	msgs := conv.providerMessages(a.SystemPrompt, ragContext)
	preq := provider.Request{
		Messages:    msgs,
		Tools:       m.enabledToolDefs(a),
		Temperature: temperature,
		MaxTokens:   config.DefaultMaxTokens,
	}

	completion, pending, usage, err := m.runTurn(ctx, a, preq)
	if err != nil {
		m.logger.Warn("chat turn failed", "agent", a.ID, "error", err)
		return nil, err
	}

	assistantMsg := newMessage(provider.RoleAssistant, completion.Text)
	for _, msg := range append(pending, assistantMsg) {
		conv.Append(msg)
	}
	conv.Evict(a.MaxContextTokens)
	m.store.AppendMessage(ctx, store.MessageRecord{
		ClientID:   req.ClientID,
		AgentID:    a.ID,
		Role:       assistantMsg.Role,
		Content:    assistantMsg.Content,
		TokenCount: assistantMsg.TokenCount,
		CreatedAt:  assistantMsg.Timestamp,
	})

	cost := m.turnCost(completion.Provider, usage)
	a.stats.RecordTurn(int64(usage.Total()), cost)

	return &ChatResponse{
		Response: completion.Text,
		AgentID:  a.ID,
		Model:    completion.Model,
		Provider: completion.Provider,
		Usage:    usage,
		Cost:     cost,
	}, nil
}

// runTurn issues the provider call and drives the tool-call loop. It
// returns the final completion, the intermediate tool-round messages to
// append on success, and the turn's aggregate usage.
func (m *Manager) runTurn(ctx context.Context, a *Agent, preq provider.Request) (*provider.Completion, []Message, provider.Usage, error) {
	var (
		pending []Message
		usage   provider.Usage
	)

	completion, err := m.gateway.Complete(ctx, preq, provider.CallOptions{})
	if err != nil {
		return nil, nil, usage, err
	}
	usage.InputTokens += completion.Usage.InputTokens
	usage.OutputTokens += completion.Usage.OutputTokens

	for round := 0; len(completion.ToolCalls) > 0; {
		round++
		if round > a.MaxToolChain {
			return nil, nil, usage, fmt.Errorf("%w: limit %d", ErrToolChainTooLong, a.MaxToolChain)
		}

		assistant := newMessage(provider.RoleAssistant, completion.Text)
		assistant.ToolCalls = completion.ToolCalls
		pending = append(pending, assistant)
		preq.Messages = append(preq.Messages, assistant.toProvider())

		for _, call := range completion.ToolCalls {
			if !a.ToolEnabled(call.Name) {
				return nil, nil, usage, fmt.Errorf("%w: %q", ErrToolNotEnabled, call.Name)
			}

			result, execErr := m.registry.Execute(ctx, call.Name, call.Arguments)
			if execErr != nil {
				// Validation and lookup failures go back to the model as
				// a failed result so it can correct the call.
				result = tools.Result{ToolName: call.Name, Success: false, Error: execErr.Error()}
			}
			payload, marshalErr := json.Marshal(result)
			if marshalErr != nil {
				payload = []byte(fmt.Sprintf(`{"tool_name":%q,"success":false,"error":"unserializable result"}`, call.Name))
			}

			toolMsg := newMessage(provider.RoleTool, string(payload))
			toolMsg.ToolCallID = call.ID
			toolMsg.ToolName = call.Name
			pending = append(pending, toolMsg)
			preq.Messages = append(preq.Messages, toolMsg.toProvider())
		}

		completion, err = m.gateway.Complete(ctx, preq, provider.CallOptions{})
		if err != nil {
			return nil, nil, usage, err
		}
		usage.InputTokens += completion.Usage.InputTokens
		usage.OutputTokens += completion.Usage.OutputTokens
	}

	return completion, pending, usage, nil
}

// retrieveContext runs retrieval for RAG-enabled agents. Retrieval
// problems degrade to an uncontextualized turn rather than failing it.
func (m *Manager) retrieveContext(ctx context.Context, a *Agent, query string) string {
	if !a.RAGEnabled || m.engine == nil {
		return ""
	}
	hits, err := m.engine.Search(ctx, query, m.topK)
	if err != nil {
		m.logger.Warn("retrieval failed, continuing without context", "agent", a.ID, "error", err)
		return ""
	}
	if len(hits) == 0 {
		return ""
	}

	var b strings.Builder
	b.WriteString("Relevant context from the knowledge base:\n")
	for _, h := range hits {
		b.WriteString("\n---\n")
		b.WriteString(h.Chunk.Text)
	}
	return b.String()
}

// enabledToolDefs returns the provider-facing definitions of the
// agent's enabled tools, in registration order.
func (m *Manager) enabledToolDefs(a *Agent) []provider.ToolDef {
	if len(a.tools) == 0 {
		return nil
	}
	var defs []provider.ToolDef
	for _, d := range m.registry.List() {
		if !a.ToolEnabled(d.Name) {
			continue
		}
		defs = append(defs, provider.ToolDef{
			Name:        d.Name,
			Description: d.Description,
			InputSchema: d.InputSchema,
		})
	}
	return defs
}

// turnCost prices aggregate usage with the serving provider's rates.
func (m *Manager) turnCost(providerName string, usage provider.Usage) float64 {
	pc, ok := m.pricing[providerName]
	if !ok {
		return 0
	}
	return float64(usage.InputTokens)/1000*pc.InputCostPer1K +
		float64(usage.OutputTokens)/1000*pc.OutputCostPer1K
}

// sanitizeMessage strips NUL bytes and surrounding whitespace from user
// input before it enters a conversation.
func sanitizeMessage(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	return strings.TrimSpace(s)
}
