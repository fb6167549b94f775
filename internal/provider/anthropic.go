package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const defaultAnthropicBaseURL = "https://api.anthropic.com"

// anthropicVersion is the API version header required by the Messages API.
const anthropicVersion = "2023-06-01"

// Anthropic calls the Anthropic Messages API.
//
// Differences from the OpenAI-style APIs handled here:
//   - the system prompt travels in a separate "system" field
//   - the response is a list of content blocks (text and tool_use)
//   - tool results are sent as user messages with tool_result blocks
type Anthropic struct {
	apiKey  string
	baseURL string
	model   string
	httpc   *http.Client
}

// NewAnthropic creates an Anthropic provider. baseURL empty means the
// official endpoint. The supplied client's timeout is ignored; the
// gateway bounds each call via context.
func NewAnthropic(apiKey, baseURL, model string, httpc *http.Client) *Anthropic {
	if baseURL == "" {
		baseURL = defaultAnthropicBaseURL
	}
	if httpc == nil {
		httpc = &http.Client{}
	}
	return &Anthropic{apiKey: apiKey, baseURL: baseURL, model: model, httpc: httpc}
}

// Name returns "anthropic".
func (p *Anthropic) Name() string { return "anthropic" }

type anthropicContentBlock struct {
	Type string `json:"type"`

	// type "text"
	Text string `json:"text,omitempty"`

	// type "tool_use"
	ID    string          `json:"id,omitempty"`
	Name  string          `json:"name,omitempty"`
	Input json.RawMessage `json:"input,omitempty"`

	// type "tool_result"
	ToolUseID string `json:"tool_use_id,omitempty"`
	Content   string `json:"content,omitempty"`
}

type anthropicMessage struct {
	Role    string                  `json:"role"`
	Content []anthropicContentBlock `json:"content"`
}

type anthropicTool struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	InputSchema any    `json:"input_schema"`
}

type anthropicRequest struct {
	Model       string             `json:"model"`
	MaxTokens   int                `json:"max_tokens"`
	System      string             `json:"system,omitempty"`
	Temperature float32            `json:"temperature,omitempty"`
	Messages    []anthropicMessage `json:"messages"`
	Tools       []anthropicTool    `json:"tools,omitempty"`
}

type anthropicResponse struct {
	Content []anthropicContentBlock `json:"content"`
	Model   string                  `json:"model"`
	Usage   struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
	} `json:"usage"`
	Error *struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Complete executes one Messages API call.
func (p *Anthropic) Complete(ctx context.Context, req Request) (*Completion, error) {
	if p.apiKey == "" {
		return nil, fmt.Errorf("anthropic API key not configured")
	}

	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 2048
	}

	body := anthropicRequest{
		Model:       p.model,
		MaxTokens:   maxTokens,
		Temperature: req.Temperature,
	}

	for _, m := range req.Messages {
		switch m.Role {
		case RoleSystem:
			// System prompt is a dedicated field, not a message.
			body.System = m.Content
		case RoleTool:
			body.Messages = append(body.Messages, anthropicMessage{
				Role: "user",
				Content: []anthropicContentBlock{{
					Type:      "tool_result",
					ToolUseID: m.ToolCallID,
					Content:   m.Content,
				}},
			})
		case RoleAssistant:
			blocks := make([]anthropicContentBlock, 0, 1+len(m.ToolCalls))
			if m.Content != "" {
				blocks = append(blocks, anthropicContentBlock{Type: "text", Text: m.Content})
			}
			for _, tc := range m.ToolCalls {
				input, err := json.Marshal(tc.Arguments)
				if err != nil {
					return nil, fmt.Errorf("marshaling tool call arguments: %w", err)
				}
				blocks = append(blocks, anthropicContentBlock{
					Type:  "tool_use",
					ID:    tc.ID,
					Name:  tc.Name,
					Input: input,
				})
			}
			body.Messages = append(body.Messages, anthropicMessage{Role: "assistant", Content: blocks})
		default:
			body.Messages = append(body.Messages, anthropicMessage{
				Role:    "user",
				Content: []anthropicContentBlock{{Type: "text", Text: m.Content}},
			})
		}
	}

	for _, t := range req.Tools {
		body.Tools = append(body.Tools, anthropicTool{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshaling request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/messages", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("x-api-key", p.apiKey)
	httpReq.Header.Set("anthropic-version", anthropicVersion)

	httpResp, err := p.httpc.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("anthropic request: %w", err)
	}
	defer func() { _ = httpResp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("reading anthropic response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, &StatusError{Provider: p.Name(), Status: httpResp.StatusCode, Body: string(respBody)}
	}

	var resp anthropicResponse
	if err := json.Unmarshal(respBody, &resp); err != nil {
		return nil, fmt.Errorf("decoding anthropic response: %w", err)
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("anthropic error %s: %s", resp.Error.Type, resp.Error.Message)
	}

	comp := &Completion{
		Model:    resp.Model,
		Provider: p.Name(),
		Usage: Usage{
			InputTokens:  resp.Usage.InputTokens,
			OutputTokens: resp.Usage.OutputTokens,
		},
	}
	for _, block := range resp.Content {
		switch block.Type {
		case "text":
			comp.Text += block.Text
		case "tool_use":
			args := map[string]any{}
			if len(block.Input) > 0 {
				if err := json.Unmarshal(block.Input, &args); err != nil {
					return nil, fmt.Errorf("decoding tool_use input: %w", err)
				}
			}
			comp.ToolCalls = append(comp.ToolCalls, ToolCall{
				ID:        block.ID,
				Name:      block.Name,
				Arguments: args,
			})
		}
	}

	return comp, nil
}
