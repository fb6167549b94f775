// Package mcpserver exposes the tool registry over the Model Context
// Protocol so external MCP clients can list and call the same tools the
// agents use.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/arclight-ai/arclight/internal/log"
	"github.com/arclight-ai/arclight/internal/tools"
)

// Server wraps the MCP SDK server around the tool registry.
type Server struct {
	mcpServer *mcp.Server
	registry  *tools.Registry
	logger    log.Logger
}

// Config holds MCP server identity.
type Config struct {
	Name    string
	Version string
}

// NewServer creates an MCP server exposing every registered tool.
func NewServer(cfg Config, registry *tools.Registry, logger log.Logger) (*Server, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("server name is required")
	}
	if cfg.Version == "" {
		return nil, fmt.Errorf("server version is required")
	}
	if registry == nil {
		return nil, fmt.Errorf("tool registry is required")
	}
	if logger == nil {
		logger = log.NewNop()
	}

	mcpServer := mcp.NewServer(&mcp.Implementation{
		Name:    cfg.Name,
		Version: cfg.Version,
	}, nil)

	s := &Server{mcpServer: mcpServer, registry: registry, logger: logger}
	s.registerTools()
	return s, nil
}

// Run serves the MCP protocol on the given transport. Blocking.
func (s *Server) Run(ctx context.Context, transport mcp.Transport) error {
	return s.mcpServer.Run(ctx, transport)
}

// RunStdio serves MCP over stdin/stdout.
func (s *Server) RunStdio(ctx context.Context) error {
	return s.Run(ctx, &mcp.StdioTransport{})
}

// registerTools mirrors the registry into the MCP server. Tool
// parameters arrive as raw maps; the registry performs the same schema
// validation it does for agent-initiated calls.
func (s *Server) registerTools() {
	for _, def := range s.registry.List() {
		name := def.Name

		tool := &mcp.Tool{
			Name:        def.Name,
			Description: def.Description,
			InputSchema: def.InputSchema,
		}

		mcp.AddTool(s.mcpServer, tool, func(ctx context.Context, req *mcp.CallToolRequest, in map[string]any) (*mcp.CallToolResult, any, error) {
			result, err := s.registry.Execute(ctx, name, in)
			if err != nil {
				// Validation and lookup failures are the caller's to fix.
				return &mcp.CallToolResult{
					IsError: true,
					Content: []mcp.Content{&mcp.TextContent{Text: err.Error()}},
				}, nil, nil
			}

			payload, err := json.Marshal(result)
			if err != nil {
				return nil, nil, fmt.Errorf("encoding tool result: %w", err)
			}
			return &mcp.CallToolResult{
				IsError: !result.Success,
				Content: []mcp.Content{&mcp.TextContent{Text: string(payload)}},
			}, nil, nil
		})

		s.logger.Debug("exposed tool over MCP", "tool", name)
	}
}
