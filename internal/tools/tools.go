// Package tools provides the typed tool registry and executor.
//
// A Tool pairs a JSON Schema describing its parameters with a handler.
// The registry validates parameters against the schema before any tool
// logic runs; execution failures inside a tool are captured into the
// structured Result, never propagated as transport errors.
package tools

import (
	"context"
	"errors"

	"github.com/google/jsonschema-go/jsonschema"
)

// Sentinel errors checked with errors.Is().
var (
	// ErrUnknownTool indicates the requested tool is not registered.
	ErrUnknownTool = errors.New("unknown tool")

	// ErrInvalidParameters indicates the parameters failed schema
	// validation: unknown keys, missing required keys, or type
	// mismatches. The tool's logic never ran.
	ErrInvalidParameters = errors.New("invalid tool parameters")

	// ErrTimeout indicates the tool exceeded its execution timeout.
	ErrTimeout = errors.New("tool execution timeout")

	// ErrInvalidSchema indicates a tool was registered with a malformed
	// input schema.
	ErrInvalidSchema = errors.New("invalid tool schema")

	// ErrDuplicateTool indicates a tool name was registered twice.
	ErrDuplicateTool = errors.New("duplicate tool")
)

// Handler executes a tool with already-validated parameters.
// A returned error becomes Result{Success: false}; it does not fail the
// surrounding turn.
type Handler func(ctx context.Context, params map[string]any) (any, error)

// Tool is a named, schema-validated callable.
type Tool struct {
	Name        string
	Description string
	InputSchema *jsonschema.Schema
	Handler     Handler
}

// Result is the structured outcome of one tool execution.
type Result struct {
	ToolName string `json:"tool_name"`
	Success  bool   `json:"success"`
	Output   any    `json:"output,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Definition is the wire representation of a tool for listing and for
// advertising tools to LLM providers.
type Definition struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	InputSchema *jsonschema.Schema `json:"input_schema"`
}
