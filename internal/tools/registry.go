package tools

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/arclight-ai/arclight/internal/log"
)

// Registry holds registered tools and executes them with validation and
// a per-tool timeout.
//
// Registration happens at startup; afterwards the registry is
// read-mostly and safe for concurrent use.
type Registry struct {
	mu       sync.RWMutex
	ordered  []*Tool
	byName   map[string]*Tool
	resolved map[string]*jsonschema.Resolved
	timeout  time.Duration
	logger   log.Logger
}

// NewRegistry creates an empty registry. timeout bounds each tool
// execution; zero means no limit.
func NewRegistry(timeout time.Duration, logger log.Logger) *Registry {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Registry{
		byName:   make(map[string]*Tool),
		resolved: make(map[string]*jsonschema.Resolved),
		timeout:  timeout,
		logger:   logger,
	}
}

// Register adds a tool. The input schema is resolved immediately so a
// malformed schema fails at startup, not at call time.
func (r *Registry) Register(t Tool) error {
	if t.Name == "" {
		return fmt.Errorf("%w: tool name is empty", ErrInvalidSchema)
	}
	if t.Handler == nil {
		return fmt.Errorf("%w: tool %q has no handler", ErrInvalidSchema, t.Name)
	}
	if t.InputSchema == nil {
		return fmt.Errorf("%w: tool %q has no input schema", ErrInvalidSchema, t.Name)
	}

	resolved, err := t.InputSchema.Resolve(nil)
	if err != nil {
		return fmt.Errorf("%w: tool %q: %v", ErrInvalidSchema, t.Name, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.byName[t.Name]; dup {
		return fmt.Errorf("%w: %q", ErrDuplicateTool, t.Name)
	}

	tool := t
	r.ordered = append(r.ordered, &tool)
	r.byName[t.Name] = &tool
	r.resolved[t.Name] = resolved

	r.logger.Debug("registered tool", "tool", t.Name)
	return nil
}

// List returns tool definitions in registration order.
func (r *Registry) List() []Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]Definition, len(r.ordered))
	for i, t := range r.ordered {
		defs[i] = Definition{
			Name:        t.Name,
			Description: t.Description,
			InputSchema: t.InputSchema,
		}
	}
	return defs
}

// Has reports whether a tool with the given name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byName[name]
	return ok
}

// Execute validates params against the tool's schema and runs it.
//
// Validation errors return ErrInvalidParameters (wrapped) and the tool
// logic never runs. Failures inside the tool (returned errors, panics,
// timeouts) are captured into Result{Success: false}; the error return
// is reserved for lookup and validation failures.
func (r *Registry) Execute(ctx context.Context, name string, params map[string]any) (Result, error) {
	r.mu.RLock()
	tool, ok := r.byName[name]
	resolved := r.resolved[name]
	r.mu.RUnlock()

	if !ok {
		return Result{}, fmt.Errorf("%w: %q", ErrUnknownTool, name)
	}

	if params == nil {
		params = map[string]any{}
	}
	if err := validateParams(tool.InputSchema, resolved, params); err != nil {
		return Result{}, err
	}

	if r.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	output, err := r.run(ctx, tool, params)
	if err != nil {
		r.logger.Debug("tool execution failed", "tool", name, "error", err)
		return Result{ToolName: name, Success: false, Error: err.Error()}, nil
	}
	return Result{ToolName: name, Success: true, Output: output}, nil
}

// run executes the handler in its own goroutine so a timeout cannot
// leave the caller blocked on a stuck tool. Panics are converted to
// errors.
func (r *Registry) run(ctx context.Context, tool *Tool, params map[string]any) (output any, err error) {
	type outcome struct {
		output any
		err    error
	}
	done := make(chan outcome, 1)

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				done <- outcome{err: fmt.Errorf("tool %q panicked: %v", tool.Name, rec)}
			}
		}()
		out, handlerErr := tool.Handler(ctx, params)
		done <- outcome{output: out, err: handlerErr}
	}()

	select {
	case res := <-done:
		return res.output, res.err
	case <-ctx.Done():
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w: %q", ErrTimeout, tool.Name)
		}
		return nil, ctx.Err()
	}
}

// validateParams rejects unknown keys and missing required keys with
// precise messages, then defers type checking to the resolved schema.
func validateParams(schema *jsonschema.Schema, resolved *jsonschema.Resolved, params map[string]any) error {
	if schema.Properties != nil {
		for key := range params {
			if _, known := schema.Properties[key]; !known {
				return fmt.Errorf("%w: unknown parameter %q", ErrInvalidParameters, key)
			}
		}
	}
	for _, req := range schema.Required {
		if _, present := params[req]; !present {
			return fmt.Errorf("%w: missing required parameter %q", ErrInvalidParameters, req)
		}
	}

	if resolved != nil {
		if err := resolved.Validate(params); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidParameters, err)
		}
	}
	return nil
}
