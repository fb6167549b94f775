package tools

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/arclight-ai/arclight/internal/rag"
)

const maxFetchBytes = 4 << 20

// RegisterBuiltins adds the built-in tool set to the registry. engine
// may be nil, in which case knowledge_search is skipped.
func RegisterBuiltins(r *Registry, engine *rag.Engine) error {
	builtins := []Tool{
		calculatorTool(),
		clockTool(),
		webFetchTool(),
	}
	if engine != nil {
		builtins = append(builtins, knowledgeSearchTool(engine))
	}
	for _, t := range builtins {
		if err := r.Register(t); err != nil {
			return err
		}
	}
	return nil
}

func calculatorTool() Tool {
	return Tool{
		Name:        "calculator",
		Description: "Evaluate an arithmetic expression with +, -, *, / and parentheses",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"expression": {
					Type:        "string",
					Description: "Arithmetic expression, e.g. (2 + 3) * 4",
				},
			},
			Required: []string{"expression"},
		},
		Handler: func(_ context.Context, params map[string]any) (any, error) {
			expr, _ := params["expression"].(string)
			value, err := evalExpression(expr)
			if err != nil {
				return nil, err
			}
			return map[string]any{"expression": expr, "result": value}, nil
		},
	}
}

func clockTool() Tool {
	return Tool{
		Name:        "clock",
		Description: "Return the current time in UTC (RFC 3339)",
		InputSchema: &jsonschema.Schema{
			Type:       "object",
			Properties: map[string]*jsonschema.Schema{},
		},
		Handler: func(_ context.Context, _ map[string]any) (any, error) {
			now := time.Now().UTC()
			return map[string]any{
				"utc":  now.Format(time.RFC3339),
				"unix": now.Unix(),
			}, nil
		},
	}
}

func webFetchTool() Tool {
	client := &http.Client{Timeout: 20 * time.Second}
	return Tool{
		Name:        "web_fetch",
		Description: "Fetch a URL over HTTP GET and return status and body",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"url": {
					Type:        "string",
					Description: "URL to request",
				},
			},
			Required: []string{"url"},
		},
		Handler: func(ctx context.Context, params map[string]any) (any, error) {
			rawURL, _ := params["url"].(string)
			if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
				return nil, fmt.Errorf("unsupported URL scheme in %q", rawURL)
			}

			req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
			if err != nil {
				return nil, fmt.Errorf("build request: %w", err)
			}
			resp, err := client.Do(req)
			if err != nil {
				return nil, fmt.Errorf("http request failed: %w", err)
			}
			defer resp.Body.Close()

			body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes+1))
			if err != nil {
				return nil, fmt.Errorf("read response: %w", err)
			}
			if len(body) > maxFetchBytes {
				return nil, fmt.Errorf("response exceeds %d bytes", maxFetchBytes)
			}

			return map[string]any{
				"status": resp.StatusCode,
				"body":   string(body),
			}, nil
		},
	}
}

func knowledgeSearchTool(engine *rag.Engine) Tool {
	return Tool{
		Name:        "knowledge_search",
		Description: "Search the knowledge base and return the most relevant chunks",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"query": {
					Type:        "string",
					Description: "Search query",
				},
				"top_k": {
					Type:        "integer",
					Description: "Number of results to return (default 5)",
				},
			},
			Required: []string{"query"},
		},
		Handler: func(ctx context.Context, params map[string]any) (any, error) {
			query, _ := params["query"].(string)
			topK := 5
			if raw, ok := params["top_k"]; ok {
				switch v := raw.(type) {
				case float64:
					topK = int(v)
				case int:
					topK = v
				}
			}

			hits, err := engine.Search(ctx, query, topK)
			if err != nil {
				return nil, err
			}

			results := make([]map[string]any, len(hits))
			for i, h := range hits {
				results[i] = map[string]any{
					"document_id": h.Chunk.DocumentID,
					"text":        h.Chunk.Text,
					"score":       h.Score,
				}
			}
			return map[string]any{"results": results}, nil
		},
	}
}

// evalExpression parses and evaluates an arithmetic expression with a
// small recursive descent parser. Grammar:
//
//	expr   = term { ("+" | "-") term }
//	term   = factor { ("*" | "/") factor }
//	factor = number | "-" factor | "(" expr ")"
func evalExpression(input string) (float64, error) {
	p := &exprParser{input: input}
	value, err := p.parseExpr()
	if err != nil {
		return 0, err
	}
	p.skipSpaces()
	if p.pos < len(p.input) {
		return 0, fmt.Errorf("unexpected character %q at position %d", p.input[p.pos], p.pos)
	}
	return value, nil
}

type exprParser struct {
	input string
	pos   int
}

func (p *exprParser) skipSpaces() {
	for p.pos < len(p.input) && p.input[p.pos] == ' ' {
		p.pos++
	}
}

func (p *exprParser) peek() (byte, bool) {
	p.skipSpaces()
	if p.pos >= len(p.input) {
		return 0, false
	}
	return p.input[p.pos], true
}

func (p *exprParser) parseExpr() (float64, error) {
	value, err := p.parseTerm()
	if err != nil {
		return 0, err
	}
	for {
		op, ok := p.peek()
		if !ok || (op != '+' && op != '-') {
			return value, nil
		}
		p.pos++
		rhs, err := p.parseTerm()
		if err != nil {
			return 0, err
		}
		if op == '+' {
			value += rhs
		} else {
			value -= rhs
		}
	}
}

func (p *exprParser) parseTerm() (float64, error) {
	value, err := p.parseFactor()
	if err != nil {
		return 0, err
	}
	for {
		op, ok := p.peek()
		if !ok || (op != '*' && op != '/') {
			return value, nil
		}
		p.pos++
		rhs, err := p.parseFactor()
		if err != nil {
			return 0, err
		}
		if op == '*' {
			value *= rhs
		} else {
			if rhs == 0 {
				return 0, fmt.Errorf("division by zero")
			}
			value /= rhs
		}
	}
}

func (p *exprParser) parseFactor() (float64, error) {
	ch, ok := p.peek()
	if !ok {
		return 0, fmt.Errorf("unexpected end of expression")
	}

	switch {
	case ch == '-':
		p.pos++
		value, err := p.parseFactor()
		if err != nil {
			return 0, err
		}
		return -value, nil
	case ch == '(':
		p.pos++
		value, err := p.parseExpr()
		if err != nil {
			return 0, err
		}
		next, ok := p.peek()
		if !ok || next != ')' {
			return 0, fmt.Errorf("missing closing parenthesis")
		}
		p.pos++
		return value, nil
	case ch >= '0' && ch <= '9' || ch == '.':
		start := p.pos
		for p.pos < len(p.input) {
			c := p.input[p.pos]
			if (c < '0' || c > '9') && c != '.' {
				break
			}
			p.pos++
		}
		value, err := strconv.ParseFloat(p.input[start:p.pos], 64)
		if err != nil {
			return 0, fmt.Errorf("invalid number %q", p.input[start:p.pos])
		}
		return value, nil
	default:
		return 0, fmt.Errorf("unexpected character %q at position %d", ch, p.pos)
	}
}
