// Package testutil provides shared fakes for package tests.
package testutil

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"sync"
	"sync/atomic"
	"time"

	"github.com/arclight-ai/arclight/internal/provider"
)

// Outcome is one scripted provider response. Either Completion or Err
// is set.
type Outcome struct {
	Completion *provider.Completion
	Err        error
}

// FakeProvider replays a script of outcomes in order. Once the script
// is exhausted it keeps returning the last outcome. A zero script
// always fails.
type FakeProvider struct {
	ProviderName string
	Delay        time.Duration

	mu      sync.Mutex
	script  []Outcome
	lastReq provider.Request
	calls   atomic.Int64
}

// NewFakeProvider creates a provider that replays the given outcomes.
func NewFakeProvider(name string, script ...Outcome) *FakeProvider {
	return &FakeProvider{ProviderName: name, script: script}
}

func (f *FakeProvider) Name() string { return f.ProviderName }

// Calls returns how many times Complete has been invoked.
func (f *FakeProvider) Calls() int64 { return f.calls.Load() }

// LastRequest returns the most recent request passed to Complete.
func (f *FakeProvider) LastRequest() provider.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastReq
}

func (f *FakeProvider) Complete(ctx context.Context, req provider.Request) (*provider.Completion, error) {
	f.calls.Add(1)
	f.mu.Lock()
	f.lastReq = req
	f.mu.Unlock()

	if f.Delay > 0 {
		select {
		case <-time.After(f.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	var out Outcome
	switch {
	case len(f.script) == 0:
		out = Outcome{Err: context.DeadlineExceeded}
	case len(f.script) == 1:
		out = f.script[0]
	default:
		out = f.script[0]
		f.script = f.script[1:]
	}
	f.mu.Unlock()

	if out.Err != nil {
		return nil, out.Err
	}
	c := *out.Completion
	if c.Provider == "" {
		c.Provider = f.ProviderName
	}
	return &c, nil
}

// TextCompletion builds a plain-text completion for scripting.
func TextCompletion(text, model string) *provider.Completion {
	return &provider.Completion{
		Text:  text,
		Model: model,
		Usage: provider.Usage{InputTokens: 10, OutputTokens: 5},
	}
}

// ToolCallCompletion builds a completion requesting one tool call.
func ToolCallCompletion(callID, tool string, args map[string]any) *provider.Completion {
	return &provider.Completion{
		ToolCalls: []provider.ToolCall{{ID: callID, Name: tool, Arguments: args}},
		Model:     "fake-model",
		Usage:     provider.Usage{InputTokens: 10, OutputTokens: 5},
	}
}

// FakeEmbedder derives a deterministic unit vector from each text, so
// identical texts embed identically and exact-match search scores 1.0.
type FakeEmbedder struct {
	Dim int
	Err error
}

func (f *FakeEmbedder) Dimension() int {
	if f.Dim <= 0 {
		return 8
	}
	return f.Dim
}

func (f *FakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.Err != nil {
		return nil, f.Err
	}
	dim := f.Dimension()
	out := make([][]float32, len(texts))
	for i, text := range texts {
		out[i] = embedText(text, dim)
	}
	return out, nil
}

func embedText(text string, dim int) []float32 {
	sum := sha256.Sum256([]byte(text))
	vec := make([]float32, dim)
	var norm float64
	for i := range vec {
		// Cycle over the digest to fill arbitrary dimensions.
		off := (i * 4) % (len(sum) - 3)
		v := float64(binary.BigEndian.Uint32(sum[off:off+4]))/math.MaxUint32 - 0.5
		vec[i] = float32(v)
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		vec[0] = 1
		return vec
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}
