package provider

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/arclight-ai/arclight/internal/log"
)

// AttemptRecord describes one provider attempt, success or failure.
// Every attempt is recorded for usage accounting and observability.
type AttemptRecord struct {
	Provider string
	Model    string
	Success  bool
	Error    string
	Duration time.Duration
	Usage    Usage
	Retries  int
}

// AttemptRecorder receives a record for every provider attempt.
// Implementations must be safe for concurrent use and must not block
// the calling turn; recording failures are logged, never surfaced.
type AttemptRecorder interface {
	RecordAttempt(ctx context.Context, rec AttemptRecord)
}

// nopRecorder discards attempt records.
type nopRecorder struct{}

func (nopRecorder) RecordAttempt(context.Context, AttemptRecord) {}

// GatewayConfig configures retry, timeout and throttling policy.
type GatewayConfig struct {
	// Timeout bounds each individual provider call. CallOptions.Timeout
	// overrides it per call.
	Timeout time.Duration

	// MaxRetries is the number of retries (beyond the first attempt)
	// for transient errors before advancing to the next provider.
	MaxRetries int

	// InitialInterval is the first backoff delay; it doubles per retry
	// up to MaxInterval.
	InitialInterval time.Duration
	MaxInterval     time.Duration

	// MaxConcurrent caps in-flight calls per provider. Excess callers
	// queue rather than fail.
	MaxConcurrent int64
}

// DefaultGatewayConfig returns sensible defaults for LLM API calls.
func DefaultGatewayConfig() GatewayConfig {
	return GatewayConfig{
		Timeout:         60 * time.Second,
		MaxRetries:      2,
		InitialInterval: 500 * time.Millisecond,
		MaxInterval:     10 * time.Second,
		MaxConcurrent:   8,
	}
}

// CallOptions adjust a single Complete call.
type CallOptions struct {
	// Providers restricts and reorders the preference list for this
	// call. Names not registered with the gateway are ignored. Empty
	// means the gateway's configured order.
	Providers []string

	// Timeout overrides GatewayConfig.Timeout when positive.
	Timeout time.Duration
}

// Gateway routes completion requests to an ordered list of providers
// with per-provider retry and fallback.
//
// Gateway is safe for concurrent use.
type Gateway struct {
	providers []Provider
	byName    map[string]Provider
	sems      map[string]*semaphore.Weighted
	cfg       GatewayConfig
	recorder  AttemptRecorder
	logger    log.Logger
}

// NewGateway creates a gateway over the given providers. Order is the
// fallback order. recorder may be nil.
func NewGateway(providers []Provider, cfg GatewayConfig, recorder AttemptRecorder, logger log.Logger) (*Gateway, error) {
	if len(providers) == 0 {
		return nil, fmt.Errorf("at least one provider is required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultGatewayConfig().Timeout
	}
	if cfg.InitialInterval <= 0 {
		cfg.InitialInterval = DefaultGatewayConfig().InitialInterval
	}
	if cfg.MaxInterval <= 0 {
		cfg.MaxInterval = DefaultGatewayConfig().MaxInterval
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = DefaultGatewayConfig().MaxConcurrent
	}
	if recorder == nil {
		recorder = nopRecorder{}
	}
	if logger == nil {
		logger = log.NewNop()
	}

	byName := make(map[string]Provider, len(providers))
	sems := make(map[string]*semaphore.Weighted, len(providers))
	for _, p := range providers {
		if _, dup := byName[p.Name()]; dup {
			return nil, fmt.Errorf("duplicate provider %q", p.Name())
		}
		byName[p.Name()] = p
		sems[p.Name()] = semaphore.NewWeighted(cfg.MaxConcurrent)
	}

	return &Gateway{
		providers: providers,
		byName:    byName,
		sems:      sems,
		cfg:       cfg,
		recorder:  recorder,
		logger:    logger,
	}, nil
}

// Providers returns the configured fallback order.
func (g *Gateway) Providers() []string {
	names := make([]string, len(g.providers))
	for i, p := range g.providers {
		names[i] = p.Name()
	}
	return names
}

// Complete attempts providers in preference order until one succeeds.
// A provider attempt fails on timeout, rate limit or transport error;
// transient failures are retried with exponential backoff before the
// gateway advances to the next provider. When the list is exhausted the
// returned error satisfies errors.Is(err, ErrAllProvidersUnavailable)
// and carries the last error from each attempted provider.
func (g *Gateway) Complete(ctx context.Context, req Request, opts CallOptions) (*Completion, error) {
	order := g.order(opts.Providers)
	if len(order) == 0 {
		return nil, fmt.Errorf("no usable providers in preference list")
	}

	timeout := g.cfg.Timeout
	if opts.Timeout > 0 {
		timeout = opts.Timeout
	}

	var attempts []ProviderError
	for _, p := range order {
		comp, err := g.completeOne(ctx, p, req, timeout)
		if err == nil {
			return comp, nil
		}
		if ctx.Err() != nil {
			// Caller canceled; do not burn the remaining providers.
			return nil, fmt.Errorf("gateway call canceled: %w", ctx.Err())
		}
		attempts = append(attempts, ProviderError{Provider: p.Name(), Err: err})
		g.logger.Warn("provider failed, falling back",
			"provider", p.Name(),
			"error", err,
			"remaining", len(order)-len(attempts),
		)
	}

	return nil, &ExhaustedError{Attempts: attempts}
}

// order resolves the effective provider order for one call.
func (g *Gateway) order(preferred []string) []Provider {
	if len(preferred) == 0 {
		return g.providers
	}
	order := make([]Provider, 0, len(preferred))
	for _, name := range preferred {
		if p, ok := g.byName[name]; ok {
			order = append(order, p)
		}
	}
	return order
}

// completeOne runs the retry loop against a single provider.
func (g *Gateway) completeOne(ctx context.Context, p Provider, req Request, timeout time.Duration) (*Completion, error) {
	sem := g.sems[p.Name()]
	if err := sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for %s slot: %w", p.Name(), err)
	}
	defer sem.Release(1)

	var lastErr error
	delay := g.cfg.InitialInterval

	for attempt := 0; attempt <= g.cfg.MaxRetries; attempt++ {
		start := time.Now()
		callCtx, cancel := context.WithTimeout(ctx, timeout)
		comp, err := p.Complete(callCtx, req)
		cancel()
		elapsed := time.Since(start)

		rec := AttemptRecord{
			Provider: p.Name(),
			Success:  err == nil,
			Duration: elapsed,
			Retries:  attempt,
		}
		if comp != nil {
			rec.Model = comp.Model
			rec.Usage = comp.Usage
		}
		if err != nil {
			rec.Error = err.Error()
		}
		g.recorder.RecordAttempt(ctx, rec)

		if err == nil {
			g.logger.Debug("provider call succeeded",
				"provider", p.Name(), "attempts", attempt+1, "elapsed", elapsed)
			return comp, nil
		}

		lastErr = err

		// Non-transient: advance to the next provider immediately.
		if !Transient(err) {
			return nil, err
		}

		if attempt == g.cfg.MaxRetries {
			break
		}

		g.logger.Debug("retrying provider after transient error",
			"provider", p.Name(), "attempt", attempt+1, "delay", delay, "error", err)

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("context canceled during retry: %w", ctx.Err())
		case <-time.After(delay):
			delay = min(delay*2, g.cfg.MaxInterval)
		}
	}

	return nil, fmt.Errorf("provider %s failed after %d retries: %w", p.Name(), g.cfg.MaxRetries, lastErr)
}
