package provider_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/arclight-ai/arclight/internal/provider"
	"github.com/arclight-ai/arclight/internal/testutil"
)

func TestMain(m *testing.M) {
	code := m.Run()
	// Drop idle keep-alive connections left by the httptest clients so
	// they do not register as leaks.
	if t, ok := http.DefaultTransport.(*http.Transport); ok {
		t.CloseIdleConnections()
	}
	if code == 0 {
		if err := goleak.Find(); err != nil {
			fmt.Fprintf(os.Stderr, "goleak: %v\n", err)
			code = 1
		}
	}
	os.Exit(code)
}

func fastConfig() provider.GatewayConfig {
	return provider.GatewayConfig{
		Timeout:         100 * time.Millisecond,
		MaxRetries:      1,
		InitialInterval: time.Millisecond,
		MaxInterval:     2 * time.Millisecond,
		MaxConcurrent:   4,
	}
}

// recordingRecorder collects attempt records for assertions.
type recordingRecorder struct {
	mu      sync.Mutex
	records []provider.AttemptRecord
}

func (r *recordingRecorder) RecordAttempt(_ context.Context, rec provider.AttemptRecord) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
}

func (r *recordingRecorder) all() []provider.AttemptRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]provider.AttemptRecord, len(r.records))
	copy(out, r.records)
	return out
}

func TestGatewayFirstProviderWins(t *testing.T) {
	a := testutil.NewFakeProvider("a", testutil.Outcome{Completion: testutil.TextCompletion("from a", "model-a")})
	b := testutil.NewFakeProvider("b", testutil.Outcome{Completion: testutil.TextCompletion("from b", "model-b")})

	gw, err := provider.NewGateway([]provider.Provider{a, b}, fastConfig(), nil, nil)
	require.NoError(t, err)

	comp, err := gw.Complete(context.Background(), provider.Request{}, provider.CallOptions{})
	require.NoError(t, err)
	assert.Equal(t, "from a", comp.Text)
	assert.Equal(t, "a", comp.Provider)
	assert.Equal(t, int64(0), b.Calls())
}

func TestGatewayFallsBackAfterRetries(t *testing.T) {
	// Provider a always times out; with MaxRetries 1 it is tried exactly
	// twice before the gateway advances to b.
	a := testutil.NewFakeProvider("a", testutil.Outcome{Err: context.DeadlineExceeded})
	b := testutil.NewFakeProvider("b", testutil.Outcome{Completion: testutil.TextCompletion("from b", "model-b")})

	rec := &recordingRecorder{}
	gw, err := provider.NewGateway([]provider.Provider{a, b}, fastConfig(), rec, nil)
	require.NoError(t, err)

	comp, err := gw.Complete(context.Background(), provider.Request{}, provider.CallOptions{})
	require.NoError(t, err)
	assert.Equal(t, "from b", comp.Text)
	assert.Equal(t, int64(2), a.Calls())
	assert.Equal(t, int64(1), b.Calls())

	records := rec.all()
	require.Len(t, records, 3)
	assert.False(t, records[0].Success)
	assert.False(t, records[1].Success)
	assert.True(t, records[2].Success)
}

func TestGatewayNonTransientSkipsRetry(t *testing.T) {
	a := testutil.NewFakeProvider("a", testutil.Outcome{
		Err: &provider.StatusError{Provider: "a", Status: 401, Body: "bad key"},
	})
	b := testutil.NewFakeProvider("b", testutil.Outcome{Completion: testutil.TextCompletion("from b", "model-b")})

	gw, err := provider.NewGateway([]provider.Provider{a, b}, fastConfig(), nil, nil)
	require.NoError(t, err)

	comp, err := gw.Complete(context.Background(), provider.Request{}, provider.CallOptions{})
	require.NoError(t, err)
	assert.Equal(t, "from b", comp.Text)
	assert.Equal(t, int64(1), a.Calls(), "auth failures must not be retried")
}

func TestGatewayExhaustionCarriesEachAttempt(t *testing.T) {
	a := testutil.NewFakeProvider("a", testutil.Outcome{Err: &provider.StatusError{Provider: "a", Status: 500, Body: "boom"}})
	b := testutil.NewFakeProvider("b", testutil.Outcome{Err: &provider.StatusError{Provider: "b", Status: 429, Body: "slow down"}})

	gw, err := provider.NewGateway([]provider.Provider{a, b}, fastConfig(), nil, nil)
	require.NoError(t, err)

	_, err = gw.Complete(context.Background(), provider.Request{}, provider.CallOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, provider.ErrAllProvidersUnavailable)

	var exhausted *provider.ExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Len(t, exhausted.Attempts, 2)
	assert.Equal(t, "a", exhausted.Attempts[0].Provider)
	assert.Equal(t, "b", exhausted.Attempts[1].Provider)
}

func TestGatewayPreferenceListRestrictsOrder(t *testing.T) {
	a := testutil.NewFakeProvider("a", testutil.Outcome{Completion: testutil.TextCompletion("from a", "model-a")})
	b := testutil.NewFakeProvider("b", testutil.Outcome{Completion: testutil.TextCompletion("from b", "model-b")})

	gw, err := provider.NewGateway([]provider.Provider{a, b}, fastConfig(), nil, nil)
	require.NoError(t, err)

	comp, err := gw.Complete(context.Background(), provider.Request{}, provider.CallOptions{
		Providers: []string{"b", "ghost"},
	})
	require.NoError(t, err)
	assert.Equal(t, "from b", comp.Text)
	assert.Equal(t, int64(0), a.Calls())
}

func TestGatewayPerCallTimeout(t *testing.T) {
	slow := testutil.NewFakeProvider("slow", testutil.Outcome{Completion: testutil.TextCompletion("late", "m")})
	slow.Delay = 500 * time.Millisecond

	cfg := fastConfig()
	cfg.MaxRetries = 0
	gw, err := provider.NewGateway([]provider.Provider{slow}, cfg, nil, nil)
	require.NoError(t, err)

	start := time.Now()
	_, err = gw.Complete(context.Background(), provider.Request{}, provider.CallOptions{Timeout: 50 * time.Millisecond})
	require.Error(t, err)
	assert.ErrorIs(t, err, provider.ErrAllProvidersUnavailable)
	assert.Less(t, time.Since(start), 400*time.Millisecond)
}

func TestGatewayCancellationStopsFallback(t *testing.T) {
	a := testutil.NewFakeProvider("a", testutil.Outcome{Err: context.DeadlineExceeded})
	a.Delay = 50 * time.Millisecond
	b := testutil.NewFakeProvider("b", testutil.Outcome{Completion: testutil.TextCompletion("from b", "m")})

	cfg := fastConfig()
	cfg.MaxRetries = 0
	gw, err := provider.NewGateway([]provider.Provider{a, b}, cfg, nil, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err = gw.Complete(ctx, provider.Request{}, provider.CallOptions{})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, int64(0), b.Calls(), "canceled calls must not burn remaining providers")
}

func TestGatewayThrottleQueuesExcessCalls(t *testing.T) {
	slow := testutil.NewFakeProvider("slow", testutil.Outcome{Completion: testutil.TextCompletion("ok", "m")})
	slow.Delay = 50 * time.Millisecond

	cfg := fastConfig()
	cfg.Timeout = time.Second
	cfg.MaxConcurrent = 1
	gw, err := provider.NewGateway([]provider.Provider{slow}, cfg, nil, nil)
	require.NoError(t, err)

	start := time.Now()
	var wg sync.WaitGroup
	errs := make([]error, 3)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = gw.Complete(context.Background(), provider.Request{}, provider.CallOptions{})
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err, "queued calls must succeed, not be rejected")
	}
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond,
		"calls must serialize behind the per-provider throttle")
}

func TestGatewayDuplicateProviderRejected(t *testing.T) {
	a1 := testutil.NewFakeProvider("a")
	a2 := testutil.NewFakeProvider("a")
	_, err := provider.NewGateway([]provider.Provider{a1, a2}, fastConfig(), nil, nil)
	assert.Error(t, err)
}

func TestTransientClassification(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"deadline", context.DeadlineExceeded, true},
		{"rate limit status", &provider.StatusError{Status: 429}, true},
		{"server error", &provider.StatusError{Status: 503}, true},
		{"auth failure", &provider.StatusError{Status: 401}, false},
		{"bad request", &provider.StatusError{Status: 400}, false},
		{"wrapped reset", errors.New("read tcp: connection reset by peer"), true},
		{"plain failure", errors.New("model not found"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, provider.Transient(tt.err))
		})
	}
}
