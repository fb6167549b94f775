package ws

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arclight-ai/arclight/internal/agent"
)

// fakeChatter replays canned responses with optional per-message delay.
type fakeChatter struct {
	mu      sync.Mutex
	delays  map[string]time.Duration
	errs    map[string]error
	dropped []string
}

func newFakeChatter() *fakeChatter {
	return &fakeChatter{
		delays: make(map[string]time.Duration),
		errs:   make(map[string]error),
	}
}

func (f *fakeChatter) Chat(ctx context.Context, req agent.ChatRequest) (*agent.ChatResponse, error) {
	f.mu.Lock()
	delay := f.delays[req.Message]
	err := f.errs[req.Message]
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	return &agent.ChatResponse{
		Response: "echo: " + req.Message,
		AgentID:  req.AgentID,
		Model:    "fake-model",
	}, nil
}

func (f *fakeChatter) DropConversations(clientID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dropped = append(f.dropped, clientID)
}

type wsFixture struct {
	hub     *Hub
	chatter *fakeChatter
	server  *httptest.Server
}

func newWSFixture(t *testing.T) *wsFixture {
	t.Helper()

	chatter := newFakeChatter()
	hub := NewHub(chatter, Config{
		DefaultAgent:  "helper",
		MaxMessageLen: 1024,
		CheckOrigin:   func(*http.Request) bool { return true },
	}, nil)

	mux := http.NewServeMux()
	mux.Handle("GET /ws/{client_id}", hub)
	server := httptest.NewServer(mux)

	t.Cleanup(func() {
		hub.CloseAll()
		server.Close()
	})
	return &wsFixture{hub: hub, chatter: chatter, server: server}
}

func (f *wsFixture) dial(t *testing.T, clientID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws/" + clientID
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	var env Envelope
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func TestConnectionEnvelopeOnOpen(t *testing.T) {
	f := newWSFixture(t)
	conn := f.dial(t, "alice")

	env := readEnvelope(t, conn)
	assert.Equal(t, TypeConnection, env.Type)
	assert.Contains(t, string(env.Payload), "alice")
	assert.Equal(t, 1, f.hub.ClientCount())
}

func TestMessageResponseRoundTrip(t *testing.T) {
	f := newWSFixture(t)
	conn := f.dial(t, "alice")
	readEnvelope(t, conn) // connection envelope

	require.NoError(t, conn.WriteJSON(Envelope{Type: TypeMessage, Message: "hi"}))

	env := readEnvelope(t, conn)
	assert.Equal(t, TypeResponse, env.Type)
	assert.Equal(t, "echo: hi", env.Message)
	assert.Equal(t, "helper", env.AgentID)
}

func TestResponsesPreserveRequestOrder(t *testing.T) {
	f := newWSFixture(t)
	f.chatter.delays["M1"] = 200 * time.Millisecond

	conn := f.dial(t, "alice")
	readEnvelope(t, conn)

	require.NoError(t, conn.WriteJSON(Envelope{Type: TypeMessage, Message: "M1"}))
	require.NoError(t, conn.WriteJSON(Envelope{Type: TypeMessage, Message: "M2"}))

	first := readEnvelope(t, conn)
	second := readEnvelope(t, conn)
	assert.Equal(t, "echo: M1", first.Message)
	assert.Equal(t, "echo: M2", second.Message)
}

func TestClientsAreIndependent(t *testing.T) {
	f := newWSFixture(t)
	f.chatter.delays["slow"] = time.Second

	slow := f.dial(t, "slowpoke")
	fast := f.dial(t, "speedy")
	readEnvelope(t, slow)
	readEnvelope(t, fast)

	require.NoError(t, slow.WriteJSON(Envelope{Type: TypeMessage, Message: "slow"}))
	require.NoError(t, fast.WriteJSON(Envelope{Type: TypeMessage, Message: "quick"}))

	start := time.Now()
	env := readEnvelope(t, fast)
	assert.Equal(t, "echo: quick", env.Message)
	assert.Less(t, time.Since(start), 500*time.Millisecond,
		"another client's slow turn must not delay this one")
}

func TestErrorEnvelopeKeepsConnectionOpen(t *testing.T) {
	f := newWSFixture(t)
	f.chatter.errs["bad"] = agent.ErrUnknownAgent

	conn := f.dial(t, "alice")
	readEnvelope(t, conn)

	require.NoError(t, conn.WriteJSON(Envelope{Type: TypeMessage, Message: "bad"}))
	env := readEnvelope(t, conn)
	assert.Equal(t, TypeError, env.Type)
	assert.Equal(t, "unknown agent", env.Message)

	// Connection remains usable after a recoverable failure.
	require.NoError(t, conn.WriteJSON(Envelope{Type: TypeMessage, Message: "hi"}))
	env = readEnvelope(t, conn)
	assert.Equal(t, TypeResponse, env.Type)
}

func TestPingPong(t *testing.T) {
	f := newWSFixture(t)
	conn := f.dial(t, "alice")
	readEnvelope(t, conn)

	require.NoError(t, conn.WriteJSON(Envelope{Type: TypePing}))
	env := readEnvelope(t, conn)
	assert.Equal(t, TypePong, env.Type)
}

func TestInvalidEnvelopes(t *testing.T) {
	f := newWSFixture(t)
	conn := f.dial(t, "alice")
	readEnvelope(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	assert.Equal(t, TypeError, readEnvelope(t, conn).Type)

	require.NoError(t, conn.WriteJSON(Envelope{Type: "bogus"}))
	assert.Equal(t, TypeError, readEnvelope(t, conn).Type)

	require.NoError(t, conn.WriteJSON(Envelope{Type: TypeMessage, Message: ""}))
	assert.Equal(t, TypeError, readEnvelope(t, conn).Type)

	require.NoError(t, conn.WriteJSON(Envelope{Type: TypeMessage, Message: strings.Repeat("x", 2048)}))
	assert.Equal(t, TypeError, readEnvelope(t, conn).Type)
}

func TestDisconnectDropsConversations(t *testing.T) {
	f := newWSFixture(t)
	conn := f.dial(t, "alice")
	readEnvelope(t, conn)
	require.Equal(t, 1, f.hub.ClientCount())

	conn.Close()

	require.Eventually(t, func() bool {
		return f.hub.ClientCount() == 0
	}, 2*time.Second, 10*time.Millisecond)

	f.chatter.mu.Lock()
	defer f.chatter.mu.Unlock()
	assert.Contains(t, f.chatter.dropped, "alice")
}
