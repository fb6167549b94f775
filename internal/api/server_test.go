package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/jsonschema-go/jsonschema"
	gws "github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arclight-ai/arclight/internal/agent"
	"github.com/arclight-ai/arclight/internal/config"
	"github.com/arclight-ai/arclight/internal/provider"
	"github.com/arclight-ai/arclight/internal/rag"
	"github.com/arclight-ai/arclight/internal/testutil"
	"github.com/arclight-ai/arclight/internal/tools"
	"github.com/arclight-ai/arclight/internal/ws"
)

func newTestServer(t *testing.T, script ...testutil.Outcome) *httptest.Server {
	t.Helper()

	if len(script) == 0 {
		script = []testutil.Outcome{{Completion: testutil.TextCompletion("hello", "fake-model")}}
	}
	fake := testutil.NewFakeProvider("fake", script...)
	gw, err := provider.NewGateway([]provider.Provider{fake}, provider.GatewayConfig{
		Timeout:       time.Second,
		MaxConcurrent: 4,
	}, nil, nil)
	require.NoError(t, err)

	engine, err := rag.NewEngine(
		rag.Config{ChunkSize: 200, ChunkOverlap: 20},
		&testutil.FakeEmbedder{Dim: 8},
		rag.NewMemoryIndex(),
		nil,
	)
	require.NoError(t, err)

	registry := tools.NewRegistry(time.Second, nil)
	require.NoError(t, registry.Register(tools.Tool{
		Name:        "echo",
		Description: "echo text back",
		InputSchema: &jsonschema.Schema{
			Type: "object",
			Properties: map[string]*jsonschema.Schema{
				"text": {Type: "string"},
			},
			Required: []string{"text"},
		},
		Handler: func(_ context.Context, params map[string]any) (any, error) {
			return params["text"], nil
		},
	}))

	mgr, err := agent.NewManager(
		[]config.AgentConfig{{ID: "helper", Model: "fake-model", Tools: []string{"echo"}}},
		[]config.ProviderConfig{{Name: "fake"}},
		gw, engine, registry, nil, 0, nil,
	)
	require.NoError(t, err)

	hub := ws.NewHub(mgr, ws.Config{DefaultAgent: "helper"}, nil)

	srv, err := NewServer(ServerConfig{
		Manager:   mgr,
		Registry:  registry,
		Engine:    engine,
		Hub:       hub,
		RateBurst: 1000,
	})
	require.NoError(t, err)

	server := httptest.NewServer(srv)
	t.Cleanup(server.Close)
	return server
}

func postJSON(t *testing.T, url string, body any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	return body
}

func TestHealth(t *testing.T) {
	server := newTestServer(t)
	resp, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", decodeBody(t, resp)["status"])
	assert.NotEmpty(t, resp.Header.Get("X-Request-ID"))
}

func TestRootInfo(t *testing.T) {
	server := newTestServer(t)
	resp, err := http.Get(server.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "arclight", body["service"])
	assert.Equal(t, "running", body["status"])
	assert.NotEmpty(t, body["version"])
}

func TestChatMessageTooLongIs400(t *testing.T) {
	server := newTestServer(t)

	huge := bytes.Repeat([]byte("a"), (64<<10)+1)
	resp := postJSON(t, server.URL+"/chat", map[string]any{
		"message":  string(huge),
		"agent_id": "helper",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestChatEndpoint(t *testing.T) {
	server := newTestServer(t)

	resp := postJSON(t, server.URL+"/chat", map[string]any{
		"message":  "hi",
		"agent_id": "helper",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "hello", body["response"])
	assert.Equal(t, "helper", body["agent_id"])
	assert.Equal(t, "fake-model", body["model"])
	assert.NotNil(t, body["usage"])
}

func TestChatUnknownAgentIs400(t *testing.T) {
	server := newTestServer(t)

	resp := postJSON(t, server.URL+"/chat", map[string]any{
		"message":  "hi",
		"agent_id": "nobody",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "unknown_agent", decodeBody(t, resp)["error"])
}

func TestChatProviderExhaustionIs502(t *testing.T) {
	server := newTestServer(t, testutil.Outcome{
		Err: &provider.StatusError{Provider: "fake", Status: 401, Body: "no"},
	})

	resp := postJSON(t, server.URL+"/chat", map[string]any{
		"message":  "hi",
		"agent_id": "helper",
	})
	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.Equal(t, "all_providers_unavailable", decodeBody(t, resp)["error"])
}

func TestListAgents(t *testing.T) {
	server := newTestServer(t)

	resp, err := http.Get(server.URL + "/agents")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	agents, ok := body["agents"].([]any)
	require.True(t, ok)
	require.Len(t, agents, 1)
	first := agents[0].(map[string]any)
	assert.Equal(t, "helper", first["id"])
	assert.Equal(t, "chat", first["type"])
	assert.NotNil(t, first["stats"])
}

func TestRagIngestAndSearch(t *testing.T) {
	server := newTestServer(t)

	resp := postJSON(t, server.URL+"/rag/ingest", map[string]any{
		"text":  "the quick brown fox",
		"chunk": false,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	docID, _ := decodeBody(t, resp)["document_id"].(string)
	require.NotEmpty(t, docID)

	searchResp, err := http.Get(server.URL + "/rag/search?query=the+quick+brown+fox&top_k=3")
	require.NoError(t, err)
	defer searchResp.Body.Close()
	require.Equal(t, http.StatusOK, searchResp.StatusCode)

	results := decodeBody(t, searchResp)["results"].([]any)
	require.NotEmpty(t, results)
	top := results[0].(map[string]any)
	assert.InDelta(t, 1.0, top["score"].(float64), 1e-5)
	assert.Equal(t, docID, top["document"].(map[string]any)["id"])
}

func TestRagSearchInvalidTopK(t *testing.T) {
	server := newTestServer(t)

	for _, q := range []string{"query=x&top_k=0", "query=x&top_k=-2", "query=x&top_k=abc"} {
		resp, err := http.Get(fmt.Sprintf("%s/rag/search?%s", server.URL, q))
		require.NoError(t, err)
		resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode, q)
	}
}

func TestRagDeleteDocument(t *testing.T) {
	server := newTestServer(t)

	resp := postJSON(t, server.URL+"/rag/ingest", map[string]any{
		"text":  "document to delete",
		"chunk": false,
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	docID := decodeBody(t, resp)["document_id"].(string)

	req, err := http.NewRequest(http.MethodDelete, server.URL+"/rag/documents/"+docID, nil)
	require.NoError(t, err)
	delResp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer delResp.Body.Close()
	assert.Equal(t, http.StatusOK, delResp.StatusCode)

	// Deleting again finds nothing.
	again, err := http.DefaultClient.Do(req.Clone(context.Background()))
	require.NoError(t, err)
	defer again.Body.Close()
	assert.Equal(t, http.StatusNotFound, again.StatusCode)
}

func TestRagStats(t *testing.T) {
	server := newTestServer(t)

	resp := postJSON(t, server.URL+"/rag/ingest", map[string]any{"text": "some text", "chunk": false})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	statsResp, err := http.Get(server.URL + "/rag/stats")
	require.NoError(t, err)
	defer statsResp.Body.Close()
	require.Equal(t, http.StatusOK, statsResp.StatusCode)

	body := decodeBody(t, statsResp)
	assert.EqualValues(t, 1, body["chunk_count"])
	assert.EqualValues(t, 8, body["embedding_dim"])
}

func TestRagIngestDefaultsToSingleChunk(t *testing.T) {
	server := newTestServer(t)

	// Longer than the configured chunk size, with no "chunk" key.
	long := strings.Repeat("words keep coming ", 30)
	resp := postJSON(t, server.URL+"/rag/ingest", map[string]any{"text": long})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NotEmpty(t, decodeBody(t, resp)["document_id"])

	statsResp, err := http.Get(server.URL + "/rag/stats")
	require.NoError(t, err)
	defer statsResp.Body.Close()
	assert.EqualValues(t, 1, decodeBody(t, statsResp)["chunk_count"])
}

func TestToolsEndpoints(t *testing.T) {
	server := newTestServer(t)

	resp, err := http.Get(server.URL + "/mcp/tools")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	list := decodeBody(t, resp)["tools"].([]any)
	require.Len(t, list, 1)
	assert.Equal(t, "echo", list[0].(map[string]any)["name"])

	exec := postJSON(t, server.URL+"/mcp/execute", map[string]any{
		"tool_name":  "echo",
		"parameters": map[string]any{"text": "ping"},
	})
	require.Equal(t, http.StatusOK, exec.StatusCode)
	body := decodeBody(t, exec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "ping", body["output"])

	missing := postJSON(t, server.URL+"/mcp/execute", map[string]any{
		"tool_name":  "nope",
		"parameters": map[string]any{},
	})
	assert.Equal(t, http.StatusNotFound, missing.StatusCode)

	invalid := postJSON(t, server.URL+"/mcp/execute", map[string]any{
		"tool_name":  "echo",
		"parameters": map[string]any{"wrong": 1},
	})
	assert.Equal(t, http.StatusBadRequest, invalid.StatusCode)
}

func TestUnknownFieldRejected(t *testing.T) {
	server := newTestServer(t)

	resp := postJSON(t, server.URL+"/chat", map[string]any{
		"message":  "hi",
		"agent_id": "helper",
		"extra":    true,
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

// The upgrader needs http.Hijacker from the wrapped response writer, so
// the handshake must succeed through the full middleware chain, not
// just a bare mux.
func TestWebSocketHandshakeThroughServer(t *testing.T) {
	server := newTestServer(t)

	wsURL := "ws" + strings.TrimPrefix(server.URL, "http") + "/ws/client-1"
	conn, resp, err := gws.DefaultDialer.Dial(wsURL, nil)
	if resp != nil {
		defer resp.Body.Close()
	}
	require.NoError(t, err)
	defer conn.Close()

	var env ws.Envelope
	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, ws.TypeConnection, env.Type)

	require.NoError(t, conn.WriteJSON(ws.Envelope{Type: ws.TypeMessage, Message: "hi"}))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	require.NoError(t, conn.ReadJSON(&env))
	assert.Equal(t, ws.TypeResponse, env.Type)
	assert.Equal(t, "hello", env.Message)
}
