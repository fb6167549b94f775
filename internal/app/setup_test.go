package app

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/arclight-ai/arclight/internal/config"
	"github.com/arclight-ai/arclight/internal/log"
)

func testConfig() *config.Config {
	return &config.Config{
		Providers: []config.ProviderConfig{
			{Name: config.ProviderOllama, BaseURL: "http://localhost:11434", Model: "llama3"},
		},
		ProviderTimeout:       5 * time.Second,
		ProviderMaxRetries:    1,
		ProviderRetryInterval: 10 * time.Millisecond,
		ProviderMaxConcurrent: 2,
		Agents: []config.AgentConfig{
			{ID: "helper", SystemPrompt: "You are helpful.", Temperature: 0.7, RAGEnabled: true},
		},
		RAG: config.RAGConfig{
			ChunkSize:       config.DefaultChunkSize,
			ChunkOverlap:    config.DefaultChunkOverlap,
			TopK:            config.DefaultTopK,
			EmbedderModel:   "text-embedding-3-small",
			EmbedderBaseURL: "http://localhost:11434/v1",
			EmbeddingDim:    8,
		},
		ToolTimeout: 5 * time.Second,
	}
}

func TestSetupInMemory(t *testing.T) {
	cfg := testConfig()
	require.NoError(t, cfg.Validate())

	a, err := Setup(context.Background(), cfg, log.NewNop())
	require.NoError(t, err)
	defer func() { require.NoError(t, a.Close()) }()

	assert.Nil(t, a.Pool)
	assert.NotNil(t, a.Gateway)
	assert.NotNil(t, a.Engine)
	assert.NotNil(t, a.Registry)
	assert.NotNil(t, a.Manager)
	assert.NotNil(t, a.Hub)

	// Builtins are registered, including knowledge_search since the
	// engine is present.
	names := make(map[string]bool)
	for _, d := range a.Registry.List() {
		names[d.Name] = true
	}
	assert.True(t, names["calculator"])
	assert.True(t, names["clock"])
	assert.True(t, names["web_fetch"])
	assert.True(t, names["knowledge_search"])
}

func TestSetupUnknownProvider(t *testing.T) {
	cfg := testConfig()
	cfg.Providers[0].Name = "mystery"

	_, err := Setup(context.Background(), cfg, log.NewNop())
	assert.Error(t, err)
}
