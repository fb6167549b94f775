package config

import (
	"errors"
	"fmt"
	"slices"
)

// Sentinel errors for configuration validation.
// Wrap with context using fmt.Errorf("%w: details", ErrXxx).
var (
	// ErrConfigNil indicates the configuration is nil.
	ErrConfigNil = errors.New("configuration is nil")

	// ErrNoProviders indicates no LLM provider is configured.
	ErrNoProviders = errors.New("no providers configured")

	// ErrInvalidProvider indicates an unsupported provider name.
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrDuplicateProvider indicates the same provider appears twice in
	// the preference list.
	ErrDuplicateProvider = errors.New("duplicate provider")

	// ErrInvalidAgent indicates an agent definition is malformed.
	ErrInvalidAgent = errors.New("invalid agent definition")

	// ErrInvalidTemperature indicates the temperature value is out of range.
	ErrInvalidTemperature = errors.New("invalid temperature")

	// ErrInvalidChunking indicates chunk size/overlap values are inconsistent.
	ErrInvalidChunking = errors.New("invalid chunking configuration")

	// ErrInvalidTopK indicates the default top_k is out of range.
	ErrInvalidTopK = errors.New("invalid top_k")

	// ErrInvalidEmbedder indicates the embedder configuration is incomplete.
	ErrInvalidEmbedder = errors.New("invalid embedder configuration")

	// ErrInvalidPostgresHost indicates the PostgreSQL host is invalid.
	ErrInvalidPostgresHost = errors.New("invalid PostgreSQL host")

	// ErrInvalidPostgresPort indicates the PostgreSQL port is out of range.
	ErrInvalidPostgresPort = errors.New("invalid PostgreSQL port")

	// ErrInvalidPostgresDBName indicates the PostgreSQL database name is invalid.
	ErrInvalidPostgresDBName = errors.New("invalid PostgreSQL database name")
)

// knownProviders are the provider names the gateway can construct.
var knownProviders = []string{ProviderAnthropic, ProviderOpenAI, ProviderOllama}

// Validate validates configuration values.
// Returns sentinel errors that can be checked with errors.Is().
func (c *Config) Validate() error {
	if c == nil {
		return ErrConfigNil
	}

	if len(c.Providers) == 0 {
		return ErrNoProviders
	}
	seen := make(map[string]bool, len(c.Providers))
	for _, p := range c.Providers {
		if !slices.Contains(knownProviders, p.Name) {
			return fmt.Errorf("%w: %q (supported: %v)", ErrInvalidProvider, p.Name, knownProviders)
		}
		if seen[p.Name] {
			return fmt.Errorf("%w: %q listed twice", ErrDuplicateProvider, p.Name)
		}
		seen[p.Name] = true
		if p.Model == "" {
			return fmt.Errorf("%w: %q has no model configured", ErrInvalidProvider, p.Name)
		}
	}

	if c.ProviderMaxRetries < 0 {
		return fmt.Errorf("%w: provider_max_retries must be >= 0, got %d",
			ErrInvalidProvider, c.ProviderMaxRetries)
	}
	if c.ProviderMaxConcurrent < 1 {
		return fmt.Errorf("%w: provider_max_concurrent must be >= 1, got %d",
			ErrInvalidProvider, c.ProviderMaxConcurrent)
	}

	agentIDs := make(map[string]bool, len(c.Agents))
	for _, a := range c.Agents {
		if a.ID == "" {
			return fmt.Errorf("%w: agent id cannot be empty", ErrInvalidAgent)
		}
		if agentIDs[a.ID] {
			return fmt.Errorf("%w: duplicate agent id %q", ErrInvalidAgent, a.ID)
		}
		agentIDs[a.ID] = true

		// Temperature range: 0.0 (deterministic) to 2.0.
		if a.Temperature < 0.0 || a.Temperature > 2.0 {
			return fmt.Errorf("%w: agent %q: must be between 0.0 and 2.0, got %.2f",
				ErrInvalidTemperature, a.ID, a.Temperature)
		}
		if a.MaxToolChain < 0 {
			return fmt.Errorf("%w: agent %q: max_tool_chain must be >= 0", ErrInvalidAgent, a.ID)
		}
	}

	if c.RAG.ChunkSize < 1 {
		return fmt.Errorf("%w: chunk_size must be >= 1, got %d", ErrInvalidChunking, c.RAG.ChunkSize)
	}
	if c.RAG.ChunkOverlap < 0 || c.RAG.ChunkOverlap >= c.RAG.ChunkSize {
		return fmt.Errorf("%w: chunk_overlap must be in [0, chunk_size), got %d",
			ErrInvalidChunking, c.RAG.ChunkOverlap)
	}
	if c.RAG.TopK < 1 || c.RAG.TopK > 100 {
		return fmt.Errorf("%w: must be between 1 and 100, got %d", ErrInvalidTopK, c.RAG.TopK)
	}
	if c.RAG.EmbedderModel == "" {
		return fmt.Errorf("%w: embedder_model cannot be empty", ErrInvalidEmbedder)
	}
	if c.RAG.EmbeddingDim < 1 {
		return fmt.Errorf("%w: embedding_dim must be >= 1, got %d", ErrInvalidEmbedder, c.RAG.EmbeddingDim)
	}

	if c.PostgresEnabled {
		if c.PostgresHost == "" {
			return fmt.Errorf("%w: host cannot be empty", ErrInvalidPostgresHost)
		}
		if c.PostgresPort < 1 || c.PostgresPort > 65535 {
			return fmt.Errorf("%w: must be between 1 and 65535, got %d",
				ErrInvalidPostgresPort, c.PostgresPort)
		}
		if c.PostgresDBName == "" {
			return fmt.Errorf("%w: database name cannot be empty", ErrInvalidPostgresDBName)
		}
	}

	return nil
}
