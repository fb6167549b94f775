// Package config provides application configuration with multi-source priority.
//
// Configuration sources (highest to lowest priority):
//  1. Environment variables (runtime override)
//  2. Config file (~/.arclight/config.yaml or ./config.yaml)
//  3. Default values
//
// Main configuration categories:
//   - Providers: ordered LLM provider preference list with retry/timeout policy
//   - Agents: immutable agent definitions loaded at process start
//   - RAG: chunking, search and embedding settings
//   - Storage: PostgreSQL connection for durable state
//   - Server: HTTP/WebSocket serve settings
//
// Validation: range checks in validation.go with sentinel errors for
// Go-idiomatic checking via errors.Is().
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/viper"
)

// Provider name identifiers used in ProviderConfig.Name.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
)

// Defaults applied when the config file and environment leave a value unset.
const (
	DefaultChunkSize     = 1000
	DefaultChunkOverlap  = 200
	DefaultTopK          = 5
	DefaultMaxToolChain  = 5
	DefaultMaxTokens     = 4000
	DefaultMaxRetries    = 2
	DefaultMaxConcurrent = 8
)

// ProviderConfig describes one LLM backend. Order in Config.Providers is
// the gateway's fallback order.
type ProviderConfig struct {
	Name    string `mapstructure:"name" json:"name"`
	APIKey  string `mapstructure:"api_key" json:"api_key"` // SENSITIVE: masked in logs
	BaseURL string `mapstructure:"base_url" json:"base_url"`
	Model   string `mapstructure:"model" json:"model"`

	// Pricing per 1K tokens, used for usage cost accounting.
	InputCostPer1K  float64 `mapstructure:"input_cost_per_1k" json:"input_cost_per_1k"`
	OutputCostPer1K float64 `mapstructure:"output_cost_per_1k" json:"output_cost_per_1k"`
}

// AgentConfig describes one agent definition. Agents are created from
// these entries at startup and are immutable afterwards.
type AgentConfig struct {
	ID           string   `mapstructure:"id" json:"id"`
	SystemPrompt string   `mapstructure:"system_prompt" json:"system_prompt"`
	Model        string   `mapstructure:"model" json:"model"`
	Temperature  float32  `mapstructure:"temperature" json:"temperature"`
	Tools        []string `mapstructure:"tools" json:"tools"`
	RAGEnabled   bool     `mapstructure:"rag_enabled" json:"rag_enabled"`
	MaxToolChain int      `mapstructure:"max_tool_chain" json:"max_tool_chain"`

	// MaxContextTokens caps the token estimate of the message list sent
	// to the provider; oldest messages are evicted beyond it.
	MaxContextTokens int `mapstructure:"max_context_tokens" json:"max_context_tokens"`
}

// RAGConfig holds retrieval engine settings.
type RAGConfig struct {
	ChunkSize    int `mapstructure:"chunk_size" json:"chunk_size"`
	ChunkOverlap int `mapstructure:"chunk_overlap" json:"chunk_overlap"`
	TopK         int `mapstructure:"top_k" json:"top_k"`

	// Embedding provider (OpenAI-compatible /v1/embeddings endpoint).
	EmbedderModel   string `mapstructure:"embedder_model" json:"embedder_model"`
	EmbedderBaseURL string `mapstructure:"embedder_base_url" json:"embedder_base_url"`
	EmbedderAPIKey  string `mapstructure:"embedder_api_key" json:"embedder_api_key"` // SENSITIVE
	EmbeddingDim    int    `mapstructure:"embedding_dim" json:"embedding_dim"`
}

// TracingConfig holds the OTLP exporter settings.
type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled" json:"enabled"`
	AgentHost   string `mapstructure:"agent_host" json:"agent_host"`
	ServiceName string `mapstructure:"service_name" json:"service_name"`
	Environment string `mapstructure:"environment" json:"environment"`
}

// Config stores application configuration.
type Config struct {
	Providers []ProviderConfig `mapstructure:"providers" json:"providers"`

	// Provider gateway policy.
	ProviderTimeout       time.Duration `mapstructure:"provider_timeout" json:"provider_timeout"`
	ProviderMaxRetries    int           `mapstructure:"provider_max_retries" json:"provider_max_retries"`
	ProviderRetryInterval time.Duration `mapstructure:"provider_retry_interval" json:"provider_retry_interval"`
	ProviderMaxConcurrent int           `mapstructure:"provider_max_concurrent" json:"provider_max_concurrent"`

	Agents []AgentConfig `mapstructure:"agents" json:"agents"`

	RAG RAGConfig `mapstructure:"rag" json:"rag"`

	// Tool execution policy.
	ToolTimeout time.Duration `mapstructure:"tool_timeout" json:"tool_timeout"`

	// Storage configuration. PostgresEnabled false runs fully in memory.
	PostgresEnabled  bool   `mapstructure:"postgres_enabled" json:"postgres_enabled"`
	PostgresHost     string `mapstructure:"postgres_host" json:"postgres_host"`
	PostgresPort     int    `mapstructure:"postgres_port" json:"postgres_port"`
	PostgresUser     string `mapstructure:"postgres_user" json:"postgres_user"`
	PostgresPassword string `mapstructure:"postgres_password" json:"postgres_password"` // SENSITIVE
	PostgresDBName   string `mapstructure:"postgres_db_name" json:"postgres_db_name"`
	PostgresSSLMode  string `mapstructure:"postgres_ssl_mode" json:"postgres_ssl_mode"`

	// Server configuration (serve mode only).
	CORSOrigins   []string `mapstructure:"cors_origins" json:"cors_origins"`
	TrustProxy    bool     `mapstructure:"trust_proxy" json:"trust_proxy"`
	RateBurst     int      `mapstructure:"rate_burst" json:"rate_burst"`
	MaxMessageLen int      `mapstructure:"max_message_len" json:"max_message_len"`

	Tracing TracingConfig `mapstructure:"tracing" json:"tracing"`
}

// Load loads configuration.
// Priority: Environment variables > Configuration file > Default values
func Load() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, fmt.Errorf("getting user home directory: %w", err)
	}

	configDir := filepath.Join(home, ".arclight")
	if err := os.MkdirAll(configDir, 0o750); err != nil {
		return nil, fmt.Errorf("creating config directory: %w", err)
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	setDefaults()
	bindEnvVariables()

	if err := viper.ReadInConfig(); err != nil {
		// A missing config file is not an error; defaults apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		slog.Debug("configuration file not found, using defaults",
			"search_paths", []string{configDir, "."})
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("parsing configuration: %w", err)
	}

	cfg.applyEnvSecrets()

	if err := cfg.parseDatabaseURL(); err != nil {
		return nil, fmt.Errorf("parsing DATABASE_URL: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating configuration: %w", err)
	}

	return &cfg, nil
}

// setDefaults sets all default configuration values.
func setDefaults() {
	viper.SetDefault("provider_timeout", 60*time.Second)
	viper.SetDefault("provider_max_retries", DefaultMaxRetries)
	viper.SetDefault("provider_retry_interval", 500*time.Millisecond)
	viper.SetDefault("provider_max_concurrent", DefaultMaxConcurrent)

	viper.SetDefault("rag.chunk_size", DefaultChunkSize)
	viper.SetDefault("rag.chunk_overlap", DefaultChunkOverlap)
	viper.SetDefault("rag.top_k", DefaultTopK)
	viper.SetDefault("rag.embedder_model", "text-embedding-3-small")
	viper.SetDefault("rag.embedder_base_url", "https://api.openai.com/v1")
	viper.SetDefault("rag.embedding_dim", 1536)

	viper.SetDefault("tool_timeout", 30*time.Second)

	viper.SetDefault("postgres_enabled", false)
	viper.SetDefault("postgres_host", "localhost")
	viper.SetDefault("postgres_port", 5432)
	viper.SetDefault("postgres_user", "arclight")
	viper.SetDefault("postgres_db_name", "arclight")
	viper.SetDefault("postgres_ssl_mode", "disable")

	viper.SetDefault("cors_origins", []string{"http://localhost:3000", "http://localhost:5173"})
	viper.SetDefault("trust_proxy", false)
	viper.SetDefault("rate_burst", 60)
	viper.SetDefault("max_message_len", 10000)

	viper.SetDefault("tracing.enabled", false)
	viper.SetDefault("tracing.agent_host", "localhost:4318")
	viper.SetDefault("tracing.service_name", "arclight")
	viper.SetDefault("tracing.environment", "dev")
}

// bindEnvVariables binds environment variables explicitly.
func bindEnvVariables() {
	mustBind := func(key, envVar string) {
		if err := viper.BindEnv(key, envVar); err != nil {
			panic(fmt.Sprintf("BUG: failed to bind %q to %q: %v", key, envVar, err))
		}
	}

	mustBind("postgres_host", "ARCLIGHT_POSTGRES_HOST")
	mustBind("postgres_password", "ARCLIGHT_POSTGRES_PASSWORD")
	mustBind("rag.embedder_api_key", "ARCLIGHT_EMBEDDER_API_KEY")
}

// applyEnvSecrets fills provider API keys from conventional environment
// variables when the config file leaves them empty. Keys never travel
// through Viper defaults so they cannot leak into written config files.
func (c *Config) applyEnvSecrets() {
	for i := range c.Providers {
		if c.Providers[i].APIKey != "" {
			continue
		}
		switch c.Providers[i].Name {
		case ProviderAnthropic:
			c.Providers[i].APIKey = os.Getenv("ANTHROPIC_API_KEY")
		case ProviderOpenAI:
			c.Providers[i].APIKey = os.Getenv("OPENAI_API_KEY")
		}
	}
	if c.RAG.EmbedderAPIKey == "" {
		c.RAG.EmbedderAPIKey = os.Getenv("OPENAI_API_KEY")
	}
}

// parseDatabaseURL applies DATABASE_URL when set. It takes priority over
// the individual postgres_* settings.
func (c *Config) parseDatabaseURL() error {
	raw := os.Getenv("DATABASE_URL")
	if raw == "" {
		return nil
	}

	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("invalid DATABASE_URL: %w", err)
	}
	if u.Scheme != "postgres" && u.Scheme != "postgresql" {
		return fmt.Errorf("%w: unsupported scheme %q", ErrInvalidPostgresHost, u.Scheme)
	}

	c.PostgresEnabled = true
	c.PostgresHost = u.Hostname()
	if p := u.Port(); p != "" {
		port, convErr := strconv.Atoi(p)
		if convErr != nil {
			return fmt.Errorf("invalid DATABASE_URL port: %w", convErr)
		}
		c.PostgresPort = port
	}
	if u.User != nil {
		c.PostgresUser = u.User.Username()
		if pw, ok := u.User.Password(); ok {
			c.PostgresPassword = pw
		}
	}
	if len(u.Path) > 1 {
		c.PostgresDBName = u.Path[1:]
	}
	if mode := u.Query().Get("sslmode"); mode != "" {
		c.PostgresSSLMode = mode
	}
	return nil
}

// PostgresURL assembles the connection URL from the individual settings.
func (c *Config) PostgresURL() string {
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.PostgresUser, c.PostgresPassword),
		Host:   fmt.Sprintf("%s:%d", c.PostgresHost, c.PostgresPort),
		Path:   "/" + c.PostgresDBName,
	}
	q := url.Values{}
	q.Set("sslmode", c.PostgresSSLMode)
	u.RawQuery = q.Encode()
	return u.String()
}

// Agent returns the agent definition with the given id, or false.
func (c *Config) Agent(id string) (AgentConfig, bool) {
	for _, a := range c.Agents {
		if a.ID == id {
			return a, true
		}
	}
	return AgentConfig{}, false
}
