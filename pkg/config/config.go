package config

import (
	"fmt"
	"strings"
)

// Provider names accepted for the generator LLM.
const (
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
	ProviderOllama    = "ollama"
)

// Config is the full configuration surface of the service.
type Config struct {
	LLM         LLMConfig         `yaml:"llm"`
	Embedder    EmbedderConfig    `yaml:"embedder"`
	Reranker    RerankerConfig    `yaml:"reranker"`
	VectorStore VectorStoreConfig `yaml:"vector_store"`
	Retrieval   RetrievalConfig   `yaml:"retrieval"`
	Agent       AgentConfig       `yaml:"agent"`
	Server      ServerConfig      `yaml:"server"`
	Logging     LoggingConfig     `yaml:"logging"`
}

type LLMConfig struct {
	Provider string `yaml:"provider"`

	AnthropicAPIKey string `yaml:"anthropic_api_key"`
	ClaudeModel     string `yaml:"claude_model"`

	OpenAIAPIKey string `yaml:"openai_api_key"`
	OpenAIModel  string `yaml:"openai_model"`

	OllamaBaseURL string `yaml:"ollama_base_url"`
	OllamaModel   string `yaml:"ollama_model"`

	// Timeout in seconds for a single generation call.
	Timeout    int `yaml:"timeout"`
	MaxTokens  int `yaml:"max_tokens"`
	MaxRetries int `yaml:"max_retries"`
}

// Model returns the model name of the configured provider.
func (c LLMConfig) Model() string {
	switch c.Provider {
	case ProviderAnthropic:
		return c.ClaudeModel
	case ProviderOpenAI:
		return c.OpenAIModel
	case ProviderOllama:
		return c.OllamaModel
	}
	return ""
}

type EmbedderConfig struct {
	// Type is "modelserver" (spec wire format) or "ollama".
	Type    string `yaml:"type"`
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
	// Dimension must match the vector store's configured dimension.
	Dimension int `yaml:"dimension"`
	// BatchTimeout covers document batches; QueryTimeout covers single queries.
	BatchTimeout int `yaml:"batch_timeout"`
	QueryTimeout int `yaml:"query_timeout"`
}

type RerankerConfig struct {
	BaseURL string `yaml:"base_url"`
	Model   string `yaml:"model"`
	Timeout int    `yaml:"timeout"`
}

type VectorStoreConfig struct {
	Host       string `yaml:"host"`
	Port       int    `yaml:"port"`
	APIKey     string `yaml:"api_key"`
	UseTLS     bool   `yaml:"use_tls"`
	Collection string `yaml:"collection"`
}

type RetrievalConfig struct {
	TopK          int `yaml:"top_k"`
	PrefetchLimit int `yaml:"prefetch_limit"`
	RerankTopK    int `yaml:"rerank_top_k"`
	RRFK          int `yaml:"rrf_k"`
	// MaxSearchQueries caps the fan-out of the multi-query retriever.
	MaxSearchQueries int  `yaml:"max_search_queries"`
	EnableHyde       bool `yaml:"enable_hyde"`
}

type AgentConfig struct {
	MaxRetries    int `yaml:"max_retries"`
	MaxQueryLen   int `yaml:"max_query_len"`
	ReserveOutput int `yaml:"reserve_output"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// SetDefaults fills zero values with working defaults. Values mirror the
// service's deployment defaults.
func (c *Config) SetDefaults() {
	if c.LLM.Provider == "" {
		c.LLM.Provider = ProviderOllama
	}
	if c.LLM.ClaudeModel == "" {
		c.LLM.ClaudeModel = "claude-sonnet-4-20250514"
	}
	if c.LLM.OpenAIModel == "" {
		c.LLM.OpenAIModel = "gpt-4o"
	}
	if c.LLM.OllamaBaseURL == "" {
		c.LLM.OllamaBaseURL = "http://localhost:11434"
	}
	if c.LLM.OllamaModel == "" {
		c.LLM.OllamaModel = "llama3.1"
	}
	if c.LLM.Timeout == 0 {
		c.LLM.Timeout = 120
	}
	if c.LLM.MaxTokens == 0 {
		c.LLM.MaxTokens = 4096
	}
	if c.LLM.MaxRetries == 0 {
		c.LLM.MaxRetries = 3
	}

	if c.Embedder.Type == "" {
		c.Embedder.Type = "ollama"
	}
	if c.Embedder.BaseURL == "" {
		c.Embedder.BaseURL = "http://localhost:11434"
	}
	if c.Embedder.Model == "" {
		c.Embedder.Model = "nomic-embed-text"
	}
	if c.Embedder.Dimension == 0 {
		c.Embedder.Dimension = 768
	}
	if c.Embedder.BatchTimeout == 0 {
		c.Embedder.BatchTimeout = 120
	}
	if c.Embedder.QueryTimeout == 0 {
		c.Embedder.QueryTimeout = 30
	}

	if c.Reranker.BaseURL == "" {
		c.Reranker.BaseURL = "http://localhost:8080"
	}
	if c.Reranker.Model == "" {
		c.Reranker.Model = "jinaai/jina-reranker-v2-base-multilingual"
	}
	if c.Reranker.Timeout == 0 {
		c.Reranker.Timeout = 30
	}

	if c.VectorStore.Host == "" {
		c.VectorStore.Host = "localhost"
	}
	if c.VectorStore.Port == 0 {
		c.VectorStore.Port = 6334
	}
	if c.VectorStore.Collection == "" {
		c.VectorStore.Collection = "documents"
	}

	if c.Retrieval.TopK == 0 {
		c.Retrieval.TopK = 15
	}
	if c.Retrieval.PrefetchLimit == 0 {
		c.Retrieval.PrefetchLimit = 30
	}
	if c.Retrieval.RerankTopK == 0 {
		c.Retrieval.RerankTopK = 7
	}
	if c.Retrieval.RRFK == 0 {
		c.Retrieval.RRFK = 40
	}
	if c.Retrieval.MaxSearchQueries == 0 {
		c.Retrieval.MaxSearchQueries = 3
	}

	if c.Agent.MaxRetries == 0 {
		c.Agent.MaxRetries = 3
	}
	if c.Agent.MaxQueryLen == 0 {
		c.Agent.MaxQueryLen = 2000
	}
	if c.Agent.ReserveOutput == 0 {
		c.Agent.ReserveOutput = 4000
	}

	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8000
	}

	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "simple"
	}
}

// Validate checks invariants that would otherwise surface as confusing
// runtime failures.
func (c *Config) Validate() error {
	switch c.LLM.Provider {
	case ProviderAnthropic:
		if c.LLM.AnthropicAPIKey == "" {
			return fmt.Errorf("config: anthropic provider requires an API key")
		}
	case ProviderOpenAI:
		if c.LLM.OpenAIAPIKey == "" {
			return fmt.Errorf("config: openai provider requires an API key")
		}
	case ProviderOllama:
	default:
		return fmt.Errorf("config: unknown llm provider %q", c.LLM.Provider)
	}

	switch c.Embedder.Type {
	case "modelserver", "ollama":
	default:
		return fmt.Errorf("config: unknown embedder type %q", c.Embedder.Type)
	}

	if c.Embedder.Dimension <= 0 {
		return fmt.Errorf("config: embedding dimension must be positive")
	}
	if c.Retrieval.PrefetchLimit < c.Retrieval.TopK {
		return fmt.Errorf("config: prefetch_limit (%d) must be >= top_k (%d)",
			c.Retrieval.PrefetchLimit, c.Retrieval.TopK)
	}
	if c.Retrieval.RRFK <= 0 {
		return fmt.Errorf("config: rrf_k must be positive")
	}
	if c.Agent.MaxRetries < 0 || c.Agent.MaxRetries > 3 {
		return fmt.Errorf("config: max_retries must be between 0 and 3")
	}
	if !strings.HasPrefix(c.Reranker.BaseURL, "http") {
		return fmt.Errorf("config: reranker base_url must be an http(s) URL")
	}
	return nil
}
