package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	ProviderOllama    = "ollama"
	ProviderOpenAI    = "openai"
	ProviderAnthropic = "anthropic"
)

const (
	IndexMemory   = "memory"
	IndexPostgres = "postgres"
)

const (
	DiagnosticsNone  = "none"
	DiagnosticsBolt  = "bolt"
	DiagnosticsNeo4j = "neo4j"
)

type LLMConfig struct {
	Provider  string        `yaml:"provider"`
	Model     string        `yaml:"model"`
	MaxTokens int           `yaml:"max_tokens"`
	Timeout   time.Duration `yaml:"timeout"`
}

type EmbeddingConfig struct {
	Provider    string `yaml:"provider"`
	Model       string `yaml:"model"`
	Dimension   int    `yaml:"dimension"`
	BatchSize   int    `yaml:"batch_size"`
	Concurrency int    `yaml:"concurrency"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `yaml:"requests_per_second"`
	Burst             int     `yaml:"burst"`
}

type DiagnosticsConfig struct {
	Backend  string `yaml:"backend"`
	BoltPath string `yaml:"bolt_path"`
}

type IngestionConfig struct {
	FetchTimeout     time.Duration `yaml:"fetch_timeout"`
	MaxDocumentBytes int64         `yaml:"max_document_bytes"`
}

// Config is built once at startup and passed explicitly to every component.
type Config struct {
	ListenAddr  string `yaml:"listen_addr"`
	BearerToken string `yaml:"-"`

	LLM        LLMConfig       `yaml:"llm"`
	IntentLLM  LLMConfig       `yaml:"intent_llm"`
	Embeddings EmbeddingConfig `yaml:"embeddings"`
	RateLimit  RateLimitConfig `yaml:"rate_limit"`

	OllamaHost      string `yaml:"ollama_host"`
	OpenAIAPIKey    string `yaml:"-"`
	OpenAIBaseURL   string `yaml:"openai_base_url"`
	AnthropicAPIKey string `yaml:"-"`

	IndexBackend string `yaml:"index_backend"`
	PostgresDSN  string `yaml:"-"`
	Neo4jURI     string `yaml:"neo4j_uri"`
	Neo4jUser    string `yaml:"neo4j_user"`
	Neo4jPass    string `yaml:"-"`

	Diagnostics DiagnosticsConfig `yaml:"diagnostics"`
	Ingestion   IngestionConfig   `yaml:"ingestion"`
	Tuning      Tuning            `yaml:"tuning"`
}

func Load() Config {
	return Config{
		ListenAddr:  getEnv("LISTEN_ADDR", ":8000"),
		BearerToken: getEnv("API_BEARER_TOKEN", ""),
		LLM: LLMConfig{
			Provider:  getEnv("LLM_PROVIDER", ProviderOpenAI),
			Model:     getEnv("LLM_MODEL", "gpt-4o-mini"),
			MaxTokens: getEnvInt("LLM_MAX_TOKENS", 1024),
			Timeout:   getEnvDuration("LLM_TIMEOUT", 60*time.Second),
		},
		IntentLLM: LLMConfig{
			Provider:  getEnv("INTENT_LLM_PROVIDER", ""),
			Model:     getEnv("INTENT_LLM_MODEL", "gpt-4o-mini"),
			MaxTokens: getEnvInt("INTENT_LLM_MAX_TOKENS", 256),
			Timeout:   getEnvDuration("INTENT_LLM_TIMEOUT", 10*time.Second),
		},
		Embeddings: EmbeddingConfig{
			Provider:    getEnv("EMBEDDING_PROVIDER", ProviderOpenAI),
			Model:       getEnv("EMBEDDING_MODEL", "text-embedding-3-small"),
			Dimension:   getEnvInt("EMBEDDING_DIMENSION", 1536),
			BatchSize:   getEnvInt("EMBEDDING_BATCH_SIZE", 64),
			Concurrency: getEnvInt("EMBEDDING_CONCURRENCY", 4),
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: getEnvFloat("LLM_RATE_LIMIT", 0),
			Burst:             getEnvInt("LLM_RATE_BURST", 1),
		},
		OllamaHost:      getEnv("OLLAMA_HOST", "http://localhost:11434"),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:   getEnv("OPENAI_BASE_URL", ""),
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		IndexBackend:    getEnv("INDEX_BACKEND", IndexMemory),
		PostgresDSN:     getEnv("POSTGRES_DSN", "postgres://localhost:5432/policynth?sslmode=disable"),
		Neo4jURI:        getEnv("NEO4J_URI", "neo4j://localhost:7687"),
		Neo4jUser:       getEnv("NEO4J_USERNAME", "neo4j"),
		Neo4jPass:       getEnv("NEO4J_PASSWORD", "password"),
		Diagnostics: DiagnosticsConfig{
			Backend:  getEnv("DIAGNOSTICS_BACKEND", DiagnosticsNone),
			BoltPath: getEnv("DIAGNOSTICS_BOLT_PATH", "policynth-diagnostics.db"),
		},
		Ingestion: IngestionConfig{
			FetchTimeout:     getEnvDuration("DOCUMENT_FETCH_TIMEOUT", 30*time.Second),
			MaxDocumentBytes: int64(getEnvInt("DOCUMENT_MAX_BYTES", 50<<20)),
		},
		Tuning: DefaultTuning(),
	}
}

// Validate checks settings shared by every command.
func (c Config) Validate() error {
	if c.Embeddings.Dimension <= 0 {
		return fmt.Errorf("embedding dimension must be positive")
	}
	switch c.IndexBackend {
	case IndexMemory, IndexPostgres:
	default:
		return fmt.Errorf("unknown index backend: %s", c.IndexBackend)
	}
	switch c.Diagnostics.Backend {
	case DiagnosticsNone, DiagnosticsBolt, DiagnosticsNeo4j:
	default:
		return fmt.Errorf("unknown diagnostics backend: %s", c.Diagnostics.Backend)
	}
	if c.Diagnostics.Backend == DiagnosticsBolt && strings.TrimSpace(c.Diagnostics.BoltPath) == "" {
		return fmt.Errorf("bolt diagnostics selected but DIAGNOSTICS_BOLT_PATH not set")
	}
	return c.Tuning.Validate()
}

// ValidateServer additionally requires the bearer credential used by the HTTP API.
func (c Config) ValidateServer() error {
	if err := c.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(c.BearerToken) == "" {
		return fmt.Errorf("API_BEARER_TOKEN must be set to serve the API")
	}
	return nil
}

// IntentProvider returns the provider for the classification model, defaulting
// to the answer provider.
func (c Config) IntentProvider() string {
	if c.IntentLLM.Provider != "" {
		return c.IntentLLM.Provider
	}
	return c.LLM.Provider
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}

func getEnvFloat(key string, fallback float64) float64 {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fallback
	}
	return value
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	value, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}
	return value
}
