// Package config provides environment configuration for the API server.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration
	CORSOrigins        []string

	// NATS settings
	NATSEnabled  bool
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// JWT settings
	JWTSecret string

	// LLM settings
	AnthropicAPIKey string
	OpenAIAPIKey    string
	OpenAIBaseURL   string
	DefaultLLM      string
	LLMModel        string
	LLMMaxTokens    int
	LLMTemperature  float64
	LLMTimeout      time.Duration

	// Retrieval and answering
	RAGTopK          int
	RAGMinScore      float64
	RAGFallback      string
	RAGContextBudget int
	RAGHistoryBudget int
	RAGMaxHistory    int
	RAGScorer        string

	// Embeddings
	EmbeddingProvider string
	EmbeddingModel    string
	OllamaURL         string

	// Conversation memory
	MemoryDriver string
	RedisURL     string
	RedisTTL     time.Duration

	// Vector index
	QdrantURL        string
	QdrantAPIKey     string
	QdrantCollection string

	// Knowledge sources
	SeedCorpus   bool
	DatabaseURL  string
	KnowledgeDir string

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel string
	Env      string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Scorer names.
const (
	ScorerKeyword = "keyword"
	ScorerVector  = "vector"
	ScorerQdrant  = "qdrant"
)

// LoadDotEnv loads variables from the given files (default ".env") without
// overriding the environment. Missing files are skipped.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("loading %s: %w", p, err)
		}
	}
	return nil
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 120*time.Second),
		CORSOrigins:        getListEnv("CORS_ORIGINS", []string{"https://*", "http://*"}),

		// NATS
		NATSEnabled:  getBoolEnv("NATS_ENABLED", false),
		NATSURL:      getEnv("NATS_URL", "nats://localhost:4222"),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", "development-secret-change-in-production"),

		// LLM
		AnthropicAPIKey: getEnv("ANTHROPIC_API_KEY", ""),
		OpenAIAPIKey:    getEnv("OPENAI_API_KEY", ""),
		OpenAIBaseURL:   getEnv("OPENAI_BASE_URL", ""),
		DefaultLLM:      getEnv("DEFAULT_LLM", "anthropic"),
		LLMModel:        getEnv("LLM_MODEL", ""),
		LLMMaxTokens:    getIntEnv("LLM_MAX_TOKENS", 500),
		LLMTemperature:  getFloatEnv("LLM_TEMPERATURE", 0.7),
		LLMTimeout:      getDurationEnv("LLM_TIMEOUT", 30*time.Second),

		// RAG
		RAGTopK:          getIntEnv("RAG_TOP_K", 5),
		RAGMinScore:      getFloatEnv("RAG_MIN_SCORE", 0.3),
		RAGFallback:      getEnv("RAG_FALLBACK", "first_k"),
		RAGContextBudget: getIntEnv("RAG_CONTEXT_BUDGET", 2000),
		RAGHistoryBudget: getIntEnv("RAG_HISTORY_BUDGET", 2000),
		RAGMaxHistory:    getIntEnv("RAG_MAX_HISTORY", 10),
		RAGScorer:        getEnv("RAG_SCORER", ScorerKeyword),

		// Embeddings
		EmbeddingProvider: getEnv("EMBEDDING_PROVIDER", "openai"),
		EmbeddingModel:    getEnv("EMBEDDING_MODEL", ""),
		OllamaURL:         getEnv("OLLAMA_URL", "http://localhost:11434"),

		// Memory
		MemoryDriver: getEnv("MEMORY_DRIVER", "memory"),
		RedisURL:     getEnv("REDIS_URL", ""),
		RedisTTL:     getDurationEnv("REDIS_TTL", 24*time.Hour),

		// Qdrant
		QdrantURL:        getEnv("QDRANT_URL", ""),
		QdrantAPIKey:     getEnv("QDRANT_API_KEY", ""),
		QdrantCollection: getEnv("QDRANT_COLLECTION", "shop_knowledge"),

		// Knowledge sources
		SeedCorpus:   getBoolEnv("SEED_CORPUS", true),
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		KnowledgeDir: getEnv("KNOWLEDGE_DIR", ""),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),
		Env:      getEnv("ENV", "production"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error

	if c.RAGTopK <= 0 {
		errs = append(errs, fmt.Errorf("RAG_TOP_K must be positive, got %d", c.RAGTopK))
	}
	if c.RAGMinScore < 0 || c.RAGMinScore >= 1 {
		errs = append(errs, fmt.Errorf("RAG_MIN_SCORE must be in [0,1), got %v", c.RAGMinScore))
	}
	if c.RAGFallback != "first_k" && c.RAGFallback != "none" {
		errs = append(errs, fmt.Errorf("RAG_FALLBACK must be first_k or none, got %q", c.RAGFallback))
	}
	if c.RAGMaxHistory <= 0 {
		errs = append(errs, fmt.Errorf("RAG_MAX_HISTORY must be positive, got %d", c.RAGMaxHistory))
	}
	if c.LLMTimeout <= 0 {
		errs = append(errs, errors.New("LLM_TIMEOUT must be positive"))
	}

	switch c.DefaultLLM {
	case "anthropic", "openai":
	default:
		errs = append(errs, fmt.Errorf("DEFAULT_LLM must be anthropic or openai, got %q", c.DefaultLLM))
	}

	switch c.RAGScorer {
	case ScorerKeyword:
	case ScorerVector, ScorerQdrant:
		if c.EmbeddingProvider != "openai" && c.EmbeddingProvider != "ollama" {
			errs = append(errs, fmt.Errorf("EMBEDDING_PROVIDER must be openai or ollama, got %q", c.EmbeddingProvider))
		}
		if c.RAGScorer == ScorerQdrant && c.QdrantURL == "" {
			errs = append(errs, errors.New("QDRANT_URL is required when RAG_SCORER=qdrant"))
		}
	default:
		errs = append(errs, fmt.Errorf("RAG_SCORER must be keyword, vector or qdrant, got %q", c.RAGScorer))
	}

	switch c.MemoryDriver {
	case "memory":
	case "redis":
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URL is required when MEMORY_DRIVER=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("MEMORY_DRIVER must be memory or redis, got %q", c.MemoryDriver))
	}

	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getFloatEnv(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
