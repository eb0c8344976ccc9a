package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, 5, cfg.RAGTopK)
	assert.InDelta(t, 0.3, cfg.RAGMinScore, 1e-9)
	assert.Equal(t, "first_k", cfg.RAGFallback)
	assert.Equal(t, 2000, cfg.RAGContextBudget)
	assert.Equal(t, 10, cfg.RAGMaxHistory)
	assert.Equal(t, 500, cfg.LLMMaxTokens)
	assert.InDelta(t, 0.7, cfg.LLMTemperature, 1e-9)
	assert.Equal(t, 30*time.Second, cfg.LLMTimeout)
	assert.Equal(t, ScorerKeyword, cfg.RAGScorer)
	assert.Equal(t, "memory", cfg.MemoryDriver)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("RAG_TOP_K", "3")
	t.Setenv("RAG_MIN_SCORE", "0.5")
	t.Setenv("RAG_FALLBACK", "none")
	t.Setenv("LLM_TIMEOUT", "5s")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("RAG_MAX_HISTORY", "not-a-number")

	cfg := Load()
	assert.Equal(t, 3, cfg.RAGTopK)
	assert.InDelta(t, 0.5, cfg.RAGMinScore, 1e-9)
	assert.Equal(t, "none", cfg.RAGFallback)
	assert.Equal(t, 5*time.Second, cfg.LLMTimeout)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, 10, cfg.RAGMaxHistory, "invalid values keep the default")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"bad fallback", func(c *Config) { c.RAGFallback = "top3" }, "RAG_FALLBACK"},
		{"bad scorer", func(c *Config) { c.RAGScorer = "bm25" }, "RAG_SCORER"},
		{"qdrant needs url", func(c *Config) { c.RAGScorer = ScorerQdrant }, "QDRANT_URL"},
		{"redis needs url", func(c *Config) { c.MemoryDriver = "redis" }, "REDIS_URL"},
		{"min score range", func(c *Config) { c.RAGMinScore = 1.5 }, "RAG_MIN_SCORE"},
		{"top k", func(c *Config) { c.RAGTopK = 0 }, "RAG_TOP_K"},
		{"llm provider", func(c *Config) { c.DefaultLLM = "cohere" }, "DEFAULT_LLM"},
		{"embedding provider", func(c *Config) { c.RAGScorer = ScorerVector; c.EmbeddingProvider = "x" }, "EMBEDDING_PROVIDER"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Load()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadDotEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("SHOP_ASSISTANT_TEST_KEY=from-file\nRAG_TOP_K_TEST=7\n"), 0o600))

	t.Setenv("SHOP_ASSISTANT_TEST_KEY", "")
	os.Unsetenv("SHOP_ASSISTANT_TEST_KEY")
	t.Cleanup(func() { os.Unsetenv("RAG_TOP_K_TEST") })

	require.NoError(t, LoadDotEnv(path, filepath.Join(dir, "missing.env")))
	assert.Equal(t, "from-file", os.Getenv("SHOP_ASSISTANT_TEST_KEY"))
	assert.Equal(t, 7, getIntEnv("RAG_TOP_K_TEST", 0))
}
