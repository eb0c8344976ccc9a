package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/capitalize-ai/shop-assistant/internal/config"
	"github.com/capitalize-ai/shop-assistant/internal/corpus"
	"github.com/capitalize-ai/shop-assistant/internal/embedding"
	"github.com/capitalize-ai/shop-assistant/internal/ingest"
	"github.com/capitalize-ai/shop-assistant/internal/llm"
	"github.com/capitalize-ai/shop-assistant/internal/memory"
	"github.com/capitalize-ai/shop-assistant/internal/model"
	"github.com/capitalize-ai/shop-assistant/internal/rag"
	"github.com/capitalize-ai/shop-assistant/internal/retrieval"
	"github.com/capitalize-ai/shop-assistant/internal/retrieval/qdrant"
	"github.com/capitalize-ai/shop-assistant/pkg/logger"
)

// cleanup collects shutdown hooks, run in reverse order.
type cleanup []func()

func (c *cleanup) add(fn func()) { *c = append(*c, fn) }

func (c cleanup) run() {
	for i := len(c) - 1; i >= 0; i-- {
		c[i]()
	}
}

func newEmbedder(cfg *config.Config) (embedding.Provider, error) {
	switch cfg.EmbeddingProvider {
	case "ollama":
		return embedding.NewOllamaProvider(cfg.OllamaURL, cfg.EmbeddingModel), nil
	case "openai":
		return embedding.NewOpenAIProvider(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.EmbeddingModel)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q", cfg.EmbeddingProvider)
	}
}

// warmer is implemented by scorers that precompute document state.
type warmer interface {
	Warm(ctx context.Context, docs []model.Document) error
}

type retrievalStack struct {
	store     *corpus.Store
	retriever retrieval.Retriever
	warmer    warmer
}

// buildRetrieval creates the corpus store and the retriever selected by
// RAG_SCORER. The qdrant index is attached to the store so corpus writes
// reach the vector collection.
func buildRetrieval(cfg *config.Config, log *logger.Logger, done *cleanup) (*retrievalStack, error) {
	fallback, err := retrieval.ParseFallbackPolicy(cfg.RAGFallback)
	if err != nil {
		return nil, err
	}
	opts := retrieval.Options{MinScore: cfg.RAGMinScore, Fallback: fallback}
	rlog := log.Named("retrieval")

	switch cfg.RAGScorer {
	case config.ScorerKeyword:
		store := corpus.NewStore(log.Named("corpus"))
		return &retrievalStack{
			store:     store,
			retriever: retrieval.NewCorpusRetriever(store, retrieval.NewKeywordScorer(), opts, rlog),
		}, nil

	case config.ScorerVector:
		embedder, err := newEmbedder(cfg)
		if err != nil {
			return nil, err
		}
		store := corpus.NewStore(log.Named("corpus"))
		scorer := retrieval.NewVectorScorer(embedder, rlog)
		return &retrievalStack{
			store:     store,
			retriever: retrieval.NewCorpusRetriever(store, scorer, opts, rlog),
			warmer:    scorer,
		}, nil

	case config.ScorerQdrant:
		embedder, err := newEmbedder(cfg)
		if err != nil {
			return nil, err
		}
		index, err := qdrant.New(qdrant.Config{
			URL:        cfg.QdrantURL,
			Collection: cfg.QdrantCollection,
			APIKey:     cfg.QdrantAPIKey,
		}, embedder, log)
		if err != nil {
			return nil, fmt.Errorf("connect qdrant: %w", err)
		}
		done.add(func() { index.Close() })

		store := corpus.NewStore(log.Named("corpus"), corpus.WithIndexer(index))
		return &retrievalStack{
			store:     store,
			retriever: qdrant.NewRetriever(index, embedder, store, opts, rlog),
		}, nil

	default:
		return nil, fmt.Errorf("unknown scorer %q", cfg.RAGScorer)
	}
}

// loadKnowledge fills the corpus from the seed set, the knowledge table and
// the knowledge directory. Only the seed is required to succeed.
func loadKnowledge(ctx context.Context, cfg *config.Config, store *corpus.Store, log *logger.Logger, done *cleanup) (*ingest.PostgresLoader, error) {
	if cfg.SeedCorpus {
		if err := corpus.Seed(ctx, store); err != nil && store.Len() == 0 {
			return nil, fmt.Errorf("seed corpus: %w", err)
		}
	}

	var loader *ingest.PostgresLoader
	if cfg.DatabaseURL != "" {
		l, err := ingest.OpenPostgres(ctx, cfg.DatabaseURL, log)
		if err != nil {
			log.Warn("knowledge database unavailable", zap.Error(err))
		} else {
			loader = l
			done.add(func() { l.Close() })
			if err := l.InitSchema(ctx); err != nil {
				log.Warn("failed to initialize knowledge schema", zap.Error(err))
			}
			if n, err := l.LoadInto(ctx, store); err != nil {
				log.Warn("failed to load knowledge documents", zap.Error(err))
			} else {
				log.Info("knowledge documents loaded", zap.Int("count", n))
			}
		}
	}

	if cfg.KnowledgeDir != "" {
		w, err := ingest.NewWatcher(cfg.KnowledgeDir, store, log)
		if err != nil {
			log.Warn("knowledge watcher unavailable", zap.Error(err))
		} else {
			if _, err := w.Scan(ctx); err != nil {
				log.Warn("failed to scan knowledge dir", zap.Error(err))
			}
			watchCtx, cancel := context.WithCancel(context.Background())
			go func() {
				if err := w.Run(watchCtx); err != nil {
					log.Warn("knowledge watcher stopped", zap.Error(err))
				}
			}()
			done.add(cancel)
		}
	}

	if store.Len() == 0 {
		return loader, errors.New("knowledge corpus is empty")
	}
	return loader, nil
}

func buildMemory(ctx context.Context, cfg *config.Config, log *logger.Logger, done *cleanup) (*memory.Memory, *redis.Client, error) {
	var (
		opts   []memory.StoreOption
		client *redis.Client
	)
	if memory.Driver(cfg.MemoryDriver) == memory.DriverRedis {
		redisOpts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("parse REDIS_URL: %w", err)
		}
		client = redis.NewClient(redisOpts)
		if err := client.Ping(ctx).Err(); err != nil {
			client.Close()
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		opts = append(opts, memory.WithRedisClient(client), memory.WithRedisTTL(cfg.RedisTTL))
	}

	store, err := memory.NewStore(memory.Driver(cfg.MemoryDriver), opts...)
	if err != nil {
		return nil, nil, err
	}
	done.add(func() { store.Close() })

	return memory.New(store, log.Named("memory"), memory.WithMaxHistory(cfg.RAGMaxHistory)), client, nil
}

// unavailableGenerator backs the orchestrator when no LLM key is configured;
// every answer degrades.
type unavailableGenerator struct{}

func (unavailableGenerator) Generate(context.Context, string, string, string) (string, error) {
	return "", errors.New("no LLM provider configured")
}

func buildGenerator(cfg *config.Config, log *logger.Logger) rag.Generator {
	llmCfg := llm.Config{Provider: llm.Provider(cfg.DefaultLLM), BaseURL: cfg.OpenAIBaseURL}
	switch llmCfg.Provider {
	case llm.ProviderAnthropic:
		llmCfg.APIKey = cfg.AnthropicAPIKey
	case llm.ProviderOpenAI:
		llmCfg.APIKey = cfg.OpenAIAPIKey
	}

	client, err := llm.NewClient(llmCfg)
	if err != nil {
		log.Warn("LLM client unavailable, answers will degrade",
			zap.String("provider", cfg.DefaultLLM),
			zap.Error(err),
		)
		return unavailableGenerator{}
	}

	log.Info("LLM client ready", zap.String("provider", client.Name()))
	return rag.NewLLMGenerator(client, rag.GeneratorConfig{
		Model:       cfg.LLMModel,
		MaxTokens:   cfg.LLMMaxTokens,
		Temperature: cfg.LLMTemperature,
	})
}
