// Package main is the entry point for the API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/capitalize-ai/shop-assistant/internal/config"
	"github.com/capitalize-ai/shop-assistant/internal/handler"
	"github.com/capitalize-ai/shop-assistant/internal/middleware"
	natsclient "github.com/capitalize-ai/shop-assistant/internal/nats"
	"github.com/capitalize-ai/shop-assistant/internal/rag"
	"github.com/capitalize-ai/shop-assistant/pkg/logger"
	"github.com/capitalize-ai/shop-assistant/pkg/tracing"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load .env: %v\n", err)
		os.Exit(1)
	}
	cfg := config.Load()

	log, err := logger.NewForEnv(cfg.LogLevel, cfg.Env)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	logger.SetGlobal(log)

	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid configuration", zap.Error(err))
	}

	log.Info("starting shop assistant",
		zap.String("scorer", cfg.RAGScorer),
		zap.String("memory_driver", cfg.MemoryDriver),
		zap.String("llm", cfg.DefaultLLM),
	)

	ctx := context.Background()
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "shop-assistant", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(ctx, tp)
		}
	}

	var done cleanup
	defer done.run()

	checks := map[string]handler.Check{}

	// Knowledge corpus and retrieval
	stack, err := buildRetrieval(cfg, log, &done)
	if err != nil {
		log.Fatal("failed to build retriever", zap.Error(err))
	}
	loader, err := loadKnowledge(ctx, cfg, stack.store, log, &done)
	if err != nil {
		log.Fatal("failed to load knowledge", zap.Error(err))
	}
	if loader != nil {
		checks["postgres"] = loader.HealthCheck
	}
	if stack.warmer != nil {
		if err := stack.warmer.Warm(ctx, stack.store.Snapshot()); err != nil {
			log.Warn("failed to precompute document embeddings", zap.Error(err))
		}
	}

	// Conversation memory
	mem, redisClient, err := buildMemory(ctx, cfg, log, &done)
	if err != nil {
		log.Fatal("failed to build conversation memory", zap.Error(err))
	}
	if redisClient != nil {
		checks["redis"] = func(ctx context.Context) error { return redisClient.Ping(ctx).Err() }
	}

	// Answer audit stream
	var (
		recorder  rag.Recorder = rag.NopRecorder{}
		answerLog *natsclient.AnswerStream
	)
	if cfg.NATSEnabled {
		natsClient, err := natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			log.Fatal("failed to connect to NATS", zap.Error(err))
		}
		done.add(natsClient.Close)

		answerLog = natsclient.NewAnswerStream(natsClient, log)
		if err := answerLog.EnsureStream(ctx); err != nil {
			log.Fatal("failed to ensure answer stream", zap.Error(err))
		}
		recorder = answerLog
		checks["nats"] = natsClient.Ping
	}

	orchestrator := rag.NewOrchestrator(stack.retriever, mem, buildGenerator(cfg, log), log.Named("rag"),
		rag.WithRecorder(recorder),
		rag.WithConfig(rag.Config{
			TopK:            cfg.RAGTopK,
			ContextBudget:   cfg.RAGContextBudget,
			HistoryBudget:   cfg.RAGHistoryBudget,
			GenerateTimeout: cfg.LLMTimeout,
		}),
	)

	// Initialize handlers
	healthHandler := handler.NewHealthHandler(checks)
	answerHandler := handler.NewAnswerHandler(orchestrator, mem, log)
	sessionHandler := handler.NewSessionHandler(mem, log)
	documentHandler := handler.NewDocumentHandler(stack.store, log)

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS(cfg.CORSOrigins))

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.RateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))
		r.Use(middleware.Auth(cfg.JWTSecret))
		r.Use(middleware.TrackOwner)
		r.Use(middleware.OwnerRateLimit(cfg.RateLimitRequests, cfg.RateLimitWindow))

		r.Post("/answer", answerHandler.Answer)
		r.Get("/suggestions", handler.Suggestions(rag.Suggestions))
		r.Get("/knowledge", documentHandler.Knowledge)

		r.Route("/sessions", func(r chi.Router) {
			r.Post("/", sessionHandler.Create)
			r.Get("/", sessionHandler.List)
			r.Delete("/", sessionHandler.DeleteAll)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", sessionHandler.Get)
				r.Delete("/", sessionHandler.Delete)
				r.Get("/messages", sessionHandler.Messages)
				if answerLog != nil {
					r.Get("/stream", handler.NewStreamHandler(answerLog, mem, log).Stream)
				}
			})
		})

		r.Route("/documents", func(r chi.Router) {
			r.Get("/", documentHandler.List)
			r.With(middleware.RequireScope(middleware.ScopeAdmin)).Post("/", documentHandler.Add)
			r.With(middleware.RequireScope(middleware.ScopeAdmin)).Delete("/{id}", documentHandler.Delete)
		})
	})

	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      r,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}
