package rag

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/capitalize-ai/shop-assistant/internal/llm"
	"github.com/capitalize-ai/shop-assistant/pkg/metrics"
)

// SystemPrompt is the fixed instruction sent with every question.
const SystemPrompt = `You are an expert TikTok Shop consultant and analytics specialist. You help users with:

1. Shop setup and management: account creation and verification, product listing and optimization, payment and shipping setup, policy compliance.
2. Analytics and performance: shop metrics, sales optimization, product performance analysis, market trends.
3. Marketing and growth: TikTok marketing strategies, content creation, influencer collaboration, advertising optimization.
4. Technical support: platform troubleshooting, integrations, data export and reporting.

Always provide practical, actionable advice based on TikTok Shop best practices. Cite specific sources when available and be encouraging but realistic about expectations.`

// ErrEmptyCompletion is returned when the provider produced no text.
var ErrEmptyCompletion = errors.New("language model returned an empty completion")

// Generator produces answer text from a system instruction, assembled
// context and the user's question.
type Generator interface {
	Generate(ctx context.Context, system, context, query string) (string, error)
}

// GeneratorConfig bounds LLM output.
type GeneratorConfig struct {
	Model       string
	MaxTokens   int
	Temperature float64
}

// LLMGenerator is a Generator backed by an llm.Client.
type LLMGenerator struct {
	client llm.Client
	cfg    GeneratorConfig
}

// NewLLMGenerator creates a generator over client.
func NewLLMGenerator(client llm.Client, cfg GeneratorConfig) *LLMGenerator {
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 500
	}
	return &LLMGenerator{client: client, cfg: cfg}
}

// UserPrompt renders the user turn sent to the model.
func UserPrompt(context, query string) string {
	return "Context:\n" + context + "\n\nUser Question: " + query
}

// Generate implements Generator.
func (g *LLMGenerator) Generate(ctx context.Context, system, context, query string) (string, error) {
	start := time.Now()

	resp, err := g.client.Complete(ctx, &llm.CompletionRequest{
		Model:       g.cfg.Model,
		System:      system,
		Messages:    []llm.ChatMessage{{Role: "user", Content: UserPrompt(context, query)}},
		MaxTokens:   g.cfg.MaxTokens,
		Temperature: g.cfg.Temperature,
	})

	if err != nil {
		metrics.RecordLLMCompletion(g.modelLabel(""), "error", time.Since(start).Seconds(), 0, 0)
		return "", err
	}
	metrics.RecordLLMCompletion(g.modelLabel(resp.Model), "ok", time.Since(start).Seconds(), resp.TokensIn, resp.TokensOut)

	answer := strings.TrimSpace(resp.Content)
	if answer == "" {
		return "", ErrEmptyCompletion
	}
	return answer, nil
}

func (g *LLMGenerator) modelLabel(served string) string {
	m := served
	if m == "" {
		m = g.cfg.Model
	}
	if m == "" {
		return g.client.Name()
	}
	return g.client.Name() + "/" + m
}
