package embedding

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// OpenAIProvider embeds text with the OpenAI embeddings API.
type OpenAIProvider struct {
	client    *openai.Client
	model     openai.EmbeddingModel
	batchSize int
}

// NewOpenAIProvider creates an OpenAI embedding provider. An empty baseURL
// uses the public API; an empty model uses text-embedding-ada-002.
func NewOpenAIProvider(apiKey, baseURL, model string) (*OpenAIProvider, error) {
	if apiKey == "" {
		return nil, errors.New("OpenAI API key is required")
	}

	config := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		config.BaseURL = baseURL
	}

	m := openai.AdaEmbeddingV2
	if model != "" {
		m = openai.EmbeddingModel(model)
	}

	return &OpenAIProvider{
		client:    openai.NewClientWithConfig(config),
		model:     m,
		batchSize: DefaultBatchSize,
	}, nil
}

// Name returns the provider name.
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Embed embeds a single text.
func (p *OpenAIProvider) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return []float32{}, nil
	}
	vectors, err := p.embedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedMany embeds texts in batches, preserving input order.
func (p *OpenAIProvider) EmbedMany(ctx context.Context, texts []string) ([][]float32, error) {
	return embedInBatches(ctx, texts, p.batchSize, p.embedBatch)
}

func (p *OpenAIProvider) embedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := p.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: p.model,
	})
	if err != nil {
		return nil, fmt.Errorf("creating embeddings: %w", err)
	}

	out := make([][]float32, len(texts))
	for _, item := range resp.Data {
		if item.Index < 0 || item.Index >= len(out) {
			return nil, fmt.Errorf("embedding index %d out of range", item.Index)
		}
		out[item.Index] = item.Embedding
	}
	for i, v := range out {
		if v == nil {
			return nil, fmt.Errorf("missing embedding for input %d", i)
		}
	}
	return out, nil
}
