// Package llm provides LLM client interfaces and implementations.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// Message roles understood by every provider.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// defaultMaxTokens bounds answers when the caller sets no limit.
const defaultMaxTokens = 500

// ErrMissingAPIKey is returned when a provider is selected without a key.
var ErrMissingAPIKey = errors.New("llm: API key is required")

// CompletionRequest represents a completion request.
type CompletionRequest struct {
	Model       string
	System      string
	Messages    []ChatMessage
	MaxTokens   int
	Temperature float64
}

// ChatMessage represents a chat message for LLM.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// CompletionResponse represents a completion response.
type CompletionResponse struct {
	Content    string
	Model      string
	TokensIn   int
	TokensOut  int
	StopReason string
	LatencyMs  int64
}

// Client is the interface for LLM providers.
type Client interface {
	// Complete sends a completion request and returns the whole response.
	Complete(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)

	// Name returns the provider name.
	Name() string

	// Models returns the models the adapter knows about; the first is the default.
	Models() []string
}

// Provider is the type of LLM provider.
type Provider string

const (
	ProviderAnthropic Provider = "anthropic"
	ProviderOpenAI    Provider = "openai"
)

// Config selects and authenticates a provider.
type Config struct {
	Provider Provider
	APIKey   string
	// BaseURL points the OpenAI adapter at a compatible endpoint.
	BaseURL string
}

// NewClient creates a new LLM client for cfg.Provider.
func NewClient(cfg Config) (Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("%s: %w", cfg.Provider, ErrMissingAPIKey)
	}
	switch cfg.Provider {
	case ProviderAnthropic:
		return NewAnthropicClient(cfg.APIKey)
	case ProviderOpenAI:
		return NewOpenAIClientWithBaseURL(cfg.APIKey, cfg.BaseURL)
	default:
		return nil, fmt.Errorf("unknown LLM provider %q", cfg.Provider)
	}
}
