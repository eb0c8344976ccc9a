package rag

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/shop-assistant/internal/llm"
)

type fakeLLM struct {
	req  *llm.CompletionRequest
	resp *llm.CompletionResponse
	err  error
}

func (f *fakeLLM) Complete(_ context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	f.req = req
	return f.resp, f.err
}

func (f *fakeLLM) Name() string     { return "fake" }
func (f *fakeLLM) Models() []string { return []string{"fake-1"} }

func TestLLMGenerator_Generate(t *testing.T) {
	client := &fakeLLM{resp: &llm.CompletionResponse{Content: "  Verify your account.  ", Model: "fake-1"}}
	g := NewLLMGenerator(client, GeneratorConfig{Model: "fake-1", Temperature: 0.7})

	answer, err := g.Generate(context.Background(), SystemPrompt, "Source 1: Setup\ntext", "How do I start?")
	require.NoError(t, err)
	assert.Equal(t, "Verify your account.", answer)

	require.NotNil(t, client.req)
	assert.Equal(t, SystemPrompt, client.req.System)
	assert.Equal(t, 500, client.req.MaxTokens)
	assert.InDelta(t, 0.7, client.req.Temperature, 1e-9)
	require.Len(t, client.req.Messages, 1)
	assert.Equal(t, "user", client.req.Messages[0].Role)
	assert.Equal(t, "Context:\nSource 1: Setup\ntext\n\nUser Question: How do I start?", client.req.Messages[0].Content)
}

func TestLLMGenerator_Errors(t *testing.T) {
	_, err := NewLLMGenerator(&fakeLLM{err: errors.New("unreachable")}, GeneratorConfig{}).
		Generate(context.Background(), "", "", "q")
	assert.EqualError(t, err, "unreachable")

	_, err = NewLLMGenerator(&fakeLLM{resp: &llm.CompletionResponse{Content: " "}}, GeneratorConfig{}).
		Generate(context.Background(), "", "", "q")
	assert.ErrorIs(t, err, ErrEmptyCompletion)
}
