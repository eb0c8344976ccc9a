package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAnthropicClient_Complete(t *testing.T) {
	var received map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/messages", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("X-Api-Key"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&received))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":    "msg_1",
			"type":  "message",
			"role":  "assistant",
			"model": defaultAnthropicModel,
			"content": []map[string]any{
				{"type": "text", "text": "Verify your business "},
				{"type": "text", "text": "in Seller Center."},
			},
			"stop_reason": "end_turn",
			"usage":       map[string]any{"input_tokens": 30, "output_tokens": 9},
		})
	}))
	defer server.Close()

	client, err := NewAnthropicClient("test-key", option.WithBaseURL(server.URL+"/"), option.WithMaxRetries(0))
	require.NoError(t, err)

	resp, err := client.Complete(context.Background(), &CompletionRequest{
		System:      "You are a shop expert.",
		Messages:    []ChatMessage{{Role: RoleUser, Content: "How do I verify my shop?"}},
		Temperature: 0.7,
	})
	require.NoError(t, err)

	assert.Equal(t, "Verify your business in Seller Center.", resp.Content)
	assert.Equal(t, 30, resp.TokensIn)
	assert.Equal(t, 9, resp.TokensOut)
	assert.Equal(t, "end_turn", resp.StopReason)

	assert.EqualValues(t, defaultMaxTokens, received["max_tokens"])
	system, ok := received["system"].([]any)
	require.True(t, ok)
	assert.Equal(t, "You are a shop expert.", system[0].(map[string]any)["text"])
}

func TestNewAnthropicClient_MissingKey(t *testing.T) {
	_, err := NewAnthropicClient("")
	assert.ErrorIs(t, err, ErrMissingAPIKey)
}
