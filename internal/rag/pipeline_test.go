package rag

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/capitalize-ai/shop-assistant/internal/corpus"
	"github.com/capitalize-ai/shop-assistant/internal/memory"
	"github.com/capitalize-ai/shop-assistant/internal/model"
	"github.com/capitalize-ai/shop-assistant/internal/retrieval"
	"github.com/capitalize-ai/shop-assistant/pkg/apperr"
	"github.com/capitalize-ai/shop-assistant/pkg/logger"
)

type fakeGenerator struct {
	mu      sync.Mutex
	answer  string
	err     error
	delay   time.Duration
	context string
	calls   int
}

func (f *fakeGenerator) Generate(ctx context.Context, _, assembled, _ string) (string, error) {
	f.mu.Lock()
	f.calls++
	f.context = assembled
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	return f.answer, f.err
}

type captureRecorder struct {
	mu     sync.Mutex
	events []*model.AnswerEvent
	err    error
}

func (c *captureRecorder) Record(_ context.Context, e *model.AnswerEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
	return c.err
}

type fixture struct {
	orch     *Orchestrator
	gen      *fakeGenerator
	memory   *memory.Memory
	recorder *captureRecorder
}

func newFixture(t *testing.T, opts retrieval.Options, cfg Config) *fixture {
	t.Helper()
	log := logger.NewNop()

	store := corpus.NewStore(log)
	require.NoError(t, corpus.Seed(context.Background(), store))

	gen := &fakeGenerator{answer: "Create a TikTok Business account and verify your identity."}
	mem := memory.New(memory.NewMemoryStore(), log)
	rec := &captureRecorder{}
	retriever := retrieval.NewCorpusRetriever(store, retrieval.NewKeywordScorer(), opts, log)

	return &fixture{
		orch:     NewOrchestrator(retriever, mem, gen, log, WithRecorder(rec), WithConfig(cfg)),
		gen:      gen,
		memory:   mem,
		recorder: rec,
	}
}

func TestAnswer_ShopSetupQuestion(t *testing.T) {
	f := newFixture(t, retrieval.DefaultOptions(), Config{})

	resp, err := f.orch.Answer(context.Background(), "How do I set up my TikTok Shop?", "")
	require.NoError(t, err)

	require.NotEmpty(t, resp.Sources)
	assert.Equal(t, "Shop Setup Guide", resp.Sources[0].Title)
	assert.GreaterOrEqual(t, resp.Sources[0].Relevance, 0.3)
	assert.Greater(t, resp.Confidence, 0.3)
	assert.LessOrEqual(t, resp.Confidence, 0.95)
	assert.Equal(t, f.gen.answer, resp.Answer)
	assert.Equal(t, len(resp.Sources), resp.DocumentsRetrieved)
	assert.LessOrEqual(t, resp.DocumentsRetrieved, retrieval.DefaultK)
	require.Len(t, resp.Citations, len(resp.Sources))
	assert.Equal(t, "Shop Setup Guide", resp.Citations[0].SourceTitle)
	assert.LessOrEqual(t, len([]rune(resp.Citations[0].Excerpt)), CitationExcerptChars+3)
	assert.True(t, strings.HasSuffix(resp.Citations[0].Excerpt, "..."))
	assert.Contains(t, f.gen.context, "Source 1: Shop Setup Guide")
	assert.Positive(t, resp.ProcessingTime)

	require.Len(t, f.recorder.events, 1)
	assert.Equal(t, model.EventTypeAnswer, f.recorder.events[0].Type)
	assert.NotEmpty(t, f.recorder.events[0].ID)
}

func TestAnswer_NoKeywordOverlap(t *testing.T) {
	f := newFixture(t, retrieval.Options{MinScore: 0.3, Fallback: retrieval.FallbackNone}, Config{})

	resp, err := f.orch.Answer(context.Background(), "What's the weather forecast?", "")
	require.NoError(t, err)

	assert.Equal(t, NoKnowledgeContext, f.gen.context)
	assert.InDelta(t, 0.3, resp.Confidence, 1e-9)
	assert.Empty(t, resp.Sources)
	assert.Zero(t, resp.DocumentsRetrieved)
}

func TestAnswer_FallbackDocumentsAreUngrounded(t *testing.T) {
	f := newFixture(t, retrieval.DefaultOptions(), Config{TopK: 3})

	resp, err := f.orch.Answer(context.Background(), "What's the weather forecast?", "")
	require.NoError(t, err)

	assert.Equal(t, 3, resp.DocumentsRetrieved)
	assert.InDelta(t, 0.3, resp.Confidence, 1e-9)
	for _, s := range resp.Sources {
		assert.Zero(t, s.Relevance)
	}
}

func TestAnswer_SessionHistory(t *testing.T) {
	f := newFixture(t, retrieval.DefaultOptions(), Config{})
	ctx := context.Background()

	id, err := f.memory.Create(ctx, "owner", "")
	require.NoError(t, err)

	_, err = f.orch.Answer(ctx, "How do I set up my TikTok Shop?", id)
	require.NoError(t, err)

	history := f.memory.History(ctx, id, 0)
	require.Len(t, history, 2)
	assert.Equal(t, model.RoleUser, history[0].Role)
	assert.Equal(t, "How do I set up my TikTok Shop?", history[0].Content)
	assert.Equal(t, model.RoleAssistant, history[1].Role)

	_, err = f.orch.Answer(ctx, "What about marketing?", id)
	require.NoError(t, err)
	assert.Contains(t, f.gen.context, "Previous conversation:\nUser: How do I set up my TikTok Shop?")
	assert.Len(t, f.memory.History(ctx, id, 0), 4)
}

func TestAnswer_UnknownSessionIsSoft(t *testing.T) {
	f := newFixture(t, retrieval.DefaultOptions(), Config{})

	resp, err := f.orch.Answer(context.Background(), "shop marketing tips", "does-not-exist")
	require.NoError(t, err)
	assert.Equal(t, f.gen.answer, resp.Answer)
	assert.NotContains(t, f.gen.context, "Previous conversation")
}

func TestAnswer_GeneratorTimeout(t *testing.T) {
	f := newFixture(t, retrieval.DefaultOptions(), Config{GenerateTimeout: 20 * time.Millisecond})
	f.gen.delay = time.Second
	ctx := context.Background()

	id, _ := f.memory.Create(ctx, "owner", "")
	resp, err := f.orch.Answer(ctx, "How do I set up my TikTok Shop?", id)
	require.NoError(t, err)

	assert.Equal(t, DegradedAnswer, resp.Answer)
	assert.NotEmpty(t, resp.Answer)
	assert.Zero(t, resp.Confidence)
	assert.Empty(t, resp.Sources)
	assert.Empty(t, resp.Citations)
	assert.Zero(t, resp.DocumentsRetrieved)
	assert.Greater(t, resp.ProcessingTime, time.Duration(0))
	assert.Empty(t, f.memory.History(ctx, id, 0), "degraded answers are not remembered")

	require.Len(t, f.recorder.events, 1)
	assert.Equal(t, model.EventTypeDegraded, f.recorder.events[0].Type)
	assert.NotEmpty(t, f.recorder.events[0].Reason)
}

func TestAnswer_GeneratorError(t *testing.T) {
	f := newFixture(t, retrieval.DefaultOptions(), Config{})
	f.gen.err = errors.New("provider unreachable")

	resp, err := f.orch.Answer(context.Background(), "shop analytics", "")
	require.NoError(t, err)
	assert.Equal(t, DegradedAnswer, resp.Answer)
	assert.Zero(t, resp.Confidence)
}

func TestAnswer_RecorderFailureIsSoft(t *testing.T) {
	f := newFixture(t, retrieval.DefaultOptions(), Config{})
	f.recorder.err = errors.New("nats down")

	resp, err := f.orch.Answer(context.Background(), "shop analytics", "")
	require.NoError(t, err)
	assert.Equal(t, f.gen.answer, resp.Answer)
}

func TestAnswer_EmptyQuery(t *testing.T) {
	f := newFixture(t, retrieval.DefaultOptions(), Config{})

	for _, q := range []string{"", "   \n\t"} {
		resp, err := f.orch.Answer(context.Background(), q, "")
		assert.Nil(t, resp)
		assert.ErrorIs(t, err, ErrEmptyQuery)
		assert.True(t, apperr.IsValidation(err))
	}
	assert.Zero(t, f.gen.calls, "no generator call for malformed input")
}

type failingRetriever struct{}

func (failingRetriever) Retrieve(context.Context, string, int) ([]model.RetrievalResult, error) {
	return nil, errors.New("index unavailable")
}

func TestAnswer_RetrieverFailureIsSoft(t *testing.T) {
	gen := &fakeGenerator{answer: "general advice"}
	orch := NewOrchestrator(failingRetriever{}, memory.New(memory.NewMemoryStore(), logger.NewNop()), gen, logger.NewNop())

	resp, err := orch.Answer(context.Background(), "shop", "")
	require.NoError(t, err)
	assert.Equal(t, NoKnowledgeContext, gen.context)
	assert.InDelta(t, 0.3, resp.Confidence, 1e-9)
}

func TestAnswer_ConcurrentSessions(t *testing.T) {
	f := newFixture(t, retrieval.DefaultOptions(), Config{})
	ctx := context.Background()

	ids := make([]string, 5)
	for i := range ids {
		ids[i], _ = f.memory.Create(ctx, "owner", "")
	}

	var wg sync.WaitGroup
	for _, id := range ids {
		for i := 0; i < 4; i++ {
			wg.Add(1)
			go func(id string) {
				defer wg.Done()
				_, err := f.orch.Answer(ctx, "shop marketing", id)
				assert.NoError(t, err)
			}(id)
		}
	}
	wg.Wait()

	for _, id := range ids {
		assert.Len(t, f.memory.History(ctx, id, 0), 8)
	}
}

func TestSuggestions(t *testing.T) {
	tests := []struct {
		name    string
		context string
		first   []string
	}{
		{
			name:    "setup context",
			context: "User: What is the SETUP process?",
			first: []string{
				"What documents do I need for verification?",
				"How long does the approval process take?",
				"What are the minimum requirements?",
			},
		},
		{
			name:    "performance context",
			context: "my shop performance dropped",
			first: []string{
				"How do I increase my conversion rate?",
				"What metrics indicate success?",
				"How do I analyze my competitors?",
			},
		},
		{
			name:    "setup wins over performance",
			context: "setup and performance",
			first:   []string{"What documents do I need for verification?"},
		},
		{
			name:    "plain context",
			context: "what are the fees?",
			first:   []string{"How do I set up my TikTok Shop?", "What are the requirements for TikTok Shop?"},
		},
		{
			name:  "no context",
			first: []string{"How do I set up my TikTok Shop?"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Suggestions(tt.context)
			require.GreaterOrEqual(t, len(s), len(tt.first))
			assert.Equal(t, tt.first, s[:len(tt.first)])
			assert.Contains(t, s, "What are the shipping requirements?")
		})
	}

	assert.Len(t, Suggestions(""), 10)
	assert.Len(t, Suggestions("setup"), 13)
	assert.Len(t, TopSuggestions("setup", AnswerSuggestions), AnswerSuggestions)
	assert.Len(t, TopSuggestions("setup", 0), 13)
}

func TestAnswer_AttachesSuggestions(t *testing.T) {
	f := newFixture(t, retrieval.DefaultOptions(), Config{})
	ctx := context.Background()

	resp, err := f.orch.Answer(ctx, "How is my shop performance tracked?", "")
	require.NoError(t, err)
	require.Len(t, resp.Suggestions, AnswerSuggestions)
	assert.Equal(t, "How do I increase my conversion rate?", resp.Suggestions[0])

	sessionID, err := f.memory.Create(ctx, "alice", "")
	require.NoError(t, err)
	require.True(t, f.memory.AddMessage(ctx, sessionID, model.RoleUser, "Walk me through shop setup", nil))

	resp, err = f.orch.Answer(ctx, "What comes next?", sessionID)
	require.NoError(t, err)
	require.Len(t, resp.Suggestions, AnswerSuggestions)
	assert.Equal(t, "What documents do I need for verification?", resp.Suggestions[0])

	f.gen.err = errors.New("provider down")
	resp, err = f.orch.Answer(ctx, "plain question", "")
	require.NoError(t, err)
	assert.Equal(t, DegradedAnswer, resp.Answer)
	assert.Equal(t, TopSuggestions("", AnswerSuggestions), resp.Suggestions)
}
