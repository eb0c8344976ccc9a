package rag

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/capitalize-ai/shop-assistant/internal/model"
)

func result(title, text string, score float64) model.RetrievalResult {
	return model.RetrievalResult{
		Document: model.Document{
			ID:       title,
			Text:     text,
			Metadata: map[string]string{model.MetaTitle: title},
		},
		RelevanceScore: score,
	}
}

func TestAssemble_Empty(t *testing.T) {
	assert.Equal(t, NoKnowledgeContext, Assemble(nil, "", 2000))

	withPrior := Assemble(nil, "User: hi", 2000)
	assert.True(t, strings.HasPrefix(withPrior, "Previous conversation:\nUser: hi\n\n"))
	assert.True(t, strings.HasSuffix(withPrior, NoKnowledgeContext))
}

func TestAssemble_Blocks(t *testing.T) {
	long := strings.Repeat("x", 600)
	got := Assemble([]model.RetrievalResult{
		result("Shop Setup Guide", "short text", 0.4),
		result("Marketing", long, 0.4),
	}, "", 0)

	want := "Source 1: Shop Setup Guide\nshort text...\n\nSource 2: Marketing\n" + strings.Repeat("x", 500) + "..."
	assert.Equal(t, want, got)
}

func TestAssemble_LabelFallsBackToURL(t *testing.T) {
	r := model.RetrievalResult{Document: model.Document{
		Text:     "body",
		Metadata: map[string]string{model.MetaURL: "https://example.com/doc"},
	}}
	assert.Equal(t, "Source 1: https://example.com/doc\nbody...", Assemble([]model.RetrievalResult{r}, "", 0))

	bare := model.RetrievalResult{Document: model.Document{Text: "body"}}
	assert.Equal(t, "Source 1\nbody...", Assemble([]model.RetrievalResult{bare}, "", 0))
}

func TestAssemble_PriorContextFirst(t *testing.T) {
	got := Assemble([]model.RetrievalResult{result("A", "alpha", 0.5)}, "User: earlier question", 0)

	prior := strings.Index(got, "Previous conversation:")
	source := strings.Index(got, "Source 1: A")
	assert.Equal(t, 0, prior)
	assert.Greater(t, source, prior)
}

func TestAssemble_BudgetNeverSplitsBlocks(t *testing.T) {
	text := strings.Repeat("y", 400) // ~100 tokens per block
	results := []model.RetrievalResult{
		result("A", text, 0.9),
		result("B", text, 0.8),
		result("C", text, 0.7),
	}

	got := Assemble(results, "", 230)
	assert.Contains(t, got, "Source 1: A")
	assert.Contains(t, got, "Source 2: B")
	assert.NotContains(t, got, "Source 3")
	assert.True(t, strings.HasSuffix(got, text+"..."))

	tiny := Assemble(results, "", 1)
	assert.Contains(t, tiny, "Source 1: A", "first block is always kept")
	assert.NotContains(t, tiny, "Source 2")
}
