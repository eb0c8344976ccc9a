package rag

import (
	"fmt"
	"strings"

	"github.com/capitalize-ai/shop-assistant/internal/model"
	"github.com/capitalize-ai/shop-assistant/internal/textutil"
)

const (
	// NoKnowledgeContext is the context used when nothing was retrieved.
	NoKnowledgeContext = "No specific information found. I'll provide general shop operations advice."

	// SourceExcerptChars bounds the document text included per context block.
	SourceExcerptChars = 500

	// DefaultContextBudget is the token budget of the assembled context.
	DefaultContextBudget = 2000
)

// Assemble renders retrieval results, plus optional prior conversation, into
// the context passed to the generator. budget is in estimated tokens and
// applies to the whole blob; blocks are never split, and the first source
// block is always kept. A non-positive budget disables the limit.
func Assemble(results []model.RetrievalResult, priorContext string, budget int) string {
	var b strings.Builder
	used := 0

	prior := strings.TrimSpace(priorContext)
	if prior != "" {
		b.WriteString("Previous conversation:\n")
		b.WriteString(prior)
		b.WriteString("\n\nRelevant information:\n")
		used = textutil.EstimateTokens(b.String())
	}

	if len(results) == 0 {
		b.WriteString(NoKnowledgeContext)
		return b.String()
	}

	for i, r := range results {
		block := sourceBlock(i+1, r.Document)
		if i > 0 {
			block = "\n\n" + block
		}

		cost := textutil.EstimateTokens(block)
		if i > 0 && budget > 0 && used+cost > budget {
			break
		}
		b.WriteString(block)
		used += cost
	}
	return b.String()
}

func sourceBlock(n int, doc model.Document) string {
	label := fmt.Sprintf("Source %d", n)
	switch {
	case doc.Title() != "":
		label += ": " + doc.Title()
	case doc.URL() != "":
		label += ": " + doc.URL()
	}
	return label + "\n" + textutil.Excerpt(doc.Text, SourceExcerptChars)
}
