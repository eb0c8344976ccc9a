// Package retrieval scores corpus documents against a query and ranks them.
package retrieval

import (
	"context"
	"math"
	"strings"

	"github.com/capitalize-ai/shop-assistant/internal/model"
)

// Scorer computes the relevance of a document to a query in [0,1].
type Scorer interface {
	Score(ctx context.Context, query string, doc model.Document) float64
}

// DefaultKeywords is the shop operations vocabulary used by KeywordScorer.
var DefaultKeywords = []string{
	"setup",
	"optimize",
	"marketing",
	"analytics",
	"policy",
	"shop",
	"tiktok",
	"product",
	"performance",
}

// KeywordIncrement is added per keyword found in both query and document.
const KeywordIncrement = 0.2

// KeywordScorer scores by keyword overlap. It is deterministic and makes no
// external calls.
type KeywordScorer struct {
	keywords  []string
	increment float64
}

// NewKeywordScorer creates a scorer over keywords, or DefaultKeywords when none
// are given.
func NewKeywordScorer(keywords ...string) *KeywordScorer {
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}
	lowered := make([]string, len(keywords))
	for i, k := range keywords {
		lowered[i] = strings.ToLower(k)
	}
	return &KeywordScorer{keywords: lowered, increment: KeywordIncrement}
}

// Score implements Scorer.
func (s *KeywordScorer) Score(_ context.Context, query string, doc model.Document) float64 {
	if strings.TrimSpace(query) == "" || strings.TrimSpace(doc.Text) == "" {
		return 0
	}

	q := strings.ToLower(query)
	text := strings.ToLower(doc.Text)

	matches := 0
	for _, kw := range s.keywords {
		if strings.Contains(q, kw) && strings.Contains(text, kw) {
			matches++
		}
	}
	return math.Min(1.0, float64(matches)*s.increment)
}
