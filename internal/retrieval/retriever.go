package retrieval

import (
	"context"
	"fmt"
	"sort"

	"go.uber.org/zap"

	"github.com/capitalize-ai/shop-assistant/internal/model"
	"github.com/capitalize-ai/shop-assistant/pkg/logger"
)

const (
	// DefaultK is the number of documents retrieved when k is not positive.
	DefaultK = 5
	// DefaultMinScore is the relevance a document must exceed to be returned.
	DefaultMinScore = 0.3
)

// FallbackPolicy decides what Retrieve returns when nothing clears the threshold.
type FallbackPolicy string

const (
	// FallbackFirstK returns the first k corpus documents, flagged as fallback.
	FallbackFirstK FallbackPolicy = "first_k"
	// FallbackNone returns an empty result.
	FallbackNone FallbackPolicy = "none"
)

// ParseFallbackPolicy parses a policy name. An empty name selects FallbackFirstK.
func ParseFallbackPolicy(s string) (FallbackPolicy, error) {
	switch FallbackPolicy(s) {
	case "", FallbackFirstK:
		return FallbackFirstK, nil
	case FallbackNone:
		return FallbackNone, nil
	default:
		return "", fmt.Errorf("unknown fallback policy %q", s)
	}
}

// Retriever returns up to k documents ranked by relevance to query.
type Retriever interface {
	Retrieve(ctx context.Context, query string, k int) ([]model.RetrievalResult, error)
}

// Source provides a consistent view of the corpus for one scoring pass.
type Source interface {
	Snapshot() []model.Document
}

// Options configures threshold and fallback behavior.
type Options struct {
	MinScore float64
	Fallback FallbackPolicy
}

// DefaultOptions returns the default threshold and fallback policy.
func DefaultOptions() Options {
	return Options{MinScore: DefaultMinScore, Fallback: FallbackFirstK}
}

// CorpusRetriever scores every document in a corpus snapshot.
type CorpusRetriever struct {
	source Source
	scorer Scorer
	opts   Options
	logger *logger.Logger
}

// NewCorpusRetriever creates a retriever over source using scorer.
func NewCorpusRetriever(source Source, scorer Scorer, opts Options, log *logger.Logger) *CorpusRetriever {
	return &CorpusRetriever{
		source: source,
		scorer: scorer,
		opts:   opts,
		logger: log,
	}
}

// Retrieve implements Retriever. Results are sorted by score descending with
// ties kept in corpus order, and every score is strictly above MinScore.
func (r *CorpusRetriever) Retrieve(ctx context.Context, query string, k int) ([]model.RetrievalResult, error) {
	if k <= 0 {
		k = DefaultK
	}

	docs := r.source.Snapshot()
	results := make([]model.RetrievalResult, 0, len(docs))
	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		score := r.scorer.Score(ctx, query, doc)
		if score > r.opts.MinScore {
			results = append(results, model.RetrievalResult{
				Document:       doc.Clone(),
				RelevanceScore: score,
			})
		}
	}

	results = Rank(results, k)
	if len(results) == 0 {
		results = Fallback(docs, k, r.opts.Fallback)
		r.logger.Debug("no documents cleared threshold",
			zap.Float64("min_score", r.opts.MinScore),
			zap.String("fallback", string(r.opts.Fallback)),
			zap.Int("returned", len(results)),
		)
	}
	return results, nil
}

// Rank stable-sorts results by score descending and truncates to k.
func Rank(results []model.RetrievalResult, k int) []model.RetrievalResult {
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].RelevanceScore > results[j].RelevanceScore
	})
	if len(results) > k {
		results = results[:k]
	}
	return results
}

// Fallback applies policy to docs when no document cleared the threshold.
func Fallback(docs []model.Document, k int, policy FallbackPolicy) []model.RetrievalResult {
	if policy != FallbackFirstK || len(docs) == 0 {
		return []model.RetrievalResult{}
	}
	if len(docs) > k {
		docs = docs[:k]
	}
	out := make([]model.RetrievalResult, len(docs))
	for i, doc := range docs {
		out[i] = model.RetrievalResult{Document: doc.Clone(), Fallback: true}
	}
	return out
}
