package qdrant

import (
	"context"
	"math"

	"go.uber.org/zap"

	"github.com/capitalize-ai/shop-assistant/internal/embedding"
	"github.com/capitalize-ai/shop-assistant/internal/model"
	"github.com/capitalize-ai/shop-assistant/internal/retrieval"
	"github.com/capitalize-ai/shop-assistant/pkg/logger"
	"github.com/capitalize-ai/shop-assistant/pkg/metrics"
)

// searcher is satisfied by *Index.
type searcher interface {
	Search(ctx context.Context, vector []float32, limit int) ([]model.RetrievalResult, error)
}

// Retriever ranks documents by nearest-neighbour search in Qdrant, with the
// same threshold and fallback rules as the corpus retriever.
type Retriever struct {
	index    searcher
	embedder embedding.Provider
	source   retrieval.Source
	opts     retrieval.Options
	logger   *logger.Logger
}

// NewRetriever creates a Qdrant retriever. source supplies fallback documents.
func NewRetriever(index *Index, embedder embedding.Provider, source retrieval.Source, opts retrieval.Options, log *logger.Logger) *Retriever {
	return &Retriever{
		index:    index,
		embedder: embedder,
		source:   source,
		opts:     opts,
		logger:   log,
	}
}

// Retrieve implements retrieval.Retriever.
func (r *Retriever) Retrieve(ctx context.Context, query string, k int) ([]model.RetrievalResult, error) {
	if k <= 0 {
		k = retrieval.DefaultK
	}

	var results []model.RetrievalResult
	vector, err := r.embedder.Embed(ctx, query)
	switch {
	case err != nil:
		metrics.EmbeddingFailures.WithLabelValues(r.embedder.Name()).Inc()
		r.logger.Warn("query embedding failed, using fallback", zap.Int("query_len", len(query)), zap.Error(err))
	case len(vector) > 0:
		hits, err := r.index.Search(ctx, vector, k)
		if err != nil {
			return nil, err
		}
		for _, h := range hits {
			h.RelevanceScore = math.Max(0, math.Min(1, h.RelevanceScore))
			if h.RelevanceScore > r.opts.MinScore {
				results = append(results, h)
			}
		}
	}

	results = retrieval.Rank(results, k)
	if len(results) == 0 {
		return retrieval.Fallback(r.source.Snapshot(), k, r.opts.Fallback), nil
	}
	return results, nil
}
