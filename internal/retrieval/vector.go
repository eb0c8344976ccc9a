package retrieval

import (
	"context"
	"math"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/capitalize-ai/shop-assistant/internal/embedding"
	"github.com/capitalize-ai/shop-assistant/internal/model"
	"github.com/capitalize-ai/shop-assistant/pkg/logger"
	"github.com/capitalize-ai/shop-assistant/pkg/metrics"
)

// maxQueryCache bounds the query embedding cache; it is reset when full.
const maxQueryCache = 1024

// Cosine returns the cosine similarity of a and b in [-1,1]. It returns 0
// when either vector has zero norm or the dimensions differ.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		normA += x * x
		normB += y * y
	}
	if normA == 0 || normB == 0 {
		return 0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return math.Max(-1, math.Min(1, sim))
}

type cachedVector struct {
	text   string
	vector []float32
}

// VectorScorer scores by cosine similarity between query and document
// embeddings. Provider failures score 0 and are never returned.
type VectorScorer struct {
	provider embedding.Provider
	logger   *logger.Logger

	mu      sync.RWMutex
	docs    map[string]cachedVector
	queries map[string][]float32
}

// NewVectorScorer creates a vector scorer backed by provider.
func NewVectorScorer(provider embedding.Provider, log *logger.Logger) *VectorScorer {
	return &VectorScorer{
		provider: provider,
		logger:   log,
		docs:     make(map[string]cachedVector),
		queries:  make(map[string][]float32),
	}
}

// Score implements Scorer. Negative similarities are clamped to 0.
func (s *VectorScorer) Score(ctx context.Context, query string, doc model.Document) float64 {
	if strings.TrimSpace(query) == "" || strings.TrimSpace(doc.Text) == "" {
		return 0
	}

	qv, err := s.queryVector(ctx, query)
	if err != nil {
		s.embeddingFailed(err, zap.Int("query_len", len(query)))
		return 0
	}
	dv, err := s.documentVector(ctx, doc)
	if err != nil {
		s.embeddingFailed(err, zap.String("document_id", doc.ID))
		return 0
	}

	return math.Max(0, Cosine(qv, dv))
}

// Warm embeds every uncached document in one batched call.
func (s *VectorScorer) Warm(ctx context.Context, docs []model.Document) error {
	var (
		pending []model.Document
		texts   []string
	)
	s.mu.RLock()
	for _, d := range docs {
		if c, ok := s.docs[d.ID]; ok && c.text == d.Text {
			continue
		}
		pending = append(pending, d)
		texts = append(texts, d.Text)
	}
	s.mu.RUnlock()

	if len(pending) == 0 {
		return nil
	}

	vectors, err := s.provider.EmbedMany(ctx, texts)
	if err != nil {
		s.embeddingFailed(err, zap.Int("documents", len(pending)))
		return err
	}

	s.mu.Lock()
	for i, d := range pending {
		s.docs[d.ID] = cachedVector{text: d.Text, vector: vectors[i]}
	}
	s.mu.Unlock()

	s.logger.Info("document embeddings warmed", zap.Int("documents", len(pending)))
	return nil
}

func (s *VectorScorer) queryVector(ctx context.Context, query string) ([]float32, error) {
	s.mu.RLock()
	v, ok := s.queries[query]
	s.mu.RUnlock()
	if ok {
		return v, nil
	}

	v, err := s.provider.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	if len(s.queries) >= maxQueryCache {
		s.queries = make(map[string][]float32)
	}
	s.queries[query] = v
	s.mu.Unlock()
	return v, nil
}

func (s *VectorScorer) documentVector(ctx context.Context, doc model.Document) ([]float32, error) {
	s.mu.RLock()
	c, ok := s.docs[doc.ID]
	s.mu.RUnlock()
	if ok && c.text == doc.Text {
		return c.vector, nil
	}

	v, err := s.provider.Embed(ctx, doc.Text)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.docs[doc.ID] = cachedVector{text: doc.Text, vector: v}
	s.mu.Unlock()
	return v, nil
}

func (s *VectorScorer) embeddingFailed(err error, fields ...zap.Field) {
	metrics.EmbeddingFailures.WithLabelValues(s.provider.Name()).Inc()
	s.logger.Warn("embedding failed, scoring as irrelevant",
		append(fields, zap.String("provider", s.provider.Name()), zap.Error(err))...,
	)
}
