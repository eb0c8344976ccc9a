package rag

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/capitalize-ai/shop-assistant/internal/model"
)

func TestEstimateConfidence(t *testing.T) {
	tests := []struct {
		name    string
		results []model.RetrievalResult
		want    float64
	}{
		{"empty", nil, 0.3},
		{"single", []model.RetrievalResult{{RelevanceScore: 0.4}}, 0.45},
		{"averaged with bonus", []model.RetrievalResult{{RelevanceScore: 0.6}, {RelevanceScore: 0.4}}, 0.6},
		{"capped", []model.RetrievalResult{{RelevanceScore: 1}, {RelevanceScore: 1}}, 0.95},
		{"floored", []model.RetrievalResult{{RelevanceScore: 0.1}}, 0.3},
		{"fallback only", []model.RetrievalResult{{Fallback: true}, {Fallback: true}}, 0.3},
		{"fallback ignored", []model.RetrievalResult{{RelevanceScore: 0.8}, {Fallback: true}}, 0.85},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, EstimateConfidence(tt.results), 1e-9)
		})
	}
}

func TestEstimateConfidence_Bounds(t *testing.T) {
	for n := 1; n <= 10; n++ {
		for _, score := range []float64{0, 0.2, 0.31, 0.5, 0.75, 1} {
			results := make([]model.RetrievalResult, n)
			for i := range results {
				results[i].RelevanceScore = score
			}
			c := EstimateConfidence(results)
			assert.GreaterOrEqual(t, c, 0.3)
			assert.LessOrEqual(t, c, 0.95)
		}
	}
}
