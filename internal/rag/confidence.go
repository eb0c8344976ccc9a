package rag

import (
	"math"

	"github.com/capitalize-ai/shop-assistant/internal/model"
)

const (
	// UngroundedConfidence is reported when no retrieved document grounds the answer.
	UngroundedConfidence = 0.3

	// MaxConfidence caps the estimate; answers never claim full certainty.
	MaxConfidence = 0.95

	// CorroborationBonus is added per grounding document.
	CorroborationBonus = 0.05
)

// EstimateConfidence derives answer confidence from retrieval quality: the
// average relevance plus a bonus per document, within [0.3, 0.95]. Fallback
// results carry no grounding and are ignored.
func EstimateConfidence(results []model.RetrievalResult) float64 {
	var (
		total float64
		n     int
	)
	for _, r := range results {
		if r.Fallback {
			continue
		}
		total += r.RelevanceScore
		n++
	}
	if n == 0 {
		return UngroundedConfidence
	}

	c := total/float64(n) + float64(n)*CorroborationBonus
	return math.Max(UngroundedConfidence, math.Min(MaxConfidence, c))
}
