// Package embedding maps text to fixed-length vectors.
package embedding

import (
	"context"
	"fmt"
	"strings"
)

// DefaultBatchSize bounds how many texts are sent per EmbedMany request.
const DefaultBatchSize = 32

// Provider embeds text. Empty input yields an empty vector and no error.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedMany(ctx context.Context, texts []string) ([][]float32, error)
	Name() string
}

// batchFunc embeds one batch of non-empty texts.
type batchFunc func(ctx context.Context, texts []string) ([][]float32, error)

// embedInBatches embeds texts in chunks of size, skipping empty entries
// and keeping output positions aligned with the input.
func embedInBatches(ctx context.Context, texts []string, size int, fn batchFunc) ([][]float32, error) {
	out := make([][]float32, len(texts))
	if size <= 0 {
		size = DefaultBatchSize
	}

	var (
		pending []string
		slots   []int
	)
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		vectors, err := fn(ctx, pending)
		if err != nil {
			return err
		}
		if len(vectors) != len(pending) {
			return fmt.Errorf("embedding batch returned %d vectors for %d inputs", len(vectors), len(pending))
		}
		for i, v := range vectors {
			out[slots[i]] = v
		}
		pending, slots = pending[:0], slots[:0]
		return nil
	}

	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			out[i] = []float32{}
			continue
		}
		pending = append(pending, text)
		slots = append(slots, i)
		if len(pending) == size {
			if err := flush(); err != nil {
				return nil, err
			}
		}
	}
	if err := flush(); err != nil {
		return nil, err
	}

	return out, nil
}
