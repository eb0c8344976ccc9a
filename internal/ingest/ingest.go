// Package ingest feeds knowledge documents into the corpus from external
// sources: a Postgres table and a watched directory of text files.
package ingest

import (
	"context"

	"github.com/capitalize-ai/shop-assistant/internal/model"
)

// Sink receives ingested documents. *corpus.Store satisfies it.
type Sink interface {
	AddDocuments(ctx context.Context, inputs []model.NewDocumentInput) ([]string, error)
	Delete(ctx context.Context, id string) (bool, error)
}
