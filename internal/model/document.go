// Package model defines data structures for the shop assistant.
package model

// Well-known document metadata keys.
const (
	MetaTitle      = "title"
	MetaCategory   = "category"
	MetaURL        = "url"
	MetaSourceType = "source_type"
	MetaTimestamp  = "timestamp"
)

// Document is a knowledge entry held by the corpus store. Documents are
// immutable once stored; relevance is attached per query on RetrievalResult.
type Document struct {
	ID       string            `json:"id"`
	Text     string            `json:"text"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Title returns the document title metadata.
func (d Document) Title() string { return d.Metadata[MetaTitle] }

// Category returns the document category metadata.
func (d Document) Category() string { return d.Metadata[MetaCategory] }

// URL returns the document source URL metadata.
func (d Document) URL() string { return d.Metadata[MetaURL] }

// SourceType returns the document source type metadata.
func (d Document) SourceType() string { return d.Metadata[MetaSourceType] }

// Clone returns a copy that shares no mutable state with d.
func (d Document) Clone() Document {
	out := Document{ID: d.ID, Text: d.Text}
	if d.Metadata != nil {
		out.Metadata = make(map[string]string, len(d.Metadata))
		for k, v := range d.Metadata {
			out.Metadata[k] = v
		}
	}
	return out
}

// RetrievalResult is a document annotated with its relevance to one query.
type RetrievalResult struct {
	Document       Document `json:"document"`
	RelevanceScore float64  `json:"relevance_score"`

	// Fallback marks documents returned because nothing cleared the
	// relevance threshold. They carry no grounding.
	Fallback bool `json:"fallback,omitempty"`
}

// NewDocumentInput is one {text, metadata} pair for bulk ingestion.
type NewDocumentInput struct {
	ID       string            `json:"id,omitempty" validate:"omitempty,max=128"`
	Text     string            `json:"text" validate:"required,max=100000"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// AddDocumentsRequest is the admin request to ingest documents.
type AddDocumentsRequest struct {
	Documents []NewDocumentInput `json:"documents" validate:"required,min=1,max=500,dive"`
}

// CorpusStats summarises the corpus contents.
type CorpusStats struct {
	TotalDocuments int            `json:"total_documents"`
	Categories     map[string]int `json:"categories"`
	SourceTypes    map[string]int `json:"source_types"`
}
