// Package corpus holds the knowledge documents the retriever scores.
package corpus

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/capitalize-ai/shop-assistant/internal/model"
	"github.com/capitalize-ai/shop-assistant/pkg/apperr"
	"github.com/capitalize-ai/shop-assistant/pkg/logger"
	"github.com/capitalize-ai/shop-assistant/pkg/metrics"
)

// ErrEmptyDocument is returned when a document has no text.
var ErrEmptyDocument = apperr.New(apperr.KindValidation, "document text cannot be empty")

// Indexer mirrors corpus mutations into an external index such as a vector database.
type Indexer interface {
	Index(ctx context.Context, docs []model.Document) error
	Remove(ctx context.Context, ids []string) error
}

// snapshot is an immutable view of the corpus. A new snapshot is published on
// every mutation, so a scoring pass never observes a partial write.
type snapshot struct {
	docs  []model.Document
	index map[string]int
}

// Store is a growable, copy-on-write document store.
type Store struct {
	writeMu sync.Mutex
	current atomic.Pointer[snapshot]
	indexer Indexer
	logger  *logger.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithIndexer mirrors every mutation into idx.
func WithIndexer(idx Indexer) Option {
	return func(s *Store) {
		s.indexer = idx
	}
}

// NewStore creates an empty store.
func NewStore(log *logger.Logger, opts ...Option) *Store {
	s := &Store{logger: log}
	for _, opt := range opts {
		opt(s)
	}
	s.current.Store(&snapshot{index: map[string]int{}})
	return s
}

// Snapshot returns the documents in insertion order. The slice is shared and
// must be treated as read-only; callers that hand documents out clone them.
func (s *Store) Snapshot() []model.Document {
	return s.current.Load().docs
}

// Len returns the number of documents.
func (s *Store) Len() int {
	return len(s.current.Load().docs)
}

// Get returns a copy of the document with id.
func (s *Store) Get(id string) (model.Document, bool) {
	snap := s.current.Load()
	i, ok := snap.index[id]
	if !ok {
		return model.Document{}, false
	}
	return snap.docs[i].Clone(), true
}

// AddDocuments ingests documents in order and returns their ids. Documents
// without an id get a generated one; an existing id is replaced in place.
func (s *Store) AddDocuments(ctx context.Context, inputs []model.NewDocumentInput) ([]string, error) {
	added := make([]model.Document, 0, len(inputs))
	for _, in := range inputs {
		if strings.TrimSpace(in.Text) == "" {
			return nil, ErrEmptyDocument
		}
		id := in.ID
		if id == "" {
			id = uuid.Must(uuid.NewV7()).String()
		}
		added = append(added, model.Document{ID: id, Text: in.Text, Metadata: in.Metadata}.Clone())
	}

	s.writeMu.Lock()
	old := s.current.Load()
	next := &snapshot{
		docs:  make([]model.Document, len(old.docs), len(old.docs)+len(added)),
		index: make(map[string]int, len(old.index)+len(added)),
	}
	copy(next.docs, old.docs)
	for id, i := range old.index {
		next.index[id] = i
	}
	for _, doc := range added {
		if i, ok := next.index[doc.ID]; ok {
			next.docs[i] = doc
			continue
		}
		next.index[doc.ID] = len(next.docs)
		next.docs = append(next.docs, doc)
	}
	s.current.Store(next)
	s.writeMu.Unlock()

	metrics.CorpusDocuments.Set(float64(len(next.docs)))

	ids := make([]string, len(added))
	for i, doc := range added {
		ids[i] = doc.ID
	}

	s.logger.Info("documents added to corpus",
		zap.Int("count", len(added)),
		zap.Int("total", len(next.docs)),
	)

	if s.indexer != nil {
		if err := s.indexer.Index(ctx, added); err != nil {
			return ids, apperr.Wrap(apperr.KindExternal, "failed to index documents", err)
		}
	}

	return ids, nil
}

// Delete removes the document with id. It reports whether a document was removed.
func (s *Store) Delete(ctx context.Context, id string) (bool, error) {
	s.writeMu.Lock()
	old := s.current.Load()
	pos, ok := old.index[id]
	if !ok {
		s.writeMu.Unlock()
		return false, nil
	}

	next := &snapshot{
		docs:  make([]model.Document, 0, len(old.docs)-1),
		index: make(map[string]int, len(old.index)-1),
	}
	for i, doc := range old.docs {
		if i == pos {
			continue
		}
		next.index[doc.ID] = len(next.docs)
		next.docs = append(next.docs, doc)
	}
	s.current.Store(next)
	s.writeMu.Unlock()

	metrics.CorpusDocuments.Set(float64(len(next.docs)))
	s.logger.Info("document deleted from corpus", zap.String("document_id", id))

	if s.indexer != nil {
		if err := s.indexer.Remove(ctx, []string{id}); err != nil {
			return true, apperr.Wrap(apperr.KindExternal, "failed to remove document from index", err)
		}
	}

	return true, nil
}

// List returns up to limit documents starting at offset.
func (s *Store) List(offset, limit int) []model.Document {
	docs := s.Snapshot()
	if offset < 0 {
		offset = 0
	}
	if offset > len(docs) {
		offset = len(docs)
	}
	end := len(docs)
	if limit > 0 && offset+limit < end {
		end = offset + limit
	}

	out := make([]model.Document, 0, end-offset)
	for _, doc := range docs[offset:end] {
		out = append(out, doc.Clone())
	}
	return out
}

// ByCategory returns up to limit documents in category.
func (s *Store) ByCategory(category string, limit int) []model.Document {
	var out []model.Document
	for _, doc := range s.Snapshot() {
		if limit > 0 && len(out) >= limit {
			break
		}
		if doc.Category() == category {
			out = append(out, doc.Clone())
		}
	}
	return out
}

// Stats returns document counts per category and source type.
func (s *Store) Stats() model.CorpusStats {
	docs := s.Snapshot()
	stats := model.CorpusStats{
		TotalDocuments: len(docs),
		Categories:     make(map[string]int),
		SourceTypes:    make(map[string]int),
	}
	for _, doc := range docs {
		category := doc.Category()
		if category == "" {
			category = "other"
		}
		stats.Categories[category]++
		if st := doc.SourceType(); st != "" {
			stats.SourceTypes[st]++
		}
	}
	return stats
}
