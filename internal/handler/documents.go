package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/shop-assistant/internal/model"
	"github.com/capitalize-ai/shop-assistant/pkg/logger"
)

// Corpus is the knowledge base used by the handlers. *corpus.Store
// satisfies it.
type Corpus interface {
	AddDocuments(ctx context.Context, inputs []model.NewDocumentInput) ([]string, error)
	Delete(ctx context.Context, id string) (bool, error)
	List(offset, limit int) []model.Document
	ByCategory(category string, limit int) []model.Document
	Stats() model.CorpusStats
}

// DocumentHandler handles knowledge document endpoints.
type DocumentHandler struct {
	corpus Corpus
	logger *logger.Logger
}

// NewDocumentHandler creates a new document handler.
func NewDocumentHandler(c Corpus, log *logger.Logger) *DocumentHandler {
	return &DocumentHandler{
		corpus: c,
		logger: log,
	}
}

// List handles GET /api/v1/documents
func (h *DocumentHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50, 500)

	var docs []model.Document
	if category := r.URL.Query().Get("category"); category != "" {
		docs = h.corpus.ByCategory(category, limit)
	} else {
		docs = h.corpus.List(queryInt(r, "offset", 0, 1<<20), limit)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"documents": docs,
		"count":     len(docs),
	})
}

// Add handles POST /api/v1/documents
func (h *DocumentHandler) Add(w http.ResponseWriter, r *http.Request) {
	var req model.AddDocumentsRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	ids, err := h.corpus.AddDocuments(r.Context(), req.Documents)
	if err != nil {
		logger.FromContext(r.Context(), h.logger).Warn("document ingestion incomplete", zap.Int("stored", len(ids)), zap.Error(err))
		if len(ids) == 0 {
			writeAppError(w, err)
			return
		}
	}

	writeJSON(w, http.StatusCreated, map[string]any{
		"ids": ids,
	})
}

// Delete handles DELETE /api/v1/documents/{id}
func (h *DocumentHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	removed, err := h.corpus.Delete(r.Context(), id)
	if err != nil && !removed {
		writeAppError(w, err)
		return
	}
	if !removed {
		writeError(w, http.StatusNotFound, "document not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Knowledge handles GET /api/v1/knowledge
func (h *DocumentHandler) Knowledge(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.corpus.Stats())
}

// Suggestions handles GET /api/v1/suggestions. The optional "context"
// query parameter selects context-specific follow-ups.
func Suggestions(suggest func(userContext string) []string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string][]string{
			"suggestions": suggest(r.URL.Query().Get("context")),
		})
	}
}
