package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/shop-assistant/internal/middleware"
	"github.com/capitalize-ai/shop-assistant/internal/model"
	"github.com/capitalize-ai/shop-assistant/pkg/logger"
)

// SessionMemory is the conversation memory used by the handlers.
// *memory.Memory satisfies it.
type SessionMemory interface {
	Create(ctx context.Context, ownerID, title string) (string, error)
	Get(ctx context.Context, sessionID string) (*model.Session, bool)
	History(ctx context.Context, sessionID string, limit int) []model.Message
	Clear(ctx context.Context, sessionID string) bool
	ClearOwner(ctx context.Context, ownerID string) int
	ListByOwner(ctx context.Context, ownerID string, limit int) []model.SessionSummary
}

// SessionHandler handles conversation session endpoints.
type SessionHandler struct {
	memory SessionMemory
	logger *logger.Logger
}

// NewSessionHandler creates a new session handler.
func NewSessionHandler(mem SessionMemory, log *logger.Logger) *SessionHandler {
	return &SessionHandler{
		memory: mem,
		logger: log,
	}
}

// Create handles POST /api/v1/sessions
func (h *SessionHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ownerID := middleware.GetOwnerID(ctx)

	var req model.CreateSessionRequest
	if r.ContentLength != 0 {
		if !decodeAndValidate(w, r, &req) {
			return
		}
	}

	id, err := h.memory.Create(ctx, ownerID, req.Title)
	if err != nil {
		logger.FromContext(r.Context(), h.logger).Error("failed to create session", zap.String("owner_id", ownerID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	writeJSON(w, http.StatusCreated, model.CreateSessionResponse{ID: id})
}

// List handles GET /api/v1/sessions
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	ownerID := middleware.GetOwnerID(r.Context())
	limit := queryInt(r, "limit", 20, 100)

	sessions := h.memory.ListByOwner(r.Context(), ownerID, limit)
	writeJSON(w, http.StatusOK, model.ListSessionsResponse{
		Sessions: sessions,
		Total:    len(sessions),
	})
}

// Get handles GET /api/v1/sessions/{id}
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, ok := h.owned(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, s.Summary())
}

// Messages handles GET /api/v1/sessions/{id}/messages
func (h *SessionHandler) Messages(w http.ResponseWriter, r *http.Request) {
	s, ok := h.owned(w, r)
	if !ok {
		return
	}
	limit := queryInt(r, "limit", 0, 1000)
	writeJSON(w, http.StatusOK, model.ListMessagesResponse{
		Messages: h.memory.History(r.Context(), s.ID, limit),
	})
}

// Delete handles DELETE /api/v1/sessions/{id}
func (h *SessionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	s, ok := h.owned(w, r)
	if !ok {
		return
	}
	if !h.memory.Clear(r.Context(), s.ID) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// DeleteAll handles DELETE /api/v1/sessions
func (h *SessionHandler) DeleteAll(w http.ResponseWriter, r *http.Request) {
	ownerID := middleware.GetOwnerID(r.Context())
	cleared := h.memory.ClearOwner(r.Context(), ownerID)
	writeJSON(w, http.StatusOK, map[string]int{"cleared": cleared})
}

// owned loads the session named in the path and checks the caller owns it.
func (h *SessionHandler) owned(w http.ResponseWriter, r *http.Request) (*model.Session, bool) {
	sessionID := chi.URLParam(r, "id")
	if err := middleware.ValidateSessionID(sessionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return nil, false
	}

	s, ok := h.memory.Get(r.Context(), sessionID)
	if !ok || s.OwnerID != middleware.GetOwnerID(r.Context()) {
		writeError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	return s, true
}
