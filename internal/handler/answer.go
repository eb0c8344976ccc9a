package handler

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/capitalize-ai/shop-assistant/internal/middleware"
	"github.com/capitalize-ai/shop-assistant/internal/model"
	"github.com/capitalize-ai/shop-assistant/pkg/logger"
)

// Answerer produces grounded answers. *rag.Orchestrator satisfies it.
type Answerer interface {
	Answer(ctx context.Context, query, sessionID string) (*model.AnswerResponse, error)
}

// AnswerHandler handles question answering.
type AnswerHandler struct {
	answerer Answerer
	sessions SessionMemory
	logger   *logger.Logger
}

// NewAnswerHandler creates a new answer handler.
func NewAnswerHandler(answerer Answerer, sessions SessionMemory, log *logger.Logger) *AnswerHandler {
	return &AnswerHandler{
		answerer: answerer,
		sessions: sessions,
		logger:   log,
	}
}

// Answer handles POST /api/v1/answer
func (h *AnswerHandler) Answer(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	ownerID := middleware.GetOwnerID(ctx)

	var req model.AnswerRequest
	if !decodeAndValidate(w, r, &req) {
		return
	}

	// Sessions of other owners are indistinguishable from unknown ones.
	sessionID := req.SessionID
	if sessionID != "" {
		if s, ok := h.sessions.Get(ctx, sessionID); !ok || s.OwnerID != ownerID {
			logger.FromContext(r.Context(), h.logger).Warn("answering without session",
				zap.String("session_id", sessionID),
				zap.String("owner_id", ownerID),
			)
			sessionID = ""
		}
	}

	resp, err := h.answerer.Answer(ctx, req.Query, sessionID)
	if err != nil {
		writeAppError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
