package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/capitalize-ai/shop-assistant/internal/middleware"
	"github.com/capitalize-ai/shop-assistant/internal/model"
	"github.com/capitalize-ai/shop-assistant/pkg/logger"
	"github.com/capitalize-ai/shop-assistant/pkg/metrics"
)

// AnswerLog is the durable record of answers. *nats.AnswerStream satisfies it.
type AnswerLog interface {
	ListAnswers(ctx context.Context, sessionID string, afterSequence uint64, limit int) ([]model.AnswerEvent, uint64, bool, error)
	Subscribe(ctx context.Context, sessionID string, afterSequence uint64, fn func(model.AnswerEvent)) (func(), error)
}

const (
	replayBatchSize   = 50
	heartbeatInterval = 30 * time.Second
)

// StreamHandler handles SSE streaming endpoints.
type StreamHandler struct {
	answers   AnswerLog
	sessions  SessionMemory
	logger    *logger.Logger
	heartbeat time.Duration
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(answers AnswerLog, sessions SessionMemory, log *logger.Logger) *StreamHandler {
	return &StreamHandler{
		answers:   answers,
		sessions:  sessions,
		logger:    log,
		heartbeat: heartbeatInterval,
	}
}

// Stream handles GET /api/v1/sessions/{id}/stream
// Replays recorded answers after ?after_sequence=N (or Last-Event-ID), then
// forwards new ones until the client disconnects.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sessionID := chi.URLParam(r, "id")

	if err := middleware.ValidateSessionID(sessionID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if s, ok := h.sessions.Get(ctx, sessionID); !ok || s.OwnerID != middleware.GetOwnerID(ctx) {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}

	afterSequence := parseSequence(r.URL.Query().Get("after_sequence"))
	if last := parseSequence(r.Header.Get("Last-Event-ID")); last > afterSequence {
		afterSequence = last
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// The server write timeout would otherwise cut long-lived streams.
	_ = http.NewResponseController(w).SetWriteDeadline(time.Time{})

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	log := logger.FromContext(ctx, h.logger).With(zap.String("session_id", sessionID))

	sendSSEEvent(w, flusher, "connected", "", map[string]string{
		"session_id": sessionID,
	})

	lastSequence := afterSequence
	replayed := 0
	for {
		events, last, hasMore, err := h.answers.ListAnswers(ctx, sessionID, lastSequence, replayBatchSize)
		if err != nil {
			log.Error("failed to replay answers", zap.Error(err))
			sendSSEEvent(w, flusher, "error", "", &model.ErrorEvent{
				Code:    "replay_error",
				Message: "Failed to replay answers",
			})
			return
		}

		for i := range events {
			if ctx.Err() != nil {
				return
			}
			sendAnswer(w, flusher, &events[i])
			replayed++
		}
		if last > lastSequence {
			lastSequence = last
		}
		if !hasMore || len(events) == 0 {
			break
		}
	}

	sendSSEEvent(w, flusher, "replay_complete", "", &model.ReplayCompleteEvent{
		LastSequence: lastSequence,
		EventCount:   replayed,
	})

	log.Info("answer replay complete",
		zap.Int("events_replayed", replayed),
		zap.Uint64("last_sequence", lastSequence),
	)

	live := make(chan model.AnswerEvent, 16)
	stop, err := h.answers.Subscribe(ctx, sessionID, lastSequence, func(ev model.AnswerEvent) {
		select {
		case live <- ev:
		case <-ctx.Done():
		}
	})
	if err != nil {
		log.Warn("live answer subscription failed", zap.Error(err))
	} else {
		defer stop()
	}

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("SSE client disconnected")
			return

		case ev := <-live:
			sendAnswer(w, flusher, &ev)

		case <-heartbeat.C:
			sendSSEEvent(w, flusher, "heartbeat", "", &model.HeartbeatEvent{
				Timestamp: time.Now(),
			})
		}
	}
}

func sendAnswer(w http.ResponseWriter, flusher http.Flusher, ev *model.AnswerEvent) {
	sendSSEEvent(w, flusher, string(ev.Type), strconv.FormatUint(ev.Sequence, 10), ev)
}

func parseSequence(v string) uint64 {
	if v == "" {
		return 0
	}
	seq, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return 0
	}
	return seq
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event, id string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	if id != "" {
		fmt.Fprintf(w, "id: %s\n", id)
	}
	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
	flusher.Flush()

	return nil
}
