package handler

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/capitalize-ai/ai-twin/internal/middleware"
	"github.com/capitalize-ai/ai-twin/internal/model"
	"github.com/capitalize-ai/ai-twin/pkg/logger"
)

// defaultEventLimit bounds an event listing when no limit is given.
const defaultEventLimit = 50

// EventReader reads a thread's turn lifecycle events.
type EventReader interface {
	TurnEvents(ctx context.Context, threadID string, limit int) ([]model.TurnEvent, error)
}

// EventHandler exposes the turn event feed.
type EventHandler struct {
	events EventReader
	logger *logger.Logger
}

// NewEventHandler creates a new event handler. A nil reader means the
// feed is not configured.
func NewEventHandler(events EventReader, log *logger.Logger) *EventHandler {
	return &EventHandler{
		events: events,
		logger: log,
	}
}

// List handles GET /api/v1/threads/{threadID}/events
func (h *EventHandler) List(w http.ResponseWriter, r *http.Request) {
	threadID, ok := pathID(w, r, "threadID")
	if !ok {
		return
	}
	limit, err := middleware.ParseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if limit == 0 {
		limit = defaultEventLimit
	}

	if h.events == nil {
		writeError(w, http.StatusServiceUnavailable, "event feed not configured")
		return
	}

	events, err := h.events.TurnEvents(r.Context(), threadID, limit)
	if err != nil {
		h.logger.Error("Failed to read turn events", zap.String("thread_id", threadID), zap.Error(err))
		writeError(w, http.StatusBadGateway, "failed to read events")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"data": events})
}
