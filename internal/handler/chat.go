package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"go.uber.org/zap"

	"github.com/capitalize-ai/ai-twin/internal/middleware"
	"github.com/capitalize-ai/ai-twin/internal/model"
	"github.com/capitalize-ai/ai-twin/internal/service"
	"github.com/capitalize-ai/ai-twin/pkg/logger"
	"github.com/capitalize-ai/ai-twin/pkg/metrics"
)

// doneSentinel is the final frame of every completed stream.
const doneSentinel = "[DONE]"

// ChatHandler streams assistant turns over server-sent events.
type ChatHandler struct {
	chat   *service.ChatService
	logger *logger.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(chat *service.ChatService, log *logger.Logger) *ChatHandler {
	return &ChatHandler{
		chat:   chat,
		logger: log,
	}
}

// doneFrame is the wire form of the done event.
type doneFrame struct {
	Type   model.StreamEventType `json:"type"`
	Status model.OutcomeStatus   `json:"status"`
	Reason string                `json:"reason,omitempty"`
}

// Send handles POST /api/v1/threads/{threadID}/messages
func (h *ChatHandler) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	threadID, ok := pathID(w, r, "threadID")
	if !ok {
		return
	}

	var req model.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := middleware.ValidateMessageContent(req.Content); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := middleware.ValidatePersonality(req.Personality); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	log := h.logger.WithTurn(middleware.GetCorrelationID(ctx), threadID, middleware.GetSessionKey(ctx))

	events, err := h.chat.Send(ctx, threadID, middleware.GetSessionKey(ctx), req)
	if err != nil {
		var rle *service.RateLimitError
		if errors.As(err, &rle) {
			retry := rle.RetryAfterSeconds()
			w.Header().Set("Retry-After", strconv.Itoa(retry))
			writeJSON(w, http.StatusTooManyRequests, map[string]any{
				"error":       service.ErrRateLimited.Error(),
				"retry_after": retry,
			})
			return
		}
		log.Error("Failed to start turn", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to start turn")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no") // Disable nginx buffering
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	for ev := range events {
		var payload any = ev
		if ev.Type == model.StreamDone && ev.Outcome != nil {
			payload = doneFrame{Type: ev.Type, Status: ev.Outcome.Status, Reason: ev.Outcome.Reason}
		}

		if err := sendSSEData(w, flusher, payload); err != nil {
			log.Info("SSE client went away", zap.Error(err))
			return
		}

		if ev.Type == model.StreamDone {
			if err := writeSSEFrame(w, flusher, []byte(doneSentinel)); err != nil {
				log.Info("SSE client went away", zap.Error(err))
			}
			return
		}
	}
}

func sendSSEData(w http.ResponseWriter, flusher http.Flusher, data any) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}
	return writeSSEFrame(w, flusher, jsonData)
}

func writeSSEFrame(w http.ResponseWriter, flusher http.Flusher, data []byte) error {
	if _, err := fmt.Fprintf(w, "data: %s\n\n", data); err != nil {
		return err
	}
	flusher.Flush()
	return nil
}
