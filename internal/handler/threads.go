package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/capitalize-ai/ai-twin/internal/middleware"
	"github.com/capitalize-ai/ai-twin/internal/model"
	"github.com/capitalize-ai/ai-twin/internal/service"
	"github.com/capitalize-ai/ai-twin/internal/transcript"
	"github.com/capitalize-ai/ai-twin/pkg/logger"
)

// ThreadHandler handles thread and item endpoints.
type ThreadHandler struct {
	threads *service.ThreadService
	logger  *logger.Logger
}

// NewThreadHandler creates a new thread handler.
func NewThreadHandler(threads *service.ThreadService, log *logger.Logger) *ThreadHandler {
	return &ThreadHandler{
		threads: threads,
		logger:  log,
	}
}

// List handles GET /api/v1/threads
func (h *ThreadHandler) List(w http.ResponseWriter, r *http.Request) {
	limit, after, order, ok := listParams(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.threads.List(limit, after, order))
}

// Get handles GET /api/v1/threads/{threadID}
func (h *ThreadHandler) Get(w http.ResponseWriter, r *http.Request) {
	threadID, ok := pathID(w, r, "threadID")
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.threads.Get(threadID))
}

// Update handles PUT /api/v1/threads/{threadID}
func (h *ThreadHandler) Update(w http.ResponseWriter, r *http.Request) {
	threadID, ok := pathID(w, r, "threadID")
	if !ok {
		return
	}

	var req model.UpdateThreadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if p, ok := req.Metadata[model.MetadataPersonality]; ok {
		s, isString := p.(string)
		if !isString || middleware.ValidatePersonality(s) != nil {
			writeError(w, http.StatusBadRequest, "invalid personality")
			return
		}
	}

	writeJSON(w, http.StatusOK, h.threads.Update(threadID, req))
}

// Delete handles DELETE /api/v1/threads/{threadID}
func (h *ThreadHandler) Delete(w http.ResponseWriter, r *http.Request) {
	threadID, ok := pathID(w, r, "threadID")
	if !ok {
		return
	}
	h.threads.Delete(threadID)
	w.WriteHeader(http.StatusNoContent)
}

// ListItems handles GET /api/v1/threads/{threadID}/items
func (h *ThreadHandler) ListItems(w http.ResponseWriter, r *http.Request) {
	threadID, ok := pathID(w, r, "threadID")
	if !ok {
		return
	}
	limit, after, order, ok := listParams(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, h.threads.ListItems(threadID, limit, after, order))
}

// GetItem handles GET /api/v1/threads/{threadID}/items/{itemID}
func (h *ThreadHandler) GetItem(w http.ResponseWriter, r *http.Request) {
	threadID, ok := pathID(w, r, "threadID")
	if !ok {
		return
	}
	itemID, ok := pathID(w, r, "itemID")
	if !ok {
		return
	}

	item, err := h.threads.GetItem(threadID, itemID)
	if errors.Is(err, transcript.ErrNotFound) {
		writeError(w, http.StatusNotFound, "item not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get item")
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// DeleteItem handles DELETE /api/v1/threads/{threadID}/items/{itemID}
func (h *ThreadHandler) DeleteItem(w http.ResponseWriter, r *http.Request) {
	threadID, ok := pathID(w, r, "threadID")
	if !ok {
		return
	}
	itemID, ok := pathID(w, r, "itemID")
	if !ok {
		return
	}
	h.threads.DeleteItem(threadID, itemID)
	w.WriteHeader(http.StatusNoContent)
}
