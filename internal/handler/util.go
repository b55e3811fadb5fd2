package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/ai-twin/internal/middleware"
	"github.com/capitalize-ai/ai-twin/internal/model"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// pathID reads and validates a chi URL parameter. It writes a 400 and
// returns false when the value is not a valid id.
func pathID(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	id := chi.URLParam(r, name)
	if err := middleware.ValidateID(id); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return "", false
	}
	return id, true
}

// listParams reads limit, after and order from the query string.
func listParams(w http.ResponseWriter, r *http.Request) (limit int, after string, order model.Order, ok bool) {
	q := r.URL.Query()
	limit, err := middleware.ParseLimit(q.Get("limit"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return 0, "", "", false
	}
	return limit, q.Get("after"), model.ParseOrder(q.Get("order")), true
}
