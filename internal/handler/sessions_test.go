package handler

import (
	"net/http"
	"strings"
	"testing"

	"github.com/capitalize-ai/ai-twin/internal/model"
)

func TestCreateSessionKeysRateLimit(t *testing.T) {
	t.Parallel()

	api := newTestAPI(t, scriptEngine{}, 1, nil)

	rec := api.do(t, http.MethodPost, "/api/v1/sessions", "", nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d", rec.Code)
	}
	sess := decode[model.Session](t, rec)
	if !strings.HasPrefix(sess.ID, "sess_") || sess.ClientSecret == "" {
		t.Fatalf("session = %+v", sess)
	}

	auth := map[string]string{"Authorization": "Bearer " + sess.ClientSecret}
	if rec := api.do(t, http.MethodPost, "/api/v1/threads/thr_1/messages", `{"content":"one"}`, auth); rec.Code != http.StatusOK {
		t.Fatalf("first status = %d", rec.Code)
	}
	// Same session on another thread shares the window.
	if rec := api.do(t, http.MethodPost, "/api/v1/threads/thr_2/messages", `{"content":"two"}`, auth); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second status = %d, want 429", rec.Code)
	}
}
