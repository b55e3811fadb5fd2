package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/capitalize-ai/ai-twin/internal/model"
)

type checker bool

func (c checker) IsConnected() bool { return bool(c) }

func TestReady(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		nats  ConnectionChecker
		wantS int
	}{
		{"nats disabled", nil, http.StatusOK},
		{"nats connected", checker(true), http.StatusOK},
		{"nats down", checker(false), http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			NewHealthHandler(tt.nats).Ready(rec, httptest.NewRequest(http.MethodGet, "/ready", nil))
			if rec.Code != tt.wantS {
				t.Fatalf("status = %d, want %d", rec.Code, tt.wantS)
			}
		})
	}
}

func TestEvents(t *testing.T) {
	t.Parallel()

	if rec := newTestAPI(t, scriptEngine{}, 10, nil).do(t, http.MethodGet, "/api/v1/threads/thr_1/events", "", nil); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status without feed = %d", rec.Code)
	}

	feed := fakeEvents{events: []model.TurnEvent{
		{ID: "evt_1", ThreadID: "thr_1", Type: model.TurnEventCompleted, CreatedAt: epoch},
		{ID: "evt_2", ThreadID: "thr_2", Type: model.TurnEventRateLimit, CreatedAt: epoch},
	}}
	rec := newTestAPI(t, scriptEngine{}, 10, feed).do(t, http.MethodGet, "/api/v1/threads/thr_1/events", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	body := decode[struct {
		Data []model.TurnEvent `json:"data"`
	}](t, rec)
	if len(body.Data) != 1 || body.Data[0].ID != "evt_1" {
		t.Fatalf("events = %+v", body.Data)
	}
}
