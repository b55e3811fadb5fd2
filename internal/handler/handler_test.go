package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/capitalize-ai/ai-twin/internal/engine"
	"github.com/capitalize-ai/ai-twin/internal/middleware"
	"github.com/capitalize-ai/ai-twin/internal/model"
	"github.com/capitalize-ai/ai-twin/internal/ratelimit"
	"github.com/capitalize-ai/ai-twin/internal/relay"
	"github.com/capitalize-ai/ai-twin/internal/service"
	"github.com/capitalize-ai/ai-twin/internal/transcript"
	"github.com/capitalize-ai/ai-twin/pkg/clock"
	"github.com/capitalize-ai/ai-twin/pkg/logger"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// scriptStream replays a fixed list of events.
type scriptStream struct {
	mu     sync.Mutex
	events []engine.Event
	err    error
}

func (s *scriptStream) Next() (engine.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.events) > 0 {
		ev := s.events[0]
		s.events = s.events[1:]
		return ev, nil
	}
	if s.err != nil {
		return engine.Event{}, s.err
	}
	return engine.Event{}, io.EOF
}

func (s *scriptStream) Close() error { return nil }

// scriptEngine answers every turn with "Hi there" as one assistant item.
type scriptEngine struct {
	err error // returned mid-stream when set
}

func (e scriptEngine) Stream(_ context.Context, req engine.Request) (engine.Stream, error) {
	item := &model.Item{ID: "msg_reply_" + req.Input.ID, Kind: model.KindAssistantMessage, CreatedAt: epoch}
	done := *item
	done.Content.Text = "Hi there"
	return &scriptStream{
		events: []engine.Event{
			{Kind: engine.EventItemCreated, Item: item},
			{Kind: engine.EventContentDelta, ItemID: item.ID, Delta: "Hi "},
			{Kind: engine.EventContentDelta, ItemID: item.ID, Delta: "there"},
			{Kind: engine.EventItemUpdated, Item: &done},
		},
		err: e.err,
	}, nil
}

type noProfile struct{}

func (noProfile) Profile(context.Context) string { return "Profile information not available." }

type fakeEvents struct {
	events []model.TurnEvent
}

func (f fakeEvents) TurnEvents(_ context.Context, threadID string, limit int) ([]model.TurnEvent, error) {
	var out []model.TurnEvent
	for _, ev := range f.events {
		if ev.ThreadID == threadID && len(out) < limit {
			out = append(out, ev)
		}
	}
	return out, nil
}

type testAPI struct {
	router   http.Handler
	store    *transcript.Store
	sessions *service.SessionService
}

func newTestAPI(t *testing.T, eng engine.Engine, limit int, events EventReader) *testAPI {
	t.Helper()

	c := clock.Fake(epoch)
	log := logger.NewNop()
	store := transcript.NewStore(c)
	limiter := ratelimit.New(c, log, limit, time.Hour)
	rel := relay.New(store, eng, nil, c, log, 0)

	threads := service.NewThreadService(store, log)
	chat := service.NewChatService(store, limiter, rel, noProfile{}, nil, c, log)
	sessions := service.NewSessionService("test-secret", time.Hour, c)

	threadHandler := NewThreadHandler(threads, log)
	chatHandler := NewChatHandler(chat, log)
	sessionHandler := NewSessionHandler(sessions, log)
	eventHandler := NewEventHandler(events, log)

	r := chi.NewRouter()
	r.Use(middleware.Session(sessions))
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/sessions", sessionHandler.Create)
		r.Route("/threads", func(r chi.Router) {
			r.Get("/", threadHandler.List)
			r.Route("/{threadID}", func(r chi.Router) {
				r.Get("/", threadHandler.Get)
				r.Put("/", threadHandler.Update)
				r.Delete("/", threadHandler.Delete)
				r.Get("/items", threadHandler.ListItems)
				r.Get("/items/{itemID}", threadHandler.GetItem)
				r.Delete("/items/{itemID}", threadHandler.DeleteItem)
				r.Post("/messages", chatHandler.Send)
				r.Get("/events", eventHandler.List)
			})
		})
	})

	return &testAPI{router: r, store: store, sessions: sessions}
}

func (a *testAPI) do(t *testing.T, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()

	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return v
}

// sseFrames splits an event stream body into data payloads.
func sseFrames(t *testing.T, body string) []string {
	t.Helper()

	var frames []string
	for _, chunk := range strings.Split(body, "\n\n") {
		if chunk == "" {
			continue
		}
		data, ok := strings.CutPrefix(chunk, "data: ")
		if !ok {
			t.Fatalf("malformed frame %q", chunk)
		}
		frames = append(frames, data)
	}
	return frames
}
