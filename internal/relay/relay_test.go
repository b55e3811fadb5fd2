package relay

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/capitalize-ai/ai-twin/internal/engine"
	"github.com/capitalize-ai/ai-twin/internal/model"
	"github.com/capitalize-ai/ai-twin/internal/transcript"
	"github.com/capitalize-ai/ai-twin/pkg/clock"
	"github.com/capitalize-ai/ai-twin/pkg/logger"
)

var epoch = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeStream struct {
	events []engine.Event
	err    error // returned after events; io.EOF when nil

	mu     sync.Mutex
	pulled int
	closed int
}

func (s *fakeStream) Next() (engine.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pulled < len(s.events) {
		ev := s.events[s.pulled]
		s.pulled++
		return ev, nil
	}
	if s.err != nil {
		return engine.Event{}, s.err
	}
	return engine.Event{}, io.EOF
}

func (s *fakeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

type fakeEngine struct {
	stream *fakeStream
	err    error

	mu       sync.Mutex
	requests []engine.Request
}

func (e *fakeEngine) Stream(_ context.Context, req engine.Request) (engine.Stream, error) {
	e.mu.Lock()
	e.requests = append(e.requests, req)
	e.mu.Unlock()
	if e.err != nil {
		return nil, e.err
	}
	return e.stream, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []model.TurnEvent
}

func (p *recordingPublisher) PublishTurnEvent(_ context.Context, ev model.TurnEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

type fixture struct {
	store  *transcript.Store
	engine *fakeEngine
	pub    *recordingPublisher
	relay  *Relay
	turn   Turn
}

func newFixture(stream *fakeStream, historyLimit int) *fixture {
	c := clock.Fake(epoch)
	store := transcript.NewStore(c)
	eng := &fakeEngine{stream: stream}
	pub := &recordingPublisher{}

	thread := store.GetThread("thr_1")
	input := store.AppendItem(thread.ID, model.Item{
		ID:        "msg_in",
		Kind:      model.KindUserMessage,
		Content:   model.ItemContent{Text: "hello"},
		CreatedAt: epoch,
	})

	return &fixture{
		store:  store,
		engine: eng,
		pub:    pub,
		relay:  New(store, eng, pub, c, logger.NewNop(), historyLimit),
		turn:   Turn{Thread: thread, Input: input, Instructions: "be brief"},
	}
}

func collect(seq func(func(model.StreamEvent) bool)) []model.StreamEvent {
	var out []model.StreamEvent
	seq(func(ev model.StreamEvent) bool {
		out = append(out, ev)
		return true
	})
	return out
}

func assistant(id, text string) *model.Item {
	return &model.Item{ID: id, Kind: model.KindAssistantMessage, Content: model.ItemContent{Text: text}, CreatedAt: epoch.Add(time.Second)}
}

func types(events []model.StreamEvent) []model.StreamEventType {
	out := make([]model.StreamEventType, len(events))
	for i, ev := range events {
		out[i] = ev.Type
	}
	return out
}

func equalTypes(a, b []model.StreamEventType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRespondRelaysInOrderAndPersists(t *testing.T) {
	t.Parallel()

	stream := &fakeStream{events: []engine.Event{
		{Kind: engine.EventItemCreated, Item: assistant("msg_out", "")},
		{Kind: engine.EventContentDelta, ItemID: "msg_out", Delta: "Hel"},
		{Kind: engine.EventContentDelta, ItemID: "msg_out", Delta: "lo"},
		{Kind: engine.EventItemUpdated, Item: assistant("msg_out", "Hello")},
	}}
	f := newFixture(stream, 0)

	events := collect(f.relay.Respond(context.Background(), f.turn))

	want := []model.StreamEventType{
		model.StreamItemCreated,
		model.StreamContentDelta,
		model.StreamContentDelta,
		model.StreamItemUpdated,
		model.StreamDone,
	}
	if got := types(events); !equalTypes(got, want) {
		t.Fatalf("types = %v, want %v", got, want)
	}
	if events[1].Delta != "Hel" || events[2].Delta != "lo" || events[1].ItemID != "msg_out" {
		t.Fatalf("deltas = %+v %+v", events[1], events[2])
	}

	done := events[len(events)-1]
	if done.Outcome == nil || done.Outcome.Status != model.OutcomeComplete {
		t.Fatalf("done outcome = %+v", done.Outcome)
	}

	stored, err := f.store.GetItem("thr_1", "msg_out")
	if err != nil {
		t.Fatalf("GetItem: %v", err)
	}
	if stored.Content.Text != "Hello" || stored.ThreadID != "thr_1" {
		t.Fatalf("stored = %+v", stored)
	}
	if events[3].Item == nil || events[3].Item.Sequence != stored.Sequence {
		t.Fatalf("updated event item = %+v", events[3].Item)
	}
	if stream.closed == 0 {
		t.Fatal("stream not closed")
	}

	if len(f.pub.events) != 1 || f.pub.events[0].Type != model.TurnEventCompleted || f.pub.events[0].ThreadID != "thr_1" {
		t.Fatalf("published = %+v", f.pub.events)
	}
}

func TestRespondIsLazy(t *testing.T) {
	t.Parallel()

	f := newFixture(&fakeStream{}, 0)
	seq := f.relay.Respond(context.Background(), f.turn)

	if len(f.engine.requests) != 0 {
		t.Fatal("engine called before iteration")
	}
	collect(seq)
	if len(f.engine.requests) != 1 {
		t.Fatalf("requests = %d", len(f.engine.requests))
	}
}

func TestRespondSendsBoundedChronologicalHistory(t *testing.T) {
	t.Parallel()

	c := clock.Fake(epoch)
	store := transcript.NewStore(c)
	eng := &fakeEngine{stream: &fakeStream{}}
	r := New(store, eng, nil, c, logger.NewNop(), 3)

	thread := store.GetThread("thr_1")
	for i, id := range []string{"a", "b", "c"} {
		store.AppendItem(thread.ID, model.Item{ID: id, Kind: model.KindUserMessage, CreatedAt: epoch.Add(time.Duration(i) * time.Second)})
	}
	input := store.AppendItem(thread.ID, model.Item{ID: "in", Kind: model.KindUserMessage, CreatedAt: epoch.Add(time.Minute)})

	collect(r.Respond(context.Background(), Turn{Thread: thread, Input: input}))

	req := eng.requests[0]
	if req.Input.ID != "in" {
		t.Fatalf("input = %q", req.Input.ID)
	}
	if len(req.History) != 2 || req.History[0].ID != "b" || req.History[1].ID != "c" {
		t.Fatalf("history = %+v", req.History)
	}
}

func TestRespondForwardsToolCallsAndErrors(t *testing.T) {
	t.Parallel()

	stream := &fakeStream{events: []engine.Event{
		{Kind: engine.EventToolCall, ToolName: "get_skills", Arguments: `{"category":"backend"}`},
		{Kind: engine.EventError, Message: "Tool get_skills failed"},
		{Kind: engine.EventContentDelta, ItemID: "msg_out", Delta: "Sorry"},
	}}
	f := newFixture(stream, 0)

	events := collect(f.relay.Respond(context.Background(), f.turn))

	want := []model.StreamEventType{model.StreamToolCall, model.StreamError, model.StreamContentDelta, model.StreamDone}
	if got := types(events); !equalTypes(got, want) {
		t.Fatalf("types = %v, want %v", got, want)
	}
	if events[0].ToolName != "get_skills" || events[0].Arguments != `{"category":"backend"}` {
		t.Fatalf("tool call = %+v", events[0])
	}
	if events[1].Error != "Tool get_skills failed" {
		t.Fatalf("error = %+v", events[1])
	}
	if events[3].Outcome.Status != model.OutcomeComplete {
		t.Fatalf("outcome = %+v", events[3].Outcome)
	}
}

func TestRespondTruncatesOnStreamFailure(t *testing.T) {
	t.Parallel()

	stream := &fakeStream{
		events: []engine.Event{{Kind: engine.EventContentDelta, ItemID: "msg_out", Delta: "partial"}},
		err:    errors.New("connection reset"),
	}
	f := newFixture(stream, 0)

	events := collect(f.relay.Respond(context.Background(), f.turn))

	if got := types(events); !equalTypes(got, []model.StreamEventType{model.StreamContentDelta, model.StreamDone}) {
		t.Fatalf("types = %v", got)
	}
	outcome := events[1].Outcome
	if outcome.Status != model.OutcomeTruncated || outcome.Reason != ReasonStreamFailed {
		t.Fatalf("outcome = %+v", outcome)
	}
	if len(f.pub.events) != 1 || f.pub.events[0].Type != model.TurnEventTruncated {
		t.Fatalf("published = %+v", f.pub.events)
	}
}

func TestRespondTruncatesOnDispatchFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(nil, 0)
	f.engine.err = errors.New("503 service unavailable")

	events := collect(f.relay.Respond(context.Background(), f.turn))

	if len(events) != 1 || events[0].Type != model.StreamDone {
		t.Fatalf("events = %+v", events)
	}
	if events[0].Outcome.Status != model.OutcomeTruncated || events[0].Outcome.Reason != ReasonDispatchFailed {
		t.Fatalf("outcome = %+v", events[0].Outcome)
	}
}

func TestRespondStopsWhenConsumerBreaks(t *testing.T) {
	t.Parallel()

	stream := &fakeStream{events: []engine.Event{
		{Kind: engine.EventItemCreated, Item: assistant("msg_out", "")},
		{Kind: engine.EventContentDelta, ItemID: "msg_out", Delta: "a"},
		{Kind: engine.EventContentDelta, ItemID: "msg_out", Delta: "b"},
	}}
	f := newFixture(stream, 0)

	var got []model.StreamEvent
	for ev := range f.relay.Respond(context.Background(), f.turn) {
		got = append(got, ev)
		if ev.Type == model.StreamContentDelta {
			break
		}
	}

	if len(got) != 2 {
		t.Fatalf("events = %+v", got)
	}
	if stream.closed == 0 {
		t.Fatal("stream not closed after break")
	}
	if stream.pulled != 2 {
		t.Fatalf("pulled = %d, want 2", stream.pulled)
	}
	if len(f.pub.events) != 0 {
		t.Fatalf("published = %+v", f.pub.events)
	}
	if _, err := f.store.GetItem("thr_1", "msg_out"); err != nil {
		t.Fatalf("persisted item removed: %v", err)
	}
}

func TestRespondStopsOnCancelledContext(t *testing.T) {
	t.Parallel()

	stream := &fakeStream{events: []engine.Event{{Kind: engine.EventContentDelta, ItemID: "x", Delta: "a"}}}
	f := newFixture(stream, 0)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	events := collect(f.relay.Respond(ctx, f.turn))
	if len(events) != 0 {
		t.Fatalf("events = %+v", events)
	}
	if stream.closed == 0 {
		t.Fatal("stream not closed")
	}
}
