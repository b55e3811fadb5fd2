package engine

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/capitalize-ai/ai-twin/internal/model"
)

func TestPipeDeliversEventsThenEOF(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	p := newPipe(ctx, cancel, func(ctx context.Context, emit emitFunc) error {
		for _, d := range []string{"a", "b", "c"} {
			if !emit(Event{Kind: EventContentDelta, Delta: d}) {
				return ctx.Err()
			}
		}
		return nil
	})
	defer p.Close()

	var got strings.Builder
	for {
		ev, err := p.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			t.Fatalf("Next: %v", err)
		}
		got.WriteString(ev.Delta)
	}
	if got.String() != "abc" {
		t.Fatalf("deltas = %q, want abc", got.String())
	}

	// Exhausted pipes keep reporting EOF.
	if _, err := p.Next(); !errors.Is(err, io.EOF) {
		t.Fatalf("Next after EOF = %v", err)
	}
}

func TestPipeSurfacesProducerError(t *testing.T) {
	t.Parallel()

	boom := errors.New("upstream reset")
	ctx, cancel := context.WithCancel(context.Background())
	p := newPipe(ctx, cancel, func(ctx context.Context, emit emitFunc) error {
		emit(Event{Kind: EventContentDelta, Delta: "x"})
		return boom
	})
	defer p.Close()

	if _, err := p.Next(); err != nil {
		t.Fatalf("first Next: %v", err)
	}
	if _, err := p.Next(); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
}

func TestPipeCloseStopsBlockedProducer(t *testing.T) {
	t.Parallel()

	stopped := make(chan struct{})
	ctx, cancel := context.WithCancel(context.Background())
	p := newPipe(ctx, cancel, func(ctx context.Context, emit emitFunc) error {
		defer close(stopped)
		for emit(Event{Kind: EventContentDelta, Delta: "x"}) {
		}
		return ctx.Err()
	})

	if _, err := p.Next(); err != nil {
		t.Fatalf("Next: %v", err)
	}

	done := make(chan struct{})
	go func() {
		p.Close()
		p.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Close did not return")
	}
	select {
	case <-stopped:
	default:
		t.Fatal("producer still running after Close")
	}
}

func TestInstructions(t *testing.T) {
	t.Parallel()

	crisp := Instructions(PersonalityCrisp, "Ada, systems engineer")
	if !strings.Contains(crisp, "concise") || !strings.Contains(crisp, "Ada, systems engineer") {
		t.Fatalf("crisp instructions missing style or profile:\n%s", crisp)
	}
	if !strings.Contains(crisp, "check_availability") {
		t.Fatal("guidelines missing")
	}

	if Instructions("sarcastic", "p") != Instructions(PersonalityClear, "p") {
		t.Fatal("unknown personality should use the clear style")
	}
	if !strings.Contains(Instructions(PersonalityChatty, "p"), "friendly") {
		t.Fatal("chatty style missing")
	}
}

func TestIsPersonality(t *testing.T) {
	t.Parallel()

	for _, p := range []string{"crisp", "clear", "chatty"} {
		if !IsPersonality(p) {
			t.Errorf("IsPersonality(%q) = false", p)
		}
	}
	if IsPersonality("Crisp") || IsPersonality("") {
		t.Error("IsPersonality accepted an unknown tag")
	}
}

func TestTurnItemsDoesNotAliasHistory(t *testing.T) {
	t.Parallel()

	history := make([]model.Item, 1, 4)
	history[0] = model.Item{ID: "h1"}
	req := Request{History: history, Input: model.Item{ID: "in"}}

	items := turnItems(req)
	items[0].ID = "changed"
	if len(items) != 2 || items[1].ID != "in" {
		t.Fatalf("items = %+v", items)
	}
	if history[0].ID != "h1" || history[:2][1].ID != "" {
		t.Fatal("turnItems wrote into the caller's history")
	}
}

func TestNewRejectsUnknownProvider(t *testing.T) {
	t.Parallel()

	if _, err := New(Config{Provider: "bard", APIKey: "k"}, nil, nil, nil); err == nil {
		t.Fatal("expected error for unknown provider")
	}
	if _, err := New(Config{Provider: ProviderOpenAI}, nil, nil, nil); !errors.Is(err, ErrNoAPIKey) {
		t.Fatalf("err = %v, want ErrNoAPIKey", err)
	}
}

func TestNewItemIDIsPrefixedAndUnique(t *testing.T) {
	t.Parallel()

	a, b := NewItemID("msg"), NewItemID("msg")
	if !strings.HasPrefix(a, "msg_") || a == b {
		t.Fatalf("ids %q %q", a, b)
	}
}
