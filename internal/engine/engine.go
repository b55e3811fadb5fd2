// Package engine provides the reasoning engines that produce assistant
// turns. An engine turns a conversation into a pull-based stream of
// events; the relay normalizes those events for the transport.
package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/google/uuid"

	"github.com/capitalize-ai/ai-twin/internal/model"
	"github.com/capitalize-ai/ai-twin/pkg/clock"
	"github.com/capitalize-ai/ai-twin/pkg/logger"
)

// EventKind identifies the variant of an engine event.
type EventKind string

const (
	EventContentDelta EventKind = "content_delta"
	EventItemCreated  EventKind = "item_created"
	EventItemUpdated  EventKind = "item_updated"
	EventToolCall     EventKind = "tool_call"
	EventError        EventKind = "error"
)

// Event is one raw event produced by an engine.
type Event struct {
	Kind EventKind

	// EventContentDelta
	ItemID string
	Delta  string

	// EventItemCreated, EventItemUpdated
	Item *model.Item

	// EventToolCall
	ToolName  string
	Arguments string

	// EventError
	Message string
}

// Request is the input of one assistant turn.
type Request struct {
	Thread model.Thread

	// History holds prior items in chronological order, excluding Input.
	History []model.Item

	Input        model.Item
	Instructions string
}

// turnItems returns the history followed by the input without touching
// the caller's slice.
func turnItems(req Request) []model.Item {
	items := make([]model.Item, 0, len(req.History)+1)
	items = append(items, req.History...)
	return append(items, req.Input)
}

// Stream is a pull-based sequence of events. Next returns io.EOF once
// the turn is finished. Close releases the upstream connection and may be
// called at any time, more than once.
type Stream interface {
	Next() (Event, error)
	Close() error
}

// Engine starts assistant turns.
type Engine interface {
	Stream(ctx context.Context, req Request) (Stream, error)
}

// Provider is the type of LLM provider.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderGemini    Provider = "gemini"
	ProviderAnthropic Provider = "anthropic"
)

// Config selects and configures an engine.
type Config struct {
	Provider  Provider
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int
}

// ErrNoAPIKey is returned when an engine is configured without credentials.
var ErrNoAPIKey = errors.New("engine: API key is required")

// New creates an engine for cfg.Provider. Tools are only used by the
// OpenAI-compatible providers.
func New(cfg Config, tools []Tool, c clock.Clock, log *logger.Logger) (Engine, error) {
	switch cfg.Provider {
	case ProviderAnthropic:
		e, err := NewAnthropicEngine(cfg, c, log)
		if err != nil {
			return nil, err
		}
		return e, nil
	case ProviderOpenAI, ProviderGemini:
		e, err := NewOpenAIEngine(cfg, tools, c, log)
		if err != nil {
			return nil, err
		}
		return e, nil
	default:
		return nil, fmt.Errorf("engine: unknown provider %q", cfg.Provider)
	}
}

// NewItemID returns a time-ordered item id with the given prefix.
func NewItemID(prefix string) string {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	return prefix + "_" + id.String()
}

// emitFunc hands one event to the consumer. It returns false once the
// stream has been closed.
type emitFunc func(Event) bool

// pipe adapts a push-style producer to Stream. The producer runs on its
// own goroutine and blocks on every event until the consumer pulls it.
type pipe struct {
	events   chan Event
	finished chan struct{}
	cancel   context.CancelFunc
	err      error // set before events is closed

	closeOnce sync.Once
}

func newPipe(ctx context.Context, cancel context.CancelFunc, produce func(ctx context.Context, emit emitFunc) error) *pipe {
	p := &pipe{
		events:   make(chan Event),
		finished: make(chan struct{}),
		cancel:   cancel,
	}

	emit := func(ev Event) bool {
		select {
		case p.events <- ev:
			return true
		case <-ctx.Done():
			return false
		}
	}

	go func() {
		defer close(p.finished)
		p.err = produce(ctx, emit)
		close(p.events)
	}()

	return p
}

func (p *pipe) Next() (Event, error) {
	ev, ok := <-p.events
	if !ok {
		if p.err != nil {
			return Event{}, p.err
		}
		return Event{}, io.EOF
	}
	return ev, nil
}

func (p *pipe) Close() error {
	p.closeOnce.Do(func() {
		p.cancel()
		<-p.finished
	})
	return nil
}
