// Package relay drives one assistant turn: it feeds bounded history to the
// reasoning engine, mirrors item lifecycle events into the transcript and
// forwards normalized events to the transport.
package relay

import (
	"context"
	"errors"
	"io"
	"iter"
	"slices"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/capitalize-ai/ai-twin/internal/engine"
	"github.com/capitalize-ai/ai-twin/internal/model"
	"github.com/capitalize-ai/ai-twin/internal/nats"
	"github.com/capitalize-ai/ai-twin/internal/transcript"
	"github.com/capitalize-ai/ai-twin/pkg/clock"
	"github.com/capitalize-ai/ai-twin/pkg/logger"
	"github.com/capitalize-ai/ai-twin/pkg/metrics"
	"github.com/capitalize-ai/ai-twin/pkg/tracing"
)

// DefaultHistoryLimit is the number of prior items sent with each turn.
const DefaultHistoryLimit = 20

// Reasons attached to a truncated outcome.
const (
	ReasonDispatchFailed = "engine dispatch failed"
	ReasonStreamFailed   = "engine stream failed"
)

// Turn is the input of one assistant turn. Input must already be stored.
type Turn struct {
	Thread       model.Thread
	Input        model.Item
	Instructions string
}

// Relay bridges an engine to the transcript store and the wire protocol.
type Relay struct {
	store        *transcript.Store
	engine       engine.Engine
	publisher    nats.Publisher
	clock        clock.Clock
	logger       *logger.Logger
	historyLimit int
}

// New creates a Relay. A nil publisher drops turn events; historyLimit <= 0
// uses DefaultHistoryLimit.
func New(store *transcript.Store, eng engine.Engine, pub nats.Publisher, c clock.Clock, log *logger.Logger, historyLimit int) *Relay {
	if pub == nil {
		pub = nats.NopPublisher{}
	}
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	return &Relay{
		store:        store,
		engine:       eng,
		publisher:    pub,
		clock:        c,
		logger:       log,
		historyLimit: historyLimit,
	}
}

// Respond returns the turn's outward events. Nothing happens until the
// sequence is iterated. A completed iteration always ends with a done
// event carrying the outcome; stopping early or cancelling ctx closes the
// engine stream and yields nothing more.
func (r *Relay) Respond(ctx context.Context, turn Turn) iter.Seq[model.StreamEvent] {
	return func(yield func(model.StreamEvent) bool) {
		ctx, span := tracing.Tracer("relay").Start(ctx, "relay.turn")
		defer span.End()
		span.SetAttributes(attribute.String("thread.id", turn.Thread.ID))

		log := r.logger.With(zap.String("thread_id", turn.Thread.ID), zap.String("input_id", turn.Input.ID))

		outcome, count, delivered := r.relay(ctx, log, turn, yield)
		span.SetAttributes(attribute.Int("relay.events", count))
		if !delivered {
			span.SetAttributes(attribute.String("relay.outcome", "cancelled"))
			log.Debug("Turn abandoned by consumer", zap.Int("events", count))
			return
		}

		span.SetAttributes(attribute.String("relay.outcome", string(outcome.Status)))
		if outcome.Status == model.OutcomeTruncated {
			span.SetStatus(codes.Error, outcome.Reason)
		}
		metrics.RelayTurnsTotal.WithLabelValues(string(outcome.Status)).Inc()
		r.publish(ctx, log, turn.Thread.ID, outcome)

		yield(model.StreamEvent{Type: model.StreamDone, Outcome: &outcome})
	}
}

// relay runs the turn until the engine finishes. delivered is false when
// the consumer went away.
func (r *Relay) relay(ctx context.Context, log *logger.Logger, turn Turn, yield func(model.StreamEvent) bool) (outcome model.TurnOutcome, count int, delivered bool) {
	stream, err := r.engine.Stream(ctx, engine.Request{
		Thread:       turn.Thread,
		History:      r.history(turn),
		Input:        turn.Input,
		Instructions: turn.Instructions,
	})
	if err != nil {
		if ctx.Err() != nil {
			return outcome, 0, false
		}
		log.Error("Failed to start engine stream", zap.Error(err))
		return model.TurnOutcome{Status: model.OutcomeTruncated, Reason: ReasonDispatchFailed}, 0, true
	}
	defer stream.Close()

	for {
		if ctx.Err() != nil {
			return outcome, count, false
		}

		ev, err := stream.Next()
		if errors.Is(err, io.EOF) {
			return model.TurnOutcome{Status: model.OutcomeComplete}, count, true
		}
		if err != nil {
			if ctx.Err() != nil {
				return outcome, count, false
			}
			log.Error("Engine stream failed", zap.Error(err), zap.Int("events", count))
			return model.TurnOutcome{Status: model.OutcomeTruncated, Reason: ReasonStreamFailed}, count, true
		}

		out, ok := r.translate(turn.Thread.ID, ev)
		if !ok {
			log.Warn("Dropping unknown engine event", zap.String("kind", string(ev.Kind)))
			continue
		}
		count++
		metrics.RelayEventsTotal.WithLabelValues(string(out.Type)).Inc()
		if !yield(out) {
			return outcome, count, false
		}
	}
}

// history returns up to historyLimit stored items in chronological order,
// excluding the turn input.
func (r *Relay) history(turn Turn) []model.Item {
	page := r.store.ListItems(turn.Thread.ID, r.historyLimit, "", model.OrderDesc)
	items := slices.DeleteFunc(page.Data, func(it model.Item) bool {
		return it.ID == turn.Input.ID
	})
	slices.Reverse(items)
	return items
}

// translate maps an engine event to its outward form, persisting item
// lifecycle events on the way.
func (r *Relay) translate(threadID string, ev engine.Event) (model.StreamEvent, bool) {
	switch ev.Kind {
	case engine.EventContentDelta:
		return model.StreamEvent{Type: model.StreamContentDelta, ItemID: ev.ItemID, Delta: ev.Delta}, true

	case engine.EventItemCreated, engine.EventItemUpdated:
		if ev.Item == nil {
			return model.StreamEvent{}, false
		}
		item := ev.Item.Clone()
		item.ThreadID = threadID
		if item.CreatedAt.IsZero() {
			item.CreatedAt = r.clock.Now()
		}
		stored := r.store.UpsertItem(threadID, item)

		typ := model.StreamItemCreated
		if ev.Kind == engine.EventItemUpdated {
			typ = model.StreamItemUpdated
		}
		return model.StreamEvent{Type: typ, ItemID: stored.ID, Item: &stored}, true

	case engine.EventToolCall:
		return model.StreamEvent{Type: model.StreamToolCall, ToolName: ev.ToolName, Arguments: ev.Arguments}, true

	case engine.EventError:
		return model.StreamEvent{Type: model.StreamError, Error: ev.Message}, true
	}
	return model.StreamEvent{}, false
}

func (r *Relay) publish(ctx context.Context, log *logger.Logger, threadID string, outcome model.TurnOutcome) {
	typ := model.TurnEventCompleted
	if outcome.Status == model.OutcomeTruncated {
		typ = model.TurnEventTruncated
	}
	event := model.TurnEvent{
		ID:        engine.NewItemID("evt"),
		ThreadID:  threadID,
		Type:      typ,
		Reason:    outcome.Reason,
		CreatedAt: r.clock.Now(),
	}
	if err := r.publisher.PublishTurnEvent(context.WithoutCancel(ctx), event); err != nil {
		log.Warn("Failed to publish turn event", zap.Error(err))
	}
}
