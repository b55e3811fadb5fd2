package model

import (
	"time"
)

// StreamEventType identifies a normalized outward stream event.
type StreamEventType string

const (
	StreamContentDelta StreamEventType = "content.delta"
	StreamItemCreated  StreamEventType = "thread.item.created"
	StreamItemUpdated  StreamEventType = "thread.item.updated"
	StreamToolCall     StreamEventType = "tool.call"
	StreamError        StreamEventType = "error"
	StreamDone         StreamEventType = "done"
)

// StreamEvent is one unit of the relay's outward protocol. Only the fields
// relevant to Type are set.
type StreamEvent struct {
	Type StreamEventType `json:"type"`

	ItemID string `json:"item_id,omitempty"`
	Delta  string `json:"delta,omitempty"`
	Item   *Item  `json:"item,omitempty"`

	ToolName  string `json:"tool_name,omitempty"`
	Arguments string `json:"arguments,omitempty"`

	Error string `json:"error,omitempty"`

	Outcome *TurnOutcome `json:"-"`
}

// OutcomeStatus tells a clean turn from one cut short by an upstream failure.
type OutcomeStatus string

const (
	OutcomeComplete  OutcomeStatus = "complete"
	OutcomeTruncated OutcomeStatus = "truncated"
)

// TurnOutcome is attached to the done event of every turn.
type TurnOutcome struct {
	Status OutcomeStatus `json:"status"`
	Reason string        `json:"reason,omitempty"`
}

// TurnEventType represents the type of a turn lifecycle event.
type TurnEventType string

const (
	TurnEventCompleted TurnEventType = "turn.completed"
	TurnEventTruncated TurnEventType = "turn.truncated"
	TurnEventRateLimit TurnEventType = "rate_limit"
)

// TurnEvent is published to the event feed when a turn ends or is refused.
type TurnEvent struct {
	ID        string         `json:"id"`
	ThreadID  string         `json:"thread_id"`
	Type      TurnEventType  `json:"type"`
	Reason    string         `json:"reason,omitempty"`
	Metadata  map[string]any `json:"metadata,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}
