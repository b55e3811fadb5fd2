package model

import (
	"time"
)

// ItemKind tags the variant of a thread item.
type ItemKind string

const (
	KindUserMessage      ItemKind = "user_message"
	KindAssistantMessage ItemKind = "assistant_message"
	KindSystemMessage    ItemKind = "system_message"
	KindToolCall         ItemKind = "tool_call"
)

// Item is one message or event unit inside a thread.
type Item struct {
	// Identity
	ID       string `json:"id"`
	ThreadID string `json:"thread_id"`

	Kind    ItemKind    `json:"kind"`
	Content ItemContent `json:"content"`

	CreatedAt time.Time `json:"created_at"`

	// Sequence is the per-thread insertion number assigned by the store.
	Sequence uint64 `json:"sequence,omitempty"`
}

// ItemContent is the kind-dependent payload of an item. Messages use
// Text; tool call records use Tool.
type ItemContent struct {
	Text string    `json:"text,omitempty"`
	Tool *ToolCall `json:"tool,omitempty"`
}

// ToolCall records a capability invoked by the reasoning engine.
type ToolCall struct {
	Name      string `json:"name"`
	Arguments string `json:"arguments,omitempty"`
	Output    string `json:"output,omitempty"`
}

// Clone returns a copy that shares no pointers with i.
func (i Item) Clone() Item {
	if i.Content.Tool != nil {
		tool := *i.Content.Tool
		i.Content.Tool = &tool
	}
	return i
}

// SendMessageRequest is the request to send a user message and stream the
// assistant's reply.
type SendMessageRequest struct {
	Content     string `json:"content"`
	Personality string `json:"personality,omitempty"`
}
