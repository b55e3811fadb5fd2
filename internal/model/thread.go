// Package model defines data structures for the transcript, the relay and
// the HTTP API.
package model

import (
	"maps"
	"time"
)

// MetadataPersonality is the thread metadata key holding the selected
// assistant personality.
const MetadataPersonality = "personality"

// Thread is a conversation container.
type Thread struct {
	ID        string         `json:"id"`
	CreatedAt time.Time      `json:"created_at"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// Clone returns a copy whose metadata map is not shared with t.
func (t Thread) Clone() Thread {
	t.Metadata = maps.Clone(t.Metadata)
	return t
}

// Personality returns the personality tag stored in metadata, or def.
func (t Thread) Personality(def string) string {
	if v, ok := t.Metadata[MetadataPersonality].(string); ok && v != "" {
		return v
	}
	return def
}

// UpdateThreadRequest is the request to replace a thread's metadata.
type UpdateThreadRequest struct {
	Metadata map[string]any `json:"metadata"`
}
