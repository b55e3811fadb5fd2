// Package cms reads the portfolio owner's profile from the content
// management system and exposes it to the engine as tools.
package cms

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
)

// ErrUnsafeQuery is returned for queries rejected by Validate.
var ErrUnsafeQuery = errors.New("cms: unsafe query")

// Source runs GROQ queries. fresh bypasses the CDN cache.
type Source interface {
	Query(ctx context.Context, query string, params map[string]any, fresh bool) (json.RawMessage, error)
}

// NopSource is used when no CMS project is configured. Every query is
// empty so tools fall back to their "not available" answers.
type NopSource struct{}

func (NopSource) Query(context.Context, string, map[string]any, bool) (json.RawMessage, error) {
	return json.RawMessage("null"), nil
}

// isEmpty reports whether a query result holds no data.
func isEmpty(raw json.RawMessage) bool {
	switch string(bytes.TrimSpace(raw)) {
	case "", "null", "[]", "{}":
		return true
	}
	return false
}
