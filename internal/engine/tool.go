package engine

import (
	"context"
	"encoding/json"
)

// Tool is a capability the engine may invoke during a turn.
type Tool struct {
	Name        string
	Description string

	// Parameters is the JSON schema of the arguments object.
	Parameters map[string]any

	Call func(ctx context.Context, args json.RawMessage) (string, error)
}

func toolIndex(tools []Tool) map[string]Tool {
	index := make(map[string]Tool, len(tools))
	for _, t := range tools {
		index[t.Name] = t
	}
	return index
}
