// Package tools provides the tool registry the model calls into and the
// builder that decides which tools a turn is offered.
package tools

import (
	"context"
	"encoding/json"

	"github.com/roelfdiedericks/toolgate/internal/types"
)

// Tool is the interface that all tools must implement
type Tool interface {
	// Name returns the unique name of the tool
	Name() string

	// Description returns a human-readable description for the LLM
	Description() string

	// Schema returns the JSON Schema for the tool's input parameters
	Schema() map[string]any

	// Execute runs the tool. A returned error is reported to the model as
	// an error envelope, so tools may return either.
	Execute(ctx context.Context, input json.RawMessage) (types.Envelope, error)
}

// ToDefinition converts a Tool to the provider-neutral definition.
func ToDefinition(t Tool) types.ToolDefinition {
	return types.ToolDefinition{
		Name:        t.Name(),
		Description: t.Description(),
		InputSchema: t.Schema(),
	}
}
