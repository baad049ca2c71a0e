// Package notebookwrite provides the tools the model uses to update its
// notebook.
package notebookwrite

import (
	"context"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	. "github.com/roelfdiedericks/toolgate/internal/logging"
	"github.com/roelfdiedericks/toolgate/internal/notebook"
	"github.com/roelfdiedericks/toolgate/internal/types"
)

// MemoryTool replaces the notebook memory.
type MemoryTool struct {
	nb *notebook.Notebook
}

// NewMemoryTool returns the update_memory tool.
func NewMemoryTool(nb *notebook.Notebook) *MemoryTool {
	return &MemoryTool{nb: nb}
}

func (t *MemoryTool) Name() string {
	return "update_memory"
}

func (t *MemoryTool) Description() string {
	return fmt.Sprintf("Replace your saved memory about the user with the given text. "+
		"The whole memory is overwritten, so include everything worth keeping. Maximum %d characters.", notebook.MaxMemoryLength)
}

func (t *MemoryTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"memory": map[string]any{
				"type":        "string",
				"description": "The complete new memory text",
			},
		},
		"required": []string{"memory"},
	}
}

func (t *MemoryTool) Execute(ctx context.Context, input json.RawMessage) (types.Envelope, error) {
	var params struct {
		Memory string `json:"memory"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return types.Envelope{}, fmt.Errorf("invalid input: %w", err)
	}

	if err := t.nb.WriteMemory(ctx, params.Memory); err != nil {
		return types.Envelope{}, err
	}

	length := utf8.RuneCountInString(params.Memory)
	L_debug("update_memory: saved", "length", length)
	return types.Success(map[string]any{"success": true, "length": length}), nil
}

// SchemaTool replaces the notebook's description of custom tables.
type SchemaTool struct {
	nb *notebook.Notebook
}

// NewSchemaTool returns the update_db_schema tool.
func NewSchemaTool(nb *notebook.Notebook) *SchemaTool {
	return &SchemaTool{nb: nb}
}

func (t *SchemaTool) Name() string {
	return "update_db_schema"
}

func (t *SchemaTool) Description() string {
	return "Replace the description of the custom tables and collections you have created. " +
		"Call it after every schema change so future conversations know what exists."
}

func (t *SchemaTool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"schema": map[string]any{
				"type":        "string",
				"description": "Every custom table or collection with its fields and purpose",
			},
		},
		"required": []string{"schema"},
	}
}

func (t *SchemaTool) Execute(ctx context.Context, input json.RawMessage) (types.Envelope, error) {
	var params struct {
		Schema string `json:"schema"`
	}
	if err := json.Unmarshal(input, &params); err != nil {
		return types.Envelope{}, fmt.Errorf("invalid input: %w", err)
	}

	if err := t.nb.WriteSchema(ctx, params.Schema); err != nil {
		return types.Envelope{}, err
	}
	L_debug("update_db_schema: saved", "length", len(params.Schema))
	return types.Success(map[string]any{"success": true}), nil
}
