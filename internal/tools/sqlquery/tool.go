// Package sqlquery provides the SQL query tool for the relational
// deployment mode.
package sqlquery

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roelfdiedericks/toolgate/internal/sqlgate"
	"github.com/roelfdiedericks/toolgate/internal/types"
)

// Tool runs a single SQL statement through the gate.
type Tool struct {
	gate *sqlgate.Gate
}

// NewTool wraps gate.
func NewTool(gate *sqlgate.Gate) *Tool {
	return &Tool{gate: gate}
}

func (t *Tool) Name() string {
	return "sql_query"
}

func (t *Tool) Description() string {
	return "Run one SQLite statement. SELECT works on every table. Core tables are read-only; " +
		"INSERT, UPDATE, DELETE and CREATE/ALTER/DROP are allowed on agent-managed tables and tables prefixed with ai_. " +
		"Pass values through params (? placeholders) rather than inlining them. Set listTables to see the existing tables."
}

func (t *Tool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"sql": map[string]any{
				"type":        "string",
				"description": "A single SQL statement",
			},
			"params": map[string]any{
				"type":        "array",
				"description": "Positional parameters for ? placeholders",
			},
			"listTables": map[string]any{
				"type":        "boolean",
				"description": "List the tables instead of running a statement",
			},
		},
	}
}

type input struct {
	SQL        string `json:"sql"`
	Params     []any  `json:"params"`
	ListTables bool   `json:"listTables"`
}

func (t *Tool) Execute(ctx context.Context, raw json.RawMessage) (types.Envelope, error) {
	var in input
	if err := json.Unmarshal(raw, &in); err != nil {
		return types.Envelope{}, fmt.Errorf("invalid input: %w", err)
	}

	if in.ListTables {
		tables, err := t.gate.ListTables(ctx)
		if err != nil {
			return types.Envelope{}, err
		}
		return types.Success(map[string]any{"tables": tables}), nil
	}

	if strings.TrimSpace(in.SQL) == "" {
		return types.Failure("sql is required"), nil
	}
	return t.gate.Execute(ctx, in.SQL, in.Params), nil
}
