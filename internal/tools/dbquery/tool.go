// Package dbquery provides the validated document-store query tool.
package dbquery

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/roelfdiedericks/toolgate/internal/executor"
	. "github.com/roelfdiedericks/toolgate/internal/logging"
	"github.com/roelfdiedericks/toolgate/internal/metrics"
	"github.com/roelfdiedericks/toolgate/internal/operation"
	"github.com/roelfdiedericks/toolgate/internal/policy"
	"github.com/roelfdiedericks/toolgate/internal/types"
)

// Tool runs one store operation per call after the policy allows it.
type Tool struct {
	policy *policy.Policy
	exec   *executor.Executor
}

// NewTool composes a policy and an executor.
func NewTool(pol *policy.Policy, exec *executor.Executor) *Tool {
	return &Tool{policy: pol, exec: exec}
}

func (t *Tool) Name() string {
	return "db_query"
}

func (t *Tool) Description() string {
	return fmt.Sprintf("Run one operation against the database. Reads work on every collection. "+
		"Core collections (%s) are read-only. "+
		"Writes and schema changes are allowed on agent-managed collections (%s) and on any collection whose name starts with %q; "+
		"create new collections with that prefix. Allowed operations: %s.",
		strings.Join(t.policy.Protected(), ", "),
		strings.Join(t.policy.Managed(), ", "),
		t.policy.Prefix(),
		policy.AllowedKinds(),
	)
}

func (t *Tool) Schema() map[string]any {
	return map[string]any{
		"type": "object",
		"properties": map[string]any{
			"operation": map[string]any{
				"type":        "string",
				"description": "The operation to run, e.g. find, insertOne, updateMany, aggregate, listCollections",
			},
			"collection": map[string]any{
				"type":        "string",
				"description": "Target collection (not needed for listCollections)",
			},
			"filter": map[string]any{
				"type":        "object",
				"description": "Query filter. Required for update and delete operations; {} matches every document.",
			},
			"projection": map[string]any{
				"type":        "object",
				"description": "Fields to include (1) or exclude (0)",
			},
			"sort": map[string]any{
				"type":        "object",
				"description": "Sort specification, e.g. {\"date\": -1}",
			},
			"limit": map[string]any{
				"type":        "integer",
				"minimum":     0,
				"description": fmt.Sprintf("Maximum documents for find (default: %d, max: %d)", executor.DefaultFindLimit, executor.MaxFindLimit),
			},
			"skip": map[string]any{
				"type":    "integer",
				"minimum": 0,
			},
			"update": map[string]any{
				"type":        "object",
				"description": "Update operators, e.g. {\"$set\": {\"status\": \"done\"}}",
			},
			"data": map[string]any{
				"description": "Document for insertOne, or array of documents for insertMany",
			},
			"pipeline": map[string]any{
				"type":        "array",
				"description": "Aggregation pipeline stages: $match, $sort, $skip, $limit, $project, $count",
			},
			"keys": map[string]any{
				"type":        "object",
				"description": "Index keys for createIndex, e.g. {\"email\": 1}",
			},
			"options": map[string]any{
				"type":        "object",
				"description": "Index options for createIndex: unique, name",
			},
		},
		"required": []string{"operation"},
	}
}

func (t *Tool) Execute(ctx context.Context, input json.RawMessage) (types.Envelope, error) {
	req, err := operation.Parse(input)
	if err != nil {
		return types.FromError(err), nil
	}

	decision := t.policy.Check(req)
	if !decision.Allowed {
		L_warn("db_query: denied", "op", req.String(), "reason", decision.Reason)
		metrics.MetricInc("policy", "db_query_denied")
		return types.Failure(decision.Reason), nil
	}

	L_debug("db_query: executing", "op", req.String())
	return t.exec.Execute(ctx, req), nil
}
