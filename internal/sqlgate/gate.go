package sqlgate

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"

	. "github.com/roelfdiedericks/toolgate/internal/logging"
	"github.com/roelfdiedericks/toolgate/internal/metrics"
	"github.com/roelfdiedericks/toolgate/internal/policy"
	"github.com/roelfdiedericks/toolgate/internal/types"
)

// DefaultMaxRows caps the rows a read returns.
const DefaultMaxRows = 500

// Gate checks and runs SQL statements against one database.
type Gate struct {
	db      *sql.DB
	policy  *policy.Policy
	maxRows int
}

// New returns a Gate over db. A nil policy uses policy.Default().
func New(db *sql.DB, pol *policy.Policy) *Gate {
	if pol == nil {
		pol = policy.Default()
	}
	return &Gate{db: db, policy: pol, maxRows: DefaultMaxRows}
}

// SetMaxRows changes the read row cap.
func (g *Gate) SetMaxRows(n int) {
	if n > 0 {
		g.maxRows = n
	}
}

// Check classifies statement and applies the policy. It returns the parsed
// statement or an error carrying the denial reason.
func (g *Gate) Check(ctx context.Context, statement string) (Statement, error) {
	stmt, err := Classify(statement)
	if err != nil {
		return Statement{}, err
	}

	if stmt.Verb == "DROP INDEX" {
		table, err := g.indexTable(ctx, stmt.Index)
		if err != nil {
			return Statement{}, err
		}
		stmt.Target = table
	}

	// reads that reference no table, e.g. SELECT 1, need no target
	if stmt.Class == ClassRead && stmt.Target == "" {
		return stmt, nil
	}

	targets := []string{stmt.Target}
	if stmt.RenameTo != "" {
		targets = append(targets, stmt.RenameTo)
	}
	for _, target := range targets {
		if d := g.policy.Validate(stmt.Kind, target); !d.Allowed {
			L_warn("sqlgate: statement denied", "verb", stmt.Verb, "target", target, "reason", d.Reason)
			metrics.MetricInc("policy", "sql_denied")
			return Statement{}, errors.New(d.Reason)
		}
	}
	return stmt, nil
}

// Execute checks and runs one statement with optional bind parameters.
func (g *Gate) Execute(ctx context.Context, statement string, params []any) (env types.Envelope) {
	defer func() {
		if r := recover(); r != nil {
			L_error("sqlgate: panic during statement", "panic", r, "stack", string(debug.Stack()))
			env = types.Failure("internal error while executing statement")
		}
	}()

	if ctx.Err() != nil {
		return types.Failure("operation cancelled")
	}

	stmt, err := g.Check(ctx, statement)
	if err != nil {
		return types.FromError(err)
	}

	fields, err := g.run(ctx, stmt, params)
	if err != nil {
		if ctx.Err() != nil {
			return types.Failure("operation cancelled")
		}
		L_debug("sqlgate: statement failed", "verb", stmt.Verb, "target", stmt.Target, "error", err)
		return types.FromError(err)
	}
	return types.Success(fields)
}

func (g *Gate) run(ctx context.Context, stmt Statement, params []any) (map[string]any, error) {
	switch stmt.Class {
	case ClassRead:
		rows, truncated, err := g.query(ctx, stmt.SQL, params)
		if err != nil {
			return nil, fmt.Errorf("query failed: %w", err)
		}
		out := map[string]any{"rows": rows, "rowCount": len(rows)}
		if truncated {
			out["truncated"] = true
		}
		return out, nil

	case ClassMutate:
		res, err := g.db.ExecContext(ctx, stmt.SQL, params...)
		if err != nil {
			return nil, fmt.Errorf("%s failed: %w", strings.ToLower(stmt.Verb), err)
		}
		changes, _ := res.RowsAffected()
		lastID, _ := res.LastInsertId()
		return map[string]any{"changes": changes, "lastInsertRowid": lastID}, nil

	case ClassDDL:
		if _, err := g.db.ExecContext(ctx, stmt.SQL, params...); err != nil {
			return nil, fmt.Errorf("%s failed: %w", strings.ToLower(stmt.Verb), err)
		}
		L_info("sqlgate: schema changed", "verb", stmt.Verb, "target", stmt.Target)
		return map[string]any{"success": true}, nil
	}
	return nil, fmt.Errorf("unsupported statement class %s", stmt.Class)
}

func (g *Gate) query(ctx context.Context, q string, params []any) ([]map[string]any, bool, error) {
	rows, err := g.db.QueryContext(ctx, q, params...)
	if err != nil {
		return nil, false, err
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, false, err
	}

	out := []map[string]any{}
	truncated := false
	for rows.Next() {
		if len(out) >= g.maxRows {
			truncated = true
			break
		}
		values := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, false, err
		}
		row := make(map[string]any, len(cols))
		for i, col := range cols {
			if b, ok := values[i].([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = values[i]
			}
		}
		out = append(out, row)
	}
	return out, truncated, rows.Err()
}

func (g *Gate) indexTable(ctx context.Context, index string) (string, error) {
	var table string
	err := g.db.QueryRowContext(ctx,
		"SELECT tbl_name FROM sqlite_master WHERE type = 'index' AND lower(name) = ?", index).Scan(&table)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("index not found: %s", index)
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve index %s: %w", index, err)
	}
	return strings.ToLower(table), nil
}

// ListTables returns the user tables in the database, sorted.
func (g *Gate) ListTables(ctx context.Context) ([]string, error) {
	rows, err := g.db.QueryContext(ctx,
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name NOT LIKE 'sqlite_%' ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	defer rows.Close()

	names := []string{}
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Describe renders CREATE statements of the user tables, for the notebook
// schema.
func (g *Gate) Describe(ctx context.Context) (string, error) {
	rows, err := g.db.QueryContext(ctx,
		"SELECT sql FROM sqlite_master WHERE type IN ('table', 'index') AND sql IS NOT NULL AND name NOT LIKE 'sqlite_%' ORDER BY tbl_name, type DESC, name")
	if err != nil {
		return "", fmt.Errorf("failed to describe schema: %w", err)
	}
	defer rows.Close()

	var b strings.Builder
	for rows.Next() {
		var stmt string
		if err := rows.Scan(&stmt); err != nil {
			return "", err
		}
		b.WriteString(stmt)
		b.WriteString(";\n")
	}
	return b.String(), rows.Err()
}
