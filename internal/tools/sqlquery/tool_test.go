package sqlquery

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roelfdiedericks/toolgate/internal/policy"
	"github.com/roelfdiedericks/toolgate/internal/sqlgate"
	"github.com/roelfdiedericks/toolgate/internal/storage"
)

func newTool(t *testing.T) *Tool {
	t.Helper()
	db, err := storage.Open(storage.Config{Path: filepath.Join(t.TempDir(), "test.db")})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	_, err = db.SQL().Exec(`CREATE TABLE chats (id INTEGER PRIMARY KEY, title TEXT)`)
	require.NoError(t, err)
	return NewTool(sqlgate.New(db.SQL(), policy.Default()))
}

func call(t *testing.T, tool *Tool, args string) map[string]any {
	t.Helper()
	env, err := tool.Execute(context.Background(), json.RawMessage(args))
	require.NoError(t, err)
	var out map[string]any
	require.NoError(t, json.Unmarshal([]byte(env.String()), &out))
	return out
}

func TestStatementsWithParams(t *testing.T) {
	tool := newTool(t)

	out := call(t, tool, `{"sql":"CREATE TABLE ai_notes (id INTEGER PRIMARY KEY, body TEXT)"}`)
	assert.Equal(t, true, out["success"])

	out = call(t, tool, `{"sql":"INSERT INTO ai_notes (body) VALUES (?)","params":["hello"]}`)
	assert.EqualValues(t, 1, out["changes"])

	out = call(t, tool, `{"sql":"SELECT COUNT(*) AS n FROM ai_notes WHERE body = ?","params":["hello"]}`)
	assert.EqualValues(t, 1, out["rowCount"])
	rows := out["rows"].([]any)
	assert.EqualValues(t, 1, rows[0].(map[string]any)["n"])
}

func TestProtectedWriteIsDenied(t *testing.T) {
	out := call(t, newTool(t), `{"sql":"DELETE FROM chats"}`)
	assert.Contains(t, out["error"], "protected")
}

func TestListTablesAndMissingSQL(t *testing.T) {
	tool := newTool(t)

	out := call(t, tool, `{"listTables":true}`)
	assert.Contains(t, out["tables"], "chats")

	out = call(t, tool, `{"sql":"   "}`)
	assert.Equal(t, "sql is required", out["error"])

	_, err := tool.Execute(context.Background(), json.RawMessage(`{"sql":1}`))
	assert.ErrorContains(t, err, "invalid input")
}
