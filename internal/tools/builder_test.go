package tools

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roelfdiedericks/toolgate/internal/artifacts"
	"github.com/roelfdiedericks/toolgate/internal/docstore"
	"github.com/roelfdiedericks/toolgate/internal/executor"
	"github.com/roelfdiedericks/toolgate/internal/imagegen"
	"github.com/roelfdiedericks/toolgate/internal/media"
	"github.com/roelfdiedericks/toolgate/internal/notebook"
	"github.com/roelfdiedericks/toolgate/internal/policy"
	"github.com/roelfdiedericks/toolgate/internal/sqlgate"
	"github.com/roelfdiedericks/toolgate/internal/storage"
	toolsconfig "github.com/roelfdiedericks/toolgate/internal/tools/config"
)

type testEnv struct {
	deps  Deps
	store *docstore.Memory
}

func newEnv(t *testing.T) testEnv {
	t.Helper()
	dir := t.TempDir()
	db, err := storage.Open(storage.Config{Path: filepath.Join(dir, "toolgate.db")})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ms, err := media.NewMediaStore(media.Config{Dir: filepath.Join(dir, "media")})
	require.NoError(t, err)

	store := docstore.NewMemory()
	pol := policy.Default()
	return testEnv{
		store: store,
		deps: Deps{
			Policy:    pol,
			Executor:  executor.New(store),
			SQLGate:   sqlgate.New(db.SQL(), pol),
			Notebook:  notebook.New(notebook.NewSQLiteBackend(db.SQL())),
			Media:     ms,
			Artifacts: artifacts.NewSQLiteStore(db.SQL()),
		},
	}
}

func TestBuildBaseTools(t *testing.T) {
	env := newEnv(t)
	reg := Build(env.deps, Bundle{})
	assert.Equal(t, []string{"db_query", "sql_query", "update_db_schema", "update_memory"}, reg.List())

	env.deps.SQLGate = nil
	reg = Build(env.deps, Bundle{})
	assert.False(t, reg.Has("sql_query"))
	assert.True(t, reg.Has("db_query"))
}

func TestBuildSearchOnlyWithKey(t *testing.T) {
	brave := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "secret", r.Header.Get("X-Subscription-Token"))
		if r.URL.Query().Get("q") == "fail" {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"web":{"results":[
			{"title":"Go","url":"https://go.dev","description":"The Go language"},
			{"title":"Tour","url":"https://go.dev/tour","description":"A tour of Go"}]}}`))
	}))
	defer brave.Close()

	env := newEnv(t)
	env.deps.Config = toolsconfig.ToolsConfig{Web: toolsconfig.WebToolsConfig{SearchURL: brave.URL}}

	reg := Build(env.deps, Bundle{})
	assert.False(t, reg.Has("web_search"))
	assert.False(t, reg.Has("web_fetch"))

	reg = Build(env.deps, Bundle{SearchAPIKey: "secret"})
	require.True(t, reg.Has("web_search"))
	assert.True(t, reg.Has("web_fetch"))

	ctx := context.Background()
	out := decode(t, reg.Call(ctx, "web_search", json.RawMessage(`{"query":"golang"}`)))
	results, ok := out["results"].([]any)
	require.True(t, ok, out)
	require.Len(t, results, 2)
	first := results[0].(map[string]any)
	assert.Equal(t, "Go", first["title"])
	assert.Equal(t, "https://go.dev", first["url"])
	assert.Equal(t, "The Go language", first["snippet"])

	out = decode(t, reg.Call(ctx, "web_search", json.RawMessage(`{"query":"fail"}`)))
	assert.Equal(t, "search API error: 502", out["error"])
}

func TestBuildImageToolsNeedGenerationAndIdentity(t *testing.T) {
	env := newEnv(t)
	gen := &imagegen.Settings{Provider: "openai", APIKey: "k"}

	cases := []struct {
		name   string
		bundle Bundle
		want   bool
	}{
		{"no settings", Bundle{ChatID: "c", MessageID: "m"}, false},
		{"no chat", Bundle{Generation: gen, MessageID: "m"}, false},
		{"no message", Bundle{Generation: gen, ChatID: "c"}, false},
		{"complete", Bundle{Generation: gen, ChatID: "c", MessageID: "m"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			reg := Build(env.deps, tc.bundle)
			assert.Equal(t, tc.want, reg.Has("generate_image"))
			assert.Equal(t, tc.want, reg.Has("edit_image"))
		})
	}

	bad := &imagegen.Settings{Provider: "unknown", APIKey: "k"}
	reg := Build(env.deps, Bundle{Generation: bad, ChatID: "c", MessageID: "m"})
	assert.False(t, reg.Has("generate_image"))
}

func TestDBQueryScenarios(t *testing.T) {
	env := newEnv(t)
	reg := Build(env.deps, Bundle{})
	ctx := context.Background()

	out := decode(t, reg.Call(ctx, "db_query", json.RawMessage(`{"operation":"updateOne","collection":"chats","filter":{},"update":{"$set":{"x":1}}}`)))
	assert.Contains(t, out["error"], "chats")
	assert.Contains(t, out["error"], "protected")

	out = decode(t, reg.Call(ctx, "db_query", json.RawMessage(`{"operation":"insertOne","collection":"contacts","data":{"name":"Alice"}}`)))
	assert.NotEmpty(t, out["insertedId"])

	out = decode(t, reg.Call(ctx, "db_query", json.RawMessage(`{"operation":"insertOne","collection":"scratch","data":{}}`)))
	assert.Contains(t, out["error"], `"ai_scratch"`)

	out = decode(t, reg.Call(ctx, "db_query", json.RawMessage(`{"operation":"insertOne","collection":"ai_scratch","data":{}}`)))
	assert.NotContains(t, out, "error")

	out = decode(t, reg.Call(ctx, "db_query", json.RawMessage(`{"operation":"drop","collection":"ai_scratch"}`)))
	assert.Contains(t, out["error"], "not allowed")

	n, err := env.store.Count(ctx, "scratch", nil)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestNotebookTools(t *testing.T) {
	env := newEnv(t)
	reg := Build(env.deps, Bundle{})
	ctx := context.Background()

	out := decode(t, reg.Call(ctx, "update_memory", json.RawMessage(`{"memory":"Prefers tea"}`)))
	assert.Equal(t, true, out["success"])
	assert.EqualValues(t, 11, out["length"])

	out = decode(t, reg.Call(ctx, "update_db_schema", json.RawMessage(`{"schema":"ai_notes(body)"}`)))
	assert.Equal(t, true, out["success"])

	long := make([]byte, notebook.MaxMemoryLength+1)
	for i := range long {
		long[i] = 'a'
	}
	in, _ := json.Marshal(map[string]string{"memory": string(long)})
	out = decode(t, reg.Call(ctx, "update_memory", in))
	assert.Contains(t, out["error"], "4000")

	rec, err := env.deps.Notebook.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Prefers tea", rec.Memory)
	assert.Equal(t, "ai_notes(body)", rec.DBSchema)
}

func TestSQLQueryTool(t *testing.T) {
	env := newEnv(t)
	reg := Build(env.deps, Bundle{})
	ctx := context.Background()

	out := decode(t, reg.Call(ctx, "sql_query", json.RawMessage(`{"sql":"CREATE TABLE ai_notes (id INTEGER PRIMARY KEY, body TEXT)"}`)))
	assert.Equal(t, true, out["success"])

	out = decode(t, reg.Call(ctx, "sql_query", json.RawMessage(`{"sql":"INSERT INTO ai_notes (body) VALUES (?)","params":["hello"]}`)))
	assert.EqualValues(t, 1, out["changes"])

	out = decode(t, reg.Call(ctx, "sql_query", json.RawMessage(`{"sql":"DELETE FROM agent_notebook"}`)))
	assert.Contains(t, out["error"], "protected")

	out = decode(t, reg.Call(ctx, "sql_query", json.RawMessage(`{"listTables":true}`)))
	assert.Contains(t, out["tables"], "ai_notes")

	out = decode(t, reg.Call(ctx, "sql_query", json.RawMessage(`{}`)))
	assert.Equal(t, "sql is required", out["error"])
}
