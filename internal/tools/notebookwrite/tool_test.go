package notebookwrite

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roelfdiedericks/toolgate/internal/notebook"
)

func newNotebook(t *testing.T) *notebook.Notebook {
	t.Helper()
	return notebook.New(notebook.NewFileBackend(filepath.Join(t.TempDir(), "notebook.json")))
}

func TestMemoryTool(t *testing.T) {
	ctx := context.Background()
	nb := newNotebook(t)
	tool := NewMemoryTool(nb)
	assert.Equal(t, "update_memory", tool.Name())
	assert.Contains(t, tool.Description(), "4000")

	env, err := tool.Execute(ctx, json.RawMessage(`{"memory":"prefers tea"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true,"length":11}`, env.String())

	out, err := nb.Render(ctx)
	require.NoError(t, err)
	assert.Contains(t, out, "prefers tea")
}

func TestMemoryToolRejectsTooLong(t *testing.T) {
	ctx := context.Background()
	nb := newNotebook(t)
	tool := NewMemoryTool(nb)

	args, err := json.Marshal(map[string]string{"memory": strings.Repeat("x", notebook.MaxMemoryLength+1)})
	require.NoError(t, err)
	_, err = tool.Execute(ctx, args)
	assert.True(t, errors.Is(err, notebook.ErrMemoryTooLong))

	rec, err := nb.Read(ctx)
	require.NoError(t, err)
	assert.Empty(t, rec.Memory)
}

func TestSchemaTool(t *testing.T) {
	ctx := context.Background()
	nb := newNotebook(t)
	tool := NewSchemaTool(nb)
	assert.Equal(t, "update_db_schema", tool.Name())

	env, err := tool.Execute(ctx, json.RawMessage(`{"schema":"ai_gifts(name, price)"}`))
	require.NoError(t, err)
	assert.JSONEq(t, `{"success":true}`, env.String())

	rec, err := nb.Read(ctx)
	require.NoError(t, err)
	assert.Equal(t, "ai_gifts(name, price)", rec.DBSchema)

	_, err = tool.Execute(ctx, json.RawMessage(`{"schema":42}`))
	assert.ErrorContains(t, err, "invalid input")
}
