package storage

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func versions(t *testing.T, db *sql.DB) []int {
	t.Helper()
	rows, err := db.Query("SELECT version FROM schema_version ORDER BY version")
	require.NoError(t, err)
	defer rows.Close()
	var out []int
	for rows.Next() {
		var v int
		require.NoError(t, rows.Scan(&v))
		out = append(out, v)
	}
	require.NoError(t, rows.Err())
	return out
}

func tableExists(t *testing.T, db *sql.DB, name string) bool {
	t.Helper()
	var n int
	err := db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name = ?", name).Scan(&n)
	require.NoError(t, err)
	return n == 1
}

func TestOpenMigratesFreshDatabase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "toolgate.db")
	d, err := Open(Config{Path: path})
	require.NoError(t, err)
	defer d.Close()

	assert.Equal(t, path, d.Path())
	assert.FileExists(t, path)
	assert.Equal(t, []int{1, 2}, versions(t, d.SQL()))
	assert.True(t, tableExists(t, d.SQL(), "agent_notebook"))
	assert.True(t, tableExists(t, d.SQL(), "artifacts"))
}

func TestReopenIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "toolgate.db")
	d, err := Open(Config{Path: path, WALMode: true})
	require.NoError(t, err)
	_, err = d.SQL().Exec("INSERT INTO agent_notebook (key, value, updated_at) VALUES ('memory', 'kept', 0)")
	require.NoError(t, err)
	require.NoError(t, d.Close())

	d, err = Open(Config{Path: path})
	require.NoError(t, err)
	defer d.Close()
	require.NoError(t, d.Migrate())

	assert.Equal(t, []int{1, 2}, versions(t, d.SQL()))
	var value string
	require.NoError(t, d.SQL().QueryRow("SELECT value FROM agent_notebook WHERE key = 'memory'").Scan(&value))
	assert.Equal(t, "kept", value)
}

func TestMigrateFromVersionOne(t *testing.T) {
	path := filepath.Join(t.TempDir(), "old.db")
	raw, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	require.NoError(t, migrateV1(raw))
	assert.False(t, tableExists(t, raw, "artifacts"))
	require.NoError(t, raw.Close())

	d, err := Open(Config{Path: path})
	require.NoError(t, err)
	defer d.Close()
	assert.Equal(t, []int{1, 2}, versions(t, d.SQL()))
	assert.True(t, tableExists(t, d.SQL(), "artifacts"))
}

func TestOpenRequiresPath(t *testing.T) {
	_, err := Open(Config{})
	assert.ErrorContains(t, err, "path is required")
}

func TestOpenExpandsTilde(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	d, err := Open(Config{Path: "~/data/toolgate.db"})
	require.NoError(t, err)
	defer d.Close()
	assert.Equal(t, filepath.Join(home, "data", "toolgate.db"), d.Path())
}
