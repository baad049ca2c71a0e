package paths

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandTilde(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	tests := []struct {
		in   string
		want string
	}{
		{"~", home},
		{"~/data/x.db", filepath.Join(home, "data/x.db")},
		{"/abs/path", "/abs/path"},
		{"relative", "relative"},
		{"~other/x", "~other/x"},
		{"", ""},
	}
	for _, tt := range tests {
		got, err := ExpandTilde(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, tt.in)
	}
}

func TestConfigPathSearchesHome(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	found, err := ConfigPath()
	require.NoError(t, err)
	assert.Empty(t, found)

	base, err := BaseDir()
	require.NoError(t, err)
	require.NoError(t, EnsureDir(base))
	yamlPath := filepath.Join(base, "toolgate.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte("logging: {}\n"), 0600))

	found, err = ConfigPath()
	require.NoError(t, err)
	assert.Equal(t, yamlPath, found)

	jsonPath := filepath.Join(base, "toolgate.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte("{}"), 0600))
	found, err = ConfigPath()
	require.NoError(t, err)
	assert.Equal(t, jsonPath, found, "json wins over yaml")

	def, err := DefaultConfigPath()
	require.NoError(t, err)
	assert.Equal(t, jsonPath, def)
}

func TestEnsureParentDir(t *testing.T) {
	target := filepath.Join(t.TempDir(), "a", "b", "file.db")
	require.NoError(t, EnsureParentDir(target))
	assert.DirExists(t, filepath.Dir(target))
}
