package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{EnvBraveAPIKey, EnvImageAPIKey, EnvMongoURI, EnvLogLevel} {
		t.Setenv(k, "")
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestLoadJSONMergesOverDefaults(t *testing.T) {
	clearEnv(t)
	path := writeFile(t, "toolgate.json", `{
		"store": {"mode": "mongo", "mongo": {"uri": "mongodb://db:27017"}},
		"tools": {"web": {"braveApiKey": "file-key"}}
	}`)

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, StoreMongo, cfg.Store.Mode)
	assert.Equal(t, "mongodb://db:27017", cfg.Store.Mongo.URI)
	assert.Equal(t, "toolgate", cfg.Store.Mongo.Database, "default kept")
	assert.Equal(t, "file-key", cfg.Tools.Web.BraveAPIKey)
	assert.EqualValues(t, 50, cfg.Tools.Query.DefaultLimit)
	assert.Equal(t, NotebookSQLite, cfg.Notebook.Backend)
	assert.NoError(t, cfg.Validate())
}

func TestLoadTOMLAndYAML(t *testing.T) {
	clearEnv(t)

	tomlPath := writeFile(t, "toolgate.toml", `
[logging]
level = "debug"

[tools.query]
max_limit = 100

[policy]
extra_protected = ["billing"]
`)
	cfg, err := Load(tomlPath)
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.EqualValues(t, 100, cfg.Tools.Query.MaxLimit)
	assert.EqualValues(t, 50, cfg.Tools.Query.DefaultLimit)
	assert.Equal(t, []string{"billing"}, cfg.Policy.ExtraProtected)

	yamlPath := writeFile(t, "toolgate.yaml", `
notebook:
  backend: file
  path: /var/lib/toolgate/notebook.json
media:
  ttl: 60
`)
	cfg, err = Load(yamlPath)
	require.NoError(t, err)
	assert.Equal(t, NotebookFile, cfg.Notebook.Backend)
	assert.Equal(t, "/var/lib/toolgate/notebook.json", cfg.Notebook.Path)
	assert.Equal(t, 60, cfg.Media.TTL)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadErrors(t *testing.T) {
	clearEnv(t)

	_, err := Load(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err, "explicit path must exist")

	_, err = Load(writeFile(t, "toolgate.ini", "x=1"))
	assert.ErrorContains(t, err, "unsupported config format")

	_, err = Load(writeFile(t, "toolgate.json", `{"stroe": {}}`))
	assert.Error(t, err, "unknown keys are rejected")

	_, err = Load(writeFile(t, "toolgate.yaml", "store: [unclosed"))
	assert.Error(t, err)
}

func TestLoadDefaultPathMissing(t *testing.T) {
	clearEnv(t)
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv(EnvBraveAPIKey, "env-key")
	t.Setenv(EnvLogLevel, "trace")
	t.Setenv(EnvImageAPIKey, "img-key")

	cfg, err := Load(writeFile(t, "toolgate.json", `{"tools": {"web": {"braveApiKey": "file-key"}}}`))
	require.NoError(t, err)
	assert.Equal(t, "env-key", cfg.Tools.Web.BraveAPIKey)
	assert.Equal(t, "trace", cfg.Logging.Level)
	assert.Equal(t, "img-key", cfg.Tools.Image.Default.APIKey)
}

func TestDotEnvNextToConfig(t *testing.T) {
	clearEnv(t)
	os.Unsetenv(EnvMongoURI)
	t.Cleanup(func() { os.Unsetenv(EnvMongoURI) })

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte(EnvMongoURI+"=mongodb://from-dotenv\n"), 0600))
	path := filepath.Join(dir, "toolgate.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"store": {"mode": "mongo"}}`), 0600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "mongodb://from-dotenv", cfg.Store.Mongo.URI)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"defaults", func(c *Config) {}, ""},
		{"bad mode", func(c *Config) { c.Store.Mode = "postgres" }, "store.mode"},
		{"mongo without uri", func(c *Config) { c.Store.Mode = StoreMongo }, "store.mongo.uri"},
		{"no sqlite path", func(c *Config) { c.Store.SQLite.Path = "" }, "store.sqlite.path"},
		{"file notebook without path", func(c *Config) { c.Notebook.Backend = NotebookFile }, "notebook.path"},
		{"bad notebook backend", func(c *Config) { c.Notebook.Backend = "redis" }, "notebook.backend"},
		{"limits inverted", func(c *Config) { c.Tools.Query.DefaultLimit = 900 }, "tools.query"},
		{"image without key", func(c *Config) { c.Tools.Image.Enabled = true }, "apiKey"},
		{"image bad provider", func(c *Config) {
			c.Tools.Image.Enabled = true
			c.Tools.Image.Default.APIKey = "k"
			c.Tools.Image.Default.Provider = "midjourney"
		}, "provider"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestSaveRoundTripWithBackups(t *testing.T) {
	clearEnv(t)
	dir := t.TempDir()

	for _, name := range []string{"toolgate.json", "toolgate.toml", "toolgate.yaml"} {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name)
			cfg := Default()
			cfg.Store.Mode = StoreMongo
			cfg.Store.Mongo.URI = "mongodb://saved"
			cfg.Policy.ExtraManaged = []string{"tasks"}
			require.NoError(t, cfg.Save(path))

			loaded, err := Load(path)
			require.NoError(t, err)
			assert.Equal(t, cfg, loaded)

			cfg.Logging.Level = "warn"
			require.NoError(t, cfg.Save(path))
			assert.FileExists(t, path+".bak")

			loaded, err = Load(path)
			require.NoError(t, err)
			assert.Equal(t, "warn", loaded.Logging.Level)
		})
	}
}

func TestBackupRotation(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	for i := 0; i < 5; i++ {
		require.NoError(t, BackupAndWrite(path, []byte{byte('0' + i)}, 3))
	}

	read := func(p string) string {
		data, err := os.ReadFile(p)
		require.NoError(t, err)
		return string(data)
	}
	assert.Equal(t, "4", read(path))
	assert.Equal(t, "3", read(path+".bak"))
	assert.Equal(t, "2", read(path+".bak.1"))
	assert.Equal(t, "1", read(path+".bak.2"))
	assert.NoFileExists(t, path+".bak.3")
}

func TestAtomicWriteJSONLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "out.json")
	require.NoError(t, AtomicWriteJSON(path, map[string]int{"a": 1}, 0600))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "out.json", entries[0].Name())
}
