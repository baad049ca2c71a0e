// Package config loads the toolgate configuration file.
package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dario.cat/mergo"
	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/roelfdiedericks/toolgate/internal/logging"
	"github.com/roelfdiedericks/toolgate/internal/media"
	"github.com/roelfdiedericks/toolgate/internal/paths"
	"github.com/roelfdiedericks/toolgate/internal/policy"
	"github.com/roelfdiedericks/toolgate/internal/storage"
	toolsconfig "github.com/roelfdiedericks/toolgate/internal/tools/config"
)

// Environment overrides, applied after the file is merged.
const (
	EnvBraveAPIKey = "TOOLGATE_BRAVE_API_KEY"
	EnvImageAPIKey = "TOOLGATE_IMAGE_API_KEY"
	EnvMongoURI    = "TOOLGATE_MONGO_URI"
	EnvLogLevel    = "TOOLGATE_LOG_LEVEL"
)

// Store modes.
const (
	StoreMemory = "memory"
	StoreMongo  = "mongo"
)

// Notebook backends.
const (
	NotebookSQLite = "sqlite"
	NotebookFile   = "file"
)

// Config represents the toolgate configuration
type Config struct {
	Logging  LoggingConfig           `json:"logging" toml:"logging" yaml:"logging"`
	Store    StoreConfig             `json:"store" toml:"store" yaml:"store"`
	Policy   policy.Config           `json:"policy" toml:"policy" yaml:"policy"`
	Notebook NotebookConfig          `json:"notebook" toml:"notebook" yaml:"notebook"`
	Media    media.Config            `json:"media" toml:"media" yaml:"media"`
	Tools    toolsconfig.ToolsConfig `json:"tools" toml:"tools" yaml:"tools"`
}

type LoggingConfig struct {
	Level      string `json:"level" toml:"level" yaml:"level"` // trace, debug, info, warn, error
	ShowCaller bool   `json:"showCaller,omitempty" toml:"show_caller" yaml:"showCaller,omitempty"`
}

// StoreConfig selects the document store. The SQLite database is always
// opened; it holds the notebook, the artifacts and the sql_query tables.
type StoreConfig struct {
	Mode      string         `json:"mode" toml:"mode" yaml:"mode"` // memory or mongo
	Mongo     MongoConfig    `json:"mongo" toml:"mongo" yaml:"mongo"`
	SQLite    storage.Config `json:"sqlite" toml:"sqlite" yaml:"sqlite"`
	EnableSQL bool           `json:"enableSql,omitempty" toml:"enable_sql" yaml:"enableSql,omitempty"` // register sql_query
}

type MongoConfig struct {
	URI            string `json:"uri" toml:"uri" yaml:"uri"`
	Database       string `json:"database" toml:"database" yaml:"database"`
	ConnectTimeout int    `json:"connectTimeout,omitempty" toml:"connect_timeout" yaml:"connectTimeout,omitempty"` // seconds
}

type NotebookConfig struct {
	Backend         string `json:"backend" toml:"backend" yaml:"backend"` // sqlite or file
	Path            string `json:"path,omitempty" toml:"path" yaml:"path,omitempty"`
	CoreInstruction string `json:"coreInstruction,omitempty" toml:"core_instruction" yaml:"coreInstruction,omitempty"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Logging: LoggingConfig{Level: "info"},
		Store: StoreConfig{
			Mode: StoreMemory,
			Mongo: MongoConfig{
				Database:       "toolgate",
				ConnectTimeout: 10,
			},
			SQLite: storage.Config{
				Path:        "~/.toolgate/toolgate.db",
				BusyTimeout: 5000,
			},
		},
		Notebook: NotebookConfig{Backend: NotebookSQLite},
		Media: media.Config{
			Dir:     media.DefaultMediaDir,
			TTL:     int(media.DefaultTTL.Seconds()),
			MaxSize: media.MaxMediaBytes,
		},
		Tools: toolsconfig.ToolsConfig{
			Web: toolsconfig.WebToolsConfig{
				FetchMaxLength: 10000,
				CacheTTL:       600,
			},
			Query: toolsconfig.QueryToolsConfig{
				DefaultLimit: 50,
				MaxLimit:     500,
				MaxRows:      500,
			},
		},
	}
}

// Load reads path and merges it over the defaults. With an empty path the
// file is searched for with paths.ConfigPath; finding none is not an error.
// A .env file next to the config file or in the working directory is
// loaded before the environment overrides are applied.
func Load(path string) (*Config, error) {
	if path == "" {
		found, err := paths.ConfigPath()
		if err != nil {
			return nil, err
		}
		path = found
	}

	cfg := Default()
	if path == "" {
		logging.L_debug("config: no config file, using defaults")
		if base, err := paths.BaseDir(); err == nil {
			loadDotEnv(filepath.Join(base, ".env"), ".env")
		}
		cfg.applyEnv()
		return cfg, nil
	}

	path, err := paths.ExpandTilde(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	var file Config
	if err := decode(path, data, &file); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := mergo.Merge(cfg, file, mergo.WithOverride); err != nil {
		return nil, fmt.Errorf("failed to merge %s: %w", path, err)
	}
	logging.L_debug("config: loaded", "path", path)

	loadDotEnv(filepath.Join(filepath.Dir(path), ".env"), ".env")
	cfg.applyEnv()
	return cfg, nil
}

func decode(path string, data []byte, out *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", "":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		return dec.Decode(out)
	case ".toml":
		md, err := toml.Decode(string(data), out)
		if err != nil {
			return err
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			logging.L_warn("config: unknown keys ignored", "keys", fmt.Sprint(undecoded))
		}
		return nil
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		return dec.Decode(out)
	default:
		return fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
}

func encode(path string, cfg *Config) ([]byte, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json", "":
		return json.MarshalIndent(cfg, "", "  ")
	case ".toml":
		var buf bytes.Buffer
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return nil, err
		}
		return buf.Bytes(), nil
	case ".yaml", ".yml":
		return yaml.Marshal(cfg)
	default:
		return nil, fmt.Errorf("unsupported config format %q", filepath.Ext(path))
	}
}

// loadDotEnv loads each existing file. Variables already set in the
// environment are kept.
func loadDotEnv(files ...string) {
	for _, p := range files {
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			logging.L_warn("config: failed to load env file", "path", p, "error", err)
			continue
		}
		logging.L_debug("config: loaded env file", "path", p)
	}
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvBraveAPIKey); v != "" {
		c.Tools.Web.BraveAPIKey = v
	}
	if v := os.Getenv(EnvImageAPIKey); v != "" {
		c.Tools.Image.Default.APIKey = v
	}
	if v := os.Getenv(EnvMongoURI); v != "" {
		c.Store.Mongo.URI = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Logging.Level = v
	}
}

// Validate checks that the configuration can be used to start the gateway.
func (c *Config) Validate() error {
	var errs []error

	switch c.Store.Mode {
	case StoreMemory:
	case StoreMongo:
		if c.Store.Mongo.URI == "" {
			errs = append(errs, fmt.Errorf("store.mongo.uri is required for mongo mode (or set %s)", EnvMongoURI))
		}
		if c.Store.Mongo.Database == "" {
			errs = append(errs, errors.New("store.mongo.database is required for mongo mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.mode must be %q or %q, got %q", StoreMemory, StoreMongo, c.Store.Mode))
	}

	if c.Store.SQLite.Path == "" {
		errs = append(errs, errors.New("store.sqlite.path is required"))
	}

	switch c.Notebook.Backend {
	case NotebookSQLite:
	case NotebookFile:
		if c.Notebook.Path == "" {
			errs = append(errs, errors.New("notebook.path is required for the file backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("notebook.backend must be %q or %q, got %q", NotebookSQLite, NotebookFile, c.Notebook.Backend))
	}

	if c.Media.Dir == "" {
		errs = append(errs, errors.New("media.dir is required"))
	}

	q := c.Tools.Query
	if q.DefaultLimit <= 0 || q.MaxLimit <= 0 || q.DefaultLimit > q.MaxLimit {
		errs = append(errs, fmt.Errorf("tools.query limits invalid: defaultLimit %d, maxLimit %d", q.DefaultLimit, q.MaxLimit))
	}

	if img := c.Tools.Image; img.Enabled {
		switch strings.ToLower(img.Default.Provider) {
		case "", "openai", "xai":
		default:
			errs = append(errs, fmt.Errorf("tools.image.default.provider unknown: %q", img.Default.Provider))
		}
		if img.Default.APIKey == "" {
			errs = append(errs, fmt.Errorf("tools.image.default.apiKey is required when image tools are enabled (or set %s)", EnvImageAPIKey))
		}
	}

	return errors.Join(errs...)
}

// Save writes the configuration to path in the format given by its
// extension, keeping a rotated backup of the previous file.
func (c *Config) Save(path string) error {
	path, err := paths.ExpandTilde(path)
	if err != nil {
		return err
	}
	data, err := encode(path, c)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}
	return BackupAndWrite(path, data, DefaultBackupCount)
}
