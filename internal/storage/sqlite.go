// Package storage opens the assistant's SQLite database and keeps its
// schema current.
//
// The same database backs the notebook, the artifact records and, in the
// relational deployment mode, the tables the model queries through the SQL
// gate.
package storage

import (
	"database/sql"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roelfdiedericks/toolgate/internal/logging"
	"github.com/roelfdiedericks/toolgate/internal/paths"
)

// Config configures Open.
type Config struct {
	Path        string `json:"path" toml:"path" yaml:"path"`
	BusyTimeout int    `json:"busyTimeout" toml:"busy_timeout" yaml:"busyTimeout"` // milliseconds
	WALMode     bool   `json:"walMode" toml:"wal_mode" yaml:"walMode"`
}

// DB is an open, migrated database.
type DB struct {
	db   *sql.DB
	path string
}

const currentSchemaVersion = 2

// Open creates the parent directory, opens the database and runs
// migrations.
func Open(cfg Config) (*DB, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}
	path, err := paths.ExpandTilde(cfg.Path)
	if err != nil {
		return nil, err
	}
	cfg.Path = path
	if err := paths.EnsureParentDir(cfg.Path); err != nil {
		return nil, err
	}

	timeout := cfg.BusyTimeout
	if timeout == 0 {
		timeout = 5000
	}
	dsn := fmt.Sprintf("%s?_busy_timeout=%d&_foreign_keys=on", cfg.Path, timeout)
	if cfg.WALMode {
		dsn += "&_journal_mode=WAL"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	d := &DB{db: db, path: cfg.Path}
	if err := d.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	logging.L_info("storage: database opened", "path", cfg.Path)
	return d, nil
}

// Migrate applies pending migrations.
func (d *DB) Migrate() error {
	var version int
	err := d.db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if err != nil {
		// no schema_version table yet
		version = 0
	}

	if version >= currentSchemaVersion {
		logging.L_debug("storage: schema up to date", "version", version)
		return nil
	}

	logging.L_info("storage: migrating schema", "from", version, "to", currentSchemaVersion)

	migrations := []func(*sql.DB) error{
		migrateV1,
		migrateV2,
	}
	for i := version; i < len(migrations); i++ {
		if err := migrations[i](d.db); err != nil {
			return fmt.Errorf("migration v%d failed: %w", i+1, err)
		}
		logging.L_debug("storage: applied migration", "version", i+1)
	}
	return nil
}

// migrateV1 creates the version table and the notebook key/value table.
func migrateV1(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at INTEGER NOT NULL
	);
	INSERT INTO schema_version (version, applied_at) VALUES (1, ?);

	CREATE TABLE IF NOT EXISTS agent_notebook (
		key TEXT PRIMARY KEY,
		value TEXT NOT NULL,
		updated_at INTEGER NOT NULL
	);
	`
	_, err := db.Exec(schema, time.Now().Unix())
	return err
}

// migrateV2 adds artifact records for generated images.
func migrateV2(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS artifacts (
		id TEXT PRIMARY KEY,
		chat_id TEXT NOT NULL,
		message_id TEXT NOT NULL,
		kind TEXT NOT NULL DEFAULT 'image',
		filename TEXT NOT NULL,
		path TEXT NOT NULL,
		mime_type TEXT NOT NULL,
		size INTEGER NOT NULL DEFAULT 0,
		prompt TEXT NOT NULL DEFAULT '',
		model TEXT NOT NULL DEFAULT '',
		source_id TEXT,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_artifacts_chat ON artifacts(chat_id, created_at);

	INSERT INTO schema_version (version, applied_at) VALUES (2, ?);
	`
	_, err := db.Exec(schema, time.Now().Unix())
	return err
}

// SQL returns the underlying connection pool.
func (d *DB) SQL() *sql.DB {
	return d.db
}

// Path returns the database file path.
func (d *DB) Path() string {
	return d.path
}

// Close closes the database.
func (d *DB) Close() error {
	logging.L_debug("storage: closing database")
	return d.db.Close()
}
