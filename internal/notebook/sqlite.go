package notebook

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"
)

// notebook fields as stored in the agent_notebook key/value table
const (
	keyMemory          = "memory"
	keyDBSchema        = "db_schema"
	keyCoreInstruction = "core_instruction"
	keyEnabled         = "enabled"
)

// SQLiteBackend stores the record in the agent_notebook table, one row per
// field. The table is created by the storage migrations.
type SQLiteBackend struct {
	db *sql.DB
}

// NewSQLiteBackend returns a backend over db.
func NewSQLiteBackend(db *sql.DB) *SQLiteBackend {
	return &SQLiteBackend{db: db}
}

func (b *SQLiteBackend) Load(ctx context.Context) (Record, bool, error) {
	rows, err := b.db.QueryContext(ctx, "SELECT key, value, updated_at FROM agent_notebook")
	if err != nil {
		return Record{}, false, err
	}
	defer rows.Close()

	var rec Record
	var latest int64
	found := false
	for rows.Next() {
		var key, value string
		var updated int64
		if err := rows.Scan(&key, &value, &updated); err != nil {
			return Record{}, false, err
		}
		found = true
		if updated > latest {
			latest = updated
		}

		switch key {
		case keyMemory:
			rec.Memory = value
		case keyDBSchema:
			rec.DBSchema = value
		case keyCoreInstruction:
			rec.CoreInstruction = value
		case keyEnabled:
			enabled, err := strconv.ParseBool(value)
			if err != nil {
				return Record{}, false, fmt.Errorf("%w: enabled=%q", ErrCorrupt, value)
			}
			rec.Enabled = enabled
		}
	}
	if err := rows.Err(); err != nil {
		return Record{}, false, err
	}
	if found {
		rec.UpdatedAt = time.UnixMilli(latest)
	}
	return rec, found, nil
}

func (b *SQLiteBackend) Save(ctx context.Context, rec Record) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO agent_notebook (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	updated := rec.UpdatedAt.UnixMilli()
	fields := [][2]string{
		{keyMemory, rec.Memory},
		{keyDBSchema, rec.DBSchema},
		{keyCoreInstruction, rec.CoreInstruction},
		{keyEnabled, strconv.FormatBool(rec.Enabled)},
	}
	for _, f := range fields {
		if _, err := stmt.ExecContext(ctx, f[0], f[1], updated); err != nil {
			return fmt.Errorf("failed to write %s: %w", f[0], err)
		}
	}
	return tx.Commit()
}
