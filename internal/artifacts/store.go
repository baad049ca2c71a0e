// Package artifacts records generated files so later tool calls can refer
// to them by id.
package artifacts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	. "github.com/roelfdiedericks/toolgate/internal/logging"
)

// ErrNotFound is returned by Get when no artifact has the id.
var ErrNotFound = errors.New("artifact not found")

// Record is one persisted artifact.
type Record struct {
	ID        string    `json:"id"`
	ChatID    string    `json:"chatId"`
	MessageID string    `json:"messageId"`
	Kind      string    `json:"kind"`
	Filename  string    `json:"filename"`
	Path      string    `json:"path"` // relative to the media store
	MimeType  string    `json:"mimeType"`
	Size      int64     `json:"size"`
	Prompt    string    `json:"prompt"`
	Model     string    `json:"model"`
	SourceID  string    `json:"sourceId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// SQLiteStore keeps artifact rows in the artifacts table.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLiteStore wraps a migrated database.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// Record inserts rec, assigning an id and creation time when missing, and
// returns the stored record.
func (s *SQLiteStore) Record(ctx context.Context, rec Record) (Record, error) {
	if rec.ChatID == "" || rec.MessageID == "" {
		return Record{}, fmt.Errorf("artifact requires chat and message ids")
	}
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	if rec.Kind == "" {
		rec.Kind = "image"
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}

	var source sql.NullString
	if rec.SourceID != "" {
		source = sql.NullString{String: rec.SourceID, Valid: true}
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO artifacts (id, chat_id, message_id, kind, filename, path, mime_type, size, prompt, model, source_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.ChatID, rec.MessageID, rec.Kind, rec.Filename, rec.Path, rec.MimeType,
		rec.Size, rec.Prompt, rec.Model, source, rec.CreatedAt.UnixMilli(),
	)
	if err != nil {
		return Record{}, fmt.Errorf("failed to record artifact: %w", err)
	}

	L_debug("artifacts: recorded", "id", rec.ID, "chat", rec.ChatID, "file", rec.Filename)
	return rec, nil
}

// Get returns the artifact with id, or ErrNotFound.
func (s *SQLiteStore) Get(ctx context.Context, id string) (Record, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+" WHERE id = ?", id)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if err != nil {
		return Record{}, fmt.Errorf("failed to load artifact: %w", err)
	}
	return rec, nil
}

// ListByChat returns a chat's artifacts, newest first.
func (s *SQLiteStore) ListByChat(ctx context.Context, chatID string, limit int) ([]Record, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, selectColumns+" WHERE chat_id = ? ORDER BY created_at DESC, id LIMIT ?", chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list artifacts: %w", err)
	}
	defer rows.Close()

	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan artifact: %w", err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

const selectColumns = `SELECT id, chat_id, message_id, kind, filename, path, mime_type, size, prompt, model, source_id, created_at FROM artifacts`

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (Record, error) {
	var (
		rec     Record
		source  sql.NullString
		created int64
	)
	err := row.Scan(&rec.ID, &rec.ChatID, &rec.MessageID, &rec.Kind, &rec.Filename, &rec.Path,
		&rec.MimeType, &rec.Size, &rec.Prompt, &rec.Model, &source, &created)
	if err != nil {
		return Record{}, err
	}
	rec.SourceID = source.String
	rec.CreatedAt = time.UnixMilli(created)
	return rec, nil
}
