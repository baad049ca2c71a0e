package artifacts

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roelfdiedericks/toolgate/internal/storage"
)

func newStore(t *testing.T) *SQLiteStore {
	t.Helper()
	db, err := storage.Open(storage.Config{Path: filepath.Join(t.TempDir(), "art.db")})
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewSQLiteStore(db.SQL())
}

func TestRecordAndGet(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	rec, err := s.Record(ctx, Record{
		ChatID:    "chat-1",
		MessageID: "msg-1",
		Filename:  "cat.png",
		Path:      "generated/cat.png",
		MimeType:  "image/png",
		Size:      42,
		Prompt:    "a cat",
		Model:     "gpt-image-1",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, rec.ID)
	assert.Equal(t, "image", rec.Kind)

	got, err := s.Get(ctx, rec.ID)
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, "cat.png", got.Filename)
	assert.Equal(t, "generated/cat.png", got.Path)
	assert.Equal(t, int64(42), got.Size)
	assert.Empty(t, got.SourceID)
	assert.Equal(t, rec.CreatedAt.UnixMilli(), got.CreatedAt.UnixMilli())
}

func TestGetMissing(t *testing.T) {
	_, err := newStore(t).Get(context.Background(), "nope")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestRecordRequiresIdentity(t *testing.T) {
	_, err := newStore(t).Record(context.Background(), Record{Filename: "x.png"})
	assert.Error(t, err)
}

func TestListByChat(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	base := time.Now()

	first, err := s.Record(ctx, Record{ChatID: "c", MessageID: "m1", Filename: "a.png", Path: "generated/a.png", MimeType: "image/png", CreatedAt: base})
	require.NoError(t, err)
	second, err := s.Record(ctx, Record{ChatID: "c", MessageID: "m2", Filename: "b.png", Path: "generated/b.png", MimeType: "image/png", SourceID: first.ID, CreatedAt: base.Add(time.Second)})
	require.NoError(t, err)
	_, err = s.Record(ctx, Record{ChatID: "other", MessageID: "m3", Filename: "c.png", Path: "generated/c.png", MimeType: "image/png"})
	require.NoError(t, err)

	list, err := s.ListByChat(ctx, "c", 0)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[0].SourceID)
	assert.Equal(t, first.ID, list[1].ID)
}
