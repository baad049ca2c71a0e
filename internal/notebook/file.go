package notebook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/roelfdiedericks/toolgate/internal/config"
)

// FileBackend stores the record as a JSON file, replaced atomically on
// every save.
type FileBackend struct {
	path string
}

// NewFileBackend returns a backend writing to path.
func NewFileBackend(path string) *FileBackend {
	return &FileBackend{path: path}
}

func (b *FileBackend) Load(ctx context.Context) (Record, bool, error) {
	if err := ctx.Err(); err != nil {
		return Record{}, false, err
	}
	data, err := os.ReadFile(b.path)
	if errors.Is(err, os.ErrNotExist) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("failed to read %s: %w", b.path, err)
	}

	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, false, fmt.Errorf("%w: %s: %v", ErrCorrupt, b.path, err)
	}
	return rec, true, nil
}

func (b *FileBackend) Save(ctx context.Context, rec Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return config.AtomicWriteJSON(b.path, rec, 0600)
}
