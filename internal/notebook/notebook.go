// Package notebook keeps the agent's persistent notebook: a free-text
// memory, a description of the tables it has created, and the standing
// instruction rendered into the system prompt.
package notebook

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	. "github.com/roelfdiedericks/toolgate/internal/logging"
)

// MaxMemoryLength is the memory limit in characters (Unicode code points).
const MaxMemoryLength = 4000

var (
	ErrMemoryTooLong = fmt.Errorf("memory exceeds %d characters", MaxMemoryLength)
	// ErrCorrupt is wrapped by backends when stored state cannot be decoded.
	ErrCorrupt = errors.New("notebook state is corrupt")
)

const (
	noMemories = "No memories saved yet."
	noSchema   = "No custom tables have been created yet."
)

// DefaultCoreInstruction is the standing instruction of a new notebook.
const DefaultCoreInstruction = `You have a personal notebook that persists between conversations.
Use update_memory to keep facts about the user that will matter later: preferences, people, plans and ongoing tasks. Keep it concise and rewrite it as a whole; it is limited to 4000 characters.
Whenever you create or change a table or collection, call update_db_schema with a short description of every custom table and its fields.`

// Record is the persisted notebook.
type Record struct {
	Memory          string    `json:"memory"`
	DBSchema        string    `json:"dbSchema"`
	CoreInstruction string    `json:"coreInstruction"`
	Enabled         bool      `json:"enabled"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// DefaultRecord returns the record a new notebook starts with.
func DefaultRecord() Record {
	return Record{
		CoreInstruction: DefaultCoreInstruction,
		Enabled:         true,
	}
}

// Backend persists the single notebook record.
type Backend interface {
	// Load returns the stored record; found is false when nothing is stored.
	Load(ctx context.Context) (rec Record, found bool, err error)
	Save(ctx context.Context, rec Record) error
}

// Notebook serialises read-modify-write cycles over a Backend. Writes
// replace the whole record; the last write wins.
type Notebook struct {
	mu       sync.Mutex
	backend  Backend
	defaults Record
	now      func() time.Time
}

// New returns a Notebook over backend.
func New(backend Backend) *Notebook {
	return &Notebook{
		backend:  backend,
		defaults: DefaultRecord(),
		now:      time.Now,
	}
}

// Read returns the record, creating it with defaults on first use.
func (n *Notebook) Read(ctx context.Context) (Record, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.load(ctx)
}

// load must be called with mu held.
func (n *Notebook) load(ctx context.Context) (Record, error) {
	rec, found, err := n.backend.Load(ctx)
	switch {
	case errors.Is(err, ErrCorrupt):
		L_warn("notebook: stored state is corrupt, resetting to defaults", "error", err)
	case err != nil:
		return Record{}, fmt.Errorf("failed to load notebook: %w", err)
	case found:
		return rec, nil
	}

	rec = n.defaults
	rec.UpdatedAt = n.now()
	if err := n.backend.Save(ctx, rec); err != nil {
		return Record{}, fmt.Errorf("failed to initialise notebook: %w", err)
	}
	L_debug("notebook: created with defaults")
	return rec, nil
}

func (n *Notebook) update(ctx context.Context, mutate func(*Record)) error {
	n.mu.Lock()
	defer n.mu.Unlock()

	rec, err := n.load(ctx)
	if err != nil {
		return err
	}
	mutate(&rec)
	rec.UpdatedAt = n.now()
	if err := n.backend.Save(ctx, rec); err != nil {
		return fmt.Errorf("failed to save notebook: %w", err)
	}
	return nil
}

// WriteMemory replaces the memory text.
func (n *Notebook) WriteMemory(ctx context.Context, text string) error {
	if count := utf8.RuneCountInString(text); count > MaxMemoryLength {
		return fmt.Errorf("%w (got %d)", ErrMemoryTooLong, count)
	}
	return n.update(ctx, func(r *Record) { r.Memory = text })
}

// WriteSchema replaces the schema description.
func (n *Notebook) WriteSchema(ctx context.Context, text string) error {
	return n.update(ctx, func(r *Record) { r.DBSchema = text })
}

// SetCoreInstruction replaces the standing instruction. An empty text
// restores the default.
func (n *Notebook) SetCoreInstruction(ctx context.Context, text string) error {
	if strings.TrimSpace(text) == "" {
		text = n.defaults.CoreInstruction
	}
	return n.update(ctx, func(r *Record) { r.CoreInstruction = text })
}

// SetEnabled turns prompt rendering on or off.
func (n *Notebook) SetEnabled(ctx context.Context, enabled bool) error {
	return n.update(ctx, func(r *Record) { r.Enabled = enabled })
}

// Render returns the notebook section of the system prompt, or "" when the
// notebook is disabled.
func (n *Notebook) Render(ctx context.Context) (string, error) {
	rec, err := n.Read(ctx)
	if err != nil {
		return "", err
	}
	return RenderRecord(rec), nil
}

// RenderRecord formats rec for the system prompt.
func RenderRecord(rec Record) string {
	if !rec.Enabled {
		return ""
	}

	// written text is rendered verbatim, placeholders only replace blanks
	memory := rec.Memory
	if strings.TrimSpace(memory) == "" {
		memory = noMemories
	}
	schema := rec.DBSchema
	if strings.TrimSpace(schema) == "" {
		schema = noSchema
	}

	var b strings.Builder
	b.WriteString("## Agent Notebook\n\n")
	if instr := strings.TrimSpace(rec.CoreInstruction); instr != "" {
		b.WriteString(instr)
		b.WriteString("\n\n")
	}
	b.WriteString("### Memory\n")
	b.WriteString(memory)
	b.WriteString("\n\n### Database Schema\n")
	b.WriteString(schema)
	b.WriteString("\n")
	return b.String()
}
