package media

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/roelfdiedericks/toolgate/internal/logging"
	"github.com/roelfdiedericks/toolgate/internal/paths"
)

const (
	// DefaultMediaDir is used when no directory is configured.
	DefaultMediaDir = "~/.toolgate/media"

	// DefaultTTL is the default time-to-live for temporary files (10 minutes)
	DefaultTTL = 10 * time.Minute

	// MaxMediaBytes is the default maximum file size (20MB)
	MaxMediaBytes = 20 * 1024 * 1024

	// CleanupIntervalDivisor sets the cleanup interval to TTL / divisor.
	CleanupIntervalDivisor = 2

	// TempDir is the only subdirectory subject to TTL cleanup. Generated
	// artifacts are permanent.
	TempDir = "tmp"

	// GeneratedDir holds generated images.
	GeneratedDir = "generated"
)

// MediaStore manages media files under a base directory. Files under tmp/
// expire after the TTL; everything else is kept.
type MediaStore struct {
	baseDir string
	ttl     time.Duration
	maxSize int64
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
}

// Config configures the MediaStore
type Config struct {
	Dir     string `json:"dir" toml:"dir" yaml:"dir"`              // Base directory
	TTL     int    `json:"ttl" toml:"ttl" yaml:"ttl"`              // TTL in seconds for tmp/ (default: 600)
	MaxSize int    `json:"maxSize" toml:"max_size" yaml:"maxSize"` // Max file size in bytes (default: 20MB)
}

// NewMediaStore creates the base directory and returns a store. ~ is
// expanded to the user's home directory.
func NewMediaStore(cfg Config) (*MediaStore, error) {
	dir := cfg.Dir
	if dir == "" {
		dir = DefaultMediaDir
	}

	ttl := time.Duration(cfg.TTL) * time.Second
	if ttl == 0 {
		ttl = DefaultTTL
	}

	maxSize := int64(cfg.MaxSize)
	if maxSize == 0 {
		maxSize = MaxMediaBytes
	}

	dir, err := paths.ExpandTilde(dir)
	if err != nil {
		return nil, err
	}
	dir = filepath.Clean(dir)

	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create media directory: %w", err)
	}

	store := &MediaStore{
		baseDir: dir,
		ttl:     ttl,
		maxSize: maxSize,
		stopCh:  make(chan struct{}),
	}

	logging.L_info("media: store initialized",
		"dir", dir,
		"ttl", ttl.String(),
		"maxSize", maxSize,
	)
	return store, nil
}

// Start begins the background cleanup of tmp/.
func (s *MediaStore) Start() {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	cleanupInterval := s.ttl / CleanupIntervalDivisor
	if cleanupInterval < time.Minute {
		cleanupInterval = time.Minute
	}

	logging.L_debug("media: starting cleanup goroutine", "interval", cleanupInterval.String())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(cleanupInterval)
		defer ticker.Stop()

		if _, err := s.CleanExpired(); err != nil {
			logging.L_warn("media: initial cleanup error", "error", err)
		}

		for {
			select {
			case <-ticker.C:
				if _, err := s.CleanExpired(); err != nil {
					logging.L_warn("media: cleanup error", "error", err)
				}
			case <-s.stopCh:
				logging.L_debug("media: cleanup goroutine stopped")
				return
			}
		}
	}()
}

// Close stops the cleanup goroutine and waits for it to finish.
func (s *MediaStore) Close() {
	s.mu.Lock()
	select {
	case <-s.stopCh:
	default:
		close(s.stopCh)
	}
	s.mu.Unlock()
	s.wg.Wait()
	logging.L_debug("media: store closed")
}

// Save writes data to a new uniquely named file in subdir. It returns the
// absolute path and the path relative to the base directory.
func (s *MediaStore) Save(data []byte, subdir, ext string) (absPath string, relPath string, err error) {
	if int64(len(data)) > s.maxSize {
		return "", "", fmt.Errorf("file size %d exceeds limit %d", len(data), s.maxSize)
	}
	if subdir == "" || filepath.IsAbs(subdir) || strings.Contains(subdir, "..") {
		return "", "", fmt.Errorf("invalid subdirectory %q", subdir)
	}
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Join(s.baseDir, subdir)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", "", fmt.Errorf("failed to create subdirectory: %w", err)
	}

	filename := uuid.New().String() + ext
	absPath = filepath.Join(dir, filename)
	if err := os.WriteFile(absPath, data, 0600); err != nil {
		return "", "", fmt.Errorf("failed to write file: %w", err)
	}
	relPath = filepath.ToSlash(filepath.Join(subdir, filename))

	logging.L_debug("media: saved file",
		"relPath", relPath,
		"size", len(data),
	)
	return absPath, relPath, nil
}

// AbsolutePath resolves a path relative to the base directory, refusing
// anything that escapes it.
func (s *MediaStore) AbsolutePath(relPath string) (string, error) {
	if relPath == "" {
		return "", fmt.Errorf("empty path")
	}
	if filepath.IsAbs(relPath) {
		return "", fmt.Errorf("absolute paths are not allowed: %s", relPath)
	}
	abs := filepath.Join(s.baseDir, filepath.FromSlash(relPath))
	rel, err := filepath.Rel(s.baseDir, abs)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("path outside media directory: %s", relPath)
	}
	return abs, nil
}

// ReadFile returns the contents of a stored file.
func (s *MediaStore) ReadFile(relPath string) ([]byte, error) {
	abs, err := s.AbsolutePath(relPath)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, fmt.Errorf("failed to read media file: %w", err)
	}
	return data, nil
}

// Remove deletes a stored file.
func (s *MediaStore) Remove(relPath string) error {
	abs, err := s.AbsolutePath(relPath)
	if err != nil {
		return err
	}
	return os.Remove(abs)
}

// BaseDir returns the base directory of the media store.
func (s *MediaStore) BaseDir() string {
	return s.baseDir
}

// CleanExpired removes files under tmp/ older than the TTL and returns how
// many were removed.
func (s *MediaStore) CleanExpired() (int, error) {
	now := time.Now()
	cutoff := now.Add(-s.ttl)
	removed := 0
	tmpDir := filepath.Join(s.baseDir, TempDir)

	if _, err := os.Stat(tmpDir); os.IsNotExist(err) {
		return 0, nil
	}

	err := filepath.Walk(tmpDir, func(path string, info os.FileInfo, err error) error {
		if err != nil || info.IsDir() {
			return nil
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(path); err != nil {
				logging.L_trace("media: failed to remove expired file", "path", path, "error", err)
			} else {
				removed++
				logging.L_trace("media: removed expired file", "path", path, "age", now.Sub(info.ModTime()).String())
			}
		}
		return nil
	})

	if removed > 0 {
		logging.L_debug("media: cleanup completed", "removed", removed)
	}
	return removed, err
}
