package rules

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// Store owns the current rule generation for a workbook path. Reads go
// through an atomic pointer so checks never observe a half-loaded set;
// loads are serialized by a mutex.
type Store struct {
	path   string
	logger *slog.Logger

	mu      sync.Mutex // guards loads
	current atomic.Pointer[RuleSet]
}

func NewStore(path string, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{path: path, logger: logger}
}

// Path returns the workbook path the store reads from.
func (s *Store) Path() string { return s.path }

// Cached returns the current generation, loading on first use and
// reloading when the workbook's mtime has advanced. A failed reload
// keeps the previous generation.
func (s *Store) Cached() (*RuleSet, error) {
	cur := s.current.Load()
	if cur == nil {
		return s.Reload()
	}

	changed, err := s.HasChanged()
	if err != nil {
		// Treat a stat failure as "unchanged": keep serving the last
		// good generation.
		s.logger.Warn("rules mtime check failed", "path", s.path, "error", err)
		return cur, nil
	}
	if !changed {
		return cur, nil
	}

	rs, err := s.Reload()
	if err != nil {
		s.logger.Error("rules reload failed, keeping previous generation",
			"path", s.path, "error", err)
		return cur, nil
	}
	return rs, nil
}

// Reload forces a fresh load regardless of mtime.
func (s *Store) Reload() (*RuleSet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rs, err := LoadFile(s.path, s.logger)
	if err != nil {
		return nil, err
	}
	s.current.Store(rs)
	s.logger.Info("rules loaded",
		"path", s.path,
		"rules", len(rs.Rules),
		"enabled", len(rs.Enabled()),
		"language_policy", rs.Policy != nil)
	return rs, nil
}

// HasChanged reports whether the workbook mtime differs from the loaded
// generation's.
func (s *Store) HasChanged() (bool, error) {
	cur := s.current.Load()
	if cur == nil {
		return true, nil
	}
	info, err := os.Stat(s.path)
	if err != nil {
		return false, fmt.Errorf("stat rules file: %w", err)
	}
	return !info.ModTime().Equal(cur.FileModified), nil
}

// Watch reloads the workbook on filesystem write/rename events until ctx
// is cancelled. Reload failures are logged and the previous generation
// stays in place.
func (s *Store) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create rules watcher: %w", err)
	}
	defer watcher.Close()

	// Watch the directory so editors that rename-into-place still fire.
	dir := filepath.Dir(s.path)
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("watch rules dir %q: %w", dir, err)
	}

	target := filepath.Clean(s.path)
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != target {
				continue
			}
			if !ev.Has(fsnotify.Write) && !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Rename) {
				continue
			}
			if _, err := s.Reload(); err != nil {
				s.logger.Error("rules hot reload failed", "path", s.path, "error", err)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("rules watcher error", "error", err)
		}
	}
}
