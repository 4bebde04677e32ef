package lesson

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/conneroisu/livecode/internal/errors"
	"github.com/conneroisu/livecode/internal/logging"
	"github.com/conneroisu/livecode/internal/watcher"
)

// Store holds the lessons found under a root directory.
type Store struct {
	root     string
	logger   logging.Logger
	mu       sync.RWMutex
	modules  map[string]*Module
	failures map[string]error
	onChange []func(name string)
}

// NewStore creates an empty store over root. Call Load to scan it.
func NewStore(root string, logger logging.Logger) *Store {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Store{
		root:     root,
		logger:   logger.WithComponent("lessons"),
		modules:  make(map[string]*Module),
		failures: make(map[string]error),
	}
}

// Root returns the lessons directory.
func (s *Store) Root() string { return s.root }

// Load scans every subdirectory of the root that contains a page. Lessons
// that fail to load are logged and remembered in Failures.
func (s *Store) Load(ctx context.Context) error {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return errors.WrapIO(err, errors.ErrCodeFileNotFound, "reading lessons directory").
			WithLocation(s.root, 0, 0)
	}

	modules := make(map[string]*Module)
	failures := make(map[string]error)
	for _, entry := range entries {
		if !entry.IsDir() || strings.HasPrefix(entry.Name(), ".") {
			continue
		}
		dir := filepath.Join(s.root, entry.Name())
		if _, err := os.Stat(filepath.Join(dir, PageFile)); err != nil {
			continue
		}
		mod, err := Load(dir)
		if err != nil {
			s.logger.Warn(ctx, err, "skipping lesson", "lesson", entry.Name())
			failures[entry.Name()] = err
			continue
		}
		modules[mod.Name] = mod
	}

	s.mu.Lock()
	s.modules = modules
	s.failures = failures
	s.mu.Unlock()

	s.logger.Info(ctx, "lessons loaded", "count", len(modules), "failed", len(failures), "root", s.root)
	return nil
}

// Get returns the lesson called name.
func (s *Store) Get(name string) (*Module, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	mod, ok := s.modules[name]
	if !ok {
		return nil, errors.ErrLessonNotFound(name)
	}
	return mod, nil
}

// List returns the loaded lessons sorted by name.
func (s *Store) List() []*Module {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Module, 0, len(s.modules))
	for _, mod := range s.modules {
		out = append(out, mod)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Failures returns the load error of every lesson that was skipped.
func (s *Store) Failures() map[string]error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]error, len(s.failures))
	for k, v := range s.failures {
		out[k] = v
	}
	return out
}

// OnChange registers fn to be called with the name of every lesson that is
// reloaded or removed.
func (s *Store) OnChange(fn func(name string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onChange = append(s.onChange, fn)
}

// Reload reloads a single lesson. A lesson whose directory or page is gone
// is dropped.
func (s *Store) Reload(ctx context.Context, name string) error {
	dir := filepath.Join(s.root, name)
	mod, err := Load(dir)

	s.mu.Lock()
	switch {
	case err == nil:
		s.modules[name] = mod
		delete(s.failures, name)
	case errors.IsNotFound(err):
		delete(s.modules, name)
		delete(s.failures, name)
	default:
		// Keep serving the last good version.
		s.failures[name] = err
	}
	listeners := append([]func(string){}, s.onChange...)
	s.mu.Unlock()

	if err != nil && !errors.IsNotFound(err) {
		s.logger.Warn(ctx, err, "lesson reload failed", "lesson", name)
		return err
	}

	s.logger.Info(ctx, "lesson reloaded", "lesson", name, "present", err == nil)
	for _, fn := range listeners {
		fn(name)
	}
	return nil
}

// Watch reloads lessons when their files change until ctx is done.
func (s *Store) Watch(ctx context.Context, debounce time.Duration) error {
	w, err := watcher.New(debounce, s.logger, watcher.Visible, watcher.LessonFiles)
	if err != nil {
		return errors.WrapIO(err, errors.ErrCodeFileNotFound, "starting lesson watcher")
	}
	if err := w.Watch(s.root); err != nil {
		_ = w.Close()
		return errors.WrapIO(err, errors.ErrCodeFileNotFound, "watching lessons directory").
			WithLocation(s.root, 0, 0)
	}

	go func() {
		defer w.Close()
		w.Run(ctx, func(changes []watcher.Change) {
			for _, name := range s.lessonsOf(changes) {
				_ = s.Reload(ctx, name)
			}
		})
	}()
	s.logger.Info(ctx, "watching lessons for changes", "root", s.root)
	return nil
}

// lessonsOf maps changed files to the lessons they belong to.
func (s *Store) lessonsOf(changes []watcher.Change) []string {
	root, err := filepath.Abs(s.root)
	if err != nil {
		return nil
	}
	seen := make(map[string]bool)
	var names []string
	for _, c := range changes {
		rel, err := filepath.Rel(root, c.Path)
		if err != nil || strings.HasPrefix(rel, "..") {
			continue
		}
		parts := strings.Split(filepath.ToSlash(rel), "/")
		if len(parts) < 2 || !ValidName(parts[0]) || seen[parts[0]] {
			continue
		}
		seen[parts[0]] = true
		names = append(names, parts[0])
	}
	sort.Strings(names)
	return names
}
