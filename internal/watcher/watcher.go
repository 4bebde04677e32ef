// Package watcher reports debounced changes to lesson files.
package watcher

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/conneroisu/livecode/internal/logging"
)

// Op is the kind of change seen for a path.
type Op int

const (
	OpCreate Op = iota
	OpWrite
	OpRemove
	OpRename
)

func (op Op) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpWrite:
		return "write"
	case OpRemove:
		return "remove"
	case OpRename:
		return "rename"
	}
	return "unknown"
}

// Change is one path in a delivered batch.
type Change struct {
	Path    string
	Op      Op
	ModTime time.Time
}

// Filter reports whether changes to path are of interest. A change is
// delivered only if every filter accepts it.
type Filter func(path string) bool

// Watcher watches a directory tree and delivers changes in batches once
// the tree has been quiet for the debounce interval.
type Watcher struct {
	fs       *fsnotify.Watcher
	debounce time.Duration
	filters  []Filter
	logger   logging.Logger
}

// New creates a watcher. Nothing is watched until Watch is called.
func New(debounce time.Duration, logger logging.Logger, filters ...Filter) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("creating fsnotify watcher: %w", err)
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Watcher{
		fs:       fsw,
		debounce: debounce,
		filters:  filters,
		logger:   logger.WithComponent("watcher"),
	}, nil
}

// Watch adds root and every non-hidden directory below it.
func (w *Watcher) Watch(root string) error {
	dir, err := directory(root)
	if err != nil {
		return err
	}
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != dir && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.fs.Add(path)
	})
}

// Watched lists the directories currently watched.
func (w *Watcher) Watched() []string { return w.fs.WatchList() }

// Close stops the underlying watcher; a running Run returns.
func (w *Watcher) Close() error { return w.fs.Close() }

// Run delivers batches to fn until ctx is done or the watcher is closed.
// fn runs on the calling goroutine.
func (w *Watcher) Run(ctx context.Context, fn func([]Change)) {
	pending := make(batch)
	timer := time.NewTimer(w.debounce)
	timer.Stop()
	defer timer.Stop()
	var fire <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.fs.Events:
			if !ok {
				return
			}
			change, keep := w.change(ctx, ev)
			if !keep {
				continue
			}
			pending.add(change)
			timer.Reset(w.debounce)
			fire = timer.C
		case <-fire:
			fire = nil
			if changes := pending.drain(); len(changes) > 0 {
				fn(changes)
			}
		case err, ok := <-w.fs.Errors:
			if !ok {
				return
			}
			w.logger.Warn(ctx, err, "file watcher error")
		}
	}
}

// change converts an fsnotify event. Directories are never reported;
// created ones are watched instead.
func (w *Watcher) change(ctx context.Context, ev fsnotify.Event) (Change, bool) {
	info, statErr := os.Stat(ev.Name)
	if statErr == nil && info.IsDir() {
		if ev.Has(fsnotify.Create) {
			if err := w.Watch(ev.Name); err != nil {
				w.logger.Warn(ctx, err, "cannot watch new directory", "path", ev.Name)
			}
		}
		return Change{}, false
	}
	for _, accept := range w.filters {
		if !accept(ev.Name) {
			return Change{}, false
		}
	}

	c := Change{Path: ev.Name, Op: opOf(ev.Op)}
	if statErr == nil {
		c.ModTime = info.ModTime()
	}
	return c, true
}

func opOf(op fsnotify.Op) Op {
	switch {
	case op.Has(fsnotify.Create):
		return OpCreate
	case op.Has(fsnotify.Remove):
		return OpRemove
	case op.Has(fsnotify.Rename):
		return OpRename
	}
	return OpWrite
}

// batch holds the latest change per path.
type batch map[string]Change

func (b batch) add(c Change) {
	// A file created and then written within one window is still new.
	if prev, ok := b[c.Path]; ok && prev.Op == OpCreate && c.Op == OpWrite {
		c.Op = OpCreate
	}
	b[c.Path] = c
}

// drain empties b and returns its changes ordered by path.
func (b batch) drain() []Change {
	out := make([]Change, 0, len(b))
	for path, c := range b {
		out = append(out, c)
		delete(b, path)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out
}

func directory(path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", fmt.Errorf("invalid path: empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("invalid path %q: %w", path, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("invalid path %q: %w", path, err)
	}
	if !info.IsDir() {
		return "", fmt.Errorf("invalid path %q: not a directory", path)
	}
	return abs, nil
}

// LessonFiles accepts the files a lesson is built from.
func LessonFiles(path string) bool {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".html", ".htm", ".yml", ".yaml", ".css", ".js":
		return true
	}
	return false
}

// Visible rejects dot files and editor backups.
func Visible(path string) bool {
	base := filepath.Base(path)
	return !strings.HasPrefix(base, ".") && !strings.HasSuffix(base, "~")
}
