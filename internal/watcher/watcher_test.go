package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conneroisu/livecode/internal/logging"
)

func TestOpString(t *testing.T) {
	testCases := []struct {
		op       Op
		expected string
	}{
		{OpCreate, "create"},
		{OpWrite, "write"},
		{OpRemove, "remove"},
		{OpRename, "rename"},
		{Op(42), "unknown"},
	}

	for _, tc := range testCases {
		t.Run(tc.expected, func(t *testing.T) {
			assert.Equal(t, tc.expected, tc.op.String())
		})
	}
}

func TestFilters(t *testing.T) {
	assert.True(t, LessonFiles("lessons/intro/index.html"))
	assert.True(t, LessonFiles("lessons/intro/lesson.yml"))
	assert.True(t, LessonFiles("lessons/intro/LESSON.YAML"))
	assert.False(t, LessonFiles("lessons/intro/notes.txt"))

	assert.True(t, Visible("lessons/intro/index.html"))
	assert.False(t, Visible("lessons/intro/.index.html.swp"))
	assert.False(t, Visible("lessons/intro/index.html~"))
}

func TestBatch(t *testing.T) {
	b := make(batch)
	b.add(Change{Op: OpCreate, Path: "b/index.html"})
	b.add(Change{Op: OpWrite, Path: "a/lesson.yml"})
	b.add(Change{Op: OpWrite, Path: "b/index.html"})

	changes := b.drain()
	require.Len(t, changes, 2)
	assert.Equal(t, "a/lesson.yml", changes[0].Path)
	assert.Equal(t, "b/index.html", changes[1].Path)
	assert.Equal(t, OpCreate, changes[1].Op, "created then written is still a create")
	assert.Empty(t, b)

	b.add(Change{Op: OpWrite, Path: "a/lesson.yml"})
	b.add(Change{Op: OpRemove, Path: "a/lesson.yml"})
	assert.Equal(t, OpRemove, b.drain()[0].Op)
}

func TestWatch(t *testing.T) {
	w, err := New(10*time.Millisecond, nil)
	require.NoError(t, err)
	defer w.Close()

	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "intro", "assets"), 0o755))
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".git", "objects"), 0o755))

	require.NoError(t, w.Watch(root))
	watched := w.Watched()
	assert.Contains(t, watched, filepath.Join(root, "intro", "assets"))
	assert.NotContains(t, watched, filepath.Join(root, ".git"))

	assert.Error(t, w.Watch(filepath.Join(root, "missing")))
	assert.Error(t, w.Watch(""))

	file := filepath.Join(root, "index.html")
	require.NoError(t, os.WriteFile(file, []byte("<p></p>"), 0o644))
	assert.Error(t, w.Watch(file), "files are not directories")
}

func TestRunDeliversBatches(t *testing.T) {
	w, err := New(20*time.Millisecond, logging.Nop(), LessonFiles, Visible)
	require.NoError(t, err)
	defer w.Close()

	root := t.TempDir()
	require.NoError(t, w.Watch(root))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	batches := make(chan []Change, 10)
	done := make(chan struct{})
	go func() {
		defer close(done)
		w.Run(ctx, func(changes []Change) { batches <- changes })
	}()

	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, ".hidden.html"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "index.html"), []byte("<p></p>"), 0o644))

	select {
	case changes := <-batches:
		require.NotEmpty(t, changes)
		for _, c := range changes {
			assert.Equal(t, filepath.Join(root, "index.html"), c.Path)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("no batch delivered")
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
