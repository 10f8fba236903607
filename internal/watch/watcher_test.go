package watch

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aliskhannn/thumbnailer/internal/model"
)

// collect subscribes to dir and forwards every delivered event.
func collect(t *testing.T, dir string) (<-chan model.WatchEvent, *Watcher) {
	t.Helper()

	w, err := New(10 * time.Millisecond)
	require.NoError(t, err)
	t.Cleanup(func() { _ = w.Close() })

	events := make(chan model.WatchEvent, 1024)
	require.NoError(t, w.Subscribe(dir, func(err error, batch []model.WatchEvent) {
		for _, ev := range batch {
			events <- ev
		}
	}))

	// Give watcher time to start
	time.Sleep(50 * time.Millisecond)

	return events, w
}

// waitForEvent waits until want shows up on ch.
func waitForEvent(ch <-chan model.WatchEvent, want model.WatchEvent, timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		select {
		case ev := <-ch:
			if ev == want {
				return true
			}
		case <-deadline:
			return false
		}
	}
}

func TestWatcher_ReportsUpdates(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "photo.png")
	require.NoError(t, os.WriteFile(path, []byte("original"), 0o644))

	events, _ := collect(t, dir)

	require.NoError(t, os.WriteFile(path, []byte("modified"), 0o644))

	assert.True(t, waitForEvent(events, model.WatchEvent{Path: path, Type: model.ChangeUpdated}, 2*time.Second))
}

func TestWatcher_ReportsNewFilesInNewDirectories(t *testing.T) {
	dir := t.TempDir()
	events, _ := collect(t, dir)

	sub := filepath.Join(dir, "2024")
	require.NoError(t, os.Mkdir(sub, 0o755))
	require.True(t, waitForEvent(events, model.WatchEvent{Path: sub, Type: model.ChangeCreated}, 2*time.Second))

	path := filepath.Join(sub, "photo.png")
	require.NoError(t, os.WriteFile(path, []byte("new"), 0o644))

	assert.True(t, waitForEvent(events, model.WatchEvent{Path: path, Type: model.ChangeUpdated}, 2*time.Second))
}

func TestWatcher_ReportsDeletes(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "photo.png")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0o644))

	events, _ := collect(t, dir)

	require.NoError(t, os.Remove(path))

	assert.True(t, waitForEvent(events, model.WatchEvent{Path: path, Type: model.ChangeDeleted}, 2*time.Second))
}

func TestWatcher_BatchesEvents(t *testing.T) {
	dir := t.TempDir()

	w, err := New(200 * time.Millisecond)
	require.NoError(t, err)
	defer w.Close()

	batches := make(chan []model.WatchEvent, 16)
	require.NoError(t, w.Subscribe(dir, func(err error, batch []model.WatchEvent) {
		if err == nil {
			batches <- batch
		}
	}))
	time.Sleep(50 * time.Millisecond)

	for _, name := range []string{"a.png", "b.png", "c.png"} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("x"), 0o644))
	}

	select {
	case batch := <-batches:
		paths := map[string]bool{}
		for _, ev := range batch {
			paths[ev.Path] = true
		}
		assert.Len(t, paths, 3)
	case <-time.After(2 * time.Second):
		t.Fatal("no batch delivered")
	}
}

func TestSubscribe_Errors(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "photo.png")
	require.NoError(t, os.WriteFile(file, []byte("x"), 0o644))

	w, err := New(0)
	require.NoError(t, err)
	defer w.Close()

	noop := func(error, []model.WatchEvent) {}

	require.Error(t, w.Subscribe(filepath.Join(dir, "missing"), noop))

	w2, err := New(0)
	require.NoError(t, err)
	defer w2.Close()
	require.Error(t, w2.Subscribe(file, noop))

	w3, err := New(0)
	require.NoError(t, err)
	defer w3.Close()
	require.NoError(t, w3.Subscribe(dir, noop))
	require.Error(t, w3.Subscribe(dir, noop))
}

func TestClose_Idempotent(t *testing.T) {
	w, err := New(0)
	require.NoError(t, err)
	require.NoError(t, w.Subscribe(t.TempDir(), func(error, []model.WatchEvent) {}))

	assert.NoError(t, w.Close())
	assert.NoError(t, w.Close())
}

func TestChangeType(t *testing.T) {
	cases := map[fsnotify.Op]model.ChangeType{
		fsnotify.Write:                   model.ChangeUpdated,
		fsnotify.Create:                  model.ChangeCreated,
		fsnotify.Remove:                  model.ChangeDeleted,
		fsnotify.Rename:                  model.ChangeDeleted,
		fsnotify.Chmod:                   model.ChangeUnknown,
		fsnotify.Create | fsnotify.Write: model.ChangeCreated,
		fsnotify.Write | fsnotify.Remove: model.ChangeDeleted,
	}

	for op, want := range cases {
		assert.Equal(t, want, changeType(op), op.String())
	}
}

func TestNew_DefaultWindow(t *testing.T) {
	w, err := New(-time.Second)
	require.NoError(t, err)
	defer w.Close()

	assert.Equal(t, DefaultWindow, w.window)
}
