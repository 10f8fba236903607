// Package watch delivers filesystem changes under a directory tree in batches.
// It recursively watches the tree with fsnotify, starts watching directories
// created later, and groups the events seen within a short window into one
// batch. Events are passed on as they come: nothing is merged or dropped.
package watch

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/aliskhannn/thumbnailer/internal/model"
)

// DefaultWindow is used when New is given a non-positive window.
const DefaultWindow = 50 * time.Millisecond

// Callback receives either a delivery error or a batch of events.
// Calls are made one at a time from the watcher goroutine.
type Callback func(err error, events []model.WatchEvent)

// Watcher is a batching filesystem watcher.
type Watcher struct {
	fw     *fsnotify.Watcher
	window time.Duration
	done   chan struct{}
	exited chan struct{}

	mu         sync.Mutex
	subscribed bool
	running    bool
	stopped    bool
}

// New creates a watcher that batches events over window.
func New(window time.Duration) (*Watcher, error) {
	if window <= 0 {
		window = DefaultWindow
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	return &Watcher{
		fw:     fw,
		window: window,
		done:   make(chan struct{}),
		exited: make(chan struct{}),
	}, nil
}

// Subscribe starts watching root recursively and calls cb for every batch.
// It returns once the initial directories are registered.
func (w *Watcher) Subscribe(root string, cb Callback) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return fmt.Errorf("watcher is closed")
	}
	if w.subscribed {
		return fmt.Errorf("watcher already subscribed")
	}
	w.subscribed = true

	absRoot, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("failed to resolve %s: %w", root, err)
	}

	info, err := os.Stat(absRoot)
	if err != nil {
		return fmt.Errorf("failed to stat %s: %w", absRoot, err)
	}
	if !info.IsDir() {
		return fmt.Errorf("%s is not a directory", absRoot)
	}

	if err := w.addTree(absRoot); err != nil {
		return err
	}

	w.running = true
	go w.run(cb)

	return nil
}

// addTree registers dir and every directory below it.
func (w *Watcher) addTree(dir string) error {
	return filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			if path == dir {
				return err
			}
			return nil // skip inaccessible paths
		}
		if !d.IsDir() {
			return nil
		}
		if err := w.fw.Add(path); err != nil {
			return fmt.Errorf("failed to watch %s: %w", path, err)
		}
		return nil
	})
}

func (w *Watcher) run(cb Callback) {
	defer close(w.exited)

	var (
		pending []model.WatchEvent
		timer   *time.Timer
		flush   <-chan time.Time
	)

	for {
		select {
		case ev, ok := <-w.fw.Events:
			if !ok {
				return
			}

			if ev.Has(fsnotify.Create) {
				if info, err := os.Stat(ev.Name); err == nil && info.IsDir() {
					if err := w.addTree(ev.Name); err != nil {
						cb(err, nil)
					}
				}
			}

			pending = append(pending, model.WatchEvent{Path: ev.Name, Type: changeType(ev.Op)})
			if timer == nil {
				timer = time.NewTimer(w.window)
				flush = timer.C
			}

		case <-flush:
			batch := pending
			pending, timer, flush = nil, nil, nil
			cb(nil, batch)

		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			cb(err, nil)

		case <-w.done:
			if timer != nil {
				timer.Stop()
			}
			return
		}
	}
}

// changeType maps an fsnotify operation onto the event classification.
func changeType(op fsnotify.Op) model.ChangeType {
	switch {
	case op.Has(fsnotify.Remove), op.Has(fsnotify.Rename):
		return model.ChangeDeleted
	case op.Has(fsnotify.Create):
		return model.ChangeCreated
	case op.Has(fsnotify.Write):
		return model.ChangeUpdated
	default:
		return model.ChangeUnknown
	}
}

// Close stops watching. Pending events that were not yet delivered are
// discarded. Safe to call multiple times.
func (w *Watcher) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.done)

	err := w.fw.Close()
	if w.running {
		<-w.exited
	}

	return err
}
