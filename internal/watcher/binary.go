// Copyright © 2026 Groups.io, Inc.
// SPDX-License-Identifier: Apache-2.0

// Package watcher notices when the agent CLI binary on disk changes,
// so operators can be told that running sessions are on a stale build.
package watcher

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/wingedpig/lattice/internal/events"
)

// BinaryWatcher watches the CLI binary for replacement and emits a
// cli.binary_changed event when it is rewritten or reinstalled.
type BinaryWatcher struct {
	mu         sync.RWMutex
	bus        events.EventBus
	watcher    *fsnotify.Watcher
	debouncer  *Debouncer
	binaryPath string
	closed     bool
	closeCh    chan struct{}
	wg         sync.WaitGroup
}

// NewBinaryWatcher creates a watcher for the given CLI binary path.
// The parent directory is watched as well, since upgrades typically
// replace the binary by rename rather than writing in place.
func NewBinaryWatcher(bus events.EventBus, binaryPath string, debounce time.Duration) (*BinaryWatcher, error) {
	absPath, err := filepath.Abs(binaryPath)
	if err != nil {
		absPath = binaryPath
	}

	fsWatcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	w := &BinaryWatcher{
		bus:        bus,
		watcher:    fsWatcher,
		debouncer:  NewDebouncer(debounce),
		binaryPath: absPath,
		closeCh:    make(chan struct{}),
	}

	if err := fsWatcher.Add(filepath.Dir(absPath)); err != nil {
		fsWatcher.Close()
		return nil, fmt.Errorf("watch %s: %w", filepath.Dir(absPath), err)
	}
	// Watching the file itself is best-effort; it may not exist yet
	fsWatcher.Add(absPath)

	w.wg.Add(1)
	go w.processEvents()

	return w, nil
}

// Path returns the watched binary path.
func (w *BinaryWatcher) Path() string {
	return w.binaryPath
}

// Close stops the watcher and releases resources.
func (w *BinaryWatcher) Close() error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return nil
	}
	w.closed = true
	close(w.closeCh)
	w.mu.Unlock()

	w.debouncer.Stop()
	w.watcher.Close()
	w.wg.Wait()

	return nil
}

func (w *BinaryWatcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.closeCh:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)

		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (w *BinaryWatcher) handleEvent(event fsnotify.Event) {
	// Only writes, creates, and renames matter - NOT chmod.
	// Chmod events fire when the binary is executed.
	if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
		return
	}

	if event.Name != w.binaryPath {
		return
	}

	w.debouncer.Debounce(w.binaryPath, func() {
		info, err := os.Stat(w.binaryPath)
		var modTime time.Time
		if err == nil {
			modTime = info.ModTime()
		}

		if w.bus != nil {
			w.bus.Publish(context.Background(), events.Event{
				Type: events.EventCLIBinaryChanged,
				Payload: map[string]interface{}{
					"path":     w.binaryPath,
					"mod_time": modTime.Format(time.RFC3339),
				},
			})
		}
	})
}
