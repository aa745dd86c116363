// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package storage provides the durable key-value store for the roster client.
package storage

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultWatchDebounce coalesces bursts of filesystem events (SQLite touches
// the database, WAL, and shm files on every commit) into one notification.
const DefaultWatchDebounce = 500 * time.Millisecond

// Watcher notifies a callback when the store's database file is modified by
// another process. Each running client owns its own timers and state machine;
// the watcher is how a second client converges after an external write, such
// as a logout performed in another terminal.
type Watcher struct {
	store    *Store
	watcher  *fsnotify.Watcher
	debounce time.Duration
	onChange func()

	mu      sync.Mutex
	pending bool
	timer   *time.Timer

	ctx    context.Context
	cancel context.CancelFunc
}

// NewWatcher creates a watcher for the store's database file. onChange runs
// on the watcher goroutine after the debounce window closes; callers must do
// their own locking. A debounce of 0 uses DefaultWatchDebounce.
func NewWatcher(store *Store, debounce time.Duration, onChange func()) (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	if debounce <= 0 {
		debounce = DefaultWatchDebounce
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		store:    store,
		watcher:  fw,
		debounce: debounce,
		onChange: onChange,
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Watch starts watching for database changes.
func (w *Watcher) Watch() error {
	// Watch the directory, not the file: SQLite replaces the WAL and shm
	// files, and watching a replaced inode goes silent.
	if err := w.watcher.Add(filepath.Dir(w.store.Path())); err != nil {
		return err
	}

	go w.processEvents()
	return nil
}

// Close stops watching and releases resources. Idempotent.
func (w *Watcher) Close() error {
	w.cancel()

	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.mu.Unlock()

	return w.watcher.Close()
}

// processEvents consumes fsnotify events until the watcher is closed.
func (w *Watcher) processEvents() {
	base := filepath.Base(w.store.Path())

	for {
		select {
		case <-w.ctx.Done():
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if !w.isStoreFile(base, event.Name) {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove) == 0 {
				continue
			}
			w.scheduleNotify()

		case _, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			// Watch errors are not fatal to the client; the local timers
			// still enforce expiry without cross-context convergence.
		}
	}
}

// isStoreFile reports whether name refers to the database or one of its
// SQLite side files (-wal, -shm, journal).
func (w *Watcher) isStoreFile(base, name string) bool {
	return strings.HasPrefix(filepath.Base(name), base)
}

// scheduleNotify arms (or re-arms) the debounce timer.
func (w *Watcher) scheduleNotify() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.pending {
		w.timer.Reset(w.debounce)
		return
	}

	w.pending = true
	w.timer = time.AfterFunc(w.debounce, func() {
		w.mu.Lock()
		w.pending = false
		w.mu.Unlock()

		select {
		case <-w.ctx.Done():
			return
		default:
		}

		if w.onChange != nil {
			w.onChange()
		}
	})
}
