// Package watcher implements debounced change notification for the
// credential store file, so a process can rehydrate session and token
// state when another process rewrites the cache behind its back.
package watcher

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	log "github.com/sirupsen/logrus"
)

const debounce = 200 * time.Millisecond

// Watcher observes one credential store file.
type Watcher struct {
	path     string
	onChange func()

	mu    sync.Mutex
	timer *time.Timer
}

// New creates a watcher for path that invokes onChange after writes settle.
func New(path string, onChange func()) *Watcher {
	return &Watcher{path: path, onChange: onChange}
}

// Run watches until ctx is cancelled. The parent directory rather than the
// file itself is watched, so atomic rename-style rewrites are seen too.
func (w *Watcher) Run(ctx context.Context) error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer func() { _ = fsw.Close() }()

	if err = fsw.Add(filepath.Dir(w.path)); err != nil {
		return err
	}
	log.Debugf("watcher: observing %s", w.path)

	for {
		select {
		case <-ctx.Done():
			w.stopTimer()
			return ctx.Err()
		case event, ok := <-fsw.Events:
			if !ok {
				return nil
			}
			if event.Name != w.path {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			w.scheduleNotify()
		case err, ok := <-fsw.Errors:
			if !ok {
				return nil
			}
			log.Warnf("watcher: %v", err)
		}
	}
}

// scheduleNotify coalesces bursts of events into one callback.
func (w *Watcher) scheduleNotify() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(debounce, func() {
		w.mu.Lock()
		w.timer = nil
		w.mu.Unlock()
		w.onChange()
	})
}

func (w *Watcher) stopTimer() {
	w.mu.Lock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
	w.mu.Unlock()
}
