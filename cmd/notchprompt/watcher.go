package main

import (
	"context"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// scriptWatcher follows one script file and reports debounced changes.
//
// It watches the parent directory rather than the file: editors commonly save
// by writing a new file and renaming it over the old one, which drops a watch
// on the file itself.
type scriptWatcher struct {
	watcher *fsnotify.Watcher
	logger  *slog.Logger

	onChanged func(path string)
	debounce  time.Duration

	mu        sync.Mutex
	path      string // cleaned absolute path matched against events
	name      string // path as given to Watch, reported to onChanged
	dir       string
	timer     *time.Timer
	closed    bool
	closeOnce sync.Once
}

func newScriptWatcher(onChanged func(path string), logger *slog.Logger) (*scriptWatcher, error) {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &scriptWatcher{
		watcher:   w,
		logger:    logger,
		onChanged: onChanged,
		debounce:  scriptWatchDebounce,
	}, nil
}

// Watch replaces the watched file. An empty path stops watching.
func (sw *scriptWatcher) Watch(path string) error {
	name := path
	if path != "" {
		abs, err := filepath.Abs(ExpandPath(path))
		if err != nil {
			return err
		}
		path = abs
	}

	sw.mu.Lock()
	if sw.closed {
		sw.mu.Unlock()
		return nil
	}
	oldDir := sw.dir
	newDir := ""
	if path != "" {
		newDir = filepath.Dir(path)
	}
	sw.path = path
	sw.name = name
	sw.dir = newDir
	if sw.timer != nil {
		sw.timer.Stop()
		sw.timer = nil
	}
	sw.mu.Unlock()

	if oldDir == newDir {
		return nil
	}
	if oldDir != "" {
		_ = sw.watcher.Remove(oldDir)
	}
	if newDir == "" {
		return nil
	}
	return sw.watcher.Add(newDir)
}

// Run forwards filesystem events until ctx is canceled or the watcher is closed.
func (sw *scriptWatcher) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-sw.watcher.Events:
			if !ok {
				return nil
			}
			if sw.isScriptEvent(event) {
				sw.scheduleNotify()
			}
		case err, ok := <-sw.watcher.Errors:
			if !ok {
				return nil
			}
			// Keep running; a transient error must not stop reloads.
			sw.logger.Warn("script watcher error", "error", err)
		}
	}
}

func (sw *scriptWatcher) Close() error {
	var err error
	sw.closeOnce.Do(func() {
		sw.mu.Lock()
		sw.closed = true
		if sw.timer != nil {
			sw.timer.Stop()
			sw.timer = nil
		}
		sw.mu.Unlock()
		err = sw.watcher.Close()
	})
	return err
}

func (sw *scriptWatcher) isScriptEvent(event fsnotify.Event) bool {
	sw.mu.Lock()
	path := sw.path
	sw.mu.Unlock()

	if path == "" || filepath.Clean(event.Name) != path {
		return false
	}
	return event.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0
}

func (sw *scriptWatcher) scheduleNotify() {
	if sw.onChanged == nil {
		return
	}
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.closed {
		return
	}
	if sw.timer == nil {
		sw.timer = time.AfterFunc(sw.debounce, sw.fire)
	} else {
		sw.timer.Reset(sw.debounce)
	}
}

func (sw *scriptWatcher) fire() {
	sw.mu.Lock()
	if sw.closed {
		sw.mu.Unlock()
		return
	}
	name := sw.name
	sw.timer = nil
	sw.mu.Unlock()

	if name != "" {
		sw.onChanged(name)
	}
}
