// Package fsnotify implements ports.Watcher using github.com/fsnotify/fsnotify.
// It recursively watches a source directory, reports only DM source files
// (.dm, .dme, .dmm), and reports a file once its burst of events has settled.
package fsnotify

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/corey/dmtree/internal/logger"
)

// Directories never descended into.
var ignoreDirs = map[string]bool{
	".git":         true,
	".dmtree":      true,
	".vscode":      true,
	".idea":        true,
	"node_modules": true,
	"data":         true, // BYOND runtime saves
}

// Extensions that can change the object tree.
var sourceExts = map[string]bool{
	".dm":  true,
	".dme": true,
	".dmm": true,
}

const debounceInterval = 50 * time.Millisecond

// Watcher implements ports.Watcher using fsnotify.
type Watcher struct {
	fw      *fsnotify.Watcher
	done    chan struct{}
	stopped bool
	mu      sync.Mutex
}

// NewWatcher creates a new file system watcher.
func NewWatcher() (*Watcher, error) {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	return &Watcher{
		fw:   fw,
		done: make(chan struct{}),
	}, nil
}

// Watch starts monitoring dir recursively. onChange is called from the
// watcher's goroutine with the absolute path of each changed source file.
func (w *Watcher) Watch(dir string, onChange func(path string)) error {
	root, err := filepath.Abs(dir)
	if err != nil {
		return err
	}

	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil // skip inaccessible paths
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && ignoreDirs[d.Name()] {
			return filepath.SkipDir
		}
		return w.fw.Add(path)
	})
	if err != nil {
		return err
	}

	go w.loop(root, onChange)
	return nil
}

// loop reports a file once it has been quiet for debounceInterval, so the
// last write of a burst is always seen. onChange runs only on this goroutine.
func (w *Watcher) loop(root string, onChange func(string)) {
	pending := make(map[string]time.Time) // path -> time it goes quiet
	timer := time.NewTimer(debounceInterval)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case event, ok := <-w.fw.Events:
			if !ok {
				return
			}
			path := event.Name

			// New directories join the watch; files inside them that already
			// exist are reported when they are next written.
			if event.Has(fsnotify.Create) && !isSource(path) {
				if info, err := os.Stat(path); err == nil && info.IsDir() && !ignoredPath(root, path) {
					if err := w.fw.Add(path); err == nil {
						logger.L.Debug("watching new directory", "path", path)
					}
				}
				continue
			}

			if !isSource(path) || ignoredPath(root, path) {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) &&
				!event.Has(fsnotify.Remove) && !event.Has(fsnotify.Rename) {
				continue
			}

			now := time.Now()
			pending[path] = now.Add(debounceInterval)
			timer.Reset(untilNext(pending, now))

		case now := <-timer.C:
			for path, quiet := range pending {
				if quiet.After(now) {
					continue
				}
				delete(pending, path)
				select {
				case <-w.done:
					return
				default:
				}
				onChange(path)
			}
			if len(pending) > 0 {
				timer.Reset(untilNext(pending, time.Now()))
			}

		case err, ok := <-w.fw.Errors:
			if !ok {
				return
			}
			logger.L.Warn("watch error", "err", err)

		case <-w.done:
			return
		}
	}
}

// untilNext returns how long until the earliest pending file goes quiet.
func untilNext(pending map[string]time.Time, now time.Time) time.Duration {
	var next time.Time
	for _, quiet := range pending {
		if next.IsZero() || quiet.Before(next) {
			next = quiet
		}
	}
	return max(next.Sub(now), 0)
}

// Stop ends monitoring and releases all resources.
// Safe to call multiple times.
func (w *Watcher) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.stopped {
		return nil
	}
	w.stopped = true
	close(w.done)
	return w.fw.Close()
}

func isSource(path string) bool {
	return sourceExts[strings.ToLower(filepath.Ext(path))]
}

// ignoredPath reports whether path lies in (or is) an ignored directory
// below root.
func ignoredPath(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	for _, part := range strings.Split(rel, string(filepath.Separator)) {
		if ignoreDirs[part] {
			return true
		}
	}
	return false
}
