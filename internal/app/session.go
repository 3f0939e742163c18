package app

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/corey/dmtree/internal/adapters/bbolt"
	fsw "github.com/corey/dmtree/internal/adapters/fsnotify"
	"github.com/corey/dmtree/internal/boundary"
	"github.com/corey/dmtree/internal/logger"
	"github.com/corey/dmtree/internal/ports"
)

// Summary describes the tree a session currently holds.
type Summary struct {
	Path     string
	Types    int
	Files    int
	Errors   int
	Warnings int
	LoadedAt time.Time
	Elapsed  time.Duration
}

// Session owns one loaded tree for a project. The tree is loaded with the
// project's config and cache and replaced whenever a reload succeeds.
type Session struct {
	Paths  *Paths
	Config Config
	Source string // absolute path of the environment file

	store   *bbolt.Store // nil when the cache is off or unavailable
	ledger  *boundary.Ledger
	watcher ports.Watcher

	mu      sync.Mutex
	tree    *boundary.TreeHandle
	ctx     *boundary.ContextHandle
	summary Summary
	closed  bool

	inflight sync.WaitGroup // reloads past the closed check
}

// SessionOptions tune Open.
type SessionOptions struct {
	NoCache bool // skip the snapshot cache even when enabled in config
}

// Open resolves the project around source, reads its config and loads the
// tree. Cache problems degrade to uncached loads; load errors are returned.
func Open(source string, opts SessionOptions) (*Session, error) {
	abs, err := filepath.Abs(source)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", source, err)
	}
	paths := NewPaths(ProjectRootFor(abs))
	cfg, err := LoadConfig(paths.Project)
	if err != nil {
		return nil, err
	}

	s := &Session{
		Paths:  paths,
		Config: cfg,
		Source: abs,
		ledger: boundary.NewLedger(),
	}
	if cfg.Cache.Enabled && !opts.NoCache {
		s.openCache()
	}

	if _, err := s.Reload(); err != nil {
		s.closeCache()
		return nil, err
	}
	return s, nil
}

func (s *Session) openCache() {
	path := s.Config.CachePath(s.Paths)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		logger.L.Warn("cache disabled", "err", err)
		return
	}
	store, err := bbolt.NewStore(path)
	if err != nil {
		// Another process (usually `dmtree watch`) holds the lock.
		logger.L.Warn("cache disabled", "path", path, "err", err)
		return
	}
	s.store = store
}

func (s *Session) closeCache() {
	s.mu.Lock()
	store := s.store
	s.store = nil
	s.mu.Unlock()
	if store != nil {
		store.Close()
	}
}

// loadOptions must be called with mu held.
func (s *Session) loadOptions() []boundary.Option {
	opts := append(s.Config.LoadOptions(s.Paths.Project), boundary.WithLedger(s.ledger))
	if s.store != nil {
		opts = append(opts, boundary.WithCache(s.store))
	}
	return opts
}

// Reload loads the sources again and swaps the new tree in. On error the
// previous tree stays current. Close waits for a running reload to finish
// before it closes the cache the reload reads from.
func (s *Session) Reload() (Summary, error) {
	start := time.Now()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return Summary{}, fmt.Errorf("session closed")
	}
	s.inflight.Add(1)
	defer s.inflight.Done()
	opts := s.loadOptions()
	s.mu.Unlock()

	var tree *boundary.TreeHandle
	var ctx *boundary.ContextHandle
	err := boundary.LoadWith(s.Source, func(t *boundary.TreeHandle, c *boundary.ContextHandle) {
		tree, ctx = t, c
	}, opts...)
	if err != nil {
		return Summary{}, err
	}

	sum, err := summarize(tree, ctx)
	if err != nil {
		boundary.Unload(tree, ctx)
		return Summary{}, err
	}
	sum.LoadedAt = time.Now()
	sum.Elapsed = time.Since(start)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		boundary.Unload(tree, ctx)
		return Summary{}, fmt.Errorf("session closed")
	}
	if s.tree != nil {
		if err := boundary.Unload(s.tree, s.ctx); err != nil {
			logger.L.Warn("unload previous tree", "err", err)
		}
	}
	s.tree, s.ctx, s.summary = tree, ctx, sum
	return sum, nil
}

func summarize(tree *boundary.TreeHandle, ctx *boundary.ContextHandle) (Summary, error) {
	path, err := tree.Path()
	if err != nil {
		return Summary{}, err
	}
	types, err := tree.Len()
	if err != nil {
		return Summary{}, err
	}
	files, err := ctx.Files()
	if err != nil {
		return Summary{}, err
	}
	errs, warns, err := ctx.Counts()
	if err != nil {
		return Summary{}, err
	}
	return Summary{Path: path, Types: types, Files: len(files), Errors: errs, Warnings: warns}, nil
}

// Summary returns the summary of the current tree.
func (s *Session) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.summary
}

// With runs fn with the current tree and context. The handles belong to
// the session: fn must not unload them, and must release every handle it
// obtains from them before returning. Reloads wait until fn returns.
func (s *Session) With(fn func(tree *boundary.TreeHandle, ctx *boundary.ContextHandle) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("session closed")
	}
	return fn(s.tree, s.ctx)
}

// Outstanding reports handles obtained through With that were not released,
// plus the session's own tree and context.
func (s *Session) Outstanding() int64 { return s.ledger.Outstanding() }

// Cached reports whether loads go through the snapshot cache.
func (s *Session) Cached() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store != nil
}

// Watch reloads the tree whenever a source file under the project changes
// and reports each outcome to onReload, from the watcher's goroutine.
func (s *Session) Watch(onReload func(changed string, sum Summary, err error)) error {
	w, err := fsw.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	return s.watchWith(w, onReload)
}

func (s *Session) watchWith(w ports.Watcher, onReload func(string, Summary, error)) error {
	s.mu.Lock()
	if s.closed || s.watcher != nil {
		s.mu.Unlock()
		w.Stop()
		return fmt.Errorf("session closed or already watching")
	}
	s.watcher = w
	s.mu.Unlock()

	err := w.Watch(s.Paths.Project, func(changed string) {
		sum, err := s.Reload()
		if err != nil {
			logger.L.Warn("reload failed", "changed", changed, "err", err)
		} else {
			logger.L.Info("reloaded tree", "changed", changed, "types", sum.Types, "errors", sum.Errors, "elapsed", sum.Elapsed)
		}
		onReload(changed, sum, err)
	})
	if err != nil {
		w.Stop()
		s.mu.Lock()
		s.watcher = nil
		s.mu.Unlock()
		return fmt.Errorf("watch %s: %w", s.Paths.Project, err)
	}
	return nil
}

// Close stops watching, waits for running reloads, unloads the tree and
// closes the cache. Idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	w := s.watcher
	tree, ctx := s.tree, s.ctx
	s.tree, s.ctx = nil, nil
	s.mu.Unlock()

	var firstErr error
	if w != nil {
		firstErr = w.Stop()
	}
	s.inflight.Wait()
	if tree != nil {
		if err := boundary.Unload(tree, ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	s.closeCache()
	return firstErr
}

// ClearCache removes every snapshot in the project's cache and reports how
// many there were.
func ClearCache(projectRoot string) (int, error) {
	paths := NewPaths(projectRoot)
	cfg, err := LoadConfig(projectRoot)
	if err != nil {
		return 0, err
	}
	store, err := bbolt.NewStore(cfg.CachePath(paths))
	if err != nil {
		return 0, err
	}
	defer store.Close()

	keys, err := store.Keys()
	if err != nil {
		return 0, err
	}
	if err := store.Clear(); err != nil {
		return 0, err
	}
	return len(keys), nil
}
