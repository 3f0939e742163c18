// Package boundary is the handle-based surface over a loaded object tree.
// Every value a caller receives is an independently released handle that
// refers into an immutable tree; a Ledger counts allocations and releases
// so a harness can prove nothing leaked.
package boundary

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/tevino/abool/v2"

	"github.com/corey/dmtree/internal/adapters/dm"
	"github.com/corey/dmtree/internal/domain/objtree"
	"github.com/corey/dmtree/internal/logger"
	"github.com/corey/dmtree/internal/ports"
)

// Option configures a load.
type Option func(*loadConfig)

type loadConfig struct {
	reader ports.Reader
	cache  ports.SnapshotStore
	ledger *Ledger
	read   ports.ReadOptions
}

// WithReader replaces the DM source reader.
func WithReader(r ports.Reader) Option {
	return func(c *loadConfig) { c.reader = r }
}

// WithCache serves unchanged sources from s and stores fresh loads in it.
func WithCache(s ports.SnapshotStore) Option {
	return func(c *loadConfig) { c.cache = s }
}

// WithLedger counts the load's handles in l instead of DefaultLedger.
func WithLedger(l *Ledger) Option {
	return func(c *loadConfig) { c.ledger = l }
}

// WithDefines predefines object-like macros.
func WithDefines(defines map[string]string) Option {
	return func(c *loadConfig) { c.read.Defines = defines }
}

// WithIncludePaths adds directories searched for #include.
func WithIncludePaths(paths []string) Option {
	return func(c *loadConfig) { c.read.IncludePaths = paths }
}

// WithEncoding selects the source encoding: "auto", "utf-8" or
// "windows-1252".
func WithEncoding(enc string) Option {
	return func(c *loadConfig) { c.read.Encoding = enc }
}

// Load reads the source tree rooted at path and returns a handle to it.
// Problems inside the sources are diagnostics on the tree's context; the
// error is non-nil only when path cannot be used at all.
func Load(path string, opts ...Option) (*TreeHandle, error) {
	st, err := load("load", path, opts)
	if err != nil {
		return nil, err
	}
	return &TreeHandle{handle: newHandle(KindTree, st.ledger), st: st}, nil
}

// LoadWith loads path and calls sink exactly once with the tree and its
// context before returning. The sink owns both handles. On error sink is
// not called.
func LoadWith(path string, sink func(*TreeHandle, *ContextHandle), opts ...Option) error {
	st, err := load("load_with", path, opts)
	if err != nil {
		return err
	}
	tree := &TreeHandle{handle: newHandle(KindTree, st.ledger), st: st}
	ctx := &ContextHandle{handle: newHandle(KindContext, st.ledger), st: st}
	sink(tree, ctx)
	return nil
}

// Unload releases the tree handle and, when non-nil, ctx. Node and var
// handles from the tree stay allocated until freed, but every accessor on
// them reports ErrUnloaded. ctx must come from the same load and still be
// live; otherwise nothing is released.
func Unload(tree *TreeHandle, ctx *ContextHandle) error {
	if tree == nil {
		return nullHandle("unload", KindTree)
	}
	if ctx != nil {
		if ctx.st != tree.st {
			return &Error{Kind: ErrKindMismatch, Op: "unload", Path: tree.st.path, Msg: "context belongs to another load"}
		}
		if ctx.released.IsSet() {
			return &Error{Kind: ErrKindReleased, Op: "unload", Msg: "context handle already released"}
		}
	}
	if err := tree.release("unload"); err != nil {
		return err
	}
	tree.st.unloaded.Set()
	logger.L.Debug("unloaded tree", "path", tree.st.path)
	if ctx != nil {
		return ctx.release("unload")
	}
	return nil
}

func load(op, path string, opts []Option) (*loaded, error) {
	cfg := loadConfig{ledger: DefaultLedger}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.reader == nil {
		cfg.reader = dm.NewReader()
	}

	abs, err := checkPath(op, path)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	tree, ctx, hit, err := readCached(cfg, abs)
	if err != nil {
		return nil, err
	}
	if !hit {
		ctx = objtree.NewContext()
		tree, err = cfg.reader.Read(ctx, abs, cfg.read)
		if err != nil {
			return nil, readError(op, abs, err)
		}
		storeCached(cfg, abs, tree, ctx)
	}

	errs, warns := ctx.Counts()
	logger.L.Debug("loaded tree",
		"path", abs,
		"cached", hit,
		"types", tree.Len(),
		"files", len(ctx.Files()),
		"errors", errs,
		"warnings", warns,
		"elapsed", time.Since(start))

	return &loaded{path: abs, tree: tree, ctx: ctx, ledger: cfg.ledger, unloaded: abool.New()}, nil
}

func checkPath(op, path string) (string, error) {
	switch {
	case path == "":
		return "", &Error{Kind: ErrKindInvalidPath, Op: op, Msg: "empty path"}
	case strings.IndexByte(path, 0) >= 0:
		return "", &Error{Kind: ErrKindInvalidPath, Op: op, Path: path, Msg: "path contains a NUL byte"}
	case !utf8.ValidString(path):
		return "", &Error{Kind: ErrKindEncoding, Op: op, Path: path, Msg: "path is not valid UTF-8"}
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", &Error{Kind: ErrKindInvalidPath, Op: op, Path: path, Msg: "cannot resolve path", Err: err}
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", &Error{Kind: ErrKindIO, Op: op, Path: abs, Msg: "cannot stat source", Err: err}
	}
	if info.IsDir() {
		return "", &Error{Kind: ErrKindInvalidPath, Op: op, Path: abs, Msg: "path is a directory"}
	}
	return abs, nil
}

func readError(op, path string, err error) error {
	switch {
	case errors.Is(err, ports.ErrInvalidEncoding):
		return &Error{Kind: ErrKindEncoding, Op: op, Path: path, Msg: "cannot decode source", Err: err}
	case errors.Is(err, fs.ErrNotExist), errors.Is(err, fs.ErrPermission):
		return &Error{Kind: ErrKindIO, Op: op, Path: path, Msg: "cannot read source", Err: err}
	default:
		return &Error{Kind: ErrKindIO, Op: op, Path: path, Msg: "read failed", Err: err}
	}
}
