// Package dm implements ports.Reader for DreamMaker sources. It understands
// exactly what the object tree needs: the preprocessor, indentation blocks,
// type paths, var declarations and overrides, and proc signatures. Proc
// bodies and non-literal expressions are kept as text.
package dm

import (
	"time"

	"github.com/corey/dmtree/internal/domain/objtree"
	"github.com/corey/dmtree/internal/logger"
	"github.com/corey/dmtree/internal/ports"
)

// Reader implements ports.Reader. It holds no state between reads and is
// safe for concurrent use.
type Reader struct{}

// NewReader returns a DM source reader.
func NewReader() *Reader {
	return &Reader{}
}

// Read preprocesses path and every file it includes, then builds the tree.
// The returned error is non-nil only when path itself cannot be read or
// decoded.
func (r *Reader) Read(ctx *objtree.Context, path string, opts ports.ReadOptions) (*objtree.Tree, error) {
	start := time.Now()

	pp := newPreprocessor(ctx, opts)
	if err := pp.run(path); err != nil {
		return nil, err
	}
	tree := newTreeReader(ctx).read(pp.out)

	errs, warns := ctx.Counts()
	logger.L.Debug("read object tree",
		"path", path,
		"files", len(ctx.Files()),
		"lines", len(pp.out),
		"types", tree.Len(),
		"errors", errs,
		"warnings", warns,
		"elapsed", time.Since(start))
	return tree, nil
}
