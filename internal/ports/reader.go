package ports

import (
	"errors"

	"github.com/corey/dmtree/internal/domain/objtree"
)

// ErrInvalidEncoding is wrapped by a Reader when the root file's bytes are not
// valid in the requested source encoding.
var ErrInvalidEncoding = errors.New("source is not valid in the requested encoding")

// Reader turns a root source file into an object tree. The concrete
// implementation (preprocessor + line reader) lives in internal/adapters/dm.
//
// Problems in the source are registered on ctx as diagnostics; Read returns a
// best-effort tree for them. An error is returned only when the root file
// itself cannot be read.
type Reader interface {
	Read(ctx *objtree.Context, path string, opts ReadOptions) (*objtree.Tree, error)
}

// ReadOptions are the knobs a caller can pass through to the Reader.
type ReadOptions struct {
	// Defines are extra object-like macros, applied before the root file.
	Defines map[string]string

	// IncludePaths are searched after the including file's directory.
	IncludePaths []string

	// Encoding is "auto" (UTF-8, falling back to Windows-1252 for invalid
	// input), "utf-8" or "windows-1252". Empty means auto.
	Encoding string
}
