package boundary

import "errors"

// ErrKind classifies errors so callers can branch on intent rather than text.
type ErrKind int

const (
	ErrKindInvalidPath ErrKind = iota + 1 // empty path, NUL byte, or a directory
	ErrKindIO                             // missing or unreadable source
	ErrKindEncoding                       // path or source bytes not valid text
	ErrKindNullHandle                     // nil handle passed to an accessor
	ErrKindReleased                       // handle already released
	ErrKindUnloaded                       // handle outlived its tree
	ErrKindNotFound                       // no such node, var, or index
	ErrKindCache                          // snapshot store failure
	ErrKindMismatch                       // handles from different loads
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindInvalidPath:
		return "invalid path"
	case ErrKindIO:
		return "i/o error"
	case ErrKindEncoding:
		return "encoding error"
	case ErrKindNullHandle:
		return "null handle"
	case ErrKindReleased:
		return "released handle"
	case ErrKindUnloaded:
		return "tree unloaded"
	case ErrKindNotFound:
		return "not found"
	case ErrKindCache:
		return "cache error"
	case ErrKindMismatch:
		return "handle mismatch"
	default:
		return "unknown error"
	}
}

// Error is a typed error with an optional underlying cause.
type Error struct {
	Kind ErrKind
	Op   string // boundary call that failed, e.g. "load" or "node.path"
	Path string // source path, when one is involved
	Msg  string
	Err  error // optional underlying cause
}

func (e *Error) Error() string {
	if e == nil {
		return "<nil>"
	}
	s := "dmtree"
	if e.Op != "" {
		s += " " + e.Op
	}
	if e.Path != "" {
		s += " " + e.Path
	}
	msg := e.Msg
	if msg == "" {
		msg = e.Kind.String()
	}
	s += ": " + msg
	if e.Err != nil {
		s += ": " + e.Err.Error()
	}
	return s
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches any *Error of the same kind, so errors.Is(err, ErrReleased)
// holds for every released-handle failure regardless of op.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}

// Sentinels for errors.Is.
var (
	ErrInvalidPath = &Error{Kind: ErrKindInvalidPath}
	ErrIO          = &Error{Kind: ErrKindIO}
	ErrEncoding    = &Error{Kind: ErrKindEncoding}
	ErrNullHandle  = &Error{Kind: ErrKindNullHandle}
	ErrReleased    = &Error{Kind: ErrKindReleased}
	ErrUnloaded    = &Error{Kind: ErrKindUnloaded}
	ErrNotFound    = &Error{Kind: ErrKindNotFound}
	ErrCache       = &Error{Kind: ErrKindCache}
	ErrMismatch    = &Error{Kind: ErrKindMismatch}
)

// KindOf returns the ErrKind carried by err, if any.
func KindOf(err error) (ErrKind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}
