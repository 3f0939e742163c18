package boundary

import (
	"errors"

	"github.com/tevino/abool/v2"

	"github.com/corey/dmtree/internal/domain/objtree"
)

// Stop may be returned by a sink to end a traversal early. The traversal
// then returns nil.
var Stop = errors.New("stop traversal")

// handle is the record every boundary handle embeds. It is a freestanding
// allocation: releasing it never touches the tree it refers to.
type handle struct {
	kind     Kind
	ledger   *Ledger
	released *abool.AtomicBool
}

func newHandle(k Kind, l *Ledger) handle {
	l.Track(k)
	return handle{kind: k, ledger: l, released: abool.New()}
}

// release flips the released flag exactly once; only the winning call
// settles the ledger.
func (h *handle) release(op string) error {
	if !h.released.SetToIf(false, true) {
		return &Error{Kind: ErrKindReleased, Op: op, Msg: h.kind.String() + " handle already released"}
	}
	h.ledger.Untrack(h.kind)
	return nil
}

// loaded is the state shared by every handle derived from one load. The
// tree and context are immutable once loaded is built.
type loaded struct {
	path     string
	tree     *objtree.Tree
	ctx      *objtree.Context
	ledger   *Ledger
	unloaded *abool.AtomicBool
}

func nullHandle(op string, k Kind) error {
	return &Error{Kind: ErrKindNullHandle, Op: op, Msg: "nil " + k.String() + " handle"}
}

// check validates a handle derived from st before it is used.
func check(op string, h *handle, st *loaded) error {
	if h.released.IsSet() {
		return &Error{Kind: ErrKindReleased, Op: op, Msg: h.kind.String() + " handle already released"}
	}
	if st.unloaded.IsSet() {
		return &Error{Kind: ErrKindUnloaded, Op: op, Path: st.path, Msg: "tree was unloaded"}
	}
	return nil
}

// visit runs sink and maps Stop to a clean end of traversal. The bool
// reports whether the traversal should continue.
func visit(err error) (bool, error) {
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, Stop):
		return false, nil
	default:
		return false, err
	}
}

// oneShot wraps a pull view so it yields only on its first range.
func oneShot() func() bool {
	used := abool.New()
	return func() bool { return used.SetToIf(false, true) }
}
