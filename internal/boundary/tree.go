package boundary

import (
	"iter"

	"github.com/corey/dmtree/internal/domain/objtree"
)

// TreeHandle is the caller's reference to a loaded tree. Release it, along
// with any context handle, through Unload.
type TreeHandle struct {
	handle
	st *loaded
}

// ContextHandle exposes the file table and diagnostics of a load.
type ContextHandle struct {
	handle
	st *loaded
}

func (t *TreeHandle) state(op string) (*loaded, error) {
	if t == nil {
		return nil, nullHandle(op, KindTree)
	}
	if err := check(op, &t.handle, t.st); err != nil {
		return nil, err
	}
	return t.st, nil
}

func (st *loaded) node(idx uint32) *NodeHandle {
	return &NodeHandle{handle: newHandle(KindNode, st.ledger), st: st, idx: idx}
}

// Path returns the absolute path of the loaded root file.
func (t *TreeHandle) Path() (string, error) {
	st, err := t.state("tree.path")
	if err != nil {
		return "", err
	}
	return st.path, nil
}

// Len returns the number of nodes, the root included.
func (t *TreeHandle) Len() (int, error) {
	st, err := t.state("tree.len")
	if err != nil {
		return 0, err
	}
	return st.tree.Len(), nil
}

// Root returns a new handle to the root node.
func (t *TreeHandle) Root() (*NodeHandle, error) {
	st, err := t.state("tree.root")
	if err != nil {
		return nil, err
	}
	return st.node(0), nil
}

// Node returns a new handle to the node at idx.
func (t *TreeHandle) Node(idx uint32) (*NodeHandle, error) {
	st, err := t.state("tree.node")
	if err != nil {
		return nil, err
	}
	if _, ok := st.tree.Type(idx); !ok {
		return nil, &Error{Kind: ErrKindNotFound, Op: "tree.node", Msg: "node index out of range"}
	}
	return st.node(idx), nil
}

// Find returns a new handle to the node with the given type path.
func (t *TreeHandle) Find(path string) (*NodeHandle, error) {
	st, err := t.state("tree.find")
	if err != nil {
		return nil, err
	}
	ty, ok := st.tree.Find(path)
	if !ok {
		return nil, &Error{Kind: ErrKindNotFound, Op: "tree.find", Msg: "no type " + path}
	}
	return st.node(ty.Index), nil
}

// ForEachNode hands sink a new handle for every node in index order. The
// sink owns each handle it receives.
func (t *TreeHandle) ForEachNode(sink func(*NodeHandle) error) error {
	st, err := t.state("tree.for_each_node")
	if err != nil {
		return err
	}
	for idx := range uint32(st.tree.Len()) {
		if more, err := visit(sink(st.node(idx))); !more {
			return err
		}
	}
	return nil
}

// Nodes is the pull form of ForEachNode. Handles are created only as they
// are pulled; the sequence yields nothing on a second range or when t is
// unusable.
func (t *TreeHandle) Nodes() iter.Seq[*NodeHandle] {
	first := oneShot()
	return func(yield func(*NodeHandle) bool) {
		st, err := t.state("tree.nodes")
		if err != nil || !first() {
			return
		}
		for idx := range uint32(st.tree.Len()) {
			if !yield(st.node(idx)) {
				return
			}
		}
	}
}

// Context returns a new handle to the load's context.
func (t *TreeHandle) Context() (*ContextHandle, error) {
	st, err := t.state("tree.context")
	if err != nil {
		return nil, err
	}
	return &ContextHandle{handle: newHandle(KindContext, st.ledger), st: st}, nil
}

func (c *ContextHandle) state(op string) (*loaded, error) {
	if c == nil {
		return nil, nullHandle(op, KindContext)
	}
	if err := check(op, &c.handle, c.st); err != nil {
		return nil, err
	}
	return c.st, nil
}

// ForEachDiagnostic hands sink every diagnostic in the order it was raised.
func (c *ContextHandle) ForEachDiagnostic(sink func(objtree.Diagnostic) error) error {
	st, err := c.state("context.for_each_diagnostic")
	if err != nil {
		return err
	}
	var serr error
	st.ctx.ForEachDiagnostic(func(d objtree.Diagnostic) bool {
		var more bool
		more, serr = visit(sink(d))
		return more
	})
	return serr
}

// Counts returns the number of error and warning diagnostics.
func (c *ContextHandle) Counts() (errors, warnings int, err error) {
	st, err := c.state("context.counts")
	if err != nil {
		return 0, 0, err
	}
	errors, warnings = st.ctx.Counts()
	return errors, warnings, nil
}

// Files returns every source file read, in the order it was first read.
func (c *ContextHandle) Files() ([]string, error) {
	st, err := c.state("context.files")
	if err != nil {
		return nil, err
	}
	return st.ctx.Files(), nil
}

// FilePath returns the absolute path of a file ID, or "" for builtins.
func (c *ContextHandle) FilePath(id objtree.FileID) (string, error) {
	st, err := c.state("context.file_path")
	if err != nil {
		return "", err
	}
	return st.ctx.FilePath(id), nil
}

// FormatLocation renders loc as "file:line:column" using the file's base name.
func (c *ContextHandle) FormatLocation(loc objtree.Location) (string, error) {
	st, err := c.state("context.format_location")
	if err != nil {
		return "", err
	}
	return st.ctx.FormatLocation(loc), nil
}

// Release frees the context handle. Unload does this for the handle it is
// given.
func (c *ContextHandle) Release() error {
	if c == nil {
		return nullHandle("context.release", KindContext)
	}
	return c.release("context.release")
}
