package boundary

import (
	"iter"

	"github.com/corey/dmtree/internal/domain/encoding"
	"github.com/corey/dmtree/internal/domain/objtree"
)

// NodeHandle refers to one type in a loaded tree.
type NodeHandle struct {
	handle
	st  *loaded
	idx uint32
}

// ProcView is a copy of one proc entry. It is not a handle and needs no
// release; changing it never affects the tree.
type ProcView struct {
	Name        string
	Declaration *objtree.ProcDeclaration // nil for an override
	Values      []objtree.ProcValue
}

func (n *NodeHandle) typ(op string) (*loaded, *objtree.Type, error) {
	if n == nil {
		return nil, nil, nullHandle(op, KindNode)
	}
	if err := check(op, &n.handle, n.st); err != nil {
		return nil, nil, err
	}
	ty, _ := n.st.tree.Type(n.idx)
	return n.st, ty, nil
}

// Path returns the node's type path; "" for the root.
func (n *NodeHandle) Path() (string, error) {
	_, ty, err := n.typ("node.path")
	if err != nil {
		return "", err
	}
	return ty.Path, nil
}

// Index returns the node's position in the tree.
func (n *NodeHandle) Index() (uint32, error) {
	_, ty, err := n.typ("node.index")
	if err != nil {
		return 0, err
	}
	return ty.Index, nil
}

// ParentIndex returns the parent's index, or objtree.NoParent for the root.
func (n *NodeHandle) ParentIndex() (uint32, error) {
	_, ty, err := n.typ("node.parent_index")
	if err != nil {
		return 0, err
	}
	return ty.ParentIndex, nil
}

func (n *NodeHandle) IsRoot() (bool, error) {
	_, ty, err := n.typ("node.is_root")
	if err != nil {
		return false, err
	}
	return ty.IsRoot(), nil
}

// Location returns where the type was first written.
func (n *NodeHandle) Location() (objtree.Location, error) {
	_, ty, err := n.typ("node.location")
	if err != nil {
		return objtree.Location{}, err
	}
	return ty.Location, nil
}

// Parent returns a new handle to the parent node. The root has none.
func (n *NodeHandle) Parent() (*NodeHandle, error) {
	st, ty, err := n.typ("node.parent")
	if err != nil {
		return nil, err
	}
	if ty.IsRoot() {
		return nil, &Error{Kind: ErrKindNotFound, Op: "node.parent", Msg: "root has no parent"}
	}
	return st.node(ty.ParentIndex), nil
}

// ForEachChild hands sink a new handle for each direct child in
// declaration order.
func (n *NodeHandle) ForEachChild(sink func(*NodeHandle) error) error {
	st, ty, err := n.typ("node.for_each_child")
	if err != nil {
		return err
	}
	for _, idx := range ty.ChildIndices() {
		if more, err := visit(sink(st.node(idx))); !more {
			return err
		}
	}
	return nil
}

// Children is the pull form of ForEachChild.
func (n *NodeHandle) Children() iter.Seq[*NodeHandle] {
	first := oneShot()
	return func(yield func(*NodeHandle) bool) {
		st, ty, err := n.typ("node.children")
		if err != nil || !first() {
			return
		}
		for _, idx := range ty.ChildIndices() {
			if !yield(st.node(idx)) {
				return
			}
		}
	}
}

// ForEachVariable hands sink the name and a new handle for each variable
// written at this node, in insertion order. Inherited variables are not
// visited.
func (n *NodeHandle) ForEachVariable(sink func(name string, v *VarHandle) error) error {
	st, ty, err := n.typ("node.for_each_variable")
	if err != nil {
		return err
	}
	for _, v := range ty.Vars() {
		if more, err := visit(sink(v.Name, st.variable(n.idx, v))); !more {
			return err
		}
	}
	return nil
}

// Variables is the pull form of ForEachVariable.
func (n *NodeHandle) Variables() iter.Seq2[string, *VarHandle] {
	first := oneShot()
	return func(yield func(string, *VarHandle) bool) {
		st, ty, err := n.typ("node.variables")
		if err != nil || !first() {
			return
		}
		for _, v := range ty.Vars() {
			if !yield(v.Name, st.variable(n.idx, v)) {
				return
			}
		}
	}
}

// Variable returns a new handle to the variable written at this node
// under name.
func (n *NodeHandle) Variable(name string) (*VarHandle, error) {
	st, ty, err := n.typ("node.variable")
	if err != nil {
		return nil, err
	}
	v, ok := ty.Var(name)
	if !ok {
		return nil, &Error{Kind: ErrKindNotFound, Op: "node.variable", Msg: "no var " + name + " at " + displayPath(ty)}
	}
	return st.variable(n.idx, v), nil
}

// ForEachProcedure hands sink a view of each proc written at this node in
// source order.
func (n *NodeHandle) ForEachProcedure(sink func(name string, p *ProcView) error) error {
	_, ty, err := n.typ("node.for_each_procedure")
	if err != nil {
		return err
	}
	for _, p := range ty.Procs() {
		c := p.Clone()
		view := &ProcView{Name: c.Name, Declaration: c.Declaration, Values: c.Values}
		if more, err := visit(sink(p.Name, view)); !more {
			return err
		}
	}
	return nil
}

// EncodeVariables serializes the variables written at this node into a
// new buffer.
func (n *NodeHandle) EncodeVariables() (*Buffer, error) {
	st, ty, err := n.typ("node.encode_variables")
	if err != nil {
		return nil, err
	}
	data, err := encoding.EncodeVars(ty, st.ctx)
	if err != nil {
		return nil, &Error{Kind: ErrKindEncoding, Op: "node.encode_variables", Msg: "encode failed", Err: err}
	}
	return newBuffer(st.ledger, data), nil
}

// EncodeProcedures serializes the procs written at this node into a new
// buffer.
func (n *NodeHandle) EncodeProcedures() (*Buffer, error) {
	st, ty, err := n.typ("node.encode_procedures")
	if err != nil {
		return nil, err
	}
	data, err := encoding.EncodeProcs(ty, st.ctx)
	if err != nil {
		return nil, &Error{Kind: ErrKindEncoding, Op: "node.encode_procedures", Msg: "encode failed", Err: err}
	}
	return newBuffer(st.ledger, data), nil
}

// Free releases the handle. It is valid after the tree was unloaded.
func (n *NodeHandle) Free() error {
	if n == nil {
		return nullHandle("node.free", KindNode)
	}
	return n.release("node.free")
}

// NodeFree releases n.
func NodeFree(n *NodeHandle) error { return n.Free() }

func displayPath(ty *objtree.Type) string {
	if ty.IsRoot() {
		return "/"
	}
	return ty.Path
}
