package boundary

import (
	"github.com/corey/dmtree/internal/domain/encoding"
	"github.com/corey/dmtree/internal/domain/objtree"
)

// VarHandle refers to one variable entry of one node.
type VarHandle struct {
	handle
	st    *loaded
	owner uint32
	v     *objtree.TypeVar
}

func (st *loaded) variable(owner uint32, v *objtree.TypeVar) *VarHandle {
	return &VarHandle{handle: newHandle(KindVar, st.ledger), st: st, owner: owner, v: v}
}

func (h *VarHandle) entry(op string) (*loaded, *objtree.TypeVar, error) {
	if h == nil {
		return nil, nil, nullHandle(op, KindVar)
	}
	if err := check(op, &h.handle, h.st); err != nil {
		return nil, nil, err
	}
	return h.st, h.v, nil
}

func (h *VarHandle) Name() (string, error) {
	_, v, err := h.entry("var.name")
	if err != nil {
		return "", err
	}
	return v.Name, nil
}

// Entry returns a deep copy of the variable entry. Changing it never
// affects the tree.
func (h *VarHandle) Entry() (objtree.TypeVar, error) {
	_, v, err := h.entry("var.entry")
	if err != nil {
		return objtree.TypeVar{}, err
	}
	return v.Clone(), nil
}

// Owner returns a new handle to the node the variable is written at.
func (h *VarHandle) Owner() (*NodeHandle, error) {
	st, _, err := h.entry("var.owner")
	if err != nil {
		return nil, err
	}
	return st.node(h.owner), nil
}

// Encode serializes this single entry with the same envelope as
// NodeHandle.EncodeVariables.
func (h *VarHandle) Encode() (*Buffer, error) {
	st, v, err := h.entry("var.encode")
	if err != nil {
		return nil, err
	}
	ty, _ := st.tree.Type(h.owner)
	data, err := encoding.EncodeVar(ty.Path, v, st.ctx)
	if err != nil {
		return nil, &Error{Kind: ErrKindEncoding, Op: "var.encode", Msg: "encode failed", Err: err}
	}
	return newBuffer(st.ledger, data), nil
}

func (h *VarHandle) Free() error {
	if h == nil {
		return nullHandle("var.free", KindVar)
	}
	return h.release("var.free")
}

// VarFree releases v.
func VarFree(v *VarHandle) error { return v.Free() }
