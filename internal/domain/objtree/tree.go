package objtree

import (
	"strings"

	"github.com/edwingeng/deque"
)

// Tree is a finished, immutable type hierarchy. Index 0 is always the root.
type Tree struct {
	types  []*Type
	byPath map[string]uint32
}

// Root returns the root type.
func (t *Tree) Root() *Type { return t.types[0] }

// Len returns the number of types, root included.
func (t *Tree) Len() int { return len(t.types) }

// Type returns the type at idx.
func (t *Tree) Type(idx uint32) (*Type, bool) {
	if int64(idx) >= int64(len(t.types)) {
		return nil, false
	}
	return t.types[idx], true
}

// Find looks a type up by path. "", "/" name the root; a missing leading slash
// and trailing slashes are tolerated.
func (t *Tree) Find(path string) (*Type, bool) {
	idx, ok := t.byPath[NormalizePath(path)]
	if !ok {
		return nil, false
	}
	return t.types[idx], true
}

// ForEachType visits every type in index order until fn returns false.
// The order is stable for the lifetime of the tree.
func (t *Tree) ForEachType(fn func(*Type) bool) {
	for _, ty := range t.types {
		if !fn(ty) {
			return
		}
	}
}

// Children returns the direct children of ty in declaration order.
func (t *Tree) Children(ty *Type) []*Type {
	out := make([]*Type, len(ty.children))
	for i, idx := range ty.children {
		out[i] = t.types[idx]
	}
	return out
}

// Parent returns the parent of ty; false for the root.
func (t *Tree) Parent(ty *Type) (*Type, bool) {
	if ty.IsRoot() {
		return nil, false
	}
	return t.types[ty.ParentIndex], true
}

// Ancestors returns the chain from the root down to ty's parent.
func (t *Tree) Ancestors(ty *Type) []*Type {
	var rev []*Type
	for p, ok := t.Parent(ty); ok; p, ok = t.Parent(p) {
		rev = append(rev, p)
	}
	out := make([]*Type, len(rev))
	for i, p := range rev {
		out[len(rev)-1-i] = p
	}
	return out
}

// WalkBreadthFirst visits from and its descendants level by level. fn gets the
// depth relative to from; returning false skips that type's children.
func (t *Tree) WalkBreadthFirst(from *Type, fn func(ty *Type, depth int) bool) {
	type item struct {
		idx   uint32
		depth int
	}
	queue := deque.NewDeque()
	queue.PushBack(item{from.Index, 0})
	for queue.Len() != 0 {
		it := queue.Front().(item)
		queue.PopFront()
		ty := t.types[it.idx]
		if !fn(ty, it.depth) {
			continue
		}
		for _, c := range ty.children {
			queue.PushBack(item{c, it.depth + 1})
		}
	}
}

// VarLink pairs a variable entry with the type it is written at.
type VarLink struct {
	Owner *Type
	Var   *TypeVar
}

// VarChain returns every entry for name along the inheritance path of ty,
// least derived first.
func (t *Tree) VarChain(ty *Type, name string) []VarLink {
	var out []VarLink
	for _, a := range append(t.Ancestors(ty), ty) {
		if v, ok := a.Var(name); ok {
			out = append(out, VarLink{Owner: a, Var: v})
		}
	}
	return out
}

// ProcLink pairs a proc entry with the type it is written at.
type ProcLink struct {
	Owner *Type
	Proc  *TypeProc
}

// ProcChain returns every entry for name along the inheritance path of ty,
// least derived first. Within one link, values keep source order.
func (t *Tree) ProcChain(ty *Type, name string) []ProcLink {
	var out []ProcLink
	for _, a := range append(t.Ancestors(ty), ty) {
		if p, ok := a.Proc(name); ok {
			out = append(out, ProcLink{Owner: a, Proc: p})
		}
	}
	return out
}

// FindVarDeclaration returns the declaration of name visible from ty.
func (t *Tree) FindVarDeclaration(ty *Type, name string) (*VarDeclaration, *Type, bool) {
	for cur, ok := ty, true; ok; cur, ok = t.Parent(cur) {
		if v, found := cur.Var(name); found && v.Declaration != nil {
			return v.Declaration, cur, true
		}
	}
	return nil, nil, false
}

// FindProcDeclaration returns the declaration of name visible from ty.
func (t *Tree) FindProcDeclaration(ty *Type, name string) (*ProcDeclaration, *Type, bool) {
	for cur, ok := ty, true; ok; cur, ok = t.Parent(cur) {
		if p, found := cur.Proc(name); found && p.Declaration != nil {
			return p.Declaration, cur, true
		}
	}
	return nil, nil, false
}

// NormalizePath canonicalizes a type path: "" for the root, otherwise
// "/seg/seg" with empty segments removed.
func NormalizePath(path string) string {
	segs := SplitPath(path)
	if len(segs) == 0 {
		return ""
	}
	return "/" + strings.Join(segs, "/")
}

// SplitPath splits a type path into its non-empty segments.
func SplitPath(path string) []string {
	parts := strings.Split(path, "/")
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
