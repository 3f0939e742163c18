package native

import (
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"

	"github.com/corey/dmtree/internal/boundary"
)

// Node is a plain copy of one node's identity, read through the ABI.
type Node struct {
	Index       uint32
	ParentIndex uint32
	Path        string
	IsRoot      bool
}

// Tree is a tree loaded by the library. Close unloads it.
type Tree struct {
	lib    *Library
	handle uintptr
	ctx    uintptr
}

// Load loads path through dmtree_load. Failures come back as
// *boundary.Error carrying the kind the library reported.
func (l *Library) Load(path string) (*Tree, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	var tree uintptr
	var msg unsafe.Pointer
	if rc := l.load(path, &tree, &msg); rc != 0 {
		text := goString(msg)
		l.errorFree(msg)
		return nil, &boundary.Error{Kind: boundary.ErrKind(rc), Op: "native.load", Path: path, Msg: text}
	}
	return &Tree{lib: l, handle: tree, ctx: l.treeContext(tree)}, nil
}

// Close unloads the tree and its context.
func (t *Tree) Close() {
	t.lib.mu.Lock()
	defer t.lib.mu.Unlock()
	t.lib.unload(t.handle, t.ctx)
	t.handle, t.ctx = 0, 0
}

// Every sink the ABI calls back into is created once per process: purego
// callbacks are never freed. The user pointer selects the visitor.
var (
	callbacksOnce sync.Once
	nodeSinkCB    uintptr
	varSinkCB     uintptr

	visitorsMu sync.Mutex
	visitors   = map[uintptr]any{}
	nextID     uintptr
)

type nodeVisitor func(node uintptr) bool
type varVisitor func(name string, v uintptr) bool

func initCallbacks() {
	callbacksOnce.Do(func() {
		nodeSinkCB = purego.NewCallback(func(user, node uintptr) uintptr {
			if visitor(user).(nodeVisitor)(node) {
				return 0
			}
			return 1
		})
		varSinkCB = purego.NewCallback(func(user, name, v uintptr) uintptr {
			if visitor(user).(varVisitor)(goString(ptr(name)), v) {
				return 0
			}
			return 1
		})
	})
}

func register(v any) (uintptr, func()) {
	visitorsMu.Lock()
	defer visitorsMu.Unlock()
	nextID++
	id := nextID
	visitors[id] = v
	return id, func() {
		visitorsMu.Lock()
		delete(visitors, id)
		visitorsMu.Unlock()
	}
}

func visitor(id uintptr) any {
	visitorsMu.Lock()
	defer visitorsMu.Unlock()
	return visitors[id]
}

func (l *Library) readNode(h uintptr) Node {
	p := l.nodePath(h)
	path := goString(p)
	l.stringFree(p)
	return Node{
		Index:       l.nodeIndex(h),
		ParentIndex: l.nodeParentIndex(h),
		Path:        path,
		IsRoot:      l.nodeIsRoot(h) != 0,
	}
}

// forNode runs fn with a live handle to the node at idx, found by a node
// traversal. It reports false when no node has that index.
func (t *Tree) forNode(idx uint32, fn func(node uintptr)) bool {
	l := t.lib
	found := false
	id, done := register(nodeVisitor(func(node uintptr) bool {
		if l.nodeIndex(node) != idx {
			l.nodeFree(node)
			return true
		}
		found = true
		fn(node)
		l.nodeFree(node)
		return false
	}))
	defer done()
	l.treeForEachNode(t.handle, nodeSinkCB, id)
	return found
}

// Nodes reads every node in traversal order.
func (t *Tree) Nodes() []Node {
	initCallbacks()
	l := t.lib
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []Node
	id, done := register(nodeVisitor(func(node uintptr) bool {
		out = append(out, l.readNode(node))
		l.nodeFree(node)
		return true
	}))
	defer done()
	l.treeForEachNode(t.handle, nodeSinkCB, id)
	return out
}

// Root reads the root node.
func (t *Tree) Root() Node {
	l := t.lib
	l.mu.Lock()
	defer l.mu.Unlock()
	h := l.treeRoot(t.handle)
	defer l.nodeFree(h)
	return l.readNode(h)
}

// Children reads the direct children of the node at idx.
func (t *Tree) Children(idx uint32) ([]Node, bool) {
	initCallbacks()
	l := t.lib
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []Node
	ok := t.forNode(idx, func(node uintptr) {
		id, done := register(nodeVisitor(func(child uintptr) bool {
			out = append(out, l.readNode(child))
			l.nodeFree(child)
			return true
		}))
		defer done()
		l.nodeForEachChild(node, nodeSinkCB, id)
	})
	return out, ok
}

// Variables returns the names of the variables at the node at idx, in
// insertion order, and each one's single-entry encoding.
func (t *Tree) Variables(idx uint32) (names []string, encoded [][]byte, ok bool) {
	initCallbacks()
	l := t.lib
	l.mu.Lock()
	defer l.mu.Unlock()

	ok = t.forNode(idx, func(node uintptr) {
		id, done := register(varVisitor(func(name string, v uintptr) bool {
			names = append(names, name)
			encoded = append(encoded, l.copyBuffer(l.varEncode, v))
			l.varFree(v)
			return true
		}))
		defer done()
		l.nodeForEachVariable(node, varSinkCB, id)
	})
	return names, encoded, ok
}

// EncodeVariables returns the bulk variable encoding of the node at idx.
func (t *Tree) EncodeVariables(idx uint32) ([]byte, bool) {
	return t.encode(idx, t.lib.nodeEncodeVariables)
}

// EncodeProcedures returns the bulk proc encoding of the node at idx.
func (t *Tree) EncodeProcedures(idx uint32) ([]byte, bool) {
	return t.encode(idx, t.lib.nodeEncodeProcedures)
}

func (t *Tree) encode(idx uint32, fn func(uintptr, *uintptr) unsafe.Pointer) ([]byte, bool) {
	initCallbacks()
	l := t.lib
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []byte
	ok := t.forNode(idx, func(node uintptr) {
		out = l.copyBuffer(fn, node)
	})
	return out, ok
}

// copyBuffer calls an encode entry point and copies the C buffer into Go
// memory before freeing it.
func (l *Library) copyBuffer(fn func(uintptr, *uintptr) unsafe.Pointer, h uintptr) []byte {
	var n uintptr
	p := fn(h, &n)
	out := make([]byte, n)
	copy(out, unsafe.Slice((*byte)(p), n))
	l.bufferFree(p)
	return out
}
