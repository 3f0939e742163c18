package boundary

import (
	"errors"
	"math/rand/v2"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/lithammer/dedent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corey/dmtree/internal/adapters/dm"
	"github.com/corey/dmtree/internal/domain/encoding"
	"github.com/corey/dmtree/internal/domain/objtree"
	"github.com/corey/dmtree/internal/ports"
)

// fixtureSource is the three-level tree: root -> /obj -> /obj/item, two vars
// per type, one overridden in the child.
const fixtureSource = `
	/obj
		var/name = "object"
		var/weight = 1
		proc/describe()
			return name

	/obj/item
		weight = 2
		var/slot = "hand"
		describe()
			return "item"
`

func writeFixture(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "fixture.dme")
	require.NoError(t, os.WriteFile(path, []byte(dedent.Dedent(src)), 0o644))
	return path
}

func loadFixture(t *testing.T) (*TreeHandle, *Ledger) {
	t.Helper()
	l := NewLedger()
	tree, err := Load(writeFixture(t, fixtureSource), WithLedger(l))
	require.NoError(t, err)
	return tree, l
}

type nodeInfo struct {
	path   string
	index  uint32
	parent uint32
}

func collectNodes(t *testing.T, tree *TreeHandle) []nodeInfo {
	t.Helper()
	var out []nodeInfo
	require.NoError(t, tree.ForEachNode(func(n *NodeHandle) error {
		defer n.Free()
		var info nodeInfo
		var err error
		if info.path, err = n.Path(); err != nil {
			return err
		}
		if info.index, err = n.Index(); err != nil {
			return err
		}
		if info.parent, err = n.ParentIndex(); err != nil {
			return err
		}
		out = append(out, info)
		return nil
	}))
	return out
}

// ---------------------------------------------------------------------------
// Loader
// ---------------------------------------------------------------------------

func TestLoad_FixtureRoot(t *testing.T) {
	tree, l := loadFixture(t)

	root, err := tree.Root()
	require.NoError(t, err)

	path, err := root.Path()
	require.NoError(t, err)
	assert.Equal(t, "", path)

	isRoot, err := root.IsRoot()
	require.NoError(t, err)
	assert.True(t, isRoot)

	parent, err := root.ParentIndex()
	require.NoError(t, err)
	assert.Equal(t, objtree.NoParent, parent)

	var children []string
	require.NoError(t, root.ForEachChild(func(c *NodeHandle) error {
		p, err := c.Path()
		children = append(children, p)
		c.Free()
		return err
	}))
	assert.Equal(t, []string{"/obj"}, children)

	_, err = root.Parent()
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, root.Free())
	require.NoError(t, Unload(tree, nil))
	assert.Zero(t, l.Outstanding())
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.dm")
	require.NoError(t, os.WriteFile(bad, []byte("/obj\n\tname = \"caf\xe9\"\n"), 0o644))

	tests := []struct {
		name string
		path string
		opts []Option
		want error
	}{
		{"missing", filepath.Join(dir, "nope.dme"), nil, ErrIO},
		{"empty", "", nil, ErrInvalidPath},
		{"nul", "a\x00b.dme", nil, ErrInvalidPath},
		{"directory", dir, nil, ErrInvalidPath},
		{"invalid utf-8 path", "caf\xe9.dme", nil, ErrEncoding},
		{"strict encoding", bad, []Option{WithEncoding("utf-8")}, ErrEncoding},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := NewLedger()
			tree, err := Load(tt.path, append(tt.opts, WithLedger(l))...)
			require.Error(t, err)
			assert.Nil(t, tree)
			assert.ErrorIs(t, err, tt.want)

			var e *Error
			require.ErrorAs(t, err, &e)
			assert.Equal(t, "load", e.Op)
			assert.Zero(t, l.Outstanding())
		})
	}

	_, err := Load(filepath.Join(dir, "nope.dme"))
	assert.ErrorIs(t, err, os.ErrNotExist)
	kind, ok := KindOf(err)
	assert.True(t, ok)
	assert.Equal(t, ErrKindIO, kind)
}

func TestLoad_DiagnosticsDoNotFail(t *testing.T) {
	path := writeFixture(t, `
		#include "missing.dm"
		/obj
			var/name = "object"
	`)
	l := NewLedger()
	calls := 0
	err := LoadWith(path, func(tree *TreeHandle, ctx *ContextHandle) {
		calls++
		defer func() { require.NoError(t, Unload(tree, ctx)) }()

		errs, _, err := ctx.Counts()
		require.NoError(t, err)
		assert.Equal(t, 1, errs)

		var msgs []string
		require.NoError(t, ctx.ForEachDiagnostic(func(d objtree.Diagnostic) error {
			msgs = append(msgs, d.Message)
			return nil
		}))
		require.Len(t, msgs, 1)
		assert.Contains(t, msgs[0], "missing.dm")

		n, err := tree.Len()
		require.NoError(t, err)
		assert.Equal(t, 2, n)
	}, WithLedger(l))
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Zero(t, l.Outstanding())
}

func TestLoadWith_NotCalledOnError(t *testing.T) {
	err := LoadWith(filepath.Join(t.TempDir(), "nope.dme"), func(*TreeHandle, *ContextHandle) {
		t.Fatal("sink called on error")
	})
	assert.ErrorIs(t, err, ErrIO)
}

func TestLoad_Options(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "lib"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "lib", "extra.dm"), []byte("/obj/extra\n"), 0o644))
	path := writeFixture(t, `
		#include "extra.dm"
		#ifdef WITH_WIDGET
		/obj/widget
		#endif
	`)

	tree, err := Load(path,
		WithLedger(NewLedger()),
		WithIncludePaths([]string{filepath.Join(dir, "lib")}),
		WithDefines(map[string]string{"WITH_WIDGET": "1"}))
	require.NoError(t, err)
	defer Unload(tree, nil)

	for _, p := range []string{"/obj/extra", "/obj/widget"} {
		n, err := tree.Find(p)
		require.NoError(t, err, p)
		require.NoError(t, n.Free())
	}
	_, err = tree.Find("/obj/nothing")
	assert.ErrorIs(t, err, ErrNotFound)
}

// ---------------------------------------------------------------------------
// Tree shape
// ---------------------------------------------------------------------------

func TestTraversal_Properties(t *testing.T) {
	tree, l := loadFixture(t)

	nodes := collectNodes(t, tree)
	require.Len(t, nodes, 3)
	assert.Equal(t, []string{"", "/obj", "/obj/item"}, []string{nodes[0].path, nodes[1].path, nodes[2].path})

	count := uint32(len(nodes))
	for i, n := range nodes {
		// every node once, in index order
		assert.Equal(t, uint32(i), n.index)
		if i == 0 {
			assert.Equal(t, objtree.NoParent, n.parent)
			continue
		}
		assert.Less(t, n.parent, count)

		// walking up reaches the root within count steps
		cur, steps := n, uint32(0)
		for cur.parent != objtree.NoParent {
			cur = nodes[cur.parent]
			steps++
			require.LessOrEqual(t, steps, count, "cycle above %s", n.path)
		}
		assert.Equal(t, uint32(0), cur.index)
	}

	// identical on a second pass
	assert.Equal(t, nodes, collectNodes(t, tree))

	// children are exactly the nodes naming the parent
	for _, parent := range nodes {
		var want []uint32
		for _, n := range nodes {
			if n.parent == parent.index {
				want = append(want, n.index)
			}
		}
		ph, err := tree.Node(parent.index)
		require.NoError(t, err)
		var got []uint32
		require.NoError(t, ph.ForEachChild(func(c *NodeHandle) error {
			defer c.Free()
			idx, err := c.Index()
			got = append(got, idx)
			return err
		}))
		assert.Equal(t, want, got, "children of %q", parent.path)
		require.NoError(t, ph.Free())
	}

	_, err := tree.Node(count)
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, Unload(tree, nil))
	assert.Zero(t, l.Outstanding())
}

func TestVariables_OwnEntriesOnly(t *testing.T) {
	tree, l := loadFixture(t)
	defer func() {
		require.NoError(t, Unload(tree, nil))
		assert.Zero(t, l.Outstanding())
	}()

	tests := []struct {
		path  string
		names []string
	}{
		{"", nil},
		{"/obj", []string{"name", "weight"}},
		{"/obj/item", []string{"weight", "slot"}},
	}
	for _, tt := range tests {
		n, err := tree.Find(tt.path)
		require.NoError(t, err)

		var names []string
		require.NoError(t, n.ForEachVariable(func(name string, v *VarHandle) error {
			defer v.Free()
			assert.NotEmpty(t, name)
			got, err := v.Name()
			assert.Equal(t, name, got)
			names = append(names, name)
			return err
		}))
		assert.Equal(t, tt.names, names, tt.path)
		require.NoError(t, n.Free())
	}

	item, err := tree.Find("/obj/item")
	require.NoError(t, err)
	defer item.Free()

	weight, err := item.Variable("weight")
	require.NoError(t, err)
	entry, err := weight.Entry()
	require.NoError(t, err)
	assert.Nil(t, entry.Declaration, "override carries no declaration")
	require.NotNil(t, entry.Value.Constant)
	assert.Equal(t, objtree.Int(2), *entry.Value.Constant)

	owner, err := weight.Owner()
	require.NoError(t, err)
	p, _ := owner.Path()
	assert.Equal(t, "/obj/item", p)
	require.NoError(t, owner.Free())
	require.NoError(t, weight.Free())

	_, err = item.Variable("name")
	assert.ErrorIs(t, err, ErrNotFound, "inherited vars are not entries")
}

func TestProcedures_Views(t *testing.T) {
	tree, l := loadFixture(t)

	item, err := tree.Find("/obj/item")
	require.NoError(t, err)
	var got []*ProcView
	require.NoError(t, item.ForEachProcedure(func(name string, p *ProcView) error {
		got = append(got, p)
		return nil
	}))
	require.Len(t, got, 1)
	assert.Equal(t, "describe", got[0].Name)
	assert.Nil(t, got[0].Declaration)
	require.Len(t, got[0].Values, 1)
	assert.Equal(t, `return "item"`, got[0].Values[0].Body)

	require.NoError(t, item.Free())
	require.NoError(t, Unload(tree, nil))
	assert.Zero(t, l.Outstanding(), "views are not handles")
}

// ---------------------------------------------------------------------------
// Bulk encoding
// ---------------------------------------------------------------------------

func TestEncodeVariables_MatchesTraversal(t *testing.T) {
	tree, l := loadFixture(t)

	require.NoError(t, tree.ForEachNode(func(n *NodeHandle) error {
		defer n.Free()
		path, _ := n.Path()

		var want []objtree.TypeVar
		require.NoError(t, n.ForEachVariable(func(_ string, v *VarHandle) error {
			defer v.Free()
			e, err := v.Entry()
			want = append(want, e)
			return err
		}))

		buf, err := n.EncodeVariables()
		require.NoError(t, err)
		data, err := buf.Bytes()
		require.NoError(t, err)
		assert.Equal(t, len(data), buf.Len())

		set, err := encoding.DecodeVars(data)
		require.NoError(t, err)
		assert.Equal(t, path, set.Path)
		require.Len(t, set.Entries, len(want))
		for i, rec := range set.Entries {
			got, err := rec.TypeVar()
			require.NoError(t, err)
			assert.Equal(t, want[i].Name, got.Name)
			assert.Equal(t, want[i].Value.Expression, got.Value.Expression)
			assert.Equal(t, want[i].Declaration != nil, got.Declaration != nil)
		}
		require.NoError(t, BufferFree(buf))

		procs, err := n.EncodeProcedures()
		require.NoError(t, err)
		pdata, _ := procs.Bytes()
		pset, err := encoding.DecodeProcs(pdata)
		require.NoError(t, err)
		assert.Equal(t, path, pset.Path)
		return BufferFree(procs)
	}))

	item, err := tree.Find("/obj/item")
	require.NoError(t, err)
	slot, err := item.Variable("slot")
	require.NoError(t, err)
	buf, err := slot.Encode()
	require.NoError(t, err)
	data, _ := buf.Bytes()
	set, err := encoding.DecodeVars(data)
	require.NoError(t, err)
	require.Len(t, set.Entries, 1)
	assert.Equal(t, "slot", set.Entries[0].Name)
	assert.Equal(t, "/obj/item", set.Path)

	require.NoError(t, buf.Free())
	_, err = buf.Bytes()
	assert.ErrorIs(t, err, ErrReleased)
	assert.Zero(t, buf.Len())

	require.NoError(t, slot.Free())
	require.NoError(t, item.Free())
	require.NoError(t, Unload(tree, nil))
	assert.Zero(t, l.Outstanding())
}

// ---------------------------------------------------------------------------
// Handle lifecycle
// ---------------------------------------------------------------------------

func TestHandles_DoubleRelease(t *testing.T) {
	tree, l := loadFixture(t)

	root, err := tree.Root()
	require.NoError(t, err)
	require.NoError(t, NodeFree(root))
	before := l.Snapshot()

	err = NodeFree(root)
	assert.ErrorIs(t, err, ErrReleased)
	assert.Equal(t, before, l.Snapshot(), "ledger untouched by a second release")

	_, err = root.Path()
	assert.ErrorIs(t, err, ErrReleased)

	require.NoError(t, Unload(tree, nil))
	assert.ErrorIs(t, Unload(tree, nil), ErrReleased)
	assert.Zero(t, l.Outstanding())
}

func TestHandles_Nil(t *testing.T) {
	var (
		tree *TreeHandle
		ctx  *ContextHandle
		node *NodeHandle
		v    *VarHandle
		buf  *Buffer
	)
	_, err := tree.Root()
	assert.ErrorIs(t, err, ErrNullHandle)
	assert.ErrorIs(t, tree.ForEachNode(func(*NodeHandle) error { return nil }), ErrNullHandle)
	_, err = node.Path()
	assert.ErrorIs(t, err, ErrNullHandle)
	assert.ErrorIs(t, NodeFree(node), ErrNullHandle)
	_, err = v.Name()
	assert.ErrorIs(t, err, ErrNullHandle)
	assert.ErrorIs(t, VarFree(v), ErrNullHandle)
	assert.ErrorIs(t, BufferFree(buf), ErrNullHandle)
	assert.Zero(t, buf.Len())
	assert.ErrorIs(t, ctx.Release(), ErrNullHandle)
	assert.ErrorIs(t, Unload(tree, ctx), ErrNullHandle)

	for range tree.Nodes() {
		t.Fatal("nil tree yielded a node")
	}
}

func TestUnload_RejectsForeignContext(t *testing.T) {
	l := NewLedger()
	first, err := Load(writeFixture(t, fixtureSource), WithLedger(l))
	require.NoError(t, err)
	second, err := Load(writeFixture(t, fixtureSource), WithLedger(l))
	require.NoError(t, err)
	foreign, err := second.Context()
	require.NoError(t, err)
	before := l.Snapshot()

	err = Unload(first, foreign)
	assert.ErrorIs(t, err, ErrMismatch)
	assert.Equal(t, before, l.Snapshot(), "nothing released")

	// Both loads are still usable.
	_, err = first.Len()
	assert.NoError(t, err)
	_, err = foreign.Files()
	assert.NoError(t, err)

	own, err := first.Context()
	require.NoError(t, err)
	require.NoError(t, own.Release())
	assert.ErrorIs(t, Unload(first, own), ErrReleased)
	_, err = first.Len()
	assert.NoError(t, err, "tree kept when the context was already released")

	require.NoError(t, Unload(first, nil))
	require.NoError(t, Unload(second, foreign))
	assert.Zero(t, l.Outstanding())
}

func TestHandles_OutliveUnload(t *testing.T) {
	tree, l := loadFixture(t)

	item, err := tree.Find("/obj/item")
	require.NoError(t, err)
	slot, err := item.Variable("slot")
	require.NoError(t, err)
	ctx, err := tree.Context()
	require.NoError(t, err)

	require.NoError(t, Unload(tree, ctx))

	_, err = item.Path()
	assert.ErrorIs(t, err, ErrUnloaded)
	_, err = slot.Encode()
	assert.ErrorIs(t, err, ErrUnloaded)
	_, err = ctx.Files()
	assert.ErrorIs(t, err, ErrReleased)
	_, err = tree.Root()
	assert.ErrorIs(t, err, ErrReleased)

	assert.Equal(t, int64(2), l.Outstanding())
	require.NoError(t, slot.Free())
	require.NoError(t, item.Free())
	assert.Zero(t, l.Outstanding())
}

func TestTraversal_Stop(t *testing.T) {
	tree, l := loadFixture(t)

	seen := 0
	err := tree.ForEachNode(func(n *NodeHandle) error {
		n.Free()
		seen++
		if seen == 2 {
			return Stop
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 2, seen)

	boom := errors.New("boom")
	err = tree.ForEachNode(func(n *NodeHandle) error {
		n.Free()
		return boom
	})
	assert.Same(t, boom, err)

	require.NoError(t, Unload(tree, nil))
	assert.Zero(t, l.Outstanding())
}

func TestPullViews(t *testing.T) {
	tree, l := loadFixture(t)

	nodes := tree.Nodes()
	var paths []string
	for n := range nodes {
		p, err := n.Path()
		require.NoError(t, err)
		paths = append(paths, p)
		require.NoError(t, n.Free())
	}
	assert.Equal(t, []string{"", "/obj", "/obj/item"}, paths)
	for range nodes {
		t.Fatal("a consumed view yielded again")
	}

	// breaking early allocates nothing more
	for n := range tree.Nodes() {
		require.NoError(t, n.Free())
		break
	}
	assert.Equal(t, int64(4), l.Snapshot()[KindNode].Allocated)

	obj, err := tree.Find("/obj")
	require.NoError(t, err)
	var children []string
	for c := range obj.Children() {
		p, _ := c.Path()
		children = append(children, p)
		require.NoError(t, c.Free())
	}
	assert.Equal(t, []string{"/obj/item"}, children)

	var names []string
	for name, v := range obj.Variables() {
		names = append(names, name)
		require.NoError(t, v.Free())
	}
	assert.Equal(t, []string{"name", "weight"}, names)

	require.NoError(t, obj.Free())
	require.NoError(t, Unload(tree, nil))
	assert.Zero(t, l.Outstanding())
}

// TestLedger_RandomizedTraversal drives random handle operations over the
// fixture from several goroutines and checks every allocation was released.
func TestLedger_RandomizedTraversal(t *testing.T) {
	tree, l := loadFixture(t)
	count, err := tree.Len()
	require.NoError(t, err)

	var wg sync.WaitGroup
	for worker := range 4 {
		wg.Add(1)
		go func(seed uint64) {
			defer wg.Done()
			rng := rand.New(rand.NewPCG(seed, 42))
			for range 200 {
				n, err := tree.Node(uint32(rng.IntN(count)))
				if !assert.NoError(t, err) {
					return
				}
				switch rng.IntN(5) {
				case 0:
					p, err := n.Parent()
					if err == nil {
						p.Free()
					}
				case 1:
					n.ForEachChild(func(c *NodeHandle) error { return c.Free() })
				case 2:
					n.ForEachVariable(func(_ string, v *VarHandle) error {
						if rng.IntN(2) == 0 {
							if b, err := v.Encode(); err == nil {
								b.Free()
							}
						}
						return v.Free()
					})
				case 3:
					if b, err := n.EncodeVariables(); err == nil {
						b.Free()
					}
				case 4:
					for c := range n.Children() {
						c.Free()
						break
					}
				}
				n.Free()
			}
		}(uint64(worker))
	}
	wg.Wait()

	require.NoError(t, Unload(tree, nil))
	assert.Zero(t, l.Outstanding())
	for kind, c := range l.Snapshot() {
		assert.Equal(t, c.Allocated, c.Released, kind.String())
	}
}

// ---------------------------------------------------------------------------
// Snapshot cache
// ---------------------------------------------------------------------------

type memStore struct {
	mu    sync.Mutex
	snaps map[string]*ports.Snapshot
}

func newMemStore() *memStore { return &memStore{snaps: make(map[string]*ports.Snapshot)} }

func (m *memStore) SaveSnapshot(key string, snap *ports.Snapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snaps[key] = snap
	return nil
}

func (m *memStore) LoadSnapshot(key string) (*ports.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snaps[key], nil
}

func (m *memStore) DeleteSnapshot(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.snaps, key)
	return nil
}

func (m *memStore) Keys() ([]string, error) { return nil, nil }
func (m *memStore) Clear() error            { return nil }

type countingReader struct {
	reads int
	inner ports.Reader
}

func (r *countingReader) Read(ctx *objtree.Context, path string, opts ports.ReadOptions) (*objtree.Tree, error) {
	r.reads++
	return r.inner.Read(ctx, path, opts)
}

type brokenStore struct{ memStore }

func (*brokenStore) LoadSnapshot(string) (*ports.Snapshot, error) { return nil, errors.New("store closed") }

func TestLoad_Cache(t *testing.T) {
	path := writeFixture(t, fixtureSource)
	store := newMemStore()
	reader := &countingReader{inner: dm.NewReader()}
	opts := []Option{WithLedger(NewLedger()), WithCache(store), WithReader(reader)}

	paths := func() []string {
		tree, err := Load(path, opts...)
		require.NoError(t, err)
		defer Unload(tree, nil)
		return collectPaths(t, tree)
	}

	first := paths()
	assert.Equal(t, 1, reader.reads)
	abs, _ := filepath.Abs(path)
	require.Contains(t, store.snaps, abs)

	assert.Equal(t, first, paths())
	assert.Equal(t, 1, reader.reads, "second load served from cache")

	require.NoError(t, os.WriteFile(path, []byte("/mob\n"), 0o644))
	assert.Equal(t, []string{"", "/mob"}, paths())
	assert.Equal(t, 2, reader.reads, "edited source invalidates the snapshot")

	// an option change is a different fingerprint
	opts = append(opts, WithDefines(map[string]string{"X": "1"}))
	paths()
	assert.Equal(t, 3, reader.reads)

	// corrupt snapshots are dropped and rebuilt
	store.snaps[abs].Tree = []byte{0xc1}
	paths()
	assert.Equal(t, 4, reader.reads)
}

func TestLoad_CacheStoreFailure(t *testing.T) {
	path := writeFixture(t, fixtureSource)
	_, err := Load(path, WithLedger(NewLedger()), WithCache(&brokenStore{}))
	assert.ErrorIs(t, err, ErrCache)
}

func collectPaths(t *testing.T, tree *TreeHandle) []string {
	t.Helper()
	var out []string
	for _, n := range collectNodes(t, tree) {
		out = append(out, n.path)
	}
	return out
}

func bufferBytes(t *testing.T, buf *Buffer, err error) []byte {
	t.Helper()
	require.NoError(t, err)
	defer buf.Free()
	data, err := buf.Bytes()
	require.NoError(t, err)
	return append([]byte(nil), data...)
}

func TestExports_DoNotAliasTree(t *testing.T) {
	l := NewLedger()
	tree, err := Load(writeFixture(t, `
		/obj
			var/list/tags = list("a" = 1)
			proc/describe(mob/user)
				return 1
	`), WithLedger(l))
	require.NoError(t, err)
	defer func() { require.NoError(t, Unload(tree, nil)) }()

	obj, err := tree.Find("/obj")
	require.NoError(t, err)
	defer obj.Free()

	varsBuf, varsErr := obj.EncodeVariables()
	varsBefore := bufferBytes(t, varsBuf, varsErr)
	procsBuf, procsErr := obj.EncodeProcedures()
	procsBefore := bufferBytes(t, procsBuf, procsErr)

	entry := func() objtree.TypeVar {
		v, err := obj.Variable("tags")
		require.NoError(t, err)
		defer v.Free()
		e, err := v.Entry()
		require.NoError(t, err)
		return e
	}

	e := entry()
	require.NotNil(t, e.Value.Constant)
	require.Len(t, e.Value.Constant.List, 1)
	e.Value.Constant.List[0].Key.Str = "z"
	e.Value.Constant.List[0].Value.Int = 999
	e.Declaration.TypePath[0] = "mob"

	again := entry()
	assert.Equal(t, objtree.String("a"), again.Value.Constant.List[0].Key)
	assert.Equal(t, int64(1), again.Value.Constant.List[0].Value.Int)
	assert.Equal(t, []string{"list"}, again.Declaration.TypePath)

	mutate := func(_ string, p *ProcView) error {
		p.Values[0].Body = "changed"
		p.Values[0].Parameters[0].TypePath[0] = "obj"
		p.Declaration.Kind = objtree.ProcKindVerb
		return nil
	}
	require.NoError(t, obj.ForEachProcedure(mutate))
	require.NoError(t, obj.ForEachProcedure(func(_ string, p *ProcView) error {
		assert.Equal(t, "return 1", p.Values[0].Body)
		assert.Equal(t, []string{"mob"}, p.Values[0].Parameters[0].TypePath)
		assert.Equal(t, objtree.ProcKindProc, p.Declaration.Kind)
		return nil
	}))

	varsBuf, varsErr = obj.EncodeVariables()
	assert.Equal(t, varsBefore, bufferBytes(t, varsBuf, varsErr))
	procsBuf, procsErr = obj.EncodeProcedures()
	assert.Equal(t, procsBefore, bufferBytes(t, procsBuf, procsErr))
}
