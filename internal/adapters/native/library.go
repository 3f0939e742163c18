// Package native drives a libdmtree shared library through its C ABI using
// purego, without cgo on the calling side. It is how the ABI is exercised
// from Go: the same traversal and encoding the boundary package offers, but
// with every handle, string and buffer crossing the C boundary.
package native

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"
)

// LibName returns the shared library file name for the current platform.
func LibName() string {
	if runtime.GOOS == "darwin" {
		return "libdmtree.dylib"
	}
	return "libdmtree.so"
}

// DefaultLibraryPaths returns where Find looks for the library: the
// DMTREE_NATIVE_LIB file, then the project's .dmtree/lib, then ~/.dmtree/lib.
func DefaultLibraryPaths(projectRoot string) []string {
	var paths []string
	if env := os.Getenv("DMTREE_NATIVE_LIB"); env != "" {
		paths = append(paths, env)
	}
	if projectRoot != "" {
		paths = append(paths, filepath.Join(projectRoot, ".dmtree", "lib", LibName()))
	}
	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".dmtree", "lib", LibName()))
	}
	return paths
}

// Find returns the first existing path, or "" when none exists.
func Find(paths []string) string {
	for _, p := range paths {
		if info, err := os.Stat(p); err == nil && !info.IsDir() {
			return p
		}
	}
	return ""
}

// Library is an opened libdmtree. Calls are serialized: the C ABI is
// synchronous and sinks are dispatched through one shared table.
type Library struct {
	path   string
	handle uintptr
	mu     sync.Mutex

	load                 func(path string, outTree *uintptr, outErr *unsafe.Pointer) int32
	unload               func(tree, ctx uintptr)
	treeContext          func(tree uintptr) uintptr
	treeRoot             func(tree uintptr) uintptr
	treeForEachNode      func(tree, sink, user uintptr) int32
	nodePath             func(node uintptr) unsafe.Pointer
	nodeIndex            func(node uintptr) uint32
	nodeParentIndex      func(node uintptr) uint32
	nodeIsRoot           func(node uintptr) int32
	nodeForEachChild     func(node, sink, user uintptr) int32
	nodeForEachVariable  func(node, sink, user uintptr) int32
	nodeEncodeVariables  func(node uintptr, outLen *uintptr) unsafe.Pointer
	nodeEncodeProcedures func(node uintptr, outLen *uintptr) unsafe.Pointer
	varEncode            func(v uintptr, outLen *uintptr) unsafe.Pointer
	nodeFree             func(node uintptr)
	varFree              func(v uintptr)
	stringFree           func(s unsafe.Pointer)
	bufferFree           func(p unsafe.Pointer)
	errorFree            func(s unsafe.Pointer)
	outstanding          func() int64
}

// Open dlopens the library at path and binds every ABI symbol.
func Open(path string) (*Library, error) {
	handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_LOCAL)
	if err != nil {
		return nil, fmt.Errorf("dlopen %s: %w", path, err)
	}
	l := &Library{path: path, handle: handle}

	syms := []struct {
		fn   any
		name string
	}{
		{&l.load, "dmtree_load"},
		{&l.unload, "dmtree_unload"},
		{&l.treeContext, "dmtree_tree_context"},
		{&l.treeRoot, "dmtree_tree_root"},
		{&l.treeForEachNode, "dmtree_tree_for_each_node"},
		{&l.nodePath, "dmtree_node_path"},
		{&l.nodeIndex, "dmtree_node_index"},
		{&l.nodeParentIndex, "dmtree_node_parent_index"},
		{&l.nodeIsRoot, "dmtree_node_is_root"},
		{&l.nodeForEachChild, "dmtree_node_for_each_child"},
		{&l.nodeForEachVariable, "dmtree_node_for_each_variable"},
		{&l.nodeEncodeVariables, "dmtree_node_encode_variables"},
		{&l.nodeEncodeProcedures, "dmtree_node_encode_procedures"},
		{&l.varEncode, "dmtree_var_encode"},
		{&l.nodeFree, "dmtree_node_free"},
		{&l.varFree, "dmtree_var_free"},
		{&l.stringFree, "dmtree_string_free"},
		{&l.bufferFree, "dmtree_buffer_free"},
		{&l.errorFree, "dmtree_error_free"},
		{&l.outstanding, "dmtree_outstanding_handles"},
	}
	for _, s := range syms {
		if _, err := purego.Dlsym(handle, s.name); err != nil {
			return nil, fmt.Errorf("%s: missing symbol %s: %w", path, s.name, err)
		}
		purego.RegisterLibFunc(s.fn, handle, s.name)
	}
	return l, nil
}

// Path returns the file the library was opened from.
func (l *Library) Path() string { return l.path }

// Outstanding reports the library's live handle, string and buffer count.
func (l *Library) Outstanding() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.outstanding()
}

// goString copies a NUL-terminated C string.
func goString(p unsafe.Pointer) string {
	if p == nil {
		return ""
	}
	n := 0
	for *(*byte)(unsafe.Add(p, n)) != 0 {
		n++
	}
	return string(unsafe.Slice((*byte)(p), n))
}

// ptr converts a uintptr received from C without tripping vet's unsafeptr
// check. Safe because the memory is C-owned and never moved by the GC.
func ptr(p uintptr) unsafe.Pointer {
	return *(*unsafe.Pointer)(unsafe.Pointer(&p))
}
