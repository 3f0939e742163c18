package main

/*
#include <stdlib.h>
#include "dmtree.h"
*/
import "C"

import (
	"runtime/cgo"
	"unsafe"

	"github.com/corey/dmtree/internal/boundary"
	"github.com/corey/dmtree/internal/domain/objtree"
)

// ---------------------------------------------------------------------------
// Loading
// ---------------------------------------------------------------------------

// dmtree_load loads path into *out_tree. It returns 0 on success, otherwise
// an error kind with a message in *out_err (when out_err is non-NULL) that
// must be released with dmtree_error_free.
//
//export dmtree_load
func dmtree_load(path *C.char, outTree *C.dmtree_handle, outErr **C.char) C.int {
	if outTree == nil {
		fatal("dmtree_load", "null out_tree")
	}
	tree, err := boundary.Load(C.GoString(path))
	if err != nil {
		*outTree = 0
		return setError(outErr, err)
	}
	*outTree = newHandle(tree)
	return 0
}

// dmtree_load_with loads path and calls sink once with the tree and context
// handles before returning 0. On error sink is not called.
//
//export dmtree_load_with
func dmtree_load_with(path *C.char, sink C.dmtree_load_sink, user unsafe.Pointer, outErr **C.char) C.int {
	if sink == nil {
		fatal("dmtree_load_with", "null sink")
	}
	err := boundary.LoadWith(C.GoString(path), func(tree *boundary.TreeHandle, ctx *boundary.ContextHandle) {
		C.dmtree_call_load_sink(sink, user, newHandle(tree), newHandle(ctx))
	})
	if err != nil {
		return setError(outErr, err)
	}
	return 0
}

// dmtree_unload releases the tree and, when non-zero, its context handle.
// The context must come from the same load.
//
//export dmtree_unload
func dmtree_unload(tree, ctx C.dmtree_handle) {
	t := lookup[*boundary.TreeHandle](tree, "dmtree_unload")
	var c *boundary.ContextHandle
	if ctx != 0 {
		c = lookup[*boundary.ContextHandle](ctx, "dmtree_unload")
	}
	must("dmtree_unload", boundary.Unload(t, c))
	cgo.Handle(tree).Delete()
	if ctx != 0 {
		cgo.Handle(ctx).Delete()
	}
}

// dmtree_tree_context returns a new context handle for the tree's load.
// Release it with dmtree_unload alongside the tree, or dmtree_context_free.
//
//export dmtree_tree_context
func dmtree_tree_context(tree C.dmtree_handle) C.dmtree_handle {
	ctx, err := lookup[*boundary.TreeHandle](tree, "dmtree_tree_context").Context()
	must("dmtree_tree_context", err)
	return newHandle(ctx)
}

//export dmtree_context_free
func dmtree_context_free(ctx C.dmtree_handle) {
	must("dmtree_context_free", lookup[*boundary.ContextHandle](ctx, "dmtree_context_free").Release())
	cgo.Handle(ctx).Delete()
}

// ---------------------------------------------------------------------------
// Traversal
// ---------------------------------------------------------------------------

//export dmtree_tree_root
func dmtree_tree_root(tree C.dmtree_handle) C.dmtree_handle {
	root, err := lookup[*boundary.TreeHandle](tree, "dmtree_tree_root").Root()
	must("dmtree_tree_root", err)
	return newHandle(root)
}

//export dmtree_tree_for_each_node
func dmtree_tree_for_each_node(tree C.dmtree_handle, sink C.dmtree_node_sink, user unsafe.Pointer) C.int {
	const fn = "dmtree_tree_for_each_node"
	t := lookup[*boundary.TreeHandle](tree, fn)
	var rc C.int
	must(fn, t.ForEachNode(func(n *boundary.NodeHandle) error {
		rc = C.dmtree_call_node_sink(sink, user, newHandle(n))
		return stopOn(rc)
	}))
	return rc
}

//export dmtree_node_for_each_child
func dmtree_node_for_each_child(node C.dmtree_handle, sink C.dmtree_node_sink, user unsafe.Pointer) C.int {
	const fn = "dmtree_node_for_each_child"
	n := lookup[*boundary.NodeHandle](node, fn)
	var rc C.int
	must(fn, n.ForEachChild(func(c *boundary.NodeHandle) error {
		rc = C.dmtree_call_node_sink(sink, user, newHandle(c))
		return stopOn(rc)
	}))
	return rc
}

// dmtree_node_for_each_variable passes each variable's name and a new var
// handle. The name is valid only for the duration of the sink call.
//
//export dmtree_node_for_each_variable
func dmtree_node_for_each_variable(node C.dmtree_handle, sink C.dmtree_var_sink, user unsafe.Pointer) C.int {
	const fn = "dmtree_node_for_each_variable"
	n := lookup[*boundary.NodeHandle](node, fn)
	var rc C.int
	must(fn, n.ForEachVariable(func(name string, v *boundary.VarHandle) error {
		cname := C.CString(name)
		defer C.free(unsafe.Pointer(cname))
		rc = C.dmtree_call_var_sink(sink, user, cname, newHandle(v))
		return stopOn(rc)
	}))
	return rc
}

// dmtree_context_for_each_diagnostic passes every diagnostic of a load. All
// strings are valid only for the duration of the sink call.
//
//export dmtree_context_for_each_diagnostic
func dmtree_context_for_each_diagnostic(ctx C.dmtree_handle, sink C.dmtree_diag_sink, user unsafe.Pointer) C.int {
	const fn = "dmtree_context_for_each_diagnostic"
	c := lookup[*boundary.ContextHandle](ctx, fn)
	var rc C.int
	must(fn, c.ForEachDiagnostic(func(d objtree.Diagnostic) error {
		file, err := c.FilePath(d.Location.File)
		if err != nil {
			return err
		}
		cfile := C.CString(file)
		ccomp := C.CString(d.Component)
		cmsg := C.CString(d.Message)
		defer func() {
			C.free(unsafe.Pointer(cfile))
			C.free(unsafe.Pointer(ccomp))
			C.free(unsafe.Pointer(cmsg))
		}()
		rc = C.dmtree_call_diag_sink(sink, user, C.int(d.Severity), cfile,
			C.uint32_t(d.Location.Line), C.uint16_t(d.Location.Column), ccomp, cmsg)
		return stopOn(rc)
	}))
	return rc
}

func stopOn(rc C.int) error {
	if rc != 0 {
		return boundary.Stop
	}
	return nil
}

// ---------------------------------------------------------------------------
// Node accessors
// ---------------------------------------------------------------------------

// dmtree_node_path returns the type path ("" for the root). Release it with
// dmtree_string_free.
//
//export dmtree_node_path
func dmtree_node_path(node C.dmtree_handle) *C.char {
	path, err := lookup[*boundary.NodeHandle](node, "dmtree_node_path").Path()
	must("dmtree_node_path", err)
	return cString(path)
}

//export dmtree_node_index
func dmtree_node_index(node C.dmtree_handle) C.uint32_t {
	idx, err := lookup[*boundary.NodeHandle](node, "dmtree_node_index").Index()
	must("dmtree_node_index", err)
	return C.uint32_t(idx)
}

// dmtree_node_parent_index returns 0xFFFFFFFF for the root.
//
//export dmtree_node_parent_index
func dmtree_node_parent_index(node C.dmtree_handle) C.uint32_t {
	idx, err := lookup[*boundary.NodeHandle](node, "dmtree_node_parent_index").ParentIndex()
	must("dmtree_node_parent_index", err)
	return C.uint32_t(idx)
}

//export dmtree_node_is_root
func dmtree_node_is_root(node C.dmtree_handle) C.int {
	root, err := lookup[*boundary.NodeHandle](node, "dmtree_node_is_root").IsRoot()
	must("dmtree_node_is_root", err)
	if root {
		return 1
	}
	return 0
}

// ---------------------------------------------------------------------------
// Bulk encoding
// ---------------------------------------------------------------------------

// dmtree_node_encode_variables returns a msgpack buffer of the variables at
// node and its length in *out_len. The buffer may contain NUL bytes.
// Release it with dmtree_buffer_free.
//
//export dmtree_node_encode_variables
func dmtree_node_encode_variables(node C.dmtree_handle, outLen *C.size_t) unsafe.Pointer {
	const fn = "dmtree_node_encode_variables"
	buf, err := lookup[*boundary.NodeHandle](node, fn).EncodeVariables()
	must(fn, err)
	return exportBuffer(fn, buf, outLen)
}

//export dmtree_node_encode_procedures
func dmtree_node_encode_procedures(node C.dmtree_handle, outLen *C.size_t) unsafe.Pointer {
	const fn = "dmtree_node_encode_procedures"
	buf, err := lookup[*boundary.NodeHandle](node, fn).EncodeProcedures()
	must(fn, err)
	return exportBuffer(fn, buf, outLen)
}

//export dmtree_var_encode
func dmtree_var_encode(v C.dmtree_handle, outLen *C.size_t) unsafe.Pointer {
	const fn = "dmtree_var_encode"
	buf, err := lookup[*boundary.VarHandle](v, fn).Encode()
	must(fn, err)
	return exportBuffer(fn, buf, outLen)
}

// exportBuffer copies buf into C memory and releases the Go-side buffer.
func exportBuffer(fn string, buf *boundary.Buffer, outLen *C.size_t) unsafe.Pointer {
	if outLen == nil {
		fatal(fn, "null out_len")
	}
	data, err := buf.Bytes()
	must(fn, err)
	p := C.CBytes(data)
	boundary.DefaultLedger.Track(boundary.KindBuffer)
	*outLen = C.size_t(len(data))
	must(fn, buf.Free())
	return p
}

// ---------------------------------------------------------------------------
// Release
// ---------------------------------------------------------------------------

//export dmtree_node_free
func dmtree_node_free(node C.dmtree_handle) {
	must("dmtree_node_free", lookup[*boundary.NodeHandle](node, "dmtree_node_free").Free())
	cgo.Handle(node).Delete()
}

//export dmtree_var_free
func dmtree_var_free(v C.dmtree_handle) {
	must("dmtree_var_free", lookup[*boundary.VarHandle](v, "dmtree_var_free").Free())
	cgo.Handle(v).Delete()
}

//export dmtree_string_free
func dmtree_string_free(s *C.char) {
	if s == nil {
		return
	}
	boundary.DefaultLedger.Untrack(boundary.KindString)
	C.free(unsafe.Pointer(s))
}

//export dmtree_error_free
func dmtree_error_free(s *C.char) {
	dmtree_string_free(s)
}

//export dmtree_buffer_free
func dmtree_buffer_free(p unsafe.Pointer) {
	if p == nil {
		return
	}
	boundary.DefaultLedger.Untrack(boundary.KindBuffer)
	C.free(p)
}

// dmtree_outstanding_handles returns how many handles, strings and buffers
// are currently allocated and not yet released.
//
//export dmtree_outstanding_handles
func dmtree_outstanding_handles() C.int64_t {
	return C.int64_t(boundary.DefaultLedger.Outstanding())
}
