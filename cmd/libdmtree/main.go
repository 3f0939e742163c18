// Command libdmtree builds the dmtree C ABI as a shared library:
//
//	go build -buildmode=c-shared -o libdmtree.so ./cmd/libdmtree
//
// Every handle crossing the ABI is a cgo.Handle. A zero or stale handle is
// a caller bug that cannot be reported through the return value, so the
// process aborts with a message naming the call.
package main

/*
#include <stdlib.h>
#include "dmtree.h"
*/
import "C"

import (
	"fmt"
	"os"
	"runtime/cgo"

	"github.com/corey/dmtree/internal/boundary"
	"github.com/corey/dmtree/internal/logger"
)

func init() {
	if lvl := os.Getenv("DMTREE_LOG"); lvl != "" {
		logger.Init(logger.Options{Enabled: true, Stderr: true, Level: logger.ParseLevel(lvl)})
	}
}

func main() {}

func fatal(fn, msg string) {
	fmt.Fprintf(os.Stderr, "dmtree: %s: %s\n", fn, msg)
	C.abort()
}

// lookup resolves h to a T or aborts.
func lookup[T any](h C.dmtree_handle, fn string) T {
	if h == 0 {
		fatal(fn, "null handle")
	}
	var v any
	func() {
		defer func() {
			if recover() != nil {
				fatal(fn, "invalid handle")
			}
		}()
		v = cgo.Handle(h).Value()
	}()
	t, ok := v.(T)
	if !ok {
		fatal(fn, fmt.Sprintf("handle refers to %T", v))
	}
	return t
}

// must aborts on a boundary error from an operation on a valid handle:
// a released or unloaded handle reached through a live cgo handle.
func must(fn string, err error) {
	if err != nil {
		fatal(fn, err.Error())
	}
}

func newHandle(v any) C.dmtree_handle { return C.dmtree_handle(cgo.NewHandle(v)) }

// cString copies s into C memory owned by the caller and counts it.
func cString(s string) *C.char {
	boundary.DefaultLedger.Track(boundary.KindString)
	return C.CString(s)
}

func setError(out **C.char, err error) C.int {
	if out != nil {
		*out = cString(err.Error())
	}
	if kind, ok := boundary.KindOf(err); ok {
		return C.int(kind)
	}
	return C.int(boundary.ErrKindIO)
}
