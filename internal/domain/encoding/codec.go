// Package encoding serializes a type's variable or proc table into one
// self-describing MessagePack buffer, so a consumer in any language can decode
// the whole set without walking handles field by field.
//
// Buffer layout (MessagePack map):
//
//	{"v": 1, "kind": "vars"|"procs", "path": "/obj/item", "entries": [...]}
//
// Entries keep the table's source order. Buffers are plain byte ranges and may
// contain NUL bytes; always carry the length alongside the pointer.
package encoding

import (
	"bytes"
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/corey/dmtree/internal/domain/objtree"
)

// FormatVersion is embedded in every buffer and snapshot.
const FormatVersion = 1

// Envelope kinds.
const (
	KindVars  = "vars"
	KindProcs = "procs"
	KindTree  = "tree"
)

// FormatError reports a buffer that is not a valid encoding.
type FormatError struct {
	Msg string
	Err error
}

func (e *FormatError) Error() string {
	if e.Err != nil {
		return "encoding: " + e.Msg + ": " + e.Err.Error()
	}
	return "encoding: " + e.Msg
}

func (e *FormatError) Unwrap() error { return e.Err }

// envelope is the common header shared by every buffer kind.
type envelope[T any] struct {
	Version uint8  `msgpack:"v"`
	Kind    string `msgpack:"kind"`
	Path    string `msgpack:"path"`
	Entries []T    `msgpack:"entries"`
}

// VarSet is a decoded variable buffer.
type VarSet struct {
	Path    string
	Entries []VarRecord
}

// ProcSet is a decoded proc buffer.
type ProcSet struct {
	Path    string
	Entries []ProcRecord
}

// EncodeVars encodes every variable entry written at ty. ctx, when non-nil,
// resolves file IDs to paths in the emitted locations.
func EncodeVars(ty *objtree.Type, ctx *objtree.Context) ([]byte, error) {
	env := envelope[VarRecord]{Version: FormatVersion, Kind: KindVars, Path: ty.Path, Entries: make([]VarRecord, 0, len(ty.Vars()))}
	for _, v := range ty.Vars() {
		env.Entries = append(env.Entries, NewVarRecord(v, ctx))
	}
	return marshal(env)
}

// EncodeVar encodes a single variable entry as a one-element vars buffer.
func EncodeVar(path string, v *objtree.TypeVar, ctx *objtree.Context) ([]byte, error) {
	env := envelope[VarRecord]{Version: FormatVersion, Kind: KindVars, Path: path, Entries: []VarRecord{NewVarRecord(v, ctx)}}
	return marshal(env)
}

// EncodeProcs encodes every proc entry written at ty.
func EncodeProcs(ty *objtree.Type, ctx *objtree.Context) ([]byte, error) {
	env := envelope[ProcRecord]{Version: FormatVersion, Kind: KindProcs, Path: ty.Path, Entries: make([]ProcRecord, 0, len(ty.Procs()))}
	for _, p := range ty.Procs() {
		env.Entries = append(env.Entries, NewProcRecord(p, ctx))
	}
	return marshal(env)
}

// DecodeVars decodes a buffer produced by EncodeVars or EncodeVar.
func DecodeVars(buf []byte) (*VarSet, error) {
	var env envelope[VarRecord]
	if err := unmarshal(buf, KindVars, &env); err != nil {
		return nil, err
	}
	if err := checkHeader(env.Version, env.Kind, KindVars); err != nil {
		return nil, err
	}
	return &VarSet{Path: env.Path, Entries: env.Entries}, nil
}

// DecodeProcs decodes a buffer produced by EncodeProcs.
func DecodeProcs(buf []byte) (*ProcSet, error) {
	var env envelope[ProcRecord]
	if err := unmarshal(buf, KindProcs, &env); err != nil {
		return nil, err
	}
	if err := checkHeader(env.Version, env.Kind, KindProcs); err != nil {
		return nil, err
	}
	return &ProcSet{Path: env.Path, Entries: env.Entries}, nil
}

func marshal(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.UseCompactInts(true)
	if err := enc.Encode(v); err != nil {
		return nil, fmt.Errorf("encoding: marshal: %w", err)
	}
	return buf.Bytes(), nil
}

func unmarshal(buf []byte, kind string, v any) error {
	if len(buf) == 0 {
		return &FormatError{Msg: "empty " + kind + " buffer"}
	}
	if err := msgpack.Unmarshal(buf, v); err != nil {
		return &FormatError{Msg: "decode " + kind, Err: err}
	}
	return nil
}

func checkHeader(version uint8, got, want string) error {
	if version != FormatVersion {
		return &FormatError{Msg: fmt.Sprintf("unsupported format version %d", version)}
	}
	if got != want {
		return &FormatError{Msg: fmt.Sprintf("buffer kind %q, want %q", got, want)}
	}
	return nil
}
