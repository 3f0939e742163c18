package encoding

import (
	"fmt"

	"github.com/corey/dmtree/internal/domain/objtree"
)

// TypeRecord is one type in a tree snapshot. Index and parent are implied by
// the record's position and path.
type TypeRecord struct {
	Path     string         `msgpack:"path"`
	Location LocationRecord `msgpack:"location"`
	Vars     []VarRecord    `msgpack:"vars"`
	Procs    []ProcRecord   `msgpack:"procs"`
}

// DiagnosticRecord is the wire form of objtree.Diagnostic.
type DiagnosticRecord struct {
	Location  LocationRecord `msgpack:"location"`
	Severity  int            `msgpack:"severity"`
	Component string         `msgpack:"component"`
	Message   string         `msgpack:"message"`
}

type treeSnapshot struct {
	Version     uint8              `msgpack:"v"`
	Kind        string             `msgpack:"kind"`
	Files       []string           `msgpack:"files"`
	Types       []TypeRecord       `msgpack:"types"`
	Diagnostics []DiagnosticRecord `msgpack:"diagnostics"`
}

// EncodeTree serializes a whole tree with its context (file table and
// diagnostics) so it can be rebuilt without reading the sources again.
func EncodeTree(tree *objtree.Tree, ctx *objtree.Context) ([]byte, error) {
	snap := treeSnapshot{
		Version: FormatVersion,
		Kind:    KindTree,
		Files:   ctx.Files(),
		Types:   make([]TypeRecord, 0, tree.Len()),
	}
	tree.ForEachType(func(ty *objtree.Type) bool {
		rec := TypeRecord{
			Path:     ty.Path,
			Location: locationRecord(ty.Location, nil),
			Vars:     make([]VarRecord, len(ty.Vars())),
			Procs:    make([]ProcRecord, len(ty.Procs())),
		}
		for i, v := range ty.Vars() {
			rec.Vars[i] = NewVarRecord(v, nil)
		}
		for i, p := range ty.Procs() {
			rec.Procs[i] = NewProcRecord(p, nil)
		}
		snap.Types = append(snap.Types, rec)
		return true
	})
	ctx.ForEachDiagnostic(func(d objtree.Diagnostic) bool {
		snap.Diagnostics = append(snap.Diagnostics, DiagnosticRecord{
			Location:  locationRecord(d.Location, nil),
			Severity:  int(d.Severity),
			Component: d.Component,
			Message:   d.Message,
		})
		return true
	})
	return marshal(snap)
}

// DecodeTree rebuilds a tree and its context from EncodeTree output.
func DecodeTree(buf []byte) (*objtree.Tree, *objtree.Context, error) {
	var snap treeSnapshot
	if err := unmarshal(buf, KindTree, &snap); err != nil {
		return nil, nil, err
	}
	if err := checkHeader(snap.Version, snap.Kind, KindTree); err != nil {
		return nil, nil, err
	}
	if len(snap.Types) == 0 || snap.Types[0].Path != "" {
		return nil, nil, &FormatError{Msg: "snapshot has no root type"}
	}

	ctx := objtree.NewContext()
	for _, f := range snap.Files {
		ctx.RegisterFile(f)
	}

	b := objtree.NewBuilder(ctx)
	for i, rec := range snap.Types {
		ty := b.Root()
		if i > 0 {
			ty = b.Subtype(rec.Path, rec.Location.location())
			if int(ty.Index) != i {
				return nil, nil, &FormatError{Msg: fmt.Sprintf("type %q at position %d resolves to index %d", rec.Path, i, ty.Index)}
			}
		}
		for _, vr := range rec.Vars {
			v, err := vr.TypeVar()
			if err != nil {
				return nil, nil, err
			}
			if v.Declaration != nil {
				b.DeclareVar(ty, v.Name, *v.Declaration, v.Value)
			} else {
				b.SetVar(ty, v.Name, v.Value)
			}
		}
		for _, pr := range rec.Procs {
			p, err := pr.TypeProc()
			if err != nil {
				return nil, nil, err
			}
			for j, val := range p.Values {
				var decl *objtree.ProcDeclaration
				if j == 0 {
					decl = p.Declaration
				}
				b.AddProc(ty, p.Name, val, decl)
			}
		}
	}

	for _, d := range snap.Diagnostics {
		ctx.Register(objtree.Diagnostic{
			Location:  d.Location.location(),
			Severity:  objtree.Severity(d.Severity),
			Component: d.Component,
			Message:   d.Message,
		})
	}
	return b.FinishUnchecked(), ctx, nil
}
