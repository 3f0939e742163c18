// Package objtree models a parsed DreamMaker type hierarchy: a tree of types,
// each carrying the variables and procs written at that type.
//
// Every variable and proc entry is split into the declaration (only present at
// the type that introduces the name) and the value(s) written at this type. A
// type's tables never contain inherited entries; use Tree.VarChain and
// Tree.ProcChain to look along the inheritance path.
package objtree

import (
	"slices"
	"strings"
)

// NoParent is the parent index of the root type.
const NoParent uint32 = 0xFFFFFFFF

// VarFlags are the modifiers written in a var declaration (`var/static/...`).
type VarFlags uint8

const (
	VarStatic VarFlags = 1 << iota // also spelled "global"
	VarConst
	VarTmp
	VarFinal
)

var varFlagNames = []struct {
	flag VarFlags
	name string
}{
	{VarStatic, "static"},
	{VarConst, "const"},
	{VarTmp, "tmp"},
	{VarFinal, "final"},
}

// ParseVarFlag maps a path segment to a flag. "global" is an alias of "static".
func ParseVarFlag(s string) (VarFlags, bool) {
	if s == "global" {
		return VarStatic, true
	}
	for _, f := range varFlagNames {
		if f.name == s {
			return f.flag, true
		}
	}
	return 0, false
}

// Names returns the flag names in canonical order.
func (f VarFlags) Names() []string {
	var out []string
	for _, vf := range varFlagNames {
		if f&vf.flag != 0 {
			out = append(out, vf.name)
		}
	}
	return out
}

// VarDeclaration is the static part of a variable, recorded where it is introduced.
type VarDeclaration struct {
	Location Location
	TypePath []string // declared type, e.g. ["obj", "item"]; empty if untyped
	Flags    VarFlags
}

// VarValue is the value assigned to a variable at one type.
type VarValue struct {
	Location   Location
	Expression string    // source text of the assigned expression; "" when only declared
	Constant   *Constant // folded literal, nil when the expression is not a literal
}

// IsSet reports whether an expression was assigned.
func (v VarValue) IsSet() bool { return v.Expression != "" }

// TypeVar is a variable entry in one type's table.
type TypeVar struct {
	Name        string
	Value       VarValue
	Declaration *VarDeclaration
}

// ProcKind distinguishes procs from verbs.
type ProcKind uint8

const (
	ProcKindProc ProcKind = iota
	ProcKindVerb
)

func (k ProcKind) String() string {
	if k == ProcKindVerb {
		return "verb"
	}
	return "proc"
}

// Parameter is one formal parameter of a proc definition.
type Parameter struct {
	Name     string
	TypePath []string
	Default  string // default expression text, "" if none
}

// ProcValue is one definition (body) of a proc written at a type.
type ProcValue struct {
	Location   Location
	Parameters []Parameter
	Body       string // dedented body text; bodies are not parsed
}

// ProcDeclaration is recorded where a proc or verb is introduced.
type ProcDeclaration struct {
	Location  Location
	Kind      ProcKind
	Private   bool
	Protected bool
}

// TypeProc is a proc entry in one type's table. Values holds the definitions
// written at this type in source order, later definitions last.
type TypeProc struct {
	Name        string
	Values      []ProcValue
	Declaration *ProcDeclaration
}

// Type is one node of the hierarchy.
type Type struct {
	Path        string // "" for the root, otherwise "/a/b"
	Index       uint32
	ParentIndex uint32
	Location    Location

	vars      []*TypeVar
	varIndex  map[string]int
	procs     []*TypeProc
	procIndex map[string]int
	children  []uint32
}

func newType(path string, index, parent uint32, loc Location) *Type {
	return &Type{
		Path:        path,
		Index:       index,
		ParentIndex: parent,
		Location:    loc,
		varIndex:    make(map[string]int),
		procIndex:   make(map[string]int),
	}
}

// IsRoot reports whether t is the root type.
func (t *Type) IsRoot() bool { return t.ParentIndex == NoParent }

// Name returns the last path segment ("" for the root).
func (t *Type) Name() string {
	if i := strings.LastIndexByte(t.Path, '/'); i >= 0 {
		return t.Path[i+1:]
	}
	return t.Path
}

// Vars returns the variable entries written at this type in source order.
// The slice must not be modified.
func (t *Type) Vars() []*TypeVar { return t.vars }

// Var looks up a variable entry written at this type.
func (t *Type) Var(name string) (*TypeVar, bool) {
	i, ok := t.varIndex[name]
	if !ok {
		return nil, false
	}
	return t.vars[i], true
}

// Procs returns the proc entries written at this type in source order.
// The slice must not be modified.
func (t *Type) Procs() []*TypeProc { return t.procs }

// Proc looks up a proc entry written at this type.
func (t *Type) Proc(name string) (*TypeProc, bool) {
	i, ok := t.procIndex[name]
	if !ok {
		return nil, false
	}
	return t.procs[i], true
}

// ChildIndices returns the indices of direct children in declaration order.
// The slice must not be modified.
func (t *Type) ChildIndices() []uint32 { return t.children }

// Clone returns a deep copy of the entry. Nothing in the copy aliases v.
func (v *TypeVar) Clone() TypeVar {
	out := *v
	if v.Value.Constant != nil {
		c := v.Value.Constant.Clone()
		out.Value.Constant = &c
	}
	if v.Declaration != nil {
		d := *v.Declaration
		d.TypePath = slices.Clone(d.TypePath)
		out.Declaration = &d
	}
	return out
}

// Clone returns a deep copy of the entry. Nothing in the copy aliases p.
func (p *TypeProc) Clone() TypeProc {
	out := TypeProc{Name: p.Name}
	if p.Values != nil {
		out.Values = make([]ProcValue, len(p.Values))
		for i, val := range p.Values {
			out.Values[i] = val
			if val.Parameters != nil {
				params := make([]Parameter, len(val.Parameters))
				for j, param := range val.Parameters {
					param.TypePath = slices.Clone(param.TypePath)
					params[j] = param
				}
				out.Values[i].Parameters = params
			}
		}
	}
	if p.Declaration != nil {
		d := *p.Declaration
		out.Declaration = &d
	}
	return out
}
