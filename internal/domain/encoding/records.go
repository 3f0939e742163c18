package encoding

import (
	"github.com/corey/dmtree/internal/domain/objtree"
)

// LocationRecord is the wire form of objtree.Location. FilePath is filled when
// a Context is available to resolve the file ID.
type LocationRecord struct {
	File     uint32 `msgpack:"file"`
	FilePath string `msgpack:"file_path,omitempty"`
	Line     uint32 `msgpack:"line"`
	Column   uint16 `msgpack:"column"`
}

// ConstantRecord is the wire form of objtree.Constant.
type ConstantRecord struct {
	Kind  string       `msgpack:"kind"`
	Int   int64        `msgpack:"int,omitempty"`
	Float float64      `msgpack:"float,omitempty"`
	Str   string       `msgpack:"str,omitempty"`
	List  []ListRecord `msgpack:"list,omitempty"`
}

// ListRecord is one list literal element.
type ListRecord struct {
	Key   ConstantRecord  `msgpack:"key"`
	Value *ConstantRecord `msgpack:"value,omitempty"`
}

// VarValueRecord is the wire form of objtree.VarValue.
type VarValueRecord struct {
	Location   LocationRecord  `msgpack:"location"`
	Expression string          `msgpack:"expression"`
	Constant   *ConstantRecord `msgpack:"constant"`
}

// VarDeclarationRecord is the wire form of objtree.VarDeclaration.
type VarDeclarationRecord struct {
	Location LocationRecord `msgpack:"location"`
	TypePath []string       `msgpack:"type_path"`
	Flags    []string       `msgpack:"flags"`
}

// VarRecord is one variable entry. Value is nil when the variable is only
// declared; Declaration is nil when the entry only overrides a value.
type VarRecord struct {
	Name        string                `msgpack:"name"`
	Value       *VarValueRecord       `msgpack:"value"`
	Declaration *VarDeclarationRecord `msgpack:"declaration"`
}

// ParameterRecord is the wire form of objtree.Parameter.
type ParameterRecord struct {
	Name     string   `msgpack:"name"`
	TypePath []string `msgpack:"type_path"`
	Default  string   `msgpack:"default,omitempty"`
}

// ProcValueRecord is the wire form of objtree.ProcValue.
type ProcValueRecord struct {
	Location   LocationRecord    `msgpack:"location"`
	Parameters []ParameterRecord `msgpack:"parameters"`
	Body       string            `msgpack:"body"`
}

// ProcDeclarationRecord is the wire form of objtree.ProcDeclaration.
type ProcDeclarationRecord struct {
	Location  LocationRecord `msgpack:"location"`
	Kind      string         `msgpack:"kind"`
	Private   bool           `msgpack:"private"`
	Protected bool           `msgpack:"protected"`
}

// ProcRecord is one proc entry.
type ProcRecord struct {
	Name        string                 `msgpack:"name"`
	Values      []ProcValueRecord      `msgpack:"values"`
	Declaration *ProcDeclarationRecord `msgpack:"declaration"`
}

func locationRecord(loc objtree.Location, ctx *objtree.Context) LocationRecord {
	rec := LocationRecord{File: uint32(loc.File), Line: loc.Line, Column: loc.Column}
	if ctx != nil {
		rec.FilePath = ctx.FilePath(loc.File)
	}
	return rec
}

func (r LocationRecord) location() objtree.Location {
	return objtree.Location{File: objtree.FileID(r.File), Line: r.Line, Column: r.Column}
}

func constantRecord(c objtree.Constant) ConstantRecord {
	rec := ConstantRecord{Kind: c.Kind.String()}
	switch c.Kind {
	case objtree.ConstInt:
		rec.Int = c.Int
	case objtree.ConstFloat:
		rec.Float = c.Float
	case objtree.ConstString, objtree.ConstResource, objtree.ConstPath:
		rec.Str = c.Str
	case objtree.ConstList:
		rec.List = make([]ListRecord, len(c.List))
		for i, e := range c.List {
			rec.List[i].Key = constantRecord(e.Key)
			if e.Value != nil {
				v := constantRecord(*e.Value)
				rec.List[i].Value = &v
			}
		}
	}
	return rec
}

var constKinds = map[string]objtree.ConstKind{
	"null":     objtree.ConstNull,
	"int":      objtree.ConstInt,
	"float":    objtree.ConstFloat,
	"string":   objtree.ConstString,
	"resource": objtree.ConstResource,
	"path":     objtree.ConstPath,
	"list":     objtree.ConstList,
}

func (r ConstantRecord) constant() (objtree.Constant, error) {
	kind, ok := constKinds[r.Kind]
	if !ok {
		return objtree.Constant{}, &FormatError{Msg: "unknown constant kind " + r.Kind}
	}
	c := objtree.Constant{Kind: kind, Int: r.Int, Float: r.Float, Str: r.Str}
	if kind == objtree.ConstList && len(r.List) > 0 {
		c.List = make([]objtree.ListEntry, len(r.List))
		for i, e := range r.List {
			k, err := e.Key.constant()
			if err != nil {
				return objtree.Constant{}, err
			}
			c.List[i].Key = k
			if e.Value != nil {
				v, err := e.Value.constant()
				if err != nil {
					return objtree.Constant{}, err
				}
				c.List[i].Value = &v
			}
		}
	}
	return c, nil
}

// NewVarRecord converts a variable entry. ctx may be nil.
func NewVarRecord(v *objtree.TypeVar, ctx *objtree.Context) VarRecord {
	rec := VarRecord{Name: v.Name}
	if v.Value.IsSet() {
		val := &VarValueRecord{
			Location:   locationRecord(v.Value.Location, ctx),
			Expression: v.Value.Expression,
		}
		if v.Value.Constant != nil {
			c := constantRecord(*v.Value.Constant)
			val.Constant = &c
		}
		rec.Value = val
	}
	if d := v.Declaration; d != nil {
		rec.Declaration = &VarDeclarationRecord{
			Location: locationRecord(d.Location, ctx),
			TypePath: nonNil(d.TypePath),
			Flags:    nonNil(d.Flags.Names()),
		}
	}
	return rec
}

// TypeVar converts the record back into a variable entry.
func (r VarRecord) TypeVar() (objtree.TypeVar, error) {
	v := objtree.TypeVar{Name: r.Name}
	if r.Value != nil {
		v.Value = objtree.VarValue{Location: r.Value.Location.location(), Expression: r.Value.Expression}
		if r.Value.Constant != nil {
			c, err := r.Value.Constant.constant()
			if err != nil {
				return v, err
			}
			v.Value.Constant = &c
		}
	}
	if r.Declaration != nil {
		var flags objtree.VarFlags
		for _, name := range r.Declaration.Flags {
			f, ok := objtree.ParseVarFlag(name)
			if !ok {
				return v, &FormatError{Msg: "unknown var flag " + name}
			}
			flags |= f
		}
		var typePath []string
		if len(r.Declaration.TypePath) > 0 {
			typePath = r.Declaration.TypePath
		}
		v.Declaration = &objtree.VarDeclaration{
			Location: r.Declaration.Location.location(),
			TypePath: typePath,
			Flags:    flags,
		}
	}
	return v, nil
}

// NewProcRecord converts a proc entry. ctx may be nil.
func NewProcRecord(p *objtree.TypeProc, ctx *objtree.Context) ProcRecord {
	rec := ProcRecord{Name: p.Name, Values: make([]ProcValueRecord, len(p.Values))}
	for i, val := range p.Values {
		params := make([]ParameterRecord, len(val.Parameters))
		for j, prm := range val.Parameters {
			params[j] = ParameterRecord{Name: prm.Name, TypePath: nonNil(prm.TypePath), Default: prm.Default}
		}
		rec.Values[i] = ProcValueRecord{
			Location:   locationRecord(val.Location, ctx),
			Parameters: params,
			Body:       val.Body,
		}
	}
	if d := p.Declaration; d != nil {
		rec.Declaration = &ProcDeclarationRecord{
			Location:  locationRecord(d.Location, ctx),
			Kind:      d.Kind.String(),
			Private:   d.Private,
			Protected: d.Protected,
		}
	}
	return rec
}

// TypeProc converts the record back into a proc entry.
func (r ProcRecord) TypeProc() (objtree.TypeProc, error) {
	p := objtree.TypeProc{Name: r.Name, Values: make([]objtree.ProcValue, len(r.Values))}
	for i, val := range r.Values {
		var params []objtree.Parameter
		if len(val.Parameters) > 0 {
			params = make([]objtree.Parameter, len(val.Parameters))
			for j, prm := range val.Parameters {
				var typePath []string
				if len(prm.TypePath) > 0 {
					typePath = prm.TypePath
				}
				params[j] = objtree.Parameter{Name: prm.Name, TypePath: typePath, Default: prm.Default}
			}
		}
		p.Values[i] = objtree.ProcValue{Location: val.Location.location(), Parameters: params, Body: val.Body}
	}
	if d := r.Declaration; d != nil {
		kind := objtree.ProcKindProc
		switch d.Kind {
		case "proc":
		case "verb":
			kind = objtree.ProcKindVerb
		default:
			return p, &FormatError{Msg: "unknown proc kind " + d.Kind}
		}
		p.Declaration = &objtree.ProcDeclaration{
			Location:  d.Location.location(),
			Kind:      kind,
			Private:   d.Private,
			Protected: d.Protected,
		}
	}
	return p, nil
}

// nonNil keeps empty lists encoded as arrays rather than nil.
func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
