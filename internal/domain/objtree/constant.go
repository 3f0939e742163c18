package objtree

import (
	"strconv"
	"strings"
)

// ConstKind tags the variant held by a Constant.
type ConstKind uint8

const (
	ConstNull ConstKind = iota
	ConstInt
	ConstFloat
	ConstString
	ConstResource
	ConstPath
	ConstList
)

func (k ConstKind) String() string {
	switch k {
	case ConstNull:
		return "null"
	case ConstInt:
		return "int"
	case ConstFloat:
		return "float"
	case ConstString:
		return "string"
	case ConstResource:
		return "resource"
	case ConstPath:
		return "path"
	case ConstList:
		return "list"
	default:
		return "unknown"
	}
}

// Constant is a literal value folded out of a variable's expression.
// Only the field matching Kind is meaningful.
type Constant struct {
	Kind  ConstKind
	Int   int64
	Float float64
	Str   string // string text, resource file name, or type path
	List  []ListEntry
}

// ListEntry is one element of a list literal. Value is non-nil for
// associations (`list("a" = 1)`).
type ListEntry struct {
	Key   Constant
	Value *Constant
}

// Null is the `null` constant.
func Null() Constant { return Constant{Kind: ConstNull} }

// Int returns an integer constant.
func Int(v int64) Constant { return Constant{Kind: ConstInt, Int: v} }

// Float returns a floating-point constant.
func Float(v float64) Constant { return Constant{Kind: ConstFloat, Float: v} }

// String returns a string constant.
func String(s string) Constant { return Constant{Kind: ConstString, Str: s} }

// Resource returns a resource ('file.dmi') constant.
func Resource(s string) Constant { return Constant{Kind: ConstResource, Str: s} }

// Path returns a type path constant.
func Path(p string) Constant { return Constant{Kind: ConstPath, Str: p} }

// List returns a list constant.
func List(entries ...ListEntry) Constant { return Constant{Kind: ConstList, List: entries} }

// String renders the constant the way it would be written in source.
func (c Constant) String() string {
	switch c.Kind {
	case ConstNull:
		return "null"
	case ConstInt:
		return strconv.FormatInt(c.Int, 10)
	case ConstFloat:
		return strconv.FormatFloat(c.Float, 'g', -1, 64)
	case ConstString:
		return strconv.Quote(c.Str)
	case ConstResource:
		return "'" + c.Str + "'"
	case ConstPath:
		return c.Str
	case ConstList:
		var sb strings.Builder
		sb.WriteString("list(")
		for i, e := range c.List {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(e.Key.String())
			if e.Value != nil {
				sb.WriteString(" = ")
				sb.WriteString(e.Value.String())
			}
		}
		sb.WriteString(")")
		return sb.String()
	default:
		return "?"
	}
}

// Equal reports deep equality.
func (c Constant) Equal(o Constant) bool {
	if c.Kind != o.Kind {
		return false
	}
	switch c.Kind {
	case ConstNull:
		return true
	case ConstInt:
		return c.Int == o.Int
	case ConstFloat:
		return c.Float == o.Float
	case ConstString, ConstResource, ConstPath:
		return c.Str == o.Str
	case ConstList:
		if len(c.List) != len(o.List) {
			return false
		}
		for i := range c.List {
			a, b := c.List[i], o.List[i]
			if !a.Key.Equal(b.Key) {
				return false
			}
			if (a.Value == nil) != (b.Value == nil) {
				return false
			}
			if a.Value != nil && !a.Value.Equal(*b.Value) {
				return false
			}
		}
		return true
	}
	return false
}

// Clone returns a deep copy of c; list entries and their values are copied.
func (c Constant) Clone() Constant {
	if c.List == nil {
		return c
	}
	out := c
	out.List = make([]ListEntry, len(c.List))
	for i, e := range c.List {
		out.List[i].Key = e.Key.Clone()
		if e.Value != nil {
			v := e.Value.Clone()
			out.List[i].Value = &v
		}
	}
	return out
}
