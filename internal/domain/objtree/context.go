package objtree

import (
	"fmt"
	"path/filepath"
)

// FileID identifies a source file registered with a Context. Zero means "builtin"
// (no source location).
type FileID uint32

// Location points at a position in a registered source file.
type Location struct {
	File   FileID
	Line   uint32
	Column uint16
}

// IsBuiltin reports whether the location has no source file.
func (l Location) IsBuiltin() bool { return l.File == 0 }

// Severity classifies a diagnostic.
type Severity int

const (
	SeverityError Severity = iota + 1
	SeverityWarning
	SeverityInfo
	SeverityHint
)

func (s Severity) String() string {
	switch s {
	case SeverityError:
		return "error"
	case SeverityWarning:
		return "warning"
	case SeverityInfo:
		return "info"
	case SeverityHint:
		return "hint"
	default:
		return fmt.Sprintf("severity(%d)", int(s))
	}
}

// Diagnostic is one problem noticed while building a tree.
type Diagnostic struct {
	Location  Location
	Severity  Severity
	Component string // "preprocessor", "reader", "objtree"
	Message   string
}

// Context collects the file table and diagnostics for one load. It is created
// alongside a Tree and must outlive every handle derived from that Tree.
//
// A Context is written only while its Tree is being built; afterwards it is
// read-only and safe for concurrent readers.
type Context struct {
	files     []string
	fileIndex map[string]FileID
	diags     []Diagnostic
}

// NewContext returns an empty Context.
func NewContext() *Context {
	return &Context{fileIndex: make(map[string]FileID)}
}

// RegisterFile adds path to the file table and returns its ID. Registering the
// same path twice returns the first ID.
func (c *Context) RegisterFile(path string) FileID {
	if id, ok := c.fileIndex[path]; ok {
		return id
	}
	c.files = append(c.files, path)
	id := FileID(len(c.files))
	c.fileIndex[path] = id
	return id
}

// FilePath returns the path registered under id, or "" for builtin/unknown IDs.
func (c *Context) FilePath(id FileID) string {
	if id == 0 || int(id) > len(c.files) {
		return ""
	}
	return c.files[id-1]
}

// Files returns the registered files in registration order.
func (c *Context) Files() []string {
	out := make([]string, len(c.files))
	copy(out, c.files)
	return out
}

// Register appends a diagnostic.
func (c *Context) Register(d Diagnostic) {
	c.diags = append(c.diags, d)
}

// Errorf registers an error diagnostic.
func (c *Context) Errorf(loc Location, component, format string, args ...any) {
	c.Register(Diagnostic{Location: loc, Severity: SeverityError, Component: component, Message: fmt.Sprintf(format, args...)})
}

// Warnf registers a warning diagnostic.
func (c *Context) Warnf(loc Location, component, format string, args ...any) {
	c.Register(Diagnostic{Location: loc, Severity: SeverityWarning, Component: component, Message: fmt.Sprintf(format, args...)})
}

// Infof registers an informational diagnostic.
func (c *Context) Infof(loc Location, component, format string, args ...any) {
	c.Register(Diagnostic{Location: loc, Severity: SeverityInfo, Component: component, Message: fmt.Sprintf(format, args...)})
}

// Diagnostics returns a copy of the collected diagnostics in registration order.
func (c *Context) Diagnostics() []Diagnostic {
	out := make([]Diagnostic, len(c.diags))
	copy(out, c.diags)
	return out
}

// ForEachDiagnostic calls fn for each diagnostic until fn returns false.
func (c *Context) ForEachDiagnostic(fn func(Diagnostic) bool) {
	for _, d := range c.diags {
		if !fn(d) {
			return
		}
	}
}

// Counts returns the number of error and warning diagnostics.
func (c *Context) Counts() (errors, warnings int) {
	for _, d := range c.diags {
		switch d.Severity {
		case SeverityError:
			errors++
		case SeverityWarning:
			warnings++
		}
	}
	return errors, warnings
}

// HasErrors reports whether any error diagnostic was registered.
func (c *Context) HasErrors() bool {
	n, _ := c.Counts()
	return n > 0
}

// FormatLocation renders loc as "file:line:col" using the base file name.
func (c *Context) FormatLocation(loc Location) string {
	if loc.IsBuiltin() {
		return "<builtin>"
	}
	name := filepath.Base(c.FilePath(loc.File))
	if loc.Column == 0 {
		return fmt.Sprintf("%s:%d", name, loc.Line)
	}
	return fmt.Sprintf("%s:%d:%d", name, loc.Line, loc.Column)
}
