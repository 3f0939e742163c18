package objtree

const componentObjtree = "objtree"

// Builder assembles a Tree. It is the only way to mutate a hierarchy; once
// Finish returns, the tree is frozen and the builder is spent.
type Builder struct {
	ctx  *Context
	tree *Tree
}

// NewBuilder starts a tree with just the root type.
func NewBuilder(ctx *Context) *Builder {
	root := newType("", 0, NoParent, Location{})
	return &Builder{
		ctx: ctx,
		tree: &Tree{
			types:  []*Type{root},
			byPath: map[string]uint32{"": 0},
		},
	}
}

// Root returns the root type under construction.
func (b *Builder) Root() *Type { return b.tree.types[0] }

// Subtype returns the type at path, creating it and any missing ancestors.
// Newly created types take loc as their location.
func (b *Builder) Subtype(path string, loc Location) *Type {
	cur := b.tree.types[0]
	prefix := ""
	for _, seg := range SplitPath(path) {
		prefix += "/" + seg
		if idx, ok := b.tree.byPath[prefix]; ok {
			cur = b.tree.types[idx]
			continue
		}
		idx := uint32(len(b.tree.types))
		child := newType(prefix, idx, cur.Index, loc)
		b.tree.types = append(b.tree.types, child)
		b.tree.byPath[prefix] = idx
		cur.children = append(cur.children, idx)
		cur = child
	}
	return cur
}

func (b *Builder) varEntry(ty *Type, name string) *TypeVar {
	if i, ok := ty.varIndex[name]; ok {
		return ty.vars[i]
	}
	v := &TypeVar{Name: name}
	ty.varIndex[name] = len(ty.vars)
	ty.vars = append(ty.vars, v)
	return v
}

// DeclareVar introduces name at ty. A second declaration at the same type
// replaces the first and registers a warning.
func (b *Builder) DeclareVar(ty *Type, name string, decl VarDeclaration, value VarValue) {
	v := b.varEntry(ty, name)
	if v.Declaration != nil {
		b.ctx.Warnf(decl.Location, componentObjtree, "duplicate declaration of var %q on %s", name, displayPath(ty))
	}
	d := decl
	v.Declaration = &d
	if value.IsSet() || !v.Value.IsSet() {
		v.Value = value
	}
}

// SetVar records a value for name at ty without declaring it. The last
// assignment at a type wins. Empty values are ignored so that every entry
// carries a value or a declaration.
func (b *Builder) SetVar(ty *Type, name string, value VarValue) {
	if !value.IsSet() {
		return
	}
	v := b.varEntry(ty, name)
	v.Value = value
}

// AddProc appends a definition of name at ty. decl is non-nil when the
// definition introduces the proc (`proc/name()` or `verb/name()`).
func (b *Builder) AddProc(ty *Type, name string, value ProcValue, decl *ProcDeclaration) {
	var p *TypeProc
	if i, ok := ty.procIndex[name]; ok {
		p = ty.procs[i]
	} else {
		p = &TypeProc{Name: name}
		ty.procIndex[name] = len(ty.procs)
		ty.procs = append(ty.procs, p)
	}
	if decl != nil {
		if p.Declaration != nil {
			b.ctx.Warnf(decl.Location, componentObjtree, "duplicate declaration of %s %q on %s", decl.Kind, name, displayPath(ty))
		} else {
			d := *decl
			p.Declaration = &d
		}
	}
	p.Values = append(p.Values, value)
}

// Finish freezes the tree after checking that every override has a
// declaration somewhere along its inheritance path. Missing declarations are
// reported as info diagnostics; builtin vars and procs are not modelled.
func (b *Builder) Finish() *Tree {
	tree := b.FinishUnchecked()
	b.checkReferences(tree)
	return tree
}

// FinishUnchecked freezes the tree without the reference check. Used when a
// tree is rebuilt from a snapshot whose diagnostics were already collected.
func (b *Builder) FinishUnchecked() *Tree {
	tree := b.tree
	b.tree = nil
	return tree
}

func (b *Builder) checkReferences(tree *Tree) {
	tree.ForEachType(func(ty *Type) bool {
		for _, v := range ty.vars {
			if v.Declaration != nil {
				continue
			}
			if _, _, ok := tree.FindVarDeclaration(ty, v.Name); !ok {
				b.ctx.Infof(v.Value.Location, componentObjtree, "var %q on %s overrides no declared var", v.Name, displayPath(ty))
			}
		}
		for _, p := range ty.procs {
			if p.Declaration != nil {
				continue
			}
			if _, _, ok := tree.FindProcDeclaration(ty, p.Name); !ok {
				loc := Location{}
				if len(p.Values) > 0 {
					loc = p.Values[0].Location
				}
				b.ctx.Infof(loc, componentObjtree, "proc %q on %s overrides no declared proc", p.Name, displayPath(ty))
			}
		}
		return true
	})
}

func displayPath(ty *Type) string {
	if ty.Path == "" {
		return "/"
	}
	return ty.Path
}
