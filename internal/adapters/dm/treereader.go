package dm

import (
	"strings"

	"github.com/corey/dmtree/internal/domain/objtree"
)

const componentReader = "reader"

type frameKind int

const (
	frameType  frameKind = iota // children are relative to path
	frameVar                    // children are var declarations with prefix
	frameProcs                  // children are proc/verb declarations
	frameBody                   // children are proc body text
	frameSkip                   // children are ignored
)

type frame struct {
	indent int
	kind   frameKind
	path   []string
	prefix []string
	proc   objtree.ProcKind
	body   *pendingProc
}

// pendingProc collects a definition's body until its block closes.
type pendingProc struct {
	ty     *objtree.Type
	name   string
	value  objtree.ProcValue
	decl   *objtree.ProcDeclaration
	inline string
	lines  []bodyLine
}

type bodyLine struct {
	indent int
	text   string
}

type stmt struct {
	loc    objtree.Location
	indent int
	raw    string // line without indentation
}

// treeReader turns preprocessed lines into types, vars, and procs.
// Indentation alone delimits blocks.
type treeReader struct {
	ctx    *objtree.Context
	b      *objtree.Builder
	frames []frame
}

func newTreeReader(ctx *objtree.Context) *treeReader {
	return &treeReader{ctx: ctx, b: objtree.NewBuilder(ctx)}
}

func (r *treeReader) read(lines []sourceLine) *objtree.Tree {
	stmts := make([]stmt, 0, len(lines))
	for _, ln := range lines {
		indent, rest := measureIndent(ln.text)
		rest = strings.TrimRight(rest, " \t;")
		if rest == "" {
			continue
		}
		loc := ln.loc
		loc.Column = uint16(min(len(ln.text)-len(strings.TrimLeft(ln.text, " \t"))+1, 0xFFFF))
		stmts = append(stmts, stmt{loc: loc, indent: indent, raw: rest})
	}

	for i, s := range stmts {
		if i > 0 && stmts[i-1].loc.File != s.loc.File {
			r.popTo(-1)
		}
		r.popTo(s.indent)
		block := i+1 < len(stmts) && stmts[i+1].loc.File == s.loc.File && stmts[i+1].indent > s.indent
		r.statement(s, block)
	}
	r.popTo(-1)
	return r.b.Finish()
}

// popTo closes every frame opened at indent or deeper.
func (r *treeReader) popTo(indent int) {
	for len(r.frames) > 0 {
		top := r.frames[len(r.frames)-1]
		if top.indent < indent {
			return
		}
		r.frames = r.frames[:len(r.frames)-1]
		if top.kind == frameBody {
			r.finishProc(top.body)
		}
	}
}

func (r *treeReader) top() frame {
	if len(r.frames) == 0 {
		return frame{indent: -1, kind: frameType}
	}
	return r.frames[len(r.frames)-1]
}

func (r *treeReader) push(f frame) { r.frames = append(r.frames, f) }

func (r *treeReader) skip(s stmt, block bool) {
	if block {
		r.push(frame{indent: s.indent, kind: frameSkip})
	}
}

func (r *treeReader) statement(s stmt, block bool) {
	cur := r.top()
	switch cur.kind {
	case frameBody:
		cur.body.lines = append(cur.body.lines, bodyLine{indent: s.indent, text: s.raw})
		return
	case frameSkip:
		return
	}

	text := s.raw
	if hasBraceBlock(text) {
		r.ctx.Errorf(s.loc, componentReader, "brace blocks are not supported; use indentation")
		r.skip(s, block)
		return
	}

	// the first of a top-level "=" or "(" decides the statement shape
	cut, op := -1, byte(0)
	topLevel(text, func(i int) bool {
		if text[i] == '(' || isAssignAt(text, i) {
			cut, op = i, text[i]
			return false
		}
		return true
	})

	lhs, rhs, params, trailing := text, "", "", ""
	hasRHS, hasParams := false, false
	switch op {
	case '=':
		lhs, rhs, hasRHS = text[:cut], text[cut+1:], true
	case '(':
		end := matchParen(text, cut)
		if end < 0 {
			r.ctx.Errorf(s.loc, componentReader, "unbalanced parentheses")
			r.skip(s, block)
			return
		}
		lhs, params, trailing, hasParams = text[:cut], text[cut+1:end], strings.TrimSpace(text[end+1:]), true
	}

	lhs = strings.TrimSpace(lhs)
	absolute := strings.HasPrefix(lhs, "/")
	segs := splitSegments(lhs)
	if len(segs) == 0 && !absolute {
		r.ctx.Warnf(s.loc, componentReader, "unrecognized statement %q", text)
		r.skip(s, block)
		return
	}
	for i, seg := range segs {
		if !isIdent(seg) && !(i == len(segs)-1 && isArrayName(seg)) {
			r.ctx.Warnf(s.loc, componentReader, "unrecognized statement %q", text)
			r.skip(s, block)
			return
		}
	}

	st := parsed{
		stmt: s, block: block,
		rhs: rhs, hasRHS: hasRHS,
		params: params, trailing: trailing, hasParams: hasParams,
	}

	switch cur.kind {
	case frameVar:
		if absolute || hasParams {
			r.ctx.Warnf(s.loc, componentReader, "unexpected statement in var block")
			r.skip(s, block)
			return
		}
		r.declareVar(cur.path, append(clone(cur.prefix), segs...), st)
	case frameProcs:
		if absolute || len(segs) != 1 {
			r.ctx.Warnf(s.loc, componentReader, "expected a proc name in %s block", cur.proc)
			r.skip(s, block)
			return
		}
		r.beginProc(cur.path, segs[0], &cur.proc, st)
	default:
		full := segs
		if !absolute {
			full = append(clone(cur.path), segs...)
		}
		r.typeStatement(full, st)
	}
}

// parsed carries the pieces of one statement.
type parsed struct {
	stmt
	block     bool
	rhs       string
	hasRHS    bool
	params    string
	trailing  string
	hasParams bool
}

func (r *treeReader) typeStatement(full []string, st parsed) {
	k := -1
	for i, seg := range full {
		if seg == "var" || seg == "proc" || seg == "verb" {
			k = i
			break
		}
	}

	if k < 0 {
		n := len(full)
		switch {
		case st.hasParams:
			if n == 0 {
				r.ctx.Warnf(st.loc, componentReader, "proc definition without a name")
				r.skip(st.stmt, st.block)
				return
			}
			r.beginProc(full[:n-1], full[n-1], nil, st)
		case st.hasRHS:
			if n == 0 {
				r.ctx.Warnf(st.loc, componentReader, "assignment without a name")
				return
			}
			ty := r.b.Subtype(joinPath(full[:n-1]), st.loc)
			r.b.SetVar(ty, full[n-1], r.value(st))
			r.skip(st.stmt, st.block)
		default:
			r.b.Subtype(joinPath(full), st.loc)
			if st.block {
				r.push(frame{indent: st.indent, kind: frameType, path: full})
			}
		}
		return
	}

	owner, rest := full[:k], full[k+1:]
	switch full[k] {
	case "var":
		if st.hasParams {
			r.ctx.Warnf(st.loc, componentReader, "unexpected parameter list after var")
			r.skip(st.stmt, st.block)
			return
		}
		if len(rest) == 0 {
			if st.hasRHS {
				r.ctx.Warnf(st.loc, componentReader, "var without a name")
				return
			}
			r.b.Subtype(joinPath(owner), st.loc)
			if st.block {
				r.push(frame{indent: st.indent, kind: frameVar, path: owner})
			}
			return
		}
		r.declareVar(owner, rest, st)
	default:
		kind := objtree.ProcKindProc
		if full[k] == "verb" {
			kind = objtree.ProcKindVerb
		}
		switch {
		case len(rest) == 0 && !st.hasParams && !st.hasRHS:
			r.b.Subtype(joinPath(owner), st.loc)
			if st.block {
				r.push(frame{indent: st.indent, kind: frameProcs, path: owner, proc: kind})
			}
		case len(rest) == 1 && !st.hasRHS:
			if !st.hasParams {
				r.ctx.Warnf(st.loc, componentReader, "%s %s has no parameter list", kind, rest[0])
			}
			r.beginProc(owner, rest[0], &kind, st)
		default:
			r.ctx.Warnf(st.loc, componentReader, "malformed %s definition", kind)
			r.skip(st.stmt, st.block)
		}
	}
}

func (r *treeReader) declareVar(owner, mods []string, st parsed) {
	if !st.hasRHS && st.block {
		r.push(frame{indent: st.indent, kind: frameVar, path: owner, prefix: mods})
		return
	}
	name := mods[len(mods)-1]
	var decl objtree.VarDeclaration
	decl.Location = st.loc
	array := false
	if i := strings.IndexByte(name, '['); i >= 0 {
		name, array = name[:i], true
	}
	for _, m := range mods[:len(mods)-1] {
		if f, ok := objtree.ParseVarFlag(m); ok {
			decl.Flags |= f
			continue
		}
		decl.TypePath = append(decl.TypePath, m)
	}
	if array && (len(decl.TypePath) == 0 || decl.TypePath[0] != "list") {
		decl.TypePath = append([]string{"list"}, decl.TypePath...)
	}
	ty := r.b.Subtype(joinPath(owner), st.loc)
	r.b.DeclareVar(ty, name, decl, r.value(st))
	r.skip(st.stmt, st.block)
}

func (r *treeReader) value(st parsed) objtree.VarValue {
	if !st.hasRHS {
		return objtree.VarValue{}
	}
	expr := strings.TrimSpace(st.rhs)
	if expr == "" {
		r.ctx.Warnf(st.loc, componentReader, "missing value after '='")
		return objtree.VarValue{}
	}
	v := objtree.VarValue{Location: st.loc, Expression: expr}
	if hasUnclosedLiteral(expr) {
		r.ctx.Errorf(st.loc, componentReader, "unterminated string literal")
		return v
	}
	if c, ok := foldConstant(expr); ok {
		v.Constant = &c
	}
	return v
}

// beginProc opens a definition. kind is nil for an override.
func (r *treeReader) beginProc(owner []string, name string, kind *objtree.ProcKind, st parsed) {
	p := &pendingProc{
		ty:   r.b.Subtype(joinPath(owner), st.loc),
		name: name,
		value: objtree.ProcValue{
			Location:   st.loc,
			Parameters: parseParams(st.params),
		},
	}
	if kind != nil {
		p.decl = &objtree.ProcDeclaration{Location: st.loc, Kind: *kind}
	}
	p.inline = st.trailing
	r.push(frame{indent: st.indent, kind: frameBody, body: p})
}

func (r *treeReader) finishProc(p *pendingProc) {
	p.value.Body = p.body()
	if p.decl != nil {
		for _, ln := range p.lines {
			switch setting(ln.text) {
			case "SpacemanDMM_private_proc":
				p.decl.Private = true
			case "SpacemanDMM_protected_proc":
				p.decl.Protected = true
			}
		}
	}
	r.b.AddProc(p.ty, p.name, p.value, p.decl)
}

// body joins the captured lines, indented relative to the shallowest one.
func (p *pendingProc) body() string {
	var out []string
	if p.inline != "" {
		out = append(out, p.inline)
	}
	base := -1
	for _, ln := range p.lines {
		if base < 0 || ln.indent < base {
			base = ln.indent
		}
	}
	// One nesting level is the smallest step in indentation, whatever the
	// file uses.
	unit := 0
	for _, ln := range p.lines {
		if d := ln.indent - base; d > 0 && (unit == 0 || d < unit) {
			unit = d
		}
	}
	for _, ln := range p.lines {
		depth := 0
		if unit > 0 {
			depth = (ln.indent - base) / unit
		}
		out = append(out, strings.Repeat("\t", depth)+ln.text)
	}
	return strings.Join(out, "\n")
}

// setting returns X for a truthy `set X = 1` body line.
func setting(line string) string {
	rest, ok := strings.CutPrefix(strings.TrimSpace(line), "set ")
	if !ok {
		return ""
	}
	name, val, ok := strings.Cut(rest, "=")
	if !ok || strings.TrimSpace(val) == "0" {
		return ""
	}
	return strings.TrimSpace(name)
}

func parseParams(text string) []objtree.Parameter {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	var params []objtree.Parameter
	for _, part := range splitTopLevel(text, ',') {
		part = strings.TrimSpace(part)
		if part == "" || part == "..." {
			continue
		}
		var prm objtree.Parameter
		if eq := assignIndex(part); eq >= 0 {
			prm.Default = strings.TrimSpace(part[eq+1:])
			part = strings.TrimSpace(part[:eq])
		}
		// "as" input-type filters follow the name
		if i := strings.Index(part, " as "); i >= 0 {
			part = strings.TrimSpace(part[:i])
		}
		segs := splitSegments(part)
		if len(segs) > 0 && segs[0] == "var" {
			segs = segs[1:]
		}
		if len(segs) == 0 {
			continue
		}
		prm.Name = segs[len(segs)-1]
		if len(segs) > 1 {
			prm.TypePath = clone(segs[:len(segs)-1])
		}
		params = append(params, prm)
	}
	return params
}

// hasBraceBlock reports a '{' or '}' used as a block delimiter.
func hasBraceBlock(s string) bool {
	found := false
	depth := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '"' || c == '\'' || isRawOpen(s, i) {
			i = skipQuoted(s, i)
			continue
		}
		switch c {
		case '(', '[':
			depth++
		case ')', ']':
			depth--
		case '{', '}':
			if depth == 0 {
				found = true
			}
		}
	}
	return found
}

func splitSegments(path string) []string {
	var segs []string
	for _, seg := range strings.Split(path, "/") {
		if seg = strings.TrimSpace(seg); seg != "" {
			segs = append(segs, seg)
		}
	}
	return segs
}

func isArrayName(seg string) bool {
	i := strings.IndexByte(seg, '[')
	return i > 0 && isIdent(seg[:i]) && strings.HasSuffix(seg, "]")
}

func joinPath(segs []string) string {
	if len(segs) == 0 {
		return ""
	}
	return "/" + strings.Join(segs, "/")
}

func clone(s []string) []string {
	return append([]string(nil), s...)
}
