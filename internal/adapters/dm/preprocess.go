package dm

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/corey/dmtree/internal/domain/objtree"
	"github.com/corey/dmtree/internal/logger"
	"github.com/corey/dmtree/internal/ports"
)

const componentPreprocessor = "preprocessor"

// Version macros predefined for every read.
const (
	dmVersion = "515"
	dmBuild   = "1633"
)

// maxExpansionDepth bounds nested macro expansion.
const maxExpansionDepth = 32

type macro struct {
	body   string
	params []string // nil for object-like macros
	fn     bool
	loc    objtree.Location
}

// condFrame is one #if group on the conditional stack.
type condFrame struct {
	active  bool // lines in the current branch are emitted
	taken   bool // some branch of the group has been emitted
	outer   bool // the enclosing group is active
	sawElse bool
	loc     objtree.Location
}

// sourceLine is a preprocessed logical line ready for the tree reader.
type sourceLine struct {
	loc  objtree.Location
	text string
}

type preprocessor struct {
	ctx    *objtree.Context
	opts   ports.ReadOptions
	macros map[string]*macro
	stack  []string        // files being expanded, innermost last
	seen   map[string]bool // files already expanded once
	conds  []condFrame
	out    []sourceLine
}

func newPreprocessor(ctx *objtree.Context, opts ports.ReadOptions) *preprocessor {
	p := &preprocessor{
		ctx:    ctx,
		opts:   opts,
		macros: make(map[string]*macro),
		seen:   make(map[string]bool),
	}
	p.macros["TRUE"] = &macro{body: "1"}
	p.macros["FALSE"] = &macro{body: "0"}
	p.macros["DM_VERSION"] = &macro{body: dmVersion}
	p.macros["DM_BUILD"] = &macro{body: dmBuild}

	names := make([]string, 0, len(opts.Defines))
	for name := range opts.Defines {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		p.define(objtree.Location{}, name+" "+opts.Defines[name])
	}
	return p
}

// run expands the root file. Only a root that cannot be read or decoded is
// an error; everything else becomes a diagnostic.
func (p *preprocessor) run(path string) error {
	abs, err := filepath.Abs(path)
	if err != nil {
		return err
	}
	data, err := os.ReadFile(abs)
	if err != nil {
		return err
	}
	text, fallback, err := decodeSource(data, p.opts.Encoding)
	if err != nil {
		return fmt.Errorf("decode %s: %w", abs, err)
	}
	p.expandFile(abs, text, fallback)
	return nil
}

func (p *preprocessor) active() bool {
	return len(p.conds) == 0 || p.conds[len(p.conds)-1].active
}

func (p *preprocessor) includeFile(path string, from objtree.Location) {
	for _, open := range p.stack {
		if open == path {
			p.ctx.Warnf(from, componentPreprocessor, "include cycle: %s is already being included", filepath.Base(path))
			return
		}
	}
	if p.seen[path] {
		p.ctx.Infof(from, componentPreprocessor, "%s already included, skipped", filepath.Base(path))
		return
	}
	data, err := os.ReadFile(path)
	if err != nil {
		p.ctx.Errorf(from, componentPreprocessor, "cannot read include: %v", err)
		return
	}
	text, fallback, err := decodeSource(data, p.opts.Encoding)
	if err != nil {
		p.ctx.Errorf(from, componentPreprocessor, "cannot decode %s: %v", filepath.Base(path), err)
		return
	}
	p.expandFile(path, text, fallback)
}

func (p *preprocessor) expandFile(path, text string, fallback bool) {
	id := p.ctx.RegisterFile(path)
	p.seen[path] = true
	p.stack = append(p.stack, path)
	defer func() { p.stack = p.stack[:len(p.stack)-1] }()

	if fallback {
		p.ctx.Infof(objtree.Location{File: id, Line: 1}, componentPreprocessor, "not valid UTF-8, decoded as Windows-1252")
	}
	logger.L.Debug("preprocess file", "path", path, "depth", len(p.stack))

	lines, unterminated := splitLogical(text)
	depth := len(p.conds)
	dir := filepath.Dir(path)
	for _, ln := range lines {
		loc := objtree.Location{File: id, Line: ln.line}
		trimmed := strings.TrimLeft(ln.text, " \t")
		if strings.HasPrefix(trimmed, "#") {
			p.directive(loc, strings.TrimSpace(trimmed[1:]), dir)
			continue
		}
		if p.active() {
			p.out = append(p.out, sourceLine{loc: loc, text: p.expand(ln.text, nil, 0)})
		}
	}
	if unterminated {
		p.ctx.Errorf(objtree.Location{File: id, Line: uint32(strings.Count(text, "\n") + 1)}, componentPreprocessor, "unterminated block comment")
	}
	if len(p.conds) > depth {
		p.ctx.Errorf(p.conds[depth].loc, componentPreprocessor, "unterminated conditional at end of file")
		p.conds = p.conds[:depth]
	}
}

func (p *preprocessor) directive(loc objtree.Location, line, dir string) {
	name, rest, _ := strings.Cut(line, " ")
	if i := strings.IndexAny(name, "\t\"<("); i > 0 {
		name, rest = name[:i], name[i:]+" "+rest
	}
	rest = strings.TrimSpace(rest)

	switch name {
	case "if":
		p.pushCond(loc, p.truth(loc, rest))
		return
	case "ifdef":
		_, ok := p.macros[firstWord(rest)]
		p.pushCond(loc, ok)
		return
	case "ifndef":
		_, ok := p.macros[firstWord(rest)]
		p.pushCond(loc, !ok)
		return
	case "elif":
		p.elseBranch(loc, "#elif", func() bool { return p.truth(loc, rest) })
		return
	case "else":
		p.elseBranch(loc, "#else", func() bool { return true })
		return
	case "endif":
		if len(p.conds) == 0 {
			p.ctx.Errorf(loc, componentPreprocessor, "#endif without #if")
			return
		}
		p.conds = p.conds[:len(p.conds)-1]
		return
	}

	if !p.active() {
		return
	}
	switch name {
	case "include":
		p.include(loc, rest, dir)
	case "define":
		p.define(loc, rest)
	case "undef":
		delete(p.macros, firstWord(rest))
	case "error":
		p.ctx.Errorf(loc, componentPreprocessor, "#error %s", rest)
	case "warn", "warning":
		p.ctx.Warnf(loc, componentPreprocessor, "#warn %s", rest)
	case "pragma":
	default:
		p.ctx.Warnf(loc, componentPreprocessor, "unknown directive #%s", name)
	}
}

func (p *preprocessor) pushCond(loc objtree.Location, truth bool) {
	outer := p.active()
	p.conds = append(p.conds, condFrame{
		active: outer && truth,
		taken:  truth,
		outer:  outer,
		loc:    loc,
	})
}

func (p *preprocessor) elseBranch(loc objtree.Location, what string, truth func() bool) {
	if len(p.conds) == 0 {
		p.ctx.Errorf(loc, componentPreprocessor, "%s without #if", what)
		return
	}
	top := &p.conds[len(p.conds)-1]
	if top.sawElse {
		p.ctx.Errorf(loc, componentPreprocessor, "%s after #else", what)
		top.active = false
		return
	}
	if what == "#else" {
		top.sawElse = true
	}
	if top.taken {
		top.active = false
		return
	}
	t := top.outer && truth()
	top.active = t
	top.taken = t
}

func (p *preprocessor) truth(loc objtree.Location, expr string) bool {
	v, err := p.evalCondition(expr)
	if err != nil {
		p.ctx.Errorf(loc, componentPreprocessor, "bad #if expression %q: %v", expr, err)
		return false
	}
	return v != 0
}

// includable reports whether a file contributes object-tree source. Maps,
// interface files, and scripts named by a .dme are skipped without comment.
func includable(name string) bool {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".dm", ".dme":
		return true
	}
	return false
}

func (p *preprocessor) include(loc objtree.Location, spec, dir string) {
	var name string
	switch {
	case strings.HasPrefix(spec, `"`):
		end := strings.IndexByte(spec[1:], '"')
		if end < 0 {
			p.ctx.Errorf(loc, componentPreprocessor, "malformed #include %s", spec)
			return
		}
		name = spec[1 : 1+end]
	case strings.HasPrefix(spec, "<"):
		end := strings.IndexByte(spec, '>')
		if end < 0 {
			p.ctx.Errorf(loc, componentPreprocessor, "malformed #include %s", spec)
			return
		}
		name = spec[1:end]
	default:
		p.ctx.Errorf(loc, componentPreprocessor, "malformed #include %s", spec)
		return
	}
	name = filepath.FromSlash(strings.ReplaceAll(name, `\`, "/"))
	if !includable(name) {
		return
	}

	candidates := []string{filepath.Join(dir, name)}
	for _, inc := range p.opts.IncludePaths {
		candidates = append(candidates, filepath.Join(inc, name))
	}
	for _, c := range candidates {
		abs, err := filepath.Abs(c)
		if err != nil {
			continue
		}
		if info, err := os.Stat(abs); err == nil && !info.IsDir() {
			p.includeFile(abs, loc)
			return
		}
	}
	p.ctx.Errorf(loc, componentPreprocessor, "include %q not found", name)
}

func (p *preprocessor) define(loc objtree.Location, rest string) {
	i := 0
	for i < len(rest) && isIdentByte(rest[i]) {
		i++
	}
	name := rest[:i]
	if !isIdent(name) {
		p.ctx.Errorf(loc, componentPreprocessor, "malformed #define %s", rest)
		return
	}
	m := &macro{loc: loc}
	body := rest[i:]
	if strings.HasPrefix(body, "(") {
		end := strings.IndexByte(body, ')')
		if end < 0 {
			p.ctx.Errorf(loc, componentPreprocessor, "malformed parameter list for macro %s", name)
			return
		}
		m.fn = true
		for _, prm := range strings.Split(body[1:end], ",") {
			if prm = strings.TrimSpace(prm); prm != "" {
				m.params = append(m.params, prm)
			}
		}
		body = body[end+1:]
	}
	m.body = strings.TrimSpace(body)
	if old, ok := p.macros[name]; ok && !old.loc.IsBuiltin() && old.body != m.body {
		p.ctx.Warnf(loc, componentPreprocessor, "macro %s redefined (previously at %s)", name, p.ctx.FormatLocation(old.loc))
	}
	p.macros[name] = m
}

// expand substitutes macros in text outside of string literals. hidden holds
// the macros currently being expanded, which are left alone.
func (p *preprocessor) expand(text string, hidden map[string]bool, depth int) string {
	if depth > maxExpansionDepth {
		return text
	}
	var out strings.Builder
	for i := 0; i < len(text); {
		c := text[i]
		if c == '"' || c == '\'' || isRawOpen(text, i) {
			end := skipQuoted(text, i)
			out.WriteString(text[i : end+1])
			i = end + 1
			continue
		}
		if !isIdentStart(c) || (i > 0 && isIdentByte(text[i-1])) {
			out.WriteByte(c)
			i++
			continue
		}
		j := i
		for j < len(text) && isIdentByte(text[j]) {
			j++
		}
		word := text[i:j]
		m, ok := p.macros[word]
		if !ok || hidden[word] {
			out.WriteString(word)
			i = j
			continue
		}
		body := m.body
		if m.fn {
			k := j
			for k < len(text) && (text[k] == ' ' || text[k] == '\t') {
				k++
			}
			if k >= len(text) || text[k] != '(' {
				out.WriteString(word)
				i = j
				continue
			}
			end := matchParen(text, k)
			if end < 0 {
				out.WriteString(word)
				i = j
				continue
			}
			body = substituteParams(m, splitTopLevel(text[k+1:end], ','))
			j = end + 1
		}
		inner := make(map[string]bool, len(hidden)+1)
		for h := range hidden {
			inner[h] = true
		}
		inner[word] = true
		out.WriteString(p.expand(body, inner, depth+1))
		i = j
	}
	return out.String()
}

func substituteParams(m *macro, args []string) string {
	if len(m.params) == 0 {
		return m.body
	}
	values := make(map[string]string, len(m.params))
	for i, prm := range m.params {
		if i < len(args) {
			values[prm] = strings.TrimSpace(args[i])
		} else {
			values[prm] = ""
		}
	}
	var out strings.Builder
	body := m.body
	for i := 0; i < len(body); {
		if !isIdentStart(body[i]) || (i > 0 && isIdentByte(body[i-1])) {
			out.WriteByte(body[i])
			i++
			continue
		}
		j := i
		for j < len(body) && isIdentByte(body[j]) {
			j++
		}
		if v, ok := values[body[i:j]]; ok {
			out.WriteString(v)
		} else {
			out.WriteString(body[i:j])
		}
		i = j
	}
	return out.String()
}

func firstWord(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexAny(s, " \t("); i >= 0 {
		return s[:i]
	}
	return s
}
