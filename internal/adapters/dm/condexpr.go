package dm

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var errTrailing = errors.New("unexpected trailing tokens")

// evalCondition evaluates a #if expression: integers, defined(NAME),
// macros, unary ! and -, arithmetic, comparison and logical operators.
// Unknown identifiers are 0.
func (p *preprocessor) evalCondition(expr string) (int64, error) {
	expr = p.expand(p.replaceDefined(expr), nil, 0)
	toks, err := tokenizeCond(expr)
	if err != nil {
		return 0, err
	}
	if len(toks) == 0 {
		return 0, errors.New("empty expression")
	}
	e := &condEval{toks: toks}
	v, err := e.binary(0)
	if err != nil {
		return 0, err
	}
	if e.pos != len(e.toks) {
		return 0, errTrailing
	}
	return v, nil
}

// replaceDefined resolves defined(X) and defined X before macro expansion
// can rewrite X.
func (p *preprocessor) replaceDefined(expr string) string {
	var out strings.Builder
	for {
		i := strings.Index(expr, "defined")
		if i < 0 || (i > 0 && isIdentByte(expr[i-1])) || (i+7 < len(expr) && isIdentByte(expr[i+7])) {
			if i < 0 {
				out.WriteString(expr)
				return out.String()
			}
			out.WriteString(expr[:i+7])
			expr = expr[i+7:]
			continue
		}
		out.WriteString(expr[:i])
		rest := strings.TrimLeft(expr[i+7:], " \t")
		paren := strings.HasPrefix(rest, "(")
		if paren {
			rest = strings.TrimLeft(rest[1:], " \t")
		}
		j := 0
		for j < len(rest) && isIdentByte(rest[j]) {
			j++
		}
		name := rest[:j]
		rest = strings.TrimLeft(rest[j:], " \t")
		if paren && strings.HasPrefix(rest, ")") {
			rest = rest[1:]
		}
		if _, ok := p.macros[name]; ok {
			out.WriteString(" 1 ")
		} else {
			out.WriteString(" 0 ")
		}
		expr = rest
	}
}

type condToken struct {
	op  string // operator or "(" / ")"; empty for numbers
	num int64
}

var condOps = []string{"||", "&&", "==", "!=", "<=", ">=", "<<", ">>", "<", ">", "+", "-", "*", "/", "%", "!", "(", ")", "&", "|", "^", "~"}

func tokenizeCond(s string) ([]condToken, error) {
	var toks []condToken
	for i := 0; i < len(s); {
		c := s[i]
		switch {
		case c == ' ' || c == '\t':
			i++
		case c >= '0' && c <= '9':
			j := i
			for j < len(s) && (isIdentByte(s[j]) || s[j] == '.') {
				j++
			}
			lit := s[i:j]
			n, err := strconv.ParseInt(lit, 0, 64)
			if err != nil {
				f, ferr := strconv.ParseFloat(lit, 64)
				if ferr != nil {
					return nil, fmt.Errorf("bad number %q", lit)
				}
				n = int64(f)
			}
			toks = append(toks, condToken{num: n})
			i = j
		case isIdentStart(c):
			// identifiers left after expansion are undefined macros
			j := i
			for j < len(s) && isIdentByte(s[j]) {
				j++
			}
			toks = append(toks, condToken{num: 0})
			i = j
		default:
			matched := false
			for _, op := range condOps {
				if strings.HasPrefix(s[i:], op) {
					toks = append(toks, condToken{op: op})
					i += len(op)
					matched = true
					break
				}
			}
			if !matched {
				return nil, fmt.Errorf("unexpected %q", c)
			}
		}
	}
	return toks, nil
}

type condEval struct {
	toks []condToken
	pos  int
}

var condPrec = map[string]int{
	"||": 1, "&&": 2,
	"|": 3, "^": 4, "&": 5,
	"==": 6, "!=": 6,
	"<": 7, ">": 7, "<=": 7, ">=": 7,
	"<<": 8, ">>": 8,
	"+": 9, "-": 9,
	"*": 10, "/": 10, "%": 10,
}

func (e *condEval) peek() (condToken, bool) {
	if e.pos >= len(e.toks) {
		return condToken{}, false
	}
	return e.toks[e.pos], true
}

// binary is precedence climbing over condPrec.
func (e *condEval) binary(minPrec int) (int64, error) {
	lhs, err := e.unary()
	if err != nil {
		return 0, err
	}
	for {
		t, ok := e.peek()
		if !ok || t.op == "" {
			return lhs, nil
		}
		prec, isBin := condPrec[t.op]
		if !isBin || prec <= minPrec {
			return lhs, nil
		}
		e.pos++
		rhs, err := e.binary(prec)
		if err != nil {
			return 0, err
		}
		if lhs, err = applyCond(t.op, lhs, rhs); err != nil {
			return 0, err
		}
	}
}

func (e *condEval) unary() (int64, error) {
	t, ok := e.peek()
	if !ok {
		return 0, errors.New("unexpected end of expression")
	}
	e.pos++
	switch t.op {
	case "":
		return t.num, nil
	case "!":
		v, err := e.unary()
		return b2i(v == 0), err
	case "-":
		v, err := e.unary()
		return -v, err
	case "+":
		return e.unary()
	case "~":
		v, err := e.unary()
		return ^v, err
	case "(":
		v, err := e.binary(0)
		if err != nil {
			return 0, err
		}
		if t, ok := e.peek(); !ok || t.op != ")" {
			return 0, errors.New("missing )")
		}
		e.pos++
		return v, nil
	}
	return 0, fmt.Errorf("unexpected %q", t.op)
}

func applyCond(op string, a, b int64) (int64, error) {
	switch op {
	case "||":
		return b2i(a != 0 || b != 0), nil
	case "&&":
		return b2i(a != 0 && b != 0), nil
	case "|":
		return a | b, nil
	case "^":
		return a ^ b, nil
	case "&":
		return a & b, nil
	case "==":
		return b2i(a == b), nil
	case "!=":
		return b2i(a != b), nil
	case "<":
		return b2i(a < b), nil
	case ">":
		return b2i(a > b), nil
	case "<=":
		return b2i(a <= b), nil
	case ">=":
		return b2i(a >= b), nil
	case "<<":
		return a << uint64(b&63), nil
	case ">>":
		return a >> uint64(b&63), nil
	case "+":
		return a + b, nil
	case "-":
		return a - b, nil
	case "*":
		return a * b, nil
	case "/", "%":
		if b == 0 {
			return 0, errors.New("division by zero")
		}
		if op == "/" {
			return a / b, nil
		}
		return a % b, nil
	}
	return 0, fmt.Errorf("unknown operator %q", op)
}

func b2i(b bool) int64 {
	if b {
		return 1
	}
	return 0
}
