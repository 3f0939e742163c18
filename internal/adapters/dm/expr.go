package dm

import (
	"strconv"
	"strings"

	"github.com/corey/dmtree/internal/domain/objtree"
)

// foldConstant evaluates expr when it is a literal: null, numbers, strings
// without interpolation, resources, type paths, and list() of literals.
// Anything else reports false and is kept only as expression text.
func foldConstant(expr string) (objtree.Constant, bool) {
	s := strings.TrimSpace(expr)
	if s == "" {
		return objtree.Constant{}, false
	}

	if s[0] == '(' && matchParen(s, 0) == len(s)-1 {
		return foldConstant(s[1 : len(s)-1])
	}

	switch {
	case s == "null":
		return objtree.Null(), true
	case s[0] == '"' || isRawOpen(s, 0):
		if !wholeLiteral(s) {
			return objtree.Constant{}, false
		}
		return foldString(s)
	case s[0] == '\'':
		if !wholeLiteral(s) {
			return objtree.Constant{}, false
		}
		return objtree.Resource(s[1 : len(s)-1]), true
	case s[0] == '/':
		if !isTypePath(s) {
			return objtree.Constant{}, false
		}
		return objtree.Path(objtree.NormalizePath(s)), true
	case strings.HasPrefix(s, "list(") && matchParen(s, 4) == len(s)-1:
		return foldList(s[5 : len(s)-1])
	case s[0] == '-' || s[0] == '+':
		c, ok := foldNumber(strings.TrimSpace(s[1:]))
		if ok && s[0] == '-' {
			if c.Kind == objtree.ConstInt {
				c.Int = -c.Int
			} else {
				c.Float = -c.Float
			}
		}
		return c, ok
	}
	return foldNumber(s)
}

// wholeLiteral reports whether s is exactly one closed quoted literal.
func wholeLiteral(s string) bool {
	end, closed := quoteEnd(s, 0)
	return closed && end == len(s)-1
}

func foldNumber(s string) (objtree.Constant, bool) {
	if s == "" || !(s[0] >= '0' && s[0] <= '9' || s[0] == '.') {
		return objtree.Constant{}, false
	}
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		if n, err := strconv.ParseInt(s[2:], 16, 64); err == nil {
			return objtree.Int(n), true
		}
		return objtree.Constant{}, false
	}
	if !strings.ContainsAny(s, ".eE") {
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return objtree.Int(n), true
		}
	}
	if strings.HasSuffix(s, "#INF") {
		s = strings.TrimSuffix(s, "1.#INF") + "Inf"
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return objtree.Float(f), true
	}
	return objtree.Constant{}, false
}

// foldString unescapes a "..." or {"..."} literal. Embedded [expr]
// interpolation makes the string non-constant.
func foldString(s string) (objtree.Constant, bool) {
	var inner string
	if s[0] == '{' {
		inner = s[2 : len(s)-2]
	} else {
		inner = s[1 : len(s)-1]
	}
	var out strings.Builder
	for i := 0; i < len(inner); i++ {
		c := inner[i]
		switch {
		case c == '[':
			return objtree.Constant{}, false
		case c == '\\' && i+1 < len(inner):
			k := i + 1
			for k < len(inner) && isIdentByte(inner[k]) {
				k++
			}
			if word := inner[i+1 : k]; textMacros[word] {
				out.WriteString(inner[i:k])
				i = k - 1
				continue
			}
			i++
			switch n := inner[i]; n {
			case 'n':
				out.WriteByte('\n')
			case 't':
				out.WriteByte('\t')
			case '"', '\\', '[', ']', '\'':
				out.WriteByte(n)
			default:
				out.WriteByte('\\')
				out.WriteByte(n)
			}
		default:
			out.WriteByte(c)
		}
	}
	return objtree.String(out.String()), true
}

// textMacros are BYOND's \word string macros. They are resolved at runtime,
// so a constant keeps them as written.
var textMacros = map[string]bool{
	"the": true, "The": true, "a": true, "A": true, "an": true, "An": true,
	"he": true, "He": true, "she": true, "She": true, "his": true, "His": true,
	"him": true, "himself": true, "herself": true, "hers": true, "Hers": true,
	"proper": true, "improper": true, "th": true, "s": true, "ref": true,
	"icon": true, "roman": true, "Roman": true,
}

func foldList(args string) (objtree.Constant, bool) {
	if strings.TrimSpace(args) == "" {
		return objtree.List(), true
	}
	parts := splitTopLevel(args, ',')
	if strings.TrimSpace(parts[len(parts)-1]) == "" {
		parts = parts[:len(parts)-1]
	}
	entries := make([]objtree.ListEntry, 0, len(parts))
	for _, part := range parts {
		var entry objtree.ListEntry
		keyText := part
		if eq := assignIndex(part); eq >= 0 {
			keyText = part[:eq]
			v, ok := foldConstant(part[eq+1:])
			if !ok {
				return objtree.Constant{}, false
			}
			entry.Value = &v
		}
		keyText = strings.TrimSpace(keyText)
		if entry.Value != nil && isIdent(keyText) {
			// bare identifiers name string keys: list(a = 1)
			entry.Key = objtree.String(keyText)
		} else {
			k, ok := foldConstant(keyText)
			if !ok {
				return objtree.Constant{}, false
			}
			entry.Key = k
		}
		entries = append(entries, entry)
	}
	return objtree.List(entries...), true
}

func isTypePath(s string) bool {
	for _, seg := range strings.Split(s, "/") {
		if seg != "" && !isIdent(seg) {
			return false
		}
	}
	return true
}
