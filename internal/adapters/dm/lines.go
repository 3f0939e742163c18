package dm

import "strings"

// logicalLine is one statement-sized unit of a file: comments removed,
// backslash continuations, multi-line strings, and lines inside open
// brackets joined.
type logicalLine struct {
	line uint32 // 1-based line the unit starts on
	text string
}

// splitLogical breaks a decoded file into logical lines. Blank results are
// dropped. unterminated reports a block comment still open at end of file.
func splitLogical(src string) (lines []logicalLine, unterminated bool) {
	src = strings.ReplaceAll(src, "\r\n", "\n")

	var (
		cur    strings.Builder
		line   uint32 = 1
		start  uint32 = 1
		depth  int    // block comment nesting
		quote  byte   // '"', '\'', or '{' for {" "} strings
		parens int    // open ( and [ outside strings
	)
	emit := func() {
		if text := cur.String(); strings.TrimSpace(text) != "" {
			lines = append(lines, logicalLine{line: start, text: text})
		}
		cur.Reset()
		start = line
	}
	last := func() byte {
		s := cur.String()
		if s == "" {
			return 0
		}
		return s[len(s)-1]
	}

	for i := 0; i < len(src); i++ {
		c := src[i]
		var next byte
		if i+1 < len(src) {
			next = src[i+1]
		}

		if depth > 0 {
			switch {
			case c == '/' && next == '*':
				depth++
				i++
			case c == '*' && next == '/':
				depth--
				i++
				if depth == 0 {
					cur.WriteByte(' ')
				}
			case c == '\n':
				line++
			}
			continue
		}

		if quote != 0 {
			switch {
			case c == '\\' && next == '\n':
				// continuation inside a string drops the newline
				i++
				line++
				continue
			case c == '\\' && next != 0:
				cur.WriteByte(c)
				cur.WriteByte(next)
				i++
				continue
			case quote == '{' && c == '"' && next == '}':
				cur.WriteString(`"}`)
				i++
				quote = 0
				continue
			case quote == '{' && c == '\n':
				cur.WriteByte(c)
				line++
				continue
			case c == '\n':
				// unterminated ordinary string; the statement ends here
				quote = 0
				line++
				emit()
				continue
			case c == quote:
				quote = 0
			}
			cur.WriteByte(c)
			continue
		}

		switch {
		case c == '/' && next == '/':
			for i+1 < len(src) && src[i+1] != '\n' {
				i++
			}
			continue
		case c == '/' && next == '*':
			depth = 1
			i++
			continue
		case c == '\\' && next == '\n':
			i++
			line++
			continue
		case c == '\n' && parens > 0 && !directiveFollows(src[i+1:]):
			line++
			cur.WriteByte(' ')
			continue
		case c == '\n':
			line++
			parens = 0
			emit()
			continue
		case c == '(' || c == '[':
			parens++
		case (c == ')' || c == ']') && parens > 0:
			parens--
		case c == '"':
			if last() == '{' {
				quote = '{'
			} else {
				quote = '"'
			}
		case c == '\'':
			quote = '\''
		}
		cur.WriteByte(c)
	}
	emit()
	return lines, depth > 0
}

// directiveFollows reports whether the next line is a preprocessor
// directive, which always starts a new logical line.
func directiveFollows(rest string) bool {
	rest = strings.TrimLeft(rest, " \t")
	return strings.HasPrefix(rest, "#")
}

// measureIndent returns the indentation width of s (tabs advance to the next
// multiple of 4) and the remainder after the indentation.
func measureIndent(s string) (int, string) {
	width := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case ' ':
			width++
		case '\t':
			width += 4 - width%4
		default:
			return width, s[i:]
		}
	}
	return width, ""
}

// skipQuoted returns the index of the byte that closes the literal opening
// at s[i] ('"', '\'' or the '{' of {"...}"). Unterminated literals run to
// the end of s.
func skipQuoted(s string, i int) int {
	end, _ := quoteEnd(s, i)
	return end
}

// quoteEnd returns the index of the delimiter closing the literal opened at
// s[i]. An unclosed literal ends at the last byte of s and reports false.
func quoteEnd(s string, i int) (int, bool) {
	if s[i] == '{' {
		if end := strings.Index(s[i+2:], `"}`); end >= 0 {
			return i + 2 + end + 1, true
		}
		return len(s) - 1, false
	}
	q := s[i]
	for j := i + 1; j < len(s); j++ {
		switch s[j] {
		case '\\':
			j++
		case q:
			return j, true
		}
	}
	return len(s) - 1, false
}

// hasUnclosedLiteral reports whether some string, raw string or resource
// literal in s runs off its end.
func hasUnclosedLiteral(s string) bool {
	for i := 0; i < len(s); i++ {
		if c := s[i]; c == '"' || c == '\'' || isRawOpen(s, i) {
			end, closed := quoteEnd(s, i)
			if !closed {
				return true
			}
			i = end
		}
	}
	return false
}

func isRawOpen(s string, i int) bool {
	return s[i] == '{' && i+1 < len(s) && s[i+1] == '"'
}

// topLevel calls fn with the index of every byte of s that lies outside
// string literals and brackets. An opening bracket is reported before its
// contents are skipped. Returning false stops the scan.
func topLevel(s string, fn func(i int) bool) {
	depth := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c == '"' || c == '\'' || isRawOpen(s, i) {
			start := i
			i = skipQuoted(s, i)
			if depth == 0 && !fn(start) {
				return
			}
			continue
		}
		switch c {
		case '(', '[', '{':
			if depth == 0 && !fn(i) {
				return
			}
			depth++
			continue
		case ')', ']', '}':
			if depth > 0 {
				depth--
				continue
			}
		}
		if depth == 0 && !fn(i) {
			return
		}
	}
}

// matchParen returns the index of the bracket closing the one at s[open],
// or -1.
func matchParen(s string, open int) int {
	depth := 0
	for i := open; i < len(s); i++ {
		c := s[i]
		if c == '"' || c == '\'' || isRawOpen(s, i) {
			i = skipQuoted(s, i)
			continue
		}
		switch c {
		case '(', '[', '{':
			depth++
		case ')', ']', '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// splitTopLevel splits s at every top-level sep.
func splitTopLevel(s string, sep byte) []string {
	var parts []string
	from := 0
	topLevel(s, func(i int) bool {
		if s[i] == sep {
			parts = append(parts, s[from:i])
			from = i + 1
		}
		return true
	})
	return append(parts, s[from:])
}

// assignIndex returns the index of the first top-level '=' that is an
// assignment rather than part of a comparison operator, or -1.
func assignIndex(s string) int {
	at := -1
	topLevel(s, func(i int) bool {
		if !isAssignAt(s, i) {
			return true
		}
		at = i
		return false
	})
	return at
}

// isAssignAt reports whether s[i] is a plain '=' rather than part of ==, !=,
// <=, >= or a compound assignment.
func isAssignAt(s string, i int) bool {
	if s[i] != '=' {
		return false
	}
	if i+1 < len(s) && s[i+1] == '=' {
		return false
	}
	return i == 0 || strings.IndexByte("=!<>+-*/%&|^~:", s[i-1]) < 0
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}

func isIdentByte(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func isIdent(s string) bool {
	if s == "" || !isIdentStart(s[0]) {
		return false
	}
	for i := 1; i < len(s); i++ {
		if !isIdentByte(s[i]) {
			return false
		}
	}
	return true
}
