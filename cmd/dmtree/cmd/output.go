package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/corey/dmtree/internal/app"
	"github.com/corey/dmtree/internal/boundary"
	"github.com/corey/dmtree/internal/domain/objtree"
)

// Terminal styles. color disables itself when stdout is not a terminal.
var (
	colorError   = color.New(color.FgRed, color.Bold).SprintFunc()
	colorWarning = color.New(color.FgYellow, color.Bold).SprintFunc()
	colorNote    = color.New(color.FgCyan).SprintFunc()
	colorPath    = color.New(color.FgCyan).SprintFunc()
	colorDim     = color.New(color.FgHiBlack).SprintFunc()
	colorBold    = color.New(color.Bold).SprintFunc()
	colorOK      = color.New(color.FgGreen).SprintFunc()
)

// formatVar renders one var entry the way it would be written at its type:
//
//	var/static/obj/item/held = null
//	weight = 2
func formatVar(v objtree.TypeVar) string {
	var sb strings.Builder
	if d := v.Declaration; d != nil {
		sb.WriteString("var/")
		for _, f := range d.Flags.Names() {
			sb.WriteString(f + "/")
		}
		for _, seg := range d.TypePath {
			sb.WriteString(seg + "/")
		}
	}
	sb.WriteString(v.Name)
	if v.Value.IsSet() {
		sb.WriteString(" = " + v.Value.Expression)
	}
	return sb.String()
}

// formatProc renders a proc entry's signature from its last definition.
// Declarations carry their proc/ or verb/ prefix; overrides do not.
func formatProc(p *boundary.ProcView) string {
	var sb strings.Builder
	if d := p.Declaration; d != nil {
		sb.WriteString(d.Kind.String() + "/")
	}
	sb.WriteString(p.Name + "(")
	if n := len(p.Values); n > 0 {
		for i, param := range p.Values[n-1].Parameters {
			if i > 0 {
				sb.WriteString(", ")
			}
			for _, seg := range param.TypePath {
				sb.WriteString(seg + "/")
			}
			sb.WriteString(param.Name)
			if param.Default != "" {
				sb.WriteString(" = " + param.Default)
			}
		}
	}
	sb.WriteString(")")
	if n := len(p.Values); n > 1 {
		sb.WriteString(colorDim(fmt.Sprintf("  (%d definitions)", n)))
	}
	if d := p.Declaration; d != nil && (d.Private || d.Protected) {
		var mods []string
		if d.Private {
			mods = append(mods, "private")
		}
		if d.Protected {
			mods = append(mods, "protected")
		}
		sb.WriteString(colorDim("  [" + strings.Join(mods, ", ") + "]"))
	}
	return sb.String()
}

// formatDiagnostic renders "file:line:col: severity: message (component)".
func formatDiagnostic(d objtree.Diagnostic, where string) string {
	sev := d.Severity.String()
	switch d.Severity {
	case objtree.SeverityError:
		sev = colorError(sev)
	case objtree.SeverityWarning:
		sev = colorWarning(sev)
	default:
		sev = colorNote(sev)
	}
	return fmt.Sprintf("%s: %s: %s %s", colorBold(where), sev, d.Message, colorDim("("+d.Component+")"))
}

// formatSummary renders the one-line load summary.
func formatSummary(sum app.Summary) string {
	status := colorOK("ok")
	switch {
	case sum.Errors > 0:
		status = colorError(plural(sum.Errors, "error"))
	case sum.Warnings > 0:
		status = colorWarning(plural(sum.Warnings, "warning"))
	}
	return fmt.Sprintf("%s  %s │ %s │ %s │ %s",
		colorPath(sum.Path), plural(sum.Types, "type"), plural(sum.Files, "file"), status,
		sum.Elapsed.Round(100*time.Microsecond))
}

func plural(n int, word string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s", n, word)
	}
	return fmt.Sprintf("%d %ss", n, word)
}

// diagnosticsError reports that a tree loaded but carries errors.
type diagnosticsError struct{ errors int }

func (e *diagnosticsError) Error() string {
	return plural(e.errors, "error") + " in tree"
}

// indent prefixes every non-empty line of text.
func indent(text, prefix string) string {
	lines := strings.Split(strings.TrimRight(text, "\n"), "\n")
	for i, ln := range lines {
		if ln != "" {
			lines[i] = prefix + ln
		}
	}
	return strings.Join(lines, "\n")
}

// shownPath renders the root's empty path as "/".
func shownPath(path string) string {
	if path == "" {
		return "/"
	}
	return path
}
