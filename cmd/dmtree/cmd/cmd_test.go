package cmd

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/lithammer/dedent"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corey/dmtree/internal/boundary"
	"github.com/corey/dmtree/internal/domain/objtree"
)

func init() {
	color.NoColor = true
}

const cliSource = `
	/obj
		var/name = "object"
		var/static/const/obj/item/held = null
		proc/describe(mob/user, verbose = 0)
			return name

	/obj/item
		name = "item"
		describe()
			return "item"

	/mob
		verb/say(msg as text)
`

func writeSource(t *testing.T, src string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "game.dme")
	require.NoError(t, os.WriteFile(path, []byte(dedent.Dedent(src)), 0644))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(append(args, "--no-cache"))
	err := rootCmd.Execute()
	return out.String(), err
}

func TestFormatVar(t *testing.T) {
	decl := &objtree.VarDeclaration{Flags: objtree.VarStatic | objtree.VarConst, TypePath: []string{"obj", "item"}}
	assert.Equal(t, "var/static/const/obj/item/held = null", formatVar(objtree.TypeVar{
		Name:        "held",
		Value:       objtree.VarValue{Expression: "null"},
		Declaration: decl,
	}))
	assert.Equal(t, "weight = 2", formatVar(objtree.TypeVar{Name: "weight", Value: objtree.VarValue{Expression: "2"}}))
	assert.Equal(t, "var/slot", formatVar(objtree.TypeVar{Name: "slot", Declaration: &objtree.VarDeclaration{}}))
}

func TestFormatProc(t *testing.T) {
	p := &boundary.ProcView{
		Name:        "describe",
		Declaration: &objtree.ProcDeclaration{Kind: objtree.ProcKindProc, Protected: true},
		Values: []objtree.ProcValue{{Parameters: []objtree.Parameter{
			{Name: "user", TypePath: []string{"mob"}},
			{Name: "verbose", Default: "0"},
		}}},
	}
	assert.Equal(t, "proc/describe(mob/user, verbose = 0)  [protected]", formatProc(p))

	override := &boundary.ProcView{Name: "say", Values: []objtree.ProcValue{{}, {}}}
	assert.Equal(t, "say()  (2 definitions)", formatProc(override))
}

func TestHelpers(t *testing.T) {
	assert.Equal(t, "1 type", plural(1, "type"))
	assert.Equal(t, "0 types", plural(0, "type"))
	assert.Equal(t, "item", lastSegment("/obj/item"))
	assert.Equal(t, "", lastSegment("/"))
	assert.Equal(t, "  a\n\n  b", indent("a\n\nb\n", "  "))
}

func TestExitCode(t *testing.T) {
	assert.Equal(t, 0, ExitCode(nil))
	assert.Equal(t, 3, ExitCode(&diagnosticsError{errors: 2}))
	assert.Equal(t, 2, ExitCode(&boundary.Error{Kind: boundary.ErrKindInvalidPath, Op: "load"}))
	assert.Equal(t, 1, ExitCode(errors.New("boom")))
}

func TestTreeCommand(t *testing.T) {
	source := writeSource(t, cliSource)
	out, err := run(t, "tree", source)
	require.NoError(t, err)
	assert.Equal(t, dedent.Dedent(`
		/
		├── obj
		│   └── item
		└── mob
	`)[1:], out)
}

func TestVarsCommand(t *testing.T) {
	source := writeSource(t, cliSource)
	out, err := run(t, "vars", source, "/obj/item", "--inherited")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.GreaterOrEqual(t, len(lines), 5)
	assert.Equal(t, "/obj/item", lines[0])
	assert.Contains(t, lines[1], `name = "item"`)
	assert.Equal(t, "/obj", lines[2])
	assert.Contains(t, lines[3], `var/name = "object"`)
	assert.Contains(t, lines[4], "var/static/const/obj/item/held = null")
	assert.Contains(t, out, "game.dme:")
}

func TestProcsCommand(t *testing.T) {
	source := writeSource(t, cliSource)
	out, err := run(t, "procs", source, "/mob")
	require.NoError(t, err)
	assert.Contains(t, out, "verb/say(")
}

func TestCommand_UnknownType(t *testing.T) {
	source := writeSource(t, cliSource)
	_, err := run(t, "vars", source, "/turf")
	require.Error(t, err)
	assert.ErrorIs(t, err, boundary.ErrNotFound)
	assert.Equal(t, 1, ExitCode(err))
}

func TestDiagCommand(t *testing.T) {
	source := writeSource(t, `
		#include "missing.dm"
		/obj
	`)
	out, err := run(t, "diag", source)
	require.Error(t, err)
	assert.Equal(t, 3, ExitCode(err))
	assert.Contains(t, out, "error:")
	assert.Contains(t, out, "missing.dm")
	assert.Contains(t, out, "1 error")
}

func TestEncodeCommand(t *testing.T) {
	source := writeSource(t, cliSource)
	dest := filepath.Join(t.TempDir(), "obj.msgpack")
	_, err := run(t, "encode", source, "/obj", "-o", dest)
	require.NoError(t, err)

	tree, err := boundary.Load(source)
	require.NoError(t, err)
	defer boundary.Unload(tree, nil)
	n, err := tree.Find("/obj")
	require.NoError(t, err)
	defer n.Free()
	buf, err := n.EncodeVariables()
	require.NoError(t, err)
	defer buf.Free()
	want, err := buf.Bytes()
	require.NoError(t, err)

	got, err := os.ReadFile(dest)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestWriteBytes(t *testing.T) {
	var raw, dump bytes.Buffer
	require.NoError(t, writeBytes(&raw, []byte{0x81, 0xa1}, false))
	require.NoError(t, writeBytes(&dump, []byte{0x81, 0xa1}, true))
	assert.Equal(t, []byte{0x81, 0xa1}, raw.Bytes())
	assert.Contains(t, dump.String(), "81 a1")
}

func TestConfigInit(t *testing.T) {
	dir := t.TempDir()
	out, err := run(t, "config", dir, "--init")
	require.NoError(t, err)
	assert.Contains(t, out, "wrote")
	_, err = os.Stat(filepath.Join(dir, "dmtree.yaml"))
	require.NoError(t, err)

	configInit = false
	out, err = run(t, "config", dir)
	require.NoError(t, err)
	assert.Contains(t, out, "encoding: auto")
	assert.Contains(t, out, filepath.Join(dir, "dmtree.yaml"))
}
