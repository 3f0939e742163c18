package dm

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/corey/dmtree/internal/domain/objtree"
	"github.com/corey/dmtree/internal/ports"
)

func TestFoldConstant(t *testing.T) {
	one := objtree.Int(1)
	tests := []struct {
		expr string
		want objtree.Constant
	}{
		{"null", objtree.Null()},
		{"42", objtree.Int(42)},
		{"-7", objtree.Int(-7)},
		{"0x1F", objtree.Int(31)},
		{"0.5", objtree.Float(0.5)},
		{"1e3", objtree.Float(1000)},
		{"(3)", objtree.Int(3)},
		{`"plain"`, objtree.String("plain")},
		{`"say \"hi\"\n"`, objtree.String("say \"hi\"\n")},
		{`"\the sword"`, objtree.String(`\the sword`)},
		{`'icons/mob.dmi'`, objtree.Resource("icons/mob.dmi")},
		{"/obj/item", objtree.Path("/obj/item")},
		{"list()", objtree.List()},
		{`list("a" = 1, /obj)`, objtree.List(
			objtree.ListEntry{Key: objtree.String("a"), Value: &one},
			objtree.ListEntry{Key: objtree.Path("/obj")},
		)},
		{"list(a = 1)", objtree.List(objtree.ListEntry{Key: objtree.String("a"), Value: &one})},
	}
	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			got, ok := foldConstant(tt.expr)
			require.True(t, ok)
			assert.True(t, tt.want.Equal(got), "got %s", got)
		})
	}
}

func TestFoldConstant_NonLiterals(t *testing.T) {
	for _, expr := range []string{
		"",
		"rand(1, 5)",
		"1 + 2",
		`"hello [name]"`,
		"new /obj",
		"list(rand(1, 2))",
		"/obj/item.name",
		"SOME_IDENT",
	} {
		_, ok := foldConstant(expr)
		assert.False(t, ok, expr)
	}
}

func TestSplitLogical(t *testing.T) {
	src := "a // trailing\n" +
		"/* block\n comment */ b\n" +
		"c = \\\n  1\n" +
		"d = \"x // not a comment\"\n" +
		"/* outer /* nested */ still */ e\n" +
		"\n" +
		"f = list(1,\n  2)\n"

	lines, unterminated := splitLogical(src)
	assert.False(t, unterminated)

	var texts []string
	var nums []uint32
	for _, ln := range lines {
		texts = append(texts, ln.text)
		nums = append(nums, ln.line)
	}
	assert.Equal(t, []string{
		"a ",
		"  b",
		"c =   1",
		`d = "x // not a comment"`,
		"  e",
		"f = list(1,   2)",
	}, texts)
	assert.Equal(t, []uint32{1, 2, 4, 6, 7, 9}, nums)

	_, unterminated = splitLogical("a /* open")
	assert.True(t, unterminated)
}

func TestTopLevelHelpers(t *testing.T) {
	assert.Equal(t, []string{"a", ` "b,c"`, " f(1, 2)"}, splitTopLevel(`a, "b,c", f(1, 2)`, ','))
	assert.Equal(t, 2, assignIndex("x = y == z"))
	assert.Equal(t, -1, assignIndex("x == y"))
	assert.Equal(t, -1, assignIndex("f(a = 1)"))
	assert.Equal(t, -1, assignIndex("x += 1"))
	assert.Equal(t, 8, matchParen("f(a, (b)) + c", 1))

	w, rest := measureIndent("\t  x")
	assert.Equal(t, 6, w)
	assert.Equal(t, "x", rest)
}

func TestEvalCondition(t *testing.T) {
	p := newPreprocessor(objtree.NewContext(), ports.ReadOptions{Defines: map[string]string{"LEVEL": "3"}})
	tests := []struct {
		expr string
		want int64
	}{
		{"1", 1},
		{"0", 0},
		{"LEVEL > 2", 1},
		{"defined(LEVEL) && !defined(NOPE)", 1},
		{"defined LEVEL", 1},
		{"(LEVEL + 1) * 2 == 8", 1},
		{"UNKNOWN", 0},
		{"DM_VERSION >= 500 || 0", 1},
		{"10 % 4", 2},
		{"-1 < 0", 1},
	}
	for _, tt := range tests {
		got, err := p.evalCondition(tt.expr)
		require.NoError(t, err, tt.expr)
		assert.Equal(t, tt.want, got, tt.expr)
	}

	for _, bad := range []string{"", "1 +", "(1", "4 / 0", "1 $ 2"} {
		_, err := p.evalCondition(bad)
		assert.Error(t, err, bad)
	}
}

func TestFoldConstant_UnclosedLiterals(t *testing.T) {
	for _, expr := range []string{`"`, `"abc`, `"abc\"`, `'`, `'icons/a.dmi`, `{"`, `{"}`, `{"abc"`, `("`} {
		_, ok := foldConstant(expr)
		assert.False(t, ok, expr)
		assert.True(t, hasUnclosedLiteral(expr), expr)
	}
	assert.False(t, hasUnclosedLiteral(`list("a", 'b.dmi', {"c"})`))
}
