package regexbuilder

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestBuilder(t *testing.T) *Builder {
	t.Helper()
	b := New()
	require.NoError(t, b.RegisterSnippet("identifier", `[A-Za-z_][A-Za-z0-9_]*`))
	require.NoError(t, b.RegisterSnippet("ws", `\s*`))
	require.NoError(t, b.RegisterFormatString("call", `({{identifier}}){{ws}}\((.*?)\)`, []string{"identifier", "ws"}))
	require.NoError(t, b.RegisterFormatString("assign", `^{{ ws }}({{identifier}}){{ws}}={{ws}}{{call}}`, []string{"call"}))
	return b
}

// =============================================================================
// Registration
// =============================================================================

func TestRegister_DuplicateAcrossNamespaces(t *testing.T) {
	t.Parallel()
	b := New()
	require.NoError(t, b.RegisterSnippet("x", "a"))

	err := b.RegisterFormatString("x", "{{x}}", nil)
	assert.ErrorIs(t, err, ErrDuplicateName)

	err = b.RegisterSnippet("x", "b")
	assert.ErrorIs(t, err, ErrDuplicateName)

	require.NoError(t, b.RegisterFormatString("y", "b", nil))
	err = b.RegisterSnippet("y", "c")
	assert.ErrorIs(t, err, ErrDuplicateName)
}

func TestFormatStrings_Sorted(t *testing.T) {
	t.Parallel()
	b := newTestBuilder(t)
	assert.Equal(t, []string{"assign", "call"}, b.FormatStrings())
	assert.True(t, b.Has("ws"))
	assert.False(t, b.Has("nope"))
}

// =============================================================================
// Build
// =============================================================================

func TestBuild_SnippetVerbatim(t *testing.T) {
	t.Parallel()
	b := newTestBuilder(t)
	got, err := b.Build("ws")
	require.NoError(t, err)
	assert.Equal(t, `\s*`, got)
}

func TestBuild_SingleCharacterPlaceholder(t *testing.T) {
	t.Parallel()
	b := New()
	require.NoError(t, b.RegisterSnippet("x", "[0-9]+"))
	require.NoError(t, b.RegisterFormatString("id", "id={{x}}", []string{"x"}))

	got, err := b.Build("id")
	require.NoError(t, err)
	assert.Equal(t, "id=[0-9]+", got)
}

func TestBuild_Deterministic(t *testing.T) {
	t.Parallel()
	b := newTestBuilder(t)
	first, err := b.Build("assign")
	require.NoError(t, err)
	second, err := b.Build("assign")
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestBuild_NestedFormatStrings(t *testing.T) {
	t.Parallel()
	b := newTestBuilder(t)
	got, err := b.Build("assign")
	require.NoError(t, err)
	assert.Equal(t, `^\s*([A-Za-z_][A-Za-z0-9_]*)\s*=\s*([A-Za-z_][A-Za-z0-9_]*)\s*\((.*?)\)`, got)

	re := regexp.MustCompile(got)
	m := re.FindStringSubmatch("  a = tainted(x)")
	require.NotNil(t, m)
	assert.Equal(t, "a", m[1])
	assert.Equal(t, "tainted", m[2])
}

func TestBuild_BackslashesAndDollarsAreLiteral(t *testing.T) {
	t.Parallel()
	b := New()
	require.NoError(t, b.RegisterSnippet("money", `\$[0-9]+\.\d{2}`))
	require.NoError(t, b.RegisterFormatString("price", "cost: {{money}}", []string{"money"}))

	got, err := b.Build("price")
	require.NoError(t, err)
	assert.Equal(t, `cost: \$[0-9]+\.\d{2}`, got)
}

func TestBuild_UnresolvedPlaceholderKept(t *testing.T) {
	t.Parallel()
	b := New()
	require.NoError(t, b.RegisterSnippet("a", "A"))
	require.NoError(t, b.RegisterFormatString("f", "{{a}}-{{missing}}-{{ missing }}", nil))

	got, err := b.Build("f")
	require.NoError(t, err)
	assert.Equal(t, "A-{{missing}}-{{ missing }}", got)

	names, err := b.Unresolved("f")
	require.NoError(t, err)
	assert.Equal(t, []string{"missing"}, names)
}

func TestBuild_NotFound(t *testing.T) {
	t.Parallel()
	b := New()
	_, err := b.Build("ghost")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, b.RegisterFormatString("f", "{{g}}", []string{"ghost"}))
	_, err = b.Build("f")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBuild_Cycle(t *testing.T) {
	t.Parallel()
	b := New()
	require.NoError(t, b.RegisterFormatString("a", "{{b}}", []string{"b"}))
	require.NoError(t, b.RegisterFormatString("b", "{{a}}", []string{"a"}))

	_, err := b.Build("a")
	assert.ErrorIs(t, err, ErrCycle)
}
