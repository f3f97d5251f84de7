package runtime

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Replacement scripts ---

func TestReplace_UsesMatch(t *testing.T) {
	t.Parallel()
	rt := NewRuntime("")

	got, err := rt.Replace(context.Background(), `"<" + match + ">"`, Match{Text: "abc"})
	require.NoError(t, err)
	assert.Equal(t, "<abc>", got)
}

func TestReplace_UsesGroups(t *testing.T) {
	t.Parallel()
	rt := NewRuntime("")

	got, err := rt.Replace(context.Background(), `groups[2] + "=" + groups[1]`, Match{
		Text:   "a:b",
		Groups: []string{"a:b", "a", "b"},
	})
	require.NoError(t, err)
	assert.Equal(t, "b=a", got)
}

func TestReplace_LanguageAndDirectiveGlobals(t *testing.T) {
	t.Parallel()
	rt := NewRuntime("")

	got, err := rt.Replace(context.Background(), `language + "/" + directive`, Match{Language: "python3", Directive: "tabs"})
	require.NoError(t, err)
	assert.Equal(t, "python3/tabs", got)
}

func TestReplace_HostFunctions(t *testing.T) {
	t.Parallel()
	rt := NewRuntime("")

	got, err := rt.Replace(context.Background(), `dedent(match)`, Match{Text: "    a\n      b"})
	require.NoError(t, err)
	assert.Equal(t, "a\n  b", got)

	got, err = rt.Replace(context.Background(), `string(len(split_args(match)))`, Match{Text: "f(a, b), c"})
	require.NoError(t, err)
	assert.Equal(t, "2", got)
}

func TestReplace_NonStringResult(t *testing.T) {
	t.Parallel()
	rt := NewRuntime("")

	_, err := rt.Replace(context.Background(), `42`, Match{Directive: "numbers"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "want string")
}

func TestReplace_ScriptError(t *testing.T) {
	t.Parallel()
	rt := NewRuntime("")

	_, err := rt.Replace(context.Background(), `no_such_name + 1`, Match{Directive: "broken"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestReplace_LogGoesToLogger(t *testing.T) {
	t.Parallel()
	logger, hook := test.NewNullLogger()
	rt := NewRuntime("", WithLogger(logger))

	_, err := rt.Replace(context.Background(), "log.Warn('saw ' + match)\nmatch", Match{Text: "x"})
	require.NoError(t, err)
	entry := hook.LastEntry()
	require.NotNil(t, entry)
	assert.Equal(t, logrus.WarnLevel, entry.Level)
	assert.Equal(t, "saw x", entry.Message)
	assert.Equal(t, "script", entry.Data["source"])
}

// --- Script loading ---

func TestLoadScript_FromFS(t *testing.T) {
	t.Parallel()
	content := `match`
	rt := NewRuntime("", WithRuntimeFS(fstest.MapFS{
		"directives/keep.risor": &fstest.MapFile{Data: []byte(content)},
	}))

	got, err := rt.LoadScript("/directives/keep.risor")
	require.NoError(t, err)
	assert.Equal(t, content, got)

	_, err = rt.LoadScript("missing.risor")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "from fs")
}

func TestLoadScript_AbsolutePath(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "x.risor")
	require.NoError(t, os.WriteFile(path, []byte(`x := 42`), 0o644))

	rt := NewRuntime("/unrelated")
	got, err := rt.LoadScript(path)
	require.NoError(t, err)
	assert.Equal(t, `x := 42`, got)
}

func TestImport_FSImporter(t *testing.T) {
	mapFS := fstest.MapFS{
		"helpers.risor": &fstest.MapFile{Data: []byte(`
func wrap(s) {
	return "(" + s + ")"
}
`)},
	}
	rt := NewRuntime("", WithRuntimeFS(mapFS))

	got, err := rt.Replace(context.Background(), "import helpers\nhelpers.wrap(match)", Match{Text: "v"})
	require.NoError(t, err)
	assert.Equal(t, "(v)", got)
}

func TestImport_LocalImporter(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "strip.risor"), []byte(`
func first(xs) {
	return xs[0]
}
`), 0o644))
	rt := NewRuntime(dir)

	got, err := rt.Replace(context.Background(), "import strip\nstrip.first(groups)", Match{Groups: []string{"g0", "g1"}})
	require.NoError(t, err)
	assert.Equal(t, "g0", got)
}
