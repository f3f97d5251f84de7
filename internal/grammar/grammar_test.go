package grammar

import (
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tomlGrammar = `
[info]
name = "toy"
file_extensions = ["toy", ".TY"]
global_sources = ["/opt/toy/lib"]
builtins = ["print"]
sinks = ["toy.builtins.exec"]

[snippets]
ident = '[a-z]+'

[format_strings.fn]
regex = 'fn ({{ident}})'
dependencies = ["ident"]

[[directives]]
name = "strip"
  [[directives.variations]]
  regex_format_string = "fn"
  replacement = ""

[selectors.function]
model_element = "function"
top_level_selector = true
  [[selectors.function.variations]]
  regex_format_string = "fn"
  fields = { name = 1 }
  [selectors.function.subselectors.statements]
  field = "body"
  selector = "function"
  dedent = true

[json_mappings]
function = "functions"
`

const yamlGrammar = `
info:
  name: toy
  file_extensions: [toy]
snippets:
  ident: '[a-z]+'
format_strings:
  fn:
    regex: 'fn ({{ident}})'
    dependencies: [ident]
selectors:
  function:
    model_element: function
    top_level_selector: true
    variations:
      - regex_format_string: fn
        fields: {name: 1}
`

func writeGrammar(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

// =============================================================================
// Parse / Load
// =============================================================================

func TestParse_TOML(t *testing.T) {
	t.Parallel()
	g, err := Parse([]byte(tomlGrammar), ".toml")
	require.NoError(t, err)

	assert.Equal(t, "toy", g.Name())
	assert.Equal(t, []string{".toy", ".ty"}, g.Extensions())
	assert.Equal(t, []string{"print"}, g.Info.Builtins)
	assert.Equal(t, "[a-z]+", g.Snippets["ident"])
	assert.Equal(t, []string{"ident"}, g.FormatStrings["fn"].Dependencies)
	require.Len(t, g.Directives, 1)
	assert.Equal(t, "strip", g.Directives[0].Name)

	sel := g.Selectors["function"]
	assert.True(t, sel.TopLevel)
	assert.Equal(t, map[string]int{"name": 1}, sel.Variations[0].Fields)
	assert.Equal(t, Subselector{Field: "body", Selector: "function", Dedent: true}, sel.Subselectors["statements"])
	assert.Equal(t, "functions", g.JSONMappings["function"])
	assert.Len(t, g.Hash(), 64)
	assert.Nil(t, g.FS())
}

func TestParse_YAMLMatchesTOML(t *testing.T) {
	t.Parallel()
	g, err := Parse([]byte(yamlGrammar), ".yml")
	require.NoError(t, err)

	assert.Equal(t, "toy", g.Name())
	assert.Equal(t, "fn ({{ident}})", g.FormatStrings["fn"].Regex)
	assert.Equal(t, "function", g.Selectors["function"].ModelElement)
	assert.Equal(t, 1, g.Selectors["function"].Variations[0].Fields["name"])
}

func TestParse_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name   string
		data   string
		format string
	}{
		{"unknown toml field", "[info]\nname = \"toy\"\ncolour = \"red\"\n", ".toml"},
		{"unknown yaml field", "info:\n  name: toy\nextra: 1\n", ".yaml"},
		{"missing name", "[info]\nfile_extensions = [\"toy\"]\n", ".toml"},
		{"malformed toml", "[info\n", ".toml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse([]byte(tt.data), tt.format)
			assert.Error(t, err)
		})
	}

	_, err := Parse([]byte("{}"), ".json")
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestParse_HashFollowsBytes(t *testing.T) {
	t.Parallel()
	a, err := Parse([]byte(tomlGrammar), ".toml")
	require.NoError(t, err)
	b, err := Parse([]byte(tomlGrammar+"\n# changed\n"), ".toml")
	require.NoError(t, err)
	assert.NotEqual(t, a.Hash(), b.Hash())
}

func TestLoad_SetsPath(t *testing.T) {
	t.Parallel()
	path := writeGrammar(t, t.TempDir(), "toy.toml", tomlGrammar)

	g, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, path, g.Path)

	_, err = Load(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestNormalizeExt(t *testing.T) {
	t.Parallel()
	assert.Equal(t, ".py", NormalizeExt("py"))
	assert.Equal(t, ".py", NormalizeExt(" .PY "))
	assert.Equal(t, "", NormalizeExt(""))
	assert.True(t, IsDescriptor("a/b.YAML"))
	assert.False(t, IsDescriptor("a/b.py"))
}

// =============================================================================
// Registry
// =============================================================================

func TestRegistry_LoadFSAndDirOverride(t *testing.T) {
	t.Parallel()
	fsys := fstest.MapFS{
		"toy.toml":   {Data: []byte(tomlGrammar)},
		"README.md":  {Data: []byte("not a grammar")},
		"other.yaml": {Data: []byte("info:\n  name: other\n  file_extensions: [toy, oth]\n")},
		"sub/x.toml": {Data: []byte("[info]\nname = \"nested\"\n")},
	}
	r := NewRegistry()
	require.NoError(t, r.LoadFS(fsys))
	assert.Equal(t, []string{"other", "toy"}, r.Languages())

	g, ok := r.Get("toy")
	require.True(t, ok)
	assert.Equal(t, "toy.toml", g.Path)
	assert.NotNil(t, g.FS(), "embedded grammars remember their fs")

	dir := t.TempDir()
	writeGrammar(t, dir, "toy.yaml", yamlGrammar)
	require.NoError(t, r.LoadDir(dir))

	g, ok = r.Get("toy")
	require.True(t, ok)
	assert.Equal(t, filepath.Join(dir, "toy.yaml"), g.Path, "disk overrides embedded")
	assert.Nil(t, g.FS())
	assert.Empty(t, r.SourceDirs("toy"), "override replaces the whole grammar")
}

func TestRegistry_LoadDirMissingIsFine(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	require.NoError(t, r.LoadDir(filepath.Join(t.TempDir(), "nope")))
	assert.Empty(t, r.Languages())
}

func TestRegistry_LoadDirBadGrammar(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeGrammar(t, dir, "bad.toml", "[info\n")
	assert.Error(t, NewRegistry().LoadDir(dir))
}

func TestRegistry_Extensions(t *testing.T) {
	t.Parallel()
	r := NewRegistry()
	require.NoError(t, r.LoadFS(fstest.MapFS{
		"toy.toml":   {Data: []byte(tomlGrammar)},
		"other.yaml": {Data: []byte("info:\n  name: other\n  file_extensions: [toy, oth]\n")},
	}))

	assert.Equal(t, []string{"other", "toy"}, r.LanguagesForExtension("TOY"))
	lang, ok := r.LanguageForFile("/src/main.toy")
	require.True(t, ok)
	assert.Equal(t, "other", lang, "first language in sorted order wins")

	lang, ok = r.LanguageForFile("/src/main.ty")
	require.True(t, ok)
	assert.Equal(t, "toy", lang)

	_, ok = r.LanguageForFile("/src/main.rs")
	assert.False(t, ok)

	assert.Equal(t, map[string][]string{
		".toy": {"other", "toy"},
		".ty":  {"toy"},
		".oth": {"other"},
	}, r.Extensions())
	assert.Equal(t, []string{"/opt/toy/lib"}, r.SourceDirs("toy"))
	assert.Nil(t, r.SourceDirs("missing"))
}
