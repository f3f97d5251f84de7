package sifter

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/sifter/internal/descriptor"
	"github.com/jward/sifter/internal/metrics"
	"github.com/jward/sifter/internal/model"
)

// A compact grammar: "fn name{body}" functions and "x := f(y)" statements.
const toyGrammar = `
[info]
name = "toy"
file_extensions = ["toy"]
builtins = ["print"]

[snippets]
ident = '[A-Za-z_][A-Za-z0-9_]*'

[format_strings.fn]
regex = 'fn ({{ident}})\{([^}]*)\}'
dependencies = ["ident"]

[format_strings.stmt]
regex = '(?:({{ident}}) := )?((?:{{ident}}\.)?{{ident}}\([^()]*\))'
dependencies = ["ident"]

[format_strings.call]
regex = '(?:({{ident}})\.)?({{ident}})\(([^()]*)\)'
dependencies = ["ident"]

[selectors.fn]
model_element = "function"
top_level_selector = true
  [[selectors.fn.variations]]
  regex_format_string = "fn"
  fields = { name = 1, body = 2 }
  [selectors.fn.subselectors.statements]
  field = "body"
  selector = "stmt"

[selectors.stmt]
model_element = "statement"
  [[selectors.stmt.variations]]
  regex_format_string = "stmt"
  fields = { lhs = 1, rhs = 2 }
  [selectors.stmt.subselectors.call]
  field = "rhs"
  selector = "call"

[selectors.call]
model_element = "reference"
  [[selectors.call.variations]]
  regex_format_string = "call"
  fields = { target = 1, ref = 2, parameters = 3 }

[json_mappings]
fn = "functions"
`

// badGrammar builds no Descriptor: its selector has no variations.
const badGrammar = `
[info]
name = "bad"
file_extensions = ["bad"]
[snippets]
word = '\w+'
[selectors.s]
model_element = "string"
`

func writeFile(t *testing.T, dir, rel, content string) string {
	t.Helper()
	path := filepath.Join(dir, rel)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

// newTestEngine creates an Engine over root with the toy grammar in
// root/.langs and models under root/.model.
func newTestEngine(t *testing.T, root string, opts ...Option) *Engine {
	t.Helper()
	langs := filepath.Join(root, ".langs")
	if _, err := os.Stat(filepath.Join(langs, "toy.toml")); os.IsNotExist(err) {
		writeFile(t, langs, "toy.toml", toyGrammar)
	}
	base := []Option{WithLangsDir(langs), WithSourceRoots(root), WithJobs(2)}
	e, err := New(filepath.Join(root, ".model"), append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close() })
	return e
}

func catalogPath(root string) string {
	return filepath.Join(root, ".model", "catalog.db")
}

// =============================================================================
// Construction
// =============================================================================

func TestNew_RegistersBuiltInAndLangsDir(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, t.TempDir())

	assert.Equal(t, []string{"python3", "toy"}, e.Languages())
	g, ok := e.Grammar("toy")
	require.True(t, ok)
	assert.Equal(t, []string{"toy"}, g.Info.FileExtensions)
	assert.Nil(t, e.Store())
}

func TestNew_BadExcludePattern(t *testing.T) {
	t.Parallel()
	_, err := New(t.TempDir(), WithExcludes("[unclosed"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exclude")
}

func TestNew_LazyDefersGrammarErrors(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	langs := filepath.Join(root, ".langs")
	writeFile(t, langs, "bad.toml", badGrammar)

	_, err := New(filepath.Join(root, ".model"), WithLangsDir(langs))
	require.Error(t, err)
	assert.ErrorIs(t, err, descriptor.ErrConfig)

	e := newTestEngine(t, root, WithLazy(true))
	_, err = e.Descriptor("bad")
	assert.ErrorIs(t, err, descriptor.ErrConfig)
	d, err := e.Descriptor("toy")
	require.NoError(t, err)
	assert.Equal(t, "toy", d.Language())

	filtered := newTestEngine(t, root, WithLanguages("toy"))
	_, err = filtered.Descriptor("toy")
	assert.NoError(t, err)
}

func TestDescriptor_UnknownLanguage(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, t.TempDir())
	_, err := e.Descriptor("cobol")
	assert.ErrorIs(t, err, ErrUnknownLanguage)
}

func TestLint(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, ".langs"), "lint.toml", `
[info]
name = "lint"
file_extensions = ["lint"]
[format_strings.f]
regex = 'a{{missing}}b'
`)
	e := newTestEngine(t, root)

	issues, err := e.Lint()
	require.NoError(t, err)
	assert.Empty(t, issues["python3"])
	assert.Empty(t, issues["toy"])
	require.Len(t, issues["lint"], 1)
	assert.Equal(t, []string{"missing"}, issues["lint"][0].Placeholders)
}

// =============================================================================
// Translation
// =============================================================================

func TestTranslateFiles_WritesModelsAndCaches(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	a := writeFile(t, root, "a.toy", "fn f{print(x)}\n")
	b := writeFile(t, root, "pkg/b.toy", "fn g{v := f(y)}\n")
	e := newTestEngine(t, root)
	ctx := context.Background()

	report, err := e.TranslateFiles(ctx, []string{b, a})
	require.NoError(t, err)
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, 2, report.Parsed)
	require.Len(t, report.Files, 2)
	assert.Equal(t, a, report.Files[0].Path, "files are reported in path order")
	assert.Equal(t, "toy.a", report.Files[0].ModelID)
	assert.Equal(t, "toy.pkg.b", report.Files[1].ModelID)
	assert.Equal(t, filepath.Join(root, ".model", "toy", "pkg", "b.json"), report.Files[1].OutputPath)
	before, err := os.ReadFile(report.Files[1].OutputPath)
	require.NoError(t, err)

	again, err := e.TranslateFiles(ctx, []string{a, b})
	require.NoError(t, err)
	assert.Equal(t, 0, again.Parsed)
	assert.Equal(t, 2, again.Cached)
	after, err := os.ReadFile(report.Files[1].OutputPath)
	require.NoError(t, err)
	assert.Equal(t, before, after)

	forced := newTestEngine(t, root, WithForce(true))
	third, err := forced.TranslateFiles(ctx, []string{a, b})
	require.NoError(t, err)
	assert.Equal(t, 2, third.Parsed)
}

func TestTranslateFiles_SkipsUnsupportedExcludedAndUndecodable(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	keep := writeFile(t, root, "keep.toy", "fn f{print(x)}\n")
	readme := writeFile(t, root, "README.txt", "hello")
	gen := writeFile(t, root, "gen/out.toy", "fn g{print(x)}\n")
	binary := filepath.Join(root, "bin.toy")
	require.NoError(t, os.WriteFile(binary, []byte{0xff, 0xfe, 0x00}, 0o644))
	e := newTestEngine(t, root, WithExcludes("**/gen/**"))

	report, err := e.TranslateFiles(context.Background(), []string{keep, readme, gen, binary})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Parsed)
	assert.Equal(t, 3, report.Skipped)
	assert.Equal(t, 0, report.Failed)

	byPath := make(map[string]FileResult)
	for _, fr := range report.Files {
		byPath[fr.Path] = fr
	}
	assert.Equal(t, "excluded", byPath[gen].Error)
	assert.Equal(t, StatusSkipped, byPath[readme].Status)
	assert.Contains(t, byPath[binary].Error, "UTF-8")
}

func TestTranslateFiles_FailureDoesNotStopOthers(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	ok := writeFile(t, root, "ok.toy", "fn f{print(x)}\n")
	missing := filepath.Join(root, "missing.toy")
	e := newTestEngine(t, root)

	report, err := e.TranslateFiles(context.Background(), []string{missing, ok})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "1 error(s)")
	require.NotNil(t, report)
	assert.Equal(t, 1, report.Parsed)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, StatusFailed, report.Files[0].Status)
	assert.NotEmpty(t, report.Files[0].Error)
}

func TestTranslateFiles_ReportsUnresolved(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	path := writeFile(t, root, "u.toy", "fn f{ghost(x)}\n")
	e := newTestEngine(t, root)

	report, err := e.TranslateFiles(context.Background(), []string{path})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Unresolved)
	assert.Equal(t, []Unresolved{{Ref: "ghost", Scope: "toy.u.f"}}, report.Files[0].Unresolved)
}

func TestTranslateFiles_RecordsCatalog(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	a := writeFile(t, root, "a.toy", "fn f{print(x)}\n")
	b := writeFile(t, root, "b.toy", "fn g{f(y)}\n")
	e := newTestEngine(t, root, WithCatalog(catalogPath(root)))
	ctx := context.Background()

	report, err := e.TranslateFiles(ctx, []string{a, b})
	require.NoError(t, err)

	recs, err := e.Store().Models("toy")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "toy.a", recs[0].ModelID)
	assert.Equal(t, a, recs[0].SourcePath)
	assert.Equal(t, filepath.Join(root, ".model", "toy", "a.json"), recs[0].ModelPath)
	require.NotNil(t, recs[0].RunID)
	assert.Equal(t, report.RunID, *recs[0].RunID)
	assert.NotEmpty(t, recs[0].Hash)

	run, err := e.Store().RunByID(report.RunID)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.NotNil(t, run.Finished)
	assert.Equal(t, 2, run.Parsed)

	second, err := e.TranslateFiles(ctx, []string{a, b})
	require.NoError(t, err)
	assert.Equal(t, 2, second.Cached)
	recs, err = e.Store().Models("toy")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, report.RunID, *recs[0].RunID, "cached models keep the run that wrote them")

	fromCatalog, err := e.Models("toy")
	require.NoError(t, err)
	assert.Len(t, fromCatalog, 2)
}

func TestTranslateFiles_GrammarChangeForcesReextraction(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	path := writeFile(t, root, "a.toy", "fn f{print(x)}\n")
	ctx := context.Background()
	translate := func() *TranslateReport {
		t.Helper()
		e := newTestEngine(t, root, WithCatalog(catalogPath(root)))
		report, err := e.TranslateFiles(ctx, []string{path})
		require.NoError(t, err)
		require.NoError(t, e.Close())
		return report
	}

	assert.Equal(t, 1, translate().Parsed)
	assert.Equal(t, 1, translate().Cached)

	writeFile(t, filepath.Join(root, ".langs"), "toy.toml", toyGrammar+"\n# revised\n")
	assert.Equal(t, 1, translate().Parsed, "grammar change re-extracts")
	assert.Equal(t, 1, translate().Cached)
}

func TestTranslateFiles_RecordsMetrics(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	a := writeFile(t, root, "a.toy", "fn f{print(x)}\n")
	b := writeFile(t, root, "b.toy", "fn g{ghost(x)}\n")
	rec := metrics.New()
	e := newTestEngine(t, root, WithMetrics(rec))

	_, err := e.TranslateFiles(context.Background(), []string{a, b})
	require.NoError(t, err)

	expected := `
# HELP sifter_files_total Source files seen by translation, by language and outcome.
# TYPE sifter_files_total counter
sifter_files_total{language="toy",outcome="parsed"} 2
# HELP sifter_unresolved_references_total References left unresolved after scope resolution.
# TYPE sifter_unresolved_references_total counter
sifter_unresolved_references_total{language="toy"} 1
# HELP sifter_runs_total Translation runs.
# TYPE sifter_runs_total counter
sifter_runs_total 1
`
	assert.NoError(t, testutil.GatherAndCompare(rec.Registry(), strings.NewReader(expected),
		"sifter_files_total", "sifter_unresolved_references_total", "sifter_runs_total"))
}

func TestTranslateFiles_Cancelled(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	path := writeFile(t, root, "a.toy", "fn f{print(x)}\n")
	e := newTestEngine(t, root)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.TranslateFiles(ctx, []string{path})
	assert.ErrorIs(t, err, context.Canceled)
}

// =============================================================================
// Discovery
// =============================================================================

func TestListFiles_HonoursIgnoresAndExcludes(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeFile(t, root, ".gitignore", "build/\n*.tmp.toy\n")
	keep := writeFile(t, root, "a.toy", "")
	nested := writeFile(t, root, "sub/b.toy", "")
	py := writeFile(t, root, "sub/c.py", "")
	writeFile(t, root, "build/d.toy", "")
	writeFile(t, root, "scratch.tmp.toy", "")
	writeFile(t, root, ".hidden/e.toy", "")
	writeFile(t, root, "node_modules/f.toy", "")
	writeFile(t, root, "sub/gen_g.toy", "")
	writeFile(t, root, "notes.txt", "")
	e := newTestEngine(t, root, WithExcludes("gen_*"))

	files, err := e.ListFiles(root)
	require.NoError(t, err)
	assert.Equal(t, []string{keep, nested, py}, files)

	toyOnly := newTestEngine(t, root, WithLanguages("toy"))
	files, err = toyOnly.ListFiles(root)
	require.NoError(t, err)
	assert.NotContains(t, files, py)
}

func TestTranslateDirectory(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	writeFile(t, root, "a.toy", "fn f{print(x)}\n")
	writeFile(t, root, "lib/b.toy", "fn g{print(y)}\n")
	e := newTestEngine(t, root)

	report, err := e.TranslateDirectory(context.Background(), root)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Parsed)

	recs, err := e.Models("toy")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "toy.a", recs[0].ModelID)
	assert.Equal(t, "toy.lib.b", recs[1].ModelID)
	assert.Equal(t, "lib/b.toy", recs[1].SourcePath)

	m, err := model.ReadFile(recs[1].ModelPath)
	require.NoError(t, err)
	assert.Equal(t, "toy", m.SourceLanguage)
}

func TestModelsByID(t *testing.T) {
	t.Parallel()
	for _, withCatalog := range []bool{false, true} {
		root := t.TempDir()
		writeFile(t, root, "a.toy", "fn f{print(x)}\n")
		writeFile(t, root, "lib/b.toy", "fn g{print(y)}\n")
		var opts []Option
		if withCatalog {
			opts = append(opts, WithCatalog(catalogPath(root)))
		}
		e := newTestEngine(t, root, opts...)
		_, err := e.TranslateDirectory(context.Background(), root)
		require.NoError(t, err)

		recs, err := e.ModelsByID([]string{"toy.lib.b", "toy.missing", "toy.a"})
		require.NoError(t, err)
		require.Len(t, recs, 2, "catalog=%v", withCatalog)
		assert.Equal(t, "toy.a", recs[0].ModelID)
		assert.Equal(t, "toy.lib.b", recs[1].ModelID)

		recs, err = e.ModelsByID(nil)
		require.NoError(t, err)
		assert.Empty(t, recs)
	}
}

func TestModels_EmptyOutputDir(t *testing.T) {
	t.Parallel()
	e := newTestEngine(t, t.TempDir())
	recs, err := e.Models("")
	require.NoError(t, err)
	assert.Empty(t, recs)
}
