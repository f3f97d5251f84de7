package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/sifter"
)

// =============================================================================
// Helpers
// =============================================================================

func TestValidateFormat(t *testing.T) {
	t.Parallel()
	assert.NoError(t, validateFormat("json"))
	assert.NoError(t, validateFormat("text"))
	assert.ErrorContains(t, validateFormat("xml"), "json or text")
}

func TestSplitList(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"python3", "toy"}, splitList(" python3, ,toy "))
	assert.Nil(t, splitList(""))
}

func TestResolvePaths(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	got, err := resolvePaths([]string{dir})
	require.NoError(t, err)
	assert.Equal(t, []string{dir}, got)

	_, err = resolvePaths([]string{filepath.Join(dir, "missing")})
	assert.ErrorContains(t, err, "path not found")
}

func TestNewLogger(t *testing.T) {
	t.Parallel()
	l, err := newLogger("debug")
	require.NoError(t, err)
	assert.Equal(t, "debug", l.GetLevel().String())

	_, err = newLogger("loud")
	assert.Error(t, err)
}

// =============================================================================
// Formatting
// =============================================================================

func TestToCLIFindings_SortedAndNeverNull(t *testing.T) {
	t.Parallel()
	got := toCLIFindings(map[string][]*sifter.Node{
		"b": {{ID: "main"}},
		"a": nil,
	})
	require.Len(t, got, 2)
	assert.Equal(t, "a", got[0].Danger)
	assert.NotNil(t, got[0].Chains)
	assert.Equal(t, "b", got[1].Danger)
}

func TestToCLIReport(t *testing.T) {
	t.Parallel()
	got := toCLIReport(&sifter.TranslateReport{
		RunID:  "r1",
		Parsed: 1,
		Files: []sifter.FileResult{{
			Path:       "/src/a.py",
			Language:   "python3",
			ModelID:    "python3.a",
			Status:     sifter.StatusParsed,
			Unresolved: []sifter.Unresolved{{Ref: "Base", Scope: "<module>"}},
		}},
	})
	assert.Equal(t, "r1", got.RunID)
	require.Len(t, got.Files, 1)
	assert.Equal(t, "parsed", got.Files[0].Status)
	assert.Equal(t, []string{"Base"}, got.Files[0].Unresolved)
}

func TestWriteResultText_Tree(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	forest := []*sifter.Node{{ID: "main", Children: []*sifter.Node{{ID: "run", Children: []*sifter.Node{{ID: "system"}}}}}}
	require.NoError(t, writeResult(&buf, "text", CLIResult{Command: "navigate", Results: forest}))
	assert.Equal(t, "main\n  run\n    system\n", buf.String())
}

func TestWriteResultText_Findings(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	findings := []CLIFinding{
		{Danger: "getenv", Chains: []*sifter.Node{}},
		{Danger: "input", Chains: []*sifter.Node{{ID: "main", Children: []*sifter.Node{{ID: "eval"}}}}},
	}
	require.NoError(t, writeResult(&buf, "text", CLIResult{Command: "hunt", Results: findings}))
	assert.Equal(t, "getenv: no chains\ninput:\n  main\n    eval\n", buf.String())
}

func TestWriteResultText_Unsupported(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	assert.Error(t, writeResult(&buf, "text", CLIResult{Results: 42}))
}

func TestWriteResultJSON_Envelope(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	require.NoError(t, writeResult(&buf, "json", CLIResult{Command: "models", Results: []CLIModel{{ModelID: "python3.a"}}}))

	var got map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &got))
	assert.Equal(t, "models", got["command"])
	assert.NotContains(t, got, "error")
}

// =============================================================================
// End to end
// =============================================================================

// runCLI executes the root command with args and returns what it printed.
// It swaps package globals, so callers must not run in parallel.
func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	saved := stdout
	stdout = &buf
	t.Cleanup(func() { stdout = saved })
	errorHandled = false
	flagFormat, flagOutputDir, flagConfig = "json", "", ""
	flagDepth, flagHuntLanguage = 5, ""
	flagForce, flagWatch, flagLazy = false, false, false
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func TestCLI_TranslateThenHunt(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("LOCAL_DIR", "")
	t.Setenv("SOURCE_PATHS", "")
	work := t.TempDir()
	t.Chdir(work)
	src := `import os

def main():
    cmd = input()
    os.system(cmd)
`
	require.NoError(t, os.WriteFile(filepath.Join(work, "app.py"), []byte(src), 0o644))
	out := filepath.Join(work, ".model")

	printed, err := runCLI(t, "translate", "--output-dir", out, work)
	require.NoError(t, err)
	var translated struct {
		Results CLIReport `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(printed), &translated))
	assert.Equal(t, 1, translated.Results.Parsed)
	require.Len(t, translated.Results.Files, 1)
	assert.Equal(t, "python3.app", translated.Results.Files[0].ModelID)

	printed, err = runCLI(t, "hunt", "--output-dir", out, "--language", "python3", filepath.Join(out, "python3", "app.json"))
	require.NoError(t, err)
	var hunted struct {
		Results []CLIFinding `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(printed), &hunted))
	var input *CLIFinding
	for i := range hunted.Results {
		if hunted.Results[i].Danger == "python3.builtins.input" {
			input = &hunted.Results[i]
		}
	}
	require.NotNil(t, input)
	require.Len(t, input.Chains, 1)
	assert.Equal(t, "python3.app.main", input.Chains[0].ID)
	require.Len(t, input.Chains[0].Children, 1)
	assert.Equal(t, "python3.os.system", input.Chains[0].Children[0].ID)

	printed, err = runCLI(t, "models", "--output-dir", out)
	require.NoError(t, err)
	assert.Contains(t, printed, `"model_id": "python3.app"`)

	printed, err = runCLI(t, "models", "--output-dir", out, "python3.nope")
	require.NoError(t, err)
	var listed struct {
		Results []CLIModel `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(printed), &listed))
	assert.Empty(t, listed.Results)

	printed, err = runCLI(t, "models", "--output-dir", out, "python3.app")
	require.NoError(t, err)
	require.NoError(t, json.Unmarshal([]byte(printed), &listed))
	require.Len(t, listed.Results, 1)
	assert.Equal(t, "python3.app", listed.Results[0].ModelID)
}

func TestCLI_NavigateErrorEnvelope(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Chdir(t.TempDir())

	printed, err := runCLI(t, "navigate", "--depth=-1", "x", ".")
	require.Error(t, err)
	assert.True(t, errors.Is(err, sifter.ErrNegativeDepth))
	assert.True(t, errorHandled)
	assert.Contains(t, printed, `"command": "navigate"`)
	assert.Contains(t, printed, `"error"`)
}
