package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// isolate points HOME at a temp dir and clears the variables Load reads, so
// the developer's own settings cannot leak into a test.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	for _, k := range []string{"LOCAL_DIR", "SOURCE_PATHS", "SIFTER_OUTPUT_DIR", "SIFTER_JOBS", "SIFTER_LOG_LEVEL", "SIFTER_CATALOG"} {
		t.Setenv(k, "")
	}
	return home
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

// =============================================================================
// Load
// =============================================================================

func TestLoad_Defaults(t *testing.T) {
	home := isolate(t)
	cwd, err := os.Getwd()
	require.NoError(t, err)

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(home, ".sifter"), cfg.DataDir)
	assert.Equal(t, filepath.Join(home, ".sifter", "langs"), cfg.LangsDir)
	assert.Equal(t, ".model", cfg.OutputDir)
	assert.Equal(t, filepath.Join(".model", "catalog.db"), cfg.Catalog)
	assert.Equal(t, []string{cwd}, cfg.SourcePaths)
	assert.Positive(t, cfg.Jobs)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoad_File(t *testing.T) {
	isolate(t)
	cwd, err := os.Getwd()
	require.NoError(t, err)
	path := writeConfig(t, `
output_dir = "/tmp/models"
source_paths = ["/src/a", "/src/b"]
jobs = 3
log_level = "debug"
excludes = ["**/test_*.py"]
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/models", cfg.OutputDir)
	assert.Equal(t, "/tmp/models/catalog.db", cfg.Catalog)
	assert.Equal(t, []string{"/src/a", "/src/b", cwd}, cfg.SourcePaths)
	assert.Equal(t, 3, cfg.Jobs)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, []string{"**/test_*.py"}, cfg.Excludes)
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	isolate(t)
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	assert.Error(t, err)
}

func TestLoad_PrefixedEnv(t *testing.T) {
	isolate(t)
	t.Setenv("SIFTER_JOBS", "7")
	t.Setenv("SIFTER_OUTPUT_DIR", "/env/out")

	cfg, err := Load(writeConfig(t, "jobs = 2\n"))
	require.NoError(t, err)
	assert.Equal(t, 7, cfg.Jobs, "environment beats the file")
	assert.Equal(t, "/env/out", cfg.OutputDir)
}

func TestLoad_LegacyEnv(t *testing.T) {
	isolate(t)
	cwd, err := os.Getwd()
	require.NoError(t, err)
	t.Setenv("LOCAL_DIR", "/legacy/out")
	t.Setenv("SOURCE_PATHS", "/one; /two;;")
	t.Setenv("SIFTER_OUTPUT_DIR", "/env/out")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "/legacy/out", cfg.OutputDir)
	assert.Equal(t, []string{"/one", "/two", cwd}, cfg.SourcePaths)
}

func TestLoad_WorkingDirNotDuplicated(t *testing.T) {
	isolate(t)
	cwd, err := os.Getwd()
	require.NoError(t, err)
	t.Setenv("SOURCE_PATHS", cwd)

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, []string{cwd}, cfg.SourcePaths)
}

func TestLoad_ExpandsHome(t *testing.T) {
	home := isolate(t)
	cfg, err := Load(writeConfig(t, "data_dir = \"~/sifter-data\"\n"))
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "sifter-data"), cfg.DataDir)
	assert.Equal(t, filepath.Join(home, "sifter-data", "langs"), cfg.LangsDir)
}

// =============================================================================
// Helpers
// =============================================================================

func TestSplitSourcePaths(t *testing.T) {
	t.Parallel()
	assert.Equal(t, []string{"a", "b c"}, SplitSourcePaths(" a ;b c;"))
	assert.Empty(t, SplitSourcePaths(";;"))
}

func TestBootstrap_CreatesDirectories(t *testing.T) {
	t.Parallel()
	root := t.TempDir()
	cfg := &Config{
		DataDir:   filepath.Join(root, "data"),
		LangsDir:  filepath.Join(root, "data", "langs"),
		OutputDir: filepath.Join(root, "out"),
	}
	require.NoError(t, Bootstrap(cfg))
	for _, dir := range []string{cfg.DataDir, cfg.LangsDir, cfg.OutputDir} {
		info, err := os.Stat(dir)
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
	require.NoError(t, Bootstrap(cfg), "idempotent")
}
