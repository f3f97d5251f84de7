// Package config loads sifter settings from defaults, an optional config
// file, .env files and the environment.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"slices"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the sifter settings.
type Config struct {
	// DataDir holds user grammars and scripts.
	DataDir string `mapstructure:"data_dir"`
	// LangsDir holds grammar files that extend or override the built-in ones.
	LangsDir string `mapstructure:"langs_dir"`
	// OutputDir is where model documents are written.
	OutputDir string `mapstructure:"output_dir"`
	// SourcePaths are the roots model identifiers are computed against.
	SourcePaths []string `mapstructure:"source_paths"`
	Jobs        int      `mapstructure:"jobs"`
	// Catalog is the SQLite catalog path.
	Catalog     string   `mapstructure:"catalog"`
	MetricsFile string   `mapstructure:"metrics_file"`
	LogLevel    string   `mapstructure:"log_level"`
	Excludes    []string `mapstructure:"excludes"`
}

// Default returns the built-in settings. Derived paths (LangsDir, Catalog)
// are left empty and filled in by Load.
func Default() *Config {
	homeDir, _ := os.UserHomeDir()
	return &Config{
		DataDir:   filepath.Join(homeDir, ".sifter"),
		OutputDir: ".model",
		Jobs:      runtime.NumCPU(),
		LogLevel:  "info",
	}
}

// Load reads configuration. When path is empty, config.toml is searched for
// in .sifter/, the working directory and ~/.sifter; a missing file is not an
// error. Environment variables prefixed SIFTER_ override file values, and
// the variables LOCAL_DIR and SOURCE_PATHS (semicolon separated) override
// both. The working directory is always the last source path.
func Load(path string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	cfg := Default()
	v.SetDefault("data_dir", cfg.DataDir)
	v.SetDefault("langs_dir", "")
	v.SetDefault("output_dir", cfg.OutputDir)
	v.SetDefault("source_paths", []string{})
	v.SetDefault("jobs", cfg.Jobs)
	v.SetDefault("catalog", "")
	v.SetDefault("metrics_file", "")
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("excludes", []string{})

	v.SetEnvPrefix("SIFTER")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("toml")
		v.AddConfigPath(".sifter")
		v.AddConfigPath(".")
		homeDir, _ := os.UserHomeDir()
		v.AddConfigPath(filepath.Join(homeDir, ".sifter"))
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("config: read: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	applyEnvOverrides(cfg)
	if err := cfg.finish(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadEnvFiles loads .env files, earlier files taking precedence. Variables
// already set in the environment are never replaced.
func loadEnvFiles() {
	files := []string{".env.local", ".env"}
	homeDir, _ := os.UserHomeDir()
	files = append(files, filepath.Join(homeDir, ".sifter", ".env"))
	for _, file := range files {
		if _, err := os.Stat(file); err == nil {
			_ = godotenv.Load(file)
		}
	}
}

func applyEnvOverrides(cfg *Config) {
	if dir := os.Getenv("LOCAL_DIR"); dir != "" {
		cfg.OutputDir = dir
	}
	if paths := os.Getenv("SOURCE_PATHS"); paths != "" {
		cfg.SourcePaths = SplitSourcePaths(paths)
	}
}

// SplitSourcePaths splits a semicolon separated path list, dropping empty
// entries.
func SplitSourcePaths(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ";") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// finish expands ~, derives the dependent paths and appends the working
// directory to the source paths.
func (c *Config) finish() error {
	c.DataDir = expandPath(c.DataDir)
	c.OutputDir = expandPath(c.OutputDir)
	if c.LangsDir == "" {
		c.LangsDir = filepath.Join(c.DataDir, "langs")
	}
	c.LangsDir = expandPath(c.LangsDir)
	if c.Catalog == "" {
		c.Catalog = filepath.Join(c.OutputDir, "catalog.db")
	}
	c.Catalog = expandPath(c.Catalog)
	if c.Jobs < 1 {
		c.Jobs = 1
	}

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("config: working directory: %w", err)
	}
	paths := make([]string, 0, len(c.SourcePaths)+1)
	for _, p := range c.SourcePaths {
		paths = append(paths, expandPath(p))
	}
	if !slices.Contains(paths, cwd) {
		paths = append(paths, cwd)
	}
	c.SourcePaths = paths
	return nil
}

// Bootstrap creates the data, grammar and output directories.
func Bootstrap(c *Config) error {
	for _, dir := range []string{c.DataDir, c.LangsDir, c.OutputDir} {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: bootstrap %s: %w", dir, err)
		}
	}
	return nil
}

// expandPath expands a leading ~ to the home directory.
func expandPath(path string) string {
	if path == "~" || strings.HasPrefix(path, "~/") {
		homeDir, _ := os.UserHomeDir()
		return filepath.Join(homeDir, path[1:])
	}
	return path
}
