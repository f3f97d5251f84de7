package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/jward/sifter"
	"github.com/jward/sifter/internal/config"
)

var (
	flagConfig    string
	flagFormat    string
	flagOutputDir string
	flagVerbose   bool
)

// errorHandled is set by outputError so main() doesn't double-print.
var errorHandled bool

// stdout is where results are written.
var stdout io.Writer = os.Stdout

var (
	cfg    *config.Config
	logger *logrus.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errorHandled {
			fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "sifter",
	Short:         "Regex-driven source models and taint hunting",
	Long:          "Sifter translates source files into language-neutral JSON models using regex grammars, then follows tainted values from sources to sinks across those models.",
	SilenceErrors: true,
	SilenceUsage:  true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := validateFormat(flagFormat); err != nil {
			return err
		}
		return setup()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file (default: config.toml in .sifter/, . or ~/.sifter)")
	rootCmd.PersistentFlags().StringVar(&flagFormat, "format", "json", "output format: json|text")
	rootCmd.PersistentFlags().StringVar(&flagOutputDir, "output-dir", "", "model output directory (default from config)")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(translateCmd)
	rootCmd.AddCommand(navigateCmd)
	rootCmd.AddCommand(huntCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(languagesCmd)
	rootCmd.AddCommand(lintCmd)
}

// setup loads the configuration, applies global flags and creates the
// directories sifter writes to.
func setup() error {
	c, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	if flagOutputDir != "" {
		if c.Catalog == filepath.Join(c.OutputDir, "catalog.db") {
			c.Catalog = filepath.Join(flagOutputDir, "catalog.db")
		}
		c.OutputDir = flagOutputDir
	}
	if flagVerbose {
		c.LogLevel = "debug"
	}
	l, err := newLogger(c.LogLevel)
	if err != nil {
		return err
	}
	if err := config.Bootstrap(c); err != nil {
		return err
	}
	cfg, logger = c, l
	return nil
}

// newLogger returns a logger writing to stderr at the named level.
func newLogger(level string) (*logrus.Logger, error) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	l := logrus.New()
	l.SetOutput(os.Stderr)
	l.SetLevel(lvl)
	l.SetFormatter(&logrus.TextFormatter{DisableTimestamp: true})
	return l, nil
}

// newEngine creates an Engine from the loaded configuration.
func newEngine(extra ...sifter.Option) (*sifter.Engine, error) {
	opts := []sifter.Option{
		sifter.WithLogger(logger),
		sifter.WithJobs(cfg.Jobs),
		sifter.WithSourceRoots(cfg.SourcePaths...),
		sifter.WithLangsDir(cfg.LangsDir),
		sifter.WithCatalog(cfg.Catalog),
		sifter.WithExcludes(cfg.Excludes...),
	}
	e, err := sifter.New(cfg.OutputDir, append(opts, extra...)...)
	if err != nil {
		return nil, fmt.Errorf("creating engine: %w", err)
	}
	return e, nil
}

// resolvePaths makes every argument absolute and checks that it exists.
func resolvePaths(args []string) ([]string, error) {
	if len(args) == 0 {
		args = []string{"."}
	}
	out := make([]string, 0, len(args))
	for _, a := range args {
		abs, err := filepath.Abs(a)
		if err != nil {
			return nil, fmt.Errorf("resolving path %q: %w", a, err)
		}
		if _, err := os.Stat(abs); err != nil {
			return nil, fmt.Errorf("path not found: %s", abs)
		}
		out = append(out, abs)
	}
	return out, nil
}
