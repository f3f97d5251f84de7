package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jward/sifter"
	"github.com/jward/sifter/internal/metrics"
)

var (
	flagForce       bool
	flagJobs        int
	flagLanguages   string
	flagExcludes    []string
	flagLazy        bool
	flagWatch       bool
	flagDebounce    time.Duration
	flagMetricsFile string
)

var translateCmd = &cobra.Command{
	Use:   "translate [path...]",
	Short: "Translate source files into model documents",
	Long:  "Translates every supported file under the given files and directories (default: the working directory). Unchanged files keep their models.",
	RunE:  runTranslate,
}

func init() {
	f := translateCmd.Flags()
	f.BoolVar(&flagForce, "force", false, "re-extract files whose models are current")
	f.IntVar(&flagJobs, "jobs", 0, "files translated concurrently (default from config)")
	f.StringVar(&flagLanguages, "languages", "", "comma-separated language filter (e.g. python3)")
	f.StringSliceVar(&flagExcludes, "exclude", nil, "glob of paths to skip (repeatable)")
	f.BoolVar(&flagLazy, "lazy", false, "build a grammar only when a file needs it")
	f.BoolVar(&flagWatch, "watch", false, "keep translating files as they change")
	f.DurationVar(&flagDebounce, "debounce", sifter.DefaultDebounce, "quiet period before a watched change is translated")
	f.StringVar(&flagMetricsFile, "metrics-file", "", "write Prometheus metrics to this file after each run")
}

func runTranslate(cmd *cobra.Command, args []string) error {
	paths, err := resolvePaths(args)
	if err != nil {
		return outputError("translate", err)
	}

	metricsFile := flagMetricsFile
	if metricsFile == "" {
		metricsFile = cfg.MetricsFile
	}
	var rec *metrics.Recorder
	if metricsFile != "" {
		rec = metrics.New()
	}
	opts := []sifter.Option{
		sifter.WithForce(flagForce),
		sifter.WithLazy(flagLazy),
		sifter.WithExcludes(flagExcludes...),
		sifter.WithMetrics(rec),
	}
	if flagJobs > 0 {
		opts = append(opts, sifter.WithJobs(flagJobs))
	}
	if langs := splitList(flagLanguages); len(langs) > 0 {
		opts = append(opts, sifter.WithLanguages(langs...))
	}
	e, err := newEngine(opts...)
	if err != nil {
		return outputError("translate", err)
	}
	defer e.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	files, dirs, err := expandPaths(e, paths)
	if err != nil {
		return outputError("translate", err)
	}
	start := time.Now()
	report, err := e.TranslateFiles(ctx, files)
	writeMetrics(rec, metricsFile)
	if err != nil && report == nil {
		return outputError("translate", err)
	}
	logger.WithField("elapsed", time.Since(start).Round(time.Millisecond)).Info("translate finished")
	if err := outputReport(report, err); err != nil && !flagWatch {
		return err
	}

	if !flagWatch {
		return nil
	}
	if len(dirs) == 0 {
		return outputError("translate", fmt.Errorf("--watch needs a directory"))
	}
	err = e.Watch(ctx, dirs, flagDebounce, func(r *sifter.TranslateReport, err error) {
		writeMetrics(rec, metricsFile)
		if r == nil {
			logger.WithError(err).Error("translation failed")
			return
		}
		_ = outputReport(r, err)
	})
	if err != nil {
		return outputError("translate", err)
	}
	return nil
}

// expandPaths lists the translatable files of every directory argument and
// returns them with the file arguments, plus the directories themselves.
func expandPaths(e *sifter.Engine, paths []string) (files, dirs []string, err error) {
	for _, p := range paths {
		info, err := os.Stat(p)
		if err != nil {
			return nil, nil, err
		}
		if !info.IsDir() {
			files = append(files, p)
			continue
		}
		dirs = append(dirs, p)
		listed, err := e.ListFiles(p)
		if err != nil {
			return nil, nil, err
		}
		files = append(files, listed...)
	}
	return files, dirs, nil
}

// outputReport prints a report. A run with failed files prints the report
// with the error and returns it.
func outputReport(report *sifter.TranslateReport, runErr error) error {
	result := CLIResult{Command: "translate", Results: toCLIReport(report)}
	if runErr != nil {
		result.Error = runErr.Error()
		errorHandled = true
	}
	if err := outputResult(result); err != nil {
		return err
	}
	return runErr
}

func writeMetrics(rec *metrics.Recorder, path string) {
	if rec == nil || path == "" {
		return
	}
	if err := rec.WriteTextfile(path); err != nil {
		logger.WithError(err).WithField("file", path).Warn("writing metrics failed")
	}
}

// splitList splits a comma-separated flag value, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
