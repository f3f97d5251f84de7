package main

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/jward/sifter"
)

var flagDepth int

var navigateCmd = &cobra.Command{
	Use:   "navigate <global-id> <model-file...>",
	Short: "Show where the value of an identifier flows",
	Long:  "Loads the model files and the models they depend on, then prints, for every function using the identifier, the calls its value is passed into.",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runNavigate,
}

func init() {
	navigateCmd.Flags().IntVar(&flagDepth, "depth", 5, "levels of calls to follow below each function")
}

func runNavigate(cmd *cobra.Command, args []string) error {
	files, err := resolvePaths(args[1:])
	if err != nil {
		return outputError("navigate", err)
	}
	e, err := newEngine(sifter.WithLazy(true))
	if err != nil {
		return outputError("navigate", err)
	}
	defer e.Close()

	forest, err := e.Navigate(context.Background(), args[0], flagDepth, files)
	if err != nil {
		return outputError("navigate", err)
	}
	if forest == nil {
		forest = []*sifter.Node{}
	}
	return outputResult(CLIResult{Command: "navigate", Results: forest})
}

var (
	flagHuntLanguage string
	flagSinks        []string
	flagDangers      []string
	flagCleaners     []string
)

var huntCmd = &cobra.Command{
	Use:   "hunt <model-file...>",
	Short: "Find chains from tainted sources to sinks",
	Long:  "Follows every danger through the given models and reports the call chains that reach a sink without passing a cleaner. With --language, the grammar's configured sinks, sources and cleaners are included.",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runHunt,
}

func init() {
	f := huntCmd.Flags()
	f.IntVar(&flagDepth, "depth", 5, "levels of calls to follow below each function")
	f.StringVar(&flagHuntLanguage, "language", "", "add this language's configured sinks, sources and cleaners")
	f.StringSliceVar(&flagSinks, "sink", nil, "global id of a sink (repeatable)")
	f.StringSliceVar(&flagDangers, "danger", nil, "global id of a taint source (repeatable)")
	f.StringSliceVar(&flagCleaners, "cleaner", nil, "global id of a sanitiser (repeatable)")
}

func runHunt(cmd *cobra.Command, args []string) error {
	files, err := resolvePaths(args)
	if err != nil {
		return outputError("hunt", err)
	}
	e, err := newEngine(sifter.WithLazy(true))
	if err != nil {
		return outputError("hunt", err)
	}
	defer e.Close()

	findings, err := e.Hunt(context.Background(), sifter.HuntRequest{
		RecursionDepth: flagDepth,
		Sinks:          flagSinks,
		Dangers:        flagDangers,
		Cleaners:       flagCleaners,
		Files:          files,
		Language:       flagHuntLanguage,
	})
	if err != nil {
		return outputError("hunt", err)
	}
	return outputResult(CLIResult{Command: "hunt", Results: toCLIFindings(findings)})
}

var flagModelsLanguage string

var modelsCmd = &cobra.Command{
	Use:   "models [model-id...]",
	Short: "List translated models, or only the given model ids",
	RunE:  runModels,
}

func init() {
	modelsCmd.Flags().StringVar(&flagModelsLanguage, "language", "", "only models of this language")
}

func runModels(cmd *cobra.Command, args []string) error {
	e, err := newEngine(sifter.WithLazy(true))
	if err != nil {
		return outputError("models", err)
	}
	defer e.Close()

	var recs []*sifter.ModelRecord
	if len(args) > 0 {
		recs, err = e.ModelsByID(args)
	} else {
		recs, err = e.Models(flagModelsLanguage)
	}
	if err != nil {
		return outputError("models", err)
	}
	out := make([]CLIModel, 0, len(recs))
	for _, r := range recs {
		out = append(out, toCLIModel(r))
	}
	return outputResult(CLIResult{Command: "models", Results: out})
}

var flagRunsLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recent translation runs",
	Args:  cobra.NoArgs,
	RunE:  runRuns,
}

func init() {
	runsCmd.Flags().IntVar(&flagRunsLimit, "limit", 20, "number of runs to show")
	rootCmd.AddCommand(runsCmd)
}

func runRuns(cmd *cobra.Command, args []string) error {
	e, err := newEngine(sifter.WithLazy(true))
	if err != nil {
		return outputError("runs", err)
	}
	defer e.Close()
	if e.Store() == nil {
		return outputError("runs", fmt.Errorf("no catalog configured"))
	}

	runs, err := e.Store().Runs(flagRunsLimit)
	if err != nil {
		return outputError("runs", err)
	}
	out := make([]CLIRun, 0, len(runs))
	for _, r := range runs {
		out = append(out, toCLIRun(r))
	}
	return outputResult(CLIResult{Command: "runs", Results: out})
}

var languagesCmd = &cobra.Command{
	Use:   "languages",
	Short: "List registered grammars",
	Args:  cobra.NoArgs,
	RunE:  runLanguages,
}

func runLanguages(cmd *cobra.Command, args []string) error {
	e, err := newEngine(sifter.WithLazy(true))
	if err != nil {
		return outputError("languages", err)
	}
	defer e.Close()

	var out []CLILanguage
	for _, lang := range e.Languages() {
		g, _ := e.Grammar(lang)
		out = append(out, CLILanguage{
			Name:       lang,
			Extensions: g.Info.FileExtensions,
			Sinks:      g.Info.Sinks,
			Sources:    g.Info.Sources,
			Cleaners:   g.Info.Cleaners,
			Hash:       g.Hash(),
		})
	}
	return outputResult(CLIResult{Command: "languages", Results: out})
}

var lintCmd = &cobra.Command{
	Use:   "lint",
	Short: "Check every grammar",
	Long:  "Builds every grammar and reports format strings with unresolved placeholders or regexes that do not compile.",
	Args:  cobra.NoArgs,
	RunE:  runLint,
}

func runLint(cmd *cobra.Command, args []string) error {
	e, err := newEngine(sifter.WithLazy(true))
	if err != nil {
		return outputError("lint", err)
	}
	defer e.Close()

	issues, lintErr := e.Lint()
	langs := make([]string, 0, len(issues))
	for lang := range issues {
		langs = append(langs, lang)
	}
	sort.Strings(langs)
	out := []CLILintIssue{}
	for _, lang := range langs {
		for _, is := range issues[lang] {
			out = append(out, toCLILintIssue(lang, is))
		}
	}
	result := CLIResult{Command: "lint", Results: out}
	if lintErr != nil {
		result.Error = lintErr.Error()
		errorHandled = true
	}
	if err := outputResult(result); err != nil {
		return err
	}
	return lintErr
}
