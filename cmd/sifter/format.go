package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/jward/sifter"
)

// formatReportText prints one line per file and a summary.
func formatReportText(w io.Writer, r CLIReport) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STATUS\tLANGUAGE\tMODEL\tFILE")
	for _, f := range r.Files {
		model := f.ModelID
		if f.Error != "" {
			model = f.Error
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", f.Status, f.Language, model, f.Path)
	}
	tw.Flush()
	fmt.Fprintf(w, "\n%d parsed, %d cached, %d failed, %d skipped, %d unresolved references\n",
		r.Parsed, r.Cached, r.Failed, r.Skipped, r.Unresolved)
}

// formatTreeText prints a usage forest, one node per line, indented by depth.
func formatTreeText(w io.Writer, nodes []*sifter.Node, depth int) {
	for _, n := range nodes {
		fmt.Fprintf(w, "%s%s\n", strings.Repeat("  ", depth), n.ID)
		formatTreeText(w, n.Children, depth+1)
	}
}

func formatFindingsText(w io.Writer, findings []CLIFinding) {
	for _, f := range findings {
		if len(f.Chains) == 0 {
			fmt.Fprintf(w, "%s: no chains\n", f.Danger)
			continue
		}
		fmt.Fprintf(w, "%s:\n", f.Danger)
		formatTreeText(w, f.Chains, 1)
	}
}

func formatModelsText(w io.Writer, models []CLIModel) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MODEL\tLANGUAGE\tUNRESOLVED\tSOURCE")
	for _, m := range models {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n", m.ModelID, m.Language, m.Unresolved, m.SourcePath)
	}
	tw.Flush()
}

func formatRunsText(w io.Writer, runs []CLIRun) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTARTED\tPARSED\tCACHED\tFAILED\tSKIPPED")
	for _, r := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%d\n",
			r.ID, r.Started.Format("2006-01-02 15:04:05"), r.Parsed, r.Cached, r.Failed, r.Skipped)
	}
	tw.Flush()
}

func formatLanguagesText(w io.Writer, langs []CLILanguage) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "LANGUAGE\tEXTENSIONS\tSINKS\tSOURCES\tCLEANERS")
	for _, l := range langs {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\n",
			l.Name, strings.Join(l.Extensions, ","), len(l.Sinks), len(l.Sources), len(l.Cleaners))
	}
	tw.Flush()
}

func formatLintText(w io.Writer, issues []CLILintIssue) {
	if len(issues) == 0 {
		fmt.Fprintln(w, "no issues")
		return
	}
	for _, is := range issues {
		switch {
		case is.Error != "":
			fmt.Fprintf(w, "%s: %s: %s\n", is.Language, is.FormatString, is.Error)
		default:
			fmt.Fprintf(w, "%s: %s: unresolved %s\n", is.Language, is.FormatString, strings.Join(is.Placeholders, ", "))
		}
	}
}

// writeResultText dispatches to the text formatter for the result type.
func writeResultText(w io.Writer, result CLIResult) error {
	switch v := result.Results.(type) {
	case CLIReport:
		formatReportText(w, v)
	case []*sifter.Node:
		formatTreeText(w, v, 0)
	case []CLIFinding:
		formatFindingsText(w, v)
	case []CLIModel:
		formatModelsText(w, v)
	case []CLIRun:
		formatRunsText(w, v)
	case []CLILanguage:
		formatLanguagesText(w, v)
	case []CLILintIssue:
		formatLintText(w, v)
	case nil:
	default:
		return fmt.Errorf("unsupported result type for text format: %T", v)
	}
	if result.Error != "" {
		fmt.Fprintf(os.Stderr, "Error: %s\n", result.Error)
	}
	return nil
}

// writeResult encodes result in the given format.
func writeResult(w io.Writer, format string, result CLIResult) error {
	if format == "text" {
		return writeResultText(w, result)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

func outputResult(result CLIResult) error {
	return writeResult(stdout, flagFormat, result)
}

// outputError writes an error in the selected format and returns it so RunE
// can propagate it to Cobra. In JSON mode the error is written to stdout as a
// CLIResult envelope. In text mode it goes to stderr.
func outputError(command string, err error) error {
	errorHandled = true
	if flagFormat == "text" {
		fmt.Fprintf(os.Stderr, "Error: %s\n", err)
		return err
	}
	_ = writeResult(stdout, "json", CLIResult{Command: command, Error: err.Error()})
	return err
}

// validFormats lists accepted values for --format.
var validFormats = []string{"json", "text"}

// validateFormat checks that the --format flag value is recognized.
func validateFormat(format string) error {
	for _, f := range validFormats {
		if format == f {
			return nil
		}
	}
	return fmt.Errorf("invalid format %q: must be %s", format, strings.Join(validFormats, " or "))
}
