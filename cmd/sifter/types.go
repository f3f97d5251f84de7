package main

import (
	"sort"
	"time"

	"github.com/jward/sifter"
)

// CLIResult is the top-level JSON envelope for all commands.
type CLIResult struct {
	Command string `json:"command"`
	Results any    `json:"results"`
	Error   string `json:"error,omitempty"`
}

// CLIReport is a JSON-friendly translation report.
type CLIReport struct {
	RunID      string    `json:"run_id"`
	Parsed     int       `json:"parsed"`
	Cached     int       `json:"cached"`
	Failed     int       `json:"failed"`
	Skipped    int       `json:"skipped"`
	Unresolved int       `json:"unresolved"`
	Files      []CLIFile `json:"files"`
}

// CLIFile is one file of a translation report.
type CLIFile struct {
	Path       string   `json:"path"`
	Language   string   `json:"language,omitempty"`
	ModelID    string   `json:"model_id,omitempty"`
	Status     string   `json:"status"`
	Unresolved []string `json:"unresolved,omitempty"`
	Error      string   `json:"error,omitempty"`
}

// CLIFinding is the set of chains found from one danger.
type CLIFinding struct {
	Danger string         `json:"danger"`
	Chains []*sifter.Node `json:"chains"`
}

// CLIModel is a JSON-friendly catalog entry.
type CLIModel struct {
	ModelID    string `json:"model_id"`
	Language   string `json:"language"`
	SourcePath string `json:"source_path"`
	ModelPath  string `json:"model_path"`
	Unresolved int    `json:"unresolved"`
}

// CLIRun is a JSON-friendly translation run.
type CLIRun struct {
	ID       string     `json:"id"`
	Started  time.Time  `json:"started"`
	Finished *time.Time `json:"finished,omitempty"`
	Parsed   int        `json:"parsed"`
	Cached   int        `json:"cached"`
	Failed   int        `json:"failed"`
	Skipped  int        `json:"skipped"`
}

// CLILanguage describes a registered grammar.
type CLILanguage struct {
	Name       string   `json:"name"`
	Extensions []string `json:"extensions"`
	Sinks      []string `json:"sinks,omitempty"`
	Sources    []string `json:"sources,omitempty"`
	Cleaners   []string `json:"cleaners,omitempty"`
	Hash       string   `json:"hash"`
}

// CLILintIssue is one grammar problem.
type CLILintIssue struct {
	Language     string   `json:"language"`
	FormatString string   `json:"format_string"`
	Placeholders []string `json:"placeholders,omitempty"`
	Error        string   `json:"error,omitempty"`
}

func toCLIReport(r *sifter.TranslateReport) CLIReport {
	out := CLIReport{
		RunID:      r.RunID,
		Parsed:     r.Parsed,
		Cached:     r.Cached,
		Failed:     r.Failed,
		Skipped:    r.Skipped,
		Unresolved: r.Unresolved,
		Files:      make([]CLIFile, 0, len(r.Files)),
	}
	for _, f := range r.Files {
		cf := CLIFile{
			Path:     f.Path,
			Language: f.Language,
			ModelID:  f.ModelID,
			Status:   string(f.Status),
			Error:    f.Error,
		}
		for _, u := range f.Unresolved {
			cf.Unresolved = append(cf.Unresolved, u.Ref)
		}
		out.Files = append(out.Files, cf)
	}
	return out
}

// toCLIFindings orders findings by danger.
func toCLIFindings(findings map[string][]*sifter.Node) []CLIFinding {
	out := make([]CLIFinding, 0, len(findings))
	for danger, chains := range findings {
		if chains == nil {
			chains = []*sifter.Node{}
		}
		out = append(out, CLIFinding{Danger: danger, Chains: chains})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Danger < out[j].Danger })
	return out
}

func toCLIModel(r *sifter.ModelRecord) CLIModel {
	return CLIModel{
		ModelID:    r.ModelID,
		Language:   r.Language,
		SourcePath: r.SourcePath,
		ModelPath:  r.ModelPath,
		Unresolved: r.Unresolved,
	}
}

func toCLIRun(r *sifter.Run) CLIRun {
	return CLIRun{
		ID:       r.ID,
		Started:  r.Started,
		Finished: r.Finished,
		Parsed:   r.Parsed,
		Cached:   r.Cached,
		Failed:   r.Failed,
		Skipped:  r.Skipped,
	}
}

func toCLILintIssue(lang string, is sifter.LintIssue) CLILintIssue {
	out := CLILintIssue{Language: lang, FormatString: is.FormatString, Placeholders: is.Placeholders}
	if is.Err != nil {
		out.Error = is.Err.Error()
	}
	return out
}
