package sifter

import (
	"github.com/jward/sifter/internal/descriptor"
	"github.com/jward/sifter/internal/model"
	"github.com/jward/sifter/internal/resolver"
	"github.com/jward/sifter/internal/store"
)

// Public aliases for internal types that appear in the Engine API.

type Model = model.Model
type ModelRecord = store.ModelRecord
type Run = store.Run
type Unresolved = resolver.Unresolved
type LintIssue = descriptor.LintIssue

// FileStatus is the outcome of translating one file.
type FileStatus string

const (
	StatusParsed  FileStatus = "parsed"
	StatusCached  FileStatus = "cached"
	StatusFailed  FileStatus = "failed"
	StatusSkipped FileStatus = "skipped"
)

// FileResult reports one file of a translation run.
type FileResult struct {
	Path       string       `json:"path"`
	Language   string       `json:"language,omitempty"`
	ModelID    string       `json:"model_id,omitempty"`
	OutputPath string       `json:"output_path,omitempty"`
	Status     FileStatus   `json:"status"`
	Unresolved []Unresolved `json:"unresolved,omitempty"`
	Error      string       `json:"error,omitempty"`
}

// TranslateReport summarises a translation run.
type TranslateReport struct {
	RunID      string       `json:"run_id"`
	Parsed     int          `json:"parsed"`
	Cached     int          `json:"cached"`
	Failed     int          `json:"failed"`
	Skipped    int          `json:"skipped"`
	Unresolved int          `json:"unresolved"`
	Files      []FileResult `json:"files"`
}

func (r *TranslateReport) add(fr FileResult) {
	switch fr.Status {
	case StatusParsed:
		r.Parsed++
	case StatusCached:
		r.Cached++
	case StatusFailed:
		r.Failed++
	case StatusSkipped:
		r.Skipped++
	}
	r.Unresolved += len(fr.Unresolved)
	r.Files = append(r.Files, fr)
}
