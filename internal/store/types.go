package store

import "time"

// ModelRecord is the catalog entry of one model document.
type ModelRecord struct {
	ModelID    string
	Language   string
	SourcePath string
	ModelPath  string
	Hash       string
	Unresolved int
	RunID      *string
	Updated    time.Time
}

// Run is one translation run.
type Run struct {
	ID         string
	Started    time.Time
	Finished   *time.Time
	Parsed     int
	Cached     int
	Failed     int
	Skipped    int
	Unresolved int
}

// RunCounts are the totals recorded when a run finishes.
type RunCounts struct {
	Parsed     int
	Cached     int
	Failed     int
	Skipped    int
	Unresolved int
}
