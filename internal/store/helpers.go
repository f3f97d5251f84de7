package store

import (
	"strings"
	"time"
)

// placeholderList returns "?,?,?" for n placeholders.
func placeholderList(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}

// stringsToArgs converts []string to []any for use with database/sql.
func stringsToArgs(ss []string) []any {
	args := make([]any, len(ss))
	for i, s := range ss {
		args[i] = s
	}
	return args
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

const modelColumns = "model_id, language, source_path, model_path, hash, unresolved, run_id, updated"

func scanModel(r rowScanner) (*ModelRecord, error) {
	m := &ModelRecord{}
	var updated *time.Time
	if err := r.Scan(&m.ModelID, &m.Language, &m.SourcePath, &m.ModelPath, &m.Hash, &m.Unresolved, &m.RunID, &updated); err != nil {
		return nil, err
	}
	if updated != nil {
		m.Updated = *updated
	}
	return m, nil
}

const runColumns = "id, started, finished, parsed, cached, failed, skipped, unresolved"

func scanRun(r rowScanner) (*Run, error) {
	run := &Run{}
	if err := r.Scan(&run.ID, &run.Started, &run.Finished, &run.Parsed, &run.Cached, &run.Failed, &run.Skipped, &run.Unresolved); err != nil {
		return nil, err
	}
	return run, nil
}
