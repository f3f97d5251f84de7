package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// BeginRun records the start of a translation run and returns its id.
func (s *Store) BeginRun() (string, error) {
	id := uuid.NewString()
	if _, err := s.db.Exec("INSERT INTO runs (id, started) VALUES (?, ?)", id, time.Now().UTC()); err != nil {
		return "", fmt.Errorf("begin run: %w", err)
	}
	return id, nil
}

// FinishRun stamps the run with its totals and finish time.
func (s *Store) FinishRun(id string, c RunCounts) error {
	res, err := s.db.Exec(
		`UPDATE runs SET finished = ?, parsed = ?, cached = ?, failed = ?, skipped = ?, unresolved = ?
		 WHERE id = ?`,
		time.Now().UTC(), c.Parsed, c.Cached, c.Failed, c.Skipped, c.Unresolved, id,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run: unknown run %s", id)
	}
	return nil
}

// RunByID returns the run with the given id, or nil if there is none.
func (s *Store) RunByID(id string) (*Run, error) {
	run, err := scanRun(s.db.QueryRow("SELECT "+runColumns+" FROM runs WHERE id = ?", id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("run by id: %w", err)
	}
	return run, nil
}

// Runs lists the most recent runs first. A non-positive limit lists all.
func (s *Store) Runs(limit int) ([]*Run, error) {
	q := "SELECT " + runColumns + " FROM runs ORDER BY started DESC"
	var args []any
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("runs: %w", err)
	}
	defer rows.Close()
	var out []*Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		out = append(out, run)
	}
	return out, rows.Err()
}
