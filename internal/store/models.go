package store

import (
	"database/sql"
	"fmt"
	"time"
)

type execer interface {
	Exec(query string, args ...any) (sql.Result, error)
}

// upsertModel inserts or replaces the catalog entry for m.ModelID. A zero
// Updated is stamped with the current time.
func upsertModel(db execer, m *ModelRecord) error {
	if m.Updated.IsZero() {
		m.Updated = time.Now().UTC()
	}
	_, err := db.Exec(
		`INSERT INTO models (model_id, language, source_path, model_path, hash, unresolved, run_id, updated)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(model_id) DO UPDATE SET
		   language = excluded.language,
		   source_path = excluded.source_path,
		   model_path = excluded.model_path,
		   hash = excluded.hash,
		   unresolved = excluded.unresolved,
		   run_id = excluded.run_id,
		   updated = excluded.updated`,
		m.ModelID, m.Language, m.SourcePath, m.ModelPath, m.Hash, m.Unresolved, m.RunID, m.Updated,
	)
	if err != nil {
		return fmt.Errorf("upsert model %s: %w", m.ModelID, err)
	}
	return nil
}

// ModelByID returns the catalog entry for modelID, or nil if there is none.
func (s *Store) ModelByID(modelID string) (*ModelRecord, error) {
	m, err := scanModel(s.db.QueryRow("SELECT "+modelColumns+" FROM models WHERE model_id = ?", modelID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("model by id: %w", err)
	}
	return m, nil
}

// ModelBySourcePath returns the catalog entry built from the given source
// file, or nil if there is none.
func (s *Store) ModelBySourcePath(path string) (*ModelRecord, error) {
	m, err := scanModel(s.db.QueryRow("SELECT "+modelColumns+" FROM models WHERE source_path = ?", path))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("model by source path: %w", err)
	}
	return m, nil
}

// Models lists catalog entries ordered by model id. An empty language lists
// every language.
func (s *Store) Models(language string) ([]*ModelRecord, error) {
	q := "SELECT " + modelColumns + " FROM models"
	var args []any
	if language != "" {
		q += " WHERE language = ?"
		args = append(args, language)
	}
	return s.queryModels(q+" ORDER BY model_id", args...)
}

// ModelsByID returns the entries of the given model ids that exist,
// ordered by model id.
func (s *Store) ModelsByID(ids []string) ([]*ModelRecord, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	q := "SELECT " + modelColumns + " FROM models WHERE model_id IN (" + placeholderList(len(ids)) + ") ORDER BY model_id"
	return s.queryModels(q, stringsToArgs(ids)...)
}

func (s *Store) queryModels(q string, args ...any) ([]*ModelRecord, error) {
	rows, err := s.db.Query(q, args...)
	if err != nil {
		return nil, fmt.Errorf("query models: %w", err)
	}
	defer rows.Close()
	var out []*ModelRecord
	for rows.Next() {
		m, err := scanModel(rows)
		if err != nil {
			return nil, fmt.Errorf("scan model: %w", err)
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// LocateModel returns the entry whose model id is the longest dotted prefix
// of globalID (or equal to it), or nil when no catalogued model declares it.
func (s *Store) LocateModel(globalID string) (*ModelRecord, error) {
	m, err := scanModel(s.db.QueryRow(
		`SELECT `+modelColumns+` FROM models
		 WHERE model_id = ? OR substr(?, 1, length(model_id) + 1) = model_id || '.'
		 ORDER BY length(model_id) DESC LIMIT 1`,
		globalID, globalID,
	))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("locate model: %w", err)
	}
	return m, nil
}
