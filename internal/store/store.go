package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Store is the SQLite catalog of translated models. The model documents
// themselves live on disk; the catalog records where each one is, the hash of
// the source it was built from, the translation runs and per-language
// grammar hashes.
type Store struct {
	db *sql.DB
}

// NewStore opens a SQLite database at dbPath with WAL mode enabled.
func NewStore(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=30000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// Migrate creates the catalog tables and indexes. Idempotent.
func (s *Store) Migrate() error {
	_, err := s.db.Exec(schemaDDL)
	if err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS models (
  model_id        TEXT PRIMARY KEY,
  language        TEXT NOT NULL,
  source_path     TEXT NOT NULL,
  model_path      TEXT NOT NULL,
  hash            TEXT NOT NULL,
  unresolved      INTEGER NOT NULL DEFAULT 0,
  run_id          TEXT REFERENCES runs(id),
  updated         TIMESTAMP
);

CREATE TABLE IF NOT EXISTS runs (
  id              TEXT PRIMARY KEY,
  started         TIMESTAMP NOT NULL,
  finished        TIMESTAMP,
  parsed          INTEGER NOT NULL DEFAULT 0,
  cached          INTEGER NOT NULL DEFAULT 0,
  failed          INTEGER NOT NULL DEFAULT 0,
  skipped         INTEGER NOT NULL DEFAULT 0,
  unresolved      INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS metadata (
  key             TEXT PRIMARY KEY,
  value           TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_models_language ON models(language);
CREATE INDEX IF NOT EXISTS idx_models_source_path ON models(source_path);
`

// DeleteModel removes the catalog entry of a model. Removing an unknown
// model is not an error.
func (s *Store) DeleteModel(modelID string) error {
	if _, err := s.db.Exec("DELETE FROM models WHERE model_id = ?", modelID); err != nil {
		return fmt.Errorf("delete model %s: %w", modelID, err)
	}
	return nil
}

// DeleteLanguage removes every catalog entry of a language.
func (s *Store) DeleteLanguage(language string) (int64, error) {
	res, err := s.db.Exec("DELETE FROM models WHERE language = ?", language)
	if err != nil {
		return 0, fmt.Errorf("delete language %s: %w", language, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	return n, nil
}

// GetMetadata returns the value stored under key, or "" when there is none.
func (s *Store) GetMetadata(key string) (string, error) {
	var v string
	err := s.db.QueryRow("SELECT value FROM metadata WHERE key = ?", key).Scan(&v)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get metadata %s: %w", key, err)
	}
	return v, nil
}

// SetMetadata stores value under key, replacing any previous value.
func (s *Store) SetMetadata(key, value string) error {
	_, err := s.db.Exec(
		"INSERT INTO metadata (key, value) VALUES (?, ?) ON CONFLICT(key) DO UPDATE SET value = excluded.value",
		key, value,
	)
	if err != nil {
		return fmt.Errorf("set metadata %s: %w", key, err)
	}
	return nil
}
