package store

import "fmt"

// CommitBatch writes everything buffered in batch within a single
// transaction. Deletes are applied before upserts, so a model that was
// deleted and rebuilt in the same batch survives.
func (s *Store) CommitBatch(batch *Batch) error {
	batch.mu.Lock()
	defer batch.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("commit batch: begin: %w", err)
	}
	defer tx.Rollback()

	for _, id := range batch.Deletes {
		if _, err := tx.Exec("DELETE FROM models WHERE model_id = ?", id); err != nil {
			return fmt.Errorf("commit batch: delete %s: %w", id, err)
		}
	}
	for i := range batch.Models {
		if err := upsertModel(tx, &batch.Models[i]); err != nil {
			return fmt.Errorf("commit batch: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: commit: %w", err)
	}
	batch.Models = nil
	batch.Deletes = nil
	return nil
}
