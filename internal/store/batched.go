package store

import "sync"

// Batch buffers catalog writes from translation workers so that a single
// writer can commit them in one transaction.
//
// Thread safety: the mutex protects the buffered slices. Workers only
// append; CommitBatch reads the batch after all workers are done.
type Batch struct {
	mu sync.Mutex

	Models  []ModelRecord
	Deletes []string
}

// NewBatch creates an empty Batch.
func NewBatch() *Batch {
	return &Batch{}
}

// AddModel buffers an upsert of m.
func (b *Batch) AddModel(m ModelRecord) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Models = append(b.Models, m)
}

// DeleteModel buffers the removal of a catalog entry.
func (b *Batch) DeleteModel(modelID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Deletes = append(b.Deletes, modelID)
}

// Len returns the number of buffered writes.
func (b *Batch) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Models) + len(b.Deletes)
}
