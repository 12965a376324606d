package saves

import (
	"bytes"
	"context"
	"sync"
)

// MemoryBackend keeps records in process memory.
type MemoryBackend struct {
	mu      sync.Mutex
	records map[string][]Record
}

// NewMemoryBackend returns an empty in-memory backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{records: make(map[string][]Record)}
}

// LoadRecords returns a copy of the game's records.
func (m *MemoryBackend) LoadRecords(_ context.Context, gameID string) ([]Record, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneRecords(m.records[gameID]), nil
}

// SaveRecords replaces the game's records.
func (m *MemoryBackend) SaveRecords(ctx context.Context, gameID string, records []Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[gameID] = cloneRecords(records)
	return nil
}

func cloneRecords(records []Record) []Record {
	out := make([]Record, len(records))
	for i, rec := range records {
		rec.Data = bytes.Clone(rec.Data)
		out[i] = rec
	}
	return out
}
