// Package saves holds a game's persistent key-value data.
//
// A Slot buffers reads and writes in memory and persists the whole set on
// Flush. Values are stored as deterministic CBOR, one record per key, each
// with a SHA-256 checksum bound to its key so a damaged or swapped record is
// detected when the slot is opened.
package saves

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	apperrors "github.com/louisbranch/gaem/internal/platform/errors"
)

// Record is one persisted key.
type Record struct {
	Key       string
	Data      []byte
	Checksum  string
	UpdatedAt time.Time
}

// Backend persists records per game. SaveRecords replaces the game's full
// record set atomically.
type Backend interface {
	LoadRecords(ctx context.Context, gameID string) ([]Record, error)
	SaveRecords(ctx context.Context, gameID string, records []Record) error
}

// Slot is one game's save data. It is safe for concurrent use.
type Slot struct {
	mu      sync.Mutex
	backend Backend
	gameID  string
	values  map[string]any
	updated map[string]time.Time
	dirty   bool
	now     func() time.Time
}

// Open loads the game's records from backend and verifies every checksum.
func Open(ctx context.Context, backend Backend, gameID string) (*Slot, error) {
	if backend == nil {
		return nil, errors.New("save backend is required")
	}
	if strings.TrimSpace(gameID) == "" {
		return nil, errors.New("game id is required")
	}
	records, err := backend.LoadRecords(ctx, gameID)
	if err != nil {
		return nil, fmt.Errorf("load saves: %w", err)
	}

	s := &Slot{
		backend: backend,
		gameID:  gameID,
		values:  make(map[string]any, len(records)),
		updated: make(map[string]time.Time, len(records)),
		now:     time.Now,
	}
	for _, rec := range records {
		if subtle.ConstantTimeCompare([]byte(Checksum(rec.Key, rec.Data)), []byte(rec.Checksum)) != 1 {
			return nil, corrupted(rec.Key, errors.New("checksum mismatch"))
		}
		value, err := decodeValue(rec.Data)
		if err != nil {
			return nil, corrupted(rec.Key, err)
		}
		s.values[rec.Key] = value
		s.updated[rec.Key] = rec.UpdatedAt
	}
	return s, nil
}

// Checksum binds a record's data to its key.
func Checksum(key string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(key))
	h.Write([]byte{0})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// GameID returns the owning game's id.
func (s *Slot) GameID() string {
	return s.gameID
}

// Read returns a copy of the stored value, or fallback when absent.
func (s *Slot) Read(key string, fallback any) any {
	s.mu.Lock()
	defer s.mu.Unlock()
	value, ok := s.values[key]
	if !ok {
		return fallback
	}
	copied, _ := Normalize(value)
	return copied
}

// Write stores value under key. The value must be one of the stored value
// types.
func (s *Slot) Write(key string, value any) error {
	if key == "" {
		return errors.New("save key is required")
	}
	normalized, err := Normalize(value)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.values[key] = normalized
	s.updated[key] = s.now().UTC()
	s.dirty = true
	return nil
}

// Remove deletes key and reports whether it existed.
func (s *Slot) Remove(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.values[key]; !ok {
		return false
	}
	delete(s.values, key)
	delete(s.updated, key)
	s.dirty = true
	return true
}

// Keys returns the stored keys in order.
func (s *Slot) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.values))
	for key := range s.values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

// Dirty reports whether there are unflushed changes.
func (s *Slot) Dirty() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dirty
}

// Flush persists every key when there are unflushed changes.
func (s *Slot) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}

	keys := make([]string, 0, len(s.values))
	for key := range s.values {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	records := make([]Record, 0, len(keys))
	for _, key := range keys {
		data, err := encodeValue(s.values[key])
		if err != nil {
			return fmt.Errorf("encode save %s: %w", key, err)
		}
		records = append(records, Record{
			Key:       key,
			Data:      data,
			Checksum:  Checksum(key, data),
			UpdatedAt: s.updated[key],
		})
	}
	if err := s.backend.SaveRecords(ctx, s.gameID, records); err != nil {
		return fmt.Errorf("flush saves: %w", err)
	}
	s.dirty = false
	return nil
}

func corrupted(key string, cause error) error {
	return apperrors.WrapWithMetadata(apperrors.CodeSaveCorrupted,
		fmt.Sprintf("save record %s is corrupted", key),
		map[string]string{"key": key}, cause)
}
