package saves

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	apperrors "github.com/louisbranch/gaem/internal/platform/errors"
)

func openSlot(t *testing.T, backend Backend, gameID string) *Slot {
	t.Helper()
	slot, err := Open(context.Background(), backend, gameID)
	if err != nil {
		t.Fatalf("open slot: %v", err)
	}
	return slot
}

func TestSlotWriteFlushReopen(t *testing.T) {
	backend := NewMemoryBackend()
	slot := openSlot(t, backend, "game-1")
	slot.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	values := map[string]any{
		"name":     "Ada",
		"level":    3,
		"ratio":    0.75,
		"unlocked": true,
		"empty":    nil,
		"items":    []any{"sword", int64(2), 1.5},
		"stats":    map[string]any{"hp": int64(10), "tags": []any{}},
	}
	for key, value := range values {
		if err := slot.Write(key, value); err != nil {
			t.Fatalf("write %s: %v", key, err)
		}
	}
	if !slot.Dirty() {
		t.Fatal("expected dirty slot after writes")
	}
	if err := slot.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if slot.Dirty() {
		t.Fatal("expected clean slot after flush")
	}

	reopened := openSlot(t, backend, "game-1")
	want := map[string]any{
		"name":     "Ada",
		"level":    int64(3),
		"ratio":    0.75,
		"unlocked": true,
		"empty":    nil,
		"items":    []any{"sword", int64(2), 1.5},
		"stats":    map[string]any{"hp": int64(10), "tags": []any{}},
	}
	for key, expected := range want {
		if got := reopened.Read(key, "missing"); !reflect.DeepEqual(got, expected) {
			t.Fatalf("%s: got %#v, want %#v", key, got, expected)
		}
	}
	if !reflect.DeepEqual(reopened.Keys(), []string{"empty", "items", "level", "name", "ratio", "stats", "unlocked"}) {
		t.Fatalf("unexpected keys %v", reopened.Keys())
	}

	other := openSlot(t, backend, "game-2")
	if len(other.Keys()) != 0 {
		t.Fatal("expected saves to be scoped per game")
	}
}

func TestSlotReadFallbackAndCopy(t *testing.T) {
	slot := openSlot(t, NewMemoryBackend(), "g")
	if got := slot.Read("absent", 42); got != 42 {
		t.Fatalf("expected fallback, got %v", got)
	}
	if err := slot.Write("m", map[string]any{"a": int64(1)}); err != nil {
		t.Fatalf("write: %v", err)
	}
	got := slot.Read("m", nil).(map[string]any)
	got["a"] = int64(99)
	if again := slot.Read("m", nil).(map[string]any); again["a"] != int64(1) {
		t.Fatal("read must return a copy")
	}
}

func TestSlotRemove(t *testing.T) {
	backend := NewMemoryBackend()
	slot := openSlot(t, backend, "g")
	_ = slot.Write("a", "x")
	_ = slot.Flush(context.Background())

	if !slot.Remove("a") {
		t.Fatal("expected remove to report existing key")
	}
	if slot.Remove("a") {
		t.Fatal("expected second remove to report missing key")
	}
	if err := slot.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if keys := openSlot(t, backend, "g").Keys(); len(keys) != 0 {
		t.Fatalf("expected removal persisted, got %v", keys)
	}
}

func TestSlotWriteRejectsUnsupportedValues(t *testing.T) {
	slot := openSlot(t, NewMemoryBackend(), "g")
	deep := any("leaf")
	for i := 0; i <= MaxDepth+1; i++ {
		deep = []any{deep}
	}
	tests := map[string]any{
		"struct":   struct{}{},
		"nan":      math.NaN(),
		"inf":      math.Inf(1),
		"overflow": uint64(math.MaxUint64),
		"deep":     deep,
		"nested":   map[string]any{"f": func() {}},
	}
	for name, value := range tests {
		if err := slot.Write(name, value); err == nil {
			t.Fatalf("%s: expected write to fail", name)
		}
	}
	if err := slot.Write("", "x"); err == nil {
		t.Fatal("expected empty key to fail")
	}
	if slot.Dirty() {
		t.Fatal("failed writes must not dirty the slot")
	}
}

func TestOpenDetectsCorruption(t *testing.T) {
	backend := NewMemoryBackend()
	slot := openSlot(t, backend, "g")
	_ = slot.Write("score", int64(10))
	_ = slot.Write("name", "x")
	if err := slot.Flush(context.Background()); err != nil {
		t.Fatalf("flush: %v", err)
	}

	records := backend.records["g"]
	records[0].Data[len(records[0].Data)-1] ^= 0xff
	_, err := Open(context.Background(), backend, "g")
	domainErr, ok := apperrors.As(err)
	if !ok || domainErr.Code != apperrors.CodeSaveCorrupted {
		t.Fatalf("expected save corrupted, got %v", err)
	}
	if domainErr.Meta("key") != records[0].Key {
		t.Fatalf("expected corrupted key %s, got %s", records[0].Key, domainErr.Meta("key"))
	}
}

func TestOpenDetectsSwappedRecords(t *testing.T) {
	backend := NewMemoryBackend()
	slot := openSlot(t, backend, "g")
	_ = slot.Write("a", int64(1))
	_ = slot.Write("b", int64(2))
	_ = slot.Flush(context.Background())

	records := backend.records["g"]
	records[0].Key, records[1].Key = records[1].Key, records[0].Key
	if _, err := Open(context.Background(), backend, "g"); apperrors.CodeOf(err) != apperrors.CodeSaveCorrupted {
		t.Fatalf("expected swapped records to be detected, got %v", err)
	}
}

type failingBackend struct {
	loadErr, saveErr error
}

func (f failingBackend) LoadRecords(context.Context, string) ([]Record, error) {
	return nil, f.loadErr
}

func (f failingBackend) SaveRecords(context.Context, string, []Record) error {
	return f.saveErr
}

func TestBackendFailures(t *testing.T) {
	loadErr := errors.New("disk gone")
	if _, err := Open(context.Background(), failingBackend{loadErr: loadErr}, "g"); !errors.Is(err, loadErr) {
		t.Fatalf("expected load error, got %v", err)
	}

	saveErr := errors.New("read only")
	slot := openSlot(t, failingBackend{saveErr: saveErr}, "g")
	_ = slot.Write("a", "b")
	if err := slot.Flush(context.Background()); !errors.Is(err, saveErr) {
		t.Fatalf("expected save error, got %v", err)
	}
	if !slot.Dirty() {
		t.Fatal("failed flush must keep the slot dirty")
	}

	if _, err := Open(context.Background(), nil, "g"); err == nil {
		t.Fatal("expected nil backend error")
	}
	if _, err := Open(context.Background(), NewMemoryBackend(), " "); err == nil {
		t.Fatal("expected empty game id error")
	}
}

func TestFlushWithoutChangesSkipsBackend(t *testing.T) {
	slot := openSlot(t, failingBackend{saveErr: errors.New("should not be called")}, "g")
	if err := slot.Flush(context.Background()); err != nil {
		t.Fatalf("expected clean flush to be a no-op, got %v", err)
	}
}

func TestEncodingIsDeterministic(t *testing.T) {
	value := map[string]any{"b": int64(1), "a": []any{"x", 2.5}, "c": map[string]any{"z": true, "y": nil}}
	first, err := encodeValue(value)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, _ := encodeValue(value)
		if string(again) != string(first) {
			t.Fatal("expected identical encodings")
		}
	}
}
