package resolver

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/louisbranch/gaem/internal/gaem/manifest"
	apperrors "github.com/louisbranch/gaem/internal/platform/errors"
)

func TestSanitize(t *testing.T) {
	tests := map[string]string{
		"Space Shooter":   "Space_Shooter",
		"my-game_2":       "my-game_2",
		"Héllo, World!":   "H_llo__World_",
		"../../etc":       "______etc",
		"":                "",
		"tab\there":       "tab_here",
		"Ünïcödé":         "_n_c_d_",
		"already_clean__": "already_clean__",
	}
	for in, want := range tests {
		if got := Sanitize(in); got != want {
			t.Fatalf("Sanitize(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestSanitizeIdempotent(t *testing.T) {
	inputs := []string{"Space Shooter", "a/b\\c", "日本語のゲーム", "x..y", "  ", "Mixed-Case_123 !?"}
	for _, in := range inputs {
		once := Sanitize(in)
		if twice := Sanitize(once); twice != once {
			t.Fatalf("Sanitize not idempotent for %q: %q then %q", in, once, twice)
		}
		if Sanitize(in) != once {
			t.Fatalf("Sanitize not deterministic for %q", in)
		}
	}
}

func TestResolve(t *testing.T) {
	gamesDir := t.TempDir()
	if err := os.Mkdir(filepath.Join(gamesDir, "Space_Shooter"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(gamesDir, "Flat_File"), []byte("x"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	got, err := Resolve(gamesDir, manifest.Manifest{Title: "Space Shooter"})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != filepath.Join(gamesDir, "Space_Shooter") {
		t.Fatalf("unexpected folder %s", got)
	}

	for _, title := range []string{"Missing Game", "Flat File"} {
		_, err := Resolve(gamesDir, manifest.Manifest{Title: title})
		domainErr, ok := apperrors.As(err)
		if !ok || domainErr.Code != apperrors.CodeGameFolderNotFound {
			t.Fatalf("%s: expected folder not found, got %v", title, err)
		}
		if domainErr.Meta("folder") != Sanitize(title) {
			t.Fatalf("%s: expected folder metadata, got %q", title, domainErr.Meta("folder"))
		}
	}
}

func TestDiscover(t *testing.T) {
	gamesDir := t.TempDir()
	for _, name := range []string{"b.gaem", "a.gaem", "notes.txt", "c.gaem.bak"} {
		if err := os.WriteFile(filepath.Join(gamesDir, name), nil, 0o644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
	if err := os.Mkdir(filepath.Join(gamesDir, "dir.gaem"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.MkdirAll(filepath.Join(gamesDir, "nested"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(gamesDir, "nested", "deep.gaem"), nil, 0o644); err != nil {
		t.Fatalf("write nested: %v", err)
	}

	got, err := Discover(gamesDir)
	if err != nil {
		t.Fatalf("discover: %v", err)
	}
	want := []string{filepath.Join(gamesDir, "a.gaem"), filepath.Join(gamesDir, "b.gaem")}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Discover = %v, want %v", got, want)
	}
}

func TestDiscoverMissingDir(t *testing.T) {
	got, err := Discover(filepath.Join(t.TempDir(), "absent"))
	if err != nil {
		t.Fatalf("discover missing dir: %v", err)
	}
	if got == nil || len(got) != 0 {
		t.Fatalf("expected empty non-nil list, got %v", got)
	}
}

func TestCollisions(t *testing.T) {
	got := Collisions([]string{"Space Shooter", "Space_Shooter", "Space!Shooter", "Pong", "Pong"})
	want := map[string][]string{
		"Space_Shooter": {"Space Shooter", "Space!Shooter", "Space_Shooter"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Collisions = %v, want %v", got, want)
	}
}
