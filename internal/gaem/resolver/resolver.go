// Package resolver locates a package's asset folder and discovers package
// files in a games directory.
//
// Folder names come from Sanitize(title). The mapping is many-to-one:
// "Space Shooter" and "Space-Shooter!" differ but "Space Shooter" and
// "Space_Shooter" share a folder. Resolve does not disambiguate; Collisions
// reports titles that would share a folder so tooling can warn about them.
package resolver

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/louisbranch/gaem/internal/gaem/container"
	"github.com/louisbranch/gaem/internal/gaem/manifest"
	apperrors "github.com/louisbranch/gaem/internal/platform/errors"
)

// Sanitize maps a title to a folder name. ASCII letters, digits, '-' and '_'
// are kept; every other character, spaces included, becomes '_'.
func Sanitize(title string) string {
	var b strings.Builder
	b.Grow(len(title))
	for _, r := range title {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// Resolve returns gamesDir joined with the sanitized title of m. It fails with
// GAME_FOLDER_NOT_FOUND unless the result is an existing directory.
func Resolve(gamesDir string, m manifest.Manifest) (string, error) {
	folder := Sanitize(m.Title)
	path := filepath.Join(gamesDir, folder)

	info, err := os.Stat(path)
	if err != nil {
		return "", apperrors.WrapWithMetadata(apperrors.CodeGameFolderNotFound,
			fmt.Sprintf("game folder %s not found", path),
			map[string]string{"folder": folder}, err)
	}
	if !info.IsDir() {
		return "", apperrors.WithMetadata(apperrors.CodeGameFolderNotFound,
			fmt.Sprintf("game folder %s is not a directory", path),
			map[string]string{"folder": folder})
	}
	return path, nil
}

// Discover lists package files directly under gamesDir, sorted by name. A
// missing directory yields an empty list. Contents are not validated.
func Discover(gamesDir string) ([]string, error) {
	entries, err := os.ReadDir(gamesDir)
	if errors.Is(err, fs.ErrNotExist) {
		return []string{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read games dir: %w", err)
	}

	paths := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != container.Extension {
			continue
		}
		paths = append(paths, filepath.Join(gamesDir, entry.Name()))
	}
	sort.Strings(paths)
	return paths, nil
}

// Collisions groups distinct titles by the folder they sanitize to and
// returns only the folders claimed by more than one title.
func Collisions(titles []string) map[string][]string {
	byFolder := make(map[string][]string)
	seen := make(map[string]struct{}, len(titles))
	for _, title := range titles {
		if _, dup := seen[title]; dup {
			continue
		}
		seen[title] = struct{}{}
		folder := Sanitize(title)
		byFolder[folder] = append(byFolder[folder], title)
	}
	for folder, group := range byFolder {
		if len(group) < 2 {
			delete(byFolder, folder)
			continue
		}
		sort.Strings(group)
	}
	return byFolder
}
