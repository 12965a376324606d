// Package manifest defines the metadata carried at the head of every game
// package: identity, authorship, the secret-key gate, the script entry point,
// and the list of assets the package folder must provide.
//
// A Manifest is pure data. It never holds a plaintext secret, only its
// SHA-256 digest, and an empty digest marks a package with no authentication
// gate. That state is reachable only through ClearSecretKey, so an open
// package is always a deliberate choice of its author.
package manifest

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// EngineVersion is the engine release new manifests target by default.
const EngineVersion = "0.1.0"

const (
	defaultVersion    = "1.0.0"
	defaultEntryPoint = "main.lua"
)

// Manifest describes one game package.
type Manifest struct {
	ID             uuid.UUID         `json:"id"`
	Title          string            `json:"title"`
	Author         string            `json:"author"`
	Version        string            `json:"version"`
	Description    string            `json:"description"`
	SecretKeyHash  string            `json:"secret_key_hash"`
	EntryPoint     string            `json:"entry_point"`
	RequiredAssets []AssetDescriptor `json:"required_assets"`
	EngineVersion  string            `json:"engine_version"`
}

// AssetDescriptor declares one file the package folder must contain.
// Checksum and Size are advisory until the file is verified.
type AssetDescriptor struct {
	Path      string    `json:"path"`
	Checksum  string    `json:"checksum"`
	Size      uint64    `json:"size"`
	AssetType AssetType `json:"asset_type"`
}

// New returns a manifest with a fresh identity and default fields.
func New(title, author string) Manifest {
	return Manifest{
		ID:            uuid.New(),
		Title:         title,
		Author:        author,
		Version:       defaultVersion,
		EntryPoint:    defaultEntryPoint,
		EngineVersion: EngineVersion,
	}
}

// HashSecret returns the lowercase hex SHA-256 digest of secret.
func HashSecret(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// SetSecretKey stores the digest of secret as the package's key gate.
func (m *Manifest) SetSecretKey(secret string) error {
	if secret == "" {
		return errors.New("secret key is required; use ClearSecretKey for an open package")
	}
	m.SecretKeyHash = HashSecret(secret)
	return nil
}

// ClearSecretKey removes the key gate, making the package open.
func (m *Manifest) ClearSecretKey() {
	m.SecretKeyHash = ""
}

// Open reports whether the package declares no key gate.
func (m Manifest) Open() bool {
	return m.SecretKeyHash == ""
}

// VerifySecretKey reports whether secret hashes to the stored digest. It
// always fails for open packages.
func (m Manifest) VerifySecretKey(secret string) bool {
	if m.Open() {
		return false
	}
	computed := HashSecret(secret)
	return subtle.ConstantTimeCompare([]byte(computed), []byte(m.SecretKeyHash)) == 1
}

// AddAsset appends an asset descriptor.
func (m *Manifest) AddAsset(asset AssetDescriptor) {
	m.RequiredAssets = append(m.RequiredAssets, asset)
}

// Validate checks the structural invariants every decoded manifest must hold.
func (m Manifest) Validate() error {
	if strings.TrimSpace(m.Title) == "" {
		return errors.New("title is required")
	}
	if err := ValidateRelativePath(m.EntryPoint); err != nil {
		return fmt.Errorf("entry point: %w", err)
	}
	if m.SecretKeyHash != "" && !isHexDigest(m.SecretKeyHash) {
		return errors.New("secret key hash is not a sha-256 hex digest")
	}
	seen := make(map[string]struct{}, len(m.RequiredAssets))
	for i, asset := range m.RequiredAssets {
		if err := ValidateRelativePath(asset.Path); err != nil {
			return fmt.Errorf("asset %d: %w", i, err)
		}
		if !asset.AssetType.Valid() {
			return fmt.Errorf("asset %s: unknown asset type", asset.Path)
		}
		if strings.TrimSpace(asset.Checksum) == "" {
			return fmt.Errorf("asset %s: checksum is required", asset.Path)
		}
		key := path.Clean(asset.Path)
		if _, dup := seen[key]; dup {
			return fmt.Errorf("asset %s: declared more than once", asset.Path)
		}
		seen[key] = struct{}{}
		if key == path.Clean(m.EntryPoint) && asset.AssetType != AssetScript {
			return fmt.Errorf("asset %s: entry point must be declared as %s", asset.Path, AssetScript)
		}
	}
	return nil
}

// EntryAsset returns the descriptor declaring the entry-point script, if the
// manifest lists it.
func (m Manifest) EntryAsset() (AssetDescriptor, bool) {
	entry := path.Clean(m.EntryPoint)
	for _, asset := range m.RequiredAssets {
		if path.Clean(asset.Path) == entry {
			return asset, true
		}
	}
	return AssetDescriptor{}, false
}

// ValidateRelativePath rejects empty, absolute, and folder-escaping paths.
// Paths use forward slashes regardless of host OS.
func ValidateRelativePath(p string) error {
	if strings.TrimSpace(p) == "" {
		return errors.New("path is required")
	}
	if strings.Contains(p, "\\") {
		return fmt.Errorf("path %q must use forward slashes", p)
	}
	if path.IsAbs(p) || !filepath.IsLocal(filepath.FromSlash(p)) {
		return fmt.Errorf("path %q escapes the package folder", p)
	}
	return nil
}

func isHexDigest(s string) bool {
	if len(s) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}
