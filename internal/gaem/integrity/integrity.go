// Package integrity checks package assets against their declared digests and
// gates script execution behind the manifest's secret-key hash.
package integrity

import (
	"bytes"
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/louisbranch/gaem/internal/gaem/manifest"
	apperrors "github.com/louisbranch/gaem/internal/platform/errors"
)

// DefaultWorkers bounds concurrent asset verification when the caller passes
// a non-positive worker count.
const DefaultWorkers = 4

const redactedLen = 8

// Result records what was found on disk for one verified asset.
type Result struct {
	Asset  manifest.AssetDescriptor
	Path   string
	Digest string
	Size   int64
}

// SizeMatches reports whether the file size equals the declared size.
func (r Result) SizeMatches() bool {
	return r.Size >= 0 && uint64(r.Size) == r.Asset.Size
}

// Digest streams r through SHA-256 and returns the lowercase hex digest.
func Digest(r io.Reader) (string, int64, error) {
	hasher := sha256.New()
	n, err := io.Copy(hasher, r)
	if err != nil {
		return "", n, err
	}
	return hex.EncodeToString(hasher.Sum(nil)), n, nil
}

// DigestFile hashes the file at path.
func DigestFile(path string) (string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", 0, err
	}
	defer file.Close()
	return Digest(file)
}

// DigestMatches compares two hex digests exactly, byte for byte, in constant
// time. Callers wanting case-insensitive matching normalize both sides first.
func DigestMatches(actual, expected string) bool {
	return subtle.ConstantTimeCompare([]byte(actual), []byte(expected)) == 1
}

// NormalizeDigest lowercases and trims a hex digest.
func NormalizeDigest(digest string) string {
	return strings.ToLower(strings.TrimSpace(digest))
}

// Redact shortens a digest for user-facing output.
func Redact(digest string) string {
	if len(digest) <= redactedLen {
		return digest
	}
	return digest[:redactedLen] + "…"
}

// AssetPath joins folder with a manifest-relative asset path.
func AssetPath(folder, rel string) (string, error) {
	if err := manifest.ValidateRelativePath(rel); err != nil {
		return "", err
	}
	return filepath.Join(folder, filepath.FromSlash(rel)), nil
}

// VerifyAsset hashes the asset's file under folder and compares the result
// with the declared checksum. A missing file fails the same way a mismatch
// does.
func VerifyAsset(folder string, asset manifest.AssetDescriptor) (Result, error) {
	path, err := AssetPath(folder, asset.Path)
	if err != nil {
		return Result{}, integrityError(asset, "path", "", err)
	}
	result := Result{Asset: asset, Path: path}

	digest, size, err := DigestFile(path)
	if err != nil {
		reason := "unreadable"
		if errors.Is(err, fs.ErrNotExist) {
			reason = "missing"
		}
		return result, integrityError(asset, reason, "", err)
	}
	result.Digest = digest
	result.Size = size

	if !DigestMatches(digest, asset.Checksum) {
		return result, integrityError(asset, "mismatch", digest, nil)
	}
	return result, nil
}

// VerifyContent compares data already read into memory with the asset's
// declared checksum.
func VerifyContent(asset manifest.AssetDescriptor, data []byte) error {
	digest, _, err := Digest(bytes.NewReader(data))
	if err != nil {
		return integrityError(asset, "unreadable", "", err)
	}
	if !DigestMatches(digest, asset.Checksum) {
		return integrityError(asset, "mismatch", digest, nil)
	}
	return nil
}

// VerifyAssets verifies every asset with at most workers concurrent hashes.
// On failure it returns the error of the earliest failing asset in manifest
// order, and no results.
func VerifyAssets(ctx context.Context, folder string, assets []manifest.AssetDescriptor, workers int) ([]Result, error) {
	if workers <= 0 {
		workers = DefaultWorkers
	}
	results := make([]Result, len(assets))
	failures := make([]error, len(assets))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i, asset := range assets {
		i, asset := i, asset
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			result, err := VerifyAsset(folder, asset)
			if err != nil {
				failures[i] = err
				return err
			}
			results[i] = result
			return nil
		})
	}
	waitErr := g.Wait()

	for _, err := range failures {
		if err != nil {
			return nil, err
		}
	}
	if waitErr != nil {
		return nil, waitErr
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

// Authenticate checks secret against a stored secret-key hash. An empty hash
// never authenticates; open packages are admitted by the caller's policy.
func Authenticate(secretKeyHash, secret string) error {
	if secretKeyHash == "" {
		return apperrors.New(apperrors.CodeAuthentication, "package declares no secret key")
	}
	if !DigestMatches(manifest.HashSecret(secret), secretKeyHash) {
		return apperrors.New(apperrors.CodeAuthentication, "secret key rejected")
	}
	return nil
}

func integrityError(asset manifest.AssetDescriptor, reason, actual string, cause error) error {
	metadata := map[string]string{
		"path":   asset.Path,
		"reason": reason,
	}
	if actual != "" {
		metadata["expected"] = Redact(asset.Checksum)
		metadata["actual"] = Redact(actual)
	}
	message := fmt.Sprintf("asset %s: %s", asset.Path, reason)
	return apperrors.WrapWithMetadata(apperrors.CodeAssetIntegrity, message, metadata, cause)
}
