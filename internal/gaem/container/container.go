// Package container reads and writes .gaem package files.
//
// Layout, little-endian:
//
//	offset 0   magic        4 bytes  "GAEM"
//	offset 4   version      u16      format version (1)
//	offset 6   header_size  u32      manifest payload length
//	offset 10  manifest     JSON     header_size bytes
//
// Bytes after the manifest payload are ignored.
package container

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/louisbranch/gaem/internal/gaem/manifest"
	apperrors "github.com/louisbranch/gaem/internal/platform/errors"
)

const (
	// Magic identifies a package file.
	Magic = "GAEM"
	// Version is the single supported format version.
	Version uint16 = 1
	// HeaderSize is the length of the fixed binary prefix.
	HeaderSize = 10
	// Extension marks discoverable package files.
	Extension = ".gaem"
	// MaxManifestSize caps the declared payload length.
	MaxManifestSize = 16 << 20
)

// Encode serializes m into the package layout.
func Encode(m manifest.Manifest) ([]byte, error) {
	payload, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	if len(payload) > MaxManifestSize {
		return nil, fmt.Errorf("manifest payload %d bytes exceeds limit %d", len(payload), MaxManifestSize)
	}

	buf := make([]byte, HeaderSize, HeaderSize+len(payload))
	copy(buf[0:4], Magic)
	binary.LittleEndian.PutUint16(buf[4:6], Version)
	binary.LittleEndian.PutUint32(buf[6:10], uint32(len(payload)))
	return append(buf, payload...), nil
}

// Decode parses a package file held in memory. It returns either a complete,
// validated manifest or a coded decode error.
func Decode(data []byte) (manifest.Manifest, error) {
	size, err := parseHeader(data)
	if err != nil {
		return manifest.Manifest{}, err
	}
	payload := data[HeaderSize:]
	if uint64(len(payload)) < uint64(size) {
		return manifest.Manifest{}, truncated(uint64(size), uint64(len(payload)))
	}
	return decodePayload(payload[:size])
}

// Read decodes a package from r, reading only the header and the declared
// payload.
func Read(r io.Reader) (manifest.Manifest, error) {
	header := make([]byte, HeaderSize)
	n, err := io.ReadFull(r, header)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return manifest.Manifest{}, fmt.Errorf("read header: %w", err)
	}
	size, err := parseHeader(header[:n])
	if err != nil {
		return manifest.Manifest{}, err
	}

	payload := make([]byte, size)
	n, err = io.ReadFull(r, payload)
	if err == io.ErrUnexpectedEOF || err == io.EOF {
		return manifest.Manifest{}, truncated(uint64(size), uint64(n))
	}
	if err != nil {
		return manifest.Manifest{}, fmt.Errorf("read manifest payload: %w", err)
	}
	return decodePayload(payload)
}

// ReadFile decodes the package at path.
func ReadFile(path string) (manifest.Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return manifest.Manifest{}, fmt.Errorf("open package: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// WriteFile encodes m to path with the given permissions.
func WriteFile(path string, m manifest.Manifest, perm os.FileMode) error {
	data, err := Encode(m)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, perm); err != nil {
		return fmt.Errorf("write package: %w", err)
	}
	return nil
}

func parseHeader(header []byte) (uint32, error) {
	if len(header) < HeaderSize {
		if bytes.HasPrefix([]byte(Magic), header[:min(len(header), len(Magic))]) {
			return 0, apperrors.WithMetadata(apperrors.CodeTruncatedFile,
				fmt.Sprintf("package header truncated at %d bytes", len(header)),
				map[string]string{"expected": fmt.Sprint(HeaderSize), "actual": fmt.Sprint(len(header))})
		}
		return 0, apperrors.New(apperrors.CodeInvalidFormat, "package magic does not match")
	}
	if string(header[0:4]) != Magic {
		return 0, apperrors.New(apperrors.CodeInvalidFormat, "package magic does not match")
	}
	if version := binary.LittleEndian.Uint16(header[4:6]); version != Version {
		return 0, apperrors.WithMetadata(apperrors.CodeUnsupportedVersion,
			fmt.Sprintf("unsupported package version %d", version),
			map[string]string{"version": fmt.Sprint(version)})
	}
	size := binary.LittleEndian.Uint32(header[6:10])
	if size > MaxManifestSize {
		return 0, apperrors.New(apperrors.CodeMalformedManifest,
			fmt.Sprintf("manifest payload %d bytes exceeds limit %d", size, MaxManifestSize))
	}
	return size, nil
}

func decodePayload(payload []byte) (manifest.Manifest, error) {
	var m manifest.Manifest
	if err := json.Unmarshal(payload, &m); err != nil {
		return manifest.Manifest{}, apperrors.Wrap(apperrors.CodeMalformedManifest, "parse manifest", err)
	}
	if err := m.Validate(); err != nil {
		return manifest.Manifest{}, apperrors.Wrap(apperrors.CodeMalformedManifest, "invalid manifest", err)
	}
	return m, nil
}

func truncated(expected, actual uint64) error {
	return apperrors.WithMetadata(apperrors.CodeTruncatedFile,
		fmt.Sprintf("package declares %d manifest bytes, found %d", expected, actual),
		map[string]string{"expected": fmt.Sprint(expected), "actual": fmt.Sprint(actual)})
}
