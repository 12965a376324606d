// Package assets is an in-memory asset catalog that ingests verified package
// files for the engine's subsystems.
package assets

import (
	"context"
	"fmt"
	"log"
	"os"
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/louisbranch/gaem/internal/gaem/loader"
	"github.com/louisbranch/gaem/internal/gaem/manifest"
	apperrors "github.com/louisbranch/gaem/internal/platform/errors"
)

// DefaultMaxAssetSize caps a single ingested file.
const DefaultMaxAssetSize = 64 << 20

// Entry is one ingested asset.
type Entry struct {
	Name string
	Type manifest.AssetType
	Path string
	Data []byte
}

// Catalog holds ingested assets by manifest-relative name.
type Catalog struct {
	mu      sync.RWMutex
	entries map[string]*Entry
	maxSize int64
	logger  *log.Logger
}

var (
	_ loader.Ingestor  = (*Catalog)(nil)
	_ loader.Discarder = (*Catalog)(nil)
)

// NewCatalog returns an empty catalog. A nil logger writes to stderr.
func NewCatalog(logger *log.Logger) *Catalog {
	if logger == nil {
		logger = log.New(os.Stderr, "", 0)
	}
	return &Catalog{
		entries: make(map[string]*Entry),
		maxSize: DefaultMaxAssetSize,
		logger:  logger,
	}
}

// Ingest reads a verified asset into the catalog and returns its entry as the
// handle.
func (c *Catalog) Ingest(ctx context.Context, req loader.IngestRequest) (loader.Handle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	info, err := os.Stat(req.Path)
	if err != nil {
		return nil, ingestError(req, err)
	}
	if info.Size() > c.maxSize {
		return nil, ingestError(req, fmt.Errorf("%d bytes exceeds limit %d", info.Size(), c.maxSize))
	}
	data, err := os.ReadFile(req.Path)
	if err != nil {
		return nil, ingestError(req, err)
	}
	if inferred, ok := manifest.InferAssetType(req.Name); ok && inferred != req.Type {
		c.logger.Printf("asset %s declared as %s but looks like %s", req.Name, req.Type, inferred)
	}

	entry := &Entry{Name: req.Name, Type: req.Type, Path: req.Path, Data: data}
	c.mu.Lock()
	c.entries[req.Name] = entry
	c.mu.Unlock()
	return entry, nil
}

// Discard removes previously ingested handles. Unknown handles are ignored.
func (c *Catalog) Discard(_ context.Context, handles []loader.Handle) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, h := range handles {
		entry, ok := h.(*Entry)
		if !ok {
			continue
		}
		if current, ok := c.entries[entry.Name]; ok && current == entry {
			delete(c.entries, entry.Name)
		}
	}
	return nil
}

// Len returns the number of ingested assets.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Get returns the asset with the exact manifest-relative name.
func (c *Catalog) Get(name string) (*Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	entry, ok := c.entries[name]
	return entry, ok
}

// Find resolves a script-facing name to an asset of type t. The name may be
// the manifest path, the path without extension, or the bare file stem.
func (c *Catalog) Find(t manifest.AssetType, name string) (*Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if entry, ok := c.entries[name]; ok && entry.Type == t {
		return entry, true
	}
	names := make([]string, 0, len(c.entries))
	for n := range c.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		entry := c.entries[n]
		if entry.Type != t {
			continue
		}
		stem := strings.TrimSuffix(n, path.Ext(n))
		if stem == name || path.Base(stem) == name {
			return entry, true
		}
	}
	return nil, false
}

// Has reports whether Find would succeed.
func (c *Catalog) Has(t manifest.AssetType, name string) bool {
	_, ok := c.Find(t, name)
	return ok
}

// Names lists ingested asset names in order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	names := make([]string, 0, len(c.entries))
	for n := range c.entries {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func ingestError(req loader.IngestRequest, cause error) error {
	return apperrors.WrapWithMetadata(apperrors.CodeIngestFailed,
		fmt.Sprintf("ingest %s: %v", req.Name, cause),
		map[string]string{"path": req.Name}, cause)
}
