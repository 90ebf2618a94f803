package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	mapset "github.com/deckarep/golang-set/v2"

	"github.com/amishk599/applyhook/internal/model"
)

var _ model.ApplyCache = (*FileCache)(nil)

// FileCache keeps forwarded application IDs as a JSON array in a single file.
// All read-modify-write sequences run under one mutex so the poll and cleanup
// jobs cannot lose each other's updates.
type FileCache struct {
	mu     sync.Mutex
	path   string
	ids    []string // stored order
	set    mapset.Set[string]
	loaded bool
	logger *slog.Logger
}

// NewFileCache returns a cache backed by the JSON file at path. Nothing is
// read until the first call that needs the contents.
func NewFileCache(path string, logger *slog.Logger) *FileCache {
	return &FileCache{
		path:   path,
		set:    mapset.NewThreadUnsafeSet[string](),
		logger: logger,
	}
}

// Load re-reads the file. A missing or unreadable file yields an empty cache.
func (c *FileCache) Load(_ context.Context) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.reload()
	return append([]string(nil), c.ids...), nil
}

// Contains reports whether id was already forwarded.
func (c *FileCache) Contains(_ context.Context, id string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ensureLoaded()
	return c.set.Contains(id), nil
}

// Extend appends the IDs not yet present, in order, and flushes the file.
func (c *FileCache) Extend(_ context.Context, ids []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ensureLoaded()

	added := 0
	for _, id := range ids {
		if c.set.Add(id) {
			c.ids = append(c.ids, id)
			added++
		}
	}
	if added == 0 {
		return nil
	}

	if err := c.flush(c.ids); err != nil {
		return fmt.Errorf("extending cache with %d ids: %w", added, err)
	}
	return nil
}

// Cleanup reads the file and, if it holds more than maxSize IDs, rewrites it
// with only the first keepSize of them.
func (c *FileCache) Cleanup(_ context.Context, maxSize, keepSize int) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids, err := c.read()
	if err != nil {
		return false, fmt.Errorf("cleanup: %w", err)
	}
	c.replace(ids)

	if len(ids) <= maxSize {
		return false, nil
	}

	if keepSize > len(ids) {
		keepSize = len(ids)
	}
	kept := append([]string(nil), ids[:keepSize]...)
	if err := c.flush(kept); err != nil {
		return false, fmt.Errorf("cleanup: %w", err)
	}
	c.replace(kept)
	return true, nil
}

// List returns the cached IDs in stored order. The file format carries no
// timestamps, so FirstSeen is always zero.
func (c *FileCache) List(_ context.Context) ([]model.CacheEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.reload()
	entries := make([]model.CacheEntry, len(c.ids))
	for i, id := range c.ids {
		entries[i] = model.CacheEntry{ID: id}
	}
	return entries, nil
}

func (c *FileCache) ensureLoaded() {
	if !c.loaded {
		c.reload()
	}
}

// reload replaces the in-memory copy with the file contents, failing open.
func (c *FileCache) reload() {
	ids, err := c.read()
	if err != nil {
		c.logger.Warn("applies cache unreadable, starting empty", "path", c.path, "error", err)
		ids = nil
	}
	c.replace(ids)
}

func (c *FileCache) replace(ids []string) {
	c.ids = ids
	c.set = mapset.NewThreadUnsafeSet[string](ids...)
	c.loaded = true
}

// read returns the de-duplicated IDs on disk; a missing file is empty.
func (c *FileCache) read() ([]string, error) {
	data, err := os.ReadFile(c.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", c.path, err)
	}
	ids, err := decodeIDs(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", c.path, err)
	}
	return dedupe(ids), nil
}

// flush writes ids atomically via a temp file in the same directory.
func (c *FileCache) flush(ids []string) error {
	if ids == nil {
		ids = []string{}
	}
	data, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encoding cache: %w", err)
	}

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating cache dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".applies-*.json")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), c.path); err != nil {
		return fmt.Errorf("replacing %s: %w", c.path, err)
	}
	return nil
}
