package fetcher

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
)

// Cache is a directory-backed artifact cache. Writers always go through a
// temp file in the same directory and an atomic rename, so concurrent
// readers never observe a partially written file.
type Cache struct {
	root string
}

func NewCache(root string) *Cache {
	return &Cache{root: root}
}

var unsafeCacheChars = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

func safeCacheName(key string) string {
	return unsafeCacheChars.ReplaceAllString(key, "_")
}

// Path returns the cached file's path if present.
func (c *Cache) Path(key string) (string, bool) {
	p := filepath.Join(c.root, safeCacheName(key))
	if _, err := os.Stat(p); err != nil {
		return "", false
	}
	return p, true
}

// OpenTemp creates a fresh temp file in the cache directory for key.
func (c *Cache) OpenTemp(key string) (*os.File, error) {
	if err := os.MkdirAll(c.root, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir %s: %w", c.root, err)
	}
	return os.CreateTemp(c.root, safeCacheName(key)+".part-*")
}

// Commit atomically installs tempPath as the cached file for key.
func (c *Cache) Commit(key, tempPath string) (string, error) {
	final := filepath.Join(c.root, safeCacheName(key))
	if err := os.Rename(tempPath, final); err != nil {
		return "", fmt.Errorf("install cache entry %s: %w", key, err)
	}
	return final, nil
}

// Abort removes a temp file that will not be committed.
func (c *Cache) Abort(tempPath string) error {
	return os.Remove(tempPath)
}
