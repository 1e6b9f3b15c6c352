package walker

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/cespare/xxhash/v2"
)

const cacheName = ".sensit_cache.json"

// Cache maps relative paths to content hashes from the previous run so
// unchanged files can be skipped. It is safe for concurrent use.
type Cache struct {
	mu      sync.Mutex
	path    string
	Entries map[string]string `json:"entries"`
}

// cachePath prefers .git so the file never gets committed by accident.
func cachePath(root string) string {
	gitDir := filepath.Join(root, ".git")
	if st, err := os.Stat(gitDir); err == nil && st.IsDir() {
		return filepath.Join(gitDir, "sensit_cache.json")
	}
	return filepath.Join(root, cacheName)
}

// LoadCache reads the previous run's hashes. A missing or corrupt file
// yields an empty cache, never an error.
func LoadCache(root string) *Cache {
	c := &Cache{path: cachePath(root), Entries: map[string]string{}}
	b, err := os.ReadFile(c.path)
	if err != nil {
		return c
	}
	var disk struct {
		Entries map[string]string `json:"entries"`
	}
	if json.Unmarshal(b, &disk) == nil && disk.Entries != nil {
		c.Entries = disk.Entries
	}
	return c
}

// Changed reports whether the file's content differs from the recorded
// hash, updating the entry either way.
func (c *Cache) Changed(rel string, data []byte) bool {
	sum := fmt.Sprintf("%016x", xxhash.Sum64(data))
	c.mu.Lock()
	defer c.mu.Unlock()
	prev, ok := c.Entries[rel]
	c.Entries[rel] = sum
	return !ok || prev != sum
}

// Save writes the updated hashes back to disk.
func (c *Cache) Save() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	b, err := json.MarshalIndent(struct {
		Entries map[string]string `json:"entries"`
	}{c.Entries}, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(c.path, b, 0o644)
}
