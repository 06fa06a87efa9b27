// Package cache stores model-judge verdicts on disk so repeated runs over the
// same samples do not re-pay the model call for identical inputs.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
)

// Verdict is the cached slice of a judge decision: the model's Top-1 and
// Top-3 calls only. These are a pure function of the cache key; the overall
// hit and per-scenario flags depend on the full grouping and must be
// recomputed on every call.
type Verdict struct {
	Top1Hit bool `json:"top1_hit"`
	Top3Hit bool `json:"top3_hit"`
}

// Cache is a directory of JSON verdict files keyed by content hash.
// A nil Cache or empty dir disables it.
type Cache struct {
	dir string
	mu  sync.Mutex
}

// New creates a cache backed by dir.
func New(dir string) *Cache {
	return &Cache{dir: dir}
}

// Key derives a cache key from everything that determines a verdict: the
// judge model, the gold answer, and the ranked items shown to the model.
func Key(model, standardAnswer string, items []string) string {
	h := sha256.New()
	writeField(h, model)
	writeField(h, standardAnswer)
	for _, item := range items {
		writeField(h, item)
	}
	return hex.EncodeToString(h.Sum(nil))
}

func writeField(w io.Writer, s string) {
	w.Write([]byte(s)) //nolint:errcheck
	w.Write([]byte{0}) //nolint:errcheck
}

// Get retrieves a cached verdict. A missing or unreadable entry is a miss.
func (c *Cache) Get(key string) (Verdict, bool) {
	if c == nil || c.dir == "" {
		return Verdict{}, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.cachePath(key))
	if err != nil {
		return Verdict{}, false
	}
	var verdict Verdict
	if err := json.Unmarshal(data, &verdict); err != nil {
		return Verdict{}, false
	}
	return verdict, true
}

// Put stores a verdict under key, creating the cache directory on first use.
func (c *Cache) Put(key string, verdict Verdict) error {
	if c == nil || c.dir == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err := os.MkdirAll(c.dir, 0755); err != nil {
		return fmt.Errorf("creating cache directory: %w", err)
	}
	data, err := json.Marshal(verdict)
	if err != nil {
		return fmt.Errorf("marshaling verdict: %w", err)
	}
	if err := os.WriteFile(c.cachePath(key), data, 0644); err != nil {
		return fmt.Errorf("writing cache file: %w", err)
	}
	return nil
}

// Clear removes all cached verdicts. It refuses to delete a directory that
// holds anything other than .json cache files.
func (c *Cache) Clear() error {
	if c == nil || c.dir == "" {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, err := os.Stat(c.dir); os.IsNotExist(err) {
		return nil
	}
	entries, err := os.ReadDir(c.dir)
	if err != nil {
		return fmt.Errorf("reading cache directory: %w", err)
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			return fmt.Errorf("cache directory contains non-cache entries - refusing to delete")
		}
	}
	return os.RemoveAll(c.dir)
}

func (c *Cache) cachePath(key string) string {
	return filepath.Join(c.dir, key+".json")
}
