// Package cache provides the bounded parse cache used by watch mode. Entries
// are keyed by file path and validated by content hash, so an unchanged file
// skips re-parsing within a watch session. Nothing here persists across
// invocations: every fresh run re-derives all artifacts from scratch.
package cache

import (
	"crypto/sha256"
	"encoding/hex"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Hash computes the SHA-256 content hash used to validate cache entries.
func Hash(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}

type entry[V any] struct {
	hash  string
	value V
}

// Cache is a bounded, hash-validated cache of per-file values.
type Cache[V any] struct {
	entries *lru.Cache[string, entry[V]]
}

// New creates a cache holding at most size entries. Panics only if size is
// not positive, which is a programming error at the call site.
func New[V any](size int) *Cache[V] {
	entries, err := lru.New[string, entry[V]](size)
	if err != nil {
		panic(err)
	}
	return &Cache[V]{entries: entries}
}

// Get returns the cached value for path when its recorded content hash still
// matches. A stale entry is evicted and reported as a miss.
func (c *Cache[V]) Get(path, hash string) (V, bool) {
	e, ok := c.entries.Get(path)
	if !ok {
		var zero V
		return zero, false
	}
	if e.hash != hash {
		c.entries.Remove(path)
		var zero V
		return zero, false
	}
	return e.value, true
}

// Add stores a value for path under the given content hash.
func (c *Cache[V]) Add(path, hash string, value V) {
	c.entries.Add(path, entry[V]{hash: hash, value: value})
}

// Invalidate removes an entry.
func (c *Cache[V]) Invalidate(path string) {
	c.entries.Remove(path)
}

// Purge clears the entire cache.
func (c *Cache[V]) Purge() {
	c.entries.Purge()
}

// Len returns the number of live entries.
func (c *Cache[V]) Len() int {
	return c.entries.Len()
}
