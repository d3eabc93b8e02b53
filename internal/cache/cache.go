// Package cache is a short-TTL read-through cache in front of the housing
// service's high-volume read endpoints. Keys are built from normalized query
// parameters so two logically identical queries hit the same entry no matter
// the parameter order.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"
)

// FetchFunc loads the value on a miss.
type FetchFunc func(ctx context.Context) (json.RawMessage, error)

type entry struct {
	value     json.RawMessage
	expiresAt time.Time
	seq       uint64
}

// Stats reports cache effectiveness.
type Stats struct {
	Hits   int64 `json:"hits"`
	Misses int64 `json:"misses"`
	Keys   int   `json:"keys"`
}

// Cache is a TTL cache with lazy eviction. Entries are stamped with a
// monotonic write sequence so a slow in-flight fetch that completes after a
// newer one never overwrites the fresher entry.
type Cache struct {
	mu      sync.Mutex
	entries map[string]entry
	enabled bool
	nextSeq uint64
	hits    int64
	misses  int64

	// now is replaced in tests to control expiry.
	now func() time.Time
}

// New creates a Cache. A disabled cache passes every lookup through to the
// fetch function.
func New(enabled bool) *Cache {
	return &Cache{
		entries: make(map[string]entry),
		enabled: enabled,
		now:     time.Now,
	}
}

// Key builds a cache key for a resource and its query parameters. Parameter
// insertion order does not affect the key.
func Key(resource string, params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for _, k := range keys {
		b.WriteString(k)
		b.WriteByte('=')
		b.WriteString(params[k])
		b.WriteByte('&')
	}
	sum := sha256.Sum256([]byte(b.String()))
	return resource + ":" + hex.EncodeToString(sum[:16])
}

// GetOrFetch returns the cached value for key if present and unexpired;
// otherwise it invokes fetch and caches the result. A failed fetch is never
// cached. An expired entry is treated as a miss and evicted.
func (c *Cache) GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetch FetchFunc) (json.RawMessage, error) {
	if !c.enabled {
		return fetch(ctx)
	}

	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		if c.now().Before(e.expiresAt) {
			c.hits++
			c.mu.Unlock()
			return e.value, nil
		}
		delete(c.entries, key)
	}
	c.misses++
	c.nextSeq++
	seq := c.nextSeq
	c.mu.Unlock()

	value, err := fetch(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	// A concurrent fetch for the same key may have stored a newer entry
	// while ours was in flight; never clobber it with stale data.
	if existing, ok := c.entries[key]; !ok || existing.seq < seq {
		c.entries[key] = entry{value: value, expiresAt: c.now().Add(ttl), seq: seq}
	}
	c.mu.Unlock()

	return value, nil
}

// Invalidate drops the entry for key, if any. Used after writes that make a
// cached read stale.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// InvalidateResource drops every entry belonging to the given resource.
func (c *Cache) InvalidateResource(resource string) {
	prefix := resource + ":"
	c.mu.Lock()
	for k := range c.entries {
		if strings.HasPrefix(k, prefix) {
			delete(c.entries, k)
		}
	}
	c.mu.Unlock()
}

// Stats returns hit/miss counters and the current entry count.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{Hits: c.hits, Misses: c.misses, Keys: len(c.entries)}
}
