package snapcache

import (
	"context"
	"sync"
	"time"

	"github.com/feedmux/feedgate/internal/model"
)

// Fetcher produces a fresh value for a key.
type Fetcher func(ctx context.Context) (any, error)

// entry is one cached slot. While a fetch is in flight, done is non-nil and
// closed on completion; value/err are valid only after done is closed or for
// settled entries.
type entry struct {
	done      chan struct{}
	value     any
	err       error
	fetchedAt time.Time
}

// Cache deduplicates and memoizes upstream fetches per key.
type Cache struct {
	mu      sync.Mutex
	entries map[model.Key]*entry

	hits   int64
	misses int64
	shared int64
}

// Stats describes cache effectiveness.
type Stats struct {
	Entries int   `json:"entries"`
	Hits    int64 `json:"hits"`   // Served from a fresh entry
	Misses  int64 `json:"misses"` // Triggered an upstream fetch
	Shared  int64 `json:"shared"` // Joined another caller's in-flight fetch
}

// New creates an empty cache.
func New() *Cache {
	return &Cache{entries: make(map[model.Key]*entry)}
}

// GetOrFetch returns the cached value for key if it is younger than ttl,
// otherwise calls fetch. Concurrent callers for the same key during an
// in-flight fetch block and receive that fetch's result (value or error)
// instead of issuing a duplicate call. A ttl of 0 disables reuse of settled
// entries but still deduplicates concurrent fetches.
func (c *Cache) GetOrFetch(ctx context.Context, key model.Key, ttl time.Duration, fetch Fetcher) (any, error) {
	c.mu.Lock()

	if e, ok := c.entries[key]; ok {
		if e.done != nil {
			// Join the in-flight fetch.
			done := e.done
			c.shared++
			c.mu.Unlock()

			select {
			case <-done:
			case <-ctx.Done():
				return nil, ctx.Err()
			}

			c.mu.Lock()
			value, err := e.value, e.err
			c.mu.Unlock()
			return value, err
		}

		if ttl > 0 && e.err == nil && time.Since(e.fetchedAt) < ttl {
			c.hits++
			value := e.value
			c.mu.Unlock()
			return value, nil
		}
	}

	// Become the fetcher for this key.
	e := &entry{done: make(chan struct{})}
	c.entries[key] = e
	c.misses++
	c.mu.Unlock()

	value, err := fetch(ctx)

	c.mu.Lock()
	e.value = value
	e.err = err
	e.fetchedAt = time.Now()
	close(e.done)
	e.done = nil
	c.mu.Unlock()

	return value, err
}

// Evict removes the entry for key. Called when the owning subscription is
// destroyed; stale entries are otherwise replaced lazily, never swept.
func (c *Cache) Evict(key model.Key) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Stats returns a point-in-time view of cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Entries: len(c.entries),
		Hits:    c.hits,
		Misses:  c.misses,
		Shared:  c.shared,
	}
}
