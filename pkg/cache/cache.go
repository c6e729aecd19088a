// Package cache provides a generic, thread-safe TTL cache.
//
// Entries expire after a fixed time-to-live and are swept by a background
// cleanup loop. Statistics are always tracked. The backend uses it to keep
// the last known good daemon payload per prefix so the shell can fall back
// to cached state while offline.
package cache

import (
	"sync"
	"sync/atomic"
	"time"
)

// Stats is a point-in-time snapshot of cache activity
type Stats struct {
	Hits      int64
	Misses    int64
	Evictions int64
	Size      int
}

// entry pairs a value with its expiry
type entry[V any] struct {
	value     V
	expiresAt time.Time
}

func (e entry[V]) expired(now time.Time) bool {
	return now.After(e.expiresAt)
}

// TTLCache is a thread-safe cache whose entries expire after a fixed TTL
type TTLCache[V any] struct {
	mu    sync.RWMutex
	ttl   time.Duration
	items map[string]entry[V]

	hits      atomic.Int64
	misses    atomic.Int64
	evictions atomic.Int64

	shutdown chan struct{}
	done     chan struct{}
}

// NewTTL creates a TTL cache. The cleanup loop sweeps expired entries every
// cleanupInterval; zero disables sweeping and entries expire lazily on Get.
func NewTTL[V any](ttl, cleanupInterval time.Duration) *TTLCache[V] {
	c := &TTLCache[V]{
		ttl:      ttl,
		items:    make(map[string]entry[V]),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}

	if cleanupInterval > 0 {
		go c.cleanupLoop(cleanupInterval)
	} else {
		close(c.done)
	}

	return c
}

// Get returns the value for key if present and not expired
func (c *TTLCache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	e, ok := c.items[key]
	c.mu.RUnlock()

	if !ok {
		c.misses.Add(1)
		var zero V
		return zero, false
	}

	if e.expired(time.Now()) {
		c.mu.Lock()
		// Re-check under the write lock; Set may have refreshed the entry
		if cur, still := c.items[key]; still && cur.expired(time.Now()) {
			delete(c.items, key)
			c.evictions.Add(1)
		}
		c.mu.Unlock()

		c.misses.Add(1)
		var zero V
		return zero, false
	}

	c.hits.Add(1)
	return e.value, true
}

// Set stores value under key, resetting its TTL
func (c *TTLCache[V]) Set(key string, value V) {
	c.mu.Lock()
	c.items[key] = entry[V]{value: value, expiresAt: time.Now().Add(c.ttl)}
	c.mu.Unlock()
}

// Delete removes key, reporting whether it was present
func (c *TTLCache[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, ok := c.items[key]
	delete(c.items, key)
	return ok
}

// Size returns the number of entries, expired ones included until swept
func (c *TTLCache[V]) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.items)
}

// Stats returns a snapshot of cache activity
func (c *TTLCache[V]) Stats() Stats {
	return Stats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
		Size:      c.Size(),
	}
}

// Close stops the cleanup loop. The cache remains usable afterwards.
func (c *TTLCache[V]) Close() {
	select {
	case <-c.done:
		return
	default:
	}
	close(c.shutdown)
	<-c.done
}

func (c *TTLCache[V]) cleanupLoop(interval time.Duration) {
	defer close(c.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-c.shutdown:
			return
		case <-ticker.C:
			c.sweep()
		}
	}
}

func (c *TTLCache[V]) sweep() {
	now := time.Now()
	c.mu.Lock()
	for key, e := range c.items {
		if e.expired(now) {
			delete(c.items, key)
			c.evictions.Add(1)
		}
	}
	c.mu.Unlock()
}
