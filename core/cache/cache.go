// Package cache provides LRU caching for normalized reading serializations.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// Cache is a generic LRU cache interface.
type Cache[K comparable, V any] interface {
	// Get retrieves a value from the cache.
	Get(key K) (V, bool)

	// Put stores a value in the cache.
	Put(key K, value V)

	// Remove removes a value from the cache.
	Remove(key K)

	// Clear removes all entries from the cache.
	Clear()

	// Len returns the number of entries in the cache.
	Len() int

	// Stats returns cache statistics.
	Stats() Stats
}

// Stats contains cache statistics.
type Stats struct {
	Hits       int64
	Misses     int64
	Evictions  int64
	Size       int
	MaxSize    int
	TotalBytes int64
}

// Config contains cache configuration options.
type Config struct {
	// MaxSize is the maximum number of entries (0 = unlimited).
	MaxSize int

	// TTL is the time-to-live for entries (0 = no expiration).
	TTL time.Duration

	// OnEvict is called when an entry is evicted.
	OnEvict func(key, value interface{})
}

// DefaultConfig returns a default cache configuration.
func DefaultConfig() Config {
	return Config{
		MaxSize: 1024,
		TTL:     0,
		OnEvict: nil,
	}
}

// entry represents a cache entry.
type entry[K comparable, V any] struct {
	key       K
	value     V
	expiresAt time.Time
}

// lruCache is a thread-safe LRU cache implementation.
type lruCache[K comparable, V any] struct {
	mu        sync.RWMutex
	config    Config
	entries   map[K]*list.Element
	evictList *list.List
	stats     Stats
}

// NewLRUCache creates a new LRU cache with the given configuration.
func NewLRUCache[K comparable, V any](config Config) Cache[K, V] {
	if config.MaxSize < 0 {
		config.MaxSize = 0
	}

	return &lruCache[K, V]{
		config:    config,
		entries:   make(map[K]*list.Element),
		evictList: list.New(),
	}
}

// Get retrieves a value from the cache.
func (c *lruCache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ent, ok := c.entries[key]
	if !ok {
		c.stats.Misses++
		var zero V
		return zero, false
	}

	// Check if expired
	e := ent.Value.(*entry[K, V])
	if c.config.TTL > 0 && time.Now().After(e.expiresAt) {
		c.removeElement(ent)
		c.stats.Misses++
		var zero V
		return zero, false
	}

	// Move to front (most recently used)
	c.evictList.MoveToFront(ent)
	c.stats.Hits++
	return e.value, true
}

// Put stores a value in the cache.
func (c *lruCache[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Check if entry already exists
	if ent, ok := c.entries[key]; ok {
		c.evictList.MoveToFront(ent)
		e := ent.Value.(*entry[K, V])
		e.value = value
		if c.config.TTL > 0 {
			e.expiresAt = time.Now().Add(c.config.TTL)
		}
		return
	}

	// Add new entry
	e := &entry[K, V]{
		key:   key,
		value: value,
	}
	if c.config.TTL > 0 {
		e.expiresAt = time.Now().Add(c.config.TTL)
	}

	ent := c.evictList.PushFront(e)
	c.entries[key] = ent

	// Evict oldest entry if necessary
	if c.config.MaxSize > 0 && c.evictList.Len() > c.config.MaxSize {
		c.removeOldest()
	}
}

// Remove removes a value from the cache.
func (c *lruCache[K, V]) Remove(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if ent, ok := c.entries[key]; ok {
		c.removeElement(ent)
	}
}

// Clear removes all entries from the cache.
func (c *lruCache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[K]*list.Element)
	c.evictList.Init()
	c.stats.Size = 0
}

// Len returns the number of entries in the cache.
func (c *lruCache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.evictList.Len()
}

// Stats returns cache statistics.
func (c *lruCache[K, V]) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	s := c.stats
	s.Size = c.evictList.Len()
	s.MaxSize = c.config.MaxSize
	return s
}

// removeOldest removes the oldest entry from the cache.
func (c *lruCache[K, V]) removeOldest() {
	ent := c.evictList.Back()
	if ent != nil {
		c.removeElement(ent)
		c.stats.Evictions++
	}
}

// RemoveOldest evicts and returns the least recently used entry.
func (c *lruCache[K, V]) RemoveOldest() (K, V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	ent := c.evictList.Back()
	if ent == nil {
		var zeroK K
		var zeroV V
		return zeroK, zeroV, false
	}
	e := ent.Value.(*entry[K, V])
	c.removeElement(ent)
	c.stats.Evictions++
	return e.key, e.value, true
}

// removeElement removes an element from the cache.
func (c *lruCache[K, V]) removeElement(ent *list.Element) {
	c.evictList.Remove(ent)
	e := ent.Value.(*entry[K, V])
	delete(c.entries, e.key)

	if c.config.OnEvict != nil {
		c.config.OnEvict(e.key, e.value)
	}
}

// BoundedCache is an LRU cache with byte size limits.
type BoundedCache[K comparable, V any] struct {
	cache       *lruCache[K, V]
	mu          sync.RWMutex
	maxBytes    int64
	currentSize int64
	sizeFunc    func(V) int64
}

// NewBoundedCache creates a new cache with both entry count and byte size limits.
func NewBoundedCache[K comparable, V any](config Config, maxBytes int64, sizeFunc func(V) int64) *BoundedCache[K, V] {
	return &BoundedCache[K, V]{
		cache:    NewLRUCache[K, V](config).(*lruCache[K, V]),
		maxBytes: maxBytes,
		sizeFunc: sizeFunc,
	}
}

// Get retrieves a value from the cache.
func (c *BoundedCache[K, V]) Get(key K) (V, bool) {
	return c.cache.Get(key)
}

// Put stores a value in the cache, evicting least recently used entries
// until the byte budget has room. A value larger than the whole budget is
// not cached at all.
func (c *BoundedCache[K, V]) Put(key K, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	size := c.sizeFunc(value)
	if c.maxBytes > 0 && size > c.maxBytes {
		return
	}

	if old, ok := c.cache.Get(key); ok {
		c.currentSize -= c.sizeFunc(old)
	}
	for c.maxBytes > 0 && c.currentSize+size > c.maxBytes {
		_, evicted, ok := c.cache.RemoveOldest()
		if !ok {
			break
		}
		c.currentSize -= c.sizeFunc(evicted)
	}

	c.cache.Put(key, value)
	c.currentSize += size
}

// Remove removes a value from the cache.
func (c *BoundedCache[K, V]) Remove(key K) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if value, ok := c.cache.Get(key); ok {
		c.currentSize -= c.sizeFunc(value)
		c.cache.Remove(key)
	}
}

// Clear removes all entries from the cache.
func (c *BoundedCache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.cache.Clear()
	c.currentSize = 0
}

// Len returns the number of entries in the cache.
func (c *BoundedCache[K, V]) Len() int {
	return c.cache.Len()
}

// Stats returns cache statistics including byte size information.
func (c *BoundedCache[K, V]) Stats() Stats {
	c.mu.RLock()
	defer c.mu.RUnlock()

	stats := c.cache.Stats()
	stats.TotalBytes = c.currentSize
	return stats
}

// ReductionCache memoizes expensive text reductions (accent stripping,
// plene reduction) keyed by the input string. Repeated classification of
// readings with recurring content hits the memo instead of recomputing
// the Unicode decomposition passes.
type ReductionCache struct {
	cache *BoundedCache[string, string]
}

// NewReductionCache creates a reduction cache bounded by maxBytes of
// cached output text.
func NewReductionCache(maxBytes int64) *ReductionCache {
	return &ReductionCache{
		cache: NewBoundedCache[string, string](DefaultConfig(), maxBytes,
			func(s string) int64 { return int64(len(s)) }),
	}
}

// Reduce returns reduce(input), computing it at most once per distinct
// input while the entry stays cached.
func (c *ReductionCache) Reduce(input string, reduce func(string) string) string {
	if out, ok := c.cache.Get(input); ok {
		return out
	}
	out := reduce(input)
	c.cache.Put(input, out)
	return out
}

// Stats returns cache statistics.
func (c *ReductionCache) Stats() Stats {
	return c.cache.Stats()
}
