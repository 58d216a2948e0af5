package feel

import (
	"sync"
	"time"
)

// ExprCache provides an abstraction for caching parsed expressions
// This allows swapping the in-memory implementation for a shared one
type ExprCache interface {
	// Get returns the cached tree for key, or false on a miss or expiry
	Get(key string) (Node, bool)

	// Set stores a parsed tree
	Set(key string, n Node)

	// Invalidate clears the cache, forcing a re-parse on next Get
	Invalidate()

	// Len returns the number of cached entries
	Len() int
}

// CacheConfig holds configuration for cache behavior
type CacheConfig struct {
	// TTL is the time-to-live for cached entries
	// Set to 0 for no expiration
	TTL time.Duration

	// MaxEntries bounds the cache size; the cache is cleared when it is
	// reached. 0 means unbounded.
	MaxEntries int
}

// DefaultCacheConfig returns the defaults used by NewInterpreter
func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		TTL:        0,
		MaxEntries: 10000,
	}
}

type cacheEntry struct {
	node     Node
	cachedAt time.Time
}

// InMemoryExprCache is a simple in-memory implementation of ExprCache
// Thread-safe for concurrent access
type InMemoryExprCache struct {
	entries map[string]cacheEntry
	config  CacheConfig
	mu      sync.RWMutex
}

// NewInMemoryExprCache creates a new in-memory expression cache
func NewInMemoryExprCache(config CacheConfig) *InMemoryExprCache {
	return &InMemoryExprCache{
		entries: make(map[string]cacheEntry),
		config:  config,
	}
}

// Get retrieves a cached tree
// Returns false if the entry is missing or expired
func (c *InMemoryExprCache) Get(key string) (Node, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, false
	}

	if c.config.TTL > 0 && time.Since(e.cachedAt) > c.config.TTL {
		return nil, false
	}

	return e.node, true
}

// Set stores a parsed tree
func (c *InMemoryExprCache) Set(key string, n Node) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.config.MaxEntries > 0 && len(c.entries) >= c.config.MaxEntries {
		c.entries = make(map[string]cacheEntry)
	}
	c.entries[key] = cacheEntry{node: n, cachedAt: time.Now()}
}

// Invalidate clears the cache
func (c *InMemoryExprCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]cacheEntry)
}

// Len returns the number of cached entries
func (c *InMemoryExprCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.entries)
}
