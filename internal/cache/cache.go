// Package cache provides a bounded, least-recently-used cache of
// per-file tokenizations.
//
// The cache owns its entries exclusively; callers receive transient
// borrows and must not hold entry pointers across cache mutations.
package cache

import (
	"container/list"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dshills/glint/internal/token"
)

// DefaultCapacity is the number of files cached before eviction.
const DefaultCapacity = 50

// Entry holds the last-known tokenization of one file.
type Entry struct {
	// Path is the file path this entry belongs to.
	Path string

	// Fingerprint identifies the content the tokens were computed from.
	Fingerprint token.Fingerprint

	// Tokens is the flat, character-addressed token set.
	Tokens token.Set

	// Lines is the per-line token index derived from Tokens.
	Lines map[int][]token.Token

	// LastAccess is the time of the most recent touch.
	LastAccess time.Time

	// element is the entry's position in the eviction list.
	element *list.Element
}

// Cache is a fixed-capacity LRU map from file path to Entry.
// All methods are safe for concurrent use.
type Cache struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*Entry

	// order holds paths from most to least recently used.
	order *list.List

	// Stats (atomic so they can be read without the lock)
	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// New creates a cache with the given capacity.
// A capacity of zero or less falls back to DefaultCapacity.
func New(capacity int) *Cache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Cache{
		capacity: capacity,
		entries:  make(map[string]*Entry, capacity),
		order:    list.New(),
	}
}

// Get returns the entry for path, touching it as recently used.
// Returns nil if no entry exists.
func (c *Cache) Get(path string) *Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[path]
	if !ok {
		c.misses.Add(1)
		return nil
	}

	c.touchLocked(entry)
	c.hits.Add(1)
	return entry
}

// Put stores or refreshes the entry for path and marks it most
// recently used. Evicts the least-recently-touched entry if the cache
// is over capacity afterwards.
func (c *Cache) Put(path string, fp token.Fingerprint, tokens token.Set, lines map[int][]token.Token) *Entry {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[path]; ok {
		// Refresh in place.
		entry.Fingerprint = fp
		entry.Tokens = tokens
		entry.Lines = lines
		c.touchLocked(entry)
		return entry
	}

	entry := &Entry{
		Path:        path,
		Fingerprint: fp,
		Tokens:      tokens,
		Lines:       lines,
		LastAccess:  time.Now(),
	}
	entry.element = c.order.PushFront(path)
	c.entries[path] = entry

	c.evictLocked()
	return entry
}

// Touch marks the entry for path as recently used, if present.
func (c *Cache) Touch(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[path]; ok {
		c.touchLocked(entry)
	}
}

// Remove deletes the entry for path, if present.
func (c *Cache) Remove(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if entry, ok := c.entries[path]; ok {
		c.order.Remove(entry.element)
		delete(c.entries, path)
	}
}

// Len returns the number of cached entries.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Clear removes all entries.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*Entry, c.capacity)
	c.order.Init()
}

// Stats returns cumulative hit, miss, and eviction counts.
func (c *Cache) Stats() (hits, misses, evictions uint64) {
	return c.hits.Load(), c.misses.Load(), c.evictions.Load()
}

// touchLocked moves an entry to the front of the eviction order and
// refreshes its access time. Caller must hold c.mu.
func (c *Cache) touchLocked(entry *Entry) {
	entry.LastAccess = time.Now()
	c.order.MoveToFront(entry.element)
}

// evictLocked removes least-recently-used entries until the cache is
// within capacity. Caller must hold c.mu.
func (c *Cache) evictLocked() {
	for len(c.entries) > c.capacity {
		back := c.order.Back()
		if back == nil {
			return
		}
		path := back.Value.(string)
		c.order.Remove(back)
		delete(c.entries, path)
		c.evictions.Add(1)
	}
}
