// ABOUTME: Thread-safe size-limited cache of sessions keyed by session key.
// ABOUTME: Supports eviction by key, by session ID and by owning user.

package sessioncache

import (
	"container/list"
	"sync"
	"time"

	"github.com/bluemedia/timechamp/internal/store"
)

// cacheEntry stores the cached session, when it was stored, and its list element.
type cacheEntry struct {
	session  store.Session
	storedAt time.Time
	element  *list.Element
}

// Cache is a concurrency-safe, size-limited session cache. Callers never lock.
// Uses a doubly-linked list to maintain insertion order for O(1) eviction.
// A Cache with maxSize <= 0 is disabled: Get always misses and Put is a no-op.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]*cacheEntry
	order   *list.List // session keys in insertion order (oldest at front)
	ttl     time.Duration
	maxSize int
	gen     uint64 // bumped by every explicit removal
	done    chan struct{}
	closed  bool
	now     func() time.Time
}

// New creates a session cache. A ttl of zero keeps entries until they are
// evicted by size or removed explicitly. When ttl is positive a background
// goroutine periodically drops stale entries.
func New(ttl time.Duration, maxSize int) *Cache {
	c := &Cache{
		entries: make(map[string]*cacheEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
		now:     time.Now,
	}
	if ttl > 0 && maxSize > 0 {
		go c.cleanup()
	}
	return c
}

// Enabled reports whether the cache stores anything.
func (c *Cache) Enabled() bool {
	return c.maxSize > 0
}

// Get returns a copy of the cached session for key, if present and fresh.
func (c *Cache) Get(key string) (*store.Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || c.staleLocked(entry) {
		return nil, false
	}
	s := entry.session
	return &s, true
}

// Put stores a copy of the session under its key. If the cache is at
// capacity the oldest entry is evicted to make room.
func (c *Cache) Put(s *store.Session) {
	if s == nil || s.Key == "" || !c.Enabled() {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.putLocked(s)
}

// Generation returns a counter that changes whenever an entry is removed by
// Delete, DeleteByID or DeleteByUser, whether or not it was cached.
func (c *Cache) Generation() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.gen
}

// PutIfUnchanged stores the session only if no removal happened since gen
// was read. A session loaded from the database before a concurrent revoke
// must not be cached afterwards. Reports whether the session was stored.
func (c *Cache) PutIfUnchanged(gen uint64, s *store.Session) bool {
	if s == nil || s.Key == "" || !c.Enabled() {
		return false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return false
	}
	c.putLocked(s)
	return true
}

// putLocked inserts or refreshes an entry. Must be called with mu held.
func (c *Cache) putLocked(s *store.Session) {
	now := c.now()

	// Refresh an existing entry in place and move it to the back
	if entry, exists := c.entries[s.Key]; exists {
		entry.session = *s
		entry.storedAt = now
		c.order.MoveToBack(entry.element)
		return
	}

	if len(c.entries) >= c.maxSize {
		c.evictOldest()
	}

	elem := c.order.PushBack(s.Key)
	c.entries[s.Key] = &cacheEntry{
		session:  *s,
		storedAt: now,
		element:  elem,
	}
}

// Delete removes the entry for key.
func (c *Cache) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	if entry, ok := c.entries[key]; ok {
		c.removeLocked(key, entry)
	}
}

// DeleteByID removes the entry holding the session with the given ID and
// reports how many entries were removed.
func (c *Cache) DeleteByID(id string) int {
	return c.deleteWhere(func(s *store.Session) bool { return s.ID == id })
}

// DeleteByUser removes every entry owned by userID and reports how many were removed.
func (c *Cache) DeleteByUser(userID string) int {
	return c.deleteWhere(func(s *store.Session) bool { return s.UserID == userID })
}

func (c *Cache) deleteWhere(match func(*store.Session) bool) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.gen++
	removed := 0
	for key, entry := range c.entries {
		if match(&entry.session) {
			c.removeLocked(key, entry)
			removed++
		}
	}
	return removed
}

// Len returns the number of cached entries, including stale ones not yet cleaned up.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// staleLocked reports whether an entry is older than the TTL. Must be called with mu held.
func (c *Cache) staleLocked(entry *cacheEntry) bool {
	return c.ttl > 0 && c.now().Sub(entry.storedAt) >= c.ttl
}

// removeLocked deletes an entry. Must be called with mu held.
func (c *Cache) removeLocked(key string, entry *cacheEntry) {
	c.order.Remove(entry.element)
	delete(c.entries, key)
}

// evictOldest removes the oldest entry from the cache.
// Must be called with mu held. O(1) operation using linked list.
func (c *Cache) evictOldest() {
	front := c.order.Front()
	if front == nil {
		return
	}

	key, _ := front.Value.(string)
	c.order.Remove(front)
	delete(c.entries, key)
}

// cleanup runs in a background goroutine, periodically removing stale entries.
func (c *Cache) cleanup() {
	interval := c.ttl
	if interval > time.Minute {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.runCleanup()
		case <-c.done:
			return
		}
	}
}

// runCleanup removes all stale entries from the cache.
func (c *Cache) runCleanup() {
	c.mu.Lock()
	defer c.mu.Unlock()

	for key, entry := range c.entries {
		if c.staleLocked(entry) {
			c.removeLocked(key, entry)
		}
	}
}

// Close stops the background cleanup goroutine. It is safe to call multiple times.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		close(c.done)
		c.closed = true
	}
}
