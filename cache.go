package otq

import (
	"sync"
	"time"
)

// clock abstracts time for cache tests.
type clock func() time.Time

// lookupCache memoizes index lookup sets for the optimizer, keyed by
// "property:operator:value". Entries carry a deadline stamped from a single
// clock and expire lazily on read or on a sweep pass; there is one cache
// lifetime to reason about, not one timer per key.
type lookupCache struct {
	mu      sync.Mutex
	entries map[string]lookupEntry
	ttl     time.Duration
	now     clock
}

type lookupEntry struct {
	set      PathSet
	deadline time.Time
}

func newLookupCache(ttl time.Duration, now clock) *lookupCache {
	if now == nil {
		now = time.Now
	}
	return &lookupCache{
		entries: make(map[string]lookupEntry),
		ttl:     ttl,
		now:     now,
	}
}

// Get returns a defensive copy of a live entry. Callers never observe
// memoized-then-mutated state.
func (c *lookupCache) Get(key string) (PathSet, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	entry, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	if c.now().After(entry.deadline) {
		delete(c.entries, key)
		return nil, false
	}
	return entry.set.Clone(), true
}

// Set stores a copy of the set under the key with a fresh deadline.
func (c *lookupCache) Set(key string, set PathSet) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = lookupEntry{set: set.Clone(), deadline: c.now().Add(c.ttl)}
}

// Clear drops every entry. Called synchronously on any index mutation.
func (c *lookupCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]lookupEntry)
}

// Sweep removes expired entries; the periodic tick calls this so idle
// caches do not hold dead path sets.
func (c *lookupCache) Sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for key, entry := range c.entries {
		if now.After(entry.deadline) {
			delete(c.entries, key)
		}
	}
}

// Len reports the live entry count, expired entries included until swept.
func (c *lookupCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// optionsCache memoizes the selectable filter values. The data only
// populates UI pickers, so the trade-off leans toward cheap repeated reads:
// a long fallback TTL, and mutation events invalidate only once the cached
// copy is older than the staleness window.
type optionsCache struct {
	mu         sync.Mutex
	value      *SelectableValues
	builtAt    time.Time
	ttl        time.Duration // fallback expiry
	staleAfter time.Duration // mutation events younger than this are ignored
	now        clock
}

func newOptionsCache(ttl, staleAfter time.Duration, now clock) *optionsCache {
	if now == nil {
		now = time.Now
	}
	return &optionsCache{ttl: ttl, staleAfter: staleAfter, now: now}
}

func (c *optionsCache) Get() (*SelectableValues, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.value == nil || c.now().Sub(c.builtAt) > c.ttl {
		c.value = nil
		return nil, false
	}
	return c.value, true
}

func (c *optionsCache) Set(v *SelectableValues) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = v
	c.builtAt = c.now()
}

// Mutated is the throttled freshness check: the cached copy survives
// mutation events until it is old enough to matter.
func (c *optionsCache) Mutated() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.value == nil {
		return
	}
	if c.now().Sub(c.builtAt) > c.staleAfter {
		c.value = nil
	}
}

// Invalidate drops the cached copy unconditionally. Index rebuilds use
// this; row-level mutations go through Mutated.
func (c *optionsCache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.value = nil
}
