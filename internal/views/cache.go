package views

import (
	"sync"
	"time"

	"github.com/tgienger/taskdemo/internal/service"
)

type cacheKey struct {
	session string
	scope   service.Scope
	variant string
}

type cacheEntry struct {
	value   any
	expires time.Time
}

// generation marks the last invalidation of a session
type generation struct {
	n  uint64
	at time.Time
}

// Cache holds rendered views per session and scope until a mutation
// invalidates them or they expire. Time-relative views (dashboard buckets,
// overdue counts) rely on the TTL to roll over.
//
// Every Invalidate advances a clock. A view built from a snapshot taken before
// the session's last invalidation is never stored.
type Cache struct {
	mu        sync.Mutex
	ttl       time.Duration
	entries   map[cacheKey]cacheEntry
	gens      map[string]generation
	clock     uint64
	floor     uint64 // highest generation already pruned from gens
	lastSweep time.Time
	now       func() time.Time
}

// NewCache creates a Cache. A ttl of zero disables expiry.
func NewCache(ttl time.Duration) *Cache {
	return &Cache{
		ttl:     ttl,
		entries: make(map[cacheKey]cacheEntry),
		gens:    make(map[string]generation),
		now:     time.Now,
	}
}

// begin returns the clock to pass to put once the view is built
func (c *Cache) begin() uint64 {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.clock
}

func (c *Cache) get(k cacheKey) (any, bool) {
	if c == nil {
		return nil, false
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[k]
	if !ok {
		return nil, false
	}
	if !e.expires.IsZero() && c.now().After(e.expires) {
		delete(c.entries, k)
		return nil, false
	}
	return e.value, true
}

// put stores v unless the session was invalidated after started
func (c *Cache) put(k cacheKey, v any, started uint64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if started < c.floor || c.gens[k.session].n > started {
		return
	}

	now := c.now()
	if c.ttl > 0 && now.Sub(c.lastSweep) >= c.ttl {
		c.sweep(now)
	}

	e := cacheEntry{value: v}
	if c.ttl > 0 {
		e.expires = now.Add(c.ttl)
	}
	c.entries[k] = e
}

// sweep drops expired entries and generations older than the TTL. Caller
// holds mu.
func (c *Cache) sweep(now time.Time) {
	for k, e := range c.entries {
		if !e.expires.IsZero() && now.After(e.expires) {
			delete(c.entries, k)
		}
	}
	for id, g := range c.gens {
		if now.Sub(g.at) > c.ttl {
			if g.n > c.floor {
				c.floor = g.n
			}
			delete(c.gens, id)
		}
	}
	c.lastSweep = now
}

// Invalidate drops the cached views of a session for the given scopes. With
// no scopes every view of the session is dropped.
func (c *Cache) Invalidate(sessionID string, scopes ...service.Scope) {
	if c == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	c.clock++
	c.gens[sessionID] = generation{n: c.clock, at: c.now()}

	drop := make(map[service.Scope]bool, len(scopes))
	for _, s := range scopes {
		drop[s] = true
	}
	for k := range c.entries {
		if k.session != sessionID {
			continue
		}
		if len(scopes) == 0 || drop[k.scope] {
			delete(c.entries, k)
		}
	}
}

// Len returns the number of live entries, dropping expired ones
func (c *Cache) Len() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ttl > 0 {
		c.sweep(c.now())
	}
	return len(c.entries)
}
