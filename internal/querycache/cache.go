// Package querycache is the client-side query cache: values keyed by semantic
// keys, prefix invalidation, deduplicated fetches and optimistic mutations
// that roll back without touching concurrent writes.
package querycache

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// Key is a semantic cache key such as {"chat", "messages", convID}.
type Key []string

// String joins the key parts.
func (k Key) String() string { return strings.Join(k, "/") }

// HasPrefix reports whether p is a prefix of k.
func (k Key) HasPrefix(p Key) bool {
	if len(p) > len(k) {
		return false
	}
	for i := range p {
		if k[i] != p[i] {
			return false
		}
	}
	return true
}

// Label is a low-cardinality name for metrics (first two parts).
func (k Key) Label() string {
	if len(k) > 2 {
		return Key(k[:2]).String()
	}
	return k.String()
}

// Event tells subscribers what happened to a key.
type Event int

const (
	// Updated means a new value was written.
	Updated Event = iota
	// Invalidated means the value is stale and should be refetched.
	Invalidated
	// Removed means the entry was dropped.
	Removed
)

// entry keeps the last written value in base and the optimistic writes
// still in flight in layers. value is base with every layer applied.
type entry struct {
	key    Key
	base   any
	has    bool
	layers []*layer
	value  any
	stale  bool
}

type layer struct {
	apply func(any) any
}

func (e *entry) recompute() {
	v := e.base
	for _, l := range e.layers {
		v = l.apply(v)
	}
	e.value = v
}

// drop removes l and reports whether it was still pending.
func (e *entry) drop(l *layer) bool {
	for i, x := range e.layers {
		if x == l {
			e.layers = append(e.layers[:i:i], e.layers[i+1:]...)
			return true
		}
	}
	return false
}

// empty reports whether nothing but an aborted layer ever lived here.
func (e *entry) empty() bool { return !e.has && len(e.layers) == 0 }

type subscriber struct {
	prefix Key
	fn     func(Key, Event)
}

// Options configures a Cache.
type Options struct {
	// OnRollback runs after a failed optimistic write was dropped.
	OnRollback func(Key)
}

// Cache is safe for concurrent use. Writes to one key apply in call order.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*entry
	subs    map[int]subscriber
	nextSub int
	group   singleflight.Group
	opts    Options
}

// New returns an empty cache.
func New(opts Options) *Cache {
	return &Cache{
		entries: make(map[string]*entry),
		subs:    make(map[int]subscriber),
		opts:    opts,
	}
}

// Subscribe registers fn for changes to keys under prefix. The returned func unsubscribes.
func (c *Cache) Subscribe(prefix Key, fn func(Key, Event)) (unsubscribe func()) {
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = subscriber{prefix: append(Key(nil), prefix...), fn: fn}
	c.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
		})
	}
}

// notify must be called without c.mu held.
func (c *Cache) notify(keys []Key, ev Event) {
	if len(keys) == 0 {
		return
	}
	c.mu.Lock()
	var fns []func()
	for _, s := range c.subs {
		for _, k := range keys {
			if k.HasPrefix(s.prefix) {
				fn, k := s.fn, k
				fns = append(fns, func() { fn(k, ev) })
			}
		}
	}
	c.mu.Unlock()
	for _, f := range fns {
		f()
	}
}

func (c *Cache) getLocked(key Key) (any, bool, bool) {
	e, ok := c.entries[key.String()]
	if !ok {
		return nil, false, false
	}
	return e.value, true, e.stale
}

// entryLocked returns the entry for key, creating an empty one.
func (c *Cache) entryLocked(key Key) *entry {
	e, ok := c.entries[key.String()]
	if !ok {
		e = &entry{key: append(Key(nil), key...)}
		c.entries[key.String()] = e
	}
	return e
}

// setLocked replaces the base value. Pending optimistic layers stay on top.
func (c *Cache) setLocked(key Key, v any) {
	e := c.entryLocked(key)
	e.base, e.has, e.stale = v, true, false
	e.recompute()
}

// Invalidate marks every entry under prefix stale.
func (c *Cache) Invalidate(prefix Key) {
	c.mu.Lock()
	var hit []Key
	for _, e := range c.entries {
		if e.key.HasPrefix(prefix) {
			e.stale = true
			hit = append(hit, e.key)
		}
	}
	c.mu.Unlock()
	if len(hit) == 0 {
		// still tell listeners so views that never loaded can react
		hit = []Key{prefix}
	}
	c.notify(hit, Invalidated)
}

// Remove drops every entry under prefix.
func (c *Cache) Remove(prefix Key) {
	c.mu.Lock()
	var hit []Key
	for s, e := range c.entries {
		if e.key.HasPrefix(prefix) {
			delete(c.entries, s)
			hit = append(hit, e.key)
		}
	}
	c.mu.Unlock()
	c.notify(hit, Removed)
}

// IsStale reports whether key is missing or invalidated.
func (c *Cache) IsStale(key Key) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok, stale := c.getLocked(key)
	return !ok || stale
}

// Get returns the cached value for key.
func Get[T any](c *Cache, key Key) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok, _ := c.getLocked(key)
	if !ok {
		var zero T
		return zero, false
	}
	t, ok := v.(T)
	return t, ok
}

// Set stores v under key.
func Set[T any](c *Cache, key Key, v T) {
	c.mu.Lock()
	c.setLocked(key, v)
	c.mu.Unlock()
	c.notify([]Key{key}, Updated)
}

// Update atomically replaces the value under key with fn(current, present)
// and returns what readers now see. current excludes optimistic writes still
// in flight; they are applied again on top of the result. fn must not modify
// current in place.
func Update[T any](c *Cache, key Key, fn func(cur T, ok bool) T) T {
	c.mu.Lock()
	e := c.entryLocked(key)
	cur, typed := e.base.(T)
	e.base, e.has = fn(cur, e.has && typed), true
	e.recompute()
	out, _ := e.value.(T)
	c.mu.Unlock()
	c.notify([]Key{key}, Updated)
	return out
}

// Fetch returns the fresh cached value or loads it with fn. Concurrent
// fetches of one key share a single call.
func Fetch[T any](ctx context.Context, c *Cache, key Key, fn func(context.Context) (T, error)) (T, error) {
	c.mu.Lock()
	v, ok, stale := c.getLocked(key)
	c.mu.Unlock()
	if ok && !stale {
		if t, typed := v.(T); typed {
			return t, nil
		}
	}
	return Refetch(ctx, c, key, fn)
}

// Refetch loads key with fn regardless of cache state and stores the result.
func Refetch[T any](ctx context.Context, c *Cache, key Key, fn func(context.Context) (T, error)) (T, error) {
	return RefetchMerge(ctx, c, key, fn, func(_ T, _ bool, fresh T) T { return fresh })
}

// RefetchMerge loads key with fn and stores merge(current, present, answer),
// evaluated once the answer is in so writes made meanwhile are seen.
// Concurrent refetches of one key share a single call.
func RefetchMerge[T, R any](ctx context.Context, c *Cache, key Key, fn func(context.Context) (R, error), merge func(cur T, ok bool, fresh R) T) (T, error) {
	v, err, _ := c.group.Do(key.String(), func() (any, error) {
		r, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		c.mu.Lock()
		e := c.entryLocked(key)
		cur, typed := e.base.(T)
		e.base, e.has, e.stale = merge(cur, e.has && typed, r), true, false
		e.recompute()
		out := e.value
		c.mu.Unlock()
		c.notify([]Key{key}, Updated)
		return out, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	t, _ := v.(T)
	return t, nil
}
