package querycache

import "context"

// Mutation describes one optimistic write to a cached value.
type Mutation[T, R any] struct {
	Key Key
	// Apply returns the optimistic value. It must not modify cur in place and
	// may run more than once: it is replayed whenever the key is written
	// while Call is in flight.
	Apply func(cur T) T
	// Call performs the server side of the mutation.
	Call func(ctx context.Context) (R, error)
	// Commit, if set, folds the server answer into the value on success.
	Commit func(cur T, res R) T
	// Invalidate lists prefixes to invalidate after success.
	Invalidate []Key
}

// Optimistic layers m.Apply over the value under m.Key, runs m.Call and then
// either folds the write and the answer into the value or drops the layer.
// Writes made to the key while Call runs are kept either way.
func Optimistic[T, R any](ctx context.Context, c *Cache, m Mutation[T, R]) (R, error) {
	var l *layer
	if m.Apply != nil {
		l = &layer{apply: func(v any) any {
			cur, _ := v.(T)
			return m.Apply(cur)
		}}
		c.mu.Lock()
		e := c.entryLocked(m.Key)
		e.layers = append(e.layers, l)
		e.recompute()
		c.mu.Unlock()
		c.notify([]Key{m.Key}, Updated)
	}

	res, err := m.Call(ctx)
	if err != nil {
		if l != nil {
			c.mu.Lock()
			if e, ok := c.entries[m.Key.String()]; ok && e.drop(l) {
				if e.empty() {
					delete(c.entries, m.Key.String())
				} else {
					e.recompute()
				}
			}
			c.mu.Unlock()
			if c.opts.OnRollback != nil {
				c.opts.OnRollback(m.Key)
			}
			c.notify([]Key{m.Key}, Updated)
		}
		return res, err
	}

	switch {
	case l != nil:
		c.mu.Lock()
		// a Remove while Call ran discards the write with the entry
		e, ok := c.entries[m.Key.String()]
		folded := ok && e.drop(l)
		if folded {
			cur, _ := e.base.(T)
			next := m.Apply(cur)
			if m.Commit != nil {
				next = m.Commit(next, res)
			}
			e.base, e.has = next, true
			e.recompute()
		}
		c.mu.Unlock()
		if folded {
			c.notify([]Key{m.Key}, Updated)
		}
	case m.Commit != nil:
		Update(c, m.Key, func(cur T, _ bool) T { return m.Commit(cur, res) })
	}
	for _, p := range m.Invalidate {
		c.Invalidate(p)
	}
	return res, nil
}
