// Package optimistic keeps an in-process working set of entities and applies
// edits to it before the remote write lands.
//
// A mutation snapshots the entity, applies the change locally, commits the
// remote write and then either replaces the local copy with the server
// representation or restores the snapshot. There is no retry, queueing or
// merging: concurrent writers resolve as last write wins.
package optimistic

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Fetcher loads the authoritative copy of an entity.
type Fetcher[T any] func(ctx context.Context, id string) (T, error)

// Cloner is implemented by entities holding pointers or slices so the
// snapshot taken before a mutation is not shared with the edited copy.
type Cloner[T any] interface {
	Clone() T
}

// Mutation describes one optimistic edit.
type Mutation[T any] struct {
	// Name identifies the operation in errors and metrics.
	Name string
	// Apply edits the local copy. Returning an error aborts the mutation
	// before anything is written.
	Apply func(*T) error
	// Commit performs the remote write and returns the stored representation.
	Commit func(ctx context.Context, local T) (T, error)
}

// Error reports a remote write that failed after the local copy had been
// changed. The local copy has been restored, or dropped when the failure
// proves it stale, by the time Error is returned.
type Error struct {
	Op  string
	ID  string
	Err error
}

func (e *Error) Error() string { return fmt.Sprintf("%s %s: %v", e.Op, e.ID, e.Err) }

func (e *Error) Unwrap() error { return e.Err }

type entry[T any] struct {
	value    T
	loadedAt time.Time
	version  uint64
}

// Cache is safe for concurrent use.
type Cache[T any] struct {
	mu       sync.Mutex
	entries  map[string]*entry[T]
	fetch    Fetcher[T]
	ttl      time.Duration
	now      func() time.Time
	onRevert func(op string)
	stale    func(error) bool
}

// NewCache builds a cache reading through fetch. A non-positive ttl means
// cached entities never go stale.
func NewCache[T any](fetch Fetcher[T], ttl time.Duration) *Cache[T] {
	if fetch == nil {
		panic("optimistic: fetcher cannot be nil")
	}
	return &Cache[T]{
		entries: map[string]*entry[T]{},
		fetch:   fetch,
		ttl:     ttl,
		now:     time.Now,
	}
}

// WithClock overrides the clock used for staleness checks.
func (c *Cache[T]) WithClock(now func() time.Time) *Cache[T] {
	c.now = now
	return c
}

// OnRevert registers a hook called after a failed commit restored a snapshot.
func (c *Cache[T]) OnRevert(fn func(op string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onRevert = fn
}

// DropOn registers a predicate for commit errors showing the cached copy is
// out of date. Such a failure forgets the entity instead of restoring the
// snapshot, so the next access fetches it again.
func (c *Cache[T]) DropOn(fn func(error) bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stale = fn
}

// Get returns the cached entity, fetching it when missing or stale.
func (c *Cache[T]) Get(ctx context.Context, id string) (T, error) {
	if v, ok := c.fresh(id); ok {
		return v, nil
	}
	v, err := c.fetch(ctx, id)
	if err != nil {
		var zero T
		return zero, err
	}
	c.Put(id, v)
	return v, nil
}

// Peek returns the cached entity without fetching.
func (c *Cache[T]) Peek(id string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok {
		var zero T
		return zero, false
	}
	return copyOf(e.value), true
}

// Put replaces the cached entity with an authoritative copy.
func (c *Cache[T]) Put(id string, v T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok {
		e = &entry[T]{}
		c.entries[id] = e
	}
	e.value = copyOf(v)
	e.loadedAt = c.now()
	e.version++
}

// Forget drops an entity from the working set.
func (c *Cache[T]) Forget(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, id)
}

// Mutate runs m against the entity id. Apply errors are returned as is.
// Commit errors are returned as *Error after the snapshot is restored, unless
// a later local write already replaced the entity.
func (c *Cache[T]) Mutate(ctx context.Context, id string, m Mutation[T]) (T, error) {
	var zero T
	loaded, err := c.Get(ctx, id)
	if err != nil {
		return zero, err
	}

	c.mu.Lock()
	e, ok := c.entries[id]
	if !ok {
		e = &entry[T]{value: loaded, loadedAt: c.now()}
		c.entries[id] = e
	}
	snapshot := copyOf(e.value)
	local := copyOf(e.value)
	if err := m.Apply(&local); err != nil {
		c.mu.Unlock()
		return zero, err
	}
	e.value = local
	e.version++
	version := e.version
	c.mu.Unlock()

	stored, err := m.Commit(ctx, copyOf(local))

	c.mu.Lock()
	defer c.mu.Unlock()
	if err != nil {
		if cur, ok := c.entries[id]; ok && cur.version == version {
			if c.stale != nil && c.stale(err) {
				delete(c.entries, id)
			} else {
				cur.value = snapshot
				cur.version++
			}
			if c.onRevert != nil {
				c.onRevert(m.Name)
			}
		}
		return zero, &Error{Op: m.Name, ID: id, Err: err}
	}
	cur, ok := c.entries[id]
	if !ok {
		cur = &entry[T]{}
		c.entries[id] = cur
	}
	cur.value = copyOf(stored)
	cur.loadedAt = c.now()
	cur.version++
	return stored, nil
}

func (c *Cache[T]) fresh(id string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok || (c.ttl > 0 && c.now().Sub(e.loadedAt) > c.ttl) {
		var zero T
		return zero, false
	}
	return copyOf(e.value), true
}

func copyOf[T any](v T) T {
	if cl, ok := any(v).(Cloner[T]); ok {
		return cl.Clone()
	}
	return v
}
