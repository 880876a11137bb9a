package session

import (
	"context"
	"sync"
)

// Cache holds the zero-or-one process-wide session.
//
// Mutation happens only through WithExclusiveAccess, which admits one holder at
// a time and may be held across network calls. Snapshot takes only the memory
// lock so readers never wait behind a login.
type Cache struct {
	sem chan struct{}

	mu      sync.RWMutex
	current Session
	ok      bool
}

// NewCache seeds the cache, typically from Store.Load. A partial session is
// treated as absent.
func NewCache(s Session, ok bool) *Cache {
	c := &Cache{sem: make(chan struct{}, 1)}
	if ok && s.Valid() {
		c.current, c.ok = s, true
	}
	return c
}

// Slot is the view of the cache handed to a WithExclusiveAccess holder.
// It must not be retained after fn returns.
type Slot struct {
	c      *Cache
	closed bool
}

// Current returns the cached session.
func (s *Slot) Current() (Session, bool) {
	s.c.mu.RLock()
	defer s.c.mu.RUnlock()
	return s.c.current, s.c.ok
}

// Replace stores sess. Partial sessions and calls after release are ignored.
func (s *Slot) Replace(sess Session) {
	if s.closed || !sess.Valid() {
		return
	}
	s.c.mu.Lock()
	s.c.current, s.c.ok = sess, true
	s.c.mu.Unlock()
}

// WithExclusiveAccess runs fn as the only holder. Waiting honours ctx; the
// slot is released on every exit path, including a panic in fn.
func (c *Cache) WithExclusiveAccess(ctx context.Context, fn func(*Slot) error) error {
	select {
	case c.sem <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	slot := &Slot{c: c}
	defer func() {
		slot.closed = true
		<-c.sem
	}()
	return fn(slot)
}

// Snapshot returns a copy of the cached session without waiting for an
// in-progress holder.
func (c *Cache) Snapshot() (Session, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.current, c.ok
}
