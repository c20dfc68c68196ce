package latest

import (
	"sync"
	"sync/atomic"
)

type entry[T any] struct {
	val     T
	version uint64
}

// Cell holds the most recent value written by a single writer.
//
// Store swaps the whole value atomically, so a reader sees either the previous
// or the new value, never a partial write. Readers either poll Load or wait on
// the channel returned by Changed, which is closed on the next Store.
type Cell[T any] struct {
	cur     atomic.Pointer[entry[T]]
	mu      sync.Mutex
	changed chan struct{}
	onSwap  func(old T)
}

// NewCell creates a cell holding the zero value at version 0. onSwap, when not
// nil, receives each value replaced by Store or Reset.
func NewCell[T any](onSwap func(old T)) *Cell[T] {
	c := &Cell[T]{
		changed: make(chan struct{}),
		onSwap:  onSwap,
	}
	c.cur.Store(&entry[T]{})
	return c
}

// Store publishes v and wakes watchers.
func (c *Cell[T]) Store(v T) {
	c.mu.Lock()
	prev := c.cur.Load()
	c.cur.Store(&entry[T]{val: v, version: prev.version + 1})
	ch := c.changed
	c.changed = make(chan struct{})
	c.mu.Unlock()

	close(ch)
	if c.onSwap != nil && prev.version > 0 {
		c.onSwap(prev.val)
	}
}

// Reset clears the cell back to the zero value without bumping watchers past
// the reset. The replaced value goes to onSwap.
func (c *Cell[T]) Reset() {
	c.mu.Lock()
	prev := c.cur.Load()
	c.cur.Store(&entry[T]{version: 0})
	ch := c.changed
	c.changed = make(chan struct{})
	c.mu.Unlock()

	close(ch)
	if c.onSwap != nil && prev.version > 0 {
		c.onSwap(prev.val)
	}
}

// Load returns the current value and its version. Version 0 means nothing has
// been stored since creation or the last Reset.
func (c *Cell[T]) Load() (T, uint64) {
	e := c.cur.Load()
	return e.val, e.version
}

// View calls fn with the current value while holding the writer lock. fn may take
// its own reference to the value before a concurrent Store hands it to onSwap.
// fn must not call back into the cell.
func (c *Cell[T]) View(fn func(v T, version uint64)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e := c.cur.Load()
	fn(e.val, e.version)
}

// Changed returns a channel closed by the next Store or Reset.
func (c *Cell[T]) Changed() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.changed
}
