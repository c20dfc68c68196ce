// Package latest provides the two handoff primitives of the frame pipeline:
// a single-slot mailbox where a new value supersedes an unconsumed one, and a
// single-writer cell that readers poll or watch for changes.
package latest

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
)

// ErrClosed is returned by Take once the slot is closed and empty.
var ErrClosed = errors.New("latest: slot closed")

// Slot is a single-element mailbox with overwrite semantics.
//
// Put never blocks: a value that was not taken yet is replaced and handed to the
// discard function. Take blocks until a value is present, the slot is closed or
// the context ends. At most one value is ever pending.
type Slot[T any] struct {
	mu      sync.Mutex
	val     T
	full    bool
	closed  bool
	notify  chan struct{}
	done    chan struct{}
	discard func(T)

	puts  atomic.Uint64
	drops atomic.Uint64
	takes atomic.Uint64
}

// NewSlot creates an empty slot. discard may be nil; it receives every value
// that is superseded or left behind at Close.
func NewSlot[T any](discard func(T)) *Slot[T] {
	return &Slot[T]{
		notify:  make(chan struct{}, 1),
		done:    make(chan struct{}),
		discard: discard,
	}
}

// Put stores v, superseding any pending value. It reports whether a pending
// value was replaced. Putting into a closed slot discards v.
func (s *Slot[T]) Put(v T) (replaced bool) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		s.drop(v)
		return false
	}
	old, hadOld := s.val, s.full
	s.val, s.full = v, true
	s.mu.Unlock()

	s.puts.Add(1)
	if hadOld {
		s.drops.Add(1)
		s.drop(old)
	}

	select {
	case s.notify <- struct{}{}:
	default:
	}
	return hadOld
}

// Take removes and returns the pending value, waiting for one if necessary.
func (s *Slot[T]) Take(ctx context.Context) (T, error) {
	for {
		if v, ok, err := s.tryTake(); ok || err != nil {
			return v, err
		}
		select {
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		case <-s.done:
		case <-s.notify:
		}
	}
}

// TryTake returns the pending value without waiting.
func (s *Slot[T]) TryTake() (T, bool) {
	v, ok, _ := s.tryTake()
	return v, ok
}

func (s *Slot[T]) tryTake() (T, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	if s.full {
		v := s.val
		s.val, s.full = zero, false
		s.takes.Add(1)
		return v, true, nil
	}
	if s.closed {
		return zero, false, ErrClosed
	}
	return zero, false, nil
}

// Pending reports whether a value is waiting to be taken.
func (s *Slot[T]) Pending() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.full
}

// Close wakes blocked takers and discards any pending value. It is idempotent.
func (s *Slot[T]) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	var zero T
	old, hadOld := s.val, s.full
	s.val, s.full = zero, false
	close(s.done)
	s.mu.Unlock()

	if hadOld {
		s.drop(old)
	}
}

// Closed reports whether Close was called.
func (s *Slot[T]) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// Stats returns lifetime counters: values put, values superseded, values taken.
func (s *Slot[T]) Stats() (puts, drops, takes uint64) {
	return s.puts.Load(), s.drops.Load(), s.takes.Load()
}

func (s *Slot[T]) drop(v T) {
	if s.discard != nil {
		s.discard(v)
	}
}
