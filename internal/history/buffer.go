// Package history keeps a bounded, ordered window of the most recent values.
package history

import (
	"fmt"
	"sync"
)

// DefaultCapacity is the number of values a Buffer keeps unless told otherwise.
const DefaultCapacity = 30

// Buffer is a FIFO window with a capacity that may change at any time.
//
// Eviction happens on insert only: lowering the capacity leaves the current
// contents alone until the next Push, which then trims from the front until the
// buffer fits. Push is meant to be called from a single producer; Snapshot may
// be called concurrently from any goroutine.
type Buffer[T any] struct {
	mu       sync.RWMutex
	items    []T
	capacity int
}

// New creates a Buffer holding at most capacity values.
func New[T any](capacity int) (*Buffer[T], error) {
	if capacity < 1 {
		return nil, fmt.Errorf("history capacity must be > 0, got %d", capacity)
	}
	return &Buffer[T]{
		items:    make([]T, 0, capacity),
		capacity: capacity,
	}, nil
}

// Push appends v and evicts the oldest values while the buffer is over capacity.
// It returns how many values were evicted.
func (b *Buffer[T]) Push(v T) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items = append(b.items, v)

	evicted := len(b.items) - b.capacity
	if evicted <= 0 {
		return 0
	}

	// Zero the evicted slots so the backing array doesn't pin them.
	var zero T
	for i := 0; i < evicted; i++ {
		b.items[i] = zero
	}
	b.items = append(b.items[:0], b.items[evicted:]...)
	return evicted
}

// Cap returns the current capacity.
func (b *Buffer[T]) Cap() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.capacity
}

// SetCap changes the capacity. Values already held are kept until the next Push.
func (b *Buffer[T]) SetCap(capacity int) error {
	if capacity < 1 {
		return fmt.Errorf("history capacity must be > 0, got %d", capacity)
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.capacity = capacity
	return nil
}

// Len returns the number of values held.
func (b *Buffer[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.items)
}

// Snapshot returns a copy of the held values, oldest first.
func (b *Buffer[T]) Snapshot() []T {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]T, len(b.items))
	copy(out, b.items)
	return out
}

// Last returns the most recently pushed value.
func (b *Buffer[T]) Last() (T, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if len(b.items) == 0 {
		var zero T
		return zero, false
	}
	return b.items[len(b.items)-1], true
}
