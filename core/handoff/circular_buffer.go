package handoff

import (
	"encoding/json"
	"sync"
)

// =============================================================================
// CircularBuffer[T] - Generic Circular Buffer with FIFO Eviction
// =============================================================================
//
// CircularBuffer is a fixed-capacity, thread-safe ring. When full, a push
// evicts the oldest item. The coordinator keeps its recent handoff records
// in one so status endpoints can read them while the event loop writes.
//
//	buf := NewCircularBuffer[Record](16)
//	buf.Push(rec)
//	recent := buf.RecentN(4)

// CircularBuffer is a generic fixed-capacity circular buffer.
type CircularBuffer[T any] struct {
	mu       sync.RWMutex
	items    []T
	head     int // oldest
	count    int
	capacity int
}

// NewCircularBuffer creates a buffer with the given capacity (minimum 1).
func NewCircularBuffer[T any](capacity int) *CircularBuffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &CircularBuffer[T]{
		items:    make([]T, capacity),
		capacity: capacity,
	}
}

// Push adds an item, evicting the oldest when full. Returns true if an item
// was evicted.
func (cb *CircularBuffer[T]) Push(item T) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	tail := (cb.head + cb.count) % cb.capacity
	cb.items[tail] = item

	if cb.count == cb.capacity {
		cb.head = (cb.head + 1) % cb.capacity
		return true
	}
	cb.count++
	return false
}

// Items returns all items, oldest first.
func (cb *CircularBuffer[T]) Items() []T {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.itemsLocked()
}

func (cb *CircularBuffer[T]) itemsLocked() []T {
	out := make([]T, cb.count)
	for i := 0; i < cb.count; i++ {
		out[i] = cb.items[(cb.head+i)%cb.capacity]
	}
	return out
}

// RecentN returns up to n of the newest items, oldest first.
func (cb *CircularBuffer[T]) RecentN(n int) []T {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	if n <= 0 {
		return []T{}
	}
	all := cb.itemsLocked()
	if n >= len(all) {
		return all
	}
	return all[len(all)-n:]
}

// Len returns the number of items held.
func (cb *CircularBuffer[T]) Len() int {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return cb.count
}

// Cap returns the capacity.
func (cb *CircularBuffer[T]) Cap() int {
	return cb.capacity
}

// Clear removes all items.
func (cb *CircularBuffer[T]) Clear() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	var zero T
	for i := range cb.items {
		cb.items[i] = zero
	}
	cb.head = 0
	cb.count = 0
}

// MarshalJSON encodes the items oldest first.
func (cb *CircularBuffer[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(cb.Items())
}
