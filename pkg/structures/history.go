package structures

import (
	"sync"
)

// DefaultHistoryLimit is the retention cap shared by all run histories
const DefaultHistoryLimit = 100

// History is an append-only, bounded, chronologically ordered buffer.
// When full, the oldest entry is evicted. Entries are never reordered or
// modified after Append returns.
type History[T any] struct {
	mu     sync.RWMutex
	buffer []T
	head   int // index of the oldest entry
	size   int
	limit  int
}

// NewHistory creates a history holding at most limit entries
func NewHistory[T any](limit int) *History[T] {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	return &History[T]{
		buffer: make([]T, limit),
		limit:  limit,
	}
}

// Append adds an item at the newest end, evicting the oldest when full
func (h *History[T]) Append(item T) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.size < h.limit {
		h.buffer[(h.head+h.size)%h.limit] = item
		h.size++
		return
	}

	// Overwrite the oldest slot and advance the head
	h.buffer[h.head] = item
	h.head = (h.head + 1) % h.limit
}

// Snapshot returns a copy of all entries, oldest first
func (h *History[T]) Snapshot() []T {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]T, h.size)
	for i := 0; i < h.size; i++ {
		out[i] = h.buffer[(h.head+i)%h.limit]
	}
	return out
}

// Last returns up to n of the most recent entries, oldest first
func (h *History[T]) Last(n int) []T {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if n > h.size {
		n = h.size
	}
	if n <= 0 {
		return []T{}
	}

	out := make([]T, n)
	start := h.size - n
	for i := 0; i < n; i++ {
		out[i] = h.buffer[(h.head+start+i)%h.limit]
	}
	return out
}

// Len returns the current number of entries
func (h *History[T]) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.size
}

// Cap returns the retention limit
func (h *History[T]) Cap() int {
	return h.limit
}
