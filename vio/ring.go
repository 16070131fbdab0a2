package vio

import "iter"

// RingBuffer is a bounded log with overwrite-oldest semantics. Elements are
// addressed by monotonically increasing indices; pushing past the capacity
// advances the first index so the oldest element is dropped.
//
// PushFront and PopFront are intentionally not provided. The same ring
// buffer may be read by multiple consumers; each consumer must maintain its
// own front index rather than rely on the state of the buffer.
type RingBuffer[T any] struct {
	buf   []T
	first uint64
	last  uint64
}

// NewRingBuffer creates a ring buffer holding at most n elements.
func NewRingBuffer[T any](n int) *RingBuffer[T] {
	return &RingBuffer[T]{buf: make([]T, n)}
}

// Clone returns a deep copy of the buffer, including cursor state.
func (r *RingBuffer[T]) Clone() *RingBuffer[T] {
	c := &RingBuffer[T]{
		buf:   make([]T, len(r.buf)),
		first: r.first,
		last:  r.last,
	}
	copy(c.buf, r.buf)
	return c
}

// PushBack appends value, overwriting the oldest element when full.
func (r *RingBuffer[T]) PushBack(value T) {
	r.buf[r.last%uint64(len(r.buf))] = value
	r.last++
	if r.last-r.first > uint64(len(r.buf)) {
		r.first = r.last - uint64(len(r.buf))
	}
}

// PopBack removes the most recently pushed element, if any.
func (r *RingBuffer[T]) PopBack() {
	if r.last > r.first {
		r.last--
	}
}

// At returns the element at index i. Valid only for
// FirstIndex() <= i < LastIndex().
func (r *RingBuffer[T]) At(i uint64) T {
	return r.buf[i%uint64(len(r.buf))]
}

// FirstIndex returns the index of the oldest retained element.
func (r *RingBuffer[T]) FirstIndex() uint64 { return r.first }

// LastIndex returns one past the index of the newest element.
func (r *RingBuffer[T]) LastIndex() uint64 { return r.last }

// Size returns the number of retained elements.
func (r *RingBuffer[T]) Size() uint64 { return r.last - r.first }

// Empty reports whether the buffer holds no elements.
func (r *RingBuffer[T]) Empty() bool { return r.first == r.last }

// Capacity returns the maximum number of retained elements.
func (r *RingBuffer[T]) Capacity() int { return len(r.buf) }

// All iterates the retained elements from oldest to newest, yielding each
// element's index alongside its value.
func (r *RingBuffer[T]) All() iter.Seq2[uint64, T] {
	return func(yield func(uint64, T) bool) {
		for i := r.first; i < r.last; i++ {
			if !yield(i, r.At(i)) {
				return
			}
		}
	}
}
