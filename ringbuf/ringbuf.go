// ============================================================================
// FIXED-CAPACITY SAMPLE RING
// ============================================================================
//
// Overwrite-oldest circular buffer used for jitter history and as a generic
// reusable sample store on the real-time path.
//
// Core capabilities:
//   - Single allocation at construction, none afterwards
//   - Push never fails and never blocks
//   - Iteration in insertion order over the currently held samples
//
// Safety model:
//   - Not safe for concurrent use; one owner goroutine only
//   - Once full, the oldest sample is overwritten and no longer addressable

package ringbuf

import "iter"

// Number is the set of element types Sum accepts.
type Number interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// Ring holds up to Cap() values; pushing into a full ring replaces the
// oldest one.
type Ring[T any] struct {
	buf   []T
	pos   int // next write slot
	count int // held elements, 0..len(buf)
}

// New creates a ring with the given capacity.
//
// Panics:
//   - capacity <= 0: invalid capacity
func New[T any](capacity int) *Ring[T] {
	if capacity <= 0 {
		panic("ringbuf: capacity must be > 0")
	}
	return &Ring[T]{buf: make([]T, capacity)}
}

// Push stores v, overwriting the oldest element when the ring is full.
func (r *Ring[T]) Push(v T) {
	r.buf[r.pos] = v

	r.pos++
	if r.pos == len(r.buf) {
		r.pos = 0
	}

	if r.count < len(r.buf) {
		r.count++
	}
}

// Len returns the number of held elements.
func (r *Ring[T]) Len() int { return r.count }

// Cap returns the fixed capacity.
func (r *Ring[T]) Cap() int { return len(r.buf) }

// IsEmpty reports whether nothing has been pushed since creation or Reset.
func (r *Ring[T]) IsEmpty() bool { return r.count == 0 }

// Full reports whether the next Push will overwrite.
func (r *Ring[T]) Full() bool { return r.count == len(r.buf) }

// oldest returns the slot index of the oldest held element.
func (r *Ring[T]) oldest() int {
	start := r.pos - r.count
	if start < 0 {
		start += len(r.buf)
	}
	return start
}

// At returns the i-th held element, oldest first.
//
// Panics:
//   - i outside [0, Len())
func (r *Ring[T]) At(i int) T {
	if i < 0 || i >= r.count {
		panic("ringbuf: index out of range")
	}
	j := r.oldest() + i
	if j >= len(r.buf) {
		j -= len(r.buf)
	}
	return r.buf[j]
}

// All yields the held elements in insertion order. Each call starts a
// fresh pass; the ring is not modified.
func (r *Ring[T]) All() iter.Seq[T] {
	return func(yield func(T) bool) {
		j := r.oldest()
		for n := 0; n < r.count; n++ {
			if !yield(r.buf[j]) {
				return
			}
			j++
			if j == len(r.buf) {
				j = 0
			}
		}
	}
}

// CopyTo copies held elements oldest first into dst and returns how many
// were copied (min(Len, len(dst))).
func (r *Ring[T]) CopyTo(dst []T) int {
	n := r.count
	if n > len(dst) {
		n = len(dst)
	}
	j := r.oldest()
	for i := 0; i < n; i++ {
		dst[i] = r.buf[j]
		j++
		if j == len(r.buf) {
			j = 0
		}
	}
	return n
}

// Reset forgets all held elements without releasing storage.
func (r *Ring[T]) Reset() {
	var zero T
	for i := range r.buf {
		r.buf[i] = zero
	}
	r.pos = 0
	r.count = 0
}

// Sum adds all held elements; an empty ring sums to zero.
func Sum[T Number](r *Ring[T]) T {
	var s T
	for v := range r.All() {
		s += v
	}
	return s
}
