// ============================================================================
// LOCK-FREE SPSC CHANNEL
// ============================================================================
//
// Fixed-capacity single-producer/single-consumer queue used for every
// message crossing the supervisor ↔ RT thread boundary.
//
// Core capabilities:
//   - Non-blocking TrySend/TryReceive only, O(1), zero allocation
//   - All N slots usable (no sacrificed slot), any N >= 1
//   - Split hands out exactly one Sender and one Receiver
//
// Architecture overview:
//   - Monotonic head/tail counters on isolated cache lines; head == tail is
//     empty and tail-head == N is full, so no separate empty flag is needed
//   - Each side caches the other side's cursor and only reloads it when the
//     cached value says full/empty
//
// Memory ordering:
//   - Sender writes the slot, then stores tail (release)
//   - Receiver loads tail (acquire), reads the slot, then stores head
//   - Sender loads head (acquire) before reusing a slot
//   sync/atomic is sequentially consistent, which is at least as strong.
//
// Safety model:
//   - One goroutine per handle at a time; handles may move between threads
//   - The channel stays reachable from both handles, so it outlives them

package spsc

import "sync/atomic"

// ============================================================================
// CORE DATA STRUCTURES
// ============================================================================

// Channel is the shared buffer behind a Sender/Receiver pair.
type Channel[T any] struct {
	_    [64]byte
	head atomic.Uint64 // consumer cursor

	_    [56]byte
	tail atomic.Uint64 // producer cursor

	_ [56]byte

	step  uint64 // capacity
	buf   []T
	split atomic.Bool

	_ [64]byte
}

// Sender is the producer end. Not safe for concurrent use.
type Sender[T any] struct {
	ch         *Channel[T]
	tail       uint64
	cachedHead uint64
}

// Receiver is the consumer end. Not safe for concurrent use.
type Receiver[T any] struct {
	ch         *Channel[T]
	head       uint64
	cachedTail uint64
}

// ============================================================================
// CONSTRUCTOR
// ============================================================================

// New allocates a channel with room for capacity values.
//
// Panics:
//   - capacity <= 0
func New[T any](capacity int) *Channel[T] {
	if capacity <= 0 {
		panic("spsc: capacity must be > 0")
	}
	return &Channel[T]{
		step: uint64(capacity),
		buf:  make([]T, capacity),
	}
}

// Split returns the only Sender and Receiver for c. A second call is a
// programming error and panics.
func (c *Channel[T]) Split() (*Sender[T], *Receiver[T]) {
	if !c.split.CompareAndSwap(false, true) {
		panic("spsc: channel already split")
	}
	return &Sender[T]{ch: c}, &Receiver[T]{ch: c}
}

// Cap returns the channel capacity.
func (c *Channel[T]) Cap() int { return int(c.step) }

// Len returns an instantaneous count of queued values. It may be stale by
// the time the caller looks at it.
func (c *Channel[T]) Len() int {
	h := c.head.Load()
	t := c.tail.Load()
	if t < h {
		return 0
	}
	return int(t - h)
}

// ============================================================================
// PRODUCER OPERATIONS
// ============================================================================

// TrySend enqueues v. It returns false without side effects when the
// channel is full; the caller keeps v and decides whether to drop it.
func (s *Sender[T]) TrySend(v T) bool {
	c := s.ch
	t := s.tail

	if t-s.cachedHead == c.step {
		s.cachedHead = c.head.Load()
		if t-s.cachedHead == c.step {
			return false
		}
	}

	c.buf[t%c.step] = v
	s.tail = t + 1
	c.tail.Store(t + 1)
	return true
}

// Cap returns the channel capacity.
func (s *Sender[T]) Cap() int { return s.ch.Cap() }

// ============================================================================
// CONSUMER OPERATIONS
// ============================================================================

// TryReceive dequeues the oldest value. ok is false when the channel is
// empty.
func (r *Receiver[T]) TryReceive() (v T, ok bool) {
	c := r.ch
	h := r.head

	if h == r.cachedTail {
		r.cachedTail = c.tail.Load()
		if h == r.cachedTail {
			return v, false
		}
	}

	i := h % c.step
	v = c.buf[i]

	var zero T
	c.buf[i] = zero // drop references held by the slot

	r.head = h + 1
	c.head.Store(h + 1)
	return v, true
}

// Drain receives until empty, handing each value to fn, and returns the
// count. It never blocks.
func (r *Receiver[T]) Drain(fn func(T)) int {
	n := 0
	for {
		v, ok := r.TryReceive()
		if !ok {
			return n
		}
		fn(v)
		n++
	}
}

// Cap returns the channel capacity.
func (r *Receiver[T]) Cap() int { return r.ch.Cap() }
