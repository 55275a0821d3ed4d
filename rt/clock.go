package rt

import (
	"runtime"
	"sync/atomic"
	"time"
)

// Clock supplies monotonic nanoseconds and an absolute-deadline sleep.
// Implementations are used from the RT thread only.
type Clock interface {
	Now() int64
	SleepUntil(deadline int64)
}

// SimClock is a virtual clock for simulation and tests. SleepUntil jumps
// straight to the deadline plus whatever lateness Jitter reports for that
// wake, then yields the processor so other goroutines make progress.
type SimClock struct {
	now   atomic.Int64
	wakes atomic.Uint64

	// Jitter returns the oversleep for the n-th wake (0-based). Nil means
	// every wake is exact.
	Jitter func(n uint64) time.Duration
}

// NewSimClock returns a clock starting at start nanoseconds.
func NewSimClock(start int64) *SimClock {
	c := &SimClock{}
	c.now.Store(start)
	return c
}

// Now returns the virtual time.
func (c *SimClock) Now() int64 { return c.now.Load() }

// SleepUntil advances virtual time to deadline (plus jitter). A deadline
// already in the past only adds jitter.
func (c *SimClock) SleepUntil(deadline int64) {
	n := c.wakes.Add(1) - 1
	t := c.now.Load()
	if deadline > t {
		t = deadline
	}
	if c.Jitter != nil {
		t += int64(c.Jitter(n))
	}
	c.now.Store(t)
	runtime.Gosched()
}

// Advance moves virtual time forward by d without a wake.
func (c *SimClock) Advance(d time.Duration) { c.now.Add(int64(d)) }

// Wakes returns how many SleepUntil calls completed.
func (c *SimClock) Wakes() uint64 { return c.wakes.Load() }
