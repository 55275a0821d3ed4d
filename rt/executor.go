package rt

import (
	"time"

	"rtcore/constants"
)

// Executor runs a tick function on absolute period boundaries.
//
// Algorithm:
//  1. next = Clock.Now()
//  2. actual = Clock.Now(); run tick(next, actual); stop if it reports done
//  3. next += Period; SleepUntil(next); goto 2
//
// A late wake is not corrected by skipping deadlines; the lateness shows up
// as actual - scheduled for the Stability Monitor. Each wake runs exactly
// one tick.
type Executor struct {
	Clock  Clock
	Period time.Duration
}

// NewExecutor returns an executor on the monotonic clock at the default
// 1 ms period.
func NewExecutor() Executor {
	return Executor{Clock: MonotonicClock{}, Period: constants.DefaultPeriod}
}

// Run blocks the calling goroutine until tick returns true and reports how
// many ticks ran. There is no external cancellation: shutdown is negotiated
// through tick's return value.
func (e Executor) Run(tick func(scheduled, actual int64) bool) uint64 {
	clock := e.Clock
	if clock == nil {
		clock = MonotonicClock{}
	}
	period := int64(e.Period)
	if period <= 0 {
		period = int64(constants.DefaultPeriod)
	}

	var ticks uint64
	next := clock.Now()
	for {
		actual := clock.Now()
		ticks++
		if tick(next, actual) {
			return ticks
		}
		next += period
		clock.SleepUntil(next)
	}
}
