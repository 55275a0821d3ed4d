// clock_linux.go - CLOCK_MONOTONIC reads and TIMER_ABSTIME sleeps

//go:build linux

package rt

import (
	"errors"

	"golang.org/x/sys/unix"
)

// MonotonicClock reads CLOCK_MONOTONIC and sleeps with clock_nanosleep in
// absolute mode, so repeated periods do not accumulate drift.
type MonotonicClock struct{}

// Now returns CLOCK_MONOTONIC in nanoseconds.
func (MonotonicClock) Now() int64 {
	var ts unix.Timespec
	if err := unix.ClockGettime(unix.CLOCK_MONOTONIC, &ts); err != nil {
		panic("rt: clock_gettime(CLOCK_MONOTONIC): " + err.Error())
	}
	return ts.Nano()
}

// SleepUntil blocks until CLOCK_MONOTONIC reaches deadline. A signal
// interrupting the sleep restarts it against the same deadline.
func (MonotonicClock) SleepUntil(deadline int64) {
	ts := unix.NsecToTimespec(deadline)
	for {
		err := unix.ClockNanosleep(unix.CLOCK_MONOTONIC, unix.TIMER_ABSTIME, &ts, nil)
		if !errors.Is(err, unix.EINTR) {
			return
		}
	}
}
