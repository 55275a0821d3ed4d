// clock_stub.go - monotonic clock fallback for non-Linux development hosts

//go:build !linux

package rt

import "time"

var epoch = time.Now()

// MonotonicClock uses the runtime monotonic reading. SleepUntil converts
// the absolute deadline to a relative sleep, so it can drift slightly.
type MonotonicClock struct{}

// Now returns nanoseconds since process start.
func (MonotonicClock) Now() int64 { return int64(time.Since(epoch)) }

// SleepUntil sleeps until deadline; past deadlines return at once.
func (c MonotonicClock) SleepUntil(deadline int64) {
	if d := time.Duration(deadline - c.Now()); d > 0 {
		time.Sleep(d)
	}
}
