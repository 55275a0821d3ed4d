// Package stability decides whether the RT thread's wake-up jitter has
// settled enough to enable I/O-dependent work.
//
// Each tick the executor reports the scheduled and actual wake times. The
// signed deviation is clamped to int32 nanoseconds and pushed into a fixed
// window; the verdict is stable when at least ThresholdPercent of the held
// samples are within AcceptableDeviation. The percentage is taken over the
// samples present, so a verdict is available before the window fills.
package stability

import (
	"fmt"
	"math"
	"time"

	"rtcore/constants"
	"rtcore/ringbuf"
)

// Config tunes the monitor.
type Config struct {
	Window              int
	AcceptableDeviation time.Duration
	ThresholdPercent    int
}

// DefaultConfig returns 100 samples, 200µs, 95%.
func DefaultConfig() Config {
	return Config{
		Window:              constants.JitterWindow,
		AcceptableDeviation: constants.AcceptableDeviation,
		ThresholdPercent:    constants.ThresholdPercent,
	}
}

// Validate rejects configurations the monitor cannot evaluate.
func (c Config) Validate() error {
	if c.Window <= 0 {
		return fmt.Errorf("stability: window must be > 0, got %d", c.Window)
	}
	if c.AcceptableDeviation < 0 {
		return fmt.Errorf("stability: acceptable deviation must be >= 0, got %s", c.AcceptableDeviation)
	}
	if c.ThresholdPercent < 0 || c.ThresholdPercent > 100 {
		return fmt.Errorf("stability: threshold percent must be in [0,100], got %d", c.ThresholdPercent)
	}
	return nil
}

// Verdict is the result of one observation.
type Verdict struct {
	Deviation int32 // actual - scheduled, ns, clamped
	Stable    bool
	Changed   bool // Stable differs from the previous observation
}

// Monitor owns the deviation window. It is used by the RT thread only.
type Monitor struct {
	cfg          Config
	acceptableNs int64
	samples      *ringbuf.Ring[int32]
	stable       bool
}

// NewMonitor builds a monitor. An invalid config is a programming error.
func NewMonitor(cfg Config) *Monitor {
	if err := cfg.Validate(); err != nil {
		panic(err)
	}
	return &Monitor{
		cfg:          cfg,
		acceptableNs: cfg.AcceptableDeviation.Nanoseconds(),
		samples:      ringbuf.New[int32](cfg.Window),
	}
}

// Observe records one tick's wake deviation and re-evaluates the verdict.
func (m *Monitor) Observe(scheduled, actual int64) Verdict {
	dev := Clamp(actual - scheduled)
	m.samples.Push(dev)

	acceptable := 0
	for s := range m.samples.All() {
		if abs(int64(s)) <= m.acceptableNs {
			acceptable++
		}
	}

	stable := IsStable(acceptable, m.samples.Len(), m.cfg.ThresholdPercent)
	changed := stable != m.stable
	m.stable = stable

	return Verdict{Deviation: dev, Stable: stable, Changed: changed}
}

// Stable returns the latest verdict.
func (m *Monitor) Stable() bool { return m.stable }

// Len returns the number of samples held.
func (m *Monitor) Len() int { return m.samples.Len() }

// Config returns the monitor configuration.
func (m *Monitor) Config() Config { return m.cfg }

// Snapshot copies the newest min(Len, len(dst)) samples oldest first into
// dst, zero-fills the rest and returns the number of real samples copied.
func (m *Monitor) Snapshot(dst []int32) int {
	var n int
	if skip := m.samples.Len() - len(dst); skip > 0 {
		for i := range dst {
			dst[i] = m.samples.At(skip + i)
		}
		n = len(dst)
	} else {
		n = m.samples.CopyTo(dst)
	}
	for i := n; i < len(dst); i++ {
		dst[i] = 0
	}
	return n
}

// Mean returns the average deviation in ns (0 when empty).
func (m *Monitor) Mean() int64 {
	return Mean(m.samples)
}

// MaxAbs returns the largest absolute deviation held.
func (m *Monitor) MaxAbs() int64 {
	var worst int64
	for s := range m.samples.All() {
		if a := abs(int64(s)); a > worst {
			worst = a
		}
	}
	return worst
}

// Reset drops all samples and the verdict.
func (m *Monitor) Reset() {
	m.samples.Reset()
	m.stable = false
}

// IsStable applies the threshold rule with integer floor division:
// acceptable >= total*percent/100. No samples is never stable.
func IsStable(acceptable, total, percent int) bool {
	if total == 0 {
		return false
	}
	return acceptable >= total*percent/100
}

// Mean averages a sample window with truncating integer division.
func Mean(r *ringbuf.Ring[int32]) int64 {
	if r.IsEmpty() {
		return 0
	}
	var sum int64
	for s := range r.All() {
		sum += int64(s)
	}
	return sum / int64(r.Len())
}

// Clamp saturates a nanosecond deviation to the int32 range.
func Clamp(ns int64) int32 {
	switch {
	case ns > math.MaxInt32:
		return math.MaxInt32
	case ns < math.MinInt32:
		return math.MinInt32
	default:
		return int32(ns)
	}
}

func abs(v int64) int64 {
	if v < 0 {
		return -v
	}
	return v
}
