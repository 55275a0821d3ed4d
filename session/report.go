package session

import (
	"time"

	"github.com/sugawarayuuta/sonnet"

	"rtcore/state"
)

// Report summarizes a session for operators. Latency values are wake
// deviations in nanoseconds, oldest first.
type Report struct {
	SessionID  string  `json:"session_id"`
	Stabilized bool    `json:"stabilized"`
	IoStatus   string  `json:"io_status"`
	Finished   bool    `json:"finished"`
	Ticks      uint64  `json:"ticks"`
	HookCalls  uint64  `json:"hook_calls"`
	Dropped    uint64  `json:"dropped_responses"`
	PingsSent  uint64  `json:"pings_sent"`
	Pongs      uint64  `json:"pongs_received"`
	Samples    int     `json:"samples"`
	MeanNs     int64   `json:"mean_ns"`
	MaxAbsNs   int64   `json:"max_abs_ns"`
	LatencyNs  []int32 `json:"latency_ns"`
	UptimeMs   int64   `json:"uptime_ms"`
}

// Report reads the shared state view and the supervisor counters. The
// latency fields hold only the real samples of the published window.
func (s *Session) Report() Report {
	var stats state.LatencyStats
	n := s.view.Latency(&stats)
	samples := append([]int32(nil), stats[:n]...)
	mean, maxAbs := summarize(samples)

	var uptime time.Duration
	if !s.started.IsZero() {
		uptime = time.Since(s.started)
	}

	return Report{
		SessionID:  s.id.String(),
		Stabilized: s.view.Stabilized(),
		IoStatus:   s.view.IoStatus().String(),
		Finished:   s.Finished(),
		Ticks:      s.view.Ticks(),
		HookCalls:  s.view.HookCalls(),
		Dropped:    s.view.Dropped(),
		PingsSent:  s.pings,
		Pongs:      s.pongs,
		Samples:    n,
		MeanNs:     mean,
		MaxAbsNs:   maxAbs,
		LatencyNs:  samples,
		UptimeMs:   uptime.Milliseconds(),
	}
}

// ReportJSON encodes Report.
func (s *Session) ReportJSON() ([]byte, error) {
	return sonnet.Marshal(s.Report())
}

// summarize returns the truncated mean and the largest absolute value.
func summarize(samples []int32) (mean, maxAbs int64) {
	if len(samples) == 0 {
		return 0, 0
	}
	var sum int64
	for _, v := range samples {
		x := int64(v)
		sum += x
		if x < 0 {
			x = -x
		}
		if x > maxAbs {
			maxAbs = x
		}
	}
	return sum / int64(len(samples)), maxAbs
}
