// ============================================================================
// SHARED STATE BLOCK
// ============================================================================
//
// Session-lifetime status block observed by both threads.
//
// Ownership:
//   - Every field has exactly one writer: the RT thread. Supervisor
//     requests (EnableIo, RequestShutdown) travel through the command
//     channel and the RT loop applies them here.
//   - The supervisor reads through View, which exposes no setters.
//
// Consistency:
//   - Each field is individually atomic, so reads never block and never
//     tear a single value. Reading several fields is not a snapshot; every
//     consumer treats them as eventually consistent status.

package state

import (
	"sync/atomic"

	"rtcore/constants"
)

// IoStatus gates the domain hook.
type IoStatus uint32

const (
	Pending IoStatus = iota
	Ready
)

func (s IoStatus) String() string {
	if s == Ready {
		return "Ready"
	}
	return "Pending"
}

// LatencyStats is the published deviation window in nanoseconds, oldest
// sample first, zero-padded past the number of collected samples.
type LatencyStats [constants.JitterWindow]int32

// Shared is allocated once by the supervisor before the RT thread starts
// and dropped only after it has been joined.
type Shared struct {
	ioStatus          atomic.Uint32
	shutdownRequested atomic.Bool
	stabilized        atomic.Bool

	_ [52]byte

	latency    [constants.JitterWindow]atomic.Int32
	samples    atomic.Uint32
	ticks      atomic.Uint64
	hookCalls  atomic.Uint64
	dropped    atomic.Uint64
	lastJitter atomic.Int64
}

// New returns a zeroed block: Pending, not stabilized, no shutdown.
func New() *Shared { return &Shared{} }

// ─────────────────────────── RT-side writers ───────────────────────────────

// SetIoStatus records the I/O gate.
func (s *Shared) SetIoStatus(v IoStatus) { s.ioStatus.Store(uint32(v)) }

// RequestShutdown marks the session for termination.
func (s *Shared) RequestShutdown() { s.shutdownRequested.Store(true) }

// SetStabilized publishes the monitor verdict.
func (s *Shared) SetStabilized(v bool) { s.stabilized.Store(v) }

// PublishLatency copies a deviation window whose first n slots are real
// samples; the caller zero-pads the rest.
func (s *Shared) PublishLatency(samples *LatencyStats, n int) {
	for i := range s.latency {
		s.latency[i].Store(samples[i])
	}
	s.samples.Store(uint32(n))
}

// RecordTick counts one executed tick and its deviation.
func (s *Shared) RecordTick(deviationNs int64) {
	s.ticks.Add(1)
	s.lastJitter.Store(deviationNs)
}

// RecordHookCall counts one domain hook invocation.
func (s *Shared) RecordHookCall() { s.hookCalls.Add(1) }

// RecordDrop counts one outbound message lost to a full channel.
func (s *Shared) RecordDrop() { s.dropped.Add(1) }

// View returns the read-only handle for the supervisor.
func (s *Shared) View() View { return View{s: s} }

// ─────────────────────────── Readers (either side) ──────────────────────────

// IoStatus returns the current I/O gate.
func (s *Shared) IoStatus() IoStatus { return IoStatus(s.ioStatus.Load()) }

// ShutdownRequested reports whether termination was requested.
func (s *Shared) ShutdownRequested() bool { return s.shutdownRequested.Load() }

// View is a non-owning read handle scoped to the session lifetime.
type View struct{ s *Shared }

func (v View) IoStatus() IoStatus { return v.s.IoStatus() }
func (v View) ShutdownRequested() bool { return v.s.ShutdownRequested() }
func (v View) Stabilized() bool { return v.s.stabilized.Load() }
func (v View) Ticks() uint64 { return v.s.ticks.Load() }
func (v View) HookCalls() uint64 { return v.s.hookCalls.Load() }
func (v View) Dropped() uint64 { return v.s.dropped.Load() }
func (v View) LastJitter() int64 { return v.s.lastJitter.Load() }

// Latency copies the published window into dst and returns the number of
// real samples at its front.
func (v View) Latency(dst *LatencyStats) int {
	for i := range dst {
		dst[i] = v.s.latency[i].Load()
	}
	n := int(v.s.samples.Load())
	if n > len(dst) {
		n = len(dst)
	}
	return n
}
