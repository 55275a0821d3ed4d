// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: constants.go - RT core tunables
//
// Purpose:
//   - Defines the compile-time defaults for the real-time control core:
//     tick cadence, jitter window, stability thresholds and queue depths.
//   - config.Load falls back to these when a key is absent.
//
// ⚠️ No runtime logic here: all values must be compile-time resolvable
// ─────────────────────────────────────────────────────────────────────────────

package constants

import "time"

// ───────────────────────────── Scheduling ──────────────────────────────────

const (
	// DefaultPeriod is the RT tick cadence (1 kHz).
	DefaultPeriod = time.Millisecond

	// DefaultPriority is the SCHED_FIFO priority of the RT thread.
	DefaultPriority = 80

	// MinPriority and MaxPriority bound the Linux real-time priority range.
	MinPriority = 1
	MaxPriority = 99

	// NoCPU disables CPU pinning of the RT thread.
	NoCPU = -1
)

// ───────────────────────────── Stability ───────────────────────────────────

const (
	// JitterWindow is the number of deviation samples kept by the monitor
	// and published through the shared state snapshot.
	JitterWindow = 100

	// AcceptableDeviation is the largest |actual - scheduled| wake deviation
	// counted as on time.
	AcceptableDeviation = 200 * time.Microsecond

	// ThresholdPercent is the share of on-time samples required for a
	// stable verdict (floor division, no rounding up).
	ThresholdPercent = 95
)

// ───────────────────────────── Messaging ───────────────────────────────────

const (
	// CommandQueueDepth is the capacity of the supervisor → RT channel.
	CommandQueueDepth = 16

	// ResponseQueueDepth is the capacity of the RT → supervisor channel.
	// Log records and stability notifications share it with replies.
	ResponseQueueDepth = 64

	// LogPayloadSize is the fixed byte width of a log record payload.
	LogPayloadSize = 64
)

// ─────────────────────────── Supervision ───────────────────────────────────

const (
	// StabilizePoll is how often the supervisor checks the stabilized flag.
	StabilizePoll = 500 * time.Millisecond

	// StabilizeMaxPolls bounds the stabilization wait (20 × 500 ms ≈ 10 s).
	StabilizeMaxPolls = 20

	// ShutdownGrace bounds how long the supervisor waits for the RT thread
	// to observe RequestShutdown and exit.
	ShutdownGrace = 2 * time.Second

	// EnableIoTimeout bounds the wait for the RT thread to confirm EnableIo.
	EnableIoTimeout = 2 * time.Second

	// ReplyPoll is how often the supervisor drains responses while waiting
	// for an Ack, a Nack or a Pong.
	ReplyPoll = time.Millisecond

	// DefaultRunFor is the supervised run before a normal shutdown
	// (a ten-step countdown at one step per second). Zero runs until a
	// signal arrives.
	DefaultRunFor = 10 * time.Second

	// RunStep is the supervisor's work interval while the RT loop runs.
	RunStep = time.Second
)
