// ════════════════════════════════════════════════════════════════════════════════════════════════
// ⚡ REAL-TIME THREAD SUPPORT
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Component: RT thread launch, absolute-deadline clock and periodic executor
//
// Description:
//   Shapes how the RT goroutine begins executing: its OS thread is locked, optionally pinned
//   to a core, switched to SCHED_FIFO at a fixed priority with reset-on-fork, and the process
//   memory is locked once beforehand. The executor then wakes on absolute monotonic deadlines.
//
// Platform split:
//   - *_linux.go: golang.org/x/sys/unix (mlockall, sched_setattr, sched_setaffinity,
//     clock_gettime, clock_nanosleep TIMER_ABSTIME)
//   - *_stub.go: ErrUnsupported for scheduling, time package for the clock
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package rt

import "errors"

var (
	// ErrSchedPolicy means the RT thread could not enter SCHED_FIFO. The
	// task is never started.
	ErrSchedPolicy = errors.New("rt: cannot set real-time scheduling policy")

	// ErrMemoryLock means mlockall failed.
	ErrMemoryLock = errors.New("rt: cannot lock process memory")

	// ErrAffinity means the RT thread could not be pinned to its CPU.
	ErrAffinity = errors.New("rt: cannot set cpu affinity")

	// ErrUnsupported is returned on hosts without the Linux RT interfaces.
	ErrUnsupported = errors.New("rt: real-time scheduling unsupported on this platform")
)

// Scheduler applies OS-level real-time settings. Every method except
// LockMemory acts on the calling OS thread.
type Scheduler interface {
	LockMemory() error
	ApplyRealtime(priority int) error
	PinCPU(cpu int) error
}

// NoopScheduler accepts every request without touching the OS. It backs
// simulation mode on hosts where the process lacks CAP_SYS_NICE.
type NoopScheduler struct{}

func (NoopScheduler) LockMemory() error { return nil }
func (NoopScheduler) ApplyRealtime(_ int) error { return nil }
func (NoopScheduler) PinCPU(_ int) error { return nil }
