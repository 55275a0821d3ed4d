package rt

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"go.uber.org/zap"

	"rtcore/constants"
	"rtcore/debug"
)

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// LAUNCHER
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// Launcher starts RT threads. Build it with NewLauncher: the zero value
// would pin to CPU 0.
type Launcher struct {
	Scheduler Scheduler
	Logger    *zap.Logger

	// RequireMemoryLock turns an mlockall failure into a Spawn error.
	// Otherwise the failure is logged and startup continues degraded.
	RequireMemoryLock bool

	// CPU pins the RT thread to one core; constants.NoCPU disables it.
	CPU int

	lockOnce sync.Once
	lockErr  error
}

// NewLauncher returns a launcher on the OS scheduler without pinning.
func NewLauncher(log *zap.Logger) *Launcher {
	return &Launcher{
		Scheduler: OSScheduler{},
		Logger:    log,
		CPU:       constants.NoCPU,
	}
}

func (l *Launcher) scheduler() Scheduler {
	if l.Scheduler == nil {
		return OSScheduler{}
	}
	return l.Scheduler
}

// LockMemory asks the scheduler to lock memory once per launcher and
// returns the outcome of that attempt on every call. OSScheduler itself
// locks at most once per process.
func (l *Launcher) LockMemory() error {
	l.lockOnce.Do(func() {
		l.lockErr = l.scheduler().LockMemory()
		if l.lockErr != nil {
			debug.DropError(l.Logger, "memory lock failed", l.lockErr)
		}
	})
	return l.lockErr
}

// Spawn starts task on a dedicated OS thread running SCHED_FIFO at
// priority.
//
// Sequence:
//  1. Lock process memory (once per process)
//  2. Start a goroutine and lock it to its OS thread
//  3. Pin the thread to CPU when configured (failure is logged)
//  4. Apply SCHED_FIFO at priority with reset-on-fork
//  5. Run task
//
// Spawn returns only after step 4 finished. If the policy cannot be set the
// task never runs and Spawn returns an error wrapping ErrSchedPolicy.
//
// Panics:
//   - priority outside [1, 99]
func (l *Launcher) Spawn(priority int, task func() error) (*Thread, error) {
	if priority < constants.MinPriority || priority > constants.MaxPriority {
		panic(fmt.Sprintf("rt: priority %d outside [%d, %d]",
			priority, constants.MinPriority, constants.MaxPriority))
	}

	if err := l.LockMemory(); err != nil && l.RequireMemoryLock {
		return nil, err
	}

	th := &Thread{priority: priority, done: make(chan struct{})}
	sched := l.scheduler()
	cpu := l.CPU

	type setup struct{ pinErr, schedErr error }
	ready := make(chan setup, 1)

	go func() {
		// The thread is never unlocked: it carries SCHED_FIFO and must be
		// torn down with this goroutine instead of returning to the pool.
		runtime.LockOSThread()
		defer close(th.done)

		var s setup
		if cpu != constants.NoCPU {
			if err := sched.PinCPU(cpu); err != nil {
				s.pinErr = fmt.Errorf("%w (cpu %d): %w", ErrAffinity, cpu, err)
			}
		}
		if err := sched.ApplyRealtime(priority); err != nil {
			s.schedErr = fmt.Errorf("%w (priority %d): %w", ErrSchedPolicy, priority, err)
			th.err = s.schedErr
			ready <- s
			return
		}
		ready <- s

		th.err = task()
	}()

	s := <-ready
	if s.pinErr != nil {
		debug.DropError(l.Logger, "rt thread affinity", s.pinErr)
	}
	if s.schedErr != nil {
		<-th.done
		debug.DropError(l.Logger, "rt thread scheduling", s.schedErr)
		return nil, s.schedErr
	}

	if l.Logger != nil {
		l.Logger.Info("rt thread starting", zap.Int("priority", priority), zap.Int("cpu", cpu))
	}
	return th, nil
}

// ═══════════════════════════════════════════════════════════════════════════════════════════════
// THREAD HANDLE
// ═══════════════════════════════════════════════════════════════════════════════════════════════

// Thread is the join handle of a spawned RT thread.
type Thread struct {
	priority int
	done     chan struct{}
	err      error
}

// Priority returns the SCHED_FIFO priority the thread runs at.
func (t *Thread) Priority() int { return t.priority }

// Done is closed when the task returns.
func (t *Thread) Done() <-chan struct{} { return t.done }

// Finished reports whether the task has returned, without blocking.
func (t *Thread) Finished() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Join waits for the task and returns its error.
func (t *Thread) Join() error {
	<-t.done
	return t.err
}

// JoinContext waits for the task or for ctx, whichever comes first.
func (t *Thread) JoinContext(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}
