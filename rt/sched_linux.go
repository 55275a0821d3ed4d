// sched_linux.go - SCHED_FIFO, mlockall and affinity via golang.org/x/sys/unix

//go:build linux

package rt

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// OSScheduler talks to the Linux kernel.
type OSScheduler struct{}

var (
	mlockall = unix.Mlockall

	memLockOnce sync.Once
	memLockErr  error
)

// LockMemory pins all current and future pages of the process. mlockall is
// attempted once per process; later calls return the first outcome.
func (OSScheduler) LockMemory() error {
	memLockOnce.Do(func() {
		if err := mlockall(unix.MCL_CURRENT | unix.MCL_FUTURE); err != nil {
			memLockErr = fmt.Errorf("%w: %w", ErrMemoryLock, err)
		}
	})
	return memLockErr
}

// ApplyRealtime switches the calling thread to SCHED_FIFO at priority.
// SCHED_FLAG_RESET_ON_FORK keeps threads cloned from this one from
// inheriting the policy.
func (OSScheduler) ApplyRealtime(priority int) error {
	attr := unix.SchedAttr{
		Policy:   unix.SCHED_FIFO,
		Flags:    unix.SCHED_FLAG_RESET_ON_FORK,
		Priority: uint32(priority),
	}
	if err := unix.SchedSetAttr(0, &attr, 0); err != nil {
		return err
	}
	return nil
}

// PinCPU restricts the calling thread to one core.
func (OSScheduler) PinCPU(cpu int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)
	return unix.SchedSetaffinity(0, &set)
}
