// sched_stub.go - RT scheduling on hosts without the Linux interfaces
//
// Keeps the OSScheduler API so callers compile everywhere; Spawn then fails
// with ErrSchedPolicy wrapping ErrUnsupported, which is a startup-time
// environment error.

//go:build !linux

package rt

import "fmt"

// OSScheduler reports ErrUnsupported for every request.
type OSScheduler struct{}

func (OSScheduler) LockMemory() error { return fmt.Errorf("%w: %w", ErrMemoryLock, ErrUnsupported) }
func (OSScheduler) ApplyRealtime(_ int) error { return ErrUnsupported }
func (OSScheduler) PinCPU(_ int) error { return ErrUnsupported }
