package onboard

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// setRealtimePriority pins the calling goroutine to its thread and moves the
// thread to SCHED_FIFO. The thread is never unlocked, so it exits together
// with the goroutine instead of returning elevated to the scheduler pool.
func setRealtimePriority(priority int) error {
	if priority <= 0 {
		return nil
	}
	runtime.LockOSThread()
	attr := &unix.SchedAttr{
		Size:     unix.SizeofSchedAttr,
		Policy:   unix.SCHED_FIFO,
		Priority: uint32(priority),
	}
	return unix.SchedSetAttr(0, attr, 0)
}
