// pin_linux.go - Linux CPU affinity via sched_setaffinity(2)

//go:build linux

package ring

import (
	"runtime"

	"golang.org/x/sys/unix"
)

// Pin locks the calling goroutine to its OS thread and, when core >= 0,
// restricts that thread to the given CPU. The thread stays locked even if
// the affinity call fails; callers Unpin on exit.
func Pin(core int) error {
	runtime.LockOSThread()
	if core < 0 {
		return nil
	}
	var set unix.CPUSet
	set.Zero()
	set.Set(core)
	return unix.SchedSetaffinity(0, &set)
}

// Unpin releases the OS thread lock taken by Pin.
func Unpin() {
	runtime.UnlockOSThread()
}
