// pin_stub.go - thread locking without CPU affinity
//
// Platforms without sched_setaffinity(2) still get a dedicated OS thread;
// the core index is ignored.

//go:build !linux

package ring

import "runtime"

// Pin locks the calling goroutine to its OS thread. core is ignored.
func Pin(core int) error {
	runtime.LockOSThread()
	return nil
}

// Unpin releases the OS thread lock taken by Pin.
func Unpin() {
	runtime.UnlockOSThread()
}
