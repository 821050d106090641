// wake_linux.go — eventfd(2) backend in EFD_SEMAPHORE mode
//
// Each read(2) decrements the eventfd counter by exactly one, each write(2) of
// the value 1 increments it. The descriptor is non-blocking so TryWait is a
// plain read; Wait parks in poll(2) until the counter becomes non-zero.

//go:build linux

package wake

import (
	"encoding/binary"
	"fmt"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// postWord is the 8-byte host-order value 1 written by Post.
var postWord [8]byte

func init() {
	binary.NativeEndian.PutUint64(postWord[:], 1)
}

// Signal is a kernel-backed counting semaphore.
type Signal struct {
	fd     int
	closed atomic.Bool
}

// New creates a Signal holding initial pending posts.
func New(initial uint32) (*Signal, error) {
	fd, err := unix.Eventfd(uint(initial), unix.EFD_SEMAPHORE|unix.EFD_NONBLOCK|unix.EFD_CLOEXEC)
	if err != nil {
		return nil, fmt.Errorf("%w: eventfd: %v", ErrCreate, err)
	}
	return &Signal{fd: fd}, nil
}

// Post adds one pending wake. No-op after Close.
//
//go:nosplit
//go:inline
func (s *Signal) Post() {
	if s.closed.Load() {
		return
	}
	for {
		_, err := unix.Write(s.fd, postWord[:])
		if err != unix.EINTR {
			return
		}
	}
}

// TryWait consumes one pending wake without blocking.
//
//go:nosplit
//go:inline
func (s *Signal) TryWait() bool {
	if s.closed.Load() {
		return false
	}
	var buf [8]byte
	for {
		_, err := unix.Read(s.fd, buf[:])
		switch err {
		case nil:
			return true
		case unix.EINTR:
			continue
		default:
			return false
		}
	}
}

// Wait blocks until a wake is pending and consumes it.
// Returns early if the Signal is closed underneath it.
func (s *Signal) Wait() {
	var buf [8]byte
	fds := [1]unix.PollFd{{Fd: int32(s.fd), Events: unix.POLLIN}}
	for {
		_, err := unix.Read(s.fd, buf[:])
		switch err {
		case nil:
			return
		case unix.EINTR:
			continue
		case unix.EAGAIN:
			if s.closed.Load() {
				return
			}
			if _, perr := unix.Poll(fds[:], -1); perr != nil && perr != unix.EINTR {
				return
			}
		default:
			// EBADF after Close, or an unrecoverable descriptor error
			return
		}
	}
}

// Close releases the descriptor. Safe to call more than once.
func (s *Signal) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	return unix.Close(s.fd)
}
