// wake_portable.go — portable backend for platforms without eventfd
//
// The count lives in an atomic; a one-slot channel carries wake tokens to
// parked waiters. A waiter that consumes a post and sees more pending passes
// the token on so no other waiter stays parked with a non-zero count.

//go:build !linux

package wake

import "sync/atomic"

// Signal is a counting semaphore built on an atomic count and a wake channel.
type Signal struct {
	count  atomic.Int64
	wake   chan struct{}
	closed atomic.Bool
}

// New creates a Signal holding initial pending posts. Never fails here.
func New(initial uint32) (*Signal, error) {
	s := &Signal{wake: make(chan struct{}, 1)}
	s.count.Store(int64(initial))
	return s, nil
}

//go:nosplit
//go:inline
func (s *Signal) kick() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Post adds one pending wake.
//
//go:nosplit
//go:inline
func (s *Signal) Post() {
	s.count.Add(1)
	s.kick()
}

// TryWait consumes one pending wake without blocking.
//
//go:nosplit
//go:inline
func (s *Signal) TryWait() bool {
	for {
		c := s.count.Load()
		if c <= 0 {
			return false
		}
		if s.count.CompareAndSwap(c, c-1) {
			if c > 1 {
				s.kick()
			}
			return true
		}
	}
}

// Wait blocks until a wake is pending and consumes it.
// Returns early if the Signal is closed underneath it.
func (s *Signal) Wait() {
	for {
		if s.TryWait() {
			return
		}
		if s.closed.Load() {
			s.kick()
			return
		}
		<-s.wake
	}
}

// Close marks the Signal closed and releases parked waiters.
func (s *Signal) Close() error {
	if s.closed.CompareAndSwap(false, true) {
		s.kick()
	}
	return nil
}
