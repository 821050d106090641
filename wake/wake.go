// ════════════════════════════════════════════════════════════════════════════════════════════════
// ⏰ COUNTING WAKE SIGNAL
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Component: Background Thread Wake Primitive
//
// Description:
//   Counting semaphore used to park the scheduler's background thread between bursts of
//   requests. Realtime producers Post after enqueueing a frame; the background thread Waits.
//   The backend is selected at build time: eventfd(2) in semaphore mode on Linux, an atomic
//   counter with a one-slot wake channel everywhere else.
//
// Contract:
//   - Wait blocks until one post is available and consumes exactly one
//   - Post never blocks and never allocates; safe from a realtime thread
//   - TryWait consumes one post if available without blocking
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package wake

import "errors"

// ErrCreate is wrapped by New when the kernel primitive cannot be created.
var ErrCreate = errors.New("wake: cannot create signal")

// Waiter is the contract the scheduler depends on. *Signal implements it.
type Waiter interface {
	Wait()
	Post()
	TryWait() bool
	Close() error
}

var _ Waiter = (*Signal)(nil)
