// control.go — Lifecycle flags for the background scheduler thread
// ============================================================================
// SCHEDULER LIFECYCLE ORCHESTRATION
// ============================================================================
//
// Control package provides the lock-free state machine that coordinates
// start and graceful shutdown of a scheduler's background thread.
//
// Architecture overview:
//   • Single atomic word per scheduler: Stopped → Running → Stopping → Stopped
//   • Exit flag polled by the background loop after every wake
//   • Compare-and-swap transitions so concurrent Start/Stop calls cannot
//     both win
//
// Threading model:
//   • Owner goroutine calls Begin / BeginStop / Finish
//   • Background thread polls Exiting() after each semaphore wake
//   • Any goroutine may read State() for diagnostics

package control

import "sync/atomic"

// ============================================================================
// STATES
// ============================================================================

// State is a scheduler lifecycle phase.
type State uint32

const (
	// Stopped means no background thread exists.
	Stopped State = iota
	// Running means the background thread is dispatching requests.
	Running
	// Stopping means the exit flag is set and the owner is joining the thread.
	Stopping
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case Stopped:
		return "stopped"
	case Running:
		return "running"
	case Stopping:
		return "stopping"
	}
	return "unknown"
}

// ============================================================================
// LIFECYCLE
// ============================================================================

// Lifecycle is the zero-value-ready state machine. Zero value is Stopped.
type Lifecycle struct {
	state atomic.Uint32
}

// Begin transitions Stopped → Running. Returns false from any other state.
//
//go:nosplit
//go:inline
func (l *Lifecycle) Begin() bool {
	return l.state.CompareAndSwap(uint32(Stopped), uint32(Running))
}

// BeginStop transitions Running → Stopping. Returns false from any other state.
// Once it returns true the background loop observes Exiting() on its next wake.
//
//go:nosplit
//go:inline
func (l *Lifecycle) BeginStop() bool {
	return l.state.CompareAndSwap(uint32(Running), uint32(Stopping))
}

// Finish transitions to Stopped unconditionally. Called after the join.
//
//go:nosplit
//go:inline
func (l *Lifecycle) Finish() {
	l.state.Store(uint32(Stopped))
}

// State returns the current phase.
//
//go:nosplit
//go:inline
func (l *Lifecycle) State() State {
	return State(l.state.Load())
}

// Running reports whether the phase is Running.
//
//go:nosplit
//go:inline
func (l *Lifecycle) Running() bool {
	return l.State() == Running
}

// Exiting reports whether the background loop must return.
//
//go:nosplit
//go:inline
func (l *Lifecycle) Exiting() bool {
	return l.State() != Running
}
