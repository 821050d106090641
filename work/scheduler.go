// ════════════════════════════════════════════════════════════════════════════════════════════════
// ⚡ WORK SCHEDULER
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Component: Background Dispatch Thread
//
// Description:
//   Owns one request ring shared by every worker, one wake signal and the worker registry.
//   The background goroutine is locked to an OS thread (optionally pinned to a core),
//   parks on the signal, and on every wake drains complete frames from the request ring,
//   routing each to its worker's ProcessRequest.
//
// Lifecycle:
//   Stopped → Start → Running → Stop → Stopping → (join, discard) → Stopped
//
// Realtime contract:
//   scheduleWork claims a frame in the request ring with one CAS, copies, publishes, posts
//   the signal. It never sleeps, never allocates, never waits on another producer, and
//   reports a full ring (or a closed scheduler) as false.
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package work

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"

	"rtwork/constants"
	"rtwork/control"
	"rtwork/debug"
	"rtwork/ring"
	"rtwork/utils"
	"rtwork/wake"
)

// RequiredSpace returns the channel bytes one frame with payloadSize bytes occupies.
func RequiredSpace(payloadSize uint32) uint32 {
	return ring.RequiredSpace(payloadSize)
}

// SchedulerConfig configures NewScheduler.
type SchedulerConfig struct {
	// Name labels the background thread in diagnostics and metrics.
	Name string

	// RequestCapacity is the requested request ring size in bytes. The ring
	// rounds it up to a power of two; Stats reports both numbers.
	RequestCapacity int

	// Core pins the background thread to a CPU. constants.NoCore disables pinning.
	Core int
}

// DefaultSchedulerConfig returns a config with the package defaults.
func DefaultSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		Name:            constants.DefaultSchedulerName,
		RequestCapacity: constants.DefaultRequestCapacity,
		Core:            constants.NoCore,
	}
}

// Scheduler runs deferred work for any number of workers on one background thread.
type Scheduler struct {
	id   uuid.UUID
	name string
	core int

	requests  *ring.Ring // shared request channel, lock-free for concurrent producers
	requested int        // capacity asked for before rounding
	sem       wake.Waiter
	life      control.Lifecycle
	closed    atomic.Bool
	done      chan struct{}

	reg *registry

	// Counters
	scheduled  atomic.Uint64
	rejected   atomic.Uint64
	dispatched atomic.Uint64
	unroutable atomic.Uint64
	discarded  atomic.Uint64
	wakeups    atomic.Uint64
}

// NewScheduler creates a stopped scheduler. The request capacity rounds up
// to the next power of two, so exact-fit arithmetic applies to the rounded
// size reported by Stats().Capacity.
//
// Fails when the request capacity is out of range or when the wake signal's
// kernel primitive cannot be created. Both are startup conditions; callers
// should treat them as fatal.
func NewScheduler(cfg SchedulerConfig) (*Scheduler, error) {
	if cfg.RequestCapacity <= 0 || cfg.RequestCapacity > ring.MaxCapacity {
		return nil, fmt.Errorf("%w: request capacity %d", ErrInvalidCapacity, cfg.RequestCapacity)
	}
	if cfg.Name == "" {
		cfg.Name = constants.DefaultSchedulerName
	}

	sem, err := wake.New(0)
	if err != nil {
		return nil, fmt.Errorf("work: scheduler %q: %w", cfg.Name, err)
	}

	s := &Scheduler{
		id:        uuid.New(),
		name:      cfg.Name,
		core:      cfg.Core,
		requests:  ring.New(cfg.RequestCapacity),
		requested: cfg.RequestCapacity,
		sem:       sem,
		reg:       newRegistry(),
	}
	return s, nil
}

// ID returns the instance identity assigned at construction.
func (s *Scheduler) ID() uuid.UUID { return s.id }

// Name returns the configured thread name.
func (s *Scheduler) Name() string { return s.name }

// State returns the lifecycle phase.
func (s *Scheduler) State() control.State { return s.life.State() }

// ============================================================================
// LIFECYCLE
// ============================================================================

// Start spawns the background thread.
func (s *Scheduler) Start() error {
	if s.closed.Load() {
		return ErrClosed
	}
	if !s.life.Begin() {
		return ErrRunning
	}

	done := make(chan struct{})
	s.done = done
	go s.run(done)

	debug.DropMessage("SCHED_START", s.name+" request_capacity="+utils.Itoa(s.requests.Capacity()))
	return nil
}

// Stop signals exit, wakes and joins the background thread, then discards
// every request still unread. Each discarded request releases its worker's
// busy flag. Call only once no further ScheduleWork calls can happen.
func (s *Scheduler) Stop() error {
	if !s.life.BeginStop() {
		return ErrNotRunning
	}

	s.sem.Post()
	<-s.done

	n := s.discardPending()
	s.life.Finish()

	if n > 0 {
		debug.DropMessage("SCHED_STOP", s.name+" discarded "+utils.Itoa(n)+" pending requests")
	} else {
		debug.DropMessage("SCHED_STOP", s.name)
	}
	return nil
}

// Close stops the scheduler if it is running, discards any request still
// queued (releasing its worker) and releases the wake signal. Afterwards
// ScheduleWork on any of its workers returns false, and the workers can
// still be closed. Like Stop, call it once no ScheduleWork call is in flight.
func (s *Scheduler) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	if s.life.Running() {
		if err := s.Stop(); err != nil {
			return err
		}
	}
	if n := s.discardPending(); n > 0 {
		debug.DropMessage("SCHED_CLOSE", s.name+" discarded "+utils.Itoa(n)+" pending requests")
	}
	return s.sem.Close()
}

// discardPending drops every unread request after the thread has joined.
func (s *Scheduler) discardPending() int {
	n := 0
	for {
		f, ok := s.requests.PeekFrame()
		if !ok {
			break
		}
		if w := s.reg.lookup(f.ID); w != nil {
			w.flag.transition(flagScheduled, flagIdle)
		}
		s.requests.Consume()
		n++
	}
	s.discarded.Add(uint64(n))

	// Posts belonging to discarded frames
	for s.sem.TryWait() {
	}
	return n
}

// ============================================================================
// BACKGROUND THREAD
// ============================================================================

// run is the background loop: wait, drain, repeat until the exit flag is set.
// The flag is also checked between frames so a Stop issued during a long
// ProcessRequest leaves the remaining frames for discardPending.
func (s *Scheduler) run(done chan<- struct{}) {
	if err := ring.Pin(s.core); err != nil {
		debug.DropError("SCHED_PIN "+s.name, err)
	}
	defer func() {
		ring.Unpin()
		close(done)
	}()

	for {
		s.sem.Wait()
		if s.life.Exiting() {
			return
		}
		s.wakeups.Add(1)

		for {
			f, ok := s.requests.PeekFrame()
			if !ok {
				break
			}
			s.dispatchFrame(f)
			s.requests.Consume()
			if s.life.Exiting() {
				return
			}
		}
	}
}

// dispatchFrame routes one request frame to its worker.
func (s *Scheduler) dispatchFrame(f ring.Frame) {
	w := s.reg.lookup(f.ID)
	if w == nil {
		s.unroutable.Add(1)
		return
	}
	s.dispatched.Add(1)
	w.process(f.Payload)
}

// ============================================================================
// REGISTRY
// ============================================================================

// registerWorker assigns the next sequential id to w.
func (s *Scheduler) registerWorker(w *Worker) uint32 {
	return s.reg.add(w)
}

// deregisterWorker removes w. Panics if w is not registered.
func (s *Scheduler) deregisterWorker(w *Worker) {
	s.reg.remove(w)
}

// ============================================================================
// REALTIME PRODUCER PATH
// ============================================================================

// scheduleWork enqueues payload for w and wakes the background thread.
// Fails only when the request ring is full or the scheduler is closed.
//
//go:nosplit
//go:inline
func (s *Scheduler) scheduleWork(w *Worker, payload []byte) bool {
	if s.closed.Load() {
		s.rejected.Add(1)
		return false
	}
	if !s.requests.WriteIfFits(w.id, payload) {
		s.rejected.Add(1)
		return false
	}
	s.scheduled.Add(1)
	s.sem.Post()
	return true
}

// ============================================================================
// INTROSPECTION
// ============================================================================

// SchedulerStats is a point-in-time snapshot of scheduler counters.
type SchedulerStats struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	State    string `json:"state"`
	Workers  int    `json:"workers"`
	Capacity int    `json:"capacity"`
	Free     int    `json:"free"`

	// RequestedCapacity is the capacity passed to NewScheduler, before rounding.
	RequestedCapacity int `json:"requested_capacity"`

	Scheduled  uint64 `json:"scheduled"`
	Rejected   uint64 `json:"rejected"`
	Dispatched uint64 `json:"dispatched"`
	Unroutable uint64 `json:"unroutable"`
	Discarded  uint64 `json:"discarded"`
	Wakeups    uint64 `json:"wakeups"`
}

// Stats returns a snapshot. Safe from any goroutine.
func (s *Scheduler) Stats() SchedulerStats {
	return SchedulerStats{
		ID:       s.id.String(),
		Name:     s.name,
		State:    s.life.State().String(),
		Workers:  s.reg.count(),
		Capacity: s.requests.Capacity(),
		Free:     s.requests.Free(),

		RequestedCapacity: s.requested,

		Scheduled:  s.scheduled.Load(),
		Rejected:   s.rejected.Load(),
		Dispatched: s.dispatched.Load(),
		Unroutable: s.unroutable.Load(),
		Discarded:  s.discarded.Load(),
		Wakeups:    s.wakeups.Load(),
	}
}

// WorkerStats returns a snapshot for every registered worker in id order.
func (s *Scheduler) WorkerStats() []WorkerStats {
	ws := s.reg.snapshot()
	out := make([]WorkerStats, len(ws))
	for i, w := range ws {
		out[i] = w.Stats()
	}
	return out
}

// PendingRequests counts complete request frames not yet dispatched.
// Only meaningful while the scheduler is stopped.
func (s *Scheduler) PendingRequests() int {
	return s.requests.Pending()
}
