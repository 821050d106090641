// ════════════════════════════════════════════════════════════════════════════════════════════════
// ⚙️ WORKER
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Component: Schedulable Unit of Deferred Work
//
// Description:
//   A Worker pairs a Handler with a private response ring and a busy flag. The realtime
//   thread calls ScheduleWork and ProcessWorkResponses; the scheduler's background thread
//   calls Handler.ProcessRequest, which may answer through RespondToWork any number of times.
//
// Threading:
//   - ScheduleWork, ProcessWorkResponses: one realtime goroutine per worker
//   - ProcessRequest, RespondToWork: the scheduler's background thread
//   - Close, SetSize: the owner, while no request is outstanding
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package work

import (
	"fmt"
	"sync/atomic"

	"rtwork/debug"
	"rtwork/ring"
	"rtwork/utils"
)

// Responder carries responses from the background thread to the realtime thread.
type Responder interface {
	// RespondToWork queues payload for ProcessResponse. Returns false if the
	// response channel is full; the payload is dropped.
	RespondToWork(payload []byte) bool
}

// Handler is implemented by concrete workers.
type Handler interface {
	// ProcessRequest runs on the background thread. payload is valid only for
	// the duration of the call.
	ProcessRequest(r Responder, payload []byte)

	// ProcessResponse runs on the realtime thread and must not block or
	// allocate. payload is valid only for the duration of the call.
	ProcessResponse(payload []byte)
}

// HandlerFuncs adapts two functions to a Handler. Nil funcs are no-ops.
type HandlerFuncs struct {
	Request  func(r Responder, payload []byte)
	Response func(payload []byte)
}

// ProcessRequest calls h.Request.
func (h HandlerFuncs) ProcessRequest(r Responder, payload []byte) {
	if h.Request != nil {
		h.Request(r, payload)
	}
}

// ProcessResponse calls h.Response.
func (h HandlerFuncs) ProcessResponse(payload []byte) {
	if h.Response != nil {
		h.Response(payload)
	}
}

// Worker is one schedulable unit bound to a Scheduler.
type Worker struct {
	owner   *Scheduler
	id      uint32
	handler Handler

	flag      busyFlag
	responses atomic.Pointer[ring.Ring]
	requested atomic.Int64 // response capacity asked for before rounding

	// Counters
	requests  atomic.Uint64
	rejected  atomic.Uint64
	responded atomic.Uint64
	dropped   atomic.Uint64
	delivered atomic.Uint64
	panics    atomic.Uint64
}

var _ Responder = (*Worker)(nil)

// NewWorker creates a worker with a private response channel of
// responseCapacity bytes, rounded up to a power of two, and registers it
// with s.
func NewWorker(s *Scheduler, responseCapacity int, h Handler) (*Worker, error) {
	if s == nil {
		return nil, fmt.Errorf("work: nil scheduler")
	}
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if h == nil {
		return nil, ErrNilHandler
	}
	if responseCapacity <= 0 || responseCapacity > ring.MaxCapacity {
		return nil, fmt.Errorf("%w: response capacity %d", ErrInvalidCapacity, responseCapacity)
	}

	w := &Worker{owner: s, handler: h}
	w.responses.Store(ring.New(responseCapacity))
	w.requested.Store(int64(responseCapacity))
	s.registerWorker(w)
	return w, nil
}

// ID returns the scheduler-assigned id.
func (w *Worker) ID() uint32 { return w.id }

// IsWorking reports whether a request is outstanding.
func (w *Worker) IsWorking() bool {
	st := w.flag.load()
	return st != flagIdle && st != flagClosed
}

// ============================================================================
// REALTIME THREAD
// ============================================================================

// ScheduleWork hands payload to the background thread.
//
// Returns false, with no state change, when a previous request has not yet
// round-tripped, when the worker or its scheduler is closed, or when the
// request channel is full. Never blocks, never allocates.
//
//go:nosplit
//go:inline
func (w *Worker) ScheduleWork(payload []byte) bool {
	if !w.flag.transition(flagIdle, flagScheduled) {
		w.rejected.Add(1)
		return false
	}
	if !w.owner.scheduleWork(w, payload) {
		w.flag.set(flagIdle)
		w.rejected.Add(1)
		return false
	}
	return true
}

// ProcessWorkResponses delivers every buffered response to
// Handler.ProcessResponse in production order. Once the background thread
// has finished the outstanding request and its responses are delivered, the
// worker becomes idle. Call once per realtime cycle.
//
//go:nosplit
//go:inline
func (w *Worker) ProcessWorkResponses() {
	// Load before draining: every response is written before Complete is stored
	st := w.flag.load()

	rb := w.responses.Load()
	for {
		f, ok := rb.PeekFrame()
		if !ok {
			break
		}
		w.handler.ProcessResponse(f.Payload)
		rb.Consume()
		w.delivered.Add(1)
	}

	if st == flagComplete {
		w.flag.transition(flagComplete, flagIdle)
	}
}

// ============================================================================
// BACKGROUND THREAD
// ============================================================================

// RespondToWork queues payload for the realtime thread. Call only from
// within Handler.ProcessRequest.
//
//go:nosplit
//go:inline
func (w *Worker) RespondToWork(payload []byte) bool {
	if w.responses.Load().WriteIfFits(0, payload) {
		w.responded.Add(1)
		return true
	}
	w.dropped.Add(1)
	return false
}

// process runs one request on the background thread.
func (w *Worker) process(payload []byte) {
	w.flag.set(flagWorking)
	w.requests.Add(1)
	w.invoke(payload)
	w.flag.set(flagComplete)
}

// invoke calls ProcessRequest, containing a panic to this request.
func (w *Worker) invoke(payload []byte) {
	defer func() {
		if r := recover(); r != nil {
			w.panics.Add(1)
			debug.DropError("WORKER_PANIC "+w.owner.name+"/"+utils.Utoa(uint64(w.id)), fmt.Errorf("%v", r))
		}
	}()
	w.handler.ProcessRequest(w, payload)
}

// ============================================================================
// OWNER OPERATIONS
// ============================================================================

// SetSize replaces the response channel with one of responseCapacity bytes,
// rounded up to a power of two. Returns ErrBusy while a request is outstanding.
func (w *Worker) SetSize(responseCapacity int) error {
	if responseCapacity <= 0 || responseCapacity > ring.MaxCapacity {
		return fmt.Errorf("%w: response capacity %d", ErrInvalidCapacity, responseCapacity)
	}
	// Hold Scheduled while swapping so ScheduleWork is refused
	if !w.flag.transition(flagIdle, flagScheduled) {
		return ErrBusy
	}
	w.responses.Store(ring.New(responseCapacity))
	w.requested.Store(int64(responseCapacity))
	w.flag.set(flagIdle)
	return nil
}

// Close deregisters the worker. Returns ErrBusy while a request is
// outstanding. Closing twice is a programming error and panics.
func (w *Worker) Close() error {
	if w.flag.load() == flagClosed {
		w.owner.deregisterWorker(w) // panics: already removed
	}
	if !w.flag.transition(flagIdle, flagClosed) {
		return ErrBusy
	}
	w.owner.deregisterWorker(w)
	return nil
}

// ============================================================================
// INTROSPECTION
// ============================================================================

// WorkerStats is a point-in-time snapshot of worker counters.
type WorkerStats struct {
	ID               uint32 `json:"id"`
	State            string `json:"state"`
	Busy             bool   `json:"busy"`
	ResponseCapacity int    `json:"response_capacity"`
	ResponseFree     int    `json:"response_free"`

	// ResponseRequested is the capacity passed to NewWorker or SetSize, before rounding.
	ResponseRequested int `json:"response_requested"`

	Requests         uint64 `json:"requests"`
	Rejected         uint64 `json:"rejected"`
	Responses        uint64 `json:"responses"`
	ResponsesDropped uint64 `json:"responses_dropped"`
	Delivered        uint64 `json:"delivered"`
	Panics           uint64 `json:"panics"`
}

// Stats returns a snapshot. Safe from any goroutine.
func (w *Worker) Stats() WorkerStats {
	rb := w.responses.Load()
	st := w.flag.load()
	return WorkerStats{
		ID:               w.id,
		State:            flagName(st),
		Busy:             st != flagIdle && st != flagClosed,
		ResponseCapacity: rb.Capacity(),
		ResponseFree:     rb.Free(),

		ResponseRequested: int(w.requested.Load()),
		Requests:         w.requests.Load(),
		Rejected:         w.rejected.Load(),
		Responses:        w.responded.Load(),
		ResponsesDropped: w.dropped.Load(),
		Delivered:        w.delivered.Load(),
		Panics:           w.panics.Load(),
	}
}
