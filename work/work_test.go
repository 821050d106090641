// ════════════════════════════════════════════════════════════════════════════════════════════════
// 🧪 TEST SUITE: SCHEDULER & WORKER ROUND TRIPS
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Component: work package
//
// Test Coverage:
//   - Ordering: per-worker request order, response order within one request
//   - Busy flag: no double dispatch, no-response round trip, discard release
//   - Capacity: request channel backpressure, response channel backpressure
//   - Lifecycle: start/stop/close errors, discard-on-shutdown and close, restart
//   - Concurrency: open reservations, several realtime producers at once
//   - Registry: sequential ids, isolation between workers, precondition panics
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package work

import (
	"bytes"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"rtwork/constants"
	"rtwork/control"
	"rtwork/utils"
)

// ============================================================================
// TEST UTILITIES AND HELPERS
// ============================================================================

const testTimeout = 5 * time.Second

// newTestScheduler builds a scheduler with the given request capacity.
func newTestScheduler(t *testing.T, capacity int) *Scheduler {
	t.Helper()
	s, err := NewScheduler(SchedulerConfig{Name: "test", RequestCapacity: capacity, Core: constants.NoCore})
	if err != nil {
		t.Fatalf("NewScheduler: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// startScheduler starts s or fails the test.
func startScheduler(t *testing.T, s *Scheduler) {
	t.Helper()
	if err := s.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
}

// newTestWorker builds a worker or fails the test.
func newTestWorker(t *testing.T, s *Scheduler, capacity int, h Handler) *Worker {
	t.Helper()
	w, err := NewWorker(s, capacity, h)
	if err != nil {
		t.Fatalf("NewWorker: %v", err)
	}
	return w
}

// waitFor polls cond until it holds or the timeout expires.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(testTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(100 * time.Microsecond)
	}
}

// roundTrip plays the realtime thread: pump responses until the worker is idle.
func roundTrip(t *testing.T, w *Worker) {
	t.Helper()
	waitFor(t, "worker round trip", func() bool {
		w.ProcessWorkResponses()
		return !w.IsWorking()
	})
}

// recorder records payloads seen on both sides of a worker.
type recorder struct {
	mu        sync.Mutex
	requests  [][]byte
	responses [][]byte
	respond   func(r Responder, payload []byte)
}

func (rec *recorder) ProcessRequest(r Responder, payload []byte) {
	rec.mu.Lock()
	rec.requests = append(rec.requests, append([]byte(nil), payload...))
	rec.mu.Unlock()
	if rec.respond != nil {
		rec.respond(r, payload)
	}
}

func (rec *recorder) ProcessResponse(payload []byte) {
	rec.mu.Lock()
	rec.responses = append(rec.responses, append([]byte(nil), payload...))
	rec.mu.Unlock()
}

func (rec *recorder) requestCount() int {
	rec.mu.Lock()
	defer rec.mu.Unlock()
	return len(rec.requests)
}

// echo responds with the request payload.
func echo(r Responder, payload []byte) { r.RespondToWork(payload) }

// ============================================================================
// CONSTRUCTION
// ============================================================================

func TestNewScheduler_InvalidCapacity(t *testing.T) {
	for _, c := range []int{0, -5, constants.MaxChannelCapacity + 1} {
		if _, err := NewScheduler(SchedulerConfig{RequestCapacity: c}); !errors.Is(err, ErrInvalidCapacity) {
			t.Errorf("capacity %d: err = %v, want ErrInvalidCapacity", c, err)
		}
	}
}

func TestNewScheduler_Defaults(t *testing.T) {
	s, err := NewScheduler(DefaultSchedulerConfig())
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if s.Name() != constants.DefaultSchedulerName {
		t.Errorf("Name() = %q", s.Name())
	}
	if s.State() != control.Stopped {
		t.Errorf("State() = %v, want stopped", s.State())
	}
	st := s.Stats()
	if st.Capacity != constants.DefaultRequestCapacity || st.Free != st.Capacity {
		t.Errorf("capacity=%d free=%d", st.Capacity, st.Free)
	}
	if st.ID != s.ID().String() {
		t.Errorf("Stats().ID = %q, want %q", st.ID, s.ID())
	}
}

func TestNewWorker_Validation(t *testing.T) {
	s := newTestScheduler(t, 256)

	if _, err := NewWorker(s, 64, nil); !errors.Is(err, ErrNilHandler) {
		t.Errorf("nil handler: err = %v", err)
	}
	if _, err := NewWorker(s, 0, &recorder{}); !errors.Is(err, ErrInvalidCapacity) {
		t.Errorf("zero capacity: err = %v", err)
	}
	if _, err := NewWorker(nil, 64, &recorder{}); err == nil {
		t.Error("nil scheduler should fail")
	}
}

func TestRequiredSpace(t *testing.T) {
	if RequiredSpace(20) != 28 {
		t.Fatalf("RequiredSpace(20) = %d, want 28", RequiredSpace(20))
	}
}

// ============================================================================
// LIFECYCLE
// ============================================================================

func TestScheduler_LifecycleErrors(t *testing.T) {
	s := newTestScheduler(t, 256)

	if err := s.Stop(); !errors.Is(err, ErrNotRunning) {
		t.Errorf("Stop while stopped: err = %v", err)
	}
	startScheduler(t, s)
	if err := s.Start(); !errors.Is(err, ErrRunning) {
		t.Errorf("Start while running: err = %v", err)
	}
	if s.State() != control.Running {
		t.Errorf("State() = %v, want running", s.State())
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if s.State() != control.Stopped {
		t.Errorf("State() after Stop = %v", s.State())
	}

	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := s.Start(); !errors.Is(err, ErrClosed) {
		t.Errorf("Start after Close: err = %v", err)
	}
	if _, err := NewWorker(s, 64, &recorder{}); !errors.Is(err, ErrClosed) {
		t.Errorf("NewWorker after Close: err = %v", err)
	}
}

func TestScheduler_CloseStopsRunning(t *testing.T) {
	s, err := NewScheduler(SchedulerConfig{RequestCapacity: 128, Core: constants.NoCore})
	if err != nil {
		t.Fatal(err)
	}
	startScheduler(t, s)
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if s.State() != control.Stopped {
		t.Fatalf("State() after Close = %v", s.State())
	}
	if err := s.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestScheduler_ScheduleAfterCloseRefused(t *testing.T) {
	s, err := NewScheduler(SchedulerConfig{RequestCapacity: 128, Core: constants.NoCore})
	if err != nil {
		t.Fatal(err)
	}
	w := newTestWorker(t, s, 64, &recorder{})
	startScheduler(t, s)
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if w.ScheduleWork([]byte("late")) {
		t.Fatal("ScheduleWork on a closed scheduler should be refused")
	}
	if w.IsWorking() {
		t.Fatal("refused worker must stay idle")
	}
	if st := s.Stats(); st.Scheduled != 0 || st.Rejected != 1 {
		t.Fatalf("scheduled=%d rejected=%d", st.Scheduled, st.Rejected)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("worker Close after scheduler Close: %v", err)
	}
}

func TestScheduler_CloseReleasesQueuedWork(t *testing.T) {
	s, err := NewScheduler(SchedulerConfig{RequestCapacity: 128, Core: constants.NoCore})
	if err != nil {
		t.Fatal(err)
	}
	rec := &recorder{}
	w := newTestWorker(t, s, 64, rec)

	// Never started: the frame sits in the channel until Close
	if !w.ScheduleWork([]byte("queued")) {
		t.Fatal("ScheduleWork before Start should enqueue")
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if w.IsWorking() {
		t.Fatal("Close should release the worker of a queued request")
	}
	if st := s.Stats(); st.Discarded != 1 {
		t.Fatalf("Discarded = %d, want 1", st.Discarded)
	}
	if s.PendingRequests() != 0 {
		t.Fatalf("PendingRequests() = %d after Close", s.PendingRequests())
	}
	if rec.requestCount() != 0 {
		t.Fatal("queued request must not be dispatched by Close")
	}
	if err := w.Close(); err != nil {
		t.Fatalf("worker Close: %v", err)
	}
}

func TestScheduler_WorkScheduledBeforeStart(t *testing.T) {
	s := newTestScheduler(t, 256)
	rec := &recorder{respond: echo}
	w := newTestWorker(t, s, 128, rec)

	if !w.ScheduleWork([]byte("early")) {
		t.Fatal("ScheduleWork before Start should enqueue")
	}
	startScheduler(t, s)
	roundTrip(t, w)

	if rec.requestCount() != 1 || string(rec.responses[0]) != "early" {
		t.Fatalf("requests=%d responses=%q", rec.requestCount(), rec.responses)
	}
}

// ============================================================================
// ORDERING
// ============================================================================

func TestWorker_RequestOrderExactlyOnce(t *testing.T) {
	const n = 200
	s := newTestScheduler(t, 1024)
	rec := &recorder{respond: echo}
	w := newTestWorker(t, s, 256, rec)
	startScheduler(t, s)

	for i := 0; i < n; i++ {
		payload := []byte("req-" + utils.Itoa(i))
		if !w.ScheduleWork(payload) {
			t.Fatalf("ScheduleWork %d refused on idle worker", i)
		}
		roundTrip(t, w)
	}

	if rec.requestCount() != n {
		t.Fatalf("ProcessRequest calls = %d, want %d", rec.requestCount(), n)
	}
	for i := 0; i < n; i++ {
		want := "req-" + utils.Itoa(i)
		if string(rec.requests[i]) != want {
			t.Fatalf("requests[%d] = %q, want %q", i, rec.requests[i], want)
		}
		if string(rec.responses[i]) != want {
			t.Fatalf("responses[%d] = %q, want %q", i, rec.responses[i], want)
		}
	}
	if st := w.Stats(); st.Requests != n || st.Delivered != n {
		t.Fatalf("stats requests=%d delivered=%d", st.Requests, st.Delivered)
	}
}

func TestWorker_ResponsesInProductionOrder(t *testing.T) {
	const k = 25
	s := newTestScheduler(t, 256)
	rec := &recorder{respond: func(r Responder, _ []byte) {
		for i := 0; i < k; i++ {
			if !r.RespondToWork([]byte{byte(i), byte(i * 3)}) {
				panic("response channel unexpectedly full")
			}
		}
	}}
	w := newTestWorker(t, s, 1024, rec)
	startScheduler(t, s)

	w.ScheduleWork([]byte("go"))
	roundTrip(t, w)

	if len(rec.responses) != k {
		t.Fatalf("responses = %d, want %d", len(rec.responses), k)
	}
	for i, p := range rec.responses {
		if !bytes.Equal(p, []byte{byte(i), byte(i * 3)}) {
			t.Fatalf("responses[%d] = %v", i, p)
		}
	}
}

// ============================================================================
// BUSY FLAG
// ============================================================================

func TestWorker_NoDoubleDispatch(t *testing.T) {
	s := newTestScheduler(t, 256)
	release := make(chan struct{})
	var calls atomic.Int32
	w := newTestWorker(t, s, 64, HandlerFuncs{
		Request: func(Responder, []byte) {
			calls.Add(1)
			<-release
		},
	})
	startScheduler(t, s)

	if !w.ScheduleWork([]byte("a")) {
		t.Fatal("first ScheduleWork should succeed")
	}
	for i := 0; i < 10; i++ {
		if w.ScheduleWork([]byte("b")) {
			t.Fatal("ScheduleWork while busy should be refused")
		}
	}
	if !w.IsWorking() {
		t.Fatal("IsWorking should be true while outstanding")
	}

	close(release)
	roundTrip(t, w)

	if calls.Load() != 1 {
		t.Fatalf("ProcessRequest calls = %d, want 1", calls.Load())
	}
	if st := w.Stats(); st.Rejected != 10 {
		t.Fatalf("Rejected = %d, want 10", st.Rejected)
	}
}

func TestWorker_NoResponseNeedsOneCycle(t *testing.T) {
	s := newTestScheduler(t, 256)
	var done atomic.Bool
	w := newTestWorker(t, s, 64, HandlerFuncs{
		Request: func(Responder, []byte) { done.Store(true) },
	})
	startScheduler(t, s)

	w.ScheduleWork([]byte("silent"))
	waitFor(t, "ProcessRequest", done.Load)
	waitFor(t, "complete flag", func() bool { return w.flag.load() == flagComplete })

	if !w.IsWorking() {
		t.Fatal("busy flag must not clear on the background thread")
	}
	if w.ScheduleWork([]byte("again")) {
		t.Fatal("ScheduleWork before the realtime round trip should be refused")
	}

	w.ProcessWorkResponses()
	if w.IsWorking() {
		t.Fatal("one ProcessWorkResponses after completion should clear the flag")
	}
	if !w.ScheduleWork([]byte("again")) {
		t.Fatal("ScheduleWork after round trip should succeed")
	}
}

func TestWorker_PanicIsContained(t *testing.T) {
	s := newTestScheduler(t, 256)
	w := newTestWorker(t, s, 64, HandlerFuncs{
		Request: func(Responder, []byte) { panic("boom") },
	})
	startScheduler(t, s)

	w.ScheduleWork([]byte("x"))
	roundTrip(t, w)

	if st := w.Stats(); st.Panics != 1 {
		t.Fatalf("Panics = %d, want 1", st.Panics)
	}
	if !w.ScheduleWork([]byte("y")) {
		t.Fatal("worker should accept work after a contained panic")
	}
	roundTrip(t, w)
}

// ============================================================================
// CAPACITY
// ============================================================================

func TestScheduler_RequestBackpressureScenario(t *testing.T) {
	s := newTestScheduler(t, 64)
	payload := bytes.Repeat([]byte{0xAB}, 20)

	w1 := newTestWorker(t, s, 64, &recorder{})
	w2 := newTestWorker(t, s, 64, &recorder{})
	w3 := newTestWorker(t, s, 64, &recorder{})

	if !w1.ScheduleWork(payload) {
		t.Fatal("first schedule (28/64) should succeed")
	}
	if !w2.ScheduleWork(payload) {
		t.Fatal("second schedule (56/64) should succeed")
	}
	if w3.ScheduleWork(payload) {
		t.Fatal("third schedule (84/64) should fail")
	}
	if got := s.PendingRequests(); got != 2 {
		t.Fatalf("PendingRequests() = %d, want 2", got)
	}
	if w3.IsWorking() {
		t.Fatal("refused worker must return to idle")
	}
	if st := s.Stats(); st.Scheduled != 2 || st.Rejected != 1 {
		t.Fatalf("scheduled=%d rejected=%d", st.Scheduled, st.Rejected)
	}
}

func TestWorker_OversizedPayloadRefused(t *testing.T) {
	s := newTestScheduler(t, 64)
	w := newTestWorker(t, s, 64, &recorder{})

	if w.ScheduleWork(make([]byte, 64)) {
		t.Fatal("payload larger than the request channel should be refused")
	}
	if w.IsWorking() {
		t.Fatal("worker should stay idle")
	}
}

func TestWorker_ResponseBackpressure(t *testing.T) {
	s := newTestScheduler(t, 256)
	var results []bool
	rec := &recorder{respond: func(r Responder, _ []byte) {
		// 16-byte channel: one 8-byte payload frame fills it
		results = append(results, r.RespondToWork(make([]byte, 8)))
		results = append(results, r.RespondToWork(make([]byte, 1)))
	}}
	w := newTestWorker(t, s, 16, rec)
	startScheduler(t, s)

	w.ScheduleWork(nil)
	roundTrip(t, w)

	if len(results) != 2 || !results[0] || results[1] {
		t.Fatalf("RespondToWork results = %v, want [true false]", results)
	}
	if st := w.Stats(); st.Responses != 1 || st.ResponsesDropped != 1 || st.Delivered != 1 {
		t.Fatalf("stats = %+v", st)
	}
}

// ============================================================================
// CONCURRENT PRODUCERS
// ============================================================================

func TestScheduler_OpenReservationDoesNotBlockProducers(t *testing.T) {
	s := newTestScheduler(t, 1024)
	heldRec := &recorder{respond: echo}
	otherRec := &recorder{respond: echo}
	held := newTestWorker(t, s, 64, heldRec)
	other := newTestWorker(t, s, 64, otherRec)
	startScheduler(t, s)

	// First producer has claimed and filled its frame but not published it
	if !held.flag.transition(flagIdle, flagScheduled) {
		t.Fatal("held worker should start idle")
	}
	c, ok := s.requests.Reserve(held.id, []byte("held"))
	if !ok {
		t.Fatal("Reserve on an empty channel failed")
	}

	if !other.ScheduleWork([]byte("second")) {
		t.Fatalf("ScheduleWork refused with %d bytes free and an open reservation", s.requests.Free())
	}
	time.Sleep(10 * time.Millisecond)
	if otherRec.requestCount() != 0 {
		t.Fatal("frame claimed after an unpublished one was dispatched early")
	}

	c.Publish()
	s.sem.Post()
	roundTrip(t, held)
	roundTrip(t, other)

	if heldRec.requestCount() != 1 || string(heldRec.requests[0]) != "held" {
		t.Fatalf("held requests = %q", heldRec.requests)
	}
	if otherRec.requestCount() != 1 || string(otherRec.responses[0]) != "second" {
		t.Fatalf("second requests = %q responses = %q", otherRec.requests, otherRec.responses)
	}
}

func TestScheduler_ConcurrentProducers(t *testing.T) {
	const producers = 4
	const rounds = 200
	s := newTestScheduler(t, 4096)

	recs := make([]*recorder, producers)
	workers := make([]*Worker, producers)
	for i := range workers {
		recs[i] = &recorder{respond: echo}
		workers[i] = newTestWorker(t, s, 256, recs[i])
	}
	startScheduler(t, s)

	errs := make(chan string, producers)
	var wg sync.WaitGroup
	for g := 0; g < producers; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			w := workers[g]
			deadline := time.Now().Add(testTimeout)
			for i := 0; i < rounds; i++ {
				// At most one frame per worker is in flight, so the channel never fills
				if !w.ScheduleWork([]byte(utils.Itoa(g) + "/" + utils.Itoa(i))) {
					errs <- "worker " + utils.Itoa(g) + ": ScheduleWork refused at round " + utils.Itoa(i)
					return
				}
				for w.IsWorking() {
					if time.Now().After(deadline) {
						errs <- "worker " + utils.Itoa(g) + ": timed out at round " + utils.Itoa(i)
						return
					}
					w.ProcessWorkResponses()
					runtime.Gosched()
				}
			}
		}(g)
	}
	wg.Wait()
	close(errs)
	for e := range errs {
		t.Error(e)
	}
	if t.Failed() {
		return
	}

	for g, rec := range recs {
		if rec.requestCount() != rounds || len(rec.responses) != rounds {
			t.Fatalf("worker %d: requests=%d responses=%d, want %d", g, rec.requestCount(), len(rec.responses), rounds)
		}
		for i := 0; i < rounds; i++ {
			want := utils.Itoa(g) + "/" + utils.Itoa(i)
			if string(rec.requests[i]) != want || string(rec.responses[i]) != want {
				t.Fatalf("worker %d round %d: request=%q response=%q, want %q", g, i, rec.requests[i], rec.responses[i], want)
			}
		}
	}
	if st := s.Stats(); st.Scheduled != producers*rounds || st.Dispatched != producers*rounds || st.Rejected != 0 {
		t.Fatalf("scheduled=%d dispatched=%d rejected=%d", st.Scheduled, st.Dispatched, st.Rejected)
	}
}

// ============================================================================
// SHUTDOWN
// ============================================================================

func TestScheduler_DiscardOnShutdown(t *testing.T) {
	s := newTestScheduler(t, 256)

	entered := make(chan struct{})
	release := make(chan struct{})
	blocker := newTestWorker(t, s, 64, HandlerFuncs{
		Request: func(Responder, []byte) {
			close(entered)
			<-release
		},
	})
	pendingRec := &recorder{}
	pending := newTestWorker(t, s, 64, pendingRec)

	startScheduler(t, s)
	blocker.ScheduleWork([]byte("hold"))
	<-entered

	if !pending.ScheduleWork([]byte("never")) {
		t.Fatal("ScheduleWork should enqueue behind the blocked request")
	}

	stopped := make(chan error, 1)
	go func() { stopped <- s.Stop() }()
	waitFor(t, "stopping state", func() bool { return s.State() == control.Stopping })
	close(release)

	select {
	case err := <-stopped:
		if err != nil {
			t.Fatalf("Stop: %v", err)
		}
	case <-time.After(testTimeout):
		t.Fatal("Stop did not return")
	}

	if pendingRec.requestCount() != 0 {
		t.Fatal("request pending at shutdown must not be dispatched")
	}
	if pending.IsWorking() {
		t.Fatal("discarded request should release its worker")
	}
	if st := s.Stats(); st.Discarded != 1 {
		t.Fatalf("Discarded = %d, want 1", st.Discarded)
	}

	// A fresh instance never sees the discarded frame
	s2 := newTestScheduler(t, 256)
	rec2 := &recorder{}
	newTestWorker(t, s2, 64, rec2)
	newTestWorker(t, s2, 64, rec2)
	startScheduler(t, s2)
	time.Sleep(10 * time.Millisecond)
	if rec2.requestCount() != 0 {
		t.Fatal("new scheduler instance delivered a frame it never received")
	}

	// Restarting the same instance starts from an empty channel
	startScheduler(t, s)
	time.Sleep(10 * time.Millisecond)
	if pendingRec.requestCount() != 0 {
		t.Fatal("restarted scheduler delivered a discarded frame")
	}
	if !pending.ScheduleWork([]byte("fresh")) {
		t.Fatal("worker should accept work after restart")
	}
	roundTrip(t, pending)
	if pendingRec.requestCount() != 1 || string(pendingRec.requests[0]) != "fresh" {
		t.Fatalf("requests after restart = %q", pendingRec.requests)
	}
}

// ============================================================================
// REGISTRY
// ============================================================================

func TestRegistry_SequentialIDsAndIsolation(t *testing.T) {
	s := newTestScheduler(t, 256)
	rec0 := &recorder{respond: echo}
	rec1 := &recorder{respond: echo}
	w0 := newTestWorker(t, s, 64, rec0)
	w1 := newTestWorker(t, s, 64, rec1)

	if w0.ID() != 0 || w1.ID() != 1 {
		t.Fatalf("ids = %d, %d; want 0, 1", w0.ID(), w1.ID())
	}
	startScheduler(t, s)

	for i := 0; i < 20; i++ {
		w1.ScheduleWork([]byte{byte(i)})
		roundTrip(t, w1)
	}
	w0.ProcessWorkResponses()

	if rec0.requestCount() != 0 || len(rec0.responses) != 0 {
		t.Fatal("work scheduled on worker 1 reached worker 0")
	}
	if rec1.requestCount() != 20 {
		t.Fatalf("worker 1 requests = %d, want 20", rec1.requestCount())
	}
}

func TestRegistry_IDsNeverReused(t *testing.T) {
	s := newTestScheduler(t, 256)
	w0 := newTestWorker(t, s, 64, &recorder{})
	if err := w0.Close(); err != nil {
		t.Fatal(err)
	}
	w1 := newTestWorker(t, s, 64, &recorder{})
	if w1.ID() != 1 {
		t.Fatalf("id after deregistration = %d, want 1", w1.ID())
	}
	if st := s.Stats(); st.Workers != 1 {
		t.Fatalf("Workers = %d, want 1", st.Workers)
	}
}

func TestWorker_CloseRules(t *testing.T) {
	s := newTestScheduler(t, 256)
	release := make(chan struct{})
	w := newTestWorker(t, s, 64, HandlerFuncs{Request: func(Responder, []byte) { <-release }})
	startScheduler(t, s)

	w.ScheduleWork(nil)
	if err := w.Close(); !errors.Is(err, ErrBusy) {
		t.Fatalf("Close while busy: err = %v", err)
	}
	close(release)
	roundTrip(t, w)

	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if w.ScheduleWork(nil) {
		t.Fatal("ScheduleWork after Close should be refused")
	}

	defer func() {
		if recover() == nil {
			t.Fatal("second Close should panic")
		}
	}()
	w.Close()
}

func TestRegistry_DeregisterUnknownPanics(t *testing.T) {
	s1 := newTestScheduler(t, 64)
	s2 := newTestScheduler(t, 64)
	w := newTestWorker(t, s1, 64, &recorder{})

	defer func() {
		if recover() == nil {
			t.Fatal("deregistering a foreign worker should panic")
		}
	}()
	s2.deregisterWorker(w)
}

func TestScheduler_UnroutableFrame(t *testing.T) {
	s := newTestScheduler(t, 256)
	s.requests.WriteIfFits(99, []byte("orphan"))
	s.sem.Post()
	startScheduler(t, s)

	waitFor(t, "unroutable count", func() bool { return s.Stats().Unroutable == 1 })
}

// ============================================================================
// OWNER OPERATIONS
// ============================================================================

func TestWorker_SetSize(t *testing.T) {
	s := newTestScheduler(t, 256)
	release := make(chan struct{})
	w := newTestWorker(t, s, 64, HandlerFuncs{Request: func(r Responder, _ []byte) {
		<-release
		r.RespondToWork(make([]byte, 100))
	}})

	if err := w.SetSize(256); err != nil {
		t.Fatalf("SetSize idle: %v", err)
	}
	if st := w.Stats(); st.ResponseCapacity != 256 || st.State != "idle" {
		t.Fatalf("after SetSize: %+v", st)
	}

	startScheduler(t, s)
	w.ScheduleWork(nil)
	if err := w.SetSize(512); !errors.Is(err, ErrBusy) {
		t.Fatalf("SetSize busy: err = %v", err)
	}
	close(release)
	roundTrip(t, w)

	if st := w.Stats(); st.Delivered != 1 {
		t.Fatalf("100-byte response should fit the resized channel, delivered=%d", st.Delivered)
	}
	if err := w.SetSize(0); !errors.Is(err, ErrInvalidCapacity) {
		t.Fatalf("SetSize(0): err = %v", err)
	}
}

func TestScheduler_WorkerStats(t *testing.T) {
	s := newTestScheduler(t, 256)
	newTestWorker(t, s, 64, &recorder{})
	newTestWorker(t, s, 128, &recorder{})

	ws := s.WorkerStats()
	if len(ws) != 2 || ws[0].ID != 0 || ws[1].ID != 1 || ws[1].ResponseCapacity != 128 {
		t.Fatalf("WorkerStats = %+v", ws)
	}
}

func TestCapacity_RequestedVersusRounded(t *testing.T) {
	s := newTestScheduler(t, 100)
	if st := s.Stats(); st.Capacity != 128 || st.RequestedCapacity != 100 || st.Free != 128 {
		t.Fatalf("scheduler capacity=%d requested=%d free=%d", st.Capacity, st.RequestedCapacity, st.Free)
	}

	w := newTestWorker(t, s, 40, &recorder{})
	if st := w.Stats(); st.ResponseCapacity != 64 || st.ResponseRequested != 40 {
		t.Fatalf("worker capacity=%d requested=%d", st.ResponseCapacity, st.ResponseRequested)
	}

	// Exact-fit arithmetic applies to the rounded size
	if !w.ScheduleWork(make([]byte, 128-int(RequiredSpace(0)))) {
		t.Fatal("frame filling the rounded request channel should fit")
	}
	if s.Stats().Free != 0 {
		t.Fatalf("Free = %d, want 0", s.Stats().Free)
	}
	s.requests.Reset()
	w.flag.set(flagIdle)

	if err := w.SetSize(300); err != nil {
		t.Fatal(err)
	}
	if st := w.Stats(); st.ResponseCapacity != 512 || st.ResponseRequested != 300 {
		t.Fatalf("after SetSize capacity=%d requested=%d", st.ResponseCapacity, st.ResponseRequested)
	}
}

// ============================================================================
// REALTIME PATH ALLOCATIONS
// ============================================================================

func TestRealtimePath_ZeroAlloc(t *testing.T) {
	s := newTestScheduler(t, 1024)
	w := newTestWorker(t, s, 256, HandlerFuncs{Response: func([]byte) {}})
	payload := make([]byte, 32)

	allocs := testing.AllocsPerRun(100, func() {
		w.ScheduleWork(payload)
		// Scheduler is not running: undo the enqueue by hand
		s.requests.Reset()
		w.flag.set(flagIdle)
		w.ProcessWorkResponses()
	})
	if allocs != 0 {
		t.Fatalf("realtime path allocated %.1f times per run", allocs)
	}
}
