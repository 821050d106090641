package work

import "sync/atomic"

// Busy flag phases. Only the transitions below are legal:
//
//	Idle      → Scheduled  realtime, ScheduleWork accepted by the flag
//	Scheduled → Idle       realtime, request channel full
//	Scheduled → Working    background, dispatch begins
//	Working   → Complete   background, ProcessRequest returned
//	Complete  → Idle       realtime, ProcessWorkResponses after draining
//	Scheduled → Idle       owner, request discarded by Scheduler.Stop
//	Idle      → Closed     owner, Worker.Close
const (
	flagIdle uint32 = iota
	flagScheduled
	flagWorking
	flagComplete
	flagClosed
)

// busyFlag guards the at-most-one-outstanding invariant.
type busyFlag struct {
	_     [64]byte
	state atomic.Uint32
	_     [60]byte
}

//go:nosplit
//go:inline
func (f *busyFlag) load() uint32 {
	return f.state.Load()
}

//go:nosplit
//go:inline
func (f *busyFlag) transition(from, to uint32) bool {
	return f.state.CompareAndSwap(from, to)
}

//go:nosplit
//go:inline
func (f *busyFlag) set(to uint32) {
	f.state.Store(to)
}

func flagName(s uint32) string {
	switch s {
	case flagIdle:
		return "idle"
	case flagScheduled:
		return "scheduled"
	case flagWorking:
		return "working"
	case flagComplete:
		return "complete"
	case flagClosed:
		return "closed"
	}
	return "unknown"
}
