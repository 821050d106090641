// Package work schedules latency-unbounded work from a realtime thread onto
// one background thread and carries results back without the realtime side
// ever blocking or allocating. Realtime producers sharing one scheduler
// claim request space with a single CAS and never wait for each other.
//
// A Scheduler owns the background thread, one shared request ring and a
// registry of workers. A Worker owns a private response ring and a busy
// flag that admits at most one outstanding request.
//
// Flow:
//
//	realtime: Worker.ScheduleWork → request ring → wake.Signal.Post
//	background: Signal.Wait → Handler.ProcessRequest → Worker.RespondToWork → response ring
//	realtime: Worker.ProcessWorkResponses → Handler.ProcessResponse
//
// The busy flag moves Idle → Scheduled → Working → Complete → Idle. The
// last step happens on the realtime thread, in the first ProcessWorkResponses
// call that observes Complete, after every response of that request has been
// delivered. A request that produces no response still needs one such call
// before the worker accepts new work.
package work
