package work

import "errors"

var (
	// ErrRunning is returned by Start when the scheduler is not stopped.
	ErrRunning = errors.New("work: scheduler already running")

	// ErrNotRunning is returned by Stop when the scheduler is not running.
	ErrNotRunning = errors.New("work: scheduler not running")

	// ErrClosed is returned when using a scheduler after Close.
	ErrClosed = errors.New("work: scheduler closed")

	// ErrBusy is returned by Worker.Close and Worker.SetSize while a request
	// is outstanding.
	ErrBusy = errors.New("work: worker has outstanding work")

	// ErrInvalidCapacity is returned for channel capacities outside (0, ring.MaxCapacity].
	ErrInvalidCapacity = errors.New("work: invalid channel capacity")

	// ErrNilHandler is returned by NewWorker without a Handler.
	ErrNilHandler = errors.New("work: nil handler")
)
