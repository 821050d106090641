// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: constants.go — Scheduler tunables & frame layout
//
// Purpose:
//   - Defines default channel capacities, frame header layout and cycle timing
//     shared by the ring, work and config packages.
//
// Notes:
//   - Capacities are byte counts and round up to a power of two inside ring.New
//   - Defaults are sized for audio-rate request traffic (a few hundred bytes per
//     cycle) with headroom for bursts while the background thread is descheduled
//
// ⚠️ No runtime logic here; all values must be compile-time resolvable
// ─────────────────────────────────────────────────────────────────────────────

package constants

// ───────────────────────────── Frame Layout ───────────────────────────────

const (
	// FrameIDSize is the width of the worker id field in a frame header.
	FrameIDSize = 4

	// FrameLenSize is the width of the payload length field in a frame header.
	FrameLenSize = 4

	// FrameHeaderSize is the total header overhead reserved for every frame:
	// two unsigned 32-bit fields (worker id, payload length).
	FrameHeaderSize = FrameIDSize + FrameLenSize
)

// ─────────────────────────── Channel Capacities ────────────────────────────

const (
	// DefaultRequestCapacity is the byte capacity of the scheduler's shared
	// request channel when the caller does not choose one.
	// 8 KiB holds ~250 small control messages which covers several realtime
	// cycles of backlog on a loaded machine.
	DefaultRequestCapacity = 8 << 10

	// DefaultResponseCapacity is the byte capacity of a worker's private
	// response channel when the caller does not choose one.
	DefaultResponseCapacity = 4 << 10

	// MaxChannelCapacity caps a single channel arena at 64 MiB. Frame lengths are
	// 32-bit on the wire, this keeps cursor arithmetic far away from overflow.
	MaxChannelCapacity = 64 << 20
)

// ───────────────────────────── Thread Tuning ───────────────────────────────

const (
	// NoCore disables CPU pinning of the scheduler thread.
	NoCore = -1

	// DefaultSchedulerName labels the background thread in diagnostics and metrics.
	DefaultSchedulerName = "rtwork"
)

// ─────────────────────────────── Demo Loop ─────────────────────────────────

const (
	// DefaultCycleInterval is the period of the simulated realtime cycle in
	// cmd/rtwork: 128 frames at 48 kHz.
	DefaultCycleInterval = 2666666 // nanoseconds
)
