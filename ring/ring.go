// ============================================================================
// LOCK-FREE MPSC FRAME RING
// ============================================================================
//
// Fixed-capacity byte queue that transfers self-delimiting frames from any
// number of producer threads to one consumer thread.
//
// Frame layout (little endian):
//   [0:4]  id      target worker id (request ring) or zero (response ring)
//   [4:8]  length  payload byte count
//   [8:]   payload
//
// Core capabilities:
//   - WriteIfFits: whole frame or nothing, never blocks, never allocates
//   - Reserve / Publish: the same write split into claim-and-copy and publish
//   - PeekFrame: next published frame as one contiguous slice, or none
//   - Consume: release the peeked frame back to the producers
//
// Architecture overview:
//   - One claim word per ring packs a frame sequence (high 32 bits) and a
//     byte position (low 32 bits); producers CAS it forward to own a range
//   - A producer copies its frame into the claimed range, then stamps the
//     frame's commit slot with seq+1
//   - The consumer walks frames in sequence order and stops at the first
//     frame whose stamp is missing, so an unpublished frame hides every
//     frame claimed after it
//   - Power-of-2 arena so positions reduce with a mask; frames may straddle
//     the arena end and are reassembled into a private consumer buffer
//
// Safety model:
//   - Every frame occupies at least HeaderSize bytes, so at most
//     size/HeaderSize frames are in flight and one commit slot per possible
//     frame never aliases a live one
//   - Head is published only on Consume, so no producer overwrites unread
//     bytes
//   - A failed write touches nothing: the claim CAS happens only once the
//     frame is known to fit

package ring

import (
	"math"
	"sync/atomic"

	"rtwork/constants"
	"rtwork/utils"
)

// HeaderSize is the per-frame overhead in bytes.
const HeaderSize = constants.FrameHeaderSize

// MaxCapacity is the largest arena New accepts.
const MaxCapacity = constants.MaxChannelCapacity

// RequiredSpace returns the bytes a frame with payloadSize bytes occupies.
//
//go:nosplit
//go:inline
func RequiredSpace(payloadSize uint32) uint32 {
	return payloadSize + HeaderSize
}

// ============================================================================
// CORE DATA STRUCTURES
// ============================================================================

// Frame is one unit of channel traffic as seen by the consumer.
// Payload aliases ring memory and is valid until the next Consume.
type Frame struct {
	ID      uint32
	Payload []byte
}

// Ring is a byte arena with a shared producer claim and a consumer cursor.
//
// Memory layout:
//   - Cache line 1: head cursor (consumer)
//   - Cache line 2: claim word (producers)
//   - Cache line 3+: read-only metadata, commit stamps, consumer-private state
//
//go:notinheap
//go:align 64
type Ring struct {
	_    [64]byte // Cache line isolation for head cursor
	head uint64   // Consumer read position

	_     [56]byte      // Cache line isolation for claim word
	claim atomic.Uint64 // seq<<32 | write position

	_ [56]byte

	mask     uint64          // size - 1
	size     uint64          // arena capacity in bytes
	buf      []byte          // arena
	commits  []atomic.Uint32 // commit stamp per frame sequence slot
	slotMask uint32          // len(commits) - 1

	// Consumer-private
	asm    []byte // reassembly buffer for frames that wrap the arena end
	peeked uint64 // byte length of the frame returned by the last PeekFrame, 0 = none
	rseq   uint32 // sequence of the frame at head
}

// Claim is a reserved and filled frame that consumers cannot see yet.
type Claim struct {
	r   *Ring
	seq uint32
}

// ============================================================================
// CONSTRUCTOR
// ============================================================================

// New creates a ring holding at least capacity bytes. The arena rounds up to
// the next power of two, so New(100) holds 128 bytes.
//
// Panics:
//   - capacity <= 0
//   - capacity > MaxCapacity
func New(capacity int) *Ring {
	if capacity <= 0 || capacity > MaxCapacity {
		panic("ring: capacity must be >0 and <= " + utils.Itoa(MaxCapacity))
	}
	size := utils.NextPow2(capacity)
	slots := size / HeaderSize
	if slots == 0 {
		slots = 1
	}
	return &Ring{
		mask:     uint64(size - 1),
		size:     uint64(size),
		buf:      make([]byte, size),
		commits:  make([]atomic.Uint32, slots),
		slotMask: uint32(slots - 1),
		asm:      make([]byte, size),
	}
}

// ============================================================================
// PRODUCER OPERATIONS
// ============================================================================

// WriteIfFits appends one frame carrying id and payload and publishes it.
//
// Returns false, touching nothing, when RequiredSpace(len(payload)) exceeds
// the free space. Free space is the only failure mode: a producer that
// stalls between Reserve and Publish delays delivery but never refuses
// other producers. The payload is copied; the caller may reuse it on return.
//
// Safe for concurrent producers.
//
//go:nosplit
//go:inline
func (r *Ring) WriteIfFits(id uint32, payload []byte) bool {
	c, ok := r.Reserve(id, payload)
	if !ok {
		return false
	}
	c.Publish()
	return true
}

// Reserve claims space for one frame and copies id and payload into it.
// The frame stays invisible to the consumer, and so does every frame
// claimed after it, until Publish.
//
//go:nosplit
//go:inline
func (r *Ring) Reserve(id uint32, payload []byte) (Claim, bool) {
	n := uint64(len(payload))
	if n > math.MaxUint32 {
		return Claim{}, false
	}
	need := HeaderSize + n
	if need > r.size {
		return Claim{}, false
	}

	for {
		c := r.claim.Load()
		pos := uint32(c)
		used := uint64(pos - uint32(loadAcquireUint64(&r.head)))
		if used > r.size {
			// Stale claim word read before a consumer advance
			cpuRelax()
			continue
		}
		if need > r.size-used {
			return Claim{}, false
		}

		seq := uint32(c >> 32)
		next := uint64(seq+1)<<32 | uint64(pos+uint32(need))
		if !r.claim.CompareAndSwap(c, next) {
			cpuRelax()
			continue
		}

		var hdr [HeaderSize]byte
		utils.StoreLE32(hdr[0:], id)
		utils.StoreLE32(hdr[4:], uint32(n))
		r.copyIn(uint64(pos), hdr[:])
		r.copyIn(uint64(pos)+HeaderSize, payload)
		return Claim{r: r, seq: seq}, true
	}
}

// Publish makes the claimed frame visible to the consumer.
//
//go:nosplit
//go:inline
func (c Claim) Publish() {
	c.r.commits[c.seq&c.r.slotMask].Store(c.seq + 1)
}

// copyIn writes src at logical position pos, splitting across the arena end.
//
//go:nosplit
//go:inline
func (r *Ring) copyIn(pos uint64, src []byte) {
	off := pos & r.mask
	k := copy(r.buf[off:], src)
	if k < len(src) {
		copy(r.buf, src[k:])
	}
}

// ============================================================================
// CONSUMER OPERATIONS
// ============================================================================

// committed reports whether the frame with sequence seq is published.
//
//go:nosplit
//go:inline
func (r *Ring) committed(seq uint32) bool {
	return r.commits[seq&r.slotMask].Load() == seq+1
}

// PeekFrame returns the next published frame without consuming it.
//
// Returns false when the frame at head is unpublished or absent, which
// also holds back published frames claimed after it. Repeated calls
// without Consume return the same frame.
//
// ⚠️  Single consumer only. Payload is valid until Consume.
//
//go:nosplit
//go:inline
func (r *Ring) PeekFrame() (Frame, bool) {
	if !r.committed(r.rseq) {
		return Frame{}, false
	}
	h := loadAcquireUint64(&r.head)

	var hdr [HeaderSize]byte
	r.copyOut(hdr[:], h)
	id := utils.LoadLE32(hdr[0:])
	n := uint64(utils.LoadLE32(hdr[4:]))

	var p []byte
	off := (h + HeaderSize) & r.mask
	if off+n <= r.size {
		p = r.buf[off : off+n : off+n]
	} else {
		p = r.asm[:n:n]
		r.copyOut(p, h+HeaderSize)
	}

	r.peeked = HeaderSize + n
	return Frame{ID: id, Payload: p}, true
}

// Consume releases the frame returned by the last successful PeekFrame.
// No-op if nothing is peeked.
//
//go:nosplit
//go:inline
func (r *Ring) Consume() {
	if r.peeked == 0 {
		return
	}
	h := loadAcquireUint64(&r.head)
	r.rseq++
	storeReleaseUint64(&r.head, h+r.peeked)
	r.peeked = 0
}

// Drain hands every published frame to fn in order, consuming each after fn
// returns. Returns the number of frames delivered.
func (r *Ring) Drain(fn func(Frame)) int {
	n := 0
	for {
		f, ok := r.PeekFrame()
		if !ok {
			return n
		}
		fn(f)
		r.Consume()
		n++
	}
}

// copyOut reads len(dst) bytes at logical position pos.
//
//go:nosplit
//go:inline
func (r *Ring) copyOut(dst []byte, pos uint64) {
	off := pos & r.mask
	k := copy(dst, r.buf[off:])
	if k < len(dst) {
		copy(dst[k:], r.buf)
	}
}

// ============================================================================
// INTROSPECTION
// ============================================================================

// Capacity returns the arena size in bytes.
func (r *Ring) Capacity() int {
	return int(r.size)
}

// Readable returns the bytes between head and the claim position,
// including frames claimed but not yet published.
func (r *Ring) Readable() int {
	pos := uint32(r.claim.Load())
	return int(pos - uint32(loadAcquireUint64(&r.head)))
}

// Free returns the number of bytes a producer could claim right now.
func (r *Ring) Free() int {
	return int(r.size) - r.Readable()
}

// Pending counts the published frames the consumer could read now.
// Call from the consumer side or while the ring is quiescent.
func (r *Ring) Pending() int {
	h := loadAcquireUint64(&r.head)
	seq := r.rseq

	var hdr [HeaderSize]byte
	count := 0
	for r.committed(seq) {
		r.copyOut(hdr[:], h)
		h += HeaderSize + uint64(utils.LoadLE32(hdr[4:]))
		seq++
		count++
	}
	return count
}

// Reset discards every unread byte, published or not.
// ⚠️  Only valid while neither producers nor the consumer are active.
func (r *Ring) Reset() {
	c := r.claim.Load()
	h := loadAcquireUint64(&r.head)
	r.rseq = uint32(c >> 32)
	storeReleaseUint64(&r.head, h+uint64(uint32(c)-uint32(h)))
	r.peeked = 0
}
