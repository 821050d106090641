// ════════════════════════════════════════════════════════════════════════════════════════════════
// 🔐 DIGEST WORKER
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Component: SHA3-256 Background Computation
//
// Description:
//   Hashes each request payload on the scheduler thread and answers with the 32-byte digest.
//   The realtime side copies the digest into a fixed array; no allocation on either side
//   once the hasher is warm.
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

package digest

import (
	"hash"

	"golang.org/x/crypto/sha3"

	"rtwork/work"
)

// Size is the digest length in bytes.
const Size = 32

// Worker computes SHA3-256 digests in the background.
type Worker struct {
	*work.Worker

	// Background thread only
	hasher hash.Hash
	sum    [Size]byte

	// Realtime thread only
	last  [Size]byte
	count uint64
}

// New registers a digest worker with s.
func New(s *work.Scheduler) (*Worker, error) {
	d := &Worker{hasher: sha3.New256()}
	w, err := work.NewWorker(s, 4*int(work.RequiredSpace(Size)), d)
	if err != nil {
		return nil, err
	}
	d.Worker = w
	return d, nil
}

// ProcessRequest hashes payload and responds with the digest.
func (d *Worker) ProcessRequest(r work.Responder, payload []byte) {
	d.hasher.Reset()
	d.hasher.Write(payload)
	r.RespondToWork(d.hasher.Sum(d.sum[:0]))
}

// ProcessResponse records the digest.
func (d *Worker) ProcessResponse(payload []byte) {
	copy(d.last[:], payload)
	d.count++
}

// Last returns the most recent digest. Realtime thread only.
func (d *Worker) Last() [Size]byte { return d.last }

// Count returns the number of digests delivered. Realtime thread only.
func (d *Worker) Count() uint64 { return d.count }
