// cursor.go
//
// Acquire/release helpers for the consumer head cursor. sync/atomic is
// sequentially consistent, a conservative superset of the required order.

package ring

import "sync/atomic"

// loadAcquireUint64 is an acquire load of *p.
//
//go:nosplit
//go:inline
func loadAcquireUint64(p *uint64) uint64 {
	return atomic.LoadUint64(p)
}

// storeReleaseUint64 is a release store to *p.
//
//go:nosplit
//go:inline
func storeReleaseUint64(p *uint64, v uint64) {
	atomic.StoreUint64(p, v)
}
