package work

import (
	"sync"
	"sync/atomic"

	"rtwork/utils"
)

// registry maps dense worker ids to workers.
//
// Readers (the background thread) load an immutable table snapshot without
// locking. Writers take mu only to build and publish the next snapshot, so
// the lock is never held across dispatch. Ids are handed out sequentially
// and never reused.
type registry struct {
	mu    sync.Mutex
	table atomic.Pointer[[]*Worker]
	next  uint32
	live  int
}

func newRegistry() *registry {
	r := &registry{}
	empty := make([]*Worker, 0)
	r.table.Store(&empty)
	return r
}

// add assigns the next id to w and publishes it.
func (r *registry) add(w *Worker) uint32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := r.next
	r.next++

	old := *r.table.Load()
	tbl := make([]*Worker, id+1)
	copy(tbl, old)
	tbl[id] = w
	r.table.Store(&tbl)
	r.live++
	w.id = id
	return id
}

// remove unpublishes w. Removing an unknown or already removed worker is a
// programming error and panics.
func (r *registry) remove(w *Worker) {
	r.mu.Lock()
	defer r.mu.Unlock()

	old := *r.table.Load()
	if int(w.id) >= len(old) || old[w.id] != w {
		panic("work: deregister of unknown worker id " + utils.Utoa(uint64(w.id)))
	}

	tbl := make([]*Worker, len(old))
	copy(tbl, old)
	tbl[w.id] = nil
	r.table.Store(&tbl)
	r.live--
}

// lookup returns the worker registered under id, or nil.
//
//go:nosplit
//go:inline
func (r *registry) lookup(id uint32) *Worker {
	tbl := *r.table.Load()
	if int(id) >= len(tbl) {
		return nil
	}
	return tbl[id]
}

// count returns the number of registered workers.
func (r *registry) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.live
}

// snapshot returns the registered workers in id order.
func (r *registry) snapshot() []*Worker {
	tbl := *r.table.Load()
	out := make([]*Worker, 0, len(tbl))
	for _, w := range tbl {
		if w != nil {
			out = append(out, w)
		}
	}
	return out
}
