// ════════════════════════════════════════════════════════════════════════════════════════════════
// CPU Relaxation - AMD64 Architecture
// ────────────────────────────────────────────────────────────────────────────────────────────────
// Component: x86-64 Spin-Wait Hint
//
// Description:
//   Emits the PAUSE instruction between producer lock attempts so a realtime thread
//   spinning on the request channel does not starve its hyperthread sibling.
//
// ════════════════════════════════════════════════════════════════════════════════════════════════

//go:build amd64 && cgo && !noasm

package ring

/*
#ifdef __x86_64__
static inline void cpu_pause() {
    __asm__ __volatile__("pause" ::: "memory");
}
#else
#error "This file requires x86-64 architecture"
#endif
*/
import "C"

// cpuRelax emits x86-64 PAUSE for spin-wait loops.
//
//go:norace
//go:nocheckptr
//go:nosplit
//go:inline
func cpuRelax() {
	C.cpu_pause()
}
