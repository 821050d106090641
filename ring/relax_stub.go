// relax_stub.go — Fallback no-op for cpuRelax
//
// Used on architectures without a PAUSE/YIELD wrapper and on builds with
// cgo or assembly disabled.

//go:build (!amd64 && !arm64) || !cgo || noasm

package ring

//go:nosplit
//go:inline
func cpuRelax() {}
