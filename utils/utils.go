package utils

import (
	"os"
	"unsafe"
)

///////////////////////////////////////////////////////////////////////////////
// Conversion Utilities — Zero-Alloc Casts
///////////////////////////////////////////////////////////////////////////////

// B2s converts a []byte to a string **without** allocation.
// ⚠️ Caller must ensure the input slice remains valid and unchanged.
// Used for human-readable print paths.
//
//go:nosplit
//go:inline
func B2s(b []byte) string {
	if len(b) == 0 {
		return ""
	}
	return unsafe.String(&b[0], len(b))
}

// Itoa formats a non-negative or negative int in base 10.
// Avoids strconv on the diagnostic path; allocates only the returned string.
//
//go:nosplit
//go:inline
func Itoa(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	neg := n < 0
	u := uint64(n)
	if neg {
		u = uint64(-n)
	}
	for u > 0 {
		i--
		buf[i] = byte('0' + u%10)
		u /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

// Utoa formats a uint64 in base 10.
//
//go:nosplit
//go:inline
func Utoa(u uint64) string {
	if u == 0 {
		return "0"
	}
	var buf [20]byte
	i := len(buf)
	for u > 0 {
		i--
		buf[i] = byte('0' + u%10)
		u /= 10
	}
	return string(buf[i:])
}

///////////////////////////////////////////////////////////////////////////////
// Little-Endian Loaders — Frame Header Fields
///////////////////////////////////////////////////////////////////////////////

// LoadLE32 reads a little-endian uint32 from the first four bytes of b.
//
//go:nosplit
//go:inline
func LoadLE32(b []byte) uint32 {
	_ = b[3] // bounds check hint
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// StoreLE32 writes v into the first four bytes of b in little-endian order.
//
//go:nosplit
//go:inline
func StoreLE32(b []byte, v uint32) {
	_ = b[3] // bounds check hint
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

// NextPow2 returns the smallest power of two >= n. n must be positive.
//
//go:nosplit
//go:inline
func NextPow2(n int) int {
	p := 1
	for p < n {
		p <<= 1
	}
	return p
}

///////////////////////////////////////////////////////////////////////////////
// Raw Output — Cold-Path Diagnostics
///////////////////////////////////////////////////////////////////////////////

// PrintWarning writes msg straight to stderr (fd 2).
// No buffering, no formatting, errors are ignored.
//
//go:nosplit
//go:inline
func PrintWarning(msg string) {
	_, _ = os.Stderr.Write(unsafe.Slice(unsafe.StringData(msg), len(msg)))
}

// PrintInfo writes msg straight to stdout (fd 1).
//
//go:nosplit
//go:inline
func PrintInfo(msg string) {
	_, _ = os.Stdout.Write(unsafe.Slice(unsafe.StringData(msg), len(msg)))
}
