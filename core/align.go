package core

import "unsafe"

const (
	// CacheLineSize is a common cache line size, typically 64 bytes.
	CacheLineSize = 64

	floatSize = 4

	// FloatsPerLine is the number of float32 values in one cache line.
	FloatsPerLine = CacheLineSize / floatSize
)

// IsAligned checks if a pointer (represented as a uintptr) is aligned to a cache line boundary.
func IsAligned(addr uintptr) bool {
	return addr%CacheLineSize == 0
}

// AlignSize rounds size up to the specified power-of-two alignment boundary.
func AlignSize(size, align int) int {
	return (size + align - 1) &^ (align - 1)
}

// AlignedFloats allocates a float32 slice whose backing array starts on a
// cache line boundary. The extra head room is at most one cache line.
func AlignedFloats(n int) []float32 {
	if n == 0 {
		return nil
	}
	pad := CacheLineSize / floatSize
	buf := make([]float32, n+pad-1)

	ptr := uintptr(unsafe.Pointer(&buf[0]))
	offset := 0
	if mod := ptr % CacheLineSize; mod != 0 {
		offset = int(CacheLineSize-mod) / floatSize
	}
	return buf[offset : offset+n : offset+n]
}

// FloatsAligned reports whether the first element of f sits on a cache line.
func FloatsAligned(f []float32) bool {
	if len(f) == 0 {
		return true
	}
	return IsAligned(uintptr(unsafe.Pointer(&f[0])))
}
