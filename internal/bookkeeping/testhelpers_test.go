package bookkeeping

import "unsafe"

// unsafePointerOf returns the address backing a Go byte slice, used
// only by tests to hand the fake host allocator's Go-heap-backed
// blocks to code that expects raw addresses.
func unsafePointerOf(b []byte) unsafe.Pointer {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Pointer(&b[0])
}

// unsafeBytes views n bytes at addr as a slice, for test assertions
// against payload contents.
func unsafeBytes(addr uintptr, n uintptr) []byte {
	return unsafe.Slice((*byte)(unsafe.Pointer(addr)), n)
}
