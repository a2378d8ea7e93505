package main

import "unsafe"

// addrOf returns buf's backing array address as a uintptr, the same
// pattern internal/bookkeeping's tests use to hand Go-heap memory to
// a Tracer through the Allocator interface's raw-address contract.
func addrOf(buf []byte) uintptr {
	return uintptr(unsafe.Pointer(&buf[0]))
}
