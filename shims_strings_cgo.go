//go:build cgo

package main

/*
#include <stddef.h>
#include <string.h>
*/
import "C"

import (
	"unsafe"

	"github.com/fjose/memtrail-go/internal/hostalloc"
)

// strdup and strndup call libc's internal malloc directly, bypassing
// PLT-level interposition of the external malloc symbol, which is why
// the design calls them out as needing their own entry points rather
// than relying on the malloc shim to see their allocations.
//
// asprintf and vasprintf are not interposed: both are variadic C
// functions, and cgo's //export mechanism cannot generate a variadic
// C signature for an exported Go function, so there is no way to
// stand a Go shim in for them at the correct calling convention.
// Allocations they make internally (via the same libc malloc bypass)
// are missed; this is an accepted gap, not a silent bug, since no cgo
// program can close it without hand-written assembly trampolines.

//export strdup
func strdup(s *C.char) *C.char {
	if s == nil {
		return nil
	}
	n := C.strlen(s)
	dst := stringAlloc(uintptr(n) + 1)
	if dst == nil {
		return nil
	}
	copy(unsafe.Slice((*byte)(dst), n+1), unsafe.Slice((*byte)(unsafe.Pointer(s)), n+1))
	return (*C.char)(dst)
}

//export strndup
func strndup(s *C.char, n C.size_t) *C.char {
	if s == nil {
		return nil
	}
	max := C.strnlen(s, n)
	dst := stringAlloc(uintptr(max) + 1)
	if dst == nil {
		return nil
	}
	out := unsafe.Slice((*byte)(dst), max+1)
	copy(out[:max], unsafe.Slice((*byte)(unsafe.Pointer(s)), max))
	out[max] = 0
	return (*C.char)(dst)
}

// stringAlloc routes strdup/strndup's allocation through the same
// tracer path every other entry point uses, so duplicated strings show
// up in the event stream like any other allocation.
func stringAlloc(n uintptr) unsafe.Pointer {
	t := tracerOrNil()
	if t == nil {
		return unsafe.Pointer(hostalloc.Default.Malloc(n))
	}
	return unsafe.Pointer(t.Alloc(0, n, newCtx()))
}
