//go:build cgo

package main

/*
#include <stddef.h>
#include <errno.h>
*/
import "C"

import (
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/fjose/memtrail-go/internal/bookkeeping"
	"github.com/fjose/memtrail-go/internal/hostalloc"
	"github.com/fjose/memtrail-go/internal/stackcap"
)

// pageSize is cached once; valloc and pvalloc align to it.
var pageSize = uintptr(unix.Getpagesize())

// newCtx allocates the scratch space one interposed entry point passes
// down into the tracer. It is deliberately left uncaptured here:
// Tracer.Alloc captures into it itself, after arming the re-entrancy
// guard, so a nested allocation triggered by the capture is correctly
// seen as internal (see bookkeeping.Tracer.Alloc).
func newCtx() *stackcap.Context {
	return &stackcap.Context{}
}

// tracerOrNil returns the installed tracer, or nil if a shim is
// entered before the constructor has run (an earlier, higher-priority
// static constructor in the same process called into libc first). The
// zero-value fallback path in each shim below routes straight to the
// host allocator in that case, trading a few unrecorded allocations
// for never crashing on a not-yet-initialized global.
func tracerOrNil() *bookkeeping.Tracer {
	if global == nil {
		return nil
	}
	return global.Tracer
}

//export malloc
func malloc(size C.size_t) unsafe.Pointer {
	t := tracerOrNil()
	if t == nil {
		return unsafe.Pointer(hostalloc.Default.Malloc(uintptr(size)))
	}
	return unsafe.Pointer(t.Alloc(0, uintptr(size), newCtx()))
}

//export free
func free(ptr unsafe.Pointer) {
	if ptr == nil {
		return
	}
	t := tracerOrNil()
	if t == nil {
		hostalloc.Default.Free(uintptr(ptr))
		return
	}
	t.Free(uintptr(ptr))
}

//export calloc
func calloc(nmemb, size C.size_t) unsafe.Pointer {
	n, s := uintptr(nmemb), uintptr(size)
	if n != 0 && s > (^uintptr(0))/n {
		return nil
	}
	total := n * s

	t := tracerOrNil()
	var p uintptr
	if t == nil {
		p = hostalloc.Default.Malloc(total)
	} else {
		p = t.Alloc(0, total, newCtx())
	}
	if p == 0 {
		return nil
	}
	zero := unsafe.Slice((*byte)(unsafe.Pointer(p)), total)
	for i := range zero {
		zero[i] = 0
	}
	return unsafe.Pointer(p)
}

//export realloc
func realloc(ptr unsafe.Pointer, size C.size_t) unsafe.Pointer {
	t := tracerOrNil()
	if t == nil {
		// No live tracer to consult the header through; this can only
		// happen for a block this same fallback path allocated, which
		// callers cannot correctly grow without header bookkeeping. In
		// practice this path is only hit before the constructor runs,
		// long before any realloc of a preload-era pointer occurs.
		return unsafe.Pointer(hostalloc.Default.Malloc(uintptr(size)))
	}
	return unsafe.Pointer(t.Realloc(uintptr(ptr), uintptr(size), newCtx()))
}

//export reallocarray
func reallocarray(ptr unsafe.Pointer, nmemb, size C.size_t) unsafe.Pointer {
	t := tracerOrNil()
	if t == nil {
		return unsafe.Pointer(hostalloc.Default.Malloc(uintptr(nmemb) * uintptr(size)))
	}
	return unsafe.Pointer(t.Reallocarray(uintptr(ptr), uintptr(nmemb), uintptr(size), newCtx()))
}

//export posix_memalign
func posix_memalign(memptr *unsafe.Pointer, alignment, size C.size_t) C.int {
	a := uintptr(alignment)
	if !bookkeeping.ValidAlignment(a) {
		return C.int(unix.EINVAL)
	}
	t := tracerOrNil()
	var p uintptr
	if t == nil {
		p = hostalloc.Default.Malloc(uintptr(size))
	} else {
		p = t.Alloc(a, uintptr(size), newCtx())
	}
	if p == 0 {
		return C.int(unix.ENOMEM)
	}
	*memptr = unsafe.Pointer(p)
	return 0
}

//export memalign
func memalign(alignment, size C.size_t) unsafe.Pointer {
	a := uintptr(alignment)
	if !bookkeeping.ValidAlignment(a) {
		return nil
	}
	t := tracerOrNil()
	if t == nil {
		return unsafe.Pointer(hostalloc.Default.Malloc(uintptr(size)))
	}
	return unsafe.Pointer(t.Alloc(a, uintptr(size), newCtx()))
}

//export aligned_alloc
func aligned_alloc(alignment, size C.size_t) unsafe.Pointer {
	a, s := uintptr(alignment), uintptr(size)
	if !bookkeeping.ValidAlignment(a) || s%a != 0 {
		return nil
	}
	t := tracerOrNil()
	if t == nil {
		return unsafe.Pointer(hostalloc.Default.Malloc(s))
	}
	return unsafe.Pointer(t.Alloc(a, s, newCtx()))
}

//export valloc
func valloc(size C.size_t) unsafe.Pointer {
	t := tracerOrNil()
	if t == nil {
		return unsafe.Pointer(hostalloc.Default.Malloc(uintptr(size)))
	}
	return unsafe.Pointer(t.Alloc(pageSize, uintptr(size), newCtx()))
}

//export pvalloc
func pvalloc(size C.size_t) unsafe.Pointer {
	s := uintptr(size)
	rounded := (s + pageSize - 1) &^ (pageSize - 1)
	t := tracerOrNil()
	if t == nil {
		return unsafe.Pointer(hostalloc.Default.Malloc(rounded))
	}
	return unsafe.Pointer(t.Alloc(pageSize, rounded, newCtx()))
}
