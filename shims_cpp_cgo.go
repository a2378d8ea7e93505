//go:build cgo

package main

/*
#include <stdlib.h>
*/
import "C"

import (
	"unsafe"

	"github.com/fjose/memtrail-go/internal/bookkeeping"
	"github.com/fjose/memtrail-go/internal/hostalloc"
)

// The sixteen entry points below are the mangled Itanium C++ ABI names
// for operator new / operator delete across the
// {single,array} x {throwing,nothrow} x {default,explicit-aligned}
// cross product. A C++ binary calls these directly; they never go
// through malloc, so libstdc++'s own allocations are invisible to the
// tracer unless these are interposed too. cgo requires the name after
// //export to match the Go function's own name, so the mangled names
// are used as the Go identifiers directly rather than as aliases.
//
// The throwing variants cannot actually throw std::bad_alloc from Go:
// there is no way to synthesize a C++ exception object and unwind
// through it from a cgo-exported function. On host-allocator OOM they
// call abort(), which is the same terminate-the-process outcome a
// real std::bad_alloc would eventually produce if nothing catches it,
// without pretending to offer a catchable exception this tracer cannot
// deliver. The nothrow variants return null, which is their documented
// contract regardless.

func cppAlloc(size uintptr, alignment uintptr) unsafe.Pointer {
	t := tracerOrNil()
	if t == nil {
		if alignment > 1 {
			return nil
		}
		return unsafe.Pointer(hostalloc.Default.Malloc(size))
	}
	a := uintptr(0)
	if alignment > 1 && bookkeeping.ValidAlignment(alignment) {
		a = alignment
	}
	return unsafe.Pointer(t.Alloc(a, size, newCtx()))
}

func cppFree(ptr unsafe.Pointer) {
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

// _Znwm is operator new(unsigned long).
//
//export _Znwm
func _Znwm(size C.ulong) unsafe.Pointer {
	p := cppAlloc(uintptr(size), 0)
	if p == nil {
		C.abort()
	}
	return p
}

// _ZnwmSt11align_val_t is operator new(unsigned long, std::align_val_t).
//
//export _ZnwmSt11align_val_t
func _ZnwmSt11align_val_t(size C.ulong, alignment C.ulong) unsafe.Pointer {
	p := cppAlloc(uintptr(size), uintptr(alignment))
	if p == nil {
		C.abort()
	}
	return p
}

// _ZnwmRKSt9nothrow_t is operator new(unsigned long, std::nothrow_t const&).
//
//export _ZnwmRKSt9nothrow_t
func _ZnwmRKSt9nothrow_t(size C.ulong, _ unsafe.Pointer) unsafe.Pointer {
	return cppAlloc(uintptr(size), 0)
}

// _ZnwmSt11align_val_tRKSt9nothrow_t is operator new(unsigned long,
// std::align_val_t, std::nothrow_t const&).
//
//export _ZnwmSt11align_val_tRKSt9nothrow_t
func _ZnwmSt11align_val_tRKSt9nothrow_t(size C.ulong, alignment C.ulong, _ unsafe.Pointer) unsafe.Pointer {
	return cppAlloc(uintptr(size), uintptr(alignment))
}

// _Znam is operator new[](unsigned long).
//
//export _Znam
func _Znam(size C.ulong) unsafe.Pointer {
	p := cppAlloc(uintptr(size), 0)
	if p == nil {
		C.abort()
	}
	return p
}

// _ZnamSt11align_val_t is operator new[](unsigned long, std::align_val_t).
//
//export _ZnamSt11align_val_t
func _ZnamSt11align_val_t(size C.ulong, alignment C.ulong) unsafe.Pointer {
	p := cppAlloc(uintptr(size), uintptr(alignment))
	if p == nil {
		C.abort()
	}
	return p
}

// _ZnamRKSt9nothrow_t is operator new[](unsigned long, std::nothrow_t const&).
//
//export _ZnamRKSt9nothrow_t
func _ZnamRKSt9nothrow_t(size C.ulong, _ unsafe.Pointer) unsafe.Pointer {
	return cppAlloc(uintptr(size), 0)
}

// _ZnamSt11align_val_tRKSt9nothrow_t is operator new[](unsigned long,
// std::align_val_t, std::nothrow_t const&).
//
//export _ZnamSt11align_val_tRKSt9nothrow_t
func _ZnamSt11align_val_tRKSt9nothrow_t(size C.ulong, alignment C.ulong, _ unsafe.Pointer) unsafe.Pointer {
	return cppAlloc(uintptr(size), uintptr(alignment))
}

// _ZdlPv is operator delete(void*).
//
//export _ZdlPv
func _ZdlPv(ptr unsafe.Pointer) {
	cppFree(ptr)
}

// _ZdlPvSt11align_val_t is operator delete(void*, std::align_val_t).
//
//export _ZdlPvSt11align_val_t
func _ZdlPvSt11align_val_t(ptr unsafe.Pointer, _ C.ulong) {
	cppFree(ptr)
}

// _ZdlPvRKSt9nothrow_t is operator delete(void*, std::nothrow_t const&).
//
//export _ZdlPvRKSt9nothrow_t
func _ZdlPvRKSt9nothrow_t(ptr unsafe.Pointer, _ unsafe.Pointer) {
	cppFree(ptr)
}

// _ZdlPvSt11align_val_tRKSt9nothrow_t is operator delete(void*,
// std::align_val_t, std::nothrow_t const&).
//
//export _ZdlPvSt11align_val_tRKSt9nothrow_t
func _ZdlPvSt11align_val_tRKSt9nothrow_t(ptr unsafe.Pointer, _ C.ulong, _ unsafe.Pointer) {
	cppFree(ptr)
}

// _ZdaPv is operator delete[](void*).
//
//export _ZdaPv
func _ZdaPv(ptr unsafe.Pointer) {
	cppFree(ptr)
}

// _ZdaPvSt11align_val_t is operator delete[](void*, std::align_val_t).
//
//export _ZdaPvSt11align_val_t
func _ZdaPvSt11align_val_t(ptr unsafe.Pointer, _ C.ulong) {
	cppFree(ptr)
}

// _ZdaPvRKSt9nothrow_t is operator delete[](void*, std::nothrow_t const&).
//
//export _ZdaPvRKSt9nothrow_t
func _ZdaPvRKSt9nothrow_t(ptr unsafe.Pointer, _ unsafe.Pointer) {
	cppFree(ptr)
}

// _ZdaPvSt11align_val_tRKSt9nothrow_t is operator delete[](void*,
// std::align_val_t, std::nothrow_t const&).
//
//export _ZdaPvSt11align_val_tRKSt9nothrow_t
func _ZdaPvSt11align_val_tRKSt9nothrow_t(ptr unsafe.Pointer, _ C.ulong, _ unsafe.Pointer) {
	cppFree(ptr)
}
