//go:build cgo

package stackcap

/*
#include <execinfo.h>
*/
import "C"
import "unsafe"

func init() {
	SetUnwinder(backtraceUnwinder)
}

// backtraceUnwinder captures the calling C stack via glibc's
// backtrace(3), writing directly into the caller-supplied array. This
// replaces the pure-Go runtime.Callers default installed by
// stackcap.go: runtime.Callers only walks Go-managed frames, but the
// interposition shims are entered from arbitrary native call sites on
// the far side of the cgo boundary, so the frames worth recording live
// entirely in C.
//
// backtrace itself is not guaranteed allocation-free on every libc: it
// may lazily allocate unwind-table state the first time it runs on a
// given thread. That first-call cost is accepted here the same way the
// design accepts dlsym's own bootstrap allocation, guarded by the
// tracer's dummy-allocator priming rather than by this function.
func backtraceUnwinder(skip int, pcs *[MaxDepth]uintptr) int {
	n := int(C.backtrace((*unsafe.Pointer)(unsafe.Pointer(&pcs[0])), C.int(MaxDepth)))
	if n <= 0 {
		return 0
	}
	if skip >= n {
		return 0
	}
	if skip > 0 {
		copy(pcs[:n-skip], pcs[skip:n])
	}
	return n - skip
}
