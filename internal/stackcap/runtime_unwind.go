package stackcap

import "runtime"

// runtimeUnwinder is the default, pure-Go unwind strategy used by the
// harness binary and by tests that exercise bookkeeping without the
// cgo interposition surface. It is not allocation-free (runtime.Callers
// needs a slice header); that is acceptable here because nothing on
// this path is itself being accounted by the tracer. The cgo build
// installs a backtrace(3)-based walker via SetUnwinder, which may
// itself allocate on its first use on a thread (see framepointer_cgo.go).
func runtimeUnwinder(skip int, pcs *[MaxDepth]uintptr) int {
	buf := make([]uintptr, MaxDepth)
	n := runtime.Callers(skip+1, buf)
	for i := 0; i < n; i++ {
		pcs[i] = buf[i]
	}
	return n
}
