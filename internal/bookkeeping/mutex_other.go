//go:build !linux

package bookkeeping

// currentThread degrades to a single constant identity on non-Linux
// Unix targets, which lack a cheap syscall-free thread-id primitive in
// the standard library. This makes the recursive lock behave as if
// every caller were the same owner: same-thread nested calls stay
// correct (the common case this package must get right), but two
// distinct OS threads racing into the tracer at once could both see
// themselves as "already the owner" and proceed concurrently. The
// primary target platform for interposition is Linux (mutex_linux.go);
// this fallback exists only so the rest of the package builds and its
// non-cgo-dependent tests run on a developer's non-Linux workstation.
func currentThread() int32 {
	return 0
}
