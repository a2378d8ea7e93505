// Package hostalloc resolves and calls the host C allocator's real
// implementation, bypassing interposition. The tracer must never
// service a user allocation from Go-runtime-managed memory: the
// payload pointer crosses the C ABI to arbitrary native callers who
// will eventually call the interposed free() on it independently of
// any Go GC root, so the underlying bytes must come from the same
// allocator free() expects to release them to.
package hostalloc

// Allocator is the seam bookkeeping depends on so it can be exercised
// by tests without a cgo boundary. The cgo build (hostalloc_cgo.go)
// implements it over dlsym(RTLD_NEXT, ...); tests substitute a fake
// backed by Go's own allocator, which is safe there because test
// payloads are never handed to a real native free().
type Allocator interface {
	// Malloc requests n bytes from the host allocator. Returns 0 on
	// failure, exactly mirroring host malloc's null-on-OOM contract.
	Malloc(n uintptr) uintptr
	// Free releases a block previously returned by Malloc. Freeing 0
	// is a no-op, mirroring host free(NULL).
	Free(ptr uintptr)
}
