//go:build cgo

package hostalloc

/*
#define _GNU_SOURCE
#include <dlfcn.h>
#include <stdlib.h>
#include <stdint.h>

typedef void *(*malloc_fn_t)(size_t);
typedef void  (*free_fn_t)(void *);

// dummyMalloc is installed before the real symbol is resolved. If the
// dynamic loader's own symbol resolution path calls back into malloc
// (it can, via calloc used internally by dlsym's bookkeeping), the
// call is routed here instead of recursing into dlsym itself: it
// returns NULL, which the caller (dlsym's internals or a benign racing
// tracer thread) must tolerate.
static void *dummyMalloc(size_t n) { (void)n; return NULL; }
static void  dummyFree(void *p)    { (void)p; }

static malloc_fn_t real_malloc = dummyMalloc;
static free_fn_t   real_free   = dummyFree;

static int bootstrapped  = 0;
static int in_progress   = 0;

// bootstrap resolves the real malloc/free implementations from the
// next object in the link order, per the strategy documented in the
// design notes: prime with a no-op, then resolve, so a reentrant call
// during resolution degrades to a null return instead of recursing.
// in_progress is set before either dlsym call, not after, mirroring
// the original tracer's own pre-call "reentrant" flag: dlsym's own
// bookkeeping is documented to call calloc internally, which routes
// straight back into hostalloc_malloc on the same thread, and that
// nested call must see the bootstrap already underway and bail out to
// the still-dummy real_malloc rather than calling dlsym a second time.
static void bootstrap(void) {
    if (bootstrapped || in_progress) {
        return;
    }
    in_progress = 1;
    void *m = dlsym(RTLD_NEXT, "malloc");
    void *f = dlsym(RTLD_NEXT, "free");
    if (m) real_malloc = (malloc_fn_t)m;
    if (f) real_free   = (free_fn_t)f;
    bootstrapped = 1;
    in_progress = 0;
}

static void *hostalloc_malloc(size_t n) {
    bootstrap();
    return real_malloc(n);
}

static void hostalloc_free(void *p) {
    bootstrap();
    real_free(p);
}
*/
import "C"
import "unsafe"

// cAllocator is the production Allocator, backed by the host libc's
// real malloc/free resolved via dlsym(RTLD_NEXT, ...).
type cAllocator struct{}

// Default is the process-wide host allocator used by the interposition
// build. It holds no state of its own (all bootstrap state lives on the
// C side, guarded by the "bootstrapped" flag) so it is safe to share.
var Default Allocator = cAllocator{}

func (cAllocator) Malloc(n uintptr) uintptr {
	p := C.hostalloc_malloc(C.size_t(n))
	return uintptr(p)
}

func (cAllocator) Free(ptr uintptr) {
	if ptr == 0 {
		return
	}
	C.hostalloc_free(unsafe.Pointer(ptr))
}
