// Package bookkeeping implements the tracer's core allocation
// algorithm: header placement, the live-allocation registry, the
// accounting counters, and the re-entrancy guard, all serialized
// behind a single process-wide recursive lock. It is deliberately kept
// free of any cgo dependency so it can be driven directly by both the
// interposition shims (the root package's shims_*.go) and by tests / the harness
// binary (cmd/memtrail-preloadtest) without a c-shared build.
package bookkeeping

import (
	"fmt"
	"os"
	"unsafe"

	"github.com/fjose/memtrail-go/internal/hostalloc"
	"github.com/fjose/memtrail-go/internal/memformat"
	"github.com/fjose/memtrail-go/internal/procmap"
	"github.com/fjose/memtrail-go/internal/stackcap"
)

// EventSink is the seam the tracer emits framed events through. The
// production implementation is pipeline.Writer; tests substitute a
// slice-backed fake.
type EventSink interface {
	EmitAlloc(payload uint64, size int64, frames []memformat.Frame) error
	EmitFree(payload uint64, size int64) error
	EmitSnapshot(current, delta int64, no uint64) error
}

// LimitHandler is invoked when an allocation would exceed the
// configured byte ceiling or overflow the signed accounting counter.
// It receives the live and peak byte counts observed at the moment of
// the violation. The production wiring (internal/lifecycle) flushes
// pending headers, prints a warning, and calls os.Exit(1); tests
// substitute a handler that just records the call.
type LimitHandler func(current, max int64)

// Tracer holds all process-global tracer state: the recursive lock, the
// re-entrancy counter, the live-allocation registry, the accounting
// counters, and the collaborators needed to place headers, resolve
// stacks, and emit events.
type Tracer struct {
	mu        recursiveMutex
	recursion int

	reg      Registry
	counters Counters

	host      hostalloc.Allocator
	resolver  *procmap.Resolver
	announcer *procmap.Announcer
	sink      EventSink

	onLimitExceeded LimitHandler
}

// New builds a Tracer over the given host allocator, event sink, and
// module resolver.
func New(host hostalloc.Allocator, sink EventSink, resolver *procmap.Resolver) *Tracer {
	return &Tracer{
		host:      host,
		sink:      sink,
		resolver:  resolver,
		announcer: procmap.NewAnnouncer(),
	}
}

// SetLimit configures the byte ceiling that triggers the limit handler.
func (t *Tracer) SetLimit(limit int64) {
	t.mu.Lock()
	t.counters.SetLimit(limit)
	t.mu.Unlock()
}

// SetLimitHandler installs the callback invoked when the limit is
// exceeded or the signed counter would overflow.
func (t *Tracer) SetLimitHandler(h LimitHandler) {
	t.onLimitExceeded = h
}

// TotalSize returns the current live byte count.
func (t *Tracer) TotalSize() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counters.TotalSize()
}

// MaxSize returns the peak observed live byte count.
func (t *Tracer) MaxSize() int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.counters.MaxSize()
}

// PendingCount returns how many headers are currently linked into the
// live-allocation registry (allocated but not yet flushed to the
// event stream). Exposed for tests of the pending-cancellation
// invariant.
func (t *Tracer) PendingCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.reg.Count()
}

// Alloc services one allocation request. alignment is 0 or 1 for an
// unaligned request, or a validated power-of-two boundary for the
// aligned entry points. ctx is caller-supplied scratch space, not yet
// captured: the shim (or the harness) allocates it on its own stack
// and hands it in uninitialized, and Alloc captures into it itself,
// after the recursion guard is armed, exactly mirroring the original
// tracer's own _update() wrapping its backtrace() call inside
// "if (recursion++ <= 0)". Capturing here rather than in the caller
// matters because the capture itself can allocate (stackcap's
// backtrace(3) may lazily allocate unwind-table state on a thread's
// first use): if that happened before recursion were incremented, the
// nested allocation would see recursion still at its pre-call value
// and be misfiled as a normal, permanently-pending allocation instead
// of an internal one. It returns 0 on host-allocator OOM, matching
// malloc's null-on-failure contract.
func (t *Tracer) Alloc(alignment, size uintptr, ctx *stackcap.Context) uintptr {
	t.mu.Lock()
	t.recursion++
	internal := t.recursion > 1

	if !internal && ctx != nil {
		stackcap.Capture(ctx, 2)
	}

	reqSize := size
	if reqSize == 0 {
		reqSize = 1
	}
	extra := uintptr(0)
	if alignment > 1 {
		extra = alignment
	}

	raw := t.host.Malloc(extra + HeaderSize + reqSize)
	if raw == 0 {
		t.recursion--
		t.mu.Unlock()
		return 0
	}

	h := headerAt(placeHeader(raw, alignment))
	*h = Header{}
	h.OrigPtr = raw
	h.Size = reqSize
	h.setFlag(flagAllocated)

	limitExceeded := false
	if internal {
		h.setFlag(flagInternal)
	} else {
		if ctx != nil {
			frames := ctx.Frames()
			n := len(frames)
			if n > stackcap.MaxDepth {
				n = stackcap.MaxDepth
			}
			h.Depth = uint8(n)
			copy(h.Frames[:n], frames[:n])
		}
		limitExceeded = !t.counters.add(int64(reqSize))
		t.reg.Link(h)
	}

	payload := h.Payload()
	t.recursion--
	current, max := t.counters.TotalSize(), t.counters.MaxSize()
	t.mu.Unlock()

	if limitExceeded && t.onLimitExceeded != nil {
		t.onLimitExceeded(current, max)
	}
	return payload
}

// Free services one free request. A null payload is a documented
// no-op. Bookkeeping (counters, registry, event emission) happens
// while the header is still intact, before the block is handed back
// to the host allocator, mirroring the original tracer's own
// sequencing: accounting first, physical release last, since the
// header the registry's intrusive list threads through would
// otherwise be read after it was released.
func (t *Tracer) Free(payload uintptr) {
	if payload == 0 {
		return
	}
	t.mu.Lock()
	t.recursion++

	h := HeaderOf(payload)
	if !h.isInternal() {
		size := int64(h.Size)
		t.counters.add(-size)
		if h.isPending() {
			t.reg.Unlink(h)
		} else {
			t.abortOnSinkErr(t.sink.EmitFree(uint64(payload), -size))
		}
	}
	origPtr := h.OrigPtr

	t.recursion--
	t.mu.Unlock()

	t.host.Free(origPtr)
}

// Realloc implements realloc(p, n) exactly per the design: null p is
// alloc, zero n is free, otherwise alloc-of-n + memcpy-of-min(old,n) +
// free-of-p. It never resizes in place, since the header records the
// requested size and an in-place resize would need a size-delta event
// the wire format has no room for (the mandated resolution of the
// original's inconsistent in-place-shrink handling).
func (t *Tracer) Realloc(payload, newSize uintptr, ctx *stackcap.Context) uintptr {
	if payload == 0 {
		return t.Alloc(0, newSize, ctx)
	}
	if newSize == 0 {
		t.Free(payload)
		return 0
	}

	oldSize := HeaderOf(payload).Size
	newPtr := t.Alloc(0, newSize, ctx)
	if newPtr == 0 {
		return 0
	}

	n := oldSize
	if newSize < n {
		n = newSize
	}
	memcopy(newPtr, payload, n)
	t.Free(payload)
	return newPtr
}

// Reallocarray implements reallocarray(p, nmemb, size), detecting
// multiplicative overflow and returning null without freeing p when it
// occurs.
func (t *Tracer) Reallocarray(payload, nmemb, size uintptr, ctx *stackcap.Context) uintptr {
	if nmemb != 0 && size > (^uintptr(0))/nmemb {
		return 0
	}
	return t.Realloc(payload, nmemb*size, ctx)
}

// Flush emits an alloc event for every header still pending (still
// linked in the live-allocation registry) and unlinks it, exactly as
// the snapshot entry point and the process destructor require. It
// returns the number of headers flushed.
func (t *Tracer) Flush() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.flushLocked(nil)
}

// LeakReporter receives one still-pending allocation's payload address,
// requested size, and captured return addresses as FlushReport unlinks
// it. Addresses are raw instruction pointers, most-recent-call-first,
// exactly as captured by stackcap; resolving them into module-relative
// symbols is the caller's job (see internal/procmap.ResolvedCache).
type LeakReporter func(payload uint64, size int64, addrs []uintptr)

// FlushReport behaves like Flush, additionally invoking report once per
// flushed header before it is unlinked, so a caller can print a
// human-readable leak report alongside the wire-format event stream
// that Flush alone produces. Used by the process destructor.
func (t *Tracer) FlushReport(report LeakReporter) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.flushLocked(report)
}

func (t *Tracer) flushLocked(report LeakReporter) int {
	n := 0
	t.reg.Each(func(h *Header) {
		frames := t.framesLocked(h)
		t.abortOnSinkErr(t.sink.EmitAlloc(uint64(h.Payload()), int64(h.Size), frames))
		if report != nil {
			depth := int(h.Depth)
			addrs := make([]uintptr, depth)
			copy(addrs, h.Frames[:depth])
			report(uint64(h.Payload()), int64(h.Size), addrs)
		}
		t.reg.Unlink(h)
		n++
	})
	return n
}

// Snapshot flushes pending headers, writes a sentinel record, and
// returns the current byte count, the delta since the previous
// snapshot, and the new snapshot ordinal — exactly the values the
// diagnostic stream prints.
func (t *Tracer) Snapshot() (current, delta int64, no uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.flushLocked(nil)
	current, delta, no = t.counters.snapshot()
	t.abortOnSinkErr(t.sink.EmitSnapshot(current, delta, no))
	return current, delta, no
}

// framesLocked resolves a header's captured addresses into wire-format
// frames, consulting the module resolver and marking newly referenced
// modules for name interning. Must be called with mu held.
func (t *Tracer) framesLocked(h *Header) []memformat.Frame {
	n := int(h.Depth)
	if n == 0 || t.resolver == nil {
		return nil
	}
	out := make([]memformat.Frame, n)
	for i := 0; i < n; i++ {
		addr := h.Frames[i]
		ordinal, offset := t.resolver.Resolve(addr)
		f := memformat.Frame{Addr: uint64(addr), Offset: uint64(offset), ModuleOrdinal: ordinal}
		if t.announcer.ShouldAnnounce(ordinal) {
			f.ModuleName = t.resolver.ModuleName(ordinal)
		}
		out[i] = f
	}
	return out
}

// abortOnSinkErr enforces the mandated fail-fast policy on a broken
// event pipe: a short write or write error out of the compressor pipe
// is an asserted invariant violation, not a recoverable condition
// (spec §7, "Pipe write failure"), so the process exits immediately
// rather than continuing to run against a truncated or corrupted
// event stream.
func (t *Tracer) abortOnSinkErr(err error) {
	if err == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "memtrail: fatal: event stream write failed: %v\n", err)
	os.Exit(1)
}

// memcopy copies n bytes from src to dst, both addresses of
// host-allocator-backed memory outside Go's GC-managed heap.
func memcopy(dst, src, n uintptr) {
	if n == 0 {
		return
	}
	d := unsafe.Slice((*byte)(unsafe.Pointer(dst)), n)
	s := unsafe.Slice((*byte)(unsafe.Pointer(src)), n)
	copy(d, s)
}
