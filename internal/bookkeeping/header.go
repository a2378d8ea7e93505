package bookkeeping

import (
	"unsafe"

	"github.com/fjose/memtrail-go/internal/stackcap"
)

// flagBit is the header's small bit-field, matching the design's
// allocated/pending/internal flags.
type flagBit uint8

const (
	flagAllocated flagBit = 1 << iota
	flagPending
	flagInternal
)

// Header is the fixed-size metadata immediately preceding every payload
// the tracer hands out. It is never allocated by the Go runtime: it
// always lives inside a block obtained from the host allocator, viewed
// through unsafe.Pointer, because the payload address it describes is
// handed across the C ABI to native callers who will eventually free()
// it without any Go GC root keeping it alive.
//
// prev/next are addresses (not *Header) of neighboring headers in the
// live-allocation registry, rather than typed pointers, so nothing in
// this struct is ever mistaken for a Go-managed pointer needing GC
// tracing.
type Header struct {
	OrigPtr uintptr // block returned by the host allocator
	Size    uintptr // exact user-requested size (0 rounds up to 1)
	Flags   uint8
	Depth   uint8
	_       [6]byte // pad Frames to 8-byte alignment on 64-bit hosts
	Frames  [stackcap.MaxDepth]uintptr
	prev    uintptr
	next    uintptr
}

// HeaderSize is sizeof(Header), used by callers computing oversize
// requests and alignment placement.
const HeaderSize = unsafe.Sizeof(Header{})

// headerAt views the memory at addr as a Header. addr must reference a
// block obtained from the host allocator that is at least HeaderSize
// bytes long.
func headerAt(addr uintptr) *Header {
	return (*Header)(unsafe.Pointer(addr))
}

// HeaderOf recovers the header for a payload pointer by subtraction, per
// the invariant header(p) = p - sizeof(header).
func HeaderOf(payload uintptr) *Header {
	return headerAt(payload - HeaderSize)
}

// payloadAddr returns the payload address for a header at addr.
func payloadAddr(addr uintptr) uintptr {
	return addr + HeaderSize
}

// Payload returns the payload address this header describes.
func (h *Header) Payload() uintptr {
	return uintptr(unsafe.Pointer(h)) + HeaderSize
}

// Addr returns this header's own address.
func (h *Header) Addr() uintptr {
	return uintptr(unsafe.Pointer(h))
}

func (h *Header) isAllocated() bool { return h.Flags&uint8(flagAllocated) != 0 }
func (h *Header) isPending() bool   { return h.Flags&uint8(flagPending) != 0 }
func (h *Header) isInternal() bool  { return h.Flags&uint8(flagInternal) != 0 }

func (h *Header) setFlag(f flagBit)   { h.Flags |= uint8(f) }
func (h *Header) clearFlag(f flagBit) { h.Flags &^= uint8(f) }

// alignUp rounds addr up to the given power-of-two alignment.
func alignUp(addr, alignment uintptr) uintptr {
	if alignment == 0 {
		return addr
	}
	return (addr + alignment - 1) &^ (alignment - 1)
}

// placeHeader computes where, within a raw block of at least
// alignment+HeaderSize+size bytes starting at raw, the header must sit
// so that its payload address is aligned to alignment. When alignment
// is 0 or 1, the header sits at the very start of the block.
func placeHeader(raw uintptr, alignment uintptr) (headerAddr uintptr) {
	if alignment <= 1 {
		return raw
	}
	wantPayload := alignUp(raw+HeaderSize, alignment)
	return wantPayload - HeaderSize
}

// isPowerOfTwo reports whether v is a power of two (v > 0).
func isPowerOfTwo(v uintptr) bool {
	return v != 0 && v&(v-1) == 0
}
