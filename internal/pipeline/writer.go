// Package pipeline implements the framed binary event stream: a
// per-event buffer of AtomicWriteLimit (64 KiB) bytes, committed to the
// underlying sink in a single write under the Writer's mutex so
// concurrent producer threads never interleave partial records. The
// buffer is larger than PIPE_BUF, so a record longer than PIPE_BUF is
// not guaranteed to reach the pipe in one atomic kernel write. It is backed by a
// forked-and-exec'd compressor child (or a direct file fallback if the
// child could not be started).
package pipeline

import (
	"fmt"
	"io"
	"sync"

	"github.com/fjose/memtrail-go/internal/memformat"
)

// Writer serializes events using memformat.Encoder and commits each
// one to dst in a single Write call. It is safe for concurrent use:
// callers are expected to already hold the tracer's own recursive
// lock when calling Emit*, but Writer takes its own mutex too so it
// can be exercised directly by tests without a Tracer.
type Writer struct {
	mu      sync.Mutex
	dst     io.Writer
	enc     memformat.Encoder
	scratch []byte
	preambleSent bool
}

// AtomicWriteLimit is the buffer size each record is assembled into
// before being committed in one Write call. It approximates the
// platform's atomic pipe-write guarantee (PIPE_BUF on Linux is
// typically 4096 bytes); sized generously above that so a
// maximum-depth stack frame with a freshly interned module name still
// fits in a single record.
const AtomicWriteLimit = 64 * 1024

// NewWriter wraps dst, ready to emit events for a process whose
// pointer width is pointerWidth (4 or 8 bytes).
func NewWriter(dst io.Writer, pointerWidth int) *Writer {
	return &Writer{
		dst:     dst,
		enc:     memformat.Encoder{PointerWidth: pointerWidth},
		scratch: make([]byte, 0, AtomicWriteLimit),
	}
}

// ensurePreamble writes the one-byte pointer-width header exactly once.
func (w *Writer) ensurePreamble() error {
	if w.preambleSent {
		return nil
	}
	if err := memformat.WritePreamble(w.dst, uint8(w.enc.PointerWidth)); err != nil {
		return fmt.Errorf("pipeline: write preamble: %w", err)
	}
	w.preambleSent = true
	return nil
}

// EmitAlloc writes a framed allocation record.
func (w *Writer) EmitAlloc(payload uint64, size int64, frames []memformat.Frame) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.ensurePreamble(); err != nil {
		return err
	}
	buf, err := w.enc.EncodeAlloc(w.scratch[:0], payload, size, frames)
	if err != nil {
		return err
	}
	return w.commit(buf)
}

// EmitFree writes a framed free record.
func (w *Writer) EmitFree(payload uint64, size int64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.ensurePreamble(); err != nil {
		return err
	}
	buf, err := w.enc.EncodeFree(w.scratch[:0], payload, size)
	if err != nil {
		return err
	}
	return w.commit(buf)
}

// EmitSnapshot writes a zero-delta sentinel record. current, delta, and
// no are accepted for interface symmetry with the diagnostic printer
// but are not themselves part of the wire record (a snapshot record
// carries only the null-pointer/zero-delta marker; the byte counts are
// reported on the diagnostic stream, not the data stream).
func (w *Writer) EmitSnapshot(current, delta int64, no uint64) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if err := w.ensurePreamble(); err != nil {
		return err
	}
	buf := w.enc.EncodeSnapshot(w.scratch[:0])
	return w.commit(buf)
}

// commit performs the single Write call a record's framing must land
// in. A short write is treated as a pipe failure per the design's
// fail-fast contract; callers (bookkeeping.Tracer) are expected to abort the
// process rather than attempt to resynchronize a partially written
// stream.
func (w *Writer) commit(buf []byte) error {
	if len(buf) > AtomicWriteLimit {
		return fmt.Errorf("pipeline: record of %d bytes exceeds atomic write limit %d", len(buf), AtomicWriteLimit)
	}
	n, err := w.dst.Write(buf)
	if err != nil {
		return fmt.Errorf("pipeline: write failed: %w", err)
	}
	if n != len(buf) {
		return fmt.Errorf("pipeline: short write (%d of %d bytes)", n, len(buf))
	}
	return nil
}
