// Package memformat defines the on-disk wire format written by the
// tracer's event pipeline. It is the single source of truth for the
// framing described in the tracer's design: a one-byte pointer-width
// preamble followed by a stream of framed records.
//
// A record's size-delta sign carries its meaning: positive is an
// allocation, negative is a free, and zero is a snapshot marker. Only
// allocation records carry a captured stack.
package memformat

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
)

// ModuleUnknown is the reserved ordinal for a frame whose containing
// module could not be resolved.
const ModuleUnknown = 0

// MaxStackDepth bounds the number of frames a single event may carry,
// matching the cap enforced by stack capture.
const MaxStackDepth = 32

// Frame is one resolved instruction address in a captured stack.
type Frame struct {
	Addr         uint64
	Offset       uint64
	ModuleOrdinal uint8
	// ModuleName is non-empty only the first time a module ordinal is
	// referenced; the writer is responsible for tracking which ordinals
	// have already been interned.
	ModuleName string
}

// Event is the decoded form of a single framed record.
type Event struct {
	Payload   uint64
	SizeDelta int64
	Frames    []Frame
}

// IsAlloc reports whether the event represents an allocation.
func (e Event) IsAlloc() bool { return e.SizeDelta > 0 }

// IsFree reports whether the event represents a free.
func (e Event) IsFree() bool { return e.SizeDelta < 0 }

// IsSnapshot reports whether the event is a zero-delta marker record.
func (e Event) IsSnapshot() bool { return e.SizeDelta == 0 }

// WritePreamble writes the one-byte pointer-width header that must
// appear exactly once at the start of the stream.
func WritePreamble(w io.Writer, pointerWidth uint8) error {
	_, err := w.Write([]byte{pointerWidth})
	return err
}

// ReadPreamble reads the pointer-width byte at the start of the stream.
func ReadPreamble(r io.Reader) (uint8, error) {
	var buf [1]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, fmt.Errorf("read preamble: %w", err)
	}
	return buf[0], nil
}

// Encoder appends framed records into a byte buffer using a given
// pointer width (4 or 8). It performs no I/O itself; callers hand the
// resulting buffer to a single Write call so a record is never split
// across pipe writes.
type Encoder struct {
	PointerWidth int // 4 or 8
}

// EncodeAlloc appends an allocation record (payload, positive size delta,
// and the resolved frames) to buf, returning the extended slice.
func (e Encoder) EncodeAlloc(buf []byte, payload uint64, size int64, frames []Frame) ([]byte, error) {
	if size <= 0 {
		return nil, fmt.Errorf("encode alloc: size delta must be positive, got %d", size)
	}
	if len(frames) > MaxStackDepth {
		return nil, fmt.Errorf("encode alloc: %d frames exceeds cap of %d", len(frames), MaxStackDepth)
	}
	buf = e.putPointer(buf, payload)
	buf = e.putWord(buf, uint64(size))
	buf = append(buf, byte(len(frames)))
	for _, f := range frames {
		buf = e.putPointer(buf, f.Addr)
		buf = e.putWord(buf, f.Offset)
		buf = append(buf, f.ModuleOrdinal)
		if f.ModuleName != "" {
			buf = e.putWord(buf, uint64(len(f.ModuleName)))
			buf = append(buf, f.ModuleName...)
		}
	}
	return buf, nil
}

// EncodeFree appends a free record (payload, negative size delta) to buf.
func (e Encoder) EncodeFree(buf []byte, payload uint64, size int64) ([]byte, error) {
	if size >= 0 {
		return nil, fmt.Errorf("encode free: size delta must be negative, got %d", size)
	}
	buf = e.putPointer(buf, payload)
	buf = e.putWord(buf, uint64(size))
	return buf, nil
}

// EncodeSnapshot appends a zero-delta sentinel record to buf.
func (e Encoder) EncodeSnapshot(buf []byte) []byte {
	buf = e.putPointer(buf, 0)
	buf = e.putWord(buf, 0)
	return buf
}

func (e Encoder) putPointer(buf []byte, v uint64) []byte {
	return e.putSized(buf, v, e.PointerWidth)
}

// putWord encodes a native-word (size_t / ssize_t-sized) field. On the
// producing platform this is the same width as a pointer; kept distinct
// from putPointer so the two concepts don't get silently conflated if a
// platform ever differs.
func (e Encoder) putWord(buf []byte, v uint64) []byte {
	return e.putSized(buf, v, e.PointerWidth)
}

func (e Encoder) putSized(buf []byte, v uint64, width int) []byte {
	switch width {
	case 4:
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], uint32(v))
		return append(buf, b[:]...)
	default:
		var b [8]byte
		binary.LittleEndian.PutUint64(b[:], v)
		return append(buf, b[:]...)
	}
}

// Decoder reads framed records back out of a stream. It is used by
// tests to verify the framing property end to end; the full offline
// reader (symbolication, reporting) is out of scope for this repository.
type Decoder struct {
	r            *bufio.Reader
	pointerWidth int
}

// NewDecoder reads the preamble and returns a Decoder configured to the
// stream's declared pointer width.
func NewDecoder(r io.Reader) (*Decoder, error) {
	br := bufio.NewReader(r)
	width, err := ReadPreamble(br)
	if err != nil {
		return nil, err
	}
	if width != 4 && width != 8 {
		return nil, fmt.Errorf("unsupported pointer width %d", width)
	}
	return &Decoder{r: br, pointerWidth: int(width)}, nil
}

// Next decodes the next event, resolving module-name suffixes the first
// time an ordinal is referenced. seen must be reused across calls on the
// same stream so the decoder's view of "already interned" tracks the
// encoder's. It returns io.EOF when the stream is exhausted exactly on a
// record boundary.
func (d *Decoder) Next(seen map[uint8]bool) (Event, error) {
	payload, err := d.readSized()
	if err != nil {
		return Event{}, err
	}
	deltaRaw, err := d.readSized()
	if err != nil {
		return Event{}, fmt.Errorf("truncated record: %w", err)
	}
	delta := int64(deltaRaw)
	ev := Event{Payload: payload, SizeDelta: delta}
	if delta <= 0 {
		return ev, nil
	}

	depthByte, err := d.r.ReadByte()
	if err != nil {
		return Event{}, fmt.Errorf("truncated record: %w", err)
	}
	depth := int(depthByte)
	ev.Frames = make([]Frame, 0, depth)
	for i := 0; i < depth; i++ {
		addr, err := d.readSized()
		if err != nil {
			return Event{}, fmt.Errorf("truncated frame: %w", err)
		}
		offset, err := d.readSized()
		if err != nil {
			return Event{}, fmt.Errorf("truncated frame: %w", err)
		}
		ordinal, err := d.r.ReadByte()
		if err != nil {
			return Event{}, fmt.Errorf("truncated frame: %w", err)
		}
		f := Frame{Addr: addr, Offset: offset, ModuleOrdinal: ordinal}
		if ordinal != ModuleUnknown && !seen[ordinal] {
			nameLen, err := d.readSized()
			if err != nil {
				return Event{}, fmt.Errorf("truncated module name length: %w", err)
			}
			name := make([]byte, nameLen)
			if _, err := io.ReadFull(d.r, name); err != nil {
				return Event{}, fmt.Errorf("truncated module name: %w", err)
			}
			f.ModuleName = string(name)
			seen[ordinal] = true
		}
		ev.Frames = append(ev.Frames, f)
	}
	return ev, nil
}

func (d *Decoder) readSized() (uint64, error) {
	buf := make([]byte, d.pointerWidth)
	if _, err := io.ReadFull(d.r, buf); err != nil {
		return 0, err
	}
	if d.pointerWidth == 4 {
		return uint64(binary.LittleEndian.Uint32(buf)), nil
	}
	return binary.LittleEndian.Uint64(buf), nil
}
