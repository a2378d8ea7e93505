package pipeline

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fjose/memtrail-go/internal/memformat"
)

// Property 5: framing. A reader that consumes exactly the framed bytes
// of each record consumes the entire file without remainder.
func TestFramingRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, 8)

	require.NoError(t, w.EmitAlloc(0x1000, 64, []memformat.Frame{
		{Addr: 0xdead, Offset: 0x10, ModuleOrdinal: 1, ModuleName: "libc.so.6"},
		{Addr: 0xbeef, Offset: 0x20, ModuleOrdinal: 1},
	}))
	require.NoError(t, w.EmitAlloc(0x2000, 128, nil))
	require.NoError(t, w.EmitFree(0x1000, -64))
	require.NoError(t, w.EmitSnapshot(128, 128, 1))

	dec, err := memformat.NewDecoder(&buf)
	require.NoError(t, err)

	seen := map[uint8]bool{}

	ev, err := dec.Next(seen)
	require.NoError(t, err)
	require.True(t, ev.IsAlloc())
	require.Equal(t, uint64(0x1000), ev.Payload)
	require.Len(t, ev.Frames, 2)
	require.Equal(t, "libc.so.6", ev.Frames[0].ModuleName)
	require.Empty(t, ev.Frames[1].ModuleName, "second frame reuses already-announced ordinal")

	ev, err = dec.Next(seen)
	require.NoError(t, err)
	require.True(t, ev.IsAlloc())
	require.Empty(t, ev.Frames)

	ev, err = dec.Next(seen)
	require.NoError(t, err)
	require.True(t, ev.IsFree())
	require.Equal(t, uint64(0x1000), ev.Payload)

	ev, err = dec.Next(seen)
	require.NoError(t, err)
	require.True(t, ev.IsSnapshot())

	_, err = dec.Next(seen)
	require.ErrorIs(t, err, io.EOF, "stream must end exactly on the last record boundary")
	require.Equal(t, 0, buf.Len(), "reader must consume the stream exactly, with no remainder")
}

func TestPreambleWrittenOnce(t *testing.T) {
	var buf bytes.Buffer
	w := NewWriter(&buf, 8)
	require.NoError(t, w.EmitFree(1, -1))
	require.NoError(t, w.EmitFree(2, -1))

	require.Equal(t, uint8(8), buf.Bytes()[0])
	require.Equal(t, 1+2*16, buf.Len(), "one preamble byte plus two 16-byte free records")

	dec, err := memformat.NewDecoder(&buf)
	require.NoError(t, err)
	seen := map[uint8]bool{}
	_, err = dec.Next(seen)
	require.NoError(t, err)
	_, err = dec.Next(seen)
	require.NoError(t, err)
}
