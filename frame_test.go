package proctrace

import (
	"bytes"
	"io"
	"math"
	"testing"
	"testing/iotest"

	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"
)

func frame(t *testing.T, payload string) []byte {
	t.Helper()

	b, err := appendFrameHeader(nil, uint64(len(payload)))
	require.NoError(t, err)
	return append(b, payload...)
}

func TestFrameHeader(t *testing.T) {
	t.Parallel()

	for _, n := range []uint64{1, 255, 256, 65535, 1 << 24, math.MaxUint32} {
		hdr, err := appendFrameHeader(nil, n)
		require.NoError(t, err)
		require.Len(t, hdr, FrameHeaderSize)
		require.Equal(t, FrameMagic, string(hdr[:4]))

		got, err := parseFrameHeader(hdr)
		require.NoError(t, err)
		require.Equal(t, n, uint64(got))
	}

	hdr, err := appendFrameHeader(nil, 0x01020304)
	require.NoError(t, err)
	require.Equal(t, []byte("upt0\x01\x02\x03\x04"), hdr)

	_, err = appendFrameHeader(nil, 0)
	require.True(t, xerrors.Is(err, errEmptyFrame), "empty frame: %v", err)
	_, err = appendFrameHeader(nil, math.MaxUint32+1)
	require.True(t, xerrors.Is(err, errFrameTooLarge), "large frame: %v", err)

	_, err = parseFrameHeader([]byte("upt0\x00"))
	require.True(t, xerrors.Is(err, io.ErrUnexpectedEOF), "short header: %v", err)
	_, err = parseFrameHeader([]byte("abcd\x00\x00\x00\x01"))
	require.True(t, xerrors.Is(err, errUnknownMagic), "bad magic: %v", err)
}

func TestReader(t *testing.T) {
	t.Parallel()

	t.Run("Frames", func(t *testing.T) {
		t.Parallel()

		var in []byte
		in = append(in, frame(t, "first")...)
		in = append(in, frame(t, "second")...)

		r := NewReader(iotest.OneByteReader(bytes.NewReader(in)))
		b, err := r.Next()
		require.NoError(t, err)
		require.Equal(t, "first", string(b))
		b, err = r.Next()
		require.NoError(t, err)
		require.Equal(t, "second", string(b))
		_, err = r.Next()
		require.Equal(t, io.EOF, err)
	})

	t.Run("Empty", func(t *testing.T) {
		t.Parallel()

		_, err := NewReader(bytes.NewReader(nil)).Next()
		require.Equal(t, io.EOF, err)
	})

	t.Run("SkipsGarbage", func(t *testing.T) {
		t.Parallel()

		var in []byte
		in = append(in, "xxupt"...)
		in = append(in, frame(t, "payload")...)
		in = append(in, "upupt0"[:3]...)

		r := NewReader(bytes.NewReader(in))
		b, err := r.Next()
		require.NoError(t, err)
		require.Equal(t, "payload", string(b))
		_, err = r.Next()
		require.Equal(t, io.EOF, err)
	})

	t.Run("TruncatedLength", func(t *testing.T) {
		t.Parallel()

		_, err := NewReader(bytes.NewReader([]byte("upt0\x00\x00"))).Next()
		require.True(t, xerrors.Is(err, io.ErrUnexpectedEOF), "truncated length: %v", err)
	})

	t.Run("TruncatedPayload", func(t *testing.T) {
		t.Parallel()

		in := frame(t, "complete payload")
		_, err := NewReader(bytes.NewReader(in[:len(in)-3])).Next()
		require.True(t, xerrors.Is(err, io.ErrUnexpectedEOF), "truncated payload: %v", err)
	})

	t.Run("ReadError", func(t *testing.T) {
		t.Parallel()

		_, err := NewReader(iotest.ErrReader(errInjected)).Next()
		require.True(t, xerrors.Is(err, errInjected), "read error: %v", err)
	})

	t.Run("Events", func(t *testing.T) {
		t.Parallel()

		payload, err := encodeEvent(&eventRecord{
			timestamp: Timestamp{Sec: 3},
			end:       &endRecord{pid: 4},
		}, newArena())
		require.NoError(t, err)

		r := NewReader(bytes.NewReader(frame(t, string(payload))))
		ev, err := r.NextEvent()
		require.NoError(t, err)
		require.Equal(t, uint32(4), ev.ProcessEnd.PID)
		_, err = r.NextEvent()
		require.Equal(t, io.EOF, err)
	})
}
