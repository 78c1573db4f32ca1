package proctrace

import (
	"bufio"
	"encoding/binary"
	"io"
	"math"

	"golang.org/x/xerrors"
)

const (
	// FrameMagic starts every frame and identifies the event schema.
	FrameMagic = "upt0"
	// FrameHeaderSize is the size of the magic plus the length field.
	FrameHeaderSize = 8
	// MaxFrameLength is the largest payload a frame can describe.
	MaxFrameLength = math.MaxUint32
)

// appendFrameHeader appends the header of a frame carrying n payload bytes.
func appendFrameHeader(b []byte, n uint64) ([]byte, error) {
	if n == 0 {
		return b, errEmptyFrame
	}
	if n > MaxFrameLength {
		return b, errFrameTooLarge
	}
	b = append(b, FrameMagic...)
	return binary.BigEndian.AppendUint32(b, uint32(n)), nil
}

// parseFrameHeader returns the payload length described by a frame header.
func parseFrameHeader(hdr []byte) (uint32, error) {
	if len(hdr) < FrameHeaderSize {
		return 0, io.ErrUnexpectedEOF
	}
	if string(hdr[:len(FrameMagic)]) != FrameMagic {
		return 0, xerrors.Errorf("%q: %w", hdr[:len(FrameMagic)], errUnknownMagic)
	}
	return binary.BigEndian.Uint32(hdr[len(FrameMagic):FrameHeaderSize]), nil
}

// Reader reads frames from a trace file.
type Reader struct {
	r *bufio.Reader
}

// NewReader returns a Reader reading frames from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// Next returns the payload of the next frame. Bytes that do not start with
// the magic are skipped one at a time until a frame is found. At the end of
// the input io.EOF is returned; a frame cut short returns
// io.ErrUnexpectedEOF.
func (r *Reader) Next() ([]byte, error) {
	var hdr [FrameHeaderSize]byte
	magic := hdr[:len(FrameMagic)]

	_, err := io.ReadFull(r.r, magic)
	if err != nil {
		// Trailing bytes too short to hold a magic are not a frame.
		if xerrors.Is(err, io.EOF) || xerrors.Is(err, io.ErrUnexpectedEOF) {
			return nil, io.EOF
		}
		return nil, xerrors.Errorf("read frame magic: %w", err)
	}
	for string(magic) != FrameMagic {
		c, err := r.r.ReadByte()
		if err != nil {
			return nil, err
		}
		copy(magic, magic[1:])
		magic[len(magic)-1] = c
	}

	_, err = io.ReadFull(r.r, hdr[len(FrameMagic):])
	if err != nil {
		return nil, xerrors.Errorf("read frame length: %w", unexpectedEOF(err))
	}
	size, err := parseFrameHeader(hdr[:])
	if err != nil {
		return nil, err
	}

	// Read incrementally so a corrupt length can't force a huge allocation.
	payload, err := io.ReadAll(io.LimitReader(r.r, int64(size)))
	if err != nil {
		return nil, xerrors.Errorf("read %d byte frame payload: %w", size, err)
	}
	if uint64(len(payload)) != uint64(size) {
		return nil, xerrors.Errorf("read %d byte frame payload: got %d bytes: %w", size, len(payload), io.ErrUnexpectedEOF)
	}
	return payload, nil
}

// NextEvent reads and decodes the next frame.
func (r *Reader) NextEvent() (*Event, error) {
	payload, err := r.Next()
	if err != nil {
		return nil, err
	}
	return DecodeEvent(payload)
}

func unexpectedEOF(err error) error {
	if xerrors.Is(err, io.EOF) {
		return io.ErrUnexpectedEOF
	}
	return err
}
