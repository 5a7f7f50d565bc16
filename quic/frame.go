package quic

import (
	"github.com/quic-go/quic-go/quicvarint"
)

// Frame is a single HTTP/3 frame parsed from a contiguous byte prefix:
// a varint length, a one-byte type, and a payload. DATA frames leave
// Payload nil and HeaderSize covering only the varint-length + type
// prefix, since DATA bodies are streamed rather than buffered whole.
type Frame struct {
	Type       uint64
	Length     uint64
	Payload    []byte
	HeaderSize uint8
}

// ReadFrame parses one frame from src, starting at offset 0. On success
// it returns the frame and the number of bytes consumed (header plus, for
// non-DATA frames, the payload). On ErrIncomplete the caller must wait for
// more bytes and retry from the same offset; no bytes should be treated as
// consumed. On a *MalformedFrameError the connection must be closed.
func ReadFrame(src []byte) (Frame, int, error) {
	length, n, err := readVarint(src)
	if err != nil {
		return Frame{}, 0, ErrIncomplete
	}
	rest := src[n:]
	if len(rest) == 0 {
		return Frame{}, 0, ErrIncomplete
	}
	typ := uint64(rest[0])
	headerSize := n + 1

	if typ != FrameTypeData {
		if length >= MaxFrameSize {
			return Frame{}, 0, &MalformedFrameError{Type: typ}
		}
		payloadAvailable := rest[1:]
		if uint64(len(payloadAvailable)) < length {
			return Frame{}, 0, ErrIncomplete
		}
		frame := Frame{
			Type:       typ,
			Length:     length,
			Payload:    payloadAvailable[:length],
			HeaderSize: uint8(headerSize),
		}
		return frame, headerSize + int(length), nil
	}

	// DATA: don't require the payload to be present; advance only past
	// the header and let the caller stream the body separately.
	return Frame{
		Type:       typ,
		Length:     length,
		HeaderSize: uint8(headerSize),
	}, headerSize, nil
}

// readVarint decodes a single QUIC variable-length integer from the front
// of src using quicvarint's wire format, returning the value and the
// number of bytes consumed. It reports incompleteness rather than
// wrapping quicvarint.Read's io.Reader-oriented error, since callers here
// operate on byte slices they may not have read in full yet.
func readVarint(src []byte) (uint64, int, error) {
	if len(src) == 0 {
		return 0, 0, ErrIncomplete
	}
	l := varintLen(src[0])
	if len(src) < l {
		return 0, 0, ErrIncomplete
	}
	v, err := quicvarint.Read(&byteReader{b: src[:l]})
	if err != nil {
		return 0, 0, ErrIncomplete
	}
	return v, l, nil
}

// varintLen returns the total encoded length of a QUIC varint given its
// first byte, per the two-high-bits length tag.
func varintLen(firstByte byte) int {
	switch firstByte >> 6 {
	case 0:
		return 1
	case 1:
		return 2
	case 2:
		return 4
	default:
		return 8
	}
}

// byteReader adapts a fixed byte slice to io.ByteReader for quicvarint.Read.
type byteReader struct {
	b []byte
}

func (r *byteReader) ReadByte() (byte, error) {
	if len(r.b) == 0 {
		return 0, ErrIncomplete
	}
	b := r.b[0]
	r.b = r.b[1:]
	return b, nil
}
