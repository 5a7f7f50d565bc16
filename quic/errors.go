package quic

import (
	"errors"
	"fmt"
)

// ErrorCode is an HTTP/3 application error code, sent in a QUIC
// CONNECTION_CLOSE or STOP_SENDING frame.
type ErrorCode uint64

const (
	ErrorCodeNoError              ErrorCode = 0x100
	ErrorCodeGeneralProtocolError ErrorCode = 0x101
	ErrorCodeInternalError        ErrorCode = 0x102
	ErrorCodeStreamCreationError  ErrorCode = 0x103
	ErrorCodeClosedCriticalStream ErrorCode = 0x104
	ErrorCodeFrameUnexpected      ErrorCode = 0x105
	ErrorCodeFrameError           ErrorCode = 0x106
	ErrorCodeExcessiveLoad        ErrorCode = 0x107
	ErrorCodeIDError              ErrorCode = 0x108
	ErrorCodeSettingsError        ErrorCode = 0x109
	ErrorCodeMissingSettings      ErrorCode = 0x10a

	// ErrorCodeUnknownStreamType is not part of RFC 9114's registry; it
	// mirrors the reason the original implementation gives quicly's
	// request_stop when it sees an unrecognised unidirectional stream
	// type byte.
	ErrorCodeUnknownStreamType ErrorCode = 0x10f
)

func (c ErrorCode) String() string {
	switch c {
	case ErrorCodeNoError:
		return "H3_NO_ERROR"
	case ErrorCodeGeneralProtocolError:
		return "H3_GENERAL_PROTOCOL_ERROR"
	case ErrorCodeInternalError:
		return "H3_INTERNAL_ERROR"
	case ErrorCodeStreamCreationError:
		return "H3_STREAM_CREATION_ERROR"
	case ErrorCodeClosedCriticalStream:
		return "H3_CLOSED_CRITICAL_STREAM"
	case ErrorCodeFrameUnexpected:
		return "H3_FRAME_UNEXPECTED"
	case ErrorCodeFrameError:
		return "H3_FRAME_ERROR"
	case ErrorCodeExcessiveLoad:
		return "H3_EXCESSIVE_LOAD"
	case ErrorCodeIDError:
		return "H3_ID_ERROR"
	case ErrorCodeSettingsError:
		return "H3_SETTINGS_ERROR"
	case ErrorCodeMissingSettings:
		return "H3_MISSING_SETTINGS"
	case ErrorCodeUnknownStreamType:
		return "H3_UNKNOWN_STREAM_TYPE"
	default:
		return fmt.Sprintf("unknown H3 error code %#x", uint64(c))
	}
}

// ErrIncomplete signals that a frame could not be fully parsed from the
// bytes on hand; it is never surfaced to a peer, only used internally to
// tell a caller to wait for more bytes.
var ErrIncomplete = errors.New("http3: incomplete frame")

// ErrBufferGrowFailed is returned by RecvBuf.Update when the underlying
// allocator cannot satisfy a grow request.
var ErrBufferGrowFailed = errors.New("http3: failed to grow receive buffer")

// MalformedFrameError reports a frame that violates the wire format or an
// ordering invariant (e.g. a second SETTINGS frame, or DATA on the
// control stream). Code is always ErrorCodeFrameError; Type identifies
// the offending frame type for diagnostics.
type MalformedFrameError struct {
	Type uint64
}

func (e *MalformedFrameError) Error() string {
	return fmt.Sprintf("http3: malformed frame (type %#x)", e.Type)
}

func (e *MalformedFrameError) Code() ErrorCode { return ErrorCodeFrameError }

// ClosedCriticalStreamError reports that a unidirectional control stream
// (control, QPACK encoder, or QPACK decoder) ended or was reset, which is
// always a fatal connection error for that stream class.
type ClosedCriticalStreamError struct{}

func (e *ClosedCriticalStreamError) Error() string {
	return "http3: closed critical stream"
}

func (e *ClosedCriticalStreamError) Code() ErrorCode { return ErrorCodeClosedCriticalStream }

// UnknownStreamTypeError is not a connection error: it is the reason
// attached to the STOP_SENDING request issued against an ingress
// unistream whose first byte did not match a recognised stream type.
type UnknownStreamTypeError struct {
	TypeByte byte
}

func (e *UnknownStreamTypeError) Error() string {
	return fmt.Sprintf("http3: unknown unidirectional stream type %#x", e.TypeByte)
}

func (e *UnknownStreamTypeError) Code() ErrorCode { return ErrorCodeUnknownStreamType }
