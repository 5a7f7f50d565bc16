package quic

import "time"

// ALPNToken is the application-layer protocol negotiation token this
// implementation of HTTP/3 advertises during the TLS handshake.
const ALPNToken = "h3-17"

// Unidirectional stream type bytes, the first byte a peer writes on a
// unidirectional stream to announce its role.
const (
	StreamTypeControl      byte = 0x43 // 'C'
	StreamTypeQPACKEncoder byte = 0x48 // 'H'
	StreamTypeQPACKDecoder byte = 0x68 // 'h'
)

// HTTP/3 frame types relevant to the control stream.
const (
	FrameTypeData       uint64 = 0x00
	FrameTypeSettings   uint64 = 0x04
	FrameTypeCancelPush uint64 = 0x03
	FrameTypeGoaway     uint64 = 0x07
	FrameTypeMaxPushID  uint64 = 0x0d
)

// MaxFrameSize bounds the length field of any non-DATA frame. DATA frames
// are exempt because they stream arbitrarily large bodies.
const MaxFrameSize = 16384

// SETTINGS identifiers.
const (
	SettingHeaderTableSize uint16 = 0x0001
)

// DefaultQPACKTableSize is the dynamic table size assumed before SETTINGS
// negotiation overrides it.
const DefaultQPACKTableSize = 4096

// DefaultQPACKMaxBlockedStreams bounds how many request streams may be
// blocked waiting on QPACK dynamic table updates at once.
const DefaultQPACKMaxBlockedStreams = 100

// Egress bootstrap bytes written to each control stream immediately after
// it is opened, before any HTTP-layer data.
var (
	ControlStreamPreamble      = []byte{StreamTypeControl, 0x00, 0x04}
	QPACKEncoderStreamPreamble = []byte{StreamTypeQPACKEncoder}
	QPACKDecoderStreamPreamble = []byte{StreamTypeQPACKDecoder}
)

// Datagram-pump batching constants: a 16 KiB staging buffer filled by up
// to 32 recvmsg calls, grouped into batches of up to 64 decoded packets,
// drained in sends of up to 16 QUIC-produced packets at a time.
const (
	MaxDatagramsPerRead  = 32
	DatagramStagingBytes = 16384
	MinRemainingBytes    = 2048
	MaxPacketsPerBatch   = 64
	MaxPacketsPerSend    = 16
)

// QUIC connection tunables retained from the teacher for the default
// quictransport.Engine wiring a production binary would supply.
const (
	HandshakeIdleTimeout = 5 * time.Second
	MaxIdleTimeout       = 5 * time.Second
	MaxIdlePingPeriod    = 1 * time.Second

	// MaxIncomingStreams is 2^60, the maximum value quic-go accepts.
	MaxIncomingStreams = 1 << 60
)

// DefaultSendWriteTimeout bounds how long one SafeDatagramWriter.WriteTo
// call may block the shared socket lock before giving up on a stalled send.
const DefaultSendWriteTimeout = 2 * time.Second
