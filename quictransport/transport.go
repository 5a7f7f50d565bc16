// Package quictransport declares the QUIC engine contract this module
// consumes as an opaque external collaborator. Production code wires a
// concrete adapter over a real QUIC stack; this package ships only the
// interfaces plus, in quictransporttest, a scripted fake for unit tests.
package quictransport

import (
	"errors"
	"net"
	"time"
)

// ErrFreeConnection is the sentinel Conn.Send returns once the QUIC engine
// has fully drained a closing connection and it is safe to free.
var ErrFreeConnection = errors.New("quictransport: connection drained, free it")

// ErrUndecodable is returned by Engine.DecodePacket when the remainder of a
// datagram cannot be parsed as a further coalesced QUIC packet.
var ErrUndecodable = errors.New("quictransport: undecodable packet remainder")

// StreamID identifies a QUIC stream within a connection.
type StreamID int64

// DecodedPacket carries the header fields this layer needs out of an
// otherwise-opaque decoded QUIC packet: enough to drive connection lookup.
type DecodedPacket struct {
	// DestCID is the destination connection ID as it appeared on the wire,
	// still encrypted if MightBeClientGenerated is true.
	DestCID []byte

	// MightBeClientGenerated is true for Initial/0-RTT packets, whose
	// destination CID was chosen by the client and is not yet one of this
	// process's own plaintext-decryptable CIDs.
	MightBeClientGenerated bool

	// NodeID/ThreadID/MasterID are populated once the engine has decrypted
	// a server-chosen CID into its plaintext fields.
	NodeID   uint32
	ThreadID uint32
	MasterID uint64
}

// Packet is a QUIC-engine-produced datagram payload ready for sendmsg.
type Packet struct {
	Bytes []byte
	Addr  net.Addr
}

// StreamOpenEvent reports a new unidirectional or bidirectional stream,
// dispatched by the engine to a Conn's registered handler.
type StreamOpenEvent struct {
	ID             StreamID
	Unidirectional bool
	SelfInitiated  bool
}

// IngressCallbacks is the per-stream callback set the engine drives for a
// peer-initiated (ingress) stream.
type IngressCallbacks interface {
	OnReceive(offset int, data []byte, finished bool) error
	OnReceiveReset() error
	OnDestroy()
}

// EgressCallbacks is the per-stream callback set the engine drives for a
// locally-opened (egress) stream.
type EgressCallbacks interface {
	OnSendEmit(offset int, dst []byte) (n int, wroteAll bool)
	OnSendShift(delta int)
	OnSendStop() error
	OnDestroy()
}

// Engine decodes raw datagram bytes into packets. It has no per-connection
// state; Conn instances are produced by whatever dispatch glue (acceptor,
// explicit dial) a production binary supplies.
type Engine interface {
	// DecodePacket parses one QUIC packet from the front of datagram and
	// returns it along with the number of bytes consumed. It returns
	// ErrUndecodable when no further packet can be parsed from what
	// remains, which callers must treat as "stop, not an error".
	DecodePacket(datagram []byte) (DecodedPacket, int, error)
}

// Conn is a single QUIC connection handle, server- or client-side.
type Conn interface {
	IsDestination(sa net.Addr, pkt DecodedPacket) bool
	IsClient() bool
	GetPeerName() net.Addr
	GetOfferedCID() []byte
	GetMasterID() uint64
	GetFirstTimeout() time.Time

	// Receive hands one already-located decoded packet to the engine.
	Receive(sa net.Addr, pkt DecodedPacket, raw []byte) error

	// Send asks the engine for up to the caller's batch of pending
	// packets. An empty, nil-error result means the send queue is
	// drained for now. ErrFreeConnection means the connection has
	// finished closing and must be freed; any other error is an
	// unrecoverable transport bug.
	Send(maxPackets int) ([]Packet, error)

	// OpenStream requests a new stream from the engine; for uni=true
	// this is one of the three control unistreams this module manages.
	OpenStream(uni bool) (StreamID, error)

	// RequestStop asks the engine to send STOP_SENDING on id with the
	// given application error code.
	RequestStop(id StreamID, code uint64) error

	// SyncRecvBuf acknowledges that consumed bytes of stream id have
	// been handed off to a parser, releasing the engine's matching flow
	// control budget.
	SyncRecvBuf(id StreamID, consumed int) error

	SetIngressCallbacks(id StreamID, cb IngressCallbacks)
	SetEgressCallbacks(id StreamID, cb EgressCallbacks)
	MarkSendbufDirty(id StreamID)
	SetStreamOpenHandler(func(StreamOpenEvent))

	SetUserData(v interface{})
	GetUserData() interface{}

	Close() error
}
