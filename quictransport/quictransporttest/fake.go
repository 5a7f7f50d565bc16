// Package quictransporttest provides a scripted, in-memory implementation
// of quictransport.Conn and quictransport.Engine for exercising the
// connection package without a real QUIC stack, in the spirit of
// cloudflared's hand-rolled mocks packages.
package quictransporttest

import (
	"net"
	"time"

	"github.com/quicstack/h3core/quictransport"
)

// Engine is a trivial quictransport.Engine that treats an entire datagram
// as one undecodable-free packet: tests that need real coalescing behavior
// construct DecodedPacket values directly instead.
type Engine struct {
	// NextDestCID is returned verbatim as DecodedPacket.DestCID for every
	// call; tests mutate it between calls to script CID changes.
	NextDestCID []byte
	// MightBeClientGenerated scripts the returned packet's flag.
	MightBeClientGenerated bool
}

func (e *Engine) DecodePacket(datagram []byte) (quictransport.DecodedPacket, int, error) {
	if len(datagram) == 0 {
		return quictransport.DecodedPacket{}, 0, quictransport.ErrUndecodable
	}
	return quictransport.DecodedPacket{
		DestCID:                e.NextDestCID,
		MightBeClientGenerated: e.MightBeClientGenerated,
	}, len(datagram), nil
}

// streamState tracks callbacks and dirty-bit for one stream id.
type streamState struct {
	ingress quictransport.IngressCallbacks
	egress  quictransport.EgressCallbacks
	dirty   bool
}

// Conn is a scripted quictransport.Conn. Tests drive it by calling
// OpenPeerStream/DeliverIngress/DeliverIngressReset directly and
// inspecting ReceivedPackets, StopRequests, EgressBytes and Closed, which
// read the stream callback objects stashed via
// SetIngressCallbacks/SetEgressCallbacks.
type Conn struct {
	Peer         net.Addr
	OfferedCID   []byte
	MasterIDVal  uint64
	ClientSide   bool
	FirstTimeout time.Time

	// PendingSend is drained (up to maxPackets at a time) by Send.
	PendingSend []quictransport.Packet
	// SendErr, if set, is returned by the next Send call instead of
	// draining PendingSend.
	SendErr error

	// ReceivedPackets records every packet handed to Receive, for
	// assertions.
	ReceivedPackets []quictransport.DecodedPacket

	streams      map[quictransport.StreamID]*streamState
	nextStreamID quictransport.StreamID
	streamOpenFn func(quictransport.StreamOpenEvent)
	userData     interface{}
	stopRequests []stopRequest
	recvbufSyncs []recvbufSync
	closed       bool
}

type stopRequest struct {
	ID   quictransport.StreamID
	Code uint64
}

type recvbufSync struct {
	ID       quictransport.StreamID
	Consumed int
}

// NewConn constructs a scripted Conn ready for use.
func NewConn() *Conn {
	return &Conn{
		streams: make(map[quictransport.StreamID]*streamState),
		Peer:    &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0},
	}
}

func (c *Conn) IsDestination(sa net.Addr, pkt quictransport.DecodedPacket) bool {
	return true
}

func (c *Conn) IsClient() bool             { return c.ClientSide }
func (c *Conn) GetPeerName() net.Addr      { return c.Peer }
func (c *Conn) GetOfferedCID() []byte      { return c.OfferedCID }
func (c *Conn) GetMasterID() uint64        { return c.MasterIDVal }
func (c *Conn) GetFirstTimeout() time.Time { return c.FirstTimeout }

func (c *Conn) Receive(sa net.Addr, pkt quictransport.DecodedPacket, raw []byte) error {
	c.ReceivedPackets = append(c.ReceivedPackets, pkt)
	return nil
}

func (c *Conn) Send(maxPackets int) ([]quictransport.Packet, error) {
	if c.SendErr != nil {
		err := c.SendErr
		c.SendErr = nil
		return nil, err
	}
	if len(c.PendingSend) == 0 {
		return nil, nil
	}
	n := maxPackets
	if n > len(c.PendingSend) {
		n = len(c.PendingSend)
	}
	out := c.PendingSend[:n]
	c.PendingSend = c.PendingSend[n:]
	return out, nil
}

func (c *Conn) OpenStream(uni bool) (quictransport.StreamID, error) {
	c.nextStreamID++
	id := c.nextStreamID
	c.streams[id] = &streamState{}
	if c.streamOpenFn != nil {
		c.streamOpenFn(quictransport.StreamOpenEvent{ID: id, Unidirectional: uni, SelfInitiated: true})
	}
	return id, nil
}

// OpenPeerStream scripts a peer-initiated stream open, the mirror of
// OpenStream for tests that need to feed ingress bytes.
func (c *Conn) OpenPeerStream(uni bool) quictransport.StreamID {
	c.nextStreamID++
	id := c.nextStreamID
	c.streams[id] = &streamState{}
	if c.streamOpenFn != nil {
		c.streamOpenFn(quictransport.StreamOpenEvent{ID: id, Unidirectional: uni, SelfInitiated: false})
	}
	return id
}

// DeliverIngress feeds bytes to a previously opened ingress stream's
// registered callbacks, mirroring what the real engine would do after
// decrypting stream data.
func (c *Conn) DeliverIngress(id quictransport.StreamID, offset int, data []byte, finished bool) error {
	st := c.streams[id]
	if st == nil || st.ingress == nil {
		return nil
	}
	return st.ingress.OnReceive(offset, data, finished)
}

// DeliverIngressReset mirrors a RESET_STREAM arriving on an ingress stream.
func (c *Conn) DeliverIngressReset(id quictransport.StreamID) error {
	st := c.streams[id]
	if st == nil || st.ingress == nil {
		return nil
	}
	return st.ingress.OnReceiveReset()
}

// EgressBytes drains an egress stream's sendbuf through its OnSendEmit
// callback into a fresh slice, for asserting bootstrap bytes in tests.
func (c *Conn) EgressBytes(id quictransport.StreamID, max int) []byte {
	st := c.streams[id]
	if st == nil || st.egress == nil {
		return nil
	}
	buf := make([]byte, max)
	n, _ := st.egress.OnSendEmit(0, buf)
	return buf[:n]
}

func (c *Conn) RequestStop(id quictransport.StreamID, code uint64) error {
	c.stopRequests = append(c.stopRequests, stopRequest{ID: id, Code: code})
	return nil
}

// StopRequests exposes scripted STOP_SENDING calls for assertions.
func (c *Conn) StopRequests() []struct {
	ID   quictransport.StreamID
	Code uint64
} {
	out := make([]struct {
		ID   quictransport.StreamID
		Code uint64
	}, len(c.stopRequests))
	for i, r := range c.stopRequests {
		out[i] = struct {
			ID   quictransport.StreamID
			Code uint64
		}{r.ID, r.Code}
	}
	return out
}

func (c *Conn) SyncRecvBuf(id quictransport.StreamID, consumed int) error {
	c.recvbufSyncs = append(c.recvbufSyncs, recvbufSync{ID: id, Consumed: consumed})
	return nil
}

func (c *Conn) SetIngressCallbacks(id quictransport.StreamID, cb quictransport.IngressCallbacks) {
	st := c.streams[id]
	if st == nil {
		st = &streamState{}
		c.streams[id] = st
	}
	st.ingress = cb
}

func (c *Conn) SetEgressCallbacks(id quictransport.StreamID, cb quictransport.EgressCallbacks) {
	st := c.streams[id]
	if st == nil {
		st = &streamState{}
		c.streams[id] = st
	}
	st.egress = cb
}

func (c *Conn) MarkSendbufDirty(id quictransport.StreamID) {
	if st := c.streams[id]; st != nil {
		st.dirty = true
	}
}

func (c *Conn) SetStreamOpenHandler(fn func(quictransport.StreamOpenEvent)) {
	c.streamOpenFn = fn
}

func (c *Conn) SetUserData(v interface{}) { c.userData = v }
func (c *Conn) GetUserData() interface{}  { return c.userData }

func (c *Conn) Close() error {
	c.closed = true
	return nil
}

// Closed reports whether Close has been called, for teardown assertions.
func (c *Conn) Closed() bool { return c.closed }
