package connection

import (
	hq "github.com/quicstack/h3core/quic"
	"github.com/quicstack/h3core/quictransport"
)

// IngressState enumerates the tagged states an ingress unistream's input
// handler can be in, replacing a function-pointer-per-state design with an
// explicit, enumerable variant.
type IngressState int

const (
	StateUnknownType IngressState = iota
	StateDiscard
	StateControl
	StateQPACKEncoderFeed
	StateQPACKDecoderFeed
)

func (s IngressState) String() string {
	switch s {
	case StateUnknownType:
		return "unknown-type"
	case StateDiscard:
		return "discard"
	case StateControl:
		return "control"
	case StateQPACKEncoderFeed:
		return "qpack-encoder-feed"
	case StateQPACKDecoderFeed:
		return "qpack-decoder-feed"
	default:
		return "invalid"
	}
}

// IngressStream is one peer-initiated unidirectional stream: control,
// QPACK encoder, QPACK decoder, or an unrecognised type being discarded.
type IngressStream struct {
	conn    *Connection
	id      quictransport.StreamID
	recvbuf hq.RecvBuf
	state   IngressState
}

func newIngressStream(conn *Connection, id quictransport.StreamID) *IngressStream {
	return &IngressStream{conn: conn, id: id, state: StateUnknownType}
}

// OnReceive places newly-arrived bytes at their absolute offset, rejects a
// premature end of stream, and hands the contiguous available prefix to
// the current state's handler, consuming exactly what it advanced over.
func (s *IngressStream) OnReceive(offset int, data []byte, finished bool) error {
	if err := s.recvbuf.Update(offset, data); err != nil {
		return err
	}
	if finished {
		return &hq.ClosedCriticalStreamError{}
	}

	consumed, err := s.handleInput(s.recvbuf.Bytes())
	if consumed > 0 {
		s.recvbuf.Consume(consumed)
		if syncErr := s.conn.transport.SyncRecvBuf(s.id, consumed); syncErr != nil {
			return syncErr
		}
	}
	return err
}

// OnReceiveReset implements the invariant that no control unistream may
// ever be reset by the peer.
func (s *IngressStream) OnReceiveReset() error {
	return &hq.ClosedCriticalStreamError{}
}

// OnDestroy releases the stream's slot in the connection's control-stream
// table, if it was ever installed there.
func (s *IngressStream) OnDestroy() {
	s.conn.forgetIngressStream(s)
}

func (s *IngressStream) handleInput(data []byte) (int, error) {
	switch s.state {
	case StateUnknownType:
		return s.handleUnknownType(data)
	case StateDiscard:
		return len(data), nil
	case StateControl:
		return s.conn.handleControlFrame(data)
	case StateQPACKEncoderFeed:
		return s.conn.handleQPACKEncoderFeed(data)
	case StateQPACKDecoderFeed:
		return s.conn.handleQPACKDecoderFeed(data)
	default:
		return 0, nil
	}
}

// handleUnknownType is the initial handler for every peer-opened
// unistream: it reads exactly one type byte, installs the stream into the
// matching control-stream slot, and immediately re-enters with whatever
// bytes the peer packed into the same delivery.
func (s *IngressStream) handleUnknownType(data []byte) (int, error) {
	if len(data) == 0 {
		return 0, nil
	}

	typeByte := data[0]
	switch typeByte {
	case hq.StreamTypeControl:
		s.conn.ingress.control = s
		s.state = StateControl
	case hq.StreamTypeQPACKEncoder:
		s.conn.ingress.qpackEncoder = s
		s.state = StateQPACKEncoderFeed
	case hq.StreamTypeQPACKDecoder:
		s.conn.ingress.qpackDecoder = s
		s.state = StateQPACKDecoderFeed
	default:
		_ = s.conn.transport.RequestStop(s.id, uint64(hq.ErrorCodeUnknownStreamType))
		s.state = StateDiscard
	}

	restConsumed, err := s.handleInput(data[1:])
	return 1 + restConsumed, err
}

// EgressStream is one locally-opened unidirectional stream: a FIFO
// sendbuf the connection appends to, drained by the transport's send
// loop via OnSendEmit/OnSendShift.
type EgressStream struct {
	conn    *Connection
	id      quictransport.StreamID
	sendbuf []byte
}

func newEgressStream(conn *Connection, id quictransport.StreamID) *EgressStream {
	return &EgressStream{conn: conn, id: id}
}

// write appends to the sendbuf and tells the transport there is new data
// to emit.
func (s *EgressStream) write(data []byte) {
	s.sendbuf = append(s.sendbuf, data...)
	s.conn.transport.MarkSendbufDirty(s.id)
}

// OnSendEmit copies as much of the sendbuf past offset as fits in dst.
func (s *EgressStream) OnSendEmit(offset int, dst []byte) (int, bool) {
	if offset > len(s.sendbuf) {
		return 0, true
	}
	avail := s.sendbuf[offset:]
	n := copy(dst, avail)
	return n, n == len(avail)
}

// OnSendShift drops delta acknowledged bytes from the front of the
// sendbuf.
func (s *EgressStream) OnSendShift(delta int) {
	if delta <= 0 {
		return
	}
	if delta > len(s.sendbuf) {
		delta = len(s.sendbuf)
	}
	s.sendbuf = s.sendbuf[delta:]
}

// OnSendStop implements the invariant that resetting any control egress
// stream is always a fatal connection error.
func (s *EgressStream) OnSendStop() error {
	return &hq.ClosedCriticalStreamError{}
}

// OnDestroy releases the stream's slot in the connection's control-stream
// table, if it was ever installed there.
func (s *EgressStream) OnDestroy() {
	s.conn.forgetEgressStream(s)
}
