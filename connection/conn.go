package connection

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/quicstack/h3core/qpack"
	hq "github.com/quicstack/h3core/quic"
	"github.com/quicstack/h3core/quictransport"
)

// ingressSlots and egressSlots hold the three ingress and three egress
// control-stream slots a Connection wires at setup, mirroring h2o's
// _control_streams.{ingress,egress}.
type ingressSlots struct {
	control      *IngressStream
	qpackEncoder *IngressStream
	qpackDecoder *IngressStream
}

type egressSlots struct {
	control      *EgressStream
	qpackEncoder *EgressStream
	qpackDecoder *EgressStream
}

type qpackPair struct {
	decoder qpack.Decoder
	encoder qpack.Encoder
}

// Connection is the HTTP/3 common core's view of one QUIC connection: the
// transport handle, the QPACK coder pair, the six control-stream slots,
// and the single retransmit/idle timer.
//
// Connection.mu serializes access between Context's read-loop goroutine
// and the timer callback goroutine time.AfterFunc spawns; this is the one
// deliberate concurrency deviation a single-threaded C library does not
// need and a Go timer API forces.
type Connection struct {
	mu sync.Mutex

	ctx       *Context
	transport quictransport.Conn
	log       *zerolog.Logger

	qpack qpackPair

	ingress ingressSlots
	egress  egressSlots

	receivedSettings bool
	acceptingKey     uint64
	hasAcceptingKey  bool

	timer        *time.Timer
	armedTimeout time.Time
	socket       net.PacketConn

	safeWriter     *hq.SafeDatagramWriter
	safeWriterConn net.PacketConn

	// OnControlFrame is invoked for every control-stream frame other
	// than SETTINGS (MAX_PUSH_ID, GOAWAY, CANCEL_PUSH, ...). A non-nil
	// error closes the connection with the returned error's code.
	OnControlFrame func(frameType uint64, payload []byte) error

	// OnQPACKStreamsUnblocked is invoked with request-stream IDs the
	// QPACK decoder reports as newly unblocked. Resumption semantics are
	// left to the HTTP layer.
	OnQPACKStreamsUnblocked func(streamIDs []int64)

	// OnDestroy is invoked once, from Dispose, after the connection has
	// been unregistered from both of the Context's maps.
	OnDestroy func()
}

// Config carries the tunables NewConnection needs beyond what the
// transport handle itself reports.
type Config struct {
	QPACKTableSize         uint32
	QPACKMaxBlockedStreams int
}

// DefaultConfig returns the tunables spec.md §4.7 specifies: a 4096-byte
// default QPACK table and up to 100 blocked streams.
func DefaultConfig() Config {
	return Config{
		QPACKTableSize:         hq.DefaultQPACKTableSize,
		QPACKMaxBlockedStreams: hq.DefaultQPACKMaxBlockedStreams,
	}
}

// NewConnection performs the C8 connection-setup sequence: attaches
// itself to the transport's user-data slot, creates the QPACK decoder
// immediately, registers in the context's maps, opens the three egress
// control streams with their bootstrap bytes, and arms the timer.
func NewConnection(ctx *Context, transport quictransport.Conn, cfg Config, log *zerolog.Logger) (*Connection, error) {
	c := &Connection{
		ctx:       ctx,
		transport: transport,
		log:       log,
		qpack: qpackPair{
			decoder: qpack.NewDecoder(qpack.Config{
				MaxTableCapacity:  cfg.QPACKTableSize,
				MaxBlockedStreams: cfg.QPACKMaxBlockedStreams,
			}),
		},
	}

	transport.SetUserData(c)
	transport.SetStreamOpenHandler(c.onStreamOpen)

	ctx.registerByID(transport.GetMasterID(), c)
	if !transport.IsClient() {
		c.acceptingKey = hq.AcceptHash(transport.GetPeerName(), transport.GetOfferedCID())
		c.hasAcceptingKey = true
		ctx.registerAccepting(c.acceptingKey, c)
	}

	if err := c.openEgressBootstrap(); err != nil {
		return nil, errors.Wrap(err, "opening control unistreams")
	}
	ctx.metrics.startedConnection()

	c.scheduleTimer()
	return c, nil
}

func (c *Connection) openEgressBootstrap() error {
	if err := c.openEgressStream(&c.egress.control, hq.ControlStreamPreamble); err != nil {
		return err
	}
	if err := c.openEgressStream(&c.egress.qpackEncoder, hq.QPACKEncoderStreamPreamble); err != nil {
		return err
	}
	if err := c.openEgressStream(&c.egress.qpackDecoder, hq.QPACKDecoderStreamPreamble); err != nil {
		return err
	}
	return nil
}

func (c *Connection) openEgressStream(slot **EgressStream, preamble []byte) error {
	id, err := c.transport.OpenStream(true)
	if err != nil {
		return err
	}
	stream := newEgressStream(c, id)
	*slot = stream
	c.transport.SetEgressCallbacks(id, stream)
	stream.write(preamble)
	c.ctx.metrics.openedStream("egress")
	return nil
}

// onStreamOpen is the stream_open dispatch: self-initiated opens already
// installed their record via openEgressStream, so only peer-initiated
// unidirectional opens need a fresh ingress record here.
func (c *Connection) onStreamOpen(event quictransport.StreamOpenEvent) {
	if event.SelfInitiated || !event.Unidirectional {
		return
	}
	stream := newIngressStream(c, event.ID)
	c.transport.SetIngressCallbacks(event.ID, stream)
	c.ctx.metrics.openedStream("ingress")
}

// onSettingsReceived instantiates the QPACK encoder with the peer's
// negotiated table size. It is called exactly once, guarded by
// handleControlFrame's SETTINGS-once enforcement.
func (c *Connection) onSettingsReceived(settings hq.Settings) error {
	c.qpack.encoder = qpack.NewEncoder(qpack.Config{
		MaxTableCapacity:  settings.HeaderTableSize,
		MaxBlockedStreams: hq.DefaultQPACKMaxBlockedStreams,
	})
	return nil
}

// SendQPACKStreamCancel appends a QPACK decoder-stream-cancellation
// instruction for streamID onto the QPACK-decoder egress stream,
// restoring h2o_http3_send_qpack_stream_cancel: the HTTP layer's way of
// telling the peer's encoder it may release state for a canceled stream.
func (c *Connection) SendQPACKStreamCancel(streamID int64) {
	instruction := encodeQPACKStreamCancel(streamID)
	c.egress.qpackDecoder.write(instruction)
}

// SendQPACKHeaderAck appends a pre-encoded QPACK header-block-acknowledged
// instruction onto the QPACK-decoder egress stream, restoring
// h2o_http3_send_qpack_header_ack.
func (c *Connection) SendQPACKHeaderAck(encodedInstruction []byte) {
	c.egress.qpackDecoder.write(encodedInstruction)
}

// encodeQPACKStreamCancel encodes a QPACK Stream Cancellation instruction:
// the high two bits 01 tag the instruction, the rest a varint-prefixed
// stream id, per RFC 9204 §4.4.1.
func encodeQPACKStreamCancel(streamID int64) []byte {
	if streamID < 0 {
		streamID = 0
	}
	return appendQPACKPrefixedInt(nil, 0x40, 6, uint64(streamID))
}

// appendQPACKPrefixedInt appends a QPACK/QPACK-decoder-stream prefixed
// integer: the top (8-prefixBits) bits of tag mark the instruction, the
// low prefixBits bits carry the integer's first chunk per RFC 9204's
// generic prefixed-integer encoding (shared with HPACK's RFC 7541 §5.1).
func appendQPACKPrefixedInt(dst []byte, tag byte, prefixBits uint, value uint64) []byte {
	max := uint64(1)<<prefixBits - 1
	if value < max {
		return append(dst, tag|byte(value))
	}
	dst = append(dst, tag|byte(max))
	value -= max
	for value >= 0x80 {
		dst = append(dst, byte(value&0x7f)|0x80)
		value >>= 7
	}
	return append(dst, byte(value))
}

// DropAcceptingRegistration removes the connection from the context's
// accept-hash map without disposing it. Nothing calls this automatically:
// the original library never removed entries until connection
// destruction; the correct trigger (Initial/0-RTT key discard) is a
// transport-level event outside this subsystem's boundary, so it is
// exposed as a hook for the caller that does observe that event.
func (c *Connection) DropAcceptingRegistration() {
	if !c.hasAcceptingKey {
		return
	}
	c.ctx.unregisterAccepting(c.acceptingKey)
	c.hasAcceptingKey = false
}

// Dispose tears the connection down: frees the QPACK pair, unregisters
// from both context maps, stops the timer, and closes the transport
// handle.
func (c *Connection) Dispose() error {
	c.mu.Lock()
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.mu.Unlock()

	c.DropAcceptingRegistration()
	c.ctx.unregisterByID(c.transport.GetMasterID())

	c.qpack = qpackPair{}

	err := c.transport.Close()
	if err != nil {
		c.ctx.metrics.closedConnection("transport_close_error")
	} else {
		c.ctx.metrics.closedConnection("disposed")
	}
	if c.OnDestroy != nil {
		c.OnDestroy()
	}
	return err
}

func (c *Connection) forgetIngressStream(s *IngressStream) {
	switch {
	case c.ingress.control == s:
		c.ingress.control = nil
	case c.ingress.qpackEncoder == s:
		c.ingress.qpackEncoder = nil
	case c.ingress.qpackDecoder == s:
		c.ingress.qpackDecoder = nil
	}
}

func (c *Connection) forgetEgressStream(s *EgressStream) {
	switch {
	case c.egress.control == s:
		c.egress.control = nil
	case c.egress.qpackEncoder == s:
		c.egress.qpackEncoder = nil
	case c.egress.qpackDecoder == s:
		c.egress.qpackDecoder = nil
	}
}

// abortOnSendError implements the Taxonomy-#5 policy: an unexpected QUIC
// send error is treated as a broken local invariant, not a recoverable
// condition.
func abortOnSendError(err error) {
	panic(fmt.Errorf("http3: unrecoverable transport send error: %w", err))
}
