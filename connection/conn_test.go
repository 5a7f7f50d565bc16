package connection

import (
	"net"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	hq "github.com/quicstack/h3core/quic"
	"github.com/quicstack/h3core/quictransport"
	"github.com/quicstack/h3core/quictransport/quictransporttest"
)

// TestEgressBootstrapBytes exercises end-to-end scenario 5: after setup
// the three egress control streams begin with their fixed preamble
// bytes.
func TestEgressBootstrapBytes(t *testing.T) {
	conn, fake := newTestConnection(t)

	assert.Equal(t, hq.ControlStreamPreamble, fake.EgressBytes(conn.egress.control.id, 16))
	assert.Equal(t, hq.QPACKEncoderStreamPreamble, fake.EgressBytes(conn.egress.qpackEncoder.id, 16))
	assert.Equal(t, hq.QPACKDecoderStreamPreamble, fake.EgressBytes(conn.egress.qpackDecoder.id, 16))
}

// TestNewConnectionRegistersByMasterID verifies C6/C8 registration: a
// connection NewConnection set up is findable by the master id its
// transport reports.
func TestNewConnectionRegistersByMasterID(t *testing.T) {
	conn, fake := newTestConnection(t)
	fake.Peer = &net.UDPAddr{IP: net.ParseIP("198.51.100.9"), Port: 443}

	found := conn.ctx.findConnection(fake.Peer, quictransport.DecodedPacket{MasterID: fake.GetMasterID()})
	assert.Same(t, conn, found)
}

// TestNewConnectionRegistersAccepting verifies a server-side connection
// is also reachable via its accept hash before authentication, and that
// DropAcceptingRegistration removes it.
func TestNewConnectionRegistersAccepting(t *testing.T) {
	hq.ResetAcceptHashKeyForTest()
	log := zerolog.Nop()
	fake := quictransporttest.NewConn()
	fake.Peer = &net.UDPAddr{IP: net.ParseIP("203.0.113.5"), Port: 4433}
	fake.OfferedCID = []byte{0xaa, 0xbb}
	ctx := NewContext(&quictransporttest.Engine{}, nil, &log)

	conn, err := NewConnection(ctx, fake, DefaultConfig(), &log)
	require.NoError(t, err)

	pkt := quictransport.DecodedPacket{MightBeClientGenerated: true, DestCID: fake.OfferedCID}
	found := ctx.findConnection(fake.Peer, pkt)
	assert.Same(t, conn, found)

	conn.DropAcceptingRegistration()
	assert.Nil(t, ctx.findConnection(fake.Peer, pkt))
}

// TestScheduleTimerCoalescesUnchangedDeadline exercises P8: repeated
// scheduleTimer calls with an unchanged first-timeout perform no re-arm.
func TestScheduleTimerCoalescesUnchangedDeadline(t *testing.T) {
	conn, fake := newTestConnection(t)
	deadline := time.Now().Add(time.Second)
	fake.FirstTimeout = deadline

	conn.scheduleTimer()
	firstTimer := conn.timer

	conn.scheduleTimer()
	assert.Same(t, firstTimer, conn.timer)

	fake.FirstTimeout = deadline.Add(time.Second)
	conn.scheduleTimer()
	assert.NotSame(t, firstTimer, conn.timer)
}

// TestDisposeUnregistersConnection verifies C8 teardown: after Dispose,
// the connection is reachable by neither map and the transport is
// closed.
func TestDisposeUnregistersConnection(t *testing.T) {
	conn, fake := newTestConnection(t)
	fake.MasterIDVal = 7
	conn.ctx.registerByID(7, conn)

	require.NoError(t, conn.Dispose())

	assert.Nil(t, conn.ctx.findConnection(fake.Peer, quictransport.DecodedPacket{MasterID: 7}))
	assert.True(t, fake.Closed())
}
