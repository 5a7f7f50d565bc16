package connection

import (
	"testing"

	"github.com/quic-go/quic-go/quicvarint"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quicstack/h3core/qpack"
	hq "github.com/quicstack/h3core/quic"
	"github.com/quicstack/h3core/quictransport/quictransporttest"
)

func newTestConnection(t *testing.T) (*Connection, *quictransporttest.Conn) {
	t.Helper()
	log := zerolog.Nop()
	fake := quictransporttest.NewConn()
	ctx := NewContext(&quictransporttest.Engine{}, nil, &log)
	conn, err := NewConnection(ctx, fake, DefaultConfig(), &log)
	require.NoError(t, err)
	return conn, fake
}

func settingsFrame(t *testing.T) []byte {
	t.Helper()
	return hq.DefaultSettings().WriteFrame(nil)
}

func maxPushIDFrame(t *testing.T, value uint64) []byte {
	t.Helper()
	var payload []byte
	payload = quicvarint.Append(payload, value)
	var wire []byte
	wire = quicvarint.Append(wire, uint64(len(payload)))
	wire = append(wire, byte(hq.FrameTypeMaxPushID))
	wire = append(wire, payload...)
	return wire
}

func dataFrame(t *testing.T, body []byte) []byte {
	t.Helper()
	var wire []byte
	wire = quicvarint.Append(wire, uint64(len(body)))
	wire = append(wire, byte(hq.FrameTypeData))
	wire = append(wire, body...)
	return wire
}

// TestUnknownUnistreamType exercises end-to-end scenario 1: an
// unrecognised type byte triggers STOP_SENDING and silently discards the
// remaining bytes without closing the connection.
func TestUnknownUnistreamType(t *testing.T) {
	_, fake := newTestConnection(t)
	id := fake.OpenPeerStream(true)

	err := fake.DeliverIngress(id, 0, []byte{0x7f, 0x00}, false)
	require.NoError(t, err)

	stops := fake.StopRequests()
	require.Len(t, stops, 1)
	assert.Equal(t, uint64(hq.ErrorCodeUnknownStreamType), stops[0].Code)

	// Further bytes on a discarding stream are silently consumed, not an
	// error and not another STOP_SENDING.
	err = fake.DeliverIngress(id, 2, []byte{0x01, 0x02, 0x03}, false)
	require.NoError(t, err)
	assert.Len(t, fake.StopRequests(), 1)
}

// TestControlStreamSettingsThenMaxPushID exercises end-to-end scenario 2.
func TestControlStreamSettingsThenMaxPushID(t *testing.T) {
	conn, fake := newTestConnection(t)
	id := fake.OpenPeerStream(true)

	var delivered []uint64
	conn.OnControlFrame = func(frameType uint64, payload []byte) error {
		delivered = append(delivered, frameType)
		return nil
	}

	require.NoError(t, fake.DeliverIngress(id, 0, []byte{hq.StreamTypeControl}, false))
	require.NoError(t, fake.DeliverIngress(id, 1, settingsFrame(t), false))
	require.NoError(t, fake.DeliverIngress(id, 1+len(settingsFrame(t)), maxPushIDFrame(t, 0), false))

	assert.True(t, conn.receivedSettings)
	assert.NotNil(t, conn.qpack.encoder)
	require.Len(t, delivered, 1)
	assert.Equal(t, hq.FrameTypeMaxPushID, delivered[0])
}

// TestDataFrameOnControlStreamIsMalformed exercises end-to-end scenario 3.
func TestDataFrameOnControlStreamIsMalformed(t *testing.T) {
	conn, fake := newTestConnection(t)
	id := fake.OpenPeerStream(true)

	require.NoError(t, fake.DeliverIngress(id, 0, []byte{hq.StreamTypeControl}, false))
	require.NoError(t, fake.DeliverIngress(id, 1, settingsFrame(t), false))

	offset := 1 + len(settingsFrame(t))
	err := fake.DeliverIngress(id, offset, dataFrame(t, []byte("hello")), false)

	require.Error(t, err)
	var malformed *hq.MalformedFrameError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, hq.FrameTypeData, malformed.Type)
	_ = conn
}

// TestNonSettingsFirstFrameIsMalformed exercises P2.
func TestNonSettingsFirstFrameIsMalformed(t *testing.T) {
	_, fake := newTestConnection(t)
	id := fake.OpenPeerStream(true)

	require.NoError(t, fake.DeliverIngress(id, 0, []byte{hq.StreamTypeControl}, false))
	err := fake.DeliverIngress(id, 1, maxPushIDFrame(t, 0), false)

	require.Error(t, err)
	var malformed *hq.MalformedFrameError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, hq.FrameTypeMaxPushID, malformed.Type)
}

// TestSecondSettingsFrameIsMalformed exercises P3.
func TestSecondSettingsFrameIsMalformed(t *testing.T) {
	_, fake := newTestConnection(t)
	id := fake.OpenPeerStream(true)

	require.NoError(t, fake.DeliverIngress(id, 0, []byte{hq.StreamTypeControl}, false))
	require.NoError(t, fake.DeliverIngress(id, 1, settingsFrame(t), false))

	offset := 1 + len(settingsFrame(t))
	err := fake.DeliverIngress(id, offset, settingsFrame(t), false)

	require.Error(t, err)
	var malformed *hq.MalformedFrameError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, hq.FrameTypeSettings, malformed.Type)
}

// TestOversizeFrameIsMalformed exercises P2/scenario 4.
func TestOversizeFrameIsMalformed(t *testing.T) {
	_, fake := newTestConnection(t)
	id := fake.OpenPeerStream(true)

	var oversize []byte
	oversize = quicvarint.Append(oversize, hq.MaxFrameSize)
	oversize = append(oversize, byte(hq.FrameTypeGoaway))

	require.NoError(t, fake.DeliverIngress(id, 0, []byte{hq.StreamTypeControl}, false))
	err := fake.DeliverIngress(id, 1, oversize, false)

	require.Error(t, err)
	var malformed *hq.MalformedFrameError
	require.ErrorAs(t, err, &malformed)
	assert.Equal(t, hq.FrameTypeGoaway, malformed.Type)
}

// TestFinOnIngressControlStreamClosesConnection exercises P5.
func TestFinOnIngressControlStreamClosesConnection(t *testing.T) {
	_, fake := newTestConnection(t)
	id := fake.OpenPeerStream(true)

	require.NoError(t, fake.DeliverIngress(id, 0, []byte{hq.StreamTypeControl}, false))
	err := fake.DeliverIngress(id, 1, nil, true)

	require.Error(t, err)
	var closed *hq.ClosedCriticalStreamError
	require.ErrorAs(t, err, &closed)
}

// TestResetOnIngressQPACKStreamClosesConnection exercises P5's reset half.
func TestResetOnIngressQPACKStreamClosesConnection(t *testing.T) {
	_, fake := newTestConnection(t)
	id := fake.OpenPeerStream(true)
	require.NoError(t, fake.DeliverIngress(id, 0, []byte{hq.StreamTypeQPACKEncoder}, false))

	err := fake.DeliverIngressReset(id)

	require.Error(t, err)
	var closed *hq.ClosedCriticalStreamError
	require.ErrorAs(t, err, &closed)
}

// TestQPACKEncoderFeedSurfacesUnblockedStreams exercises the decoder-feed
// direction and its unblocked-stream callback.
func TestQPACKEncoderFeedSurfacesUnblockedStreams(t *testing.T) {
	conn, fake := newTestConnection(t)
	conn.qpack.decoder = fakeDecoder{unblocked: []int64{4, 8}}

	var got []int64
	conn.OnQPACKStreamsUnblocked = func(ids []int64) { got = ids }

	id := fake.OpenPeerStream(true)
	require.NoError(t, fake.DeliverIngress(id, 0, []byte{hq.StreamTypeQPACKEncoder}, false))
	require.NoError(t, fake.DeliverIngress(id, 1, []byte{0x01, 0x02}, false))

	assert.Equal(t, []int64{4, 8}, got)
}

type fakeDecoder struct {
	unblocked []int64
}

func (f fakeDecoder) HandleInput(data []byte) ([]int64, error) {
	return f.unblocked, nil
}

var _ qpack.Decoder = fakeDecoder{}
