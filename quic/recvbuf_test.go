package quic

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecvBufInOrder(t *testing.T) {
	var buf RecvBuf
	require.NoError(t, buf.Update(0, []byte("hello")))
	require.NoError(t, buf.Update(5, []byte(" world")))
	assert.Equal(t, "hello world", string(buf.Bytes()))
	assert.Equal(t, 11, buf.Size())
}

func TestRecvBufOutOfOrder(t *testing.T) {
	var buf RecvBuf
	require.NoError(t, buf.Update(6, []byte("world!")))
	require.NoError(t, buf.Update(0, []byte("hello ")))
	assert.Equal(t, "hello world!", string(buf.Bytes()))
}

func TestRecvBufConsumeShiftsRemainder(t *testing.T) {
	var buf RecvBuf
	require.NoError(t, buf.Update(0, []byte("abcdef")))
	buf.Consume(3)
	assert.Equal(t, "def", string(buf.Bytes()))
	assert.Equal(t, 3, buf.Size())

	require.NoError(t, buf.Update(6, []byte("ghi")))
	assert.Equal(t, "defghi", string(buf.Bytes()))
}

func TestRecvBufConsumeBeyondSizeClampsToEmpty(t *testing.T) {
	var buf RecvBuf
	require.NoError(t, buf.Update(0, []byte("abc")))
	buf.Consume(100)
	assert.Equal(t, 0, buf.Size())
	assert.Empty(t, buf.Bytes())
}

func TestRecvBufDropsFullyConsumedRetransmission(t *testing.T) {
	var buf RecvBuf
	require.NoError(t, buf.Update(0, []byte("abc")))
	buf.Consume(3)

	require.NoError(t, buf.Update(0, []byte("abc")))
	assert.Equal(t, 0, buf.Size())
}

func TestRecvBufTrimsPartiallyConsumedRetransmission(t *testing.T) {
	var buf RecvBuf
	require.NoError(t, buf.Update(0, []byte("abcdef")))
	buf.Consume(3)

	require.NoError(t, buf.Update(0, []byte("abcdefGHI")))
	assert.Equal(t, "defGHI", string(buf.Bytes()))
}

func TestRecvBufGrowsAcrossMultipleWrites(t *testing.T) {
	var buf RecvBuf
	chunk := make([]byte, 1024)
	for i := range chunk {
		chunk[i] = byte(i)
	}
	for i := 0; i < 10; i++ {
		require.NoError(t, buf.Update(i*len(chunk), chunk))
	}
	assert.Equal(t, 10*len(chunk), buf.Size())
	assert.Equal(t, chunk, buf.Bytes()[9*len(chunk):])
}
