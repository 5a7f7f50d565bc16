package quic

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSafeDatagramWriterRoundTrip(t *testing.T) {
	serverAddr, err := net.ResolveUDPAddr("udp", "127.0.0.1:0")
	require.NoError(t, err)
	server, err := net.ListenUDP("udp", serverAddr)
	require.NoError(t, err)
	defer server.Close()

	clientAddr, err := net.ResolveUDPAddr("udp", "127.0.0.1:0")
	require.NoError(t, err)
	client, err := net.ListenUDP("udp", clientAddr)
	require.NoError(t, err)
	defer client.Close()

	writer := NewSafeDatagramWriter(client, time.Second)
	n, err := writer.WriteTo([]byte("hello"), server.LocalAddr())
	require.NoError(t, err)
	require.Equal(t, 5, n)

	buf := make([]byte, 16)
	require.NoError(t, server.SetReadDeadline(time.Now().Add(time.Second)))
	n, _, err = server.ReadFrom(buf)
	require.NoError(t, err)
	require.Equal(t, "hello", string(buf[:n]))
}

func TestSafeDatagramWriterSerializesConcurrentWrites(t *testing.T) {
	serverAddr, err := net.ResolveUDPAddr("udp", "127.0.0.1:0")
	require.NoError(t, err)
	server, err := net.ListenUDP("udp", serverAddr)
	require.NoError(t, err)
	defer server.Close()

	clientAddr, err := net.ResolveUDPAddr("udp", "127.0.0.1:0")
	require.NoError(t, err)
	client, err := net.ListenUDP("udp", clientAddr)
	require.NoError(t, err)
	defer client.Close()

	writer := NewSafeDatagramWriter(client, time.Second)

	done := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := writer.WriteTo([]byte("x"), server.LocalAddr())
			done <- err
		}()
	}
	require.NoError(t, <-done)
	require.NoError(t, <-done)
}
