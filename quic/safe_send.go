package quic

import (
	"net"
	"sync"
	"time"
)

// SafeDatagramWriter serializes writes to a net.PacketConn behind a write
// deadline, the same shape as cloudflared's SafeStreamCloser but applied to
// the UDP socket a Connection's send loop and timer callback share instead
// of to an individual QUIC stream: both goroutines can call Send
// concurrently (the read loop inline after processPackets, the timer from
// its own goroutine), so the lock is load-bearing here, not decorative.
type SafeDatagramWriter struct {
	mu      sync.Mutex
	conn    net.PacketConn
	timeout time.Duration
}

// NewSafeDatagramWriter wraps conn with a per-write deadline. A zero
// timeout disables the deadline entirely.
func NewSafeDatagramWriter(conn net.PacketConn, timeout time.Duration) *SafeDatagramWriter {
	return &SafeDatagramWriter{conn: conn, timeout: timeout}
}

// WriteTo writes b to addr, bounding how long a stalled socket can hold the
// lock. A deadline timeout is reported to the caller like any other write
// error; it does not close the underlying connection, since other
// connections' sends share the same socket.
func (s *SafeDatagramWriter) WriteTo(b []byte, addr net.Addr) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.timeout > 0 {
		_ = s.conn.SetWriteDeadline(time.Now().Add(s.timeout))
	}
	return s.conn.WriteTo(b, addr)
}
