package connection

import (
	"bytes"
	"errors"
	"net"
	"time"

	hq "github.com/quicstack/h3core/quic"
	"github.com/quicstack/h3core/quictransport"
)

// pendingDatagram is one UDP read captured during the staging phase,
// before its contents have been decoded into QUIC packets.
type pendingDatagram struct {
	addr net.Addr
	data []byte
}

// decodedPacketGroup accumulates consecutive decoded packets that share a
// peer address and destination CID, the unit process_packets operates on.
type decodedPacketGroup struct {
	addr    net.Addr
	destCID []byte
	packets []quictransport.DecodedPacket
	raws    [][]byte
}

func (g *decodedPacketGroup) matches(addr net.Addr, destCID []byte) bool {
	if g.addr == nil {
		return true
	}
	return sameAddr(g.addr, addr) && bytes.Equal(g.destCID, destCID)
}

func sameAddr(a, b net.Addr) bool {
	return a.Network() == b.Network() && a.String() == b.String()
}

// ReadLoop runs the datagram pump until a read batch comes back empty
// (returning nil, e.g. when the read deadline passes with nothing
// pending) or conn.ReadFrom returns a non-timeout error before any
// datagram of a batch was read (returning that error). Each turn it
// stages up to MaxDatagramsPerRead datagrams into one buffer,
// decodes them into peer+CID grouped batches, and dispatches each batch
// to processPackets, mirroring on_read in the original implementation.
func (ctx *Context) ReadLoop(conn net.PacketConn) error {
	for {
		datagrams, err := ctx.readBatch(conn)
		if err != nil {
			return err
		}
		if len(datagrams) == 0 {
			return nil
		}
		ctx.metrics.readDatagrams(len(datagrams))
		ctx.processDatagrams(conn, datagrams)
	}
}

// readBatch performs the outer read loop: up to MaxDatagramsPerRead reads
// into a single staging buffer, stopping early once remaining space drops
// below MinRemainingBytes or a read yields nothing more to read.
func (ctx *Context) readBatch(conn net.PacketConn) ([]pendingDatagram, error) {
	staging := make([]byte, hq.DatagramStagingBytes)
	used := 0
	var datagrams []pendingDatagram

	for i := 0; i < hq.MaxDatagramsPerRead; i++ {
		if len(staging)-used < hq.MinRemainingBytes {
			break
		}

		n, addr, err := conn.ReadFrom(staging[used:])
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				break
			}
			if len(datagrams) > 0 {
				return datagrams, nil
			}
			return nil, err
		}
		if n == 0 {
			break
		}

		datagrams = append(datagrams, pendingDatagram{addr: addr, data: staging[used : used+n]})
		used += n
	}

	return datagrams, nil
}

// processDatagrams implements the decoded-packet grouping pass: walk
// datagrams in order, decoding coalesced packets from each, flushing the
// accumulated group to processPackets whenever the peer address or
// destination CID changes or the group reaches MaxPacketsPerBatch.
func (ctx *Context) processDatagrams(conn net.PacketConn, datagrams []pendingDatagram) {
	for _, group := range groupDecodedPackets(ctx.Engine, datagrams) {
		ctx.processPackets(conn, group.addr, group.packets, group.raws)
	}
}

// groupDecodedPackets implements the pure grouping pass: walk datagrams in
// order, decoding coalesced packets from each, and split into groups that
// each share one peer address and destination CID, flushing whenever
// either changes or a group reaches MaxPacketsPerBatch.
func groupDecodedPackets(engine quictransport.Engine, datagrams []pendingDatagram) []decodedPacketGroup {
	var groups []decodedPacketGroup
	var group decodedPacketGroup

	flush := func() {
		if len(group.packets) == 0 {
			return
		}
		groups = append(groups, group)
		group = decodedPacketGroup{}
	}

	for _, dgram := range datagrams {
		remaining := dgram.data
		for len(remaining) > 0 {
			pkt, n, err := engine.DecodePacket(remaining)
			if err != nil {
				break
			}

			if !group.matches(dgram.addr, pkt.DestCID) || len(group.packets) >= hq.MaxPacketsPerBatch {
				flush()
			}
			group.addr = dgram.addr
			group.destCID = pkt.DestCID
			group.packets = append(group.packets, pkt)
			group.raws = append(group.raws, remaining[:n])

			remaining = remaining[n:]
		}
	}

	flush()
	return groups
}

// processPackets finds the connection a batch of packets belongs to
// (creating one via the acceptor if none matches), delivers each packet,
// and, if a connection is now known, drives its send loop immediately for
// cache locality before moving on to the next group.
func (ctx *Context) processPackets(conn net.PacketConn, sa net.Addr, packets []quictransport.DecodedPacket, raws [][]byte) {
	ctx.metrics.batch(len(packets))
	c := ctx.findConnection(sa, packets[0])

	if c == nil && ctx.Acceptor != nil {
		accepted, err := ctx.Acceptor(sa, packets[0])
		if err == nil && accepted != nil {
			c = accepted
		}
	}

	if c == nil {
		ctx.metrics.droppedPacket("no_connection")
		return
	}
	c.SetSocket(conn)

	for i, pkt := range packets {
		if err := c.transport.Receive(sa, pkt, raws[i]); err != nil {
			ctx.metrics.droppedPacket("receive_error")
			if ctx.Log != nil {
				ctx.Log.Debug().Err(err).Msg("dropping undeliverable packet")
			}
		}
	}

	c.send(conn)
}

// send drains the connection's pending QUIC-produced packets in batches
// of up to MaxPacketsPerSend, handling the FREE_CONNECTION teardown
// signal and rescheduling the timer once the queue is drained.
func (c *Connection) send(conn net.PacketConn) {
	writer := c.writerFor(conn)

	for {
		packets, err := c.transport.Send(hq.MaxPacketsPerSend)
		if errors.Is(err, quictransport.ErrFreeConnection) {
			if err := c.Dispose(); err != nil && c.log != nil {
				c.log.Debug().Err(err).Msg("error disposing drained connection")
			}
			return
		}
		if err != nil {
			abortOnSendError(err)
		}

		for _, p := range packets {
			if _, werr := writer.WriteTo(p.Bytes, p.Addr); werr != nil {
				c.ctx.metrics.droppedPacket("sendmsg_error")
				if c.log != nil {
					c.log.Debug().Err(werr).Msg("sendmsg failed, dropping datagram")
				}
			}
		}

		if len(packets) < hq.MaxPacketsPerSend {
			break
		}
	}

	c.scheduleTimer()
}

// writerFor returns the connection's SafeDatagramWriter for conn, building
// a fresh one if this is the first send or the caller handed in a
// different socket than last time.
func (c *Connection) writerFor(conn net.PacketConn) *hq.SafeDatagramWriter {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.safeWriter == nil || c.safeWriterConn != conn {
		c.safeWriter = hq.NewSafeDatagramWriter(conn, hq.DefaultSendWriteTimeout)
		c.safeWriterConn = conn
	}
	return c.safeWriter
}

// scheduleTimer queries the transport for its next event time and rearms
// the connection's single timer only if that deadline actually changed,
// the coalescing optimization from spec.md §4.6.
func (c *Connection) scheduleTimer() {
	c.mu.Lock()
	defer c.mu.Unlock()

	next := c.transport.GetFirstTimeout()
	if c.armedTimeout.Equal(next) && c.timer != nil {
		return
	}
	c.armedTimeout = next

	if c.timer != nil {
		c.timer.Stop()
	}

	delay := time.Until(next)
	if delay < 0 {
		delay = 0
	}
	c.timer = time.AfterFunc(delay, func() {
		c.onTimerFire()
	})
	c.ctx.metrics.rearmedTimer()
}

// onTimerFire re-enters the send loop. It runs on the timer's own
// goroutine, which is why Connection state is guarded by mu rather than
// assuming the single-threaded-core model spec.md describes.
func (c *Connection) onTimerFire() {
	c.mu.Lock()
	socket := c.socket
	c.mu.Unlock()
	if socket != nil {
		c.send(socket)
	}
}

// SetSocket binds the net.PacketConn the timer-driven send loop writes
// to. processPackets calls it with the reading socket every time it
// delivers a batch to the connection; the timer fires on its own
// goroutine and has no other way to reach the socket, so it sends nothing
// until a socket has been bound.
func (c *Connection) SetSocket(socket net.PacketConn) {
	c.mu.Lock()
	c.socket = socket
	c.mu.Unlock()
}
