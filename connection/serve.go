package connection

import (
	"context"
	"net"

	"golang.org/x/sync/errgroup"
)

// Serve runs ReadLoop concurrently over every socket a listener binds
// (typically one per local address family), the way quicConnection.Serve
// fans its control-stream and datagram routines out with errgroup in
// cloudflared. Serve waits for every loop to return and then returns the
// first non-nil error, if any. The loops do not watch runCtx or the
// group's derived context, so one loop failing does not stop the others.
func (ctx *Context) Serve(runCtx context.Context, sockets ...net.PacketConn) error {
	group, _ := errgroup.WithContext(runCtx)

	for _, socket := range sockets {
		socket := socket
		group.Go(func() error {
			return ctx.ReadLoop(socket)
		})
	}

	return group.Wait()
}
