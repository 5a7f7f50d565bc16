package connection

import (
	"net"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	hq "github.com/quicstack/h3core/quic"
	"github.com/quicstack/h3core/quictransport"
)

// AcceptFunc is invoked when an incoming packet matches no existing
// connection; it returns a freshly set-up Connection, or nil to drop the
// packet silently.
type AcceptFunc func(sa net.Addr, pkt quictransport.DecodedPacket) (*Connection, error)

// Context is one per listener: it owns the transport engine, the two
// connection-lookup maps, and the acceptor callback for first-contact
// packets. ID disambiguates log lines across a process that runs more
// than one listener.
type Context struct {
	ID uuid.UUID

	Engine   quictransport.Engine
	Acceptor AcceptFunc
	Log      *zerolog.Logger

	mu             sync.Mutex
	connsByID      map[uint64]*Connection
	connsAccepting map[uint64]*Connection
	metrics        *metrics
}

// NewContext constructs an empty registry bound to the given engine.
func NewContext(engine quictransport.Engine, acceptor AcceptFunc, log *zerolog.Logger) *Context {
	return &Context{
		ID:             uuid.New(),
		Engine:         engine,
		Acceptor:       acceptor,
		Log:            log,
		connsByID:      make(map[uint64]*Connection),
		connsAccepting: make(map[uint64]*Connection),
		metrics:        newMetrics(),
	}
}

func (ctx *Context) registerByID(masterID uint64, c *Connection) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	ctx.connsByID[masterID] = c
}

func (ctx *Context) unregisterByID(masterID uint64) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	delete(ctx.connsByID, masterID)
}

func (ctx *Context) registerAccepting(acceptKey uint64, c *Connection) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	ctx.connsAccepting[acceptKey] = c
	ctx.metrics.acceptedConnection()
}

func (ctx *Context) unregisterAccepting(acceptKey uint64) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	delete(ctx.connsAccepting, acceptKey)
}

// findConnection implements the two-step connection lookup from spec.md
// §4.5 / find_connection in the original: packets whose destination CID
// might be client-generated (Initial/0-RTT) are looked up by accept hash;
// packets with a CID this process can decrypt to plaintext fields are
// looked up by master id. The two paths are mutually exclusive by
// construction, so there is no tie to break between them.
func (ctx *Context) findConnection(sa net.Addr, pkt quictransport.DecodedPacket) *Connection {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()

	if pkt.MightBeClientGenerated {
		acceptKey := hq.AcceptHash(sa, pkt.DestCID)
		if c, ok := ctx.connsAccepting[acceptKey]; ok && c.transport.IsDestination(sa, pkt) {
			return c
		}
		return nil
	}

	if pkt.NodeID == 0 && pkt.ThreadID == 0 {
		if c, ok := ctx.connsByID[pkt.MasterID]; ok && c.transport.IsDestination(sa, pkt) {
			return c
		}
	}

	return nil
}
