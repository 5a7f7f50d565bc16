// Package qpack declares the two opaque QPACK coder contracts this module
// consumes: an encoder fed by the peer's decoder-stream acknowledgements,
// and a decoder fed by the peer's encoder-stream instructions. QPACK codec
// internals (dynamic table compression, Huffman coding) are out of scope
// here; this package only carries the byte-stream-in, unblocked-IDs-out
// shape the control-stream handlers (C4) depend on.
package qpack

// Config carries the two negotiated knobs the coder pair is instantiated
// with: the dynamic table's maximum capacity and how many request streams
// may be blocked on table updates at once.
type Config struct {
	MaxTableCapacity  uint32
	MaxBlockedStreams int
}

// Decoder feeds bytes arriving on the peer's QPACK-encoder stream into our
// decoder state. A call may report newly unblocked request-stream IDs.
type Decoder interface {
	HandleInput(data []byte) (unblockedStreamIDs []int64, err error)
}

// Encoder feeds bytes arriving on the peer's QPACK-decoder stream (stream
// cancellations, header-block acks) into our encoder state.
type Encoder interface {
	HandleInput(data []byte) error
}

// NewDecoder returns the opaque decoder for a freshly set-up connection.
// Decoders are created eagerly at setup, before SETTINGS negotiation.
func NewDecoder(cfg Config) Decoder {
	return &passthroughDecoder{cfg: cfg}
}

// NewEncoder returns the opaque encoder for a connection, instantiated
// once the peer's SETTINGS frame has negotiated a header table size.
func NewEncoder(cfg Config) Encoder {
	return &passthroughEncoder{cfg: cfg}
}

// passthroughDecoder and passthroughEncoder satisfy the interfaces above
// without performing real QPACK compression; a production binary replaces
// them with an adapter over a real QPACK implementation the same way
// quictransport.Conn is replaced with a real QUIC engine adapter.
type passthroughDecoder struct {
	cfg Config
}

func (d *passthroughDecoder) HandleInput(data []byte) ([]int64, error) {
	return nil, nil
}

type passthroughEncoder struct {
	cfg Config
}

func (e *passthroughEncoder) HandleInput(data []byte) error {
	return nil
}
