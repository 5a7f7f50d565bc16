package quic

// RecvBuf places out-of-order bytes by absolute stream offset into a
// growable buffer, the way QUIC stream delivery can hand a receiver bytes
// for any offset within the stream's flow-control window regardless of
// arrival order. Offsets passed to Update are always measured from the
// very start of the stream and never renumbered, matching the QUIC STREAM
// frame's own offset field; base tracks how many leading bytes have
// already been consumed so old, already-handled retransmissions of the
// same bytes are recognised and dropped rather than corrupting the
// buffer. Callers only ever read the contiguous prefix via Bytes.
type RecvBuf struct {
	bytes []byte
	size  int
	base  int
}

// Update ensures capacity for the new data, copies src to its position
// relative to base, and grows the buffer's logical size to cover it. A
// src that arrives entirely before base (a pure retransmission of bytes
// already consumed) is a no-op; a src that straddles base has its
// already-consumed prefix trimmed before writing. A panic raised while
// growing the buffer is reported as ErrBufferGrowFailed.
func (b *RecvBuf) Update(offset int, src []byte) (err error) {
	defer func() {
		if recover() != nil {
			err = ErrBufferGrowFailed
		}
	}()

	local := offset - b.base
	if local < 0 {
		overlap := -local
		if overlap >= len(src) {
			return nil
		}
		src = src[overlap:]
		local = 0
	}

	end := local + len(src)
	if end > cap(b.bytes) {
		grown := make([]byte, end, growCapacity(cap(b.bytes), end))
		copy(grown, b.bytes[:b.size])
		b.bytes = grown
	} else if end > len(b.bytes) {
		b.bytes = b.bytes[:end]
	}
	copy(b.bytes[local:end], src)
	if end > b.size {
		b.size = end
	}
	return nil
}

// Bytes returns the contiguous filled prefix of the buffer.
func (b *RecvBuf) Bytes() []byte {
	return b.bytes[:b.size]
}

// Size reports how many bytes have been written so far (the high
// watermark of offset+len across all Update calls, relative to base).
func (b *RecvBuf) Size() int {
	return b.size
}

// Consume drops n bytes from the front of the buffer, shifting the
// remainder down and advancing base by n, after a caller has handed them
// off to a parser.
func (b *RecvBuf) Consume(n int) {
	if n <= 0 {
		return
	}
	if n > b.size {
		n = b.size
	}
	copy(b.bytes, b.bytes[n:b.size])
	b.size -= n
	b.bytes = b.bytes[:b.size]
	b.base += n
}

// growCapacity doubles the existing capacity until it covers need, with a
// floor so small buffers don't thrash on every append.
func growCapacity(existing, need int) int {
	const minCapacity = 256
	c := existing
	if c < minCapacity {
		c = minCapacity
	}
	for c < need {
		c *= 2
	}
	return c
}
