package connection

import (
	"strconv"

	hq "github.com/quicstack/h3core/quic"
)

// handleControlFrame repeatedly parses frames from data via the C1 reader,
// enforcing the SETTINGS-first-and-once invariant and the control
// stream's blanket DATA prohibition, then dispatches anything else to the
// HTTP-layer callback. It returns on the first INCOMPLETE, as success,
// so the caller waits for more bytes.
func (c *Connection) handleControlFrame(data []byte) (int, error) {
	total := 0

	for {
		frame, n, err := hq.ReadFrame(data)
		if err == hq.ErrIncomplete {
			return total, nil
		}
		if err != nil {
			return total, err
		}

		isSettings := frame.Type == hq.FrameTypeSettings
		if c.receivedSettings == isSettings || frame.Type == hq.FrameTypeData {
			return total, &hq.MalformedFrameError{Type: frame.Type}
		}
		c.ctx.metrics.controlFrame(strconv.FormatUint(frame.Type, 10))

		if isSettings {
			settings, err := hq.ParseSettingsPayload(frame.Payload)
			if err != nil {
				return total, err
			}
			if err := c.onSettingsReceived(settings); err != nil {
				return total, err
			}
			c.receivedSettings = true
		} else if c.OnControlFrame != nil {
			if err := c.OnControlFrame(frame.Type, frame.Payload); err != nil {
				return total, err
			}
		}

		data = data[n:]
		total += n
	}
}

// handleQPACKEncoderFeed feeds bytes arriving on the peer's QPACK encoder
// stream to our decoder, since the peer's encoder drives our decoder's
// dynamic table. Newly unblocked request-stream IDs, if any, are
// surfaced through OnQPACKStreamsUnblocked.
func (c *Connection) handleQPACKEncoderFeed(data []byte) (int, error) {
	unblocked, err := c.qpack.decoder.HandleInput(data)
	if err != nil {
		return 0, err
	}
	if len(unblocked) > 0 && c.OnQPACKStreamsUnblocked != nil {
		c.OnQPACKStreamsUnblocked(unblocked)
	}
	return len(data), nil
}

// handleQPACKDecoderFeed feeds bytes arriving on the peer's QPACK decoder
// stream (stream cancellations, header-block acks) to our encoder.
func (c *Connection) handleQPACKDecoderFeed(data []byte) (int, error) {
	if c.qpack.encoder == nil {
		return 0, nil
	}
	if err := c.qpack.encoder.HandleInput(data); err != nil {
		return 0, err
	}
	return len(data), nil
}
