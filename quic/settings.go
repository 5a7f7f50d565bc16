package quic

import (
	"encoding/binary"

	"github.com/quic-go/quic-go/quicvarint"
)

// Settings holds the negotiated SETTINGS key/value pairs for a control
// stream direction. Only HeaderTableSize is kept; all other ids are
// skipped when parsing and are not retained.
type Settings struct {
	HeaderTableSize uint32
}

// DefaultSettings returns the SETTINGS this implementation announces to
// its peer: the default QPACK dynamic table size, nothing else.
func DefaultSettings() Settings {
	return Settings{HeaderTableSize: DefaultQPACKTableSize}
}

// WriteFrame encodes s as a SETTINGS frame (varint length + type byte +
// payload) and appends it to dst.
func (s Settings) WriteFrame(dst []byte) []byte {
	var payload []byte
	if s.HeaderTableSize != 0 {
		payload = appendSettingPair(payload, SettingHeaderTableSize, uint64(s.HeaderTableSize))
	}

	dst = quicvarint.Append(dst, uint64(len(payload)))
	dst = append(dst, byte(FrameTypeSettings))
	dst = append(dst, payload...)
	return dst
}

func appendSettingPair(dst []byte, id uint16, value uint64) []byte {
	var idBuf [2]byte
	binary.BigEndian.PutUint16(idBuf[:], id)
	dst = append(dst, idBuf[:]...)
	dst = quicvarint.Append(dst, value)
	return dst
}

// ParseSettingsPayload decodes a SETTINGS frame payload: a sequence of
// {u16 id, varint value} pairs until the payload is exhausted. A
// truncated id or value is a *MalformedFrameError for FrameTypeSettings.
func ParseSettingsPayload(payload []byte) (Settings, error) {
	settings := Settings{HeaderTableSize: DefaultQPACKTableSize}

	for len(payload) > 0 {
		if len(payload) < 2 {
			return Settings{}, &MalformedFrameError{Type: FrameTypeSettings}
		}
		id := binary.BigEndian.Uint16(payload[:2])
		payload = payload[2:]

		value, n, err := readVarint(payload)
		if err != nil {
			return Settings{}, &MalformedFrameError{Type: FrameTypeSettings}
		}
		payload = payload[n:]

		switch id {
		case SettingHeaderTableSize:
			settings.HeaderTableSize = uint32(value)
		default:
			// unrecognised ids are ignored, per spec.
		}
	}

	return settings, nil
}
