// Package wire implements the on-the-wire Message envelope carried over a
// Pipe, spec.md §3 ("Message: channel, stamp, payload"). It is deliberately
// forward-compatible: CBOR lets a future field be added to either end
// without breaking the other, which is why the original implementation
// picked it over a fixed binary struct.
package wire

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Message is one packet handed from a Source's windmill to the
// Switchboard, or received by a Sink. Field names match the wire keys
// exactly so a Go and non-Go peer agree on the envelope.
type Message struct {
	Channel string  `cbor:"channel"`
	Stamp   float64 `cbor:"stamp"`
	Payload []byte  `cbor:"payload"`
}

// Serialize encodes m to CBOR. Round-trips with Deserialize (property P8).
func (m Message) Serialize() ([]byte, error) {
	data, err := cbor.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("serializing message on channel %q: %w", m.Channel, err)
	}
	return data, nil
}

// Deserialize decodes a Message previously produced by Serialize.
func Deserialize(data []byte) (Message, error) {
	var m Message
	if err := cbor.Unmarshal(data, &m); err != nil {
		return Message{}, fmt.Errorf("deserializing message: %w", err)
	}
	return m, nil
}

// FrameLevel distinguishes user payloads from Pipe-internal heartbeats on
// the wire, spec.md §4.4. It is transmitted as the first byte of every
// frame, ahead of the CBOR-encoded Message.
type FrameLevel byte

const (
	FrameUser   FrameLevel = '0'
	FrameSystem FrameLevel = '1'
)

// Frame prefixes data with its level byte for transmission over a Pipe.
func Frame(level FrameLevel, data []byte) []byte {
	out := make([]byte, 0, len(data)+1)
	out = append(out, byte(level))
	out = append(out, data...)
	return out
}

// Unframe splits a received Pipe frame back into its level and payload. It
// reports ok=false for anything shorter than the one-byte level tag, which
// the caller should silently drop (mirrors the original's "len(parts) != 2"
// guard).
func Unframe(frame []byte) (level FrameLevel, data []byte, ok bool) {
	if len(frame) < 1 {
		return 0, nil, false
	}
	return FrameLevel(frame[0]), frame[1:], true
}
