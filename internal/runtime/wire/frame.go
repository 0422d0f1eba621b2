package wire

import (
	"errors"
	"fmt"
)

// Frame kinds. Every frame crossing a transport starts with one kind byte so
// zero-length payloads, health probes, and failure replies stay
// distinguishable.
const (
	kindRequest byte = 0x01
	kindReply   byte = 0x02
	kindPing    byte = 0x03
	kindPong    byte = 0x04
	kindError   byte = 0x05
)

// ErrEmptyFrame is returned when a transport delivers a zero-length frame.
var ErrEmptyFrame = errors.New("reqflow: empty wire frame")

// ServerError is the client-side view of a failure reply: the server could
// not produce a reply for the request.
type ServerError struct {
	Msg string
}

func (e *ServerError) Error() string {
	return fmt.Sprintf("reqflow: server error: %s", e.Msg)
}

func encodeFrame(kind byte, payload []byte) []byte {
	frame := make([]byte, 1+len(payload))
	frame[0] = kind
	copy(frame[1:], payload)
	return frame
}

func decodeFrame(data []byte) (byte, []byte, error) {
	if len(data) == 0 {
		return 0, nil, ErrEmptyFrame
	}
	return data[0], data[1:], nil
}
