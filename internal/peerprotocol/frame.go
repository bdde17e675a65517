package peerprotocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// MaxMessageLength is the largest frame body accepted by MessageFrame.
// It must hold a block of 16 KiB and the bitfield of a torrent with a few million pieces.
const MaxMessageLength = 1 << 20

// ErrMessageTooLarge is returned from MessageFrame when a length prefix is over MaxMessageLength.
var ErrMessageTooLarge = errors.New("message too large")

// MessageFrame splits a stream of length prefixed messages into frame bodies.
// Bytes may be appended in chunks of any size.
type MessageFrame struct {
	buf []byte
	err error
}

// Append adds b to the internal buffer and returns every complete frame body in order.
// An empty body is a keep-alive. Returned bodies do not share memory with the internal buffer.
// Once an error is returned, it is returned on every following call.
func (f *MessageFrame) Append(b []byte) ([][]byte, error) {
	if f.err != nil {
		return nil, f.err
	}
	f.buf = append(f.buf, b...)
	var bodies [][]byte
	for len(f.buf) >= 4 {
		length := binary.BigEndian.Uint32(f.buf[:4])
		if length > MaxMessageLength {
			f.err = fmt.Errorf("%w: %d bytes", ErrMessageTooLarge, length)
			f.buf = nil
			return bodies, f.err
		}
		if uint32(len(f.buf)-4) < length {
			break
		}
		body := make([]byte, length)
		copy(body, f.buf[4:4+length])
		bodies = append(bodies, body)
		f.buf = f.buf[4+length:]
	}
	if len(f.buf) == 0 {
		f.buf = nil
	} else if cap(f.buf) > 2*len(f.buf)+MaxMessageLength {
		// Release the consumed part of a grown buffer.
		f.buf = append([]byte(nil), f.buf...)
	}
	return bodies, nil
}

// Buffered returns the number of bytes waiting for the rest of their frame.
func (f *MessageFrame) Buffered() int {
	return len(f.buf)
}
