package peerprotocol

import (
	"bytes"
	"errors"
)

// ErrHandshakeReceived is returned when bytes are appended to a HandshakeFrame after success.
var ErrHandshakeReceived = errors.New("handshake already received")

// HandshakeLength is the size of the handshake message.
const HandshakeLength = 68

// ProtocolName is the identifier sent in handshake.
const ProtocolName = "BitTorrent protocol"

// HandshakeErrorKind describes which field of a handshake did not match.
type HandshakeErrorKind int

// Handshake failure kinds in the order fields are validated.
const (
	ProtocolMismatch HandshakeErrorKind = iota + 1
	InfoHashMismatch
	PeerIDMismatch
)

func (k HandshakeErrorKind) String() string {
	switch k {
	case ProtocolMismatch:
		return "protocol mismatch"
	case InfoHashMismatch:
		return "info hash mismatch"
	case PeerIDMismatch:
		return "peer id mismatch"
	default:
		return "unknown"
	}
}

// HandshakeError is returned from HandshakeFrame when a received field does not match.
type HandshakeError struct {
	Kind HandshakeErrorKind
}

func (e *HandshakeError) Error() string {
	return "invalid handshake: " + e.Kind.String()
}

// Handshake is a successfully parsed handshake.
type Handshake struct {
	PeerID     [20]byte
	Extensions [8]byte
	// DHT is set if the peer supports DHT.
	DHT bool
	// Remainder contains bytes appended after the handshake. They belong to following messages.
	Remainder []byte
}

// Field offsets in handshake.
const (
	offsetName     = 1
	offsetReserved = offsetName + 19
	offsetInfoHash = offsetReserved + 8
	offsetPeerID   = offsetInfoHash + 20
)

// HandshakeFrame accumulates bytes until a handshake can be validated.
// Fields are checked as soon as they are complete, so a mismatch is reported
// without waiting for the rest of the handshake.
type HandshakeFrame struct {
	infoHash [20]byte
	peerID   *[20]byte

	buf  []byte
	err  error
	done bool
}

// NewHandshakeFrame returns a frame expecting infoHash.
// If peerID is nil, the peer id in the handshake is not validated.
func NewHandshakeFrame(infoHash [20]byte, peerID *[20]byte) *HandshakeFrame {
	return &HandshakeFrame{infoHash: infoHash, peerID: peerID}
}

// Append adds b to the buffer. It returns the handshake when all 68 bytes are received and valid.
// It returns nil with nil error while more bytes are needed.
// After a failure the same error is returned from every call.
func (f *HandshakeFrame) Append(b []byte) (*Handshake, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.done {
		return nil, ErrHandshakeReceived
	}
	f.buf = append(f.buf, b...)
	if err := f.validate(); err != nil {
		f.err = err
		f.buf = nil
		return nil, err
	}
	if len(f.buf) < HandshakeLength {
		return nil, nil
	}
	h := &Handshake{}
	copy(h.Extensions[:], f.buf[offsetReserved:offsetInfoHash])
	copy(h.PeerID[:], f.buf[offsetPeerID:HandshakeLength])
	h.DHT = h.Extensions[7]&0x01 != 0
	h.Remainder = append([]byte{}, f.buf[HandshakeLength:]...)
	f.done = true
	f.buf = nil
	return h, nil
}

func (f *HandshakeFrame) validate() error {
	n := len(f.buf)
	if n >= 1 && f.buf[0] != byte(len(ProtocolName)) {
		return &HandshakeError{ProtocolMismatch}
	}
	if n >= offsetReserved && string(f.buf[offsetName:offsetReserved]) != ProtocolName {
		return &HandshakeError{ProtocolMismatch}
	}
	if n >= offsetPeerID && !bytes.Equal(f.buf[offsetInfoHash:offsetPeerID], f.infoHash[:]) {
		return &HandshakeError{InfoHashMismatch}
	}
	if n >= HandshakeLength && f.peerID != nil && !bytes.Equal(f.buf[offsetPeerID:HandshakeLength], f.peerID[:]) {
		return &HandshakeError{PeerIDMismatch}
	}
	return nil
}

// EncodeHandshake returns the 68 byte handshake message.
func EncodeHandshake(infoHash, peerID [20]byte, dht bool) []byte {
	b := make([]byte, 0, HandshakeLength)
	b = append(b, byte(len(ProtocolName)))
	b = append(b, ProtocolName...)
	var reserved [8]byte
	if dht {
		reserved[7] |= 0x01
	}
	b = append(b, reserved[:]...)
	b = append(b, infoHash[:]...)
	b = append(b, peerID[:]...)
	return b
}
