package peerprotocol

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var (
	// ErrUnknownMessage is returned from Decode when the message id is not known.
	ErrUnknownMessage = errors.New("unknown message id")
	// ErrInvalidPayload is returned from Decode when the payload has wrong size for the message type.
	ErrInvalidPayload = errors.New("invalid message payload")
)

// Message is a Peer message of BitTorrent protocol.
type Message interface {
	ID() MessageID
	// Payload returns the bytes following the id byte.
	Payload() []byte
}

// HaveMessage indicates a peer has the piece with index.
type HaveMessage struct {
	Index uint32
}

// ID returns the peer protocol message type.
func (m HaveMessage) ID() MessageID { return Have }

// Payload returns the piece index.
func (m HaveMessage) Payload() []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, m.Index)
	return b
}

// RequestMessage is sent when a peer needs a certain block.
type RequestMessage struct {
	Index, Begin, Length uint32
}

// ID returns the peer protocol message type.
func (m RequestMessage) ID() MessageID { return Request }

// Payload returns index, begin and length.
func (m RequestMessage) Payload() []byte {
	b := make([]byte, 12)
	binary.BigEndian.PutUint32(b[0:4], m.Index)
	binary.BigEndian.PutUint32(b[4:8], m.Begin)
	binary.BigEndian.PutUint32(b[8:12], m.Length)
	return b
}

// CancelMessage is sent to peer to cancel previously sent request.
type CancelMessage struct{ RequestMessage }

// ID returns the peer protocol message type.
func (m CancelMessage) ID() MessageID { return Cancel }

// PieceMessage is sent when a peer wants to upload block data.
type PieceMessage struct {
	Index, Begin uint32
	Data         []byte
}

// ID returns the peer protocol message type.
func (m PieceMessage) ID() MessageID { return Piece }

// Payload returns index, begin and block data.
func (m PieceMessage) Payload() []byte {
	b := make([]byte, 8+len(m.Data))
	binary.BigEndian.PutUint32(b[0:4], m.Index)
	binary.BigEndian.PutUint32(b[4:8], m.Begin)
	copy(b[8:], m.Data)
	return b
}

// BitfieldMessage sent after the peer handshake to exchange piece availability information between peers.
type BitfieldMessage struct {
	Data []byte
}

// ID returns the peer protocol message type.
func (m BitfieldMessage) ID() MessageID { return Bitfield }

// Payload returns the bitfield bytes.
func (m BitfieldMessage) Payload() []byte { return m.Data }

// PortMessage is sent to announce the UDP port number of DHT node run by the peer.
type PortMessage struct {
	Port uint16
}

// ID returns the peer protocol message type.
func (m PortMessage) ID() MessageID { return Port }

// Payload returns the port.
func (m PortMessage) Payload() []byte {
	b := make([]byte, 2)
	binary.BigEndian.PutUint16(b, m.Port)
	return b
}

type emptyMessage struct{}

func (m emptyMessage) Payload() []byte { return nil }

// ChokeMessage is sent to peer that it should not request pieces.
type ChokeMessage struct{ emptyMessage }

// UnchokeMessage is sent to peer that it can request pieces.
type UnchokeMessage struct{ emptyMessage }

// InterestedMessage is sent to peer that we want to request pieces if you unchoke us.
type InterestedMessage struct{ emptyMessage }

// NotInterestedMessage is sent to peer that we don't want any piece from you.
type NotInterestedMessage struct{ emptyMessage }

// ID returns the peer protocol message type.
func (m ChokeMessage) ID() MessageID { return Choke }

// ID returns the peer protocol message type.
func (m UnchokeMessage) ID() MessageID { return Unchoke }

// ID returns the peer protocol message type.
func (m InterestedMessage) ID() MessageID { return Interested }

// ID returns the peer protocol message type.
func (m NotInterestedMessage) ID() MessageID { return NotInterested }

// Encode returns the length prefixed wire form of m.
func Encode(m Message) []byte {
	payload := m.Payload()
	b := make([]byte, 5+len(payload))
	binary.BigEndian.PutUint32(b[0:4], uint32(1+len(payload)))
	b[4] = byte(m.ID())
	copy(b[5:], payload)
	return b
}

// EncodeKeepAlive returns the wire form of a keep-alive message.
func EncodeKeepAlive() []byte {
	return make([]byte, 4)
}

// Decode parses a frame body returned from MessageFrame.
// body must not be empty. Empty bodies are keep-alive messages.
// Data of returned piece and bitfield messages refers to body.
func Decode(body []byte) (Message, error) {
	id := MessageID(body[0])
	payload := body[1:]
	switch id {
	case Choke, Unchoke, Interested, NotInterested:
		if len(payload) != 0 {
			return nil, invalidPayload(id, len(payload))
		}
		switch id {
		case Choke:
			return ChokeMessage{}, nil
		case Unchoke:
			return UnchokeMessage{}, nil
		case Interested:
			return InterestedMessage{}, nil
		default:
			return NotInterestedMessage{}, nil
		}
	case Have:
		if len(payload) != 4 {
			return nil, invalidPayload(id, len(payload))
		}
		return HaveMessage{Index: binary.BigEndian.Uint32(payload)}, nil
	case Bitfield:
		return BitfieldMessage{Data: payload}, nil
	case Request, Cancel:
		if len(payload) != 12 {
			return nil, invalidPayload(id, len(payload))
		}
		rm := RequestMessage{
			Index:  binary.BigEndian.Uint32(payload[0:4]),
			Begin:  binary.BigEndian.Uint32(payload[4:8]),
			Length: binary.BigEndian.Uint32(payload[8:12]),
		}
		if id == Cancel {
			return CancelMessage{rm}, nil
		}
		return rm, nil
	case Piece:
		if len(payload) < 8 {
			return nil, invalidPayload(id, len(payload))
		}
		return PieceMessage{
			Index: binary.BigEndian.Uint32(payload[0:4]),
			Begin: binary.BigEndian.Uint32(payload[4:8]),
			Data:  payload[8:],
		}, nil
	case Port:
		if len(payload) != 2 {
			return nil, invalidPayload(id, len(payload))
		}
		return PortMessage{Port: binary.BigEndian.Uint16(payload)}, nil
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownMessage, id)
	}
}

func invalidPayload(id MessageID, length int) error {
	return fmt.Errorf("%w: %s message with %d bytes", ErrInvalidPayload, id, length)
}
