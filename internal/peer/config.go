package peer

import (
	"time"

	"github.com/cenkalti/drizzle/internal/bitfield"
)

// Config for Peer.
type Config struct {
	// Interval of keep-alive messages sent after handshake.
	KeepAlivePeriod time.Duration
	// Connection is dropped if handshakes are not exchanged in this duration after Connect.
	HandshakeTimeout time.Duration
	// Connection is dropped if nothing is received from the peer for this duration.
	KeepAliveTimeout time.Duration
	// Maximum number of block requests waiting for response, across all pieces of the peer.
	MaxPendingRequests int
}

// DefaultConfig for Peer.
var DefaultConfig = Config{
	HandshakeTimeout:   10 * time.Second,
	KeepAlivePeriod:    60 * time.Second,
	KeepAliveTimeout:   150 * time.Second,
	MaxPendingRequests: 20,
}

// HandshakeData is sent to the peer after the connection is established.
type HandshakeData struct {
	PeerID [20]byte
	DHT    bool
	// Bitfield is sent after the handshake if any piece is set.
	Bitfield *bitfield.Bitfield
}

// Handler receives events of a Peer. Methods are called on the goroutine that owns the Peer.
type Handler interface {
	// PeerConnected is called after handshakes are exchanged.
	PeerConnected(p *Peer)
	// PeerLost is called once when the connection is lost or dropped.
	// Failed pieces are reported with PeerFailedPiece before.
	PeerLost(p *Peer)
	// PeerHasNewPieces is called when the peer advertises pieces with bitfield or have messages.
	PeerHasNewPieces(p *Peer)
	// PeerUnchoked is called when the peer allows us to request blocks again.
	PeerUnchoked(p *Peer)
	PeerGotPiece(p *Peer, index uint32, data []byte)
	PeerFailedPiece(p *Peer, index uint32)
	// ReadPiece reads data of a piece requested by the peer. done must be called on the goroutine that owns the Peer,
	// possibly before ReadPiece returns.
	ReadPiece(index uint32, done func(data []byte, err error))
}
