// Package transporttest provides an in-memory transport for tests of peer connections.
package transporttest

import (
	"errors"

	"github.com/cenkalti/drizzle/internal/peerprotocol"
	"github.com/cenkalti/drizzle/internal/transport"
)

// ErrClosed is reported when the test transport is disconnected locally.
var ErrClosed = errors.New("test transport closed")

// Handshake is a handshake found in the written bytes.
type Handshake struct {
	InfoHash [20]byte
	PeerID   [20]byte
}

// KeepAlive is a keep-alive found in the written bytes.
type KeepAlive struct{}

// Transport records writes and lets the test drive connection events synchronously.
type Transport struct {
	Handler transport.Handler

	ConnectErr error
	// HoldWrites delays write completions until CompleteWrites is called.
	HoldWrites bool

	ConnectCalls    int
	DisconnectCalls int
	IsConnected     bool
	Written         [][]byte

	pending []func()
}

var _ transport.Transport = (*Transport)(nil)

// New returns a disconnected Transport.
func New() *Transport {
	return &Transport{}
}

// SetHandler implements transport.Transport.
func (t *Transport) SetHandler(h transport.Handler) { t.Handler = h }

// Connect implements transport.Transport. Connection completes when the test calls SimulateConnect.
func (t *Transport) Connect(host string, port int) error {
	t.ConnectCalls++
	return t.ConnectErr
}

// Disconnect implements transport.Transport.
func (t *Transport) Disconnect() {
	t.DisconnectCalls++
	if t.IsConnected {
		t.IsConnected = false
		t.pending = nil
		t.Handler.TransportDisconnected(ErrClosed)
	}
}

// Connected implements transport.Transport.
func (t *Transport) Connected() bool { return t.IsConnected }

// Write implements transport.Transport.
func (t *Transport) Write(b []byte, done func()) {
	if !t.IsConnected {
		return
	}
	t.Written = append(t.Written, b)
	if done == nil {
		return
	}
	if t.HoldWrites {
		t.pending = append(t.pending, done)
		return
	}
	done()
}

// NumPendingWrites returns the number of writes waiting for CompleteWrites.
func (t *Transport) NumPendingWrites() int { return len(t.pending) }

// CompleteWrites runs completion callbacks of held writes in order.
// Writes made from callbacks are completed in the same call.
func (t *Transport) CompleteWrites() {
	for len(t.pending) > 0 {
		f := t.pending[0]
		t.pending = t.pending[1:]
		f()
	}
}

// CompleteOneWrite runs the oldest held completion callback.
func (t *Transport) CompleteOneWrite() bool {
	if len(t.pending) == 0 {
		return false
	}
	f := t.pending[0]
	t.pending = t.pending[1:]
	f()
	return true
}

// SimulateConnect marks the transport connected and notifies the handler.
func (t *Transport) SimulateConnect() {
	t.IsConnected = true
	t.Handler.TransportConnected()
}

// SimulateData delivers b to the handler.
func (t *Transport) SimulateData(b []byte) {
	t.Handler.TransportData(b)
}

// SimulateMessage delivers an encoded message to the handler.
func (t *Transport) SimulateMessage(msg peerprotocol.Message) {
	t.Handler.TransportData(peerprotocol.Encode(msg))
}

// SimulateDisconnect drops the connection from the remote side.
func (t *Transport) SimulateDisconnect(err error) {
	t.IsConnected = false
	t.pending = nil
	t.Handler.TransportDisconnected(err)
}

// Messages decodes the written bytes. Each element is a Handshake, a KeepAlive or a peerprotocol.Message.
func (t *Transport) Messages() []interface{} {
	var msgs []interface{}
	for _, b := range t.Written {
		if len(b) == peerprotocol.HandshakeLength && b[0] == byte(len(peerprotocol.ProtocolName)) {
			var h Handshake
			copy(h.InfoHash[:], b[28:48])
			copy(h.PeerID[:], b[48:68])
			msgs = append(msgs, h)
			continue
		}
		if len(b) == 4 {
			msgs = append(msgs, KeepAlive{})
			continue
		}
		msg, err := peerprotocol.Decode(b[4:])
		if err != nil {
			panic(err)
		}
		msgs = append(msgs, msg)
	}
	return msgs
}

// Reset forgets written bytes.
func (t *Transport) Reset() {
	t.Written = nil
}
