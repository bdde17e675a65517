// Package peerconn translates between peer protocol messages and the bytes of a transport.
package peerconn

import (
	"github.com/cenkalti/drizzle/internal/logger"
	"github.com/cenkalti/drizzle/internal/peerinfo"
	"github.com/cenkalti/drizzle/internal/peerprotocol"
	"github.com/cenkalti/drizzle/internal/transport"
)

// Handler receives decoded events of a Conn.
// Methods are called on the goroutine that owns the transport.
type Handler interface {
	Connected()
	Disconnected(err error)
	GotHandshake(peerID [20]byte, dht bool)
	GotKeepAlive()
	GotChoke()
	GotUnchoke()
	GotInterested()
	GotNotInterested()
	GotHave(index uint32)
	GotBitfield(b []byte)
	GotRequest(index, begin, length uint32)
	GotPiece(index, begin uint32, data []byte)
	GotCancel(index, begin, length uint32)
	GotPort(port uint16)
	// GotMalformed is called for an invalid handshake or a message that cannot be decoded.
	GotMalformed(err error)
}

// Conn is a peer connection that encodes outgoing messages and decodes incoming bytes.
// Before the handshake is received, all bytes go to the handshake frame.
// After that, the rest of the stream is split into messages.
type Conn struct {
	info      peerinfo.Info
	infoHash  [20]byte
	transport transport.Transport
	handler   Handler
	log       logger.Logger

	handshake     *peerprotocol.HandshakeFrame
	messages      peerprotocol.MessageFrame
	gotHandshake  bool
	badHandshake  bool
	badMessage    bool
	disconnecting bool
}

var _ transport.Handler = (*Conn)(nil)

// New returns a Conn to the peer on t. SetHandler must be called before any event arrives.
func New(info peerinfo.Info, infoHash [20]byte, t transport.Transport, l logger.Logger) *Conn {
	return &Conn{
		info:      info,
		infoHash:  infoHash,
		transport: t,
		log:       l,
		handshake: peerprotocol.NewHandshakeFrame(infoHash, info.ID),
	}
}

// SetHandler sets the receiver of decoded events.
func (c *Conn) SetHandler(h Handler) {
	c.handler = h
	c.transport.SetHandler(c)
}

// Info returns the peer this Conn talks to.
func (c *Conn) Info() peerinfo.Info { return c.info }

// Connect opens the transport to the peer address.
func (c *Conn) Connect() error {
	c.disconnecting = false
	return c.transport.Connect(c.info.IP, c.info.Port)
}

// Disconnect closes the transport. No more events are delivered except Disconnected.
func (c *Conn) Disconnect() {
	c.disconnecting = true
	c.transport.Disconnect()
}

// Connected returns true if the transport is open.
func (c *Conn) Connected() bool {
	return c.transport.Connected()
}

// TransportConnected implements transport.Handler.
func (c *Conn) TransportConnected() {
	c.handler.Connected()
}

// TransportDisconnected implements transport.Handler.
func (c *Conn) TransportDisconnected(err error) {
	c.handler.Disconnected(err)
}

// TransportData implements transport.Handler.
func (c *Conn) TransportData(b []byte) {
	if c.disconnecting {
		return
	}
	if !c.gotHandshake {
		if c.badHandshake {
			return
		}
		h, err := c.handshake.Append(b)
		if err != nil {
			c.badHandshake = true
			c.handler.GotMalformed(err)
			return
		}
		if h == nil {
			return
		}
		c.gotHandshake = true
		c.handler.GotHandshake(h.PeerID, h.DHT)
		b = h.Remainder
		if len(b) == 0 {
			return
		}
	}
	if c.badMessage {
		return
	}
	bodies, err := c.messages.Append(b)
	for _, body := range bodies {
		if c.disconnecting {
			return
		}
		c.dispatch(body)
	}
	if err != nil && !c.disconnecting {
		c.badMessage = true
		c.handler.GotMalformed(err)
	}
}

func (c *Conn) dispatch(body []byte) {
	if len(body) == 0 {
		c.handler.GotKeepAlive()
		return
	}
	msg, err := peerprotocol.Decode(body)
	if err != nil {
		c.handler.GotMalformed(err)
		return
	}
	switch msg := msg.(type) {
	case peerprotocol.ChokeMessage:
		c.handler.GotChoke()
	case peerprotocol.UnchokeMessage:
		c.handler.GotUnchoke()
	case peerprotocol.InterestedMessage:
		c.handler.GotInterested()
	case peerprotocol.NotInterestedMessage:
		c.handler.GotNotInterested()
	case peerprotocol.HaveMessage:
		c.handler.GotHave(msg.Index)
	case peerprotocol.BitfieldMessage:
		c.handler.GotBitfield(msg.Data)
	case peerprotocol.RequestMessage:
		c.handler.GotRequest(msg.Index, msg.Begin, msg.Length)
	case peerprotocol.PieceMessage:
		c.handler.GotPiece(msg.Index, msg.Begin, msg.Data)
	case peerprotocol.CancelMessage:
		c.handler.GotCancel(msg.Index, msg.Begin, msg.Length)
	case peerprotocol.PortMessage:
		c.handler.GotPort(msg.Port)
	}
}

func (c *Conn) send(msg peerprotocol.Message, done func()) {
	c.transport.Write(peerprotocol.Encode(msg), done)
}

// SendHandshake sends the handshake with our peer id.
func (c *Conn) SendHandshake(peerID [20]byte, dht bool, done func()) {
	c.transport.Write(peerprotocol.EncodeHandshake(c.infoHash, peerID, dht), done)
}

// SendKeepAlive sends a zero length message.
func (c *Conn) SendKeepAlive(done func()) {
	c.transport.Write(peerprotocol.EncodeKeepAlive(), done)
}

// SendChoke sends choke message.
func (c *Conn) SendChoke(done func()) { c.send(peerprotocol.ChokeMessage{}, done) }

// SendUnchoke sends unchoke message.
func (c *Conn) SendUnchoke(done func()) { c.send(peerprotocol.UnchokeMessage{}, done) }

// SendInterested sends interested message.
func (c *Conn) SendInterested(done func()) { c.send(peerprotocol.InterestedMessage{}, done) }

// SendNotInterested sends not interested message.
func (c *Conn) SendNotInterested(done func()) { c.send(peerprotocol.NotInterestedMessage{}, done) }

// SendHave sends have message for piece.
func (c *Conn) SendHave(index uint32, done func()) {
	c.send(peerprotocol.HaveMessage{Index: index}, done)
}

// SendBitfield sends the bitfield in wire form.
func (c *Conn) SendBitfield(b []byte, done func()) {
	c.send(peerprotocol.BitfieldMessage{Data: b}, done)
}

// SendRequest requests a block.
func (c *Conn) SendRequest(index, begin, length uint32, done func()) {
	c.send(peerprotocol.RequestMessage{Index: index, Begin: begin, Length: length}, done)
}

// SendPiece sends block data.
func (c *Conn) SendPiece(index, begin uint32, data []byte, done func()) {
	c.send(peerprotocol.PieceMessage{Index: index, Begin: begin, Data: data}, done)
}

// SendCancel cancels a previously requested block.
func (c *Conn) SendCancel(index, begin, length uint32, done func()) {
	c.send(peerprotocol.CancelMessage{RequestMessage: peerprotocol.RequestMessage{Index: index, Begin: begin, Length: length}}, done)
}
