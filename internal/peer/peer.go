// Package peer implements the state machine of a single remote peer.
//
// A Peer turns piece assignments into bounded block requests and answers block
// requests of the remote with serialized piece messages. All methods and
// callbacks of a Peer must run on the same goroutine.
package peer

import (
	"errors"

	"github.com/rcrowley/go-metrics"

	"github.com/cenkalti/drizzle/internal/bitfield"
	"github.com/cenkalti/drizzle/internal/eventloop"
	"github.com/cenkalti/drizzle/internal/logger"
	"github.com/cenkalti/drizzle/internal/peerconn"
	"github.com/cenkalti/drizzle/internal/peerinfo"
	"github.com/cenkalti/drizzle/internal/piecedownloader"
	"github.com/cenkalti/drizzle/internal/pieceuploader"
)

var errClosed = errors.New("peer is closed")

// Peer is a remote peer that we exchange pieces with.
type Peer struct {
	Source Source

	info      peerinfo.Info
	conn      *peerconn.Conn
	numPieces uint32
	handler   Handler
	scheduler eventloop.Scheduler
	config    Config
	log       logger.Logger

	id       [20]byte
	client   string
	bitfield *bitfield.Bitfield

	// connection state
	connected     bool
	established   bool
	closed        bool
	handshake     HandshakeData
	handshakeSent bool
	gotHandshake  bool

	peerChoked     bool // peer is choking us
	peerInterested bool // peer is interested in us
	amChoking      bool // we are choking the peer
	amInterested   bool // we are interested in the peer

	downloads  []*piecedownloader.PieceDownloader
	numPending int

	uploads   []*pieceuploader.PieceUploader
	reads     []*pieceRead
	uploading bool
	uploadGen uint64

	keepAliveTimer eventloop.Timer
	watchdogTimer  eventloop.Timer

	downloadSpeed   metrics.Meter
	uploadSpeed     metrics.Meter
	bytesDownloaded int64
	bytesUploaded   int64
}

// New returns a disconnected Peer talking through conn. Events of conn are handled by the returned Peer.
func New(conn *peerconn.Conn, source Source, numPieces uint32, h Handler, s eventloop.Scheduler, cfg Config, l logger.Logger) *Peer {
	p := &Peer{
		Source:        source,
		info:          conn.Info(),
		conn:          conn,
		numPieces:     numPieces,
		handler:       h,
		scheduler:     s,
		config:        cfg,
		log:           l,
		bitfield:      bitfield.New(numPieces),
		peerChoked:    true,
		amChoking:     true,
		downloadSpeed: metrics.NewMeter(),
		uploadSpeed:   metrics.NewMeter(),
	}
	conn.SetHandler((*connHandler)(p))
	return p
}

func (p *Peer) String() string {
	return p.info.String()
}

// Info returns the address of the peer.
func (p *Peer) Info() peerinfo.Info { return p.info }

// ID returns the peer id received in handshake.
func (p *Peer) ID() [20]byte { return p.id }

// Client returns the prefix of the peer id that identifies the client software, if known.
func (p *Peer) Client() string { return p.client }

// Connect stores the handshake to send and opens the connection if it is not open yet.
// The handshake is sent as soon as the transport is connected.
func (p *Peer) Connect(hs HandshakeData) error {
	if p.closed {
		return errClosed
	}
	if p.connected {
		return nil
	}
	p.handshake = hs
	p.connected = true
	p.watchdogTimer = p.scheduler.AfterFunc(p.config.HandshakeTimeout, p.watchdogExpired)
	if p.conn.Connected() {
		p.sendHandshake()
		return nil
	}
	err := p.conn.Connect()
	if err != nil {
		p.log.Debugln("cannot connect:", err)
		p.lost()
		return err
	}
	return nil
}

// Disconnect closes the connection. Handler.PeerLost is called before Disconnect returns
// unless the peer is already lost.
func (p *Peer) Disconnect() {
	if p.closed {
		return
	}
	p.conn.Disconnect()
	p.lost()
}

// Connected returns true if Connect is called and the peer is not lost yet.
func (p *Peer) Connected() bool { return p.connected && !p.closed }

// Established returns true after handshakes are exchanged in both directions.
func (p *Peer) Established() bool { return p.established && !p.closed }

// Closed returns true after the peer is lost.
func (p *Peer) Closed() bool { return p.closed }

// Bitfield returns the pieces that the peer has. It must not be modified by the caller.
func (p *Peer) Bitfield() *bitfield.Bitfield { return p.bitfield }

// IsSeed returns true if the peer has all pieces.
func (p *Peer) IsSeed() bool { return p.bitfield.All() }

// PeerChoked returns true if the peer is choking us.
func (p *Peer) PeerChoked() bool { return p.peerChoked }

// PeerInterested returns true if the peer is interested in our pieces.
func (p *Peer) PeerInterested() bool { return p.peerInterested }

// AmChoking returns true if we are choking the peer.
func (p *Peer) AmChoking() bool { return p.amChoking }

// AmInterested returns true if we have told the peer that we are interested.
func (p *Peer) AmInterested() bool { return p.amInterested }

// DownloadSpeed returns the download rate from this peer in bytes per second.
func (p *Peer) DownloadSpeed() float64 { return p.downloadSpeed.Rate1() }

// UploadSpeed returns the upload rate to this peer in bytes per second.
func (p *Peer) UploadSpeed() float64 { return p.uploadSpeed.Rate1() }

// BytesDownloaded returns the number of bytes received in piece messages that matched a request.
func (p *Peer) BytesDownloaded() int64 { return p.bytesDownloaded }

// BytesUploaded returns the number of bytes sent in piece messages.
func (p *Peer) BytesUploaded() int64 { return p.bytesUploaded }

// SendHave announces a newly completed piece to the peer.
func (p *Peer) SendHave(index uint32) {
	if !p.Established() {
		return
	}
	p.conn.SendHave(index, nil)
}

func (p *Peer) sendHandshake() {
	if p.handshakeSent {
		return
	}
	p.handshakeSent = true
	p.conn.SendHandshake(p.handshake.PeerID, p.handshake.DHT, nil)
	p.maybeEstablish()
}

// maybeEstablish is called when one of the conditions for the connection to be usable changes.
func (p *Peer) maybeEstablish() {
	if p.established || p.closed || !p.handshakeSent || !p.gotHandshake {
		return
	}
	p.established = true
	p.log.Debugln("connection established, client:", p.client)
	if bf := p.handshake.Bitfield; bf != nil && bf.Count() > 0 {
		p.conn.SendBitfield(bf.Bytes(), nil)
	}
	p.keepAliveTimer = p.scheduler.AfterFunc(p.config.KeepAlivePeriod, p.keepAliveTick)
	p.watchdogTimer.Reset(p.config.KeepAliveTimeout)
	if p.peerInterested {
		p.unchoke()
	}
	p.handler.PeerConnected(p)
	if p.closed {
		return
	}
	if len(p.downloads) > 0 {
		p.sendInterested()
		p.requestBlocks()
	}
	if p.bitfield.Count() > 0 {
		p.handler.PeerHasNewPieces(p)
	}
}

func (p *Peer) keepAliveTick() {
	if !p.Established() {
		return
	}
	p.conn.SendKeepAlive(nil)
	p.keepAliveTimer.Reset(p.config.KeepAlivePeriod)
}

// touch is called on every inbound message and postpones the watchdog.
func (p *Peer) touch() {
	if p.established && !p.closed {
		p.watchdogTimer.Reset(p.config.KeepAliveTimeout)
	}
}

func (p *Peer) watchdogExpired() {
	if p.closed {
		return
	}
	if p.established {
		p.log.Infoln("peer timed out")
	} else {
		p.log.Infoln("handshake timeout")
	}
	p.Disconnect()
}

func (p *Peer) unchoke() {
	p.amChoking = false
	p.conn.SendUnchoke(nil)
}

// lost releases all state of the connection and notifies the handler once.
func (p *Peer) lost() {
	if p.closed {
		return
	}
	p.closed = true
	if p.keepAliveTimer != nil {
		p.keepAliveTimer.Stop()
	}
	if p.watchdogTimer != nil {
		p.watchdogTimer.Stop()
	}
	p.failDownloads()
	p.cancelUploads()
	p.downloadSpeed.Stop()
	p.uploadSpeed.Stop()
	p.handler.PeerLost(p)
}
