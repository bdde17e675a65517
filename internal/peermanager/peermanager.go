// Package peermanager keeps a bounded set of peers connected and assigns pieces to them.
package peermanager

import (
	"github.com/cenkalti/drizzle/internal/bitfield"
	"github.com/cenkalti/drizzle/internal/logger"
	"github.com/cenkalti/drizzle/internal/peer"
	"github.com/cenkalti/drizzle/internal/peerinfo"
)

// Config for PeerManager.
type Config struct {
	// Do not connect more than this many peers at once.
	MaxConnectedPeers int
	// Ask for more peer addresses when connected peers drop below this number.
	MinConnectedPeers int
	// Number of pieces downloaded from a single peer concurrently.
	MaxPiecesPerPeer int
}

// DefaultConfig for PeerManager.
var DefaultConfig = Config{
	MaxConnectedPeers: 20,
	MinConnectedPeers: 5,
	MaxPiecesPerPeer:  2,
}

// Progress is the torrent wide piece state consumed by PeerManager.
type Progress interface {
	// NextPieceToDownload claims a missing piece from the available set.
	NextPieceToDownload(available *bitfield.Bitfield) (index, length uint32, ok bool)
	// PieceDownloaded is called with the assembled data of a claimed piece.
	PieceDownloaded(index uint32, data []byte)
	// PieceFailed releases the claim on a piece so it can be downloaded again.
	PieceFailed(index uint32)
	// Bitfield returns a copy of the pieces we have.
	Bitfield() *bitfield.Bitfield
	// ReadPiece reads data of a piece that we have and calls done with it on the goroutine of PeerManager.
	ReadPiece(index uint32, done func(data []byte, err error))
}

// PeerSource supplies peer addresses.
type PeerSource interface {
	// NeedMorePeers is a hint that new addresses should be added with AddPeers soon.
	NeedMorePeers()
}

// NewPeerFunc returns a disconnected Peer for the address. Events of the Peer must be sent to h.
type NewPeerFunc func(info peerinfo.Info, source peer.Source, h peer.Handler) *peer.Peer

// PeerManager owns the peers of a torrent.
// All methods must be called from the goroutine that runs peer callbacks.
type PeerManager struct {
	config   Config
	peerID   [20]byte
	dht      bool
	progress Progress
	source   PeerSource
	newPeer  NewPeerFunc
	log      logger.Logger

	// connected and waiting peers in the order they are added
	peers  []*peer.Peer
	closed bool

	// transfer counters of peers that are removed
	lostDownloaded int64
	lostUploaded   int64
}

var _ peer.Handler = (*PeerManager)(nil)

// New returns a PeerManager that identifies itself with peerID in handshakes.
func New(cfg Config, peerID [20]byte, dht bool, progress Progress, source PeerSource, newPeer NewPeerFunc, l logger.Logger) *PeerManager {
	return &PeerManager{
		config:   cfg,
		peerID:   peerID,
		dht:      dht,
		progress: progress,
		source:   source,
		newPeer:  newPeer,
		log:      l,
	}
}

// AddPeers adds new peer addresses. Addresses that are already known are ignored.
// New peers are connected as long as there is room below MaxConnectedPeers,
// the rest waits until a connected peer is lost.
func (m *PeerManager) AddPeers(infos []peerinfo.Info, source peer.Source) {
	if m.closed {
		return
	}
	added := make([]*peer.Peer, 0, len(infos))
	for _, info := range infos {
		if m.known(info) {
			continue
		}
		p := m.newPeer(info, source, m)
		m.peers = append(m.peers, p)
		added = append(added, p)
	}
	m.log.Debugf("added %d new peers from %s", len(added), source)
	for _, p := range added {
		if m.closed || m.NumConnected() >= m.config.MaxConnectedPeers {
			break
		}
		if p.Connected() || p.Closed() {
			continue
		}
		m.connect(p)
	}
	m.checkMinPeers()
}

// AddPeer admits a Peer whose transport is already open, such as an accepted connection.
// The Peer must be created with the PeerManager as its Handler.
func (m *PeerManager) AddPeer(p *peer.Peer) {
	if m.closed {
		p.Disconnect()
		return
	}
	m.peers = append(m.peers, p)
	m.connect(p)
}

// HaveNewPiece announces a verified piece to all peers.
func (m *PeerManager) HaveNewPiece(index uint32) {
	for _, p := range m.peers {
		p.SendHave(index)
	}
}

// PieceAvailable schedules downloads on idle peers. It is called when a failed piece
// becomes available for download again.
func (m *PeerManager) PieceAvailable() {
	m.scheduleAll()
}

// Close disconnects all peers. Peers added later are dropped.
func (m *PeerManager) Close() {
	m.closed = true
	peers := append([]*peer.Peer(nil), m.peers...)
	for _, p := range peers {
		p.Disconnect()
	}
	m.peers = nil
}

// Peers returns the connected peers.
func (m *PeerManager) Peers() []*peer.Peer {
	peers := make([]*peer.Peer, 0, len(m.peers))
	for _, p := range m.peers {
		if p.Connected() {
			peers = append(peers, p)
		}
	}
	return peers
}

// NumPeers returns the number of connected and waiting peers.
func (m *PeerManager) NumPeers() int { return len(m.peers) }

// NumConnected returns the number of connected peers.
func (m *PeerManager) NumConnected() int {
	var n int
	for _, p := range m.peers {
		if p.Connected() {
			n++
		}
	}
	return n
}

// NumSeeds returns the number of connected peers that have all pieces.
func (m *PeerManager) NumSeeds() int {
	var n int
	for _, p := range m.peers {
		if p.Connected() && p.IsSeed() {
			n++
		}
	}
	return n
}

// DownloadSpeed is the sum of download rates of connected peers in bytes per second.
func (m *PeerManager) DownloadSpeed() float64 {
	var speed float64
	for _, p := range m.peers {
		if p.Connected() {
			speed += p.DownloadSpeed()
		}
	}
	return speed
}

// UploadSpeed is the sum of upload rates of connected peers in bytes per second.
func (m *PeerManager) UploadSpeed() float64 {
	var speed float64
	for _, p := range m.peers {
		if p.Connected() {
			speed += p.UploadSpeed()
		}
	}
	return speed
}

// BytesDownloaded returns the number of piece bytes received from all peers, including lost ones.
func (m *PeerManager) BytesDownloaded() int64 {
	n := m.lostDownloaded
	for _, p := range m.peers {
		n += p.BytesDownloaded()
	}
	return n
}

// BytesUploaded returns the number of piece bytes sent to all peers, including lost ones.
func (m *PeerManager) BytesUploaded() int64 {
	n := m.lostUploaded
	for _, p := range m.peers {
		n += p.BytesUploaded()
	}
	return n
}

func (m *PeerManager) known(info peerinfo.Info) bool {
	for _, p := range m.peers {
		if p.Info().Equal(info) {
			return true
		}
	}
	return false
}

func (m *PeerManager) connect(p *peer.Peer) {
	err := p.Connect(peer.HandshakeData{
		PeerID:   m.peerID,
		DHT:      m.dht,
		Bitfield: m.progress.Bitfield(),
	})
	if err != nil {
		m.log.Debugln("cannot connect to peer:", p.String(), err)
	}
}

// connectWaiting connects waiting peers until the limit is reached.
func (m *PeerManager) connectWaiting() {
	for i := 0; i < len(m.peers); i++ {
		if m.closed || m.NumConnected() >= m.config.MaxConnectedPeers {
			return
		}
		p := m.peers[i]
		if p.Connected() || p.Closed() {
			continue
		}
		m.connect(p)
	}
}

func (m *PeerManager) checkMinPeers() {
	if m.closed {
		return
	}
	if m.NumConnected() < m.config.MinConnectedPeers {
		m.source.NeedMorePeers()
	}
}

// schedule assigns pieces to the peer until it reaches MaxPiecesPerPeer.
func (m *PeerManager) schedule(p *peer.Peer) {
	if m.closed || !p.Established() {
		return
	}
	// A choking peer holds no pieces. It is only told that we are interested.
	if p.PeerChoked() {
		if !p.AmInterested() && m.interesting(p) {
			p.ExpressInterest()
		}
		return
	}
	for p.NumDownloading() < m.config.MaxPiecesPerPeer {
		index, length, ok := m.progress.NextPieceToDownload(p.Bitfield())
		if !ok {
			return
		}
		p.DownloadPiece(index, length)
		if p.Closed() {
			return
		}
	}
}

// interesting returns true if the peer has any piece that we do not have.
func (m *PeerManager) interesting(p *peer.Peer) bool {
	have := m.progress.Bitfield()
	bf := p.Bitfield()
	for i := uint32(0); i < bf.Len(); i++ {
		if bf.Test(i) && !have.Test(i) {
			return true
		}
	}
	return false
}

func (m *PeerManager) scheduleAll() {
	peers := append([]*peer.Peer(nil), m.peers...)
	for _, p := range peers {
		m.schedule(p)
	}
}

func (m *PeerManager) remove(p *peer.Peer) bool {
	for i, q := range m.peers {
		if q == p {
			copy(m.peers[i:], m.peers[i+1:])
			m.peers[len(m.peers)-1] = nil
			m.peers = m.peers[:len(m.peers)-1]
			return true
		}
	}
	return false
}
