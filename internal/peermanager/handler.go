package peermanager

import (
	"github.com/cenkalti/drizzle/internal/peer"
)

// PeerConnected implements peer.Handler.
func (m *PeerManager) PeerConnected(p *peer.Peer) {
	m.log.Debugln("peer connected:", p.String(), p.Client())
}

// PeerLost implements peer.Handler.
func (m *PeerManager) PeerLost(p *peer.Peer) {
	if !m.remove(p) {
		return
	}
	m.lostDownloaded += p.BytesDownloaded()
	m.lostUploaded += p.BytesUploaded()
	m.log.Debugln("peer disconnected:", p.String())
	m.connectWaiting()
	m.checkMinPeers()
}

// PeerHasNewPieces implements peer.Handler.
func (m *PeerManager) PeerHasNewPieces(p *peer.Peer) {
	m.schedule(p)
}

// PeerUnchoked implements peer.Handler.
func (m *PeerManager) PeerUnchoked(p *peer.Peer) {
	m.schedule(p)
}

// PeerGotPiece implements peer.Handler.
func (m *PeerManager) PeerGotPiece(p *peer.Peer, index uint32, data []byte) {
	m.progress.PieceDownloaded(index, data)
	m.schedule(p)
}

// PeerFailedPiece implements peer.Handler.
func (m *PeerManager) PeerFailedPiece(p *peer.Peer, index uint32) {
	m.progress.PieceFailed(index)
	m.scheduleAll()
}

// ReadPiece implements peer.Handler.
func (m *PeerManager) ReadPiece(index uint32, done func(data []byte, err error)) {
	m.progress.ReadPiece(index, done)
}
