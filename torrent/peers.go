package torrent

import (
	"net"

	"github.com/cenkalti/drizzle/internal/logger"
	"github.com/cenkalti/drizzle/internal/peer"
	"github.com/cenkalti/drizzle/internal/peerconn"
	"github.com/cenkalti/drizzle/internal/peerinfo"
	"github.com/cenkalti/drizzle/internal/peermanager"
	"github.com/cenkalti/drizzle/internal/transport"
	"github.com/cenkalti/drizzle/internal/transport/tcptransport"
)

func (t *Torrent) peerConfig() peer.Config {
	return peer.Config{
		KeepAlivePeriod:    t.config.KeepAlivePeriod,
		HandshakeTimeout:   t.config.HandshakeTimeout,
		KeepAliveTimeout:   t.config.KeepAliveTimeout,
		MaxPendingRequests: t.config.MaxPendingRequests,
	}
}

// newPeer implements peermanager.NewPeerFunc for outgoing connections.
func (t *Torrent) newPeer(info peerinfo.Info, source peer.Source, h peer.Handler) *peer.Peer {
	l := logger.New("peer " + info.Addr())
	tr := tcptransport.New(t.loop.Post, t.transportConfig, l)
	return t.buildPeer(info, tr, source, h, l)
}

func (t *Torrent) buildPeer(info peerinfo.Info, tr transport.Transport, source peer.Source, h peer.Handler, l logger.Logger) *peer.Peer {
	conn := peerconn.New(info, t.info.Hash, tr, l)
	return peer.New(conn, source, t.info.NumPieces, h, t.loop, t.peerConfig(), l)
}

// handleConn is called by the acceptor for each incoming connection.
func (t *Torrent) handleConn(conn net.Conn) {
	addr, ok := conn.RemoteAddr().(*net.TCPAddr)
	if !ok {
		_ = conn.Close()
		return
	}
	ok = t.loop.Post(func() {
		if t.peers.NumConnected() >= t.config.MaxConnectedPeers {
			t.log.Debugln("peer limit reached, rejecting connection from", addr.String())
			_ = conn.Close()
			return
		}
		info := peerinfo.FromTCPAddr(addr)
		l := logger.New("peer <- " + info.Addr())
		tr := tcptransport.NewConn(conn, t.loop.Post, t.transportConfig, l)
		t.peers.AddPeer(t.buildPeer(info, tr, peer.SourceIncoming, t.peers, l))
	})
	if !ok {
		_ = conn.Close()
	}
}

// forwardPeers adds peers received from announcers to the peer manager.
func (t *Torrent) forwardPeers(stopC chan struct{}) {
	for {
		select {
		case infos := <-t.newPeersC:
			t.loop.Post(func() {
				t.peers.AddPeers(infos, peer.SourceTracker)
			})
		case <-stopC:
			return
		}
	}
}

// peerSource asks announcers for more peers when the peer manager runs low.
type peerSource Torrent

var _ peermanager.PeerSource = (*peerSource)(nil)

func (s *peerSource) NeedMorePeers() {
	for _, a := range s.announcers {
		a.NeedMorePeers()
	}
}
