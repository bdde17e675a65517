package peer

import (
	"github.com/cenkalti/drizzle/internal/piecedownloader"
)

// DownloadPiece starts downloading the piece from the peer.
// Blocks are requested as long as the peer does not choke us.
func (p *Peer) DownloadPiece(index, length uint32) {
	if p.closed {
		return
	}
	p.downloads = append(p.downloads, piecedownloader.New(index, length))
	if !p.established {
		return
	}
	p.sendInterested()
	p.requestBlocks()
}

// NumDownloading returns the number of pieces being downloaded from the peer.
func (p *Peer) NumDownloading() int { return len(p.downloads) }

// Downloading returns true if the piece is being downloaded from the peer.
func (p *Peer) Downloading(index uint32) bool {
	return p.downloadIndex(index) != -1
}

// ExpressInterest sends interested message if it is not sent before.
// Pieces can be assigned with DownloadPiece after the peer unchokes us.
func (p *Peer) ExpressInterest() {
	if !p.Established() {
		return
	}
	p.sendInterested()
}

func (p *Peer) sendInterested() {
	if p.amInterested {
		return
	}
	p.amInterested = true
	p.conn.SendInterested(nil)
}

// requestBlocks sends requests until the limit of pending requests is reached.
// Blocks of a piece are all requested before moving to the next piece.
func (p *Peer) requestBlocks() {
	if !p.established || p.closed || p.peerChoked {
		return
	}
	for _, d := range p.downloads {
		for p.numPending < p.config.MaxPendingRequests {
			b, ok := d.NextBlock()
			if !ok {
				break
			}
			p.numPending++
			p.conn.SendRequest(b.Index, b.Begin, b.Length, nil)
		}
		if p.numPending >= p.config.MaxPendingRequests {
			return
		}
	}
}

func (p *Peer) gotBlock(index, begin uint32, data []byte) {
	i := p.downloadIndex(index)
	if i == -1 {
		p.log.Debugln("received unrequested piece:", index)
		return
	}
	d := p.downloads[i]
	if !d.GotBlock(begin, data) {
		p.log.Debugln("received unrequested block, piece:", index, "begin:", begin)
		return
	}
	p.numPending--
	p.bytesDownloaded += int64(len(data))
	p.downloadSpeed.Mark(int64(len(data)))
	if d.Done() {
		p.removeDownload(i)
		p.handler.PeerGotPiece(p, index, d.Bytes())
	}
	p.requestBlocks()
}

// failDownloads reports every piece in flight as failed and forgets them.
func (p *Peer) failDownloads() {
	downloads := p.downloads
	p.downloads = nil
	p.numPending = 0
	for _, d := range downloads {
		p.handler.PeerFailedPiece(p, d.Index)
	}
}

func (p *Peer) downloadIndex(index uint32) int {
	for i, d := range p.downloads {
		if d.Index == index {
			return i
		}
	}
	return -1
}

func (p *Peer) removeDownload(i int) {
	copy(p.downloads[i:], p.downloads[i+1:])
	p.downloads[len(p.downloads)-1] = nil
	p.downloads = p.downloads[:len(p.downloads)-1]
}
