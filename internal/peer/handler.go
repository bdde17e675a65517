package peer

import (
	"errors"

	"github.com/cenkalti/drizzle/internal/bitfield"
	"github.com/cenkalti/drizzle/internal/peerconn"
)

var (
	errInvalidPieceIndex = errors.New("invalid piece index")
	errInvalidBitfield   = errors.New("invalid bitfield length")
	errSpareBits         = errors.New("spare bits are set in bitfield")
	errInvalidRequest    = errors.New("request is outside of piece")
)

// connHandler receives events of the connection on behalf of a Peer.
type connHandler Peer

var _ peerconn.Handler = (*connHandler)(nil)

func (h *connHandler) peer() *Peer { return (*Peer)(h) }

func (h *connHandler) Connected() {
	p := h.peer()
	if p.closed {
		return
	}
	p.sendHandshake()
}

func (h *connHandler) Disconnected(err error) {
	p := h.peer()
	if p.closed {
		return
	}
	p.log.Debugln("disconnected:", err)
	p.lost()
}

func (h *connHandler) GotHandshake(peerID [20]byte, dht bool) {
	p := h.peer()
	p.id = peerID
	p.client = clientID(string(peerID[:]))
	p.gotHandshake = true
	p.maybeEstablish()
}

func (h *connHandler) GotMalformed(err error) {
	p := h.peer()
	p.log.Debugln("malformed message:", err)
	p.Disconnect()
}

func (h *connHandler) GotKeepAlive() {
	h.peer().touch()
}

func (h *connHandler) GotChoke() {
	p := h.peer()
	p.touch()
	p.peerChoked = true
	p.cancelUploads()
	p.failDownloads()
}

func (h *connHandler) GotUnchoke() {
	p := h.peer()
	p.touch()
	if !p.peerChoked {
		return
	}
	p.peerChoked = false
	if !p.established {
		return
	}
	p.handler.PeerUnchoked(p)
	p.requestBlocks()
}

func (h *connHandler) GotInterested() {
	p := h.peer()
	p.touch()
	p.peerInterested = true
	if p.established {
		p.unchoke()
	}
}

func (h *connHandler) GotNotInterested() {
	p := h.peer()
	p.touch()
	p.peerInterested = false
	p.cancelUploads()
}

func (h *connHandler) GotHave(index uint32) {
	p := h.peer()
	p.touch()
	if index >= p.numPieces {
		h.GotMalformed(errInvalidPieceIndex)
		return
	}
	if p.bitfield.Test(index) {
		return
	}
	p.bitfield.Set(index)
	if p.established {
		p.handler.PeerHasNewPieces(p)
	}
}

func (h *connHandler) GotBitfield(b []byte) {
	p := h.peer()
	p.touch()
	bf, ok := bitfield.NewBytes(b, p.numPieces)
	if !ok {
		h.GotMalformed(errInvalidBitfield)
		return
	}
	if bitfield.SpareBitsSet(b, p.numPieces) {
		h.GotMalformed(errSpareBits)
		return
	}
	p.bitfield = bf
	if p.established && bf.Count() > 0 {
		p.handler.PeerHasNewPieces(p)
	}
}

func (h *connHandler) GotRequest(index, begin, length uint32) {
	p := h.peer()
	p.touch()
	if p.amChoking {
		p.log.Debugln("ignoring request while choking, piece:", index)
		return
	}
	if index >= p.numPieces {
		h.GotMalformed(errInvalidPieceIndex)
		return
	}
	p.addRequest(index, begin, length)
}

func (h *connHandler) GotCancel(index, begin, length uint32) {
	p := h.peer()
	p.touch()
	p.cancelRequest(index, begin, length)
}

func (h *connHandler) GotPiece(index, begin uint32, data []byte) {
	p := h.peer()
	p.touch()
	p.gotBlock(index, begin, data)
}

func (h *connHandler) GotPort(port uint16) {
	p := h.peer()
	p.touch()
	p.log.Debugln("peer has dht port:", port)
}
