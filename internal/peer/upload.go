package peer

import (
	"github.com/cenkalti/drizzle/internal/piece"
	"github.com/cenkalti/drizzle/internal/pieceuploader"
)

// maxRequestLength is the largest block that a peer may request from us.
const maxRequestLength = 128 * 1024

// pieceRead holds requests of a piece until its data is read from disk.
type pieceRead struct {
	index  uint32
	blocks []piece.Block
}

func (p *Peer) addRequest(index, begin, length uint32) {
	if length == 0 || length > maxRequestLength {
		(*connHandler)(p).GotMalformed(errInvalidRequest)
		return
	}
	b := piece.Block{Index: index, Begin: begin, Length: length}
	if u := p.upload(index); u != nil {
		if !u.Contains(begin, length) {
			(*connHandler)(p).GotMalformed(errInvalidRequest)
			return
		}
		u.AddRequest(b)
		p.sendBlock()
		return
	}
	if r := p.read(index); r != nil {
		r.blocks = append(r.blocks, b)
		return
	}
	r := &pieceRead{index: index, blocks: []piece.Block{b}}
	p.reads = append(p.reads, r)
	gen := p.uploadGen
	p.handler.ReadPiece(index, func(data []byte, err error) { p.pieceRead(gen, r, data, err) })
}

func (p *Peer) pieceRead(gen uint64, r *pieceRead, data []byte, err error) {
	if p.closed || gen != p.uploadGen {
		return
	}
	p.removeRead(r)
	if err != nil {
		p.log.Warningln("cannot read requested piece:", err)
		p.Disconnect()
		return
	}
	if len(r.blocks) == 0 {
		return
	}
	u := pieceuploader.New(r.index, data)
	for _, b := range r.blocks {
		if !u.Contains(b.Begin, b.Length) {
			(*connHandler)(p).GotMalformed(errInvalidRequest)
			return
		}
		u.AddRequest(b)
	}
	p.uploads = append(p.uploads, u)
	p.sendBlock()
}

func (p *Peer) cancelRequest(index, begin, length uint32) {
	if r := p.read(index); r != nil {
		r.remove(piece.Block{Index: index, Begin: begin, Length: length})
		return
	}
	u := p.upload(index)
	if u == nil {
		return
	}
	u.RemoveRequest(piece.Block{Index: index, Begin: begin, Length: length})
	if !u.HasPending() && !p.uploading {
		p.removeUpload(u)
	}
}

// NumUploading returns the number of pieces that the peer has requested blocks from.
func (p *Peer) NumUploading() int { return len(p.uploads) + len(p.reads) }

// sendBlock sends the next requested block unless a piece message is already being written.
func (p *Peer) sendBlock() {
	if p.uploading || p.closed {
		return
	}
	for len(p.uploads) > 0 {
		u := p.uploads[0]
		b, data, ok := u.NextBlock()
		if !ok {
			p.removeUpload(u)
			continue
		}
		p.uploading = true
		gen := p.uploadGen
		p.conn.SendPiece(b.Index, b.Begin, data, func() { p.sentBlock(gen, u, b) })
		return
	}
}

func (p *Peer) sentBlock(gen uint64, u *pieceuploader.PieceUploader, b piece.Block) {
	p.uploading = false
	p.bytesUploaded += int64(b.Length)
	p.uploadSpeed.Mark(int64(b.Length))
	if gen == p.uploadGen {
		u.RemoveRequest(b)
		if !u.HasPending() {
			p.removeUpload(u)
		}
	}
	p.sendBlock()
}

// cancelUploads drops all requests of the peer. A piece message being written is not interrupted.
func (p *Peer) cancelUploads() {
	p.uploads = nil
	p.reads = nil
	p.uploadGen++
}

func (p *Peer) upload(index uint32) *pieceuploader.PieceUploader {
	for _, u := range p.uploads {
		if u.Index == index {
			return u
		}
	}
	return nil
}

func (p *Peer) removeUpload(u *pieceuploader.PieceUploader) {
	for i, v := range p.uploads {
		if v == u {
			copy(p.uploads[i:], p.uploads[i+1:])
			p.uploads[len(p.uploads)-1] = nil
			p.uploads = p.uploads[:len(p.uploads)-1]
			return
		}
	}
}

func (p *Peer) read(index uint32) *pieceRead {
	for _, r := range p.reads {
		if r.index == index {
			return r
		}
	}
	return nil
}

func (p *Peer) removeRead(r *pieceRead) {
	for i, v := range p.reads {
		if v == r {
			copy(p.reads[i:], p.reads[i+1:])
			p.reads[len(p.reads)-1] = nil
			p.reads = p.reads[:len(p.reads)-1]
			return
		}
	}
}

func (r *pieceRead) remove(b piece.Block) {
	for i, v := range r.blocks {
		if v == b {
			r.blocks = append(r.blocks[:i], r.blocks[i+1:]...)
			return
		}
	}
}
