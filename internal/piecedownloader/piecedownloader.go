// Package piecedownloader reassembles one piece from blocks requested from a single peer.
package piecedownloader

import (
	"github.com/cenkalti/drizzle/internal/piece"
)

// PieceDownloader splits a piece into block requests and collects the returned blocks
// into a buffer of the piece's exact length.
type PieceDownloader struct {
	Index  uint32
	Length uint32

	buffer []byte

	// blocks to be requested from the peer in consecutive order.
	remaining []piece.Block
	// in-flight requests, keyed by begin offset.
	pending map[uint32]piece.Block
}

// New returns a new PieceDownloader for the piece at index with length bytes.
func New(index, length uint32) *PieceDownloader {
	blocks := piece.NewBlocks(index, length)
	return &PieceDownloader{
		Index:     index,
		Length:    length,
		buffer:    make([]byte, length),
		remaining: blocks,
		pending:   make(map[uint32]piece.Block, len(blocks)),
	}
}

// NextBlock returns the next block to request and marks it as in-flight.
// Returns false when there are no blocks left to request.
func (d *PieceDownloader) NextBlock() (piece.Block, bool) {
	if len(d.remaining) == 0 {
		return piece.Block{}, false
	}
	b := d.remaining[0]
	d.remaining = d.remaining[1:]
	d.pending[b.Begin] = b
	return b, true
}

// HasNextBlock returns true if there are blocks not requested yet.
func (d *PieceDownloader) HasNextBlock() bool {
	return len(d.remaining) > 0
}

// GotBlock must be called when a block is received from the peer.
// A block that does not match an in-flight request by begin and length is ignored
// and false is returned.
func (d *PieceDownloader) GotBlock(begin uint32, data []byte) bool {
	b, ok := d.pending[begin]
	if !ok || b.Length != uint32(len(data)) {
		return false
	}
	copy(d.buffer[begin:b.End()], data)
	delete(d.pending, begin)
	return true
}

// NumPending returns the number of in-flight block requests.
func (d *PieceDownloader) NumPending() int {
	return len(d.pending)
}

// Done returns true if all blocks of the piece has been downloaded.
func (d *PieceDownloader) Done() bool {
	return len(d.remaining) == 0 && len(d.pending) == 0
}

// Bytes returns the assembled piece data. Contents are meaningful only after Done returns true.
func (d *PieceDownloader) Bytes() []byte {
	return d.buffer
}
