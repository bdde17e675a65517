// Package progress tracks which pieces of a torrent are possessed and which are being downloaded.
package progress

import (
	"sync"

	"github.com/cenkalti/drizzle/internal/bitfield"
)

// Progress holds the possessed pieces and the set of pieces currently being downloaded.
// A piece is never possessed and downloading at the same time.
// It is safe for concurrent use.
type Progress struct {
	mu          sync.Mutex
	have        *bitfield.Bitfield
	downloading map[uint32]struct{}
}

// New returns an empty Progress for numPieces pieces.
func New(numPieces uint32) *Progress {
	return NewFromBitfield(bitfield.New(numPieces))
}

// NewFromBitfield returns a Progress with pieces set in bf marked as possessed.
func NewFromBitfield(bf *bitfield.Bitfield) *Progress {
	return &Progress{
		have:        bf.Copy(),
		downloading: make(map[uint32]struct{}),
	}
}

// NextPieceToDownload returns the lowest index available in peer's bitfield that is neither
// possessed nor being downloaded, and marks it as downloading.
// Returns false if there is no such piece.
func (p *Progress) NextPieceToDownload(available *bitfield.Bitfield) (uint32, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := available.Len()
	if n > p.have.Len() {
		n = p.have.Len()
	}
	for i := uint32(0); i < n; i++ {
		if !available.Test(i) || p.have.Test(i) {
			continue
		}
		if _, ok := p.downloading[i]; ok {
			continue
		}
		p.downloading[i] = struct{}{}
		return i, true
	}
	return 0, false
}

// SetDownloading marks the piece as being downloaded.
// Returns false if the piece is already possessed or being downloaded.
func (p *Progress) SetDownloading(index uint32) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.have.Test(index) {
		return false
	}
	if _, ok := p.downloading[index]; ok {
		return false
	}
	p.downloading[index] = struct{}{}
	return true
}

// Finish marks the piece as possessed.
func (p *Progress) Finish(index uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.downloading, index)
	p.have.Set(index)
}

// SetLost clears the downloading mark without setting the bit. The piece becomes eligible again.
func (p *Progress) SetLost(index uint32) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.downloading, index)
}

// Has returns true if the piece is possessed.
func (p *Progress) Has(index uint32) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.have.Test(index)
}

// IsDownloading returns true if the piece is being downloaded.
func (p *Progress) IsDownloading(index uint32) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	_, ok := p.downloading[index]
	return ok
}

// NumDownloading returns the number of pieces being downloaded.
func (p *Progress) NumDownloading() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.downloading)
}

// Bitfield returns a copy of possessed pieces.
func (p *Progress) Bitfield() *bitfield.Bitfield {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.have.Copy()
}

// NumHave returns the number of possessed pieces.
func (p *Progress) NumHave() uint32 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.have.Count()
}

// NumPieces returns the total number of pieces.
func (p *Progress) NumPieces() uint32 {
	return p.have.Len()
}

// Complete returns true if all pieces are possessed.
func (p *Progress) Complete() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.have.All()
}

// Percent returns possessed pieces as a percentage in [0, 100].
func (p *Progress) Percent() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.have.Len() == 0 {
		return 100
	}
	return float64(p.have.Count()) * 100 / float64(p.have.Len())
}
