// Package pieceuploader queues block requests received from a peer for one piece we serve.
package pieceuploader

import (
	"container/list"

	"github.com/cenkalti/drizzle/internal/piece"
)

// PieceUploader holds the data of a piece and the ordered queue of blocks requested from it.
type PieceUploader struct {
	Index uint32

	data     []byte
	requests *list.List // of piece.Block
}

// New returns a new PieceUploader serving data as the piece at index.
func New(index uint32, data []byte) *PieceUploader {
	return &PieceUploader{
		Index:    index,
		data:     data,
		requests: list.New(),
	}
}

// Length of the piece data.
func (u *PieceUploader) Length() uint32 { return uint32(len(u.data)) }

// Contains reports whether the range is inside the piece.
func (u *PieceUploader) Contains(begin, length uint32) bool {
	end := uint64(begin) + uint64(length)
	return end <= uint64(len(u.data))
}

// AddRequest appends the block to the end of the queue.
// Block must be inside the piece. Check with Contains before adding.
func (u *PieceUploader) AddRequest(b piece.Block) {
	u.requests.PushBack(b)
}

// NextBlock returns the request at the head of the queue and the data for it.
// The request stays in the queue until RemoveRequest is called for it.
func (u *PieceUploader) NextBlock() (piece.Block, []byte, bool) {
	e := u.requests.Front()
	if e == nil {
		return piece.Block{}, nil, false
	}
	b := e.Value.(piece.Block)
	return b, u.data[b.Begin:b.End()], true
}

// RemoveRequest removes the first queued request matching b, wherever it sits in the queue.
// Returns false if no such request is queued.
func (u *PieceUploader) RemoveRequest(b piece.Block) bool {
	for e := u.requests.Front(); e != nil; e = e.Next() {
		if e.Value.(piece.Block).Equal(b) {
			u.requests.Remove(e)
			return true
		}
	}
	return false
}

// HasPending returns true while there are requests in the queue.
func (u *PieceUploader) HasPending() bool {
	return u.requests.Len() > 0
}

// NumPending returns the number of requests in the queue.
func (u *PieceUploader) NumPending() int {
	return u.requests.Len()
}
