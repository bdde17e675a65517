package torrent

import (
	"bytes"
	"crypto/sha1" // nolint: gosec

	"github.com/cenkalti/drizzle/internal/bitfield"
	"github.com/cenkalti/drizzle/internal/peermanager"
)

// torrentProgress connects the peer manager to the piece state of the torrent.
// Methods are called from the loop.
type torrentProgress Torrent

var _ peermanager.Progress = (*torrentProgress)(nil)

func (p *torrentProgress) NextPieceToDownload(available *bitfield.Bitfield) (index, length uint32, ok bool) {
	return p.progress.NextPieceToDownload(available)
}

// PieceDownloaded starts verifying and writing the piece in a new goroutine.
func (p *torrentProgress) PieceDownloaded(index uint32, data []byte) {
	t := (*Torrent)(p)
	t.diskOps.Add(1)
	go t.writePiece(index, data)
}

func (p *torrentProgress) PieceFailed(index uint32) {
	p.progress.SetLostPiece(index)
}

func (p *torrentProgress) Bitfield() *bitfield.Bitfield {
	return p.progress.Bitfield()
}

// ReadPiece reads the piece in a new goroutine and calls done on the loop.
// done is not called if the torrent is closed before the read finishes.
func (p *torrentProgress) ReadPiece(index uint32, done func(data []byte, err error)) {
	t := (*Torrent)(p)
	t.diskOps.Add(1)
	go func() {
		defer t.diskOps.Done()
		data, err := t.progress.GetPiece(index)
		t.loop.Post(func() { done(data, err) })
	}()
}

func (t *Torrent) writePiece(index uint32, data []byte) {
	defer t.diskOps.Done()

	sum := sha1.Sum(data) // nolint: gosec
	if !bytes.Equal(sum[:], t.info.HashOf(index)) {
		t.log.Warningf("received corrupt piece #%d", index)
		t.progress.SetLostPiece(index)
		t.loop.Post(t.peers.PieceAvailable)
		return
	}
	if err := t.progress.SetDownloadedPiece(index, data); err != nil {
		t.log.Errorf("cannot write piece #%d: %s", index, err)
		t.progress.SetLostPiece(index)
		select {
		case t.errC <- err:
		default:
		}
		return
	}
	t.loop.Post(func() {
		t.peers.HaveNewPiece(index)
	})
	if t.progress.Complete() {
		t.completeOnce.Do(func() {
			t.log.Info("download completed")
			close(t.completeC)
		})
	}
}
