package progress

import (
	"fmt"
	"sync"

	"github.com/cenkalti/drizzle/internal/bitfield"
	"github.com/cenkalti/drizzle/internal/logger"
	"github.com/cenkalti/drizzle/internal/resumer"
)

// Storage reads and writes whole pieces.
type Storage interface {
	NumPieces() uint32
	TotalLength() int64
	PieceLength(index uint32) uint32
	SetPiece(index uint32, data []byte) error
	GetPiece(index uint32) ([]byte, error)
}

// Manager combines Progress with piece storage and bitfield persistence.
type Manager struct {
	*Progress

	infoHash [20]byte
	storage  Storage
	resumer  resumer.Resumer
	log      logger.Logger

	// serializes writes of the bitfield to resumer
	saveMu sync.Mutex
}

// NewManager returns a Manager. The persisted bitfield for infoHash is loaded from r if it exists
// and its length matches the number of pieces. r may be nil.
func NewManager(infoHash [20]byte, s Storage, r resumer.Resumer, l logger.Logger) (*Manager, error) {
	m := &Manager{
		infoHash: infoHash,
		storage:  s,
		resumer:  r,
		log:      l,
	}
	bf := bitfield.New(s.NumPieces())
	if r != nil {
		b, err := r.ReadBitfield(infoHash)
		if err != nil {
			return nil, fmt.Errorf("cannot read bitfield: %w", err)
		}
		if b != nil {
			if saved, ok := bitfield.NewBytes(b, s.NumPieces()); ok {
				bf = saved
				l.Infof("loaded bitfield with %d/%d pieces", bf.Count(), bf.Len())
			} else {
				l.Warningf("ignoring saved bitfield with invalid length: %d", len(b))
			}
		}
	}
	m.Progress = NewFromBitfield(bf)
	return m, nil
}

// Reset replaces possessed pieces with bf (e.g. after verifying existing files) and persists it.
func (m *Manager) Reset(bf *bitfield.Bitfield) error {
	m.Progress.mu.Lock()
	m.Progress.have = bf.Copy()
	m.Progress.downloading = make(map[uint32]struct{})
	m.Progress.mu.Unlock()
	return m.saveBitfield()
}

// NextPieceToDownload claims the next piece available from peer and returns its index and length.
func (m *Manager) NextPieceToDownload(available *bitfield.Bitfield) (index, length uint32, ok bool) {
	index, ok = m.Progress.NextPieceToDownload(available)
	if !ok {
		return 0, 0, false
	}
	return index, m.storage.PieceLength(index), true
}

// SetDownloadedPiece writes data of piece to storage, marks it as possessed and persists the bitfield.
// If writing fails, the piece stays in downloading state and the caller must call SetLostPiece.
func (m *Manager) SetDownloadedPiece(index uint32, data []byte) error {
	if err := m.storage.SetPiece(index, data); err != nil {
		return err
	}
	m.Progress.Finish(index)
	return m.saveBitfield()
}

// SetLostPiece makes the piece eligible for download again.
func (m *Manager) SetLostPiece(index uint32) {
	m.Progress.SetLost(index)
}

// GetPiece returns data of a possessed piece.
func (m *Manager) GetPiece(index uint32) ([]byte, error) {
	if index >= m.Progress.NumPieces() || !m.Progress.Has(index) {
		return nil, fmt.Errorf("piece #%d is not available", index)
	}
	return m.storage.GetPiece(index)
}

// BytesCompleted returns the total length of possessed pieces.
func (m *Manager) BytesCompleted() int64 {
	bf := m.Progress.Bitfield()
	var n int64
	for i := uint32(0); i < bf.Len(); i++ {
		if bf.Test(i) {
			n += int64(m.storage.PieceLength(i))
		}
	}
	return n
}

// BytesLeft returns the number of bytes still missing.
func (m *Manager) BytesLeft() int64 {
	return m.storage.TotalLength() - m.BytesCompleted()
}

func (m *Manager) saveBitfield() error {
	if m.resumer == nil {
		return nil
	}
	m.saveMu.Lock()
	defer m.saveMu.Unlock()
	if err := m.resumer.WriteBitfield(m.infoHash, m.Progress.Bitfield().Bytes()); err != nil {
		return fmt.Errorf("cannot save bitfield: %w", err)
	}
	return nil
}
