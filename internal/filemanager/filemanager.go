// Package filemanager maps piece indexes to byte ranges of the torrent files.
package filemanager

import (
	"bytes"
	"crypto/sha1" // nolint: gosec
	"errors"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"

	"github.com/cenkalti/drizzle/internal/bitfield"
	"github.com/cenkalti/drizzle/internal/multifile"
	"github.com/cenkalti/drizzle/internal/storage"
)

var (
	// ErrInvalidIndex is returned for piece indexes outside of the torrent.
	ErrInvalidIndex = errors.New("invalid piece index")
	// ErrInvalidLength is returned from SetPiece when data length does not match the piece length.
	ErrInvalidLength = errors.New("invalid piece length")
)

// FileInfo describes one file of the torrent.
type FileInfo struct {
	Path   string
	Length int64
}

// FileManager reads and writes whole pieces. It is safe for concurrent use.
type FileManager struct {
	pieceLength uint32
	totalLength int64
	numPieces   uint32

	mu     sync.Mutex
	handle *multifile.Handle
	files  []storage.File

	// Exists is true if any of the files were already on disk when opened.
	Exists bool
}

// New returns a FileManager over handle.
func New(handle *multifile.Handle, pieceLength uint32) *FileManager {
	total := handle.Len()
	numPieces := uint32(0)
	if pieceLength > 0 {
		numPieces = uint32((total + int64(pieceLength) - 1) / int64(pieceLength))
	}
	return &FileManager{
		pieceLength: pieceLength,
		totalLength: total,
		numPieces:   numPieces,
		handle:      handle,
	}
}

// Open creates or opens every file in s and returns a FileManager over them.
// Files are truncated to their final length.
func Open(s storage.Storage, files []FileInfo, pieceLength uint32) (*FileManager, error) {
	var (
		opened []storage.File
		mfs    []multifile.File
		exists bool
	)
	for _, fi := range files {
		f, ok, err := s.Open(fi.Path, fi.Length)
		if err != nil {
			for _, of := range opened {
				_ = of.Close()
			}
			return nil, fmt.Errorf("cannot open %s: %w", fi.Path, err)
		}
		exists = exists || ok
		opened = append(opened, f)
		mfs = append(mfs, multifile.File{Handle: f, Length: fi.Length})
	}
	fm := New(multifile.New(mfs), pieceLength)
	fm.files = opened
	fm.Exists = exists
	return fm, nil
}

// Close closes the underlying files opened by Open.
func (m *FileManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	var result error
	for _, f := range m.files {
		err := f.Close()
		if err != nil {
			result = multierror.Append(result, err)
		}
	}
	m.files = nil
	return result
}

// NumPieces returns the number of pieces.
func (m *FileManager) NumPieces() uint32 { return m.numPieces }

// TotalLength returns the sum of file lengths.
func (m *FileManager) TotalLength() int64 { return m.totalLength }

// PieceLength returns the length of piece at index.
// All pieces have the same length except the last one, which has the remainder.
func (m *FileManager) PieceLength(index uint32) uint32 {
	if index == m.numPieces-1 {
		if mod := uint32(m.totalLength % int64(m.pieceLength)); mod != 0 {
			return mod
		}
	}
	return m.pieceLength
}

func (m *FileManager) offset(index uint32) int64 {
	return int64(index) * int64(m.pieceLength)
}

// SetPiece writes data of the piece at index.
func (m *FileManager) SetPiece(index uint32, data []byte) error {
	if index >= m.numPieces {
		return ErrInvalidIndex
	}
	if uint32(len(data)) != m.PieceLength(index) {
		return ErrInvalidLength
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.handle.WriteAt(data, m.offset(index)); err != nil {
		return fmt.Errorf("write piece #%d: %w", index, err)
	}
	return nil
}

// GetPiece reads data of the piece at index.
func (m *FileManager) GetPiece(index uint32) ([]byte, error) {
	if index >= m.numPieces {
		return nil, ErrInvalidIndex
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	b, err := m.handle.ReadAt(int(m.PieceLength(index)), m.offset(index))
	if err != nil {
		return nil, fmt.Errorf("read piece #%d: %w", index, err)
	}
	return b, nil
}

// Verify reads every piece and compares its SHA-1 with the hash returned from hashOf.
// The returned bitfield has bits set for pieces with correct data.
func (m *FileManager) Verify(hashOf func(index uint32) []byte) (*bitfield.Bitfield, error) {
	bf := bitfield.New(m.numPieces)
	for i := uint32(0); i < m.numPieces; i++ {
		b, err := m.GetPiece(i)
		if err != nil {
			return nil, err
		}
		sum := sha1.Sum(b) // nolint: gosec
		bf.SetTo(i, bytes.Equal(sum[:], hashOf(i)))
	}
	return bf, nil
}
