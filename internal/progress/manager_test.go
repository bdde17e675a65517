package progress

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cenkalti/drizzle/internal/bitfield"
	"github.com/cenkalti/drizzle/internal/logger"
	"github.com/cenkalti/drizzle/internal/resumer"
)

type testStorage struct {
	pieces   map[uint32][]byte
	failNext bool
}

func newTestStorage() *testStorage {
	return &testStorage{pieces: make(map[uint32][]byte)}
}

func (s *testStorage) NumPieces() uint32 { return 3 }
func (s *testStorage) TotalLength() int64 { return 25 }
func (s *testStorage) PieceLength(i uint32) uint32 {
	if i == 2 {
		return 5
	}
	return 10
}

func (s *testStorage) SetPiece(i uint32, data []byte) error {
	if s.failNext {
		s.failNext = false
		return errors.New("disk full")
	}
	s.pieces[i] = data
	return nil
}

func (s *testStorage) GetPiece(i uint32) ([]byte, error) {
	return s.pieces[i], nil
}

type testResumer struct {
	bitfields map[[20]byte][]byte
}

func (r *testResumer) ReadBitfield(ih [20]byte) ([]byte, error) { return r.bitfields[ih], nil }
func (r *testResumer) WriteBitfield(ih [20]byte, b []byte) error {
	r.bitfields[ih] = b
	return nil
}
func (r *testResumer) ReadStats([20]byte) (resumer.Stats, error) { return resumer.Stats{}, nil }
func (r *testResumer) WriteStats([20]byte, resumer.Stats) error { return nil }

func TestManagerDownload(t *testing.T) {
	var ih [20]byte
	s := newTestStorage()
	r := &testResumer{bitfields: make(map[[20]byte][]byte)}
	m, err := NewManager(ih, s, r, logger.New("test"))
	require.NoError(t, err)
	assert.Equal(t, int64(25), m.BytesLeft())

	available := bitfield.New(3)
	available.Set(2)
	index, length, ok := m.NextPieceToDownload(available)
	require.True(t, ok)
	assert.Equal(t, uint32(2), index)
	assert.Equal(t, uint32(5), length)

	require.NoError(t, m.SetDownloadedPiece(2, []byte("abcde")))
	assert.True(t, m.Has(2))
	assert.Equal(t, []byte{0x20}, r.bitfields[ih])
	assert.Equal(t, int64(5), m.BytesCompleted())
	assert.Equal(t, int64(20), m.BytesLeft())

	b, err := m.GetPiece(2)
	require.NoError(t, err)
	assert.Equal(t, []byte("abcde"), b)
	_, err = m.GetPiece(0)
	assert.Error(t, err)

	// Loading again restores the bitfield.
	m2, err := NewManager(ih, s, r, logger.New("test"))
	require.NoError(t, err)
	assert.True(t, m2.Has(2))
	assert.Equal(t, uint32(1), m2.NumHave())
}

func TestManagerWriteFailure(t *testing.T) {
	var ih [20]byte
	s := newTestStorage()
	m, err := NewManager(ih, s, nil, logger.New("test"))
	require.NoError(t, err)

	available := bitfield.New(3)
	available.Set(0)
	_, _, ok := m.NextPieceToDownload(available)
	require.True(t, ok)

	s.failNext = true
	assert.Error(t, m.SetDownloadedPiece(0, make([]byte, 10)))
	assert.False(t, m.Has(0))
	assert.True(t, m.IsDownloading(0))

	m.SetLostPiece(0)
	index, _, ok := m.NextPieceToDownload(available)
	require.True(t, ok)
	assert.Equal(t, uint32(0), index)
}

func TestManagerIgnoresInvalidBitfield(t *testing.T) {
	var ih [20]byte
	r := &testResumer{bitfields: map[[20]byte][]byte{ih: {0xff, 0xff}}}
	m, err := NewManager(ih, newTestStorage(), r, logger.New("test"))
	require.NoError(t, err)
	assert.Equal(t, uint32(0), m.NumHave())
}

func TestManagerReset(t *testing.T) {
	var ih [20]byte
	r := &testResumer{bitfields: make(map[[20]byte][]byte)}
	m, err := NewManager(ih, newTestStorage(), r, logger.New("test"))
	require.NoError(t, err)
	bf := bitfield.New(3)
	bf.Set(0)
	bf.Set(1)
	require.NoError(t, m.Reset(bf))
	assert.Equal(t, uint32(2), m.NumHave())
	assert.Equal(t, []byte{0xc0}, r.bitfields[ih])
}
