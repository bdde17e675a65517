package pieceuploader

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cenkalti/drizzle/internal/piece"
)

func testData() []byte {
	return append(bytes.Repeat([]byte{1}, 10), bytes.Repeat([]byte{2}, 10)...)
}

func TestNextBlock(t *testing.T) {
	u := New(0, testData())
	assert.False(t, u.HasPending())
	_, _, ok := u.NextBlock()
	assert.False(t, ok)

	u.AddRequest(piece.Block{Index: 0, Begin: 0, Length: 10})
	u.AddRequest(piece.Block{Index: 0, Begin: 10, Length: 10})
	assert.True(t, u.HasPending())

	b, data, ok := u.NextBlock()
	require.True(t, ok)
	assert.Equal(t, piece.Block{Index: 0, Begin: 0, Length: 10}, b)
	assert.Equal(t, testData()[:10], data)

	// Peeking does not remove.
	b2, _, _ := u.NextBlock()
	assert.Equal(t, b, b2)
	assert.Equal(t, 2, u.NumPending())

	assert.True(t, u.RemoveRequest(b))
	b, data, ok = u.NextBlock()
	require.True(t, ok)
	assert.Equal(t, uint32(10), b.Begin)
	assert.Equal(t, bytes.Repeat([]byte{2}, 10), data)
}

func TestCancelFromMiddle(t *testing.T) {
	u := New(1, testData())
	u.AddRequest(piece.Block{Index: 1, Begin: 0, Length: 5})
	u.AddRequest(piece.Block{Index: 1, Begin: 5, Length: 5})
	u.AddRequest(piece.Block{Index: 1, Begin: 10, Length: 5})

	assert.True(t, u.RemoveRequest(piece.Block{Index: 1, Begin: 5, Length: 5}))
	assert.False(t, u.RemoveRequest(piece.Block{Index: 1, Begin: 5, Length: 5}))
	assert.False(t, u.RemoveRequest(piece.Block{Index: 1, Begin: 10, Length: 4}))
	assert.Equal(t, 2, u.NumPending())

	u.RemoveRequest(piece.Block{Index: 1, Begin: 0, Length: 5})
	b, _, _ := u.NextBlock()
	assert.Equal(t, uint32(10), b.Begin)
}

func TestContains(t *testing.T) {
	u := New(0, testData())
	assert.True(t, u.Contains(0, 20))
	assert.True(t, u.Contains(19, 1))
	assert.False(t, u.Contains(19, 2))
	assert.False(t, u.Contains(0xffffffff, 2))
	assert.Equal(t, uint32(20), u.Length())
}
