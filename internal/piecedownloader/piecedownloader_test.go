package piecedownloader

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cenkalti/drizzle/internal/piece"
)

func TestPieceDownloader(t *testing.T) {
	const length = 2*piece.BlockSize + 100
	src := make([]byte, length)
	for i := range src {
		src[i] = byte(i % 251)
	}

	d := New(4, length)
	assert.False(t, d.Done())

	var requested []piece.Block
	for {
		b, ok := d.NextBlock()
		if !ok {
			break
		}
		assert.Equal(t, uint32(4), b.Index)
		requested = append(requested, b)
	}
	require.Len(t, requested, 3)
	assert.Equal(t, 3, d.NumPending())
	assert.False(t, d.HasNextBlock())
	assert.False(t, d.Done())

	// Deliver out of order.
	for _, i := range []int{2, 0, 1} {
		b := requested[i]
		assert.True(t, d.GotBlock(b.Begin, src[b.Begin:b.End()]))
	}
	assert.True(t, d.Done())
	assert.True(t, bytes.Equal(src, d.Bytes()))
}

func TestGotBlockIdempotent(t *testing.T) {
	d := New(0, 10)
	b, ok := d.NextBlock()
	require.True(t, ok)
	assert.Equal(t, piece.Block{Index: 0, Begin: 0, Length: 10}, b)

	first := bytes.Repeat([]byte{1}, 10)
	assert.True(t, d.GotBlock(0, first))
	assert.False(t, d.GotBlock(0, bytes.Repeat([]byte{2}, 10)))
	assert.Equal(t, first, d.Bytes())
	assert.True(t, d.Done())
}

func TestGotBlockNotRequested(t *testing.T) {
	d := New(0, piece.BlockSize+1)
	assert.False(t, d.GotBlock(0, make([]byte, piece.BlockSize)))

	b, _ := d.NextBlock()
	assert.False(t, d.GotBlock(b.Begin, make([]byte, 5)), "length mismatch")
	assert.False(t, d.GotBlock(piece.BlockSize, make([]byte, 1)), "not requested yet")
	assert.Equal(t, 1, d.NumPending())
}

func TestZeroLength(t *testing.T) {
	d := New(0, 0)
	_, ok := d.NextBlock()
	assert.False(t, ok)
	assert.True(t, d.Done())
}
