package progress

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cenkalti/drizzle/internal/bitfield"
)

func allSet(n uint32) *bitfield.Bitfield {
	bf := bitfield.New(n)
	for i := uint32(0); i < n; i++ {
		bf.Set(i)
	}
	return bf
}

func TestNextPieceToDownload(t *testing.T) {
	p := New(4)
	available := bitfield.New(4)
	available.Set(1)
	available.Set(3)

	i, ok := p.NextPieceToDownload(available)
	require.True(t, ok)
	assert.Equal(t, uint32(1), i)
	assert.True(t, p.IsDownloading(1))

	i, ok = p.NextPieceToDownload(available)
	require.True(t, ok)
	assert.Equal(t, uint32(3), i)

	_, ok = p.NextPieceToDownload(available)
	assert.False(t, ok)

	p.SetLost(1)
	i, ok = p.NextPieceToDownload(available)
	require.True(t, ok)
	assert.Equal(t, uint32(1), i)

	p.Finish(1)
	assert.True(t, p.Has(1))
	assert.False(t, p.IsDownloading(1))
	p.SetLost(3)
	_, ok = p.NextPieceToDownload(available)
	require.True(t, ok)
	_, ok = p.NextPieceToDownload(available)
	assert.False(t, ok)
	assert.Equal(t, 1, p.NumDownloading())
}

func TestProgressComplete(t *testing.T) {
	p := New(2)
	assert.False(t, p.Complete())
	assert.Equal(t, float64(0), p.Percent())
	assert.True(t, p.SetDownloading(0))
	assert.False(t, p.SetDownloading(0))
	p.Finish(0)
	assert.False(t, p.SetDownloading(0))
	assert.Equal(t, float64(50), p.Percent())
	p.Finish(1)
	assert.True(t, p.Complete())
	assert.Equal(t, uint32(2), p.NumHave())

	bf := p.Bitfield()
	bf.Clear(0)
	assert.True(t, p.Has(0), "returned bitfield is a copy")
}

func TestNoDuplicateClaims(t *testing.T) {
	const numPieces = 500
	p := New(numPieces)
	available := allSet(numPieces)

	var mu sync.Mutex
	claimed := make(map[uint32]int)
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				i, ok := p.NextPieceToDownload(available)
				if !ok {
					return
				}
				mu.Lock()
				claimed[i]++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, claimed, numPieces)
	for i, n := range claimed {
		assert.Equal(t, 1, n, "piece %d", i)
	}
}

func TestShorterPeerBitfield(t *testing.T) {
	p := New(8)
	available := allSet(3)
	i, ok := p.NextPieceToDownload(available)
	require.True(t, ok)
	assert.Equal(t, uint32(0), i)
}
