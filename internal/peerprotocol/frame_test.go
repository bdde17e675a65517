package peerprotocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageFrame(t *testing.T) {
	var stream []byte
	stream = append(stream, EncodeKeepAlive()...)
	stream = append(stream, Encode(HaveMessage{Index: 1})...)
	stream = append(stream, Encode(PieceMessage{Index: 0, Begin: 0, Data: make([]byte, 100)})...)
	stream = append(stream, Encode(UnchokeMessage{})...)

	for _, size := range []int{1, 3, 4, 5, 50, len(stream)} {
		var f MessageFrame
		var bodies [][]byte
		for b := stream; len(b) > 0; {
			n := size
			if n > len(b) {
				n = len(b)
			}
			got, err := f.Append(b[:n])
			require.NoError(t, err)
			bodies = append(bodies, got...)
			b = b[n:]
		}
		require.Len(t, bodies, 4, "chunk size: %d", size)
		assert.Empty(t, bodies[0])
		assert.Equal(t, byte(Have), bodies[1][0])
		assert.Len(t, bodies[2], 109)
		assert.Equal(t, []byte{byte(Unchoke)}, bodies[3])
		assert.Equal(t, 0, f.Buffered())
	}
}

func TestMessageFramePartial(t *testing.T) {
	var f MessageFrame
	b := Encode(HaveMessage{Index: 1})
	bodies, err := f.Append(b[:7])
	require.NoError(t, err)
	assert.Empty(t, bodies)
	assert.Equal(t, 7, f.Buffered())

	bodies, err = f.Append(b[7:])
	require.NoError(t, err)
	require.Len(t, bodies, 1)
	msg, err := Decode(bodies[0])
	require.NoError(t, err)
	assert.Equal(t, HaveMessage{Index: 1}, msg)
}

func TestMessageFrameTooLarge(t *testing.T) {
	var f MessageFrame
	_, err := f.Append([]byte{0xff, 0xff, 0xff, 0xff})
	assert.ErrorIs(t, err, ErrMessageTooLarge)
	_, err = f.Append(EncodeKeepAlive())
	assert.ErrorIs(t, err, ErrMessageTooLarge)
}
