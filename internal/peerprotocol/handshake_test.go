package peerprotocol

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	testInfoHash = [20]byte{1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1, 1}
	testPeerID   = [20]byte{2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2, 2}
)

func handshakeKind(t *testing.T, err error) HandshakeErrorKind {
	var herr *HandshakeError
	require.True(t, errors.As(err, &herr), "error: %v", err)
	return herr.Kind
}

func TestHandshake(t *testing.T) {
	f := NewHandshakeFrame(testInfoHash, &testPeerID)
	h, err := f.Append(EncodeHandshake(testInfoHash, testPeerID, false))
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.Equal(t, testPeerID, h.PeerID)
	assert.False(t, h.DHT)
	assert.Empty(t, h.Remainder)

	_, err = f.Append([]byte{0})
	assert.ErrorIs(t, err, ErrHandshakeReceived)
}

func TestHandshakeDHT(t *testing.T) {
	f := NewHandshakeFrame(testInfoHash, nil)
	h, err := f.Append(EncodeHandshake(testInfoHash, testPeerID, true))
	require.NoError(t, err)
	require.NotNil(t, h)
	assert.True(t, h.DHT)
}

func TestHandshakeChunks(t *testing.T) {
	extra := []byte{0, 0, 0, 1, 2}
	data := append(EncodeHandshake(testInfoHash, testPeerID, false), extra...)
	for _, size := range []int{1, 2, 3, 7, 19, 20, 67, 68, 69} {
		f := NewHandshakeFrame(testInfoHash, &testPeerID)
		var got []*Handshake
		for b := data; len(b) > 0; {
			n := size
			if n > len(b) {
				n = len(b)
			}
			h, err := f.Append(b[:n])
			if h != nil {
				got = append(got, h)
				// Rest of the stream goes to message framer.
				h.Remainder = append(h.Remainder, b[n:]...)
				break
			}
			require.NoError(t, err, "chunk size: %d", size)
			b = b[n:]
		}
		require.Len(t, got, 1, "chunk size: %d", size)
		assert.Equal(t, extra, got[0].Remainder, "chunk size: %d", size)
	}
}

func TestHandshakeInvalidLength(t *testing.T) {
	f := NewHandshakeFrame(testInfoHash, nil)
	h, err := f.Append([]byte{18})
	assert.Nil(t, h)
	assert.Equal(t, ProtocolMismatch, handshakeKind(t, err))

	// Frame stays failed.
	h, err = f.Append(EncodeHandshake(testInfoHash, testPeerID, false))
	assert.Nil(t, h)
	assert.Equal(t, ProtocolMismatch, handshakeKind(t, err))
}

func TestHandshakeInvalidName(t *testing.T) {
	f := NewHandshakeFrame(testInfoHash, nil)
	data := EncodeHandshake(testInfoHash, testPeerID, false)
	data[5] = 'x'
	_, err := f.Append(data[:20])
	assert.Equal(t, ProtocolMismatch, handshakeKind(t, err))
}

func TestHandshakeInvalidInfoHash(t *testing.T) {
	f := NewHandshakeFrame(testInfoHash, &testPeerID)
	other := bytes.Repeat([]byte{3}, 20)
	var ih [20]byte
	copy(ih[:], other)
	data := EncodeHandshake(ih, testPeerID, false)
	_, err := f.Append(data[:48])
	assert.Equal(t, InfoHashMismatch, handshakeKind(t, err))
}

func TestHandshakeInvalidPeerID(t *testing.T) {
	var other [20]byte
	other[0] = 3
	data := EncodeHandshake(testInfoHash, other, false)

	f := NewHandshakeFrame(testInfoHash, &testPeerID)
	_, err := f.Append(data)
	assert.Equal(t, PeerIDMismatch, handshakeKind(t, err))

	// Not checked when expected peer id is unknown.
	f = NewHandshakeFrame(testInfoHash, nil)
	h, err := f.Append(data)
	require.NoError(t, err)
	assert.Equal(t, other, h.PeerID)
}
