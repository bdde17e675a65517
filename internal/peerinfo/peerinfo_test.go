package peerinfo

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEqual(t *testing.T) {
	a := New("1.2.3.4", 5)
	b := New("1.2.3.4", 5)
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(New("1.2.3.4", 6)))
	assert.False(t, a.Equal(New("1.2.3.5", 5)))

	var id1, id2 [20]byte
	id1[0] = 1
	id2[0] = 2
	assert.True(t, a.WithID(id1).Equal(b), "unknown id matches any")
	assert.True(t, a.WithID(id1).Equal(b.WithID(id1)))
	assert.False(t, a.WithID(id1).Equal(b.WithID(id2)))
}

func TestParse(t *testing.T) {
	i, err := Parse("10.0.0.1:6881")
	require.NoError(t, err)
	assert.Equal(t, New("10.0.0.1", 6881), i)
	assert.Equal(t, "10.0.0.1:6881", i.Addr())

	i, err = Parse("[::1]:80")
	require.NoError(t, err)
	assert.Equal(t, "[::1]:80", i.Addr())

	_, err = Parse("10.0.0.1")
	assert.Error(t, err)
	_, err = Parse("10.0.0.1:70000")
	assert.Error(t, err)

	assert.Equal(t, New("127.0.0.1", 9), FromTCPAddr(&net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 9}))
}
