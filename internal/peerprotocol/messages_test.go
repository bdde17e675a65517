package peerprotocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncode(t *testing.T) {
	assert.Equal(t, []byte{0, 0, 0, 0}, EncodeKeepAlive())
	assert.Equal(t, []byte{0, 0, 0, 1, 2}, Encode(InterestedMessage{}))
	assert.Equal(t, []byte{0, 0, 0, 5, 4, 0, 0, 1, 2}, Encode(HaveMessage{Index: 258}))
	assert.Equal(t,
		[]byte{0, 0, 0, 13, 6, 0, 0, 0, 1, 0, 0, 0x40, 0, 0, 0, 0x40, 0},
		Encode(RequestMessage{Index: 1, Begin: 16384, Length: 16384}))
	assert.Equal(t,
		[]byte{0, 0, 0, 13, 8, 0, 0, 0, 1, 0, 0, 0, 0, 0, 0, 0, 10},
		Encode(CancelMessage{RequestMessage{Index: 1, Begin: 0, Length: 10}}))
	assert.Equal(t,
		[]byte{0, 0, 0, 11, 7, 0, 0, 0, 2, 0, 0, 0, 3, 9, 8},
		Encode(PieceMessage{Index: 2, Begin: 3, Data: []byte{9, 8}}))
	assert.Equal(t, []byte{0, 0, 0, 3, 5, 0xff, 0x80}, Encode(BitfieldMessage{Data: []byte{0xff, 0x80}}))
	assert.Equal(t, []byte{0, 0, 0, 3, 9, 0x1a, 0xe1}, Encode(PortMessage{Port: 6881}))
}

func TestDecode(t *testing.T) {
	testCases := []struct {
		body []byte
		msg  Message
	}{
		{[]byte{0}, ChokeMessage{}},
		{[]byte{1}, UnchokeMessage{}},
		{[]byte{2}, InterestedMessage{}},
		{[]byte{3}, NotInterestedMessage{}},
		{[]byte{4, 0, 0, 0, 7}, HaveMessage{Index: 7}},
		{[]byte{5, 0xa0}, BitfieldMessage{Data: []byte{0xa0}}},
		{[]byte{6, 0, 0, 0, 1, 0, 0, 0, 2, 0, 0, 0, 3}, RequestMessage{1, 2, 3}},
		{[]byte{7, 0, 0, 0, 1, 0, 0, 0, 2, 5, 6}, PieceMessage{Index: 1, Begin: 2, Data: []byte{5, 6}}},
		{[]byte{8, 0, 0, 0, 1, 0, 0, 0, 2, 0, 0, 0, 3}, CancelMessage{RequestMessage{1, 2, 3}}},
		{[]byte{9, 0x1a, 0xe1}, PortMessage{Port: 6881}},
	}
	for _, tc := range testCases {
		msg, err := Decode(tc.body)
		require.NoError(t, err, "id: %d", tc.body[0])
		assert.Equal(t, tc.msg, msg)
	}
}

func TestDecodeErrors(t *testing.T) {
	_, err := Decode([]byte{20, 1, 2})
	assert.ErrorIs(t, err, ErrUnknownMessage)
	_, err = Decode([]byte{4, 0, 0})
	assert.ErrorIs(t, err, ErrInvalidPayload)
	_, err = Decode([]byte{0, 1})
	assert.ErrorIs(t, err, ErrInvalidPayload)
	_, err = Decode([]byte{7, 0, 0, 0, 1})
	assert.ErrorIs(t, err, ErrInvalidPayload)
	_, err = Decode([]byte{6, 0, 0, 0, 1})
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestMessageIDString(t *testing.T) {
	assert.Equal(t, "not interested", NotInterested.String())
	assert.Equal(t, "42", MessageID(42).String())
}
