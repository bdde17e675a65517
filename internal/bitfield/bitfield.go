// Package bitfield implements the piece possession vector exchanged in
// bitfield messages. Bit 0 is the most significant bit of the first byte.
package bitfield

import "encoding/hex"

// Bitfield is a fixed size vector of bits. The size never changes after creation.
type Bitfield struct {
	b      []byte
	length uint32
}

// New creates a new Bitfield of length bits, all cleared.
func New(length uint32) *Bitfield {
	return &Bitfield{b: make([]byte, numBytes(length)), length: length}
}

// NewBytes returns a new Bitfield from the wire representation in b.
// Bytes in b are copied. Spare bits in the last byte are cleared.
// Returns false if b does not have exactly the number of bytes needed for length bits.
func NewBytes(b []byte, length uint32) (*Bitfield, bool) {
	if uint32(len(b)) != numBytes(length) {
		return nil, false
	}
	bf := &Bitfield{b: make([]byte, len(b)), length: length}
	copy(bf.b, b)
	if mod := length % 8; mod != 0 {
		bf.b[len(bf.b)-1] &= ^byte(0xff >> mod)
	}
	return bf, true
}

// SpareBitsSet returns true if any of the padding bits after length bits is set in b.
func SpareBitsSet(b []byte, length uint32) bool {
	mod := length % 8
	if mod == 0 || len(b) == 0 {
		return false
	}
	return b[len(b)-1]&byte(0xff>>mod) != 0
}

// Bytes returns the wire representation, padded with zero bits to a byte boundary.
// The returned slice is a copy.
func (b *Bitfield) Bytes() []byte {
	out := make([]byte, len(b.b))
	copy(out, b.b)
	return out
}

// Copy returns an independent copy of b.
func (b *Bitfield) Copy() *Bitfield {
	return &Bitfield{b: b.Bytes(), length: b.length}
}

// Len returns the number of bits as given to New.
func (b *Bitfield) Len() uint32 { return b.length }

// Hex returns bytes as string.
func (b *Bitfield) Hex() string { return hex.EncodeToString(b.b) }

// Set bit i. Panics if i >= b.Len().
func (b *Bitfield) Set(i uint32) {
	b.checkIndex(i)
	b.b[i/8] |= 1 << (7 - i%8)
}

// SetTo sets bit i to value. Panics if i >= b.Len().
func (b *Bitfield) SetTo(i uint32, value bool) {
	if value {
		b.Set(i)
	} else {
		b.Clear(i)
	}
}

// Clear bit i. Panics if i >= b.Len().
func (b *Bitfield) Clear(i uint32) {
	b.checkIndex(i)
	b.b[i/8] &= ^(1 << (7 - i%8))
}

// ClearAll clears all bits.
func (b *Bitfield) ClearAll() {
	for i := range b.b {
		b.b[i] = 0
	}
}

// Test bit i. Panics if i >= b.Len().
func (b *Bitfield) Test(i uint32) bool {
	b.checkIndex(i)
	return b.b[i/8]&(1<<(7-i%8)) != 0
}

var countCache = [256]byte{
	0, 1, 1, 2, 1, 2, 2, 3, 1, 2, 2, 3, 2, 3, 3, 4,
	1, 2, 2, 3, 2, 3, 3, 4, 2, 3, 3, 4, 3, 4, 4, 5,
	1, 2, 2, 3, 2, 3, 3, 4, 2, 3, 3, 4, 3, 4, 4, 5,
	2, 3, 3, 4, 3, 4, 4, 5, 3, 4, 4, 5, 4, 5, 5, 6,
	1, 2, 2, 3, 2, 3, 3, 4, 2, 3, 3, 4, 3, 4, 4, 5,
	2, 3, 3, 4, 3, 4, 4, 5, 3, 4, 4, 5, 4, 5, 5, 6,
	2, 3, 3, 4, 3, 4, 4, 5, 3, 4, 4, 5, 4, 5, 5, 6,
	3, 4, 4, 5, 4, 5, 5, 6, 4, 5, 5, 6, 5, 6, 6, 7,
	1, 2, 2, 3, 2, 3, 3, 4, 2, 3, 3, 4, 3, 4, 4, 5,
	2, 3, 3, 4, 3, 4, 4, 5, 3, 4, 4, 5, 4, 5, 5, 6,
	2, 3, 3, 4, 3, 4, 4, 5, 3, 4, 4, 5, 4, 5, 5, 6,
	3, 4, 4, 5, 4, 5, 5, 6, 4, 5, 5, 6, 5, 6, 6, 7,
	2, 3, 3, 4, 3, 4, 4, 5, 3, 4, 4, 5, 4, 5, 5, 6,
	3, 4, 4, 5, 4, 5, 5, 6, 4, 5, 5, 6, 5, 6, 6, 7,
	3, 4, 4, 5, 4, 5, 5, 6, 4, 5, 5, 6, 5, 6, 6, 7,
	4, 5, 5, 6, 5, 6, 6, 7, 5, 6, 6, 7, 6, 7, 7, 8,
}

// Count returns the number of set bits.
func (b *Bitfield) Count() uint32 {
	var total uint32
	for _, v := range b.b {
		total += uint32(countCache[v])
	}
	return total
}

// All returns true if all bits are set.
func (b *Bitfield) All() bool {
	return b.Count() == b.length
}

func (b *Bitfield) checkIndex(i uint32) {
	if i >= b.length {
		panic("bitfield: index out of range")
	}
}

func numBytes(length uint32) uint32 { return (length + 7) / 8 }
