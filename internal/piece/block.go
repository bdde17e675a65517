package piece

// Block is a contiguous range of a piece. It is the unit of wire transfer.
type Block struct {
	Index  uint32 // piece index in torrent
	Begin  uint32 // offset in piece
	Length uint32
}

// Equal reports whether both blocks refer to the same range of the same piece.
func (b Block) Equal(o Block) bool {
	return b.Index == o.Index && b.Begin == o.Begin && b.Length == o.Length
}

// End returns the offset in piece just after the last byte of the block.
func (b Block) End() uint32 { return b.Begin + b.Length }
