// Package piece contains the block partitioning used by piece downloaders and uploaders.
package piece

// BlockSize is the length of every block except possibly the last block of a piece.
const BlockSize = 16 * 1024

// NumBlocks returns the number of blocks in a piece of given length.
func NumBlocks(length uint32) uint32 {
	div, mod := divMod32(length, BlockSize)
	if mod != 0 {
		div++
	}
	return div
}

// NewBlocks partitions [0, length) of piece into blocks of BlockSize.
// The last block has the remaining length.
func NewBlocks(index, length uint32) []Block {
	div, mod := divMod32(length, BlockSize)
	blocks := make([]Block, 0, NumBlocks(length))
	for j := uint32(0); j < div; j++ {
		blocks = append(blocks, Block{
			Index:  index,
			Begin:  j * BlockSize,
			Length: BlockSize,
		})
	}
	if mod != 0 {
		blocks = append(blocks, Block{
			Index:  index,
			Begin:  div * BlockSize,
			Length: mod,
		})
	}
	return blocks
}

func divMod32(a, b uint32) (uint32, uint32) { return a / b, a % b }
