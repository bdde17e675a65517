package metainfo

import (
	"crypto/sha1" // nolint: gosec
	"errors"
	"io"

	"github.com/zeebo/bencode"
)

// NewInfoBytes returns a bencoded info dictionary for the files.
// Contents of all files are read from r in order.
// A single file without path is encoded in single file mode with name as the file name.
func NewInfoBytes(name string, files []FileDict, pieceLength uint32, private bool, r io.Reader) ([]byte, error) {
	if pieceLength == 0 {
		return nil, errInvalidPieceLength
	}
	if len(files) == 0 {
		return nil, errNoFiles
	}
	var total int64
	for _, f := range files {
		total += f.Length
	}
	pieces, err := hashPieces(io.LimitReader(r, total), pieceLength)
	if err != nil {
		return nil, err
	}
	if int64(len(pieces)/sha1.Size) != (total+int64(pieceLength)-1)/int64(pieceLength) {
		return nil, io.ErrUnexpectedEOF
	}
	info := struct {
		PieceLength uint32     `bencode:"piece length"`
		Pieces      []byte     `bencode:"pieces"`
		Private     int        `bencode:"private,omitempty"`
		Name        string     `bencode:"name"`
		Length      int64      `bencode:"length,omitempty"`
		Files       []FileDict `bencode:"files,omitempty"`
	}{
		PieceLength: pieceLength,
		Pieces:      pieces,
		Name:        name,
	}
	if private {
		info.Private = 1
	}
	if len(files) == 1 && len(files[0].Path) == 0 {
		info.Length = files[0].Length
	} else {
		info.Files = files
	}
	return bencode.EncodeBytes(info)
}

func hashPieces(r io.Reader, pieceLength uint32) ([]byte, error) {
	var pieces []byte
	buf := make([]byte, pieceLength)
	for {
		n, err := io.ReadFull(r, buf)
		if n > 0 {
			sum := sha1.Sum(buf[:n]) // nolint: gosec
			pieces = append(pieces, sum[:]...)
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return pieces, nil
		}
		if err != nil {
			return nil, err
		}
	}
}
