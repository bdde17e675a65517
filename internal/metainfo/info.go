package metainfo

import (
	"crypto/sha1" // nolint: gosec
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/zeebo/bencode"
)

var (
	errInvalidPieceData   = errors.New("invalid piece data")
	errInvalidPieceLength = errors.New("invalid piece length")
	errNoFiles            = errors.New("torrent has no files")
)

// Info contains information about torrent.
type Info struct {
	PieceLength uint32             `bencode:"piece length" json:"piece_length"`
	Pieces      []byte             `bencode:"pieces" json:"-"`
	Private     bencode.RawMessage `bencode:"private" json:"-"`
	Name        string             `bencode:"name" json:"name"`
	Length      int64              `bencode:"length" json:"length,omitempty"` // Single File Mode
	Files       []FileDict         `bencode:"files" json:"files,omitempty"`   // Multiple File mode

	// Calculated fields
	Hash        [20]byte `bencode:"-" json:"-"`
	TotalLength int64    `bencode:"-" json:"total_length"`
	NumPieces   uint32   `bencode:"-" json:"num_pieces"`
	Bytes       []byte   `bencode:"-" json:"-"`
	private     bool
}

// FileDict is a file entry in a multi file torrent.
type FileDict struct {
	Length int64    `bencode:"length" json:"length"`
	Path   []string `bencode:"path" json:"path"`
}

// File is a file of the torrent with its path relative to the download directory.
type File struct {
	Path   string
	Length int64
}

// NewInfo returns info from bencoded bytes in b.
func NewInfo(b []byte) (*Info, error) {
	var i Info
	if err := bencode.DecodeBytes(b, &i); err != nil {
		return nil, err
	}
	if i.PieceLength == 0 {
		return nil, errInvalidPieceLength
	}
	if uint32(len(i.Pieces))%sha1.Size != 0 {
		return nil, errInvalidPieceData
	}
	if len(i.Private) > 0 {
		var intVal int64
		var stringVal string
		err := bencode.DecodeBytes(i.Private, &intVal)
		if err != nil {
			err = bencode.DecodeBytes(i.Private, &stringVal)
			if err == nil {
				i.private = stringVal == "1"
			}
		} else {
			i.private = intVal == 1
		}
	}
	if strings.TrimSpace(i.Name) == ".." || strings.ContainsAny(i.Name, `/\`) {
		return nil, fmt.Errorf("invalid torrent name: %q", i.Name)
	}
	// ".." is not allowed in file names
	for _, file := range i.Files {
		if len(file.Path) == 0 {
			return nil, errors.New("file has empty path")
		}
		for _, path := range file.Path {
			if strings.TrimSpace(path) == ".." || strings.ContainsAny(path, `/\`) {
				return nil, fmt.Errorf("invalid file name: %q", filepath.Join(file.Path...))
			}
		}
	}
	i.NumPieces = uint32(len(i.Pieces)) / sha1.Size
	if !i.MultiFile() {
		i.TotalLength = i.Length
	} else {
		for _, f := range i.Files {
			i.TotalLength += f.Length
		}
	}
	if i.TotalLength <= 0 {
		return nil, errNoFiles
	}
	totalPieceDataLength := int64(i.PieceLength) * int64(i.NumPieces)
	delta := totalPieceDataLength - i.TotalLength
	if delta >= int64(i.PieceLength) || delta < 0 {
		return nil, errInvalidPieceData
	}
	i.Bytes = b
	hash := sha1.New()   // nolint: gosec
	_, _ = hash.Write(b) // nolint: gosec
	copy(i.Hash[:], hash.Sum(nil))
	return &i, nil
}

// MultiFile returns true if the torrent has a files list instead of a single file.
func (i *Info) MultiFile() bool {
	return len(i.Files) != 0
}

// HashOf returns the SHA-1 hash of the piece.
func (i *Info) HashOf(index uint32) []byte {
	begin := index * sha1.Size
	end := begin + sha1.Size
	return i.Pieces[begin:end]
}

// GetFiles returns the files in torrent as a slice, even if there is a single file.
// Files of a multi file torrent are placed under a directory with the torrent name.
func (i *Info) GetFiles() []File {
	if !i.MultiFile() {
		return []File{{Path: i.Name, Length: i.Length}}
	}
	files := make([]File, 0, len(i.Files))
	for _, f := range i.Files {
		parts := append([]string{i.Name}, f.Path...)
		files = append(files, File{Path: filepath.Join(parts...), Length: f.Length})
	}
	return files
}

// IsPrivate returns true if the torrent must only be shared with peers from trackers.
func (i *Info) IsPrivate() bool {
	if i == nil {
		return false
	}
	return i.private
}
