// Package storage contains an interface for creating the files of a torrent.
package storage

import "io"

// Storage is an interface for opening torrent files.
type Storage interface {
	// Open returns the file with name, created and truncated to size if needed.
	// exists is true if the file was already on disk.
	Open(name string, size int64) (f File, exists bool, err error)
}

// File interface for reading/writing torrent data.
type File interface {
	io.ReadWriteSeeker
	io.Closer
}
