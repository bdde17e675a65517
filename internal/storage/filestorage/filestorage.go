// Package filestorage implements Storage interface that uses files on disk as storage.
package filestorage

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/cenkalti/drizzle/internal/storage"
)

var errOutsideDest = errors.New("file path is outside of destination directory")

// FileStorage creates torrent files under a destination directory.
type FileStorage struct {
	dest string
}

// New returns a FileStorage rooted at dest.
func New(dest string) (*FileStorage, error) {
	var err error
	dest, err = filepath.Abs(dest)
	if err != nil {
		return nil, err
	}
	return &FileStorage{dest: dest}, nil
}

var _ storage.Storage = (*FileStorage)(nil)

// Dest returns the destination directory.
func (s *FileStorage) Dest() string {
	return s.dest
}

// Open implements storage.Storage interface.
func (s *FileStorage) Open(name string, size int64) (f storage.File, exists bool, err error) {
	name = filepath.Clean(name)

	// All files are saved under dest.
	name = filepath.Join(s.dest, name)
	if name != s.dest && !strings.HasPrefix(name, s.dest+string(filepath.Separator)) {
		err = errOutsideDest
		return
	}

	// Create containing dir if not exists.
	err = os.MkdirAll(filepath.Dir(name), os.ModeDir|0750)
	if err != nil {
		return
	}

	// Make sure OS file is closed in case of any error.
	var of *os.File
	defer func() {
		if err != nil && of != nil {
			_ = of.Close()
		}
	}()

	// Open OS file.
	const mode = 0640
	of, err = os.OpenFile(name, os.O_RDWR, mode) // nolint: gosec
	if os.IsNotExist(err) {
		of, err = os.OpenFile(name, os.O_RDWR|os.O_CREATE, mode) // nolint: gosec
		if err != nil {
			return
		}
		err = of.Truncate(size)
		if err != nil {
			return
		}
		f = of
		err = disableReadAhead(of)
		return
	}
	if err != nil {
		return
	}
	exists = true
	fi, err := of.Stat()
	if err != nil {
		return
	}
	if fi.Size() != size {
		err = of.Truncate(size)
		if err != nil {
			return
		}
	}
	f = of
	err = disableReadAhead(of)
	return
}
