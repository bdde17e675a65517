// Package multifile presents a list of fixed length files as one contiguous byte stream.
package multifile

import (
	"errors"
	"fmt"
	"io"
)

// ErrOutOfRange is returned when an operation reaches past the end of the last file.
var ErrOutOfRange = errors.New("range is outside of files")

// File is one of the files making up the stream.
type File struct {
	Handle io.ReadWriteSeeker
	Length int64
}

type section struct {
	File
	start int64 // offset of first byte in stream
}

// Handle reads and writes the concatenation of files.
// Handle keeps a cursor and is not safe for concurrent use.
type Handle struct {
	sections []section
	length   int64

	current int   // index of the section the cursor is in
	offset  int64 // cursor position in stream
}

// New returns a Handle over files in given order.
func New(files []File) *Handle {
	h := &Handle{sections: make([]section, len(files))}
	for i, f := range files {
		h.sections[i] = section{File: f, start: h.length}
		h.length += f.Length
	}
	return h
}

// Len returns the total length of all files.
func (h *Handle) Len() int64 { return h.length }

// Seek moves the cursor to offset in stream and positions the owning file at the local offset.
func (h *Handle) Seek(offset int64) error {
	if offset < 0 || offset > h.length {
		return ErrOutOfRange
	}
	h.offset = offset
	h.current = len(h.sections)
	for i, s := range h.sections {
		if offset < s.start+s.Length {
			h.current = i
			_, err := s.Handle.Seek(offset-s.start, io.SeekStart)
			return err
		}
	}
	return nil
}

// advance moves the cursor to the beginning of the next file.
func (h *Handle) advance() error {
	h.current++
	if h.current >= len(h.sections) {
		return nil
	}
	_, err := h.sections[h.current].Handle.Seek(0, io.SeekStart)
	return err
}

func (h *Handle) leftInCurrent() int64 {
	s := h.sections[h.current]
	return s.start + s.Length - h.offset
}

// Read reads n bytes at cursor, continuing into following files as each one is exhausted.
func (h *Handle) Read(n int) ([]byte, error) {
	if h.offset+int64(n) > h.length {
		return nil, ErrOutOfRange
	}
	buf := make([]byte, n)
	var done int
	for done < n {
		left := h.leftInCurrent()
		if left == 0 {
			if err := h.advance(); err != nil {
				return nil, err
			}
			continue
		}
		m := min64(left, int64(n-done))
		s := h.sections[h.current]
		if _, err := io.ReadFull(s.Handle, buf[done:done+int(m)]); err != nil {
			return nil, fmt.Errorf("read file #%d: %w", h.current, err)
		}
		done += int(m)
		h.offset += m
	}
	return buf, nil
}

// Write writes data at cursor, splitting it at file boundaries.
func (h *Handle) Write(data []byte) error {
	if h.offset+int64(len(data)) > h.length {
		return ErrOutOfRange
	}
	for len(data) > 0 {
		left := h.leftInCurrent()
		if left == 0 {
			if err := h.advance(); err != nil {
				return err
			}
			continue
		}
		m := min64(left, int64(len(data)))
		s := h.sections[h.current]
		n, err := s.Handle.Write(data[:m])
		if err != nil {
			return fmt.Errorf("write file #%d: %w", h.current, err)
		}
		if int64(n) < m {
			return io.ErrShortWrite
		}
		data = data[m:]
		h.offset += m
	}
	return nil
}

// ReadAt seeks to off and reads n bytes.
func (h *Handle) ReadAt(n int, off int64) ([]byte, error) {
	if err := h.Seek(off); err != nil {
		return nil, err
	}
	return h.Read(n)
}

// WriteAt seeks to off and writes data.
func (h *Handle) WriteAt(data []byte, off int64) error {
	if err := h.Seek(off); err != nil {
		return err
	}
	return h.Write(data)
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
