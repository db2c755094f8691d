// Copyright (c) pacozip contributors
// Licensed under the MIT license

// Package archivestore wraps the seekable byte container an archive is
// built on, exposing absolute-offset reads/writes and end-of-file append
// regardless of whether the container is an owned *os.File or a borrowed
// stream supplied by the caller.
package archivestore

import (
	"io"
	"os"
)

// Medium is the capability an archive store needs from its underlying
// container.
type Medium interface {
	io.ReaderAt
	io.WriterAt
	io.Seeker
}

// Store is a random-access byte container bound to one archive for its
// whole lifetime.
type Store struct {
	medium Medium
	owned  io.Closer // non-nil only when the Store owns the file and must close it
}

// Open wraps a caller-supplied, already-positioned medium. Its lifetime
// must outlive the Store; Close is then a no-op.
func Open(medium Medium) *Store {
	return &Store{medium: medium}
}

// OpenFile opens (or creates) a named file on disk and returns an owned
// Store that closes the file on Close.
func OpenFile(path string, flag int, perm os.FileMode) (*Store, error) {
	f, err := os.OpenFile(path, flag, perm)
	if err != nil {
		return nil, err
	}
	return &Store{medium: f, owned: f}, nil
}

// Close releases the underlying file if the Store owns it.
func (s *Store) Close() error {
	if s.owned != nil {
		return s.owned.Close()
	}
	return nil
}

// ReadAt reads n bytes starting at off.
func (s *Store) ReadAt(off int64, n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := s.medium.ReadAt(buf, off); err != nil {
		return nil, err
	}
	return buf, nil
}

// WriteAt writes p at off.
func (s *Store) WriteAt(off int64, p []byte) error {
	_, err := s.medium.WriteAt(p, off)
	return err
}

// EndOffset returns the current length of the container, saving and
// restoring the medium's seek position around the probe (callers must not
// assume the medium preserves position on its own).
func (s *Store) EndOffset() (int64, error) {
	cur, err := s.medium.Seek(0, io.SeekCurrent)
	if err != nil {
		return 0, err
	}
	end, err := s.medium.Seek(0, io.SeekEnd)
	if err != nil {
		return 0, err
	}
	if _, err := s.medium.Seek(cur, io.SeekStart); err != nil {
		return 0, err
	}
	return end, nil
}

// SectionReader returns an io.ReaderAt limited to [off, off+n) of the
// archive, handy for handing a payload region to a codec without the codec
// needing to track absolute offsets itself.
func (s *Store) SectionReader(off, n int64) *io.SectionReader {
	return io.NewSectionReader(s.medium, off, n)
}
