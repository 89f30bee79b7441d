package gma

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/meigma/gma/internal/checksum"
	"github.com/meigma/gma/internal/platform"
)

// source produces the content of one entry. prepare reports the size and
// checksum; write then streams the same content and must fail with
// ErrValidation if it no longer matches.
type source interface {
	prepare() (size uint64, crc uint32, err error)
	write(w io.Writer, size uint64, crc uint32) error
}

// bytesSource serves content held in memory.
type bytesSource struct {
	data []byte
}

func (s *bytesSource) prepare() (uint64, uint32, error) {
	return uint64(len(s.data)), checksum.Sum(s.data), nil
}

func (s *bytesSource) write(w io.Writer, _ uint64, _ uint32) error {
	_, err := io.Copy(w, bytes.NewReader(s.data))
	return err
}

// readerSource drains a one-shot reader into memory on the first pass.
type readerSource struct {
	r    io.Reader
	data []byte
}

func (s *readerSource) prepare() (uint64, uint32, error) {
	data, err := io.ReadAll(s.r)
	if err != nil {
		return 0, 0, err
	}
	s.data = data
	return uint64(len(data)), checksum.Sum(data), nil
}

func (s *readerSource) write(w io.Writer, _ uint64, _ uint32) error {
	_, err := io.Copy(w, bytes.NewReader(s.data))
	return err
}

// readerAtSource reads a known-length region twice.
type readerAtSource struct {
	ra   io.ReaderAt
	size int64
}

func (s *readerAtSource) prepare() (uint64, uint32, error) {
	if s.size < 0 {
		return 0, 0, fmt.Errorf("%w: negative size %d", ErrValidation, s.size)
	}
	hr := checksum.NewHashingReader(io.NewSectionReader(s.ra, 0, s.size))
	if _, err := io.Copy(io.Discard, hr); err != nil {
		return 0, 0, err
	}
	if hr.Count() != uint64(s.size) {
		return 0, 0, fmt.Errorf("%w: read %d of %d bytes", ErrValidation, hr.Count(), s.size)
	}
	return hr.Count(), hr.Sum32(), nil
}

func (s *readerAtSource) write(w io.Writer, size uint64, crc uint32) error {
	return copyChecked(w, io.NewSectionReader(s.ra, 0, s.size), size, crc)
}

// fileSource opens a regular file under dir on each pass.
type fileSource struct {
	dir  string
	name string
}

func (s *fileSource) open() (*os.File, error) {
	root, err := os.OpenRoot(s.dir)
	if err != nil {
		return nil, err
	}
	defer root.Close()
	return platform.OpenRegular(root, s.name)
}

func (s *fileSource) prepare() (uint64, uint32, error) {
	f, err := s.open()
	if err != nil {
		return 0, 0, err
	}
	defer f.Close()

	hr := checksum.NewHashingReader(f)
	if _, err := io.Copy(io.Discard, hr); err != nil {
		return 0, 0, fmt.Errorf("read %s: %w", s.name, err)
	}
	return hr.Count(), hr.Sum32(), nil
}

func (s *fileSource) write(w io.Writer, size uint64, crc uint32) error {
	f, err := s.open()
	if err != nil {
		return err
	}
	defer f.Close()

	// Limit to size+1 so growth is detected without copying the excess.
	return copyChecked(w, io.LimitReader(f, int64(size)+1), size, crc) //nolint:gosec // size came from a file read
}

// errSource fails both passes with a fixed error.
type errSource struct {
	err error
}

func (s *errSource) prepare() (uint64, uint32, error) { return 0, 0, s.err }

func (s *errSource) write(io.Writer, uint64, uint32) error { return s.err }

// copyChecked copies r to w and fails with ErrValidation if the content no
// longer matches the size and checksum from the first pass. Once the content
// has diverged the archive on w is unusable.
func copyChecked(w io.Writer, r io.Reader, size uint64, crc uint32) error {
	hr := checksum.NewHashingReader(r)
	n, err := io.Copy(w, io.LimitReader(hr, int64(size))) //nolint:gosec // size bounded by first pass
	if err != nil {
		return err
	}
	if uint64(n) != size { //nolint:gosec // n is non-negative
		return fmt.Errorf("%w: content shrank from %d to %d bytes", ErrValidation, size, n)
	}
	var probe [1]byte
	if m, _ := hr.Read(probe[:]); m > 0 {
		return fmt.Errorf("%w: content grew beyond %d bytes", ErrValidation, size)
	}
	if hr.Sum32() != crc {
		return fmt.Errorf("%w: content changed since its checksum was taken", ErrValidation)
	}
	return nil
}
