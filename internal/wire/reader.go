// Package wire implements the little-endian primitives of the archive layout:
// fixed-width integers, null-terminated strings and raw byte runs.
package wire

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/meigma/gma/internal/gmatype"
)

// Reader decodes primitives from a byte source and tracks how many bytes
// have been consumed.
type Reader struct {
	r       *bufio.Reader
	n       int64
	scratch [8]byte
}

// NewReader returns a Reader consuming from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{r: bufio.NewReader(r)}
}

// Offset returns the number of bytes consumed so far.
func (r *Reader) Offset() int64 {
	return r.n
}

// ReadU8 reads a single byte.
func (r *Reader) ReadU8() (uint8, error) {
	b, err := r.fill(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadU16 reads a little-endian uint16.
func (r *Reader) ReadU16() (uint16, error) {
	b, err := r.fill(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// ReadU32 reads a little-endian uint32.
func (r *Reader) ReadU32() (uint32, error) {
	b, err := r.fill(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadU64 reads a little-endian uint64.
func (r *Reader) ReadU64() (uint64, error) {
	b, err := r.fill(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// ReadBytes reads exactly n bytes.
func (r *Reader) ReadBytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	read, err := io.ReadFull(r.r, buf)
	r.n += int64(read)
	if err != nil {
		return nil, mapEOF(err)
	}
	return buf, nil
}

// ReadCString reads bytes up to a zero terminator. The terminator is
// consumed but not returned. A source that ends before the terminator yields
// an error matching both ErrInvalidEncoding and ErrUnexpectedEOF.
func (r *Reader) ReadCString() (string, error) {
	line, err := r.r.ReadBytes(0)
	r.n += int64(len(line))
	if err != nil {
		if errors.Is(err, io.EOF) {
			return "", fmt.Errorf("%w: unterminated string: %w", gmatype.ErrInvalidEncoding, gmatype.ErrUnexpectedEOF)
		}
		return "", err
	}
	return string(bytes.TrimSuffix(line, []byte{0})), nil
}

func (r *Reader) fill(n int) ([]byte, error) {
	b := r.scratch[:n]
	read, err := io.ReadFull(r.r, b)
	r.n += int64(read)
	if err != nil {
		return nil, mapEOF(err)
	}
	return b, nil
}

// mapEOF converts short reads to ErrUnexpectedEOF and passes other
// errors through.
func mapEOF(err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return gmatype.ErrUnexpectedEOF
	}
	return err
}
