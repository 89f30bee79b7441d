// Package filter implements the whole-body compression layer. Everything
// after the archive header is either stored verbatim or wrapped in a single
// LZMA ("alone" format) stream.
package filter

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/ulikunitz/xz/lzma"

	"github.com/meigma/gma/internal/gmatype"
)

// lzmaDefaultProperties is the properties byte (lc=3, lp=0, pb=2) written by
// practically every LZMA-alone encoder, including this one.
const lzmaDefaultProperties = 0x5D

// NewWriter returns a writer that compresses into w when compressed is true.
// Otherwise it returns a pass-through whose Close does nothing.
//
// Close must be called to flush the compressed stream; it does not close w.
func NewWriter(w io.Writer, compressed bool) (io.WriteCloser, error) {
	if !compressed {
		return nopWriteCloser{w}, nil
	}
	zw, err := lzma.NewWriter(w)
	if err != nil {
		return nil, fmt.Errorf("create lzma writer: %w", err)
	}
	return zw, nil
}

// NewReader returns a reader that decompresses r when compressed is true.
// Otherwise r is returned unchanged. Corrupt or truncated input surfaces as
// ErrCompression from Read.
func NewReader(r io.Reader, compressed bool) (io.Reader, error) {
	if !compressed {
		return r, nil
	}
	zr, err := lzma.NewReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", gmatype.ErrCompression, err)
	}
	return &errReader{r: zr}, nil
}

// Decompress reads and decompresses an entire LZMA stream from r.
// A limit of 0 disables the size check; otherwise output larger than limit
// fails with ErrSizeOverflow.
func Decompress(r io.Reader, limit uint64) ([]byte, error) {
	zr, err := NewReader(r, true)
	if err != nil {
		return nil, err
	}
	if limit == 0 || limit > math.MaxInt64-1 {
		return io.ReadAll(zr)
	}
	lr := &io.LimitedReader{R: zr, N: int64(limit) + 1} //nolint:gosec // checked above
	data, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if uint64(len(data)) > limit {
		return nil, fmt.Errorf("decompressed body exceeds %d bytes: %w", limit, gmatype.ErrSizeOverflow)
	}
	return data, nil
}

// Compress compresses data into a single LZMA stream.
func Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw, err := NewWriter(&buf, true)
	if err != nil {
		return nil, err
	}
	if _, err := zw.Write(data); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// IsCompressed reports whether a body starting with prefix is compressed.
//
// An uncompressed body starts with the entry table, whose first u32 is either
// the file number 1 or the terminator 0. Anything else is taken to be an
// LZMA stream. prefix must hold at least four bytes.
func IsCompressed(prefix []byte) bool {
	if len(prefix) < 4 {
		return false
	}
	return binary.LittleEndian.Uint32(prefix) > 1
}

// IsLZMA reports whether prefix looks like the start of an LZMA-alone stream
// produced with default properties.
func IsLZMA(prefix []byte) bool {
	return len(prefix) > 0 && prefix[0] == lzmaDefaultProperties
}

// errReader maps decoder failures to ErrCompression.
type errReader struct {
	r io.Reader
}

func (e *errReader) Read(p []byte) (int, error) {
	n, err := e.r.Read(p)
	if err != nil && !errors.Is(err, io.EOF) {
		return n, fmt.Errorf("%w: %v", gmatype.ErrCompression, err)
	}
	return n, err
}

type nopWriteCloser struct {
	io.Writer
}

func (nopWriteCloser) Close() error { return nil }
