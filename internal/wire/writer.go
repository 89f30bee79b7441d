package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/meigma/gma/internal/gmatype"
)

// ErrOverflow indicates a counter exceeded its maximum value.
var ErrOverflow = errors.New("counter overflow")

// Writer encodes primitives to a byte sink. The first error is sticky:
// once a write fails every later write is a no-op and Err reports it.
type Writer struct {
	w       io.Writer
	n       int64
	err     error
	scratch [8]byte
}

// NewWriter returns a Writer appending to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Err returns the first error encountered, if any.
func (w *Writer) Err() error {
	return w.err
}

// Count returns the number of bytes successfully written.
func (w *Writer) Count() int64 {
	return w.n
}

// WriteU8 writes a single byte.
func (w *Writer) WriteU8(v uint8) {
	w.scratch[0] = v
	w.WriteBytes(w.scratch[:1])
}

// WriteU16 writes a little-endian uint16.
func (w *Writer) WriteU16(v uint16) {
	binary.LittleEndian.PutUint16(w.scratch[:2], v)
	w.WriteBytes(w.scratch[:2])
}

// WriteU32 writes a little-endian uint32.
func (w *Writer) WriteU32(v uint32) {
	binary.LittleEndian.PutUint32(w.scratch[:4], v)
	w.WriteBytes(w.scratch[:4])
}

// WriteU64 writes a little-endian uint64.
func (w *Writer) WriteU64(v uint64) {
	binary.LittleEndian.PutUint64(w.scratch[:8], v)
	w.WriteBytes(w.scratch[:8])
}

// WriteCString writes s followed by a zero terminator. Strings containing
// a zero byte cannot be represented and latch ErrInvalidEncoding.
func (w *Writer) WriteCString(s string) {
	if w.err != nil {
		return
	}
	if strings.IndexByte(s, 0) >= 0 {
		w.err = fmt.Errorf("%w: string contains NUL: %q", gmatype.ErrInvalidEncoding, s)
		return
	}
	w.WriteBytes([]byte(s))
	w.WriteU8(0)
}

// WriteBytes writes p verbatim.
func (w *Writer) WriteBytes(p []byte) {
	if w.err != nil {
		return
	}
	n, err := w.w.Write(p)
	w.n += int64(n)
	if err == nil && n < len(p) {
		err = io.ErrShortWrite
	}
	w.err = err
}

// CountingWriter wraps a writer and counts bytes written.
type CountingWriter struct {
	W io.Writer
	N uint64
}

// Write implements io.Writer.
func (cw *CountingWriter) Write(p []byte) (int, error) {
	n, err := cw.W.Write(p)
	if n > 0 {
		//nolint:gosec // n is guaranteed non-negative by io.Writer contract
		if cw.N > ^uint64(0)-uint64(n) {
			return n, ErrOverflow
		}
		cw.N += uint64(n) //nolint:gosec // overflow checked above
	}
	return n, err
}
