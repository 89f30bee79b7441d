// Package checksum computes the CRC-32 stamped on every archive entry.
package checksum

import (
	"hash"
	"hash/crc32"
	"io"
)

// Sum returns the CRC-32 (IEEE) of b.
func Sum(b []byte) uint32 {
	return crc32.ChecksumIEEE(b)
}

// New returns a streaming CRC-32 (IEEE) hash.
func New() hash.Hash32 {
	return crc32.NewIEEE()
}

// HashingReader wraps an io.Reader and computes the CRC-32 of all data read.
type HashingReader struct {
	r io.Reader
	h hash.Hash32
	n uint64
}

// NewHashingReader creates a reader that computes a CRC-32 while reading.
func NewHashingReader(r io.Reader) *HashingReader {
	return &HashingReader{r: r, h: New()}
}

// Read implements io.Reader.
func (hr *HashingReader) Read(p []byte) (int, error) {
	n, err := hr.r.Read(p)
	if n > 0 {
		_, _ = hr.h.Write(p[:n]) //nolint:errcheck // hash writes never fail
		hr.n += uint64(n)        //nolint:gosec // n is non-negative per io.Reader
	}
	return n, err
}

// Sum32 returns the checksum of the bytes read so far.
func (hr *HashingReader) Sum32() uint32 {
	return hr.h.Sum32()
}

// Count returns the number of bytes read so far.
func (hr *HashingReader) Count() uint64 {
	return hr.n
}
