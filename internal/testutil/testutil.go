// Package testutil builds archives byte by byte for tests, including
// malformed ones the Builder refuses to produce.
package testutil

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/meigma/gma/internal/checksum"
	"github.com/meigma/gma/internal/filter"
	"github.com/meigma/gma/internal/gmatype"
	"github.com/meigma/gma/internal/wire"
)

// RawEntry is one entry table row plus the content written for it.
// Size and CRC are taken from Data unless overridden.
type RawEntry struct {
	Index uint32 // 0 means "position + 1"
	Name  string
	Data  []byte

	Size    *uint64
	CRC     *uint32
	Omitted bool // write the row but no content
}

// RawArchive describes an archive to encode verbatim.
type RawArchive struct {
	Magic           []byte // nil means "GMAD"
	Version         uint8
	AuthorID        uint64
	Timestamp       uint64
	RequiredContent []string
	Name            string
	Description     string
	Author          string
	AddonVersion    uint32
	Entries         []RawEntry
	Compressed      bool
	Trailer         []byte // appended after the content, inside the body
}

// Bytes encodes the archive. It fails the test on encoding errors.
func (r RawArchive) Bytes(tb testing.TB) []byte {
	tb.Helper()

	var head bufferWriter
	hw := wire.NewWriter(&head)
	magic := r.Magic
	if magic == nil {
		magic = gmatype.Magic[:]
	}
	hw.WriteBytes(magic)
	hw.WriteU8(r.Version)
	hw.WriteU64(r.AuthorID)
	hw.WriteU64(r.Timestamp)
	if gmatype.HasRequiredContent(r.Version) {
		for _, item := range r.RequiredContent {
			hw.WriteCString(item)
		}
		hw.WriteCString("")
	}
	hw.WriteCString(r.Name)
	hw.WriteCString(r.Description)
	hw.WriteCString(r.Author)
	hw.WriteU32(r.AddonVersion)
	if err := hw.Err(); err != nil {
		tb.Fatalf("encode header: %v", err)
	}

	var body bufferWriter
	bw := wire.NewWriter(&body)
	for i, e := range r.Entries {
		index := e.Index
		if index == 0 {
			index = uint32(i + 1) //nolint:gosec // test sizes
		}
		size := uint64(len(e.Data))
		if e.Size != nil {
			size = *e.Size
		}
		crc := checksum.Sum(e.Data)
		if e.CRC != nil {
			crc = *e.CRC
		}
		bw.WriteU32(index)
		bw.WriteCString(e.Name)
		bw.WriteU64(size)
		bw.WriteU32(crc)
	}
	bw.WriteU32(0)
	for _, e := range r.Entries {
		if !e.Omitted {
			bw.WriteBytes(e.Data)
		}
	}
	bw.WriteBytes(r.Trailer)
	if err := bw.Err(); err != nil {
		tb.Fatalf("encode body: %v", err)
	}

	out := body.b
	if r.Compressed {
		var err error
		out, err = filter.Compress(body.b)
		if err != nil {
			tb.Fatalf("compress body: %v", err)
		}
	}
	return append(head.b, out...)
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T {
	return &v
}

type bufferWriter struct {
	b []byte
}

func (w *bufferWriter) Write(p []byte) (int, error) {
	w.b = append(w.b, p...)
	return len(p), nil
}

// TrackingReaderAt is an io.ReaderAt over a byte slice that records the
// highest offset read.
type TrackingReaderAt struct {
	data []byte

	mu      sync.Mutex
	maxRead int64
}

// NewTrackingReaderAt returns a reader over data.
func NewTrackingReaderAt(data []byte) *TrackingReaderAt {
	return &TrackingReaderAt{data: data}
}

// ReadAt implements io.ReaderAt semantics over the backing slice.
func (m *TrackingReaderAt) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(m.data)) {
		return 0, io.EOF
	}
	n := copy(p, m.data[off:])
	m.mu.Lock()
	if end := off + int64(n); end > m.maxRead {
		m.maxRead = end
	}
	m.mu.Unlock()
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

// Size returns the total size of the backing data.
func (m *TrackingReaderAt) Size() int64 {
	return int64(len(m.data))
}

// MaxRead returns the end of the furthest read so far.
func (m *TrackingReaderAt) MaxRead() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.maxRead
}

// ErrSinkFull is returned by LimitedWriter once its limit is reached.
var ErrSinkFull = errors.New("sink full")

// LimitedWriter accepts N bytes and then fails every write.
type LimitedWriter struct {
	N int
}

// Write implements io.Writer.
func (w *LimitedWriter) Write(p []byte) (int, error) {
	if len(p) <= w.N {
		w.N -= len(p)
		return len(p), nil
	}
	n := w.N
	w.N = 0
	return n, ErrSinkFull
}

// WriteFiles creates files below dir from a map of slash-separated paths to
// contents.
func WriteFiles(tb testing.TB, dir string, files map[string]string) {
	tb.Helper()
	for name, content := range files {
		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			tb.Fatalf("mkdir %s: %v", filepath.Dir(path), err)
		}
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			tb.Fatalf("write %s: %v", path, err)
		}
	}
}
