package gma

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"log/slog"
	"math"
	"slices"

	"github.com/meigma/gma/internal/checksum"
)

// Archive is a decoded archive. The header and entry table are held in
// memory; entry content is read on demand from the underlying source and is
// never cached.
//
// An Archive is read-only. It is safe for concurrent use when its source
// supports concurrent ReadAt calls, which holds for *os.File and byte slices.
type Archive struct {
	header      Header
	entries     []Entry
	byName      map[string]int
	content     io.ReaderAt
	contentSize int64
	verify      bool
	maxBodySize uint64
	logger      *slog.Logger
}

// log returns the logger, falling back to a discard logger if nil.
func (a *Archive) log() *slog.Logger {
	if a.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return a.logger
}

// Header returns a copy of the archive header.
func (a *Archive) Header() Header {
	h := a.header
	h.RequiredContent = slices.Clone(a.header.RequiredContent)
	h.Tags = slices.Clone(a.header.Tags)
	return h
}

// Version returns the format version.
func (a *Archive) Version() uint8 { return a.header.Version }

// AuthorID returns the publishing account identifier.
func (a *Archive) AuthorID() uint64 { return a.header.AuthorID }

// Timestamp returns the creation time in seconds since the Unix epoch.
func (a *Archive) Timestamp() uint64 { return a.header.Timestamp }

// RequiredContent returns the required-content list.
func (a *Archive) RequiredContent() []string { return slices.Clone(a.header.RequiredContent) }

// Name returns the addon name.
func (a *Archive) Name() string { return a.header.Name }

// Description returns the human-readable description.
func (a *Archive) Description() string { return a.header.Description }

// RawDescription returns the description field exactly as stored.
func (a *Archive) RawDescription() string { return a.header.RawDescription }

// Author returns the author name.
func (a *Archive) Author() string { return a.header.Author }

// Type returns the addon type, or TypeUnknown.
func (a *Archive) Type() AddonType { return a.header.Type }

// Tags returns the addon tags in stored order.
func (a *Archive) Tags() []AddonTag { return slices.Clone(a.header.Tags) }

// HasTag reports whether the addon carries tag.
func (a *Archive) HasTag(tag AddonTag) bool { return slices.Contains(a.header.Tags, tag) }

// Compressed reports whether the archive body was LZMA compressed.
func (a *Archive) Compressed() bool { return a.header.Compressed }

// Len returns the number of entries.
func (a *Archive) Len() int { return len(a.entries) }

// Entries returns an iterator over all entries in table order.
func (a *Archive) Entries() iter.Seq[Entry] {
	return func(yield func(Entry) bool) {
		for _, e := range a.entries {
			if !yield(e) {
				return
			}
		}
	}
}

// Entry returns the i-th entry (0-based) in table order.
func (a *Archive) Entry(i int) (Entry, bool) {
	if i < 0 || i >= len(a.entries) {
		return Entry{}, false
	}
	return a.entries[i], true
}

// Lookup returns the entry with the given filename.
func (a *Archive) Lookup(name string) (Entry, bool) {
	i, ok := a.byName[name]
	if !ok {
		return Entry{}, false
	}
	return a.entries[i], true
}

// EntryReader returns a reader bounded to exactly the content of e.
// The returned reader does not verify the checksum.
func (a *Archive) EntryReader(e Entry) (*io.SectionReader, error) {
	entry, err := a.resolve(e)
	if err != nil {
		return nil, err
	}
	return a.section(entry)
}

// ReadEntry presents a reader over the content of e to fn.
//
// When verification is enabled (WithVerify or ReadWithVerify), any content fn
// left unread is drained after fn returns and the CRC-32 of the whole entry is
// compared with the stored value; a difference fails with ErrChecksumMismatch.
// The error returned by fn is returned as-is and skips verification.
func (a *Archive) ReadEntry(e Entry, fn func(r io.Reader) error, opts ...ReadOption) error {
	cfg := readConfig{verify: a.verify}
	for _, opt := range opts {
		opt(&cfg)
	}

	entry, err := a.resolve(e)
	if err != nil {
		return err
	}
	section, err := a.section(entry)
	if err != nil {
		return err
	}
	if !cfg.verify {
		return fn(section)
	}

	hr := checksum.NewHashingReader(section)
	if err := fn(hr); err != nil {
		return err
	}
	if _, err := io.Copy(io.Discard, hr); err != nil {
		return fmt.Errorf("read %s: %w", entry.Name, err)
	}
	return checkEntry(entry, hr)
}

// ReadFile reads and verifies the whole content of the named entry.
func (a *Archive) ReadFile(name string) ([]byte, error) {
	entry, ok := a.Lookup(name)
	if !ok {
		return nil, &fs.PathError{Op: "read", Path: name, Err: fs.ErrNotExist}
	}
	size, err := toInt(entry.Size)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	section, err := a.section(entry)
	if err != nil {
		return nil, err
	}

	content := make([]byte, size)
	hr := checksum.NewHashingReader(section)
	if _, err := io.ReadFull(hr, content); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, fmt.Errorf("read %s: %w", name, ErrUnexpectedEOF)
		}
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	if err := checkEntry(entry, hr); err != nil {
		return nil, err
	}
	return content, nil
}

// Verify checks the CRC-32 of every entry. All mismatches are reported.
func (a *Archive) Verify() error {
	var errs []error
	for _, entry := range a.entries {
		err := a.ReadEntry(entry, func(io.Reader) error { return nil }, ReadWithVerify(true))
		if err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		a.log().Debug("archive verification failed", "failures", len(errs))
	}
	return errors.Join(errs...)
}

// resolve maps a caller-supplied descriptor to the archive's own copy so
// stale or modified descriptors cannot address bytes outside their entry.
func (a *Archive) resolve(e Entry) (Entry, error) {
	if e.Index == 0 || int(e.Index) > len(a.entries) || a.entries[e.Index-1].Name != e.Name {
		return Entry{}, &fs.PathError{Op: "read", Path: e.Name, Err: fs.ErrNotExist}
	}
	return a.entries[e.Index-1], nil
}

// section creates a bounded section reader for an entry.
func (a *Archive) section(e Entry) (*io.SectionReader, error) {
	offset, err := toInt64(e.Offset)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", e.Name, err)
	}
	length, err := toInt64(e.Size)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", e.Name, err)
	}
	return io.NewSectionReader(a.content, offset, length), nil
}

// checkEntry compares the bytes seen by hr with the entry descriptor.
func checkEntry(e Entry, hr *checksum.HashingReader) error {
	if hr.Count() != e.Size {
		return fmt.Errorf("read %s: short read (%d of %d bytes): %w", e.Name, hr.Count(), e.Size, ErrUnexpectedEOF)
	}
	if sum := hr.Sum32(); sum != e.CRC {
		return fmt.Errorf("%w: %s: stored %08x, computed %08x", ErrChecksumMismatch, e.Name, e.CRC, sum)
	}
	return nil
}

// toInt converts a uint64 to int, returning ErrSizeOverflow if it doesn't fit.
func toInt(size uint64) (int, error) {
	if size > uint64(math.MaxInt) {
		return 0, ErrSizeOverflow
	}
	return int(size), nil
}

// toInt64 converts a uint64 to int64, returning ErrSizeOverflow if it doesn't fit.
func toInt64(size uint64) (int64, error) {
	if size > uint64(math.MaxInt64) {
		return 0, ErrSizeOverflow
	}
	return int64(size), nil
}

// addUint64 adds two uint64 values, returning (result, false) on overflow.
func addUint64(a, b uint64) (uint64, bool) {
	sum := a + b
	if sum < a {
		return 0, false
	}
	return sum, true
}
