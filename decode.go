package gma

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/meigma/gma/internal/filter"
	"github.com/meigma/gma/internal/gmatype"
	"github.com/meigma/gma/internal/metadata"
	"github.com/meigma/gma/internal/wire"
)

// Load decodes an archive from src, which holds size bytes.
//
// The header and entry table are parsed immediately. An uncompressed body is
// read lazily from src, so src must remain valid for the lifetime of the
// returned Archive. A compressed body is decompressed into memory.
func Load(src io.ReaderAt, size int64, opts ...Option) (*Archive, error) {
	a := &Archive{
		maxBodySize: DefaultMaxBodySize,
	}
	for _, opt := range opts {
		opt(a)
	}

	d := &decoder{a: a, src: src, size: size}
	if err := d.run(); err != nil {
		return nil, err
	}
	return a, nil
}

// LoadBytes decodes an archive held in memory. data must not be modified
// while the Archive is in use.
func LoadBytes(data []byte, opts ...Option) (*Archive, error) {
	return Load(bytes.NewReader(data), int64(len(data)), opts...)
}

// Read decodes an archive from a stream, buffering it in memory.
func Read(r io.Reader, opts ...Option) (*Archive, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read archive: %w", err)
	}
	return LoadBytes(data, opts...)
}

// decodeState tracks decoder progress.
type decodeState uint8

const (
	stateStart decodeState = iota
	stateHeaderParsed
	stateTableParsed
	stateReady
	stateFailed
)

func (s decodeState) String() string {
	switch s {
	case stateStart:
		return "start"
	case stateHeaderParsed:
		return "header-parsed"
	case stateTableParsed:
		return "table-parsed"
	case stateReady:
		return "ready"
	case stateFailed:
		return "failed"
	default:
		return fmt.Sprintf("decodeState(%d)", uint8(s))
	}
}

// decoder walks an archive from the magic to the end of the entry table.
// Each step either advances the state or moves it to stateFailed, which is
// terminal.
type decoder struct {
	a     *Archive
	src   io.ReaderAt
	size  int64
	state decodeState

	// wholeFile is set once the entire source was unwrapped from a legacy
	// whole-file LZMA stream.
	wholeFile bool

	// bodyStart is the offset of the first byte after the header.
	bodyStart int64
}

func (d *decoder) run() error {
	for {
		var (
			err  error
			next decodeState
		)
		switch d.state {
		case stateStart:
			err = d.parseHeader()
			next = stateHeaderParsed
		case stateHeaderParsed:
			err = d.parseTable()
			next = stateTableParsed
		case stateTableParsed:
			d.finish()
			next = stateReady
		case stateReady:
			return nil
		default:
			return fmt.Errorf("%w: decoder in state %s", ErrInvalidFormat, d.state)
		}
		if err != nil {
			d.a.log().Debug("archive decode failed", "state", d.state.String(), "error", err)
			d.state = stateFailed
			return err
		}
		d.state = next
	}
}

func (d *decoder) parseHeader() error {
	r := wire.NewReader(io.NewSectionReader(d.src, 0, d.size))
	h := &d.a.header

	magic, err := r.ReadBytes(len(gmatype.Magic))
	if err != nil {
		return fmt.Errorf("%w: read magic: %w", ErrInvalidFormat, err)
	}
	if !bytes.Equal(magic, gmatype.Magic[:]) {
		if !d.wholeFile && filter.IsLZMA(magic) {
			ok, err := d.unwrapWholeFile()
			if err != nil {
				return err
			}
			if ok {
				return d.parseHeader()
			}
		}
		return fmt.Errorf("%w: bad magic %q", ErrInvalidFormat, magic)
	}

	if h.Version, err = r.ReadU8(); err != nil {
		return fmt.Errorf("read version: %w", err)
	}
	if !gmatype.ValidVersion(h.Version) {
		return fmt.Errorf("%w: unsupported version %d", ErrInvalidFormat, h.Version)
	}
	if h.AuthorID, err = r.ReadU64(); err != nil {
		return fmt.Errorf("read author id: %w", err)
	}
	if h.Timestamp, err = r.ReadU64(); err != nil {
		return fmt.Errorf("read timestamp: %w", err)
	}
	if gmatype.HasRequiredContent(h.Version) {
		for {
			item, err := r.ReadCString()
			if err != nil {
				return fmt.Errorf("read required content: %w", err)
			}
			if item == "" {
				break
			}
			h.RequiredContent = append(h.RequiredContent, item)
		}
	}
	if h.Name, err = r.ReadCString(); err != nil {
		return fmt.Errorf("read name: %w", err)
	}
	if h.RawDescription, err = r.ReadCString(); err != nil {
		return fmt.Errorf("read description: %w", err)
	}
	if h.Author, err = r.ReadCString(); err != nil {
		return fmt.Errorf("read author: %w", err)
	}
	if h.AddonVersion, err = r.ReadU32(); err != nil {
		return fmt.Errorf("read addon version: %w", err)
	}

	d.bodyStart = r.Offset()
	return nil
}

// unwrapWholeFile handles archives written by early tools that compressed the
// entire file, header included. It reports false when the source does not
// decompress to an archive.
func (d *decoder) unwrapWholeFile() (bool, error) {
	data, err := filter.Decompress(io.NewSectionReader(d.src, 0, d.size), d.a.maxBodySize)
	if err != nil {
		if errors.Is(err, ErrSizeOverflow) {
			return false, err
		}
		d.a.log().Debug("whole-file lzma probe failed", "error", err)
		return false, nil
	}
	if !bytes.HasPrefix(data, gmatype.Magic[:]) {
		return false, nil
	}
	d.src = bytes.NewReader(data)
	d.size = int64(len(data))
	d.wholeFile = true
	d.a.header.Compressed = true
	return true, nil
}

func (d *decoder) parseTable() error {
	bodySize := d.size - d.bodyStart
	var body io.ReaderAt = io.NewSectionReader(d.src, d.bodyStart, bodySize)

	prefix := make([]byte, 4)
	if n, err := io.ReadFull(io.NewSectionReader(body, 0, bodySize), prefix); err != nil {
		if !d.wholeFile && filter.IsLZMA(prefix[:n]) {
			return fmt.Errorf("decompress body: %w: truncated lzma header", ErrCompression)
		}
		return fmt.Errorf("read entry table: %w", ErrUnexpectedEOF)
	}
	if !d.wholeFile && filter.IsCompressed(prefix) {
		data, err := filter.Decompress(io.NewSectionReader(body, 0, bodySize), d.a.maxBodySize)
		if err != nil {
			return fmt.Errorf("decompress body: %w", err)
		}
		body = bytes.NewReader(data)
		bodySize = int64(len(data))
		d.a.header.Compressed = true
	}

	r := wire.NewReader(io.NewSectionReader(body, 0, bodySize))
	var (
		entries []Entry
		byName  = make(map[string]int)
		offset  uint64
	)
	for {
		want := uint32(len(entries) + 1) //nolint:gosec // bounded by the source size
		index, err := r.ReadU32()
		if err != nil {
			return fmt.Errorf("read entry %d file number: %w", want, err)
		}
		if index == 0 {
			break
		}
		if index != want {
			return fmt.Errorf("%w: entry %d has file number %d", ErrInvalidFormat, want, index)
		}

		name, err := r.ReadCString()
		if err != nil {
			return fmt.Errorf("read entry %d filename: %w", want, err)
		}
		if name == "" {
			return fmt.Errorf("%w: entry %d has an empty filename", ErrInvalidFormat, want)
		}
		if _, dup := byName[name]; dup {
			return fmt.Errorf("%w: %w: %q", ErrInvalidFormat, ErrDuplicateEntry, name)
		}
		size, err := r.ReadU64()
		if err != nil {
			return fmt.Errorf("read entry %q size: %w", name, err)
		}
		crc, err := r.ReadU32()
		if err != nil {
			return fmt.Errorf("read entry %q crc: %w", name, err)
		}

		byName[name] = len(entries)
		entries = append(entries, Entry{
			Index:  index,
			Name:   name,
			Size:   size,
			CRC:    crc,
			Offset: offset,
		})
		next, ok := addUint64(offset, size)
		if !ok {
			return fmt.Errorf("%w: entry %q size overflows the content region", ErrInvalidFormat, name)
		}
		offset = next
	}

	contentStart := r.Offset()
	contentSize := bodySize - contentStart
	if offset > uint64(contentSize) { //nolint:gosec // contentSize is non-negative
		return fmt.Errorf("%w: entries declare %d content bytes but %d remain", ErrInvalidFormat, offset, contentSize)
	}

	d.a.entries = entries
	d.a.byName = byName
	d.a.content = io.NewSectionReader(body, contentStart, contentSize)
	d.a.contentSize = contentSize
	return nil
}

// finish derives the structured description fields.
func (d *decoder) finish() {
	h := &d.a.header
	info := metadata.Parse(h.RawDescription)
	h.Description = info.Description
	h.Type = info.Type
	h.Tags = info.Tags

	d.a.log().Debug("archive loaded",
		"name", h.Name,
		"version", h.Version,
		"entries", len(d.a.entries),
		"compressed", h.Compressed,
		"structured_description", info.Structured)
}
