package gma

import (
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/meigma/gma/internal/filter"
	"github.com/meigma/gma/internal/gmatype"
	"github.com/meigma/gma/internal/metadata"
	"github.com/meigma/gma/internal/wire"
)

// maxTags is the number of tags an addon can carry.
const maxTags = 2

// maxEntries is the largest entry count whose file numbers fit in a u32
// without colliding with the table terminator.
const maxEntries = math.MaxUint32 - 1

// DefaultAuthor is the author name written when none is set.
const DefaultAuthor = "unknown"

// Builder assembles an archive.
//
// Setters return the Builder so calls can be chained. Entry producers that
// can fail (AddReader, AddReaderAt, AddFile) defer their errors to WriteTo.
// A Builder can be written once; later WriteTo calls fail with
// ErrBuilderConsumed.
type Builder struct {
	version         uint8
	authorID        uint64
	timestamp       uint64
	requiredContent []string
	name            string
	description     string
	rawDescription  *string
	author          string
	addonType       AddonType
	tags            []AddonTag
	addonVersion    uint32
	compressed      bool

	entries  []builderEntry
	consumed bool
	logger   *slog.Logger
}

// builderEntry pairs an entry name with its content producer.
type builderEntry struct {
	name string
	src  source
}

// NewBuilder returns a Builder with the default header: the latest version,
// author id 0, the current time, author "unknown", an empty description,
// TypeTool, no tags, an uncompressed body and addon version 1.
func NewBuilder() *Builder {
	return &Builder{
		version:      VersionDefault,
		timestamp:    uint64(time.Now().Unix()), //nolint:gosec // clock is after the epoch
		author:       DefaultAuthor,
		addonType:    TypeTool,
		addonVersion: 1,
	}
}

// NewBuilderFromArchive returns a Builder holding every header field and
// entry of a. The raw description is carried verbatim, so writing an
// unmodified Builder over an uncompressed archive reproduces its bytes.
//
// Entry content is read from a when the Builder is written.
func NewBuilderFromArchive(a *Archive) *Builder {
	h := a.Header()
	raw := h.RawDescription
	b := &Builder{
		version:         h.Version,
		authorID:        h.AuthorID,
		timestamp:       h.Timestamp,
		requiredContent: h.RequiredContent,
		name:            h.Name,
		description:     h.Description,
		rawDescription:  &raw,
		author:          h.Author,
		addonType:       h.Type,
		tags:            h.Tags,
		addonVersion:    h.AddonVersion,
		compressed:      h.Compressed,
		logger:          a.logger,
	}
	for entry := range a.Entries() {
		section, err := a.EntryReader(entry)
		if err != nil {
			b.entries = append(b.entries, builderEntry{name: entry.Name, src: &errSource{err: err}})
			continue
		}
		b.AddReaderAt(entry.Name, section, section.Size())
	}
	return b
}

// Version sets the format version (1 to 3).
func (b *Builder) Version(v uint8) *Builder {
	b.version = v
	return b
}

// AuthorID sets the publishing account identifier.
func (b *Builder) AuthorID(id uint64) *Builder {
	b.authorID = id
	return b
}

// Timestamp sets the creation time.
func (b *Builder) Timestamp(t time.Time) *Builder {
	b.timestamp = uint64(t.Unix()) //nolint:gosec // pre-epoch times wrap like the on-disk field
	return b
}

// Name sets the addon name.
func (b *Builder) Name(name string) *Builder {
	b.name = name
	return b
}

// Description sets the human-readable description. It is stored inside the
// metadata document together with the type and tags.
func (b *Builder) Description(desc string) *Builder {
	b.description = desc
	b.rawDescription = nil
	return b
}

// RawDescription stores desc verbatim as the description field, bypassing
// the metadata document. Type and tags are then not written.
func (b *Builder) RawDescription(desc string) *Builder {
	b.rawDescription = &desc
	return b
}

// Author sets the author name.
func (b *Builder) Author(author string) *Builder {
	b.author = author
	return b
}

// Type sets the addon type.
func (b *Builder) Type(t AddonType) *Builder {
	b.addonType = t
	b.rawDescription = nil
	return b
}

// Tag adds a tag. An addon carries at most two tags; adding a third evicts
// the oldest. Adding a tag that is already present does nothing.
func (b *Builder) Tag(tag AddonTag) *Builder {
	if slices.Contains(b.tags, tag) {
		return b
	}
	b.tags = append(b.tags, tag)
	if len(b.tags) > maxTags {
		b.tags = slices.Clone(b.tags[len(b.tags)-maxTags:])
	}
	b.rawDescription = nil
	return b
}

// Tags replaces the tag list, keeping the last two distinct tags.
func (b *Builder) Tags(tags ...AddonTag) *Builder {
	b.tags = nil
	for _, tag := range tags {
		b.Tag(tag)
	}
	b.rawDescription = nil
	return b
}

// RequiredContent sets the required-content list. Only versions above 1
// can store it.
func (b *Builder) RequiredContent(items ...string) *Builder {
	b.requiredContent = slices.Clone(items)
	return b
}

// AddonVersion sets the trailing addon version header field.
func (b *Builder) AddonVersion(v uint32) *Builder {
	b.addonVersion = v
	return b
}

// Compressed sets whether the body is LZMA compressed.
func (b *Builder) Compressed(compressed bool) *Builder {
	b.compressed = compressed
	return b
}

// Logger sets the logger used for debug events.
func (b *Builder) Logger(logger *slog.Logger) *Builder {
	b.logger = logger
	return b
}

// AddBytes adds an entry with the given content. data is not copied and
// must not be modified until the Builder is written.
func (b *Builder) AddBytes(name string, data []byte) *Builder {
	return b.add(name, &bytesSource{data: data})
}

// AddReader adds an entry whose content is read once from r into memory
// when the Builder is written.
func (b *Builder) AddReader(name string, r io.Reader) *Builder {
	return b.add(name, &readerSource{r: r})
}

// AddReaderAt adds an entry of size bytes read from ra. The content is read
// twice, once for its checksum and once to write it; content that differs
// between the passes fails with ErrValidation.
func (b *Builder) AddReaderAt(name string, ra io.ReaderAt, size int64) *Builder {
	return b.add(name, &readerAtSource{ra: ra, size: size})
}

// AddFile adds an entry read from the regular file at path. The file is
// opened when the Builder is written. Symbolic links are rejected.
func (b *Builder) AddFile(name, path string) *Builder {
	return b.add(name, &fileSource{dir: filepath.Dir(path), name: filepath.Base(path)})
}

// AddDir adds every regular file below dir, named by its slash-separated
// path relative to dir, in lexical order. Symbolic links and other special
// files are skipped. File content is read when the Builder is written.
func (b *Builder) AddDir(dir string) error {
	root, err := os.OpenRoot(dir)
	if err != nil {
		return err
	}
	defer root.Close()

	var added []builderEntry
	err = fs.WalkDir(root.FS(), ".", func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		if !d.Type().IsRegular() {
			b.log().Debug("skipping non-regular file", "path", path, "type", d.Type().String())
			return nil
		}
		added = append(added, builderEntry{name: path, src: &fileSource{dir: dir, name: path}})
		return nil
	})
	if err != nil {
		return fmt.Errorf("walk %s: %w", dir, err)
	}

	b.entries = append(b.entries, added...)
	b.log().Debug("directory added", "dir", dir, "file_count", len(added))
	return nil
}

// Remove drops the entry called name and reports whether it was present.
func (b *Builder) Remove(name string) bool {
	i := slices.IndexFunc(b.entries, func(e builderEntry) bool { return e.name == name })
	if i < 0 {
		return false
	}
	b.entries = slices.Delete(b.entries, i, i+1)
	return true
}

// Len returns the number of entries added so far.
func (b *Builder) Len() int {
	return len(b.entries)
}

func (b *Builder) add(name string, src source) *Builder {
	b.entries = append(b.entries, builderEntry{name: name, src: src})
	return b
}

// log returns the logger, falling back to a discard logger if nil.
func (b *Builder) log() *slog.Logger {
	if b.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return b.logger
}

// preparedEntry is a table row whose size and checksum are known.
type preparedEntry struct {
	name string
	size uint64
	crc  uint32
	src  source
}

// WriteTo writes the archive to w and returns the number of bytes written.
//
// The configuration is validated before anything is written. Entry content is
// then read once to compute sizes and checksums, the header is written
// uncompressed, and the entry table and content follow through the
// compression filter.
func (b *Builder) WriteTo(w io.Writer) (int64, error) {
	if b.consumed {
		return 0, ErrBuilderConsumed
	}
	b.consumed = true

	if err := b.validate(); err != nil {
		return 0, err
	}
	desc, err := b.materializeDescription()
	if err != nil {
		return 0, err
	}
	prepared, err := b.prepare()
	if err != nil {
		return 0, err
	}

	b.log().Info("writing archive",
		"name", b.name,
		"version", b.version,
		"entries", len(prepared),
		"compressed", b.compressed)

	cw := &wire.CountingWriter{W: w}
	if err := b.writeHeader(cw, desc); err != nil {
		return int64(cw.N), err //nolint:gosec // bounded by bytes actually written
	}
	if err := b.writeBody(cw, prepared); err != nil {
		return int64(cw.N), err //nolint:gosec // bounded by bytes actually written
	}

	b.log().Debug("archive written", "bytes", cw.N)
	return int64(cw.N), nil //nolint:gosec // bounded by bytes actually written
}

// validate rejects configurations that cannot be encoded.
func (b *Builder) validate() error {
	if !gmatype.ValidVersion(b.version) {
		return fmt.Errorf("%w: unsupported version %d", ErrValidation, b.version)
	}
	if len(b.requiredContent) > 0 && !gmatype.HasRequiredContent(b.version) {
		return fmt.Errorf("%w: version %d cannot store required content", ErrValidation, b.version)
	}
	for _, item := range b.requiredContent {
		if item == "" {
			return fmt.Errorf("%w: empty required content item", ErrValidation)
		}
	}
	strs := []struct{ field, value string }{
		{"name", b.name},
		{"description", b.description},
		{"author", b.author},
	}
	if b.rawDescription != nil {
		strs = append(strs, struct{ field, value string }{"raw description", *b.rawDescription})
	}
	for _, item := range b.requiredContent {
		strs = append(strs, struct{ field, value string }{"required content", item})
	}
	for _, s := range strs {
		if strings.IndexByte(s.value, 0) >= 0 {
			return fmt.Errorf("%w: %s contains NUL", ErrValidation, s.field)
		}
	}

	if b.rawDescription == nil {
		// name and description are embedded in the JSON description document,
		// which cannot carry invalid UTF-8.
		for _, s := range strs[:2] {
			if !utf8.ValidString(s.value) {
				return fmt.Errorf("%w: %s is not valid UTF-8", ErrValidation, s.field)
			}
		}
	}

	if len(b.entries) > maxEntries {
		return fmt.Errorf("%w: %d entries exceed the file number range", ErrValidation, len(b.entries))
	}
	seen := make(map[string]struct{}, len(b.entries))
	for _, e := range b.entries {
		if e.name == "" {
			return fmt.Errorf("%w: empty filename", ErrValidation)
		}
		if strings.IndexByte(e.name, 0) >= 0 {
			return fmt.Errorf("%w: filename %q contains NUL", ErrValidation, e.name)
		}
		if _, dup := seen[e.name]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateEntry, e.name)
		}
		seen[e.name] = struct{}{}
	}
	return nil
}

// materializeDescription returns the stored form of the description field.
func (b *Builder) materializeDescription() (string, error) {
	if b.rawDescription != nil {
		return *b.rawDescription, nil
	}
	desc, err := metadata.Encode(b.name, b.description, b.addonType, b.tags)
	if err != nil {
		return "", err
	}
	if strings.IndexByte(desc, 0) >= 0 {
		return "", fmt.Errorf("%w: description contains NUL", ErrValidation)
	}
	return desc, nil
}

// prepare runs the first pass over every producer.
func (b *Builder) prepare() ([]preparedEntry, error) {
	prepared := make([]preparedEntry, 0, len(b.entries))
	for _, e := range b.entries {
		size, crc, err := e.src.prepare()
		if err != nil {
			return nil, fmt.Errorf("prepare %s: %w", e.name, err)
		}
		prepared = append(prepared, preparedEntry{name: e.name, size: size, crc: crc, src: e.src})
	}
	return prepared, nil
}

func (b *Builder) writeHeader(w io.Writer, desc string) error {
	hw := wire.NewWriter(w)
	hw.WriteBytes(gmatype.Magic[:])
	hw.WriteU8(b.version)
	hw.WriteU64(b.authorID)
	hw.WriteU64(b.timestamp)
	if gmatype.HasRequiredContent(b.version) {
		for _, item := range b.requiredContent {
			hw.WriteCString(item)
		}
		hw.WriteCString("")
	}
	hw.WriteCString(b.name)
	hw.WriteCString(desc)
	hw.WriteCString(b.author)
	hw.WriteU32(b.addonVersion)
	if err := hw.Err(); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	return nil
}

func (b *Builder) writeBody(w io.Writer, prepared []preparedEntry) error {
	body, err := filter.NewWriter(w, b.compressed)
	if err != nil {
		return err
	}

	tw := wire.NewWriter(body)
	for i, e := range prepared {
		tw.WriteU32(uint32(i + 1)) //nolint:gosec // entry count checked in validate
		tw.WriteCString(e.name)
		tw.WriteU64(e.size)
		tw.WriteU32(e.crc)
	}
	tw.WriteU32(0)
	if err := tw.Err(); err != nil {
		return fmt.Errorf("write entry table: %w", err)
	}

	for _, e := range prepared {
		if err := e.src.write(body, e.size, e.crc); err != nil {
			return fmt.Errorf("write %s: %w", e.name, err)
		}
	}

	if err := body.Close(); err != nil {
		return fmt.Errorf("finish body: %w", err)
	}
	return nil
}

var _ io.WriterTo = (*Builder)(nil)
