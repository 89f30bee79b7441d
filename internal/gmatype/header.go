// Package gmatype defines shared types used across the gma package and its
// internal packages. This avoids circular imports between gma and the codec
// internals.
package gmatype

// Magic is the four byte signature every archive starts with.
var Magic = [4]byte{'G', 'M', 'A', 'D'}

// Format versions.
const (
	VersionMin     uint8 = 1
	VersionMax     uint8 = 3
	VersionDefault uint8 = 3
)

// ValidVersion reports whether v is a format version the codec understands.
func ValidVersion(v uint8) bool {
	return v >= VersionMin && v <= VersionMax
}

// HasRequiredContent reports whether version v carries the required-content list.
func HasRequiredContent(v uint8) bool {
	return v > 1
}

// Header holds the archive metadata stored ahead of the entry table.
type Header struct {
	// Version is the layout revision.
	Version uint8

	// AuthorID identifies the publishing account. Usually zero.
	AuthorID uint64

	// Timestamp is the creation time in seconds since the Unix epoch.
	Timestamp uint64

	// RequiredContent lists content the addon depends on (version > 1 only).
	RequiredContent []string

	// Name is the addon title.
	Name string

	// Description is the human-readable description. When the stored
	// description is a metadata document this is its description field,
	// otherwise it equals RawDescription.
	Description string

	// RawDescription is the description string exactly as stored.
	RawDescription string

	// Author is the author's display name.
	Author string

	// AddonVersion is the trailing u32 header field. It is unused and
	// conventionally 1.
	AddonVersion uint32

	// Type is derived from the metadata document; TypeUnknown if absent.
	Type AddonType

	// Tags are derived from the metadata document, in stored order.
	Tags []AddonTag

	// Compressed reports whether the body after the header is LZMA compressed.
	Compressed bool
}

// Entry describes one file in the archive.
type Entry struct {
	// Index is the 1-based file number from the entry table.
	Index uint32

	// Name is the file path inside the archive (e.g. "lua/autorun/init.lua").
	Name string

	// Size is the content length in bytes.
	Size uint64

	// CRC is the CRC-32 (IEEE) of the content.
	CRC uint32

	// Offset is the position of the first content byte relative to the start
	// of the content region.
	Offset uint64
}
