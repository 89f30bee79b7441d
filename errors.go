package gma

import "github.com/meigma/gma/internal/gmatype"

// Sentinel errors re-exported from internal/gmatype.
var (
	// ErrInvalidFormat is returned for a bad magic, an unsupported version or
	// a malformed header field or entry table.
	ErrInvalidFormat = gmatype.ErrInvalidFormat

	// ErrUnexpectedEOF is returned when the source ends in the middle of a field.
	ErrUnexpectedEOF = gmatype.ErrUnexpectedEOF

	// ErrInvalidEncoding is returned when a string field is unterminated or
	// cannot be represented as a null-terminated string.
	ErrInvalidEncoding = gmatype.ErrInvalidEncoding

	// ErrChecksumMismatch is returned when entry content fails CRC-32 verification.
	ErrChecksumMismatch = gmatype.ErrChecksumMismatch

	// ErrCompression is returned when the compressed body is corrupt or truncated.
	ErrCompression = gmatype.ErrCompression

	// ErrDuplicateEntry is returned when two entries share a filename.
	ErrDuplicateEntry = gmatype.ErrDuplicateEntry

	// ErrValidation is returned when a builder configuration cannot be written.
	ErrValidation = gmatype.ErrValidation

	// ErrBuilderConsumed is returned when a Builder is written a second time.
	ErrBuilderConsumed = gmatype.ErrBuilderConsumed

	// ErrSizeOverflow is returned when byte counts exceed supported limits.
	ErrSizeOverflow = gmatype.ErrSizeOverflow
)
