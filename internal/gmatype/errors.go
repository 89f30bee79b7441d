package gmatype

import "errors"

// Sentinel errors for archive operations.
var (
	// ErrInvalidFormat is returned when the magic, version, header fields or
	// entry table are malformed.
	ErrInvalidFormat = errors.New("gma: invalid format")

	// ErrUnexpectedEOF is returned when the source ends in the middle of a field.
	ErrUnexpectedEOF = errors.New("gma: unexpected end of data")

	// ErrInvalidEncoding is returned when a string field is not a valid
	// null-terminated string.
	ErrInvalidEncoding = errors.New("gma: invalid string encoding")

	// ErrChecksumMismatch is returned when entry content does not match its CRC-32.
	ErrChecksumMismatch = errors.New("gma: checksum mismatch")

	// ErrCompression is returned when the compressed body is corrupt or truncated.
	ErrCompression = errors.New("gma: compression error")

	// ErrDuplicateEntry is returned when two entries share a filename.
	ErrDuplicateEntry = errors.New("gma: duplicate entry")

	// ErrValidation is returned when a builder configuration cannot be written.
	ErrValidation = errors.New("gma: validation failed")

	// ErrBuilderConsumed is returned when a builder is written more than once.
	ErrBuilderConsumed = errors.New("gma: builder already written")

	// ErrSizeOverflow is returned when byte counts exceed supported limits.
	ErrSizeOverflow = errors.New("gma: size overflow")
)
