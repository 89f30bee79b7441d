package gma

import "log/slog"

// DefaultMaxBodySize is the default limit for a decompressed archive body (2GB).
const DefaultMaxBodySize = 2 << 30

// Option configures an Archive.
type Option func(*Archive)

// WithLogger sets the logger used for debug events. Errors are returned,
// never logged.
func WithLogger(logger *slog.Logger) Option {
	return func(a *Archive) {
		a.logger = logger
	}
}

// WithVerify sets whether ReadEntry verifies CRC-32 checksums by default.
// Verification is off unless enabled here or per call with ReadWithVerify.
// ReadFile, Verify, Extract and WriteTar always verify.
func WithVerify(enabled bool) Option {
	return func(a *Archive) {
		a.verify = enabled
	}
}

// WithMaxBodySize limits the size of a decompressed body. Compressed archives
// are decompressed into memory before their entries become addressable.
// Set limit to 0 to disable the limit.
func WithMaxBodySize(limit uint64) Option {
	return func(a *Archive) {
		a.maxBodySize = limit
	}
}

// ReadOption configures a single ReadEntry call.
type ReadOption func(*readConfig)

type readConfig struct {
	verify bool
}

// ReadWithVerify overrides the archive's verification default for one call.
func ReadWithVerify(enabled bool) ReadOption {
	return func(c *readConfig) {
		c.verify = enabled
	}
}
