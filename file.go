package gma

import (
	"fmt"
	"os"
)

// File is an Archive backed by an open file. Close must be called to release
// the file handle.
type File struct {
	*Archive
	file *os.File
}

// Close closes the underlying file. It is safe to call more than once.
func (f *File) Close() error {
	if f.file == nil {
		return nil
	}
	err := f.file.Close()
	f.file = nil
	return err
}

// Open opens and decodes the archive at path.
//
// The header and entry table are read immediately. Entry content of an
// uncompressed archive is read from the file on demand.
func Open(path string, opts ...Option) (*File, error) {
	osFile, err := os.Open(path) //nolint:gosec // user-provided path is intentional
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	info, err := osFile.Stat()
	if err != nil {
		osFile.Close()
		return nil, fmt.Errorf("stat archive: %w", err)
	}

	a, err := Load(osFile, info.Size(), opts...)
	if err != nil {
		osFile.Close()
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	if a.Compressed() {
		// The body lives in memory; the handle is no longer needed.
		if err := osFile.Close(); err != nil {
			return nil, fmt.Errorf("close archive: %w", err)
		}
		osFile = nil
	}

	return &File{Archive: a, file: osFile}, nil
}

var _ interface{ Close() error } = (*File)(nil)
