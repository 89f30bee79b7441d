// Package platform holds the OS-specific pieces of file access.
package platform

import (
	"fmt"
	"io/fs"
	"os"
)

// checkRegular closes f and fails unless it is a regular file.
func checkRegular(f *os.File, name string) (*os.File, error) {
	info, err := f.Stat()
	if err != nil {
		_ = f.Close() //nolint:errcheck // best-effort cleanup
		return nil, fmt.Errorf("stat %s: %w", name, err)
	}
	if !info.Mode().IsRegular() {
		_ = f.Close() //nolint:errcheck // best-effort cleanup
		return nil, &fs.PathError{Op: "open", Path: name, Err: ErrNotRegular}
	}
	return f, nil
}
