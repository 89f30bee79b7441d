//go:build !unix

package platform

import (
	"errors"
	"io/fs"
	"os"
)

// ErrSymlink is returned when the final path element is a symbolic link.
var ErrSymlink = errors.New("symbolic links not supported")

// ErrNotRegular is returned when the path names something other than a
// regular file.
var ErrNotRegular = errors.New("not a regular file")

// OpenRegular opens name under root for reading, rejecting symlinks and
// anything that is not a regular file. Without O_NOFOLLOW the symlink check
// is a separate Lstat and therefore racy.
func OpenRegular(root *os.Root, name string) (*os.File, error) {
	info, err := root.Lstat(name)
	if err != nil {
		return nil, err
	}
	if info.Mode()&fs.ModeSymlink != 0 {
		return nil, &fs.PathError{Op: "open", Path: name, Err: ErrSymlink}
	}
	f, err := root.Open(name)
	if err != nil {
		return nil, err
	}
	return checkRegular(f, name)
}
