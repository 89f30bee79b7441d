//go:build unix

package platform

import (
	"errors"
	"io/fs"
	"os"
	"syscall"
)

// ErrSymlink is returned when the final path element is a symbolic link.
var ErrSymlink = errors.New("symbolic links not supported")

// ErrNotRegular is returned when the path names something other than a
// regular file.
var ErrNotRegular = errors.New("not a regular file")

// OpenRegular opens name under root for reading without following a final
// symlink, and rejects anything that is not a regular file.
func OpenRegular(root *os.Root, name string) (*os.File, error) {
	f, err := root.OpenFile(name, os.O_RDONLY|syscall.O_NOFOLLOW|syscall.O_NONBLOCK, 0)
	if err != nil {
		if errors.Is(err, syscall.ELOOP) {
			return nil, &fs.PathError{Op: "open", Path: name, Err: ErrSymlink}
		}
		return nil, err
	}
	return checkRegular(f, name)
}
