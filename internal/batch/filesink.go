package batch

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"time"
)

// Committer receives the content of one file. Commit publishes it at its
// final path; Discard throws it away.
type Committer interface {
	io.Writer
	Commit() error
	Discard() error
}

// FileSink writes entries below a destination directory.
//
// Files are written to a temporary file in the same directory and renamed
// to the final path on Commit, so partially written files are never visible
// at the final path. All access goes through an os.Root, which keeps writes
// inside the destination even when it contains symlinks.
type FileSink struct {
	root          *os.Root
	destDir       string
	overwrite     bool
	preserveTimes bool
	modTime       time.Time
}

// FileSinkOption configures a FileSink.
type FileSinkOption func(*FileSink)

// WithOverwrite allows overwriting existing files.
// By default, existing files are skipped.
func WithOverwrite(overwrite bool) FileSinkOption {
	return func(s *FileSink) {
		s.overwrite = overwrite
	}
}

// WithModTime sets the modification time applied to every committed file.
// The zero time leaves the current time in place.
func WithModTime(t time.Time) FileSinkOption {
	return func(s *FileSink) {
		s.modTime = t
		s.preserveTimes = !t.IsZero()
	}
}

// NewFileSink creates a FileSink that writes to destDir, creating it if
// needed. Close releases the directory handle.
func NewFileSink(destDir string, opts ...FileSinkOption) (*FileSink, error) {
	if err := os.MkdirAll(destDir, 0o750); err != nil {
		return nil, fmt.Errorf("create destination %s: %w", destDir, err)
	}
	root, err := os.OpenRoot(destDir)
	if err != nil {
		return nil, fmt.Errorf("open destination root %s: %w", destDir, err)
	}
	s := &FileSink{root: root, destDir: destDir}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close releases the destination directory.
func (s *FileSink) Close() error {
	return s.root.Close()
}

// ShouldProcess returns false if the file already exists and overwrite is disabled.
func (s *FileSink) ShouldProcess(name string) bool {
	if s.overwrite {
		return true
	}
	if !fs.ValidPath(name) {
		return true // Writer reports the error
	}
	_, err := s.root.Lstat(name)
	return errors.Is(err, fs.ErrNotExist)
}

// Writer returns a Committer for the slash-separated path name.
func (s *FileSink) Writer(name string) (Committer, error) {
	if !fs.ValidPath(name) || name == "." {
		return nil, &fs.PathError{Op: "extract", Path: name, Err: fs.ErrInvalid}
	}

	dir := path.Dir(name)
	if dir != "." {
		if err := s.root.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	tempFile, tempRel, err := createTempFile(s.root, dir, ".gma-")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	return &fileCommitter{
		sink:     s,
		destRel:  name,
		tempFile: tempFile,
		tempRel:  tempRel,
	}, nil
}

// fileCommitter writes to a temp file and renames on Commit.
type fileCommitter struct {
	sink     *FileSink
	destRel  string
	tempFile *os.File
	tempRel  string
}

// Write implements io.Writer.
func (c *fileCommitter) Write(p []byte) (int, error) {
	return c.tempFile.Write(p)
}

// Commit closes the temp file, applies the modification time and renames it
// to the final path.
func (c *fileCommitter) Commit() error {
	root := c.sink.root
	if err := c.tempFile.Close(); err != nil {
		_ = root.Remove(c.tempRel) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := root.Chmod(c.tempRel, 0o644); err != nil {
		_ = root.Remove(c.tempRel) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("chmod: %w", err)
	}
	if c.sink.preserveTimes {
		if err := root.Chtimes(c.tempRel, c.sink.modTime, c.sink.modTime); err != nil {
			_ = root.Remove(c.tempRel) //nolint:errcheck // best-effort cleanup
			return fmt.Errorf("chtimes: %w", err)
		}
	}
	if err := root.Rename(c.tempRel, c.destRel); err != nil {
		_ = root.Remove(c.tempRel) //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("rename to %s: %w", c.destRel, err)
	}
	return nil
}

// Discard closes and removes the temp file.
func (c *fileCommitter) Discard() error {
	_ = c.tempFile.Close() //nolint:errcheck // we're cleaning up
	return c.sink.root.Remove(c.tempRel)
}

func createTempFile(root *os.Root, dir, prefix string) (*os.File, string, error) {
	const attempts = 10
	for range attempts {
		name, err := randomSuffix()
		if err != nil {
			return nil, "", err
		}
		relPath := path.Join(dir, prefix+name)
		f, err := root.OpenFile(relPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
		if err == nil {
			return f, relPath, nil
		}
		if !errors.Is(err, os.ErrExist) {
			return nil, "", err
		}
	}
	return nil, "", errors.New("create temp file: exhausted retries")
}

func randomSuffix() (string, error) {
	var b [8]byte
	if _, err := rand.Read(b[:]); err != nil {
		return "", err
	}
	return hex.EncodeToString(b[:]), nil
}
