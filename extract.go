package gma

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"sync/atomic"
	"time"

	"github.com/meigma/gma/internal/batch"
)

// ExtractStats summarizes an extraction.
type ExtractStats struct {
	// FileCount is the number of files written.
	FileCount int
	// TotalBytes is the number of content bytes written.
	TotalBytes uint64
	// Skipped is the number of entries left alone because the file existed.
	Skipped int
}

// ExtractOption configures Extract.
type ExtractOption func(*extractConfig)

type extractConfig struct {
	overwrite     bool
	workers       int
	preserveTimes bool
}

// ExtractWithOverwrite allows replacing existing files.
// By default, existing files are skipped.
func ExtractWithOverwrite(overwrite bool) ExtractOption {
	return func(c *extractConfig) {
		c.overwrite = overwrite
	}
}

// ExtractWithWorkers sets the number of entries extracted concurrently.
// Values < 0 force serial extraction; zero uses GOMAXPROCS.
func ExtractWithWorkers(n int) ExtractOption {
	return func(c *extractConfig) {
		c.workers = n
	}
}

// ExtractWithPreserveTimes sets every extracted file's modification time to
// the archive timestamp.
func ExtractWithPreserveTimes(preserve bool) ExtractOption {
	return func(c *extractConfig) {
		c.preserveTimes = preserve
	}
}

// Extract writes every entry below destDir, creating directories as needed.
//
// Entry names are checked before anything is written: a name that is
// absolute, contains ".." or is otherwise not a valid fs path fails with an
// *fs.PathError wrapping fs.ErrInvalid. Files are written to a temporary file
// and renamed into place once their checksum has been verified, so a failed
// extraction never leaves partial files at their final paths.
func (a *Archive) Extract(ctx context.Context, destDir string, opts ...ExtractOption) (ExtractStats, error) {
	var cfg extractConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	for _, e := range a.entries {
		if err := checkPath("extract", e.Name); err != nil {
			return ExtractStats{}, err
		}
	}

	sinkOpts := []batch.FileSinkOption{batch.WithOverwrite(cfg.overwrite)}
	if cfg.preserveTimes {
		sinkOpts = append(sinkOpts, batch.WithModTime(a.modTime()))
	}
	sink, err := batch.NewFileSink(destDir, sinkOpts...)
	if err != nil {
		return ExtractStats{}, err
	}
	defer sink.Close()

	a.log().Info("extracting archive", "dest", destDir, "entries", len(a.entries), "workers", batch.Workers(cfg.workers))

	var (
		files   atomic.Int64
		skipped atomic.Int64
		written atomic.Uint64
	)
	err = batch.Run(ctx, cfg.workers, len(a.entries), func(_ context.Context, i int) error {
		e := a.entries[i]
		if !sink.ShouldProcess(e.Name) {
			a.log().Debug("skipping existing file", "path", e.Name)
			skipped.Add(1)
			return nil
		}
		if err := a.extractEntry(sink, e); err != nil {
			return err
		}
		files.Add(1)
		written.Add(e.Size)
		return nil
	})

	stats := ExtractStats{
		FileCount:  int(files.Load()),
		TotalBytes: written.Load(),
		Skipped:    int(skipped.Load()),
	}
	if err != nil {
		return stats, err
	}
	a.log().Debug("archive extracted", "files", stats.FileCount, "bytes", stats.TotalBytes, "skipped", stats.Skipped)
	return stats, nil
}

func (a *Archive) extractEntry(sink *batch.FileSink, e Entry) error {
	w, err := sink.Writer(e.Name)
	if err != nil {
		return err
	}
	err = a.ReadEntry(e, func(r io.Reader) error {
		_, err := io.Copy(w, r)
		return err
	}, ReadWithVerify(true))
	if err != nil {
		_ = w.Discard() //nolint:errcheck // best-effort cleanup
		return fmt.Errorf("extract %s: %w", e.Name, err)
	}
	return w.Commit()
}

// checkPath rejects entry names that cannot be written below a directory.
func checkPath(op, name string) error {
	if !fs.ValidPath(name) || name == "." {
		return &fs.PathError{Op: op, Path: name, Err: fs.ErrInvalid}
	}
	return nil
}

// modTime returns the archive timestamp as a time.
func (a *Archive) modTime() time.Time {
	return time.Unix(int64(a.header.Timestamp), 0).UTC() //nolint:gosec // wraps like the on-disk field
}
