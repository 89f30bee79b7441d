package gma

import (
	"archive/tar"
	"context"
	"fmt"
	"io"

	"github.com/klauspost/compress/zstd"
)

// TarOption configures WriteTar.
type TarOption func(*tarConfig)

type tarConfig struct {
	zstd  bool
	level zstd.EncoderLevel
}

// TarWithZstd compresses the tar stream with zstd at the given level.
func TarWithZstd(level zstd.EncoderLevel) TarOption {
	return func(c *tarConfig) {
		c.zstd = true
		c.level = level
	}
}

// WriteTar writes every entry to w as a regular file in a tar stream, in
// table order. Each file has mode 0644 and the archive timestamp as its
// modification time. Entry content is verified while it is copied.
func (a *Archive) WriteTar(ctx context.Context, w io.Writer, opts ...TarOption) (err error) {
	var cfg tarConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	out := w
	if cfg.zstd {
		enc, encErr := zstd.NewWriter(w, zstd.WithEncoderLevel(cfg.level), zstd.WithEncoderConcurrency(1))
		if encErr != nil {
			return fmt.Errorf("create zstd encoder: %w", encErr)
		}
		defer func() {
			if closeErr := enc.Close(); err == nil && closeErr != nil {
				err = fmt.Errorf("finish zstd stream: %w", closeErr)
			}
		}()
		out = enc
	}

	tw := tar.NewWriter(out)
	modTime := a.modTime()
	for _, e := range a.entries {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := checkPath("tar", e.Name); err != nil {
			return err
		}
		size, err := toInt64(e.Size)
		if err != nil {
			return fmt.Errorf("tar %s: %w", e.Name, err)
		}
		hdr := &tar.Header{
			Typeflag: tar.TypeReg,
			Name:     e.Name,
			Size:     size,
			Mode:     0o644,
			ModTime:  modTime,
			Format:   tar.FormatPAX,
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("tar header %s: %w", e.Name, err)
		}
		err = a.ReadEntry(e, func(r io.Reader) error {
			_, err := io.Copy(tw, r)
			return err
		}, ReadWithVerify(true))
		if err != nil {
			return fmt.Errorf("tar %s: %w", e.Name, err)
		}
	}
	if err := tw.Close(); err != nil {
		return fmt.Errorf("finish tar stream: %w", err)
	}

	a.log().Debug("tar written", "entries", len(a.entries), "zstd", cfg.zstd)
	return nil
}
