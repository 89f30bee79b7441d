package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/opencontainers/go-digest"

	"github.com/meigma/gma"
	gmahttp "github.com/meigma/gma/http"
)

// opened is an archive plus access to its raw bytes.
type opened struct {
	*gma.Archive
	digest func() (digest.Digest, error)
	close  func() error
}

func isURL(loc string) bool {
	return strings.HasPrefix(loc, "http://") || strings.HasPrefix(loc, "https://")
}

// openArchive opens a local path or an http(s) URL.
func (a *app) openArchive(ctx context.Context, loc string) (*opened, error) {
	opts := []gma.Option{gma.WithLogger(a.logger)}

	if isURL(loc) {
		src, err := gmahttp.NewSource(ctx, loc, gmahttp.WithConditionalHeaders())
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", loc, err)
		}
		archive, err := gma.Load(src, src.Size(), opts...)
		if err != nil {
			return nil, fmt.Errorf("load %s: %w", loc, err)
		}
		return &opened{
			Archive: archive,
			digest: func() (digest.Digest, error) {
				return digest.FromReader(io.NewSectionReader(src, 0, src.Size()))
			},
			close: func() error { return nil },
		}, nil
	}

	f, err := gma.Open(loc, opts...)
	if err != nil {
		return nil, err
	}
	return &opened{
		Archive: f.Archive,
		digest: func() (digest.Digest, error) {
			raw, err := os.Open(loc) //nolint:gosec // user-provided path is intentional
			if err != nil {
				return "", err
			}
			defer raw.Close()
			return digest.FromReader(raw)
		},
		close: f.Close,
	}, nil
}

// newFlagSet returns a flag set that reports errors instead of exiting.
func (a *app) newFlagSet(name, args string) *flag.FlagSet {
	flags := flag.NewFlagSet(name, flag.ContinueOnError)
	flags.SetOutput(a.stderr)
	flags.Usage = func() {
		fmt.Fprintf(a.stderr, "usage: gmad %s %s\n", name, args)
		flags.PrintDefaults()
	}
	return flags
}

// parseArgs parses flags and requires exactly n positional arguments.
func parseArgs(flags *flag.FlagSet, args []string, n int) ([]string, error) {
	if err := flags.Parse(args); err != nil {
		return nil, fmt.Errorf("%w: %w", errUsage, err)
	}
	if flags.NArg() != n {
		flags.Usage()
		return nil, fmt.Errorf("%w: %s takes %d argument(s), got %d", errUsage, flags.Name(), n, flags.NArg())
	}
	return flags.Args(), nil
}

func (a *app) info(ctx context.Context, args []string) error {
	pos, err := parseArgs(a.newFlagSet("info", "<archive>"), args, 1)
	if err != nil {
		return err
	}
	archive, err := a.openArchive(ctx, pos[0])
	if err != nil {
		return err
	}
	defer archive.close()

	dgst, err := archive.digest()
	if err != nil {
		return fmt.Errorf("digest: %w", err)
	}

	var total uint64
	for e := range archive.Entries() {
		total += e.Size
	}
	tags := make([]string, 0, 2)
	for _, tag := range archive.Tags() {
		tags = append(tags, tag.String())
	}

	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "name:\t%s\n", archive.Name())
	fmt.Fprintf(tw, "author:\t%s\n", archive.Author())
	fmt.Fprintf(tw, "author id:\t%d\n", archive.AuthorID())
	fmt.Fprintf(tw, "version:\t%d\n", archive.Version())
	fmt.Fprintf(tw, "timestamp:\t%s\n", time.Unix(int64(archive.Timestamp()), 0).UTC().Format(time.RFC3339)) //nolint:gosec // display only
	fmt.Fprintf(tw, "type:\t%s\n", archive.Type())
	fmt.Fprintf(tw, "tags:\t%s\n", strings.Join(tags, ", "))
	fmt.Fprintf(tw, "compressed:\t%t\n", archive.Compressed())
	fmt.Fprintf(tw, "entries:\t%d (%d bytes)\n", archive.Len(), total)
	if req := archive.RequiredContent(); len(req) > 0 {
		fmt.Fprintf(tw, "required:\t%s\n", strings.Join(req, ", "))
	}
	fmt.Fprintf(tw, "digest:\t%s\n", dgst)
	fmt.Fprintf(tw, "description:\t%s\n", archive.Description())
	return tw.Flush()
}

func (a *app) list(ctx context.Context, args []string) error {
	pos, err := parseArgs(a.newFlagSet("list", "<archive>"), args, 1)
	if err != nil {
		return err
	}
	archive, err := a.openArchive(ctx, pos[0])
	if err != nil {
		return err
	}
	defer archive.close()

	tw := tabwriter.NewWriter(a.stdout, 0, 4, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "#\tSIZE\tCRC32\t NAME")
	for e := range archive.Entries() {
		fmt.Fprintf(tw, "%d\t%d\t%08x\t %s\n", e.Index, e.Size, e.CRC, e.Name)
	}
	return tw.Flush()
}

func (a *app) cat(ctx context.Context, args []string) error {
	pos, err := parseArgs(a.newFlagSet("cat", "<archive> <name>"), args, 2)
	if err != nil {
		return err
	}
	archive, err := a.openArchive(ctx, pos[0])
	if err != nil {
		return err
	}
	defer archive.close()

	entry, ok := archive.Lookup(pos[1])
	if !ok {
		return fmt.Errorf("%s: no such entry", pos[1])
	}
	return archive.ReadEntry(entry, func(r io.Reader) error {
		_, err := io.Copy(a.stdout, r)
		return err
	}, gma.ReadWithVerify(true))
}

func (a *app) verify(ctx context.Context, args []string) error {
	pos, err := parseArgs(a.newFlagSet("verify", "<archive>"), args, 1)
	if err != nil {
		return err
	}
	archive, err := a.openArchive(ctx, pos[0])
	if err != nil {
		return err
	}
	defer archive.close()

	if err := archive.Verify(); err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "ok: %d entries verified\n", archive.Len())
	return nil
}

func (a *app) extract(ctx context.Context, args []string) error {
	flags := a.newFlagSet("extract", "[flags] <archive>")
	out := flags.String("o", "", "destination directory (default: archive name without extension)")
	overwrite := flags.Bool("overwrite", false, "replace existing files")
	workers := flags.Int("workers", 0, "parallel writers: <0 serial, 0 auto, >0 fixed")
	preserveTimes := flags.Bool("preserve-times", false, "set file times to the archive timestamp")
	pos, err := parseArgs(flags, args, 1)
	if err != nil {
		return err
	}

	archive, err := a.openArchive(ctx, pos[0])
	if err != nil {
		return err
	}
	defer archive.close()

	dest := *out
	if dest == "" {
		base := filepath.Base(pos[0])
		dest = strings.TrimSuffix(base, filepath.Ext(base))
	}
	stats, err := archive.Extract(ctx, dest,
		gma.ExtractWithOverwrite(*overwrite),
		gma.ExtractWithWorkers(*workers),
		gma.ExtractWithPreserveTimes(*preserveTimes))
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "extracted %d files (%d bytes) to %s, skipped %d\n",
		stats.FileCount, stats.TotalBytes, dest, stats.Skipped)
	return nil
}

func (a *app) create(_ context.Context, args []string) error {
	flags := a.newFlagSet("create", "[flags] <dir>")
	out := flags.String("o", "", "output archive path (required)")
	name := flags.String("name", "", "addon name (default: directory name)")
	description := flags.String("description", "", "addon description")
	author := flags.String("author", a.cfg.author, "author name (env "+envAuthor+")")
	authorID := flags.Uint64("author-id", a.cfg.authorID, "author id (env "+envAuthorID+")")
	typeName := flags.String("type", gma.TypeTool.String(), "addon type")
	tagList := flags.String("tags", "", "comma-separated tags, at most two")
	required := flags.String("required", "", "comma-separated required content")
	version := flags.Uint("version", uint(gma.VersionDefault), "format version (1-3)")
	compress := flags.Bool("compress", a.cfg.compress, "LZMA compress the body (env "+envCompress+")")
	pos, err := parseArgs(flags, args, 1)
	if err != nil {
		return err
	}
	if *out == "" {
		flags.Usage()
		return fmt.Errorf("%w: -o is required", errUsage)
	}

	dir := pos[0]
	addonType := gma.ParseAddonType(*typeName)
	if addonType == gma.TypeUnknown && !strings.EqualFold(*typeName, gma.TypeUnknown.String()) {
		return fmt.Errorf("%w: unknown addon type %q", errUsage, *typeName)
	}
	if *version > 255 {
		return fmt.Errorf("%w: version %d out of range", errUsage, *version)
	}
	if *name == "" {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return err
		}
		*name = filepath.Base(abs)
	}

	b := gma.NewBuilder().
		Logger(a.logger).
		Version(uint8(*version)).
		Name(*name).
		Description(*description).
		AuthorID(*authorID).
		Type(addonType).
		Compressed(*compress)
	if *author != "" {
		b.Author(*author)
	}
	for _, t := range splitList(*tagList) {
		tag, ok := gma.ParseAddonTag(t)
		if !ok {
			return fmt.Errorf("%w: unknown tag %q", errUsage, t)
		}
		b.Tag(tag)
	}
	if req := splitList(*required); len(req) > 0 {
		b.RequiredContent(req...)
	}
	if err := b.AddDir(dir); err != nil {
		return err
	}
	if rel, ok := relativeTo(dir, *out); ok && b.Remove(rel) {
		a.logger.Debug("skipping output archive inside source directory", "path", rel)
	}

	n, err := writeFileAtomic(*out, b)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.stdout, "wrote %s: %d entries, %d bytes\n", *out, b.Len(), n)
	return nil
}

func (a *app) export(ctx context.Context, args []string) error {
	flags := a.newFlagSet("export", "[flags] <archive>")
	out := flags.String("o", "-", "output tar path, - for stdout")
	useZstd := flags.Bool("zstd", false, "zstd compress the tar stream")
	level := flags.Int("level", 3, "zstd level (1-22)")
	pos, err := parseArgs(flags, args, 1)
	if err != nil {
		return err
	}

	archive, err := a.openArchive(ctx, pos[0])
	if err != nil {
		return err
	}
	defer archive.close()

	var opts []gma.TarOption
	if *useZstd {
		opts = append(opts, gma.TarWithZstd(zstd.EncoderLevelFromZstd(*level)))
	}
	if *out == "-" {
		return archive.WriteTar(ctx, a.stdout, opts...)
	}
	_, err = writeFileAtomic(*out, writerToFunc(func(w io.Writer) error {
		return archive.WriteTar(ctx, w, opts...)
	}))
	return err
}

// relativeTo returns path as a slash-separated name below dir, if it is one.
func relativeTo(dir, path string) (string, bool) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return "", false
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return "", false
	}
	rel, err := filepath.Rel(absDir, absPath)
	if err != nil || !filepath.IsLocal(rel) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

// writerToFunc adapts a function to io.WriterTo without a byte count.
type writerToFunc func(io.Writer) error

func (f writerToFunc) WriteTo(w io.Writer) (int64, error) {
	return 0, f(w)
}

// writeFileAtomic writes src to a temp file next to path and renames it into
// place, so a failed write never leaves a partial file at path.
func writeFileAtomic(path string, src io.WriterTo) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".gmad-*")
	if err != nil {
		return 0, err
	}
	n, err := src.WriteTo(tmp)
	if err == nil {
		err = tmp.Chmod(0o644)
	}
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err == nil {
		err = os.Rename(tmp.Name(), path)
	}
	if err != nil {
		_ = os.Remove(tmp.Name()) //nolint:errcheck // best-effort cleanup
		return n, err
	}
	return n, nil
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
