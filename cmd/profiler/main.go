// Command profiler builds a synthetic addon archive and profiles one codec
// operation against it.
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand" //nolint:gosec // reproducible synthetic data
	"os"
	"path/filepath"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
	"slices"
	"strings"
	"time"

	"github.com/felixge/fgprof"

	"github.com/meigma/gma"
)

type config struct {
	mode       string
	files      int
	fileSize   int
	compress   bool
	random     bool
	seed       int64
	iterations int
	duration   time.Duration
	workers    int

	dataURL         string
	dataHTTPLatency time.Duration
	dataHTTPBPS     int64

	cpuProfile string
	memProfile string
	fgProfile  string
	traceFile  string
}

// sinks keep results alive so the measured work is not optimized away.
var (
	sinkBytes   []byte
	sinkArchive *gma.Archive
)

func main() {
	cfg := parseFlags()
	if err := run(cfg); err != nil {
		log.Fatal(err)
	}
}

func run(cfg config) error {
	dir, err := os.MkdirTemp("", "gma-profiler-*")
	if err != nil {
		return err
	}
	defer os.RemoveAll(dir)

	src := filepath.Join(dir, "src")
	paths, err := makeFiles(src, cfg.files, cfg.fileSize, cfg.random, cfg.seed)
	if err != nil {
		return fmt.Errorf("generate files: %w", err)
	}
	data, err := buildArchive(src, cfg.compress)
	if err != nil {
		return fmt.Errorf("build archive: %w", err)
	}

	stop, err := startProfiles(cfg)
	if err != nil {
		return err
	}
	stats, err := runProfile(cfg, data, paths, dir)
	stop()
	if err != nil {
		return err
	}
	if err := writeHeapProfile(cfg.memProfile); err != nil {
		return err
	}

	mb := float64(stats.bytes) / (1 << 20)
	fmt.Printf("mode=%s compressed=%t archive=%d ops=%d bytes=%d elapsed=%s throughput=%.2f MB/s\n",
		cfg.mode, cfg.compress, len(data), stats.ops, stats.bytes, stats.elapsed, mb/stats.elapsed.Seconds())
	return nil
}

// startProfiles starts every requested collector and returns a function that
// stops them in reverse order.
func startProfiles(cfg config) (func(), error) {
	var stops []func()
	stopAll := func() {
		for _, stop := range slices.Backward(stops) {
			stop()
		}
	}
	start := func(path string, begin func(io.Writer) (func(), error)) error {
		if path == "" {
			return nil
		}
		f, err := os.Create(path)
		if err != nil {
			return err
		}
		end, err := begin(f)
		if err != nil {
			_ = f.Close()
			return fmt.Errorf("start profile %s: %w", path, err)
		}
		stops = append(stops, func() {
			end()
			_ = f.Close()
		})
		return nil
	}

	err := errors.Join(
		start(cfg.fgProfile, func(w io.Writer) (func(), error) {
			stop := fgprof.Start(w, fgprof.FormatPprof)
			return func() {
				if err := stop(); err != nil {
					log.Printf("fgprof: %v", err)
				}
			}, nil
		}),
		start(cfg.cpuProfile, func(w io.Writer) (func(), error) {
			return pprof.StopCPUProfile, pprof.StartCPUProfile(w)
		}),
		start(cfg.traceFile, func(w io.Writer) (func(), error) {
			return trace.Stop, trace.Start(w)
		}),
	)
	if err != nil {
		stopAll()
		return nil, err
	}
	return stopAll, nil
}

func writeHeapProfile(path string) error {
	if path == "" {
		return nil
	}
	runtime.GC()
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return pprof.WriteHeapProfile(f)
}

type profileStats struct {
	ops     int
	bytes   int64
	elapsed time.Duration
}

// operation performs one unit of work and returns the bytes it processed.
type operation func(ctx context.Context) (int64, error)

//nolint:gocritic // config is passed by value throughout
func operations(cfg config, archive *gma.Archive, data []byte, paths []string, dir string) map[string]operation {
	rng := rand.New(rand.NewSource(cfg.seed)) //nolint:gosec // reproducible path selection
	return map[string]operation{
		"load": func(context.Context) (int64, error) {
			a, err := gma.LoadBytes(data)
			sinkArchive = a
			return int64(len(data)), err
		},
		"readfile": func(context.Context) (int64, error) {
			content, err := archive.ReadFile(paths[rng.Intn(len(paths))])
			sinkBytes = content
			return int64(len(content)), err
		},
		"verify": func(context.Context) (int64, error) {
			return totalSize(archive), archive.Verify()
		},
		"extract": func(ctx context.Context) (int64, error) {
			dest, err := os.MkdirTemp(dir, "extract-*")
			if err != nil {
				return 0, err
			}
			defer os.RemoveAll(dest)
			stats, err := archive.Extract(ctx, dest, gma.ExtractWithWorkers(cfg.workers))
			return int64(stats.TotalBytes), err //nolint:gosec // synthetic archives are small
		},
		"tar": func(ctx context.Context) (int64, error) {
			return totalSize(archive), archive.WriteTar(ctx, io.Discard)
		},
		"write": func(context.Context) (int64, error) {
			b := gma.NewBuilder().Compressed(cfg.compress)
			if err := b.AddDir(filepath.Join(dir, "src")); err != nil {
				return 0, err
			}
			return b.WriteTo(io.Discard)
		},
	}
}

//nolint:gocritic // config is passed by value throughout
func runProfile(cfg config, data []byte, paths []string, dir string) (profileStats, error) {
	archive, cleanup, err := openArchive(cfg, data)
	if err != nil {
		return profileStats{}, err
	}
	if cleanup != nil {
		defer cleanup()
	}

	op, ok := operations(cfg, archive, data, paths, dir)[cfg.mode]
	if !ok {
		return profileStats{}, fmt.Errorf("unknown mode %q (want one of %s)", cfg.mode, strings.Join(modes, ", "))
	}

	ctx := context.Background()
	var stats profileStats
	start := time.Now()
	for {
		if cfg.iterations > 0 {
			if stats.ops >= cfg.iterations {
				break
			}
		} else if time.Since(start) >= cfg.duration {
			break
		}
		n, err := op(ctx)
		if err != nil {
			return profileStats{}, fmt.Errorf("%s: %w", cfg.mode, err)
		}
		stats.bytes += n
		stats.ops++
	}
	stats.elapsed = time.Since(start)
	return stats, nil
}

var modes = []string{"load", "readfile", "verify", "extract", "tar", "write"}

// openArchive loads the archive from memory or through the HTTP source.
//
//nolint:gocritic // config is passed by value throughout
func openArchive(cfg config, data []byte) (*gma.Archive, func(), error) {
	if cfg.dataURL == "" {
		a, err := gma.LoadBytes(data)
		return a, nil, err
	}
	src, cleanup, err := newHTTPSource(cfg, data)
	if err != nil {
		return nil, nil, err
	}
	a, err := gma.Load(src, src.Size())
	if err != nil {
		if cleanup != nil {
			cleanup()
		}
		return nil, nil, err
	}
	return a, cleanup, nil
}

func totalSize(a *gma.Archive) int64 {
	var total int64
	for e := range a.Entries() {
		total += int64(e.Size) //nolint:gosec // synthetic archives are small
	}
	return total
}

func parseFlags() config {
	var (
		cfg config
		bps string
	)
	flag.StringVar(&cfg.mode, "mode", "readfile", "operation: "+strings.Join(modes, ", "))
	flag.IntVar(&cfg.files, "files", 512, "number of generated files")
	flag.IntVar(&cfg.fileSize, "file-size", 16<<10, "size of each generated file in bytes")
	flag.BoolVar(&cfg.compress, "compress", false, "LZMA compress the archive body")
	flag.BoolVar(&cfg.random, "random", false, "fill files with random (incompressible) bytes")
	flag.Int64Var(&cfg.seed, "seed", 1, "seed for generated content and readfile selection")
	flag.IntVar(&cfg.iterations, "iterations", 0, "operations to run; 0 runs for -duration")
	flag.DurationVar(&cfg.duration, "duration", 10*time.Second, "how long to run when -iterations is 0")
	flag.IntVar(&cfg.workers, "workers", 0, "extract workers: <0 serial, 0 auto, >0 fixed")
	flag.StringVar(&cfg.dataURL, "data-url", "", "read the archive over HTTP (\"local\" serves the generated archive)")
	flag.DurationVar(&cfg.dataHTTPLatency, "data-http-latency", 0, "added latency per HTTP request")
	flag.StringVar(&bps, "data-http-bps", "", "HTTP bandwidth limit, e.g. 10MBps")
	flag.StringVar(&cfg.cpuProfile, "cpuprofile", "", "write a CPU profile")
	flag.StringVar(&cfg.memProfile, "memprofile", "", "write a heap profile")
	flag.StringVar(&cfg.fgProfile, "fgprofile", "", "write an fgprof wall-clock profile")
	flag.StringVar(&cfg.traceFile, "trace", "", "write an execution trace")
	flag.Parse()

	if bps != "" {
		v, err := parseBytesPerSecond(bps)
		if err != nil {
			log.Fatalf("data-http-bps: %v", err)
		}
		cfg.dataHTTPBPS = v
	}
	return cfg
}

// addonDirs mirrors the top-level layout of a typical addon.
var addonDirs = []struct{ dir, ext string }{
	{"materials", ".vtf"},
	{"models", ".mdl"},
	{"sound", ".wav"},
	{"lua/autorun", ".lua"},
}

// makeFiles writes count files below dir and returns their archive names.
func makeFiles(dir string, count, size int, random bool, seed int64) ([]string, error) {
	rng := rand.New(rand.NewSource(seed)) //nolint:gosec // reproducible synthetic data
	names := make([]string, 0, count)
	for i := range count {
		d := addonDirs[i%len(addonDirs)]
		name := fmt.Sprintf("%s/gen%02d/file%05d%s", d.dir, i/len(addonDirs)%8, i, d.ext)

		content := make([]byte, size)
		if random {
			_, _ = rng.Read(content)
		} else {
			copy(content, bytes.Repeat([]byte{byte('a' + i%26)}, size))
			if size > 0 {
				content[0] = byte(i)
			}
		}

		path := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
			return nil, err
		}
		if err := os.WriteFile(path, content, 0o600); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, nil
}

func buildArchive(root string, compress bool) ([]byte, error) {
	b := gma.NewBuilder().Name("profiler").Compressed(compress)
	if err := b.AddDir(root); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := b.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
