// Command gmad inspects, extracts and creates GMA addon archives.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"

	"github.com/meigma/gma"
)

// Exit statuses. Each error class gets its own status so scripts can tell a
// corrupt archive from a missing file.
const (
	exitOK          = 0
	exitFailure     = 1
	exitUsage       = 2
	exitFormat      = 3
	exitTruncated   = 4
	exitChecksum    = 5
	exitCompression = 6
	exitValidation  = 7
)

var errUsage = errors.New("usage error")

const usageText = `usage: gmad [-v] [-env file] <command> [arguments]

commands:
  info <archive>                 print the archive header
  list <archive>                 list entries
  cat <archive> <name>           write one entry to stdout
  verify <archive>               check every entry checksum
  extract [flags] <archive>      extract entries to a directory
  create [flags] <dir>           build an archive from a directory
  export [flags] <archive>       convert an archive to tar

<archive> may be a path or an http(s) URL.
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr, os.LookupEnv)
	stop()
	os.Exit(code)
}

// app carries what every command needs.
type app struct {
	cfg    config
	logger *slog.Logger
	stdout io.Writer
	stderr io.Writer
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer, lookupEnv func(string) (string, bool)) int {
	flags := flag.NewFlagSet("gmad", flag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.Usage = func() { fmt.Fprint(stderr, usageText) }
	verbose := flags.Bool("v", false, "verbose logging")
	envFile := flags.String("env", ".env", "dotenv file with GMAD_* defaults")
	if err := flags.Parse(args); err != nil {
		return exitUsage
	}

	cfg, err := loadConfig(*envFile, lookupEnv)
	if err != nil {
		fmt.Fprintf(stderr, "gmad: %v\n", err)
		return exitUsage
	}
	if *verbose {
		cfg.logLevel = slog.LevelDebug
	}

	a := &app{
		cfg:    cfg,
		logger: slog.New(slog.NewTextHandler(stderr, &slog.HandlerOptions{Level: cfg.logLevel})),
		stdout: stdout,
		stderr: stderr,
	}

	rest := flags.Args()
	if len(rest) == 0 {
		flags.Usage()
		return exitUsage
	}

	cmds := map[string]func(context.Context, []string) error{
		"info":    a.info,
		"list":    a.list,
		"cat":     a.cat,
		"verify":  a.verify,
		"extract": a.extract,
		"create":  a.create,
		"export":  a.export,
	}
	cmd, ok := cmds[rest[0]]
	if !ok {
		fmt.Fprintf(stderr, "gmad: unknown command %q\n", rest[0])
		flags.Usage()
		return exitUsage
	}

	err = cmd(ctx, rest[1:])
	if err != nil && !errors.Is(err, flag.ErrHelp) {
		fmt.Fprintf(stderr, "gmad %s: %v\n", rest[0], err)
	}
	return exitCode(err)
}

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, errUsage), errors.Is(err, flag.ErrHelp):
		return exitUsage
	case errors.Is(err, gma.ErrChecksumMismatch):
		return exitChecksum
	case errors.Is(err, gma.ErrCompression):
		return exitCompression
	case errors.Is(err, gma.ErrInvalidFormat):
		return exitFormat
	case errors.Is(err, gma.ErrUnexpectedEOF):
		return exitTruncated
	case errors.Is(err, gma.ErrInvalidEncoding):
		return exitFormat
	case errors.Is(err, gma.ErrValidation), errors.Is(err, gma.ErrDuplicateEntry):
		return exitValidation
	default:
		return exitFailure
	}
}
