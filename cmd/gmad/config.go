package main

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

// Environment variables read by gmad.
const (
	envAuthor   = "GMAD_AUTHOR"
	envAuthorID = "GMAD_AUTHOR_ID"
	envCompress = "GMAD_COMPRESS"
	envLogLevel = "GMAD_LOG_LEVEL"
)

// config holds defaults taken from the environment. Command-line flags
// override them.
type config struct {
	author   string
	authorID uint64
	compress bool
	logLevel slog.Level
}

// loadConfig reads defaults from the process environment and, for keys the
// environment does not set, from the dotenv file at envFile. A missing file
// is not an error.
func loadConfig(envFile string, lookupEnv func(string) (string, bool)) (config, error) {
	fileVals := map[string]string{}
	if envFile != "" {
		vals, err := godotenv.Read(envFile)
		switch {
		case err == nil:
			fileVals = vals
		case errors.Is(err, fs.ErrNotExist):
		default:
			return config{}, fmt.Errorf("read %s: %w", envFile, err)
		}
	}
	get := func(key string) string {
		if v, ok := lookupEnv(key); ok {
			return v
		}
		return fileVals[key]
	}

	cfg := config{
		author:   get(envAuthor),
		logLevel: slog.LevelWarn,
	}
	if v := get(envAuthorID); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return config{}, fmt.Errorf("%s: %w", envAuthorID, err)
		}
		cfg.authorID = id
	}
	if v := get(envCompress); v != "" {
		compress, err := strconv.ParseBool(v)
		if err != nil {
			return config{}, fmt.Errorf("%s: %w", envCompress, err)
		}
		cfg.compress = compress
	}
	if v := get(envLogLevel); v != "" {
		if err := cfg.logLevel.UnmarshalText([]byte(strings.ToUpper(v))); err != nil {
			return config{}, fmt.Errorf("%s: %w", envLogLevel, err)
		}
	}
	return cfg, nil
}
