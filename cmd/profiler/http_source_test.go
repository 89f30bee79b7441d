package main

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBytesPerSecond(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want int64
	}{
		{"512", 512},
		{"64k", 64 << 10},
		{"64KB", 64 << 10},
		{"10MBps", 10 << 20},
		{"1gb/s", 1 << 30},
		{" 3 m ", 3 << 20},
	}
	for _, tt := range tests {
		got, err := parseBytesPerSecond(tt.in)
		require.NoError(t, err, tt.in)
		assert.Equal(t, tt.want, got, tt.in)
	}

	for _, bad := range []string{"", "fast", "0", "-5k", "kb"} {
		_, err := parseBytesPerSecond(bad)
		assert.Error(t, err, bad)
	}
}

func TestBuildArchiveRoundTrip(t *testing.T) {
	// Not parallel: operations write the package-level sinks.
	dir := t.TempDir()
	paths, err := makeFiles(filepath.Join(dir, "src"), 8, 64, false, 1)
	require.NoError(t, err)

	data, err := buildArchive(filepath.Join(dir, "src"), true)
	require.NoError(t, err)

	stats, err := runProfile(config{mode: "readfile", iterations: 16, seed: 1}, data, paths, dir)
	require.NoError(t, err)
	assert.Equal(t, 16, stats.ops)
	assert.Equal(t, int64(16*64), stats.bytes)
}

func TestRunProfileModes(t *testing.T) {
	// Not parallel: operations write the package-level sinks.
	dir := t.TempDir()
	paths, err := makeFiles(filepath.Join(dir, "src"), 6, 32, true, 7)
	require.NoError(t, err)
	data, err := buildArchive(filepath.Join(dir, "src"), false)
	require.NoError(t, err)

	for _, mode := range modes {
		stats, err := runProfile(config{mode: mode, iterations: 2, seed: 1, workers: -1}, data, paths, dir)
		require.NoError(t, err, mode)
		assert.Equal(t, 2, stats.ops, mode)
		assert.Positive(t, stats.bytes, mode)
	}

	_, err = runProfile(config{mode: "nope", iterations: 1}, data, paths, dir)
	assert.ErrorContains(t, err, "unknown mode")
}
