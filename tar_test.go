package gma

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/gma/internal/testutil"
)

func readTar(tb testing.TB, r io.Reader) map[string]string {
	tb.Helper()
	out := make(map[string]string)
	tr := tar.NewReader(r)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return out
		}
		require.NoError(tb, err)
		assert.Equal(tb, int64(0o644), hdr.Mode)
		assert.Equal(tb, int64(1_600_000_000), hdr.ModTime.Unix())
		data, err := io.ReadAll(tr)
		require.NoError(tb, err)
		out[hdr.Name] = string(data)
	}
}

func TestWriteTar(t *testing.T) {
	t.Parallel()

	a := extractFixture(t)
	var buf bytes.Buffer
	require.NoError(t, a.WriteTar(context.Background(), &buf))

	assert.Equal(t, map[string]string{
		"a.txt":             "aaa",
		"lua/autorun/b.lua": "bbbb",
		"materials/c.vmt":   "ccccc",
	}, readTar(t, &buf))
}

func TestWriteTarZstd(t *testing.T) {
	t.Parallel()

	a := extractFixture(t)
	var buf bytes.Buffer
	require.NoError(t, a.WriteTar(context.Background(), &buf, TarWithZstd(zstd.SpeedBestCompression)))

	dec, err := zstd.NewReader(&buf)
	require.NoError(t, err)
	defer dec.Close()
	files := readTar(t, dec)
	assert.Len(t, files, 3)
	assert.Equal(t, "ccccc", files["materials/c.vmt"])
}

func TestWriteTarChecksumMismatch(t *testing.T) {
	t.Parallel()

	raw := testutil.RawArchive{
		Version: 3,
		Entries: []testutil.RawEntry{{Name: "bad.txt", Data: []byte("hello"), CRC: testutil.Ptr(uint32(3))}},
	}
	a, err := LoadBytes(raw.Bytes(t))
	require.NoError(t, err)

	err = a.WriteTar(context.Background(), io.Discard)
	assert.ErrorIs(t, err, ErrChecksumMismatch)
}
