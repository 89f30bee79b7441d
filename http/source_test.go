package http_test

import (
	"bytes"
	"context"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meigma/gma"
	gmahttp "github.com/meigma/gma/http"
)

func serve(t *testing.T, data []byte, requests *atomic.Int64) string {
	t.Helper()
	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
		if requests != nil {
			requests.Add(1)
		}
		w.Header().Set("ETag", `"v1"`)
		nethttp.ServeContent(w, r, "addon.gma", time.Time{}, bytes.NewReader(data))
	}))
	t.Cleanup(server.Close)
	return server.URL
}

func TestSourceReadAt(t *testing.T) {
	t.Parallel()

	data := []byte("hello world")
	src, err := gmahttp.NewSource(context.Background(), serve(t, data, nil), gmahttp.WithConditionalHeaders())
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), src.Size())

	tests := []struct {
		name    string
		bufSize int
		offset  int64
		wantN   int
		wantErr error
		want    string
	}{
		{name: "read from middle", bufSize: 5, offset: 6, wantN: 5, want: "world"},
		{name: "read past end returns EOF", bufSize: 10, offset: int64(len(data) - 3), wantN: 3, wantErr: io.EOF, want: "rld"},
		{name: "offset beyond size", bufSize: 4, offset: 100, wantN: 0, wantErr: io.EOF, want: ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			buf := make([]byte, tt.bufSize)
			n, err := src.ReadAt(buf, tt.offset)
			assert.Equal(t, tt.wantErr, err)
			assert.Equal(t, tt.wantN, n)
			assert.Equal(t, tt.want, string(buf[:n]))
		})
	}
}

func TestSourceRangeUnsupported(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, _ *nethttp.Request) {
		_, _ = w.Write([]byte("range unsupported"))
	}))
	t.Cleanup(server.Close)

	_, err := gmahttp.NewSource(context.Background(), server.URL)
	assert.ErrorIs(t, err, gmahttp.ErrRangeUnsupported)
}

func TestSourceLoadsArchiveLazily(t *testing.T) {
	t.Parallel()

	big := bytes.Repeat([]byte("z"), 256<<10)
	var buf bytes.Buffer
	_, err := gma.NewBuilder().
		Name("remote").
		AddBytes("small.txt", []byte("tiny")).
		AddBytes("big.bin", big).
		WriteTo(&buf)
	require.NoError(t, err)

	var requests atomic.Int64
	src, err := gmahttp.NewSource(context.Background(), serve(t, buf.Bytes(), &requests))
	require.NoError(t, err)

	a, err := gma.Load(src, src.Size())
	require.NoError(t, err)
	assert.Equal(t, "remote", a.Name())
	assert.Equal(t, 2, a.Len())

	before := requests.Load()
	got, err := a.ReadFile("small.txt")
	require.NoError(t, err)
	assert.Equal(t, "tiny", string(got))
	assert.Equal(t, before+1, requests.Load())
}
