package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	nethttp "net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"time"

	gmahttp "github.com/meigma/gma/http"
)

func newHTTPSource(cfg config, data []byte) (*gmahttp.Source, func(), error) {
	if cfg.dataURL == "" {
		return nil, nil, errors.New("data-url is required for HTTP source")
	}

	client := newHTTPClient(cfg)
	url := cfg.dataURL
	var cleanup func()
	if cfg.dataURL == "local" {
		server := httptest.NewServer(nethttp.HandlerFunc(func(w nethttp.ResponseWriter, r *nethttp.Request) {
			nethttp.ServeContent(w, r, "addon.gma", time.Time{}, bytes.NewReader(data))
		}))
		url = server.URL
		cleanup = server.Close
	}

	source, err := gmahttp.NewSource(context.Background(), url, gmahttp.WithClient(client))
	if err != nil {
		if cleanup != nil {
			cleanup()
		}
		return nil, nil, err
	}
	return source, cleanup, nil
}

func newHTTPClient(cfg config) *nethttp.Client {
	transport := nethttp.DefaultTransport
	if base, ok := transport.(*nethttp.Transport); ok {
		transport = base.Clone()
	}
	if cfg.dataHTTPLatency > 0 || cfg.dataHTTPBPS > 0 {
		transport = &throttledTransport{
			base:           transport,
			latency:        cfg.dataHTTPLatency,
			bytesPerSecond: cfg.dataHTTPBPS,
		}
	}
	return &nethttp.Client{Transport: transport}
}

// throttledTransport simulates a slow remote: a fixed delay per request and
// a bandwidth cap on each response body.
type throttledTransport struct {
	base           nethttp.RoundTripper
	latency        time.Duration
	bytesPerSecond int64
}

func (t *throttledTransport) RoundTrip(req *nethttp.Request) (*nethttp.Response, error) {
	if t.latency > 0 {
		time.Sleep(t.latency)
	}
	resp, err := t.base.RoundTrip(req)
	if err != nil || t.bytesPerSecond <= 0 || resp.Body == nil {
		return resp, err
	}
	resp.Body = &throttledBody{ReadCloser: resp.Body, bytesPerSecond: t.bytesPerSecond, start: time.Now()}
	return resp, nil
}

type throttledBody struct {
	io.ReadCloser
	bytesPerSecond int64
	start          time.Time
	n              int64
}

func (b *throttledBody) Read(p []byte) (int, error) {
	n, err := b.ReadCloser.Read(p)
	b.n += int64(n)
	due := time.Duration(float64(b.n) / float64(b.bytesPerSecond) * float64(time.Second))
	if wait := due - time.Since(b.start); wait > 0 {
		time.Sleep(wait)
	}
	return n, err
}

// byteUnits maps rate suffixes to multipliers. Longer suffixes come first so
// "kb" is tried before "b"-less "k".
var byteUnits = []struct {
	suffix string
	mult   int64
}{
	{"gb", 1 << 30}, {"mb", 1 << 20}, {"kb", 1 << 10},
	{"g", 1 << 30}, {"m", 1 << 20}, {"k", 1 << 10},
}

// parseBytesPerSecond parses rates such as "512", "64k", "10MBps" or "1gb/s".
func parseBytesPerSecond(value string) (int64, error) {
	text := strings.ToLower(strings.TrimSpace(value))
	for _, suffix := range []string{"/s", "bps"} {
		text = strings.TrimSuffix(text, suffix)
	}

	mult := int64(1)
	for _, u := range byteUnits {
		if rest, ok := strings.CutSuffix(text, u.suffix); ok {
			text, mult = rest, u.mult
			break
		}
	}

	raw, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
	if err != nil || raw <= 0 {
		return 0, fmt.Errorf("invalid bytes-per-second %q", value)
	}
	return raw * mult, nil
}
