package acmeconn

import (
	"io"
	"net/http"

	"github.com/klauspost/compress/gzip"
)

// gzipTransport requests and transparently decodes gzip-encoded responses
// itself (spec.md §4.4), rather than relying on net/http's built-in
// transparent gzip handling, so acmeconfig's gzip-disable flag has
// something real to turn off. next must have DisableCompression set so
// net/http doesn't also add its own Accept-Encoding header.
type gzipTransport struct {
	next    http.RoundTripper
	enabled bool
}

func newGzipTransport(next http.RoundTripper, enabled bool) *gzipTransport {
	return &gzipTransport{next: next, enabled: enabled}
}

func (t *gzipTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if !t.enabled {
		return t.next.RoundTrip(req)
	}
	if req.Header.Get("Accept-Encoding") == "" {
		req.Header.Set("Accept-Encoding", "gzip")
	}

	resp, err := t.next.RoundTrip(req)
	if err != nil || resp == nil {
		return resp, err
	}
	if resp.Header.Get("Content-Encoding") != "gzip" {
		return resp, nil
	}

	gz, err := gzip.NewReader(resp.Body)
	if err != nil {
		// Not actually gzip despite the header; hand the caller the raw body
		// rather than failing the whole request.
		return resp, nil
	}
	resp.Body = &gzipReadCloser{gz: gz, underlying: resp.Body}
	resp.Header.Del("Content-Encoding")
	resp.Header.Del("Content-Length")
	resp.ContentLength = -1
	return resp, nil
}

// gzipReadCloser closes both the inflate stream and the underlying network
// body so the connection is returned to the pool correctly.
type gzipReadCloser struct {
	gz         *gzip.Reader
	underlying io.ReadCloser
}

func (g *gzipReadCloser) Read(p []byte) (int, error) { return g.gz.Read(p) }

func (g *gzipReadCloser) Close() error {
	gzErr := g.gz.Close()
	if err := g.underlying.Close(); err != nil {
		return err
	}
	return gzErr
}
