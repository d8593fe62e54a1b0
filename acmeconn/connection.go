// Package acmeconn implements the Connection of spec.md §4.4: the signed
// and unsigned HTTP transport every higher-level resource operation rides
// on. It owns nonce acquisition and rotation, the bad-nonce retry budget,
// Retry-After/Link/Location header parsing, and response dispatch into
// either a successful Response or an acmeerrors.AcmeError.
package acmeconn

import (
	"bytes"
	"context"
	"crypto"
	"encoding/json"
	"io"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-logr/logr"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/cert-ops/acmeclient/acmecore"
	"github.com/cert-ops/acmeclient/acmedir"
	"github.com/cert-ops/acmeclient/acmeerrors"
	"github.com/cert-ops/acmeclient/acmejose"
	"github.com/cert-ops/acmeclient/acmejson"
	"github.com/cert-ops/acmeclient/acmemetrics"
	"github.com/cert-ops/acmeclient/acmeprob"
)

// DefaultBadNonceRetries is the bad-nonce retry budget spec.md §4.4 names.
const DefaultBadNonceRetries = 10

// contentTypeJOSE is the request Content-Type RFC 8555 §6.2 requires for
// every signed POST.
const contentTypeJOSE = "application/jose+json"

// Response is a dispatched, successful server response: the raw body plus
// the headers spec.md §4.4 says callers need (Location, Link, Retry-After).
type Response struct {
	StatusCode    int
	Body          []byte
	Header        http.Header
	Location      string
	Links         map[string][]string
	RetryAfter    time.Time
	HasRetryAfter bool
}

// Node parses the Response body as JSON, for callers that expect a JSON
// resource representation.
func (r *Response) Node() (acmejson.Node, error) {
	return acmejson.Parse(r.Body)
}

// Connection is the signed/unsigned HTTP transport bound to one Session's
// directory cache and nonce box (spec.md §4.4, §5).
type Connection struct {
	client      *http.Client
	dir         *acmedir.Cache
	nonces      *NonceBox
	clock       acmecore.Clock
	logger      logr.Logger
	retryBudget int
	userAgent   string
	acceptLang  string
}

// Options configures New.
type Options struct {
	ConnectTimeout  time.Duration
	RequestTimeout  time.Duration
	DisableGzip     bool
	UserAgent       string
	AcceptLanguage  string
	BadNonceRetries int
}

// New builds a Connection bound to dir and nonces, wiring the transport
// chain spec.md §4.4 and SPEC_FULL.md §4.4 describe: otelhttp tracing, then
// gzip decoding, then Prometheus instrumentation, then the base transport.
func New(dir *acmedir.Cache, nonces *NonceBox, clk acmecore.Clock, logger logr.Logger, reg prometheus.Registerer, opts Options) *Connection {
	base := &http.Transport{
		DisableCompression: true,
	}
	if opts.ConnectTimeout > 0 {
		base.TLSHandshakeTimeout = opts.ConnectTimeout
	}

	metered := acmemetrics.New(base, reg, clk)
	gzipped := newGzipTransport(metered, !opts.DisableGzip)
	traced := otelhttp.NewTransport(gzipped)

	timeout := opts.RequestTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Connection{
		client:      &http.Client{Transport: traced, Timeout: timeout},
		dir:         dir,
		nonces:      nonces,
		clock:       clk,
		logger:      logger,
		retryBudget: orDefault(opts.BadNonceRetries, DefaultBadNonceRetries),
		userAgent:   opts.UserAgent,
		acceptLang:  opts.AcceptLanguage,
	}
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func (c *Connection) do(req *http.Request) (*http.Response, error) {
	req.Header.Set("User-Agent", c.userAgent)
	if c.acceptLang != "" {
		req.Header.Set("Accept-Language", c.acceptLang)
	}
	id := uuid.New().String()
	req.Header.Set("X-Request-Id", id)
	log := c.logger.WithValues("requestId", id, "method", req.Method, "url", req.URL.String())
	log.V(1).Info("sending ACME request")

	resp, err := c.client.Do(req)
	if err != nil {
		log.Error(err, "ACME request failed")
		return nil, acmeerrors.NetworkError(err, "requesting %s", req.URL)
	}
	log.V(1).Info("received ACME response", "status", resp.StatusCode)
	return resp, nil
}

// UnsignedGet performs a plain GET, satisfying acmedir.Fetcher so a
// Connection can drive a Session's directory cache.
func (c *Connection) UnsignedGet(ctx context.Context, url, ifModifiedSince string) ([]byte, http.Header, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, nil, 0, acmeerrors.ProtocolError("building request for %s: %v", url, err)
	}
	if ifModifiedSince != "" {
		req.Header.Set("If-Modified-Since", ifModifiedSince)
	}
	resp, err := c.do(req)
	if err != nil {
		return nil, nil, 0, err
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, nil, 0, acmeerrors.NetworkError(err, "reading response body from %s", url)
	}
	return body, resp.Header, resp.StatusCode, nil
}

// FetchNonce retrieves a fresh nonce from the directory's newNonce
// endpoint, preferring HEAD (RFC 8555 §7.2) and falling back to GET if the
// CA rejects HEAD.
func (c *Connection) FetchNonce(ctx context.Context) (string, error) {
	d, err := c.dir.Get(ctx)
	if err != nil {
		return "", err
	}
	endpoint, err := d.Endpoint("newNonce")
	if err != nil {
		return "", err
	}

	for _, method := range []string{http.MethodHead, http.MethodGet} {
		req, err := http.NewRequestWithContext(ctx, method, endpoint, nil)
		if err != nil {
			return "", acmeerrors.ProtocolError("building newNonce request: %v", err)
		}
		resp, err := c.do(req)
		if err != nil {
			return "", err
		}
		resp.Body.Close()
		if nonce := resp.Header.Get("Replay-Nonce"); nonce != "" {
			return nonce, nil
		}
	}
	return "", acmeerrors.ProtocolError("newNonce endpoint returned no Replay-Nonce header")
}

// nonce returns a usable nonce: the cached one if present, otherwise a
// freshly fetched one.
func (c *Connection) nonce(ctx context.Context) (string, error) {
	if n, ok := c.nonces.Take(); ok {
		return n, nil
	}
	return c.FetchNonce(ctx)
}

// SignedPost sends a signed POST with the given JSON payload (spec.md
// §4.4). identity selects kid or jwk framing; signer produces the
// signature.
func (c *Connection) SignedPost(ctx context.Context, identity acmejose.KeyIdentity, signer crypto.Signer, url string, payload []byte) (*Response, error) {
	return c.doSigned(ctx, identity, signer, url, payload)
}

// SignedPostAsGet sends a signed POST with an empty payload, the "POST as
// GET" idiom RFC 8555 §6.3 uses to fetch a resource with authentication.
func (c *Connection) SignedPostAsGet(ctx context.Context, identity acmejose.KeyIdentity, signer crypto.Signer, url string) (*Response, error) {
	return c.doSignedAccept(ctx, identity, signer, url, []byte{}, "")
}

// SignedPostAsGetAccept is SignedPostAsGet with an explicit Accept header,
// used for certificate chain download (RFC 8555 §7.4.2 requires
// "application/pem-certificate-chain").
func (c *Connection) SignedPostAsGetAccept(ctx context.Context, identity acmejose.KeyIdentity, signer crypto.Signer, url, accept string) (*Response, error) {
	return c.doSignedAccept(ctx, identity, signer, url, []byte{}, accept)
}

// SendPreSigned posts a JWS envelope that was already fully constructed by
// the caller (the key-change nested outer/inner JWS pair is the only
// caller: acmejose.SignKeyChange produces the outer envelope's bytes
// directly, so signing it again here would double-wrap it). The response
// is still dispatched and the Replay-Nonce header still consumed, but
// there is no retry on badNonce since a pre-signed envelope can't be
// re-signed with a fresh nonce without the caller's key material.
func (c *Connection) SendPreSigned(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return acmeerrors.ProtocolError("building pre-signed request: %v", err)
	}
	req.Header.Set("Content-Type", contentTypeJOSE)

	resp, err := c.do(req)
	if err != nil {
		return err
	}
	_, dispatchErr := c.dispatch(resp)
	c.nonces.Set(resp.Header.Get("Replay-Nonce"))
	return dispatchErr
}

func (c *Connection) doSigned(ctx context.Context, identity acmejose.KeyIdentity, signer crypto.Signer, url string, payload []byte) (*Response, error) {
	return c.doSignedAccept(ctx, identity, signer, url, payload, "")
}

func (c *Connection) doSignedAccept(ctx context.Context, identity acmejose.KeyIdentity, signer crypto.Signer, url string, payload []byte, accept string) (*Response, error) {
	var lastErr error
	for attempt := 0; attempt < c.retryBudget; attempt++ {
		nonce, err := c.nonce(ctx)
		if err != nil {
			return nil, err
		}

		sr, err := acmejose.Sign(signer, identity, url, nonce, payload)
		if err != nil {
			return nil, err
		}
		body, err := json.Marshal(sr)
		if err != nil {
			return nil, acmeerrors.ProtocolError("marshaling JWS envelope: %v", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, acmeerrors.ProtocolError("building signed request: %v", err)
		}
		req.Header.Set("Content-Type", contentTypeJOSE)
		if accept != "" {
			req.Header.Set("Accept", accept)
		}

		resp, err := c.do(req)
		if err != nil {
			return nil, err
		}

		parsed, dispatchErr := c.dispatch(resp)
		c.nonces.Set(resp.Header.Get("Replay-Nonce"))

		if dispatchErr != nil {
			if isBadNonce(dispatchErr) && attempt < c.retryBudget-1 {
				lastErr = dispatchErr
				continue
			}
			return nil, dispatchErr
		}
		return parsed, nil
	}
	return nil, acmeerrors.Wrap(acmeerrors.Protocol, lastErr, "exhausted bad-nonce retry budget of %d", c.retryBudget)
}

func isBadNonce(err error) bool {
	ae, ok := err.(*acmeerrors.AcmeError)
	if !ok || ae.Problem == nil {
		return false
	}
	return strings.HasSuffix(ae.Problem.ProblemType(), "badNonce")
}

// dispatch reads the response body and applies spec.md §4.4's dispatch
// rules: a problem+json Content-Type raises a problem error regardless of
// status; otherwise a >=400 status without a parseable problem body
// becomes a generic ServerProblem error; a 2xx application/json body
// declaring a non-utf-8 charset is rejected before the caller ever sees
// it.
func (c *Connection) dispatch(resp *http.Response) (*Response, error) {
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, acmeerrors.NetworkError(err, "reading response body")
	}

	links := LinksOf(resp.Header)
	retryAfter, hasRetryAfter := parseRetryAfter(resp.Header, c.clock)

	mediaType, params, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))

	if mediaType == "application/problem+json" {
		if prob, probErr := parseProblem(body); probErr == nil {
			newTOS := firstLink(links, "terms-of-service")
			return nil, prob.AsAcmeError(retryAfter, newTOS)
		}
	}

	if resp.StatusCode >= 400 {
		if prob, probErr := parseProblem(body); probErr == nil {
			newTOS := firstLink(links, "terms-of-service")
			return nil, prob.AsAcmeError(retryAfter, newTOS)
		}
		return nil, acmeerrors.New(acmeerrors.ServerProblem, "HTTP %d with unparseable body", resp.StatusCode)
	}

	if mediaType == "application/json" {
		if charset, ok := params["charset"]; ok && !strings.EqualFold(charset, "utf-8") {
			return nil, acmeerrors.ProtocolError("response declared charset %q, only utf-8 is accepted", charset)
		}
	}

	return &Response{
		StatusCode:    resp.StatusCode,
		Body:          body,
		Header:        resp.Header,
		Location:      resp.Header.Get("Location"),
		Links:         links,
		RetryAfter:    retryAfter,
		HasRetryAfter: hasRetryAfter,
	}, nil
}

// parseProblem attempts to parse body as an RFC 7807 problem document.
func parseProblem(body []byte) (acmeprob.Problem, error) {
	node, err := acmejson.Parse(body)
	if err != nil {
		return acmeprob.Problem{}, err
	}
	return acmeprob.FromNode(node)
}

func firstLink(links map[string][]string, rel string) string {
	vs := links[rel]
	if len(vs) == 0 {
		return ""
	}
	return vs[0]
}
