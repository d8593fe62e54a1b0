package acmeconn

import (
	"bytes"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/jmhodges/clock"

	"github.com/cert-ops/acmeclient/acmeerrors"
	"github.com/cert-ops/acmeclient/acmeprob"
	"github.com/cert-ops/acmeclient/internal/test"
)

func problemError(urn string) error {
	prob := acmeprob.Problem{Type: urn, Detail: "test"}
	return acmeerrors.ServerProblemError(prob.Kind(), prob)
}

func TestParseLinkHeaderMultipleRelsAndEntries(t *testing.T) {
	h := http.Header{}
	h.Add("Link", `<https://ca.example/acme/new-order/1>; rel="up", <https://ca.example/acme/terms>; rel="terms-of-service"`)
	h.Add("Link", `<https://ca.example/acme/directory?page=2>; rel="next"`)

	links := LinksOf(h)
	test.AssertEquals(t, "https://ca.example/acme/new-order/1", links["up"][0])
	test.AssertEquals(t, "https://ca.example/acme/terms", links["terms-of-service"][0])
	test.AssertEquals(t, "https://ca.example/acme/directory?page=2", links["next"][0])
}

func TestParseRetryAfterDeltaSeconds(t *testing.T) {
	h := http.Header{}
	h.Set("Retry-After", "120")
	fc := clock.NewFake()
	when, ok := parseRetryAfter(h, fc)
	if !ok {
		t.Fatal("expected Retry-After to parse")
	}
	test.AssertEquals(t, fc.Now().Add(120*time.Second), when)
}

func TestParseRetryAfterPastDueIsNoDelay(t *testing.T) {
	fc := clock.NewFake()
	h := http.Header{}
	h.Set("Retry-After", fc.Now().Add(-1*time.Hour).Format(http.TimeFormat))
	when, ok := parseRetryAfter(h, fc)
	if !ok {
		t.Fatal("expected Retry-After to parse")
	}
	test.AssertEquals(t, fc.Now(), when)
}

func TestNonceBoxTakeThenEmpty(t *testing.T) {
	box := &NonceBox{}
	box.Set("abc123")
	n, ok := box.Take()
	if !ok || n != "abc123" {
		t.Fatalf("expected cached nonce, got %q ok=%v", n, ok)
	}
	if _, ok := box.Take(); ok {
		t.Fatal("expected nonce box to be empty after Take")
	}
}

func TestIsBadNonceDetectsProblemSuffix(t *testing.T) {
	err := problemError("urn:ietf:params:acme:error:badNonce")
	if !isBadNonce(err) {
		t.Fatal("expected badNonce problem to be detected")
	}
	if isBadNonce(problemError("urn:ietf:params:acme:error:malformed")) {
		t.Fatal("malformed problem should not be treated as badNonce")
	}
}

func httpResponse(status int, contentType, body string) *http.Response {
	h := http.Header{}
	if contentType != "" {
		h.Set("Content-Type", contentType)
	}
	return &http.Response{
		StatusCode: status,
		Header:     h,
		Body:       io.NopCloser(bytes.NewReader([]byte(body))),
	}
}

func TestDispatchRaisesProblemOn200WithProblemContentType(t *testing.T) {
	conn := &Connection{clock: clock.NewFake()}
	resp := httpResponse(http.StatusOK, "application/problem+json", `{"type":"urn:ietf:params:acme:error:malformed","detail":"still a problem"}`)

	_, err := conn.dispatch(resp)
	if err == nil {
		t.Fatal("expected a 200 response with a problem+json Content-Type to raise an error")
	}
	if !acmeerrors.Is(err, acmeerrors.ServerProblem) {
		t.Fatalf("expected ServerProblem kind, got %v", err)
	}
}

func TestDispatchRejectsNonUTF8Charset(t *testing.T) {
	conn := &Connection{clock: clock.NewFake()}
	resp := httpResponse(http.StatusOK, "application/json; charset=iso-8859-1", `{"status":"valid"}`)

	_, err := conn.dispatch(resp)
	if err == nil {
		t.Fatal("expected a non-utf-8 declared charset to be rejected")
	}
	if !acmeerrors.Is(err, acmeerrors.Protocol) {
		t.Fatalf("expected Protocol kind, got %v", err)
	}
}

func TestDispatchAcceptsDeclaredUTF8Charset(t *testing.T) {
	conn := &Connection{clock: clock.NewFake()}
	resp := httpResponse(http.StatusOK, "application/json; charset=utf-8", `{"status":"valid"}`)

	parsed, err := conn.dispatch(resp)
	test.AssertNotError(t, err, "a declared utf-8 charset should be accepted")
	test.AssertEquals(t, http.StatusOK, parsed.StatusCode)
}
