package acmechallenge

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/sha256"
	"encoding/asn1"
	"encoding/hex"
	"strings"
	"testing"

	jose "gopkg.in/go-jose/go-jose.v2"

	"github.com/cert-ops/acmeclient/acmecore"
	"github.com/cert-ops/acmeclient/acmejose"
	"github.com/cert-ops/acmeclient/acmeorder"
)

func testAuthz(t *testing.T) *acmeorder.Authorization {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return acmeorder.NewAuthorizationForChallenge("https://ca.example/authz/1", nil, "https://ca.example/acct/1", key, nil)
}

func expectedKeyAuth(t *testing.T, authz *acmeorder.Authorization, token string) acmecore.KeyAuthorization {
	t.Helper()
	jwk := &jose.JSONWebKey{Key: authz.Signer().Public()}
	ka, err := acmecore.NewKeyAuthorization(token, jwk)
	if err != nil {
		t.Fatalf("new key authorization: %v", err)
	}
	return ka
}

func TestHTTP01WellKnownPathAndBody(t *testing.T) {
	authz := testAuthz(t)
	ref := acmeorder.ChallengeRef{Type: "http-01", URL: "https://ca.example/chall/1", Token: "tok-123"}
	ch, err := New(ref, authz)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	h, ok := ch.(*HTTP01)
	if !ok {
		t.Fatalf("expected *HTTP01, got %T", ch)
	}
	if got, want := h.WellKnownPath(), "/.well-known/acme-challenge/tok-123"; got != want {
		t.Errorf("WellKnownPath() = %q, want %q", got, want)
	}
	want := expectedKeyAuth(t, authz, "tok-123").String()
	if got := h.ResponseBody(); got != want {
		t.Errorf("ResponseBody() = %q, want %q", got, want)
	}
}

func TestDNS01RecordNameAndValue(t *testing.T) {
	authz := testAuthz(t)
	ref := acmeorder.ChallengeRef{Type: "dns-01", URL: "https://ca.example/chall/2", Token: "tok-456"}
	ch, err := New(ref, authz)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	d, ok := ch.(*DNS01)
	if !ok {
		t.Fatalf("expected *DNS01, got %T", ch)
	}
	if got, want := RecordNameDNS01("*.example.com"), "_acme-challenge.example.com."; got != want {
		t.Errorf("RecordNameDNS01() = %q, want %q", got, want)
	}
	want := acmejose.Base64URLEncode(expectedKeyAuth(t, authz, "tok-456").Digest())
	if got := d.RecordValue(); got != want {
		t.Errorf("RecordValue() = %q, want %q", got, want)
	}
}

func TestDNSAccount01LabelIsSixteenLowercaseChars(t *testing.T) {
	authz := testAuthz(t)
	ref := acmeorder.ChallengeRef{Type: "dns-account-01", URL: "https://ca.example/chall/3", Token: "tok-789"}
	ch, err := New(ref, authz)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	d, ok := ch.(*DNSAccount01)
	if !ok {
		t.Fatalf("expected *DNSAccount01, got %T", ch)
	}
	label := d.AccountLabel()
	if len(label) != 16 {
		t.Fatalf("AccountLabel() length = %d, want 16", len(label))
	}
	if strings.ToLower(label) != label {
		t.Errorf("AccountLabel() = %q, want all-lowercase", label)
	}
	digest := sha256.Sum256([]byte(authz.AccountURL()))
	want := acmejose.Base32LowerEncode(digest[:10])
	if label != want {
		t.Errorf("AccountLabel() = %q, want %q", label, want)
	}
	wantName := "_" + label + "._acme-challenge.example.com."
	if got := d.RecordName("example.com"); got != wantName {
		t.Errorf("RecordName() = %q, want %q", got, wantName)
	}
}

func TestTLSALPN01CertificateExtension(t *testing.T) {
	authz := testAuthz(t)
	ref := acmeorder.ChallengeRef{Type: "tls-alpn-01", URL: "https://ca.example/chall/4", Token: "tok-alpn"}
	ch, err := New(ref, authz)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	tl, ok := ch.(*TLSALPN01)
	if !ok {
		t.Fatalf("expected *TLSALPN01, got %T", ch)
	}
	ext, err := tl.CertificateExtension()
	if err != nil {
		t.Fatalf("CertificateExtension: %v", err)
	}
	if !ext.Critical {
		t.Error("extension must be marked critical per RFC 8737")
	}
	if got, want := ext.Id.String(), "1.3.6.1.5.5.7.1.30.1"; got != want {
		t.Errorf("extension OID = %q, want %q", got, want)
	}
	var got []byte
	if _, err := asn1.Unmarshal(ext.Value, &got); err != nil {
		t.Fatalf("unmarshal extension value: %v", err)
	}
	want := acmejose.SHA256([]byte(expectedKeyAuth(t, authz, "tok-alpn").String()))
	if string(got) != string(want) {
		t.Errorf("extension digest = %x, want %x", got, want)
	}
}

// TestDNS01DigestGoldenVector checks spec.md §8 scenario 1 against its
// literal hardcoded values, rather than a value computed by the function
// under test: given the documented token and account JWK thumbprint, the
// key authorization and its digest must equal the documented strings
// exactly.
func TestDNS01DigestGoldenVector(t *testing.T) {
	const (
		token       = "pNvmJivs0WCko2suV7fhe-59oFqyYx_yB7tx6kIMAyE"
		thumbprint  = "HnWjTDnyqlCrm6tZ-6wX-TrEXgRdeNu9G71gqxSO6o0"
		wantKeyAuth = "pNvmJivs0WCko2suV7fhe-59oFqyYx_yB7tx6kIMAyE.HnWjTDnyqlCrm6tZ-6wX-TrEXgRdeNu9G71gqxSO6o0"
		wantDigest  = "rzMmotrIgsithyBYc0vgiLUEEKYx0WetQRgEF2JIozA"
	)
	ka, err := acmecore.NewKeyAuthorizationFromString(token + "." + thumbprint)
	if err != nil {
		t.Fatalf("NewKeyAuthorizationFromString: %v", err)
	}
	if got := ka.String(); got != wantKeyAuth {
		t.Errorf("key authorization = %q, want %q", got, wantKeyAuth)
	}
	if got := acmejose.Base64URLEncode(ka.Digest()); got != wantDigest {
		t.Errorf("digest = %q, want %q", got, wantDigest)
	}
}

// TestDNSAccount01RecordNameGoldenVector checks spec.md §8 scenario 2
// against its documented account location and domain.
func TestDNSAccount01RecordNameGoldenVector(t *testing.T) {
	const (
		accountURL = "https://example.com/acme/acct/evOfKhNU60wg"
		domain     = "www.example.org"
		wantName   = "_kyv43diublq5elpi._acme-challenge.www.example.org."
	)
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	authz := acmeorder.NewAuthorizationForChallenge("https://ca.example/authz/9", nil, accountURL, key, nil)
	ref := acmeorder.ChallengeRef{Type: "dns-account-01", URL: "https://ca.example/chall/9", Token: "tok-golden"}
	ch, err := New(ref, authz)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	d, ok := ch.(*DNSAccount01)
	if !ok {
		t.Fatalf("expected *DNSAccount01, got %T", ch)
	}
	if got := d.RecordName(domain); got != wantName {
		t.Errorf("RecordName() = %q, want %q", got, wantName)
	}
}

// TestTLSALPN01DigestGoldenVector checks spec.md §8 scenario 3 against its
// literal hardcoded token, thumbprint, and expected extension digest.
func TestTLSALPN01DigestGoldenVector(t *testing.T) {
	const (
		token      = "rSoI9JpyvFi-ltdnBW0W1DjKstzG7cHixjzcOjwzAEQ"
		thumbprint = "HnWjTDnyqlCrm6tZ-6wX-TrEXgRdeNu9G71gqxSO6o0"
		wantHex    = "9557e464279449dada4682e178d9d5c255dcef8f530e02e3c52f9c7c6b7b85bc"
	)
	ka, err := acmecore.NewKeyAuthorizationFromString(token + "." + thumbprint)
	if err != nil {
		t.Fatalf("NewKeyAuthorizationFromString: %v", err)
	}
	got := sha256.Sum256([]byte(ka.String()))
	if hex.EncodeToString(got[:]) != wantHex {
		t.Errorf("extension digest = %x, want %s", got, wantHex)
	}
}

func TestNewUnknownTypeDispatchesToGeneric(t *testing.T) {
	authz := testAuthz(t)
	ref := acmeorder.ChallengeRef{Type: "experimental-99", URL: "https://ca.example/chall/5", Token: "tok-xyz"}
	ch, err := New(ref, authz)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, ok := ch.(*Generic); !ok {
		t.Fatalf("expected *Generic for unrecognized type, got %T", ch)
	}
	if got, want := ch.Type(), "experimental-99"; got != want {
		t.Errorf("Type() = %q, want %q", got, want)
	}
}
