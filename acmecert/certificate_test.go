package acmecert

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/cert-ops/acmeclient/acmecore"
	"github.com/cert-ops/acmeclient/acmejose"
	"github.com/cert-ops/acmeclient/acmesession"
	"github.com/cert-ops/acmeclient/internal/test"
)

// selfSigned builds a minimal self-signed certificate for a given issuer
// common name, for use as a stand-in leaf or issuer in these tests.
func selfSigned(t *testing.T, commonName string, serial int64) (*x509.Certificate, []byte) {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	test.AssertNotError(t, err, "generating test key")

	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(serial),
		Subject:      pkix.Name{CommonName: commonName},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	test.AssertNotError(t, err, "creating test certificate")
	cert, err := x509.ParseCertificate(der)
	test.AssertNotError(t, err, "parsing test certificate")
	return cert, der
}

func pemOf(ders ...[]byte) []byte {
	var out []byte
	for _, der := range ders {
		out = append(out, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})...)
	}
	return out
}

// testCA serves a directory plus a primary and alternate certificate
// chain, and records the last revocation request it received.
type testCA struct {
	leafDER, issuerADER, issuerBDER []byte
	lastRevokeBody                  []byte
}

func newTestCA(t *testing.T) (*httptest.Server, *testCA) {
	_, leafDER := selfSigned(t, "leaf", 1001)
	_, issuerADER := selfSigned(t, "Test Issuer A", 1)
	_, issuerBDER := selfSigned(t, "Test Issuer B", 2)

	ca := &testCA{leafDER: leafDER, issuerADER: issuerADER, issuerBDER: issuerBDER}
	mux := http.NewServeMux()
	var srv *httptest.Server

	mux.HandleFunc("/directory", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `{"newNonce":"%[1]s/new-nonce","newAccount":"%[1]s/new-account","newOrder":"%[1]s/new-order","revokeCert":"%[1]s/revoke-cert","keyChange":"%[1]s/key-change","renewalInfo":"%[1]s/renewal-info"}`, srv.URL)
	})
	mux.HandleFunc("/new-nonce", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Replay-Nonce", "testnonce")
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/cert/primary", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Replay-Nonce", "testnonce")
		w.Header().Add("Link", fmt.Sprintf(`<%s/cert/alternate>;rel="alternate"`, srv.URL))
		w.Header().Set("Content-Type", "application/pem-certificate-chain")
		w.Write(pemOf(ca.leafDER, ca.issuerADER))
	})
	mux.HandleFunc("/cert/alternate", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Replay-Nonce", "testnonce")
		w.Header().Set("Content-Type", "application/pem-certificate-chain")
		w.Write(pemOf(ca.leafDER, ca.issuerBDER))
	})
	mux.HandleFunc("/revoke-cert", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		ca.lastRevokeBody = body
		w.Header().Set("Replay-Nonce", "testnonce")
		w.WriteHeader(http.StatusOK)
	})

	srv = httptest.NewServer(mux)
	return srv, ca
}

func newTestSession(directoryURL string) *acmesession.Session {
	return acmesession.New(directoryURL, acmesession.WithRegisterer(prometheus.NewRegistry()))
}

func testSigner(t *testing.T) *ecdsa.PrivateKey {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	test.AssertNotError(t, err, "generating test key")
	return key
}

func TestDownloadParsesLeafAndChainAndAlternates(t *testing.T) {
	srv, _ := newTestCA(t)
	defer srv.Close()

	sess := newTestSession(srv.URL + "/directory")
	cert := New(sess, srv.URL+"/acct/1", testSigner(t), srv.URL+"/cert/primary")

	err := cert.Download(context.Background())
	test.AssertNotError(t, err, "downloading certificate chain")
	test.AssertEquals(t, "leaf", cert.Leaf.Subject.CommonName)
	test.AssertEquals(t, 1, len(cert.Chain))
	test.AssertEquals(t, "Test Issuer A", cert.Chain[0].Subject.CommonName)
	test.AssertEquals(t, 1, len(cert.AlternateURLs))
	test.AssertEquals(t, srv.URL+"/cert/alternate", cert.AlternateURLs[0])
}

func TestFindCertificateResolvesAlternateChain(t *testing.T) {
	srv, _ := newTestCA(t)
	defer srv.Close()

	sess := newTestSession(srv.URL + "/directory")
	cert := New(sess, srv.URL+"/acct/1", testSigner(t), srv.URL+"/cert/primary")
	test.AssertNotError(t, cert.Download(context.Background()), "downloading primary chain")

	found, err := cert.FindCertificate(context.Background(), "Test Issuer B")
	test.AssertNotError(t, err, "finding alternate chain by issuer CN")
	test.AssertEquals(t, "Test Issuer B", found.Chain[0].Subject.CommonName)

	_, err = cert.FindCertificate(context.Background(), "No Such Issuer")
	test.AssertError(t, err, "expected no match for an issuer CN no chain carries")
}

func TestCertIDRequiresDownloadedChain(t *testing.T) {
	sess := newTestSession("https://ca.example/directory")
	cert := New(sess, "https://ca.example/acct/1", testSigner(t), "https://ca.example/cert/primary")
	_, err := cert.CertID()
	test.AssertError(t, err, "expected CertID to fail before the chain is downloaded")
}

func TestCertIDDerivation(t *testing.T) {
	srv, ca := newTestCA(t)
	defer srv.Close()

	sess := newTestSession(srv.URL + "/directory")
	cert := New(sess, srv.URL+"/acct/1", testSigner(t), srv.URL+"/cert/primary")
	test.AssertNotError(t, cert.Download(context.Background()), "downloading chain")

	id, err := cert.CertID()
	test.AssertNotError(t, err, "deriving CertID")
	issuer, err := x509.ParseCertificate(ca.issuerADER)
	test.AssertNotError(t, err, "parsing issuer certificate")

	wantDigest := acmejose.SHA256(issuer.RawSubjectPublicKeyInfo)
	wantSerial := cert.Leaf.SerialNumber.Bytes()
	want := acmejose.Base64URLEncode(wantDigest) + "." + acmejose.Base64URLEncode(wantSerial)
	test.AssertEquals(t, want, id)
}

func TestRevokeAsLoginSendsExpectedPayload(t *testing.T) {
	srv, ca := newTestCA(t)
	defer srv.Close()

	sess := newTestSession(srv.URL + "/directory")
	cert := New(sess, srv.URL+"/acct/1", testSigner(t), srv.URL+"/cert/primary")
	test.AssertNotError(t, cert.Download(context.Background()), "downloading chain")

	login := acmesession.Login{AccountURL: srv.URL + "/acct/1", Signer: testSigner(t)}
	reason := acmecore.RevocationKeyCompromise
	err := cert.Revoke(context.Background(), login, &reason)
	test.AssertNotError(t, err, "revoking via login")
	if len(ca.lastRevokeBody) == 0 {
		t.Fatal("expected revoke-cert to receive a request body")
	}
}

func TestRevokeWithDomainKey(t *testing.T) {
	srv, _ := newTestCA(t)
	defer srv.Close()

	sess := newTestSession(srv.URL + "/directory")
	leaf, _ := selfSigned(t, "leaf", 1001)
	err := RevokeWithDomainKey(context.Background(), sess, leaf, testSigner(t), nil)
	test.AssertNotError(t, err, "revoking with domain key")
}
