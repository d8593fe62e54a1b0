package acmeorder

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"

	"github.com/cert-ops/acmeclient/acmecore"
	"github.com/cert-ops/acmeclient/internal/test"
)

// TestFinalizeRejectsNonReadyOrderBeforeNetworkCall is spec.md §8's
// finalize precondition scenario: finalizing an order that isn't "ready"
// fails immediately. A nil Session proves no network call was attempted,
// since dereferencing it would panic.
func TestFinalizeRejectsNonReadyOrderBeforeNetworkCall(t *testing.T) {
	order := &Order{Status: acmecore.StatusPending}
	err := order.Finalize(context.Background(), []byte("not-a-real-csr"))
	test.AssertError(t, err, "expected finalize to reject a non-ready order")
}

func TestDedupIdentifiersSortsAndRemovesDuplicates(t *testing.T) {
	in := []acmecore.Identifier{
		{Type: acmecore.IdentifierDNS, Value: "b.example.com"},
		{Type: acmecore.IdentifierDNS, Value: "a.example.com"},
		{Type: acmecore.IdentifierDNS, Value: "b.example.com"},
	}
	out := dedupIdentifiers(in)
	test.AssertEquals(t, 2, len(out))
	test.AssertEquals(t, "a.example.com", out[0].Value)
	test.AssertEquals(t, "b.example.com", out[1].Value)
}

func TestOrderBuilderRejectsEmptyIdentifierList(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	test.AssertNotError(t, err, "generating test key")
	b := Builder{}
	_, err = b.Create(context.Background(), nil, "https://ca.example/acct/1", key)
	test.AssertError(t, err, "expected empty-identifier order to be rejected before any network call")
}

func TestFindChallengeNotOffered(t *testing.T) {
	a := &Authorization{Challenges: []ChallengeRef{{Type: "http-01"}}}
	_, err := a.FindChallenge("dns-01")
	test.AssertError(t, err, "expected not-supported error for an unoffered challenge type")
}
