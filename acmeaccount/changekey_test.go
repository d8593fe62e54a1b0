package acmeaccount

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"

	"github.com/cert-ops/acmeclient/acmeerrors"
	"github.com/cert-ops/acmeclient/internal/test"
)

// TestChangeKeyRejectsSameKeyBeforeNetworkCall is spec.md §8's precondition
// scenario: rolling an account over to its own current key fails
// immediately, without Connect() ever being dereferenced (a nil Session
// would panic on first use, so reaching the assertion proves no network
// call was attempted).
func TestChangeKeyRejectsSameKeyBeforeNetworkCall(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	test.AssertNotError(t, err, "generating test key")

	acct := &Account{URL: "https://ca.example/acct/1", signer: key}
	err = acct.ChangeKey(context.Background(), key)
	test.AssertError(t, err, "expected same-key rollover to be rejected")
	if !acmeerrors.Is(err, acmeerrors.Protocol) {
		t.Fatalf("expected a Protocol error, got %v", err)
	}
}
