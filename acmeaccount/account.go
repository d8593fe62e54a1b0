// Package acmeaccount implements the Account of spec.md §4.6: creation,
// contact modification, key rollover, deactivation, and the paginated
// orders listing RFC 8555 §7.1.2.1 advertises.
package acmeaccount

import (
	"context"
	"crypto"
	"encoding/json"

	"github.com/cert-ops/acmeclient/acmecore"
	"github.com/cert-ops/acmeclient/acmeerrors"
	"github.com/cert-ops/acmeclient/acmejose"
	"github.com/cert-ops/acmeclient/acmejson"
	"github.com/cert-ops/acmeclient/acmesession"
)

// Account is the RFC 8555 §7.1.2 account resource.
type Account struct {
	URL                  string
	Status               acmecore.Status
	Contacts             []string
	TermsOfServiceAgreed bool
	OrdersURL            string

	session *acmesession.Session
	signer  crypto.Signer
}

// KeyPair returns the crypto.Signer currently authenticating this account,
// for callers persisting account state (spec.md §6 "Persisted state").
func (a *Account) KeyPair() crypto.Signer {
	return a.signer
}

func (a *Account) identity() acmejose.KeyIdentity {
	return acmejose.KeyIdentity{Kid: a.URL}
}

func fromNode(n acmejson.Node) (Account, error) {
	status, err := n.Field("status").AsStatus()
	if err != nil {
		return Account{}, err
	}
	var a Account
	a.Status = acmecore.Status(status)

	if tos, ok := n.Field("termsOfServiceAgreed").Optional(); ok {
		b, err := tos.AsBool()
		if err != nil {
			return Account{}, err
		}
		a.TermsOfServiceAgreed = b
	}
	if contacts, ok := n.Field("contact").Optional(); ok {
		arr, err := contacts.AsArray()
		if err != nil {
			return Account{}, err
		}
		for _, c := range arr {
			s, err := c.AsString()
			if err != nil {
				return Account{}, err
			}
			a.Contacts = append(a.Contacts, s)
		}
	}
	if orders, ok := n.Field("orders").Optional(); ok {
		s, err := orders.AsString()
		if err != nil {
			return Account{}, err
		}
		a.OrdersURL = s
	}
	return a, nil
}

// Modify updates the account's contact list, the only field RFC 8555
// §7.3.2 allows a client to change after creation.
func (a *Account) Modify(ctx context.Context, contacts []string) error {
	payload, err := json.Marshal(map[string]interface{}{"contact": contacts})
	if err != nil {
		return acmeerrors.ProtocolError("marshaling account update: %v", err)
	}
	resp, err := a.session.Connect().SignedPost(ctx, a.identity(), a.signer, a.URL, payload)
	if err != nil {
		return err
	}
	node, err := resp.Node()
	if err != nil {
		return err
	}
	updated, err := fromNode(node)
	if err != nil {
		return err
	}
	updated.URL = a.URL
	updated.session = a.session
	updated.signer = a.signer
	*a = updated
	return nil
}

// Deactivate transitions the account to the terminal "deactivated" status
// (RFC 8555 §7.3.6). Once deactivated, the account can never be
// reactivated; the server will reject further signed requests using it.
func (a *Account) Deactivate(ctx context.Context) error {
	payload, err := json.Marshal(map[string]string{"status": "deactivated"})
	if err != nil {
		return acmeerrors.ProtocolError("marshaling deactivation request: %v", err)
	}
	resp, err := a.session.Connect().SignedPost(ctx, a.identity(), a.signer, a.URL, payload)
	if err != nil {
		return err
	}
	node, err := resp.Node()
	if err != nil {
		return err
	}
	updated, err := fromNode(node)
	if err != nil {
		return err
	}
	a.Status = updated.Status
	return nil
}

// ChangeKey performs RFC 8555 §7.3.5 key rollover: the account continues
// to exist at the same URL but is afterward authenticated with newSigner.
// Per spec.md §8's precondition-checking philosophy, a rollover to the
// account's own current key is rejected before any network call.
func (a *Account) ChangeKey(ctx context.Context, newSigner crypto.Signer) error {
	if acmejose.SameKey(a.signer, newSigner) {
		return acmeerrors.ProtocolError("key-change: new key is identical to the account's current key")
	}

	keyChangeURL, err := a.session.ResourceURL(ctx, "keyChange")
	if err != nil {
		return err
	}

	nonce, err := a.session.Connect().FetchNonce(ctx)
	if err != nil {
		return err
	}
	sr, err := acmejose.SignKeyChange(a.signer, newSigner, a.URL, keyChangeURL, nonce)
	if err != nil {
		return err
	}
	payload, err := json.Marshal(sr)
	if err != nil {
		return acmeerrors.ProtocolError("marshaling key-change envelope: %v", err)
	}

	// The outer JWS is already fully formed (signed by the old key, with
	// its own nonce); SignedPost's own signing step would double-sign it,
	// so the key-change request is issued through a raw Connection path
	// instead. (See SendPreSigned in acmeconn/connection.go.)
	if err := a.session.Connect().SendPreSigned(ctx, keyChangeURL, payload); err != nil {
		return err
	}
	a.signer = newSigner
	return nil
}
