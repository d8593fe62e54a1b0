// Package acmechallenge implements the challenge framework of spec.md
// §4.8: the four supported challenge variants (http-01, dns-01,
// dns-account-01, tls-alpn-01), each deriving its own validation artifact
// from the authorization's key authorization, plus the common lifecycle
// (Trigger, Fetch/Update) every variant shares.
package acmechallenge

import (
	"context"

	jose "gopkg.in/go-jose/go-jose.v2"

	"github.com/cert-ops/acmeclient/acmecore"
	"github.com/cert-ops/acmeclient/acmejose"
	"github.com/cert-ops/acmeclient/acmejson"
	"github.com/cert-ops/acmeclient/acmeorder"
)

// Challenge is the shared lifecycle every variant implements (spec.md
// §4.8, §9 "Design notes": tagged-variant dispatch on a common interface).
type Challenge interface {
	Type() string
	URL() string
	Status() acmecore.Status
	// Trigger tells the CA to attempt validation now (RFC 8555 §7.5.1: a
	// signed POST with an empty JSON object payload).
	Trigger(ctx context.Context) error
	// Fetch re-reads the challenge's current state via POST-as-GET.
	Fetch(ctx context.Context) error
	// Update is an alias for Fetch, for polling after Trigger.
	Update(ctx context.Context) error
}

// base holds the fields and behavior common to every challenge variant.
type base struct {
	ref     acmeorder.ChallengeRef
	authz   *acmeorder.Authorization
	keyAuth acmecore.KeyAuthorization
}

func newBase(ref acmeorder.ChallengeRef, authz *acmeorder.Authorization) (base, error) {
	jwk := &jose.JSONWebKey{Key: authz.Signer().Public()}
	keyAuth, err := acmecore.NewKeyAuthorization(ref.Token, jwk)
	if err != nil {
		return base{}, err
	}
	return base{ref: ref, authz: authz, keyAuth: keyAuth}, nil
}

func (b *base) Type() string           { return b.ref.Type }
func (b *base) URL() string            { return b.ref.URL }
func (b *base) Status() acmecore.Status { return b.ref.Status }

// KeyAuthorization returns the key authorization this challenge's
// validation artifact is derived from.
func (b *base) KeyAuthorization() acmecore.KeyAuthorization {
	return b.keyAuth
}

func (b *base) Trigger(ctx context.Context) error {
	identity := acmejose.KeyIdentity{Kid: b.authz.AccountURL()}
	resp, err := b.authz.Session().Connect().SignedPost(ctx, identity, b.authz.Signer(), b.ref.URL, []byte("{}"))
	if err != nil {
		return err
	}
	return b.applyResponse(resp)
}

func (b *base) Fetch(ctx context.Context) error {
	identity := acmejose.KeyIdentity{Kid: b.authz.AccountURL()}
	resp, err := b.authz.Session().Connect().SignedPostAsGet(ctx, identity, b.authz.Signer(), b.ref.URL)
	if err != nil {
		return err
	}
	return b.applyResponse(resp)
}

func (b *base) Update(ctx context.Context) error {
	return b.Fetch(ctx)
}

func (b *base) applyResponse(resp interface {
	Node() (acmejson.Node, error)
}) error {
	node, err := resp.Node()
	if err != nil {
		return err
	}
	status, err := node.Field("status").AsStatus()
	if err != nil {
		return err
	}
	b.ref.Status = acmecore.Status(status)
	return nil
}

// New dispatches ref into its typed variant (spec.md §9's tagged-variant
// design). Only the four challenge types spec.md §9 names as in scope are
// recognized; anything else resolves to Generic rather than failing, since
// a CA may offer experimental types a client should be able to at least
// introspect.
func New(ref acmeorder.ChallengeRef, authz *acmeorder.Authorization) (Challenge, error) {
	b, err := newBase(ref, authz)
	if err != nil {
		return nil, err
	}
	switch ref.Type {
	case "http-01":
		return &HTTP01{base: b}, nil
	case "dns-01":
		return &DNS01{base: b}, nil
	case "dns-account-01":
		return &DNSAccount01{base: b}, nil
	case "tls-alpn-01":
		return &TLSALPN01{base: b}, nil
	default:
		return &Generic{base: b}, nil
	}
}

