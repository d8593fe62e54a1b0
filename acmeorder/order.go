// Package acmeorder implements Order and Authorization (spec.md §4.7):
// certificate-issuance workflow state, finalization, and the per-
// identifier authorization objects an order references.
package acmeorder

import (
	"context"
	"crypto"
	"time"

	"github.com/cert-ops/acmeclient/acmecore"
	"github.com/cert-ops/acmeclient/acmeerrors"
	"github.com/cert-ops/acmeclient/acmejose"
	"github.com/cert-ops/acmeclient/acmejson"
	"github.com/cert-ops/acmeclient/acmeprob"
	"github.com/cert-ops/acmeclient/acmesession"
)

// Order is the RFC 8555 §7.1.3 order resource.
type Order struct {
	URL                string
	Status             acmecore.Status
	Expires            time.Time
	Identifiers        []acmecore.Identifier
	NotBefore          *time.Time
	NotAfter           *time.Time
	Error              *acmeprob.Problem
	AuthorizationURLs  []string
	FinalizeURL        string
	CertificateURL     string
	Profile            string
	Replaces           string

	session    *acmesession.Session
	accountURL string
	signer     crypto.Signer
}

func (o *Order) identity() acmejose.KeyIdentity {
	return acmejose.KeyIdentity{Kid: o.accountURL}
}

// Session exposes the bound Session, for acmecert's certificate download.
func (o *Order) Session() *acmesession.Session {
	return o.session
}

// AccountURL exposes the kid this order's requests are signed with.
func (o *Order) AccountURL() string {
	return o.accountURL
}

// Signer exposes the account key, for acmecert's certificate download.
func (o *Order) Signer() crypto.Signer {
	return o.signer
}

func orderFromNode(n acmejson.Node) (Order, error) {
	var o Order
	status, err := n.Field("status").AsStatus()
	if err != nil {
		return Order{}, err
	}
	o.Status = acmecore.Status(status)

	if expires, ok := n.Field("expires").Optional(); ok {
		t, err := expires.AsInstant()
		if err != nil {
			return Order{}, err
		}
		o.Expires = t
	}

	idents, err := n.Field("identifiers").AsArray()
	if err != nil {
		return Order{}, err
	}
	for _, idn := range idents {
		ident, err := idn.AsIdentifier()
		if err != nil {
			return Order{}, err
		}
		o.Identifiers = append(o.Identifiers, acmecore.Identifier{
			Type:                 acmecore.IdentifierType(ident.Type),
			Value:                ident.Value,
			SubdomainAuthAllowed: ident.SubdomainAuthAllowed,
		})
	}

	if nb, ok := n.Field("notBefore").Optional(); ok {
		t, err := nb.AsInstant()
		if err != nil {
			return Order{}, err
		}
		o.NotBefore = &t
	}
	if na, ok := n.Field("notAfter").Optional(); ok {
		t, err := na.AsInstant()
		if err != nil {
			return Order{}, err
		}
		o.NotAfter = &t
	}
	if perr, ok := n.Field("error").Optional(); ok {
		prob, err := acmeprob.FromNode(perr)
		if err != nil {
			return Order{}, err
		}
		o.Error = &prob
	}
	authzNodes, err := n.Field("authorizations").AsArray()
	if err != nil {
		return Order{}, err
	}
	for _, a := range authzNodes {
		s, err := a.AsString()
		if err != nil {
			return Order{}, err
		}
		o.AuthorizationURLs = append(o.AuthorizationURLs, s)
	}
	if fin, err := n.Field("finalize").AsString(); err == nil {
		o.FinalizeURL = fin
	} else {
		return Order{}, err
	}
	if cert, ok := n.Field("certificate").Optional(); ok {
		s, err := cert.AsString()
		if err != nil {
			return Order{}, err
		}
		o.CertificateURL = s
	}
	if profile, ok := n.Field("profile").Optional(); ok {
		s, err := profile.AsString()
		if err != nil {
			return Order{}, err
		}
		o.Profile = s
	}
	if replaces, ok := n.Field("replaces").Optional(); ok {
		s, err := replaces.AsString()
		if err != nil {
			return Order{}, err
		}
		o.Replaces = s
	}
	return o, nil
}

// Update re-fetches the order via POST-as-GET (RFC 8555 §7.4), refreshing
// every field in place. Callers poll this after triggering challenges or
// finalizing, using the server's Retry-After hint to pace polling.
func (o *Order) Update(ctx context.Context) (time.Duration, error) {
	resp, err := o.session.Connect().SignedPostAsGet(ctx, o.identity(), o.signer, o.URL)
	if err != nil {
		return 0, acmeerrors.Lazy("Order.Update", err)
	}
	node, err := resp.Node()
	if err != nil {
		return 0, acmeerrors.Lazy("Order.Update", err)
	}
	updated, err := orderFromNode(node)
	if err != nil {
		return 0, acmeerrors.Lazy("Order.Update", err)
	}
	updated.URL = o.URL
	updated.session = o.session
	updated.accountURL = o.accountURL
	updated.signer = o.signer
	*o = updated

	if resp.HasRetryAfter {
		return time.Until(resp.RetryAfter), nil
	}
	return 0, nil
}

// Authorizations lazily fetches every authorization the order references.
func (o *Order) Authorizations(ctx context.Context) ([]*Authorization, error) {
	out := make([]*Authorization, 0, len(o.AuthorizationURLs))
	for _, url := range o.AuthorizationURLs {
		authz := &Authorization{URL: url, session: o.session, accountURL: o.accountURL, signer: o.signer}
		if err := authz.Fetch(ctx); err != nil {
			return nil, err
		}
		out = append(out, authz)
	}
	return out, nil
}

// Finalize submits a DER-encoded CSR to the order's finalize URL (RFC 8555
// §7.4). Per spec.md §8's precondition-checking philosophy, finalizing an
// order that is not in the "ready" state fails before any network call.
func (o *Order) Finalize(ctx context.Context, csrDER []byte) error {
	if o.Status != acmecore.StatusReady {
		return acmeerrors.StateError("cannot finalize order in status %q, must be %q", o.Status, acmecore.StatusReady)
	}

	payload, err := marshalFinalize(csrDER)
	if err != nil {
		return err
	}
	resp, err := o.session.Connect().SignedPost(ctx, o.identity(), o.signer, o.FinalizeURL, payload)
	if err != nil {
		return err
	}
	node, err := resp.Node()
	if err != nil {
		return err
	}
	updated, err := orderFromNode(node)
	if err != nil {
		return err
	}
	updated.URL = o.URL
	updated.session = o.session
	updated.accountURL = o.accountURL
	updated.signer = o.signer
	*o = updated
	return nil
}
