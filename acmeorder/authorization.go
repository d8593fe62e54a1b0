package acmeorder

import (
	"context"
	"crypto"

	"github.com/cert-ops/acmeclient/acmecore"
	"github.com/cert-ops/acmeclient/acmeerrors"
	"github.com/cert-ops/acmeclient/acmejose"
	"github.com/cert-ops/acmeclient/acmejson"
	"github.com/cert-ops/acmeclient/acmesession"
)

// Authorization is the RFC 8555 §7.1.4 authorization resource: the proof
// obligation for a single identifier within an order.
type Authorization struct {
	URL        string
	Identifier acmecore.Identifier
	Status     acmecore.Status
	Wildcard   bool
	// Challenges holds the raw wire fields of each offered challenge;
	// acmechallenge.New dispatches these into typed variants, keeping this
	// package free of a dependency on the challenge framework.
	Challenges []ChallengeRef

	session    *acmesession.Session
	accountURL string
	signer     crypto.Signer
}

// ChallengeRef is an authorization's offered challenge before dispatch
// into a typed acmechallenge variant.
type ChallengeRef struct {
	Type   string
	URL    string
	Token  string
	Status acmecore.Status
}

func (a *Authorization) identity() acmejose.KeyIdentity {
	return acmejose.KeyIdentity{Kid: a.accountURL}
}

// Signer exposes the account key this authorization is authenticated
// with, for acmechallenge's key-authorization derivation.
func (a *Authorization) Signer() crypto.Signer {
	return a.signer
}

// Session exposes the bound Session, for acmechallenge's challenge
// Trigger/Fetch/Update operations.
func (a *Authorization) Session() *acmesession.Session {
	return a.session
}

// AccountURL exposes the kid this authorization's requests are signed
// with.
func (a *Authorization) AccountURL() string {
	return a.accountURL
}

// NewAuthorizationForChallenge builds an Authorization from already-known
// fields rather than a server response, for callers (and tests) driving a
// challenge directly against a known authorization URL.
func NewAuthorizationForChallenge(url string, sess *acmesession.Session, accountURL string, signer crypto.Signer, challenges []ChallengeRef) *Authorization {
	return &Authorization{
		URL:        url,
		Challenges: challenges,
		session:    sess,
		accountURL: accountURL,
		signer:     signer,
	}
}

func authzFromNode(n acmejson.Node) (Authorization, error) {
	var a Authorization
	ident, err := n.Field("identifier").AsIdentifier()
	if err != nil {
		return Authorization{}, err
	}
	a.Identifier = acmecore.Identifier{
		Type:                 acmecore.IdentifierType(ident.Type),
		Value:                ident.Value,
		SubdomainAuthAllowed: ident.SubdomainAuthAllowed,
	}
	status, err := n.Field("status").AsStatus()
	if err != nil {
		return Authorization{}, err
	}
	a.Status = acmecore.Status(status)

	if wc, ok := n.Field("wildcard").Optional(); ok {
		b, err := wc.AsBool()
		if err != nil {
			return Authorization{}, err
		}
		a.Wildcard = b
	}

	challenges, err := n.Field("challenges").AsArray()
	if err != nil {
		return Authorization{}, err
	}
	for _, c := range challenges {
		typ, err := c.Field("type").AsString()
		if err != nil {
			return Authorization{}, err
		}
		url, err := c.Field("url").AsString()
		if err != nil {
			return Authorization{}, err
		}
		token, err := c.Field("token").AsString()
		if err != nil {
			return Authorization{}, err
		}
		cstatus, err := c.Field("status").AsStatus()
		if err != nil {
			return Authorization{}, err
		}
		a.Challenges = append(a.Challenges, ChallengeRef{
			Type:   typ,
			URL:    url,
			Token:  token,
			Status: acmecore.Status(cstatus),
		})
	}
	return a, nil
}

// Fetch retrieves the authorization via POST-as-GET (RFC 8555 §7.5).
func (a *Authorization) Fetch(ctx context.Context) error {
	resp, err := a.session.Connect().SignedPostAsGet(ctx, a.identity(), a.signer, a.URL)
	if err != nil {
		return acmeerrors.Lazy("Authorization.Fetch", err)
	}
	if err := a.applyResponse(resp); err != nil {
		return acmeerrors.Lazy("Authorization.Fetch", err)
	}
	return nil
}

// Update is an alias for Fetch, named for symmetry with Order.Update at
// call sites that poll an authorization after triggering a challenge.
func (a *Authorization) Update(ctx context.Context) error {
	return a.Fetch(ctx)
}

func (a *Authorization) applyResponse(resp interface {
	Node() (acmejson.Node, error)
}) error {
	node, err := resp.Node()
	if err != nil {
		return err
	}
	updated, err := authzFromNode(node)
	if err != nil {
		return err
	}
	updated.URL = a.URL
	updated.session = a.session
	updated.accountURL = a.accountURL
	updated.signer = a.signer
	*a = updated
	return nil
}

// Deactivate transitions the authorization to "deactivated" (RFC 8555
// §7.5.2), revoking the client's ability to rely on it for future
// issuance without re-proving control.
func (a *Authorization) Deactivate(ctx context.Context) error {
	payload := []byte(`{"status":"deactivated"}`)
	resp, err := a.session.Connect().SignedPost(ctx, a.identity(), a.signer, a.URL, payload)
	if err != nil {
		return err
	}
	return a.applyResponse(resp)
}

// FindChallenge returns the offered challenge of the given type (e.g.
// "http-01", "dns-01"), or a not-supported error if the authorization
// didn't offer it.
func (a *Authorization) FindChallenge(challengeType string) (ChallengeRef, error) {
	for _, c := range a.Challenges {
		if c.Type == challengeType {
			return c, nil
		}
	}
	return ChallengeRef{}, acmeerrors.NotSupportedError(challengeType)
}
