package acmecert

import (
	"context"
	"crypto"
	"crypto/x509"
	"encoding/json"

	jose "gopkg.in/go-jose/go-jose.v2"

	"github.com/cert-ops/acmeclient/acmecore"
	"github.com/cert-ops/acmeclient/acmeerrors"
	"github.com/cert-ops/acmeclient/acmejose"
	"github.com/cert-ops/acmeclient/acmesession"
)

// revokeRequest is the RFC 8555 §7.6 revocation payload.
type revokeRequest struct {
	Certificate string                    `json:"certificate"`
	Reason      *acmecore.RevocationReason `json:"reason,omitempty"`
}

// Revoke revokes this certificate via an account login, signed with the
// account key (spec.md §4.9 mode a).
func (c *Certificate) Revoke(ctx context.Context, login acmesession.Login, reason *acmecore.RevocationReason) error {
	if c.Leaf == nil {
		return acmeerrors.StateError("cannot revoke before the certificate chain is downloaded")
	}
	return revoke(ctx, c.session, acmejose.KeyIdentity{Kid: login.AccountURL}, login.Signer, c.Leaf, reason)
}

// RevokeCertificate revokes an arbitrary X.509 certificate via an account
// login, without requiring a Certificate object to have downloaded it
// first (spec.md §4.9 mode b).
func RevokeCertificate(ctx context.Context, sess *acmesession.Session, login acmesession.Login, cert *x509.Certificate, reason *acmecore.RevocationReason) error {
	return revoke(ctx, sess, acmejose.KeyIdentity{Kid: login.AccountURL}, login.Signer, cert, reason)
}

// RevokeWithDomainKey revokes a certificate authenticated by the domain's
// own key pair rather than an account login, embedding the public key in
// a "jwk" JWS header instead of a "kid" (spec.md §4.9 mode c). RFC 8555
// §7.6 permits this when the signer corresponds to the certificate's
// public key, without requiring the requester to control the account.
func RevokeWithDomainKey(ctx context.Context, sess *acmesession.Session, cert *x509.Certificate, domainKey crypto.Signer, reason *acmecore.RevocationReason) error {
	jwk := &jose.JSONWebKey{Key: domainKey.Public()}
	return revoke(ctx, sess, acmejose.KeyIdentity{JWK: jwk}, domainKey, cert, reason)
}

func revoke(ctx context.Context, sess *acmesession.Session, identity acmejose.KeyIdentity, signer crypto.Signer, cert *x509.Certificate, reason *acmecore.RevocationReason) error {
	url, err := sess.ResourceURL(ctx, "revokeCert")
	if err != nil {
		return err
	}
	payload, err := json.Marshal(revokeRequest{
		Certificate: acmejose.Base64URLEncode(cert.Raw),
		Reason:      reason,
	})
	if err != nil {
		return acmeerrors.ProtocolError("marshaling revocation request: %v", err)
	}
	_, err = sess.Connect().SignedPost(ctx, identity, signer, url, payload)
	return err
}
