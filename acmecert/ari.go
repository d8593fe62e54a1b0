package acmecert

import (
	"context"
	"strings"

	"github.com/cert-ops/acmeclient/acmeerrors"
	"github.com/cert-ops/acmeclient/acmejose"
)

// CertID derives the ACME Renewal Information unique identifier (current
// IETF draft form, not the legacy OCSP-style ASN.1 CertID sequence):
// base64url(SHA-256(issuer SubjectPublicKeyInfo)) + "." +
// base64url(serial-number-bytes). Requires the chain to have been
// downloaded first.
func (c *Certificate) CertID() (string, error) {
	if c.Leaf == nil || len(c.Chain) == 0 {
		return "", acmeerrors.StateError("cannot derive a renewal-info CertID before the certificate chain is downloaded")
	}
	issuer := c.Chain[0]
	digest := acmejose.SHA256(issuer.RawSubjectPublicKeyInfo)
	serial := c.Leaf.SerialNumber.Bytes()
	return acmejose.Base64URLEncode(digest) + "." + acmejose.Base64URLEncode(serial), nil
}

// RenewalInfoURL resolves this certificate's renewal-info resource URL,
// or a NotSupported error if the CA's directory does not advertise
// renewalInfo.
func (c *Certificate) RenewalInfoURL(ctx context.Context) (string, error) {
	id, err := c.CertID()
	if err != nil {
		return "", err
	}
	base, err := c.session.ResourceURL(ctx, "renewalInfo")
	if err != nil {
		return "", err
	}
	return strings.TrimSuffix(base, "/") + "/" + id, nil
}
