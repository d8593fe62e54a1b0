// Package acmecert implements the Certificate of spec.md §4.9: chain
// download, alternate-chain resolution, issuer search, renewal-info URL
// derivation, and the three revocation modes.
package acmecert

import (
	"context"
	"crypto"
	"crypto/x509"
	"encoding/pem"

	"github.com/cert-ops/acmeclient/acmeerrors"
	"github.com/cert-ops/acmeclient/acmejose"
	"github.com/cert-ops/acmeclient/acmesession"
)

const pemCertificateChain = "application/pem-certificate-chain"

// Certificate is the RFC 8555 §7.1.3/§7.4.2 certificate resource: an
// end-entity certificate, its ordered issuer chain, and any alternate
// chains the CA offers via Link: rel="alternate".
type Certificate struct {
	URL           string
	Leaf          *x509.Certificate
	Chain         []*x509.Certificate
	RawPEM        []byte
	AlternateURLs []string

	session  *acmesession.Session
	identity acmejose.KeyIdentity
	signer   crypto.Signer
}

// New binds a Certificate to the given location URL, ready for Download.
// accountURL/signer authenticate the POST-as-GET fetch (RFC 8555 §7.4.2
// requires the download itself to be signed, not just order finalization).
func New(sess *acmesession.Session, accountURL string, signer crypto.Signer, url string) *Certificate {
	return &Certificate{
		URL:      url,
		session:  sess,
		identity: acmejose.KeyIdentity{Kid: accountURL},
		signer:   signer,
	}
}

// Download performs the POST-as-GET fetch (spec.md §4.9) with Accept:
// application/pem-certificate-chain, splits the PEM-concatenated response
// into leaf and chain, and records any alternate-chain Link URLs.
func (c *Certificate) Download(ctx context.Context) error {
	resp, err := c.session.Connect().SignedPostAsGetAccept(ctx, c.identity, c.signer, c.URL, pemCertificateChain)
	if err != nil {
		return err
	}
	leaf, chain, err := parsePEMChain(resp.Body)
	if err != nil {
		return err
	}
	c.RawPEM = resp.Body
	c.Leaf = leaf
	c.Chain = chain
	c.AlternateURLs = resp.Links["alternate"]
	return nil
}

func parsePEMChain(data []byte) (*x509.Certificate, []*x509.Certificate, error) {
	var certs []*x509.Certificate
	rest := data
	for {
		var block *pem.Block
		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}
		if block.Type != "CERTIFICATE" {
			continue
		}
		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, nil, acmeerrors.ProtocolError("parsing certificate chain: %v", err)
		}
		certs = append(certs, cert)
	}
	if len(certs) == 0 {
		return nil, nil, acmeerrors.ProtocolError("certificate chain response contained no PEM certificates")
	}
	return certs[0], certs[1:], nil
}

// FindCertificate returns the first certificate in {c} ∪ c's alternates
// whose chain contains a certificate with the given issuer common name,
// downloading alternates lazily as needed (spec.md §4.9).
func (c *Certificate) FindCertificate(ctx context.Context, issuerCN string) (*Certificate, error) {
	if c.matchesIssuerCN(issuerCN) {
		return c, nil
	}
	for _, altURL := range c.AlternateURLs {
		alt := New(c.session, c.identity.Kid, c.signer, altURL)
		if err := alt.Download(ctx); err != nil {
			return nil, err
		}
		if alt.matchesIssuerCN(issuerCN) {
			return alt, nil
		}
	}
	return nil, acmeerrors.New(acmeerrors.Protocol, "no chain (of %d alternates) has an issuer with common name %q", len(c.AlternateURLs), issuerCN)
}

func (c *Certificate) matchesIssuerCN(issuerCN string) bool {
	for _, issuer := range c.Chain {
		if issuer.Subject.CommonName == issuerCN {
			return true
		}
	}
	return false
}
