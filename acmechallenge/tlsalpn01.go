package acmechallenge

import (
	"crypto/x509/pkix"
	"encoding/asn1"

	"github.com/cert-ops/acmeclient/acmeerrors"
	"github.com/cert-ops/acmeclient/acmejose"
)

// TLSALPN01 implements RFC 8737: the client presents a self-signed
// certificate during TLS negotiation of the "acme-tls/1" ALPN protocol,
// carrying a critical extension whose value is the SHA-256 digest of the
// key authorization.
type TLSALPN01 struct {
	base
}

// idPeAcmeIdentifier is the id-pe-acmeIdentifier OID RFC 8737 §3 assigns
// to the extension.
var idPeAcmeIdentifier = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 1, 30, 1}

// ALPNProtocol is the fixed ALPN protocol name RFC 8737 requires the
// client to negotiate during validation.
const ALPNProtocol = "acme-tls/1"

// CertificateExtension builds the critical X.509 extension the client's
// self-signed validation certificate must carry.
func (t *TLSALPN01) CertificateExtension() (pkix.Extension, error) {
	digest := acmejose.SHA256([]byte(t.keyAuth.String()))
	value, err := asn1.Marshal(digest)
	if err != nil {
		return pkix.Extension{}, acmeerrors.ProtocolError("marshaling tls-alpn-01 extension value: %v", err)
	}
	return pkix.Extension{
		Id:       idPeAcmeIdentifier,
		Critical: true,
		Value:    value,
	}, nil
}
