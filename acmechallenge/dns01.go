package acmechallenge

import (
	"strings"

	"github.com/cert-ops/acmeclient/acmejose"
)

// DNS01 implements RFC 8555 §8.4: the client publishes a TXT record whose
// value is the SHA-256 digest of the key authorization.
type DNS01 struct {
	base
}

// RecordNameDNS01 is the TXT record name the CA will query, RFC 8555 §8.4:
// "_acme-challenge." prepended to the identifier's domain.
func RecordNameDNS01(domain string) string {
	domain = strings.TrimPrefix(domain, "*.")
	return "_acme-challenge." + domain + "."
}

// RecordValue is the base64url-encoded SHA-256 digest of the key
// authorization, the TXT record's content.
func (d *DNS01) RecordValue() string {
	return acmejose.Base64URLEncode(d.keyAuth.Digest())
}
