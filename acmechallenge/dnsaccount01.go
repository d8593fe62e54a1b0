package acmechallenge

import (
	"strings"

	"github.com/cert-ops/acmeclient/acmejose"
)

// DNSAccount01 implements the dns-account-01 variant: like dns-01, but the
// TXT record name is scoped to the requesting account by a label derived
// from the account URL, letting multiple accounts share one DNS zone
// without colliding on "_acme-challenge".
type DNSAccount01 struct {
	base
}

// accountLabelBytes is the number of leading SHA-256(accountURL) bytes the
// account label is derived from. 10 bytes base32-encodes to exactly 16
// characters with no padding (10*8/5 = 16).
const accountLabelBytes = 10

// AccountLabel is the lowercase, unpadded base32 label derived from the
// first 10 bytes of SHA-256(accountURL), unique per account on a shared
// DNS zone.
func (d *DNSAccount01) AccountLabel() string {
	digest := acmejose.SHA256([]byte(d.authz.AccountURL()))
	return acmejose.Base32LowerEncode(digest[:accountLabelBytes])
}

// RecordName is the TXT record name the CA will query:
// "_<accountLabel>._acme-challenge.<domain>.".
func (d *DNSAccount01) RecordName(domain string) string {
	domain = strings.TrimPrefix(domain, "*.")
	return "_" + d.AccountLabel() + "._acme-challenge." + domain + "."
}

// RecordValue is the base64url-encoded SHA-256 digest of the key
// authorization, same derivation as dns-01.
func (d *DNSAccount01) RecordValue() string {
	return acmejose.Base64URLEncode(d.keyAuth.Digest())
}
