package acmecore

import (
	"net"
	"strings"

	"golang.org/x/net/idna"
	"golang.org/x/net/publicsuffix"

	"github.com/cert-ops/acmeclient/acmeerrors"
)

// IdentifierType is the type discriminator of an ACME identifier object.
type IdentifierType string

const (
	IdentifierDNS IdentifierType = "dns"
	IdentifierIP  IdentifierType = "ip"
)

// Identifier is a target of domain validation: a DNS name or IP address,
// optionally wildcard or flagged for subdomain authorization (spec.md §3).
type Identifier struct {
	Type                 IdentifierType
	Value                string
	SubdomainAuthAllowed bool
}

// IsWildcard reports whether a DNS identifier's value begins with "*.".
func (i Identifier) IsWildcard() bool {
	return i.Type == IdentifierDNS && strings.HasPrefix(i.Value, "*.")
}

// NormalizeDNS lowercases, trims, and IDN-encodes a DNS identifier value to
// ASCII per spec.md §6. The leading "*." of a wildcard name is preserved
// verbatim and not run through IDN conversion.
func NormalizeDNS(value string) (string, error) {
	value = strings.TrimSpace(value)
	wildcard := strings.HasPrefix(value, "*.")
	rest := value
	if wildcard {
		rest = value[2:]
	}
	ascii, err := idna.Lookup.ToASCII(strings.ToLower(rest))
	if err != nil {
		return "", acmeerrors.ProtocolError("identifier %q is not a valid DNS name: %v", value, err)
	}
	if wildcard {
		return "*." + ascii, nil
	}
	return ascii, nil
}

// ValidatePublicSuffix rejects DNS identifiers whose value is itself a
// public suffix (e.g. "co.uk"), which no CA will issue a certificate for.
func ValidatePublicSuffix(asciiValue string) error {
	name := asciiValue
	if strings.HasPrefix(name, "*.") {
		name = name[2:]
	}
	suffix, icann := publicsuffix.PublicSuffix(name)
	if icann && suffix == name {
		return acmeerrors.ProtocolError("identifier %q is a public suffix", asciiValue)
	}
	return nil
}

// NormalizeIP parses and re-renders an IP identifier's canonical textual
// form per spec.md §6.
func NormalizeIP(value string) (string, error) {
	ip := net.ParseIP(strings.TrimSpace(value))
	if ip == nil {
		return "", acmeerrors.ProtocolError("identifier %q is not a valid IP address", value)
	}
	return ip.String(), nil
}
