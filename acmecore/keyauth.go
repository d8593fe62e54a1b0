package acmecore

import (
	"crypto/subtle"
	"encoding/json"
	"regexp"
	"strings"

	jose "gopkg.in/go-jose/go-jose.v2"

	"github.com/cert-ops/acmeclient/acmeerrors"
	"github.com/cert-ops/acmeclient/acmejose"
)

// tokenSyntax matches the base64url character set a server-issued
// challenge token must conform to (spec.md §4.8).
var tokenSyntax = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// LooksLikeAToken reports whether s is composed only of base64url
// characters, mirroring the teacher's core.LooksLikeAToken check.
func LooksLikeAToken(s string) bool {
	return s != "" && tokenSyntax.MatchString(s)
}

// KeyAuthorization binds a challenge token to the account key that must
// satisfy it: token + "." + base64url(SHA-256(JWK(account-public-key))).
// This is a near-direct port of the teacher's core.KeyAuthorization type.
type KeyAuthorization struct {
	Token      string
	Thumbprint string
}

// NewKeyAuthorization computes the thumbprint of key and assembles the
// key authorization for token.
func NewKeyAuthorization(token string, key *jose.JSONWebKey) (KeyAuthorization, error) {
	if key == nil {
		return KeyAuthorization{}, acmeerrors.ProtocolError("cannot authorize a nil key")
	}
	if !LooksLikeAToken(token) {
		return KeyAuthorization{}, acmeerrors.ProtocolError("malformed challenge token %q", token)
	}
	thumbprint, err := acmejose.JWKThumbprint(key)
	if err != nil {
		return KeyAuthorization{}, err
	}
	return KeyAuthorization{Token: token, Thumbprint: thumbprint}, nil
}

// NewKeyAuthorizationFromString parses "token.thumbprint" into its parts.
func NewKeyAuthorizationFromString(input string) (KeyAuthorization, error) {
	parts := strings.Split(input, ".")
	if len(parts) != 2 {
		return KeyAuthorization{}, acmeerrors.ProtocolError("invalid key authorization: %d parts", len(parts))
	}
	if !LooksLikeAToken(parts[0]) {
		return KeyAuthorization{}, acmeerrors.ProtocolError("invalid key authorization: malformed token")
	}
	if !LooksLikeAToken(parts[1]) {
		return KeyAuthorization{}, acmeerrors.ProtocolError("invalid key authorization: malformed thumbprint")
	}
	return KeyAuthorization{Token: parts[0], Thumbprint: parts[1]}, nil
}

// String produces "token.thumbprint", the wire and on-disk representation
// of a key authorization.
func (ka KeyAuthorization) String() string {
	return ka.Token + "." + ka.Thumbprint
}

// Match reports whether ka was derived from token and key, using a
// constant-time comparison as the teacher's implementation does.
func (ka KeyAuthorization) Match(token string, key *jose.JSONWebKey) bool {
	if key == nil {
		return false
	}
	thumbprint, err := acmejose.JWKThumbprint(key)
	if err != nil {
		return false
	}
	tokensEqual := subtle.ConstantTimeCompare([]byte(token), []byte(ka.Token))
	thumbprintsEqual := subtle.ConstantTimeCompare([]byte(thumbprint), []byte(ka.Thumbprint))
	return tokensEqual == 1 && thumbprintsEqual == 1
}

// Digest returns the raw SHA-256 bytes of the key authorization, the
// artifact dns-01, dns-account-01, and tls-alpn-01 all derive from (spec.md
// §4.8); the DNS variants base64url-encode it for their TXT records.
func (ka KeyAuthorization) Digest() []byte {
	return acmejose.SHA256([]byte(ka.String()))
}

func (ka KeyAuthorization) MarshalJSON() ([]byte, error) {
	return json.Marshal(ka.String())
}

func (ka *KeyAuthorization) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := NewKeyAuthorizationFromString(s)
	if err != nil {
		return err
	}
	*ka = parsed
	return nil
}
