// Package acmejose implements the signed-request primitives RFC 8555
// requires: SHA-256 and HMAC digests, base64url/base32 encodings, JWK
// thumbprints, and compact/flattened JWS signing. It is a thin layer over
// gopkg.in/go-jose/go-jose.v2, the JOSE library the teacher (Boulder)
// vendors for the server side of the same protocol.
package acmejose

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/hmac"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/sha512"
	"encoding/base32"
	"encoding/base64"
	"hash"

	jose "gopkg.in/go-jose/go-jose.v2"

	"github.com/cert-ops/acmeclient/acmeerrors"
)

// SHA256 returns the SHA-256 digest of data.
func SHA256(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

// Base64URLEncode encodes data as unpadded base64url, per RFC 4648 §5.
func Base64URLEncode(data []byte) string {
	return base64.RawURLEncoding.EncodeToString(data)
}

// Base64URLDecode decodes unpadded base64url text.
func Base64URLDecode(s string) ([]byte, error) {
	b, err := base64.RawURLEncoding.DecodeString(s)
	if err != nil {
		return nil, acmeerrors.ProtocolError("invalid base64url: %v", err)
	}
	return b, nil
}

// base32Lower is RFC 4648 base32 with the standard alphabet lowercased and
// padding stripped, used for the dns-account-01 RR-name prefix.
var base32Lower = base32.StdEncoding.WithPadding(base32.NoPadding)

// Base32LowerEncode encodes data as lowercase, unpadded base32.
func Base32LowerEncode(data []byte) string {
	return toLower(base32Lower.EncodeToString(data))
}

func toLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if c >= 'A' && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}

// JWKThumbprint returns the base64url-encoded SHA-256 JWK thumbprint
// (RFC 7638) of key, delegating canonicalization to go-jose.
func JWKThumbprint(key *jose.JSONWebKey) (string, error) {
	sum, err := key.Thumbprint(crypto.SHA256)
	if err != nil {
		return "", acmeerrors.ProtocolError("computing JWK thumbprint: %v", err)
	}
	return Base64URLEncode(sum), nil
}

// SigningAlgorithm derives the JWS algorithm from a key's type, per
// spec.md §4.1: RSA -> RS256, EC P-256 -> ES256, P-384 -> ES384,
// P-521 -> ES512.
func SigningAlgorithm(signer crypto.Signer) (jose.SignatureAlgorithm, error) {
	switch pub := signer.Public().(type) {
	case *rsa.PublicKey:
		return jose.RS256, nil
	case *ecdsa.PublicKey:
		switch pub.Curve.Params().Name {
		case "P-256":
			return jose.ES256, nil
		case "P-384":
			return jose.ES384, nil
		case "P-521":
			return jose.ES512, nil
		default:
			return "", acmeerrors.ProtocolError("unsupported EC curve %s", pub.Curve.Params().Name)
		}
	default:
		return "", acmeerrors.ProtocolError("unsupported key type %T", pub)
	}
}

// HMACAlgorithm selects the MAC algorithm by key length in bytes times 8,
// per spec.md §4.1.
func HMACAlgorithm(key []byte) (jose.SignatureAlgorithm, error) {
	switch len(key) * 8 {
	case 256:
		return jose.HS256, nil
	case 384:
		return jose.HS384, nil
	case 512:
		return jose.HS512, nil
	default:
		return "", acmeerrors.ProtocolError("HMAC key length %d bits has no matching algorithm", len(key)*8)
	}
}

func hmacHash(alg jose.SignatureAlgorithm) func() hash.Hash {
	switch alg {
	case jose.HS256:
		return sha256.New
	case jose.HS384:
		return sha512.New384
	case jose.HS512:
		return sha512.New
	default:
		return nil
	}
}

// SameKey reports whether a and b share the same public key, used by
// ChangeKey's precondition check against a same-key rollover.
func SameKey(a, b crypto.Signer) bool {
	ap, aok := a.Public().(interface{ Equal(crypto.PublicKey) bool })
	if !aok {
		return false
	}
	return ap.Equal(b.Public())
}

// HMACSign computes a raw HMAC digest of data under the given key and
// algorithm, used by implementations that need the MAC independent of a
// full JWS (e.g. verifying an external-account-binding response offline).
func HMACSign(alg jose.SignatureAlgorithm, key, data []byte) ([]byte, error) {
	newHash := hmacHash(alg)
	if newHash == nil {
		return nil, acmeerrors.ProtocolError("unsupported HMAC algorithm %s", alg)
	}
	mac := hmac.New(newHash, key)
	mac.Write(data)
	return mac.Sum(nil), nil
}
