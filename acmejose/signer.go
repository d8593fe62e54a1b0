package acmejose

import (
	"crypto"
	"encoding/json"

	jose "gopkg.in/go-jose/go-jose.v2"

	"github.com/cert-ops/acmeclient/acmeerrors"
)

// SignedRequest is a flattened-JSON-serialization JWS, RFC 8555 §6.2.
type SignedRequest struct {
	Protected string `json:"protected"`
	Payload   string `json:"payload"`
	Signature string `json:"signature"`
}

// KeyIdentity picks how the JWS protected header identifies the signer: by
// account URL ("kid") once logged in, or by embedding the public key
// ("jwk") for newAccount, revoke-by-domain-key, and key-change requests.
// Exactly one of Kid or JWK must be set.
type KeyIdentity struct {
	Kid string
	JWK *jose.JSONWebKey
}

// Sign produces a flattened JWS over payload with protected headers url,
// nonce, alg, and kid or jwk per identity. An empty nonce is used for
// requests that must not carry one (the inner key-change JWS).
func Sign(signer crypto.Signer, identity KeyIdentity, url, nonce string, payload []byte) (*SignedRequest, error) {
	alg, err := SigningAlgorithm(signer)
	if err != nil {
		return nil, err
	}
	opts := &jose.SignerOptions{}
	opts.WithHeader("url", url)
	if nonce != "" {
		opts.WithHeader("nonce", nonce)
	}
	if identity.Kid != "" {
		opts.WithHeader("kid", identity.Kid)
	} else if identity.JWK != nil {
		opts.EmbedJWK = true
	} else {
		return nil, acmeerrors.ProtocolError("signing request: neither kid nor jwk identity supplied")
	}

	joseSigner, err := jose.NewSigner(jose.SigningKey{Algorithm: alg, Key: signer}, opts)
	if err != nil {
		return nil, acmeerrors.ProtocolError("constructing JWS signer: %v", err)
	}

	jws, err := joseSigner.Sign(payload)
	if err != nil {
		return nil, acmeerrors.ProtocolError("signing JWS: %v", err)
	}

	return flatten(jws)
}

// SignHMAC produces a flattened JWS MAC-signed with an external-account
// symmetric key, used both for the external-account-binding inner JWS
// (spec.md §4.4/§4.6) and for stand-alone HMAC verification use cases.
func SignHMAC(key []byte, identity KeyIdentity, url, nonce string, payload []byte) (*SignedRequest, error) {
	alg, err := HMACAlgorithm(key)
	if err != nil {
		return nil, err
	}
	opts := &jose.SignerOptions{}
	opts.WithHeader("url", url)
	if nonce != "" {
		opts.WithHeader("nonce", nonce)
	}
	if identity.Kid != "" {
		opts.WithHeader("kid", identity.Kid)
	} else if identity.JWK != nil {
		opts.EmbedJWK = true
	}

	joseSigner, err := jose.NewSigner(jose.SigningKey{Algorithm: alg, Key: key}, opts)
	if err != nil {
		return nil, acmeerrors.ProtocolError("constructing HMAC JWS signer: %v", err)
	}
	jws, err := joseSigner.Sign(payload)
	if err != nil {
		return nil, acmeerrors.ProtocolError("signing HMAC JWS: %v", err)
	}
	return flatten(jws)
}

func flatten(jws *jose.JSONWebSignature) (*SignedRequest, error) {
	full := jws.FullSerialize()
	var raw struct {
		Protected string `json:"protected"`
		Payload   string `json:"payload"`
		Signature string `json:"signature"`
	}
	if err := json.Unmarshal([]byte(full), &raw); err != nil {
		return nil, acmeerrors.ProtocolError("flattening JWS serialization: %v", err)
	}
	return &SignedRequest{Protected: raw.Protected, Payload: raw.Payload, Signature: raw.Signature}, nil
}

// KeyChangeInnerPayload is the payload of the inner, new-key-signed JWS in
// the key-change protocol (spec.md §4.4).
type KeyChangeInnerPayload struct {
	Account string          `json:"account"`
	OldKey  jose.JSONWebKey `json:"oldKey"`
}

// SignKeyChange builds the nested outer(inner) JWS pair for RFC 8555 §7.3.5
// key rollover. The inner JWS is signed by the new key with no nonce and
// payload {account, oldKey}; the outer JWS is signed by the old key over
// the inner JWS's flattened-JSON-serialized bytes, both headers pointing url at
// the keyChange endpoint.
func SignKeyChange(oldSigner, newSigner crypto.Signer, accountURL, keyChangeURL, nonce string) (*SignedRequest, error) {
	oldPub := jose.JSONWebKey{Key: oldSigner.Public()}
	innerPayload, err := json.Marshal(KeyChangeInnerPayload{Account: accountURL, OldKey: oldPub})
	if err != nil {
		return nil, acmeerrors.ProtocolError("marshaling key-change payload: %v", err)
	}

	newJWK := &jose.JSONWebKey{Key: newSigner.Public()}
	inner, err := Sign(newSigner, KeyIdentity{JWK: newJWK}, keyChangeURL, "", innerPayload)
	if err != nil {
		return nil, err
	}
	innerBytes, err := json.Marshal(inner)
	if err != nil {
		return nil, acmeerrors.ProtocolError("marshaling inner key-change JWS: %v", err)
	}

	return Sign(oldSigner, KeyIdentity{Kid: accountURL}, keyChangeURL, nonce, innerBytes)
}
