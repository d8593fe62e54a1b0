package acmeaccount

import (
	"context"
	"crypto"
	"encoding/json"
	"net/url"
	"strings"

	jose "gopkg.in/go-jose/go-jose.v2"

	validator "github.com/letsencrypt/validator/v10"

	"github.com/cert-ops/acmeclient/acmeerrors"
	"github.com/cert-ops/acmeclient/acmejose"
	"github.com/cert-ops/acmeclient/acmesession"
)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterValidation("mailto", validateMailto)
	return v
}

// validateMailto implements spec.md §6's contact rule: any absolute URI
// is accepted, and a mailto URI must name a single recipient: it must not
// contain a '?' (query component) or a ',' after the '@' (multiple
// recipients).
func validateMailto(fl validator.FieldLevel) bool {
	s := fl.Field().String()
	rest, ok := strings.CutPrefix(s, "mailto:")
	if !ok {
		u, err := url.Parse(s)
		return err == nil && u.Scheme != ""
	}
	if strings.Contains(rest, "?") {
		return false
	}
	at := strings.IndexByte(rest, '@')
	if at < 0 {
		return false
	}
	return !strings.Contains(rest[at:], ",")
}

// Builder collects and validates the parameters of a new-account request
// (spec.md §4.6) before any network call.
type Builder struct {
	Contacts              []string `validate:"omitempty,dive,mailto"`
	AgreeToTermsOfService bool
	OnlyExisting          bool
	ExternalAccountBinding *EAB `validate:"omitempty"`
	Signer                crypto.Signer `validate:"required"`
}

// EAB carries the MAC key and key identifier a CA issued out-of-band for
// external account binding (RFC 8555 §7.3.4).
type EAB struct {
	KeyID     string
	MACKey    []byte
}

// Create submits the new-account request and returns the resulting
// Account, bound to sess and authenticated by builder.Signer.
func (b Builder) Create(ctx context.Context, sess *acmesession.Session) (*Account, error) {
	if err := validate.Struct(b); err != nil {
		return nil, acmeerrors.Wrap(acmeerrors.Protocol, err, "validating account builder")
	}

	newAccountURL, err := sess.ResourceURL(ctx, "newAccount")
	if err != nil {
		return nil, err
	}

	payload := map[string]interface{}{}
	if len(b.Contacts) > 0 {
		payload["contact"] = b.Contacts
	}
	if b.AgreeToTermsOfService {
		payload["termsOfServiceAgreed"] = true
	}
	if b.OnlyExisting {
		payload["onlyReturnExisting"] = true
	}
	if b.ExternalAccountBinding != nil {
		eabJWS, err := b.buildEAB(newAccountURL)
		if err != nil {
			return nil, err
		}
		payload["externalAccountBinding"] = eabJWS
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, acmeerrors.ProtocolError("marshaling new-account payload: %v", err)
	}

	identity := acmejose.KeyIdentity{JWK: &jose.JSONWebKey{Key: b.Signer.Public()}}
	resp, err := sess.Connect().SignedPost(ctx, identity, b.Signer, newAccountURL, body)
	if err != nil {
		return nil, err
	}
	node, err := resp.Node()
	if err != nil {
		return nil, err
	}
	acct, err := fromNode(node)
	if err != nil {
		return nil, err
	}
	acct.URL = resp.Location
	acct.session = sess
	acct.signer = b.Signer
	return &acct, nil
}

// buildEAB constructs the inner HMAC-signed JWS RFC 8555 §7.3.4 embeds in
// the new-account payload: protected header {alg, kid: eab.KeyID, url},
// payload is the account's public JWK, signed with the CA-issued MAC key.
func (b Builder) buildEAB(newAccountURL string) (*acmejose.SignedRequest, error) {
	accountJWK := jose.JSONWebKey{Key: b.Signer.Public()}
	payload, err := json.Marshal(accountJWK)
	if err != nil {
		return nil, acmeerrors.ProtocolError("marshaling EAB payload: %v", err)
	}
	identity := acmejose.KeyIdentity{Kid: b.ExternalAccountBinding.KeyID}
	return acmejose.SignHMAC(b.ExternalAccountBinding.MACKey, identity, newAccountURL, "", payload)
}
