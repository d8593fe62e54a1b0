package acmeorder

import (
	"context"
	"crypto"
	"encoding/json"

	"golang.org/x/exp/slices"

	"github.com/cert-ops/acmeclient/acmecore"
	"github.com/cert-ops/acmeclient/acmeerrors"
	"github.com/cert-ops/acmeclient/acmejose"
	"github.com/cert-ops/acmeclient/acmesession"
)

// Builder collects a new-order request's parameters (spec.md §4.7,
// supplemented with the Profile and Replaces attributes spec.md §3 names
// for an Order but doesn't spell out as builder fields).
type Builder struct {
	Identifiers []acmecore.Identifier
	NotBefore   *string
	NotAfter    *string
	Profile     string
	// Replaces carries the ARI CertID of a certificate this order renews
	// (draft-ietf-acme-ari), echoed back by the CA in the resulting Order.
	Replaces string
}

type newOrderRequest struct {
	Identifiers []wireIdentifier `json:"identifiers"`
	NotBefore   string           `json:"notBefore,omitempty"`
	NotAfter    string           `json:"notAfter,omitempty"`
	Profile     string           `json:"profile,omitempty"`
	Replaces    string           `json:"replaces,omitempty"`
}

type wireIdentifier struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Create submits a new-order request, deduplicating identifiers
// client-side before sending (a defensive check supplementing the
// server's own rejection of a duplicate-identifier order).
func (b Builder) Create(ctx context.Context, sess *acmesession.Session, accountURL string, signer crypto.Signer) (*Order, error) {
	identifiers := dedupIdentifiers(b.Identifiers)
	if len(identifiers) == 0 {
		return nil, acmeerrors.ProtocolError("new-order request must name at least one identifier")
	}

	req := newOrderRequest{Profile: b.Profile, Replaces: b.Replaces}
	for _, ident := range identifiers {
		req.Identifiers = append(req.Identifiers, wireIdentifier{Type: string(ident.Type), Value: ident.Value})
	}
	if b.NotBefore != nil {
		req.NotBefore = *b.NotBefore
	}
	if b.NotAfter != nil {
		req.NotAfter = *b.NotAfter
	}

	payload, err := json.Marshal(req)
	if err != nil {
		return nil, acmeerrors.ProtocolError("marshaling new-order payload: %v", err)
	}

	newOrderURL, err := sess.ResourceURL(ctx, "newOrder")
	if err != nil {
		return nil, err
	}

	identity := acmejose.KeyIdentity{Kid: accountURL}
	resp, err := sess.Connect().SignedPost(ctx, identity, signer, newOrderURL, payload)
	if err != nil {
		return nil, err
	}
	node, err := resp.Node()
	if err != nil {
		return nil, err
	}
	order, err := orderFromNode(node)
	if err != nil {
		return nil, err
	}
	order.URL = resp.Location
	order.session = sess
	order.accountURL = accountURL
	order.signer = signer
	return &order, nil
}

func dedupIdentifiers(in []acmecore.Identifier) []acmecore.Identifier {
	out := slices.Clone(in)
	slices.SortFunc(out, func(a, b acmecore.Identifier) bool {
		if a.Type != b.Type {
			return a.Type < b.Type
		}
		return a.Value < b.Value
	})
	return slices.CompactFunc(out, func(a, b acmecore.Identifier) bool {
		return a.Type == b.Type && a.Value == b.Value
	})
}

func marshalFinalize(csrDER []byte) ([]byte, error) {
	payload, err := json.Marshal(struct {
		CSR string `json:"csr"`
	}{CSR: acmejose.Base64URLEncode(csrDER)})
	if err != nil {
		return nil, acmeerrors.ProtocolError("marshaling finalize payload: %v", err)
	}
	return payload, nil
}
