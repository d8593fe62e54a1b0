// Package acmeprob implements the RFC 7807 problem document and the
// RFC 8555 §6.7 error-type URN-to-Kind mapping table (spec.md §4.10).
// The Problem type's shape is grounded on the teacher's core.ProblemDetails,
// generalized from Boulder's pre-RFC-7807 urn:acme:error:* namespace (which
// this snapshot of the teacher still carries, see core/objects.go) to the
// current urn:ietf:params:acme:error:* namespace this spec targets.
package acmeprob

import (
	"fmt"
	"time"

	"github.com/cert-ops/acmeclient/acmecore"
	"github.com/cert-ops/acmeclient/acmeerrors"
	"github.com/cert-ops/acmeclient/acmejson"
)

// Problem is an RFC 7807 problem document (spec.md §3).
type Problem struct {
	Type        string
	Detail      string
	Instance    string
	Status      int
	Identifier  *acmecore.Identifier
	Subproblems []Problem
}

func (p Problem) Error() string {
	return fmt.Sprintf("%s: %s", p.Type, p.Detail)
}

// ProblemType satisfies acmeerrors.Problem.
func (p Problem) ProblemType() string { return p.Type }

// ProblemDetail satisfies acmeerrors.Problem.
func (p Problem) ProblemDetail() string { return p.Detail }

// FromNode builds a Problem from a parsed JSON document via acmejson.
func FromNode(n acmejson.Node) (Problem, error) {
	raw, err := n.AsProblem()
	if err != nil {
		return Problem{}, err
	}
	return fromRaw(raw), nil
}

func fromRaw(raw acmejson.RawProblem) Problem {
	p := Problem{
		Type:     raw.Type,
		Detail:   raw.Detail,
		Instance: raw.Instance,
		Status:   int(raw.Status),
	}
	if raw.Identifier != nil {
		p.Identifier = &acmecore.Identifier{
			Type:  acmecore.IdentifierType(raw.Identifier.Type),
			Value: raw.Identifier.Value,
		}
	}
	for _, sp := range raw.Subproblems {
		p.Subproblems = append(p.Subproblems, fromRaw(sp))
	}
	return p
}

// urnPrefix is the RFC 8555 §6.7 error-type namespace.
const urnPrefix = "urn:ietf:params:acme:error:"

// Kind maps the problem's type URN suffix to the closed acmeerrors.Kind
// enum spec.md §4.10 names.
func (p Problem) Kind() acmeerrors.Kind {
	suffix := p.Type
	if len(suffix) > len(urnPrefix) && suffix[:len(urnPrefix)] == urnPrefix {
		suffix = suffix[len(urnPrefix):]
	}
	switch suffix {
	case "accountDoesNotExist", "unauthorized":
		return acmeerrors.Unauthorized
	case "badNonce":
		return acmeerrors.Protocol
	case "rateLimited":
		return acmeerrors.RateLimited
	case "userActionRequired":
		return acmeerrors.UserActionRequired
	case "externalAccountRequired":
		return acmeerrors.NotSupported
	default:
		return acmeerrors.ServerProblem
	}
}

// KindNames lists the closed problem-type-suffix set spec.md §4.10 names,
// kept for documentation; Kind() above is the
// actual dispatch logic and handles unknown suffixes as ServerProblem.
var KindNames = []string{
	"badCSR",
	"badNonce",
	"badPublicKey",
	"badRevocationReason",
	"badSignatureAlgorithm",
	"caa",
	"compound",
	"connection",
	"dns",
	"externalAccountRequired",
	"incorrectResponse",
	"invalidContact",
	"malformed",
	"orderNotReady",
	"rateLimited",
	"rejectedIdentifier",
	"serverInternal",
	"tls",
	"unauthorized",
	"unsupportedContact",
	"unsupportedIdentifier",
	"userActionRequired",
}

// AsAcmeError converts a Problem into an *acmeerrors.AcmeError, populating
// RetryAfter/Instance/NewTermsOfService where the Kind calls for them. The
// caller supplies retryAfter and newTOS because both come from HTTP
// headers (Retry-After, Link: rel="terms-of-service"), not the JSON body.
func (p Problem) AsAcmeError(retryAfter time.Time, newTOS string) error {
	kind := p.Kind()
	ae := &acmeerrors.AcmeError{Kind: kind, Detail: p.Detail, Problem: p}
	switch kind {
	case acmeerrors.UserActionRequired:
		ae.Instance = p.Instance
		ae.NewTermsOfService = newTOS
	case acmeerrors.RateLimited:
		ae.RetryAfter = retryAfter
	}
	return ae
}
