// Package acmeerrors defines the closed set of error kinds the acmeclient
// core can return, so callers can branch on failure category without
// parsing message text.
package acmeerrors

import (
	"fmt"
	"time"
)

// Kind provides a coarse category for AcmeErrors.
type Kind int

const (
	// Network covers transport I/O failures: DNS, dial, TLS, read/write.
	Network Kind = iota
	// Protocol covers malformed server responses: bad JSON, wrong
	// Content-Type, an unparsable URL, a malformed nonce.
	Protocol
	// ServerProblem wraps an RFC 7807 problem document returned by the CA.
	ServerProblem
	// RateLimited is the ServerProblem subkind carrying a Retry-After hint.
	RateLimited
	// Unauthorized means the server rejected the request's authorization.
	Unauthorized
	// UserActionRequired means the account or order needs human action
	// before the CA will proceed (commonly a new terms-of-service).
	UserActionRequired
	// NotSupported means the CA's directory does not advertise the
	// requested feature.
	NotSupported
	// State means the operation is invalid for the resource's current
	// status (e.g. finalizing an order that isn't READY).
	State
	// RetryAfter is non-fatal: the polled resource is still in flux and
	// the wrapped Instant hints when to poll again.
	RetryAfter
)

func (k Kind) String() string {
	switch k {
	case Network:
		return "network"
	case Protocol:
		return "protocol"
	case ServerProblem:
		return "server-problem"
	case RateLimited:
		return "rate-limited"
	case Unauthorized:
		return "unauthorized"
	case UserActionRequired:
		return "user-action-required"
	case NotSupported:
		return "not-supported"
	case State:
		return "state"
	case RetryAfter:
		return "retry-after"
	default:
		return "unknown"
	}
}

// Problem is the minimal view of an RFC 7807 document an AcmeError carries.
// acmeprob.Problem satisfies this; it's declared here (rather than imported)
// so this package has no dependency on acmeprob.
type Problem interface {
	ProblemType() string
	ProblemDetail() string
}

// AcmeError is the error type returned by every exported acmeclient
// operation that can fail.
type AcmeError struct {
	Kind Kind
	// Detail is a human-readable message; never parsed by callers.
	Detail string
	// Problem is populated whenever the error was built from a server
	// problem document, whatever its Kind (a badNonce problem, for
	// example, is Kind Protocol and still carries its Problem).
	Problem Problem
	// RetryAfter is populated when Kind is RateLimited or RetryAfter.
	RetryAfter time.Time
	// Instance is populated when Kind is UserActionRequired: the
	// instance URL the CA wants the caller to visit.
	Instance string
	// NewTermsOfService is populated when Kind is UserActionRequired and
	// the CA linked an updated terms-of-service URL.
	NewTermsOfService string
	// Feature names the directory capability missing when Kind is
	// NotSupported.
	Feature string
	// wrapped is the underlying cause, if any (e.g. a network error).
	wrapped error
}

func (e *AcmeError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("acme: %s: %s", e.Kind, e.Detail)
	}
	return fmt.Sprintf("acme: %s", e.Kind)
}

// Unwrap lets errors.Is / errors.As reach the underlying cause.
func (e *AcmeError) Unwrap() error {
	return e.wrapped
}

// Is reports whether err is an *AcmeError of the given Kind.
func Is(err error, kind Kind) bool {
	ae, ok := err.(*AcmeError)
	if !ok {
		return false
	}
	return ae.Kind == kind
}

// New is a convenience constructor mirroring the teacher's errors.New.
func New(kind Kind, msg string, args ...interface{}) error {
	return &AcmeError{Kind: kind, Detail: fmt.Sprintf(msg, args...)}
}

// Wrap attaches cause as the Unwrap() target of a new AcmeError.
func Wrap(kind Kind, cause error, msg string, args ...interface{}) error {
	return &AcmeError{Kind: kind, Detail: fmt.Sprintf(msg, args...), wrapped: cause}
}

func NetworkError(cause error, msg string, args ...interface{}) error {
	return Wrap(Network, cause, msg, args...)
}

func ProtocolError(msg string, args ...interface{}) error {
	return New(Protocol, msg, args...)
}

func NotSupportedError(feature string) error {
	return &AcmeError{
		Kind:    NotSupported,
		Detail:  fmt.Sprintf("CA directory does not advertise %q", feature),
		Feature: feature,
	}
}

func StateError(msg string, args ...interface{}) error {
	return New(State, msg, args...)
}

func RetryAfterError(at time.Time) error {
	return &AcmeError{Kind: RetryAfter, Detail: "resource not yet final", RetryAfter: at}
}

func ServerProblemError(kind Kind, prob Problem) error {
	return &AcmeError{Kind: kind, Detail: prob.ProblemDetail(), Problem: prob}
}

// Lazy wraps err (of any Kind) in a lazy-loading error: the Kind and
// Problem of the underlying error are preserved so callers can still
// downcast, but the Detail explains which accessor triggered the fetch.
func Lazy(accessor string, err error) error {
	ae, ok := err.(*AcmeError)
	if !ok {
		return Wrap(Protocol, err, "lazy-loading %s: %v", accessor, err)
	}
	wrapped := *ae
	wrapped.Detail = fmt.Sprintf("lazy-loading %s: %s", accessor, ae.Detail)
	wrapped.wrapped = ae
	return &wrapped
}
