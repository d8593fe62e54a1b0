package acmechallenge

// HTTP01 implements RFC 8555 §8.3: the client serves the key authorization
// as the response body of a well-known HTTP path.
type HTTP01 struct {
	base
}

// WellKnownPath is the fixed HTTP resource path the CA will request,
// RFC 8555 §8.3.
func (h *HTTP01) WellKnownPath() string {
	return "/.well-known/acme-challenge/" + h.ref.Token
}

// ResponseBody is the exact bytes to serve at WellKnownPath.
func (h *HTTP01) ResponseBody() string {
	return h.keyAuth.String()
}
