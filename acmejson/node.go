// Package acmejson implements a path-qualified JSON navigator: every
// extraction either returns a typed value or fails with an error naming
// the dotted-bracket path from the document root and the expected type.
// No library in the retrieval pack offers this shape of API (checked:
// none of the example repos vendor gjson, jsonparser, or similar), so it
// is built directly on encoding/json.
package acmejson

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"net/url"
	"time"

	"github.com/cert-ops/acmeclient/acmeerrors"
)

// Node is an immutable view of one JSON value plus the path that reached
// it from the document root "$", e.g. "$.order.authorizations[2].status".
type Node struct {
	path    string
	value   interface{}
	present bool
}

// Parse decodes raw JSON into a root Node.
func Parse(raw []byte) (Node, error) {
	var v interface{}
	if len(raw) == 0 {
		return Node{path: "$", present: false}, nil
	}
	if err := json.Unmarshal(raw, &v); err != nil {
		return Node{}, acmeerrors.ProtocolError("parsing JSON: %v", err)
	}
	return Node{path: "$", value: v, present: true}, nil
}

// FromValue wraps an already-decoded value as a root Node, used by callers
// that parsed a larger envelope themselves (e.g. http.Response bodies).
func FromValue(v interface{}) Node {
	return Node{path: "$", value: v, present: true}
}

func (n Node) typeErr(want string) error {
	return acmeerrors.ProtocolError("%s: expected %s, got %s", n.path, want, describe(n.value))
}

func describe(v interface{}) string {
	if v == nil {
		return "null/absent"
	}
	return fmt.Sprintf("%T", v)
}

// Path returns the dotted-bracket path of this node from the root.
func (n Node) Path() string { return n.path }

// Present reports whether the field existed in the source document (as
// opposed to being absent, which is distinct from a JSON null).
func (n Node) Present() bool { return n.present }

// Field navigates to a child field of an object node.
func (n Node) Field(name string) Node {
	childPath := n.path + "." + name
	obj, ok := n.value.(map[string]interface{})
	if !ok {
		return Node{path: childPath, present: false}
	}
	v, ok := obj[name]
	return Node{path: childPath, value: v, present: ok}
}

// Index navigates to an element of an array node.
func (n Node) Index(i int) Node {
	childPath := fmt.Sprintf("%s[%d]", n.path, i)
	arr, ok := n.value.([]interface{})
	if !ok || i < 0 || i >= len(arr) {
		return Node{path: childPath, present: false}
	}
	return Node{path: childPath, value: arr[i], present: true}
}

// Optional returns (node, true) if the field is present, or (zero, false)
// if absent, letting callers distinguish "absent" from "present but null".
func (n Node) Optional() (Node, bool) {
	if !n.present {
		return Node{}, false
	}
	return n, true
}

// OnFeature converts a missing-but-required field into a not-supported
// error tagged with the given feature name, for directory endpoints the
// CA may not advertise.
func (n Node) OnFeature(name string) error {
	if !n.present {
		return acmeerrors.NotSupportedError(name)
	}
	return nil
}

func (n Node) require(what string) error {
	if !n.present || n.value == nil {
		return acmeerrors.ProtocolError("%s: missing required %s", n.path, what)
	}
	return nil
}

// AsString extracts a JSON string.
func (n Node) AsString() (string, error) {
	if err := n.require("string"); err != nil {
		return "", err
	}
	s, ok := n.value.(string)
	if !ok {
		return "", n.typeErr("string")
	}
	return s, nil
}

// AsInt extracts a JSON number as an int64.
func (n Node) AsInt() (int64, error) {
	if err := n.require("number"); err != nil {
		return 0, err
	}
	f, ok := n.value.(float64)
	if !ok {
		return 0, n.typeErr("number")
	}
	return int64(f), nil
}

// AsURL extracts a JSON string and parses it as an absolute URL.
func (n Node) AsURL() (*url.URL, error) {
	s, err := n.AsString()
	if err != nil {
		return nil, err
	}
	u, err := url.Parse(s)
	if err != nil || !u.IsAbs() {
		return nil, acmeerrors.ProtocolError("%s: %q is not an absolute URL", n.path, s)
	}
	return u, nil
}

// AsDuration extracts a JSON number of seconds as a time.Duration.
func (n Node) AsDuration() (time.Duration, error) {
	secs, err := n.AsInt()
	if err != nil {
		return 0, err
	}
	return time.Duration(secs) * time.Second, nil
}

// instantLayouts covers RFC 3339 with Z or numeric offsets, with or
// without sub-second precision, with or without a colon in the offset.
var instantLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05Z0700",
	"2006-01-02T15:04:05.999999999Z0700",
}

// AsInstant extracts an RFC 3339 timestamp. A timestamp missing its
// timezone component is rejected (spec.md §8's round-trip law).
func (n Node) AsInstant() (time.Time, error) {
	s, err := n.AsString()
	if err != nil {
		return time.Time{}, err
	}
	if !hasTimezone(s) {
		return time.Time{}, acmeerrors.ProtocolError("%s: timestamp %q missing timezone", n.path, s)
	}
	var lastErr error
	for _, layout := range instantLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, acmeerrors.ProtocolError("%s: invalid RFC 3339 timestamp %q: %v", n.path, s, lastErr)
}

// FormatInstant renders t in the canonical RFC 3339 form AsInstant reads
// back, satisfying spec.md §8's round-trip law: FormatInstant(parsed) is
// stable under repeated parse/format cycles.
func FormatInstant(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func hasTimezone(s string) bool {
	// Skip the date+time portion (at least "YYYY-MM-DDTHH:MM:SS" = 19
	// bytes) before looking for Z or a +hh:mm/-hh:mm offset, so we don't
	// mistake the '-' in the date for a negative offset.
	if len(s) < 20 {
		return len(s) >= 1 && s[len(s)-1] == 'Z'
	}
	tail := s[19:]
	for _, c := range tail {
		if c == 'Z' || c == '+' || c == '-' {
			return true
		}
	}
	return false
}

// AsIdentifier extracts an ACME identifier object {type, value}.
func (n Node) AsIdentifier() (Identifier, error) {
	if err := n.require("identifier"); err != nil {
		return Identifier{}, err
	}
	typ, err := n.Field("type").AsString()
	if err != nil {
		return Identifier{}, err
	}
	val, err := n.Field("value").AsString()
	if err != nil {
		return Identifier{}, err
	}
	ident := Identifier{Type: typ, Value: val}
	if sub, ok := n.Field("subdomainAuthAllowed").Optional(); ok {
		b, err := sub.AsBool()
		if err != nil {
			return Identifier{}, err
		}
		ident.SubdomainAuthAllowed = b
	}
	return ident, nil
}

// Identifier is the wire shape of an RFC 8555 identifier object.
type Identifier struct {
	Type                 string
	Value                string
	SubdomainAuthAllowed bool
}

// AsBool extracts a JSON boolean.
func (n Node) AsBool() (bool, error) {
	if err := n.require("boolean"); err != nil {
		return false, err
	}
	b, ok := n.value.(bool)
	if !ok {
		return false, n.typeErr("boolean")
	}
	return b, nil
}

// AsStatus extracts a JSON string as a bare status value; the caller maps
// it into its resource-specific Status type.
func (n Node) AsStatus() (string, error) {
	return n.AsString()
}

// AsBase64Bytes extracts a JSON string and decodes it as unpadded
// base64url.
func (n Node) AsBase64Bytes() ([]byte, error) {
	s, err := n.AsString()
	if err != nil {
		return nil, err
	}
	b, err := decodeBase64URL(s)
	if err != nil {
		return nil, acmeerrors.ProtocolError("%s: %v", n.path, err)
	}
	return b, nil
}

// AsArray extracts a JSON array as a slice of child Nodes.
func (n Node) AsArray() ([]Node, error) {
	if err := n.require("array"); err != nil {
		return nil, err
	}
	arr, ok := n.value.([]interface{})
	if !ok {
		return nil, n.typeErr("array")
	}
	out := make([]Node, len(arr))
	for i := range arr {
		out[i] = n.Index(i)
	}
	return out, nil
}

// AsObject extracts a JSON object as a map of field name to child Node.
func (n Node) AsObject() (map[string]Node, error) {
	if err := n.require("object"); err != nil {
		return nil, err
	}
	obj, ok := n.value.(map[string]interface{})
	if !ok {
		return nil, n.typeErr("object")
	}
	out := make(map[string]Node, len(obj))
	for k := range obj {
		out[k] = n.Field(k)
	}
	return out, nil
}

// AsProblem extracts an RFC 7807 problem document's raw fields; acmeprob
// builds its typed Problem from this to avoid an import cycle (acmeprob
// depends on acmejson, not the reverse).
type RawProblem struct {
	Type        string
	Detail      string
	Instance    string
	Status      int64
	Identifier  *Identifier
	Subproblems []RawProblem
}

func (n Node) AsProblem() (RawProblem, error) {
	if err := n.require("problem document"); err != nil {
		return RawProblem{}, err
	}
	var rp RawProblem
	if v, ok := n.Field("type").Optional(); ok {
		s, err := v.AsString()
		if err != nil {
			return RawProblem{}, err
		}
		rp.Type = s
	}
	if v, ok := n.Field("detail").Optional(); ok {
		s, err := v.AsString()
		if err != nil {
			return RawProblem{}, err
		}
		rp.Detail = s
	}
	if v, ok := n.Field("instance").Optional(); ok {
		s, err := v.AsString()
		if err != nil {
			return RawProblem{}, err
		}
		rp.Instance = s
	}
	if v, ok := n.Field("status").Optional(); ok {
		i, err := v.AsInt()
		if err != nil {
			return RawProblem{}, err
		}
		rp.Status = i
	}
	if v, ok := n.Field("identifier").Optional(); ok {
		ident, err := v.AsIdentifier()
		if err != nil {
			return RawProblem{}, err
		}
		rp.Identifier = &ident
	}
	if v, ok := n.Field("subproblems").Optional(); ok {
		children, err := v.AsArray()
		if err != nil {
			return RawProblem{}, err
		}
		for _, c := range children {
			sp, err := c.AsProblem()
			if err != nil {
				return RawProblem{}, err
			}
			rp.Subproblems = append(rp.Subproblems, sp)
		}
	}
	return rp, nil
}

func decodeBase64URL(s string) ([]byte, error) {
	return base64.RawURLEncoding.DecodeString(s)
}
