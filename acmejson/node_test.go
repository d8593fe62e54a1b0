package acmejson

import (
	"testing"
	"time"

	"github.com/cert-ops/acmeclient/acmeerrors"
	"github.com/cert-ops/acmeclient/internal/test"
)

func TestPathErrorNamesFailingLeaf(t *testing.T) {
	root, err := Parse([]byte(`{"order":{"identifiers":[{"type":123}]}}`))
	test.AssertNotError(t, err, "parsing fixture")

	_, err = root.Field("order").Field("identifiers").Index(0).Field("type").AsString()
	test.AssertError(t, err, "expected type mismatch error")
	test.AssertEquals(t, true, acmeerrors.Is(err, acmeerrors.Protocol))

	want := "$.order.identifiers[0].type"
	ae := err.(*acmeerrors.AcmeError)
	if got := ae.Detail; !containsPath(got, want) {
		t.Fatalf("error detail %q does not contain path %q", got, want)
	}
}

func containsPath(detail, path string) bool {
	return len(detail) >= len(path) && indexOf(detail, path) >= 0
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}

func TestAsInstantAcceptsVariousLayouts(t *testing.T) {
	cases := []string{
		"2022-04-27T17:42:43Z",
		"2022-04-27T17:42:43.5Z",
		"2022-04-27T17:42:43.123456789Z",
		"2022-04-27T17:42:43+02:00",
		"2022-04-27T17:42:43-0700",
	}
	for _, tc := range cases {
		node := FromValue(tc)
		parsed, err := node.AsInstant()
		test.AssertNotError(t, err, "parsing "+tc)
		if parsed.IsZero() {
			t.Fatalf("parsed zero time for %s", tc)
		}
	}
}

// TestRFC3339RoundTrip exercises spec.md §8's round-trip law directly:
// FormatInstant(AsInstant(s)) == s for every s this package itself
// produces via FormatInstant.
func TestRFC3339RoundTrip(t *testing.T) {
	cases := []time.Time{
		time.Date(2022, 4, 27, 17, 42, 43, 0, time.UTC),
		time.Date(2022, 4, 27, 17, 42, 43, 500000000, time.UTC),
		time.Date(2022, 4, 27, 17, 42, 43, 123456789, time.UTC),
		time.Date(2022, 4, 27, 17, 42, 43, 0, time.FixedZone("", 2*60*60)),
	}
	for _, tc := range cases {
		formatted := FormatInstant(tc)
		node := FromValue(formatted)
		parsed, err := node.AsInstant()
		test.AssertNotError(t, err, "parsing "+formatted)
		if got := FormatInstant(parsed); got != formatted {
			t.Fatalf("round trip mismatch: formatted %q, reparsed+reformatted %q", formatted, got)
		}
	}
}

func TestRFC3339RejectsMissingTimezone(t *testing.T) {
	node := FromValue("2022-04-27T17:42:43")
	_, err := node.AsInstant()
	test.AssertError(t, err, "expected rejection of timestamp without timezone")
}

func TestOptionalDistinguishesAbsent(t *testing.T) {
	root, err := Parse([]byte(`{"present":null}`))
	test.AssertNotError(t, err, "parsing fixture")

	_, ok := root.Field("present").Optional()
	test.AssertEquals(t, true, ok)

	_, ok = root.Field("missing").Optional()
	test.AssertEquals(t, false, ok)
}

func TestOnFeatureTagsMissingField(t *testing.T) {
	root, err := Parse([]byte(`{}`))
	test.AssertNotError(t, err, "parsing fixture")

	err = root.Field("renewalInfo").OnFeature("renewalInfo")
	test.AssertError(t, err, "expected not-supported error")
	test.AssertEquals(t, true, acmeerrors.Is(err, acmeerrors.NotSupported))
}

func TestAsIdentifierAndProblem(t *testing.T) {
	raw := []byte(`{
		"identifiers":[{"type":"dns","value":"example.org","subdomainAuthAllowed":true}],
		"problem":{"type":"urn:ietf:params:acme:error:malformed","detail":"bad csr","status":400}
	}`)
	root, err := Parse(raw)
	test.AssertNotError(t, err, "parsing fixture")

	ids, err := root.Field("identifiers").AsArray()
	test.AssertNotError(t, err, "identifiers array")
	ident, err := ids[0].AsIdentifier()
	test.AssertNotError(t, err, "identifier")
	test.AssertEquals(t, "dns", ident.Type)
	test.AssertEquals(t, "example.org", ident.Value)
	test.AssertEquals(t, true, ident.SubdomainAuthAllowed)

	prob, err := root.Field("problem").AsProblem()
	test.AssertNotError(t, err, "problem")
	test.AssertEquals(t, "urn:ietf:params:acme:error:malformed", prob.Type)
	test.AssertEquals(t, int64(400), prob.Status)
}

func TestAsDuration(t *testing.T) {
	root := FromValue(map[string]interface{}{"retryAfter": float64(30)})
	d, err := root.Field("retryAfter").AsDuration()
	test.AssertNotError(t, err, "duration")
	test.AssertEquals(t, 30*time.Second, d)
}
