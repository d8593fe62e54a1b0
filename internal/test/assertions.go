// Package test provides small assertion helpers in the style the teacher's
// test suite calls (github.com/letsencrypt/boulder/test), without pulling
// in a third-party assertion library: plain *testing.T, no fluent builder.
package test

import (
	"reflect"
	"testing"
)

// AssertNotError fails the test if err is non-nil.
func AssertNotError(t *testing.T, err error, msg string) {
	t.Helper()
	if err != nil {
		t.Fatalf("%s: %s", msg, err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error, msg string) {
	t.Helper()
	if err == nil {
		t.Fatalf("%s: expected error, got none", msg)
	}
}

// AssertEquals fails the test if expected != actual.
func AssertEquals(t *testing.T, expected, actual interface{}) {
	t.Helper()
	if !reflect.DeepEqual(expected, actual) {
		t.Fatalf("expected %#v, got %#v", expected, actual)
	}
}

// AssertDeepEquals is an alias for AssertEquals kept for readability at
// call sites that compare structs rather than scalars.
func AssertDeepEquals(t *testing.T, expected, actual interface{}) {
	t.Helper()
	AssertEquals(t, expected, actual)
}

// AssertBoxedNil fails the test unless the provided value is nil or a
// typed nil pointer, used for asserting that a pointer-typed return is empty without
// triggering "comparing interface to nil" mistakes.
func AssertBoxedNil(t *testing.T, v interface{}, msg string) {
	t.Helper()
	rv := reflect.ValueOf(v)
	if v != nil && !(rv.Kind() == reflect.Ptr && rv.IsNil()) {
		t.Fatalf("%s: expected nil, got %#v", msg, v)
	}
}
