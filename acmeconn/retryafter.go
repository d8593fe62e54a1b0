package acmeconn

import (
	"net/http"
	"strconv"
	"time"

	"github.com/cert-ops/acmeclient/acmecore"
)

// parseRetryAfter reads the Retry-After header as either an HTTP-date or a
// delta-seconds integer (spec.md §4.4). A past-due value resolves to clk's
// current time, i.e. "no delay" (spec.md §9's design note).
func parseRetryAfter(h http.Header, clk acmecore.Clock) (time.Time, bool) {
	v := h.Get("Retry-After")
	if v == "" {
		return time.Time{}, false
	}
	if secs, err := strconv.Atoi(v); err == nil {
		when := clk.Now().Add(time.Duration(secs) * time.Second)
		if when.Before(clk.Now()) {
			return clk.Now(), true
		}
		return when, true
	}
	if when, err := http.ParseTime(v); err == nil {
		if when.Before(clk.Now()) {
			return clk.Now(), true
		}
		return when, true
	}
	return time.Time{}, false
}
