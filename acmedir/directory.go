// Package acmedir implements the directory cache of spec.md §4.3: fetch,
// HTTP-cache-aware validation, and a shared, concurrency-safe Directory
// document. Concurrent refreshes are collapsed with x/sync/singleflight,
// the read-mostly barrier spec.md §5 asks for; expiry math runs off an
// injected acmecore.Clock rather than time.Now() so tests don't sleep.
package acmedir

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/cert-ops/acmeclient/acmecore"
	"github.com/cert-ops/acmeclient/acmeerrors"
)

// Metadata advertises CA capabilities (spec.md §4.3).
type Metadata struct {
	TermsOfService          string   `json:"termsOfService,omitempty"`
	Website                 string   `json:"website,omitempty"`
	CAAIdentities           []string `json:"caaIdentities,omitempty"`
	ExternalAccountRequired bool     `json:"externalAccountRequired,omitempty"`
	SubdomainAuthAllowed    bool     `json:"subdomainAuthAllowed,omitempty"`
	Profiles                map[string]string `json:"profiles,omitempty"`
	AutoRenewal             *AutoRenewal      `json:"autoRenewal,omitempty"`
}

// AutoRenewal describes the CA's auto-renewal parameters, when advertised.
type AutoRenewal struct {
	MinLifetime            int64  `json:"min-lifetime,omitempty"`
	MaxLifetime            int64  `json:"max-lifetime,omitempty"`
	AllowlistedSubjects    bool   `json:"allowlisted-subjects,omitempty"`
	IncludeRenewalInfoLink bool   `json:"include-renewal-info-link,omitempty"`
}

// Directory is the parsed CA service endpoint map (spec.md §4.3).
type Directory struct {
	NewNonce    string `json:"newNonce"`
	NewAccount  string `json:"newAccount"`
	NewOrder    string `json:"newOrder"`
	NewAuthz    string `json:"newAuthz,omitempty"`
	RevokeCert  string `json:"revokeCert"`
	KeyChange   string `json:"keyChange"`
	RenewalInfo string `json:"renewalInfo,omitempty"`
	Meta        Metadata `json:"meta,omitempty"`
}

// Endpoint returns the named directory endpoint URL, or a not-supported
// error if the CA's directory does not advertise it.
func (d Directory) Endpoint(name string) (string, error) {
	var url string
	switch name {
	case "newNonce":
		url = d.NewNonce
	case "newAccount":
		url = d.NewAccount
	case "newOrder":
		url = d.NewOrder
	case "newAuthz":
		url = d.NewAuthz
	case "revokeCert":
		url = d.RevokeCert
	case "keyChange":
		url = d.KeyChange
	case "renewalInfo":
		url = d.RenewalInfo
	default:
		return "", acmeerrors.ProtocolError("unknown directory endpoint %q", name)
	}
	if url == "" {
		return "", acmeerrors.NotSupportedError(name)
	}
	return url, nil
}

// Fetcher performs the unsigned GET a directory refresh requires. It is
// satisfied by *acmeconn.Connection; declared here, rather than imported,
// to avoid a dependency cycle (acmeconn imports acmedir).
type Fetcher interface {
	UnsignedGet(ctx context.Context, url, ifModifiedSince string) (body []byte, headers http.Header, status int, err error)
}

// Cache holds one Session's directory document plus its HTTP cache
// metadata, refreshed through a Fetcher on demand.
type Cache struct {
	url     string
	fetcher Fetcher
	clock   acmecore.Clock

	mu           sync.RWMutex
	dir          Directory
	loaded       bool
	expiresAt    time.Time
	lastModified string

	group singleflight.Group
}

// New constructs a directory Cache for the given directory URL. fetcher may
// be nil if the caller will supply one later via SetFetcher, which lets a
// Connection and its directory Cache be wired up even though each needs a
// reference to the other.
func New(url string, fetcher Fetcher, clk acmecore.Clock) *Cache {
	return &Cache{url: url, fetcher: fetcher, clock: clk}
}

// SetFetcher binds (or rebinds) the Fetcher a Cache refreshes through.
func (c *Cache) SetFetcher(fetcher Fetcher) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fetcher = fetcher
}

// Purge discards the cached directory, forcing the next Get to re-fetch.
func (c *Cache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.loaded = false
	c.expiresAt = time.Time{}
	c.lastModified = ""
}

// Get returns the cached Directory, refreshing it if the cache has expired
// or was purged. Concurrent callers during a refresh share one HTTP round
// trip via singleflight, satisfying spec.md §8's cache-idempotence
// property.
func (c *Cache) Get(ctx context.Context) (Directory, error) {
	c.mu.RLock()
	if c.loaded && c.clock.Now().Before(c.expiresAt) {
		dir := c.dir
		c.mu.RUnlock()
		return dir, nil
	}
	c.mu.RUnlock()

	v, err, _ := c.group.Do(c.url, func() (interface{}, error) {
		return c.refresh(ctx)
	})
	if err != nil {
		return Directory{}, err
	}
	return v.(Directory), nil
}

func (c *Cache) refresh(ctx context.Context) (Directory, error) {
	c.mu.RLock()
	ims := c.lastModified
	wasLoaded := c.loaded
	prev := c.dir
	c.mu.RUnlock()

	body, headers, status, err := c.fetcher.UnsignedGet(ctx, c.url, ims)
	if err != nil {
		return Directory{}, err
	}

	if status == http.StatusNotModified && wasLoaded {
		c.mu.Lock()
		c.expiresAt = computeExpiry(c.clock, headers)
		c.mu.Unlock()
		return prev, nil
	}
	if status < 200 || status >= 300 {
		return Directory{}, acmeerrors.ProtocolError("fetching directory: HTTP %d", status)
	}

	var dir Directory
	if err := json.Unmarshal(body, &dir); err != nil {
		return Directory{}, acmeerrors.ProtocolError("parsing directory document: %v", err)
	}

	c.mu.Lock()
	c.dir = dir
	c.loaded = true
	c.expiresAt = computeExpiry(c.clock, headers)
	c.lastModified = headers.Get("Last-Modified")
	c.mu.Unlock()

	return dir, nil
}

func computeExpiry(clk acmecore.Clock, headers http.Header) time.Time {
	now := clk.Now()
	if cc := headers.Get("Cache-Control"); cc != "" {
		if hasDirective(cc, "no-cache") || hasDirective(cc, "no-store") {
			return now
		}
		if secs, ok := maxAge(cc); ok {
			return now.Add(time.Duration(secs) * time.Second)
		}
	}
	if exp := headers.Get("Expires"); exp != "" {
		if t, err := http.ParseTime(exp); err == nil {
			return t
		}
	}
	// No cache headers: treat as immediately stale, re-fetching next call
	// but still returning this response to the current caller.
	return now
}

func hasDirective(cacheControl, directive string) bool {
	for _, part := range strings.Split(cacheControl, ",") {
		if strings.TrimSpace(part) == directive {
			return true
		}
	}
	return false
}

func maxAge(cacheControl string) (int, bool) {
	for _, part := range strings.Split(cacheControl, ",") {
		part = strings.TrimSpace(part)
		const prefix = "max-age="
		if rest, ok := strings.CutPrefix(part, prefix); ok {
			secs, err := strconv.Atoi(rest)
			if err != nil {
				return 0, false
			}
			return secs, true
		}
	}
	return 0, false
}
