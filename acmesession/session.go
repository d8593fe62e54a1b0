// Package acmesession implements the Session and Login of spec.md §4.5:
// the directory-bound root object a caller constructs once per CA, and the
// per-account credential derived from logging in to it.
package acmesession

import (
	"context"
	"crypto"
	stdlog "log"
	"time"

	"github.com/go-logr/logr"
	"github.com/go-logr/stdr"
	"github.com/jmhodges/clock"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/cert-ops/acmeclient/acmeconfig"
	"github.com/cert-ops/acmeclient/acmeconn"
	"github.com/cert-ops/acmeclient/acmecore"
	"github.com/cert-ops/acmeclient/acmedir"
)

// Session holds one CA's cached directory, its shared nonce box, and the
// Connection every resource operation is issued through (spec.md §3, §4.5).
type Session struct {
	directoryURL string
	dir          *acmedir.Cache
	nonces       *acmeconn.NonceBox
	conn         *acmeconn.Connection
	clock        acmecore.Clock
	logger       logr.Logger
	settings     acmeconfig.NetworkSettings
}

// Login is the per-account credential spec.md §3 names: the account URL
// the server returned on creation, and the key pair authenticating
// subsequent signed requests against it.
type Login struct {
	AccountURL string
	Signer     crypto.Signer
}

// Option customizes New.
type Option func(*sessionConfig)

type sessionConfig struct {
	clock      acmecore.Clock
	logger     logr.Logger
	settings   acmeconfig.NetworkSettings
	registerer prometheus.Registerer
}

// WithClock injects a Clock, used by tests to avoid wall-clock waits.
func WithClock(clk acmecore.Clock) Option {
	return func(c *sessionConfig) { c.clock = clk }
}

// WithLogger injects a logr.Logger; the default logs through the standard
// library logger via go-logr/stdr, matching the teacher's practice of
// defaulting to a console logger when a caller supplies none.
func WithLogger(logger logr.Logger) Option {
	return func(c *sessionConfig) { c.logger = logger }
}

// WithNetworkSettings overrides the default transport configuration.
func WithNetworkSettings(settings acmeconfig.NetworkSettings) Option {
	return func(c *sessionConfig) { c.settings = settings }
}

// WithRegisterer supplies the Prometheus registerer the Connection's
// instrumentation registers its collectors against.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(c *sessionConfig) { c.registerer = reg }
}

// New constructs a Session bound to directoryURL. The directory itself is
// not fetched until first use (spec.md §4.3's lazy-cache semantics).
func New(directoryURL string, opts ...Option) *Session {
	cfg := sessionConfig{
		clock:      clock.Default(),
		logger:     stdr.New(stdlog.Default()),
		settings:   acmeconfig.DefaultNetworkSettings(),
		registerer: prometheus.NewRegistry(),
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	nonces := &acmeconn.NonceBox{}
	// The Cache needs a Fetcher and the Connection needs the Cache (to look
	// up the newNonce endpoint); constructed with a nil Fetcher and bound
	// after the Connection exists.
	dir := acmedir.New(directoryURL, nil, cfg.clock)
	conn := acmeconn.New(dir, nonces, cfg.clock, cfg.logger, cfg.registerer, acmeconn.Options{
		ConnectTimeout:  time.Duration(cfg.settings.ConnectTimeoutSeconds) * time.Second,
		RequestTimeout:  time.Duration(cfg.settings.RequestTimeoutSeconds) * time.Second,
		DisableGzip:     cfg.settings.DisableGzip,
		UserAgent:       cfg.settings.UserAgent,
		AcceptLanguage:  cfg.settings.AcceptLanguage,
		BadNonceRetries: cfg.settings.BadNonceRetries,
	})
	dir.SetFetcher(conn)

	return &Session{
		directoryURL: directoryURL,
		dir:          dir,
		nonces:       nonces,
		conn:         conn,
		clock:        cfg.clock,
		logger:       cfg.logger,
		settings:     cfg.settings,
	}
}

// Connect returns the Connection every resource operation issues its
// requests through.
func (s *Session) Connect() *acmeconn.Connection {
	return s.conn
}

// ResourceURL resolves a directory endpoint name (e.g. "newOrder",
// "newAccount", "renewalInfo") to its advertised URL.
func (s *Session) ResourceURL(ctx context.Context, name string) (string, error) {
	d, err := s.dir.Get(ctx)
	if err != nil {
		return "", err
	}
	return d.Endpoint(name)
}

// Metadata returns the CA's directory metadata object (terms of service,
// website, CAA identities, ...).
func (s *Session) Metadata(ctx context.Context) (acmedir.Metadata, error) {
	d, err := s.dir.Get(ctx)
	if err != nil {
		return acmedir.Metadata{}, err
	}
	return d.Meta, nil
}

// PurgeDirectoryCache discards the cached directory document, forcing the
// next resource lookup to re-fetch it.
func (s *Session) PurgeDirectoryCache() {
	s.dir.Purge()
}

// Clock exposes the Session's injected Clock, the same one its directory
// cache and Connection use.
func (s *Session) Clock() acmecore.Clock {
	return s.clock
}

// Logger exposes the Session's injected logr.Logger.
func (s *Session) Logger() logr.Logger {
	return s.logger
}
