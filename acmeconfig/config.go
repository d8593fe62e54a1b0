// Package acmeconfig provides YAML-loadable Session network settings,
// grounded on the teacher's cmd.* config-loading convention of unmarshaling
// a YAML document into plain structs with gopkg.in/yaml.v3.
package acmeconfig

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cert-ops/acmeclient/acmeerrors"
)

// NetworkSettings configures the transport a Session builds its Connection
// from (spec.md §4.5).
type NetworkSettings struct {
	ConnectTimeoutSeconds int    `yaml:"connectTimeoutSeconds"`
	RequestTimeoutSeconds int    `yaml:"requestTimeoutSeconds"`
	DisableGzip           bool   `yaml:"disableGzip"`
	AcceptLanguage        string `yaml:"acceptLanguage"`
	UserAgent             string `yaml:"userAgent"`
	BadNonceRetries       int    `yaml:"badNonceRetries"`
}

// DefaultNetworkSettings matches spec.md §4.5's stated defaults: 30-second
// connect and request timeouts, gzip enabled.
func DefaultNetworkSettings() NetworkSettings {
	return NetworkSettings{
		ConnectTimeoutSeconds: 30,
		RequestTimeoutSeconds: 30,
		UserAgent:             "acmeclient",
	}
}

// Load reads NetworkSettings from a YAML file at path, filling any field
// the document omits from DefaultNetworkSettings.
func Load(path string) (NetworkSettings, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return NetworkSettings{}, acmeerrors.Wrap(acmeerrors.Protocol, err, "reading config %s", path)
	}
	return Parse(raw)
}

// Parse decodes a YAML document into NetworkSettings, seeded with
// DefaultNetworkSettings so a partial document still produces sane values.
func Parse(raw []byte) (NetworkSettings, error) {
	settings := DefaultNetworkSettings()
	if err := yaml.Unmarshal(raw, &settings); err != nil {
		return NetworkSettings{}, acmeerrors.Wrap(acmeerrors.Protocol, err, "parsing network settings YAML")
	}
	return settings, nil
}
