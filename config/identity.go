package config

import (
	"fmt"
	"strings"
)

// IdentityMode represents how caller identity is resolved at the API boundary.
// Login flows, sessions, and role management live outside this service; the
// API only needs a verified owner id for each request.
type IdentityMode string

const (
	// IdentityModeOIDC verifies bearer tokens against an OIDC issuer.
	IdentityModeOIDC IdentityMode = "oidc"
	// IdentityModeHeader trusts an upstream-injected user header (development only).
	IdentityModeHeader IdentityMode = "header"
)

// UnmarshalText implements encoding.TextUnmarshaler for IdentityMode.
func (m *IdentityMode) UnmarshalText(text []byte) error {
	v := strings.ToLower(string(text))
	switch v {
	case "oidc", "header":
		*m = IdentityMode(v)
		return nil
	default:
		return fmt.Errorf("invalid IdentityMode: %q (valid options: oidc, header)", v)
	}
}

// OIDCConfig contains OIDC token verification configuration.
type OIDCConfig struct {
	// IssuerURL is the OIDC issuer; discovery metadata is fetched from
	// IssuerURL + "/.well-known/openid-configuration".
	IssuerURL string `env:"ISSUER_URL"`

	// Audience is the expected "aud" claim (typically this service's client id).
	Audience string `env:"AUDIENCE" envDefault:"danavision"`

	// UserIDClaim is the token claim carrying the stable user identifier.
	UserIDClaim string `env:"USER_ID_CLAIM" envDefault:"sub"`
}

// HeaderIdentityConfig controls header-based identity for development and
// deployments behind a trusted authenticating proxy.
type HeaderIdentityConfig struct {
	// UserIDHeader is the request header carrying the caller's user id.
	UserIDHeader string `env:"USER_ID_HEADER" envDefault:"X-User-ID"`

	// DefaultUserID is used when the header is absent (dev convenience).
	DefaultUserID string `env:"DEFAULT_USER_ID" envDefault:"dev-user"`
}

// IdentityConfig groups caller identity configuration.
type IdentityConfig struct {
	// Mode determines how request identity is resolved.
	Mode IdentityMode `env:"IDENTITY_MODE" envDefault:"oidc"`

	// OIDC configuration (used when Mode=oidc).
	OIDC OIDCConfig `envPrefix:"OIDC_"`

	// Header configuration (used when Mode=header).
	Header HeaderIdentityConfig `envPrefix:"IDENTITY_HEADER_"`
}

// Sanitize applies guardrails to identity configuration. In dev mode an
// unconfigured OIDC issuer falls back to header identity so local runs work
// without an identity provider; in production the missing issuer is left in
// place for bootstrap to reject.
func (c *IdentityConfig) Sanitize(isDev bool) {
	c.OIDC.IssuerURL = strings.TrimSpace(c.OIDC.IssuerURL)
	if c.Mode == IdentityModeOIDC && c.OIDC.IssuerURL == "" && isDev {
		c.Mode = IdentityModeHeader
	}
	if c.Header.UserIDHeader == "" {
		c.Header.UserIDHeader = "X-User-ID"
	}
}
