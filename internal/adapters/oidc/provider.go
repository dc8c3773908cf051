// Package oidc verifies bearer tokens issued by an OIDC provider and maps
// them to the stable user id the discovery API scopes data by.
package oidc

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	gooidc "github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"
)

const defaultUserIDClaim = "sub"

// Config holds configuration for the token verifier.
type Config struct {
	// IssuerURL is the provider's issuer or its discovery document URL;
	// a trailing /.well-known/openid-configuration is stripped.
	IssuerURL string
	// Audience is the expected aud claim, usually the API's client id.
	Audience string
	// UserIDClaim names the claim carrying the stable user id. Defaults to
	// "sub".
	UserIDClaim string
	HTTPClient  *http.Client // Optional, defaults to a 30s-timeout client
}

// Verifier validates bearer tokens against the provider's signing keys. It
// satisfies the HTTP layer's TokenVerifier interface.
type Verifier struct {
	verifier    *gooidc.IDTokenVerifier
	userIDClaim string
}

// NewVerifier fetches the provider's discovery document and JWKS and returns
// a ready Verifier. The context bounds the discovery fetch only.
func NewVerifier(ctx context.Context, config Config) (*Verifier, error) {
	if config.IssuerURL == "" {
		return nil, errors.New("issuer URL is required")
	}
	if config.Audience == "" {
		return nil, errors.New("audience is required")
	}

	httpClient := config.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}

	ctx = context.WithValue(ctx, oauth2.HTTPClient, httpClient)
	issuer := strings.TrimSuffix(config.IssuerURL, "/")
	issuer = strings.TrimSuffix(issuer, "/.well-known/openid-configuration")
	issuer = strings.TrimSuffix(issuer, ".well-known/openid-configuration")
	op, err := gooidc.NewProvider(ctx, issuer)
	if err != nil {
		return nil, fmt.Errorf("oidc new provider: %w", err)
	}

	claim := config.UserIDClaim
	if claim == "" {
		claim = defaultUserIDClaim
	}

	return &Verifier{
		verifier:    op.Verifier(&gooidc.Config{ClientID: config.Audience}),
		userIDClaim: claim,
	}, nil
}

// UserID verifies the raw bearer token and returns the user id from the
// configured claim, falling back to the token subject.
func (v *Verifier) UserID(ctx context.Context, rawToken string) (string, error) {
	idTok, err := v.verifier.Verify(ctx, rawToken)
	if err != nil {
		return "", fmt.Errorf("verify token: %w", err)
	}

	if v.userIDClaim == defaultUserIDClaim {
		if idTok.Subject == "" {
			return "", errors.New("token has no subject")
		}
		return idTok.Subject, nil
	}

	var claims map[string]any
	if claimsErr := idTok.Claims(&claims); claimsErr != nil {
		return "", fmt.Errorf("parse token claims: %w", claimsErr)
	}
	id, _ := claims[v.userIDClaim].(string)
	id = firstNonEmpty(id, idTok.Subject)
	if id == "" {
		return "", fmt.Errorf("token missing %s claim", v.userIDClaim)
	}
	return id, nil
}

// firstNonEmpty returns the first non-empty string from vals, or empty string if none.
func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
