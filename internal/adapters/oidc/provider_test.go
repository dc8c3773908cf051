package oidc

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// discoveryServer serves a minimal OIDC discovery document whose issuer is
// the server's own URL.
func discoveryServer(t *testing.T) *httptest.Server {
	t.Helper()
	issuer := ""
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		doc := map[string]string{
			"issuer":                 issuer,
			"authorization_endpoint": issuer + "/auth",
			"token_endpoint":         issuer + "/token",
			"userinfo_endpoint":      issuer + "/userinfo",
			"jwks_uri":               issuer + "/jwks",
		}
		_ = json.NewEncoder(w).Encode(doc)
	})
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	issuer = srv.URL
	return srv
}

func TestNewVerifier_Success(t *testing.T) {
	srv := discoveryServer(t)

	v, err := NewVerifier(context.Background(), Config{
		IssuerURL: srv.URL,
		Audience:  "discovery-api",
	})
	require.NoError(t, err)
	assert.NotNil(t, v)
	assert.Equal(t, "sub", v.userIDClaim)
}

func TestNewVerifier_TrimsDiscoverySuffix(t *testing.T) {
	srv := discoveryServer(t)

	// Passing the full discovery document URL must resolve to the issuer.
	v, err := NewVerifier(context.Background(), Config{
		IssuerURL: srv.URL + "/.well-known/openid-configuration",
		Audience:  "discovery-api",
	})
	require.NoError(t, err)
	assert.NotNil(t, v)
}

func TestNewVerifier_CustomUserIDClaim(t *testing.T) {
	srv := discoveryServer(t)

	v, err := NewVerifier(context.Background(), Config{
		IssuerURL:   srv.URL,
		Audience:    "discovery-api",
		UserIDClaim: "preferred_username",
	})
	require.NoError(t, err)
	assert.Equal(t, "preferred_username", v.userIDClaim)
}

func TestNewVerifier_ValidationErrors(t *testing.T) {
	tests := []struct {
		name   string
		config Config
		errMsg string
	}{
		{
			name:   "missing issuer URL",
			config: Config{Audience: "discovery-api"},
			errMsg: "issuer URL is required",
		},
		{
			name:   "missing audience",
			config: Config{IssuerURL: "http://example.com"},
			errMsg: "audience is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := NewVerifier(context.Background(), tt.config)
			require.Error(t, err)
			assert.Nil(t, v)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestFirstNonEmpty(t *testing.T) {
	assert.Equal(t, "a", firstNonEmpty("a", "b"))
	assert.Equal(t, "b", firstNonEmpty("", "b"))
	assert.Equal(t, "", firstNonEmpty("", ""))
	assert.Equal(t, "", firstNonEmpty())
}
