package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/danavision/discovery-go/config"
	"github.com/danavision/discovery-go/internal/adapters/oidc"
	httpx "github.com/danavision/discovery-go/internal/http"
)

// BuildIdentity composes the identity middleware for the configured mode.
// OIDC mode fetches the issuer's discovery document during construction, so
// an unreachable or misconfigured issuer fails here rather than on the first
// request.
func BuildIdentity(
	ctx context.Context,
	cfg config.IdentityConfig,
	logger *slog.Logger,
) (func(http.Handler) http.Handler, error) {
	switch cfg.Mode {
	case config.IdentityModeHeader:
		if logger != nil {
			logger.Warn("header identity mode active; requests are trusted to carry a user id",
				"header", cfg.Header.UserIDHeader)
		}
		return httpx.Identity(httpx.IdentityConfig{
			UserIDHeader:  cfg.Header.UserIDHeader,
			DefaultUserID: cfg.Header.DefaultUserID,
			Logger:        logger,
		}), nil

	case config.IdentityModeOIDC:
		verifier, err := oidc.NewVerifier(ctx, oidc.Config{
			IssuerURL:   cfg.OIDC.IssuerURL,
			Audience:    cfg.OIDC.Audience,
			UserIDClaim: cfg.OIDC.UserIDClaim,
		})
		if err != nil {
			return nil, fmt.Errorf("build token verifier: %w", err)
		}
		if logger != nil {
			logger.Info("bearer token verification enabled", "issuer", cfg.OIDC.IssuerURL)
		}
		return httpx.Identity(httpx.IdentityConfig{
			Verifier: verifier,
			Logger:   logger,
		}), nil

	default:
		return nil, fmt.Errorf("unsupported identity mode %q", cfg.Mode)
	}
}
