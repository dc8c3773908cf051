package httpx

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
)

// TokenVerifier validates a bearer token and returns the user id it carries.
type TokenVerifier interface {
	UserID(ctx context.Context, rawToken string) (string, error)
}

// IdentityConfig configures the Identity middleware. When Verifier is set,
// requests must carry a bearer token and the verified claim becomes the user
// id. Without a verifier the id is read from UserIDHeader, falling back to
// DefaultUserID so a bare dev environment still has a caller.
type IdentityConfig struct {
	Verifier      TokenVerifier
	UserIDHeader  string
	DefaultUserID string
	Logger        *slog.Logger
}

const defaultUserIDHeader = "X-User-ID"

// Identity returns a middleware that resolves the calling user and stores the
// id in the request context. Requests without a resolvable identity get a
// 401; handlers downstream can rely on UserID being present.
func Identity(cfg IdentityConfig) func(http.Handler) http.Handler {
	if cfg.UserIDHeader == "" {
		cfg.UserIDHeader = defaultUserIDHeader
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := resolveUserID(r, cfg)
			if err != nil {
				if cfg.Logger != nil {
					cfg.Logger.DebugContext(r.Context(), "request identity rejected",
						"path", r.URL.Path,
						"error", err,
					)
				}
				WriteError(w, ErrorParams{
					Code:    http.StatusUnauthorized,
					ErrCode: "authentication_required",
					Err:     err,
				})
				return
			}

			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

func resolveUserID(r *http.Request, cfg IdentityConfig) (string, error) {
	if cfg.Verifier != nil {
		raw, err := bearerToken(r)
		if err != nil {
			return "", err
		}
		userID, err := cfg.Verifier.UserID(r.Context(), raw)
		if err != nil {
			return "", errors.New("invalid bearer token")
		}
		return userID, nil
	}

	userID := strings.TrimSpace(r.Header.Get(cfg.UserIDHeader))
	if userID == "" {
		userID = cfg.DefaultUserID
	}
	if userID == "" {
		return "", errors.New("no user identity on request")
	}
	return userID, nil
}

func bearerToken(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	if header == "" {
		return "", errors.New("authorization header is required")
	}
	scheme, token, ok := strings.Cut(header, " ")
	token = strings.TrimSpace(token)
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return "", errors.New("authorization header must carry a bearer token")
	}
	return token, nil
}
