package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/sandeepkv93/security-monitoring-service/internal/http/response"
	"github.com/sandeepkv93/security-monitoring-service/internal/observability"
	"github.com/sandeepkv93/security-monitoring-service/internal/service"
)

type contextKey string

const (
	IdentityContextKey contextKey = "identity"
	accessTokenCookie             = "access_token"
)

type AccessTokenParser interface {
	ParseAccess(raw string) (*service.Identity, error)
}

type SessionValidator interface {
	Validate(ctx context.Context, tokenRef string) (bool, error)
}

// AuthMiddleware admits requests whose access token verifies and whose session is still live.
// A revoked or expired session rejects the token even before it expires.
func AuthMiddleware(tokens AccessTokenParser, sessions SessionValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, source := accessToken(r)
			if raw == "" {
				observability.RecordAccessTokenValidation(r.Context(), "missing", "none")
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "missing access token", nil)
				return
			}
			identity, err := tokens.ParseAccess(raw)
			if err != nil {
				observability.RecordAccessTokenValidation(r.Context(), "invalid", source)
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid access token", nil)
				return
			}
			live, err := sessions.Validate(r.Context(), identity.SessionRef)
			if err != nil {
				observability.RecordAccessTokenValidation(r.Context(), "error", source)
				response.ServiceError(w, r, err)
				return
			}
			if !live {
				observability.RecordAccessTokenValidation(r.Context(), "revoked", source)
				response.Error(w, r, http.StatusUnauthorized, "SESSION_REVOKED", "session is no longer active", nil)
				return
			}
			observability.RecordAccessTokenValidation(r.Context(), "valid", source)
			ctx := context.WithValue(r.Context(), IdentityContextKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func accessToken(r *http.Request) (string, string) {
	auth := r.Header.Get("Authorization")
	if len(auth) > 7 && strings.EqualFold(auth[:7], "bearer ") {
		if raw := strings.TrimSpace(auth[7:]); raw != "" {
			return raw, "bearer"
		}
	}
	if c, err := r.Cookie(accessTokenCookie); err == nil && c.Value != "" {
		return c.Value, "cookie"
	}
	return "", "none"
}

func IdentityFromContext(ctx context.Context) (*service.Identity, bool) {
	id, ok := ctx.Value(IdentityContextKey).(*service.Identity)
	return id, ok && id != nil
}
