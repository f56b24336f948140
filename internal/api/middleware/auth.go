package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/automlpro/internal/api/response"
	"github.com/kiranshivaraju/automlpro/internal/auth"
	"github.com/kiranshivaraju/automlpro/pkg/models"
)

// Authenticator resolves a raw bearer token.
type Authenticator interface {
	Authenticate(ctx context.Context, raw string) (models.Principal, uuid.UUID, error)
}

// Auth provides bearer-token authentication middleware.
type Auth struct {
	authn Authenticator
}

// NewAuth creates a new Auth middleware.
func NewAuth(a Authenticator) *Auth {
	return &Auth{authn: a}
}

// Authenticate validates the Bearer token and stores the principal and token
// id in the request context.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := extractBearerToken(r)
		if raw == "" {
			raw = r.URL.Query().Get("access_token")
		}
		if raw == "" {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Missing or invalid Authorization header", nil)
			return
		}

		p, tokenID, err := a.authn.Authenticate(r.Context(), raw)
		if errors.Is(err, auth.ErrInvalidToken) {
			response.Error(w, http.StatusUnauthorized,
				"INVALID_TOKEN", "Invalid or expired token", nil)
			return
		}
		if err != nil {
			slog.Error("token validation failed", "error", err)
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "Failed to validate token", nil)
			return
		}

		next.ServeHTTP(w, r.WithContext(SetPrincipal(r.Context(), p, tokenID)))
	})
}

func extractBearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
