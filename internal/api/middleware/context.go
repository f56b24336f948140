package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/kiranshivaraju/automlpro/pkg/models"
)

type contextKey string

const (
	principalKey contextKey = "principal"
	tokenIDKey   contextKey = "token_id"
)

// SetPrincipal stores the authenticated identity and the token it used.
func SetPrincipal(ctx context.Context, p models.Principal, tokenID uuid.UUID) context.Context {
	ctx = context.WithValue(ctx, principalKey, p)
	return context.WithValue(ctx, tokenIDKey, tokenID)
}

func GetPrincipal(r *http.Request) (models.Principal, bool) {
	p, ok := r.Context().Value(principalKey).(models.Principal)
	return p, ok && p.Authenticated()
}

func GetTokenID(r *http.Request) (uuid.UUID, bool) {
	id, ok := r.Context().Value(tokenIDKey).(uuid.UUID)
	return id, ok
}
